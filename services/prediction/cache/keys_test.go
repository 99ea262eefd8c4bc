// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashJSON_Stable(t *testing.T) {
	a := map[string]float64{"A_T1": 8, "B_T1": 7}
	b := map[string]float64{"B_T1": 7, "A_T1": 8}
	// encoding/json sorts map keys: insertion order must not matter.
	assert.Equal(t, HashJSON(a), HashJSON(b))

	c := map[string]float64{"A_T1": 8, "B_T1": 7.01}
	assert.NotEqual(t, HashJSON(a), HashJSON(c))
}

func TestPredictionKey_Format(t *testing.T) {
	scores := map[string]float64{"A_T1": 8}
	key := PredictionKey(7, 1, "T1", scores, "knn", map[string]int{"knn_n": 5})

	assert.True(t, strings.HasPrefix(key, "prediction:7:1:T1:"))
	parts := strings.Split(key, ":")
	assert.Len(t, parts, 5)
	assert.Len(t, parts[4], 32, "MD5 hex digest")
}

func TestPredictionKey_SensitiveToInputs(t *testing.T) {
	scores := map[string]float64{"A_T1": 8}
	base := PredictionKey(7, 1, "T1", scores, "knn", 5)

	assert.NotEqual(t, base, PredictionKey(7, 1, "T1", scores, "lwlr", 5))
	assert.NotEqual(t, base, PredictionKey(7, 1, "T1", scores, "knn", 7))
	assert.NotEqual(t, base, PredictionKey(7, 1, "T1", map[string]float64{"A_T1": 9}, "knn", 5))
	assert.NotEqual(t, base, PredictionKey(7, 1, "T2", scores, "knn", 5))
}

func TestEvaluationKey_TimePointOrderIrrelevant(t *testing.T) {
	a := EvaluationKey(1, []string{"T1", "T2"}, []string{"T3"}, nil, "standard")
	b := EvaluationKey(1, []string{"T2", "T1"}, []string{"T3"}, nil, "standard")
	assert.Equal(t, a, b)

	c := EvaluationKey(1, []string{"T1"}, []string{"T3"}, nil, "standard")
	assert.NotEqual(t, a, c)

	d := EvaluationKey(1, []string{"T1", "T2"}, []string{"T3"}, nil, "cluster")
	assert.NotEqual(t, a, d)
	assert.True(t, strings.HasPrefix(d, "evaluation:1:cluster:"))
}

func TestEvaluationKey_DoesNotMutateInputs(t *testing.T) {
	inputs := []string{"T2", "T1"}
	EvaluationKey(1, inputs, []string{"T3"}, nil, "standard")
	assert.Equal(t, []string{"T2", "T1"}, inputs)
}

func TestClusterKey_Format(t *testing.T) {
	assert.Equal(t, "cluster:3:abc123", ClusterKey(3, "abc123"))
}

func TestPatterns(t *testing.T) {
	assert.Equal(t, "prediction:7:1:*", predictionPattern(7, 1))
	assert.Equal(t, "prediction:*:1:*", predictionPattern(0, 1))
	assert.Equal(t, "prediction:7:*", predictionPattern(7, 0))
	assert.Equal(t, "prediction:*", predictionPattern(0, 0))

	assert.Equal(t, "evaluation:1:*", evaluationPattern(1))
	assert.Equal(t, "evaluation:*", evaluationPattern(0))

	assert.Equal(t, "cluster:1:*", clusterPattern(1))
	assert.Equal(t, "cluster:*", clusterPattern(0))
}
