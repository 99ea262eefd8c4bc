// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine_test

import (
	"context"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edutwin/edutwin/services/prediction/engine"
)

// largeCohort builds n complete samples over keys with values in [5, 9],
// deterministically.
func largeCohort(n int, keys []string) []engine.ReferenceSample {
	rng := rand.New(rand.NewSource(42))
	samples := make([]engine.ReferenceSample, n)
	for i := range samples {
		scores := make(map[string]float64, len(keys))
		for _, key := range keys {
			scores[key] = 5 + 4*rng.Float64()
		}
		samples[i] = engine.ReferenceSample{ID: int64(i + 1), Scores: scores}
	}
	return samples
}

func threeTimePointStructure() *engine.Structure {
	return &engine.Structure{
		ID:         1,
		Name:       "eval",
		TimePoints: []string{"T1", "T2", "T3"},
		Subjects:   []string{"A", "B"},
		ScaleType:  "0-10",
	}
}

var allSixKeys = []string{"A_T1", "B_T1", "A_T2", "B_T2", "A_T3", "B_T3"}

func TestEvaluateModels_StandardHoldout(t *testing.T) {
	eng, store, kv := newTestEngine()
	store.Structures[1] = threeTimePointStructure()
	store.Samples[1] = largeCohort(100, allSixKeys)

	result, err := eng.EvaluateModels(context.Background(), 1,
		[]string{"T1", "T2"}, []string{"T3"}, engine.DefaultModelParams())
	require.NoError(t, err)

	require.Len(t, result.Models, 3)
	for name, metrics := range result.Models {
		require.Empty(t, metrics.Error, name)
		assert.LessOrEqual(t, metrics.MAE, 2.0, name)
		assert.GreaterOrEqual(t, metrics.Accuracy, 60.0, name)
		assert.LessOrEqual(t, metrics.Accuracy, 100.0, name)
		assert.GreaterOrEqual(t, metrics.RMSE, metrics.MAE, "RMSE dominates MAE")
		assert.Equal(t, 20, metrics.TestSamples, name)
	}

	assert.Equal(t, engine.MethodStandard, result.Method)
	assert.Equal(t, 80, result.TrainSamples)
	assert.Equal(t, 20, result.TestSamples)
	assert.NotEqual(t, "undetermined", result.Recommendation)

	// The report is cached under the standard method key.
	cachedUnderStandard := false
	for key := range kv.Data {
		if strings.HasPrefix(key, "evaluation:1:standard:") {
			cachedUnderStandard = true
		}
	}
	assert.True(t, cachedUnderStandard)
}

func TestEvaluateModels_SecondCallHitsCache(t *testing.T) {
	eng, store, _ := newTestEngine()
	store.Structures[1] = threeTimePointStructure()
	store.Samples[1] = largeCohort(100, allSixKeys)
	params := engine.DefaultModelParams()

	first, err := eng.EvaluateModels(context.Background(), 1, []string{"T1", "T2"}, []string{"T3"}, params)
	require.NoError(t, err)

	// Drop the dataset: a cache hit never touches it.
	store.Samples[1] = nil
	second, err := eng.EvaluateModels(context.Background(), 1, []string{"T1", "T2"}, []string{"T3"}, params)
	require.NoError(t, err)
	assert.Equal(t, first.Models, second.Models)
	assert.Equal(t, first.Recommendation, second.Recommendation)
}

func TestEvaluateModels_ParamChangeBypassesCache(t *testing.T) {
	eng, store, _ := newTestEngine()
	store.Structures[1] = threeTimePointStructure()
	store.Samples[1] = largeCohort(100, allSixKeys)

	_, err := eng.EvaluateModels(context.Background(), 1, []string{"T1", "T2"}, []string{"T3"},
		engine.DefaultModelParams())
	require.NoError(t, err)

	// Different parameters must not reuse the cached report; with the
	// dataset emptied the second call fails instead of hitting cache.
	store.Samples[1] = nil
	_, err = eng.EvaluateModels(context.Background(), 1, []string{"T1", "T2"}, []string{"T3"},
		engine.ModelParams{KNNNeighbors: 3, KRBandwidth: 0.5, LWLRTau: 1})
	assert.ErrorIs(t, err, engine.ErrInsufficientSamples)
}

func TestEvaluateModels_InsufficientSamples(t *testing.T) {
	eng, store, _ := newTestEngine()
	store.Structures[1] = threeTimePointStructure()
	store.Samples[1] = largeCohort(10, allSixKeys)

	_, err := eng.EvaluateModels(context.Background(), 1, []string{"T1", "T2"}, []string{"T3"},
		engine.DefaultModelParams())
	assert.ErrorIs(t, err, engine.ErrInsufficientSamples)
}

func TestEvaluateModels_FiltersInvalidSamples(t *testing.T) {
	eng, store, _ := newTestEngine()
	store.Structures[1] = threeTimePointStructure()
	cohort := largeCohort(40, allSixKeys)
	// Strip the output key from 25 samples: only 15 valid remain.
	for i := 0; i < 25; i++ {
		delete(cohort[i].Scores, "A_T3")
	}
	store.Samples[1] = cohort

	_, err := eng.EvaluateModels(context.Background(), 1, []string{"T1", "T2"}, []string{"T3"},
		engine.DefaultModelParams())
	assert.ErrorIs(t, err, engine.ErrInsufficientSamples)
}

func TestEvaluateModels_UnknownStructure(t *testing.T) {
	eng, _, _ := newTestEngine()
	_, err := eng.EvaluateModels(context.Background(), 42, []string{"T1"}, []string{"T2"},
		engine.DefaultModelParams())
	assert.ErrorIs(t, err, engine.ErrUnknownStructure)
}

func TestEvaluateModels_ClusteredDelegation(t *testing.T) {
	if testing.Short() {
		t.Skip("large fit")
	}
	eng, store, _ := newTestEngine()
	store.Structures[1] = threeTimePointStructure()
	store.Samples[1] = largeCohort(3100, allSixKeys)

	result, err := eng.EvaluateModels(context.Background(), 1,
		[]string{"T1", "T2"}, []string{"T3"}, engine.DefaultModelParams())
	require.NoError(t, err)

	assert.Equal(t, "cluster_prototype", result.Method)
	assert.Equal(t, 3100, result.ValidSamples)
	for name, metrics := range result.Models {
		require.Empty(t, metrics.Error, name)
		assert.GreaterOrEqual(t, metrics.Accuracy, 60.0, name)
	}
}

func TestEvaluateModels_MetricBounds(t *testing.T) {
	eng, store, _ := newTestEngine()
	store.Structures[1] = threeTimePointStructure()
	store.Samples[1] = largeCohort(60, allSixKeys)

	result, err := eng.EvaluateModels(context.Background(), 1,
		[]string{"T1", "T2"}, []string{"T3"}, engine.DefaultModelParams())
	require.NoError(t, err)

	scaleMax := engine.ScaleMax("0-10")
	for name, metrics := range result.Models {
		require.Empty(t, metrics.Error, name)
		assert.GreaterOrEqual(t, metrics.MAE, 0.0)
		assert.LessOrEqual(t, metrics.MAE, scaleMax)
		assert.GreaterOrEqual(t, metrics.Accuracy, 0.0)
		assert.LessOrEqual(t, metrics.Accuracy, 100.0)
	}
}
