// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edutwin/edutwin/services/prediction/cache"
	"github.com/edutwin/edutwin/services/prediction/engine/enginetest"
)

func newTestCache() (*cache.Cache, *enginetest.FakeKV) {
	kv := enginetest.NewFakeKV()
	return cache.New(kv, cache.Config{}, slog.Default()), kv
}

func TestPredictionRoundTrip(t *testing.T) {
	c, kv := newTestCache()
	ctx := context.Background()
	preds := map[string]float64{"A_T2": 9.0, "B_T2": 8.0}

	key := cache.PredictionKey(7, 1, "T1", map[string]float64{"A_T1": 8}, "knn", 5)
	_, ok := c.GetPrediction(ctx, key)
	assert.False(t, ok, "miss before set")

	c.SetPrediction(ctx, key, preds)
	got, ok := c.GetPrediction(ctx, key)
	require.True(t, ok)
	assert.Equal(t, preds, got)

	// TTL defaults to one hour.
	assert.Equal(t, time.Hour, kv.TTLs[key])
}

func TestEvaluationRoundTrip(t *testing.T) {
	c, kv := newTestCache()
	ctx := context.Background()

	type report struct {
		Best string  `json:"best"`
		MAE  float64 `json:"mae"`
	}
	key := cache.EvaluationKey(1, []string{"T1"}, []string{"T2"}, nil, "standard")
	c.SetEvaluation(ctx, key, report{Best: "knn", MAE: 0.4})

	var got report
	require.True(t, c.GetEvaluation(ctx, key, &got))
	assert.Equal(t, report{Best: "knn", MAE: 0.4}, got)
	assert.Equal(t, 2*time.Hour, kv.TTLs[key])
}

func TestClusterIndexRoundTrip(t *testing.T) {
	c, kv := newTestCache()
	ctx := context.Background()
	blob := []byte{0x00, 0x01, 0xFF, 0x7B}

	key := cache.ClusterKey(1, "deadbeef")
	c.SetClusterIndex(ctx, key, blob)

	got, ok := c.GetClusterIndex(ctx, key)
	require.True(t, ok)
	assert.Equal(t, blob, got)
	assert.Equal(t, 24*time.Hour, kv.TTLs[key])
}

func TestDisabledCache_NilSafe(t *testing.T) {
	ctx := context.Background()
	c := cache.New(nil, cache.Config{}, slog.Default())
	assert.False(t, c.Enabled())

	// Every get misses, every set no-ops, without panicking.
	_, ok := c.GetPrediction(ctx, "prediction:1:1:T1:x")
	assert.False(t, ok)
	c.SetPrediction(ctx, "prediction:1:1:T1:x", map[string]float64{"A_T2": 1})
	assert.Zero(t, c.InvalidatePredictions(ctx, 0, 0))
	assert.Equal(t, "disabled", c.GetStats(ctx).Status)

	var nilCache *cache.Cache
	assert.False(t, nilCache.Enabled())
	_, ok = nilCache.GetPrediction(ctx, "k")
	assert.False(t, ok)
}

func TestInvalidateScopes(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	c.SetPrediction(ctx, cache.PredictionKey(7, 1, "T1", nil, "knn", 1), map[string]float64{"A_T2": 1})
	c.SetPrediction(ctx, cache.PredictionKey(7, 2, "T1", nil, "knn", 1), map[string]float64{"A_T2": 1})
	c.SetPrediction(ctx, cache.PredictionKey(8, 1, "T1", nil, "knn", 1), map[string]float64{"A_T2": 1})

	// User+structure scope deletes exactly one entry.
	assert.Equal(t, 1, c.InvalidatePredictions(ctx, 7, 1))
	// Structure scope deletes the remaining structure-1 entry.
	assert.Equal(t, 1, c.InvalidatePredictions(ctx, 0, 1))
	// Global scope deletes the rest.
	assert.Equal(t, 1, c.InvalidatePredictions(ctx, 0, 0))
	assert.Equal(t, 0, c.InvalidatePredictions(ctx, 0, 0))
}

func TestInvalidate_DoesNotCrossNamespaces(t *testing.T) {
	c, kv := newTestCache()
	ctx := context.Background()

	c.SetPrediction(ctx, cache.PredictionKey(7, 1, "T1", nil, "knn", 1), map[string]float64{"A_T2": 1})
	c.SetEvaluation(ctx, cache.EvaluationKey(1, []string{"T1"}, []string{"T2"}, nil, "standard"), map[string]int{"x": 1})
	c.SetClusterIndex(ctx, cache.ClusterKey(1, "hash"), []byte{1})

	assert.Equal(t, 1, c.InvalidateEvaluations(ctx, 1))
	assert.Equal(t, 2, kv.Len(), "prediction and cluster entries survive")
	assert.Equal(t, 1, c.InvalidateClusterIndexes(ctx, 1))
	assert.Equal(t, 1, c.InvalidatePredictions(ctx, 0, 0))
	assert.Zero(t, kv.Len())
}

func TestGetStats(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	c.SetPrediction(ctx, cache.PredictionKey(7, 1, "T1", nil, "knn", 1), map[string]float64{"A_T2": 1})
	c.SetPrediction(ctx, cache.PredictionKey(8, 1, "T1", nil, "knn", 1), map[string]float64{"A_T2": 1})
	c.SetEvaluation(ctx, cache.EvaluationKey(1, []string{"T1"}, []string{"T2"}, nil, "standard"), map[string]int{"x": 1})

	stats := c.GetStats(ctx)
	assert.Equal(t, "enabled", stats.Status)
	assert.Equal(t, 2, stats.PredictionCached)
	assert.Equal(t, 1, stats.EvaluationCached)
	assert.Equal(t, 0, stats.ClusterCached)
	assert.Equal(t, 3600, stats.TTLSeconds["prediction"])
	assert.Equal(t, 7200, stats.TTLSeconds["evaluation"])
	assert.Equal(t, 86400, stats.TTLSeconds["cluster"])
}

func TestUndecodableEntriesAreMisses(t *testing.T) {
	c, kv := newTestCache()
	ctx := context.Background()

	kv.Data["prediction:1:1:T1:bad"] = "{not json"
	_, ok := c.GetPrediction(ctx, "prediction:1:1:T1:bad")
	assert.False(t, ok)

	kv.Data["cluster:1:bad"] = "!!not-base64!!"
	_, ok = c.GetClusterIndex(ctx, "cluster:1:bad")
	assert.False(t, ok)
}
