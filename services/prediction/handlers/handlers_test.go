// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edutwin/edutwin/services/prediction/cache"
	"github.com/edutwin/edutwin/services/prediction/datatypes"
	"github.com/edutwin/edutwin/services/prediction/engine"
	"github.com/edutwin/edutwin/services/prediction/engine/enginetest"
)

func init() {
	gin.SetMode(gin.TestMode)
	datatypes.RegisterValidators()
}

// testHarness bundles a router wired over fakes.
type testHarness struct {
	router *gin.Engine
	store  *enginetest.FakeStore
	kv     *enginetest.FakeKV
	cache  *cache.Cache
}

func newHarness() *testHarness {
	store := enginetest.NewFakeStore()
	kv := enginetest.NewFakeKV()
	c := cache.New(kv, cache.Config{}, slog.Default())
	eng := engine.NewEngine(store, store, store, store, c, nil, slog.Default())

	router := gin.New()
	router.GET("/health", HealthCheck)
	router.POST("/v1/structures/:structureID/predict", Predict(eng))
	router.GET("/v1/structures/:structureID/scores", GetUserScores(eng))

	registry := NewEvaluationRegistry()
	router.POST("/v1/evaluate", Evaluate(eng, registry))
	router.GET("/v1/evaluate/:jobID", EvaluationStatus(registry))

	router.GET("/v1/cache/stats", CacheStats(c))
	router.POST("/v1/cache/invalidate", CacheInvalidate(c))

	return &testHarness{router: router, store: store, kv: kv, cache: c}
}

func (h *testHarness) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func seedPredictable(store *enginetest.FakeStore) {
	store.Structures[1] = &engine.Structure{
		ID:         1,
		Name:       "demo",
		TimePoints: []string{"T1", "T2"},
		Subjects:   []string{"A", "B"},
		ScaleType:  "0-10",
	}
	store.Samples[1] = []engine.ReferenceSample{
		{ID: 1, Scores: map[string]float64{"A_T1": 8, "B_T1": 7, "A_T2": 9, "B_T2": 8}},
		{ID: 2, Scores: map[string]float64{"A_T1": 6, "B_T1": 5, "A_T2": 7, "B_T2": 6}},
	}
	store.SetActualScore(7, 1, "A", "T1", 8)
	store.SetActualScore(7, 1, "B", "T1", 7)
}

func TestHealthCheck(t *testing.T) {
	h := newHarness()
	rec := h.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestPredict_OK(t *testing.T) {
	h := newHarness()
	seedPredictable(h.store)

	rec := h.do(http.MethodPost, "/v1/structures/1/predict", gin.H{
		"user_id":            7,
		"current_time_point": "T1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp datatypes.PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, engine.ModelKNN, resp.Model)
	assert.Equal(t, 2, resp.Written)
	assert.Contains(t, resp.Predictions, "A_T2")
	assert.False(t, resp.CacheHit)

	// Second identical request is served from cache.
	rec = h.do(http.MethodPost, "/v1/structures/1/predict", gin.H{
		"user_id":            7,
		"current_time_point": "T1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.CacheHit)
}

func TestPredict_ModelOverride(t *testing.T) {
	h := newHarness()
	seedPredictable(h.store)

	rec := h.do(http.MethodPost, "/v1/structures/1/predict", gin.H{
		"user_id":            7,
		"current_time_point": "T1",
		"model":              "kernel_regression",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp datatypes.PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, engine.ModelKernelRegression, resp.Model)
}

func TestPredict_Validation(t *testing.T) {
	h := newHarness()
	seedPredictable(h.store)

	t.Run("missing user id", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/v1/structures/1/predict", gin.H{
			"current_time_point": "T1",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad model name", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/v1/structures/1/predict", gin.H{
			"user_id":            7,
			"current_time_point": "T1",
			"model":              "random_forest",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad structure id", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/v1/structures/abc/predict", gin.H{
			"user_id":            7,
			"current_time_point": "T1",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown structure", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/v1/structures/99/predict", gin.H{
			"user_id":            7,
			"current_time_point": "T1",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unknown time point", func(t *testing.T) {
		rec := h.do(http.MethodPost, "/v1/structures/1/predict", gin.H{
			"user_id":            7,
			"current_time_point": "T9",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestEvaluate_Sync(t *testing.T) {
	h := newHarness()
	h.store.Structures[1] = &engine.Structure{
		ID:         1,
		TimePoints: []string{"T1", "T2", "T3"},
		Subjects:   []string{"A", "B"},
		ScaleType:  "0-10",
	}
	h.store.Samples[1] = evaluationCohort(60)

	rec := h.do(http.MethodPost, "/v1/evaluate", gin.H{
		"structure_id":      1,
		"input_timepoints":  []string{"T1", "T2"},
		"output_timepoints": []string{"T3"},
		"sync":              true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result engine.EvaluationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Len(t, result.Models, 3)
	assert.NotEmpty(t, result.Recommendation)
}

func TestEvaluate_AsyncJobLifecycle(t *testing.T) {
	h := newHarness()
	h.store.Structures[1] = &engine.Structure{
		ID:         1,
		TimePoints: []string{"T1", "T2", "T3"},
		Subjects:   []string{"A", "B"},
		ScaleType:  "0-10",
	}
	h.store.Samples[1] = evaluationCohort(60)

	rec := h.do(http.MethodPost, "/v1/evaluate", gin.H{
		"structure_id":      1,
		"input_timepoints":  []string{"T1", "T2"},
		"output_timepoints": []string{"T3"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted struct {
		EvaluationID string `json:"evaluation_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.EvaluationID)

	deadline := time.Now().Add(10 * time.Second)
	for {
		rec = h.do(http.MethodGet, "/v1/evaluate/"+accepted.EvaluationID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var job datatypes.EvaluationJob
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
		if job.Status == datatypes.JobCompleted {
			require.NotNil(t, job.Result)
			assert.Len(t, job.Result.Models, 3)
			break
		}
		require.NotEqual(t, datatypes.JobFailed, job.Status, job.Error)
		require.True(t, time.Now().Before(deadline), "evaluation did not finish in time")
		time.Sleep(20 * time.Millisecond)
	}
}

func TestEvaluate_InsufficientSamples(t *testing.T) {
	h := newHarness()
	h.store.Structures[1] = &engine.Structure{
		ID:         1,
		TimePoints: []string{"T1", "T2"},
		Subjects:   []string{"A"},
		ScaleType:  "0-10",
	}

	rec := h.do(http.MethodPost, "/v1/evaluate", gin.H{
		"structure_id":      1,
		"input_timepoints":  []string{"T1"},
		"output_timepoints": []string{"T2"},
		"sync":              true,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvaluationStatus_Unknown(t *testing.T) {
	h := newHarness()
	rec := h.do(http.MethodGet, "/v1/evaluate/no-such-job", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCacheEndpoints(t *testing.T) {
	h := newHarness()
	seedPredictable(h.store)

	// Populate the prediction cache through a predict call.
	rec := h.do(http.MethodPost, "/v1/structures/1/predict", gin.H{
		"user_id":            7,
		"current_time_point": "T1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/v1/cache/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats cache.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, "enabled", stats.Status)
	assert.Equal(t, 1, stats.PredictionCached)

	rec = h.do(http.MethodPost, "/v1/cache/invalidate", gin.H{
		"scope": "prediction", "user_id": 7, "structure_id": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var inv datatypes.InvalidateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inv))
	assert.Equal(t, 1, inv.Deleted)

	rec = h.do(http.MethodPost, "/v1/cache/invalidate", gin.H{"scope": "everything"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "scope is validated")
}

func TestGetUserScores(t *testing.T) {
	h := newHarness()
	seedPredictable(h.store)

	rec := h.do(http.MethodGet, "/v1/structures/1/scores?user_id=7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"subject":"A"`)

	rec = h.do(http.MethodGet, "/v1/structures/1/scores", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "user_id is required")
}

// evaluationCohort builds n complete samples over two subjects and three
// time points.
func evaluationCohort(n int) []engine.ReferenceSample {
	keys := []string{"A_T1", "B_T1", "A_T2", "B_T2", "A_T3", "B_T3"}
	samples := make([]engine.ReferenceSample, n)
	for i := range samples {
		scores := make(map[string]float64, len(keys))
		for j, key := range keys {
			scores[key] = 5 + float64((i+j)%5)
		}
		samples[i] = engine.ReferenceSample{ID: int64(i + 1), Scores: scores}
	}
	return samples
}
