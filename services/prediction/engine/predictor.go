// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/edutwin/edutwin/services/prediction/cache"
	"github.com/edutwin/edutwin/services/prediction/observability"
)

// Engine is the prediction orchestrator. It composes the stores, the cache
// and the core algorithms into the predict/evaluate operations the handlers
// expose. All fields except the stores are optional: a nil Cache means every
// lookup misses, a nil Metrics records nothing, a nil Logger uses the
// process default.
type Engine struct {
	Structures StructureStore
	Samples    SampleStore
	Scores     ScoreStore
	Config     ConfigStore
	Cache      *cache.Cache
	Metrics    *observability.Metrics
	Logger     *slog.Logger

	// CandidateTarget overrides the selector target; 0 uses
	// TargetSamplesPerCluster.
	CandidateTarget int
}

// NewEngine wires an orchestrator. logger may be nil.
func NewEngine(structures StructureStore, samples SampleStore, scores ScoreStore, config ConfigStore, c *cache.Cache, m *observability.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Structures: structures,
		Samples:    samples,
		Scores:     scores,
		Config:     config,
		Cache:      c,
		Metrics:    m,
		Logger:     logger,
	}
}

// PredictionOutcome reports one orchestrator run.
type PredictionOutcome struct {
	Predictions map[string]float64 `json:"predictions"`
	Imputed     map[string]float64 `json:"imputed,omitempty"`
	Written     int                `json:"written"`
	CacheHit    bool               `json:"cache_hit"`
	Model       string             `json:"model"`
}

// DatasetHash fingerprints the ordered reference cohort. It is the cache key
// component that makes stale cluster indices unreachable after an ingest.
func DatasetHash(samples []ReferenceSample) string {
	rows := make([]map[string]any, len(samples))
	for i, s := range samples {
		rows[i] = map[string]any{"id": s.ID, "score_data": s.Scores}
	}
	return cache.HashJSON(rows)
}

// UpdatePredictions refreshes the predicted scores of one user at the given
// current time point: load, impute, consult the prediction cache, run the
// chosen regressor over the clustered or plain reference set, cache, and
// write back. The returned outcome's Written field holds the number of score
// rows written.
func (e *Engine) UpdatePredictions(ctx context.Context, userID, structureID int64, currentTimePoint, model string, params ModelParams) (*PredictionOutcome, error) {
	start := time.Now()

	structure, err := e.Structures.GetStructure(ctx, structureID)
	if err != nil {
		return nil, err
	}
	currentIdx, err := structure.TimePointIndex(currentTimePoint)
	if err != nil {
		return nil, err
	}

	dataset, err := e.Samples.ListSamples(ctx, structureID)
	if err != nil {
		return nil, fmt.Errorf("loading reference dataset: %w", err)
	}
	outcome := &PredictionOutcome{Predictions: map[string]float64{}, Model: model}
	if len(dataset) == 0 {
		return outcome, nil
	}

	if err := e.Scores.EnsureScoreRows(ctx, userID, structureID, structure.Subjects, structure.TimePoints); err != nil {
		return nil, fmt.Errorf("ensuring score rows: %w", err)
	}
	userScores, err := e.Scores.ListUserScores(ctx, userID, structureID)
	if err != nil {
		return nil, fmt.Errorf("loading user scores: %w", err)
	}
	actualByKey := make(map[string]*float64, len(userScores))
	for _, score := range userScores {
		actualByKey[FeatureKey(score.Subject, score.TimePoint)] = score.ActualScore
	}

	inputKeys, futureKeys := structure.InputTargetKeys(currentIdx)
	targetKeys := append([]string(nil), futureKeys...)
	actualMap := make(map[string]float64, len(inputKeys))
	for _, key := range inputKeys {
		if v, ok := actualByKey[key]; ok && v != nil {
			actualMap[key] = *v
		} else {
			// Missing-current backfill: blank input cells become targets too.
			targetKeys = append(targetKeys, key)
		}
	}

	imputed := ImputeInputs(dataset, inputKeys, actualMap)
	if len(imputed) > 0 {
		// An imputed key becomes a known input: merge it into the query and
		// drop it from the targets so the regressor does not re-predict it.
		remaining := make([]string, 0, len(targetKeys))
		for _, key := range targetKeys {
			if _, ok := imputed[key]; !ok {
				remaining = append(remaining, key)
			}
		}
		targetKeys = remaining
		for key, value := range imputed {
			actualMap[key] = value
		}
	}
	outcome.Imputed = imputed

	if len(targetKeys) == 0 || len(actualMap) == 0 {
		// Nothing left to regress; imputed backfills are still persisted.
		written, err := e.Scores.SavePredictions(ctx, userID, structureID, imputedWrites(imputed))
		if err != nil {
			return nil, fmt.Errorf("writing imputed scores: %w", err)
		}
		outcome.Written = written
		return outcome, nil
	}

	predictionKey := cache.PredictionKey(userID, structureID, currentTimePoint, actualMap, model, params)
	predictions, cacheHit := e.Cache.GetPrediction(ctx, predictionKey)
	observability.RecordCacheResult(e.Metrics, "prediction", cacheHit)
	if cacheHit {
		e.Logger.Info("prediction cache hit", "user_id", userID, "structure_id", structureID)
	} else {
		predictions, err = e.runRegression(ctx, structure, dataset, actualMap, targetKeys, model, params)
		if err != nil {
			return nil, err
		}
		if len(predictions) > 0 {
			e.Cache.SetPrediction(ctx, predictionKey, predictions)
		}
	}
	outcome.Predictions = predictions
	outcome.CacheHit = cacheHit

	writes := append(make([]PredictedScore, 0, len(predictions)+len(imputed)), imputedWrites(imputed)...)
	for key, value := range predictions {
		subject, timePoint, err := SplitFeatureKey(key)
		if err != nil {
			e.Logger.Warn("skipping prediction with malformed key", "key", key)
			continue
		}
		writes = append(writes, PredictedScore{
			Subject:   subject,
			TimePoint: timePoint,
			Value:     value,
			Source:    model,
			Status:    StatusActive,
		})
	}
	written, err := e.Scores.SavePredictions(ctx, userID, structureID, writes)
	if err != nil {
		return nil, fmt.Errorf("writing predictions: %w", err)
	}
	outcome.Written = written

	if e.Metrics != nil {
		e.Metrics.PredictionDurationSeconds.WithLabelValues(model).Observe(time.Since(start).Seconds())
		e.Metrics.PredictionsWrittenTotal.WithLabelValues(model).Add(float64(len(predictions)))
		if len(imputed) > 0 {
			e.Metrics.PredictionsWrittenTotal.WithLabelValues(ImputerSource).Add(float64(len(imputed)))
		}
	}
	return outcome, nil
}

// imputedWrites converts imputer fills into score write-backs tagged with
// the imputer source.
func imputedWrites(imputed map[string]float64) []PredictedScore {
	writes := make([]PredictedScore, 0, len(imputed))
	for key, value := range imputed {
		subject, timePoint, err := SplitFeatureKey(key)
		if err != nil {
			continue
		}
		writes = append(writes, PredictedScore{
			Subject:   subject,
			TimePoint: timePoint,
			Value:     value,
			Source:    ImputerSource,
			Status:    StatusImputed,
		})
	}
	return writes
}

// runRegression picks the clustered or plain path by cohort size and runs
// the chosen regressor.
func (e *Engine) runRegression(ctx context.Context, structure *Structure, dataset []ReferenceSample, actualMap map[string]float64, targetKeys []string, model string, params ModelParams) (map[string]float64, error) {
	if len(dataset) >= TargetSamplesPerCluster {
		index, err := e.ensureClusterIndex(ctx, structure, dataset)
		if err != nil {
			return nil, err
		}
		candidates, err := index.Candidates(actualMap, e.CandidateTarget)
		if err != nil {
			return nil, err
		}
		return predictWithModel(candidates, actualMap, targetKeys, model, params), nil
	}
	return predictWithModel(dataset, actualMap, targetKeys, model, params), nil
}

// ensureClusterIndex loads the structure's index from cache or fits and
// caches a fresh one. Two racing callers may both build; last cache write
// wins and both results are correct.
func (e *Engine) ensureClusterIndex(ctx context.Context, structure *Structure, dataset []ReferenceSample) (*ClusterIndex, error) {
	key := cache.ClusterKey(structure.ID, DatasetHash(dataset))
	if blob, ok := e.Cache.GetClusterIndex(ctx, key); ok {
		index, err := DeserializeClusterIndex(blob)
		if err == nil {
			observability.RecordCacheResult(e.Metrics, "cluster", true)
			return index, nil
		}
		e.Logger.Warn("cached cluster index corrupt, rebuilding", "structure_id", structure.ID, "error", err)
	}
	observability.RecordCacheResult(e.Metrics, "cluster", false)

	start := time.Now()
	index := NewClusterIndex()
	if err := index.Fit(dataset, structure.FeatureKeys()); err != nil {
		return nil, fmt.Errorf("fitting cluster index: %w", err)
	}
	if e.Metrics != nil {
		e.Metrics.IndexBuildDurationSeconds.Observe(time.Since(start).Seconds())
	}
	e.Logger.Info("built cluster index",
		"structure_id", structure.ID,
		"clusters", index.NumClusters,
		"samples", index.TotalSamples())

	if blob, err := index.Serialize(); err == nil {
		e.Cache.SetClusterIndex(ctx, key, blob)
	}
	return index, nil
}
