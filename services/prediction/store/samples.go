// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edutwin/edutwin/services/prediction/engine"
)

// ListSamples implements engine.SampleStore. The id ordering is what makes
// the dataset hash stable across calls to an unchanged cohort.
func (s *Store) ListSamples(ctx context.Context, structureID int64) ([]engine.ReferenceSample, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, score_data
        FROM dataset_samples
        WHERE structure_id = $1
        ORDER BY id;
    `, structureID)
	if err != nil {
		return nil, fmt.Errorf("listing samples for structure %d: %w", structureID, err)
	}
	defer rows.Close()

	var samples []engine.ReferenceSample
	for rows.Next() {
		var sample engine.ReferenceSample
		if err := rows.Scan(&sample.ID, &sample.Scores); err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// ReplaceDataset swaps the reference cohort of a structure wholesale inside
// one transaction. Callers must invalidate the cluster, prediction and
// evaluation caches afterwards.
func (s *Store) ReplaceDataset(ctx context.Context, structureID int64, scoreRows []map[string]float64) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("starting ingest transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM dataset_samples WHERE structure_id = $1;`, structureID); err != nil {
		return 0, fmt.Errorf("clearing previous cohort: %w", err)
	}

	batch := &pgx.Batch{}
	for _, scores := range scoreRows {
		batch.Queue(`INSERT INTO dataset_samples (structure_id, score_data) VALUES ($1, $2);`, structureID, scores)
	}
	br := tx.SendBatch(ctx, batch)
	for range scoreRows {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return 0, fmt.Errorf("inserting sample: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("closing ingest batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing ingest: %w", err)
	}
	return len(scoreRows), nil
}

// DatasetStats summarizes the stored cohort.
type DatasetStats struct {
	SampleCount   int            `json:"sample_count"`
	KeyCoverage   map[string]int `json:"key_coverage"`
	CompleteCount int            `json:"complete_count"`
	DatasetHash   string         `json:"dataset_hash"`
}

// GetDatasetStats reports sample count, per-key coverage, how many samples
// carry the full feature set, and the current dataset hash.
func (s *Store) GetDatasetStats(ctx context.Context, structure *engine.Structure) (*DatasetStats, error) {
	samples, err := s.ListSamples(ctx, structure.ID)
	if err != nil {
		return nil, err
	}
	featureKeys := structure.FeatureKeys()
	stats := &DatasetStats{
		SampleCount: len(samples),
		KeyCoverage: make(map[string]int, len(featureKeys)),
		DatasetHash: engine.DatasetHash(samples),
	}
	for _, key := range featureKeys {
		stats.KeyCoverage[key] = 0
	}
	for _, sample := range samples {
		complete := true
		for _, key := range featureKeys {
			if _, ok := sample.Scores[key]; ok {
				stats.KeyCoverage[key]++
			} else {
				complete = false
			}
		}
		if complete {
			stats.CompleteCount++
		}
	}
	return stats, nil
}
