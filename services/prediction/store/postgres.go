// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store provides the Postgres-backed implementations of the engine's
// store interfaces: teaching structures, reference datasets, user score
// sheets and the model configuration row.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a pgx connection pool and implements engine.StructureStore,
// engine.SampleStore, engine.ScoreStore and engine.ConfigStore.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and returns a Store.
func New(ctx context.Context, connStr string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping Postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// schema is idempotent; EnsureSchema runs it at startup so a fresh database
// is usable without an external migration step.
const schema = `
CREATE TABLE IF NOT EXISTS teaching_structures (
    id                 BIGSERIAL PRIMARY KEY,
    structure_name     TEXT NOT NULL,
    time_point_labels  JSONB NOT NULL,
    subject_labels     JSONB NOT NULL,
    scale_type         TEXT NOT NULL DEFAULT '0-10',
    current_time_point TEXT,
    pipeline_enabled   BOOLEAN NOT NULL DEFAULT FALSE,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dataset_samples (
    id           BIGSERIAL PRIMARY KEY,
    structure_id BIGINT NOT NULL REFERENCES teaching_structures(id) ON DELETE CASCADE,
    sample_label TEXT,
    score_data   JSONB NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_dataset_samples_structure ON dataset_samples (structure_id);

CREATE TABLE IF NOT EXISTS user_scores (
    id               BIGSERIAL PRIMARY KEY,
    user_id          BIGINT NOT NULL,
    structure_id     BIGINT NOT NULL REFERENCES teaching_structures(id) ON DELETE CASCADE,
    subject          TEXT NOT NULL,
    time_point       TEXT NOT NULL,
    actual_score     DOUBLE PRECISION,
    predicted_score  DOUBLE PRECISION,
    actual_source    TEXT,
    predicted_source TEXT,
    actual_status    TEXT,
    predicted_status TEXT,
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (user_id, structure_id, subject, time_point)
);
CREATE INDEX IF NOT EXISTS idx_user_scores_user_structure ON user_scores (user_id, structure_id);

CREATE TABLE IF NOT EXISTS model_config (
    id           SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    active_model TEXT NOT NULL DEFAULT 'knn',
    knn_n        INTEGER NOT NULL DEFAULT 15,
    kr_bandwidth DOUBLE PRECISION NOT NULL DEFAULT 1.25,
    lwlr_tau     DOUBLE PRECISION NOT NULL DEFAULT 3.0,
    version      INTEGER NOT NULL DEFAULT 1,
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
INSERT INTO model_config (id) VALUES (1) ON CONFLICT (id) DO NOTHING;
`

// EnsureSchema creates the tables on first run.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}
