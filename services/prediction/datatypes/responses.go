// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"time"

	"github.com/edutwin/edutwin/services/prediction/engine"
)

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PredictResponse reports one orchestrator run.
type PredictResponse struct {
	StructureID int64              `json:"structure_id"`
	UserID      int64              `json:"user_id"`
	Model       string             `json:"model"`
	Predictions map[string]float64 `json:"predictions"`
	Imputed     map[string]float64 `json:"imputed,omitempty"`
	Written     int                `json:"written"`
	CacheHit    bool               `json:"cache_hit"`
}

// Evaluation job states.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// EvaluationJob tracks one background evaluation.
type EvaluationJob struct {
	ID        string                   `json:"evaluation_id"`
	Status    string                   `json:"status"`
	Result    *engine.EvaluationResult `json:"result,omitempty"`
	Error     string                   `json:"error,omitempty"`
	CreatedAt time.Time                `json:"created_at"`
}

// UpsertScoresResponse reports a score write plus any triggered prediction
// refresh.
type UpsertScoresResponse struct {
	Written             int  `json:"written"`
	InvalidatedEntries  int  `json:"invalidated_entries"`
	PredictionTriggered bool `json:"prediction_triggered"`
	PredictionsWritten  int  `json:"predictions_written,omitempty"`
}

// DatasetUploadResponse reports an ingest.
type DatasetUploadResponse struct {
	Imported           int    `json:"imported"`
	DatasetHash        string `json:"dataset_hash"`
	InvalidatedEntries int    `json:"invalidated_entries"`
}

// InvalidateResponse reports a cache flush.
type InvalidateResponse struct {
	Scope   string `json:"scope"`
	Deleted int    `json:"deleted"`
}
