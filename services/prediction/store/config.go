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

	"github.com/edutwin/edutwin/services/prediction/engine"
)

// GetModelConfig implements engine.ConfigStore. The single config row is
// seeded by EnsureSchema, so this never comes back empty on a healthy
// database.
func (s *Store) GetModelConfig(ctx context.Context) (*engine.ModelConfig, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT active_model, knn_n, kr_bandwidth, lwlr_tau, version
        FROM model_config
        WHERE id = 1;
    `)
	var cfg engine.ModelConfig
	if err := row.Scan(&cfg.ActiveModel, &cfg.Params.KNNNeighbors, &cfg.Params.KRBandwidth,
		&cfg.Params.LWLRTau, &cfg.Version); err != nil {
		return nil, fmt.Errorf("loading model config: %w", err)
	}
	return &cfg, nil
}

// UpdateModelConfig writes the active model and parameters, bumping the
// version. The version is not part of any cache key; callers invalidate the
// prediction and evaluation caches explicitly.
func (s *Store) UpdateModelConfig(ctx context.Context, activeModel string, params engine.ModelParams) (*engine.ModelConfig, error) {
	row := s.pool.QueryRow(ctx, `
        UPDATE model_config
        SET active_model = $1, knn_n = $2, kr_bandwidth = $3, lwlr_tau = $4,
            version = version + 1, updated_at = now()
        WHERE id = 1
        RETURNING active_model, knn_n, kr_bandwidth, lwlr_tau, version;
    `, activeModel, params.KNNNeighbors, params.KRBandwidth, params.LWLRTau)

	var cfg engine.ModelConfig
	if err := row.Scan(&cfg.ActiveModel, &cfg.Params.KNNNeighbors, &cfg.Params.KRBandwidth,
		&cfg.Params.LWLRTau, &cfg.Version); err != nil {
		return nil, fmt.Errorf("updating model config: %w", err)
	}
	return &cfg, nil
}
