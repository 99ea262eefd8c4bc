// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/edutwin/edutwin/services/prediction/engine"
)

// GetStructure implements engine.StructureStore.
func (s *Store) GetStructure(ctx context.Context, structureID int64) (*engine.Structure, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT id, structure_name, time_point_labels, subject_labels, scale_type,
               COALESCE(current_time_point, ''), pipeline_enabled
        FROM teaching_structures
        WHERE id = $1;
    `, structureID)

	var st engine.Structure
	err := row.Scan(&st.ID, &st.Name, &st.TimePoints, &st.Subjects, &st.ScaleType,
		&st.CurrentTimePoint, &st.PipelineEnabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", engine.ErrUnknownStructure, structureID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading structure %d: %w", structureID, err)
	}
	return &st, nil
}

// CreateStructure inserts a new teaching structure and returns it with its
// assigned id.
func (s *Store) CreateStructure(ctx context.Context, st *engine.Structure) (*engine.Structure, error) {
	row := s.pool.QueryRow(ctx, `
        INSERT INTO teaching_structures
            (structure_name, time_point_labels, subject_labels, scale_type, current_time_point, pipeline_enabled)
        VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
        RETURNING id;
    `, st.Name, st.TimePoints, st.Subjects, st.ScaleType, st.CurrentTimePoint, st.PipelineEnabled)

	created := *st
	if err := row.Scan(&created.ID); err != nil {
		return nil, fmt.Errorf("creating structure: %w", err)
	}
	return &created, nil
}

// SetPipelineEnabled toggles the auto-prediction flag.
func (s *Store) SetPipelineEnabled(ctx context.Context, structureID int64, enabled bool) error {
	tag, err := s.pool.Exec(ctx, `
        UPDATE teaching_structures SET pipeline_enabled = $2, updated_at = now() WHERE id = $1;
    `, structureID, enabled)
	if err != nil {
		return fmt.Errorf("toggling pipeline for structure %d: %w", structureID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", engine.ErrUnknownStructure, structureID)
	}
	return nil
}
