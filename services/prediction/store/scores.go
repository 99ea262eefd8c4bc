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

// ListUserScores implements engine.ScoreStore.
func (s *Store) ListUserScores(ctx context.Context, userID, structureID int64) ([]engine.UserScore, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT user_id, structure_id, subject, time_point,
               actual_score, predicted_score,
               COALESCE(actual_source, ''), COALESCE(predicted_source, ''),
               COALESCE(actual_status, ''), COALESCE(predicted_status, '')
        FROM user_scores
        WHERE user_id = $1 AND structure_id = $2
        ORDER BY id;
    `, userID, structureID)
	if err != nil {
		return nil, fmt.Errorf("listing scores for user %d: %w", userID, err)
	}
	defer rows.Close()

	var scores []engine.UserScore
	for rows.Next() {
		var score engine.UserScore
		if err := rows.Scan(&score.UserID, &score.StructureID, &score.Subject, &score.TimePoint,
			&score.ActualScore, &score.PredictedScore,
			&score.ActualSource, &score.PredictedSource,
			&score.ActualStatus, &score.PredictedStatus); err != nil {
			return nil, fmt.Errorf("scanning user score: %w", err)
		}
		scores = append(scores, score)
	}
	return scores, rows.Err()
}

// EnsureScoreRows implements engine.ScoreStore by inserting every missing
// (subject, time point) combination in one batch.
func (s *Store) EnsureScoreRows(ctx context.Context, userID, structureID int64, subjects, timePoints []string) error {
	batch := &pgx.Batch{}
	for _, tp := range timePoints {
		for _, subject := range subjects {
			batch.Queue(`
                INSERT INTO user_scores (user_id, structure_id, subject, time_point)
                VALUES ($1, $2, $3, $4)
                ON CONFLICT (user_id, structure_id, subject, time_point) DO NOTHING;
            `, userID, structureID, subject, tp)
		}
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("ensuring score rows: %w", err)
		}
	}
	return nil
}

// SavePredictions implements engine.ScoreStore.
func (s *Store) SavePredictions(ctx context.Context, userID, structureID int64, predictions []engine.PredictedScore) (int, error) {
	if len(predictions) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, p := range predictions {
		batch.Queue(`
            UPDATE user_scores
            SET predicted_score = $5, predicted_source = $6, predicted_status = $7, updated_at = now()
            WHERE user_id = $1 AND structure_id = $2 AND subject = $3 AND time_point = $4;
        `, userID, structureID, p.Subject, p.TimePoint, p.Value, p.Source, p.Status)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	written := 0
	for range predictions {
		tag, err := br.Exec()
		if err != nil {
			return written, fmt.Errorf("saving prediction: %w", err)
		}
		written += int(tag.RowsAffected())
	}
	return written, nil
}

// ActualScore is one user-entered score cell for UpsertActualScores.
type ActualScore struct {
	Subject   string
	TimePoint string
	Value     float64
	Source    string
}

// UpsertActualScores writes user-entered scores, creating rows as needed.
// Callers invalidate the user's prediction cache afterwards.
func (s *Store) UpsertActualScores(ctx context.Context, userID, structureID int64, entries []ActualScore) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, entry := range entries {
		source := entry.Source
		if source == "" {
			source = "manual"
		}
		batch.Queue(`
            INSERT INTO user_scores (user_id, structure_id, subject, time_point, actual_score, actual_source, actual_status)
            VALUES ($1, $2, $3, $4, $5, $6, 'active')
            ON CONFLICT (user_id, structure_id, subject, time_point)
            DO UPDATE SET actual_score = EXCLUDED.actual_score,
                          actual_source = EXCLUDED.actual_source,
                          actual_status = EXCLUDED.actual_status,
                          updated_at = now();
        `, userID, structureID, entry.Subject, entry.TimePoint, entry.Value, source)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	written := 0
	for range entries {
		tag, err := br.Exec()
		if err != nil {
			return written, fmt.Errorf("upserting actual score: %w", err)
		}
		written += int(tag.RowsAffected())
	}
	return written, nil
}
