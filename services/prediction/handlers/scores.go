// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edutwin/edutwin/services/prediction/cache"
	"github.com/edutwin/edutwin/services/prediction/datatypes"
	"github.com/edutwin/edutwin/services/prediction/engine"
	"github.com/edutwin/edutwin/services/prediction/store"
)

// UpsertScores writes user-entered scores, invalidates the user's cached
// predictions, and refreshes predictions inline when the structure's
// pipeline flag is on and a current time point is set.
func UpsertScores(eng *engine.Engine, st *store.Store, c *cache.Cache) gin.HandlerFunc {
	return func(gc *gin.Context) {
		ctx, span := tracer.Start(gc.Request.Context(), "handlers.UpsertScores")
		defer span.End()

		structureID, ok := structureIDParam(gc)
		if !ok {
			return
		}
		var req datatypes.ScoreUpsertRequest
		if err := gc.ShouldBindJSON(&req); err != nil {
			gc.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		structure, err := eng.Structures.GetStructure(ctx, structureID)
		if errors.Is(err, engine.ErrUnknownStructure) {
			gc.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: err.Error()})
			return
		}
		if err != nil {
			slog.Error("failed to load structure", "structure_id", structureID, "error", err)
			gc.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "structure unavailable"})
			return
		}

		entries := make([]store.ActualScore, len(req.Scores))
		for i, s := range req.Scores {
			entries[i] = store.ActualScore{Subject: s.Subject, TimePoint: s.TimePoint, Value: s.Value}
		}
		written, err := st.UpsertActualScores(ctx, req.UserID, structureID, entries)
		if err != nil {
			slog.Error("score upsert failed", "user_id", req.UserID, "error", err)
			gc.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "score upsert failed"})
			return
		}

		resp := datatypes.UpsertScoresResponse{
			Written:            written,
			InvalidatedEntries: c.InvalidatePredictions(ctx, req.UserID, structureID),
		}

		if structure.PipelineEnabled && structure.CurrentTimePoint != "" {
			config, err := eng.Config.GetModelConfig(ctx)
			if err == nil {
				outcome, err := eng.UpdatePredictions(ctx, req.UserID, structureID,
					structure.CurrentTimePoint, config.ActiveModel, config.Params)
				if err != nil {
					slog.Warn("pipeline prediction refresh failed", "user_id", req.UserID, "error", err)
				} else {
					resp.PredictionTriggered = true
					resp.PredictionsWritten = outcome.Written
				}
			}
		}

		gc.JSON(http.StatusOK, resp)
	}
}

// GetUserScores returns the user's full score sheet for a structure.
func GetUserScores(eng *engine.Engine) gin.HandlerFunc {
	return func(gc *gin.Context) {
		structureID, ok := structureIDParam(gc)
		if !ok {
			return
		}
		userID, ok := queryInt64(gc, "user_id")
		if !ok {
			return
		}
		scores, err := eng.Scores.ListUserScores(gc.Request.Context(), userID, structureID)
		if err != nil {
			slog.Error("failed to list user scores", "user_id", userID, "error", err)
			gc.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "scores unavailable"})
			return
		}
		gc.JSON(http.StatusOK, gin.H{"scores": scores})
	}
}
