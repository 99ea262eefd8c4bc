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
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/edutwin/edutwin/services/prediction/datatypes"
	"github.com/edutwin/edutwin/services/prediction/engine"
)

// structureIDParam parses the :structureID path parameter.
func structureIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("structureID"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid structure id"})
		return 0, false
	}
	return id, true
}

// Predict refreshes a user's predicted scores under the active (or
// explicitly requested) model.
func Predict(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "handlers.Predict")
		defer span.End()

		structureID, ok := structureIDParam(c)
		if !ok {
			return
		}
		var req datatypes.PredictRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		config, err := eng.Config.GetModelConfig(ctx)
		if err != nil {
			slog.Error("failed to load model config", "error", err)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "model config unavailable"})
			return
		}
		model := config.ActiveModel
		if req.Model != "" {
			model = req.Model
		}

		outcome, err := eng.UpdatePredictions(ctx, req.UserID, structureID, req.CurrentTimePoint, model, config.Params)
		switch {
		case errors.Is(err, engine.ErrUnknownStructure):
			c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: err.Error()})
			return
		case errors.Is(err, engine.ErrUnknownTimePoint):
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		case err != nil:
			slog.Error("prediction failed", "user_id", req.UserID, "structure_id", structureID, "error", err)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "prediction failed"})
			return
		}

		c.JSON(http.StatusOK, datatypes.PredictResponse{
			StructureID: structureID,
			UserID:      req.UserID,
			Model:       outcome.Model,
			Predictions: outcome.Predictions,
			Imputed:     outcome.Imputed,
			Written:     outcome.Written,
			CacheHit:    outcome.CacheHit,
		})
	}
}
