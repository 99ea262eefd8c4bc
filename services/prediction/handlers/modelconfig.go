// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edutwin/edutwin/services/prediction/cache"
	"github.com/edutwin/edutwin/services/prediction/datatypes"
	"github.com/edutwin/edutwin/services/prediction/engine"
	"github.com/edutwin/edutwin/services/prediction/store"
)

// GetModelConfig returns the active regressor configuration.
func GetModelConfig(st *store.Store) gin.HandlerFunc {
	return func(gc *gin.Context) {
		config, err := st.GetModelConfig(gc.Request.Context())
		if err != nil {
			slog.Error("failed to load model config", "error", err)
			gc.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "model config unavailable"})
			return
		}
		gc.JSON(http.StatusOK, config)
	}
}

// UpdateModelConfig changes the active regressor and parameters, bumps the
// config version and flushes prediction + evaluation caches globally: old
// entries were keyed under the previous parameters.
func UpdateModelConfig(st *store.Store, c *cache.Cache) gin.HandlerFunc {
	return func(gc *gin.Context) {
		ctx, span := tracer.Start(gc.Request.Context(), "handlers.UpdateModelConfig")
		defer span.End()

		var req datatypes.ModelConfigRequest
		if err := gc.ShouldBindJSON(&req); err != nil {
			gc.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		config, err := st.UpdateModelConfig(ctx, req.ActiveModel, engine.ModelParams{
			KNNNeighbors: req.KNNNeighbors,
			KRBandwidth:  req.KRBandwidth,
			LWLRTau:      req.LWLRTau,
		})
		if err != nil {
			slog.Error("model config update failed", "error", err)
			gc.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "model config update failed"})
			return
		}

		invalidated := c.InvalidatePredictions(ctx, 0, 0)
		invalidated += c.InvalidateEvaluations(ctx, 0)
		slog.Info("model config updated",
			"active_model", config.ActiveModel, "version", config.Version,
			"cache_entries_invalidated", invalidated)

		gc.JSON(http.StatusOK, gin.H{"config": config, "invalidated_entries": invalidated})
	}
}
