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

	"github.com/edutwin/edutwin/services/prediction/cache"
	"github.com/edutwin/edutwin/services/prediction/datatypes"
	"github.com/edutwin/edutwin/services/prediction/engine"
	"github.com/edutwin/edutwin/services/prediction/store"
)

func queryInt64(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Query(name), 10, 64)
	if err != nil || v <= 0 {
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: "invalid " + name})
		return 0, false
	}
	return v, true
}

// UploadDataset wholesale-replaces a structure's reference cohort and
// invalidates every cache namespace scoped to it: the dataset hash changed,
// so indices, predictions and evaluations are all stale.
func UploadDataset(st *store.Store, c *cache.Cache) gin.HandlerFunc {
	return func(gc *gin.Context) {
		ctx, span := tracer.Start(gc.Request.Context(), "handlers.UploadDataset")
		defer span.End()

		structureID, ok := structureIDParam(gc)
		if !ok {
			return
		}
		var req datatypes.DatasetUploadRequest
		if err := gc.ShouldBindJSON(&req); err != nil {
			gc.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		structure, err := st.GetStructure(ctx, structureID)
		if errors.Is(err, engine.ErrUnknownStructure) {
			gc.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: err.Error()})
			return
		}
		if err != nil {
			gc.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "structure unavailable"})
			return
		}

		imported, err := st.ReplaceDataset(ctx, structureID, req.Samples)
		if err != nil {
			slog.Error("dataset ingest failed", "structure_id", structureID, "error", err)
			gc.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "dataset ingest failed"})
			return
		}

		invalidated := c.InvalidateClusterIndexes(ctx, structureID)
		invalidated += c.InvalidatePredictions(ctx, 0, structureID)
		invalidated += c.InvalidateEvaluations(ctx, structureID)

		samples, err := st.ListSamples(ctx, structureID)
		if err != nil {
			gc.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "dataset reload failed"})
			return
		}
		slog.Info("reference dataset replaced",
			"structure_id", structure.ID, "samples", imported, "cache_entries_invalidated", invalidated)

		gc.JSON(http.StatusOK, datatypes.DatasetUploadResponse{
			Imported:           imported,
			DatasetHash:        engine.DatasetHash(samples),
			InvalidatedEntries: invalidated,
		})
	}
}

// DatasetStats reports cohort size, per-key coverage and the dataset hash.
func DatasetStats(st *store.Store) gin.HandlerFunc {
	return func(gc *gin.Context) {
		ctx := gc.Request.Context()
		structureID, ok := structureIDParam(gc)
		if !ok {
			return
		}
		structure, err := st.GetStructure(ctx, structureID)
		if errors.Is(err, engine.ErrUnknownStructure) {
			gc.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: err.Error()})
			return
		}
		if err != nil {
			gc.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "structure unavailable"})
			return
		}
		stats, err := st.GetDatasetStats(ctx, structure)
		if err != nil {
			slog.Error("dataset stats failed", "structure_id", structureID, "error", err)
			gc.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "dataset stats failed"})
			return
		}
		gc.JSON(http.StatusOK, stats)
	}
}
