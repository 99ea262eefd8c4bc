// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edutwin/edutwin/services/prediction/cache"
	"github.com/edutwin/edutwin/services/prediction/datatypes"
)

// CacheStats reports key counts, memory use and TTLs.
func CacheStats(c *cache.Cache) gin.HandlerFunc {
	return func(gc *gin.Context) {
		gc.JSON(http.StatusOK, c.GetStats(gc.Request.Context()))
	}
}

// CacheInvalidate deletes cached entries by scope, optionally narrowed to a
// user and/or structure.
func CacheInvalidate(c *cache.Cache) gin.HandlerFunc {
	return func(gc *gin.Context) {
		ctx, span := tracer.Start(gc.Request.Context(), "handlers.CacheInvalidate")
		defer span.End()

		var req datatypes.CacheInvalidateRequest
		if err := gc.ShouldBindJSON(&req); err != nil {
			gc.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		deleted := 0
		switch req.Scope {
		case "prediction":
			deleted = c.InvalidatePredictions(ctx, req.UserID, req.StructureID)
		case "evaluation":
			deleted = c.InvalidateEvaluations(ctx, req.StructureID)
		case "cluster":
			deleted = c.InvalidateClusterIndexes(ctx, req.StructureID)
		case "all":
			deleted = c.InvalidatePredictions(ctx, req.UserID, req.StructureID) +
				c.InvalidateEvaluations(ctx, req.StructureID) +
				c.InvalidateClusterIndexes(ctx, req.StructureID)
		}

		gc.JSON(http.StatusOK, datatypes.InvalidateResponse{Scope: req.Scope, Deleted: deleted})
	}
}
