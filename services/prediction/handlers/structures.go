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

	"github.com/edutwin/edutwin/services/prediction/datatypes"
	"github.com/edutwin/edutwin/services/prediction/engine"
	"github.com/edutwin/edutwin/services/prediction/store"
)

// CreateStructure registers a new teaching structure. The current time
// point, when given, must be one of the declared time points.
func CreateStructure(st *store.Store) gin.HandlerFunc {
	return func(gc *gin.Context) {
		ctx, span := tracer.Start(gc.Request.Context(), "handlers.CreateStructure")
		defer span.End()

		var req datatypes.StructureCreateRequest
		if err := gc.ShouldBindJSON(&req); err != nil {
			gc.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		structure := &engine.Structure{
			Name:             req.Name,
			TimePoints:       req.TimePoints,
			Subjects:         req.Subjects,
			ScaleType:        req.ScaleType,
			CurrentTimePoint: req.CurrentTimePoint,
			PipelineEnabled:  req.PipelineEnabled,
		}
		if req.CurrentTimePoint != "" {
			if _, err := structure.TimePointIndex(req.CurrentTimePoint); err != nil {
				gc.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
				return
			}
		}

		created, err := st.CreateStructure(ctx, structure)
		if err != nil {
			slog.Error("structure creation failed", "error", err)
			gc.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "structure creation failed"})
			return
		}
		gc.JSON(http.StatusCreated, created)
	}
}

// GetStructure returns one teaching structure.
func GetStructure(st *store.Store) gin.HandlerFunc {
	return func(gc *gin.Context) {
		structureID, ok := structureIDParam(gc)
		if !ok {
			return
		}
		structure, err := st.GetStructure(gc.Request.Context(), structureID)
		if errors.Is(err, engine.ErrUnknownStructure) {
			gc.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: err.Error()})
			return
		}
		if err != nil {
			gc.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "structure unavailable"})
			return
		}
		gc.JSON(http.StatusOK, structure)
	}
}
