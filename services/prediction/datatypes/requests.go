// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes holds the request and response shapes of the prediction
// service API.
package datatypes

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// PredictRequest drives one orchestrator run for a user. Model defaults to
// the stored model configuration when omitted; params always come from it.
type PredictRequest struct {
	UserID           int64  `json:"user_id" binding:"required,gt=0"`
	CurrentTimePoint string `json:"current_time_point" binding:"required"`
	Model            string `json:"model" binding:"omitempty,modelname"`
}

// EvaluateRequest scores the three regressors on a holdout split.
type EvaluateRequest struct {
	StructureID      int64    `json:"structure_id" binding:"required,gt=0"`
	InputTimePoints  []string `json:"input_timepoints" binding:"required,min=1"`
	OutputTimePoints []string `json:"output_timepoints" binding:"required,min=1"`

	// Sync blocks until the evaluation finishes instead of returning a job id.
	Sync bool `json:"sync"`
}

// ScoreEntry is one user-entered score cell.
type ScoreEntry struct {
	Subject   string  `json:"subject" binding:"required"`
	TimePoint string  `json:"time_point" binding:"required"`
	Value     float64 `json:"value" binding:"gte=0"`
}

// ScoreUpsertRequest writes actual scores for a user.
type ScoreUpsertRequest struct {
	UserID int64        `json:"user_id" binding:"required,gt=0"`
	Scores []ScoreEntry `json:"scores" binding:"required,min=1,dive"`
}

// StructureCreateRequest defines a new teaching structure.
type StructureCreateRequest struct {
	Name             string   `json:"structure_name" binding:"required,max=120"`
	TimePoints       []string `json:"time_point_labels" binding:"required,min=1,dive,required"`
	Subjects         []string `json:"subject_labels" binding:"required,min=1,dive,required"`
	ScaleType        string   `json:"scale_type" binding:"required,scaletype"`
	CurrentTimePoint string   `json:"current_time_point"`
	PipelineEnabled  bool     `json:"pipeline_enabled"`
}

// DatasetUploadRequest wholesale-replaces a structure's reference cohort.
type DatasetUploadRequest struct {
	Samples []map[string]float64 `json:"samples" binding:"required,min=1"`
}

// ModelConfigRequest updates the active regressor and its parameters.
type ModelConfigRequest struct {
	ActiveModel  string  `json:"active_model" binding:"required,modelname"`
	KNNNeighbors int     `json:"knn_n" binding:"required,gte=1"`
	KRBandwidth  float64 `json:"kr_bandwidth" binding:"required,gt=0"`
	LWLRTau      float64 `json:"lwlr_tau" binding:"required,gt=0"`
}

// CacheInvalidateRequest scopes a cache flush. Zero ids mean "any".
type CacheInvalidateRequest struct {
	Scope       string `json:"scope" binding:"required,oneof=prediction evaluation cluster all"`
	UserID      int64  `json:"user_id" binding:"omitempty,gt=0"`
	StructureID int64  `json:"structure_id" binding:"omitempty,gt=0"`
}

var scaleTypes = map[string]bool{
	"0-10": true, "0-100": true, "0-10000": true, "GPA": true, "A-F": true,
}

var modelNames = map[string]bool{
	"knn": true, "kernel_regression": true, "lwlr": true,
}

// RegisterValidators installs the custom binding validators. Call once at
// startup before serving.
func RegisterValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	_ = v.RegisterValidation("scaletype", func(fl validator.FieldLevel) bool {
		return scaleTypes[fl.Field().String()]
	})
	_ = v.RegisterValidation("modelname", func(fl validator.FieldLevel) bool {
		return modelNames[fl.Field().String()]
	})
}
