// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edutwin/edutwin/services/prediction/datatypes"
	"github.com/edutwin/edutwin/services/prediction/engine"
	"github.com/edutwin/edutwin/services/prediction/observability"
)

// jobRetention is how long finished evaluation jobs stay pollable.
const jobRetention = 30 * time.Minute

// EvaluationRegistry tracks background evaluation jobs in memory. Jobs do
// not survive a restart; the evaluation cache does, so a re-run after a
// restart is cheap.
type EvaluationRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*datatypes.EvaluationJob
}

// NewEvaluationRegistry returns an empty registry.
func NewEvaluationRegistry() *EvaluationRegistry {
	return &EvaluationRegistry{jobs: make(map[string]*datatypes.EvaluationJob)}
}

func (r *EvaluationRegistry) put(job *datatypes.EvaluationJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	// Opportunistic sweep of expired jobs; the registry stays small.
	cutoff := time.Now().Add(-jobRetention)
	for id, j := range r.jobs {
		if j.CreatedAt.Before(cutoff) && (j.Status == datatypes.JobCompleted || j.Status == datatypes.JobFailed) {
			delete(r.jobs, id)
		}
	}
}

// Get returns a snapshot of the job, or nil.
func (r *EvaluationRegistry) Get(id string) *datatypes.EvaluationJob {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil
	}
	snapshot := *job
	return &snapshot
}

func (r *EvaluationRegistry) update(id string, fn func(*datatypes.EvaluationJob)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job, ok := r.jobs[id]; ok {
		fn(job)
	}
}

// Evaluate runs the three-regressor holdout evaluation. By default it runs
// in the background and returns a job id; sync mode blocks and returns the
// report directly.
func Evaluate(eng *engine.Engine, registry *EvaluationRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "handlers.Evaluate")
		defer span.End()

		var req datatypes.EvaluateRequest
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

		if req.Sync {
			result, err := eng.EvaluateModels(ctx, req.StructureID, req.InputTimePoints, req.OutputTimePoints, config.Params)
			if err != nil {
				writeEvaluationError(c, err)
				return
			}
			c.JSON(http.StatusOK, result)
			return
		}

		job := &datatypes.EvaluationJob{
			ID:        uuid.NewString(),
			Status:    datatypes.JobPending,
			CreatedAt: time.Now(),
		}
		registry.put(job)

		if m := observability.DefaultMetrics; m != nil {
			m.EvaluationJobsActive.Inc()
		}
		go func() {
			defer func() {
				if m := observability.DefaultMetrics; m != nil {
					m.EvaluationJobsActive.Dec()
				}
			}()
			// The request context dies with the HTTP response; the job gets
			// its own deadline instead.
			jobCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			registry.update(job.ID, func(j *datatypes.EvaluationJob) { j.Status = datatypes.JobRunning })
			result, err := eng.EvaluateModels(jobCtx, req.StructureID, req.InputTimePoints, req.OutputTimePoints, config.Params)
			registry.update(job.ID, func(j *datatypes.EvaluationJob) {
				if err != nil {
					j.Status = datatypes.JobFailed
					j.Error = err.Error()
					return
				}
				j.Status = datatypes.JobCompleted
				j.Result = result
			})
		}()

		c.JSON(http.StatusAccepted, gin.H{"evaluation_id": job.ID, "status": job.Status})
	}
}

// EvaluationStatus polls a background evaluation job.
func EvaluationStatus(registry *EvaluationRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		job := registry.Get(c.Param("jobID"))
		if job == nil {
			c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: "unknown evaluation id"})
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

func writeEvaluationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrUnknownStructure):
		c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: err.Error()})
	case errors.Is(err, engine.ErrInsufficientSamples):
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
	default:
		slog.Error("evaluation failed", "error", err)
		c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: "evaluation failed"})
	}
}
