// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edutwin/edutwin/services/prediction/cache"
	"github.com/edutwin/edutwin/services/prediction/engine"
	"github.com/edutwin/edutwin/services/prediction/handlers"
	"github.com/edutwin/edutwin/services/prediction/store"
)

// SetupRoutes registers the prediction service API.
func SetupRoutes(router *gin.Engine, eng *engine.Engine, st *store.Store, c *cache.Cache) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	registry := handlers.NewEvaluationRegistry()

	v1 := router.Group("/v1")
	{
		structures := v1.Group("/structures")
		{
			structures.POST("", handlers.CreateStructure(st))
			structures.GET("/:structureID", handlers.GetStructure(st))
			structures.POST("/:structureID/dataset", handlers.UploadDataset(st, c))
			structures.GET("/:structureID/dataset/stats", handlers.DatasetStats(st))
			structures.POST("/:structureID/scores", handlers.UpsertScores(eng, st, c))
			structures.GET("/:structureID/scores", handlers.GetUserScores(eng))
			structures.POST("/:structureID/predict", handlers.Predict(eng))
		}

		v1.POST("/evaluate", handlers.Evaluate(eng, registry))
		v1.GET("/evaluate/:jobID", handlers.EvaluationStatus(registry))

		v1.GET("/model-config", handlers.GetModelConfig(st))
		v1.PUT("/model-config", handlers.UpdateModelConfig(st, c))

		cacheAdmin := v1.Group("/cache")
		{
			cacheAdmin.GET("/stats", handlers.CacheStats(c))
			cacheAdmin.POST("/invalidate", handlers.CacheInvalidate(c))
		}
	}
}
