// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache is the content-addressed result cache for the prediction
// service. Three namespaces share one Redis-shaped KV store: built cluster
// indices (24h), prediction maps (1h) and evaluation reports (2h).
//
// The cache is strictly optional. A nil *Cache, a nil KV, or an unreachable
// store degrade every Get to a miss and every Set to a no-op; the service
// stays correct, just slower. Store errors are logged at Warn and swallowed.
package cache

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"time"
)

// Default TTLs, overridable via Config.
const (
	DefaultPredictionTTL = time.Hour
	DefaultEvaluationTTL = 2 * time.Hour
	DefaultClusterTTL    = 24 * time.Hour
)

// KV is the minimal key-value surface the cache needs. The redis adapter in
// redis.go implements it; tests use an in-memory map.
type KV interface {
	// Get returns the value and whether the key existed.
	Get(ctx context.Context, key string) (string, bool, error)

	// SetEx stores value under key with a time-to-live.
	SetEx(ctx context.Context, key string, ttl time.Duration, value string) error

	// ScanIter returns all keys matching a glob pattern.
	ScanIter(ctx context.Context, pattern string) ([]string, error)

	// Del removes keys, ignoring ones that are already gone.
	Del(ctx context.Context, keys ...string) error
}

// MemoryReporter is an optional KV extension for human-readable memory
// usage in cache stats.
type MemoryReporter interface {
	MemoryUsed(ctx context.Context) (string, error)
}

// Config tunes the cache TTLs.
type Config struct {
	PredictionTTL time.Duration
	EvaluationTTL time.Duration
	ClusterTTL    time.Duration
}

// Cache wraps a KV store with the three prediction-service namespaces.
type Cache struct {
	kv     KV
	cfg    Config
	logger *slog.Logger
}

// New builds a Cache over kv. kv may be nil for a disabled cache. Zero TTLs
// fall back to the defaults.
func New(kv KV, cfg Config, logger *slog.Logger) *Cache {
	if cfg.PredictionTTL <= 0 {
		cfg.PredictionTTL = DefaultPredictionTTL
	}
	if cfg.EvaluationTTL <= 0 {
		cfg.EvaluationTTL = DefaultEvaluationTTL
	}
	if cfg.ClusterTTL <= 0 {
		cfg.ClusterTTL = DefaultClusterTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{kv: kv, cfg: cfg, logger: logger}
}

// Enabled reports whether a KV store is attached.
func (c *Cache) Enabled() bool {
	return c != nil && c.kv != nil
}

// GetPrediction returns a cached prediction map, or ok=false on miss.
func (c *Cache) GetPrediction(ctx context.Context, key string) (map[string]float64, bool) {
	raw, ok := c.get(ctx, key)
	if !ok {
		return nil, false
	}
	var predictions map[string]float64
	if err := json.Unmarshal([]byte(raw), &predictions); err != nil {
		c.logger.Warn("discarding undecodable cached prediction", "key", key, "error", err)
		return nil, false
	}
	return predictions, true
}

// SetPrediction stores a prediction map under the prediction TTL.
func (c *Cache) SetPrediction(ctx context.Context, key string, predictions map[string]float64) {
	data, err := json.Marshal(predictions)
	if err != nil {
		return
	}
	c.set(ctx, key, c.cfg.PredictionTTL, string(data))
}

// GetEvaluation decodes a cached evaluation report into out.
func (c *Cache) GetEvaluation(ctx context.Context, key string, out any) bool {
	raw, ok := c.get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		c.logger.Warn("discarding undecodable cached evaluation", "key", key, "error", err)
		return false
	}
	return true
}

// SetEvaluation stores an evaluation report under the evaluation TTL.
func (c *Cache) SetEvaluation(ctx context.Context, key string, result any) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	c.set(ctx, key, c.cfg.EvaluationTTL, string(data))
}

// GetClusterIndex returns a serialized cluster index blob.
func (c *Cache) GetClusterIndex(ctx context.Context, key string) ([]byte, bool) {
	raw, ok := c.get(ctx, key)
	if !ok {
		return nil, false
	}
	blob, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		c.logger.Warn("discarding undecodable cached cluster index", "key", key, "error", err)
		return nil, false
	}
	return blob, true
}

// SetClusterIndex stores a serialized cluster index under the cluster TTL.
func (c *Cache) SetClusterIndex(ctx context.Context, key string, blob []byte) {
	c.set(ctx, key, c.cfg.ClusterTTL, base64.StdEncoding.EncodeToString(blob))
}

// InvalidatePredictions deletes prediction entries scoped by user and/or
// structure (zero means any) and returns the number of keys removed.
func (c *Cache) InvalidatePredictions(ctx context.Context, userID, structureID int64) int {
	return c.deletePattern(ctx, predictionPattern(userID, structureID))
}

// InvalidateEvaluations deletes evaluation entries for a structure, or all
// of them when structureID is zero.
func (c *Cache) InvalidateEvaluations(ctx context.Context, structureID int64) int {
	return c.deletePattern(ctx, evaluationPattern(structureID))
}

// InvalidateClusterIndexes deletes cluster-index entries for a structure, or
// all of them when structureID is zero.
func (c *Cache) InvalidateClusterIndexes(ctx context.Context, structureID int64) int {
	return c.deletePattern(ctx, clusterPattern(structureID))
}

// Stats summarizes the cache contents.
type Stats struct {
	Status           string         `json:"status"`
	PredictionCached int            `json:"prediction_cached"`
	EvaluationCached int            `json:"evaluation_cached"`
	ClusterCached    int            `json:"cluster_cached"`
	MemoryUsed       string         `json:"memory_used,omitempty"`
	TTLSeconds       map[string]int `json:"ttl_seconds"`
}

// GetStats counts keys per namespace and reports the configured TTLs.
func (c *Cache) GetStats(ctx context.Context) Stats {
	stats := Stats{
		Status: "disabled",
		TTLSeconds: map[string]int{
			"prediction": int(c.cfg.PredictionTTL.Seconds()),
			"evaluation": int(c.cfg.EvaluationTTL.Seconds()),
			"cluster":    int(c.cfg.ClusterTTL.Seconds()),
		},
	}
	if !c.Enabled() {
		return stats
	}
	stats.Status = "enabled"
	stats.PredictionCached = c.countPattern(ctx, predictionPrefix+":*")
	stats.EvaluationCached = c.countPattern(ctx, evaluationPrefix+":*")
	stats.ClusterCached = c.countPattern(ctx, clusterPrefix+":*")
	if reporter, ok := c.kv.(MemoryReporter); ok {
		if mem, err := reporter.MemoryUsed(ctx); err == nil {
			stats.MemoryUsed = mem
		}
	}
	return stats
}

func (c *Cache) get(ctx context.Context, key string) (string, bool) {
	if !c.Enabled() {
		return "", false
	}
	raw, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache get failed, treating as miss", "key", key, "error", err)
		return "", false
	}
	return raw, ok
}

func (c *Cache) set(ctx context.Context, key string, ttl time.Duration, value string) {
	if !c.Enabled() {
		return
	}
	if err := c.kv.SetEx(ctx, key, ttl, value); err != nil {
		c.logger.Warn("cache set failed, skipping", "key", key, "error", err)
	}
}

func (c *Cache) deletePattern(ctx context.Context, pattern string) int {
	if !c.Enabled() {
		return 0
	}
	keys, err := c.kv.ScanIter(ctx, pattern)
	if err != nil {
		c.logger.Warn("cache scan failed, nothing invalidated", "pattern", pattern, "error", err)
		return 0
	}
	if len(keys) == 0 {
		return 0
	}
	if err := c.kv.Del(ctx, keys...); err != nil {
		c.logger.Warn("cache delete failed", "pattern", pattern, "error", err)
		return 0
	}
	return len(keys)
}

func (c *Cache) countPattern(ctx context.Context, pattern string) int {
	keys, err := c.kv.ScanIter(ctx, pattern)
	if err != nil {
		return 0
	}
	return len(keys)
}
