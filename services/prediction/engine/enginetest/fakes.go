// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package enginetest provides in-memory fakes of the engine's store
// interfaces and of the cache KV, shared by the engine and handler tests.
package enginetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/edutwin/edutwin/services/prediction/engine"
)

// FakeStore implements engine.StructureStore, engine.SampleStore,
// engine.ScoreStore and engine.ConfigStore over in-memory maps.
type FakeStore struct {
	mu         sync.Mutex
	Structures map[int64]*engine.Structure
	Samples    map[int64][]engine.ReferenceSample
	ScoreRows  map[string]*engine.UserScore
	Model      engine.ModelConfig
}

// NewFakeStore returns an empty store with the default model config.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		Structures: make(map[int64]*engine.Structure),
		Samples:    make(map[int64][]engine.ReferenceSample),
		ScoreRows:  make(map[string]*engine.UserScore),
		Model: engine.ModelConfig{
			ActiveModel: engine.ModelKNN,
			Params:      engine.DefaultModelParams(),
			Version:     1,
		},
	}
}

func scoreKey(userID, structureID int64, subject, timePoint string) string {
	return fmt.Sprintf("%d/%d/%s/%s", userID, structureID, subject, timePoint)
}

// GetStructure implements engine.StructureStore.
func (f *FakeStore) GetStructure(_ context.Context, structureID int64) (*engine.Structure, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.Structures[structureID]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", engine.ErrUnknownStructure, structureID)
	}
	copied := *st
	return &copied, nil
}

// ListSamples implements engine.SampleStore.
func (f *FakeStore) ListSamples(_ context.Context, structureID int64) ([]engine.ReferenceSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.ReferenceSample(nil), f.Samples[structureID]...), nil
}

// ListUserScores implements engine.ScoreStore.
func (f *FakeStore) ListUserScores(_ context.Context, userID, structureID int64) ([]engine.UserScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var scores []engine.UserScore
	for _, row := range f.ScoreRows {
		if row.UserID == userID && row.StructureID == structureID {
			scores = append(scores, *row)
		}
	}
	return scores, nil
}

// EnsureScoreRows implements engine.ScoreStore.
func (f *FakeStore) EnsureScoreRows(_ context.Context, userID, structureID int64, subjects, timePoints []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tp := range timePoints {
		for _, subject := range subjects {
			key := scoreKey(userID, structureID, subject, tp)
			if _, ok := f.ScoreRows[key]; !ok {
				f.ScoreRows[key] = &engine.UserScore{
					UserID:      userID,
					StructureID: structureID,
					Subject:     subject,
					TimePoint:   tp,
				}
			}
		}
	}
	return nil
}

// SavePredictions implements engine.ScoreStore.
func (f *FakeStore) SavePredictions(_ context.Context, userID, structureID int64, predictions []engine.PredictedScore) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	written := 0
	for _, p := range predictions {
		key := scoreKey(userID, structureID, p.Subject, p.TimePoint)
		row, ok := f.ScoreRows[key]
		if !ok {
			continue
		}
		value := p.Value
		row.PredictedScore = &value
		row.PredictedSource = p.Source
		row.PredictedStatus = p.Status
		written++
	}
	return written, nil
}

// GetModelConfig implements engine.ConfigStore.
func (f *FakeStore) GetModelConfig(_ context.Context) (*engine.ModelConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := f.Model
	return &copied, nil
}

// SetActualScore seeds one actual score cell.
func (f *FakeStore) SetActualScore(userID, structureID int64, subject, timePoint string, value float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := scoreKey(userID, structureID, subject, timePoint)
	v := value
	row, ok := f.ScoreRows[key]
	if !ok {
		row = &engine.UserScore{
			UserID:      userID,
			StructureID: structureID,
			Subject:     subject,
			TimePoint:   timePoint,
		}
		f.ScoreRows[key] = row
	}
	row.ActualScore = &v
}

// ScoreRow returns a copy of one score row, or nil.
func (f *FakeStore) ScoreRow(userID, structureID int64, subject, timePoint string) *engine.UserScore {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.ScoreRows[scoreKey(userID, structureID, subject, timePoint)]
	if !ok {
		return nil
	}
	copied := *row
	return &copied
}

// FakeKV is an in-memory cache.KV. TTLs are recorded but never expire;
// tests assert on them directly.
type FakeKV struct {
	mu   sync.Mutex
	Data map[string]string
	TTLs map[string]time.Duration
}

// NewFakeKV returns an empty KV.
func NewFakeKV() *FakeKV {
	return &FakeKV{Data: make(map[string]string), TTLs: make(map[string]time.Duration)}
}

// Get implements cache.KV.
func (kv *FakeKV) Get(_ context.Context, key string) (string, bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	v, ok := kv.Data[key]
	return v, ok, nil
}

// SetEx implements cache.KV.
func (kv *FakeKV) SetEx(_ context.Context, key string, ttl time.Duration, value string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.Data[key] = value
	kv.TTLs[key] = ttl
	return nil
}

// ScanIter implements cache.KV using matchPattern, which covers the
// prefix:*-style patterns the cache layer uses.
func (kv *FakeKV) ScanIter(_ context.Context, pattern string) ([]string, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	var keys []string
	for key := range kv.Data {
		if matchPattern(pattern, key) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Del implements cache.KV.
func (kv *FakeKV) Del(_ context.Context, keys ...string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	for _, key := range keys {
		delete(kv.Data, key)
		delete(kv.TTLs, key)
	}
	return nil
}

// Len reports the number of stored keys.
func (kv *FakeKV) Len() int {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	return len(kv.Data)
}

// matchPattern implements the glob subset the cache layer uses: '*' matches
// any run of characters (crossing ':' like Redis), everything else is
// literal.
func matchPattern(pattern, s string) bool {
	if pattern == "" {
		return s == ""
	}
	if pattern[0] == '*' {
		for j := 0; j <= len(s); j++ {
			if matchPattern(pattern[1:], s[j:]) {
				return true
			}
		}
		return false
	}
	if s == "" || pattern[0] != s[0] {
		return false
	}
	return matchPattern(pattern[1:], s[1:])
}
