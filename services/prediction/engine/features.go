// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine implements EduTwin's score prediction core: a clustered
// reference index, three lazy local regressors (KNN, kernel regression,
// LWLR), KNN imputation of missing inputs, the prediction orchestrator and
// the evaluation harness.
//
// The engine performs no I/O of its own. Reference data, user scores and
// model configuration arrive through the store interfaces in stores.go;
// cached artifacts live in the cache package.
package engine

import (
	"fmt"
	"strings"
)

// FeatureKeyDelim joins a subject label and a time-point label into a
// feature key. Keys are compared exactly as strings.
const FeatureKeyDelim = "_"

// Structure describes one teaching structure: the ordered time points and
// subjects whose Cartesian product spans the feature space, plus the score
// scale used for accuracy reporting.
type Structure struct {
	ID               int64    `json:"id"`
	Name             string   `json:"name"`
	TimePoints       []string `json:"time_point_labels"`
	Subjects         []string `json:"subject_labels"`
	ScaleType        string   `json:"scale_type"`
	CurrentTimePoint string   `json:"current_time_point,omitempty"`
	PipelineEnabled  bool     `json:"pipeline_enabled"`
}

// ReferenceSample is one student of the reference cohort: a sparse mapping
// of feature key to score. Samples are immutable once ingested.
type ReferenceSample struct {
	ID     int64              `json:"id"`
	Scores map[string]float64 `json:"score_data"`
}

// FeatureKey builds the key for one (subject, time point) cell.
func FeatureKey(subject, timePoint string) string {
	return subject + FeatureKeyDelim + timePoint
}

// FeatureKeys returns the full ordered feature-key list for the structure:
// time points outermost, subjects innermost. This ordering is fixed at index
// fit time and preserved through serialization.
func (s *Structure) FeatureKeys() []string {
	keys := make([]string, 0, len(s.TimePoints)*len(s.Subjects))
	for _, tp := range s.TimePoints {
		for _, subject := range s.Subjects {
			keys = append(keys, FeatureKey(subject, tp))
		}
	}
	return keys
}

// TimePointIndex returns the ordinal position of label in the structure's
// time-point list, or an error when the label is unknown.
func (s *Structure) TimePointIndex(label string) (int, error) {
	for i, tp := range s.TimePoints {
		if tp == label {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q not in structure %d", ErrUnknownTimePoint, label, s.ID)
}

// InputTargetKeys splits the structure's feature space around the current
// time-point index: keys at or before currentIdx are inputs, keys strictly
// after it are targets.
func (s *Structure) InputTargetKeys(currentIdx int) (inputKeys []string, targetKeys []string) {
	for i, tp := range s.TimePoints {
		for _, subject := range s.Subjects {
			key := FeatureKey(subject, tp)
			if i <= currentIdx {
				inputKeys = append(inputKeys, key)
			} else {
				targetKeys = append(targetKeys, key)
			}
		}
	}
	return inputKeys, targetKeys
}

// SplitFeatureKey splits a feature key back into subject and time point.
// Subjects may themselves contain the delimiter, time points may not, so the
// split happens at the last delimiter.
func SplitFeatureKey(key string) (subject, timePoint string, err error) {
	idx := strings.LastIndex(key, FeatureKeyDelim)
	if idx <= 0 || idx == len(key)-1 {
		return "", "", fmt.Errorf("invalid feature key %q", key)
	}
	return key[:idx], key[idx+1:], nil
}

// scaleMax maps a scale type to the numeric upper bound used in accuracy
// reporting. A-F grades are carried on a 0-10 internal representation.
var scaleMax = map[string]float64{
	"0-10":    10.0,
	"0-100":   100.0,
	"0-10000": 10000.0,
	"GPA":     4.0,
	"A-F":     10.0,
}

// ScaleMax returns the maximum score for a scale type, defaulting to the
// 0-10 scale for unknown types.
func ScaleMax(scaleType string) float64 {
	if max, ok := scaleMax[scaleType]; ok {
		return max
	}
	return scaleMax["0-10"]
}
