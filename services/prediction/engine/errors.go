// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import "errors"

var (
	// ErrNotFitted is returned when an index operation runs before Fit.
	ErrNotFitted = errors.New("cluster index not fitted")

	// ErrEmptyDataset is returned when Fit receives no usable samples or
	// an empty feature-key list.
	ErrEmptyDataset = errors.New("dataset and feature keys cannot be empty")

	// ErrUnknownStructure is returned when a structure id resolves to nothing.
	ErrUnknownStructure = errors.New("unknown teaching structure")

	// ErrUnknownTimePoint is returned when a time-point label is not part of
	// the structure.
	ErrUnknownTimePoint = errors.New("unknown time point")

	// ErrInsufficientSamples is returned by evaluation when fewer than
	// MinEvaluationSamples usable samples exist.
	ErrInsufficientSamples = errors.New("not enough valid samples for evaluation")
)
