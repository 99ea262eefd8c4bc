// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"math"
	"sort"
)

const (
	// ImputerSource tags score rows filled by the imputer.
	ImputerSource = "knn_imputer"

	// imputerMaxNeighbors caps the donor count per missing key.
	imputerMaxNeighbors = 10
)

// ImputeInputs fills holes among the query's input keys by KNN imputation
// over the reference cohort. Distances between the query row and reference
// rows use the mutually observed input keys, rescaled by the ratio of total
// to observed keys so sparse rows are not artificially near. For each
// missing key the up-to-n nearest donors that carry the key vote with an
// unweighted mean.
//
// The returned map contains only the newly filled keys. A query sharing no
// input keys with the cohort comes back empty; regression then works off the
// explicitly supplied inputs alone.
func ImputeInputs(dataset []ReferenceSample, inputKeys []string, query map[string]float64) map[string]float64 {
	if len(dataset) == 0 || len(inputKeys) == 0 {
		return map[string]float64{}
	}

	var missing []string
	for _, key := range inputKeys {
		if _, ok := query[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return map[string]float64{}
	}

	type donor struct {
		dist   float64
		scores map[string]float64
	}
	donors := make([]donor, 0, len(dataset))
	for _, sample := range dataset {
		dist, ok := nanEuclidean(sample.Scores, query, inputKeys)
		if !ok {
			continue
		}
		donors = append(donors, donor{dist: dist, scores: sample.Scores})
	}
	if len(donors) == 0 {
		return map[string]float64{}
	}
	sort.SliceStable(donors, func(a, b int) bool { return donors[a].dist < donors[b].dist })

	n := imputerMaxNeighbors
	if len(donors) < n {
		n = len(donors)
	}

	filled := make(map[string]float64, len(missing))
	for _, key := range missing {
		sum, count := 0.0, 0
		for _, d := range donors {
			value, ok := d.scores[key]
			if !ok {
				continue
			}
			sum += value
			count++
			if count == n {
				break
			}
		}
		if count > 0 {
			filled[key] = round2(sum / float64(count))
		}
	}
	return filled
}

// nanEuclidean is the missing-value-aware Euclidean distance over the given
// key set: sqrt(total/observed × Σ diff²) over keys both rows carry. ok is
// false when no key is shared.
func nanEuclidean(sample, query map[string]float64, keys []string) (float64, bool) {
	sum := 0.0
	observed := 0
	for _, key := range keys {
		sv, sok := sample[key]
		qv, qok := query[key]
		if !sok || !qok {
			continue
		}
		diff := sv - qv
		sum += diff * diff
		observed++
	}
	if observed == 0 {
		return 0, false
	}
	scale := float64(len(keys)) / float64(observed)
	return math.Sqrt(scale * sum), true
}
