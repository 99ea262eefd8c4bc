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

	"gonum.org/v1/gonum/mat"
)

// Regressor names as stored in prediction tags and cache keys.
const (
	ModelKNN              = "knn"
	ModelKernelRegression = "kernel_regression"
	ModelLWLR             = "lwlr"
)

// ModelParams bundles the per-regressor parameters. The JSON field names are
// part of the cache-key contract: changing them invalidates every cached
// prediction and evaluation.
type ModelParams struct {
	KNNNeighbors int     `json:"knn_n"`
	KRBandwidth  float64 `json:"kr_bandwidth"`
	LWLRTau      float64 `json:"lwlr_tau"`
}

// DefaultModelParams mirrors the shipped model configuration.
func DefaultModelParams() ModelParams {
	return ModelParams{KNNNeighbors: 15, KRBandwidth: 1.25, LWLRTau: 3.0}
}

// distanceEpsilon keeps inverse-distance weights finite for near-duplicate
// neighbors; an exact distance of 0 maps to weight 1/ε, so an exact match
// dominates the weighted average.
const distanceEpsilon = 1e-6

// round2 rounds to two decimals, the precision every prediction is stored at.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// overlapDistance computes the Euclidean distance between a candidate and
// the query over the keys both carry. ok is false when they share no keys.
func overlapDistance(sample map[string]float64, actual map[string]float64) (dist float64, ok bool) {
	sum := 0.0
	for key, av := range actual {
		sv, present := sample[key]
		if !present {
			continue
		}
		ok = true
		diff := sv - av
		sum += diff * diff
	}
	return math.Sqrt(sum), ok
}

// PredictKNN predicts each target key as the inverse-distance weighted
// average over the k nearest candidates. Candidates sharing no input key
// with the query are ignored; candidates missing a target key are skipped
// for that key only.
func PredictKNN(candidates []ReferenceSample, actual map[string]float64, targetKeys []string, k int) map[string]float64 {
	if len(candidates) == 0 || len(actual) == 0 || len(targetKeys) == 0 {
		return map[string]float64{}
	}

	type neighbor struct {
		dist   float64
		scores map[string]float64
	}
	neighbors := make([]neighbor, 0, len(candidates))
	for _, sample := range candidates {
		dist, ok := overlapDistance(sample.Scores, actual)
		if !ok {
			continue
		}
		neighbors = append(neighbors, neighbor{dist: dist, scores: sample.Scores})
	}
	if len(neighbors) == 0 {
		return map[string]float64{}
	}

	sort.SliceStable(neighbors, func(a, b int) bool { return neighbors[a].dist < neighbors[b].dist })
	if k <= 0 || k > len(neighbors) {
		k = len(neighbors)
	}
	top := neighbors[:k]

	predictions := make(map[string]float64, len(targetKeys))
	for _, key := range targetKeys {
		numerator, denominator := 0.0, 0.0
		for _, n := range top {
			value, ok := n.scores[key]
			if !ok {
				continue
			}
			weight := 1.0 / (n.dist + distanceEpsilon)
			numerator += weight * value
			denominator += weight
		}
		if denominator > 0 {
			predictions[key] = round2(numerator / denominator)
		}
	}
	return predictions
}

// PredictKernelRegression is Nadaraya-Watson regression with a Gaussian
// kernel: every candidate contributes to every target key it carries,
// weighted by exp(-d²/2σ²). Keys whose weight mass is zero are omitted.
func PredictKernelRegression(candidates []ReferenceSample, actual map[string]float64, targetKeys []string, bandwidth float64) map[string]float64 {
	if len(candidates) == 0 || len(actual) == 0 || len(targetKeys) == 0 {
		return map[string]float64{}
	}

	type weighted struct {
		weight float64
		scores map[string]float64
	}
	weights := make([]weighted, 0, len(candidates))
	for _, sample := range candidates {
		dist, ok := overlapDistance(sample.Scores, actual)
		if !ok {
			weights = append(weights, weighted{weight: 0, scores: sample.Scores})
			continue
		}
		w := math.Exp(-(dist * dist) / (2 * bandwidth * bandwidth))
		weights = append(weights, weighted{weight: w, scores: sample.Scores})
	}

	predictions := make(map[string]float64, len(targetKeys))
	for _, key := range targetKeys {
		numerator, denominator := 0.0, 0.0
		for _, w := range weights {
			if w.weight == 0 {
				continue
			}
			value, ok := w.scores[key]
			if !ok {
				continue
			}
			numerator += w.weight * value
			denominator += w.weight
		}
		if denominator > 0 {
			predictions[key] = round2(numerator / denominator)
		}
	}
	return predictions
}

// PredictLWLR fits a separately weighted linear model per target key over
// the feature subspace every candidate shares with the query. Target keys
// with fewer than two carriers, or whose normal equations are singular, are
// skipped silently.
func PredictLWLR(candidates []ReferenceSample, actual map[string]float64, targetKeys []string, tau float64) map[string]float64 {
	if len(candidates) == 0 || len(actual) == 0 || len(targetKeys) == 0 {
		return map[string]float64{}
	}

	common := commonFeatures(candidates, actual)
	if len(common) == 0 {
		return map[string]float64{}
	}

	query := make([]float64, len(common))
	for i, key := range common {
		query[i] = actual[key]
	}

	predictions := make(map[string]float64, len(targetKeys))
	for _, targetKey := range targetKeys {
		var rows [][]float64
		var ys []float64
		for _, sample := range candidates {
			y, ok := sample.Scores[targetKey]
			if !ok {
				continue
			}
			row := make([]float64, len(common))
			complete := true
			for i, key := range common {
				v, present := sample.Scores[key]
				if !present {
					complete = false
					break
				}
				row[i] = v
			}
			if !complete {
				continue
			}
			rows = append(rows, row)
			ys = append(ys, y)
		}
		if len(rows) < 2 {
			continue
		}

		if pred, ok := solveWeightedLeastSquares(rows, ys, query, gaussianWeights(rows, query, tau)); ok {
			predictions[targetKey] = round2(pred)
		}
	}
	return predictions
}

// commonFeatures returns the sorted intersection of the query's keys with
// every candidate's keys.
func commonFeatures(candidates []ReferenceSample, actual map[string]float64) []string {
	var common []string
	for key := range actual {
		shared := true
		for _, sample := range candidates {
			if _, ok := sample.Scores[key]; !ok {
				shared = false
				break
			}
		}
		if shared {
			common = append(common, key)
		}
	}
	sort.Strings(common)
	return common
}

// gaussianWeights computes exp(-d²/2τ²) per training row against the query.
func gaussianWeights(rows [][]float64, query []float64, tau float64) []float64 {
	weights := make([]float64, len(rows))
	for i, row := range rows {
		sum := 0.0
		for d := range row {
			diff := row[d] - query[d]
			sum += diff * diff
		}
		weights[i] = math.Exp(-sum / (2 * tau * tau))
	}
	return weights
}

// solveWeightedLeastSquares solves (XᵀWX)θ = XᵀWy with a bias column and
// evaluates the fitted hyperplane at the query point. ok is false when the
// system is singular.
func solveWeightedLeastSquares(rows [][]float64, ys []float64, query []float64, weights []float64) (float64, bool) {
	n := len(rows)
	d := len(query) + 1 // bias column

	x := mat.NewDense(n, d, nil)
	for i, row := range rows {
		x.Set(i, 0, 1.0)
		for j, v := range row {
			x.Set(i, j+1, v)
		}
	}
	w := mat.NewDiagDense(n, weights)
	y := mat.NewVecDense(n, ys)

	var xtw mat.Dense
	xtw.Mul(x.T(), w)

	var xtwx mat.Dense
	xtwx.Mul(&xtw, x)

	var xtwy mat.VecDense
	xtwy.MulVec(&xtw, y)

	var theta mat.VecDense
	if err := theta.SolveVec(&xtwx, &xtwy); err != nil {
		return 0, false
	}

	pred := theta.AtVec(0)
	for j, v := range query {
		pred += theta.AtVec(j+1) * v
	}
	if math.IsNaN(pred) || math.IsInf(pred, 0) {
		return 0, false
	}
	return pred, true
}

// predictWithModel dispatches on the active model name; unknown names fall
// back to KNN, matching the legacy behavior.
func predictWithModel(candidates []ReferenceSample, actual map[string]float64, targetKeys []string, model string, params ModelParams) map[string]float64 {
	switch model {
	case ModelKernelRegression:
		return PredictKernelRegression(candidates, actual, targetKeys, params.KRBandwidth)
	case ModelLWLR:
		return PredictLWLR(candidates, actual, targetKeys, params.LWLRTau)
	default:
		return PredictKNN(candidates, actual, targetKeys, params.KNNNeighbors)
	}
}
