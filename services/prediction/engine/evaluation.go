// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/edutwin/edutwin/services/prediction/cache"
	"github.com/edutwin/edutwin/services/prediction/observability"
)

const (
	// MinEvaluationSamples is the floor below which evaluation refuses to run.
	MinEvaluationSamples = 20

	// evaluationTestFraction is the holdout share of the 80/20 split.
	evaluationTestFraction = 0.2

	// evaluationSeed fixes the split so repeated evaluations agree.
	evaluationSeed = 42

	// lwlrMinBandwidth floors the tricube window in the holdout variant.
	lwlrMinBandwidth = 0.1

	// lwlrOutsideWeight is the residual weight for rows outside the window.
	lwlrOutsideWeight = 0.01
)

// Evaluation method tags used in cache keys and result payloads.
const (
	MethodStandard = "standard"
	MethodCluster  = "cluster"
)

// ModelMetrics is one regressor's evaluation report. Error is set instead of
// the numbers when the regressor failed.
type ModelMetrics struct {
	MAE         float64 `json:"mae"`
	MSE         float64 `json:"mse"`
	RMSE        float64 `json:"rmse"`
	Accuracy    float64 `json:"accuracy"`
	TestSamples int     `json:"test_samples"`
	Error       string  `json:"error,omitempty"`
}

// EvaluationResult is the full harness output.
type EvaluationResult struct {
	Models           map[string]ModelMetrics `json:"models"`
	Recommendation   string                  `json:"recommendation"`
	BestAccuracy     float64                 `json:"best_accuracy"`
	Method           string                  `json:"method"`
	DatasetSize      int                     `json:"dataset_size"`
	ValidSamples     int                     `json:"valid_samples"`
	TrainSamples     int                     `json:"train_samples"`
	TestSamples      int                     `json:"test_samples"`
	InputTimePoints  []string                `json:"input_timepoints"`
	OutputTimePoints []string                `json:"output_timepoints"`
}

var modelDisplayNames = map[string]string{
	ModelKNN:              "KNN",
	ModelKernelRegression: "Kernel Regression",
	ModelLWLR:             "LWLR",
}

// EvaluateModels scores all three regressors on a holdout split, predicting
// the output time points from the input time points. Cohorts of 3000+ valid
// samples delegate to the clustered variant so evaluation matches the
// production prediction path.
func (e *Engine) EvaluateModels(ctx context.Context, structureID int64, inputTimePoints, outputTimePoints []string, params ModelParams) (*EvaluationResult, error) {
	standardKey := cache.EvaluationKey(structureID, inputTimePoints, outputTimePoints, params, MethodStandard)
	var cached EvaluationResult
	if e.Cache.GetEvaluation(ctx, standardKey, &cached) {
		observability.RecordCacheResult(e.Metrics, "evaluation", true)
		return &cached, nil
	}
	observability.RecordCacheResult(e.Metrics, "evaluation", false)

	structure, err := e.Structures.GetStructure(ctx, structureID)
	if err != nil {
		return nil, err
	}
	dataset, err := e.Samples.ListSamples(ctx, structureID)
	if err != nil {
		return nil, fmt.Errorf("loading reference dataset: %w", err)
	}
	if len(dataset) < MinEvaluationSamples {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientSamples, len(dataset), MinEvaluationSamples)
	}

	inputKeys := evaluationKeys(structure.Subjects, inputTimePoints)
	outputKeys := evaluationKeys(structure.Subjects, outputTimePoints)

	var valid []ReferenceSample
	for _, sample := range dataset {
		if hasAllKeys(sample.Scores, inputKeys) && hasAllKeys(sample.Scores, outputKeys) {
			valid = append(valid, sample)
		}
	}
	if len(valid) < MinEvaluationSamples {
		return nil, fmt.Errorf("%w: only %d valid of %d", ErrInsufficientSamples, len(valid), len(dataset))
	}

	var result *EvaluationResult
	if len(valid) >= TargetSamplesPerCluster {
		result, err = e.evaluateClustered(ctx, structure, valid, inputKeys, outputKeys, inputTimePoints, outputTimePoints, params)
	} else {
		result = e.evaluateStandard(structure, valid, inputKeys, outputKeys, params)
	}
	if err != nil {
		return nil, err
	}

	result.DatasetSize = len(dataset)
	result.ValidSamples = len(valid)
	result.InputTimePoints = inputTimePoints
	result.OutputTimePoints = outputTimePoints

	e.Cache.SetEvaluation(ctx, standardKey, result)
	return result, nil
}

// evaluateStandard is the plain 80/20 holdout over per-sample input vectors
// and a scalar target, the mean of the output-key values.
func (e *Engine) evaluateStandard(structure *Structure, valid []ReferenceSample, inputKeys, outputKeys []string, params ModelParams) *EvaluationResult {
	xs := make([][]float64, len(valid))
	ys := make([]float64, len(valid))
	for i, sample := range valid {
		row := make([]float64, len(inputKeys))
		for j, key := range inputKeys {
			row[j] = sample.Scores[key]
		}
		xs[i] = row
		sum := 0.0
		for _, key := range outputKeys {
			sum += sample.Scores[key]
		}
		ys[i] = sum / float64(len(outputKeys))
	}

	trainIdx, testIdx := trainTestSplit(len(valid), evaluationTestFraction, evaluationSeed)
	xTrain, yTrain := gather(xs, ys, trainIdx)
	xTest, yTest := gather(xs, ys, testIdx)

	scaleMax := ScaleMax(structure.ScaleType)
	models := map[string]ModelMetrics{
		ModelKNN:              holdoutMetrics(holdoutKNN(xTrain, yTrain, xTest, params.KNNNeighbors), yTest, scaleMax),
		ModelKernelRegression: holdoutMetrics(holdoutKernel(xTrain, yTrain, xTest, params.KRBandwidth), yTest, scaleMax),
		ModelLWLR:             holdoutMetrics(holdoutLWLR(xTrain, yTrain, xTest, params.LWLRTau), yTest, scaleMax),
	}

	result := &EvaluationResult{
		Models:       models,
		Method:       MethodStandard,
		TrainSamples: len(trainIdx),
		TestSamples:  len(testIdx),
	}
	result.Recommendation, result.BestAccuracy = bestModel(models)
	return result
}

// evaluateClustered fits an index on the training split and drives each test
// sample through the production selector + regressor path. Test samples are
// scored concurrently; results land in per-index slots, so the outcome is
// deterministic.
func (e *Engine) evaluateClustered(ctx context.Context, structure *Structure, valid []ReferenceSample, inputKeys, outputKeys, inputTimePoints, outputTimePoints []string, params ModelParams) (*EvaluationResult, error) {
	clusterKey := cache.EvaluationKey(structure.ID, inputTimePoints, outputTimePoints, params, MethodCluster)
	var cached EvaluationResult
	if e.Cache.GetEvaluation(ctx, clusterKey, &cached) {
		return &cached, nil
	}

	trainIdx, testIdx := trainTestSplit(len(valid), evaluationTestFraction, evaluationSeed)
	train := make([]ReferenceSample, len(trainIdx))
	for i, idx := range trainIdx {
		train[i] = valid[idx]
	}
	test := make([]ReferenceSample, len(testIdx))
	for i, idx := range testIdx {
		test[i] = valid[idx]
	}

	allKeys := append(append([]string(nil), inputKeys...), outputKeys...)
	index := NewClusterIndex()
	if err := index.Fit(train, allKeys); err != nil {
		return nil, fmt.Errorf("fitting evaluation index: %w", err)
	}

	scaleMax := ScaleMax(structure.ScaleType)
	models := make(map[string]ModelMetrics, 3)
	for _, model := range []string{ModelKNN, ModelKernelRegression, ModelLWLR} {
		preds := make([]*float64, len(test))
		actuals := make([]float64, len(test))

		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(runtime.GOMAXPROCS(0))
		for i := range test {
			g.Go(func() error {
				sample := test[i]
				actualMap := make(map[string]float64, len(inputKeys))
				for _, key := range inputKeys {
					actualMap[key] = sample.Scores[key]
				}
				predicted, err := index.Candidates(actualMap, e.CandidateTarget)
				if err != nil {
					return err
				}
				p := predictWithModel(predicted, actualMap, outputKeys, model, params)
				if len(p) == 0 {
					return nil
				}
				sum := 0.0
				for _, v := range p {
					sum += v
				}
				avg := sum / float64(len(p))
				preds[i] = &avg

				actualSum := 0.0
				for _, key := range outputKeys {
					actualSum += sample.Scores[key]
				}
				actuals[i] = actualSum / float64(len(outputKeys))
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			models[model] = ModelMetrics{Error: err.Error()}
			continue
		}

		var yPred, yTrue []float64
		for i, p := range preds {
			if p == nil {
				continue
			}
			yPred = append(yPred, *p)
			yTrue = append(yTrue, actuals[i])
		}
		models[model] = holdoutMetrics(yPred, yTrue, scaleMax)
	}

	result := &EvaluationResult{
		Models:       models,
		Method:       "cluster_prototype",
		TrainSamples: len(train),
		TestSamples:  len(test),
	}
	result.Recommendation, result.BestAccuracy = bestModel(models)

	e.Cache.SetEvaluation(ctx, clusterKey, result)
	return result, nil
}

// holdoutKNN predicts each test row as the inverse-distance weighted mean of
// its k nearest training targets.
func holdoutKNN(xTrain [][]float64, yTrain []float64, xTest [][]float64, k int) []float64 {
	if k > len(xTrain)-1 {
		k = len(xTrain) - 1
	}
	if k < 1 {
		k = 1
	}
	type pair struct {
		dist float64
		y    float64
	}
	preds := make([]float64, len(xTest))
	for i, x := range xTest {
		pairs := make([]pair, len(xTrain))
		for j, row := range xTrain {
			pairs[j] = pair{dist: euclidean(row, x), y: yTrain[j]}
		}
		sort.SliceStable(pairs, func(a, b int) bool { return pairs[a].dist < pairs[b].dist })
		numerator, denominator := 0.0, 0.0
		for _, p := range pairs[:k] {
			w := 1.0 / (p.dist + distanceEpsilon)
			numerator += w * p.y
			denominator += w
		}
		preds[i] = numerator / denominator
	}
	return preds
}

// holdoutKernel predicts each test row as the Gaussian-weighted mean of all
// training targets, falling back to the unweighted mean when every weight
// underflows.
func holdoutKernel(xTrain [][]float64, yTrain []float64, xTest [][]float64, bandwidth float64) []float64 {
	preds := make([]float64, len(xTest))
	for i, x := range xTest {
		numerator, denominator := 0.0, 0.0
		for j, row := range xTrain {
			d := euclidean(row, x)
			w := math.Exp(-(d * d) / (2 * bandwidth * bandwidth))
			numerator += w * yTrain[j]
			denominator += w
		}
		if denominator > 0 {
			preds[i] = numerator / denominator
		} else {
			preds[i] = mean(yTrain)
		}
	}
	return preds
}

// holdoutLWLR predicts each test row with a tricube-weighted linear fit over
// all training rows. The window is maxDistance/τ floored at lwlrMinBandwidth;
// rows outside keep a small residual weight so the system stays determined.
func holdoutLWLR(xTrain [][]float64, yTrain []float64, xTest [][]float64, tau float64) []float64 {
	preds := make([]float64, len(xTest))
	for i, x := range xTest {
		dists := make([]float64, len(xTrain))
		maxDist := 0.0
		for j, row := range xTrain {
			dists[j] = euclidean(row, x)
			if dists[j] > maxDist {
				maxDist = dists[j]
			}
		}
		bandwidth := maxDist / tau
		if bandwidth < lwlrMinBandwidth {
			bandwidth = lwlrMinBandwidth
		}
		weights := make([]float64, len(xTrain))
		for j, d := range dists {
			norm := d / bandwidth
			if norm < 1.0 {
				w := 1.0 - norm*norm*norm
				weights[j] = w * w * w
			} else {
				weights[j] = lwlrOutsideWeight
			}
		}
		if pred, ok := solveWeightedLeastSquares(xTrain, yTrain, x, weights); ok {
			preds[i] = pred
		} else {
			preds[i] = mean(yTrain)
		}
	}
	return preds
}

// holdoutMetrics computes MAE/MSE/RMSE and the scale-relative accuracy.
func holdoutMetrics(yPred, yTrue []float64, scaleMax float64) ModelMetrics {
	if len(yPred) == 0 || len(yPred) != len(yTrue) {
		return ModelMetrics{Error: "no predictions made"}
	}
	sumAbs, sumSq := 0.0, 0.0
	for i := range yPred {
		diff := yPred[i] - yTrue[i]
		sumAbs += math.Abs(diff)
		sumSq += diff * diff
	}
	n := float64(len(yPred))
	mae := sumAbs / n
	mse := sumSq / n
	accuracy := 100 - (mae/scaleMax)*100
	if accuracy < 0 {
		accuracy = 0
	}
	if accuracy > 100 {
		accuracy = 100
	}
	return ModelMetrics{
		MAE:         round4(mae),
		MSE:         round4(mse),
		RMSE:        round4(math.Sqrt(mse)),
		Accuracy:    round2(accuracy),
		TestSamples: len(yPred),
	}
}

// bestModel returns the display name and accuracy of the highest-accuracy
// regressor among those that succeeded.
func bestModel(models map[string]ModelMetrics) (string, float64) {
	best := ""
	bestAccuracy := 0.0
	for _, name := range []string{ModelKNN, ModelKernelRegression, ModelLWLR} {
		m, ok := models[name]
		if !ok || m.Error != "" {
			continue
		}
		if m.Accuracy > bestAccuracy {
			bestAccuracy = m.Accuracy
			best = name
		}
	}
	if best == "" {
		return "undetermined", 0
	}
	return modelDisplayNames[best], round2(bestAccuracy)
}

// trainTestSplit shuffles [0,n) with the fixed seed and carves off the test
// fraction, ceiling-rounded.
func trainTestSplit(n int, testFraction float64, seed int64) (trainIdx, testIdx []int) {
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(n)
	nTest := int(math.Ceil(testFraction * float64(n)))
	return perm[nTest:], perm[:nTest]
}

func evaluationKeys(subjects, timePoints []string) []string {
	keys := make([]string, 0, len(subjects)*len(timePoints))
	for _, subject := range subjects {
		for _, tp := range timePoints {
			keys = append(keys, FeatureKey(subject, tp))
		}
	}
	return keys
}

func hasAllKeys(scores map[string]float64, keys []string) bool {
	for _, key := range keys {
		if _, ok := scores[key]; !ok {
			return false
		}
	}
	return true
}

func gather(xs [][]float64, ys []float64, idx []int) ([][]float64, []float64) {
	gx := make([][]float64, len(idx))
	gy := make([]float64, len(idx))
	for i, j := range idx {
		gx[i] = xs[j]
		gy[i] = ys[j]
	}
	return gx, gy
}

func euclidean(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
