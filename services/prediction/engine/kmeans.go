// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

const (
	// kmeansSeed fixes the RNG so that fitting the same dataset twice
	// produces byte-identical indices.
	kmeansSeed = 42

	// kmeansRestarts is the number of independent initializations; the run
	// with the lowest inertia wins.
	kmeansRestarts = 10

	// kmeansMaxIter bounds Lloyd iterations per restart.
	kmeansMaxIter = 300
)

// kmeansResult holds the best clustering found across restarts.
type kmeansResult struct {
	centroids [][]float64
	labels    []int
	inertia   float64
}

// runKMeans clusters data into k groups with k-means++ initialization and
// Lloyd refinement. The seed and restart count make the output deterministic
// for identical input.
func runKMeans(data [][]float64, k int, seed int64, restarts int) kmeansResult {
	best := kmeansResult{inertia: math.Inf(1)}
	for r := 0; r < restarts; r++ {
		rng := rand.New(rand.NewSource(seed + int64(r)))
		res := kmeansOnce(data, k, rng)
		if res.inertia < best.inertia {
			best = res
		}
	}
	return best
}

func kmeansOnce(data [][]float64, k int, rng *rand.Rand) kmeansResult {
	centroids := seedPlusPlus(data, k, rng)
	labels := make([]int, len(data))
	dims := len(data[0])

	for iter := 0; iter < kmeansMaxIter; iter++ {
		changed := false
		for i, point := range data {
			c := nearestCentroid(point, centroids)
			if labels[i] != c || iter == 0 {
				labels[i] = c
				changed = true
			}
		}

		counts := make([]int, k)
		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, point := range data {
			counts[labels[i]]++
			floats.Add(sums[labels[i]], point)
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				// Relocate an empty centroid onto the point farthest from
				// its current assignment, matching the usual Lloyd repair.
				far := farthestPoint(data, centroids, labels)
				copy(centroids[c], data[far])
				labels[far] = c
				continue
			}
			for d := 0; d < dims; d++ {
				centroids[c][d] = sums[c][d] / float64(counts[c])
			}
		}

		if !changed && iter > 0 {
			break
		}
	}

	inertia := 0.0
	for i, point := range data {
		d := floats.Distance(point, centroids[labels[i]], 2)
		inertia += d * d
	}
	return kmeansResult{centroids: centroids, labels: labels, inertia: inertia}
}

// seedPlusPlus picks initial centroids with the k-means++ scheme: the first
// uniformly, the rest proportional to squared distance from the nearest
// already-chosen centroid.
func seedPlusPlus(data [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	first := append([]float64(nil), data[rng.Intn(len(data))]...)
	centroids = append(centroids, first)

	distSq := make([]float64, len(data))
	for len(centroids) < k {
		total := 0.0
		for i, point := range data {
			nearest := math.Inf(1)
			for _, c := range centroids {
				d := floats.Distance(point, c, 2)
				if dd := d * d; dd < nearest {
					nearest = dd
				}
			}
			distSq[i] = nearest
			total += nearest
		}

		var next int
		if total == 0 {
			next = rng.Intn(len(data))
		} else {
			target := rng.Float64() * total
			acc := 0.0
			for i, d := range distSq {
				acc += d
				if acc >= target {
					next = i
					break
				}
			}
		}
		centroids = append(centroids, append([]float64(nil), data[next]...))
	}
	return centroids
}

// nearestCentroid returns the index of the closest centroid; ties break
// toward the lowest index.
func nearestCentroid(point []float64, centroids [][]float64) int {
	best := 0
	bestDist := math.Inf(1)
	for c, centroid := range centroids {
		if d := floats.Distance(point, centroid, 2); d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

// farthestPoint finds the point with the largest distance to its assigned
// centroid, used to repopulate empty clusters.
func farthestPoint(data [][]float64, centroids [][]float64, labels []int) int {
	far, farDist := 0, -1.0
	for i, point := range data {
		if d := floats.Distance(point, centroids[labels[i]], 2); d > farDist {
			farDist = d
			far = i
		}
	}
	return far
}
