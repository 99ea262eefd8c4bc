// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoBlobs builds two well-separated point clouds.
func twoBlobs() [][]float64 {
	var data [][]float64
	for i := 0; i < 20; i++ {
		data = append(data, []float64{float64(i) * 0.01, 0})
	}
	for i := 0; i < 20; i++ {
		data = append(data, []float64{100 + float64(i)*0.01, 0})
	}
	return data
}

func TestRunKMeans_SeparatesBlobs(t *testing.T) {
	res := runKMeans(twoBlobs(), 2, kmeansSeed, kmeansRestarts)
	require.Len(t, res.centroids, 2)

	// All points of one blob share a label, and the two blobs differ.
	first := res.labels[0]
	for i := 1; i < 20; i++ {
		assert.Equal(t, first, res.labels[i])
	}
	second := res.labels[20]
	assert.NotEqual(t, first, second)
	for i := 21; i < 40; i++ {
		assert.Equal(t, second, res.labels[i])
	}
}

func TestRunKMeans_Deterministic(t *testing.T) {
	a := runKMeans(twoBlobs(), 2, kmeansSeed, kmeansRestarts)
	b := runKMeans(twoBlobs(), 2, kmeansSeed, kmeansRestarts)
	assert.Equal(t, a.centroids, b.centroids)
	assert.Equal(t, a.labels, b.labels)
	assert.Equal(t, a.inertia, b.inertia)
}

func TestRunKMeans_KEqualsN(t *testing.T) {
	data := [][]float64{{0}, {10}, {20}}
	res := runKMeans(data, 3, kmeansSeed, kmeansRestarts)
	require.Len(t, res.centroids, 3)
	// With one point per cluster, inertia collapses to zero.
	assert.Equal(t, 0.0, res.inertia)
}

func TestRunKMeans_SingleCluster(t *testing.T) {
	data := [][]float64{{1}, {2}, {3}, {4}}
	res := runKMeans(data, 1, kmeansSeed, kmeansRestarts)
	require.Len(t, res.centroids, 1)
	assert.InDelta(t, 2.5, res.centroids[0][0], 1e-9)
}

func TestNearestCentroid_TieBreaksLow(t *testing.T) {
	centroids := [][]float64{{0}, {10}}
	assert.Equal(t, 0, nearestCentroid([]float64{5}, centroids))
}
