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

// threeClusterIndex fabricates a fitted index with clusters of the given
// sizes centered at 0, 10 and 100 on one feature.
func threeClusterIndex(sizes [3]int) *ClusterIndex {
	centers := []float64{0, 10, 100}
	clusters := make([][]ReferenceSample, 3)
	id := int64(1)
	for c, size := range sizes {
		members := make([]ReferenceSample, size)
		for i := range members {
			// Members fan out from the center, already distance-sorted.
			members[i] = ReferenceSample{
				ID:     id,
				Scores: map[string]float64{"A_T1": centers[c] + float64(i)*0.01},
			}
			id++
		}
		clusters[c] = members
	}
	return &ClusterIndex{
		FeatureKeys: []string{"A_T1"},
		Centroids:   [][]float64{{centers[0]}, {centers[1]}, {centers[2]}},
		Clusters:    clusters,
		NumClusters: 3,
		Fitted:      true,
	}
}

func TestCandidates_ExactFit(t *testing.T) {
	index := threeClusterIndex([3]int{40, 5, 5})
	candidates, err := index.Candidates(map[string]float64{"A_T1": 0}, 40)
	require.NoError(t, err)
	assert.Len(t, candidates, 40)
}

func TestCandidates_TruncatesLargeHomeCluster(t *testing.T) {
	index := threeClusterIndex([3]int{100, 5, 5})
	candidates, err := index.Candidates(map[string]float64{"A_T1": 0}, 30)
	require.NoError(t, err)
	require.Len(t, candidates, 30)
	// The prefix is the closest-to-centroid slice.
	assert.Equal(t, int64(1), candidates[0].ID)
	assert.Equal(t, int64(30), candidates[29].ID)
}

func TestCandidates_MergesNearestNeighborsFirst(t *testing.T) {
	index := threeClusterIndex([3]int{10, 10, 10})
	// Home cluster 0 (10 members) is short of 15; cluster 1 is nearer than
	// cluster 2 and must be merged first.
	candidates, err := index.Candidates(map[string]float64{"A_T1": 0}, 15)
	require.NoError(t, err)
	require.Len(t, candidates, 20)

	seen := make(map[int64]bool, len(candidates))
	for _, c := range candidates {
		seen[c.ID] = true
	}
	assert.True(t, seen[1], "home cluster members present")
	assert.True(t, seen[11], "nearest neighbor merged")
	assert.False(t, seen[21], "far cluster untouched")
}

func TestCandidates_ExhaustsNeighbors(t *testing.T) {
	index := threeClusterIndex([3]int{3, 3, 3})
	candidates, err := index.Candidates(map[string]float64{"A_T1": 0}, 50)
	require.NoError(t, err)
	// Fewer samples than target: everything is returned.
	assert.Len(t, candidates, 9)
}

func TestCandidates_Unfitted(t *testing.T) {
	_, err := NewClusterIndex().Candidates(map[string]float64{"A_T1": 0}, 10)
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestCandidates_SingleClusterPassthrough(t *testing.T) {
	// Below the clustering threshold K = 1 and the selector hands back the
	// whole cohort untouched.
	keys := []string{"A_T1", "B_T1"}
	dataset := syntheticDataset(120, keys, 21)
	index := NewClusterIndex()
	require.NoError(t, index.Fit(dataset, keys))
	require.Equal(t, 1, index.NumClusters)

	candidates, err := index.Candidates(map[string]float64{"A_T1": 6, "B_T1": 6}, 0)
	require.NoError(t, err)
	assert.Len(t, candidates, 120)
}

func TestCandidates_AdaptiveMergeLargeCohort(t *testing.T) {
	if testing.Short() {
		t.Skip("large fit")
	}
	// 7500 samples cluster into K = 3 (~2500 each); any query must gather at
	// least the 3000 target after merging one neighbor.
	keys := []string{"A_T1", "B_T1", "A_T2", "B_T2"}
	dataset := syntheticDataset(7500, keys, 4)
	index := NewClusterIndex()
	require.NoError(t, index.Fit(dataset, keys))
	require.Equal(t, 3, index.NumClusters)

	candidates, err := index.Candidates(map[string]float64{"A_T1": 7, "B_T1": 7}, 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(candidates), TargetSamplesPerCluster)
}
