// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

const (
	// TargetSamplesPerCluster is the candidate-set size the selector aims
	// for; clusters are sized so that most queries need at most one merge.
	TargetSamplesPerCluster = 3000

	// MaxClusters caps the cluster count so k-means stays cheap on very
	// large cohorts.
	MaxClusters = 100
)

// OptimalClusterCount picks the cluster count for a cohort of datasetSize
// samples: below the per-cluster target no clustering happens at all.
func OptimalClusterCount(datasetSize int) int {
	if datasetSize < TargetSamplesPerCluster {
		return 1
	}
	k := int(math.Ceil(float64(datasetSize) / float64(TargetSamplesPerCluster)))
	if k > MaxClusters {
		return MaxClusters
	}
	return k
}

// ClusterIndex partitions a reference cohort into k-means clusters and keeps
// every cluster's members sorted by ascending distance to the centroid. It
// answers three questions: which cluster a query belongs to, which samples a
// cluster holds, and which clusters sit nearest a given one.
//
// The feature-key ordering is fixed at fit time; every vector built
// afterwards (including deserialized copies) uses that ordering.
type ClusterIndex struct {
	FeatureKeys []string            `json:"feature_keys"`
	Centroids   [][]float64         `json:"centroids"`
	Clusters    [][]ReferenceSample `json:"clusters"`
	NumClusters int                 `json:"num_clusters"`
	Fitted      bool                `json:"fitted"`
}

// NewClusterIndex returns an unfitted index.
func NewClusterIndex() *ClusterIndex {
	return &ClusterIndex{}
}

// Fit clusters the dataset. Samples missing any feature key are excluded
// from clustering (they remain usable by the imputer, which reads the raw
// dataset). The cluster count is derived from the surviving sample count;
// pathologically small cohorts collapse to fewer clusters.
func (ci *ClusterIndex) Fit(dataset []ReferenceSample, featureKeys []string) error {
	if len(dataset) == 0 || len(featureKeys) == 0 {
		return ErrEmptyDataset
	}

	ci.FeatureKeys = append([]string(nil), featureKeys...)

	var vectors [][]float64
	var valid []ReferenceSample
	for _, sample := range dataset {
		row, ok := vectorize(sample.Scores, featureKeys)
		if !ok {
			continue
		}
		vectors = append(vectors, row)
		valid = append(valid, sample)
	}
	if len(vectors) == 0 {
		return fmt.Errorf("%w: no sample carries every feature key", ErrEmptyDataset)
	}

	k := OptimalClusterCount(len(valid))
	if len(valid) < k {
		k = len(valid) / 5
		if k < 1 {
			k = 1
		}
	}
	ci.NumClusters = k

	res := runKMeans(vectors, k, kmeansSeed, kmeansRestarts)
	ci.Centroids = res.centroids

	ci.Clusters = make([][]ReferenceSample, k)
	for c := 0; c < k; c++ {
		type member struct {
			dist   float64
			sample ReferenceSample
		}
		var members []member
		for i, label := range res.labels {
			if label != c {
				continue
			}
			members = append(members, member{
				dist:   floats.Distance(vectors[i], res.centroids[c], 2),
				sample: valid[i],
			})
		}
		sort.SliceStable(members, func(a, b int) bool { return members[a].dist < members[b].dist })
		sorted := make([]ReferenceSample, len(members))
		for i, m := range members {
			sorted[i] = m.sample
		}
		ci.Clusters[c] = sorted
	}

	ci.Fitted = true
	return nil
}

// Assign maps a query score map to its nearest cluster. Missing feature keys
// contribute 0.0 to the query vector, which pulls heavily incomplete queries
// toward clusters whose centroids lie near zero on the missing keys. Ties
// break toward the lowest cluster id.
func (ci *ClusterIndex) Assign(scores map[string]float64) (int, error) {
	if !ci.Fitted {
		return 0, ErrNotFitted
	}
	vector := make([]float64, len(ci.FeatureKeys))
	for i, key := range ci.FeatureKeys {
		vector[i] = scores[key]
	}
	return nearestCentroid(vector, ci.Centroids), nil
}

// Members returns the cluster's samples ordered closest-to-centroid first.
// Callers slice the prefix they need; the slice must not be mutated.
func (ci *ClusterIndex) Members(clusterID int) []ReferenceSample {
	if clusterID < 0 || clusterID >= len(ci.Clusters) {
		return nil
	}
	return ci.Clusters[clusterID]
}

// NearestClusters returns the other cluster ids ordered by ascending
// centroid-to-centroid distance. This ordering is the only definition of
// "nearby cluster" the selector uses.
func (ci *ClusterIndex) NearestClusters(clusterID int) []int {
	if !ci.Fitted || clusterID < 0 || clusterID >= ci.NumClusters {
		return nil
	}
	type entry struct {
		id   int
		dist float64
	}
	entries := make([]entry, 0, ci.NumClusters-1)
	source := ci.Centroids[clusterID]
	for c := 0; c < ci.NumClusters; c++ {
		if c == clusterID {
			continue
		}
		entries = append(entries, entry{id: c, dist: floats.Distance(source, ci.Centroids[c], 2)})
	}
	sort.SliceStable(entries, func(a, b int) bool { return entries[a].dist < entries[b].dist })
	ids := make([]int, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	return ids
}

// TotalSamples reports how many samples survived filtering at fit time.
func (ci *ClusterIndex) TotalSamples() int {
	total := 0
	for _, cluster := range ci.Clusters {
		total += len(cluster)
	}
	return total
}

// Serialize encodes the index as JSON. The explicit schema (feature keys,
// centroid matrix, per-cluster member arrays) round-trips exactly and is
// deterministic for a deterministic fit.
func (ci *ClusterIndex) Serialize() ([]byte, error) {
	if !ci.Fitted {
		return nil, ErrNotFitted
	}
	return json.Marshal(ci)
}

// DeserializeClusterIndex restores an index produced by Serialize.
func DeserializeClusterIndex(data []byte) (*ClusterIndex, error) {
	var ci ClusterIndex
	if err := json.Unmarshal(data, &ci); err != nil {
		return nil, fmt.Errorf("corrupt cluster index: %w", err)
	}
	if !ci.Fitted {
		return nil, ErrNotFitted
	}
	return &ci, nil
}

// vectorize builds the fixed-order vector for a sample, reporting false when
// any feature key is absent.
func vectorize(scores map[string]float64, featureKeys []string) ([]float64, bool) {
	row := make([]float64, len(featureKeys))
	for i, key := range featureKeys {
		v, ok := scores[key]
		if !ok {
			return nil, false
		}
		row[i] = v
	}
	return row, true
}
