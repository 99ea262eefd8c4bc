// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

// Candidates produces the working set for one query. The query's home
// cluster is grown by merging nearby clusters (ascending centroid distance)
// when it is short of target, or truncated to its closest-to-centroid prefix
// when it overshoots. Order within a merged set carries no meaning; none of
// the regressors depend on it.
//
// A target of 0 or less falls back to TargetSamplesPerCluster.
func (ci *ClusterIndex) Candidates(scores map[string]float64, target int) ([]ReferenceSample, error) {
	if target <= 0 {
		target = TargetSamplesPerCluster
	}

	home, err := ci.Assign(scores)
	if err != nil {
		return nil, err
	}

	members := ci.Members(home)
	switch {
	case len(members) == target:
		return members, nil
	case len(members) > target:
		return members[:target], nil
	}

	merged := append([]ReferenceSample(nil), members...)
	for _, neighbor := range ci.NearestClusters(home) {
		merged = append(merged, ci.Members(neighbor)...)
		if len(merged) >= target {
			break
		}
	}
	return merged, nil
}
