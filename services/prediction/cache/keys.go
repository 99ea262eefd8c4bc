// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Key namespaces. Invalidation patterns are built from these prefixes, so
// every key in the store starts with one of them.
const (
	predictionPrefix = "prediction"
	evaluationPrefix = "evaluation"
	clusterPrefix    = "cluster"
)

// HashJSON fingerprints a value as the MD5 of its canonical JSON encoding.
// encoding/json sorts map keys and emits struct fields in declaration order,
// so equal values hash equally. MD5 collisions are treated as cache hits;
// the content being fingerprinted is not adversarial.
func HashJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Only unmarshalable types (channels, funcs) can land here; hashing
		// the error text keeps the key stable rather than panicking.
		data = []byte(err.Error())
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// PredictionKey builds prediction:{user}:{structure}:{tp}:{hash}, the hash
// covering the query's input scores, the model name and its parameters.
func PredictionKey(userID, structureID int64, currentTimePoint string, scores map[string]float64, model string, params any) string {
	hash := HashJSON(map[string]any{
		"scores": scores,
		"model":  model,
		"params": params,
	})
	return fmt.Sprintf("%s:%d:%d:%s:%s", predictionPrefix, userID, structureID, currentTimePoint, hash)
}

// EvaluationKey builds evaluation:{structure}:{method}:{hash}; the time-point
// lists are sorted before hashing so their request order is irrelevant.
func EvaluationKey(structureID int64, inputTimePoints, outputTimePoints []string, params any, method string) string {
	inputs := append([]string(nil), inputTimePoints...)
	outputs := append([]string(nil), outputTimePoints...)
	sort.Strings(inputs)
	sort.Strings(outputs)
	hash := HashJSON(map[string]any{
		"input_tp":  inputs,
		"output_tp": outputs,
		"params":    params,
		"method":    method,
	})
	return fmt.Sprintf("%s:%d:%s:%s", evaluationPrefix, structureID, method, hash)
}

// ClusterKey builds cluster:{structure}:{dataset_hash}. A new ingest changes
// the dataset hash, so stale indices simply stop being addressed.
func ClusterKey(structureID int64, datasetHash string) string {
	return fmt.Sprintf("%s:%d:%s", clusterPrefix, structureID, datasetHash)
}

// predictionPattern scopes invalidation to a user and/or structure; zero
// means "any".
func predictionPattern(userID, structureID int64) string {
	switch {
	case userID != 0 && structureID != 0:
		return fmt.Sprintf("%s:%d:%d:*", predictionPrefix, userID, structureID)
	case structureID != 0:
		return fmt.Sprintf("%s:*:%d:*", predictionPrefix, structureID)
	case userID != 0:
		return fmt.Sprintf("%s:%d:*", predictionPrefix, userID)
	default:
		return predictionPrefix + ":*"
	}
}

func evaluationPattern(structureID int64) string {
	if structureID != 0 {
		return fmt.Sprintf("%s:%d:*", evaluationPrefix, structureID)
	}
	return evaluationPrefix + ":*"
}

func clusterPattern(structureID int64) string {
	if structureID != 0 {
		return fmt.Sprintf("%s:%d:*", clusterPrefix, structureID)
	}
	return clusterPrefix + ":*"
}
