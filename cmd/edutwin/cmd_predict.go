// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func runPredictCommand(cmd *cobra.Command, args []string) error {
	logger.Info("requesting prediction refresh",
		"user", userID, "structure", structureID, "current", currentTimePoint)

	client := newAPIClient()
	body := map[string]any{
		"user_id":            userID,
		"current_time_point": currentTimePoint,
	}
	if modelOverride != "" {
		body["model"] = modelOverride
	}

	var resp struct {
		Model       string             `json:"model"`
		Predictions map[string]float64 `json:"predictions"`
		Imputed     map[string]float64 `json:"imputed"`
		Written     int                `json:"written"`
		CacheHit    bool               `json:"cache_hit"`
	}
	path := fmt.Sprintf("/v1/structures/%d/predict", structureID)
	if err := client.call("POST", path, body, &resp); err != nil {
		return err
	}

	fmt.Printf("Model: %s  (cache hit: %v)\n", resp.Model, resp.CacheHit)
	fmt.Printf("Wrote %d score rows, %d imputed inputs\n", resp.Written, len(resp.Imputed))
	return printJSON(resp.Predictions)
}
