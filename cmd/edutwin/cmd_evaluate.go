// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// evaluationPollInterval paces job polling in async mode.
const evaluationPollInterval = 2 * time.Second

func runEvaluateCommand(cmd *cobra.Command, args []string) error {
	logger.Info("requesting evaluation",
		"structure", structureID, "input", inputTimePoints, "output", outputTimePoints)

	client := newAPIClient()
	body := map[string]any{
		"structure_id":      structureID,
		"input_timepoints":  inputTimePoints,
		"output_timepoints": outputTimePoints,
		"sync":              syncEvaluation,
	}

	if syncEvaluation {
		var result map[string]any
		if err := client.call("POST", "/v1/evaluate", body, &result); err != nil {
			return err
		}
		return printJSON(result)
	}

	var accepted struct {
		EvaluationID string `json:"evaluation_id"`
		Status       string `json:"status"`
	}
	if err := client.call("POST", "/v1/evaluate", body, &accepted); err != nil {
		return err
	}
	fmt.Printf("Evaluation %s queued, polling...\n", accepted.EvaluationID)

	for {
		time.Sleep(evaluationPollInterval)
		var job struct {
			Status string         `json:"status"`
			Result map[string]any `json:"result"`
			Error  string         `json:"error"`
		}
		if err := client.call("GET", "/v1/evaluate/"+accepted.EvaluationID, nil, &job); err != nil {
			return err
		}
		switch job.Status {
		case "completed":
			return printJSON(job.Result)
		case "failed":
			return fmt.Errorf("evaluation failed: %s", job.Error)
		default:
			logger.Debug("evaluation still running", "status", job.Status)
		}
	}
}
