// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"

	"github.com/edutwin/edutwin/cmd/edutwin/config"
	"github.com/edutwin/edutwin/pkg/logging"
)

// --- Global Command Variables ---
var (
	userID           int64
	structureID      int64
	currentTimePoint string
	modelOverride    string
	inputTimePoints  []string
	outputTimePoints []string
	syncEvaluation   bool
	cacheScope       string
	logger           *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "edutwin",
		Short: "Admin CLI for the EduTwin prediction service",
		Long: `edutwin drives the score prediction backend: trigger prediction
refreshes, evaluate the three regressors, and manage the result cache.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(); err != nil {
				return err
			}
			logger = logging.New(logging.Config{
				Level:   logging.ParseLevel(config.Global.Logging.Level),
				LogDir:  config.Global.Logging.LogDir,
				Service: "cli",
			})
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
			}
		},
	}

	predictCmd = &cobra.Command{
		Use:   "predict",
		Short: "Refresh a user's predicted scores",
		RunE:  runPredictCommand, // Defined in cmd_predict.go
	}

	evaluateCmd = &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate KNN, kernel regression and LWLR on a holdout split",
		RunE:  runEvaluateCommand, // Defined in cmd_evaluate.go
	}

	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the result cache",
	}
	cacheStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show cache key counts, memory use and TTLs",
		RunE:  runCacheStatsCommand, // Defined in cmd_cache.go
	}
	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Invalidate cached predictions, evaluations and indices",
		RunE:  runCacheClearCommand, // Defined in cmd_cache.go
	}
)

func init() {
	predictCmd.Flags().Int64Var(&userID, "user", 0, "user id (required)")
	predictCmd.Flags().Int64Var(&structureID, "structure", 0, "structure id (required)")
	predictCmd.Flags().StringVar(&currentTimePoint, "current", "", "current time-point label (required)")
	predictCmd.Flags().StringVar(&modelOverride, "model", "", "override the active model (knn|kernel_regression|lwlr)")
	_ = predictCmd.MarkFlagRequired("user")
	_ = predictCmd.MarkFlagRequired("structure")
	_ = predictCmd.MarkFlagRequired("current")

	evaluateCmd.Flags().Int64Var(&structureID, "structure", 0, "structure id (required)")
	evaluateCmd.Flags().StringSliceVar(&inputTimePoints, "input", nil, "input time points (required)")
	evaluateCmd.Flags().StringSliceVar(&outputTimePoints, "output", nil, "output time points (required)")
	evaluateCmd.Flags().BoolVar(&syncEvaluation, "sync", false, "wait for the result instead of polling a job")
	_ = evaluateCmd.MarkFlagRequired("structure")
	_ = evaluateCmd.MarkFlagRequired("input")
	_ = evaluateCmd.MarkFlagRequired("output")

	cacheClearCmd.Flags().StringVar(&cacheScope, "scope", "all", "prediction|evaluation|cluster|all")
	cacheClearCmd.Flags().Int64Var(&userID, "user", 0, "limit to one user")
	cacheClearCmd.Flags().Int64Var(&structureID, "structure", 0, "limit to one structure")

	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
	rootCmd.AddCommand(predictCmd, evaluateCmd, cacheCmd)
}
