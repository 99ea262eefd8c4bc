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

func runCacheStatsCommand(cmd *cobra.Command, args []string) error {
	client := newAPIClient()
	var stats map[string]any
	if err := client.call("GET", "/v1/cache/stats", nil, &stats); err != nil {
		return err
	}
	return printJSON(stats)
}

func runCacheClearCommand(cmd *cobra.Command, args []string) error {
	client := newAPIClient()
	body := map[string]any{"scope": cacheScope}
	if userID > 0 {
		body["user_id"] = userID
	}
	if structureID > 0 {
		body["structure_id"] = structureID
	}

	var resp struct {
		Scope   string `json:"scope"`
		Deleted int    `json:"deleted"`
	}
	if err := client.call("POST", "/v1/cache/invalidate", body, &resp); err != nil {
		return err
	}
	fmt.Printf("Deleted %d %s cache entries\n", resp.Deleted, resp.Scope)
	return nil
}
