// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Global holds the loaded CLI configuration after a successful Load.
var Global EduTwinConfig

var (
	loadOnce sync.Once
	loadErr  error
)

// Path returns the location of the CLI config file.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".edutwin", "edutwin.yaml"), nil
}

// Load populates Global exactly once per process. A missing config file is
// not an error: the defaults are written out so the user has something to
// edit, and the process continues on them.
func Load() error {
	loadOnce.Do(func() {
		Global, loadErr = read()
	})
	return loadErr
}

// read starts from the defaults and lets the on-disk YAML override them, so
// a partial config file keeps sane values for everything it omits.
func read() (EduTwinConfig, error) {
	cfg := DefaultConfig()

	path, err := Path()
	if err != nil {
		return cfg, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Printf("No config found, writing defaults to %s\n", path)
		return cfg, seed(path, cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.normalize()
	return cfg, nil
}

// seed persists the default config for the user to edit later.
func seed(path string, cfg EduTwinConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// normalize repairs values an edited config may have blanked or zeroed.
func (c *EduTwinConfig) normalize() {
	defaults := DefaultConfig()
	if c.Server.URL == "" {
		c.Server.URL = defaults.Server.URL
	}
	if c.Server.TimeoutSeconds <= 0 {
		c.Server.TimeoutSeconds = defaults.Server.TimeoutSeconds
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
}
