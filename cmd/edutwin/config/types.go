// Copyright (C) 2025 EduTwin Analytics (dev@edutwin.app)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

// EduTwinConfig is the CLI configuration persisted at
// ~/.edutwin/edutwin.yaml.
type EduTwinConfig struct {
	// Server holds the base URL of the prediction service and the request
	// timeout.
	Server ServerConfig `yaml:"server"`

	// Logging controls CLI log output.
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	LogDir string `yaml:"log_dir"`
}

// DefaultConfig is written on first run.
func DefaultConfig() EduTwinConfig {
	return EduTwinConfig{
		Server: ServerConfig{
			URL:            "http://localhost:12310",
			TimeoutSeconds: 120,
		},
		Logging: LoggingConfig{
			Level:  "info",
			LogDir: "~/.edutwin/logs",
		},
	}
}
