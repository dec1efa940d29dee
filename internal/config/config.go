// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the squashfuse
// mount command.
//
// Configuration is loaded from a single file specified by:
//   - LATTICEFS_CONFIG environment variable, or
//   - --config flag
//
// There are no fallbacks or automatic discovery. The config file is
// the single source of truth; CLI flags override individual values
// after it loads, and there is no further fallback chain — unlike
// lib/config's per-deployment-environment overrides, a single mount
// command has no fleet of environments to distinguish.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the configuration for a single squashfuse mount.
type Config struct {
	// ImagePath is the archive image to mount.
	ImagePath string `yaml:"image_path"`

	// Mountpoint is the directory the archive is mounted onto.
	Mountpoint string `yaml:"mountpoint"`

	// AllowOther permits users other than the mount owner to access
	// the filesystem (requires user_allow_other in /etc/fuse.conf).
	AllowOther bool `yaml:"allow_other"`

	// ReadaheadBlocks bounds how many pages beyond the target page
	// PageFiller's deposit loop will proactively fill within a single
	// FillPages call. It is naturally bounded by the current
	// datablock's own remaining page count, so values larger than that
	// have no further effect; this just lets a deployment cap it
	// lower. Zero or negative leaves the loop unbounded.
	ReadaheadBlocks int `yaml:"readahead_blocks"`

	// PageCacheSlots is the fixed capacity of the page-cache stand-in.
	PageCacheSlots int `yaml:"page_cache_slots"`

	// FragmentCacheSlots is the fixed capacity of the fragment cache.
	FragmentCacheSlots int `yaml:"fragment_cache_slots"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`
}

// Default returns the default configuration. These defaults exist so
// every field has a sensible zero value before a config file or flags
// are applied, not as a fallback for a missing image path or
// mountpoint — those two are required.
func Default() *Config {
	return &Config{
		ReadaheadBlocks:    8,
		PageCacheSlots:     64,
		FragmentCacheSlots: 4,
		LogLevel:           "warn",
	}
}

// Load loads configuration from the LATTICEFS_CONFIG environment
// variable. There is no fallback if it is unset — the caller passed
// --config instead, or there is no config file at all and flags alone
// configure the mount.
func Load() (*Config, error) {
	path := os.Getenv("LATTICEFS_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("config: LATTICEFS_CONFIG not set; pass --config or set the environment variable")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, merged onto
// Default().
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the configuration is complete enough to mount.
func (c *Config) Validate() error {
	if c.ImagePath == "" {
		return fmt.Errorf("config: image_path is required")
	}
	if c.Mountpoint == "" {
		return fmt.Errorf("config: mountpoint is required")
	}
	if c.PageCacheSlots <= 0 {
		return fmt.Errorf("config: page_cache_slots must be positive, got %d", c.PageCacheSlots)
	}
	if c.FragmentCacheSlots <= 0 {
		return fmt.Errorf("config: fragment_cache_slots must be positive, got %d", c.FragmentCacheSlots)
	}
	return nil
}
