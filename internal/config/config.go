// SPDX-FileCopyrightText: 2026 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

// Package config holds the agent configuration, read from an optional
// YAML file and then overridden by command-line flags.
//
// Example file:
//
//	seed_file: ~/.config/blakesig/seed.json
//	agent_path: /run/user/1000/blakesig.sock
//	indices: [0, 1, 5]
//	idle_lock: 10m
//	sign_rate: 2
//	sign_burst: 5
//	metrics_addr: 127.0.0.1:9477
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	SeedFile     string        `yaml:"seed_file"`
	AgentPath    string        `yaml:"agent_path"`
	Indices      []uint32      `yaml:"indices"`
	IdleLock     time.Duration `yaml:"idle_lock"`
	SignRate     float64       `yaml:"sign_rate"`
	SignBurst    int           `yaml:"sign_burst"`
	MetricsAddr  string        `yaml:"metrics_addr"`
	PinentryPath string        `yaml:"pinentry"`
}

// Default returns the configuration used when no file is given. An
// IdleLock of zero keeps keys unlocked until the agent exits; a
// SignRate of zero disables rate limiting.
func Default() *Config {
	return &Config{
		Indices:   []uint32{0},
		IdleLock:  15 * time.Minute,
		SignRate:  0,
		SignBurst: 1,
	}
}

// Load reads path on top of the defaults. An empty path gives the
// defaults. The result is validated, but SeedFile may still be empty
// since flags can fill it in.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	cfg.SeedFile = ExpandHome(cfg.SeedFile)
	cfg.AgentPath = ExpandHome(cfg.AgentPath)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Indices) == 0 {
		return errors.New("at least one account index is required")
	}
	seen := make(map[uint32]bool, len(c.Indices))
	for _, idx := range c.Indices {
		if seen[idx] {
			return fmt.Errorf("account index %d listed twice", idx)
		}
		seen[idx] = true
	}
	if c.IdleLock < 0 {
		return fmt.Errorf("idle_lock must not be negative, got %s", c.IdleLock)
	}
	if c.SignRate < 0 {
		return fmt.Errorf("sign_rate must not be negative, got %g", c.SignRate)
	}
	if c.SignRate > 0 && c.SignBurst < 1 {
		return fmt.Errorf("sign_burst must be at least 1 when sign_rate is set, got %d", c.SignBurst)
	}
	return nil
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
