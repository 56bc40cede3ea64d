package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oscelab/simcore/go/internal/session"
)

// Config is the optional YAML configuration file. Everything has a
// default; env variables override the file.
type Config struct {
	Session struct {
		AllowedDurationsMin []int    `yaml:"allowed_durations_min"`
		DefaultDurationMin  int      `yaml:"default_duration_min"`
		ToleranceWindowSec  int      `yaml:"tolerance_window_sec"`
		ToleranceSweepSec   int      `yaml:"tolerance_sweep_sec"`
		IdleTTLSec          int      `yaml:"idle_ttl_sec"`
		RequiredRoles       []string `yaml:"required_roles"`
	} `yaml:"session"`
	StationFixture string `yaml:"station_fixture"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// sessionConfig merges the file config (if any) onto the room defaults.
func sessionConfig(file *Config) session.Config {
	cfg := session.DefaultConfig()
	if file == nil {
		return cfg
	}

	if len(file.Session.AllowedDurationsMin) > 0 {
		cfg.AllowedDurationsMin = file.Session.AllowedDurationsMin
	}
	if file.Session.DefaultDurationMin > 0 {
		cfg.DefaultDurationMin = file.Session.DefaultDurationMin
	}
	if file.Session.ToleranceWindowSec > 0 {
		cfg.ToleranceWindow = time.Duration(file.Session.ToleranceWindowSec) * time.Second
	}
	if file.Session.ToleranceSweepSec > 0 {
		cfg.ToleranceSweep = time.Duration(file.Session.ToleranceSweepSec) * time.Second
	}
	if file.Session.IdleTTLSec > 0 {
		cfg.IdleTTL = time.Duration(file.Session.IdleTTLSec) * time.Second
	}
	if len(file.Session.RequiredRoles) > 0 {
		required := make(map[session.Role]bool, len(file.Session.RequiredRoles))
		for _, r := range file.Session.RequiredRoles {
			role := session.Role(r)
			if role.Valid() {
				required[role] = true
			}
		}
		if len(required) > 0 {
			cfg.RequiredRoles = required
		}
	}
	return cfg
}
