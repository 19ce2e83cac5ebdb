package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config lists the tunable parameters for the recorder daemon.
type Config struct {
	DiscoveryPort int
	Partition     string
	DatabasePath  string
	HTTPPort      int
	LogLevel      string
}

const (
	defaultDiscoveryPort = 11319
	defaultPartition     = "/default"
	defaultDatabasePath  = "data/recorder.db"
	defaultHTTPPort      = 8090
	defaultLogLevel      = "info"
)

// Load derives configuration values from environment variables, falling back to defaults.
func Load() (Config, error) {
	cfg := Config{
		DiscoveryPort: defaultDiscoveryPort,
		Partition:     defaultPartition,
		DatabasePath:  defaultDatabasePath,
		HTTPPort:      defaultHTTPPort,
		LogLevel:      defaultLogLevel,
	}

	if v := os.Getenv("RECORDER_DISCOVERY_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RECORDER_DISCOVERY_PORT: %w", err)
		}
		cfg.DiscoveryPort = port
	}

	if v := os.Getenv("RECORDER_PARTITION"); v != "" {
		cfg.Partition = v
	}

	if v := os.Getenv("RECORDER_DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}

	if v := os.Getenv("RECORDER_HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RECORDER_HTTP_PORT: %w", err)
		}
		cfg.HTTPPort = port
	}

	if v := os.Getenv("RECORDER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}
