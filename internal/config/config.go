package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creastat/infra/telemetry"
	"github.com/creastat/multicast/core"
)

const (
	defaultListenAddr = ":8080"
	defaultLogLevel   = "info"
	defaultSeparator  = "\n"

	envListenAddr   = "MULTICAST_LISTEN_ADDR"
	envTargets      = "MULTICAST_TARGETS"
	envParallel     = "MULTICAST_PARALLEL"
	envStreaming    = "MULTICAST_STREAMING"
	envPoolSize     = "MULTICAST_POOL_SIZE"
	envShutdownWait = "MULTICAST_SHUTDOWN_WAIT"
	envLogLevel     = "MULTICAST_LOG_LEVEL"
	envSeparator    = "MULTICAST_SEPARATOR"
)

// Config holds service configuration loaded from environment variables.
type Config struct {
	ListenAddr   string
	Targets      []string // Branch URLs, one HTTP forwarder each
	Parallel     bool
	Streaming    bool
	PoolSize     int
	ShutdownWait time.Duration
	LogLevel     string
	Separator    string // Joins branch responses
}

// Load reads configuration from environment variables with sensible defaults.
// Malformed numeric, boolean or duration values are reported as errors.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:   defaultListenAddr,
		PoolSize:     core.DefaultPoolSize,
		ShutdownWait: core.DefaultShutdownWait,
		LogLevel:     defaultLogLevel,
		Separator:    defaultSeparator,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envTargets); v != "" {
		cfg.Targets = parseList(v)
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v, ok := os.LookupEnv(envSeparator); ok {
		cfg.Separator = v
	}

	var err error
	if v := os.Getenv(envParallel); v != "" {
		if cfg.Parallel, err = strconv.ParseBool(v); err != nil {
			return Config{}, fmt.Errorf("%s: %w", envParallel, err)
		}
	}
	if v := os.Getenv(envStreaming); v != "" {
		if cfg.Streaming, err = strconv.ParseBool(v); err != nil {
			return Config{}, fmt.Errorf("%s: %w", envStreaming, err)
		}
	}
	if v := os.Getenv(envPoolSize); v != "" {
		if cfg.PoolSize, err = strconv.Atoi(v); err != nil {
			return Config{}, fmt.Errorf("%s: %w", envPoolSize, err)
		}
	}
	if v := os.Getenv(envShutdownWait); v != "" {
		if cfg.ShutdownWait, err = time.ParseDuration(v); err != nil {
			return Config{}, fmt.Errorf("%s: %w", envShutdownWait, err)
		}
	}

	return cfg, nil
}

// parseList splits a comma separated list, dropping blank entries
func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLogLevel(s string) string {
	switch level := strings.ToLower(s); level {
	case "trace", "debug", "info", "warn", "error":
		return level
	default:
		return defaultLogLevel
	}
}

// NewLogger creates the service logger at the configured level.
func NewLogger(level string) telemetry.Logger {
	return telemetry.New(telemetry.Config{Level: level})
}
