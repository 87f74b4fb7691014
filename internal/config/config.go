// Package config loads server configuration from environment variables,
// with sensible defaults so the server runs unconfigured.
//
// Configuration sources, in order of precedence:
//  1. Environment variables
//  2. Default values
//
// Example:
//
//	cfg := config.Load()
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
package config

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cast"
)

// Default configuration values.
const (
	DefaultHost     = "0.0.0.0"
	DefaultPort     = 9999
	DefaultLogLevel = "info"
)

// Config holds every tunable the server reads at startup.
type Config struct {
	Host string // REDIS_HOST: address to bind to
	Port int    // REDIS_PORT: TCP port to listen on

	Shards   int    // MINIDIS_SHARDS: number of keyspace shards
	LogLevel string // MINIDIS_LOG_LEVEL: debug, info, warn, error
	LogFile  string // MINIDIS_LOG_FILE: path to log to; empty means stderr
}

// Load builds a Config from environment variables, falling back to
// defaults for anything unset or unparseable.
func Load() *Config {
	cfg := &Config{
		Host:     DefaultHost,
		Port:     DefaultPort,
		Shards:   2 * runtime.GOMAXPROCS(0),
		LogLevel: DefaultLogLevel,
	}

	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if p, err := cast.ToIntE(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("MINIDIS_SHARDS"); v != "" {
		if n, err := cast.ToIntE(v); err == nil {
			cfg.Shards = n
		}
	}
	if v := os.Getenv("MINIDIS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MINIDIS_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}

	return cfg
}

// Address returns the host:port pair suitable for gnet's listen address,
// e.g. "tcp://0.0.0.0:9999".
func (c *Config) Address() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

// Validate reports the first invalid field found, if any.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Shards < 1 {
		return fmt.Errorf("shards must be positive: %d", c.Shards)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	return nil
}
