// Package config loads exchange configuration from environment variables,
// optionally seeded from a .env file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime-tunable knob the exchange needs. Fields are
// grouped the way the components consume them, not the way the env vars
// happen to be named.
type Config struct {
	// Wire is the TCP listener the FIX sessions connect to.
	Wire WireConfig
	// Admin is the thin read-only HTTP/JSON surface.
	Admin AdminConfig
	// Persistence controls the optional order/execution store.
	Persistence PersistenceConfig
	// LogFile is where structured logs are additionally written, besides
	// stdout. Empty disables file logging.
	LogFile string
	// Symbols is the fixed trading whitelist.
	Symbols []string
}

type WireConfig struct {
	ListenAddr  string
	ReadTimeout time.Duration
}

type AdminConfig struct {
	ListenAddr string
}

type PersistenceConfig struct {
	// Path to the pebble store directory. Empty means no persistence
	// (NoopSink) — the core must behave identically either way.
	Path string
}

// Default returns the configuration the exchange boots with absent any
// environment overrides.
func Default() Config {
	return Config{
		Wire: WireConfig{
			ListenAddr:  "127.0.0.1:9878",
			ReadTimeout: 5 * time.Second,
		},
		Admin: AdminConfig{
			ListenAddr: ":8080",
		},
		Persistence: PersistenceConfig{
			Path: "",
		},
		LogFile: "data/exchange.log",
		Symbols: []string{"AAPL", "GOOGL", "MSFT", "AMZN", "TSLA"},
	}
}

// LoadFromEnv loads a .env file (if present) and layers environment
// variables over Default(). Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("EXCHANGE_LISTEN_ADDR"); v != "" {
		cfg.Wire.ListenAddr = v
	}
	if v := os.Getenv("EXCHANGE_READ_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Wire.ReadTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("ADMIN_LISTEN_ADDR"); v != "" {
		cfg.Admin.ListenAddr = v
	}
	if v := os.Getenv("PERSISTENCE_PATH"); v != "" {
		cfg.Persistence.Path = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("EXCHANGE_SYMBOLS"); v != "" {
		cfg.Symbols = splitAndTrim(v)
	}

	return cfg
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
