// Package config loads the control plane's environment-driven
// configuration, falling back to sane defaults for local development.
package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the control plane needs at startup.
type Config struct {
	DBPath      string
	Port        int
	CORSOrigins string

	IngestToken string

	SpotCacheTTL    time.Duration
	HistoryCacheTTL time.Duration
	UpstreamTimeout time.Duration
	UpstreamURL     string

	NATSUrl string

	MaxWSClients int
}

// Load reads flags and environment variables (a ".env" file in the
// working directory is loaded first, if present, so local runs don't
// need every variable exported by hand).
func Load() *Config {
	_ = godotenv.Load()

	c := &Config{}

	flag.StringVar(&c.DBPath, "db-path", envStr("DB_PATH", "./data/controlplane.db"), "SQLite store location")
	flag.IntVar(&c.Port, "port", envInt("PORT", 8090), "HTTP listen port")
	flag.StringVar(&c.CORSOrigins, "cors-origins", envStr("CORS_ORIGINS", "*"), "'*' or comma-separated allowed origins")
	flag.StringVar(&c.IngestToken, "ingest-token", envStr("INGEST_TOKEN", ""), "shared secret required on /ingest/* if set")
	flag.DurationVar(&c.SpotCacheTTL, "spot-cache-ttl", envDuration("SPOT_CACHE_TTL", 20*time.Second), "upstream spot price cache TTL")
	flag.DurationVar(&c.HistoryCacheTTL, "history-cache-ttl", envDuration("HISTORY_CACHE_TTL", 120*time.Second), "upstream history cache TTL")
	flag.DurationVar(&c.UpstreamTimeout, "upstream-timeout", envDuration("UPSTREAM_TIMEOUT", 12*time.Second), "upstream market-data HTTP timeout (not passed to internal/market, which uses a fixed 12s timeout)")
	flag.StringVar(&c.UpstreamURL, "upstream-url", envStr("UPSTREAM_URL", ""), "base URL of an upstream market-data API (empty disables pass-through)")
	flag.StringVar(&c.NATSUrl, "nats-url", envStr("NATS_URL", ""), "NATS server URL for optional event fan-out (empty disables)")
	flag.IntVar(&c.MaxWSClients, "max-ws-clients", envInt("MAX_WS_CLIENTS", 500), "max concurrent dashboard WebSocket connections")

	if flag.Parsed() {
		return c
	}
	flag.Parse()
	return c
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
