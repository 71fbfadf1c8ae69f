// Package config loads the hub's configuration from a YAML defaults
// file with environment-variable overrides, grounded on
// explorer/indexer/config/config.go's LoadConfig/applyEnvOverrides/
// Validate shape.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete Bridge Hub configuration (spec.md §6).
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Oracles OraclesConfig `yaml:"oracles"`
	Keys    KeysConfig    `yaml:"keys"`
	Poller  PollerConfig  `yaml:"poller"`
	Helius  HeliusConfig  `yaml:"helius"`
	Solana  SolanaConfig  `yaml:"solana"`
	Qubic   QubicConfig   `yaml:"qubic"`
	Metrics MetricsConfig `yaml:"metrics"`
	Redis   RedisConfig   `yaml:"redis"`
}

type ServerConfig struct {
	Port         int    `yaml:"port"`
	Host         string `yaml:"host"`
	RateLimitMax int    `yaml:"rate_limit_max"`
}

// StorageConfig names the Postgres connection URI. The field name
// follows spec.md's SQLITE_DB_FILE key even though this implementation's
// one concrete repository is Postgres-backed; spec.md allows "or other
// storage URI" and the repository contracts don't care which.
type StorageConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

type OraclesConfig struct {
	URLs               []string `yaml:"urls"`
	SignatureThreshold float64  `yaml:"signature_threshold"`
	Count              int      `yaml:"count"`
}

type KeysConfig struct {
	HubKeysFile string `yaml:"hub_keys_file"`
}

type PollerConfig struct {
	IntervalMs       int `yaml:"interval_ms"`
	RequestTimeoutMs int `yaml:"request_timeout_ms"`
	JitterMs         int `yaml:"jitter_ms"`
}

type HeliusConfig struct {
	RPCURL           string `yaml:"rpc_url"`
	PollerEnabled    bool   `yaml:"poller_enabled"`
	PollerIntervalMs int    `yaml:"poller_interval_ms"`
	LookbackSeconds  int    `yaml:"poller_lookback_seconds"`
	PollerTimeoutMs  int    `yaml:"poller_timeout_ms"`
	RetryDelayMs     int    `yaml:"poller_retry_delay_ms"`
	TokenMint        string `yaml:"token_mint"`
}

type SolanaConfig struct {
	WSURL             string `yaml:"ws_url"`
	FallbackWSURL     string `yaml:"fallback_ws_url"`
	ListenerEnabled   bool   `yaml:"listener_enabled"`
	WSReconnectBaseMs int    `yaml:"ws_reconnect_base_ms"`
	WSReconnectMaxMs  int    `yaml:"ws_reconnect_max_ms"`
	WSFallbackRetryMs int    `yaml:"ws_fallback_retry_ms"`
}

type QubicConfig struct {
	RPCURL           string `yaml:"rpc_url"`
	PollerEnabled    bool   `yaml:"poller_enabled"`
	PollerIntervalMs int    `yaml:"poller_interval_ms"`
	PollerTimeoutMs  int    `yaml:"poller_timeout_ms"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// RedisConfig is ambient: it backs internal/respcache's short-TTL
// response cache for the hub's hottest GET endpoints. Enabled defaults
// to false, so an unconfigured hub runs without Redis.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Load reads YAML defaults from path (if it exists; a missing file is
// not an error, since every field can come from the environment) and
// then applies environment-variable overrides (spec.md §6's recognized
// keys).
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	envString(&c.Server.Host, "HOST")
	envInt(&c.Server.Port, "PORT")
	envInt(&c.Server.RateLimitMax, "RATE_LIMIT_MAX")

	envString(&c.Storage.DatabaseURL, "SQLITE_DB_FILE")

	if urls := os.Getenv("ORACLE_URLS"); urls != "" {
		c.Oracles.URLs = splitAndTrim(urls)
	}
	envFloat(&c.Oracles.SignatureThreshold, "ORACLE_SIGNATURE_THRESHOLD")
	envInt(&c.Oracles.Count, "ORACLE_COUNT")

	envString(&c.Keys.HubKeysFile, "HUB_KEYS_FILE")

	envInt(&c.Poller.IntervalMs, "POLLER_INTERVAL_MS")
	envInt(&c.Poller.RequestTimeoutMs, "POLLER_REQUEST_TIMEOUT_MS")
	envInt(&c.Poller.JitterMs, "POLLER_JITTER_MS")

	envString(&c.Helius.RPCURL, "HELIUS_RPC_URL")
	envBool(&c.Helius.PollerEnabled, "HELIUS_POLLER_ENABLED")
	envInt(&c.Helius.PollerIntervalMs, "HELIUS_POLLER_INTERVAL_MS")
	envInt(&c.Helius.LookbackSeconds, "HELIUS_POLLER_LOOKBACK_SECONDS")
	envInt(&c.Helius.PollerTimeoutMs, "HELIUS_POLLER_TIMEOUT_MS")
	envInt(&c.Helius.RetryDelayMs, "HELIUS_POLLER_RETRY_DELAY_MS")
	envString(&c.Helius.TokenMint, "TOKEN_MINT")

	envString(&c.Solana.WSURL, "SOLANA_WS_URL")
	envString(&c.Solana.FallbackWSURL, "SOLANA_FALLBACK_WS_URL")
	envBool(&c.Solana.ListenerEnabled, "SOLANA_LISTENER_ENABLED")
	envInt(&c.Solana.WSReconnectBaseMs, "SOLANA_WS_RECONNECT_BASE_MS")
	envInt(&c.Solana.WSReconnectMaxMs, "SOLANA_WS_RECONNECT_MAX_MS")
	envInt(&c.Solana.WSFallbackRetryMs, "SOLANA_WS_FALLBACK_RETRY_MS")

	envString(&c.Qubic.RPCURL, "QUBIC_RPC_URL")
	envBool(&c.Qubic.PollerEnabled, "QUBIC_POLLER_ENABLED")
	envInt(&c.Qubic.PollerIntervalMs, "QUBIC_POLLER_INTERVAL_MS")
	envInt(&c.Qubic.PollerTimeoutMs, "QUBIC_POLLER_TIMEOUT_MS")

	envBool(&c.Metrics.Enabled, "METRICS_ENABLED")
	envInt(&c.Metrics.Port, "METRICS_PORT")

	envBool(&c.Redis.Enabled, "REDIS_ENABLED")
	envString(&c.Redis.Address, "REDIS_ADDRESS")
	envString(&c.Redis.Password, "REDIS_PASSWORD")
	envInt(&c.Redis.DB, "REDIS_DB")
}

// Validate fills in the spec's documented defaults and rejects
// configurations that can't possibly run (spec.md §6, §9).
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.RateLimitMax <= 0 {
		c.Server.RateLimitMax = 100
	}

	if c.Storage.DatabaseURL == "" {
		return fmt.Errorf("config: storage database url is required")
	}

	if len(c.Oracles.URLs) == 0 {
		return fmt.Errorf("config: at least one oracle url is required")
	}
	if c.Oracles.Count == 0 {
		c.Oracles.Count = len(c.Oracles.URLs)
	}
	if c.Oracles.SignatureThreshold <= 0 {
		c.Oracles.SignatureThreshold = 1
	}

	if c.Keys.HubKeysFile == "" {
		return fmt.Errorf("config: hub keys file is required")
	}

	if c.Poller.IntervalMs <= 0 {
		c.Poller.IntervalMs = 5000
	}
	if c.Poller.RequestTimeoutMs <= 0 {
		c.Poller.RequestTimeoutMs = 3000
	}

	if c.Helius.PollerIntervalMs <= 0 {
		c.Helius.PollerIntervalMs = 10_000
	}
	if c.Helius.LookbackSeconds <= 0 {
		c.Helius.LookbackSeconds = 60
	}
	if c.Helius.PollerTimeoutMs <= 0 {
		c.Helius.PollerTimeoutMs = 5000
	}
	if c.Helius.RetryDelayMs <= 0 {
		c.Helius.RetryDelayMs = 1000
	}

	if c.Qubic.PollerIntervalMs <= 0 {
		c.Qubic.PollerIntervalMs = 10_000
	}
	if c.Qubic.PollerTimeoutMs <= 0 {
		c.Qubic.PollerTimeoutMs = 5000
	}

	if c.Metrics.Enabled && c.Metrics.Port == 0 {
		return fmt.Errorf("config: metrics port is required when metrics are enabled")
	}

	return nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
