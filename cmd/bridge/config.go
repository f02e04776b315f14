package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"tlab-bridge/internal/cache"
	"tlab-bridge/internal/tlab"
)

type Config struct {
	Port            string        `yaml:"port"`
	Host            string        `yaml:"tlab_host"`
	DisableFallback bool          `yaml:"disable_fallback"`
	VersionID       string        `yaml:"version_id"`
	CacheBackend    string        `yaml:"cache_backend"` // "none", "memory" or "redis"
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	RedisAddr       string        `yaml:"redis_addr"`
	RedisDB         int           `yaml:"redis_db"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func defaultConfig() Config {
	return Config{
		Port:            "8080",
		Host:            tlab.DefaultHost,
		VersionID:       "v1",
		CacheBackend:    cache.BackendNone,
		CacheTTL:        30 * time.Second,
		RedisAddr:       "127.0.0.1:6379",
		RequestTimeout:  30 * time.Second,
		MaxBodyBytes:    32 << 20,
		ShutdownTimeout: 10 * time.Second,
	}
}

// LoadConfig layers, lowest first: defaults, the file named by --config
// (or BRIDGE_CONFIG), environment variables, explicit flags. The file is
// YAML, or JSON with comments when it ends in .json or .jsonc.
func LoadConfig(args []string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig()

	fs := pflag.NewFlagSet("bridge", pflag.ContinueOnError)
	configPath := fs.String("config", getenv("BRIDGE_CONFIG"), "path to a YAML config file")

	var flags Config
	fs.StringVar(&flags.Port, "port", cfg.Port, "listen port")
	fs.StringVar(&flags.Host, "host", cfg.Host, "Transformer Lab API host")
	fs.BoolVar(&flags.DisableFallback, "disable-fallback", false, "never retry on "+tlab.DefaultFallbackHost)
	fs.StringVar(&flags.VersionID, "version-id", cfg.VersionID, "cache key version")
	fs.StringVar(&flags.CacheBackend, "cache-backend", cfg.CacheBackend, "response cache: none, memory or redis")
	fs.DurationVar(&flags.CacheTTL, "cache-ttl", cfg.CacheTTL, "response cache TTL")
	fs.StringVar(&flags.RedisAddr, "redis-addr", cfg.RedisAddr, "redis address")
	fs.IntVar(&flags.RedisDB, "redis-db", cfg.RedisDB, "redis database")
	fs.DurationVar(&flags.RequestTimeout, "request-timeout", cfg.RequestTimeout, "timeout for non-streaming routes")
	fs.Int64Var(&flags.MaxBodyBytes, "max-body-bytes", cfg.MaxBodyBytes, "request body limit")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *configPath != "" {
		b, err := os.ReadFile(*configPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		switch strings.ToLower(filepath.Ext(*configPath)) {
		case ".json", ".jsonc":
			// Plain JSON is valid YAML once comments are gone.
			b = jsonc.ToJSON(b)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", *configPath, err)
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}

	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = flags.Port
		case "host":
			cfg.Host = flags.Host
		case "disable-fallback":
			cfg.DisableFallback = flags.DisableFallback
		case "version-id":
			cfg.VersionID = flags.VersionID
		case "cache-backend":
			cfg.CacheBackend = flags.CacheBackend
		case "cache-ttl":
			cfg.CacheTTL = flags.CacheTTL
		case "redis-addr":
			cfg.RedisAddr = flags.RedisAddr
		case "redis-db":
			cfg.RedisDB = flags.RedisDB
		case "request-timeout":
			cfg.RequestTimeout = flags.RequestTimeout
		case "max-body-bytes":
			cfg.MaxBodyBytes = flags.MaxBodyBytes
		}
	})

	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	cfg.Port = envOr(getenv, "PORT", cfg.Port)
	cfg.Host = envOr(getenv, "TLAB_HOST", cfg.Host)
	cfg.VersionID = envOr(getenv, "BRIDGE_VERSION", cfg.VersionID)
	cfg.CacheBackend = envOr(getenv, "CACHE_BACKEND", cfg.CacheBackend)
	cfg.RedisAddr = envOr(getenv, "REDIS_ADDR", cfg.RedisAddr)

	if v := getenv("TLAB_DISABLE_FALLBACK"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("TLAB_DISABLE_FALLBACK: %w", err)
		}
		cfg.DisableFallback = b
	}
	if v := getenv("CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CACHE_TTL: %w", err)
		}
		cfg.CacheTTL = d
	}
	if v := getenv("REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}
	return nil
}

func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	switch c.CacheBackend {
	case cache.BackendNone, cache.BackendMemory, cache.BackendRedis:
	default:
		return fmt.Errorf("unknown cache backend %q", c.CacheBackend)
	}
	if c.CacheBackend != cache.BackendNone && c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive when caching is on")
	}
	return nil
}

// envOr returns the value of the environment variable key or def if not set.
func envOr(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}
