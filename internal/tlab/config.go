// Package tlab is a client for the Transformer Lab API.
//
// Every call goes through one dispatcher: a request to the default host
// (http://localhost:8000) that fails is sent once more to
// http://127.0.0.1:8000. Chat completions are streamed as "data:" frames
// and decoded into the growing output text.
package tlab

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultHost is where a local Transformer Lab API listens.
	DefaultHost = "http://localhost:8000"
	// DefaultFallbackHost is tried once when DefaultHost fails. Some
	// sandboxed runtimes cannot resolve "localhost".
	DefaultFallbackHost = "http://127.0.0.1:8000"
)

type Config struct {
	// Host used when a Request leaves Host empty (default: DefaultHost).
	Host string

	// DefaultHost is the only host that is ever retried.
	DefaultHost string
	// FallbackHost replaces DefaultHost on the single retry. Use
	// DisableFallback to turn the retry off.
	FallbackHost    string
	DisableFallback bool

	// Custom HTTP client (for testing or special configs)
	HTTPClient *http.Client
}

// Validate checks the hosts are usable URLs.
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("Host is required")
	}
	for _, h := range []string{c.Host, c.DefaultHost, c.FallbackHost} {
		if h == "" {
			continue
		}
		if !strings.HasPrefix(h, "http://") && !strings.HasPrefix(h, "https://") {
			return fmt.Errorf("host %q must start with http:// or https://", h)
		}
	}
	return nil
}

// WithDefaults returns a copy of Config with defaults applied.
func (c *Config) WithDefaults() Config {
	cfg := *c

	if cfg.DefaultHost == "" {
		cfg.DefaultHost = DefaultHost
	}
	if cfg.FallbackHost == "" && !cfg.DisableFallback {
		cfg.FallbackHost = DefaultFallbackHost
	}
	if cfg.DisableFallback {
		cfg.FallbackHost = ""
	}
	if cfg.Host == "" {
		cfg.Host = cfg.DefaultHost
	}

	// Trim trailing slashes so paths can be appended.
	cfg.Host = normalizeHost(cfg.Host)
	cfg.DefaultHost = normalizeHost(cfg.DefaultHost)
	cfg.FallbackHost = normalizeHost(cfg.FallbackHost)

	return cfg
}

func normalizeHost(h string) string {
	return strings.TrimRight(strings.TrimSpace(h), "/")
}

// Client talks to one Transformer Lab API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
	decoder    *Decoder
}

// NewClient creates a new client with the given configuration.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("tlab")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: defaultTransport(),
		}
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger,
		decoder:    NewDecoder(logger),
	}, nil
}

// Host returns the host used for requests that do not name one.
func (c *Client) Host() string {
	return c.cfg.Host
}

// defaultTransport dials a fresh connection per request. No overall
// timeout is set: a call is bounded by its context only.
func defaultTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: 10 * time.Second,
		}).DialContext,
		DisableKeepAlives:     true,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Close releases resources held by the client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
