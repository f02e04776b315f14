package tlab

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"tlab-bridge/internal/metrics"
)

// hostsFor returns the hosts one call may use, in order. Only the
// configured default host gets a second entry.
func (c *Client) hostsFor(host string) []string {
	if host == c.cfg.DefaultHost && c.cfg.FallbackHost != "" && c.cfg.FallbackHost != host {
		return []string{host, c.cfg.FallbackHost}
	}
	return []string{host}
}

// doWithFallback runs do against host and, if host is the default host
// and the attempt fails, exactly once more against the fallback host.
//   - A failure on the first of two attempts is expected and only
//     logged at debug level.
//   - A failure on the last attempt is logged and returned.
//   - Context cancellation ends the call at once, never retried, and is
//     logged like any other final failure.
func (c *Client) doWithFallback(
	ctx context.Context,
	logger *zap.Logger,
	method string,
	host string,
	do func(ctx context.Context, host string) (*http.Response, error),
) (*http.Response, error) {
	hosts := c.hostsFor(host)

	var (
		lastErr  error
		lastHost string
		attempts int
	)
	for i, h := range hosts {
		lastHost = h
		if err := ctx.Err(); err != nil {
			lastErr = &RequestError{Kind: KindTransport, Method: method, URL: h, Err: err}
			break
		}

		attempts++
		start := time.Now()
		resp, err := do(ctx, h)
		duration := time.Since(start)

		if err == nil {
			metrics.UpstreamAttemptsTotal.WithLabelValues(method, "ok").Inc()
			logger.Debug("tlab upstream request",
				zap.String("host", h),
				zap.Int("attempt", i+1),
				zap.Int("status", resp.StatusCode),
				zap.Duration("duration", duration),
			)
			return resp, nil
		}

		lastErr = err
		outcome := string(KindTransport)
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			outcome = string(reqErr.Kind)
		}
		metrics.UpstreamAttemptsTotal.WithLabelValues(method, outcome).Inc()

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}

		if i < len(hosts)-1 {
			metrics.FallbacksTotal.Inc()
			logger.Debug("default host failed, retrying on fallback host",
				zap.String("host", h),
				zap.String("fallback_host", hosts[i+1]),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		}
	}

	logger.Error("there was a problem with the request",
		zap.String("host", lastHost),
		zap.Int("attempts", attempts),
		zap.Error(lastErr),
	)
	return nil, lastErr
}
