package tlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Request describes one call to the API.
type Request struct {
	Method string
	// Host overrides the client's configured host for this call.
	Host string
	Path string

	// Body is sent as JSON when Form is nil.
	Body any
	// Form takes precedence over Body.
	Form *Form
}

// payload is the encoded request body, reusable across attempts.
type payload struct {
	body        []byte
	contentType string
}

// method returns the HTTP method, GET when unset.
func (r *Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

func (r *Request) encode() (payload, error) {
	if r.Form != nil {
		return payload{body: r.Form.Body, contentType: r.Form.ContentType}, nil
	}
	if r.Body == nil {
		return payload{}, nil
	}
	b, err := json.Marshal(r.Body)
	if err != nil {
		return payload{}, fmt.Errorf("tlab: marshal request body: %w", err)
	}
	return payload{body: b, contentType: "application/json"}, nil
}

// Dispatch sends req (with the fallback policy) and decodes the JSON
// response body into out. out may be nil to discard the body.
func (c *Client) Dispatch(ctx context.Context, req *Request, out any) error {
	start := time.Now()

	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.fail(&RequestError{
			Kind:   KindTransport,
			Method: req.method(),
			URL:    resp.Request.URL.String(),
			Err:    fmt.Errorf("read response body: %w", err),
		})
	}

	if out == nil {
		out = new(json.RawMessage)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return c.fail(&RequestError{
			Kind:   KindDecode,
			Method: req.method(),
			URL:    resp.Request.URL.String(),
			Err:    err,
		})
	}

	c.logger.Debug("tlab request completed",
		zap.String("method", req.method()),
		zap.String("url", resp.Request.URL.String()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func (c *Client) fail(err *RequestError) error {
	c.logger.Error("there was a problem with the request",
		zap.String("kind", string(err.Kind)),
		zap.String("method", err.Method),
		zap.String("url", err.URL),
		zap.Error(err),
	)
	return err
}

// send issues req and returns a 2xx response whose body the caller must
// close. A failure is always a *RequestError.
func (c *Client) send(ctx context.Context, req *Request) (*http.Response, error) {
	method := req.method()

	p, err := req.encode()
	if err != nil {
		return nil, err
	}

	host := normalizeHost(req.Host)
	if host == "" {
		host = c.cfg.Host
	}

	callID := uuid.NewString()
	logger := c.logger.With(
		zap.String("call_id", callID),
		zap.String("method", method),
		zap.String("path", req.Path),
	)

	return c.doWithFallback(ctx, logger, method, host, func(ctx context.Context, host string) (*http.Response, error) {
		return c.attempt(ctx, method, host+req.Path, p)
	})
}

// attempt performs one HTTP round trip. Non-2xx responses are turned
// into a *RequestError and their body is closed.
func (c *Client) attempt(ctx context.Context, method, url string, p payload) (*http.Response, error) {
	var body io.Reader
	if p.body != nil {
		body = bytes.NewReader(p.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, &RequestError{Kind: KindTransport, Method: method, URL: url,
			Err: fmt.Errorf("build HTTP request: %w", err)}
	}
	if p.contentType != "" {
		httpReq.Header.Set("Content-Type", p.contentType)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &RequestError{Kind: KindTransport, Method: method, URL: url, Err: err}
	}
	// Only http.Transport fills this in; custom RoundTrippers may not.
	if resp.Request == nil {
		resp.Request = httpReq
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, &RequestError{
			Kind:       KindStatus,
			Method:     method,
			URL:        url,
			Status:     resp.StatusCode,
			StatusText: statusText(resp),
			Message:    errorMessage(raw),
		}
	}

	return resp, nil
}

// statusText returns the reason phrase the server sent, falling back to
// the standard text for the code.
func statusText(resp *http.Response) string {
	code := fmt.Sprintf("%d ", resp.StatusCode)
	if len(resp.Status) > len(code) && resp.Status[:len(code)] == code {
		return resp.Status[len(code):]
	}
	return http.StatusText(resp.StatusCode)
}

// errorMessage extracts {"message": ...} or FastAPI's {"detail": ...}
// from an error body.
func errorMessage(raw []byte) string {
	var body struct {
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	var detail string
	if err := json.Unmarshal(body.Detail, &detail); err == nil {
		return detail
	}
	return ""
}
