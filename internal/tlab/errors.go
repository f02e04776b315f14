package tlab

import (
	"errors"
	"fmt"
)

// ErrNoData is wrapped by a StreamError when the stream closed before
// delivering a single byte.
var ErrNoData = errors.New("no data received")

// ErrorKind classifies a RequestError.
type ErrorKind string

const (
	KindTransport ErrorKind = "transport" // no response (connection refused, reset, ...)
	KindStatus    ErrorKind = "status"    // non-2xx response
	KindDecode    ErrorKind = "decode"    // 2xx response with an unparseable JSON body
)

// RequestError is returned by Dispatch and Chat for any failure of the
// request itself.
type RequestError struct {
	Kind   ErrorKind
	Method string
	URL    string

	// Set for KindStatus.
	Status     int
	StatusText string
	// Message is the server's own error text, when the body carried one.
	Message string

	Err error
}

func (e *RequestError) Error() string {
	switch e.Kind {
	case KindStatus:
		msg := fmt.Sprintf("tlab: %s %s: HTTP error status: %d, status text: %s",
			e.Method, e.URL, e.Status, e.StatusText)
		if e.Message != "" {
			msg += ": " + e.Message
		}
		return msg
	case KindDecode:
		return fmt.Sprintf("tlab: %s %s: decode response: %v", e.Method, e.URL, e.Err)
	default:
		return fmt.Sprintf("tlab: %s %s: %v", e.Method, e.URL, e.Err)
	}
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// StreamError is returned by Decode when the stream could not produce a
// completion at all.
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string {
	return "tlab: stream: " + e.Err.Error()
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// FrameParseError describes one data frame that could not be parsed.
// It never aborts a decode; it is logged and kept on the Completion.
type FrameParseError struct {
	Frame string
	Err   error
}

func (e *FrameParseError) Error() string {
	return fmt.Sprintf("tlab: parse frame %q: %v", truncate(e.Frame, 120), e.Err)
}

func (e *FrameParseError) Unwrap() error {
	return e.Err
}

// truncate limits string length for logging
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
