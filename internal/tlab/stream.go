package tlab

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"tlab-bridge/internal/metrics"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "data: [DONE]"
)

// PartialFunc observes the accumulated output after every delta frame.
// It may be called zero or more times; the text never shrinks.
type PartialFunc func(accumulated string)

// FinalResponse is the terminal summary frame ("done": true).
type FinalResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Message   struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done               bool  `json:"done"`
	TotalDuration      int64 `json:"total_duration"`
	LoadDuration       int64 `json:"load_duration"`
	PromptEvalCount    int   `json:"prompt_eval_count"`
	PromptEvalDuration int64 `json:"prompt_eval_duration"`
	EvalCount          int   `json:"eval_count"`
	EvalDuration       int64 `json:"eval_duration"`

	Raw json.RawMessage `json:"-"`
}

// Completion is the result of decoding one chat stream.
type Completion struct {
	Text string
	// Final is nil when the server sent no terminal frame.
	Final *FinalResponse
	// Deltas counts the delta frames applied to Text.
	Deltas      int
	FrameErrors []*FrameParseError
}

// deltaFrame is one "data:" payload from the chat stream.
type deltaFrame struct {
	Done    bool `json:"done"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Decoder turns a chat completion body into a Completion.
type Decoder struct {
	logger *zap.Logger
}

func NewDecoder(logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{logger: logger}
}

// Decode reads r until it ends. It fails only when r ends without
// delivering any data, or with a read error other than cancellation.
// Malformed frames are skipped.
func (d *Decoder) Decode(r io.Reader, onPartial PartialFunc) (*Completion, error) {
	out := &Completion{}
	var text strings.Builder

	reader := bufio.NewReader(r)
	received := false

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			received = true
			d.frame(normalizeLine(line), out, &text, onPartial)
		}

		if err == nil {
			continue
		}
		if !endOfStream(err) {
			d.logger.Error("chat stream read failed",
				zap.Bool("received_data", received),
				zap.Int("deltas", out.Deltas),
				zap.Error(err),
			)
			return nil, &StreamError{Err: err}
		}
		break
	}

	if !received {
		return nil, &StreamError{Err: ErrNoData}
	}

	out.Text = text.String()
	d.logger.Debug("chat stream completed",
		zap.Int("deltas", out.Deltas),
		zap.Int("frame_errors", len(out.FrameErrors)),
		zap.Bool("final", out.Final != nil),
	)
	return out, nil
}

// frame applies one line of the stream to out.
func (d *Decoder) frame(line string, out *Completion, text *strings.Builder, onPartial PartialFunc) {
	if strings.HasPrefix(line, doneSentinel) {
		metrics.StreamFramesTotal.WithLabelValues("sentinel").Inc()
		return
	}
	if !strings.HasPrefix(line, dataPrefix) {
		return
	}
	payload := []byte(line[len(dataPrefix):])

	var f deltaFrame
	if err := json.Unmarshal(payload, &f); err != nil {
		metrics.StreamFramesTotal.WithLabelValues("malformed").Inc()
		perr := &FrameParseError{Frame: line, Err: err}
		out.FrameErrors = append(out.FrameErrors, perr)
		d.logger.Warn("error parsing JSON", zap.Error(perr))
		return
	}

	if f.Done {
		final := &FinalResponse{Raw: json.RawMessage(bytes.Clone(payload))}
		if err := json.Unmarshal(payload, final); err != nil {
			// Terminal fields of an unexpected type; keep the raw frame.
			final = &FinalResponse{Done: true, Raw: final.Raw}
		}
		out.Final = final
		metrics.StreamFramesTotal.WithLabelValues("terminal").Inc()
		return
	}

	if len(f.Choices) > 0 {
		text.WriteString(f.Choices[0].Delta.Content)
	}
	out.Deltas++
	metrics.StreamFramesTotal.WithLabelValues("delta").Inc()

	if onPartial != nil {
		onPartial(text.String())
	}
}

// normalizeLine strips the line terminator and repairs invalid UTF-8.
// "\n" never occurs inside a multi-byte sequence, so decoding per line
// is equivalent to decoding the whole stream.
func normalizeLine(line []byte) string {
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !utf8.Valid(line) {
		return strings.ToValidUTF8(string(line), "\uFFFD")
	}
	return string(line)
}

// endOfStream reports whether a read error means the stream is over
// rather than broken. Closing the body or cancelling the request is how
// a caller aborts a decode.
func endOfStream(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
