package tlab

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// chunkReader hands out one chunk per Read, then err (io.EOF if nil).
type chunkReader struct {
	chunks []string
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if r.chunks[0] == "" {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func delta(content string) string {
	return `data: {"choices":[{"delta":{"content":"` + content + `"}}]}` + "\n"
}

func decode(t *testing.T, chunks ...string) (*Completion, []string, error) {
	t.Helper()
	var partials []string
	d := NewDecoder(zaptest.NewLogger(t))
	out, err := d.Decode(&chunkReader{chunks: chunks}, func(s string) {
		partials = append(partials, s)
	})
	return out, partials, err
}

func TestDecodeAccumulatesDeltas(t *testing.T) {
	t.Parallel()

	out, partials, err := decode(t,
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`+"\n",
		`data: {"choices":[{"delta":{"content":"lo"}}]}`+"\n",
		"data: [DONE]\n",
	)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Text != "Hello" {
		t.Fatalf("expected Hello, got %q", out.Text)
	}
	if diff := cmp.Diff([]string{"Hel", "Hello"}, partials); diff != "" {
		t.Fatalf("partials mismatch (-want +got):\n%s", diff)
	}
	if out.Deltas != 2 {
		t.Fatalf("expected 2 deltas, got %d", out.Deltas)
	}
}

func TestDecodePartialsAreMonotonic(t *testing.T) {
	t.Parallel()

	_, partials, err := decode(t,
		delta("a")+delta("")+delta("bc"),
		"event: ping\n",
		delta("d")+"data: [DONE]\n",
	)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "a", "abc", "abcd"}, partials); diff != "" {
		t.Fatalf("partials mismatch (-want +got):\n%s", diff)
	}
	for i := 1; i < len(partials); i++ {
		if !strings.HasPrefix(partials[i], partials[i-1]) {
			t.Fatalf("partial %d (%q) does not extend %q", i, partials[i], partials[i-1])
		}
	}
}

func TestDecodeToleratesMalformedFrames(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	d := NewDecoder(zap.New(core))

	out, err := d.Decode(&chunkReader{chunks: []string{
		delta("x"),
		"data: {not json\n",
		delta("y"),
	}}, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Text != "xy" {
		t.Fatalf("expected xy, got %q", out.Text)
	}
	if len(out.FrameErrors) != 1 || out.FrameErrors[0].Frame != "data: {not json" {
		t.Fatalf("unexpected frame errors: %v", out.FrameErrors)
	}
	if logs.FilterMessage("error parsing JSON").Len() != 1 {
		t.Fatalf("expected malformed frame to be logged")
	}
}

func TestDecodeEmptyStreamFails(t *testing.T) {
	t.Parallel()

	called := false
	d := NewDecoder(zaptest.NewLogger(t))
	_, err := d.Decode(&chunkReader{}, func(string) { called = true })

	var streamErr *StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("expected *StreamError, got %T: %v", err, err)
	}
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if called {
		t.Fatalf("onPartial must not be called for an empty stream")
	}
}

func TestDecodeUnrecognizedDataCompletesEmpty(t *testing.T) {
	t.Parallel()

	out, partials, err := decode(t, "hello\n\n: comment\n")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Text != "" || len(partials) != 0 {
		t.Fatalf("expected empty output, got %q / %v", out.Text, partials)
	}
}

func TestDecodeSentinelDoesNotEndStream(t *testing.T) {
	t.Parallel()

	out, _, err := decode(t, delta("a"), "data: [DONE]\n", delta("b"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Text != "ab" {
		t.Fatalf("reading must continue past the sentinel, got %q", out.Text)
	}
}

func TestDecodeTerminalFrame(t *testing.T) {
	t.Parallel()

	out, partials, err := decode(t,
		delta("hi"),
		`data: {"done":true,"model":"llama","eval_count":7,"message":{"role":"assistant","content":"hi"}}`+"\n",
		delta("!"),
		"data: [DONE]\n",
	)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Final == nil {
		t.Fatalf("expected terminal frame to be recorded")
	}
	if out.Final.Model != "llama" || out.Final.EvalCount != 7 || out.Final.Message.Content != "hi" {
		t.Fatalf("unexpected final response: %+v", out.Final)
	}
	if out.Text != "hi!" {
		t.Fatalf("terminal frame must not end reading, got %q", out.Text)
	}
	if diff := cmp.Diff([]string{"hi", "hi!"}, partials); diff != "" {
		t.Fatalf("terminal frame must not notify (-want +got):\n%s", diff)
	}
}

func TestDecodeRejoinsFramesAcrossChunks(t *testing.T) {
	t.Parallel()

	frame := delta("split")
	out, _, err := decode(t, frame[:17], frame[17:40], frame[40:])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Text != "split" || len(out.FrameErrors) != 0 {
		t.Fatalf("expected rejoined frame, got %q (%v)", out.Text, out.FrameErrors)
	}
}

func TestDecodeHandlesCRLFAndUnterminatedLastLine(t *testing.T) {
	t.Parallel()

	last := strings.TrimSuffix(delta("b"), "\n")
	out, _, err := decode(t, strings.Replace(delta("a"), "\n", "\r\n", 1), last)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Text != "ab" {
		t.Fatalf("expected ab, got %q", out.Text)
	}
}

func TestDecodeMissingContent(t *testing.T) {
	t.Parallel()

	out, partials, err := decode(t,
		`data: {"choices":[{"delta":{"role":"assistant"}}]}`+"\n",
		delta("x"),
	)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Text != "x" {
		t.Fatalf("expected x, got %q", out.Text)
	}
	if diff := cmp.Diff([]string{"", "x"}, partials); diff != "" {
		t.Fatalf("partials mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeMultiByteSplitAcrossChunks(t *testing.T) {
	t.Parallel()

	frame := delta("héllo")
	i := strings.Index(frame, "é") + 1 // inside the two-byte sequence
	out, _, err := decode(t, frame[:i], frame[i:])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Text != "héllo" {
		t.Fatalf("expected héllo, got %q", out.Text)
	}
}

func TestDecodeCancellationEndsStream(t *testing.T) {
	t.Parallel()

	d := NewDecoder(zaptest.NewLogger(t))

	out, err := d.Decode(&chunkReader{chunks: []string{delta("par")}, err: context.Canceled}, nil)
	if err != nil {
		t.Fatalf("cancel after data should complete, got %v", err)
	}
	if out.Text != "par" {
		t.Fatalf("expected partial text, got %q", out.Text)
	}

	_, err = d.Decode(&chunkReader{err: context.Canceled}, nil)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("cancel before data should fail with ErrNoData, got %v", err)
	}
}

func TestDecodeReadError(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset by peer")
	d := NewDecoder(zaptest.NewLogger(t))

	_, err := d.Decode(&chunkReader{chunks: []string{delta("a")}, err: boom}, nil)

	var streamErr *StreamError
	if !errors.As(err, &streamErr) || !errors.Is(err, boom) {
		t.Fatalf("expected StreamError wrapping read error, got %v", err)
	}
}

func TestDecodeCallsDoNotShareState(t *testing.T) {
	t.Parallel()

	d := NewDecoder(zaptest.NewLogger(t))

	first, err := d.Decode(&chunkReader{chunks: []string{delta("one")}}, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	second, err := d.Decode(&chunkReader{chunks: []string{delta("two")}}, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if first.Text != "one" || second.Text != "two" {
		t.Fatalf("decode calls leaked state: %q, %q", first.Text, second.Text)
	}
}

func TestDecodeLargeFrame(t *testing.T) {
	t.Parallel()

	big := strings.Repeat("a", 5<<20)
	out, partials, err := decode(t, delta(big[:1<<20]), delta(big[1<<20:]))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(out.Text) != len(big) || out.Text != big {
		t.Fatalf("expected %d bytes of output, got %d", len(big), len(out.Text))
	}
	if len(partials) != 2 || len(out.FrameErrors) != 0 {
		t.Fatalf("expected 2 partials and no frame errors, got %d / %d", len(partials), len(out.FrameErrors))
	}
}

func TestDecodeSentinelIsLiteral(t *testing.T) {
	t.Parallel()

	out, _, err := decode(t, delta("a"), "data: [DONE] \n", "data:[DONE]\n", delta("b"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Text != "ab" {
		t.Fatalf("unexpected text %q", out.Text)
	}
	// Without the space it is an ordinary, unparseable data frame.
	if len(out.FrameErrors) != 1 || out.FrameErrors[0].Frame != "data:[DONE]" {
		t.Fatalf("expected one frame error for data:[DONE], got %v", out.FrameErrors)
	}
}
