package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"tlab-bridge/internal/tlab"
	"tlab-bridge/pkg/logging/logging"
)

// ChatHandler holds dependencies for the /v1/chat/completions endpoint.
type ChatHandler struct {
	Upstream Upstream
}

func NewChatHandler(up Upstream) *ChatHandler {
	return &ChatHandler{Upstream: up}
}

// ChatCompletion handles POST /v1/chat/completions.
// The response is one JSON ChatResult, or an SSE stream of partial
// outputs when the client accepts text/event-stream.
func (h *ChatHandler) ChatCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	var req tlab.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		badRequest(w, "invalid JSON")
		return
	}
	if err := req.Validate(); err != nil {
		badRequest(w, err.Error())
		return
	}

	if wantsEventStream(r) {
		h.stream(w, r, &req, start)
		return
	}

	res, err := h.Upstream.Chat(ctx, &req, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}

	logger.Info("chat completed",
		zap.String("model", req.Model),
		zap.Bool("stream", false),
		zap.Int("output_bytes", len(res.Output)),
		zap.Duration("total_latency_ms", time.Since(start)),
	)

	writeJSON(w, http.StatusOK, res)
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// sseEvent is the data of one streamed event.
type sseEvent struct {
	Output string              `json:"output"`
	Done   bool                `json:"done,omitempty"`
	Final  *tlab.FinalResponse `json:"final,omitempty"`
}

// sseWriter starts the event stream lazily, so an error before the
// first partial can still be sent as a plain JSON error response.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	err     error
}

func (s *sseWriter) start() {
	if s.started {
		return
	}
	s.started = true

	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
}

func (s *sseWriter) data(payload string) {
	if s.err != nil {
		return
	}
	s.start()
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		s.err = err
		return
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

func (s *sseWriter) event(ev interface{}) {
	b, err := json.Marshal(ev)
	if err != nil {
		s.err = err
		return
	}
	s.data(string(b))
}

func (h *ChatHandler) stream(w http.ResponseWriter, r *http.Request, req *tlab.ChatRequest, start time.Time) {
	ctx := r.Context()
	logger := logging.L(ctx)

	flusher, _ := w.(http.Flusher)
	sse := &sseWriter{w: w, flusher: flusher}

	partials := 0
	res, err := h.Upstream.Chat(ctx, req, func(accumulated string) {
		partials++
		sse.event(sseEvent{Output: accumulated})
	})
	if err != nil {
		if !sse.started {
			writeError(w, r, err)
			return
		}
		status, body := errorResponse(err)
		logger.Warn("chat stream failed", zap.Int("status", status), zap.Error(err))
		sse.event(map[string]errorBody{"error": body})
		sse.data("[DONE]")
		return
	}

	sse.event(sseEvent{Output: res.Output, Done: true, Final: res.Final})
	sse.data("[DONE]")

	if sse.err != nil {
		logger.Warn("client went away during stream", zap.Error(sse.err))
		return
	}

	logger.Info("chat completed",
		zap.String("model", req.Model),
		zap.Bool("stream", true),
		zap.Int("partials", partials),
		zap.Int("output_bytes", len(res.Output)),
		zap.Duration("total_latency_ms", time.Since(start)),
	)
}
