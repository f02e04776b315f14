package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"tlab-bridge/internal/tlab"
	"tlab-bridge/pkg/logging/logging"
)

// errorBody is the JSON error shape of every bridge route.
type errorBody struct {
	Error          string `json:"error"`
	Kind           string `json:"kind,omitempty"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
}

// writeJSON is a small helper to send JSON responses consistently.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeRaw sends an upstream JSON body as is.
func writeRaw(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Kind: "invalid_request"})
}

// errorResponse maps an error to a status code and body. Upstream
// failures are 502; anything else was rejected before leaving the
// bridge and is the caller's fault.
func errorResponse(err error) (int, errorBody) {
	var reqErr *tlab.RequestError
	if errors.As(err, &reqErr) {
		return http.StatusBadGateway, errorBody{
			Error:          err.Error(),
			Kind:           string(reqErr.Kind),
			UpstreamStatus: reqErr.Status,
		}
	}

	var streamErr *tlab.StreamError
	if errors.As(err, &streamErr) {
		return http.StatusBadGateway, errorBody{Error: err.Error(), Kind: "stream"}
	}

	return http.StatusBadRequest, errorBody{Error: err.Error(), Kind: "invalid_request"}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)

	logger := logging.L(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Warn("upstream call failed", zap.String("kind", body.Kind), zap.Error(err))
	} else {
		logger.Info("request rejected", zap.Error(err))
	}

	writeJSON(w, status, body)
}
