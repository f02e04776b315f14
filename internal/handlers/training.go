package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"tlab-bridge/internal/dataset"
	"tlab-bridge/pkg/logging/logging"
)

type trainingDataRequest struct {
	Records         []map[string]any `json:"records"`
	EvalPercent     float64          `json:"eval_percent"`
	PromptKey       string           `json:"prompt_key"`
	GenerationKey   string           `json:"generation_key"`
	InstructionKey  string           `json:"instruction_key"`
	AddInstructions bool             `json:"add_instructions"`
	Shuffle         bool             `json:"shuffle"`
	Disjoint        bool             `json:"disjoint"`
}

type trainingDataResponse struct {
	TrainingData string `json:"training_data"`
	EvalData     string `json:"eval_data"`
	TrainingSize int    `json:"training_size"`
	EvalSize     int    `json:"eval_size"`
}

// TrainingData handles POST /v1/training-data. It never calls upstream;
// the result can be posted to POST /v1/datasets/{id} as is.
func TrainingData(w http.ResponseWriter, r *http.Request) {
	logger := logging.L(r.Context())

	var req trainingDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		badRequest(w, "invalid JSON")
		return
	}

	split, err := dataset.CreateTrainingData(req.Records, dataset.Options{
		EvalPercent:     req.EvalPercent,
		PromptKey:       req.PromptKey,
		GenerationKey:   req.GenerationKey,
		InstructionKey:  req.InstructionKey,
		AddInstructions: req.AddInstructions,
		Shuffle:         req.Shuffle,
		Disjoint:        req.Disjoint,
	})
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	training, eval, err := split.JSONLines()
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	logger.Debug("training data created",
		zap.Int("records", len(req.Records)),
		zap.Int("training", len(split.Training)),
		zap.Int("eval", len(split.Eval)),
	)

	writeJSON(w, http.StatusOK, trainingDataResponse{
		TrainingData: training,
		EvalData:     eval,
		TrainingSize: len(split.Training),
		EvalSize:     len(split.Eval),
	})
}

type jsonLinesRequest struct {
	Objects []json.RawMessage `json:"objects"`
}

// JSONLines handles POST /v1/jsonl.
func JSONLines(w http.ResponseWriter, r *http.Request) {
	var req jsonLinesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logging.L(r.Context()).Warn("invalid request", zap.Error(err))
		badRequest(w, "invalid JSON")
		return
	}

	out, err := dataset.EncodeJSONLines(req.Objects)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"jsonl": out})
}
