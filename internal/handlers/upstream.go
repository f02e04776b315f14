package handlers

import (
	"context"
	"encoding/json"

	"tlab-bridge/internal/tlab"
)

// Upstream is the part of *tlab.Client the handlers use.
type Upstream interface {
	Host() string

	ListDatasets(ctx context.Context) (json.RawMessage, error)
	ListPublicDatasets(ctx context.Context) (json.RawMessage, error)
	PreviewDataset(ctx context.Context, id string) (json.RawMessage, error)
	DownloadDataset(ctx context.Context, id string) (json.RawMessage, error)
	DeleteDataset(ctx context.Context, id string) (json.RawMessage, error)
	AddDataset(ctx context.Context, id string, training, eval []byte) (*tlab.AddDatasetResult, error)
	ListModels(ctx context.Context) (json.RawMessage, error)

	Chat(ctx context.Context, req *tlab.ChatRequest, onPartial tlab.PartialFunc) (*tlab.ChatResult, error)
}

var _ Upstream = (*tlab.Client)(nil)
