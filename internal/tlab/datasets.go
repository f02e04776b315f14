package tlab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

func datasetPath(route, id string) string {
	return route + "?dataset_id=" + url.QueryEscape(id)
}

func (c *Client) getRaw(ctx context.Context, path string) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.Dispatch(ctx, &Request{Method: http.MethodGet, Path: path}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListDatasets returns the datasets installed on the server.
func (c *Client) ListDatasets(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "/data/list")
}

// ListPublicDatasets returns the dataset gallery.
func (c *Client) ListPublicDatasets(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "/data/gallery")
}

func (c *Client) PreviewDataset(ctx context.Context, id string) (json.RawMessage, error) {
	if err := validateDatasetID(id); err != nil {
		return nil, err
	}
	return c.getRaw(ctx, datasetPath("/data/preview", id))
}

// DownloadDataset asks the server to download a gallery dataset.
func (c *Client) DownloadDataset(ctx context.Context, id string) (json.RawMessage, error) {
	if err := validateDatasetID(id); err != nil {
		return nil, err
	}
	return c.getRaw(ctx, datasetPath("/data/download", id))
}

func (c *Client) DeleteDataset(ctx context.Context, id string) (json.RawMessage, error) {
	if err := validateDatasetID(id); err != nil {
		return nil, err
	}
	return c.getRaw(ctx, datasetPath("/data/delete", id))
}

// ListModels returns the models installed on the server.
func (c *Client) ListModels(ctx context.Context) (json.RawMessage, error) {
	return c.getRaw(ctx, "/model/list")
}

// AddDataset creates dataset id and uploads its training and evaluation
// JSONL files. The steps run in order and stop at the first failure.
func (c *Client) AddDataset(ctx context.Context, id string, training, eval []byte) (*AddDatasetResult, error) {
	if err := validateDatasetID(id); err != nil {
		return nil, err
	}
	if training == nil {
		return nil, errors.New("tlab: training data is undefined")
	}
	if len(training) == 0 {
		return nil, errors.New("tlab: training data is empty")
	}
	if eval == nil {
		return nil, errors.New("tlab: evaluation data is undefined")
	}
	if len(eval) == 0 {
		return nil, errors.New("tlab: evaluation data is empty")
	}

	trainingForm, err := NewFileForm("file", id+"_train.jsonl", training)
	if err != nil {
		return nil, err
	}
	evalForm, err := NewFileForm("file", id+"_eval.jsonl", eval)
	if err != nil {
		return nil, err
	}

	if err := c.Dispatch(ctx, &Request{Method: http.MethodGet, Path: datasetPath("/data/new", id)}, nil); err != nil {
		return nil, fmt.Errorf("create dataset: %w", err)
	}

	upload := func(form *Form) (string, error) {
		var resp uploadResponse
		err := c.Dispatch(ctx, &Request{
			Method: http.MethodPost,
			Path:   datasetPath("/data/fileupload", id),
			Form:   form,
		}, &resp)
		return resp.Filename, err
	}

	trainingFile, err := upload(trainingForm)
	if err != nil {
		return nil, fmt.Errorf("upload training data: %w", err)
	}
	evalFile, err := upload(evalForm)
	if err != nil {
		return nil, fmt.Errorf("upload evaluation data: %w", err)
	}

	c.logger.Info("dataset added",
		zap.String("dataset_id", id),
		zap.String("training_file", trainingFile),
		zap.String("eval_file", evalFile),
	)

	return &AddDatasetResult{
		DatasetID:    id,
		TrainingFile: trainingFile,
		EvalFile:     evalFile,
	}, nil
}

func validateDatasetID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("tlab: dataset id is required")
	}
	return nil
}
