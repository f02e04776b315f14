package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"tlab-bridge/internal/cache"
	"tlab-bridge/pkg/logging/logging"
)

// Cached upstream routes. The name is the route segment of the cache key.
const (
	routeDatasetList    = "data.list"
	routeDatasetGallery = "data.gallery"
	routeModelList      = "model.list"
)

var upstreamPaths = map[string]string{
	routeDatasetList:    "/data/list",
	routeDatasetGallery: "/data/gallery",
	routeModelList:      "/model/list",
}

// DatasetHandler serves the dataset and model routes.
type DatasetHandler struct {
	Upstream  Upstream
	Cache     cache.Cache
	CacheTTL  time.Duration
	VersionID string
}

func NewDatasetHandler(up Upstream, c cache.Cache, ttl time.Duration, versionID string) *DatasetHandler {
	if c == nil {
		c = cache.NopCache{}
	}
	if versionID == "" {
		versionID = "v1"
	}
	return &DatasetHandler{
		Upstream:  up,
		Cache:     c,
		CacheTTL:  ttl,
		VersionID: versionID,
	}
}

func (h *DatasetHandler) cacheKey(route string) string {
	return cache.BuildResponseKey(route, h.Upstream.Host(), upstreamPaths[route], h.VersionID).String()
}

// cached serves route from the cache, or calls fetch and stores the
// result. Cache errors are logged and treated as a miss.
func (h *DatasetHandler) cached(
	w http.ResponseWriter,
	r *http.Request,
	route string,
	fetch func(ctx context.Context) (json.RawMessage, error),
) {
	ctx := r.Context()
	logger := logging.L(ctx)
	key := h.cacheKey(route)

	body, hit, err := h.Cache.Get(ctx, key)
	if err != nil {
		logger.Warn("response_cache_get_error", zap.Error(err))
	}
	if hit {
		writeRaw(w, body)
		return
	}

	raw, err := fetch(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Cache.Set(ctx, key, raw, h.CacheTTL); err != nil {
		logger.Warn("response_cache_set_error", zap.Error(err))
	}
	writeRaw(w, raw)
}

func (h *DatasetHandler) invalidate(ctx context.Context) {
	if err := h.Cache.Delete(ctx, h.cacheKey(routeDatasetList)); err != nil {
		logging.L(ctx).Warn("response_cache_delete_error", zap.Error(err))
	}
}

// List handles GET /v1/datasets.
func (h *DatasetHandler) List(w http.ResponseWriter, r *http.Request) {
	h.cached(w, r, routeDatasetList, h.Upstream.ListDatasets)
}

// Gallery handles GET /v1/datasets/public.
func (h *DatasetHandler) Gallery(w http.ResponseWriter, r *http.Request) {
	h.cached(w, r, routeDatasetGallery, h.Upstream.ListPublicDatasets)
}

// Models handles GET /v1/models.
func (h *DatasetHandler) Models(w http.ResponseWriter, r *http.Request) {
	h.cached(w, r, routeModelList, h.Upstream.ListModels)
}

// Preview handles GET /v1/datasets/{id}/preview.
func (h *DatasetHandler) Preview(w http.ResponseWriter, r *http.Request) {
	raw, err := h.Upstream.PreviewDataset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeRaw(w, raw)
}

// Download handles GET /v1/datasets/{id}/download.
func (h *DatasetHandler) Download(w http.ResponseWriter, r *http.Request) {
	raw, err := h.Upstream.DownloadDataset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.invalidate(r.Context())
	writeRaw(w, raw)
}

// Delete handles DELETE /v1/datasets/{id}.
func (h *DatasetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	raw, err := h.Upstream.DeleteDataset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.invalidate(r.Context())
	writeRaw(w, raw)
}

type addDatasetRequest struct {
	TrainingData *string `json:"training_data"`
	EvalData     *string `json:"eval_data"`
}

func optionalBytes(s *string) []byte {
	if s == nil {
		return nil
	}
	return []byte(*s)
}

// Add handles POST /v1/datasets/{id}.
func (h *DatasetHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addDatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logging.L(r.Context()).Warn("invalid request", zap.Error(err))
		badRequest(w, "invalid JSON")
		return
	}

	res, err := h.Upstream.AddDataset(r.Context(),
		chi.URLParam(r, "id"),
		optionalBytes(req.TrainingData),
		optionalBytes(req.EvalData),
	)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.invalidate(r.Context())
	writeJSON(w, http.StatusCreated, res)
}
