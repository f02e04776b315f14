package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"tlab-bridge/internal/handlers"
	"tlab-bridge/internal/metrics"
	"tlab-bridge/internal/middleware"
)

// Options tunes the router's middleware.
type Options struct {
	// RequestTimeout bounds one-shot routes. Chat streams are bounded by
	// the client connection instead.
	RequestTimeout time.Duration
	// MaxBodyBytes limits request bodies.
	MaxBodyBytes int64
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 32 << 20
	}
	return o
}

func SetupRouter(
	r *chi.Mux,
	baseLogger *zap.Logger,
	opts Options,
	datasetHandler *handlers.DatasetHandler,
	chatHandler *handlers.ChatHandler,
) {
	opts = opts.withDefaults()

	r.Use(metrics.Middleware)

	// base middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())
	r.Use(chimw.RequestSize(opts.MaxBodyBytes))

	r.Route("/v1", func(r chi.Router) {
		// streaming, no timeout
		r.Post("/chat/completions", chatHandler.ChatCompletion)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(opts.RequestTimeout))

			r.Get("/datasets", datasetHandler.List)
			r.Get("/datasets/public", datasetHandler.Gallery)
			r.Get("/datasets/{id}/preview", datasetHandler.Preview)
			r.Get("/datasets/{id}/download", datasetHandler.Download)
			r.Delete("/datasets/{id}", datasetHandler.Delete)
			r.Post("/datasets/{id}", datasetHandler.Add)

			r.Get("/models", datasetHandler.Models)

			r.Post("/training-data", handlers.TrainingData)
			r.Post("/jsonl", handlers.JSONLines)
		})
	})

	// health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}
