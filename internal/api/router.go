package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"markbind/internal/middleware"
)

// RouterConfig holds the cross-cutting settings of the HTTP surface.
type RouterConfig struct {
	CORSAllowedOrigins []string
	// BindingRateLimit throttles POST .../bindings per client.
	BindingRateLimit middleware.RateLimitConfig
}

// NewRouter wires the handler into a chi router. It fails when the embedded
// OpenAPI document does not validate.
func NewRouter(ctx context.Context, h *Handler, cfg RouterConfig) (http.Handler, error) {
	spec, err := LoadSpec(ctx)
	if err != nil {
		return nil, err
	}
	specBody, err := specJSON(spec)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "If-None-Match", "X-Request-ID"},
		ExposedHeaders: []string{"ETag", "X-Request-ID", "Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/openapi.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(specBody)
	})

	bindLimit := middleware.RateLimiter(cfg.BindingRateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/documents", func(r chi.Router) {
			r.Get("/", h.listDocuments)
			r.Post("/", h.createDocument)
			r.Route("/{documentId}", func(r chi.Router) {
				r.Get("/", h.getDocument)
				r.Delete("/", h.deleteDocument)
				r.Get("/history", h.listHistory)
				r.With(bindLimit).Post("/bindings", h.createBinding)
				r.Route("/datasets/{datasetId}", func(r chi.Router) {
					r.Put("/values", h.setDatasetValues)
					r.Get("/output", h.getDatasetOutput)
					r.Get("/schema", h.getDatasetSchema)
				})
			})
		})
	})
	return r, nil
}
