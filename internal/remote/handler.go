package remote

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/atinyakov/FitVault/internal/middleware"
	"github.com/atinyakov/FitVault/internal/syncqueue"
)

// Service defines the interface for upload operations required by the
// handler.
type Service interface {
	Accept(ctx context.Context, entry syncqueue.Entry) error
	Uploads(ctx context.Context) ([]syncqueue.Entry, error)
}

// Handler handles HTTP requests of the stub uploader API.
type Handler struct {
	Service Service
}

// NewRouter constructs the HTTP handler serving the stub uploader API.
//
// Routes:
//
//	POST /api/upload    → Handler.Upload
//	GET  /api/uploads   → Handler.List
//
// Middleware chain (applied in order):
//  1. AllowContentType("application/json") — rejects non-JSON requests
//  2. WithRequestLogging(logger)           — logs incoming requests
func NewRouter(h *Handler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Only allow requests with Content-Type: application/json
	r.Use(chiMiddleware.AllowContentType("application/json"))

	// Log each request and its metadata
	r.Use(middleware.WithRequestLogging(logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", h.Upload)
		r.Get("/uploads", h.List)
	})

	return r
}

// Upload handles POST /api/upload requests. It decodes one queue entry and
// hands it to the service.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	var entry syncqueue.Entry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.Service.Accept(r.Context(), entry); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// List handles GET /api/uploads requests.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	uploads, err := h.Service.Uploads(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(uploads)
}
