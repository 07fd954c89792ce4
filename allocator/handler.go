package allocator

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// CommitRequest asks the allocator to assign a unique location share,
// probing from the voter's proposed value.
type CommitRequest struct {
	Proposed int `json:"proposed"`
}

// CommitResponse carries the assigned share and whether this commit
// completed the assignment for the whole electorate.
type CommitResponse struct {
	Assigned int  `json:"assigned"`
	Done     bool `json:"done"`
}

// RegistryResponse is the diagnostic snapshot of committed shares.
type RegistryResponse struct {
	TotalVoters int   `json:"total_voters"`
	Values      []int `json:"values"`
}

// Handler exposes the allocator over HTTP.
type Handler struct {
	Allocator *Allocator
}

// NewHandler wraps an allocator for HTTP serving.
func NewHandler(a *Allocator) *Handler {
	return &Handler{Allocator: a}
}

// RegisterRoutes registers the allocator routes with the provided router.
// The diagnostic registry snapshot is browser-accessible.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/commit", h.handleCommit)
	r.Group(func(g chi.Router) {
		g.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
		g.Get("/registry", h.handleRegistry)
	})
}

func (h *Handler) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	assigned, done, err := h.Allocator.Commit(r.Context(), req.Proposed)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrRegistryInconsistent) {
			// Integrity violation: surfaced as a conflict, never retried.
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&CommitResponse{Assigned: assigned, Done: done})
}

func (h *Handler) handleRegistry(w http.ResponseWriter, r *http.Request) {
	values, err := h.Allocator.Registry(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&RegistryResponse{
		TotalVoters: h.Allocator.TotalVoters(),
		Values:      values,
	})
}
