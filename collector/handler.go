package collector

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the collector's admin surface over HTTP: a status snapshot
// and the administrative close, mirroring the CLOSE frame on the voting
// channel.
type Handler struct {
	Collector *Collector
	Server    *Server
}

// NewHandler wraps a collector and its TCP server for HTTP administration.
func NewHandler(c *Collector, s *Server) *Handler {
	return &Handler{Collector: c, Server: s}
}

// RegisterRoutes registers the admin routes with the provided router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/status", h.handleStatus)
	r.Post("/close", h.handleClose)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Collector.Status())
}

type closeResponse struct {
	Status string `json:"status"`
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	already := h.Collector.Phase() != PhaseAccepting
	h.Server.RequestClose()

	w.Header().Set("Content-Type", "application/json")
	if already {
		json.NewEncoder(w).Encode(&closeResponse{Status: "already closed"})
		return
	}
	json.NewEncoder(w).Encode(&closeResponse{Status: "closing"})
}
