// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"layerplane/internal/layer"
	"layerplane/internal/store"
	"layerplane/pkg/api"
)

// LayerGenerator runs the layer pipeline for one request.
type LayerGenerator interface {
	Generate(ctx context.Context, req layer.Request) (layer.Artifact, error)
}

// Pinger is a dependency that can report its availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	generator LayerGenerator
	builds    store.BuildStore
	docker    Pinger
	logger    *slog.Logger
}

// New creates a new Handlers instance.
func New(gen LayerGenerator, builds store.BuildStore, docker Pinger, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{generator: gen, builds: builds, docker: docker, logger: logger}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{Detail: message})
}
