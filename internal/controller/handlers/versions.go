package handlers

import (
	"net/http"
	"slices"

	"layerplane/internal/layer"
	"layerplane/pkg/api"
)

// Versions returns the supported Python runtimes.
func (h *Handlers) Versions(w http.ResponseWriter, r *http.Request) {
	h.respondJson(w, http.StatusOK, api.VersionsResponse{Versions: slices.Clone(layer.SupportedVersions)})
}
