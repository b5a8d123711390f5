package handlers

import (
	"net/http"
	"strconv"

	"layerplane/internal/logger"
	"layerplane/internal/store"
	"layerplane/pkg/api"
)

// ListBuilds returns the build history, most recent first.
// Query params: limit (default 20, max 100), offset.
func (h *Handlers) ListBuilds(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.httpError(w, "Invalid limit", http.StatusBadRequest)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		h.httpError(w, "Invalid offset", http.StatusBadRequest)
		return
	}
	limit, offset = store.ClampPage(limit, offset)

	builds, err := h.builds.ListBuilds(r.Context(), limit, offset)
	if err != nil {
		logger.FromContext(r.Context(), h.logger).Error("failed to list builds", "error", err)
		h.httpError(w, "Failed to list builds", http.StatusInternalServerError)
		return
	}

	resp := api.ListBuildsResponse{
		Builds: make([]api.BuildResponse, 0, len(builds)),
		Limit:  limit,
		Offset: offset,
	}
	for _, b := range builds {
		item := api.BuildResponse{
			ID:             b.ID.String(),
			LayerName:      b.LayerName,
			RuntimeVersion: b.RuntimeVersion,
			Packages:       b.Packages,
			Status:         string(b.Status),
			ArtifactSize:   b.ArtifactSize,
			ObjectKey:      b.ObjectKey,
			StartedAt:      b.StartedAt,
		}
		if !b.CompletedAt.IsZero() {
			completed := b.CompletedAt
			item.CompletedAt = &completed
		}
		resp.Builds = append(resp.Builds, item)
	}

	h.respondJson(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, key string) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
