package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"layerplane/internal/layer"
	"layerplane/internal/logger"
	"layerplane/pkg/api"
)

// Form bodies carry a handful of short fields.
const maxFormBytes = 1 << 20

// GenerateLayer handles POST /generate_layer/.
// It accepts urlencoded or multipart forms and streams back the layer archive.
func (h *Handlers) GenerateLayer(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context(), h.logger)

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseMultipartForm(maxFormBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		log.Info("invalid form body", "error", err)
		h.respondJson(w, http.StatusBadRequest, api.ValidationErrorResponse{
			Detail: []string{"Invalid form body."},
		})
		return
	}

	req := layer.Request{
		RuntimeVersion: r.PostForm.Get(api.FieldPythonVersion),
		LayerName:      r.PostForm.Get(api.FieldLayerName),
		Packages:       r.PostForm[api.FieldRequirements],
	}

	artifact, err := h.generator.Generate(r.Context(), req)
	if err != nil {
		var verr *layer.ValidationError
		if errors.As(err, &verr) {
			h.respondJson(w, http.StatusBadRequest, api.ValidationErrorResponse{Detail: verr.Errors})
			return
		}

		var buildErr *layer.BuildError
		if errors.As(err, &buildErr) {
			h.httpError(w, buildErr.Message(), http.StatusInternalServerError)
			return
		}

		log.Error("unexpected generator error", "error", err)
		h.httpError(w, layer.BuildFailedMessage, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", artifact.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(artifact.Data); err != nil {
		log.Warn("failed to stream artifact", "error", err)
	}
}
