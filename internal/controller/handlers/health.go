package handlers

import "net/http"

// Healthz is a liveness probe.
// It returns 200 OK if the server is running.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	h.respondJson(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Readyz is a readiness probe.
// It checks that the Docker daemon and the build history store are reachable.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.docker != nil {
		if err := h.docker.Ping(r.Context()); err != nil {
			h.httpError(w, "Docker unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	if err := h.builds.Ping(r.Context()); err != nil {
		h.httpError(w, "Database unavailable", http.StatusServiceUnavailable)
		return
	}
	h.respondJson(w, http.StatusOK, map[string]string{"status": "ready"})
}
