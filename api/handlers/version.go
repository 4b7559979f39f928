package handlers

import (
	"net/http"
)

// VersionInfo is the build identity of the running binary.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// GetVersion returns the build version.
func (a *API) GetVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.cfg.Version)
}

// Healthz reports that the process is serving.
func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz reports whether the first graph has been built.
func (a *API) Readyz(w http.ResponseWriter, r *http.Request) {
	if !a.cfg.Graph.Ready() {
		writeError(w, http.StatusServiceUnavailable, "not_ready", "Knowledge graph is not built yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
