package handlers

import (
	"net/http"
	"time"
)

type RefreshResponse struct {
	Datasets      int       `json:"datasets"`
	Relationships int       `json:"relationships"`
	TakenAt       time.Time `json:"taken_at"`
	Warnings      []string  `json:"warnings"`
}

// Refresh rescans the catalog and swaps in a rebuilt graph.
func (a *API) Refresh(w http.ResponseWriter, r *http.Request) {
	g, err := a.cfg.Graph.Refresh(r.Context())
	if err != nil {
		a.log.Error("handlers: refresh failed", "error", err)
		writeError(w, http.StatusInternalServerError, "refresh_failed", "Failed to refresh the catalog")
		return
	}
	writeJSON(w, http.StatusOK, RefreshResponse{
		Datasets:      len(g.Datasets()),
		Relationships: len(g.Edges()),
		TakenAt:       g.TakenAt(),
		Warnings:      nonNil(g.Warnings()),
	})
}
