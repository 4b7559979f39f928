package handlers

import (
	"net/http"
	"time"

	"github.com/malbeclabs/ados/graph/pkg/discovery"
)

type GraphResponse struct {
	discovery.Summary
	TakenAt  time.Time        `json:"taken_at"`
	Warnings []string         `json:"warnings"`
	Primary  []discovery.Edge `json:"primary_edges"`
	Edges    []discovery.Edge `json:"edges"`
}

// GetGraph returns the current knowledge graph.
func (a *API) GetGraph(w http.ResponseWriter, r *http.Request) {
	g := a.cfg.Graph.Graph()
	writeJSON(w, http.StatusOK, GraphResponse{
		Summary:  g.Summary(),
		TakenAt:  g.TakenAt(),
		Warnings: nonNil(g.Warnings()),
		Primary:  nonNil(g.PrimaryEdges()),
		Edges:    nonNil(g.Edges()),
	})
}

type PathResponse struct {
	From        string                 `json:"from"`
	To          string                 `json:"to"`
	Reachable   bool                   `json:"reachable"`
	Path        []string               `json:"path"`
	JoinColumns []discovery.JoinColumn `json:"join_columns"`
}

// GetJoinPath returns the best join path between two datasets. An unreachable pair is
// a successful answer with an empty path.
func (a *API) GetJoinPath(w http.ResponseWriter, r *http.Request) {
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "from and to are required")
		return
	}
	g := a.cfg.Graph.Graph()
	for _, name := range []string{from, to} {
		if !g.Has(name) {
			writeError(w, http.StatusNotFound, "not_found", "dataset \""+name+"\" not found")
			return
		}
	}
	path := g.JoinPath(from, to)
	writeJSON(w, http.StatusOK, PathResponse{
		From:        from,
		To:          to,
		Reachable:   len(path) > 0,
		Path:        nonNil(path),
		JoinColumns: nonNil(g.JoinColumns(path)),
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
