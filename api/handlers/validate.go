package handlers

import (
	"net/http"
	"strings"

	"github.com/malbeclabs/ados/agent/pkg/validator"
)

type ValidateRequest struct {
	Query       string              `json:"query"`
	Datasets    []string            `json:"datasets"`
	Columns     map[string][]string `json:"columns,omitempty"`
	JoinPath    []string            `json:"join_path,omitempty"`
	Explanation string              `json:"explanation,omitempty"`
}

type ValidateResponse struct {
	Report validator.Report `json:"report"`
	Audit  string           `json:"audit"`
}

// Validate checks a caller-supplied plan against the current snapshot.
func (a *API) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}
	plan := validator.QueryPlan{
		Query:       req.Query,
		Datasets:    req.Datasets,
		Columns:     req.Columns,
		JoinPath:    req.JoinPath,
		Explanation: req.Explanation,
	}
	report := a.cfg.Validator.Validate(r.Context(), a.cfg.Graph.Graph(), plan)
	if report.Findings == nil {
		report.Findings = []validator.Finding{}
	}
	writeJSON(w, http.StatusOK, ValidateResponse{Report: report, Audit: validator.AuditReport(report.Findings)})
}
