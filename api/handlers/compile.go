package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/malbeclabs/ados/api/audit"
	"github.com/malbeclabs/ados/api/handlers/dberror"
)

// CompileRequest is the body of the compile and runs endpoints.
type CompileRequest struct {
	Intent string `json:"intent"`
}

// SubmitResponse is returned when a run is queued.
type SubmitResponse struct {
	ID string `json:"id"`
}

func (a *API) intent(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req CompileRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return "", false
	}
	intent := strings.TrimSpace(req.Intent)
	if intent == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "intent is required")
		return "", false
	}
	return intent, true
}

// Compile runs a compilation synchronously. A failed run is still a 200: the failure is
// part of the result.
func (a *API) Compile(w http.ResponseWriter, r *http.Request) {
	intent, ok := a.intent(w, r)
	if !ok {
		return
	}
	run := a.cfg.Compiler.Compile(r.Context(), intent)
	writeJSON(w, http.StatusOK, run)
}

// SubmitRun queues a compilation and returns its ID.
func (a *API) SubmitRun(w http.ResponseWriter, r *http.Request) {
	intent, ok := a.intent(w, r)
	if !ok {
		return
	}
	id, err := a.cfg.Async.Submit(r.Context(), intent)
	if err != nil {
		a.log.Error("handlers: failed to submit run", "error", err)
		writeError(w, http.StatusServiceUnavailable, "unavailable", "Run queue is shutting down")
		return
	}
	w.Header().Set("Location", "/api/runs/"+id)
	writeJSON(w, http.StatusAccepted, SubmitResponse{ID: id})
}

// GetRun returns a queued or finished run.
func (a *API) GetRun(w http.ResponseWriter, r *http.Request) {
	status, ok := a.cfg.Async.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Run not found or expired")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// ListAuditRuns lists stored runs, optionally filtered by failure kind.
func (a *API) ListAuditRuns(w http.ResponseWriter, r *http.Request) {
	if a.cfg.Audit == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "Audit store is not configured")
		return
	}
	page := ParsePagination(r, DefaultLimit)
	records, total, err := a.cfg.Audit.List(r.Context(), audit.ListFilter{
		FailureKind: r.URL.Query().Get("kind"),
		Limit:       page.Limit,
		Offset:      page.Offset,
	})
	if err != nil {
		a.log.Error("handlers: failed to list audit runs", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", dberror.UserMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, NewPage(records, total, page))
}

// GetAuditRun returns one stored run.
func (a *API) GetAuditRun(w http.ResponseWriter, r *http.Request) {
	if a.cfg.Audit == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "Audit store is not configured")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid run ID")
		return
	}
	rec, err := a.cfg.Audit.Get(r.Context(), id)
	if errors.Is(err, audit.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "Run not found")
		return
	}
	if err != nil {
		a.log.Error("handlers: failed to get audit run", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", dberror.UserMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
