package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eargollo/taxsheet/internal/engine"
	"github.com/eargollo/taxsheet/internal/protocol"
	"github.com/eargollo/taxsheet/internal/store"
)

// RunsHandler handles run-related API endpoints.
type RunsHandler struct {
	Ctl   *engine.Controller
	Store *store.Store
	// Base bounds every run started over HTTP; request contexts end too early.
	Base context.Context
	// Defaults fills folders missing from a start request.
	Defaults protocol.StartRequest
}

// Create handles POST /api/runs and starts a run.
func (h *RunsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req protocol.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if req.Input == "" {
		req.Input = h.Defaults.Input
	}
	if req.Output == "" {
		req.Output = h.Defaults.Output
	}

	base := h.Base
	if base == nil {
		base = context.Background()
	}
	run, err := h.Ctl.Start(base, req.Input, req.Output)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

// Cancel handles DELETE /api/runs/current. It stops the active run, or
// acknowledges a finished one.
func (h *RunsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	busy := h.Ctl.Busy()
	if err := h.Ctl.Cancel(); err != nil {
		writeEngineError(w, err)
		return
	}
	status := "acknowledged"
	if busy {
		status = "cancelling"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   status,
		"progress": h.Ctl.Snapshot(),
	})
}

// List handles GET /api/runs, newest first.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	runs, err := h.Store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		slog.Error("runs list", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	total, err := h.Store.CountRuns(r.Context())
	if err != nil {
		slog.Error("runs count", "error", err)
	}
	writeJSON(w, http.StatusOK, ListResponse[store.Run]{
		Items:  runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// Get handles GET /api/runs/{id}.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// Records handles GET /api/runs/{id}/records. The optional tax_id query
// parameter narrows the result to one key.
func (h *RunsHandler) Records(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var err error
	var items interface{}
	if taxID := r.URL.Query().Get("tax_id"); taxID != "" {
		items, err = h.Store.RecordsByKey(r.Context(), taxID, run.ID)
	} else {
		items, err = h.Store.RecordsByRun(r.Context(), run.ID)
	}
	if err != nil {
		slog.Error("runs records", "run_id", run.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"run_id": run.ID, "items": items})
}

func (h *RunsHandler) lookup(w http.ResponseWriter, r *http.Request) (store.Run, bool) {
	id := chi.URLParam(r, "id")
	run, err := h.Store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "RUN_NOT_FOUND", "Run not found")
		return store.Run{}, false
	}
	if err != nil {
		slog.Error("runs get", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return store.Run{}, false
	}
	return run, true
}
