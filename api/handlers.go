/*
handlers.go - HTTP handlers for reference loading and run execution

PURPOSE:
  The HTTP surface over the engine:
  - Bind a reference snapshot (wholesale replacement, never a patch)
  - Submit a transaction batch and run the engine against the bound snapshot
  - Read back persisted runs and their three output tables

SNAPSHOT BINDING:
  The handler holds at most one bound snapshot at a time. Replacing it
  swaps the whole bundle atomically under a lock; an in-flight run keeps
  using the runner it started with, so it never observes a partial edit.

SEE ALSO:
  - server.go: Route wiring
  - dto.go: Request/response shapes
*/
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/warp/salestax-engine/filing"
	"github.com/warp/salestax-engine/store/sqlite"
	"github.com/warp/salestax-engine/tax"
)

// Handler holds dependencies for all HTTP handlers.
type Handler struct {
	store  *sqlite.Store
	config filing.Config

	mu     sync.RWMutex
	runner *filing.Runner
}

// NewHandler creates a handler. No snapshot is bound until a reference
// load succeeds; runs before that fail with 409.
func NewHandler(store *sqlite.Store, config filing.Config) *Handler {
	return &Handler{store: store, config: config}
}

// =============================================================================
// REFERENCE SNAPSHOT
// =============================================================================

// LoadReference binds a new reference snapshot, replacing any previous one.
func (h *Handler) LoadReference(w http.ResponseWriter, r *http.Request) {
	var req LoadReferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	snapshot, err := req.toSnapshot()
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, tax.ErrInvalidReference) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}

	h.mu.Lock()
	h.runner = filing.NewRunner(snapshot, h.config)
	h.mu.Unlock()

	defects := snapshot.Audit()
	if len(defects) > 0 {
		// Policy authoring problem, not a transaction problem. Logged for
		// escalation to the reference-data owner; the snapshot stays bound.
		log.Printf("reference snapshot bound with %d window defect(s)", len(defects))
	}

	writeJSON(w, http.StatusOK, LoadReferenceResponse{
		Classes:  len(req.Classes),
		Mappings: len(req.Mappings),
		Rates:    len(req.Rates),
		Defects:  defectDTOs(defects),
	})
}

// =============================================================================
// RUNS
// =============================================================================

// SubmitRun processes a transaction batch against the bound snapshot.
func (h *Handler) SubmitRun(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	runner := h.runner
	h.mu.RUnlock()
	if runner == nil {
		writeError(w, http.StatusConflict, "no reference snapshot bound")
		return
	}

	var req SubmitRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	lines, err := req.toLines()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := runner.Run(r.Context(), lines)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.store.SaveRun(r.Context(), result); err != nil {
		writeError(w, http.StatusInternalServerError, "persist run: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, runDTO(result))
}

// ListRuns returns persisted run headers, most recent first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.ListRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]RunDTO, 0, len(runs))
	for _, rec := range runs {
		out = append(out, recordDTO(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetRun returns one run header.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, recordDTO(*rec))
}

// GetFacts returns a run's fact table in original input order.
func (h *Handler) GetFacts(w http.ResponseWriter, r *http.Request) {
	facts, err := h.store.LoadFacts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, facts)
}

// GetExceptions returns a run's exception ledger.
func (h *Handler) GetExceptions(w http.ResponseWriter, r *http.Request) {
	excs, err := h.store.LoadExceptions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, excs)
}

// GetSummaries returns a run's jurisdiction/device/period roll-ups.
func (h *Handler) GetSummaries(w http.ResponseWriter, r *http.Request) {
	sums, err := h.store.LoadSummaries(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sums)
}

// =============================================================================
// HELPERS
// =============================================================================

func recordDTO(rec sqlite.RunRecord) RunDTO {
	return RunDTO{
		ID:             rec.ID,
		StartedAt:      rec.StartedAt.Format("2006-01-02T15:04:05Z"),
		FactCount:      rec.FactCount,
		ExceptionCount: rec.ExceptionCount,
		Coverage:       rec.Coverage,
		CoveragePass:   rec.CoveragePass,
		DefectCount:    rec.DefectCount,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
