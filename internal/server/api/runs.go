// Package api provides the HTTP handlers for run and origin history.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/arucoloc/internal/store"
)

// RunHandler handles HTTP requests for run resources.
type RunHandler struct {
	store *store.Store
}

// NewRunHandler creates a new RunHandler with the given store.
func NewRunHandler(s *store.Store) *RunHandler {
	return &RunHandler{store: s}
}

// ServeHTTP routes /api/runs, /api/runs/{id} and /api/runs/{id}/origins.
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/runs")
	path = strings.Trim(path, "/")

	if path == "" {
		h.list(w, r)
		return
	}

	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		h.get(w, parts[0])
	case len(parts) == 2 && parts[1] == "origins":
		h.origins(w, parts[0])
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

type runResponse struct {
	ID          string  `json:"id"`
	StartedAt   string  `json:"started_at"`
	EndedAt     string  `json:"ended_at,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	LogDir      string  `json:"log_dir"`
	Convention  string  `json:"convention"`
	FrequencyHz float64 `json:"frequency_hz"`
}

type listRunsResponse struct {
	Runs []runResponse `json:"runs"`
}

type originResponse struct {
	RecordedAt string     `json:"recorded_at"`
	Position   [3]float64 `json:"position"`
	Rotation   [3]float64 `json:"rotation"`
}

type listOriginsResponse struct {
	RunID   string           `json:"run_id"`
	Origins []originResponse `json:"origins"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toRunResponse(run *store.Run) runResponse {
	resp := runResponse{
		ID:          run.ID,
		StartedAt:   run.StartedAt.Format(time.RFC3339),
		Reason:      run.Reason,
		LogDir:      run.LogDir,
		Convention:  run.Convention,
		FrequencyHz: run.FrequencyHz,
	}
	if run.EndedAt != nil {
		resp.EndedAt = run.EndedAt.Format(time.RFC3339)
	}
	return resp
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// list handles GET /api/runs?limit=n.
func (h *RunHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := h.store.Runs().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	response := listRunsResponse{Runs: make([]runResponse, 0, len(runs))}
	for _, run := range runs {
		response.Runs = append(response.Runs, toRunResponse(run))
	}
	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/runs/{id}.
func (h *RunHandler) get(w http.ResponseWriter, id string) {
	run, err := h.store.Runs().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}
	writeJSON(w, http.StatusOK, toRunResponse(run))
}

// origins handles GET /api/runs/{id}/origins.
func (h *RunHandler) origins(w http.ResponseWriter, id string) {
	if _, err := h.store.Runs().GetByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	records, err := h.store.Origins().ListByRun(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list origins")
		return
	}

	response := listOriginsResponse{RunID: id, Origins: make([]originResponse, 0, len(records))}
	for _, o := range records {
		response.Origins = append(response.Origins, originResponse{
			RecordedAt: o.RecordedAt.Format(time.RFC3339Nano),
			Position:   [3]float64{o.Position.X, o.Position.Y, o.Position.Z},
			Rotation:   [3]float64{o.Rotation.Roll, o.Rotation.Pitch, o.Rotation.Yaw},
		})
	}
	writeJSON(w, http.StatusOK, response)
}
