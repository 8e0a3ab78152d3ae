package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/brunobiangulo/agendagraph"
	"github.com/brunobiangulo/agendagraph/normalize"
)

type handler struct {
	engine agendagraph.Engine
}

func newHandler(e agendagraph.Engine) *handler {
	return &handler{engine: e}
}

// routes registers every endpoint on a new mux.
func (h *handler) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /meetings", h.handleProcess)
	mux.HandleFunc("GET /meetings/{date}/structure", h.handleStructure)
	mux.HandleFunc("GET /meetings/{date}/files", h.handleFiles)
	mux.HandleFunc("POST /route", h.handleRoute)
	mux.HandleFunc("POST /query", h.handleQuery)
	mux.HandleFunc("POST /resolve", h.handleResolve)
	mux.HandleFunc("GET /stats", h.handleStats)
	mux.Handle("GET /metrics", h.engine.Metrics().Handler())
	mux.HandleFunc("GET /health", h.handleHealth)
	return mux
}

// POST /meetings
// Processes the agenda at a server-side path.
func (h *handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: expected JSON with 'path'")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	absPath, err := filepath.Abs(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(absPath)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusBadRequest, "path must be an existing file")
		return
	}

	res, err := h.engine.ProcessMeeting(ctx, absPath)
	if err != nil {
		switch {
		case errors.Is(err, agendagraph.ErrNoMeetingDate), errors.Is(err, agendagraph.ErrEmptyAgenda):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "processing failed")
		}
		slog.Error("process error", "path", absPath, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":        res.Date,
		"items":       res.Agenda.Codes(),
		"report":      res.Links.Report(),
		"transcripts": res.Transcripts,
		"people":      res.People,
		"graph":       res.Graph,
		"elapsed_ms":  res.Elapsed.Milliseconds(),
	})
}

// GET /meetings/{date}/structure
func (h *handler) handleStructure(w http.ResponseWriter, r *http.Request) {
	date, err := normalize.MeetingDate(r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid meeting date")
		return
	}

	s, err := h.engine.Structure(r.Context(), date)
	if errors.Is(err, agendagraph.ErrStructureNotFound) {
		writeError(w, http.StatusNotFound, "no structure for "+date.ISO())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read structure")
		slog.Error("structure error", "date", date.ISO(), "error", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// GET /meetings/{date}/files
func (h *handler) handleFiles(w http.ResponseWriter, r *http.Request) {
	date, err := normalize.MeetingDate(r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid meeting date")
		return
	}

	files, err := h.engine.Store().ListSourceFiles(r.Context(), date.ISO())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list files")
		slog.Error("list files error", "date", date.ISO(), "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":  date,
		"files": files,
	})
}

type questionRequest struct {
	Question string `json:"question"`
}

func decodeQuestion(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return "", false
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return "", false
	}
	return req.Question, true
}

// POST /route
func (h *handler) handleRoute(w http.ResponseWriter, r *http.Request) {
	q, ok := decodeQuestion(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Route(q))
}

// POST /query
func (h *handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	q, ok := decodeQuestion(w, r)
	if !ok {
		return
	}

	answer, err := h.engine.Query(ctx, q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		slog.Error("query error", "question", q, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// POST /resolve
func (h *handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"name":      req.Name,
		"canonical": h.engine.Resolve(req.Name),
	})
}

// GET /stats
func (h *handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Store().Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read stats")
		slog.Error("stats error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
