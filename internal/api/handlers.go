package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/curator"
	"github.com/starford/ansuz/internal/filing"
)

// Handler holds API route handlers.
type Handler struct {
	svc *curator.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *curator.Service) *Handler {
	return &Handler{svc: svc}
}

// Capture handles POST /api/capture.
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req CaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}
	path, err := h.svc.Capture(r.Context(), req.Text, req.Source)
	if err != nil {
		slog.Error("capture failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, CaptureResponse{Path: path})
}

// Analyze handles POST /api/analyze.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.AnalyzeInbox(r.Context(), limit)
	if err != nil {
		if errors.Is(err, apperr.ErrAnalyzerDisabled) {
			writeJSON(w, http.StatusServiceUnavailable, errorBody("analyzer not configured"))
			return
		}
		slog.Error("analyze failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// File handles POST /api/file.
func (h *Handler) File(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req FileRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
			return
		}
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	res, err := h.svc.FileInbox(r.Context(), filing.Options{
		Limit:         req.Limit,
		MinConfidence: req.MinConfidence,
		DryRun:        req.DryRun,
	})
	if err != nil {
		slog.Error("file batch failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Undo handles POST /api/undo.
func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req UndoRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
			return
		}
	}
	res, err := h.svc.Undo(r.Context(), req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrSessionNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("session not found"))
		case errors.Is(err, apperr.ErrSessionUndone):
			writeJSON(w, http.StatusConflict, errorBody("session already undone"))
		default:
			slog.Error("undo failed", slog.String("session_id", req.SessionID), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Sessions handles GET /api/sessions.
func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": h.svc.Sessions(limit),
	})
}

// Session handles GET /api/sessions/{id}.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := h.svc.SessionDetail(id)
	if err != nil {
		if errors.Is(err, apperr.ErrSessionNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("session not found"))
			return
		}
		slog.Error("session lookup failed", slog.String("session_id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		slog.Error("stats failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Search handles GET /api/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// Correct handles POST /api/correct.
func (h *Handler) Correct(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req CorrectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	target, err := h.svc.Correct(r.Context(), req.Path, req.Folder)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrAlreadyExists):
			writeJSON(w, http.StatusConflict, errorBody("target already exists"))
		default:
			slog.Error("correct failed", slog.String("path", req.Path), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, CorrectResponse{Path: target})
}

// CaptureRequest is the request body for capturing a note.
type CaptureRequest struct {
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

// Validate checks required fields.
func (r CaptureRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Text, validation.Required),
	)
}

// CaptureResponse returns the created note path.
type CaptureResponse struct {
	Path string `json:"path"`
}

// FileRequest is the request body for a filing batch.
type FileRequest struct {
	Limit         int     `json:"limit,omitempty"`
	MinConfidence float64 `json:"min_confidence,omitempty"`
	DryRun        bool    `json:"dry_run,omitempty"`
}

// Validate checks field ranges.
func (r FileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Limit, validation.Min(0)),
		validation.Field(&r.MinConfidence, validation.Min(0.0), validation.Max(1.0)),
	)
}

// UndoRequest is the request body for undoing a session. An empty
// session_id undoes the most recent active session.
type UndoRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// CorrectRequest is the request body for a filing correction.
type CorrectRequest struct {
	Path   string `json:"path"`
	Folder string `json:"folder"`
}

// Validate checks required fields.
func (r CorrectRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
		validation.Field(&r.Folder, validation.Required),
	)
}

// CorrectResponse returns the note's new path.
type CorrectResponse struct {
	Path string `json:"path"`
}
