package telemetry

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/visiontel/telemetryd/pkg/eventlog"
	"github.com/visiontel/telemetryd/pkg/session"
	"github.com/visiontel/telemetryd/pkg/stats"
)

// Handler exposes the telemetry REST API.
type Handler struct {
	mux              *http.ServeMux
	svc              *Service
	log              *eventlog.Logger
	purgeDefaultDays int
}

// NewHandler creates the API handler and registers its routes.
func NewHandler(svc *Service, log *eventlog.Logger, purgeDefaultDays int) *Handler {
	h := &Handler{
		mux:              http.NewServeMux(),
		svc:              svc,
		log:              log,
		purgeDefaultDays: purgeDefaultDays,
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// registerRoutes registers all telemetry API routes.
func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("POST /api/v1/session/start", h.startSession)
	h.mux.HandleFunc("POST /api/v1/detection/record", h.recordDetection)
	h.mux.HandleFunc("POST /api/v1/interaction/record", h.recordInteraction)
	h.mux.HandleFunc("POST /api/v1/session/end", h.endSession)
	h.mux.HandleFunc("GET /api/v1/stats", h.getStats)
	h.mux.HandleFunc("GET /api/v1/logs", h.listLogs)
	h.mux.HandleFunc("GET /api/v1/logs/{file}", h.readLog)
	h.mux.HandleFunc("DELETE /api/v1/logs/cleanup", h.cleanupLogs)
}

// startSession handles POST /api/v1/session/start. The body is optional
// client metadata.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	var meta map[string]any
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess := h.svc.StartSession(meta)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"sessionId": sess.ID,
		"timestamp": sess.StartTime.Format(time.RFC3339),
	})
}

// detectionRequest is the POST /api/v1/detection/record body. Counts are
// typed as any so that non-numeric input can be coerced to zero instead
// of failing the decode.
type detectionRequest struct {
	SessionID       string `json:"sessionId"`
	FaceCount       any    `json:"faceCount"`
	ObjectCount     any    `json:"objectCount"`
	ConfidenceLevel string `json:"confidenceLevel"`
	DetectionType   string `json:"detectionType"`
}

// recordDetection handles POST /api/v1/detection/record.
func (h *Handler) recordDetection(w http.ResponseWriter, r *http.Request) {
	var req detectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, global, err := h.svc.RecordDetection(req.SessionID, Detection{
		FaceCount:       coerceCount(req.FaceCount),
		ObjectCount:     coerceCount(req.ObjectCount),
		ConfidenceLevel: req.ConfidenceLevel,
		DetectionType:   req.DetectionType,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"sessionStats": map[string]any{
			"faceDetections":   sess.FaceDetections,
			"objectDetections": sess.ObjectDetections,
			"totalDetections":  sess.TotalDetections(),
		},
		"globalStats": map[string]any{
			"totalFaceDetections": global.TotalFaceDetections,
			"totalDetections":     global.TotalDetections,
		},
	})
}

// interactionRequest is the POST /api/v1/interaction/record body.
type interactionRequest struct {
	SessionID  string `json:"sessionId"`
	WidgetName string `json:"widgetName"`
	Action     string `json:"action"`
	Value      string `json:"value"`
}

// recordInteraction handles POST /api/v1/interaction/record.
func (h *Handler) recordInteraction(w http.ResponseWriter, r *http.Request) {
	var req interactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.svc.RecordInteraction(req.SessionID, Interaction{
		WidgetName: req.WidgetName,
		Action:     req.Action,
		Value:      req.Value,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":                    true,
		"totalInteractionsInSession": sess.Interactions,
		"filters":                    sess.Filters,
	})
}

// endSessionRequest is the POST /api/v1/session/end body.
type endSessionRequest struct {
	SessionID string `json:"sessionId"`
}

// endSession handles POST /api/v1/session/end.
func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	var req endSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.svc.EndSession(req.SessionID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"sessionStats": map[string]any{
			"faceDetections":   sess.FaceDetections,
			"objectDetections": sess.ObjectDetections,
			"interactions":     sess.Interactions,
			"duration":         sess.Duration,
			"filters":          sess.Filters,
		},
	})
}

// statsResponse is returned by GET /api/v1/stats.
type statsResponse struct {
	Success bool `json:"success"`
	stats.Overview
}

// getStats handles GET /api/v1/stats.
func (h *Handler) getStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		Success:  true,
		Overview: h.svc.Overview(),
	})
}

// logFileView is one entry in the GET /api/v1/logs listing.
type logFileView struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	Modified    time.Time `json:"modified"`
	DownloadURL string    `json:"downloadUrl"`
}

// listLogs handles GET /api/v1/logs.
func (h *Handler) listLogs(w http.ResponseWriter, _ *http.Request) {
	files, err := h.log.List()
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	views := make([]logFileView, 0, len(files))
	for _, f := range files {
		views = append(views, logFileView{
			Name:        f.Name,
			Size:        f.Size,
			Modified:    f.Modified,
			DownloadURL: "/api/v1/logs/" + f.Name,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "files": views})
}

// readLog handles GET /api/v1/logs/{file}.
func (h *Handler) readLog(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("file")
	lines, err := h.log.Read(name)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"file":    name,
		"lines":   lines,
	})
}

// cleanupLogs handles DELETE /api/v1/logs/cleanup?days=N.
func (h *Handler) cleanupLogs(w http.ResponseWriter, r *http.Request) {
	days := h.purgeDefaultDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid days parameter")
			return
		}
		days = n
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	removed, err := h.log.PurgeOlderThan(cutoff)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"deleted": removed,
		"days":    days,
	})
}

// writeServiceError maps service errors to the HTTP taxonomy. Unexpected
// errors become a generic 500 with detail only in the server log.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrMissingField):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusConflict, "session already closed")
	case errors.Is(err, eventlog.ErrAccessDenied):
		writeError(w, http.StatusForbidden, "access denied")
	case errors.Is(err, eventlog.ErrNotFound):
		writeError(w, http.StatusNotFound, "log file not found")
	default:
		slog.Error("telemetry: request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// coerceCount turns loosely typed JSON input into a non-negative integer
// delta. Non-numeric and negative values coerce to zero by policy rather
// than being accepted or rejected.
func coerceCount(v any) int64 {
	var n int64
	switch x := v.(type) {
	case float64:
		n = int64(x)
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0
		}
		n = int64(f)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0
		}
		n = int64(f)
	default:
		return 0
	}
	if n < 0 {
		return 0
	}
	return n
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response in the wire format
// {"success": false, "error": "..."}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
