package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"remoteintegrity/ri-tracker/internal/models"
	"remoteintegrity/ri-tracker/internal/service"

	"go.uber.org/zap"
)

// Timer is the session manager surface exposed over the control API.
type Timer interface {
	StartTimer(ctx context.Context, req service.StartRequest) (models.SessionResult, error)
	StopTimer(ctx context.Context) (models.SessionResult, error)
	Status() models.TimerStatus
	RecordKeyboardActivity()
	RecordMouseActivity()
	ActivityStats() (models.ActivityStats, error)
	CurrentSessionTime() (int64, bool)
	TimeEntries(limit int) ([]*models.TimeEntry, error)
	Stats() *models.StatsSnapshot
}

type UserSource interface {
	IsAuthenticated() bool
	CurrentUser() (models.Employee, bool)
}

type ControlHandler struct {
	timer  Timer
	users  UserSource
	logger *zap.Logger
}

func NewControlHandler(timer Timer, users UserSource, logger *zap.Logger) *ControlHandler {
	return &ControlHandler{
		timer:  timer,
		users:  users,
		logger: logger,
	}
}

func (h *ControlHandler) StartTimer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req service.StartRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.logger.Warn("Failed to decode request", zap.Error(err))
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	result, err := h.timer.StartTimer(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ControlHandler) StopTimer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := h.timer.StopTimer(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ControlHandler) TimerStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.timer.Status())
}

// RecordActivity accepts input events from surfaces that see them before
// the OS hooks do. The kind is the last path segment.
func (h *ControlHandler) RecordActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch r.PathValue("kind") {
	case "keyboard":
		h.timer.RecordKeyboardActivity()
	case "mouse":
		h.timer.RecordMouseActivity()
	default:
		http.Error(w, "Unknown activity kind", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ControlHandler) ActivityStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := h.timer.ActivityStats()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *ControlHandler) SessionTime(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	elapsed, running := h.timer.CurrentSessionTime()
	writeJSON(w, http.StatusOK, map[string]any{
		"running": running,
		"elapsed": elapsed,
	})
}

func (h *ControlHandler) AuthStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body := map[string]any{"authenticated": h.users.IsAuthenticated()}
	if user, ok := h.users.CurrentUser(); ok {
		body["user"] = user
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *ControlHandler) TimeEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 0 {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = l
	}

	entries, err := h.timer.TimeEntries(limit)
	if err != nil {
		h.logger.Error("Failed to get time entries", zap.Error(err))
		http.Error(w, "Failed to get time entries", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.TimeEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *ControlHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := h.timer.Stats()
	if stats == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// writeError maps lifecycle errors onto status codes
func (h *ControlHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotAuthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrAlreadyRunning), errors.Is(err, service.ErrNotRunning):
		status = http.StatusConflict
	default:
		h.logger.Error("Control request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]any{
		"success": false,
		"message": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
