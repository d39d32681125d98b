package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

const maxURLUpdateBody = 16 << 10

// URLUpdateRequest is the body the browser extension posts on navigation.
// Older extension builds send "application" instead of "browser".
type URLUpdateRequest struct {
	Browser     string `json:"browser"`
	Application string `json:"application"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Timestamp   int64  `json:"timestamp"` // unix milliseconds
}

// VisitRecorder stores page visits for the link tracker.
type VisitRecorder interface {
	RecordVisit(application, title, url string, visitedAt time.Time)
}

// URLServer handles HTTP requests from the browser extension
type URLServer struct {
	store  VisitRecorder
	clock  clock.Clock
	logger *zap.Logger
}

// NewURLServer creates a new URL server
func NewURLServer(store VisitRecorder, clk clock.Clock, logger *zap.Logger) *URLServer {
	return &URLServer{
		store:  store,
		clock:  clk,
		logger: logger,
	}
}

// ServeHTTP implements http.Handler
func (s *URLServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	switch r.URL.Path {
	case "/api/v1/url-update":
		if r.Method == http.MethodPost {
			s.handleURLUpdate(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "/api/v1/health":
		if r.Method == http.MethodGet {
			s.handleHealth(w)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		http.NotFound(w, r)
	}
}

// setCORSHeaders lets the extension origin call the local server
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func (s *URLServer) handleURLUpdate(w http.ResponseWriter, r *http.Request) {
	var req URLUpdateRequest

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxURLUpdateBody))
	if err := decoder.Decode(&req); err != nil {
		s.logger.Warn("Failed to decode URL update request", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	browser := req.Browser
	if browser == "" {
		browser = req.Application
	}
	if browser == "" || req.URL == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	if !isBrowserApplication(browser) {
		s.logger.Warn("Rejected URL update from non-browser application",
			zap.String("application", browser),
		)
		http.Error(w, "Invalid application", http.StatusBadRequest)
		return
	}

	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		s.logger.Debug("Rejected non-web URL", zap.String("url", req.URL))
		http.Error(w, "Invalid URL format", http.StatusBadRequest)
		return
	}

	visitedAt := s.clock.Now()
	if req.Timestamp > 0 {
		visitedAt = time.UnixMilli(req.Timestamp)
	}
	s.store.RecordVisit(browser, req.Title, req.URL, visitedAt)

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *URLServer) handleHealth(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.clock.Now().Unix(),
	})
}

var knownBrowsers = []string{
	"chrome",
	"chromium",
	"firefox",
	"edge",
	"safari",
	"opera",
	"brave",
	"vivaldi",
}

func isBrowserApplication(application string) bool {
	appLower := strings.ToLower(application)
	for _, browser := range knownBrowsers {
		if strings.Contains(appLower, browser) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
