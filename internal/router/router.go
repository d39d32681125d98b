package router

import (
	"mime"
	"net/http"

	"remoteintegrity/ri-tracker/internal/handler"

	"go.uber.org/zap"
)

// New builds the local HTTP surface: the browser extension endpoints and
// the timer control API, both bound to localhost.
func New(extension http.Handler, control *handler.ControlHandler, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	// Extension endpoints answer CORS preflights themselves.
	mux.Handle("/api/v1/url-update", extension)
	mux.Handle("/api/v1/health", extension)

	mux.Handle("/api/v1/timer/start", requireJSON(control.StartTimer))
	mux.Handle("/api/v1/timer/stop", requireJSON(control.StopTimer))
	mux.Handle("/api/v1/timer/status", requireJSON(control.TimerStatus))
	mux.Handle("/api/v1/activity/stats", requireJSON(control.ActivityStats))
	mux.Handle("/api/v1/activity/{kind}", requireJSON(control.RecordActivity))
	mux.Handle("/api/v1/session/time", requireJSON(control.SessionTime))
	mux.Handle("/api/v1/auth/status", requireJSON(control.AuthStatus))
	mux.Handle("/api/v1/time-entries", requireJSON(control.TimeEntries))
	mux.Handle("/api/v1/stats", requireJSON(control.Stats))

	// Logging middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
		)
		mux.ServeHTTP(w, r)
	})
}

// requireJSON only lets GET and HEAD through without an application/json
// content type. Cross-origin pages cannot send one without a preflight, and
// the control routes answer no preflights.
func requireJSON(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			next(w, r)
			return
		}
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "application/json" {
			http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
			return
		}
		next(w, r)
	})
}
