package metrics

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// Session metrics
	SessionUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ri_tracker_session_updates_total",
			Help: "Session create/update calls by kind and result",
		},
		[]string{"kind", "result"},
	)

	SessionRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ri_tracker_session_running",
			Help: "1 while a timer is running",
		},
	)

	TrackedSeconds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ri_tracker_tracked_seconds_total",
			Help: "Wall-clock seconds attributed to each activity state",
		},
		[]string{"state"},
	)

	// Collection metrics
	Screenshots = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ri_tracker_screenshots_total",
			Help: "Screenshot attempts by result",
		},
		[]string{"result"},
	)

	EnumerationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ri_tracker_enumeration_errors_total",
			Help: "Failed process or browser history enumerations",
		},
		[]string{"source"},
	)

	PendingUpdates = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ri_tracker_pending_updates",
			Help: "Final session updates waiting for redelivery",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SessionUpdates,
		SessionRunning,
		TrackedSeconds,
		Screenshots,
		EnumerationErrors,
		PendingUpdates,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   *zap.Logger
	listener net.Listener
}

func NewServer(addr string, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With(zap.String("component", "metrics")),
	}
}

// Start binds the listener synchronously so a port conflict is reported
// to the caller, then serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Info("Starting metrics server", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server error", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Addr() string {
	if s.listener == nil {
		return s.server.Addr
	}
	return s.listener.Addr().String()
}

func (s *Server) Stop() error {
	s.logger.Info("Stopping metrics server")
	return s.server.Close()
}
