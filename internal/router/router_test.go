package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"remoteintegrity/ri-tracker/internal/handler"
	"remoteintegrity/ri-tracker/internal/models"
	"remoteintegrity/ri-tracker/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeTimer struct {
	running  bool
	started  service.StartRequest
	keyboard int
	mouse    int
	limit    int
}

func (f *fakeTimer) StartTimer(_ context.Context, req service.StartRequest) (models.SessionResult, error) {
	if f.running && !req.Force {
		return models.SessionResult{}, service.ErrAlreadyRunning
	}
	f.running = true
	f.started = req
	return models.SessionResult{Success: true, SessionID: "sess-1"}, nil
}

func (f *fakeTimer) StopTimer(context.Context) (models.SessionResult, error) {
	if !f.running {
		return models.SessionResult{}, service.ErrNotRunning
	}
	f.running = false
	return models.SessionResult{Success: true, SessionID: "sess-1", Duration: 125}, nil
}

func (f *fakeTimer) Status() models.TimerStatus {
	return models.TimerStatus{Running: f.running}
}

func (f *fakeTimer) RecordKeyboardActivity() { f.keyboard++ }
func (f *fakeTimer) RecordMouseActivity()    { f.mouse++ }

func (f *fakeTimer) ActivityStats() (models.ActivityStats, error) {
	if !f.running {
		return models.ActivityStats{}, service.ErrNotRunning
	}
	return models.ActivityStats{ActiveTime: 80, IdleTime: 45, IsIdle: true}, nil
}

func (f *fakeTimer) CurrentSessionTime() (int64, bool) {
	if !f.running {
		return 0, false
	}
	return 42, true
}

func (f *fakeTimer) TimeEntries(limit int) ([]*models.TimeEntry, error) {
	f.limit = limit
	return nil, nil
}

func (f *fakeTimer) Stats() *models.StatsSnapshot { return nil }

type fakeUsers struct{}

func (fakeUsers) IsAuthenticated() bool { return true }

func (fakeUsers) CurrentUser() (models.Employee, bool) {
	return models.Employee{EmployeeID: "emp-1", Email: "dev@example.com"}, true
}

type stubExtension struct{ hits int }

func (s *stubExtension) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	s.hits++
	w.WriteHeader(http.StatusOK)
}

func newRouter(t *testing.T) (http.Handler, *fakeTimer, *stubExtension) {
	timer := &fakeTimer{}
	ext := &stubExtension{}
	logger := zaptest.NewLogger(t)
	return New(ext, handler.NewControlHandler(timer, fakeUsers{}, logger), logger), timer, ext
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestControlRejectsNonJSONPosts(t *testing.T) {
	h, timer, _ := newRouter(t)

	for _, path := range []string{"/api/v1/timer/start", "/api/v1/timer/stop", "/api/v1/activity/keyboard"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code, path)

		req = httptest.NewRequest(http.MethodPost, path, strings.NewReader("project_name=x"))
		req.Header.Set("Content-Type", "text/plain")
		rr = httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code, path)
	}
	assert.False(t, timer.running)
	assert.Zero(t, timer.keyboard)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/timer/start", nil)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, timer.running)
}

func TestTimerLifecycle(t *testing.T) {
	h, timer, _ := newRouter(t)

	rr := do(h, http.MethodPost, "/api/v1/timer/start", `{"project_name":"Core","user_note":"review"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Core", timer.started.ProjectName)
	assert.Equal(t, "review", timer.started.UserNote)

	rr = do(h, http.MethodPost, "/api/v1/timer/start", "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(h, http.MethodGet, "/api/v1/session/time", "")
	assert.JSONEq(t, `{"running":true,"elapsed":42}`, rr.Body.String())

	rr = do(h, http.MethodPost, "/api/v1/timer/stop", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var result models.SessionResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, int64(125), result.Duration)

	rr = do(h, http.MethodPost, "/api/v1/timer/stop", "")
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(h, http.MethodGet, "/api/v1/timer/start", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestActivityEndpoints(t *testing.T) {
	h, timer, _ := newRouter(t)

	assert.Equal(t, http.StatusNoContent, do(h, http.MethodPost, "/api/v1/activity/keyboard", "").Code)
	assert.Equal(t, http.StatusNoContent, do(h, http.MethodPost, "/api/v1/activity/mouse", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/api/v1/activity/touch", "").Code)
	assert.Equal(t, 1, timer.keyboard)
	assert.Equal(t, 1, timer.mouse)

	assert.Equal(t, http.StatusConflict, do(h, http.MethodGet, "/api/v1/activity/stats", "").Code)

	timer.running = true
	rr := do(h, http.MethodGet, "/api/v1/activity/stats", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"active_time":80,"idle_time":45,"keyboard_rate":0,"mouse_rate":0,"is_idle":true}`, rr.Body.String())
}

func TestReadEndpoints(t *testing.T) {
	h, timer, ext := newRouter(t)

	rr := do(h, http.MethodGet, "/api/v1/time-entries?limit=5", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
	assert.Equal(t, 5, timer.limit)

	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/v1/time-entries?limit=x", "").Code)

	rr = do(h, http.MethodGet, "/api/v1/auth/status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"authenticated":true`)
	assert.Contains(t, rr.Body.String(), `"employeeId":"emp-1"`)

	rr = do(h, http.MethodGet, "/api/v1/stats", "")
	assert.JSONEq(t, `{}`, rr.Body.String())

	do(h, http.MethodGet, "/api/v1/health", "")
	do(h, http.MethodPost, "/api/v1/url-update", `{}`)
	assert.Equal(t, 2, ext.hits)
}
