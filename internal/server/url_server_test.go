package server

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordedVisit struct {
	application, title, url string
	at                      time.Time
}

type fakeRecorder struct {
	mu     sync.Mutex
	visits []recordedVisit
}

func (f *fakeRecorder) RecordVisit(application, title, url string, visitedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visits = append(f.visits, recordedVisit{application, title, url, visitedAt})
}

func newTestServer(t *testing.T) (*URLServer, *fakeRecorder, *clock.Mock) {
	clk := clock.NewMock()
	clk.Set(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	rec := &fakeRecorder{}
	return NewURLServer(rec, clk, zaptest.NewLogger(t)), rec, clk
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/url-update", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestURLUpdateRecordsVisit(t *testing.T) {
	srv, rec, _ := newTestServer(t)

	rr := post(t, srv, `{"browser":"Google Chrome","title":"Docs","url":"https://go.dev/doc","timestamp":1772442000000}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))

	require.Len(t, rec.visits, 1)
	v := rec.visits[0]
	assert.Equal(t, "Google Chrome", v.application)
	assert.Equal(t, "https://go.dev/doc", v.url)
	assert.Equal(t, time.UnixMilli(1772442000000), v.at)
}

func TestURLUpdateAcceptsApplicationField(t *testing.T) {
	srv, rec, clk := newTestServer(t)

	rr := post(t, srv, `{"application":"firefox","url":"https://example.com"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, rec.visits, 1)
	assert.Equal(t, clk.Now(), rec.visits[0].at)
}

func TestURLUpdateRejections(t *testing.T) {
	srv, rec, _ := newTestServer(t)

	cases := map[string]string{
		"bad json":    `{`,
		"missing url": `{"browser":"chrome"}`,
		"not browser": `{"browser":"slack","url":"https://example.com"}`,
		"bad scheme":  `{"browser":"chrome","url":"chrome://settings"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := post(t, srv, body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
	assert.Empty(t, rec.visits)
}

func TestURLServerPreflightAndHealth(t *testing.T) {
	srv, _, clk := newTestServer(t)

	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/v1/url-update", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "GET, POST, OPTIONS", rr.Header().Get("Access-Control-Allow-Methods"))

	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","timestamp":`+strconv.FormatInt(clk.Now().Unix(), 10)+`}`, rr.Body.String())

	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/url-update", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
