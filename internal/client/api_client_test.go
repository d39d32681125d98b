package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"remoteintegrity/ri-tracker/internal/config"
	"remoteintegrity/ri-tracker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, handler http.Handler) *APIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	endpoints := config.Backend{
		LoginURL:       srv.URL + "/auth/login",
		ProfileURL:     srv.URL + "/employee",
		SessionsURL:    srv.URL + "/sessions/app",
		DailyStatsURL:  srv.URL + "/stats/daily",
		WeeklyStatsURL: srv.URL + "/stats/weekly",
		UploadURL:      srv.URL + "/files/upload",
		UploadAPIKey:   "upload-key",
	}
	return NewAPIClient(endpoints, "device-1", 5*time.Second, zaptest.NewLogger(t))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestLogin(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var req models.LoginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "dev@example.com", req.Email)

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"token": "jwt-token",
				"employee": map[string]any{
					"_id":        "u1",
					"employeeId": "e1",
					"companyId":  map[string]any{"_id": "c1", "name": "Acme"},
				},
			},
		})
	}))

	resp, err := c.Login(context.Background(), "dev@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", resp.Token)
	assert.Equal(t, "e1", resp.Employee.EmployeeID)
	assert.Equal(t, models.CompanyRef("c1"), resp.Employee.CompanyID)
}

func TestLoginRejected(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid credentials"})
	}))

	_, err := c.Login(context.Background(), "dev@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, IsAuth(err))
	assert.Equal(t, "Invalid credentials", err.Error())
}

func TestCreateSession(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer jwt-token", r.Header.Get("Authorization"))
		assert.Equal(t, "device-1", r.Header.Get("X-Device-Id"))

		var req models.CreateSessionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "e1", req.EmployeeID)
		assert.Equal(t, "2026-03-02T09:00:00.000Z", req.StartTime)

		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": map[string]any{"_id": "s1"}})
	}))
	c.SetToken("jwt-token")

	sess, err := c.CreateSession(context.Background(), models.CreateSessionRequest{
		EmployeeID: "e1",
		CompanyID:  "c1",
		StartTime:  models.FormatTimestamp(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)
	assert.Equal(t, "s1", sess.ID)
}

func TestCreateSessionConflictKeepsBackendMessage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "Employee has an active session. ID: abc123",
		})
	}))

	_, err := c.CreateSession(context.Background(), models.CreateSessionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ID: abc123")
	assert.False(t, IsUnavailable(err))
}

func TestUpdateSession(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/sessions/app/s1", r.URL.Path)

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 80, body["activeTime"])
		assert.EqualValues(t, 45, body["idleTime"])
		assert.Equal(t, "2026-03-02T09:02:05.000Z", body["endTime"])

		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"_id": "s1"}})
	}))

	err := c.UpdateSession(context.Background(), "s1", models.SessionUpdate{
		ActiveTime: 80,
		IdleTime:   45,
		EndTime:    "2026-03-02T09:02:05.000Z",
	})
	require.NoError(t, err)
}

func TestServerErrorIsUnavailable(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))

	err := c.UpdateSession(context.Background(), "s1", models.SessionUpdate{})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))

	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, http.StatusBadGateway, backendErr.StatusCode)
	assert.Equal(t, "upstream down", backendErr.Message)
}

func TestTransportErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := NewAPIClient(config.Backend{SessionsURL: srv.URL + "/sessions"}, "", time.Second, zaptest.NewLogger(t))
	err := c.UpdateSession(context.Background(), "s1", models.SessionUpdate{})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestStatusClassification(t *testing.T) {
	var rateErr *RateLimitError
	assert.ErrorAs(t, classify(http.StatusTooManyRequests, "", "x"), &rateErr)

	var badErr *BadRequestError
	assert.ErrorAs(t, classify(http.StatusConflict, "conflict", "x"), &badErr)

	assert.True(t, IsAuth(classify(http.StatusForbidden, "", "x")))
	assert.Equal(t, "x: backend returned status 500", classify(http.StatusInternalServerError, "", "x").Error())
}

func TestGetStats(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Asia/Dhaka", r.URL.Query().Get("timezone"))
		switch r.URL.Path {
		case "/stats/daily/e1":
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"totalActiveTime": 3600}})
		case "/stats/weekly/e1":
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"totalActiveTime": 18000}})
		default:
			http.NotFound(w, r)
		}
	}))

	daily, err := c.GetDailyStats(context.Background(), "e1", "Asia/Dhaka")
	require.NoError(t, err)
	assert.EqualValues(t, 3600, daily["totalActiveTime"])

	weekly, err := c.GetWeeklyStats(context.Background(), "e1", "Asia/Dhaka")
	require.NoError(t, err)
	assert.EqualValues(t, 18000, weekly["totalActiveTime"])
}

func TestGetProfile(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/employee/e1", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"_id": "p1", "companyId": "c9"}})
	}))

	profile, err := c.GetProfile(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, "p1", profile.ID)
	assert.Equal(t, models.CompanyRef("c9"), profile.CompanyID)
}

func TestUploadScreenshot(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "upload-key", r.Header.Get("x-api-key"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "screenshot_1.png", header.Filename)
		assert.Equal(t, []byte("png-bytes"), data)

		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"data":    map[string]any{"url": "https://cdn.example.com/screenshot_1.png"},
		})
	}))

	url, err := c.UploadScreenshot(context.Background(), "screenshot_1.png", []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/screenshot_1.png", url)
}

func TestUploadScreenshotRequiresCreated(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"url": "x"}})
	}))

	_, err := c.UploadScreenshot(context.Background(), "screenshot_1.png", []byte("png"))
	assert.Error(t, err)
}
