package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"remoteintegrity/ri-tracker/internal/config"
	"remoteintegrity/ri-tracker/internal/models"

	"go.uber.org/zap"
)

// APIClient handles communication with the tracking backend
type APIClient struct {
	endpoints  config.Backend
	deviceID   string
	httpClient *http.Client
	logger     *zap.Logger

	mu    sync.RWMutex
	token string
}

// envelope is the wrapper every backend response uses.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// NewAPIClient creates a new API client
func NewAPIClient(endpoints config.Backend, deviceID string, timeout time.Duration, logger *zap.Logger) *APIClient {
	return &APIClient{
		endpoints: endpoints,
		deviceID:  deviceID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// SetToken sets the bearer token sent with authenticated calls
func (c *APIClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *APIClient) getToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login exchanges credentials for a token and the employee record
func (c *APIClient) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	var out models.LoginResponse
	req := models.LoginRequest{Email: email, Password: password}
	if err := c.doJSON(ctx, http.MethodPost, c.endpoints.LoginURL, req, &out, false); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, &BackendError{Message: "login response carried no token", StatusCode: http.StatusOK}
	}
	return &out, nil
}

// GetProfile fetches the employee profile document
func (c *APIClient) GetProfile(ctx context.Context, employeeID string) (*models.Employee, error) {
	var out models.Employee
	if err := c.doJSON(ctx, http.MethodGet, joinPath(c.endpoints.ProfileURL, employeeID), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateSession opens a remote session and returns it with its id
func (c *APIClient) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.Session, error) {
	var out models.Session
	if err := c.doJSON(ctx, http.MethodPost, c.endpoints.SessionsURL, req, &out, true); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, &BackendError{Message: "session response carried no id", StatusCode: http.StatusOK}
	}
	return &out, nil
}

// UpdateSession sends a periodic or final update for sessionID
func (c *APIClient) UpdateSession(ctx context.Context, sessionID string, update models.SessionUpdate) error {
	return c.doJSON(ctx, http.MethodPatch, joinPath(c.endpoints.SessionsURL, sessionID), update, nil, true)
}

func (c *APIClient) GetDailyStats(ctx context.Context, employeeID, timezone string) (models.Stats, error) {
	return c.getStats(ctx, c.endpoints.DailyStatsURL, employeeID, timezone)
}

func (c *APIClient) GetWeeklyStats(ctx context.Context, employeeID, timezone string) (models.Stats, error) {
	return c.getStats(ctx, c.endpoints.WeeklyStatsURL, employeeID, timezone)
}

func (c *APIClient) getStats(ctx context.Context, base, employeeID, timezone string) (models.Stats, error) {
	u := joinPath(base, employeeID) + "?timezone=" + url.QueryEscape(timezone)
	var out models.Stats
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

// UploadScreenshot posts a PNG as multipart form data and returns the
// stored image URL. The upload service answers 201 on success.
func (c *APIClient) UploadScreenshot(ctx context.Context, filename string, data []byte) (string, error) {
	if c.endpoints.UploadURL == "" {
		return "", errors.New("screenshot upload URL is not configured")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.UploadURL, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.endpoints.UploadAPIKey != "" {
		req.Header.Set("x-api-key", c.endpoints.UploadAPIKey)
	}

	env, status, err := c.send(req)
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", classify(status, env.Message, "upload")
	}
	if !env.Success {
		return "", &BackendError{Message: messageOr(env.Message, "upload rejected"), StatusCode: status}
	}

	var uploaded struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(env.Data, &uploaded); err != nil || uploaded.URL == "" {
		return "", &BackendError{Message: "upload response carried no url", StatusCode: status}
	}
	return uploaded.URL, nil
}

func (c *APIClient) doJSON(ctx context.Context, method, target string, in, out any, auth bool) error {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if auth {
		if token := c.getToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	env, status, err := c.send(req)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return classify(status, env.Message, method+" "+target)
	}
	if !env.Success {
		return &BackendError{Message: messageOr(env.Message, "request was not successful"), StatusCode: status}
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to parse response data: %w", err)
		}
	}
	return nil
}

// send performs req and decodes the envelope. A body that is not an
// envelope is kept as the message so error statuses stay readable.
func (c *APIClient) send(req *http.Request) (envelope, int, error) {
	if c.deviceID != "" {
		req.Header.Set("X-Device-Id", c.deviceID)
	}

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		c.logger.Warn("Backend request failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL.Redacted()),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return envelope{}, 0, &UnavailableError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope{}, resp.StatusCode, &UnavailableError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		env = envelope{Message: strings.TrimSpace(string(body))}
	}

	c.logger.Debug("Backend request",
		zap.String("method", req.Method),
		zap.String("url", req.URL.Redacted()),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", duration),
	)
	return env, resp.StatusCode, nil
}

func classify(status int, message, what string) error {
	errMsg := messageOr(message, fmt.Sprintf("%s: backend returned status %d", what, status))

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{Message: errMsg, StatusCode: status}
	case status == http.StatusTooManyRequests:
		return &RateLimitError{Message: errMsg, StatusCode: status}
	case status >= 400 && status < 500:
		return &BadRequestError{Message: errMsg, StatusCode: status}
	default:
		return &BackendError{Message: errMsg, StatusCode: status}
	}
}

func messageOr(message, fallback string) string {
	if message != "" {
		return message
	}
	return fallback
}

func joinPath(base, id string) string {
	return strings.TrimSuffix(base, "/") + "/" + url.PathEscape(id)
}

// Error types
type AuthError struct {
	Message    string
	StatusCode int
}

func (e *AuthError) Error() string {
	return e.Message
}

type RateLimitError struct {
	Message    string
	StatusCode int
}

func (e *RateLimitError) Error() string {
	return e.Message
}

type BadRequestError struct {
	Message    string
	StatusCode int
}

func (e *BadRequestError) Error() string {
	return e.Message
}

type BackendError struct {
	Message    string
	StatusCode int
}

func (e *BackendError) Error() string {
	return e.Message
}

// UnavailableError means the backend could not be reached at all.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return "backend unavailable: " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// IsUnavailable reports whether err is a transport failure or a server
// side error worth retrying later.
func IsUnavailable(err error) bool {
	var unavailable *UnavailableError
	if errors.As(err, &unavailable) {
		return true
	}
	var backend *BackendError
	return errors.As(err, &backend) && backend.StatusCode >= 500
}

// IsAuth reports whether err is an authentication rejection.
func IsAuth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
