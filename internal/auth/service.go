package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"remoteintegrity/ri-tracker/internal/models"

	"go.uber.org/zap"
)

var (
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrEmployeeIDMissing = errors.New("employee ID not found")
	ErrIDsUnresolved     = errors.New("employee ID or company ID not found")
)

// LoginClient is the part of the backend client used for authentication.
type LoginClient interface {
	Login(ctx context.Context, email, password string) (*models.LoginResponse, error)
	GetProfile(ctx context.Context, employeeID string) (*models.Employee, error)
	SetToken(token string)
}

type CredentialStore interface {
	Save(creds *models.Credentials) error
	Load() (*models.Credentials, error)
	Clear() error
}

// Service holds the signed-in employee. The token is kept in memory and
// written to the store only when the user asked to be remembered.
type Service struct {
	client LoginClient
	store  CredentialStore
	logger *zap.Logger

	mu    sync.RWMutex
	token string
	user  *models.Employee
}

// NewService creates a new authentication service
func NewService(client LoginClient, store CredentialStore, logger *zap.Logger) *Service {
	return &Service{
		client: client,
		store:  store,
		logger: logger,
	}
}

// Restore loads remembered credentials. It reports whether a login was
// restored.
func (s *Service) Restore() (bool, error) {
	creds, err := s.store.Load()
	if err != nil {
		return false, fmt.Errorf("failed to restore credentials: %w", err)
	}
	if creds == nil || creds.Token == "" {
		return false, nil
	}
	s.set(creds.Token, &creds.Employee)
	s.logger.Info("Restored saved login", zap.String("employee_id", creds.Employee.EmployeeID))
	return true, nil
}

func (s *Service) Login(ctx context.Context, email, password string, remember bool) (*models.Employee, error) {
	resp, err := s.client.Login(ctx, email, password)
	if err != nil {
		s.logger.Warn("Login failed", zap.String("email", email), zap.Error(err))
		return nil, err
	}

	employee := resp.Employee
	s.set(resp.Token, &employee)

	if remember {
		if err := s.store.Save(&models.Credentials{Token: resp.Token, Employee: employee}); err != nil {
			// The session is usable even if it could not be remembered.
			s.logger.Error("Failed to save credentials", zap.Error(err))
		}
	}

	s.logger.Info("Logged in",
		zap.String("employee_id", employee.EmployeeID),
		zap.Bool("remember", remember),
	)
	return &employee, nil
}

// Logout forgets the in-memory and stored credentials.
func (s *Service) Logout() error {
	s.set("", nil)
	if err := s.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	s.logger.Info("Logged out")
	return nil
}

func (s *Service) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

func (s *Service) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// CurrentUser returns a copy of the signed-in employee.
func (s *Service) CurrentUser() (models.Employee, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return models.Employee{}, false
	}
	return *s.user, true
}

// Profile fetches the signed-in employee's profile document.
func (s *Service) Profile(ctx context.Context) (*models.Employee, error) {
	user, ok := s.CurrentUser()
	if !ok || !s.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	if user.EmployeeID == "" {
		return nil, ErrEmployeeIDMissing
	}
	return s.client.GetProfile(ctx, user.EmployeeID)
}

// ResolveIDs returns the employee and company ids used to open sessions.
// Missing ids are looked up in the profile: the profile's own id stands
// in for the employee id.
func (s *Service) ResolveIDs(ctx context.Context) (employeeID, companyID string, err error) {
	user, ok := s.CurrentUser()
	if !ok || !s.IsAuthenticated() {
		return "", "", ErrNotAuthenticated
	}

	employeeID = user.EmployeeID
	companyID = string(user.CompanyID)

	if employeeID == "" || companyID == "" {
		profile, perr := s.Profile(ctx)
		if perr != nil {
			s.logger.Warn("Profile lookup failed", zap.Error(perr))
		} else {
			if employeeID == "" {
				employeeID = profile.ID
			}
			if companyID == "" {
				companyID = string(profile.CompanyID)
			}
		}
	}

	if employeeID == "" || companyID == "" {
		return "", "", ErrIDsUnresolved
	}
	return employeeID, companyID, nil
}

// EmployeeID is the id used for stats lookups.
func (s *Service) EmployeeID() (string, error) {
	user, ok := s.CurrentUser()
	if !ok || !s.IsAuthenticated() {
		return "", ErrNotAuthenticated
	}
	if user.EmployeeID == "" {
		return "", ErrEmployeeIDMissing
	}
	return user.EmployeeID, nil
}

func (s *Service) set(token string, user *models.Employee) {
	s.mu.Lock()
	s.token = token
	s.user = user
	s.mu.Unlock()
	s.client.SetToken(token)
}
