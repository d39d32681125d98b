package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"remoteintegrity/ri-tracker/internal/models"
)

// CredentialRepository keeps at most one remembered login.
type CredentialRepository struct {
	db *sql.DB
}

func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Save replaces any stored credentials.
func (r *CredentialRepository) Save(creds *models.Credentials) error {
	userData, err := json.Marshal(creds.Employee)
	if err != nil {
		return fmt.Errorf("failed to marshal user data: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM auth_data`); err != nil {
		return fmt.Errorf("failed to clear auth data: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO auth_data (id, token, user_data, saved_at)
		VALUES (1, ?, ?, ?)
	`, creds.Token, string(userData), time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to save auth data: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Load returns nil when nothing is stored.
func (r *CredentialRepository) Load() (*models.Credentials, error) {
	var token, userData string
	err := r.db.QueryRow(`SELECT token, user_data FROM auth_data WHERE id = 1`).Scan(&token, &userData)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load auth data: %w", err)
	}

	creds := &models.Credentials{Token: token}
	if err := json.Unmarshal([]byte(userData), &creds.Employee); err != nil {
		return nil, fmt.Errorf("failed to parse stored user data: %w", err)
	}
	return creds, nil
}

func (r *CredentialRepository) Clear() error {
	if _, err := r.db.Exec(`DELETE FROM auth_data`); err != nil {
		return fmt.Errorf("failed to clear auth data: %w", err)
	}
	return nil
}
