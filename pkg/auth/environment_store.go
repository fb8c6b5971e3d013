package auth

import (
	"os"
	"time"
)

// EnvironmentStore implements CredentialStore using environment variables.
// Useful for containers where no keychain or config file is mounted.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve gets credentials from environment variables
func (e *EnvironmentStore) Retrieve(username string) (*Account, error) {
	sessionID := os.Getenv("BOTINSTA_SESSION_ID")
	csrfToken := os.Getenv("BOTINSTA_CSRF_TOKEN")
	dsUserID := os.Getenv("BOTINSTA_DS_USER_ID")
	userAgent := os.Getenv("BOTINSTA_USER_AGENT")

	if sessionID == "" || csrfToken == "" {
		return nil, ErrCredentialsNotFound
	}

	// Environment variables don't store a username
	if username == "" {
		username = "default"
	}

	return &Account{
		Username:     username,
		SessionID:    sessionID,
		CSRFToken:    csrfToken,
		DSUserID:     dsUserID,
		UserAgent:    userAgent,
		LastModified: time.Now(),
	}, nil
}

// List returns a single account if environment variables are set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(username string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(username string) bool {
	sessionID := os.Getenv("BOTINSTA_SESSION_ID")
	csrfToken := os.Getenv("BOTINSTA_CSRF_TOKEN")
	return sessionID != "" && csrfToken != ""
}
