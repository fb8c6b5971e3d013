package auth

import (
	"encoding/json"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "botinsta"
	keyringPrefix  = "instagram_"
)

// KeyringStore implements CredentialStore using the system keychain
type KeyringStore struct{}

// NewKeyringStore creates a new keyring-based credential store
func NewKeyringStore() (*KeyringStore, error) {
	// Test if keyring is available
	testKey := "test_availability"
	err := keyring.Set(keyringService, testKey, "test")
	if err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{}, nil
}

// Store saves credentials to the system keychain
func (k *KeyringStore) Store(account *Account) error {
	if account == nil || account.Username == "" {
		return ErrInvalidCredentials
	}

	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}

	key := keyringPrefix + account.Username
	if err := keyring.Set(keyringService, key, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}

	return nil
}

// Retrieve gets credentials from the system keychain
func (k *KeyringStore) Retrieve(username string) (*Account, error) {
	if username == "" {
		return nil, ErrInvalidCredentials
	}

	key := keyringPrefix + username
	data, err := keyring.Get(keyringService, key)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var account Account
	if err := json.Unmarshal([]byte(data), &account); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	return &account, nil
}

// List returns all stored accounts from the keychain.
// go-keyring cannot enumerate keys, so the keychain never contributes
// to listings; the encrypted file store covers that.
func (k *KeyringStore) List() ([]*Account, error) {
	return []*Account{}, nil
}

// Delete removes credentials from the system keychain
func (k *KeyringStore) Delete(username string) error {
	if username == "" {
		return ErrInvalidCredentials
	}

	key := keyringPrefix + username
	err := keyring.Delete(keyringService, key)
	if err != nil {
		if err == keyring.ErrNotFound {
			return ErrCredentialsNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}

	return nil
}

// Exists checks if credentials exist in the keychain
func (k *KeyringStore) Exists(username string) bool {
	if username == "" {
		return false
	}

	key := keyringPrefix + username
	_, err := keyring.Get(keyringService, key)
	return err == nil
}
