package auth

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	service = "fsauth-cli"

	// TokenKey is the well-known key the session credential is stored under
	TokenKey = "token"
)

// ErrNotFound is returned when no credential is stored for a scope
var ErrNotFound = errors.New("no stored credential")

// getKeyringKey returns a unique key for storing the credential per backend origin
func getKeyringKey(scope string) string {
	return fmt.Sprintf("%s-%s", TokenKey, scope)
}

// KeyringStore persists credentials in the OS keychain/credential manager
type KeyringStore struct{}

// NewKeyringStore returns the keyring-backed TokenStore
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

// SaveToken persists the credential securely in the OS keychain/credential manager
func (k *KeyringStore) SaveToken(scope, token string) error {
	if err := keyring.Set(service, getKeyringKey(scope), token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// LoadToken retrieves the credential from the OS keychain/credential manager
func (k *KeyringStore) LoadToken(scope string) (string, error) {
	token, err := keyring.Get(service, getKeyringKey(scope))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	return token, nil
}

// DeleteToken removes the credential from the OS keychain/credential manager
func (k *KeyringStore) DeleteToken(scope string) error {
	if err := keyring.Delete(service, getKeyringKey(scope)); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil // Already deleted
		}
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
