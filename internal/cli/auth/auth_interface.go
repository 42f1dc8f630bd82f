package auth

import "fmt"

// TokenStore defines the interface for durable credential storage.
// A scope is the backend origin; each scope holds at most one credential.
// This allows us to mock the keyring in tests
type TokenStore interface {
	SaveToken(scope, token string) error
	LoadToken(scope string) (string, error)
	DeleteToken(scope string) error
}

// Open returns the TokenStore for a backend name ("keyring" or "sqlite").
// stateDir is only used by the sqlite backend.
func Open(backend, stateDir string) (TokenStore, error) {
	switch backend {
	case "", "keyring":
		return NewKeyringStore(), nil
	case "sqlite":
		store, err := OpenSQLiteStore(stateDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", backend)
	}
}
