package gate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fullstackauth/fsauth/internal/cli/client"
)

// Policy decides whether a stored credential admits entry
type Policy interface {
	Name() string
	Allow(ctx context.Context, credential string) (bool, error)
}

// ParsePolicy returns the policy for name ("presence", "expiry" or "backend").
// checker is only used by the backend policy.
func ParsePolicy(name string, checker SessionChecker) (Policy, error) {
	switch name {
	case "", "presence":
		return Presence{}, nil
	case "expiry":
		return Expiry{}, nil
	case "backend":
		if checker == nil {
			return nil, errors.New("backend policy requires an API client")
		}
		return Backend{Checker: checker}, nil
	default:
		return nil, fmt.Errorf("unknown gate policy %q", name)
	}
}

// Presence admits any stored credential without contacting the backend.
// A stale or revoked credential is admitted until the backend rejects a call.
type Presence struct{}

func (Presence) Name() string { return "presence" }

func (Presence) Allow(_ context.Context, credential string) (bool, error) {
	return credential != "", nil
}

// Expiry admits a credential unless it is a JWT whose exp claim has passed.
// The signature is not verified; opaque or exp-less credentials are admitted.
type Expiry struct {
	// Now overrides the clock in tests
	Now func() time.Time
	// Leeway tolerates clock skew
	Leeway time.Duration
}

func (Expiry) Name() string { return "expiry" }

func (e Expiry) Allow(_ context.Context, credential string) (bool, error) {
	if credential == "" {
		return false, nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(credential, claims); err != nil {
		// Not a JWT
		return true, nil
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true, nil
	}

	now := time.Now()
	if e.Now != nil {
		now = e.Now()
	}
	return now.Before(exp.Add(e.Leeway)), nil
}

// SessionChecker asks the backend whether the current credential is valid
type SessionChecker interface {
	IsAuthenticated(ctx context.Context) (*client.SessionStatus, error)
}

// Backend validates the credential with the backend on every evaluation
type Backend struct {
	Checker SessionChecker
}

func (Backend) Name() string { return "backend" }

func (b Backend) Allow(ctx context.Context, credential string) (bool, error) {
	if credential == "" {
		return false, nil
	}

	status, err := b.Checker.IsAuthenticated(ctx)
	if err != nil {
		switch client.StatusOf(err) {
		case http.StatusUnauthorized, http.StatusForbidden:
			return false, nil
		}
		return false, err
	}
	return status.Authenticated, nil
}
