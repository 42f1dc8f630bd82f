// Package gate decides whether the current session may enter a protected view.
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/fullstackauth/fsauth/internal/cli/nav"
	"github.com/fullstackauth/fsauth/internal/cli/session"
)

// Decision is the outcome of a gate check
type Decision int

const (
	RedirectToLogin Decision = iota
	Admit
)

func (d Decision) String() string {
	if d == Admit {
		return "admit"
	}
	return "redirect-to-login"
}

// State is the authentication state derived from the session
type State int

const (
	Unauthenticated State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// DefaultProtectedRoutes are the views that require a session
var DefaultProtectedRoutes = []string{nav.Dashboard, nav.Profile}

// Gate evaluates the session against a Policy on every protected navigation
type Gate struct {
	session   session.Reader
	policy    Policy
	protected []string
	log       zerolog.Logger
}

// Option configures a Gate
type Option func(*Gate)

// WithPolicy replaces the default Presence policy
func WithPolicy(policy Policy) Option {
	return func(g *Gate) {
		g.policy = policy
	}
}

// WithProtectedRoutes replaces the protected route list
func WithProtectedRoutes(routes []string) Option {
	return func(g *Gate) {
		g.protected = routes
	}
}

// WithLogger sets the gate logger
func WithLogger(log zerolog.Logger) Option {
	return func(g *Gate) {
		g.log = log
	}
}

// New creates a Gate over sess
func New(sess session.Reader, opts ...Option) *Gate {
	g := &Gate{
		session:   sess,
		policy:    Presence{},
		protected: DefaultProtectedRoutes,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CanEnter evaluates the current session. The error, when non-nil, explains a
// denial the policy could not decide cleanly (for example an unreachable backend).
func (g *Gate) CanEnter(ctx context.Context) (Decision, error) {
	credential, err := g.session.Read()
	if err != nil {
		if !errors.Is(err, session.ErrNoSession) {
			g.log.Warn().Err(err).Msg("session read failed")
		}
		return RedirectToLogin, nil
	}

	ok, err := g.policy.Allow(ctx, credential)
	if err != nil {
		g.log.Debug().Err(err).Str("policy", g.policy.Name()).Msg("policy denied with error")
		return RedirectToLogin, fmt.Errorf("%s policy: %w", g.policy.Name(), err)
	}
	if !ok {
		return RedirectToLogin, nil
	}
	return Admit, nil
}

// State reports the authentication state as seen by the policy
func (g *Gate) State(ctx context.Context) State {
	decision, _ := g.CanEnter(ctx)
	return decision.State()
}

// State is the authentication state a decision implies
func (d Decision) State() State {
	if d == Admit {
		return Authenticated
	}
	return Unauthenticated
}

// Guard admits unprotected routes unconditionally; protected routes are evaluated
// and, when denied, the redirect target is returned.
func (g *Gate) Guard(ctx context.Context, route string) (Decision, string, error) {
	if !g.IsProtected(route) {
		return Admit, "", nil
	}

	decision, err := g.CanEnter(ctx)
	if decision == RedirectToLogin {
		return decision, nav.Login, err
	}
	return decision, "", nil
}

// IsProtected reports whether route requires a session
func (g *Gate) IsProtected(route string) bool {
	route = normalizeRoute(route)
	return lo.ContainsBy(g.protected, func(p string) bool {
		return normalizeRoute(p) == route
	})
}

func normalizeRoute(route string) string {
	route = strings.TrimSpace(route)
	if i := strings.IndexAny(route, "?#"); i >= 0 {
		route = route[:i]
	}
	if route != "/" {
		route = strings.TrimRight(route, "/")
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return route
}
