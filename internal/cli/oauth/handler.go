package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/fullstackauth/fsauth/internal/cli/nav"
)

const (
	// DefaultSuccessDelay lets session subscribers observe the change before navigating away
	DefaultSuccessDelay = 100 * time.Millisecond
	// DefaultFailureDelay keeps the "no token" message visible before returning to login
	DefaultFailureDelay = 3 * time.Second

	msgSuccess = "Successfully logged in with Google!"
	msgNoToken = "No authentication token received. Please try again."
)

// Outcome classifies a redirect activation
type Outcome int

const (
	// Failed means the provider reported an error
	Failed Outcome = iota
	// NoToken means the redirect carried neither a credential nor an error
	NoToken
	// LoggedIn means the credential was committed
	LoggedIn
)

func (o Outcome) String() string {
	switch o {
	case LoggedIn:
		return "logged-in"
	case NoToken:
		return "no-token"
	default:
		return "failed"
	}
}

// Result is the outcome of one redirect activation
type Result struct {
	Outcome Outcome
	Error   string
	Route   string
	Debug   DebugInfo
}

// SessionWriter commits the credential
type SessionWriter interface {
	Write(credential string) error
}

// CookieMirror mirrors the credential into the backend session cookie
type CookieMirror interface {
	MirrorSessionCookie(token string) error
}

// Handler processes federated-login redirects. It holds no state between activations.
type Handler struct {
	Session   SessionWriter
	Cookies   CookieMirror
	Navigator nav.Navigator
	Notifier  nav.Notifier
	Log       zerolog.Logger

	// Debug surfaces where the handler looked when no credential was found
	Debug        bool
	SuccessDelay time.Duration
	FailureDelay time.Duration
}

// NewHandler creates a Handler with the default delays
func NewHandler(sess SessionWriter, cookies CookieMirror, navigator nav.Navigator, notifier nav.Notifier) *Handler {
	return &Handler{
		Session:      sess,
		Cookies:      cookies,
		Navigator:    navigator,
		Notifier:     notifier,
		Log:          zerolog.Nop(),
		SuccessDelay: DefaultSuccessDelay,
		FailureDelay: DefaultFailureDelay,
	}
}

// Handle processes the redirect URL rawURL.
// A cancelled ctx skips the pending navigation; a credential already written stays written.
func (h *Handler) Handle(ctx context.Context, rawURL string) (Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, fmt.Errorf("invalid redirect URL: %w", err)
	}

	params := Extract(u)
	result := Result{Error: params.Error, Debug: params.Debug}
	h.Log.Debug().Str("token", params.Debug.Token).Str("error", params.Debug.Error).Msg("oauth redirect received")

	if params.Error != "" {
		h.Log.Error().Str("error", params.Error).Msg("oauth login failed")
		h.Notifier.Notify(nav.Error, fmt.Sprintf("OAuth2 login failed: %s", params.Error))
		result.Outcome = Failed
		result.Route = nav.Login
		h.Navigator.Navigate(nav.Login)
		return result, nil
	}

	if params.Token != "" {
		if err := h.Session.Write(params.Token); err != nil {
			return result, fmt.Errorf("failed to store credential: %w", err)
		}
		if h.Cookies != nil {
			if err := h.Cookies.MirrorSessionCookie(params.Token); err != nil {
				h.Log.Warn().Err(err).Msg("failed to mirror session cookie")
			}
		}

		h.Log.Debug().Msg("oauth credential stored")
		h.Notifier.Notify(nav.Success, msgSuccess)
		result.Outcome = LoggedIn
		result.Route = nav.Dashboard
		return result, h.navigateAfter(ctx, h.SuccessDelay, nav.Dashboard)
	}

	h.Log.Error().Msg("no token found in oauth redirect")
	h.Notifier.Notify(nav.Error, msgNoToken)
	if h.Debug {
		if data, err := json.MarshalIndent(params.Debug, "", "  "); err == nil {
			h.Notifier.Notify(nav.Info, fmt.Sprintf("Debug: URL was %s\n%s", params.Debug.URL, data))
		}
	}
	result.Outcome = NoToken
	result.Route = nav.Login
	return result, h.navigateAfter(ctx, h.FailureDelay, nav.Login)
}

func (h *Handler) navigateAfter(ctx context.Context, delay time.Duration, route string) error {
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return err
	}

	h.Navigator.Navigate(route)
	return nil
}
