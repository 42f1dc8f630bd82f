package flow

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/fullstackauth/fsauth/internal/cli/client"
)

// OutcomeKind tags a VerificationOutcome
type OutcomeKind int

const (
	Verifying OutcomeKind = iota
	Verified
	OutcomeExpired
	OutcomeInvalidToken
	OutcomeAlreadyVerified
	UnknownFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case Verified:
		return "verified"
	case OutcomeExpired:
		return "expired"
	case OutcomeInvalidToken:
		return "invalid-token"
	case OutcomeAlreadyVerified:
		return "already-verified"
	case UnknownFailure:
		return "unknown-failure"
	default:
		return "verifying"
	}
}

// Outcome is the result of one verification attempt. Detail is the human-readable explanation.
type Outcome struct {
	Kind   OutcomeKind
	Detail string
}

const (
	msgVerifying      = "Verifying your email..."
	msgVerified       = "Email verified successfully! You can now login."
	msgNoToken        = "No verification token found."
	msgVerifyFallback = "Failed to verify email. The token may be invalid or expired."
)

// VerificationAPI is the backend surface of email verification
type VerificationAPI interface {
	VerifyEmail(ctx context.Context, token string) (*client.Ack, error)
	ResendVerification(ctx context.Context, email string) (*client.Ack, error)
}

// Verifier consumes email-verification tokens and offers a resend path
type Verifier struct {
	api VerificationAPI
	log zerolog.Logger

	mu         sync.Mutex
	current    Outcome
	generation uint64
}

// NewVerifier creates a Verifier
func NewVerifier(api VerificationAPI, log zerolog.Logger) *Verifier {
	return &Verifier{
		api:     api,
		log:     log,
		current: Outcome{Kind: Verifying, Detail: msgVerifying},
	}
}

// Current returns the last applied outcome
func (v *Verifier) Current() Outcome {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Verify consumes token. An empty token is InvalidToken without a network call.
// The returned error is ErrStale when the result was superseded by Cancel or a
// newer Verify, or ctx ended; the outcome is then not applied.
func (v *Verifier) Verify(ctx context.Context, token string) (Outcome, error) {
	token = strings.TrimSpace(token)

	v.mu.Lock()
	v.generation++
	gen := v.generation
	if token == "" {
		v.current = Outcome{Kind: OutcomeInvalidToken, Detail: msgNoToken}
		v.mu.Unlock()
		return v.current, nil
	}
	v.current = Outcome{Kind: Verifying, Detail: msgVerifying}
	v.mu.Unlock()

	_, err := v.api.VerifyEmail(ctx, token)
	outcome := outcomeOf(err)

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.generation || ctx.Err() != nil {
		v.log.Debug().Msg("discarding stale verification result")
		return outcome, ErrStale
	}
	v.current = outcome
	return outcome, nil
}

// Cancel discards any in-flight verification result
func (v *Verifier) Cancel() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.generation++
}

// Resend requests a fresh verification email for email
func (v *Verifier) Resend(ctx context.Context, email string) (*client.Ack, error) {
	if err := validateForm(emailForm{Email: strings.TrimSpace(email)}); err != nil {
		return nil, err
	}
	return v.api.ResendVerification(ctx, strings.TrimSpace(email))
}

func outcomeOf(err error) Outcome {
	if err == nil {
		return Outcome{Kind: Verified, Detail: msgVerified}
	}

	detail := lo.CoalesceOrEmpty(client.MessageOf(err), msgVerifyFallback)
	switch Classify(err) {
	case Expired:
		return Outcome{Kind: OutcomeExpired, Detail: detail}
	case InvalidToken:
		return Outcome{Kind: OutcomeInvalidToken, Detail: detail}
	case AlreadyVerified:
		return Outcome{Kind: OutcomeAlreadyVerified, Detail: detail}
	default:
		return Outcome{Kind: UnknownFailure, Detail: detail}
	}
}

type emailForm struct {
	Email string `validate:"required,email"`
}

// TokenFromLink returns the token query parameter of a verification or reset
// link, or the input itself when it is not a link.
func TokenFromLink(link string) string {
	link = strings.TrimSpace(link)
	if !strings.Contains(link, "://") && !strings.Contains(link, "?") {
		return link
	}

	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	if token := u.Query().Get("token"); token != "" {
		return token
	}
	if fragment, err := url.ParseQuery(u.EscapedFragment()); err == nil {
		return fragment.Get("token")
	}
	return ""
}

// String renders an outcome for display
func (o Outcome) String() string {
	return fmt.Sprintf("%s: %s", o.Kind, o.Detail)
}
