package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fullstackauth/fsauth/internal/cli/client"
)

var (
	// ErrAccountNotVerified is returned when the backend reports the account's
	// email has not been verified yet. It wraps the backend error.
	ErrAccountNotVerified = errors.New("account not verified")

	// ErrNoCredential is returned when a successful login carried no token
	ErrNoCredential = errors.New("login response carried no credential")
)

// AccountAPI is the backend surface of the account forms
type AccountAPI interface {
	Login(ctx context.Context, email, password string) (*client.LoginResponse, error)
	Register(ctx context.Context, name, email, password string) (*client.User, error)
	RequestPasswordReset(ctx context.Context, email string) (*client.Ack, error)
	ResetPassword(ctx context.Context, token, newPassword string) (*client.Ack, error)
}

// SessionWriter is the write side of the session store
type SessionWriter interface {
	Write(credential string) error
	Clear() error
}

// EmailMemory remembers the last email a user typed
type EmailMemory interface {
	RememberEmail(email string) error
}

// CookieClearer expires the mirrored session cookie
type CookieClearer interface {
	ClearSessionCookie() error
}

// Account runs login, logout, registration and password-reset forms
type Account struct {
	api     AccountAPI
	session SessionWriter
	memory  EmailMemory
	cookies CookieClearer
	log     zerolog.Logger
}

// NewAccount creates an Account. memory and cookies may be nil.
func NewAccount(api AccountAPI, sess SessionWriter, memory EmailMemory, cookies CookieClearer, log zerolog.Logger) *Account {
	return &Account{api: api, session: sess, memory: memory, cookies: cookies, log: log}
}

// LoginForm is the login input
type LoginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// Login authenticates and stores the credential. The session is untouched on any failure.
func (a *Account) Login(ctx context.Context, form LoginForm) (*client.LoginResponse, error) {
	form.Email = strings.TrimSpace(form.Email)
	if err := validateForm(form); err != nil {
		return nil, err
	}

	resp, err := a.api.Login(ctx, form.Email, form.Password)
	if err != nil {
		if Classify(err) == NotVerified {
			a.remember(form.Email)
			return nil, fmt.Errorf("%w: %w", ErrAccountNotVerified, err)
		}
		return nil, err
	}
	if resp.Token == "" {
		return nil, ErrNoCredential
	}

	if err := a.session.Write(resp.Token); err != nil {
		return nil, err
	}
	a.remember(form.Email)
	a.log.Debug().Msg("logged in")
	return resp, nil
}

// Logout clears the session and the mirrored cookie
func (a *Account) Logout() error {
	if err := a.session.Clear(); err != nil {
		return err
	}
	if a.cookies != nil {
		if err := a.cookies.ClearSessionCookie(); err != nil {
			a.log.Warn().Err(err).Msg("failed to clear session cookie")
		}
	}
	a.log.Debug().Msg("logged out")
	return nil
}

// RegisterForm is the registration input
type RegisterForm struct {
	Name            string `validate:"required"`
	Email           string `validate:"required,email"`
	Password        string `validate:"required"`
	ConfirmPassword string `validate:"eqfield=Password"`
}

// Register creates an unverified account. An account that already exists
// but is not verified yields ErrAccountNotVerified; the email is remembered
// in both cases so verification can be resent.
func (a *Account) Register(ctx context.Context, form RegisterForm) (*client.User, error) {
	form.Email = strings.TrimSpace(form.Email)
	if err := validateForm(form); err != nil {
		return nil, err
	}

	user, err := a.api.Register(ctx, form.Name, form.Email, form.Password)
	if err != nil {
		if Classify(err) == NotVerified {
			a.remember(form.Email)
			return nil, fmt.Errorf("%w: %w", ErrAccountNotVerified, err)
		}
		return nil, err
	}

	a.remember(form.Email)
	return user, nil
}

// RequestPasswordReset sends a reset link to email
func (a *Account) RequestPasswordReset(ctx context.Context, email string) (*client.Ack, error) {
	email = strings.TrimSpace(email)
	if err := validateForm(emailForm{Email: email}); err != nil {
		return nil, err
	}
	return a.api.RequestPasswordReset(ctx, email)
}

// ResetForm is the reset-password input
type ResetForm struct {
	Token           string `validate:"required"`
	Password        string `validate:"required"`
	ConfirmPassword string `validate:"eqfield=Password"`
}

// ResetPassword sets a new password with a reset token
func (a *Account) ResetPassword(ctx context.Context, form ResetForm) (*client.Ack, error) {
	form.Token = TokenFromLink(form.Token)
	if form.Token == "" {
		return nil, fmt.Errorf("%w: no reset token found", ErrInvalidInput)
	}
	if err := validateForm(form); err != nil {
		return nil, err
	}
	return a.api.ResetPassword(ctx, form.Token, form.Password)
}

func (a *Account) remember(email string) {
	if a.memory == nil || email == "" {
		return
	}
	if err := a.memory.RememberEmail(email); err != nil {
		a.log.Warn().Err(err).Msg("failed to remember email")
	}
}
