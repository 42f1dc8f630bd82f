package client

import (
	"context"
	"net/http"
	"net/url"
)

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

// Login authenticates the user and returns the session credential
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.Call(ctx, http.MethodPost, "/auth/login", LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// User is the account shape returned by registration and profile endpoints
type User struct {
	UserID            string `json:"userId" yaml:"userId"`
	Name              string `json:"name" yaml:"name"`
	Email             string `json:"email" yaml:"email"`
	IsAccountVerified bool   `json:"isAccountVerified" yaml:"isAccountVerified"`
}

// Register creates a new, unverified account
func (c *Client) Register(ctx context.Context, name, email, password string) (*User, error) {
	var user User
	if err := c.Call(ctx, http.MethodPost, "/auth/register", RegisterRequest{Name: name, Email: email, Password: password}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SessionStatus represents the isAuthenticated response
type SessionStatus struct {
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
}

// IsAuthenticated asks the backend whether the current credential is valid
func (c *Client) IsAuthenticated(ctx context.Context) (*SessionStatus, error) {
	var status SessionStatus
	if err := c.Call(ctx, http.MethodGet, "/auth/isAuthenticated", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// EmailRequest is the body shared by resend-verification and request-password-reset
type EmailRequest struct {
	Email string `json:"email"`
}

// Ack is the generic success acknowledgement
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Email   string `json:"email,omitempty"`
}

// ResendVerification sends a fresh verification email
func (c *Client) ResendVerification(ctx context.Context, email string) (*Ack, error) {
	var ack Ack
	if err := c.Call(ctx, http.MethodPost, "/auth/resend-verification", EmailRequest{Email: email}, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// VerifyEmail consumes a one-time email verification token
func (c *Client) VerifyEmail(ctx context.Context, token string) (*Ack, error) {
	var ack Ack
	if err := c.Call(ctx, http.MethodGet, "/auth/verify?token="+url.QueryEscape(token), nil, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// RequestPasswordReset sends a password reset link
func (c *Client) RequestPasswordReset(ctx context.Context, email string) (*Ack, error) {
	var ack Ack
	if err := c.Call(ctx, http.MethodPost, "/auth/request-password-reset", EmailRequest{Email: email}, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// ResetPasswordRequest represents the reset-password request body
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// ResetPassword sets a new password using a reset token
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) (*Ack, error) {
	var ack Ack
	if err := c.Call(ctx, http.MethodPost, "/auth/reset-password", ResetPasswordRequest{Token: token, NewPassword: newPassword}, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}
