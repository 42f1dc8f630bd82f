package client

import (
	"context"
	"net/http"
)

// UpdateProfileRequest represents the profile update body. Password is only sent when set.
type UpdateProfileRequest struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
}

// GetProfile returns the signed-in user's profile
func (c *Client) GetProfile(ctx context.Context) (*User, error) {
	var user User
	if err := c.Call(ctx, http.MethodGet, c.profilePath, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile changes profile attributes
func (c *Client) UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*User, error) {
	var user User
	if err := c.Call(ctx, http.MethodPut, c.profilePath, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ChangePasswordInitRequest starts an OTP-gated password change
type ChangePasswordInitRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// ChangePasswordVerifyRequest completes an OTP-gated password change
type ChangePasswordVerifyRequest struct {
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

// InitChangePassword asks the backend to send a password-change OTP
func (c *Client) InitChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	return c.Call(ctx, http.MethodPost, "/profile/change-password/init",
		ChangePasswordInitRequest{OldPassword: oldPassword, NewPassword: newPassword}, nil)
}

// VerifyChangePassword confirms the password change with the emailed OTP
func (c *Client) VerifyChangePassword(ctx context.Context, otp, newPassword string) error {
	return c.Call(ctx, http.MethodPost, "/profile/change-password/verify",
		ChangePasswordVerifyRequest{OTP: otp, NewPassword: newPassword}, nil)
}

// ChangeEmailInitRequest starts an OTP-gated email change
type ChangeEmailInitRequest struct {
	NewEmail string `json:"newEmail"`
	Password string `json:"password"`
}

// ChangeEmailVerifyRequest completes an OTP-gated email change
type ChangeEmailVerifyRequest struct {
	OTP string `json:"otp"`
}

// InitChangeEmail asks the backend to send an OTP to the new address
func (c *Client) InitChangeEmail(ctx context.Context, newEmail, password string) error {
	return c.Call(ctx, http.MethodPost, "/profile/change-email/init",
		ChangeEmailInitRequest{NewEmail: newEmail, Password: password}, nil)
}

// VerifyChangeEmail confirms the email change with the OTP
func (c *Client) VerifyChangeEmail(ctx context.Context, otp string) error {
	return c.Call(ctx, http.MethodPost, "/profile/change-email/verify", ChangeEmailVerifyRequest{OTP: otp}, nil)
}
