package flow

import (
	"context"
)

// PasswordChange is the phase-1 input of the change-password flow
type PasswordChange struct {
	OldPassword     string `validate:"required"`
	NewPassword     string `validate:"required"`
	ConfirmPassword string `validate:"eqfield=NewPassword"`
}

// PasswordAPI is the backend surface of the change-password flow
type PasswordAPI interface {
	InitChangePassword(ctx context.Context, oldPassword, newPassword string) error
	VerifyChangePassword(ctx context.Context, otp, newPassword string) error
}

type passwordSubject struct {
	api PasswordAPI
}

// NewPasswordChange creates the change-password flow.
// The new password is retained and re-submitted with the code.
func NewPasswordChange(api PasswordAPI, opts ...ControllerOption) *Controller[PasswordChange] {
	return NewController[PasswordChange](passwordSubject{api: api}, opts...)
}

func (passwordSubject) Name() string { return "password" }

func (passwordSubject) Validate(p PasswordChange) error {
	return validateForm(p)
}

func (s passwordSubject) Init(ctx context.Context, p PasswordChange) error {
	return s.api.InitChangePassword(ctx, p.OldPassword, p.NewPassword)
}

func (passwordSubject) Pending(p PasswordChange) (string, string) {
	return p.NewPassword, ""
}

func (s passwordSubject) Verify(ctx context.Context, otp string, challenge Challenge) error {
	return s.api.VerifyChangePassword(ctx, otp, challenge.PendingValue)
}

// EmailChange is the phase-1 input of the change-email flow
type EmailChange struct {
	NewEmail string `validate:"required,email"`
	Password string `validate:"required"`
}

// EmailAPI is the backend surface of the change-email flow
type EmailAPI interface {
	InitChangeEmail(ctx context.Context, newEmail, password string) error
	VerifyChangeEmail(ctx context.Context, otp string) error
}

type emailSubject struct {
	api EmailAPI
}

// NewEmailChange creates the change-email flow. reload runs after the change is
// committed, since the account's identity attribute changed; it may be nil.
func NewEmailChange(api EmailAPI, reload func(ctx context.Context) error, opts ...ControllerOption) *Controller[EmailChange] {
	if reload != nil {
		opts = append([]ControllerOption{WithOnCommit(reload)}, opts...)
	}
	return NewController[EmailChange](emailSubject{api: api}, opts...)
}

func (emailSubject) Name() string { return "email" }

func (emailSubject) Validate(e EmailChange) error {
	return validateForm(e)
}

func (s emailSubject) Init(ctx context.Context, e EmailChange) error {
	return s.api.InitChangeEmail(ctx, e.NewEmail, e.Password)
}

func (emailSubject) Pending(e EmailChange) (string, string) {
	return e.NewEmail, ""
}

func (s emailSubject) Verify(ctx context.Context, otp string, _ Challenge) error {
	return s.api.VerifyChangeEmail(ctx, otp)
}
