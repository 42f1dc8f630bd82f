package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fullstackauth/fsauth/internal/cli/flow"
	"github.com/fullstackauth/fsauth/internal/cli/nav"
)

// NewLogoutCmd creates the logout command
func NewLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.account().Logout(); err != nil {
					return fmt.Errorf("failed to log out: %w", err)
				}
				a.console.Notify(nav.Success, "Logged out")
				return nil
			})
		},
	}
}

// NewRegisterCmd creates the register command
func NewRegisterCmd() *cobra.Command {
	var name, email, password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return runRegister(ctx, a, name, email, password)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Full name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (will prompt twice if not provided)")

	return cmd
}

func runRegister(ctx context.Context, a *app, name, email, password string) error {
	var err error
	if name, err = valueOr(name, "Name", ""); err != nil {
		return err
	}
	if email, err = valueOr(email, "Email", ""); err != nil {
		return err
	}

	confirmPassword := password
	if password == "" {
		if password, err = readPassword("Password"); err != nil {
			return err
		}
		if confirmPassword, err = readPassword("Confirm password"); err != nil {
			return err
		}
	}

	_, err = a.account().Register(ctx, flow.RegisterForm{
		Name:            name,
		Email:           email,
		Password:        password,
		ConfirmPassword: confirmPassword,
	})
	if err != nil {
		if errors.Is(err, flow.ErrAccountNotVerified) {
			a.console.Notify(nav.Error, "Account exists but not verified.")
			a.console.Navigate(nav.VerificationSent)
			return err
		}
		a.console.Notify(nav.Error, failureMessage(err, "Failed to create account"))
		return err
	}

	a.console.Notify(nav.Success, "Account created successfully!")
	a.console.Navigate(nav.VerificationSent)
	return nil
}

// NewVerifyCmd creates the verify command
func NewVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token|link>",
		Short: "Verify your email with the token or link from the verification email",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = flow.TokenFromLink(args[0])
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				verifier := flow.NewVerifier(a.api, a.log)
				outcome, err := verifier.Verify(ctx, token)
				if err != nil {
					return err
				}

				if outcome.Kind == flow.Verified {
					a.console.Notify(nav.Success, outcome.Detail)
					a.console.Navigate(nav.Login)
					return nil
				}

				a.console.Notify(nav.Error, outcome.Detail)
				switch outcome.Kind {
				case flow.OutcomeAlreadyVerified:
					a.console.Navigate(nav.Login)
				case flow.OutcomeExpired, flow.OutcomeInvalidToken:
					fmt.Fprintln(a.console.Out, "Request a new link with: fsauth resend-verification")
				}
				return fmt.Errorf("verification failed: %s", outcome.Kind)
			})
		},
	}
}

// NewResendVerificationCmd creates the resend-verification command
func NewResendVerificationCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "resend-verification",
		Short: "Send a new verification email",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if email == "" {
					last, _ := a.memory.LastEmail()
					var err error
					if email, err = promptText("Email", last); err != nil {
						return err
					}
				}

				if _, err := flow.NewVerifier(a.api, a.log).Resend(ctx, email); err != nil {
					a.console.Notify(nav.Error, failureMessage(err, "Failed to resend verification email. Please try again."))
					return err
				}

				if err := a.memory.RememberEmail(email); err != nil {
					a.log.Warn().Err(err).Msg("failed to remember email")
				}
				a.console.Notify(nav.Success, "Verification email has been resent successfully!")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (defaults to the last one used)")

	return cmd
}

// NewPasswordCmd creates the password command group
func NewPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Reset or change your password",
	}

	cmd.AddCommand(newPasswordForgotCmd())
	cmd.AddCommand(newPasswordResetCmd())
	cmd.AddCommand(newPasswordChangeCmd())

	return cmd
}

func newPasswordForgotCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "forgot",
		Short: "Email a password reset link",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				last, _ := a.memory.LastEmail()
				email, err := valueOr(email, "Email", last)
				if err != nil {
					return err
				}

				if _, err := a.account().RequestPasswordReset(ctx, email); err != nil {
					a.console.Notify(nav.Error, failureMessage(err, "Failed to send reset link"))
					return err
				}
				a.console.Notify(nav.Success, "Reset link sent to your email")
				a.console.Navigate(nav.ResetPassword)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address")

	return cmd
}

func newPasswordResetCmd() *cobra.Command {
	var token, password string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Set a new password with the token or link from the reset email",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if flow.TokenFromLink(token) == "" {
					a.console.Notify(nav.Error, "No reset token found in the URL.")
					a.console.Navigate(nav.Login)
					return fmt.Errorf("%w: --token is required", flow.ErrInvalidInput)
				}

				confirmPassword := password
				if password == "" {
					var err error
					if password, err = readPassword("New password"); err != nil {
						return err
					}
					if confirmPassword, err = readPassword("Confirm password"); err != nil {
						return err
					}
				}

				_, err := a.account().ResetPassword(ctx, flow.ResetForm{
					Token:           token,
					Password:        password,
					ConfirmPassword: confirmPassword,
				})
				if err != nil {
					a.console.Notify(nav.Error, failureMessage(err, "Failed to reset password"))
					return err
				}

				a.console.Notify(nav.Success, "Password reset successfully! Please login.")
				a.console.Navigate(nav.Login)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Reset token or the full reset link")
	cmd.Flags().StringVar(&password, "password", "", "New password (will prompt twice if not provided)")

	return cmd
}
