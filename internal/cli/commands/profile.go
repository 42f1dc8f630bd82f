package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fullstackauth/fsauth/internal/cli/client"
	"github.com/fullstackauth/fsauth/internal/cli/flow"
	"github.com/fullstackauth/fsauth/internal/cli/nav"
)

// NewProfileCmd creates the profile command group
func NewProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "View and edit your account",
	}

	cmd.AddCommand(newProfileShowCmd())
	cmd.AddCommand(newProfileUpdateCmd())

	return cmd
}

func newProfileShowCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show your profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.requireRoute(ctx, nav.Profile); err != nil {
					return err
				}

				user, err := a.api.GetProfile(ctx)
				if err != nil {
					a.console.Notify(nav.Error, failureMessage(err, "Failed to load profile"))
					return err
				}
				return printUser(a.console.Out, user, output)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json or yaml")

	return cmd
}

func printUser(w io.Writer, user *client.User, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(user)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(user)
	case "text", "":
		verified := "no"
		if user.IsAccountVerified {
			verified = "yes"
		}
		fmt.Fprintf(w, "Name:     %s\n", user.Name)
		fmt.Fprintf(w, "Email:    %s\n", user.Email)
		fmt.Fprintf(w, "Verified: %s\n", verified)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func newProfileUpdateCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change your display name",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.requireRoute(ctx, nav.Profile); err != nil {
					return err
				}

				name, err := valueOr(name, "Name", "")
				if err != nil {
					return err
				}

				user, err := a.api.UpdateProfile(ctx, client.UpdateProfileRequest{Name: name})
				if err != nil {
					a.console.Notify(nav.Error, failureMessage(err, "Failed to update profile"))
					return err
				}
				a.console.Notify(nav.Success, "Profile updated successfully")
				return printUser(a.console.Out, user, "text")
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "New display name")

	return cmd
}

func newPasswordChangeCmd() *cobra.Command {
	var oldPassword, newPassword, otp string

	cmd := &cobra.Command{
		Use:   "change",
		Short: "Change your password; a verification code is emailed to confirm",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.requireRoute(ctx, nav.Profile); err != nil {
					return err
				}

				var err error
				if oldPassword, err = secretOr(oldPassword, "Current password"); err != nil {
					return err
				}
				confirmPassword := newPassword
				if newPassword == "" {
					if newPassword, err = readPassword("New password"); err != nil {
						return err
					}
					if confirmPassword, err = readPassword("Confirm new password"); err != nil {
						return err
					}
				}

				ctrl := flow.NewPasswordChange(a.api, flow.WithLogger(a.log))
				payload := flow.PasswordChange{
					OldPassword:     oldPassword,
					NewPassword:     newPassword,
					ConfirmPassword: confirmPassword,
				}
				if err := runOTPChange(ctx, a, ctrl, payload, otp); err != nil {
					return err
				}
				a.console.Notify(nav.Success, "Password changed successfully")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&oldPassword, "old", "", "Current password")
	cmd.Flags().StringVar(&newPassword, "new", "", "New password (will prompt twice if not provided)")
	cmd.Flags().StringVar(&otp, "otp", "", "Verification code; prompts after the code is sent if not provided")

	return cmd
}

// NewEmailCmd creates the email command group
func NewEmailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "email",
		Short: "Manage your account email",
	}

	var newEmail, password, otp string

	change := &cobra.Command{
		Use:   "change",
		Short: "Change your email; a verification code is sent to confirm",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.requireRoute(ctx, nav.Profile); err != nil {
					return err
				}

				var err error
				if newEmail, err = valueOr(newEmail, "New email", ""); err != nil {
					return err
				}
				if password, err = secretOr(password, "Password"); err != nil {
					return err
				}

				ctrl := flow.NewEmailChange(a.api, a.reloadProfile, flow.WithLogger(a.log))
				err = runOTPChange(ctx, a, ctrl, flow.EmailChange{NewEmail: newEmail, Password: password}, otp)
				if errors.Is(err, flow.ErrAfterCommit) {
					a.console.Notify(nav.Success, "Email changed successfully")
					a.console.Notify(nav.Error, "Failed to reload profile")
					return nil
				}
				if err != nil {
					return err
				}
				a.console.Notify(nav.Success, "Email changed successfully")
				return nil
			})
		},
	}

	change.Flags().StringVar(&newEmail, "new-email", "", "New email address")
	change.Flags().StringVar(&password, "password", "", "Current password")
	change.Flags().StringVar(&otp, "otp", "", "Verification code; prompts after the code is sent if not provided")

	cmd.AddCommand(change)
	return cmd
}

// reloadProfile refreshes the remembered email after an identity change
func (a *app) reloadProfile(ctx context.Context) error {
	user, err := a.api.GetProfile(ctx)
	if err != nil {
		return err
	}
	if err := a.memory.RememberEmail(user.Email); err != nil {
		a.log.Warn().Err(err).Msg("failed to remember email")
	}
	return printUser(a.console.Out, user, "text")
}

// runOTPChange requests a code and submits it. With a code from a flag a rejected
// code is final; a prompted code can be retried until the prompt is interrupted.
func runOTPChange[P any](ctx context.Context, a *app, ctrl *flow.Controller[P], payload P, otp string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if err := ctrl.Init(ctx, payload); err != nil {
		a.console.Notify(nav.Error, failureMessage(err, "Failed to send verification code"))
		return err
	}
	a.console.Notify(nav.Info, fmt.Sprintf("Verification code sent for %s change", ctrl.State().Subject))

	for {
		code := otp
		if code == "" {
			var err error
			code, err = promptOTP()
			if err != nil {
				ctrl.Cancel()
				if errors.Is(err, promptui.ErrInterrupt) {
					return errors.New("cancelled")
				}
				return err
			}
		}

		err := ctrl.Verify(ctx, code)
		if err == nil || errors.Is(err, flow.ErrAfterCommit) {
			return err
		}

		a.console.Notify(nav.Error, failureMessage(err, "Invalid or expired code"))
		if otp != "" || errors.Is(err, flow.ErrStale) {
			ctrl.Cancel()
			return err
		}
	}
}
