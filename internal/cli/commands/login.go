package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/fullstackauth/fsauth/internal/cli/client"
	"github.com/fullstackauth/fsauth/internal/cli/flow"
	"github.com/fullstackauth/fsauth/internal/cli/nav"
	"github.com/fullstackauth/fsauth/internal/cli/oauth"
)

// NewLoginCmd creates the login command
func NewLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with email and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return runLogin(ctx, a, email, password)
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (or set FSAUTH_EMAIL)")
	cmd.Flags().StringVar(&password, "password", "", "Password (or set FSAUTH_PASSWORD, will prompt if not provided)")

	cmd.AddCommand(newLoginGoogleCmd())

	return cmd
}

func runLogin(ctx context.Context, a *app, email, password string) error {
	// Check for environment variables (useful for scripts)
	if email == "" {
		email = os.Getenv("FSAUTH_EMAIL")
	}
	if password == "" {
		password = os.Getenv("FSAUTH_PASSWORD")
	}

	last, _ := a.memory.LastEmail()
	email, err := valueOr(email, "Email", last)
	if err != nil {
		return err
	}
	password, err = secretOr(password, "Password")
	if err != nil {
		return err
	}

	_, err = a.account().Login(ctx, flow.LoginForm{Email: email, Password: password})
	if err != nil {
		if errors.Is(err, flow.ErrAccountNotVerified) {
			a.console.Notify(nav.Error, "Account not verified. Please check your email.")
			a.console.Navigate(nav.VerificationSent)
			return err
		}
		a.console.Notify(nav.Error, failureMessage(err, "Failed to login"))
		return err
	}

	a.console.Notify(nav.Success, "Logged in successfully")
	a.console.Navigate(nav.Dashboard)
	return nil
}

func newLoginGoogleCmd() *cobra.Command {
	var listen, noBrowser bool

	cmd := &cobra.Command{
		Use:   "google",
		Short: "Log in with Google",
		Long: `Opens the Google sign-in page of the backend in your browser.

With --listen, a local server on the configured frontend origin receives the
redirect and stores the session. Otherwise, copy the URL the browser lands on
and pass it to 'fsauth oauth complete'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return runLoginGoogle(ctx, a, listen, noBrowser)
			})
		},
	}

	cmd.Flags().BoolVar(&listen, "listen", false, "Receive the redirect on the frontend origin")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Print the sign-in URL instead of opening a browser")

	return cmd
}

func runLoginGoogle(ctx context.Context, a *app, listen, noBrowser bool) error {
	authURL := client.GoogleAuthorizationURL(a.cfg.BackendURL)

	var callback *oauth.Callback
	if listen {
		var err error
		callback, err = oauth.NewCallback(a.oauthHandler(), a.cfg.OAuthRedirectURL(), a.log)
		if err != nil {
			return err
		}
		addr, err := callback.Start()
		if err != nil {
			return err
		}
		defer callback.Shutdown(context.Background())
		a.log.Debug().Str("addr", addr).Msg("waiting for oauth redirect")
	}

	fmt.Fprintf(a.console.Out, "Sign in at: %s\n", authURL)
	if !noBrowser {
		if err := openBrowser(authURL); err != nil {
			a.console.Notify(nav.Error, "Failed to initiate Google login")
			a.log.Debug().Err(err).Msg("failed to open browser")
		}
	}

	if callback == nil {
		fmt.Fprintln(a.console.Out, "Then run: fsauth oauth complete '<redirect-url>'")
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	result, err := callback.Wait(ctx)
	if err != nil {
		return fmt.Errorf("sign-in was not completed: %w", err)
	}
	return resultError(result)
}

func (a *app) oauthHandler() *oauth.Handler {
	h := oauth.NewHandler(a.store, a.api, a.console, a.console)
	h.Log = a.log
	h.Debug = a.cfg.OAuthDebug
	return h
}

// NewOAuthCmd creates the oauth command group
func NewOAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oauth",
		Short: "Federated login helpers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "complete <redirect-url>",
		Short: "Finish a Google login from the URL the browser was redirected to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				result, err := a.oauthHandler().Handle(ctx, args[0])
				if err != nil {
					return err
				}
				return resultError(result)
			})
		},
	})

	return cmd
}

func resultError(result oauth.Result) error {
	switch result.Outcome {
	case oauth.LoggedIn:
		return nil
	case oauth.Failed:
		return fmt.Errorf("oauth2 login failed: %s", result.Error)
	default:
		return errors.New("no authentication token received")
	}
}

// failureMessage is the user-facing text for a failed operation
func failureMessage(err error, fallback string) string {
	switch flow.Classify(err) {
	case flow.Network:
		return "Cannot reach the server. Check your connection and try again."
	case flow.Mismatch:
		return "Passwords do not match"
	}
	if msg := client.MessageOf(err); msg != "" {
		return msg
	}
	return fallback
}
