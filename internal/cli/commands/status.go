package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/fullstackauth/fsauth/internal/cli/gate"
	"github.com/fullstackauth/fsauth/internal/cli/nav"
)

// NewStatusCmd creates the status command
func NewStatusCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether you are signed in",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				out := a.console.Out

				decision, err := a.gate.CanEnter(ctx)
				fmt.Fprintf(out, "Backend:  %s\n", a.cfg.BackendURL)
				fmt.Fprintf(out, "Session:  %s\n", decision.State())
				fmt.Fprintf(out, "Policy:   %s\n", a.cfg.Session.GatePolicy)
				fmt.Fprintf(out, "Protected views: %s\n", decision)
				if err != nil {
					fmt.Fprintf(out, "Policy error: %v\n", err)
				}

				if _, ok := a.api.SessionCookie(); ok {
					fmt.Fprintln(out, "Cookie:   present")
				}

				if check {
					status, err := a.api.IsAuthenticated(ctx)
					switch {
					case err != nil:
						fmt.Fprintf(out, "Server:   %s\n", failureMessage(err, "unavailable"))
					case status.Authenticated:
						fmt.Fprintf(out, "Server:   authenticated as %s\n", status.Email)
					default:
						fmt.Fprintln(out, "Server:   not authenticated")
					}
				}

				if decision != gate.Admit {
					a.console.Navigate(nav.Login)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Also ask the backend whether the session is valid")

	return cmd
}

// NewWatchCmd creates the watch command
func NewWatchCmd() *cobra.Command {
	var recheck string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print session changes made by other fsauth processes until interrupted",
		Long: `Prints the session state whenever another fsauth process signs in or out.

With --recheck, the gate policy is also re-evaluated on a cron schedule
(for example "@every 1m"), so an expiring token shows up without a change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return runWatch(ctx, a, recheck)
			})
		},
	}

	cmd.Flags().StringVar(&recheck, "recheck", "", "Cron schedule for re-evaluating the gate policy")

	return cmd
}

func runWatch(ctx context.Context, a *app, recheck string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	changes := make(chan struct{}, 1)
	signalChange := func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	}
	unsubscribe := a.store.Subscribe(signalChange)
	defer unsubscribe()

	if recheck != "" {
		scheduler := cron.New()
		if _, err := scheduler.AddFunc(recheck, signalChange); err != nil {
			return fmt.Errorf("invalid --recheck schedule: %w", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	if err := a.store.Start(ctx); err != nil {
		return err
	}

	last, err := a.gate.CanEnter(ctx)
	fmt.Fprintf(a.console.Out, "Session: %s (%s)\n", last.State(), last)
	if err != nil {
		a.log.Warn().Err(err).Msg("gate policy failed")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			decision, err := a.gate.CanEnter(ctx)
			if err != nil {
				a.log.Warn().Err(err).Msg("gate policy failed")
			}
			if decision == last && recheck != "" {
				continue
			}
			last = decision
			fmt.Fprintf(a.console.Out, "%s session: %s (%s)\n", time.Now().Format(time.TimeOnly), decision.State(), decision)
		}
	}
}
