package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fullstackauth/fsauth/internal/cli/auth"
	"github.com/fullstackauth/fsauth/internal/cli/client"
	"github.com/fullstackauth/fsauth/internal/cli/flow"
	"github.com/fullstackauth/fsauth/internal/cli/gate"
	"github.com/fullstackauth/fsauth/internal/cli/nav"
	"github.com/fullstackauth/fsauth/internal/cli/session"
	"github.com/fullstackauth/fsauth/internal/cli/userconfig"
	"github.com/fullstackauth/fsauth/internal/config"
	"github.com/fullstackauth/fsauth/internal/logger"
)

// openTokenStore opens the durable credential storage; tests replace it
var openTokenStore = auth.Open

// app bundles the collaborators every command works with
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	tokens  auth.TokenStore
	store   *session.Store
	api     *client.Client
	gate    *gate.Gate
	memory  userconfig.Dir
	console *nav.Console
}

// loadApp builds the app from configuration
func loadApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.InitWithWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Component("cli")

	tokens, err := openTokenStore(cfg.Session.Backend, cfg.Session.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open session storage: %w", err)
	}

	storeOpts := []session.Option{session.WithLogger(logger.Component("session"))}
	channel, err := session.NewFileChannel(cfg.Session.StateDir, logger.Component("session"))
	if err != nil {
		log.Warn().Err(err).Msg("cross-process session signals disabled")
	} else {
		storeOpts = append(storeOpts, session.WithChannel(channel))
	}
	store := session.NewStore(tokens, cfg.SessionScope(), storeOpts...)

	api := client.New(cfg.APIBaseURL(),
		client.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		client.WithTokenSource(store),
		client.WithCookieStore(tokens),
		client.WithProfilePath(cfg.ProfilePath),
		client.WithLogger(logger.Component("client")),
	)

	policy, err := gate.ParsePolicy(cfg.Session.GatePolicy, api)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		log:    log,
		tokens: tokens,
		store:  store,
		api:    api,
		gate: gate.New(store,
			gate.WithPolicy(policy),
			gate.WithProtectedRoutes(cfg.Session.ProtectedRoutes),
			gate.WithLogger(logger.Component("gate")),
		),
		memory: userconfig.Dir(cfg.Session.StateDir),
		console: &nav.Console{
			Out: cmd.OutOrStdout(),
			Err: cmd.ErrOrStderr(),
			Log: logger.Component("nav"),
		},
	}, nil
}

// Close releases the session channel and storage handles
func (a *app) Close() error {
	err := a.store.Close()
	if closer, ok := a.tokens.(io.Closer); ok {
		if cerr := closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (a *app) account() *flow.Account {
	return flow.NewAccount(a.api, a.store, a.memory, a.api, logger.Component("account"))
}

// requireRoute runs the gate for route and reports a denial the way a redirect would
func (a *app) requireRoute(ctx context.Context, route string) error {
	decision, redirect, err := a.gate.Guard(ctx, route)
	if decision == gate.Admit {
		return nil
	}
	if err != nil {
		a.console.Notify(nav.Error, client.MessageOf(err))
	}
	a.console.Notify(nav.Error, "You need to log in first.")
	a.console.Navigate(redirect)
	return errNotLoggedIn
}

// withApp loads the app, runs fn and closes the app
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(cmd.Context(), a)
}
