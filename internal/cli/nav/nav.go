// Package nav defines the navigation and notification contracts that flows report through.
package nav

import (
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// Route names shared by flows and views
const (
	Login            = "/login"
	Register         = "/register"
	Dashboard        = "/dashboard"
	Profile          = "/profile"
	VerificationSent = "/verification-sent"
	VerifyEmail      = "/verify-email"
	ForgotPassword   = "/forgot-password"
	ResetPassword    = "/reset-password"
	OAuthRedirect    = "/oauth2/redirect"
)

// Navigator moves the user to a route
type Navigator interface {
	Navigate(route string)
}

// Level is the severity of a notification
type Level int

const (
	Info Level = iota
	Success
	Error
)

func (l Level) String() string {
	switch l {
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Notifier shows transient user-visible messages
type Notifier interface {
	Notify(level Level, message string)
}

// Console prints navigation and notifications for a terminal user
type Console struct {
	Out io.Writer
	Err io.Writer
	Log zerolog.Logger
}

// Navigate prints the next step for route
func (c *Console) Navigate(route string) {
	c.Log.Debug().Str("route", route).Msg("navigate")
	if hint := nextStep(route); hint != "" {
		fmt.Fprintln(c.Out, hint)
	}
}

// Notify prints message; errors go to Err
func (c *Console) Notify(level Level, message string) {
	switch level {
	case Error:
		fmt.Fprintf(c.Err, "✗ %s\n", message)
	case Success:
		fmt.Fprintf(c.Out, "✓ %s\n", message)
	default:
		fmt.Fprintln(c.Out, message)
	}
}

func nextStep(route string) string {
	switch route {
	case Login:
		return "Next: fsauth login"
	case Dashboard:
		return "Next: fsauth status"
	case Profile:
		return "Next: fsauth profile show"
	case VerificationSent:
		return "Check your email for a verification link, then run: fsauth verify <link>"
	case ResetPassword:
		return "Next: fsauth password reset --token <token>"
	default:
		return ""
	}
}

// Notification is one recorded Notify call
type Notification struct {
	Level   Level
	Message string
}

// Recorder captures navigation and notifications
type Recorder struct {
	mu            sync.Mutex
	routes        []string
	notifications []Notification
}

// Navigate records route
func (r *Recorder) Navigate(route string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route)
}

// Notify records the message
func (r *Recorder) Notify(level Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, Notification{Level: level, Message: message})
}

// Routes returns the recorded routes in order
func (r *Recorder) Routes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.routes...)
}

// Notifications returns the recorded notifications in order
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notifications...)
}
