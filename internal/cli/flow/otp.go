// Package flow drives the multi-step account flows: OTP-gated changes,
// email verification and the login/registration/reset forms.
//
// Every suspendable operation captures an ownership generation when it starts.
// Cancel and Reset advance the generation; a result arriving for an older
// generation, or after its context was cancelled, is discarded with ErrStale
// instead of being applied.
package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrStale is returned when an operation's result was discarded because the
	// flow was cancelled, reset or its context ended while it was in flight
	ErrStale = errors.New("flow result discarded")

	// ErrBusy is returned when an operation is started while another is in flight
	ErrBusy = errors.New("flow operation already in progress")

	// ErrNotPending is returned by Verify outside the pending-otp phase
	ErrNotPending = errors.New("no verification code pending")

	// ErrNotCollecting is returned by Init once a code has been requested or the change committed
	ErrNotCollecting = errors.New("flow is not collecting input")

	// ErrAfterCommit wraps a failure of the post-commit hook; the change itself was applied
	ErrAfterCommit = errors.New("change applied but follow-up failed")
)

// Phase is the position of an OTP challenge
type Phase int

const (
	Collecting Phase = iota
	PendingOtp
	Committed
)

func (p Phase) String() string {
	switch p {
	case PendingOtp:
		return "pending-otp"
	case Committed:
		return "committed"
	default:
		return "collecting"
	}
}

// Challenge is the observable state of an OTP flow
type Challenge struct {
	Subject string
	Phase   Phase
	// PendingValue is the new password or new email carried from Init into Verify
	PendingValue string
	AuxSecret    string
}

// Subject is the per-flow strategy plugged into a Controller
type Subject[P any] interface {
	// Name identifies the subject ("password", "email")
	Name() string
	// Validate checks payload locally; it never touches the network
	Validate(payload P) error
	// Init requests the one-time code
	Init(ctx context.Context, payload P) error
	// Pending returns the values retained for Verify
	Pending(payload P) (value, aux string)
	// Verify submits otp with the retained values
	Verify(ctx context.Context, otp string, challenge Challenge) error
}

// Controller is the two-phase collecting -> pending-otp -> committed state machine
type Controller[P any] struct {
	subject  Subject[P]
	onCommit func(ctx context.Context) error
	log      zerolog.Logger

	mu         sync.Mutex
	state      Challenge
	generation uint64
	busy       bool
}

// ControllerOption configures a Controller
type ControllerOption func(*controllerOptions)

type controllerOptions struct {
	onCommit func(ctx context.Context) error
	log      zerolog.Logger
}

// WithOnCommit runs hook after a successful Verify
func WithOnCommit(hook func(ctx context.Context) error) ControllerOption {
	return func(o *controllerOptions) {
		o.onCommit = hook
	}
}

// WithLogger sets the controller logger
func WithLogger(log zerolog.Logger) ControllerOption {
	return func(o *controllerOptions) {
		o.log = log
	}
}

// NewController creates a Controller for subject in the Collecting phase
func NewController[P any](subject Subject[P], opts ...ControllerOption) *Controller[P] {
	o := controllerOptions{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Controller[P]{
		subject:  subject,
		onCommit: o.onCommit,
		log:      o.log.With().Str("subject", subject.Name()).Logger(),
		state:    Challenge{Subject: subject.Name(), Phase: Collecting},
	}
}

// State returns a snapshot of the challenge
func (c *Controller[P]) State() Challenge {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Init validates payload and requests a code. On success the flow moves to
// PendingOtp; on failure it stays in Collecting and the error is returned.
func (c *Controller[P]) Init(ctx context.Context, payload P) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.state.Phase != Collecting {
		c.mu.Unlock()
		return ErrNotCollecting
	}
	if err := c.subject.Validate(payload); err != nil {
		c.mu.Unlock()
		return err
	}
	gen := c.begin()
	c.mu.Unlock()

	err := c.subject.Init(ctx, payload)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.end(ctx, gen) {
		c.log.Debug().Msg("discarding stale init result")
		return ErrStale
	}
	if err != nil {
		return err
	}

	value, aux := c.subject.Pending(payload)
	c.state.Phase = PendingOtp
	c.state.PendingValue = value
	c.state.AuxSecret = aux
	c.log.Debug().Msg("verification code requested")
	return nil
}

// Verify submits otp. On success the flow is Committed and the commit hook runs;
// on failure it stays in PendingOtp so another code can be tried.
func (c *Controller[P]) Verify(ctx context.Context, otp string) error {
	otp = strings.TrimSpace(otp)

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.state.Phase != PendingOtp {
		c.mu.Unlock()
		return ErrNotPending
	}
	if otp == "" {
		c.mu.Unlock()
		return fmt.Errorf("%w: verification code is required", ErrInvalidInput)
	}
	challenge := c.state
	gen := c.begin()
	c.mu.Unlock()

	err := c.subject.Verify(ctx, otp, challenge)

	c.mu.Lock()
	if !c.end(ctx, gen) {
		c.mu.Unlock()
		c.log.Debug().Msg("discarding stale verify result")
		return ErrStale
	}
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.state = Challenge{Subject: c.subject.Name(), Phase: Committed}
	c.mu.Unlock()

	c.log.Debug().Msg("change committed")

	if c.onCommit != nil {
		if err := c.onCommit(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrAfterCommit, err)
		}
	}
	return nil
}

// Cancel abandons a pending code, returning to Collecting without the retained values.
// Any in-flight result is discarded.
func (c *Controller[P]) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.invalidate()
	if c.state.Phase == PendingOtp {
		c.state = Challenge{Subject: c.subject.Name(), Phase: Collecting}
	}
}

// Reset returns to a fresh Collecting state from any phase
func (c *Controller[P]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.invalidate()
	c.state = Challenge{Subject: c.subject.Name(), Phase: Collecting}
}

// begin marks an operation in flight and returns its generation. c.mu must be held.
func (c *Controller[P]) begin() uint64 {
	c.busy = true
	return c.generation
}

// end reports whether the operation started at gen still owns the flow. c.mu must be held.
func (c *Controller[P]) end(ctx context.Context, gen uint64) bool {
	if gen != c.generation {
		return false
	}
	c.busy = false
	return ctx.Err() == nil
}

func (c *Controller[P]) invalidate() {
	c.generation++
	c.busy = false
}
