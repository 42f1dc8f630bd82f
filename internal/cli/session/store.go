// Package session owns the client's single authoritative credential.
//
// A Store persists the credential through an auth.TokenStore and announces
// every change on two paths merged behind Subscribe:
//
//   - local: listeners registered on this Store run synchronously, in
//     registration order, after the write is durable;
//   - cross-context: a Channel carries a zero-payload signal to other Stores
//     sharing the same profile (other processes, other Store instances).
//     Delivery is asynchronous and best-effort, and a Channel never delivers
//     a signal back to the Store that published it.
//
// Listeners receive no payload; they re-read the Store. Writes are free-standing
// and concurrent writers resolve by last-write-wins in the storage backend.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/fullstackauth/fsauth/internal/cli/auth"
)

var (
	// ErrNoSession is returned by Read when no credential is stored
	ErrNoSession = errors.New("no session")

	// ErrEmptyCredential is returned when writing an empty credential
	ErrEmptyCredential = errors.New("credential must not be empty")

	// ErrAlreadyStarted is returned by Start while cross-context delivery is running
	ErrAlreadyStarted = errors.New("session store already started")
)

// Listener is invoked on every session change, local or cross-context
type Listener func()

// Reader is the read-only view of a session that consumers depend on
type Reader interface {
	Read() (string, error)
}

// Store owns the current credential for one scope
type Store struct {
	tokens  auth.TokenStore
	scope   string
	channel Channel
	log     zerolog.Logger

	mu        sync.Mutex
	listeners map[uint64]Listener
	nextID    uint64
	stop      context.CancelFunc
}

// Option configures a Store
type Option func(*Store)

// WithChannel sets the cross-context signal channel
func WithChannel(ch Channel) Option {
	return func(s *Store) {
		s.channel = ch
	}
}

// WithLogger sets the store logger
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) {
		s.log = log
	}
}

// NewStore creates a Store persisting through tokens under scope
func NewStore(tokens auth.TokenStore, scope string, opts ...Option) *Store {
	s := &Store{
		tokens:    tokens,
		scope:     scope,
		log:       zerolog.Nop(),
		listeners: make(map[uint64]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Read returns the stored credential, or ErrNoSession when absent
func (s *Store) Read() (string, error) {
	token, err := s.tokens.LoadToken(s.scope)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return "", ErrNoSession
		}
		s.log.Warn().Err(err).Msg("failed to read session")
		return "", fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	if token == "" {
		return "", ErrNoSession
	}
	return token, nil
}

// Write persists credential and notifies listeners.
// Local listeners have run by the time Write returns; the cross-context
// signal is published afterwards.
func (s *Store) Write(credential string) error {
	if credential == "" {
		return ErrEmptyCredential
	}
	if err := s.tokens.SaveToken(s.scope, credential); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}

	s.log.Debug().Msg("session written")
	s.changed()
	return nil
}

// Clear removes the credential and notifies listeners
func (s *Store) Clear() error {
	if err := s.tokens.DeleteToken(s.scope); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}

	s.log.Debug().Msg("session cleared")
	s.changed()
	return nil
}

// Subscribe registers listener for every change and returns its unsubscribe handle.
// Cross-context deliveries run on the channel's goroutine, so listeners must be
// safe for concurrent use when a channel is attached.
func (s *Store) Subscribe(listener Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Start begins delivering cross-context signals to listeners until ctx is done or Close is called
func (s *Store) Start(ctx context.Context) error {
	if s.channel == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	if err := s.channel.Listen(ctx, s.notify); err != nil {
		cancel()
		return fmt.Errorf("failed to listen for session changes: %w", err)
	}
	s.stop = cancel
	return nil
}

// Close stops cross-context delivery and releases the channel
func (s *Store) Close() error {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if s.channel != nil {
		return s.channel.Close()
	}
	return nil
}

func (s *Store) changed() {
	s.notify()

	if s.channel == nil {
		return
	}
	if err := s.channel.Publish(); err != nil {
		// Best effort: other contexts catch up on their next read
		s.log.Warn().Err(err).Msg("failed to publish session change")
	}
}

// notify runs listeners in registration order outside the lock so they may call back into the Store
func (s *Store) notify() {
	s.mu.Lock()
	ids := lo.Keys(s.listeners)
	slices.Sort(ids)
	listeners := lo.Map(ids, func(id uint64, _ int) Listener { return s.listeners[id] })
	s.mu.Unlock()

	for _, listener := range listeners {
		listener()
	}
}
