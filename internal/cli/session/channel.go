package session

import (
	"context"
	"sync"
)

// Channel carries a zero-payload "session changed" signal between Stores.
// Implementations must not deliver a signal back to the endpoint that published it.
type Channel interface {
	// Publish announces a change to every other endpoint
	Publish() error
	// Listen delivers signals from other endpoints until ctx is done.
	// It returns once listening has started.
	Listen(ctx context.Context, deliver func()) error
	// Close releases the endpoint
	Close() error
}

// Bus is an in-memory broadcast medium connecting BusChannel endpoints in one process
type Bus struct {
	mu        sync.Mutex
	endpoints map[*BusChannel]struct{}
}

// NewBus creates an empty Bus
func NewBus() *Bus {
	return &Bus{endpoints: make(map[*BusChannel]struct{})}
}

// Channel returns a new endpoint attached to the bus
func (b *Bus) Channel() *BusChannel {
	return &BusChannel{bus: b}
}

func (b *Bus) attach(c *BusChannel) {
	b.mu.Lock()
	b.endpoints[c] = struct{}{}
	b.mu.Unlock()
}

func (b *Bus) detach(c *BusChannel) {
	b.mu.Lock()
	delete(b.endpoints, c)
	b.mu.Unlock()
}

func (b *Bus) broadcast(from *BusChannel) {
	b.mu.Lock()
	targets := make([]*BusChannel, 0, len(b.endpoints))
	for c := range b.endpoints {
		if c != from {
			targets = append(targets, c)
		}
	}
	b.mu.Unlock()

	for _, c := range targets {
		c.enqueue()
	}
}

// BusChannel is one endpoint of a Bus. Deliveries run on the endpoint's own goroutine.
type BusChannel struct {
	bus *Bus

	mu      sync.Mutex
	pending chan struct{}
}

// Publish signals every other listening endpoint on the bus
func (c *BusChannel) Publish() error {
	c.bus.broadcast(c)
	return nil
}

// Listen attaches the endpoint and starts delivering signals until ctx is done
func (c *BusChannel) Listen(ctx context.Context, deliver func()) error {
	pending := make(chan struct{}, 1)

	c.mu.Lock()
	c.pending = pending
	c.mu.Unlock()
	c.bus.attach(c)

	go func() {
		defer c.bus.detach(c)
		for {
			select {
			case <-ctx.Done():
				return
			case <-pending:
				deliver()
			}
		}
	}()
	return nil
}

// Close detaches the endpoint from the bus
func (c *BusChannel) Close() error {
	c.bus.detach(c)
	return nil
}

// enqueue coalesces signals: a burst of changes yields at least one delivery
func (c *BusChannel) enqueue() {
	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()
	if pending == nil {
		return
	}
	select {
	case pending <- struct{}{}:
	default:
	}
}
