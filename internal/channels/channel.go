// Package channels implements the connector fan-in (§6): each adapter
// registered with a Registry normalizes inbound messages into a
// models.Envelope and hands them to a shared handler through one merged
// channel. The Telegram adapter is the one registered by cmd/lunar; the
// CLI REPL and the gateway's HTTP/WebSocket handlers call the agent loop
// directly and are not Registry members.
package channels

import (
	"context"
	"sync"
	"time"

	"github.com/dinh2350/lunar/pkg/models"
)

// Adapter is the minimal contract every channel connector implements.
// Provider is the string used as models.Envelope.Provider and as the key
// into a Registry (e.g. "telegram", "websocket", "http", "cli").
type Adapter interface {
	Provider() string
}

// LifecycleAdapter is implemented by adapters with a background polling or
// serving loop to start and stop (the Telegram per-update poll loop, for
// instance; HTTP/WebSocket adapters are driven by the gateway's own server
// lifecycle and need not implement this).
type LifecycleAdapter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// OutboundAdapter is implemented by adapters that can deliver a reply back
// to the original peer.
type OutboundAdapter interface {
	Send(ctx context.Context, env models.Envelope, reply string) error
}

// InboundAdapter is implemented by adapters that emit normalized inbound
// envelopes.
type InboundAdapter interface {
	Envelopes() <-chan models.Envelope
}

// Status is the connection status of a channel, surfaced on
// GET /api/metrics/health-style health checks.
type Status struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
	LastPing  int64  `json:"last_ping,omitempty"`
}

// HealthAdapter is implemented by adapters that can report their own
// connection status.
type HealthAdapter interface {
	Status() Status
}

// FullAdapter aggregates every adapter capability, for convenience when an
// adapter implements the whole surface (as Telegram does).
type FullAdapter interface {
	Adapter
	LifecycleAdapter
	OutboundAdapter
	InboundAdapter
	HealthAdapter
}

// Registry holds every configured channel adapter, keyed by provider
// string, and fans their inbound envelopes into one merged stream.
type Registry struct {
	mu        sync.RWMutex
	adapters  map[string]Adapter
	inbound   map[string]InboundAdapter
	outbound  map[string]OutboundAdapter
	lifecycle map[string]LifecycleAdapter
	health    map[string]HealthAdapter
}

// NewRegistry builds an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters:  make(map[string]Adapter),
		inbound:   make(map[string]InboundAdapter),
		outbound:  make(map[string]OutboundAdapter),
		lifecycle: make(map[string]LifecycleAdapter),
		health:    make(map[string]HealthAdapter),
	}
}

// Register installs an adapter under its provider string, wiring up
// whichever optional capability interfaces it also implements.
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()

	provider := adapter.Provider()
	r.adapters[provider] = adapter

	if inbound, ok := adapter.(InboundAdapter); ok {
		r.inbound[provider] = inbound
	}
	if outbound, ok := adapter.(OutboundAdapter); ok {
		r.outbound[provider] = outbound
	}
	if lifecycle, ok := adapter.(LifecycleAdapter); ok {
		r.lifecycle[provider] = lifecycle
	}
	if health, ok := adapter.(HealthAdapter); ok {
		r.health[provider] = health
	}
}

// Get returns the adapter registered for provider, if any.
func (r *Registry) Get(provider string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[provider]
	return a, ok
}

// Outbound returns the adapter that can deliver a reply for provider.
func (r *Registry) Outbound(provider string) (OutboundAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.outbound[provider]
	return a, ok
}

// HealthStatuses snapshots the status of every adapter that reports one,
// keyed by provider string.
func (r *Registry) HealthStatuses() map[string]Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Status, len(r.health))
	for provider, adapter := range r.health {
		out[provider] = adapter.Status()
	}
	return out
}

// StartAll starts every registered adapter with a lifecycle. The first
// error stops the start sequence; already-started adapters are left
// running for the caller to stop via StopAll.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, adapter := range r.lifecycle {
		if err := adapter.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops every registered adapter, collecting the last error seen
// so one slow or failing adapter doesn't block the others from stopping.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var lastErr error
	for _, adapter := range r.lifecycle {
		if err := adapter.Stop(ctx); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Fan merges every registered adapter's inbound envelope stream into one
// channel, closed once ctx is cancelled or every adapter's own stream
// closes.
func (r *Registry) Fan(ctx context.Context) <-chan models.Envelope {
	r.mu.RLock()
	inbound := make([]InboundAdapter, 0, len(r.inbound))
	for _, a := range r.inbound {
		inbound = append(inbound, a)
	}
	r.mu.RUnlock()

	out := make(chan models.Envelope)
	var wg sync.WaitGroup
	for _, adapter := range inbound {
		wg.Add(1)
		go func(a InboundAdapter) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case env, ok := <-a.Envelopes():
					if !ok {
						return
					}
					select {
					case out <- env:
					case <-ctx.Done():
						return
					}
				}
			}
		}(adapter)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

// ConnStatus is a small helper every adapter embeds to track its own
// connection state, satisfying HealthAdapter without boilerplate.
type ConnStatus struct {
	mu        sync.Mutex
	connected bool
	lastErr   string
	lastPing  time.Time
}

// MarkConnected records a successful connect/poll/read.
func (c *ConnStatus) MarkConnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	c.lastErr = ""
	c.lastPing = time.Now()
}

// MarkError records a failure, marking the adapter disconnected.
func (c *ConnStatus) MarkError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if err != nil {
		c.lastErr = err.Error()
	}
}

// Status satisfies HealthAdapter.
func (c *ConnStatus) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	var lastPing int64
	if !c.lastPing.IsZero() {
		lastPing = c.lastPing.UnixMilli()
	}
	return Status{Connected: c.connected, Error: c.lastErr, LastPing: lastPing}
}
