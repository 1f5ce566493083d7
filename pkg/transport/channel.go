// Package transport defines the contract between the CTAP2 protocol engine
// and a concrete authenticator transport: an ordered, message-framed,
// bidirectional channel with UX-event fan-out and a connection-state watch.
package transport

import (
	"context"
	"sync"

	"github.com/jo-bitsch/libwebauthn/pkg/ctap2"
)

// TransportError is a transport-level failure.
type TransportError string

// Transport errors.
const (
	ErrTimeout              TransportError = "timeout"
	ErrDisconnected         TransportError = "disconnected"
	ErrInvalidFraming       TransportError = "invalid framing"
	ErrInvalidState         TransportError = "invalid channel state"
	ErrTransportUnavailable TransportError = "transport unavailable"
)

func (e TransportError) Error() string { return string(e) }

// Channel is one live connection to one authenticator. A channel carries at
// most one request at a time: CborSend and CborRecv are strictly paired,
// and violating the pairing fails with ErrInvalidState. Channels are
// single-consumer for requests but fan UX events out to any number of
// subscribers.
type Channel interface {
	// CborSend submits one framed CTAP2 request.
	CborSend(ctx context.Context, req *ctap2.CborRequest) error
	// CborRecv receives the response to the previous CborSend.
	CborRecv(ctx context.Context) (*ctap2.CborResponse, error)
	// Wink asks the authenticator to identify itself; ignored where
	// unsupported.
	Wink(ctx context.Context) error
	// UxBus returns the channel's UX update bus.
	UxBus() *UxBus
	// States returns the channel's connection-state watch.
	States() *StateWatch
	// Close terminates the channel.
	Close() error
}

// ConnectionState is the lifecycle state of a channel.
type ConnectionState int

const (
	StateConnecting ConnectionState = iota
	StateConnected
	StateAuthenticating
	StateReady
	StateTerminated
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateTerminated:
		return "terminated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateWatch is a latest-value stream over connection states. Intermediate
// states may be conflated away; the watcher always observes the newest.
type StateWatch struct {
	mu      sync.Mutex
	current ConnectionState
	changes chan ConnectionState
}

// NewStateWatch creates a watch starting in the given state.
func NewStateWatch(initial ConnectionState) *StateWatch {
	return &StateWatch{
		current: initial,
		changes: make(chan ConnectionState, 1),
	}
}

// Get returns the current state.
func (w *StateWatch) Get() ConnectionState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Set publishes a new state, replacing any unobserved previous value.
func (w *StateWatch) Set(s ConnectionState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = s
	select {
	case <-w.changes:
	default:
	}
	w.changes <- s
}

// Changes returns the conflated state stream.
func (w *StateWatch) Changes() <-chan ConnectionState {
	return w.changes
}

// InflightGuard enforces the one-request-in-flight rule shared by all
// channel implementations.
type InflightGuard struct {
	mu       sync.Mutex
	inflight bool
}

// BeginSend marks a request in flight; a second send without an
// intervening receive fails with ErrInvalidState.
func (g *InflightGuard) BeginSend() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inflight {
		return ErrInvalidState
	}
	g.inflight = true
	return nil
}

// BeginRecv checks that a request is in flight; a receive without a
// matching send fails with ErrInvalidState.
func (g *InflightGuard) BeginRecv() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.inflight {
		return ErrInvalidState
	}
	return nil
}

// EndRecv completes the in-flight request.
func (g *InflightGuard) EndRecv() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inflight = false
}

// Abort rolls back a send that never reached the authenticator.
func (g *InflightGuard) Abort() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inflight = false
}
