package transport

import (
	"context"
	"sync"

	"github.com/jo-bitsch/libwebauthn/pkg/pin"
)

// uxQueueCapacity bounds each subscriber's event queue. A subscriber that
// falls further behind loses events; publishers never block.
const uxQueueCapacity = 16

// UvUpdate is a user-verification UX event published while an operation is
// in progress.
type UvUpdate interface {
	isUvUpdate()
}

// PresenceRequired asks the user to touch (or otherwise activate) the
// authenticator.
type PresenceRequired struct{}

func (PresenceRequired) isUvUpdate() {}

// UvRetry reports a failed built-in user-verification attempt.
type UvRetry struct {
	// AttemptsLeft is the remaining attempt count, when the authenticator
	// reported one.
	AttemptsLeft *uint32
}

func (UvRetry) isUvUpdate() {}

// PinRequired asks the subscriber to collect a PIN from the user. Exactly
// one of SendPin or Cancel must be called.
type PinRequired struct {
	Reason pin.RequestReason
	// AttemptsLeft is the remaining PIN attempt count, when known.
	AttemptsLeft *uint32

	once  *sync.Once
	reply chan pinReply
}

func (*PinRequired) isUvUpdate() {}

type pinReply struct {
	pin       string
	cancelled bool
}

// NewPinRequired creates a PIN request with a fresh single-shot reply
// channel.
func NewPinRequired(reason pin.RequestReason, attemptsLeft *uint32) *PinRequired {
	return &PinRequired{
		Reason:       reason,
		AttemptsLeft: attemptsLeft,
		once:         new(sync.Once),
		reply:        make(chan pinReply, 1),
	}
}

// SendPin delivers the user's PIN. Calls after the first reply are ignored.
func (p *PinRequired) SendPin(value string) {
	p.once.Do(func() {
		p.reply <- pinReply{pin: value}
	})
}

// Cancel reports that the user declined to enter a PIN.
func (p *PinRequired) Cancel() {
	p.once.Do(func() {
		p.reply <- pinReply{cancelled: true}
	})
}

// Await blocks until the subscriber answers or the context ends. A
// cancelled prompt returns pin.ErrUserCancelled.
func (p *PinRequired) Await(ctx context.Context) (string, error) {
	select {
	case r := <-p.reply:
		if r.cancelled {
			return "", pin.ErrUserCancelled
		}
		return r.pin, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// UxBus is a multi-producer, multi-subscriber fan-out of UvUpdates. Events
// reach each subscriber in emission order; a subscriber whose queue is full
// silently drops the oldest pending delivery opportunity (the event is
// skipped for that subscriber only).
type UxBus struct {
	mu     sync.Mutex
	subs   []chan UvUpdate
	closed bool
}

// NewUxBus creates an empty bus.
func NewUxBus() *UxBus {
	return &UxBus{}
}

// Subscribe registers a new subscriber and returns its event stream.
func (b *UxBus) Subscribe() <-chan UvUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan UvUpdate, uxQueueCapacity)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers an event to every subscriber without blocking.
func (b *UxBus) Publish(u UvUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- u:
		default:
			// Slow subscriber; drop rather than stall the operation.
		}
	}
}

// Close ends all subscriber streams.
func (b *UxBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
