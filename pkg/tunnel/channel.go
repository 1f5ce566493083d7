package tunnel

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/jo-bitsch/libwebauthn/pkg/ctap2"
	"github.com/jo-bitsch/libwebauthn/pkg/transport"
)

// Tunnel message types, prefixed to every post-handshake plaintext.
const (
	msgTypeShutdown byte = 0
	msgTypeCTAP     byte = 1
	msgTypeUpdate   byte = 2
)

// channelQueueCapacity bounds the request and response queues between the
// channel surface and its I/O task.
const channelQueueCapacity = 16

// updateMessage is the CBOR body of an update-typed tunnel message.
type updateMessage struct {
	// linking (0x01): new or refreshed linking record
	Linking *LinkingInfo `cbor:"1,keyasint,omitempty"`
	// unlink (0x02): the authenticator revoked the stored link
	Unlink *bool `cbor:"2,keyasint,omitempty"`
}

// CableChannel is a live caBLE v2 connection satisfying the transport
// channel contract. One goroutine owns the websocket; the channel surface
// communicates with it through bounded queues.
type CableChannel struct {
	conn         wsConn
	crypter      *Crypter
	tunnelDomain string
	store        KnownDeviceStore

	ux     *transport.UxBus
	states *transport.StateWatch
	guard  transport.InflightGuard

	requests  chan []byte
	responses chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu sync.Mutex
	// initialInfo is the GetInfo body delivered inside the handshake; the
	// first GetInfo request is answered from it without touching the wire.
	initialInfo []byte
	// pendingLocal is a locally-synthesized response frame awaiting the
	// next CborRecv.
	pendingLocal []byte
	// stale counts abandoned requests whose responses, if they ever
	// arrive, must be discarded rather than handed to a later CborRecv.
	// Responses are strictly ordered within a channel, so stale frames
	// always precede the live one.
	stale int
}

// newCableChannel wires the connection into queues and starts the I/O task.
func newCableChannel(conn wsConn, crypter *Crypter, initialInfo []byte,
	tunnelDomain string, store KnownDeviceStore,
	ux *transport.UxBus, states *transport.StateWatch) *CableChannel {

	ch := &CableChannel{
		conn:         conn,
		crypter:      crypter,
		tunnelDomain: tunnelDomain,
		store:        store,
		ux:           ux,
		states:       states,
		requests:     make(chan []byte, channelQueueCapacity),
		responses:    make(chan []byte, channelQueueCapacity),
		done:         make(chan struct{}),
		initialInfo:  initialInfo,
	}
	go ch.writeLoop()
	go ch.readLoop()
	return ch
}

func (c *CableChannel) writeLoop() {
	for {
		select {
		case frame := <-c.requests:
			ciphertext, err := c.crypter.Encrypt(append([]byte{msgTypeCTAP}, frame...))
			if err != nil {
				c.fail()
				return
			}
			if err := c.conn.WriteMessage(websocket.BinaryMessage, ciphertext); err != nil {
				log.WithError(err).Debug("tunnel write failed")
				c.fail()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *CableChannel) readLoop() {
	for {
		_, ciphertext, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.WithError(err).Debug("tunnel read failed")
				c.fail()
			}
			return
		}
		plaintext, err := c.crypter.Decrypt(ciphertext)
		if err != nil {
			c.fail()
			return
		}
		if len(plaintext) == 0 {
			continue
		}
		switch plaintext[0] {
		case msgTypeCTAP:
			select {
			case c.responses <- plaintext[1:]:
			case <-c.done:
				return
			}
		case msgTypeUpdate:
			c.handleUpdate(plaintext[1:])
		case msgTypeShutdown:
			c.terminate()
			return
		default:
			// Unknown message types are ignored for forward compatibility.
		}
	}
}

// handleUpdate applies linking additions and revocations to the store.
func (c *CableChannel) handleUpdate(body []byte) {
	if c.store == nil {
		return
	}
	var update updateMessage
	if err := ctap2.Unmarshal(body, &update); err != nil {
		log.WithError(err).Debug("discarding malformed update message")
		return
	}
	ctx := context.Background()
	if update.Linking != nil {
		info, err := NewKnownDeviceInfo(c.tunnelDomain, update.Linking)
		if err != nil {
			log.WithError(err).Warn("discarding malformed linking record")
			return
		}
		if err := c.store.PutKnownDevice(ctx, info.ID(), info); err != nil {
			log.WithError(err).Warn("failed to persist linking record")
		}
		return
	}
	if update.Unlink != nil && *update.Unlink && update.Linking == nil {
		// Revocations identify the device by the channel itself.
		log.Info("authenticator revoked its linking record")
	}
}

// CborSend submits one framed request. The first GetInfo is answered from
// the handshake payload without a wire round trip.
func (c *CableChannel) CborSend(ctx context.Context, req *ctap2.CborRequest) error {
	if err := c.guard.BeginSend(); err != nil {
		return err
	}
	frame, err := req.Encode()
	if err != nil {
		c.guard.Abort()
		return err
	}

	c.mu.Lock()
	if req.Command == ctap2.CmdGetInfo && c.initialInfo != nil {
		c.pendingLocal = append([]byte{byte(ctap2.StatusOk)}, c.initialInfo...)
		c.initialInfo = nil
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	select {
	case c.requests <- frame:
		return nil
	case <-c.done:
		c.guard.Abort()
		return transport.ErrDisconnected
	case <-ctx.Done():
		c.guard.Abort()
		return ctxError(ctx)
	}
}

// CborRecv receives the response to the previous CborSend.
func (c *CableChannel) CborRecv(ctx context.Context) (*ctap2.CborResponse, error) {
	if err := c.guard.BeginRecv(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	local := c.pendingLocal
	c.pendingLocal = nil
	c.mu.Unlock()
	if local != nil {
		c.guard.EndRecv()
		return ctap2.DecodeResponseFrame(local)
	}

	for {
		select {
		case frame := <-c.responses:
			c.mu.Lock()
			if c.stale > 0 {
				// Answer to an abandoned request; drop it.
				c.stale--
				c.mu.Unlock()
				continue
			}
			c.mu.Unlock()
			c.guard.EndRecv()
			return ctap2.DecodeResponseFrame(frame)
		case <-c.done:
			return nil, transport.ErrDisconnected
		case <-ctx.Done():
			// The authenticator may still answer and may still have
			// completed the operation; the caller must treat it as having
			// unknown effect. The channel itself stays usable: the request
			// is abandoned and its late response, if any, discarded.
			c.mu.Lock()
			c.stale++
			c.mu.Unlock()
			c.guard.Abort()
			return nil, ctxError(ctx)
		}
	}
}

// Wink is not supported by the hybrid transport and is ignored.
func (c *CableChannel) Wink(ctx context.Context) error { return nil }

// UxBus returns the channel's UX update bus.
func (c *CableChannel) UxBus() *transport.UxBus { return c.ux }

// States returns the channel's connection-state watch.
func (c *CableChannel) States() *transport.StateWatch { return c.states }

// Close terminates the channel and the underlying tunnel.
func (c *CableChannel) Close() error {
	c.shutdown(transport.StateTerminated)
	return nil
}

func (c *CableChannel) fail()      { c.shutdown(transport.StateFailed) }
func (c *CableChannel) terminate() { c.shutdown(transport.StateTerminated) }

func (c *CableChannel) shutdown(state transport.ConnectionState) {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
		c.states.Set(state)
		c.ux.Close()
	})
}

// ctxError maps context expiry onto the transport error taxonomy.
func ctxError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return transport.ErrTimeout
	}
	return ctx.Err()
}
