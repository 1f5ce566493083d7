package tunnel

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/jo-bitsch/libwebauthn/pkg/ble"
	"github.com/jo-bitsch/libwebauthn/pkg/ctap2"
	"github.com/jo-bitsch/libwebauthn/pkg/transport"
)

var log = logrus.WithField("component", "tunnel")

// ErrProximityTimeout is returned when the expected device's BLE
// advertisement does not appear in time.
const ErrProximityTimeout = transport.TransportError("proximity check timed out")

// proximityTimeout bounds the known-device proximity stage.
const proximityTimeout = 20 * time.Second

const tunnelSubprotocol = "fido.cable"

// wsConn is the slice of the websocket connection the tunnel uses;
// *websocket.Conn satisfies it, tests substitute an in-memory pair.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// ConnectURL builds the tunnel-server URL for awaiting a connection to a
// known tunnel ID: lower-case hex routing ID, then lower-case hex tunnel
// ID.
func ConnectURL(domain string, routingID [3]byte, tunnelID [16]byte) string {
	return fmt.Sprintf("wss://%s/cable/connect/%s/%s",
		domain, hex.EncodeToString(routingID[:]), hex.EncodeToString(tunnelID[:]))
}

// ContactURL builds the tunnel-server URL for contacting a known device
// through its contact ID.
func ContactURL(domain string, contactID []byte) string {
	return fmt.Sprintf("wss://%s/cable/contact/%s", domain, hex.EncodeToString(contactID))
}

// dialTunnel opens the websocket with the caBLE subprotocol. Tests
// substitute an in-memory connection.
var dialTunnel = func(ctx context.Context, url string) (wsConn, error) {
	dialer := &websocket.Dialer{Subprotocols: []string{tunnelSubprotocol}}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		log.WithError(err).WithField("url", url).Debug("tunnel dial failed")
		return nil, fmt.Errorf("%w: dialing tunnel server: %v", transport.ErrTransportUnavailable, err)
	}
	return conn, nil
}

// postHandshakeMessage is the first plaintext the authenticator sends,
// attached to its handshake message.
type postHandshakeMessage struct {
	// getInfo (0x01): the raw CBOR body of the authenticator's GetInfo
	// response.
	GetInfo []byte `cbor:"1,keyasint"`
	// linking (0x02)
	Linking *LinkingInfo `cbor:"2,keyasint,omitempty"`
}

// ClientNonce is the random nonce the platform contributes per connection.
type ClientNonce = [16]byte

// NewClientNonce draws a fresh nonce.
func NewClientNonce() (ClientNonce, error) {
	var nonce ClientNonce
	if _, err := rand.Read(nonce[:]); err != nil {
		return nonce, fmt.Errorf("generating client nonce: %w", err)
	}
	return nonce, nil
}

// QROptions configures a QR-initiated connection.
type QROptions struct {
	// IdentityKey is the ephemeral identity key whose public half was
	// embedded in the QR code.
	IdentityKey *ecdh.PrivateKey
	// QRSecret is the 16-byte secret from the QR code.
	QRSecret [16]byte
	// Adverts yields candidate BLE advertisements.
	Adverts ble.AdvertSource
	// Store receives the linking record, if the phone returns one. Optional.
	Store KnownDeviceStore
	// Ux, if set, receives connection-progress events; otherwise a fresh
	// bus is created.
	Ux *transport.UxBus
	// States, if set, tracks the connection lifecycle.
	States *transport.StateWatch
}

// ConnectWithQR drives a QR-initiated connection: scan for the
// advertisement broadcast by the phone that scanned the QR code (the
// proximity proof is folded into this stage), connect to the advertised
// tunnel server, and run the KNpsk0 handshake. It returns a ready CTAP
// channel.
func ConnectWithQR(ctx context.Context, opts QROptions) (*CableChannel, error) {
	ux := opts.Ux
	if ux == nil {
		ux = transport.NewUxBus()
	}
	states := opts.States
	if states == nil {
		states = transport.NewStateWatch(transport.StateConnecting)
	} else {
		states.Set(transport.StateConnecting)
	}

	// Stage 1: connection (includes the proximity check for QR flows).
	decryptor, err := ble.NewAdvertDecryptor(opts.QRSecret[:])
	if err != nil {
		return nil, err
	}
	advert, err := ble.WaitForAdvert(ctx, opts.Adverts, decryptor)
	if err != nil {
		states.Set(transport.StateFailed)
		return nil, err
	}
	domain, err := DecodeTunnelServerDomain(advert.EncodedTunnelServerDomain)
	if err != nil {
		states.Set(transport.StateFailed)
		return nil, fmt.Errorf("%w: %v", transport.ErrInvalidFraming, err)
	}

	var tunnelID [16]byte
	if err := ble.Derive(tunnelID[:], opts.QRSecret[:], nil, ble.KeyPurposeTunnelID); err != nil {
		states.Set(transport.StateFailed)
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"domain":     domain,
		"routing_id": hex.EncodeToString(advert.RoutingID[:]),
	}).Debug("connecting to tunnel server")
	conn, err := dialTunnel(ctx, ConnectURL(domain, advert.RoutingID, tunnelID))
	if err != nil {
		states.Set(transport.StateFailed)
		return nil, err
	}
	states.Set(transport.StateConnected)

	// Stage 3: handshake.
	states.Set(transport.StateAuthenticating)
	var psk [32]byte
	if err := ble.Derive(psk[:], opts.QRSecret[:], advert.Plaintext[:], ble.KeyPurposePSK); err != nil {
		conn.Close()
		return nil, err
	}
	result, err := runHandshake(handshakeConfig{
		pattern:     noiseProtocolKN,
		psk:         psk,
		localStatic: opts.IdentityKey,
		prologue:    advert.Plaintext[:],
	}, conn)
	if err != nil {
		states.Set(transport.StateFailed)
		conn.Close()
		return nil, err
	}

	return finishConnection(ctx, conn, result, domain, opts.Store, ux, states)
}

// KnownDeviceOptions configures a contact-initiated connection to a
// previously linked device.
type KnownDeviceOptions struct {
	Device *KnownDeviceInfo
	// Hint tells the phone which operation will follow.
	Hint ClientPayloadHint
	// Adverts yields candidate BLE advertisements for the proximity check.
	Adverts ble.AdvertSource
	// Store receives updated linking records and revocations. Optional.
	Store KnownDeviceStore
	Ux     *transport.UxBus
	States *transport.StateWatch
}

// ConnectKnownDevice drives a contact-initiated connection: post the
// contact message through the tunnel server, require a BLE advertisement
// from the expected device as a proximity proof, then run the NKpsk0
// handshake.
func ConnectKnownDevice(ctx context.Context, opts KnownDeviceOptions) (*CableChannel, error) {
	device := opts.Device
	ux := opts.Ux
	if ux == nil {
		ux = transport.NewUxBus()
	}
	states := opts.States
	if states == nil {
		states = transport.NewStateWatch(transport.StateConnecting)
	} else {
		states.Set(transport.StateConnecting)
	}

	// Stage 1: connection. The contact socket becomes the tunnel once the
	// phone answers.
	conn, err := dialTunnel(ctx, ContactURL(device.TunnelDomain, device.ContactID))
	if err != nil {
		states.Set(transport.StateFailed)
		return nil, err
	}
	nonce, err := NewClientNonce()
	if err != nil {
		conn.Close()
		return nil, err
	}
	payload, err := ctap2.Marshal(&ClientPayload{
		LinkID:      device.LinkID[:],
		ClientNonce: nonce[:],
		Hint:        opts.Hint,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("encoding client payload: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		states.Set(transport.StateFailed)
		conn.Close()
		return nil, fmt.Errorf("%w: posting contact message: %v", transport.ErrDisconnected, err)
	}
	states.Set(transport.StateConnected)

	// Stage 2: proximity check.
	decryptor, err := ble.NewAdvertDecryptor(device.LinkSecret[:])
	if err != nil {
		conn.Close()
		return nil, err
	}
	proximityCtx, cancel := context.WithTimeout(ctx, proximityTimeout)
	advert, err := ble.WaitForAdvert(proximityCtx, opts.Adverts, decryptor)
	cancel()
	if err != nil {
		states.Set(transport.StateFailed)
		conn.Close()
		if proximityCtx.Err() == context.DeadlineExceeded {
			return nil, ErrProximityTimeout
		}
		return nil, err
	}

	// Stage 3: handshake.
	states.Set(transport.StateAuthenticating)
	remoteStatic, err := ecdh.P256().NewPublicKey(device.PublicKey[:])
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: invalid authenticator public key: %v", transport.ErrInvalidFraming, err)
	}
	var psk [32]byte
	if err := ble.Derive(psk[:], device.LinkSecret[:], advert.Plaintext[:], ble.KeyPurposePSK); err != nil {
		conn.Close()
		return nil, err
	}
	result, err := runHandshake(handshakeConfig{
		pattern:      noiseProtocolNK,
		psk:          psk,
		remoteStatic: remoteStatic,
		prologue:     advert.Plaintext[:],
	}, conn)
	if err != nil {
		states.Set(transport.StateFailed)
		conn.Close()
		return nil, err
	}

	return finishConnection(ctx, conn, result, device.TunnelDomain, opts.Store, ux, states)
}

// runHandshake adapts the websocket to the Noise message transport.
func runHandshake(cfg handshakeConfig, conn wsConn) (*handshakeResult, error) {
	write := func(msg []byte) error {
		return conn.WriteMessage(websocket.BinaryMessage, msg)
	}
	read := func() ([]byte, error) {
		_, msg, err := conn.ReadMessage()
		return msg, err
	}
	return initiatorHandshake(cfg, write, read)
}

// finishConnection decodes the post-handshake payload, persists any
// linking record and hands the connection over to a channel.
func finishConnection(ctx context.Context, conn wsConn, result *handshakeResult,
	tunnelDomain string, store KnownDeviceStore,
	ux *transport.UxBus, states *transport.StateWatch) (*CableChannel, error) {

	var post postHandshakeMessage
	if err := ctap2.Unmarshal(result.responderPayload, &post); err != nil {
		states.Set(transport.StateFailed)
		conn.Close()
		return nil, fmt.Errorf("%w: bad post-handshake message: %v", transport.ErrInvalidFraming, err)
	}

	if post.Linking != nil && store != nil {
		if info, err := NewKnownDeviceInfo(tunnelDomain, post.Linking); err == nil {
			if err := store.PutKnownDevice(ctx, info.ID(), info); err != nil {
				log.WithError(err).Warn("failed to persist linking record")
			}
		} else {
			log.WithError(err).Warn("discarding malformed linking record")
		}
	}

	ch := newCableChannel(conn, result.crypter, post.GetInfo, tunnelDomain, store, ux, states)
	states.Set(transport.StateReady)
	log.Debug("caBLE channel ready")
	return ch, nil
}
