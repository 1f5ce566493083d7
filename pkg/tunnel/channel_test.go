package tunnel

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jo-bitsch/libwebauthn/pkg/ble"
	"github.com/jo-bitsch/libwebauthn/pkg/ctap2"
	"github.com/jo-bitsch/libwebauthn/pkg/transport"
	"github.com/jo-bitsch/libwebauthn/pkg/webauthn"
)

// fakeWsConn is one end of an in-memory websocket.
type fakeWsConn struct {
	in        chan []byte
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeWsPair() (*fakeWsConn, *fakeWsConn) {
	x := make(chan []byte, 16)
	y := make(chan []byte, 16)
	closed := make(chan struct{})
	a := &fakeWsConn{in: x, out: y, closed: closed}
	b := &fakeWsConn{in: y, out: x, closed: closed}
	return a, b
}

func (c *fakeWsConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-c.in:
		return 2, msg, nil
	case <-c.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (c *fakeWsConn) WriteMessage(messageType int, data []byte) error {
	select {
	case c.out <- data:
		return nil
	case <-c.closed:
		return errors.New("connection closed")
	}
}

func (c *fakeWsConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// staticAdvertSource replays one fixed candidate advert.
type staticAdvertSource struct {
	advert []byte
}

func (s *staticAdvertSource) Adverts(ctx context.Context) (<-chan []byte, func(), error) {
	ch := make(chan []byte, 1)
	ch <- s.advert
	return ch, func() {}, nil
}

// buildAdvert encrypts a well-formed advertisement under the given secret.
func buildAdvert(t *testing.T, secret []byte, routingID [3]byte, encodedDomain uint16) ([]byte, [16]byte) {
	t.Helper()
	var plaintext [ble.PlaintextLength]byte
	plaintext[0] = 0
	rand.Read(plaintext[1:11])
	copy(plaintext[11:14], routingID[:])
	plaintext[14] = byte(encodedDomain)
	plaintext[15] = byte(encodedDomain >> 8)
	advert, err := ble.EncryptAdvert(secret, plaintext)
	if err != nil {
		t.Fatalf("building advert: %v", err)
	}
	return advert, plaintext
}

func testGetInfoBody(t *testing.T) []byte {
	t.Helper()
	body, err := ctap2.Marshal(map[int]interface{}{
		1: []string{"FIDO_2_1"},
		3: bytes.Repeat([]byte{0xAA}, 16),
		4: map[string]bool{"uv": true},
	})
	if err != nil {
		t.Fatalf("encoding getinfo fixture: %v", err)
	}
	return body
}

// fakePhone runs the authenticator end of a tunnel connection.
type fakePhone struct {
	t          *testing.T
	conn       *fakeWsConn
	pattern    string
	psk        [32]byte
	prologue   []byte
	initStatic *ecdh.PublicKey
	ownStatic  *ecdh.PrivateKey
	payload    []byte
	// expectContact, when set, requires a leading client payload naming
	// this link ID.
	expectContact []byte
}

func (p *fakePhone) run() {
	read := func() ([]byte, error) {
		_, msg, err := p.conn.ReadMessage()
		return msg, err
	}
	write := func(msg []byte) error {
		return p.conn.WriteMessage(2, msg)
	}

	if p.expectContact != nil {
		raw, err := read()
		if err != nil {
			p.t.Errorf("phone: reading contact message: %v", err)
			return
		}
		var payload ClientPayload
		if err := ctap2.Unmarshal(raw, &payload); err != nil {
			p.t.Errorf("phone: decoding client payload: %v", err)
			return
		}
		if !bytes.Equal(payload.LinkID, p.expectContact) {
			p.t.Errorf("phone: link ID = %x, want %x", payload.LinkID, p.expectContact)
			return
		}
		if payload.Hint != HintGetAssertion || len(payload.ClientNonce) != 16 {
			p.t.Errorf("phone: malformed client payload %+v", payload)
			return
		}
	}

	crypter, err := responderHandshake(p.pattern, p.psk, p.prologue,
		p.initStatic, p.ownStatic, p.payload, read, write)
	if err != nil {
		p.t.Errorf("phone: handshake failed: %v", err)
		return
	}

	// Serve CTAP requests until the tunnel closes.
	for {
		ciphertext, err := read()
		if err != nil {
			return
		}
		plaintext, err := crypter.Decrypt(ciphertext)
		if err != nil {
			p.t.Errorf("phone: decrypting frame: %v", err)
			return
		}
		if len(plaintext) < 2 || plaintext[0] != msgTypeCTAP {
			continue
		}
		var response []byte
		switch ctap2.CommandCode(plaintext[1]) {
		case ctap2.CmdGetInfo:
			response = append([]byte{byte(ctap2.StatusOk)}, testGetInfoBody(p.t)...)
		case ctap2.CmdSelection:
			response = []byte{byte(ctap2.StatusOk)}
		default:
			response = []byte{byte(ctap2.ErrInvalidCommand)}
		}
		sealed, err := crypter.Encrypt(append([]byte{msgTypeCTAP}, response...))
		if err != nil {
			p.t.Errorf("phone: encrypting response: %v", err)
			return
		}
		if err := write(sealed); err != nil {
			return
		}
	}
}

func overrideDial(t *testing.T, fn func(ctx context.Context, url string) (wsConn, error)) {
	t.Helper()
	orig := dialTunnel
	dialTunnel = fn
	t.Cleanup(func() { dialTunnel = orig })
}

// S6: reconnecting to a stored known device yields a working channel.
func TestConnectKnownDevice(t *testing.T) {
	authStatic, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating authenticator key: %v", err)
	}

	device := &KnownDeviceInfo{
		ContactID:    []byte{0xC0, 0x01},
		Name:         "test phone",
		TunnelDomain: "cable.ua5v.com",
	}
	copy(device.LinkID[:], []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88})
	rand.Read(device.LinkSecret[:])
	copy(device.PublicKey[:], authStatic.PublicKey().Bytes())

	advert, plaintext := buildAdvert(t, device.LinkSecret[:], [3]byte{0x01, 0x02, 0x03}, 0)

	var psk [32]byte
	if err := ble.Derive(psk[:], device.LinkSecret[:], plaintext[:], ble.KeyPurposePSK); err != nil {
		t.Fatalf("deriving psk: %v", err)
	}

	platformEnd, phoneEnd := newFakeWsPair()
	var dialedURL string
	overrideDial(t, func(ctx context.Context, url string) (wsConn, error) {
		dialedURL = url
		return platformEnd, nil
	})

	phone := &fakePhone{
		t:             t,
		conn:          phoneEnd,
		pattern:       noiseProtocolNK,
		psk:           psk,
		prologue:      plaintext[:],
		ownStatic:     authStatic,
		payload:       mustMarshal(t, &postHandshakeMessage{GetInfo: testGetInfoBody(t)}),
		expectContact: device.LinkID[:],
	}
	go phone.run()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ch, err := ConnectKnownDevice(ctx, KnownDeviceOptions{
		Device:  device,
		Hint:    HintGetAssertion,
		Adverts: &staticAdvertSource{advert: advert},
	})
	if err != nil {
		t.Fatalf("ConnectKnownDevice() failed: %v", err)
	}
	defer ch.Close()

	wantURL := "wss://cable.ua5v.com/cable/contact/" + hex.EncodeToString(device.ContactID)
	if dialedURL != wantURL {
		t.Errorf("dialed %q, want %q", dialedURL, wantURL)
	}
	if ch.States().Get() != transport.StateReady {
		t.Errorf("state = %v, want ready", ch.States().Get())
	}

	// The first GetInfo is answered from the handshake payload.
	client := webauthn.NewClient(ch)
	info, err := client.GetInfo(ctx)
	if err != nil {
		t.Fatalf("GetInfo() failed: %v", err)
	}
	if !info.SupportsFido21() {
		t.Error("SupportsFido21() = false")
	}

	// Subsequent commands go over the wire.
	if err := ctap2.NewClient(ch).Selection(ctx); err != nil {
		t.Fatalf("Selection() over the tunnel failed: %v", err)
	}
}

// The QR flow derives the connect URL from the advert and stores the
// linking record the phone returns.
func TestConnectWithQR(t *testing.T) {
	identity, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating identity key: %v", err)
	}
	var qrSecret [16]byte
	rand.Read(qrSecret[:])

	routingID := [3]byte{0xAA, 0xBB, 0xCC}
	advert, plaintext := buildAdvert(t, qrSecret[:], routingID, 1)

	var psk [32]byte
	if err := ble.Derive(psk[:], qrSecret[:], plaintext[:], ble.KeyPurposePSK); err != nil {
		t.Fatalf("deriving psk: %v", err)
	}
	var tunnelID [16]byte
	if err := ble.Derive(tunnelID[:], qrSecret[:], nil, ble.KeyPurposeTunnelID); err != nil {
		t.Fatalf("deriving tunnel id: %v", err)
	}

	authStatic, _ := ecdh.P256().GenerateKey(rand.Reader)
	linking := &LinkingInfo{
		ContactID:              []byte{0x01},
		LinkID:                 bytes.Repeat([]byte{0x22}, 8),
		LinkSecret:             bytes.Repeat([]byte{0x33}, 32),
		AuthenticatorPublicKey: authStatic.PublicKey().Bytes(),
		AuthenticatorName:      "linked phone",
	}

	platformEnd, phoneEnd := newFakeWsPair()
	var dialedURL string
	overrideDial(t, func(ctx context.Context, url string) (wsConn, error) {
		dialedURL = url
		return platformEnd, nil
	})

	phone := &fakePhone{
		t:          t,
		conn:       phoneEnd,
		pattern:    noiseProtocolKN,
		psk:        psk,
		prologue:   plaintext[:],
		initStatic: identity.PublicKey(),
		payload: mustMarshal(t, &postHandshakeMessage{
			GetInfo: testGetInfoBody(t),
			Linking: linking,
		}),
	}
	go phone.run()

	store := NewEphemeralDeviceInfoStore()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ch, err := ConnectWithQR(ctx, QROptions{
		IdentityKey: identity,
		QRSecret:    qrSecret,
		Adverts:     &staticAdvertSource{advert: advert},
		Store:       store,
	})
	if err != nil {
		t.Fatalf("ConnectWithQR() failed: %v", err)
	}
	defer ch.Close()

	wantURL := fmt.Sprintf("wss://cable.auth.com/cable/connect/%s/%s",
		hex.EncodeToString(routingID[:]), hex.EncodeToString(tunnelID[:]))
	if dialedURL != wantURL {
		t.Errorf("dialed %q, want %q", dialedURL, wantURL)
	}

	devices := store.ListAll()
	wantID := hex.EncodeToString(linking.AuthenticatorPublicKey)
	stored, ok := devices[wantID]
	if !ok {
		t.Fatalf("linking record not stored; have %v", devices)
	}
	if stored.Name != "linked phone" || stored.TunnelDomain != "cable.auth.com" {
		t.Errorf("stored record = %+v", stored)
	}
}

// Property 6: a second send without an intervening receive is an
// InvalidState error.
func TestChannelAtMostOneInFlight(t *testing.T) {
	platformEnd, _ := newFakeWsPair()
	crypter := NewCrypter(bytes.Repeat([]byte{1}, 32), bytes.Repeat([]byte{2}, 32))
	ch := newCableChannel(platformEnd, crypter, nil, "cable.ua5v.com", nil,
		transport.NewUxBus(), transport.NewStateWatch(transport.StateReady))
	defer ch.Close()

	ctx := context.Background()
	if err := ch.CborSend(ctx, ctap2.NewCborRequest(ctap2.CmdSelection)); err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	err := ch.CborSend(ctx, ctap2.NewCborRequest(ctap2.CmdSelection))
	if !errors.Is(err, transport.ErrInvalidState) {
		t.Fatalf("second send = %v, want ErrInvalidState", err)
	}
}

// A receive without a matching send is an InvalidState error.
func TestChannelRecvWithoutSend(t *testing.T) {
	platformEnd, _ := newFakeWsPair()
	crypter := NewCrypter(bytes.Repeat([]byte{1}, 32), bytes.Repeat([]byte{2}, 32))
	ch := newCableChannel(platformEnd, crypter, nil, "cable.ua5v.com", nil,
		transport.NewUxBus(), transport.NewStateWatch(transport.StateReady))
	defer ch.Close()

	_, err := ch.CborRecv(context.Background())
	if !errors.Is(err, transport.ErrInvalidState) {
		t.Fatalf("recv = %v, want ErrInvalidState", err)
	}
}

// A receive that outlives its deadline reports a transport timeout, and
// the channel remains usable: a later request succeeds and is never
// handed the abandoned request's late answer.
func TestChannelRecvTimeout(t *testing.T) {
	key1 := bytes.Repeat([]byte{1}, 32)
	key2 := bytes.Repeat([]byte{2}, 32)
	platformEnd, peerEnd := newFakeWsPair()
	ch := newCableChannel(platformEnd, NewCrypter(key1, key2), nil, "cable.ua5v.com", nil,
		transport.NewUxBus(), transport.NewStateWatch(transport.StateReady))
	defer ch.Close()
	peer := NewCrypter(key2, key1)

	peerRead := func() []byte {
		t.Helper()
		_, ciphertext, err := peerEnd.ReadMessage()
		if err != nil {
			t.Fatalf("peer read failed: %v", err)
		}
		plaintext, err := peer.Decrypt(ciphertext)
		if err != nil {
			t.Fatalf("peer decrypt failed: %v", err)
		}
		return plaintext
	}
	peerRespond := func(status ctap2.CtapError) {
		t.Helper()
		sealed, err := peer.Encrypt([]byte{msgTypeCTAP, byte(status)})
		if err != nil {
			t.Fatalf("peer encrypt failed: %v", err)
		}
		if err := peerEnd.WriteMessage(2, sealed); err != nil {
			t.Fatalf("peer write failed: %v", err)
		}
	}

	if err := ch.CborSend(context.Background(), ctap2.NewCborRequest(ctap2.CmdSelection)); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := ch.CborRecv(ctx)
	if !errors.Is(err, transport.ErrTimeout) {
		t.Fatalf("recv = %v, want ErrTimeout", err)
	}

	// The authenticator answers the abandoned request late, with a status
	// that must never surface.
	if frame := peerRead(); frame[1] != byte(ctap2.CmdSelection) {
		t.Fatalf("peer saw command 0x%02x, want selection", frame[1])
	}
	peerRespond(ctap2.ErrOperationDenied)

	// The channel must accept a fresh request/response pair and hand back
	// its answer, not the stale one.
	if err := ch.CborSend(context.Background(), ctap2.NewCborRequest(ctap2.CmdSelection)); err != nil {
		t.Fatalf("send after timeout failed: %v", err)
	}
	if frame := peerRead(); frame[1] != byte(ctap2.CmdSelection) {
		t.Fatalf("peer saw command 0x%02x, want selection", frame[1])
	}
	peerRespond(ctap2.StatusOk)

	recvCtx, recvCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer recvCancel()
	resp, err := ch.CborRecv(recvCtx)
	if err != nil {
		t.Fatalf("recv after timeout failed: %v", err)
	}
	if resp.Status != ctap2.StatusOk {
		t.Fatalf("status = %v, want the fresh OK response, not the stale one", resp.Status)
	}
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := ctap2.Marshal(v)
	if err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}
	return data
}
