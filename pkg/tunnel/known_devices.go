package tunnel

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/jo-bitsch/libwebauthn/pkg/transport"
)

// ClientPayloadHint tells the authenticator which operation will follow.
type ClientPayloadHint string

const (
	HintGetAssertion   ClientPayloadHint = "ga"
	HintMakeCredential ClientPayloadHint = "mc"
)

// ClientPayload is the CBOR message the platform posts through the tunnel
// server to contact a known device.
type ClientPayload struct {
	// linkId (0x01)
	LinkID []byte `cbor:"1,keyasint"`
	// clientNonce (0x02)
	ClientNonce []byte `cbor:"2,keyasint"`
	// hint (0x03)
	Hint ClientPayloadHint `cbor:"3,keyasint"`
}

// LinkingInfo is the opaque linking blob a caBLE authenticator returns to
// enable reconnection without a fresh QR scan.
type LinkingInfo struct {
	// contactId (0x01)
	ContactID []byte `cbor:"1,keyasint"`
	// linkId (0x02)
	LinkID []byte `cbor:"2,keyasint"`
	// linkSecret (0x03)
	LinkSecret []byte `cbor:"3,keyasint"`
	// authenticatorPublicKey (0x04)
	AuthenticatorPublicKey []byte `cbor:"4,keyasint"`
	// authenticatorName (0x05)
	AuthenticatorName string `cbor:"5,keyasint,omitempty"`
}

// KnownDeviceID identifies a known device: the hex encoding of its public
// key.
type KnownDeviceID = string

// KnownDeviceInfo is the persistent record for one linked phone
// authenticator.
type KnownDeviceInfo struct {
	ContactID    []byte   `json:"contact_id"`
	LinkID       [8]byte  `json:"link_id"`
	LinkSecret   [32]byte `json:"link_secret"`
	PublicKey    [65]byte `json:"public_key"`
	Name         string   `json:"name"`
	TunnelDomain string   `json:"tunnel_domain"`
}

// NewKnownDeviceInfo validates a linking blob into a device record.
func NewKnownDeviceInfo(tunnelDomain string, linking *LinkingInfo) (*KnownDeviceInfo, error) {
	info := &KnownDeviceInfo{
		ContactID:    append([]byte{}, linking.ContactID...),
		Name:         linking.AuthenticatorName,
		TunnelDomain: tunnelDomain,
	}
	if len(linking.LinkID) != len(info.LinkID) ||
		len(linking.LinkSecret) != len(info.LinkSecret) ||
		len(linking.AuthenticatorPublicKey) != len(info.PublicKey) {
		return nil, transport.ErrInvalidFraming
	}
	copy(info.LinkID[:], linking.LinkID)
	copy(info.LinkSecret[:], linking.LinkSecret)
	copy(info.PublicKey[:], linking.AuthenticatorPublicKey)
	return info, nil
}

// ID returns the device's store key.
func (i *KnownDeviceInfo) ID() KnownDeviceID {
	return hex.EncodeToString(i.PublicKey[:])
}

// String renders the device for logs and menus.
func (i *KnownDeviceInfo) String() string {
	return fmt.Sprintf("%s (%s)", i.Name, i.ID())
}

// KnownDeviceStore persists known-device records. Implementations must be
// safe for concurrent use from multiple channels.
type KnownDeviceStore interface {
	// PutKnownDevice adds or updates a record.
	PutKnownDevice(ctx context.Context, id KnownDeviceID, info *KnownDeviceInfo) error
	// DeleteKnownDevice removes a record once the authenticator reports it
	// revoked.
	DeleteKnownDevice(ctx context.Context, id KnownDeviceID) error
}

// EphemeralDeviceInfoStore is an in-memory store.
type EphemeralDeviceInfoStore struct {
	mu      sync.RWMutex
	devices map[KnownDeviceID]*KnownDeviceInfo
}

// NewEphemeralDeviceInfoStore creates an empty in-memory store.
func NewEphemeralDeviceInfoStore() *EphemeralDeviceInfoStore {
	return &EphemeralDeviceInfoStore{devices: make(map[KnownDeviceID]*KnownDeviceInfo)}
}

// PutKnownDevice implements KnownDeviceStore.
func (s *EphemeralDeviceInfoStore) PutKnownDevice(ctx context.Context, id KnownDeviceID, info *KnownDeviceInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *info
	s.devices[id] = &copied
	return nil
}

// DeleteKnownDevice implements KnownDeviceStore.
func (s *EphemeralDeviceInfoStore) DeleteKnownDevice(ctx context.Context, id KnownDeviceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, id)
	return nil
}

// ListAll returns a snapshot of every stored record.
func (s *EphemeralDeviceInfoStore) ListAll() map[KnownDeviceID]KnownDeviceInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[KnownDeviceID]KnownDeviceInfo, len(s.devices))
	for id, info := range s.devices {
		out[id] = *info
	}
	return out
}
