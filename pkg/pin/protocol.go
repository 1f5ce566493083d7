// Package pin implements the CTAP2 PIN/UV auth protocols: ECDH key
// agreement with the authenticator and the per-protocol encryption and
// authentication primitives used to exchange PIN material and tokens.
package pin

import (
	"crypto/ecdh"
	"crypto/rand"
	"fmt"

	"github.com/jo-bitsch/libwebauthn/pkg/ctap2"
)

// PinError is a platform-side PIN handling failure.
type PinError string

// PIN errors.
const (
	ErrUserCancelled   PinError = "PIN entry cancelled by user"
	ErrPinTooShort     PinError = "PIN is too short"
	ErrPinTooLong      PinError = "PIN is too long"
	ErrPolicyViolation PinError = "PIN violates authenticator policy"
)

func (e PinError) Error() string { return string(e) }

// PIN length bounds, in code points (minimum is the FIDO default; the
// authenticator may require more via minPINLength) and in UTF-8 bytes.
const (
	DefaultMinPinUnicodePoints = 4
	MaxPinUnicodePoints        = 63
	maxPinPaddedLength         = 64
)

// Protocol is a CTAP2 PIN/UV auth protocol. Both defined protocols expose
// the same capability surface; the variant is selected from the
// authenticator's pinUvAuthProtocols list.
type Protocol interface {
	// Number returns the protocol number (1 or 2).
	Number() uint32
	// Initialize resets any per-exchange state.
	Initialize()
	// Encapsulate runs key agreement against the authenticator's public
	// key, returning the derived shared secret and the platform's
	// key-agreement public key to send alongside.
	Encapsulate(peer *ctap2.COSEKey) (sharedSecret []byte, platformKey *ctap2.COSEKey, err error)
	// Encrypt encrypts plaintext under a key derived from the shared secret.
	Encrypt(key, plaintext []byte) ([]byte, error)
	// Decrypt reverses Encrypt.
	Decrypt(key, ciphertext []byte) ([]byte, error)
	// Authenticate computes the protocol MAC over msg.
	Authenticate(key, msg []byte) []byte
	// Verify checks a MAC produced by Authenticate.
	Verify(key, msg, mac []byte) bool
}

// New returns the implementation of the given protocol number.
func New(number uint32) (Protocol, error) {
	switch number {
	case 1:
		return &protocolOne{}, nil
	case 2:
		return &protocolTwo{}, nil
	default:
		return nil, fmt.Errorf("unsupported PIN/UV auth protocol %d", number)
	}
}

// Select picks the first protocol the authenticator offers, in the
// authenticator's preference order. Protocol 1 is never assumed when only
// protocol 2 is offered.
func Select(offered []uint32) (Protocol, error) {
	for _, number := range offered {
		if p, err := New(number); err == nil {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no supported PIN/UV auth protocol offered (got %v)", offered)
}

// ecdhSharedPoint runs P-256 ECDH against the peer's COSE key, returning
// the x-coordinate of the shared point and the platform's ephemeral public
// key as a COSE structure.
func ecdhSharedPoint(peer *ctap2.COSEKey) (z []byte, platformKey *ctap2.COSEKey, err error) {
	if peer == nil {
		return nil, nil, fmt.Errorf("missing peer key-agreement key")
	}
	if peer.KeyType != ctap2.CoseKeyTypeEC2 || peer.Curve != ctap2.CoseCurveP256 {
		return nil, nil, fmt.Errorf("unsupported key-agreement key (kty=%d crv=%d)", peer.KeyType, peer.Curve)
	}

	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generating platform key: %w", err)
	}

	peerRaw := make([]byte, 0, 65)
	peerRaw = append(peerRaw, 0x04)
	peerRaw = append(peerRaw, leftPad(peer.X, 32)...)
	peerRaw = append(peerRaw, leftPad(peer.Y, 32)...)
	peerKey, err := ecdh.P256().NewPublicKey(peerRaw)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid peer key-agreement key: %w", err)
	}

	z, err = priv.ECDH(peerKey)
	if err != nil {
		return nil, nil, fmt.Errorf("key agreement: %w", err)
	}

	pub := priv.PublicKey().Bytes() // uncompressed: 0x04 || X || Y
	return z, ctap2.NewCOSEKeyP256(pub[1:33], pub[33:65]), nil
}

func leftPad(b []byte, size int) []byte {
	if len(b) >= size {
		return b[len(b)-size:]
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}

// ValidatePin applies the platform-side PIN policy checks before a PIN is
// hashed: code-point bounds and the authenticator's advertised minimum.
func ValidatePin(pin string, minPinLength uint32) error {
	points := uint32(0)
	for range pin {
		points++
	}
	min := uint32(DefaultMinPinUnicodePoints)
	if minPinLength > min {
		min = minPinLength
	}
	if points < min {
		return ErrPinTooShort
	}
	if points > MaxPinUnicodePoints || len(pin) > maxPinPaddedLength {
		return ErrPinTooLong
	}
	return nil
}

// PadPin returns the 64-byte zero-padded UTF-8 encoding used by setPIN and
// changePIN.
func PadPin(pin string) []byte {
	padded := make([]byte, maxPinPaddedLength)
	copy(padded, pin)
	return padded
}
