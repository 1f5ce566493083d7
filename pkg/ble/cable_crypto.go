// Package ble implements the BLE proximity side of the caBLE v2 hybrid
// transport: decrypting and validating the service-data advertisement the
// authenticator broadcasts, and scanning for it.
package ble

import (
	"crypto/aes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// caBLE v2 advertisement constants.
const (
	EIDKeyLength    = 64 // 32 bytes AES + 32 bytes HMAC
	aesKeyLength    = 32
	AdvertLength    = 20 // encrypted service-data payload
	PlaintextLength = 16 // decrypted advertisement plaintext
	hmacTagLength   = 4  // trailing truncated HMAC-SHA256
)

// KeyPurpose selects one of the caBLE v2 HKDF derivations.
type KeyPurpose uint32

const (
	KeyPurposeEIDKey   KeyPurpose = 1
	KeyPurposeTunnelID KeyPurpose = 2
	KeyPurposePSK      KeyPurpose = 3
)

// Derive fills output with HKDF-SHA256 keyed by secret and salt, with the
// purpose encoded as 32-bit little-endian info.
func Derive(output, secret, salt []byte, purpose KeyPurpose) error {
	if uint32(purpose) >= 0x100 {
		return fmt.Errorf("unsupported key purpose %d", purpose)
	}
	var purpose32 [4]byte
	purpose32[0] = byte(purpose)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, purpose32[:]), output); err != nil {
		return fmt.Errorf("HKDF: %w", err)
	}
	return nil
}

// DecryptedAdvert is the validated plaintext of one caBLE v2
// advertisement: a zero flags byte, a 10-byte connection nonce, a 3-byte
// routing ID and a 16-bit encoded tunnel-server domain.
type DecryptedAdvert struct {
	Plaintext                 [PlaintextLength]byte
	Nonce                     [10]byte
	RoutingID                 [3]byte
	EncodedTunnelServerDomain uint16
}

// AdvertDecryptor trial-decrypts candidate adverts against one pairing
// secret (the QR secret, or a known device's link secret).
type AdvertDecryptor struct {
	eidKey [EIDKeyLength]byte
}

// NewAdvertDecryptor derives the EID key for the given secret.
func NewAdvertDecryptor(secret []byte) (*AdvertDecryptor, error) {
	d := &AdvertDecryptor{}
	if err := Derive(d.eidKey[:], secret, nil, KeyPurposeEIDKey); err != nil {
		return nil, fmt.Errorf("deriving EID key: %w", err)
	}
	return d, nil
}

// TrialDecrypt attempts to authenticate and decrypt one candidate advert.
// It reports false for adverts that were not produced with this secret,
// which is the common case while scanning.
func (d *AdvertDecryptor) TrialDecrypt(candidate []byte) (*DecryptedAdvert, bool) {
	if len(candidate) != AdvertLength {
		return nil, false
	}

	aesKey := d.eidKey[:aesKeyLength]
	hmacKey := d.eidKey[aesKeyLength:]

	// The last 4 bytes are a truncated HMAC-SHA256 over the first 16.
	mac := hmac.New(sha256.New, hmacKey)
	mac.Write(candidate[:PlaintextLength])
	expected := mac.Sum(nil)
	if !hmac.Equal(expected[:hmacTagLength], candidate[PlaintextLength:]) {
		return nil, false
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, false
	}
	var advert DecryptedAdvert
	block.Decrypt(advert.Plaintext[:], candidate[:PlaintextLength])

	// Reserved flag bits must be zero.
	if advert.Plaintext[0] != 0 {
		return nil, false
	}

	copy(advert.Nonce[:], advert.Plaintext[1:11])
	copy(advert.RoutingID[:], advert.Plaintext[11:14])
	advert.EncodedTunnelServerDomain = binary.LittleEndian.Uint16(advert.Plaintext[14:16])
	return &advert, true
}

// EncryptAdvert builds a valid 20-byte advert for the given plaintext. The
// platform never advertises; this is the authenticator-side construction,
// used to exercise TrialDecrypt.
func EncryptAdvert(secret []byte, plaintext [PlaintextLength]byte) ([]byte, error) {
	var eidKey [EIDKeyLength]byte
	if err := Derive(eidKey[:], secret, nil, KeyPurposeEIDKey); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(eidKey[:aesKeyLength])
	if err != nil {
		return nil, err
	}
	out := make([]byte, AdvertLength)
	block.Encrypt(out[:PlaintextLength], plaintext[:])
	mac := hmac.New(sha256.New, eidKey[aesKeyLength:])
	mac.Write(out[:PlaintextLength])
	copy(out[PlaintextLength:], mac.Sum(nil)[:hmacTagLength])
	return out, nil
}
