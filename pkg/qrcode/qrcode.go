// Package qrcode generates and encodes the caBLE v2 pairing QR code: an
// ephemeral identity key and QR secret, digit-encoded into a FIDO:/ URL.
package qrcode

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/jo-bitsch/libwebauthn/pkg/tunnel"
)

// CBOR major types used by the hand-built QR payload. The QR contents are
// byte-for-byte pinned by the CTAP spec (fixed key order, GREASE entry),
// so they are assembled manually rather than through a codec.
const (
	cborMajorByteString = 2
	cborMajorTextString = 3
)

// State is one pairing attempt: a fresh identity key and QR secret. The
// ecdsa package supplies the key structures, but these are ECDH keys.
type State struct {
	identityKey *ecdsa.PrivateKey
	QRSecret    [16]byte
}

// NewState draws a fresh identity key and QR secret.
func NewState() (*State, error) {
	s := &State{}
	if _, err := rand.Read(s.QRSecret[:]); err != nil {
		return nil, fmt.Errorf("generating QR secret: %w", err)
	}
	var err error
	s.identityKey, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating identity key: %w", err)
	}
	return s, nil
}

// IdentityKey returns the identity key in its ECDH form for the handshake.
func (s *State) IdentityKey() (*ecdh.PrivateKey, error) {
	return s.identityKey.ECDH()
}

// CompressedPublicKey returns the 33-byte compressed P-256 public key
// embedded in the QR code.
func (s *State) CompressedPublicKey() [33]byte {
	return compressECKey(&s.identityKey.PublicKey)
}

// compressECKey compresses a P-256 public key to 33 bytes.
func compressECKey(publicKey *ecdsa.PublicKey) [33]byte {
	var compressed [33]byte
	if publicKey.Y.Bit(0) == 0 {
		compressed[0] = 0x02
	} else {
		compressed[0] = 0x03
	}
	xBytes := publicKey.X.Bytes()
	copy(compressed[33-len(xBytes):], xBytes)
	return compressed
}

// URL encodes the state as a FIDO:/ URL for QR display.
func (s *State) URL(hint tunnel.ClientPayloadHint) string {
	compressed := s.CompressedPublicKey()
	return encodeQRContents(&compressed, &s.QRSecret, hint)
}

// digitEncode converts bytes to the digit string used in FIDO:/ URLs:
// 7-byte little-endian chunks become 17-digit decimal numbers.
func digitEncode(d []byte) string {
	const chunkSize = 7
	const chunkDigits = 17
	const zeros = "00000000000000000"

	var ret strings.Builder
	for len(d) >= chunkSize {
		var chunk [8]byte
		copy(chunk[:], d[:chunkSize])
		v := strconv.FormatUint(binary.LittleEndian.Uint64(chunk[:]), 10)
		ret.WriteString(zeros[:chunkDigits-len(v)])
		ret.WriteString(v)
		d = d[chunkSize:]
	}

	if len(d) != 0 {
		// partialChunkDigits is the number of digits needed to encode
		// each length of trailing data from 6 bytes down to zero. I.e.
		// it's 15, 13, 10, 8, 5, 3, 0 written in hex.
		const partialChunkDigits = 0x0fda8530
		digits := 15 & (partialChunkDigits >> (4 * len(d)))
		var chunk [8]byte
		copy(chunk[:], d)
		v := strconv.FormatUint(binary.LittleEndian.Uint64(chunk[:]), 10)
		ret.WriteString(zeros[:digits-len(v)])
		ret.WriteString(v)
	}

	return ret.String()
}

// digitDecode reverses digitEncode.
func digitDecode(s string) ([]byte, error) {
	const chunkSize = 7
	const chunkDigits = 17

	var out []byte
	for len(s) >= chunkDigits {
		v, err := strconv.ParseUint(s[:chunkDigits], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing digit chunk: %w", err)
		}
		var chunk [8]byte
		binary.LittleEndian.PutUint64(chunk[:], v)
		if chunk[7] != 0 {
			return nil, fmt.Errorf("digit chunk out of range")
		}
		out = append(out, chunk[:chunkSize]...)
		s = s[chunkDigits:]
	}

	if len(s) > 0 {
		partialChunkBytes := map[int]int{15: 6, 13: 5, 10: 4, 8: 3, 5: 2, 3: 1}
		size, ok := partialChunkBytes[len(s)]
		if !ok {
			return nil, fmt.Errorf("invalid trailing digit count %d", len(s))
		}
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing trailing digits: %w", err)
		}
		var chunk [8]byte
		binary.LittleEndian.PutUint64(chunk[:], v)
		out = append(out, chunk[:size]...)
	}

	return out, nil
}

// cborEncodeInt64 encodes a non-negative int64 in shortest-form CBOR.
func cborEncodeInt64(value int64) []byte {
	switch {
	case value < 24:
		return []byte{byte(value)}
	case value < 256:
		return []byte{0x18, byte(value)}
	case value < 65536:
		return []byte{0x19, byte(value >> 8), byte(value)}
	case value < 4294967296:
		return []byte{0x1a, byte(value >> 24), byte(value >> 16), byte(value >> 8), byte(value)}
	default:
		return []byte{0x1b, byte(value >> 56), byte(value >> 48), byte(value >> 40), byte(value >> 32),
			byte(value >> 24), byte(value >> 16), byte(value >> 8), byte(value)}
	}
}

// encodeQRContents assembles the canonical QR CBOR map: key 0 the
// compressed public key, 1 the QR secret, 2 the known tunnel-domain count,
// 3 the current time, 4 whether state-assisted transactions are supported,
// 5 the operation hint, and occasionally a GREASE key so decoders keep
// accepting unknown keys.
func encodeQRContents(compressedPublicKey *[33]byte, qrSecret *[16]byte, hint tunnel.ClientPayloadHint) string {
	numMapElements := 6
	var randByte [1]byte
	rand.Reader.Read(randByte[:])
	extraKey := randByte[0]&3 == 0
	if extraKey {
		numMapElements++
	}

	var cbor []byte
	cbor = append(cbor, 0xa0+byte(numMapElements))       // CBOR map
	cbor = append(cbor, 0)                               // key 0
	cbor = append(cbor, (cborMajorByteString<<5)|24, 33) // 33 bytes
	cbor = append(cbor, compressedPublicKey[:]...)
	cbor = append(cbor, 1)                           // key 1
	cbor = append(cbor, (cborMajorByteString<<5)|16) // 16 bytes
	cbor = append(cbor, qrSecret[:]...)

	cbor = append(cbor, 2) // key 2
	n := len(tunnel.KnownTunnelDomains)
	if n > 24 {
		panic("larger encoding needed")
	}
	cbor = append(cbor, byte(n))

	cbor = append(cbor, 3) // key 3
	cbor = append(cbor, cborEncodeInt64(time.Now().Unix())...)

	cbor = append(cbor, 4)    // key 4
	cbor = append(cbor, 0xf4) // false: no state-assisted transactions here

	cbor = append(cbor, 5) // key 5
	cbor = append(cbor, (cborMajorTextString<<5)|2)
	cbor = append(cbor, hint[:2]...)

	if extraKey {
		cbor = append(cbor, 0x19, 0xff, 0xff, 0) // GREASE key 65535, value 0
	}

	return "FIDO:/" + digitEncode(cbor)
}

// Render draws the QR code as a terminal string.
func Render(url string) (string, error) {
	qr, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("creating QR code: %w", err)
	}
	return qr.ToSmallString(false), nil
}
