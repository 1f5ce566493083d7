package qrcode

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jo-bitsch/libwebauthn/pkg/tunnel"
)

func TestDigitEncodeDecodeRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x00},
		{0xFF},
		{0x01, 0x02, 0x03},
		bytes.Repeat([]byte{0xAB}, 7),
		bytes.Repeat([]byte{0xCD}, 20),
		bytes.Repeat([]byte{0xFF}, 33),
	}
	for _, data := range cases {
		encoded := digitEncode(data)
		decoded, err := digitDecode(encoded)
		if err != nil {
			t.Fatalf("digitDecode(%q) failed: %v", encoded, err)
		}
		if len(data) == 0 && len(decoded) == 0 {
			continue
		}
		if !bytes.Equal(decoded, data) {
			t.Errorf("round trip of %x gave %x (encoded %q)", data, decoded, encoded)
		}
	}
}

func TestDigitEncodeChunkWidth(t *testing.T) {
	// A full 7-byte chunk always encodes to exactly 17 digits.
	encoded := digitEncode(bytes.Repeat([]byte{0xFF}, 7))
	if len(encoded) != 17 {
		t.Errorf("full chunk encoded to %d digits, want 17", len(encoded))
	}
	// 3 trailing bytes encode to 8 digits.
	encoded = digitEncode(bytes.Repeat([]byte{0xFF}, 10))
	if len(encoded) != 17+8 {
		t.Errorf("10 bytes encoded to %d digits, want 25", len(encoded))
	}
}

func TestStateURL(t *testing.T) {
	state, err := NewState()
	if err != nil {
		t.Fatalf("NewState() failed: %v", err)
	}
	url := state.URL(tunnel.HintGetAssertion)
	if !strings.HasPrefix(url, "FIDO:/") {
		t.Fatalf("URL %q lacks the FIDO:/ scheme", url)
	}

	payload, err := digitDecode(strings.TrimPrefix(url, "FIDO:/"))
	if err != nil {
		t.Fatalf("decoding URL digits: %v", err)
	}
	// Map header: 6 entries, or 7 with the GREASE key.
	if payload[0] != 0xa6 && payload[0] != 0xa7 {
		t.Fatalf("payload starts with 0x%02x, want a CBOR map of 6 or 7 entries", payload[0])
	}
	// Key 0: the 33-byte compressed public key.
	if payload[1] != 0x00 || payload[2] != 0x58 || payload[3] != 33 {
		t.Fatalf("unexpected key-0 header % x", payload[1:4])
	}
	compressed := state.CompressedPublicKey()
	if !bytes.Equal(payload[4:37], compressed[:]) {
		t.Error("embedded public key differs from state")
	}
	if compressed[0] != 0x02 && compressed[0] != 0x03 {
		t.Errorf("compressed key prefix = 0x%02x", compressed[0])
	}
	// Key 1: the 16-byte QR secret.
	if payload[37] != 0x01 || payload[38] != 0x50 {
		t.Fatalf("unexpected key-1 header % x", payload[37:39])
	}
	if !bytes.Equal(payload[39:55], state.QRSecret[:]) {
		t.Error("embedded QR secret differs from state")
	}
	// Key 2: the known tunnel-domain count.
	if payload[55] != 0x02 || int(payload[56]) != len(tunnel.KnownTunnelDomains) {
		t.Errorf("domain count = %d, want %d", payload[56], len(tunnel.KnownTunnelDomains))
	}
}

func TestIdentityKeyConversion(t *testing.T) {
	state, err := NewState()
	if err != nil {
		t.Fatalf("NewState() failed: %v", err)
	}
	key, err := state.IdentityKey()
	if err != nil {
		t.Fatalf("IdentityKey() failed: %v", err)
	}
	pub := key.PublicKey().Bytes()
	if len(pub) != 65 || pub[0] != 0x04 {
		t.Fatalf("unexpected public key encoding, length %d", len(pub))
	}
	// The compressed QR key and the ECDH key agree on the x-coordinate.
	compressed := state.CompressedPublicKey()
	if !bytes.Equal(pub[1:33], compressed[1:]) {
		t.Error("compressed key x-coordinate differs from ECDH key")
	}
}

func TestRender(t *testing.T) {
	state, err := NewState()
	if err != nil {
		t.Fatalf("NewState() failed: %v", err)
	}
	rendered, err := Render(state.URL(tunnel.HintMakeCredential))
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}
	if rendered == "" {
		t.Error("Render() produced no output")
	}
}
