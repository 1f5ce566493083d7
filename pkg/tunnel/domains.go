// Package tunnel implements the cloud-tunnel side of the caBLE v2 hybrid
// transport: the tunnel-server WebSocket connection, the Noise handshake
// with the phone authenticator, and the resulting CTAP channel.
package tunnel

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// KnownTunnelDomains is the table of well-known tunnel-server domains.
// Advertisements reference these by index, so the table must stay
// encodable in a single byte (fewer than 25 entries leaves room for the
// digit-encoded QR representation).
var KnownTunnelDomains = []string{
	"cable.ua5v.com",
	"cable.auth.com",
}

const derivedDomainLabel = "caBLEv2 tunnel server domain"

// DecodeTunnelServerDomain maps the 16-bit encoded domain from an
// advertisement to a hostname. Values below 256 index the well-known
// table; larger values derive a hashed domain so that new tunnel services
// can be introduced without updating every client.
func DecodeTunnelServerDomain(encoded uint16) (string, error) {
	if encoded < 256 {
		if int(encoded) >= len(KnownTunnelDomains) {
			return "", fmt.Errorf("unassigned tunnel server domain %d", encoded)
		}
		return KnownTunnelDomains[encoded], nil
	}

	buf := make([]byte, 0, 2+len(derivedDomainLabel)+1)
	buf = binary.LittleEndian.AppendUint16(buf, encoded)
	buf = append(buf, derivedDomainLabel...)
	buf = append(buf, 0)
	digest := sha256.Sum256(buf)
	v := binary.LittleEndian.Uint64(digest[:8])

	tlds := []string{".com", ".org", ".net", ".info"}
	tld := tlds[v&3]
	v >>= 2

	const base32Chars = "abcdefghijklmnopqrstuvwxyz234567"
	domain := []byte("cable.")
	for v != 0 {
		domain = append(domain, base32Chars[v&31])
		v >>= 5
	}
	return string(domain) + tld, nil
}
