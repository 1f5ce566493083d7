package tunnel

import (
	"strings"
	"testing"
)

// The well-known table must stay encodable as a single byte.
func TestKnownTunnelDomainsCount(t *testing.T) {
	if len(KnownTunnelDomains) >= 25 {
		t.Fatalf("KnownTunnelDomains has %d entries; must stay below 25 for single-byte encoding",
			len(KnownTunnelDomains))
	}
}

func TestDecodeTunnelServerDomainIndexed(t *testing.T) {
	domain, err := DecodeTunnelServerDomain(0)
	if err != nil {
		t.Fatalf("DecodeTunnelServerDomain(0) failed: %v", err)
	}
	if domain != "cable.ua5v.com" {
		t.Errorf("domain = %q, want cable.ua5v.com", domain)
	}
	if _, err := DecodeTunnelServerDomain(uint16(len(KnownTunnelDomains))); err == nil {
		t.Error("unassigned index should fail")
	}
}

func TestDecodeTunnelServerDomainDerived(t *testing.T) {
	domain, err := DecodeTunnelServerDomain(0x0100)
	if err != nil {
		t.Fatalf("DecodeTunnelServerDomain(256) failed: %v", err)
	}
	if !strings.HasPrefix(domain, "cable.") {
		t.Errorf("derived domain %q lacks the cable. prefix", domain)
	}
	hasTLD := false
	for _, tld := range []string{".com", ".org", ".net", ".info"} {
		if strings.HasSuffix(domain, tld) {
			hasTLD = true
		}
	}
	if !hasTLD {
		t.Errorf("derived domain %q has an unexpected TLD", domain)
	}

	// Derivation is deterministic.
	again, _ := DecodeTunnelServerDomain(0x0100)
	if again != domain {
		t.Errorf("derivation not deterministic: %q vs %q", domain, again)
	}
	other, _ := DecodeTunnelServerDomain(0x0101)
	if other == domain {
		t.Errorf("distinct encodings derived the same domain %q", domain)
	}
}
