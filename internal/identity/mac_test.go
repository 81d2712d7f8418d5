package identity

import (
	"strconv"
	"strings"
	"testing"
)

func TestGenerateMACFormat(t *testing.T) {
	mac, err := GenerateMAC()
	if err != nil {
		t.Fatalf("GenerateMAC: %v", err)
	}
	if len(mac.Address) != 17 {
		t.Fatalf("expected 17-char address, got %q", mac.Address)
	}
	parts := strings.Split(mac.Address, ":")
	if len(parts) != 6 {
		t.Fatalf("expected 6 octets, got %d", len(parts))
	}
	for _, p := range parts {
		if len(p) != 2 {
			t.Fatalf("octet %q not 2 hex chars", p)
		}
		if _, err := strconv.ParseUint(p, 16, 8); err != nil {
			t.Fatalf("octet %q not hex: %v", p, err)
		}
	}
}

func TestGenerateMACUsesKnownVendor(t *testing.T) {
	mac, err := GenerateMAC()
	if err != nil {
		t.Fatalf("GenerateMAC: %v", err)
	}
	if mac.Vendor == "" {
		t.Fatal("expected non-empty vendor")
	}
	prefix := mac.Address[:8]
	found := false
	for _, e := range ouiDatabase {
		want := formatPrefix(e.prefix)
		if want == prefix && e.vendor == mac.Vendor {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("mac %s vendor %s not in oui database", mac.Address, mac.Vendor)
	}
}

func TestGenerateMACNotLocallyAdministered(t *testing.T) {
	for i := 0; i < 20; i++ {
		mac, err := GenerateMAC()
		if err != nil {
			t.Fatalf("GenerateMAC: %v", err)
		}
		first, err := strconv.ParseUint(mac.Address[:2], 16, 8)
		if err != nil {
			t.Fatalf("parse first octet: %v", err)
		}
		if first&0x02 != 0 {
			t.Fatalf("locally administered bit set on %s", mac.Address)
		}
	}
}

func TestGenerateMACRandomness(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		mac, err := GenerateMAC()
		if err != nil {
			t.Fatalf("GenerateMAC: %v", err)
		}
		seen[mac.Address] = true
	}
	if len(seen) == 1 {
		t.Fatal("all 10 generated MACs were identical")
	}
}

func formatPrefix(p [3]byte) string {
	const hex = "0123456789ABCDEF"
	b := make([]byte, 8)
	b[0] = hex[p[0]>>4]
	b[1] = hex[p[0]&0xF]
	b[2] = ':'
	b[3] = hex[p[1]>>4]
	b[4] = hex[p[1]&0xF]
	b[5] = ':'
	b[6] = hex[p[2]>>4]
	b[7] = hex[p[2]&0xF]
	return string(b)
}
