package identity

import (
	"crypto/rand"
	"fmt"
)

// MAC is a generated hardware address paired with the vendor whose OUI
// prefix it was drawn from.
type MAC struct {
	Address string
	Vendor  string
}

// GenerateMAC draws a random vendor OUI from ouiDatabase and appends three
// random octets, producing an address that never sets the
// locally-administered bit (bit 1 of the first octet), since every OUI in
// the table is a real vendor assignment.
func GenerateMAC() (MAC, error) {
	idx, err := randIndex(len(ouiDatabase))
	if err != nil {
		return MAC{}, fmt.Errorf("identity: generate mac: %w", err)
	}
	entry := ouiDatabase[idx]

	var tail [3]byte
	if _, err := rand.Read(tail[:]); err != nil {
		return MAC{}, fmt.Errorf("identity: generate mac: %w", err)
	}

	addr := fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		entry.prefix[0], entry.prefix[1], entry.prefix[2],
		tail[0], tail[1], tail[2])

	return MAC{Address: addr, Vendor: entry.vendor}, nil
}

// randIndex returns a uniformly distributed index in [0, n) using
// crypto/rand, rejecting biased draws rather than reducing modulo n.
func randIndex(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("empty range")
	}
	max := 256 - (256 % n)
	for {
		var b [1]byte
		if _, err := rand.Read(b[:]); err != nil {
			return 0, err
		}
		if int(b[0]) < max {
			return int(b[0]) % n, nil
		}
	}
}
