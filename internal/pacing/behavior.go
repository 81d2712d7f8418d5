package pacing

import (
	"crypto/sha512"
	"encoding/binary"
	"math/rand"
	"time"
)

// DwellBehavior is a deterministic-per-dwell pacing and burst profile. It is
// layered underneath the per-request jitter of Jitter — it never replaces
// that invariant, it only adds an occasional extra pause so pacing is not
// perfectly periodic across an entire dwell.
type DwellBehavior struct {
	BaseDelay  time.Duration // informational: the dwell's nominal per-request delay
	BurstEvery int           // apply BurstExtra every this many requests
	BurstExtra time.Duration // extra sleep applied on a burst tick
}

// DeriveDwellBehavior builds a deterministic behavior profile for one user's
// dwell on a site, based on a run seed, the user id, and the dwell index.
// The result is identical across runs given the same seed, user, and dwell
// index, but varies across users and dwells within a run.
func DeriveDwellBehavior(runSeed []byte, userID int, dwellIndex int) DwellBehavior {
	h := sha512.New()
	h.Write(runSeed)
	h.Write([]byte("|user:"))
	var ubuf [8]byte
	binary.BigEndian.PutUint64(ubuf[:], uint64(userID))
	h.Write(ubuf[:])
	h.Write([]byte("|dwell:"))
	var dbuf [8]byte
	binary.BigEndian.PutUint64(dbuf[:], uint64(dwellIndex))
	h.Write(dbuf[:])

	sum := h.Sum(nil)

	takeUint := func(offset int, max uint32) uint32 {
		if max == 0 {
			return 0
		}
		v := binary.BigEndian.Uint32(sum[offset : offset+4])
		return v % max
	}

	baseDelayMs := 300 + takeUint(0, 900)
	burstEvery := 15 + int(takeUint(4, 45))
	burstExtraMs := 2000 + takeUint(8, 5000)

	return DwellBehavior{
		BaseDelay:  time.Duration(baseDelayMs) * time.Millisecond,
		BurstEvery: burstEvery,
		BurstExtra: time.Duration(burstExtraMs) * time.Millisecond,
	}
}

// Jitter scales baseSeconds by a uniform random factor in [0.7, 1.3], drawn
// fresh on every call from math/rand's process-global source (itself
// auto-seeded from a crypto source since Go 1.20). This is independent of
// DeriveDwellBehavior and must never be replaced by a deterministic
// derivation: it is what keeps each request's delay unpredictable, which the
// seed-derived dwell profile alone does not.
func Jitter(baseSeconds float64) float64 {
	factor := 0.7 + rand.Float64()*0.6
	return baseSeconds * factor
}
