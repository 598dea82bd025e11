package metering

import (
	"hash/maphash"
	"math"
)

// BloomConfig sizes the quota Bloom filter.
type BloomConfig struct {
	ExpectedItems     uint64
	FalsePositiveRate float64
}

// DefaultBloomConfig targets 1e6 tracked keys at a 0.1% false-positive rate.
func DefaultBloomConfig() BloomConfig {
	return BloomConfig{ExpectedItems: 1_000_000, FalsePositiveRate: 0.001}
}

// QuotaBloomFilter is the first, fastest tier of the quota hot path: a
// probabilistic set of quota keys that have ever had a quota record
// configured (i.e. charged at least once). It never produces a false
// negative — if MightBeConfigured returns false, the key is definitely
// brand new, with zero recorded usage, so the caller can evaluate the
// request against the default limit directly without consulting the
// cache or repository tiers. A false positive only costs a fallthrough to
// the slower, authoritative tiers; it never causes an incorrect allow,
// since those tiers hold the real Used/Limit figures.
//
// This is a standard k-hash-function bitset Bloom filter, sized optimally
// for (ExpectedItems, FalsePositiveRate) and using double hashing (two
// independent maphash seeds combined per Kirsch-Mitzenmacher) to derive the
// k probe positions from two hash computations instead of k.
type QuotaBloomFilter struct {
	bits    []uint64
	numBits uint64
	numHash uint64
	seedA   maphash.Seed
	seedB   maphash.Seed
}

// NewQuotaBloomFilter builds a filter sized per config.
func NewQuotaBloomFilter(config BloomConfig) *QuotaBloomFilter {
	n := config.ExpectedItems
	if n == 0 {
		n = 1
	}
	p := config.FalsePositiveRate
	if p <= 0 || p >= 1 {
		p = 0.001
	}

	m := optimalNumBits(n, p)
	k := optimalNumHashes(m, n)

	return &QuotaBloomFilter{
		bits:    make([]uint64, (m+63)/64),
		numBits: m,
		numHash: k,
		seedA:   maphash.MakeSeed(),
		seedB:   maphash.MakeSeed(),
	}
}

func optimalNumBits(n uint64, p float64) uint64 {
	m := -1 * float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)
	if m < 64 {
		m = 64
	}
	return uint64(math.Ceil(m))
}

func optimalNumHashes(m, n uint64) uint64 {
	k := float64(m) / float64(n) * math.Ln2
	if k < 1 {
		k = 1
	}
	return uint64(math.Round(k))
}

func (b *QuotaBloomFilter) hashes(key string) (uint64, uint64) {
	var ha, hb maphash.Hash
	ha.SetSeed(b.seedA)
	hb.SetSeed(b.seedB)
	ha.WriteString(key)
	hb.WriteString(key)
	return ha.Sum64(), hb.Sum64()
}

func (b *QuotaBloomFilter) positions(key string) []uint64 {
	h1, h2 := b.hashes(key)
	positions := make([]uint64, b.numHash)
	for i := uint64(0); i < b.numHash; i++ {
		positions[i] = (h1 + i*h2) % b.numBits
	}
	return positions
}

// MarkConfigured records that key now has a quota record backing it (it
// has been charged at least once).
func (b *QuotaBloomFilter) MarkConfigured(key QuotaKey) {
	for _, pos := range b.positions(key.String()) {
		b.bits[pos/64] |= 1 << (pos % 64)
	}
}

// MightBeConfigured reports whether key might already have a quota record.
// False means definitely not — the key is fresh, with zero usage — and
// the caller can check the request against the default limit directly.
// True means maybe (confirm the real Used/Limit against cache/repository).
func (b *QuotaBloomFilter) MightBeConfigured(key QuotaKey) bool {
	for _, pos := range b.positions(key.String()) {
		if b.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}
