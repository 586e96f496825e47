// Package fpcalc implements the fingerprint and bucket algebra shared by
// every layer of the partition index: a stable 64-bit hash, a non-zero
// 16-bit fingerprint derived from it, and the primary/partner bucket pair
// used to place and relocate fingerprints in the cuckoo layout.
package fpcalc

import "github.com/cespare/xxhash/v2"

// Fingerprint is a non-zero 16-bit identifier derived from a key. Zero is
// reserved as the empty-slot sentinel and is never returned.
type Fingerprint uint16

// Bucket is a global bucket index in [0, N).
type Bucket uint64

// Hash64 computes the stable 64-bit hash used throughout the index. The
// same function MUST be used by writer and reader of a given index, since
// the on-disk layout is derived entirely from it.
func Hash64(v uint64) uint64 {
	var buf [8]byte
	putUint64LE(buf[:], v)
	return xxhash.Sum64(buf[:])
}

// FingerprintOf derives a non-zero 16-bit fingerprint from key by repeatedly
// re-hashing until the low 16 bits are non-zero.
func FingerprintOf(key uint64) Fingerprint {
	h := key
	for {
		h = Hash64(h)
		if low := uint16(h); low != 0 {
			return Fingerprint(low)
		}
	}
}

// Primary returns the primary bucket for key under a layout of n buckets.
func Primary(key uint64, n uint64) Bucket {
	return Bucket(Hash64(key) % n)
}

// Partner returns the other candidate bucket for fingerprint fp given one
// of its two buckets b, under a layout of n buckets. Partner is an
// involution: Partner(fp, Partner(fp, b, n), n) == b for all valid b,
// provided the subtraction below does not wrap.
//
// The subtraction form is used rather than the XOR form (spec's open
// question): a wrapping uint64 subtraction followed by the final modulo.
// While Hash64(fp) >= b this equals (Hash64(fp) - b) mod n, an involution
// for every n. A wrap needs Hash64(fp) < b < n; it adds 2^64 to the
// difference, which keeps the involution only when n is a power of two.
func Partner(fp Fingerprint, b Bucket, n uint64) Bucket {
	h := Hash64(uint64(fp))
	return Bucket((h - uint64(b)) % n)
}

func putUint64LE(b []byte, v uint64) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	b[4] = byte(v >> 32)
	b[5] = byte(v >> 40)
	b[6] = byte(v >> 48)
	b[7] = byte(v >> 56)
}
