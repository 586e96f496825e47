// Package cuckoo implements the growable-width cuckoo filter used to build
// one partition's contribution to the global column layout. It is adapted
// from the teacher's internal/filter.CuckooFilter: the same hash/evict/
// fingerprint algebra, generalized from a fixed-width, fixed-bucket-count
// structure to one that grows its own width on demand and hands its raw
// variable-length bucket lists back to the caller for column packing.
package cuckoo

import (
	"math/rand"

	"partitionindex/internal/fpcalc"
)

// maxEvictionAttempts is the per-insert eviction budget (spec deviation
// from the 500-try paper figure, in exchange for predictable worst-case
// latency at slightly lower peak load).
const maxEvictionAttempts = 63

// InsertOutcome reports what Insert did with a key.
type InsertOutcome int

const (
	Inserted InsertOutcome = iota
	Duplicate
)

// Builder accumulates one partition's keys into a growable cuckoo filter
// of N buckets. It starts at width 1 and grows by one whenever an insert
// exhausts its eviction budget.
type Builder struct {
	n       uint64
	width   uint16
	buckets [][]fpcalc.Fingerprint
	items   uint64
	rng     *rand.Rand
}

// NewBuilder creates a builder over n buckets, starting at width 1.
func NewBuilder(n uint64, rng *rand.Rand) *Builder {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Builder{
		n:       n,
		width:   1,
		buckets: make([][]fpcalc.Fingerprint, n),
		rng:     rng,
	}
}

// Width returns the current bucket width.
func (b *Builder) Width() uint16 { return b.width }

// Items returns the number of keys successfully inserted (duplicates do
// not count).
func (b *Builder) Items() uint64 { return b.items }

// Buckets returns the variable-length per-bucket fingerprint lists
// accumulated so far. The caller must not mutate the returned slices.
func (b *Builder) Buckets() [][]fpcalc.Fingerprint { return b.buckets }

// Insert places key into the filter, growing the width if the eviction
// budget is exhausted. Insert never fails: a growable filter always
// accepts by widening (spec §7 — no RejectedInsert path at this layer).
func (b *Builder) Insert(key uint64) InsertOutcome {
	fp := fpcalc.FingerprintOf(key)
	b1 := fpcalc.Primary(key, b.n)
	b2 := fpcalc.Partner(fp, b1, b.n)

	if b.bucketHas(b1, fp) || b.bucketHas(b2, fp) {
		return Duplicate
	}

	target := b1
	if len(b.buckets[b1]) >= int(b.width) && len(b.buckets[b2]) < int(b.width) {
		target = b2
	}

	if len(b.buckets[target]) < int(b.width) {
		b.buckets[target] = append(b.buckets[target], fp)
		b.items++
		return Inserted
	}

	b.evictAndInsert(target, fp)
	b.items++
	return Inserted
}

// bucketHas reports whether bucket idx already holds fingerprint fp.
func (b *Builder) bucketHas(idx fpcalc.Bucket, fp fpcalc.Fingerprint) bool {
	for _, v := range b.buckets[idx] {
		if v == fp {
			return true
		}
	}
	return false
}

// evictAndInsert runs the cuckoo eviction chain starting at (bucket, fp).
// If the budget is exhausted before a slot frees up, it grows the width
// by one and places fp directly, per spec §4.2 step 6.
func (b *Builder) evictAndInsert(bucket fpcalc.Bucket, fp fpcalc.Fingerprint) {
	curBucket := bucket
	curFP := fp

	for tries := 0; tries < maxEvictionAttempts; tries++ {
		slots := b.buckets[curBucket]
		i := b.rng.Intn(len(slots))
		evicted := slots[i]
		slots[i] = curFP
		b.buckets[curBucket] = slots

		altBucket := fpcalc.Partner(evicted, curBucket, b.n)
		if len(b.buckets[altBucket]) < int(b.width) {
			b.buckets[altBucket] = append(b.buckets[altBucket], evicted)
			return
		}

		curBucket = altBucket
		curFP = evicted
	}

	// Budget exhausted: grow and place the displaced fingerprint.
	b.width++
	b.buckets[curBucket] = append(b.buckets[curBucket], curFP)
}
