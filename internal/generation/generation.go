// Package generation holds the in-memory, column-packed layout that
// accumulates newly added partitions between persists. It is adapted from
// the teacher's internal/storage.MemoryPool in spirit: a shared-nothing
// division of labor across a fixed number of slots (buckets here, byte
// ranges there) with no per-slot locking once work is partitioned.
package generation

import (
	"fmt"
	"math/rand"
	"sync"

	"partitionindex/internal/cuckoo"
	"partitionindex/internal/fpcalc"
)

// PartitionID is an opaque, caller-supplied identifier for a partition.
// It must be comparable and binary-serialisable (see internal/manifest's
// encode and decode).
type PartitionID = string

// PartitionInfo describes one partition's contribution to the column
// layout, matching spec §3's entity of the same name.
type PartitionInfo struct {
	Partition PartitionID
	Width     uint16
	Active    bool
	Elements  uint64
}

// Batch is one partition's worth of keys to add, used by AddMany for the
// parallel bulk-build driver (spec §5).
type Batch struct {
	Partition PartitionID
	Keys      []uint64
}

// Generation accumulates partitions into N dense fingerprint columns,
// right-padding each partition's contribution to stride alignment so that
// every bucket has the same length at all times (invariant 1 of spec §3).
type Generation struct {
	n       uint64
	buckets [][]fpcalc.Fingerprint // len(buckets) == n, len(buckets[b]) == stride for all b
	tail    []PartitionInfo
	stride  uint64
}

// New creates an empty generation over n buckets.
func New(n uint64) *Generation {
	return &Generation{
		n:       n,
		buckets: make([][]fpcalc.Fingerprint, n),
	}
}

// NumBuckets returns the fixed bucket count N.
func (g *Generation) NumBuckets() uint64 { return g.n }

// Stride returns the current column length (sum of widths added so far).
func (g *Generation) Stride() uint64 { return g.stride }

// Manifest returns the partitions accumulated in this generation, in
// insertion order.
func (g *Generation) Manifest() []PartitionInfo { return g.tail }

// Buckets exposes the packed columns for persistence. Callers must not
// mutate the returned slices.
func (g *Generation) Buckets() [][]fpcalc.Fingerprint { return g.buckets }

// Add builds a PerPartitionBuilder over keys and merges its output into
// the column layout, right-padding every bucket with the empty sentinel
// to keep all columns the same length (spec §4.3).
func (g *Generation) Add(partition PartitionID, keys []uint64) {
	b := cuckoo.NewBuilder(g.n, rand.New(rand.NewSource(int64(fpcalc.Hash64(uint64(len(g.tail)))))))
	for _, k := range keys {
		b.Insert(k)
	}
	g.merge(partition, b)
}

// merge appends one builder's output as the next partition in the layout.
func (g *Generation) merge(partition PartitionID, b *cuckoo.Builder) {
	width := b.Width()
	lists := b.Buckets()

	for col := uint64(0); col < g.n; col++ {
		g.buckets[col] = append(g.buckets[col], lists[col]...)
		for uint64(len(g.buckets[col])) < g.stride+uint64(width) {
			g.buckets[col] = append(g.buckets[col], 0)
		}
	}

	g.tail = append(g.tail, PartitionInfo{
		Partition: partition,
		Width:     width,
		Active:    true,
		Elements:  b.Items(),
	})
	g.stride += uint64(width)
	g.checkInvariants()
}

// AddMany builds every batch's PerPartitionBuilder concurrently, then
// merges them into the column layout in batch order. The per-partition
// build phase is embarrassingly parallel (each builder is independent);
// the merge phase itself runs one worker per bucket so no bucket is ever
// touched by more than one goroutine (spec §5).
func (g *Generation) AddMany(batches []Batch) {
	if len(batches) == 0 {
		return
	}

	built := make([]*cuckoo.Builder, len(batches))
	var wg sync.WaitGroup
	wg.Add(len(batches))
	for i, batch := range batches {
		go func(i int, batch Batch) {
			defer wg.Done()
			seed := int64(fpcalc.Hash64(uint64(i) ^ uint64(len(batch.Keys))))
			b := cuckoo.NewBuilder(g.n, rand.New(rand.NewSource(seed)))
			for _, k := range batch.Keys {
				b.Insert(k)
			}
			built[i] = b
		}(i, batch)
	}
	wg.Wait()

	widths := make([]uint16, len(batches))
	baseStride := g.stride
	for i, b := range built {
		widths[i] = b.Width()
	}

	var bwg sync.WaitGroup
	bwg.Add(int(g.n))
	for col := uint64(0); col < g.n; col++ {
		go func(col uint64) {
			defer bwg.Done()
			running := baseStride
			for i, b := range built {
				g.buckets[col] = append(g.buckets[col], b.Buckets()[col]...)
				running += uint64(widths[i])
				for uint64(len(g.buckets[col])) < running {
					g.buckets[col] = append(g.buckets[col], 0)
				}
			}
		}(col)
	}
	bwg.Wait()

	for i, batch := range batches {
		g.tail = append(g.tail, PartitionInfo{
			Partition: batch.Partition,
			Width:     widths[i],
			Active:    true,
			Elements:  built[i].Items(),
		})
		g.stride += uint64(widths[i])
	}
	g.checkInvariants()
}

// Query scans the in-memory tail for partitions that may contain key.
func (g *Generation) Query(key uint64) []PartitionID {
	fp := fpcalc.FingerprintOf(key)
	b1 := fpcalc.Primary(key, g.n)
	b2 := fpcalc.Partner(fp, b1, g.n)

	var hits []PartitionID
	pos := uint64(0)
	for _, info := range g.tail {
		if info.Active && (scanRange(g.buckets[b1], pos, info.Width, fp) || scanRange(g.buckets[b2], pos, info.Width, fp)) {
			hits = append(hits, info.Partition)
		}
		pos += uint64(info.Width)
	}
	return hits
}

// Remove flips active=false on every tail entry matching partition.
func (g *Generation) Remove(partition PartitionID) {
	for i := range g.tail {
		if g.tail[i].Partition == partition {
			g.tail[i].Active = false
		}
	}
}

// Reset clears the tail after a successful persist.
func (g *Generation) Reset() {
	g.tail = nil
	g.stride = 0
	g.buckets = make([][]fpcalc.Fingerprint, g.n)
}

// checkInvariants verifies every bucket has length == stride. This is a
// programming-bug detector per spec §7 and panics rather than returning
// an error, matching the spec's "SHOULD abort the process" guidance.
func (g *Generation) checkInvariants() {
	for b, col := range g.buckets {
		if uint64(len(col)) != g.stride {
			panic(fmt.Sprintf("generation invariant violated: bucket %d has length %d, want stride %d", b, len(col), g.stride))
		}
	}
}

func scanRange(col []fpcalc.Fingerprint, pos uint64, width uint16, fp fpcalc.Fingerprint) bool {
	end := pos + uint64(width)
	if end > uint64(len(col)) {
		end = uint64(len(col))
	}
	for i := pos; i < end; i++ {
		if col[i] == fp {
			return true
		}
	}
	return false
}
