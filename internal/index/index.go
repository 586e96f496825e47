// Package index implements the persistent cuckoo-fingerprint partition
// index: the orchestrator that ties internal/generation (in-memory
// accumulation), internal/bucketfile (on-disk columns), and
// internal/manifest (durable partition list) into the single
// create/open/add/persist/query/remove surface described by spec.md
// §4.6–§4.8. It is adapted from the teacher's top-level cache engine
// (internal/persistence.HybridEngine), which plays the same role of
// gluing an in-memory structure to a durable log and a manifest.
package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"partitionindex/internal/bucketfile"
	"partitionindex/internal/fpcalc"
	"partitionindex/internal/generation"
	"partitionindex/internal/manifest"
	"partitionindex/internal/obslog"
)

// Index is the persistent partition index: a durable generation on disk
// (bucket files + manifest) plus an in-memory generation accumulating
// partitions added since the last persist.
type Index struct {
	root string
	n    uint64

	m     *manifest.Manifest
	files *bucketfile.Set
	mem   *generation.Generation

	log *obslog.Logger
}

// Create initialises a brand-new index at root with a fixed bucket count.
// root must not already contain a manifest.
func Create(numBuckets uint64, root string) (*Index, error) {
	if numBuckets == 0 {
		return nil, &Error{Kind: Invariant, Op: "create", Err: fmt.Errorf("num_buckets must be > 0")}
	}
	files, err := bucketfile.Open(root, numBuckets)
	if err != nil {
		return nil, &Error{Kind: IOError, Op: "create", Err: err}
	}
	idx := &Index{
		root:  root,
		n:     numBuckets,
		m:     manifest.New(numBuckets),
		files: files,
		mem:   generation.New(numBuckets),
		log:   logger(),
	}
	return idx, nil
}

// Open loads an existing index from root, truncating every bucket file to
// its manifest-declared stride to discard any tail bytes left behind by a
// crash between the bucket-append and manifest-rewrite steps of a prior
// persist (spec.md §4.6).
func Open(root string) (*Index, error) {
	log := logger()
	ctx := obslog.WithCorrelationID(context.Background(), obslog.NewCorrelationID())

	m, err := manifest.Load(root)
	if err != nil {
		log.Error(ctx, obslog.ComponentIndex, obslog.ActionLoad, "manifest load failed", err)
		kind := FormatError
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			kind = IOError
		}
		return nil, &Error{Kind: kind, Op: "open", Err: err}
	}

	files, err := bucketfile.Open(root, m.NumBuckets)
	if err != nil {
		return nil, &Error{Kind: IOError, Op: "open", Err: err}
	}

	strideBytes := int64(m.Stride) * 2
	for b := uint64(0); b < m.NumBuckets; b++ {
		if err := files.Truncate(b, strideBytes); err != nil {
			log.Error(ctx, obslog.ComponentIndex, obslog.ActionTruncate, "bucket truncation failed", err, map[string]interface{}{"bucket": b})
			return nil, &Error{Kind: IOError, Op: "open", Err: err}
		}
	}
	log.Info(ctx, obslog.ComponentIndex, obslog.ActionLoad, "index opened", map[string]interface{}{
		"root": root, "num_buckets": m.NumBuckets, "stride": m.Stride, "partitions": len(m.Partitions),
	})

	return &Index{
		root:  root,
		n:     m.NumBuckets,
		m:     m,
		files: files,
		mem:   generation.New(m.NumBuckets),
		log:   log,
	}, nil
}

// Add inserts one partition's keys into the in-memory generation. Per
// spec.md §4.8, add cannot fail: the underlying builder always succeeds by
// growing its bucket width.
func (idx *Index) Add(partition string, keys []uint64) {
	idx.mem.Add(partition, keys)
}

// AddMany inserts several partitions' keys in parallel (spec.md §5).
func (idx *Index) AddMany(batches []generation.Batch) {
	idx.mem.AddMany(batches)
}

// Remove tombstones partition wherever it currently lives: persisted
// manifest, in-memory tail, or both.
func (idx *Index) Remove(partition string) {
	idx.m.Remove(partition)
	idx.mem.Remove(partition)
}

// Partitions returns every partition this index has ever seen, persisted
// or not, in the order they were added.
func (idx *Index) Partitions() []generation.PartitionInfo {
	out := make([]generation.PartitionInfo, 0, len(idx.m.Partitions)+len(idx.mem.Manifest()))
	out = append(out, idx.m.Partitions...)
	out = append(out, idx.mem.Manifest()...)
	return out
}

// Persist writes the in-memory generation to disk: bucket files first,
// then the manifest, matching the six-step protocol of spec.md §4.6.
// A failure before the manifest rewrite leaves the on-disk manifest
// untouched and the in-memory generation intact for retry; bucket files
// may carry trailing junk that a later Open will truncate away. The
// manifest is rewritten even when no partition was added, so a fresh
// index or a Remove becomes durable.
func (idx *Index) Persist() error {
	ctx := obslog.WithCorrelationID(context.Background(), obslog.NewCorrelationID())

	tail := idx.mem.Manifest()

	buckets := idx.mem.Buckets()
	for b := uint64(0); b < idx.n && len(tail) > 0; b++ {
		if err := idx.files.Append(b, buckets[b]); err != nil {
			idx.log.Error(ctx, obslog.ComponentIndex, obslog.ActionPersist, "bucket append failed", err, map[string]interface{}{"bucket": b})
			return &Error{Kind: IOError, Op: "persist", Err: err}
		}
	}

	idx.m.Append(tail)
	if err := idx.m.Save(idx.root); err != nil {
		idx.log.Error(ctx, obslog.ComponentIndex, obslog.ActionPersist, "manifest save failed", err)
		return &Error{Kind: IOError, Op: "persist", Err: err}
	}

	idx.log.Info(ctx, obslog.ComponentIndex, obslog.ActionPersist, "generation persisted", map[string]interface{}{
		"partitions": len(tail), "stride": idx.mem.Stride(),
	})
	idx.mem.Reset()
	return nil
}

// Query returns every partition (persisted or in-memory) whose filter may
// contain key. The two generations are unioned; duplicates across them
// are impossible by construction since a partition lives in exactly one
// generation at a time (spec.md §4.6 step 3).
func (idx *Index) Query(key uint64) ([]string, error) {
	fp := fpcalc.FingerprintOf(key)
	b1 := fpcalc.Primary(key, idx.n)
	b2 := fpcalc.Partner(fp, b1, idx.n)

	var hits []string
	if idx.m.Stride > 0 {
		strideBytes := int64(idx.m.Stride) * 2
		col1, err := idx.files.ReadStride(uint64(b1), strideBytes)
		if err != nil {
			return nil, &Error{Kind: IOError, Op: "query", Err: err}
		}
		col2, err := idx.files.ReadStride(uint64(b2), strideBytes)
		if err != nil {
			return nil, &Error{Kind: IOError, Op: "query", Err: err}
		}

		pos := uint64(0)
		for _, info := range idx.m.Partitions {
			if info.Active && (scanRange(col1, pos, info.Width, fp) || scanRange(col2, pos, info.Width, fp)) {
				hits = append(hits, info.Partition)
			}
			pos += uint64(info.Width)
		}
	}

	hits = append(hits, idx.mem.Query(key)...)
	return hits, nil
}

// Root returns the storage root this index is backed by.
func (idx *Index) Root() string { return idx.root }

// ManifestPath returns the absolute path of this index's manifest file,
// primarily useful for tooling (e.g. the stats CLI subcommand).
func (idx *Index) ManifestPath() string { return filepath.Join(idx.root, "partitions.data") }

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

var processLogger *obslog.Logger

func logger() *obslog.Logger {
	if g := obslog.Global(); g != nil {
		return g
	}
	if processLogger == nil {
		processLogger = obslog.New(obslog.Config{Level: obslog.INFO})
	}
	return processLogger
}
