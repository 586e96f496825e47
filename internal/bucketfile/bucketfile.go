// Package bucketfile owns the on-disk per-bucket append-only fingerprint
// files. It is adapted from the teacher's internal/persistence.AOFManager:
// the same buffered-append-then-sync discipline, generalized from one
// append-only log to N parallel append-only columns, one per bucket.
package bucketfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"partitionindex/internal/fpcalc"
)

const fileMode = 0o644

// Set owns the N per-bucket files under root/index/.
type Set struct {
	root string
	n    uint64
}

// Open ensures root/index/ exists and returns a handle over n buckets.
func Open(root string, n uint64) (*Set, error) {
	dir := filepath.Join(root, "index")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("bucketfile: create index dir: %w", err)
	}
	return &Set{root: root, n: n}, nil
}

func (s *Set) path(b uint64) string {
	return filepath.Join(s.root, "index", fmt.Sprintf("%07d.bucket", b))
}

// Append writes fingerprints to the end of bucket b's file, flushing and
// syncing before returning. Writes across buckets need not be atomic with
// one another (spec §4.4); the manifest rewrite that follows an append
// round is what makes the whole persist durable.
func (s *Set) Append(b uint64, fingerprints []fpcalc.Fingerprint) error {
	f, err := os.OpenFile(s.path(b), os.O_CREATE|os.O_WRONLY|os.O_APPEND, fileMode)
	if err != nil {
		return fmt.Errorf("bucketfile: open bucket %d for append: %w", b, err)
	}
	defer f.Close()

	w := bufio.NewWriterSize(f, 64*1024)
	var buf [2]byte
	for _, fp := range fingerprints {
		binary.LittleEndian.PutUint16(buf[:], uint16(fp))
		if _, err := w.Write(buf[:]); err != nil {
			return fmt.Errorf("bucketfile: write bucket %d: %w", b, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("bucketfile: flush bucket %d: %w", b, err)
	}
	return f.Sync()
}

// Read returns the full little-endian u16 stream of bucket b.
func (s *Set) Read(b uint64) ([]fpcalc.Fingerprint, error) {
	data, err := os.ReadFile(s.path(b))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("bucketfile: read bucket %d: %w", b, err)
	}
	return decode(data), nil
}

// ReadStride reads exactly strideBytes bytes of bucket b (authoritative
// length comes from the manifest), tolerating a longer file on disk left
// behind by a concurrent or crashed appender (spec §4.4).
func (s *Set) ReadStride(b uint64, strideBytes int64) ([]fpcalc.Fingerprint, error) {
	f, err := os.Open(s.path(b))
	if err != nil {
		if os.IsNotExist(err) {
			if strideBytes == 0 {
				return nil, nil
			}
			return nil, fmt.Errorf("bucketfile: bucket %d missing but manifest stride is nonzero", b)
		}
		return nil, fmt.Errorf("bucketfile: open bucket %d: %w", b, err)
	}
	defer f.Close()

	buf := make([]byte, strideBytes)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("bucketfile: read %d bytes from bucket %d: %w", strideBytes, b, err)
	}
	return decode(buf), nil
}

// Truncate shrinks bucket b's file to exactly strideBytes, discarding any
// trailing junk left by a crash between bucket appends and the manifest
// rewrite (spec §4.6 crash model). Implementations MUST run this at load
// time before serving queries.
func (s *Set) Truncate(b uint64, strideBytes int64) error {
	path := s.path(b)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("bucketfile: stat bucket %d: %w", b, err)
	}
	if info.Size() <= strideBytes {
		return nil
	}
	if err := os.Truncate(path, strideBytes); err != nil {
		return fmt.Errorf("bucketfile: truncate bucket %d to %d bytes: %w", b, strideBytes, err)
	}
	return nil
}

func decode(data []byte) []fpcalc.Fingerprint {
	out := make([]fpcalc.Fingerprint, len(data)/2)
	for i := range out {
		out[i] = fpcalc.Fingerprint(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
	}
	return out
}
