// Package manifest serialises the ordered list of partitions that make up
// a persisted index generation. The atomic-replace discipline is adapted
// from the teacher's internal/persistence.SnapshotManager (temp file, then
// rename onto the final path), but the rename itself is delegated to
// github.com/natefinch/atomic rather than hand-rolled a second time.
package manifest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"partitionindex/internal/generation"
)

const fileName = "partitions.data"

// Manifest is the durable record of every partition ever persisted,
// together with the global bucket count and stride.
type Manifest struct {
	NumBuckets uint64
	Stride     uint64
	Partitions []generation.PartitionInfo
}

// New creates an empty manifest for an index with the given bucket count.
func New(numBuckets uint64) *Manifest {
	return &Manifest{NumBuckets: numBuckets}
}

// Load reads and decodes the manifest file at root/partitions.data.
func Load(root string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(root, fileName))
	if err != nil {
		return nil, fmt.Errorf("manifest: read: %w", err)
	}
	return decode(data)
}

// Exists reports whether a manifest file is present at root.
func Exists(root string) bool {
	_, err := os.Stat(filepath.Join(root, fileName))
	return err == nil
}

// Append adds the given partitions (in order) to the manifest and bumps
// stride by their combined width. It does not write to disk; call Save
// to persist.
func (m *Manifest) Append(tail []generation.PartitionInfo) {
	m.Partitions = append(m.Partitions, tail...)
	for _, p := range tail {
		m.Stride += uint64(p.Width)
	}
}

// Remove flips active=false on every entry matching partition.
func (m *Manifest) Remove(partition generation.PartitionID) {
	for i := range m.Partitions {
		if m.Partitions[i].Partition == partition {
			m.Partitions[i].Active = false
		}
	}
}

// Save atomically rewrites root/partitions.data. The rewrite is atomic
// with respect to readers: a crash mid-write leaves the prior manifest
// file intact (spec §4.6 step 5).
func (m *Manifest) Save(root string) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("manifest: create root: %w", err)
	}
	buf := encode(m)
	if err := atomic.WriteFile(filepath.Join(root, fileName), bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("manifest: atomic save: %w", err)
	}
	return nil
}

// encode produces the fixed little-endian binary layout from spec §4.5:
//
//	8 bytes  num_buckets
//	8 bytes  stride
//	8 bytes  count
//	count records of {len(partition_bytes): u64, partition_bytes, width: u16, active: u8, elements: u64}
func encode(m *Manifest) []byte {
	var buf bytes.Buffer
	writeU64(&buf, m.NumBuckets)
	writeU64(&buf, m.Stride)
	writeU64(&buf, uint64(len(m.Partitions)))

	for _, p := range m.Partitions {
		idBytes := []byte(p.Partition)
		writeU64(&buf, uint64(len(idBytes)))
		buf.Write(idBytes)
		writeU16(&buf, p.Width)
		if p.Active {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		writeU64(&buf, p.Elements)
	}
	return buf.Bytes()
}

func decode(data []byte) (*Manifest, error) {
	r := bytes.NewReader(data)

	numBuckets, err := readU64(r)
	if err != nil {
		return nil, fmt.Errorf("manifest: decode header num_buckets: %w", err)
	}
	stride, err := readU64(r)
	if err != nil {
		return nil, fmt.Errorf("manifest: decode header stride: %w", err)
	}
	count, err := readU64(r)
	if err != nil {
		return nil, fmt.Errorf("manifest: decode header count: %w", err)
	}

	m := &Manifest{NumBuckets: numBuckets, Stride: stride}
	for i := uint64(0); i < count; i++ {
		idLen, err := readU64(r)
		if err != nil {
			return nil, fmt.Errorf("manifest: decode record %d id length: %w", i, err)
		}
		idBytes := make([]byte, idLen)
		if _, err := r.Read(idBytes); err != nil {
			return nil, fmt.Errorf("manifest: decode record %d id: %w", i, err)
		}
		width, err := readU16(r)
		if err != nil {
			return nil, fmt.Errorf("manifest: decode record %d width: %w", i, err)
		}
		activeByte, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("manifest: decode record %d active flag: %w", i, err)
		}
		elements, err := readU64(r)
		if err != nil {
			return nil, fmt.Errorf("manifest: decode record %d elements: %w", i, err)
		}
		m.Partitions = append(m.Partitions, generation.PartitionInfo{
			Partition: string(idBytes),
			Width:     width,
			Active:    activeByte != 0,
			Elements:  elements,
		})
	}
	return m, nil
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := readExact(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func readU16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := readExact(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func readExact(r *bytes.Reader, b []byte) (int, error) {
	n := 0
	for n < len(b) {
		m, err := r.Read(b[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
