package manifest

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"partitionindex/internal/generation"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := New(80)
	m.Append([]generation.PartitionInfo{
		{Partition: "p0", Width: 2, Active: true, Elements: 120},
		{Partition: "p1", Width: 3, Active: true, Elements: 340},
	})

	if err := m.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.NumBuckets != m.NumBuckets || loaded.Stride != m.Stride {
		t.Fatalf("header mismatch: got {%d,%d} want {%d,%d}", loaded.NumBuckets, loaded.Stride, m.NumBuckets, m.Stride)
	}
	if diff := cmp.Diff(m.Partitions, loaded.Partitions); diff != "" {
		t.Fatalf("partitions mismatch (-want +got):\n%s", diff)
	}
}

func TestRemoveTombstones(t *testing.T) {
	m := New(8)
	m.Append([]generation.PartitionInfo{
		{Partition: "a", Width: 1, Active: true, Elements: 10},
		{Partition: "b", Width: 1, Active: true, Elements: 10},
	})
	m.Remove("a")
	for _, p := range m.Partitions {
		if p.Partition == "a" && p.Active {
			t.Fatalf("partition a should be tombstoned")
		}
		if p.Partition == "b" && !p.Active {
			t.Fatalf("partition b should remain active")
		}
	}
}

func TestExistsReflectsSave(t *testing.T) {
	dir := t.TempDir()
	if Exists(dir) {
		t.Fatalf("expected no manifest before Save")
	}
	New(8).Save(dir)
	if !Exists(dir) {
		t.Fatalf("expected manifest to exist after Save")
	}
}
