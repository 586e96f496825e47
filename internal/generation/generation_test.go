package generation

import "testing"

func keysFor(seed, n int) []uint64 {
	keys := make([]uint64, n)
	for i := range keys {
		keys[i] = uint64(seed*100000 + i)
	}
	return keys
}

func TestAddNoFalseNegatives(t *testing.T) {
	g := New(8)
	parts := map[string][]uint64{
		"p0": keysFor(1, 15),
		"p1": keysFor(2, 12),
		"p2": keysFor(3, 20),
	}
	for _, name := range []string{"p0", "p1", "p2"} {
		g.Add(name, parts[name])
	}
	for name, keys := range parts {
		for _, k := range keys {
			hits := g.Query(k)
			if !contains(hits, name) {
				t.Fatalf("partition %s missing for key %d, got %v", name, k, hits)
			}
		}
	}
}

func TestBucketStrideInvariant(t *testing.T) {
	g := New(8)
	g.Add("a", keysFor(1, 50))
	g.Add("b", keysFor(2, 5))
	for b, col := range g.Buckets() {
		if uint64(len(col)) != g.Stride() {
			t.Fatalf("bucket %d length %d != stride %d", b, len(col), g.Stride())
		}
	}
}

func TestRemoveTombstonesQueries(t *testing.T) {
	g := New(80)
	g.Add("a", keysFor(1, 20))
	g.Add("b", keysFor(2, 20))
	firstKeyB := keysFor(2, 20)[0]

	g.Remove("b")
	hits := g.Query(firstKeyB)
	if contains(hits, "b") {
		t.Fatalf("tombstoned partition b returned for its own key: %v", hits)
	}
}

func TestAddManyMatchesSequentialAdd(t *testing.T) {
	g := New(80)
	batches := []Batch{
		{Partition: "x", Keys: keysFor(10, 99)},
		{Partition: "y", Keys: keysFor(11, 150)},
		{Partition: "z", Keys: keysFor(12, 300)},
	}
	g.AddMany(batches)

	for _, batch := range batches {
		for _, k := range batch.Keys {
			if !contains(g.Query(k), batch.Partition) {
				t.Fatalf("partition %s missing key %d after AddMany", batch.Partition, k)
			}
		}
	}

	// Widths may differ (the builders are seeded differently), but the
	// partitions, their order and their element counts must agree.
	seq := New(80)
	for _, batch := range batches {
		seq.Add(batch.Partition, batch.Keys)
	}
	got, want := g.Manifest(), seq.Manifest()
	if len(got) != len(want) {
		t.Fatalf("AddMany produced %d partitions, sequential Add %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Partition != want[i].Partition || got[i].Active != want[i].Active || got[i].Elements != want[i].Elements {
			t.Fatalf("partition %d: AddMany %+v, sequential Add %+v", i, got[i], want[i])
		}
	}
}

func contains(xs []PartitionID, target PartitionID) bool {
	for _, x := range xs {
		if x == target {
			return true
		}
	}
	return false
}
