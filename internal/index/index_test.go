package index

import (
	"math/rand"
	"testing"

	"partitionindex/internal/generation"
)

func seededKeys(seed int64, lo, hi int) []uint64 {
	r := rand.New(rand.NewSource(seed))
	n := lo + r.Intn(hi-lo+1)
	keys := make([]uint64, n)
	seen := make(map[uint64]bool, n)
	for i := 0; i < n; i++ {
		var k uint64
		for {
			k = r.Uint64()
			if !seen[k] {
				seen[k] = true
				break
			}
		}
		keys[i] = k
	}
	return keys
}

func mustQuery(t *testing.T, idx *Index, key uint64) []string {
	t.Helper()
	hits, err := idx.Query(key)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	return hits
}

// Scenario 1: N=8, 3 partitions of 10-20 keys, persist, reopen, query
// first key of each.
func TestScenarioPersistReopenThreePartitions(t *testing.T) {
	root := t.TempDir()
	idx, err := Create(8, root)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var firsts []uint64
	var names []string
	for i := 0; i < 3; i++ {
		keys := seededKeys(int64(100+i), 10, 20)
		name := string(rune('a' + i))
		idx.Add(name, keys)
		firsts = append(firsts, keys[0])
		names = append(names, name)
	}

	if err := idx.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	reopened, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i, name := range names {
		hits := mustQuery(t, reopened, firsts[i])
		if !contains(hits, name) {
			t.Fatalf("partition %s not recovered after reopen, hits=%v", name, hits)
		}
	}
}

// Scenario 2: N=80, 10 partitions, remove partitions[3], query its first
// key: must not be returned.
func TestScenarioRemoveThenQuery(t *testing.T) {
	root := t.TempDir()
	idx, err := Create(80, root)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var firsts []uint64
	var names []string
	r := rand.New(rand.NewSource(1337))
	for i := 0; i < 10; i++ {
		n := 99 + r.Intn(401)
		keys := seededKeys(int64(1337+i), n, n)
		name := string(rune('A' + i))
		idx.Add(name, keys)
		firsts = append(firsts, keys[0])
		names = append(names, name)
	}

	idx.Remove(names[3])
	hits := mustQuery(t, idx, firsts[3])
	if contains(hits, names[3]) {
		t.Fatalf("removed partition %s should not be returned, hits=%v", names[3], hits)
	}
}

// Scenario 3: N=80, 10 partitions, persist after each with a reopen in
// between; final query for each partition's first key yields that
// partition.
func TestScenarioPersistAfterEachWithReopen(t *testing.T) {
	root := t.TempDir()
	idx, err := Create(80, root)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var firsts []uint64
	var names []string
	for i := 0; i < 10; i++ {
		keys := seededKeys(int64(2000+i), 20, 40)
		name := string(rune('a' + i))
		idx.Add(name, keys)
		firsts = append(firsts, keys[0])
		names = append(names, name)

		if err := idx.Persist(); err != nil {
			t.Fatalf("Persist %d: %v", i, err)
		}
		idx, err = Open(root)
		if err != nil {
			t.Fatalf("Open %d: %v", i, err)
		}
	}

	for i, name := range names {
		hits := mustQuery(t, idx, firsts[i])
		if !contains(hits, name) {
			t.Fatalf("partition %s not recovered, hits=%v", name, hits)
		}
	}
}

// Scenario 4: N=800, 100 partitions of 999-4999 keys: every partition is
// recovered by its first key.
func TestScenarioLargeRecovery(t *testing.T) {
	root := t.TempDir()
	idx, err := Create(800, root)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var batches []generation.Batch
	var firsts []uint64
	for i := 0; i < 100; i++ {
		r := rand.New(rand.NewSource(int64(5000 + i)))
		n := 999 + r.Intn(4001)
		keys := seededKeys(int64(5000+i), n, n)
		name := string(rune('a'+i%26)) + string(rune('0'+i/26))
		batches = append(batches, generation.Batch{Partition: name, Keys: keys})
		firsts = append(firsts, keys[0])
	}
	idx.AddMany(batches)
	if err := idx.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	reopened, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i, b := range batches {
		hits := mustQuery(t, reopened, firsts[i])
		if !contains(hits, b.Partition) {
			t.Fatalf("partition %s not recovered", b.Partition)
		}
	}
}

// Scenario 5: N=8, split 3 partitions into first-2 and last-1; persist
// first-2, reopen, add last-1 unpersisted, query across all three.
func TestScenarioSplitPersistThenUnpersistedAdd(t *testing.T) {
	root := t.TempDir()
	idx, err := Create(8, root)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	keysA := seededKeys(7001, 10, 20)
	keysB := seededKeys(7002, 10, 20)
	keysC := seededKeys(7003, 10, 20)

	idx.Add("a", keysA)
	idx.Add("b", keysB)
	if err := idx.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	reopened, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	reopened.Add("c", keysC)

	for name, keys := range map[string][]uint64{"a": keysA, "b": keysB, "c": keysC} {
		hits := mustQuery(t, reopened, keys[0])
		if !contains(hits, name) {
			t.Fatalf("partition %s not recoverable, hits=%v", name, hits)
		}
	}
}

func contains(xs []string, target string) bool {
	for _, x := range xs {
		if x == target {
			return true
		}
	}
	return false
}
