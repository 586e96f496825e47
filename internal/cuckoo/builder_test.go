package cuckoo

import (
	"math/rand"
	"testing"
)

func TestBuilderOccupancyWidth2(t *testing.T) {
	b := NewBuilder(1023, rand.New(rand.NewSource(42)))
	for k := uint64(0); k < 2046; k++ {
		b.Insert(k)
	}
	if b.Items() < 1677 {
		t.Fatalf("occupancy too low: items=%d want >= 1677 (82%% of 2046)", b.Items())
	}
	if b.Width() > 8 {
		t.Fatalf("width grew unreasonably fast for 2046 keys over 1023 buckets: %d", b.Width())
	}
}

func TestBuilderDuplicateIsNoop(t *testing.T) {
	b := NewBuilder(80, rand.New(rand.NewSource(7)))
	b.Insert(42)
	items := b.Items()
	if out := b.Insert(42); out != Duplicate {
		t.Fatalf("expected Duplicate outcome on repeat insert, got %v", out)
	}
	if b.Items() != items {
		t.Fatalf("duplicate insert changed item count: %d -> %d", items, b.Items())
	}
}

func TestBuilderGrowsUnderLoad(t *testing.T) {
	b := NewBuilder(8, rand.New(rand.NewSource(3)))
	for k := uint64(0); k < 200; k++ {
		b.Insert(k)
	}
	if b.Width() <= 1 {
		t.Fatalf("expected width to grow under heavy load, stayed at %d", b.Width())
	}
	for i, bucket := range b.Buckets() {
		if len(bucket) > int(b.Width()) {
			t.Fatalf("bucket %d length %d exceeds width %d", i, len(bucket), b.Width())
		}
	}
}
