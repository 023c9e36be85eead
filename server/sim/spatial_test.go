package sim

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func box(x, y, z float32) AABB {
	return boxFromPosition(mgl32.Vec3{x, y, z}, 0.3, 1.8)
}

func entID(idx uint32) EntityId { return EntityId{index: idx, generation: 0} }

func TestBuildEmptyReturnsEmptyIndex(t *testing.T) {
	idx := Build(nil)
	if idx.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", idx.Len())
	}
	if got := idx.Query(box(0, 0, 0)); got != nil {
		t.Fatalf("Query on empty index returned %v, want nil", got)
	}
}

func TestBuildAndQueryFindsOverlapping(t *testing.T) {
	items := []SpatialItem{
		{ID: entID(1), Box: box(0, 0, 0)},
		{ID: entID(2), Box: box(100, 0, 0)},
		{ID: entID(3), Box: box(0.1, 0, 0)},
	}
	idx := Build(items)
	if idx.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", idx.Len())
	}

	hits := idx.Query(box(0, 0, 0))
	found := make(map[EntityId]bool)
	for _, h := range hits {
		found[h.ID] = true
	}
	if !found[entID(1)] || !found[entID(3)] {
		t.Fatalf("Query missed expected overlapping items: %v", hits)
	}
	if found[entID(2)] {
		t.Fatalf("Query returned a non-overlapping item: %v", hits)
	}
}

func TestQueryReturnsEachItemOnce(t *testing.T) {
	var items []SpatialItem
	for i := uint32(0); i < 50; i++ {
		items = append(items, SpatialItem{ID: entID(i), Box: box(float32(i)*0.05, 0, 0)})
	}
	idx := Build(items)
	hits := idx.Query(box(0, 0, 0))
	seen := make(map[EntityId]int)
	for _, h := range hits {
		seen[h.ID]++
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("item %v returned %d times, want 1", id, count)
		}
	}
}

func TestLookupFindsStoredItem(t *testing.T) {
	items := []SpatialItem{
		{ID: entID(7), Box: box(1, 2, 3)},
		{ID: entID(8), Box: box(4, 5, 6)},
	}
	idx := Build(items)

	got, ok := idx.Lookup(entID(7))
	if !ok {
		t.Fatal("Lookup(7) = false, want true")
	}
	if got.Box != items[0].Box {
		t.Fatalf("Lookup(7).Box = %v, want %v", got.Box, items[0].Box)
	}

	if _, ok := idx.Lookup(entID(99)); ok {
		t.Fatal("Lookup(99) = true, want false for an id never inserted")
	}
}

func TestLookupOnEmptyIndex(t *testing.T) {
	if _, ok := emptySpatialIndex.Lookup(entID(1)); ok {
		t.Fatal("Lookup on the empty index returned true")
	}
}
