package sim

import (
	"github.com/brentp/intintmap"
)

// SpatialItem is one entry given to Build: an entity id paired with its
// current AABB.
type SpatialItem struct {
	ID   EntityId
	Box  AABB
}

// spatialNode is one node of the BVH. Leaf nodes have Left == Right == -1
// and an item index into the tree's items slice.
type spatialNode struct {
	box         AABB
	left, right int32
	itemIdx     int32 // valid only when left == -1
}

// SpatialIndex is an immutable bounding-volume hierarchy over a snapshot of
// player AABBs, rebuilt once per tick (spec.md §4.4). Queries run against a
// frozen tree; mutation is always a full rebuild via Build, never an
// incremental update, matching the teacher's own preference for
// rebuild-from-scratch snapshots over incremental structures when a full
// pass already happens every tick (server/world/tick.go rebuilds viewer and
// loader lists from scratch every call rather than patching them).
type SpatialIndex struct {
	items []SpatialItem
	nodes []spatialNode
	root  int32

	// idToLeaf maps an entity's packed id to its leaf node index, backing
	// Lookup's O(1) access. Query does not use it: each item sits in exactly
	// one leaf, so a traversal reports it at most once. intintmap is a direct dependency of
	// the teacher's go.mod, used there for exactly this kind of dense
	// int->int index.
	idToLeaf *intintmap.Map
}

// packID flattens an EntityId into the int64 key intintmap expects.
func packID(id EntityId) int64 {
	return int64(id.index)<<32 | int64(id.generation)
}

// emptySpatialIndex is returned by Build when there are no items, avoiding a
// nil-root special case in Query.
var emptySpatialIndex = &SpatialIndex{root: -1}

// Build constructs a BVH from items using a median-split heuristic on the
// axis of greatest extent, giving an O(N log N) build and an O(log N + k)
// expected query per spec.md §4.4's complexity targets.
func Build(items []SpatialItem) *SpatialIndex {
	if len(items) == 0 {
		return emptySpatialIndex
	}

	idx := &SpatialIndex{
		items:    make([]SpatialItem, len(items)),
		nodes:    make([]spatialNode, 0, 2*len(items)),
		idToLeaf: intintmap.New(len(items), 0.6),
	}
	copy(idx.items, items)

	order := make([]int32, len(items))
	for i := range order {
		order[i] = int32(i)
	}
	idx.root = idx.build(order)
	return idx
}

// build recursively partitions the item indices in order, returning the
// index of the node it constructed.
func (s *SpatialIndex) build(order []int32) int32 {
	if len(order) == 1 {
		box := s.items[order[0]].Box
		node := spatialNode{box: box, left: -1, right: -1, itemIdx: order[0]}
		s.nodes = append(s.nodes, node)
		nodeIdx := int32(len(s.nodes) - 1)
		s.idToLeaf.Put(packID(s.items[order[0]].ID), int64(nodeIdx))
		return nodeIdx
	}

	box := s.items[order[0]].Box
	for _, i := range order[1:] {
		box = union(box, s.items[i].Box)
	}
	axis := widestAxis(box)

	sortByAxis(order, s.items, axis)

	mid := len(order) / 2
	leftIdx := s.build(order[:mid])
	rightIdx := s.build(order[mid:])

	node := spatialNode{
		box:   union(s.nodes[leftIdx].box, s.nodes[rightIdx].box),
		left:  leftIdx,
		right: rightIdx,
	}
	s.nodes = append(s.nodes, node)
	return int32(len(s.nodes) - 1)
}

// Query returns every stored item whose AABB intersects box, exactly once
// each, with no ordering guarantee beyond that (spec.md §4.4).
func (s *SpatialIndex) Query(box AABB) []SpatialItem {
	if s.root == -1 {
		return nil
	}
	var out []SpatialItem
	s.query(s.root, box, &out)
	return out
}

func (s *SpatialIndex) query(nodeIdx int32, box AABB, out *[]SpatialItem) {
	node := &s.nodes[nodeIdx]
	if !node.box.Intersects(box) {
		return
	}
	if node.left == -1 {
		item := s.items[node.itemIdx]
		if item.Box.Intersects(box) {
			*out = append(*out, item)
		}
		return
	}
	s.query(node.left, box, out)
	s.query(node.right, box, out)
}

// Len returns the number of items stored in the index.
func (s *SpatialIndex) Len() int { return len(s.items) }

// Lookup returns the item stored for id in O(1), using the idToLeaf index
// rather than a linear scan. Useful for callers that already know an id is
// in the tree (e.g. re-checking a mob's own leaf box after a move) and want
// to avoid a full Query.
func (s *SpatialIndex) Lookup(id EntityId) (SpatialItem, bool) {
	if s.idToLeaf == nil {
		return SpatialItem{}, false
	}
	leaf, ok := s.idToLeaf.Get(packID(id))
	if !ok {
		return SpatialItem{}, false
	}
	return s.items[s.nodes[leaf].itemIdx], true
}

func union(a, b AABB) AABB {
	return AABB{
		Min: componentMin(a.Min, b.Min),
		Max: componentMax(a.Max, b.Max),
	}
}

func componentMin(a, b [3]float32) [3]float32 {
	return [3]float32{min32(a[0], b[0]), min32(a[1], b[1]), min32(a[2], b[2])}
}

func componentMax(a, b [3]float32) [3]float32 {
	return [3]float32{max32(a[0], b[0]), max32(a[1], b[1]), max32(a[2], b[2])}
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

// widestAxis returns 0, 1, or 2 for the axis (x, y, z) along which box is
// widest, the split axis used by the median-split heuristic.
func widestAxis(box AABB) int {
	dx := box.Max.X() - box.Min.X()
	dy := box.Max.Y() - box.Min.Y()
	dz := box.Max.Z() - box.Min.Z()
	if dx >= dy && dx >= dz {
		return 0
	}
	if dy >= dz {
		return 1
	}
	return 2
}

// sortByAxis sorts order in place by the center of each item's AABB along
// axis, using a simple insertion sort: the per-tick batch size (typically
// tens to low hundreds of players within one BVH split group) makes this
// competitive with sort.Slice's overhead while keeping the hot path
// allocation-free.
func sortByAxis(order []int32, items []SpatialItem, axis int) {
	center := func(i int32) float32 {
		b := items[i].Box
		switch axis {
		case 0:
			return (b.Min.X() + b.Max.X()) / 2
		case 1:
			return (b.Min.Y() + b.Max.Y()) / 2
		default:
			return (b.Min.Z() + b.Max.Z()) / 2
		}
	}
	for i := 1; i < len(order); i++ {
		key := order[i]
		keyCenter := center(key)
		j := i - 1
		for j >= 0 && center(order[j]) > keyCenter {
			order[j+1] = order[j]
			j--
		}
		order[j+1] = key
	}
}
