package systems

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/diffgrowth/components"
	"github.com/pthm-cable/diffgrowth/geom"
)

// ErrOutOfBounds is returned when a point outside the world is inserted.
var ErrOutOfBounds = errors.New("point outside quadtree bounds")

// maxQuadtreeDepth stops subdivision of coincident points. Leaves at this
// depth accept points beyond capacity.
const maxQuadtreeDepth = 32

const (
	rootNode   int32 = 0
	noChildren int32 = -1
)

// qtNode is one cell of the arena. An internal node owns the four
// consecutive slots starting at children and stores no points.
type qtNode struct {
	bounds   geom.Box
	children int32
	depth    int32
	points   []ecs.Entity
}

func (n *qtNode) isLeaf() bool {
	return n.children == noChildren
}

// Quadtree is a capacity-bounded point-region quadtree over growth points.
// Nodes live in a flat arena and are addressed by index; children are
// allocated four at a time and blocks released by merges are reused.
//
// The whole tree is one locking domain: queries take the read lock,
// structural edits (insert, redistribution, clear) take the write lock.
type Quadtree struct {
	mu       sync.RWMutex
	nodes    []qtNode
	free     []int32
	capacity int
	points   *ecs.Map1[components.GrowthPoint]
}

// NewQuadtree creates an empty tree covering bounds. Leaves subdivide once
// they would hold more than capacity points.
func NewQuadtree(bounds geom.Box, capacity int, points *ecs.Map1[components.GrowthPoint]) (*Quadtree, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("quadtree capacity must be at least 1, got %d", capacity)
	}
	if points == nil {
		return nil, errors.New("quadtree needs a growth point map")
	}
	q := &Quadtree{
		capacity: capacity,
		points:   points,
	}
	q.nodes = append(q.nodes, qtNode{bounds: bounds, children: noChildren})
	return q, nil
}

// Bounds returns the world bounds covered by the root.
func (q *Quadtree) Bounds() geom.Box {
	return q.nodes[rootNode].bounds
}

// Capacity returns the leaf capacity.
func (q *Quadtree) Capacity() int {
	return q.capacity
}

// Insert adds a point entity to the tree and sets its leaf reference.
func (q *Quadtree) Insert(e ecs.Entity) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	pt := q.points.Get(e)
	root := &q.nodes[rootNode]
	if !root.bounds.Contains(pt.Position) {
		return fmt.Errorf("%w: (%g, %g) not in %v", ErrOutOfBounds, pt.Position.X, pt.Position.Y, root.bounds)
	}
	q.place(rootNode, e, pt)
	return nil
}

// place descends from node n to the leaf covering pt and stores e there,
// subdividing full leaves on the way. The caller guarantees that n's
// bounds contain the point.
func (q *Quadtree) place(n int32, e ecs.Entity, pt *components.GrowthPoint) {
	for {
		node := &q.nodes[n]
		if node.isLeaf() {
			if len(node.points) < q.capacity || node.depth >= maxQuadtreeDepth {
				node.points = append(node.points, e)
				pt.Leaf = components.LeafRef(n)
				return
			}
			q.subdivide(n)
		}
		node = &q.nodes[n]
		n = node.children + int32(node.bounds.Quadrant(pt.Position))
	}
}

// subdivide turns leaf n into an internal node and moves its points into
// the matching children.
func (q *Quadtree) subdivide(n int32) {
	first := q.allocChildren(q.nodes[n].bounds.Subdivide(), q.nodes[n].depth+1)

	node := &q.nodes[n]
	moved := node.points
	node.points = nil
	node.children = first

	for _, e := range moved {
		pt := q.points.Get(e)
		c := first + int32(node.bounds.Quadrant(pt.Position))
		q.nodes[c].points = append(q.nodes[c].points, e)
		pt.Leaf = components.LeafRef(c)
	}
}

// allocChildren returns the index of a block of four empty leaves.
func (q *Quadtree) allocChildren(bounds [4]geom.Box, depth int32) int32 {
	var first int32
	if k := len(q.free); k > 0 {
		first = q.free[k-1]
		q.free = q.free[:k-1]
	} else {
		first = int32(len(q.nodes))
		q.nodes = append(q.nodes, make([]qtNode, 4)...)
	}
	for i := int32(0); i < 4; i++ {
		c := &q.nodes[first+i]
		c.bounds = bounds[i]
		c.children = noChildren
		c.depth = depth
		c.points = c.points[:0]
	}
	return first
}

// RangeQuery returns every point whose position lies in box.
func (q *Quadtree) RangeQuery(box geom.Box) []ecs.Entity {
	return q.RangeQueryInto(nil, box)
}

// RangeQueryInto appends the points inside box to dst and returns it.
func (q *Quadtree) RangeQueryInto(dst []ecs.Entity, box geom.Box) []ecs.Entity {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.rangeQuery(dst, rootNode, box)
}

func (q *Quadtree) rangeQuery(dst []ecs.Entity, n int32, box geom.Box) []ecs.Entity {
	node := &q.nodes[n]
	if node.isLeaf() {
		for _, e := range node.points {
			if box.Contains(q.points.Get(e).Position) {
				dst = append(dst, e)
			}
		}
		return dst
	}
	for i := int32(0); i < 4; i++ {
		c := node.children + i
		if q.nodes[c].bounds.Intersects(box) {
			dst = q.rangeQuery(dst, c, box)
		}
	}
	return dst
}

// CircleQuery returns every point strictly inside the circle.
func (q *Quadtree) CircleQuery(circle geom.Circle) []ecs.Entity {
	return q.CircleQueryInto(nil, circle)
}

// CircleQueryInto appends the points strictly inside circle to dst. The
// bounding square prunes the tree, the exact test filters the candidates.
func (q *Quadtree) CircleQueryInto(dst []ecs.Entity, circle geom.Circle) []ecs.Entity {
	q.mu.RLock()
	defer q.mu.RUnlock()

	start := len(dst)
	dst = q.rangeQuery(dst, rootNode, circle.BoundingSquare())
	kept := dst[:start]
	for _, e := range dst[start:] {
		if circle.Contains(q.points.Get(e).Position) {
			kept = append(kept, e)
		}
	}
	return kept
}

// RedistributeDirty moves every dirty point to the leaf that now covers it.
//
// The pass is post-order: leaves hand their dirty points to the parent,
// and a parent reinserts only after all four children have been drained.
// Points that left a node's bounds travel further up. Subdivided nodes
// whose children all end up as empty leaves are merged back into a leaf.
//
// The returned points left the world bounds entirely. They are no longer
// stored in the tree, keep their dirty flag and have no leaf.
func (q *Quadtree) RedistributeDirty() []ecs.Entity {
	q.mu.Lock()
	defer q.mu.Unlock()

	collected := q.redistribute(rootNode)
	if !q.nodes[rootNode].isLeaf() {
		for _, e := range collected {
			q.points.Get(e).Leaf = components.NoLeaf
		}
		return collected
	}

	// A leaf root hands back every dirty point unfiltered.
	bounds := q.nodes[rootNode].bounds
	var escaped []ecs.Entity
	for _, e := range collected {
		pt := q.points.Get(e)
		if bounds.Contains(pt.Position) {
			pt.Dirty = false
			q.place(rootNode, e, pt)
			continue
		}
		pt.Leaf = components.NoLeaf
		escaped = append(escaped, e)
	}
	return escaped
}

func (q *Quadtree) redistribute(n int32) []ecs.Entity {
	if q.nodes[n].isLeaf() {
		var dirty []ecs.Entity
		node := &q.nodes[n]
		clean := node.points[:0]
		for _, e := range node.points {
			if q.points.Get(e).Dirty {
				dirty = append(dirty, e)
			} else {
				clean = append(clean, e)
			}
		}
		node.points = clean
		return dirty
	}

	first := q.nodes[n].children
	var collected []ecs.Entity
	for i := int32(0); i < 4; i++ {
		collected = append(collected, q.redistribute(first+i)...)
	}

	bounds := q.nodes[n].bounds
	var escaped []ecs.Entity
	for _, e := range collected {
		pt := q.points.Get(e)
		if bounds.Contains(pt.Position) {
			pt.Dirty = false
			q.place(n, e, pt)
		} else {
			escaped = append(escaped, e)
		}
	}

	q.mergeIfEmpty(n)
	return escaped
}

// mergeIfEmpty reverts n to a leaf when its four children are empty leaves.
func (q *Quadtree) mergeIfEmpty(n int32) {
	first := q.nodes[n].children
	for i := int32(0); i < 4; i++ {
		c := &q.nodes[first+i]
		if !c.isLeaf() || len(c.points) > 0 {
			return
		}
	}
	q.nodes[n].children = noChildren
	q.free = append(q.free, first)
}

// LeafBounds returns the bounds of the leaf named by ref.
func (q *Quadtree) LeafBounds(ref components.LeafRef) (geom.Box, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !ref.Valid() || int(ref) >= len(q.nodes) || !q.nodes[ref].isLeaf() {
		return geom.Box{}, false
	}
	return q.nodes[ref].bounds, true
}

// Clear drops every point and collapses the tree to an empty root leaf.
func (q *Quadtree) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	bounds := q.nodes[rootNode].bounds
	q.nodes = q.nodes[:1]
	q.nodes[rootNode] = qtNode{bounds: bounds, children: noChildren}
	q.free = q.free[:0]
}

// NodeInfo is a read-only view of one tree node.
type NodeInfo struct {
	Bounds geom.Box
	Leaf   bool
	Depth  int
	Points []ecs.Entity
}

// Lookup follows a path of quadrant codes from the root and describes the
// node it reaches. It reports false when the path runs past a leaf.
func (q *Quadtree) Lookup(path ...int) (NodeInfo, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	n := rootNode
	for _, quadrant := range path {
		if quadrant < 0 || quadrant > 3 || q.nodes[n].isLeaf() {
			return NodeInfo{}, false
		}
		n = q.nodes[n].children + int32(quadrant)
	}
	node := &q.nodes[n]
	return NodeInfo{
		Bounds: node.bounds,
		Leaf:   node.isLeaf(),
		Depth:  int(node.depth),
		Points: append([]ecs.Entity(nil), node.points...),
	}, true
}

// QuadtreeStats summarizes the live structure of the tree.
type QuadtreeStats struct {
	Points     int
	Leaves     int
	Internal   int
	MaxDepth   int
	FreeBlocks int
}

// Stats walks the live nodes.
func (q *Quadtree) Stats() QuadtreeStats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	s := QuadtreeStats{FreeBlocks: len(q.free)}
	q.walk(rootNode, &s)
	return s
}

func (q *Quadtree) walk(n int32, s *QuadtreeStats) {
	node := &q.nodes[n]
	if int(node.depth) > s.MaxDepth {
		s.MaxDepth = int(node.depth)
	}
	if node.isLeaf() {
		s.Leaves++
		s.Points += len(node.points)
		return
	}
	s.Internal++
	for i := int32(0); i < 4; i++ {
		q.walk(node.children+i, s)
	}
}

// Len returns the number of points stored in the tree.
func (q *Quadtree) Len() int {
	return q.Stats().Points
}
