package systems

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/diffgrowth/components"
	"github.com/pthm-cable/diffgrowth/geom"
)

type treeFixture struct {
	world  *ecs.World
	points *ecs.Map1[components.GrowthPoint]
	tree   *Quadtree
}

func newTreeFixture(t *testing.T, w, h float64, capacity int) *treeFixture {
	t.Helper()
	world := ecs.NewWorld()
	points := ecs.NewMap1[components.GrowthPoint](world)
	tree, err := NewQuadtree(geom.MustBox(r2.Vec{}, r2.Vec{X: w, Y: h}), capacity, points)
	if err != nil {
		t.Fatalf("NewQuadtree: %v", err)
	}
	return &treeFixture{world: world, points: points, tree: tree}
}

func (f *treeFixture) add(t *testing.T, x, y float64) ecs.Entity {
	t.Helper()
	pt := components.NewGrowthPoint(r2.Vec{X: x, Y: y}, 1)
	e := f.points.NewEntity(&pt)
	if err := f.tree.Insert(e); err != nil {
		t.Fatalf("Insert(%v, %v): %v", x, y, err)
	}
	return e
}

// move relocates a point and flags it the way the integrate phase does.
func (f *treeFixture) move(e ecs.Entity, to r2.Vec) {
	pt := f.points.Get(e)
	pt.Position = to
	bounds, ok := f.tree.LeafBounds(pt.Leaf)
	if !ok {
		pt.Dirty = true
		return
	}
	pt.CheckDirty(bounds)
}

func sameEntities(got, want []ecs.Entity) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// checkTree verifies that every point is stored once, in a leaf whose
// bounds contain it, and that the point's leaf reference agrees.
func (f *treeFixture) checkTree(t *testing.T, entities []ecs.Entity) {
	t.Helper()
	seen := make(map[ecs.Entity]int)
	for n := range f.tree.nodes {
		node := &f.tree.nodes[n]
		if !node.isLeaf() {
			if len(node.points) > 0 {
				t.Errorf("internal node %d stores %d points", n, len(node.points))
			}
			continue
		}
		for _, e := range node.points {
			seen[e]++
			pt := f.points.Get(e)
			if int(pt.Leaf) != n {
				t.Errorf("point %v leaf ref %d, stored in %d", pt, pt.Leaf, n)
			}
			if !node.bounds.Contains(pt.Position) {
				t.Errorf("point %v outside its leaf %v", pt, node.bounds)
			}
			if pt.Dirty {
				t.Errorf("point %v still dirty after redistribution", pt)
			}
		}
	}
	// Blocks on the free list are dead and may hold stale slices.
	for _, e := range entities {
		if seen[e] < 1 {
			t.Errorf("point %v missing from tree", f.points.Get(e))
		}
	}
	if got := f.tree.Len(); got != len(entities) {
		t.Errorf("tree.Len() = %d, want %d", got, len(entities))
	}
}

func TestNewQuadtreeRejectsBadArgs(t *testing.T) {
	world := ecs.NewWorld()
	points := ecs.NewMap1[components.GrowthPoint](world)
	bounds := geom.MustBox(r2.Vec{}, r2.Vec{X: 10, Y: 10})

	if _, err := NewQuadtree(bounds, 0, points); err == nil {
		t.Error("expected error for zero capacity")
	}
	if _, err := NewQuadtree(bounds, 4, nil); err == nil {
		t.Error("expected error for nil point map")
	}
}

func TestQuadtreeSubdivideOnThirdInsert(t *testing.T) {
	f := newTreeFixture(t, 256, 256, 2)

	p1 := f.add(t, 10, 10)
	p2 := f.add(t, 130, 0)

	root, _ := f.tree.Lookup()
	if !root.Leaf || !sameEntities(root.Points, []ecs.Entity{p1, p2}) {
		t.Fatalf("root before split = %+v, want leaf holding both points", root)
	}

	p3 := f.add(t, 5, 130)

	root, _ = f.tree.Lookup()
	if root.Leaf || len(root.Points) != 0 {
		t.Fatalf("root after split = %+v, want empty internal node", root)
	}
	want := [][]ecs.Entity{{p1}, {p3}, {p2}, nil}
	for q, w := range want {
		child, ok := f.tree.Lookup(q)
		if !ok {
			t.Fatalf("Lookup(%d) failed", q)
		}
		if !child.Leaf {
			t.Errorf("child %d is not a leaf", q)
		}
		if !sameEntities(child.Points, w) {
			t.Errorf("child %d points = %v, want %v", q, child.Points, w)
		}
	}
}

func TestQuadtreeNestedSubdivision(t *testing.T) {
	f := newTreeFixture(t, 256, 256, 2)

	p1 := f.add(t, 10, 10)
	p2 := f.add(t, 130, 0)
	p3 := f.add(t, 5, 130)
	p4 := f.add(t, 200, 200)
	p5 := f.add(t, 200, 5)

	child, _ := f.tree.Lookup(2)
	if !sameEntities(child.Points, []ecs.Entity{p2, p5}) {
		t.Fatalf("quadrant 2 = %v, want [p2 p5]", child.Points)
	}

	p6 := f.add(t, 130, 90)

	want := [][]ecs.Entity{{p1}, {p3}, nil, {p4}}
	for q, w := range want {
		child, _ := f.tree.Lookup(q)
		if !sameEntities(child.Points, w) {
			t.Errorf("child %d points = %v, want %v", q, child.Points, w)
		}
	}

	wantNested := [][]ecs.Entity{{p2}, {p6}, {p5}, nil}
	for q, w := range wantNested {
		child, ok := f.tree.Lookup(2, q)
		if !ok {
			t.Fatalf("Lookup(2, %d) failed", q)
		}
		if child.Depth != 2 {
			t.Errorf("nested child depth = %d, want 2", child.Depth)
		}
		if !sameEntities(child.Points, w) {
			t.Errorf("nested child %d points = %v, want %v", q, child.Points, w)
		}
	}

	if _, ok := f.tree.Lookup(0, 0); ok {
		t.Error("Lookup past a leaf should fail")
	}
	f.checkTree(t, []ecs.Entity{p1, p2, p3, p4, p5, p6})
}

func TestQuadtreeInsertOutOfBounds(t *testing.T) {
	f := newTreeFixture(t, 256, 256, 2)

	tests := []struct {
		name string
		pos  r2.Vec
	}{
		{"negative", r2.Vec{X: -1, Y: -1}},
		{"far edge", r2.Vec{X: 256, Y: 256}},
		{"right edge", r2.Vec{X: 256, Y: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pt := components.NewGrowthPoint(tt.pos, 1)
			e := f.points.NewEntity(&pt)
			err := f.tree.Insert(e)
			if !errors.Is(err, ErrOutOfBounds) {
				t.Errorf("Insert(%v) err = %v, want ErrOutOfBounds", tt.pos, err)
			}
			if f.points.Get(e).Leaf.Valid() {
				t.Error("rejected point should have no leaf")
			}
		})
	}
	if f.tree.Len() != 0 {
		t.Errorf("tree.Len() = %d after rejected inserts", f.tree.Len())
	}
}

func TestQuadtreeCoincidentPoints(t *testing.T) {
	f := newTreeFixture(t, 100, 100, 1)

	var all []ecs.Entity
	for i := 0; i < 5; i++ {
		all = append(all, f.add(t, 42, 42))
	}

	s := f.tree.Stats()
	if s.MaxDepth > maxQuadtreeDepth {
		t.Errorf("MaxDepth = %d, exceeds limit %d", s.MaxDepth, maxQuadtreeDepth)
	}
	f.checkTree(t, all)
}

func TestQuadtreeSiblingMove(t *testing.T) {
	f := newTreeFixture(t, 256, 256, 2)

	p1 := f.add(t, 10, 10)
	f.add(t, 130, 0)
	f.add(t, 5, 130)

	f.move(p1, r2.Vec{X: 200, Y: 200})
	if !f.points.Get(p1).Dirty {
		t.Fatal("moved point should be dirty")
	}

	if escaped := f.tree.RedistributeDirty(); len(escaped) != 0 {
		t.Fatalf("escaped = %v, want none", escaped)
	}

	if pt := f.points.Get(p1); pt.Dirty {
		t.Error("dirty flag not cleared")
	}
	for q := 0; q < 4; q++ {
		child, _ := f.tree.Lookup(q)
		has := false
		for _, e := range child.Points {
			if e == p1 {
				has = true
			}
		}
		if has != (q == 3) {
			t.Errorf("quadrant %d holds moved point = %v", q, has)
		}
	}
}

func TestQuadtreeRedistributeLeafRoot(t *testing.T) {
	f := newTreeFixture(t, 100, 100, 10)
	a := f.add(t, 10, 10)
	b := f.add(t, 20, 20)

	// Dirty without leaving the root stays in the tree.
	f.points.Get(a).Dirty = true
	f.move(b, r2.Vec{X: 150, Y: 20})

	escaped := f.tree.RedistributeDirty()
	if !sameEntities(escaped, []ecs.Entity{b}) {
		t.Fatalf("escaped = %v, want [b]", escaped)
	}
	if pt := f.points.Get(b); pt.Leaf.Valid() || !pt.Dirty {
		t.Errorf("escaped point = %+v, want no leaf and dirty", pt)
	}
	f.checkTree(t, []ecs.Entity{a})
}

func TestQuadtreeEscapeAndMerge(t *testing.T) {
	f := newTreeFixture(t, 256, 256, 2)

	all := []ecs.Entity{
		f.add(t, 10, 10),
		f.add(t, 130, 0),
		f.add(t, 5, 130),
	}
	nodesBefore := len(f.tree.nodes)

	for _, e := range all {
		f.move(e, r2.Vec{X: -5, Y: 300})
	}
	escaped := f.tree.RedistributeDirty()
	if len(escaped) != len(all) {
		t.Fatalf("escaped %d points, want %d", len(escaped), len(all))
	}

	s := f.tree.Stats()
	if s.Leaves != 1 || s.Internal != 0 || s.Points != 0 {
		t.Errorf("stats after merge = %+v, want single empty leaf", s)
	}
	if s.FreeBlocks != 1 {
		t.Errorf("FreeBlocks = %d, want 1", s.FreeBlocks)
	}

	// The released block is reused by the next split.
	f.add(t, 10, 10)
	f.add(t, 130, 0)
	f.add(t, 5, 130)
	if len(f.tree.nodes) != nodesBefore {
		t.Errorf("arena grew to %d nodes, want reuse of %d", len(f.tree.nodes), nodesBefore)
	}
	if f.tree.Stats().FreeBlocks != 0 {
		t.Error("free block not reused")
	}
}

func TestQuadtreeMergeBelowRoot(t *testing.T) {
	f := newTreeFixture(t, 256, 256, 2)

	a := f.add(t, 10, 10)
	b := f.add(t, 20, 20)
	c := f.add(t, 100, 100) // splits the root, then quadrant 0
	d := f.add(t, 200, 200)
	all := []ecs.Entity{a, b, c, d}

	q0, _ := f.tree.Lookup(0)
	if q0.Leaf {
		t.Fatal("quadrant 0 should have split")
	}
	freeBefore := f.tree.Stats().FreeBlocks

	// Empty quadrant 0 into its siblings without overfilling any of them.
	f.move(a, r2.Vec{X: 5, Y: 130})
	f.move(b, r2.Vec{X: 130, Y: 5})
	f.move(c, r2.Vec{X: 150, Y: 150})
	if escaped := f.tree.RedistributeDirty(); len(escaped) != 0 {
		t.Fatalf("%d points escaped", len(escaped))
	}

	q0, _ = f.tree.Lookup(0)
	if !q0.Leaf || len(q0.Points) != 0 {
		t.Errorf("quadrant 0 = %+v, want empty leaf", q0)
	}
	root, _ := f.tree.Lookup()
	if root.Leaf {
		t.Error("root merged while its other quadrants hold points")
	}
	want := [][]ecs.Entity{nil, {a}, {b}, {d, c}}
	for q, w := range want {
		child, _ := f.tree.Lookup(q)
		if !sameEntities(child.Points, w) {
			t.Errorf("child %d points = %v, want %v", q, child.Points, w)
		}
	}
	if got := f.tree.Stats().FreeBlocks; got != freeBefore+1 {
		t.Errorf("FreeBlocks = %d, want %d", got, freeBefore+1)
	}
	f.checkTree(t, all)
}

func TestQuadtreeRandomMovesConserved(t *testing.T) {
	const size = 500.0
	f := newTreeFixture(t, size, size, 4)
	rng := rand.New(rand.NewSource(7))

	var all []ecs.Entity
	for i := 0; i < 300; i++ {
		all = append(all, f.add(t, rng.Float64()*size, rng.Float64()*size))
	}

	for round := 0; round < 20; round++ {
		for _, e := range all {
			pos := f.points.Get(e).Position
			next := r2.Vec{
				X: pos.X + (rng.Float64()-0.5)*60,
				Y: pos.Y + (rng.Float64()-0.5)*60,
			}
			f.move(e, f.tree.Bounds().Clamp(next))
		}
		if escaped := f.tree.RedistributeDirty(); len(escaped) != 0 {
			t.Fatalf("round %d: %d points escaped", round, len(escaped))
		}
		f.checkTree(t, all)
	}
}

func TestQuadtreeRangeQueryMatchesBruteForce(t *testing.T) {
	const size = 400.0
	f := newTreeFixture(t, size, size, 3)
	rng := rand.New(rand.NewSource(11))

	var all []ecs.Entity
	for i := 0; i < 200; i++ {
		all = append(all, f.add(t, rng.Float64()*size, rng.Float64()*size))
	}

	for i := 0; i < 50; i++ {
		box := geom.MustBox(
			r2.Vec{X: rng.Float64()*size - 50, Y: rng.Float64()*size - 50},
			r2.Vec{X: 1 + rng.Float64()*150, Y: 1 + rng.Float64()*150},
		)
		circle := geom.Circle{
			Center: r2.Vec{X: rng.Float64() * size, Y: rng.Float64() * size},
			Radius: 1 + rng.Float64()*80,
		}

		wantBox, wantCircle := 0, 0
		for _, e := range all {
			pos := f.points.Get(e).Position
			if box.Contains(pos) {
				wantBox++
			}
			if circle.Contains(pos) {
				wantCircle++
			}
		}

		if got := len(f.tree.RangeQuery(box)); got != wantBox {
			t.Errorf("RangeQuery(%v) = %d points, want %d", box, got, wantBox)
		}
		if got := len(f.tree.CircleQuery(circle)); got != wantCircle {
			t.Errorf("CircleQuery(%v) = %d points, want %d", circle, got, wantCircle)
		}
	}
}

func TestQuadtreeCircleQueryIntoKeepsPrefix(t *testing.T) {
	f := newTreeFixture(t, 100, 100, 4)
	a := f.add(t, 50, 50)
	f.add(t, 90, 90)

	prefix := []ecs.Entity{a}
	got := f.tree.CircleQueryInto(prefix, geom.Circle{Center: r2.Vec{X: 50, Y: 50}, Radius: 5})
	if !sameEntities(got, []ecs.Entity{a, a}) {
		t.Errorf("CircleQueryInto = %v, want prefix plus one hit", got)
	}
}

func TestQuadtreeClear(t *testing.T) {
	f := newTreeFixture(t, 256, 256, 1)
	f.add(t, 10, 10)
	f.add(t, 200, 200)
	f.add(t, 50, 200)

	f.tree.Clear()
	s := f.tree.Stats()
	if s.Points != 0 || s.Leaves != 1 || s.FreeBlocks != 0 {
		t.Errorf("stats after Clear = %+v", s)
	}
	if _, ok := f.tree.LeafBounds(components.LeafRef(1)); ok {
		t.Error("LeafBounds of a cleared node should fail")
	}
}

func BenchmarkQuadtreeCircleQuery(b *testing.B) {
	world := ecs.NewWorld()
	points := ecs.NewMap1[components.GrowthPoint](world)
	tree, _ := NewQuadtree(geom.MustBox(r2.Vec{}, r2.Vec{X: 1000, Y: 1000}), 10, points)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 5000; i++ {
		pt := components.NewGrowthPoint(r2.Vec{X: rng.Float64() * 1000, Y: rng.Float64() * 1000}, 1)
		_ = tree.Insert(points.NewEntity(&pt))
	}

	var scratch []ecs.Entity
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		c := geom.Circle{Center: r2.Vec{X: float64(n % 1000), Y: 500}, Radius: 20}
		scratch = tree.CircleQueryInto(scratch[:0], c)
	}
}
