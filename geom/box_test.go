package geom

import (
	"errors"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
)

func testBox() Box {
	return MustBox(r2.Vec{X: 0, Y: 0}, r2.Vec{X: 256, Y: 256})
}

func TestNewBoxRejectsDegenerateSize(t *testing.T) {
	tests := []struct {
		name string
		size r2.Vec
	}{
		{"zero width", r2.Vec{X: 0, Y: 10}},
		{"zero height", r2.Vec{X: 10, Y: 0}},
		{"negative", r2.Vec{X: -1, Y: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBox(r2.Vec{}, tt.size)
			if !errors.Is(err, ErrDegenerateBox) {
				t.Errorf("NewBox(%v) error = %v, want ErrDegenerateBox", tt.size, err)
			}
		})
	}
}

func TestBoxContains(t *testing.T) {
	b := testBox()
	tests := []struct {
		name string
		p    r2.Vec
		want bool
	}{
		{"origin", r2.Vec{X: 0, Y: 0}, true},
		{"interior", r2.Vec{X: 10, Y: 10}, true},
		{"just below far corner", r2.Vec{X: 255.999, Y: 255.999}, true},
		{"far corner", r2.Vec{X: 256, Y: 256}, false},
		{"far x edge", r2.Vec{X: 256, Y: 10}, false},
		{"far y edge", r2.Vec{X: 10, Y: 256}, false},
		{"negative", r2.Vec{X: -1, Y: -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.Contains(tt.p); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestBoxIntersects(t *testing.T) {
	b := testBox()
	tests := []struct {
		name  string
		other Box
		want  bool
	}{
		{"overlapping", MustBox(r2.Vec{X: 200, Y: 200}, r2.Vec{X: 100, Y: 100}), true},
		{"inside", MustBox(r2.Vec{X: 10, Y: 10}, r2.Vec{X: 5, Y: 5}), true},
		{"enclosing", MustBox(r2.Vec{X: -10, Y: -10}, r2.Vec{X: 300, Y: 300}), true},
		{"shared edge", MustBox(r2.Vec{X: 256, Y: 0}, r2.Vec{X: 10, Y: 10}), true},
		{"right of", MustBox(r2.Vec{X: 257, Y: 0}, r2.Vec{X: 10, Y: 10}), false},
		{"below", MustBox(r2.Vec{X: 0, Y: 300}, r2.Vec{X: 10, Y: 10}), false},
		{"left of", MustBox(r2.Vec{X: -20, Y: 0}, r2.Vec{X: 10, Y: 10}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.Intersects(tt.other); got != tt.want {
				t.Errorf("Intersects(%v) = %v, want %v", tt.other, got, tt.want)
			}
			if got := tt.other.Intersects(b); got != tt.want {
				t.Errorf("reverse Intersects(%v) = %v, want %v", tt.other, got, tt.want)
			}
		})
	}
}

func TestBoxQuadrant(t *testing.T) {
	b := testBox()
	tests := []struct {
		p    r2.Vec
		want int
	}{
		{r2.Vec{X: 10, Y: 10}, 0},
		{r2.Vec{X: 5, Y: 130}, 1},
		{r2.Vec{X: 130, Y: 0}, 2},
		{r2.Vec{X: 200, Y: 200}, 3},
		{r2.Vec{X: 128, Y: 128}, 3},
		{r2.Vec{X: 127.9, Y: 128}, 1},
	}
	for _, tt := range tests {
		if got := b.Quadrant(tt.p); got != tt.want {
			t.Errorf("Quadrant(%v) = %d, want %d", tt.p, got, tt.want)
		}
	}
}

func TestBoxSubdivide(t *testing.T) {
	b := testBox()
	children := b.Subdivide()
	want := [4]Box{
		MustBox(r2.Vec{X: 0, Y: 0}, r2.Vec{X: 128, Y: 128}),
		MustBox(r2.Vec{X: 0, Y: 128}, r2.Vec{X: 128, Y: 128}),
		MustBox(r2.Vec{X: 128, Y: 0}, r2.Vec{X: 128, Y: 128}),
		MustBox(r2.Vec{X: 128, Y: 128}, r2.Vec{X: 128, Y: 128}),
	}
	if children != want {
		t.Fatalf("Subdivide() = %v, want %v", children, want)
	}
}

// Every point in the box lands in exactly one child, and that child is the
// one Quadrant names.
func TestQuadrantMatchesSubdivide(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	b := MustBox(r2.Vec{X: -50, Y: 20}, r2.Vec{X: 300, Y: 120})
	children := b.Subdivide()
	for i := 0; i < 1000; i++ {
		p := r2.Vec{
			X: b.Origin.X + rng.Float64()*b.Size.X,
			Y: b.Origin.Y + rng.Float64()*b.Size.Y,
		}
		q := b.Quadrant(p)
		for c, child := range children {
			if got := child.Contains(p); got != (c == q) {
				t.Fatalf("point %v: child %d Contains = %v, quadrant = %d", p, c, got, q)
			}
		}
	}
}

func TestBoxClamp(t *testing.T) {
	b := testBox()
	for _, p := range []r2.Vec{{X: -5, Y: 10}, {X: 300, Y: 300}, {X: 256, Y: 0}, {X: 12, Y: 14}} {
		c := b.Clamp(p)
		if !b.Contains(c) {
			t.Errorf("Clamp(%v) = %v, not contained", p, c)
		}
	}
	if got := b.Clamp(r2.Vec{X: 12, Y: 14}); got != (r2.Vec{X: 12, Y: 14}) {
		t.Errorf("Clamp moved an interior point to %v", got)
	}
}
