package systems

import (
	"fmt"
	"log/slog"
	"slices"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/diffgrowth/geom"
)

// periodicEdits runs the growth, stretch and pinch rules whose period
// divides the current iteration count.
func (r *Ring) periodicEdits() (int, error) {
	inserted := 0
	if r.iterations%r.cfg.GrowthPeriod == 0 {
		ok, err := r.AddRandomPoint()
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	if r.iterations%r.cfg.StretchPeriod == 0 {
		n, err := r.SplitLongEdges()
		inserted += n
		if err != nil {
			return inserted, err
		}
	}
	if r.iterations%r.cfg.PinchPeriod == 0 {
		n, err := r.SplitPinchedAngles()
		inserted += n
		if err != nil {
			return inserted, err
		}
	}
	return inserted, nil
}

// Insert splices a new point at the midpoint of the edge from i to i+1.
// An index already edited in this growth cycle is skipped and reported as
// false; the same edge is never split twice per cycle.
func (r *Ring) Insert(i int) (bool, error) {
	n := len(r.nodes)
	if i < 0 || i >= n {
		return false, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, n)
	}
	if _, done := r.edits[i]; done {
		r.skipped++
		slog.Debug("skipping repeated edit site", "index", i, "iteration", r.iterations)
		return false, nil
	}
	r.edits[i] = struct{}{}

	mid := geom.Midpoint(r.position(i), r.position((i+1)%n))
	e := r.newPoint(mid)
	r.nodes = slices.Insert(r.nodes, i+1, e)
	if err := r.tree.Insert(e); err != nil {
		r.nodes = slices.Delete(r.nodes, i+1, i+2)
		r.world.RemoveEntity(e)
		return false, fmt.Errorf("inserting at edge %d: %w", i, err)
	}
	return true, nil
}

// insertDescending inserts at every site from the highest index down, so
// earlier insertions never shift the sites still pending.
func (r *Ring) insertDescending(sites []int) (int, error) {
	inserted := 0
	for k := len(sites) - 1; k >= 0; k-- {
		ok, err := r.Insert(sites[k])
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

// AddRandomPoint grows the ring at one uniformly chosen edge.
func (r *Ring) AddRandomPoint() (bool, error) {
	return r.Insert(r.rng.Intn(len(r.nodes)))
}

// SplitLongEdges splits every edge longer than the maximum edge length.
func (r *Ring) SplitLongEdges() (int, error) {
	n := len(r.nodes)
	var sites []int
	for i := 0; i < n; i++ {
		if geom.DistanceSq(r.position(i), r.position((i+1)%n)) > r.cfg.MaxEdgeLengthSq {
			sites = append(sites, i)
		}
	}
	return r.insertDescending(sites)
}

// SplitPinchedAngles inserts a point after every vertex whose interior
// angle is sharper than the pinch angle.
func (r *Ring) SplitPinchedAngles() (int, error) {
	n := len(r.nodes)
	var sites []int
	for i := 0; i < n; i++ {
		if r.pinchCosine(i) > r.cfg.PinchThreshold {
			sites = append(sites, i)
		}
	}
	return r.insertDescending(sites)
}

// pinchCosine returns the cosine of the interior angle at vertex i.
// Degenerate vertices with a zero-length edge report 0.
func (r *Ring) pinchCosine(i int) float64 {
	n := len(r.nodes)
	a := r.position((i - 1 + n) % n)
	b := r.position(i)
	c := r.position((i + 1) % n)
	ba := geom.Normalize(r2.Sub(a, b))
	bc := geom.Normalize(r2.Sub(c, b))
	return r2.Dot(ba, bc)
}

// EditSites returns the ring indices edited since the last
// ClearEditTracking, in ascending order.
func (r *Ring) EditSites() []int {
	sites := make([]int, 0, len(r.edits))
	for i := range r.edits {
		sites = append(sites, i)
	}
	slices.Sort(sites)
	return sites
}

// SkippedEdits returns how many repeated edit sites were skipped since the
// last ClearEditTracking.
func (r *Ring) SkippedEdits() int {
	return r.skipped
}

// ClearEditTracking starts a new growth cycle.
func (r *Ring) ClearEditTracking() {
	clear(r.edits)
	r.skipped = 0
}
