package telemetry

import (
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/stat"
)

// RowStats holds aggregated statistics for one recorded row.
type RowStats struct {
	RunID     string `csv:"run_id"`
	Row       int    `csv:"row"`
	Iteration int    `csv:"iteration"`

	Nodes        int `csv:"nodes"`
	Edits        int `csv:"edits"`
	SkippedEdits int `csv:"skipped_edits"`
	Escaped      int `csv:"escaped"`

	// Contour shape
	Perimeter float64 `csv:"perimeter"`
	Area      float64 `csv:"area"` // absolute shoelace area

	// Edge length distribution
	EdgeMean float64 `csv:"edge_mean"`
	EdgeStd  float64 `csv:"edge_std"`
	EdgeP10  float64 `csv:"edge_p10"`
	EdgeP50  float64 `csv:"edge_p50"`
	EdgeP90  float64 `csv:"edge_p90"`

	// Quadtree structure
	TreeLeaves int `csv:"tree_leaves"`
	TreeDepth  int `csv:"tree_depth"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// EdgeLengths returns the length of every edge of the closed contour,
// edge i running from point i to point i+1.
func EdgeLengths(positions []r2.Vec) []float64 {
	n := len(positions)
	if n < 2 {
		return nil
	}
	lengths := make([]float64, n)
	for i := range positions {
		lengths[i] = r2.Norm(r2.Sub(positions[(i+1)%n], positions[i]))
	}
	return lengths
}

// SignedArea returns the shoelace area of the closed contour. It is
// positive when the points wind with increasing angle.
func SignedArea(positions []r2.Vec) float64 {
	n := len(positions)
	if n < 3 {
		return 0
	}
	var sum float64
	for i, p := range positions {
		q := positions[(i+1)%n]
		sum += p.X*q.Y - q.X*p.Y
	}
	return sum / 2
}

// ComputeShapeStats fills the contour and edge fields of a RowStats.
func ComputeShapeStats(positions []r2.Vec) RowStats {
	s := RowStats{Nodes: len(positions)}
	lengths := EdgeLengths(positions)
	if len(lengths) == 0 {
		return s
	}

	s.Perimeter = floats.Sum(lengths)
	s.Area = math.Abs(SignedArea(positions))
	s.EdgeMean, s.EdgeStd = stat.MeanStdDev(lengths, nil)
	if math.IsNaN(s.EdgeStd) {
		s.EdgeStd = 0
	}

	sort.Float64s(lengths)
	s.EdgeP10 = Percentile(lengths, 0.10)
	s.EdgeP50 = Percentile(lengths, 0.50)
	s.EdgeP90 = Percentile(lengths, 0.90)
	return s
}

// LogValue implements slog.LogValuer for structured logging.
func (s RowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("row", s.Row),
		slog.Int("iteration", s.Iteration),
		slog.Int("nodes", s.Nodes),
		slog.Int("edits", s.Edits),
		slog.Int("skipped_edits", s.SkippedEdits),
		slog.Int("escaped", s.Escaped),
		slog.Float64("perimeter", s.Perimeter),
		slog.Float64("area", s.Area),
		slog.Float64("edge_mean", s.EdgeMean),
		slog.Float64("edge_p90", s.EdgeP90),
		slog.Int("tree_leaves", s.TreeLeaves),
		slog.Int("tree_depth", s.TreeDepth),
	)
}
