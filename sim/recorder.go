package sim

import (
	"errors"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/diffgrowth/config"
	"github.com/pthm-cable/diffgrowth/systems"
	"github.com/pthm-cable/diffgrowth/telemetry"
)

// ErrCapacityExceeded is returned when the ring outgrows the row buffer.
// It usually means the growth rates are too fast for the row schedule.
var ErrCapacityExceeded = errors.New("ring exceeded node ceiling")

// Row is one recorded cross-section of the ring.
type Row struct {
	Index int
	Count int // valid entries at the front of Positions

	// Positions has one slot per allowed node; entries past Count are zero.
	Positions []r2.Vec

	// EditSites are the ring indices edited since the previous row, in
	// ascending order.
	EditSites []int
	Escaped   int

	Stats telemetry.RowStats
}

// Points returns the valid prefix of Positions.
func (r Row) Points() []r2.Vec {
	return r.Positions[:r.Count]
}

// Recorder drives the ring through a fixed number of steps per row and
// snapshots it after each row.
type Recorder struct {
	ring *systems.Ring
	tree *systems.Quadtree
	cfg  config.RecorderConfig
	perf *telemetry.PerfCollector

	rows    []Row
	escaped int // since the last snapshot
	onRow   func(Row) error
}

// NewRecorder creates a recorder for ring. perf may be nil.
func NewRecorder(ring *systems.Ring, tree *systems.Quadtree, cfg config.RecorderConfig, perf *telemetry.PerfCollector) *Recorder {
	return &Recorder{
		ring: ring,
		tree: tree,
		cfg:  cfg,
		perf: perf,
		rows: make([]Row, 0, cfg.Rows),
	}
}

// OnRow registers fn to be called with every recorded row. An error from
// fn stops Run.
func (r *Recorder) OnRow(fn func(Row) error) {
	r.onRow = fn
}

// Snapshot copies the current ring into a new row, hands the row's edit
// sites over and starts a new growth cycle.
func (r *Recorder) Snapshot(index int) (Row, error) {
	n := r.ring.Len()
	if n > r.cfg.MaxNodes {
		return Row{}, fmt.Errorf("%w: %d points at row %d, ceiling %d",
			ErrCapacityExceeded, n, index, r.cfg.MaxNodes)
	}

	row := Row{
		Index:     index,
		Count:     n,
		Positions: make([]r2.Vec, r.cfg.MaxNodes),
		EditSites: r.ring.EditSites(),
		Escaped:   r.escaped,
	}
	r.ring.Positions(row.Positions[:0])

	row.Stats = telemetry.ComputeShapeStats(row.Points())
	row.Stats.Row = index
	row.Stats.Iteration = r.ring.Iterations()
	row.Stats.Edits = len(row.EditSites)
	row.Stats.SkippedEdits = r.ring.SkippedEdits()
	row.Stats.Escaped = r.escaped
	ts := r.tree.Stats()
	row.Stats.TreeLeaves = ts.Leaves
	row.Stats.TreeDepth = ts.MaxDepth

	r.ring.ClearEditTracking()
	r.escaped = 0
	r.rows = append(r.rows, row)
	return row, nil
}

// ComputeRow advances the ring by one row's worth of steps and records it.
func (r *Recorder) ComputeRow(index int) (Row, error) {
	for i := 0; i < r.cfg.ItersPerRow; i++ {
		if r.perf != nil {
			r.perf.StartStep()
		}
		stats, err := r.ring.Step(r.cfg.DT)
		r.escaped += stats.Escaped
		if err != nil {
			if r.perf != nil {
				r.perf.EndStep()
			}
			return Row{}, fmt.Errorf("row %d step %d: %w", index, i, err)
		}
		if r.perf != nil && i < r.cfg.ItersPerRow-1 {
			r.perf.EndStep()
		}
	}

	// The snapshot is timed as a phase of the row's last step.
	if r.perf != nil {
		r.perf.StartPhase(telemetry.PhaseSnapshot)
		defer r.perf.EndStep()
	}
	return r.Snapshot(index)
}

// Run records row 0 from the current ring, then computes the remaining rows.
func (r *Recorder) Run() error {
	row, err := r.Snapshot(0)
	if err != nil {
		return err
	}
	if err := r.emit(row); err != nil {
		return err
	}

	for i := 1; i < r.cfg.Rows; i++ {
		row, err := r.ComputeRow(i)
		if err != nil {
			return err
		}
		if r.cfg.LogEvery > 0 && i%r.cfg.LogEvery == 0 {
			slog.Info("computed row", "row", i, "stats", row.Stats)
		}
		if err := r.emit(row); err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) emit(row Row) error {
	if r.onRow == nil {
		return nil
	}
	if err := r.onRow(row); err != nil {
		return fmt.Errorf("handling row %d: %w", row.Index, err)
	}
	return nil
}

// Rows returns the rows recorded so far.
func (r *Recorder) Rows() []Row {
	return r.rows
}
