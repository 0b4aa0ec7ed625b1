package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/diffgrowth/config"
)

// PointRecord is one ring position of a recorded row.
type PointRecord struct {
	RunID string  `csv:"run_id"`
	Row   int     `csv:"row"`
	Index int     `csv:"index"`
	X     float64 `csv:"x"`
	Y     float64 `csv:"y"`
}

// EditRecord is one ring index edited during a row.
type EditRecord struct {
	RunID string `csv:"run_id"`
	Row   int    `csv:"row"`
	Index int    `csv:"index"`
}

// csvTable is an append-only CSV file that writes its header once.
type csvTable struct {
	name          string
	file          *os.File
	headerWritten bool
}

func (t *csvTable) write(records any) error {
	if !t.headerWritten {
		// First write includes headers
		if err := gocsv.Marshal(records, t.file); err != nil {
			return fmt.Errorf("writing %s: %w", t.name, err)
		}
		t.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, t.file); err != nil {
		return fmt.Errorf("writing %s: %w", t.name, err)
	}
	return nil
}

// OutputManager handles structured run output with CSV logging.
type OutputManager struct {
	dir string

	rows  *csvTable
	edits *csvTable
	stats *csvTable
	perf  *csvTable
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}
	for _, t := range []struct {
		dst  **csvTable
		name string
	}{
		{&om.rows, "rows.csv"},
		{&om.edits, "edits.csv"},
		{&om.stats, "stats.csv"},
		{&om.perf, "perf.csv"},
	} {
		f, err := os.Create(filepath.Join(dir, t.name))
		if err != nil {
			om.Close()
			return nil, fmt.Errorf("creating %s: %w", t.name, err)
		}
		*t.dst = &csvTable{name: t.name, file: f}
	}

	return om, nil
}

// WriteConfig saves the effective configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WritePositions appends the ordered ring positions of one row to rows.csv.
func (om *OutputManager) WritePositions(runID string, row int, positions []r2.Vec) error {
	if om == nil || len(positions) == 0 {
		return nil
	}
	records := make([]PointRecord, len(positions))
	for i, p := range positions {
		records[i] = PointRecord{RunID: runID, Row: row, Index: i, X: p.X, Y: p.Y}
	}
	return om.rows.write(records)
}

// WriteEdits appends the edit sites of one row to edits.csv.
func (om *OutputManager) WriteEdits(runID string, row int, sites []int) error {
	if om == nil || len(sites) == 0 {
		return nil
	}
	records := make([]EditRecord, len(sites))
	for i, idx := range sites {
		records[i] = EditRecord{RunID: runID, Row: row, Index: idx}
	}
	return om.edits.write(records)
}

// WriteStats writes a row stats record to stats.csv.
func (om *OutputManager) WriteStats(stats RowStats) error {
	if om == nil {
		return nil
	}
	return om.stats.write([]RowStats{stats})
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, runID string, row int) error {
	if om == nil {
		return nil
	}
	return om.perf.write([]PerfStatsCSV{stats.ToCSV(runID, row)})
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error
	for _, t := range []*csvTable{om.rows, om.edits, om.stats, om.perf} {
		if t == nil || t.file == nil {
			continue
		}
		if err := t.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
