package main

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"
)

// EvalRecord is one row of optimize_log.csv. The parameter columns follow
// the order of NewParamVector and hold the clamped values actually run.
type EvalRecord struct {
	Eval       int     `csv:"eval"`
	Fitness    float64 `csv:"fitness"`
	Quality    float64 `csv:"quality"`
	Completion float64 `csv:"completion"`
	FinalNodes float64 `csv:"final_nodes"`
	Fill       float64 `csv:"fill"`

	GrowthPeriod      float64 `csv:"growth_period"`
	StretchPeriod     float64 `csv:"stretch_period"`
	PinchPeriod       float64 `csv:"pinch_period"`
	MaxEdgeLength     float64 `csv:"max_edge_length"`
	PinchAngleDeg     float64 `csv:"pinch_angle_deg"`
	AttractionMinDist float64 `csv:"attraction_min_dist"`
	MaxSpeed          float64 `csv:"max_speed"`
	MaxForce          float64 `csv:"max_force"`
	NearbyRadius      float64 `csv:"nearby_radius"`
}

// newEvalRecord fills a record from an evaluation. maxNodes scales the
// final node count into a fill fraction.
func newEvalRecord(eval int, fitness float64, sum EvalSummary, values []float64, maxNodes int) EvalRecord {
	rec := EvalRecord{
		Eval:       eval,
		Fitness:    fitness,
		Quality:    sum.Quality,
		Completion: sum.Completion,
		FinalNodes: sum.FinalNodes,

		GrowthPeriod:      values[0],
		StretchPeriod:     values[1],
		PinchPeriod:       values[2],
		MaxEdgeLength:     values[3],
		PinchAngleDeg:     values[4],
		AttractionMinDist: values[5],
		MaxSpeed:          values[6],
		MaxForce:          values[7],
		NearbyRadius:      values[8],
	}
	if maxNodes > 0 {
		rec.Fill = sum.FinalNodes / float64(maxNodes)
	}
	return rec
}

// evalLog appends evaluation records to a CSV file, header first.
type evalLog struct {
	file          *os.File
	headerWritten bool
}

func createEvalLog(path string) (*evalLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating eval log: %w", err)
	}
	return &evalLog{file: f}, nil
}

func (l *evalLog) write(rec EvalRecord) error {
	records := []EvalRecord{rec}
	if !l.headerWritten {
		if err := gocsv.Marshal(records, l.file); err != nil {
			return fmt.Errorf("writing eval log: %w", err)
		}
		l.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, l.file); err != nil {
		return fmt.Errorf("writing eval log: %w", err)
	}
	return nil
}

func (l *evalLog) Close() error {
	return l.file.Close()
}
