package main

import (
	"errors"
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/diffgrowth/config"
	"github.com/pthm-cable/diffgrowth/sim"
)

// FitnessEvaluator runs headless simulations and computes fitness.
type FitnessEvaluator struct {
	params     *ParamVector
	seeds      []int64
	baseConfig *config.Config
	targetFill float64 // wanted final node count as a fraction of max_nodes

	mu          sync.Mutex
	bestFitness float64
	last        EvalSummary
}

// EvalSummary averages one evaluation over its seeds.
type EvalSummary struct {
	Quality    float64
	Completion float64 // fraction of configured rows recorded
	FinalNodes float64 // ring size at the last recorded row
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, seeds []int64, baseCfg *config.Config, targetFill float64) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:      params,
		seeds:       seeds,
		baseConfig:  baseCfg,
		targetFill:  targetFill,
		bestFitness: math.Inf(1),
	}
}

// Last returns the summary of the most recent evaluation.
func (fe *FitnessEvaluator) Last() EvalSummary {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.last
}

// runResult holds the results from a single simulation run.
type runResult struct {
	completed int  // rows recorded before the run ended
	failed    bool // run ended on an error (ceiling, escape)
	rows      []sim.Row
}

// finalNodes returns the ring size at the last recorded row.
func (r *runResult) finalNodes() int {
	if len(r.rows) == 0 {
		return 0
	}
	return r.rows[len(r.rows)-1].Count
}

// seedResult holds the result from one seed evaluation.
type seedResult struct {
	fitness float64
	summary EvalSummary
}

// Evaluate computes fitness for a parameter vector (lower = better).
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	results := make([]seedResult, len(fe.seeds))
	var wg sync.WaitGroup

	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			result := fe.runSimulation(x, s)
			results[idx] = seedResult{
				fitness: fe.computeFitness(result),
				summary: EvalSummary{
					Quality:    computeQuality(result.rows),
					Completion: fe.completion(result),
					FinalNodes: float64(result.finalNodes()),
				},
			}
		}(i, seed)
	}
	wg.Wait()

	var totalFitness float64
	var total EvalSummary
	for _, r := range results {
		totalFitness += r.fitness
		total.Quality += r.summary.Quality
		total.Completion += r.summary.Completion
		total.FinalNodes += r.summary.FinalNodes
	}
	n := float64(len(fe.seeds))
	avgFitness := totalFitness / n

	fe.mu.Lock()
	if avgFitness < fe.bestFitness {
		fe.bestFitness = avgFitness
	}
	fe.last = EvalSummary{
		Quality:    total.Quality / n,
		Completion: total.Completion / n,
		FinalNodes: total.FinalNodes / n,
	}
	fe.mu.Unlock()

	return avgFitness
}

// runSimulation executes a single headless simulation run.
func (fe *FitnessEvaluator) runSimulation(x []float64, seed int64) *runResult {
	cfg := fe.copyConfig()
	fe.params.ApplyToConfig(cfg, x)
	// Seeds already run concurrently.
	cfg.Parallel.Workers = 1
	cfg.Recorder.LogEvery = 0
	cfg.Growth.EscapePolicy = config.EscapeFail

	result := &runResult{}
	if err := cfg.Validate(); err != nil {
		result.failed = true
		return result
	}

	s, err := sim.New(cfg, rand.New(rand.NewSource(seed)))
	if err != nil {
		result.failed = true
		return result
	}
	defer s.Close()

	err = s.Run(nil)
	result.rows = s.Recorder().Rows()
	result.completed = len(result.rows)
	if err != nil {
		result.failed = true
		if !errors.Is(err, sim.ErrCapacityExceeded) {
			// Escapes and other failures earn nothing for the rows they reached.
			result.completed = 0
		}
	}
	return result
}

// copyConfig creates a copy of the base config. Every section is a plain
// value, so a struct copy is deep.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	return &cfg
}

// computeFitness calculates the scalar fitness (lower = better).
// Formula: -(completion × (fill + 0.2 × quality))
// Completing every row dominates; the final ring should land near the
// target fill of the node ceiling, and quality separates similar runs.
func (fe *FitnessEvaluator) computeFitness(r *runResult) float64 {
	if len(r.rows) == 0 {
		return 0
	}
	completion := fe.completion(r)

	target := fe.targetFill * float64(fe.baseConfig.Recorder.MaxNodes)
	fillErr := float64(r.finalNodes())/target - 1
	fill := math.Exp(-fillErr * fillErr / 0.1)
	if r.failed {
		fill = 0
	}

	return -(completion * (fill + 0.2*computeQuality(r.rows)))
}

// completion is the fraction of the configured rows a run earned.
func (fe *FitnessEvaluator) completion(r *runResult) float64 {
	rows := fe.baseConfig.Recorder.Rows
	if rows == 0 {
		return 0
	}
	return float64(r.completed) / float64(rows)
}

// Quality component weights.
const (
	qualityWeightRegularity = 0.6
	qualityWeightGrowth     = 0.4

	qualityWarmupRows = 2 // skip first N rows (seed polygon)
)

// computeQuality scores a run ∈ [0, 1] on how even the edge lengths stay
// and how steadily the enclosed area grows from row to row.
func computeQuality(rows []sim.Row) float64 {
	if len(rows) <= qualityWarmupRows {
		return 0
	}
	valid := rows[qualityWarmupRows:]

	// 1. Edge regularity (coefficient of variation of edge length per row)
	var regularitySum float64
	areas := make([]float64, 0, len(valid))
	for _, row := range valid {
		s := row.Stats
		if s.EdgeMean > 0 {
			cv := s.EdgeStd / s.EdgeMean
			regularitySum += math.Exp(-cv * cv)
		}
		areas = append(areas, s.Area)
	}
	regularity := regularitySum / float64(len(valid))

	// 2. Steady growth (CV of the per-row area increments)
	growth := 0.0
	if len(areas) >= 3 {
		deltas := make([]float64, len(areas)-1)
		for i := range deltas {
			deltas[i] = areas[i+1] - areas[i]
		}
		mean, std := stat.MeanStdDev(deltas, nil)
		if mean > 0 {
			cv := std / mean
			growth = math.Exp(-cv * cv)
		}
	}

	return clamp01(qualityWeightRegularity*regularity + qualityWeightGrowth*growth)
}

// clamp01 clamps x to [0, 1].
func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
