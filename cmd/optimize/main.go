// Package main provides CMA-ES optimization for finding growth parameters
// that fill the node budget smoothly without outrunning it.
package main

import (
	"flag"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/diffgrowth/config"
)

func main() {
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	rows := flag.Int("rows", 0, "Rows per evaluation run (0 = use config)")
	targetFill := flag.Float64("target-fill", 0.8, "Wanted final node count as a fraction of max_nodes")
	seeds := flag.Int("seeds", 3, "Number of seeds per evaluation")
	maxEvals := flag.Int("max-evals", 200, "Maximum number of evaluations")
	population := flag.Int("population", 0, "CMA-ES population size (0 = auto)")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if *outputDir == "" {
		slog.Error("-output is required")
		os.Exit(2)
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		slog.Error("creating output directory", "error", err)
		os.Exit(1)
	}

	baseCfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *rows > 0 {
		baseCfg.Recorder.Rows = *rows
	}

	evalLog, err := createEvalLog(filepath.Join(*outputDir, "optimize_log.csv"))
	if err != nil {
		slog.Error("opening eval log", "error", err)
		os.Exit(1)
	}
	defer evalLog.Close()

	params := NewParamVector()
	evalSeeds := make([]int64, *seeds)
	for i := range evalSeeds {
		evalSeeds[i] = int64(i*1000 + 42)
	}

	t := &tuner{
		params:    params,
		evaluator: NewFitnessEvaluator(params, evalSeeds, baseCfg, *targetFill),
		log:       evalLog,
		maxNodes:  baseCfg.Recorder.MaxNodes,
		maxEvals:  *maxEvals,
		best:      math.Inf(1),
		start:     time.Now(),
	}

	popSize := *population
	if popSize == 0 {
		popSize = defaultPopulation(params.Dim())
	}
	slog.Info("starting CMA-ES",
		"params", params.Dim(),
		"population", popSize,
		"max_evals", *maxEvals,
		"seeds", *seeds,
		"rows", baseCfg.Recorder.Rows,
		"target_nodes", int(*targetFill*float64(baseCfg.Recorder.MaxNodes)),
	)

	result, err := optimize.Minimize(
		optimize.Problem{Func: t.objective},
		params.Normalize(params.ExtractFromConfig(baseCfg)),
		&optimize.Settings{FuncEvaluations: *maxEvals},
		&optimize.CmaEsChol{InitStepSize: 0.3, Population: popSize},
	)
	if err != nil {
		slog.Warn("optimization ended", "error", err)
	}

	bestParams := t.bestParams
	if bestParams == nil {
		if result == nil {
			slog.Error("no evaluation completed")
			os.Exit(1)
		}
		bestParams = params.Clamp(params.Denormalize(result.X))
	}

	slog.Info("optimization complete",
		"evals", t.evals,
		"elapsed", time.Since(t.start).Round(time.Second).String(),
		"best_fitness", t.best,
		"best_completion", t.bestSummary.Completion,
		"best_final_nodes", t.bestSummary.FinalNodes,
	)
	for i, spec := range params.Specs {
		slog.Info("best parameter", "name", spec.Name, "path", spec.Path, "value", bestParams[i])
	}

	bestCfg := *baseCfg
	params.ApplyToConfig(&bestCfg, bestParams)
	configOutPath := filepath.Join(*outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(configOutPath); err != nil {
		slog.Error("failed to write best config", "error", err)
		os.Exit(1)
	}
	slog.Info("best config saved", "path", configOutPath)
}

// defaultPopulation is the usual CMA-ES population size, 4 + floor(3 ln n).
func defaultPopulation(dim int) int {
	if dim < 1 {
		return 4
	}
	return 4 + int(math.Floor(3*math.Log(float64(dim))))
}

// tuner is the objective handed to CMA-ES. It logs every evaluation and
// remembers the best parameters seen, which need not be the final mean.
type tuner struct {
	params    *ParamVector
	evaluator *FitnessEvaluator
	log       *evalLog
	maxNodes  int
	maxEvals  int

	evals       int
	best        float64
	bestParams  []float64
	bestSummary EvalSummary
	start       time.Time
}

func (t *tuner) objective(x []float64) float64 {
	values := t.params.Clamp(t.params.Denormalize(x))
	fitness := t.evaluator.Evaluate(values)
	sum := t.evaluator.Last()
	t.evals++

	if fitness < t.best {
		t.best = fitness
		t.bestParams = values
		t.bestSummary = sum
	}

	rec := newEvalRecord(t.evals, fitness, sum, values, t.maxNodes)
	if err := t.log.write(rec); err != nil {
		slog.Error("eval log", "error", err)
	}

	elapsed := time.Since(t.start)
	eta := time.Duration(t.maxEvals-t.evals) * (elapsed / time.Duration(t.evals))
	slog.Info("evaluated",
		"eval", t.evals,
		"fitness", fitness,
		"completion", sum.Completion,
		"final_nodes", sum.FinalNodes,
		"fill", rec.Fill,
		"quality", sum.Quality,
		"best", t.best,
		"eta", eta.Round(time.Second).String(),
	)
	return fitness
}
