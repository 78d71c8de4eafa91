package experiment

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dshills/lasso-mcp/internal/baseline"
	"github.com/dshills/lasso-mcp/internal/constraint"
	"github.com/dshills/lasso-mcp/internal/evaluation"
	"github.com/dshills/lasso-mcp/internal/lasso"
	"github.com/dshills/lasso-mcp/pkg/types"
)

// SearchedComponents are the components the weight search tunes
var SearchedComponents = []lasso.Component{
	lasso.ConstraintOperand, lasso.ESCOperand, lasso.ExpectedCIP, lasso.ContextMethod, lasso.OPBlock,
}

const (
	maxWeight  = 10
	objectiveK = 20
)

// combination is a set of integer weights in 0..maxWeight
type combination struct {
	weights map[lasso.Component]int
	tested  lasso.Component
}

func (c combination) with(comp lasso.Component, w int) combination {
	weights := make(map[lasso.Component]int, len(c.weights)+1)
	for k, v := range c.weights {
		weights[k] = v
	}
	weights[comp] = w
	return combination{weights: weights, tested: comp}
}

func (c combination) allZero() bool {
	for _, w := range c.weights {
		if w != 0 {
			return false
		}
	}
	return true
}

// normalize rescales the weights so the largest is maxWeight
func (c combination) normalize() combination {
	top := 0
	for _, w := range c.weights {
		top = max(top, w)
	}
	if top == 0 {
		return c
	}
	factor := float64(maxWeight) / float64(top)
	weights := make(map[lasso.Component]int, len(c.weights))
	for k, w := range c.weights {
		weights[k] = int(math.Round(float64(w) * factor))
	}
	return combination{weights: weights, tested: c.tested}
}

func (c combination) floatWeights() lasso.Weights {
	w := make(lasso.Weights, len(c.weights))
	for k, v := range c.weights {
		w[k] = float64(v) / maxWeight
	}
	return w
}

func (c combination) key() string {
	return c.floatWeights().String()
}

func (c combination) String() string {
	return c.floatWeights().String() + " / Testing: " + string(c.tested)
}

// candidates are the distinct normalized combinations that vary one
// component not in locked
func candidates(locked combination) []combination {
	seen := make(map[string]bool)
	var out []combination
	for _, comp := range SearchedComponents {
		if _, ok := locked.weights[comp]; ok {
			continue
		}
		for w := 0; w <= maxWeight; w++ {
			c := locked.with(comp, w)
			if c.allZero() {
				continue
			}
			c = c.normalize()
			if seen[c.key()] {
				continue
			}
			seen[c.key()] = true
			out = append(out, c)
		}
	}
	return out
}

// WeightResult is the aggregate of one evaluated combination
type WeightResult struct {
	Scenario  string
	Round     int
	Weights   lasso.Weights
	Aggregate *evaluation.Aggregated
}

// WeightReport is the outcome of SearchWeights
type WeightReport struct {
	RunID     string
	Dir       string
	Best      lasso.Weights
	Results   []WeightResult
	Duration  time.Duration
	bestStats *evaluation.Aggregated
}

// BestPercentHits is the %HITS@20 of the best combination
func (wr *WeightReport) BestPercentHits() float64 {
	if wr.bestStats == nil {
		return 0
	}
	return wr.bestStats.PercentHits(objectiveK)
}

// better reports whether a beats b on %HITS@20, then on MAP
func better(a, b *evaluation.Aggregated) bool {
	if b == nil {
		return true
	}
	pa, pb := a.PercentHits(objectiveK), b.PercentHits(objectiveK)
	if pa != pb {
		return pa > pb
	}
	return a.MAP() > b.MAP()
}

// SearchWeights runs a greedy search for the weights of SearchedComponents.
// Each round evaluates every candidate as a Lasso-pattern scenario over
// BM25 and locks the component values of the best one. Every evaluated
// combination is written to weights.csv under a fresh run directory.
func (r *Runner) SearchWeights(ctx context.Context, constraints []*types.Constraint, sourcesRoot string) (*WeightReport, error) {
	start := time.Now()
	report := &WeightReport{RunID: r.newRunID()}
	report.Dir = filepath.Join(r.cfg.OutputPath, report.RunID)
	if err := os.MkdirAll(report.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(filepath.Join(report.Dir, WeightsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create weights file: %w", err)
	}
	defer func() { _ = f.Close() }()
	out := newWeightWriter(f)

	ks := r.cfg.HitsAtK
	if !slices.Contains(ks, objectiveK) {
		ks = append(slices.Clone(ks), objectiveK)
	}
	systems, groups := constraint.GroupBySystem(constraints)

	locked := combination{weights: map[lasso.Component]int{}}
	for round := 1; round <= len(SearchedComponents); round++ {
		combos := candidates(locked)
		if len(combos) == 0 {
			break
		}
		r.logger.Info("weight search round", "round", round, "combinations", len(combos))

		results := make([]WeightResult, len(combos))
		sem := semaphore.NewWeighted(int64(max(1, r.cfg.Workers)))
		g, gctx := errgroup.WithContext(ctx)
		for i, c := range combos {
			if err := sem.Acquire(gctx, 1); err != nil {
				break
			}
			g.Go(func() error {
				defer sem.Release(1)
				agg, err := r.evaluateWeights(gctx, c, systems, groups, sourcesRoot, ks)
				if err != nil {
					return fmt.Errorf("combination %s: %w", c, err)
				}
				results[i] = WeightResult{Scenario: c.String(), Round: round, Weights: c.floatWeights(), Aggregate: agg}
				return out.write(results[i])
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		best := -1
		for i, res := range results {
			if best == -1 || better(res.Aggregate, results[best].Aggregate) {
				best = i
			}
		}
		locked = combination{weights: combos[best].weights}
		report.Best = results[best].Weights
		report.bestStats = results[best].Aggregate
		report.Results = append(report.Results, results...)
		r.logger.Info("current best configuration", "round", round, "weights", report.Best,
			"percent_hits", results[best].Aggregate.PercentHits(objectiveK))
	}

	report.Duration = time.Since(start)
	r.logger.Info("best configuration", "weights", report.Best, "duration", report.Duration)
	return report, nil
}

func (r *Runner) evaluateWeights(ctx context.Context, c combination, systems []string,
	groups map[string][]*types.Constraint, sourcesRoot string, ks []int) (*evaluation.Aggregated, error) {
	cfg := lasso.PatternConfig(c.floatWeights(), baseline.TypeBM25)

	aggs := make([]*evaluation.Aggregated, len(systems))
	g, gctx := errgroup.WithContext(ctx)
	for i, system := range systems {
		g.Go(func() error {
			p, err := r.coordinator.Project(gctx, system, ProjectDir(sourcesRoot, system))
			if err != nil {
				return err
			}
			search, err := r.lassoSearch(gctx, p, cfg)
			if err != nil {
				return err
			}
			id := evaluation.ScenarioID{Project: system, Config: c}
			evals, err := r.evaluate(gctx, id, groups[system], search)
			if err != nil {
				return err
			}
			aggs[i] = evaluation.Create(ks, evals)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return evaluation.Aggregate(ks, aggs), nil
}

type weightWriter struct {
	mu      sync.Mutex
	w       *csv.Writer
	started bool
}

func newWeightWriter(w io.Writer) *weightWriter {
	return &weightWriter{w: csv.NewWriter(w)}
}

func (ww *weightWriter) write(res WeightResult) error {
	ww.mu.Lock()
	defer ww.mu.Unlock()

	if !ww.started {
		header := []string{"00 Scenario", "02 Round", "03 %HITS@20", "04 Average Rank", "05 Average Results"}
		if err := ww.w.Write(header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		ww.started = true
	}
	a := res.Aggregate
	row := []string{
		res.Scenario,
		strconv.Itoa(res.Round),
		strconv.FormatFloat(a.PercentHits(objectiveK), 'f', -1, 32),
		strconv.FormatFloat(a.AverageRank(), 'f', -1, 32),
		strconv.FormatFloat(a.AverageResults(), 'f', -1, 32),
	}
	if err := ww.w.Write(row); err != nil {
		return fmt.Errorf("failed to write %s: %w", res.Scenario, err)
	}
	ww.w.Flush()
	return ww.w.Error()
}
