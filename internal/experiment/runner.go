package experiment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dshills/lasso-mcp/internal/baseline"
	"github.com/dshills/lasso-mcp/internal/config"
	"github.com/dshills/lasso-mcp/internal/constraint"
	"github.com/dshills/lasso-mcp/internal/evaluation"
	"github.com/dshills/lasso-mcp/internal/indexer"
	"github.com/dshills/lasso-mcp/internal/lasso"
	"github.com/dshills/lasso-mcp/internal/logging"
	"github.com/dshills/lasso-mcp/pkg/types"
)

// Output files written under the run directory
const (
	ResultsFile = "results-all.csv"
	SummaryFile = "results-summary.csv"
	SampleFile  = "01-sample.csv"
	WeightsFile = "weights.csv"
)

// DefaultScenarios are the Lasso-method scenarios over each default
// baseline followed by the baselines themselves
func DefaultScenarios(lsiDimension int) []fmt.Stringer {
	defaults := baseline.Defaults(lsiDimension)
	scenarios := make([]fmt.Stringer, 0, 2*len(defaults))
	for _, b := range defaults {
		c := lasso.MethodConfig(lasso.DefaultWeights(), b.Type)
		c.LSIDimension = b.Dimension
		scenarios = append(scenarios, c)
	}
	for _, b := range defaults {
		scenarios = append(scenarios, b)
	}
	return scenarios
}

// Options controls one run
type Options struct {
	// Scenarios to evaluate; nil means DefaultScenarios
	Scenarios []fmt.Stringer
	// WriteIndividual also writes the per-constraint result sample
	WriteIndividual bool
}

// Failure is a unit that produced no rows
type Failure struct {
	Scenario evaluation.ScenarioID
	Err      error
}

// Report summarizes a finished run
type Report struct {
	RunID    string
	Dir      string
	Summary  []evaluation.Row
	Failures []Failure
	Duration time.Duration
}

// Runner evaluates scenarios over a constraint dataset
type Runner struct {
	coordinator *indexer.Coordinator
	cfg         *config.Config
	logger      hclog.Logger
	newRunID    func() string
}

// NewRunner creates a runner. A nil cfg means config.Default().
func NewRunner(coordinator *indexer.Coordinator, cfg *config.Config, logger hclog.Logger) *Runner {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Runner{
		coordinator: coordinator,
		cfg:         cfg,
		logger:      logging.OrNull(logger),
		newRunID:    uuid.NewString,
	}
}

// ProjectDir is where the sources of project live under root:
// root/project/sources when it exists, else root/project
func ProjectDir(root, project string) string {
	dir := filepath.Join(root, project)
	sources := filepath.Join(dir, "sources")
	if info, err := os.Stat(sources); err == nil && info.IsDir() {
		return sources
	}
	return dir
}

type unit struct {
	id          evaluation.ScenarioID
	order       int
	sourcesDir  string
	constraints []*types.Constraint
}

// Run evaluates every scenario on every project of constraints and writes
// the reports under a fresh run directory. A unit that fails is logged and
// recorded in the report; the other units still run.
func (r *Runner) Run(ctx context.Context, constraints []*types.Constraint, sourcesRoot string, opts *Options) (*Report, error) {
	if opts == nil {
		opts = &Options{}
	}
	scenarios := opts.Scenarios
	if scenarios == nil {
		scenarios = DefaultScenarios(r.cfg.LSIDimension)
	}

	start := time.Now()
	report := &Report{RunID: r.newRunID()}
	report.Dir = filepath.Join(r.cfg.OutputPath, report.RunID)
	if err := os.MkdirAll(report.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	resultsFile, err := os.Create(filepath.Join(report.Dir, ResultsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create results file: %w", err)
	}
	defer func() { _ = resultsFile.Close() }()
	results := evaluation.NewConstraintWriter(resultsFile, r.cfg.HitsAtK)

	var samples *SampleWriter
	if opts.WriteIndividual {
		sampleFile, err := os.Create(filepath.Join(report.Dir, SampleFile))
		if err != nil {
			return nil, fmt.Errorf("failed to create sample file: %w", err)
		}
		defer func() { _ = sampleFile.Close() }()
		samples = NewSampleWriter(sampleFile)
	}

	systems, groups := constraint.GroupBySystem(constraints)
	var units []unit
	for _, system := range systems {
		for i, s := range scenarios {
			units = append(units, unit{
				id:          evaluation.ScenarioID{Project: system, Config: s},
				order:       i,
				sourcesDir:  ProjectDir(sourcesRoot, system),
				constraints: groups[system],
			})
		}
	}
	r.logger.Info("starting run", "run", report.RunID, "projects", len(systems),
		"scenarios", len(scenarios), "constraints", len(constraints))

	var (
		mu         sync.Mutex
		aggregates = make(map[int][]*evaluation.Aggregated)
	)

	sem := semaphore.NewWeighted(int64(max(1, r.cfg.Workers)))
	g, gctx := errgroup.WithContext(ctx)
	for _, u := range units {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			r.logger.Info("processing scenario", "scenario", u.id)
			evals, err := r.evaluateUnit(gctx, u)
			if err == nil {
				err = results.Write(evals)
			}
			if err == nil && samples != nil {
				err = samples.Write(evals)
			}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.logger.Error("scenario failed", "scenario", u.id, "error", err)
				mu.Lock()
				report.Failures = append(report.Failures, Failure{Scenario: u.id, Err: err})
				mu.Unlock()
				return nil
			}

			agg := evaluation.Create(r.cfg.HitsAtK, evals)
			mu.Lock()
			aggregates[u.order] = append(aggregates[u.order], agg)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	orders := make([]int, 0, len(aggregates))
	for o := range aggregates {
		orders = append(orders, o)
	}
	sort.Ints(orders)
	for _, o := range orders {
		report.Summary = append(report.Summary, evaluation.Row{
			Technique: scenarios[o].String(),
			Aggregate: evaluation.Aggregate(r.cfg.HitsAtK, aggregates[o]),
		})
	}

	summaryFile, err := os.Create(filepath.Join(report.Dir, SummaryFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create summary file: %w", err)
	}
	defer func() { _ = summaryFile.Close() }()
	if err := evaluation.NewSummaryWriter(summaryFile, r.cfg.HitsAtK).Write(report.Summary); err != nil {
		return nil, err
	}

	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].Scenario.String() < report.Failures[j].Scenario.String()
	})
	report.Duration = time.Since(start)
	r.logger.Info("run complete", "run", report.RunID, "dir", report.Dir,
		"failed", len(report.Failures), "duration", report.Duration)
	return report, nil
}

// searchFunc answers one constraint with evaluation items and the terms the
// query ran with
type searchFunc func(ctx context.Context, c *types.Constraint) ([]evaluation.Item, []string, error)

func (r *Runner) evaluateUnit(ctx context.Context, u unit) ([]*evaluation.Evaluation, error) {
	search, err := r.searcher(ctx, u)
	if err != nil {
		return nil, err
	}
	return r.evaluate(ctx, u.id, u.constraints, search)
}

func (r *Runner) searcher(ctx context.Context, u unit) (searchFunc, error) {
	p, err := r.coordinator.Project(ctx, u.id.Project, u.sourcesDir)
	if err != nil {
		return nil, err
	}

	switch cfg := u.id.Config.(type) {
	case lasso.Config:
		return r.lassoSearch(ctx, p, cfg)
	case baseline.Config:
		return r.baselineSearch(ctx, p, cfg)
	}
	return nil, fmt.Errorf("unsupported scenario configuration %T", u.id.Config)
}

func (r *Runner) lassoSearch(ctx context.Context, p *indexer.Project, cfg lasso.Config) (searchFunc, error) {
	ix, err := r.coordinator.Lasso(ctx, p, cfg)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, c *types.Constraint) ([]evaluation.Item, []string, error) {
		ranking, err := ix.Search(ctx, c)
		if err != nil {
			return nil, nil, err
		}
		return ranking.Items(), ranking.Terms, nil
	}, nil
}

func (r *Runner) baselineSearch(ctx context.Context, p *indexer.Project, cfg baseline.Config) (searchFunc, error) {
	ix, err := r.coordinator.Baseline(ctx, p, cfg)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, c *types.Constraint) ([]evaluation.Item, []string, error) {
		results, err := ix.Search(ctx, c)
		if err != nil {
			return nil, nil, err
		}
		return evaluation.FromBlocks(results), nil, nil
	}, nil
}

// evaluate runs the queries of one unit in parallel. The evaluations keep
// the order of constraints.
func (r *Runner) evaluate(ctx context.Context, id evaluation.ScenarioID, constraints []*types.Constraint, search searchFunc) ([]*evaluation.Evaluation, error) {
	evals := make([]*evaluation.Evaluation, len(constraints))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, r.cfg.Workers))
	for i, c := range constraints {
		g.Go(func() error {
			items, terms, err := search(gctx, c)
			if err != nil {
				return fmt.Errorf("constraint %s: %w", c.ID, err)
			}
			evals[i] = evaluation.Evaluate(evaluation.NewCollection(id, c, terms, items, r.cfg.ClusterResults))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return evals, nil
}
