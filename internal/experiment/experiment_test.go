package experiment

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lasso-mcp/internal/baseline"
	"github.com/dshills/lasso-mcp/internal/config"
	"github.com/dshills/lasso-mcp/internal/evaluation"
	"github.com/dshills/lasso-mcp/internal/indexer"
	"github.com/dshills/lasso-mcp/internal/lasso"
	"github.com/dshills/lasso-mcp/internal/storage"
	"github.com/dshills/lasso-mcp/pkg/types"
)

// sourcesRoot holds the "testdata" project
var sourcesRoot = filepath.Join("..", "parser")

func setupRunner(t *testing.T) *Runner {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Default()
	cfg.Workers = 2
	cfg.OutputPath = t.TempDir()
	r := NewRunner(indexer.New(store, cfg, nil), cfg, nil)
	r.newRunID = func() string { return "run-1" }
	return r
}

func dataset() []*types.Constraint {
	return []*types.Constraint{
		{
			ID:           "q1",
			System:       "testdata",
			Type:         types.ConstraintValueComparison,
			Text:         "quantity must be positive",
			Context:      "order quantity",
			Operands:     []string{"quantity"},
			GroundTruths: []types.GroundTruth{{File: "org/acme/Order.java", Lines: []int{24}}},
		},
		{
			ID:           "q2",
			System:       "testdata",
			Type:         types.ConstraintDualValueComparison,
			Text:         "status must be set",
			Context:      "order status",
			Operands:     []string{"status"},
			GroundTruths: []types.GroundTruth{{File: "org/acme/Order.java", Lines: []int{27}}},
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestProjectDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "withsources", "sources"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "plain"), 0755))

	assert.Equal(t, filepath.Join(root, "withsources", "sources"), ProjectDir(root, "withsources"))
	assert.Equal(t, filepath.Join(root, "plain"), ProjectDir(root, "plain"))
}

func TestDefaultScenarios(t *testing.T) {
	scenarios := DefaultScenarios(0)
	names := make([]string, len(scenarios))
	for i, s := range scenarios {
		names[i] = s.String()
	}
	assert.Equal(t, []string{"Lasso-13TF-IDF", "Lasso-13BM25", "Lasso-13LSI", "TF-IDF", "BM25", "LSI"}, names)

	lsi, ok := scenarios[2].(lasso.Config)
	require.True(t, ok)
	assert.True(t, lsi.MethodGranularity)
	assert.Equal(t, baseline.DefaultDimension, lsi.BaselineConfig().Dimension)
	assert.Equal(t, lasso.DefaultWeights(), lsi.Weights)
}

func TestRun(t *testing.T) {
	r := setupRunner(t)
	opts := &Options{
		Scenarios: []fmt.Stringer{
			lasso.MethodConfig(lasso.DefaultWeights(), baseline.TypeBM25),
			baseline.Defaults(0)[1],
		},
		WriteIndividual: true,
	}

	report, err := r.Run(context.Background(), dataset(), sourcesRoot, opts)
	require.NoError(t, err)
	assert.Equal(t, "run-1", report.RunID)
	assert.Empty(t, report.Failures)

	require.Len(t, report.Summary, 2)
	assert.Equal(t, "Lasso-13BM25", report.Summary[0].Technique)
	assert.Equal(t, "BM25", report.Summary[1].Technique)
	for _, row := range report.Summary {
		assert.Equal(t, 2, row.Aggregate.QueryCount())
	}

	results := readCSV(t, filepath.Join(report.Dir, ResultsFile))
	require.Len(t, results, 5) // header plus two constraints per scenario
	assert.Equal(t, "00 Technique", results[0][0])

	summary := readCSV(t, filepath.Join(report.Dir, SummaryFile))
	require.Len(t, summary, 3)
	assert.Equal(t, "Lasso-13BM25", summary[1][0])
	assert.Equal(t, "BM25", summary[2][0])

	sample := readCSV(t, filepath.Join(report.Dir, SampleFile))
	require.NotEmpty(t, sample)
	assert.Equal(t, sampleHeader, sample[0])
}

type unknownScenario struct{}

func (unknownScenario) String() string { return "unknown" }

func TestRun_RecordsFailures(t *testing.T) {
	r := setupRunner(t)
	opts := &Options{
		Scenarios: []fmt.Stringer{baseline.Defaults(0)[0], unknownScenario{}},
	}

	report, err := r.Run(context.Background(), dataset(), sourcesRoot, opts)
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, "testdata__unknown", report.Failures[0].Scenario.String())
	require.Len(t, report.Summary, 1)
	assert.Equal(t, "TF-IDF", report.Summary[0].Technique)

	_, err = os.Stat(filepath.Join(report.Dir, SampleFile))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRun_Canceled(t *testing.T) {
	r := setupRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, dataset(), sourcesRoot, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCombination_Normalize(t *testing.T) {
	c := combination{weights: map[lasso.Component]int{lasso.ConstraintOperand: 3, lasso.OPBlock: 7}}
	n := c.normalize()
	assert.Equal(t, map[lasso.Component]int{lasso.ConstraintOperand: 4, lasso.OPBlock: 10}, n.weights)

	w := n.floatWeights()
	assert.InDelta(t, 0.4, w[lasso.ConstraintOperand], 1e-9)
	assert.InDelta(t, 1.0, w[lasso.OPBlock], 1e-9)
}

func TestCandidates(t *testing.T) {
	first := candidates(combination{weights: map[lasso.Component]int{}})
	// every single-component combination normalizes to weight 10
	require.Len(t, first, len(SearchedComponents))
	for _, c := range first {
		require.Len(t, c.weights, 1)
		assert.Equal(t, 10, c.weights[c.tested])
	}

	locked := combination{weights: map[lasso.Component]int{lasso.ConstraintOperand: 10}}
	second := candidates(locked)
	assert.Len(t, second, 4*11)
	for _, c := range second {
		assert.Equal(t, 10, max(c.weights[lasso.ConstraintOperand], c.weights[c.tested]))
		assert.NotEqual(t, lasso.ConstraintOperand, c.tested)
	}

	all := make(map[lasso.Component]int)
	for _, comp := range SearchedComponents {
		all[comp] = 5
	}
	assert.Empty(t, candidates(combination{weights: all}))
}

func TestCombination_String(t *testing.T) {
	c := combination{weights: map[lasso.Component]int{lasso.ConstraintOperand: 7}, tested: lasso.ConstraintOperand}
	assert.Equal(t, "CO-0.70 / Testing: CONSTRAINT_OPERAND", c.String())
}

func TestSearchWeights(t *testing.T) {
	r := setupRunner(t)
	r.cfg.HitsAtK = []int{1, 10}

	report, err := r.SearchWeights(context.Background(), dataset()[:1], sourcesRoot)
	require.NoError(t, err)
	require.NotEmpty(t, report.Results)
	require.NotEmpty(t, report.Best)
	assert.Len(t, report.Best, len(SearchedComponents))
	require.NoError(t, report.Best.Validate())

	for _, res := range report.Results {
		assert.LessOrEqual(t, res.Aggregate.PercentHits(objectiveK), report.BestPercentHits()+1e-9, res.Scenario)
		assert.Equal(t, 1, res.Aggregate.QueryCount())
	}

	rows := readCSV(t, filepath.Join(report.Dir, WeightsFile))
	require.Len(t, rows, len(report.Results)+1)
	assert.Equal(t, []string{"00 Scenario", "02 Round", "03 %HITS@20", "04 Average Rank", "05 Average Results"}, rows[0])
}

func TestBetter(t *testing.T) {
	empty := evaluation.NewAggregated([]int{objectiveK})
	assert.True(t, better(empty, nil))
	assert.False(t, better(empty, empty))
}
