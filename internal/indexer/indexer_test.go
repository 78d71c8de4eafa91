package indexer

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lasso-mcp/internal/baseline"
	"github.com/dshills/lasso-mcp/internal/chunker"
	"github.com/dshills/lasso-mcp/internal/config"
	"github.com/dshills/lasso-mcp/internal/lasso"
	"github.com/dshills/lasso-mcp/internal/storage"
	"github.com/dshills/lasso-mcp/pkg/types"
)

var sourcesDir = filepath.Join("..", "parser", "testdata")

var termBaselines = []baseline.Config{
	{Type: baseline.TypeTFIDF, Input: baseline.InputContext, Output: chunker.GranularityMethod},
	{Type: baseline.TypeBM25, Input: baseline.InputContext, Output: chunker.GranularityMethod},
}

func setupCoordinator(t *testing.T) (*Coordinator, storage.Storage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Default()
	cfg.Workers = 2
	return New(store, cfg, nil), store
}

func TestProject_ParsesOnce(t *testing.T) {
	c, _ := setupCoordinator(t)
	ctx := context.Background()

	p, err := c.Project(ctx, "acme", sourcesDir)
	require.NoError(t, err)
	assert.Equal(t, "acme", p.System)
	assert.NotZero(t, p.Repository.Len())
	assert.Len(t, p.Files, 2, "hidden and build directories are skipped")
	assert.NotEmpty(t, p.Spans())
	assert.True(t, p.Graph.HasMethod(types.MethodKey("Order", "validate")))

	again, err := c.Project(ctx, "acme", sourcesDir)
	require.NoError(t, err)
	assert.Same(t, p, again)
}

func TestIndexProject(t *testing.T) {
	c, store := setupCoordinator(t)
	ctx := context.Background()

	stats, err := c.IndexProject(ctx, "acme", sourcesDir, &Options{Baselines: termBaselines})
	require.NoError(t, err)
	assert.Equal(t, "acme", stats.System)
	assert.Equal(t, 2, stats.FilesParsed)
	assert.NotZero(t, stats.Patterns)
	assert.NotZero(t, stats.IndexedPatterns)
	assert.NotZero(t, stats.PatternsByType[types.PatternBinaryComparison])
	assert.Equal(t, []string{"LASSO_acme", "BM25_acme_METHOD", "TFIDF_acme_METHOD"}, stats.Indexes)

	indexes, err := store.ListIndexes(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, indexes, 3)

	records, err := store.ListPatterns(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, records, stats.Patterns)
}

func TestIndexProject_DefaultBaselines(t *testing.T) {
	c, _ := setupCoordinator(t)

	stats, err := c.IndexProject(context.Background(), "acme", sourcesDir, nil)
	require.NoError(t, err)
	assert.Contains(t, stats.Indexes, "LSI_acme_METHOD_300")
	assert.Len(t, stats.Indexes, 4)
}

func TestIndexProject_InProgress(t *testing.T) {
	c, _ := setupCoordinator(t)

	lock := c.running.get("acme")
	require.True(t, lock.TryAcquire())
	defer lock.Release()

	_, err := c.IndexProject(context.Background(), "acme", sourcesDir, nil)
	assert.ErrorIs(t, err, ErrIndexingInProgress)

	_, err = c.IndexProject(context.Background(), "other", sourcesDir, &Options{Baselines: termBaselines})
	assert.NoError(t, err, "other systems are not blocked")
}

func TestIndexProject_Force(t *testing.T) {
	c, _ := setupCoordinator(t)
	ctx := context.Background()

	_, err := c.IndexProject(ctx, "acme", sourcesDir, &Options{Baselines: termBaselines})
	require.NoError(t, err)
	first, err := c.Project(ctx, "acme", sourcesDir)
	require.NoError(t, err)

	_, err = c.IndexProject(ctx, "acme", sourcesDir, &Options{Baselines: termBaselines, Force: true})
	require.NoError(t, err)
	second, err := c.Project(ctx, "acme", sourcesDir)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, first.Repository.Len(), second.Repository.Len())
}

func TestInvalidate(t *testing.T) {
	c, store := setupCoordinator(t)
	ctx := context.Background()

	_, err := c.IndexProject(ctx, "acme", sourcesDir, &Options{Baselines: termBaselines})
	require.NoError(t, err)
	assert.True(t, c.Loaded("acme"))
	require.NoError(t, c.Invalidate(ctx, "acme"))
	assert.False(t, c.Loaded("acme"))

	indexes, err := store.ListIndexes(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, indexes)
	records, err := store.ListPatterns(ctx, "acme")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestBaseline_BuiltOnceUnderConcurrency(t *testing.T) {
	c, _ := setupCoordinator(t)
	ctx := context.Background()
	p, err := c.Project(ctx, "acme", sourcesDir)
	require.NoError(t, err)

	const callers = 8
	got := make([]baseline.Index, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], errs[i] = c.Baseline(ctx, p, termBaselines[1])
		}(i)
	}
	wg.Wait()

	for i := range got {
		require.NoError(t, errs[i])
		assert.True(t, got[0] == got[i], "every caller shares the first build")
	}
}

func TestLasso(t *testing.T) {
	c, _ := setupCoordinator(t)
	ctx := context.Background()
	p, err := c.Project(ctx, "acme", sourcesDir)
	require.NoError(t, err)

	ix, err := c.Lasso(ctx, p, lasso.MethodConfig(lasso.DefaultWeights(), baseline.TypeBM25))
	require.NoError(t, err)

	ranking, err := ix.Search(ctx, &types.Constraint{
		ID:       "c1",
		System:   "acme",
		Type:     types.ConstraintValueComparison,
		Text:     "quantity must be positive",
		Context:  "order quantity",
		Operands: []string{"quantity"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, ranking.Results)
	for i, r := range ranking.Results {
		assert.Equal(t, i+1, r.Rank)
	}

	corpus, err := c.Corpus(ctx, p)
	require.NoError(t, err)
	again, err := c.Corpus(ctx, p)
	require.NoError(t, err)
	assert.Same(t, corpus, again)
}

func TestNameLocks(t *testing.T) {
	locks := newNameLocks()
	unlock := locks.lock("a")

	acquired := make(chan struct{})
	go func() {
		defer locks.lock("a")()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second holder entered while the first held the lock")
	case <-time.After(20 * time.Millisecond):
	}

	locks.lock("b")()
	unlock()
	<-acquired
}

func TestIndexLock(t *testing.T) {
	var l IndexLock
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
	l.Release()
	assert.True(t, l.TryAcquire())
}
