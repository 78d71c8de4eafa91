package baseline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lasso-mcp/internal/chunker"
	"github.com/dshills/lasso-mcp/internal/parser"
	"github.com/dshills/lasso-mcp/internal/storage"
	"github.com/dshills/lasso-mcp/pkg/types"
)

func setupStore(t *testing.T) *storage.SQLiteStorage {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func fixtureSpans(t *testing.T) []types.TextSpan {
	t.Helper()
	p := parser.New()
	var spans []types.TextSpan
	for _, name := range []string{"Order.java", "Helper.java"} {
		r, err := p.ParseFile(context.Background(), filepath.Join("..", "parser", "testdata", "org", "acme", name))
		require.NoError(t, err)
		spans = append(spans, r.Spans...)
	}
	return spans
}

func assertContiguous(t *testing.T, results []Result) {
	t.Helper()
	for i, r := range results {
		assert.Equal(t, i+1, r.Rank)
		assert.NoError(t, r.Entity.Validate())
	}
}

func TestIndexName(t *testing.T) {
	assert.Equal(t, "TFIDF_shop_METHOD", IndexName("shop", NewConfig(TypeTFIDF, chunker.GranularityMethod)))
	assert.Equal(t, "LSI_shop_LINE_300", IndexName("shop", NewConfig(TypeLSI, chunker.GranularityLine)))
}

func TestDefaults(t *testing.T) {
	defaults := Defaults(0)
	require.Len(t, defaults, 3)
	names := make([]string, len(defaults))
	for i, c := range defaults {
		names[i] = IndexName("shop", c)
	}
	assert.Equal(t, []string{"TFIDF_shop_METHOD", "BM25_shop_METHOD", "LSI_shop_METHOD_300"}, names)
	assert.Equal(t, InputOperands, defaults[2].Input)
}

func TestParseType(t *testing.T) {
	got, err := ParseType("bm25")
	require.NoError(t, err)
	assert.Equal(t, TypeBM25, got)
	assert.Equal(t, "Lucene", TypeLucene.PrettyName())

	_, err = ParseType("word2vec")
	assert.Error(t, err)
}

func TestInputExtract(t *testing.T) {
	c := &types.Constraint{Text: "quantity must be positive", Context: "Order", Operands: []string{"quantity", "0"}}
	assert.Equal(t, "quantity must be positive", InputText.Extract(c))
	assert.Equal(t, "quantity 0", InputOperands.Extract(c))
	assert.Equal(t, "Order", InputContext.Extract(c))
}

func TestBuild_TermIndexes(t *testing.T) {
	spans := fixtureSpans(t)
	for _, typ := range []Type{TypeTFIDF, TypeLucene, TypeBM25} {
		t.Run(string(typ), func(t *testing.T) {
			store := setupStore(t)
			ctx := context.Background()

			ix, err := NewBuilder(store, nil, nil, false).Build(ctx, "acme", NewConfig(typ, chunker.GranularityMethod), spans)
			require.NoError(t, err)
			assert.Equal(t, typ, ix.Config().Type)

			results, err := ix.Search(ctx, &types.Constraint{Text: "quantity must be positive"})
			require.NoError(t, err)
			require.NotEmpty(t, results)
			assertContiguous(t, results)
			assert.Contains(t, LineSet(results), "org/acme/Order.java:24")
		})
	}
}

func TestBuild_ReusesPersistedIndex(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	cfg := NewConfig(TypeBM25, chunker.GranularityStatement)

	first, err := NewBuilder(store, nil, nil, false).Build(ctx, "acme", cfg, fixtureSpans(t))
	require.NoError(t, err)
	want, err := first.SearchText(ctx, "status new")
	require.NoError(t, err)

	second, err := NewBuilder(store, nil, nil, false).Build(ctx, "acme", cfg, nil)
	require.NoError(t, err)
	got, err := second.SearchText(ctx, "status new")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	record, err := store.GetIndex(ctx, "BM25_acme_STATEMENT")
	require.NoError(t, err)
	assert.Equal(t, storage.IndexKindBaseline, record.Kind)
}

func TestBuild_LSI(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	cfg := NewConfig(TypeLSI, chunker.GranularityMethod)
	cfg.Dimension = 2

	ix, err := NewBuilder(store, nil, nil, false).Build(ctx, "acme", cfg, fixtureSpans(t))
	require.NoError(t, err)

	results, err := ix.SearchText(ctx, "quantity status")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assertContiguous(t, results)

	none, err := ix.SearchText(ctx, "the of")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = store.GetIndex(ctx, "LSI_acme_METHOD_2_temp")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	reopened, err := NewBuilder(store, nil, nil, false).Build(ctx, "acme", cfg, nil)
	require.NoError(t, err)
	again, err := reopened.SearchText(ctx, "quantity status")
	require.NoError(t, err)
	require.Len(t, again, len(results))
	for i := range results {
		assert.Equal(t, results[i].Entity, again[i].Entity)
		assert.InDelta(t, results[i].Score, again[i].Score, 1e-5)
	}
}

func TestBuild_InvalidConfig(t *testing.T) {
	store := setupStore(t)
	b := NewBuilder(store, nil, nil, false)

	cfg := NewConfig(TypeLSI, chunker.GranularityMethod)
	cfg.Dimension = 0
	_, err := b.Build(context.Background(), "acme", cfg, nil)
	assert.Error(t, err)

	_, err = b.Build(context.Background(), "acme", Config{Type: "X", Input: InputText, Output: chunker.GranularityLine}, nil)
	assert.Error(t, err)
}

func TestBoosts(t *testing.T) {
	results := []Result{
		{Entity: types.TextBlock{File: "A.java", LineBegin: 10, LineEnd: 12}, Rank: 1},
		{Entity: types.TextBlock{File: "A.java", LineBegin: 12, LineEnd: 13}, Rank: 4},
	}
	boosts := Boosts(results)
	assert.Len(t, boosts, 4)
	assert.InDelta(t, 1.0, boosts["A.java:12"], 1e-9)
	assert.InDelta(t, 0.5, boosts["A.java:13"], 1e-9)
	assert.Zero(t, boosts["A.java:9"])

	assert.Len(t, LineSet(results), 4)
}
