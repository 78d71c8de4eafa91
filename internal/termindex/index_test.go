package termindex

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lasso-mcp/internal/storage"
	"github.com/dshills/lasso-mcp/pkg/types"
)

var testSchema = Schema{
	IDField: "id",
	Fields: []Field{
		{Name: "id", Kind: FieldStored},
		{Name: "name", Kind: FieldIdentifier},
		{Name: "body", Kind: FieldText},
	},
}

func testDocs() []Document {
	return []Document{
		{Fields: map[string]string{"id": "a", "name": "order", "body": "null check order quantity"}},
		{Fields: map[string]string{"id": "b", "name": "order quantity", "body": "quantity quantity limit"}},
		{Fields: map[string]string{"id": "c", "name": "user", "body": "user name empty"}},
	}
}

func setupStore(t *testing.T) *storage.SQLiteStorage {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testSpec(sim Similarity, op Operator) Spec {
	return Spec{Name: "test", System: "acme", Kind: storage.IndexKindBaseline, Schema: testSchema, Similarity: sim, Operator: op}
}

func build(t *testing.T, spec Spec) *Index {
	ix, err := buildInMemory(spec, testDocs())
	require.NoError(t, err)
	return ix
}

func keys(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Key
	}
	return out
}

func TestSearchCount(t *testing.T) {
	ix := build(t, testSpec(Count{}, Or))

	hits, err := ix.Search("quantity null", "body")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys(hits))
	assert.Equal(t, 2.0, hits[0].Score)
	assert.Equal(t, 1.0, hits[1].Score, "count ignores term frequency")

	// Ranks are contiguous from 1
	for i, h := range hits {
		assert.Equal(t, i+1, h.Rank)
	}
	assert.Equal(t, map[string]string{"id": "a"}, hits[0].Stored)
}

func TestSearchRepeatedTerms(t *testing.T) {
	ix := build(t, testSpec(Count{}, Or))

	hits, err := ix.Search("order order", "name")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 2.0, hits[0].Score)
}

func TestSearchTieBreakByInsertionOrder(t *testing.T) {
	ix := build(t, testSpec(Count{}, Or))

	hits, err := ix.Search("order", "name")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys(hits))
}

func TestSearchAnd(t *testing.T) {
	ix := build(t, testSpec(Count{}, And))

	hits, err := ix.Search("quantity null", "body")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys(hits))
}

func TestSearchInverseLength(t *testing.T) {
	ix := build(t, testSpec(InverseLength{}, Or))

	hits, err := ix.Search("order", "name")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].Key)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.InDelta(t, 0.5, hits[1].Score, 1e-9)
}

func TestSearchClassicTFIDF(t *testing.T) {
	ix := build(t, testSpec(ClassicTFIDF{}, Or))

	hits, err := ix.Search("quantity", "body")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	idf := 1 + math.Log(4.0/3.0)
	assert.Equal(t, "b", hits[0].Key, "higher term frequency wins")
	assert.InDelta(t, math.Sqrt(2)*idf*idf/math.Sqrt(3), hits[0].Score, 1e-9)
	assert.InDelta(t, idf*idf/2, hits[1].Score, 1e-9)
}

func TestSearchBM25(t *testing.T) {
	ix := build(t, testSpec(DefaultBM25(), Or))

	hits, err := ix.Search("empty", "body")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c", hits[0].Key)
	assert.Greater(t, hits[0].Score, 0.0)
}

func TestSearchErrors(t *testing.T) {
	ix := build(t, testSpec(Count{}, Or))

	_, err := ix.Search("a", "missing")
	assert.Error(t, err)

	_, err = ix.Search("a", "id")
	assert.Error(t, err, "stored fields are not searchable")

	hits, err := ix.Search("   ", "body")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBuildMissingIDIsInvariant(t *testing.T) {
	_, err := buildInMemory(testSpec(Count{}, Or), []Document{{Fields: map[string]string{"body": "x"}}})
	require.Error(t, err)
	assert.True(t, types.IsInvariant(err))
}

func TestBuilderPersistsAndReopens(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	spec := testSpec(Count{}, Or)

	hookRan := false
	builder := NewBuilder(store, nil, false)
	ix, err := builder.Build(ctx, spec, testDocs(), func(ctx context.Context, tx storage.Tx, index *storage.Index) error {
		hookRan = true
		assert.Greater(t, index.ID, int64(0))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, hookRan)
	assert.Equal(t, 3, ix.Len())

	fresh, err := builder.Fresh(ctx, spec)
	require.NoError(t, err)
	assert.True(t, fresh)

	// A second build opens the persisted index and ignores the new documents
	reopened, err := builder.Build(ctx, spec, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, reopened.Len())

	want, err := ix.Search("quantity null", "body")
	require.NoError(t, err)
	got, err := reopened.Search("quantity null", "body")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestBuilderRebuildsStaleOrIgnoredCache(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, err := NewBuilder(store, nil, false).Build(ctx, testSpec(Count{}, Or), testDocs())
	require.NoError(t, err)

	// Different similarity makes the persisted index stale
	fresh, err := NewBuilder(store, nil, false).Fresh(ctx, testSpec(DefaultBM25(), Or))
	require.NoError(t, err)
	assert.False(t, fresh)

	ix, err := NewBuilder(store, nil, true).Build(ctx, testSpec(Count{}, Or), testDocs()[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, ix.Len())

	record, err := store.GetIndex(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, 1, record.DocumentCount)
}

func TestBuilderFailedHookLeavesNoIndex(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, err := NewBuilder(store, nil, false).Build(ctx, testSpec(Count{}, Or), testDocs(),
		func(context.Context, storage.Tx, *storage.Index) error { return assert.AnError })
	require.ErrorIs(t, err, assert.AnError)

	_, err = store.GetIndex(ctx, "test")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTermsAndPostings(t *testing.T) {
	ix := build(t, testSpec(Count{}, Or))

	assert.Equal(t, []string{"order", "quantity", "user"}, ix.Terms("name"))
	assert.Equal(t, 2, ix.DocFreq("body", "quantity"))

	total := 0
	ix.ForEachPosting("body", func(term string, ordinal, freq int) {
		if term == "quantity" && ordinal == 1 {
			assert.Equal(t, 2, freq)
		}
		total += freq
	})
	assert.Equal(t, 10, total)
}
