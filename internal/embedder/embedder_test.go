package embedder

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lasso-mcp/internal/storage"
)

func TestComputeHash(t *testing.T) {
	assert.Equal(t, ComputeHash([]string{"a", "b"}), ComputeHash([]string{"a", "b"}))
	assert.NotEqual(t, ComputeHash([]string{"a", "b"}), ComputeHash([]string{"b", "a"}))
	assert.Len(t, ComputeHash(nil), 64)
}

func TestCache(t *testing.T) {
	t.Run("returns copies", func(t *testing.T) {
		cache := NewCache(3)
		cache.Set("h", &Embedding{Vector: []float32{1, 2}, Dimension: 2, Hash: "h"})

		got, ok := cache.Get("h")
		require.True(t, ok)
		got.Vector[0] = 99

		again, _ := cache.Get("h")
		assert.Equal(t, float32(1), again.Vector[0])
	})

	t.Run("eviction on capacity", func(t *testing.T) {
		cache := NewCache(2)
		cache.Set("h1", &Embedding{Hash: "h1"})
		cache.Set("h2", &Embedding{Hash: "h2"})
		cache.Set("h3", &Embedding{Hash: "h3"})

		assert.Equal(t, 2, cache.Size())
		_, ok := cache.Get("h1")
		assert.False(t, ok)
	})

	t.Run("clear", func(t *testing.T) {
		cache := NewCache(10)
		cache.Set("h1", &Embedding{})
		cache.Clear()
		assert.Equal(t, 0, cache.Size())
	})

	t.Run("concurrent access", func(t *testing.T) {
		cache := NewCache(100)
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					hash := ComputeHash([]string{string(rune('a' + id)), string(rune('a' + j%26))})
					cache.Set(hash, &Embedding{Hash: hash})
					cache.Get(hash)
				}
			}(i)
		}
		wg.Wait()
		assert.Greater(t, cache.Size(), 0)
	})
}

// fakePostings is a tiny term-document matrix
type fakePostings struct {
	keys  []string
	docs  []map[string]int
	field string
}

func (f *fakePostings) Len() int               { return len(f.docs) }
func (f *fakePostings) Key(ordinal int) string { return f.keys[ordinal] }

func (f *fakePostings) Terms(string) []string {
	seen := map[string]bool{}
	var out []string
	for _, d := range f.docs {
		for t := range d {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

func (f *fakePostings) DocFreq(_, term string) int {
	n := 0
	for _, d := range f.docs {
		if d[term] > 0 {
			n++
		}
	}
	return n
}

func (f *fakePostings) ForEachPosting(_ string, fn func(term string, ordinal, freq int)) {
	for i, d := range f.docs {
		for t, n := range d {
			fn(t, i, n)
		}
	}
}

func corpus() *fakePostings {
	return &fakePostings{
		keys: []string{"A.java:1-5", "B.java:1-5", "C.java:1-5"},
		docs: []map[string]int{
			{"order": 2, "quantity": 1},
			{"order": 1, "quantity": 2, "limit": 1},
			{"user": 1, "name": 2},
		},
	}
}

func TestTrainAndSearch(t *testing.T) {
	ctx := context.Background()
	model, err := Train(ctx, corpus(), "content", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, model.Dimension())
	assert.Equal(t, 3, model.Len())

	matches, err := model.Search(ctx, []string{"user"})
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "C.java:1-5", matches[0].Key)

	matches, err = model.Search(ctx, []string{"order", "quantity"})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(matches), 2)
	assert.ElementsMatch(t, []string{"A.java:1-5", "B.java:1-5"}, []string{matches[0].Key, matches[1].Key})

	// Unknown terms match nothing
	matches, err = model.Search(ctx, []string{"absent"})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestTrainDimensionCapped(t *testing.T) {
	model, err := Train(context.Background(), corpus(), "content", 300)
	require.NoError(t, err)
	assert.Equal(t, 3, model.Dimension())
}

func TestTrainErrors(t *testing.T) {
	_, err := Train(context.Background(), corpus(), "content", 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Train(context.Background(), &fakePostings{}, "content", 2)
	assert.ErrorIs(t, err, ErrEmptyCorpus)
}

func TestEmbedCachesQueries(t *testing.T) {
	ctx := context.Background()
	model, err := Train(ctx, corpus(), "content", 2)
	require.NoError(t, err)

	_, err = model.Embed(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	first, err := model.Embed(ctx, []string{"order", "absent"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Known)
	assert.Equal(t, 1, model.cache.Size())

	second, err := model.Embed(ctx, []string{"order", "absent"})
	require.NoError(t, err)
	assert.Equal(t, first.Vector, second.Vector)
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	index := &storage.Index{Name: "LSI_acme_METHOD_2", System: "acme", Kind: storage.IndexKindLSI, Fingerprint: "lsi"}
	require.NoError(t, store.CreateIndex(ctx, index))

	model, err := Train(ctx, corpus(), "content", 2)
	require.NoError(t, err)
	require.NoError(t, model.Save(ctx, store, index.ID))

	loaded, err := Load(ctx, store, index.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Dimension(), loaded.Dimension())

	want, err := model.Search(ctx, []string{"order"})
	require.NoError(t, err)
	got, err := loaded.Search(ctx, []string{"order"})
	require.NoError(t, err)
	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.Equal(t, want[i].Key, got[i].Key)
		assert.InDelta(t, want[i].Score, got[i].Score, 1e-5)
	}
}
