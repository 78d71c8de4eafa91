package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	return storage
}

func createTestIndex(t *testing.T, s Storage, name string) *Index {
	index := &Index{
		Name:        name,
		System:      "acme",
		Kind:        IndexKindLasso,
		Fingerprint: "id:stored|window:text",
	}
	require.NoError(t, s.CreateIndex(context.Background(), index))
	return index
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	assert.NotNil(t, storage.db)
}

func TestCreateIndex(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	index := createTestIndex(t, storage, "acme__Lasso-13")
	assert.Greater(t, index.ID, int64(0))

	// Try to create duplicate - should fail
	err := storage.CreateIndex(ctx, &Index{Name: "acme__Lasso-13", System: "acme", Kind: IndexKindLasso})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestGetIndex(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	index := createTestIndex(t, storage, "TFIDF_acme_METHOD")

	retrieved, err := storage.GetIndex(ctx, "TFIDF_acme_METHOD")
	require.NoError(t, err)
	assert.Equal(t, index.ID, retrieved.ID)
	assert.Equal(t, IndexKindLasso, retrieved.Kind)
	assert.Equal(t, "acme", retrieved.System)

	_, err = storage.GetIndex(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateIndex(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	index := createTestIndex(t, storage, "idx")
	index.DocumentCount = 42
	index.Fingerprint = "changed"
	require.NoError(t, storage.UpdateIndex(ctx, index))

	retrieved, err := storage.GetIndex(ctx, "idx")
	require.NoError(t, err)
	assert.Equal(t, 42, retrieved.DocumentCount)
	assert.Equal(t, "changed", retrieved.Fingerprint)

	assert.ErrorIs(t, storage.UpdateIndex(ctx, &Index{ID: 999}), ErrNotFound)
}

func TestDeleteIndexCascades(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	index := createTestIndex(t, storage, "idx")

	doc := &Document{IndexID: index.ID, Ordinal: 0, Key: "a", Stored: map[string]string{"id": "a"}, FieldLengths: map[string]int{"window": 2}}
	require.NoError(t, storage.InsertDocument(ctx, doc))
	require.NoError(t, storage.InsertPostings(ctx, []Posting{{IndexID: index.ID, Field: "window", Term: "x", Ordinal: 0, Frequency: 2}}))
	require.NoError(t, storage.UpsertVector(ctx, &Vector{IndexID: index.ID, Kind: VectorTerm, Key: "x", Values: []float32{1, 2}}))
	require.NoError(t, storage.UpsertPatternStats(ctx, &PatternStats{IndexID: index.ID, PatternID: "p", OperandSizes: map[int]int{1: 1}}))

	require.NoError(t, storage.DeleteIndex(ctx, "idx"))

	docs, err := storage.ListDocuments(ctx, index.ID)
	require.NoError(t, err)
	assert.Empty(t, docs)

	postings, err := storage.ListPostings(ctx, index.ID)
	require.NoError(t, err)
	assert.Empty(t, postings)

	vectors, err := storage.ListVectors(ctx, index.ID, VectorTerm)
	require.NoError(t, err)
	assert.Empty(t, vectors)

	stats, err := storage.ListPatternStats(ctx, index.ID)
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestDocumentsAndPostings(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	index := createTestIndex(t, storage, "idx")

	for i, key := range []string{"b", "a"} {
		doc := &Document{
			IndexID:      index.ID,
			Ordinal:      i,
			Key:          key,
			Stored:       map[string]string{"id": key},
			FieldLengths: map[string]int{"window": i + 1},
		}
		require.NoError(t, storage.InsertDocument(ctx, doc))
		assert.Greater(t, doc.ID, int64(0))
	}

	docs, err := storage.ListDocuments(ctx, index.ID)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[0].Key, "documents come back in ordinal order")
	assert.Equal(t, map[string]string{"id": "a"}, docs[1].Stored)
	assert.Equal(t, 2, docs[1].FieldLengths["window"])

	require.NoError(t, storage.InsertPostings(ctx, []Posting{
		{IndexID: index.ID, Field: "window", Term: "null", Ordinal: 1, Frequency: 1},
		{IndexID: index.ID, Field: "window", Term: "null", Ordinal: 0, Frequency: 3},
	}))
	// Re-inserting a posting overwrites its frequency
	require.NoError(t, storage.InsertPostings(ctx, []Posting{
		{IndexID: index.ID, Field: "window", Term: "null", Ordinal: 1, Frequency: 5},
	}))

	postings, err := storage.ListPostings(ctx, index.ID)
	require.NoError(t, err)
	require.Len(t, postings, 2)
	assert.Equal(t, 0, postings[0].Ordinal)
	assert.Equal(t, 3, postings[0].Frequency)
	assert.Equal(t, 5, postings[1].Frequency)
}

func TestVectors(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	index := createTestIndex(t, storage, "LSI_acme_METHOD_2")

	require.NoError(t, storage.UpsertVector(ctx, &Vector{IndexID: index.ID, Kind: VectorTerm, Key: "null", Values: []float32{0.5, -1}}))
	require.NoError(t, storage.UpsertVector(ctx, &Vector{IndexID: index.ID, Kind: VectorDocument, Key: "F.java:1-3", Values: []float32{1, 0}}))
	require.NoError(t, storage.UpsertVector(ctx, &Vector{IndexID: index.ID, Kind: VectorTerm, Key: "null", Values: []float32{0.25, 2}}))

	terms, err := storage.ListVectors(ctx, index.ID, VectorTerm)
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, []float32{0.25, 2}, terms[0].Values)

	docs, err := storage.ListVectors(ctx, index.ID, VectorDocument)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "F.java:1-3", docs[0].Key)
}

func TestPatternStats(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	index := createTestIndex(t, storage, "idx")

	require.NoError(t, storage.UpsertPatternStats(ctx, &PatternStats{
		IndexID: index.ID, PatternID: "NULL_CHECK;F.java:1,1-1,1", OperandSizes: map[int]int{1: 3, 2: 1},
	}))

	stats, err := storage.ListPatternStats(ctx, index.ID)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, map[int]int{1: 3, 2: 1}, stats[0].OperandSizes)
}

func TestReplacePatterns(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	first := []*PatternRecord{
		{PatternID: "a", Type: "NULL_CHECK", PackagePath: "F.java", Payload: []byte(`{"type":"NULL_CHECK"}`)},
		{PatternID: "b", Type: "IF_CHAIN", PackagePath: "G.java", Payload: []byte(`{"type":"IF_CHAIN"}`)},
	}
	require.NoError(t, storage.ReplacePatterns(ctx, "acme", first))
	require.NoError(t, storage.ReplacePatterns(ctx, "other", first[:1]))

	records, err := storage.ListPatterns(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "acme", records[0].System)
	assert.JSONEq(t, `{"type":"NULL_CHECK"}`, string(records[0].Payload))

	// Replacing drops the previous set of that system only
	require.NoError(t, storage.ReplacePatterns(ctx, "acme", first[1:]))
	records, err = storage.ListPatterns(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "b", records[0].PatternID)

	records, err = storage.ListPatterns(ctx, "other")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestTransaction(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()

	t.Run("rollback discards writes", func(t *testing.T) {
		tx, err := storage.BeginTx(ctx)
		require.NoError(t, err)
		createTestIndex(t, tx, "rolled-back")
		require.NoError(t, tx.Rollback())

		_, err = storage.GetIndex(ctx, "rolled-back")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("commit keeps writes", func(t *testing.T) {
		tx, err := storage.BeginTx(ctx)
		require.NoError(t, err)
		index := createTestIndex(t, tx, "committed")
		require.NoError(t, tx.InsertDocument(ctx, &Document{IndexID: index.ID, Key: "k", Stored: map[string]string{}, FieldLengths: map[string]int{}}))

		// Reads inside the transaction see its writes
		docs, err := tx.ListDocuments(ctx, index.ID)
		require.NoError(t, err)
		assert.Len(t, docs, 1)
		require.NoError(t, tx.Commit())

		retrieved, err := storage.GetIndex(ctx, "committed")
		require.NoError(t, err)
		assert.Equal(t, index.ID, retrieved.ID)
	})

	t.Run("nested transactions rejected", func(t *testing.T) {
		tx, err := storage.BeginTx(ctx)
		require.NoError(t, err)
		defer func() { _ = tx.Rollback() }()

		_, err = tx.BeginTx(ctx)
		assert.Error(t, err)
	})
}

func TestGetStatus(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()

	status, err := storage.GetStatus(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, status.Health.DatabaseAccessible)
	assert.False(t, status.Health.PatternsCached)
	assert.False(t, status.Health.IndexesBuilt)

	index := createTestIndex(t, storage, "idx")
	index.DocumentCount = 7
	require.NoError(t, storage.UpdateIndex(ctx, index))
	require.NoError(t, storage.UpsertVector(ctx, &Vector{IndexID: index.ID, Kind: VectorDocument, Key: "d", Values: []float32{1}}))
	require.NoError(t, storage.ReplacePatterns(ctx, "acme", []*PatternRecord{{PatternID: "p", Type: "NULL_CHECK", PackagePath: "F.java", Payload: []byte("{}")}}))

	status, err = storage.GetStatus(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, status.PatternsCount)
	assert.Equal(t, 7, status.DocumentsCount)
	assert.Equal(t, 1, status.VectorsCount)
	assert.Len(t, status.Indexes, 1)
	assert.True(t, status.Health.IndexesBuilt)
}
