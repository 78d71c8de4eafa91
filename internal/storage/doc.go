// Package storage provides SQLite-based persistence for the retrieval caches.
//
// The storage layer manages:
//   - Term indexes (Lasso pattern indexes and baseline text indexes)
//   - Indexed documents and their stored fields
//   - Inverted-index postings
//   - Latent-semantic term and document vectors
//   - Per-pattern operand statistics
//   - The detected pattern cache of each analyzed system
//
// # Database Schema
//
// Tables:
//   - term_indexes: one row per named index, with a schema fingerprint
//   - documents: ordinal, key, stored fields and field lengths per document
//   - postings: (field, term, document ordinal) -> frequency
//   - vectors: LSI vectors stored as little-endian float32 blobs
//   - pattern_stats: pattern ID -> operand sizes
//   - patterns: JSON encoded pattern instances per system
//
// Deleting an index cascades to its documents, postings, vectors and stats.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("/tmp/lasso.cache/lasso.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	index := &storage.Index{Name: "TFIDF_acme_METHOD", System: "acme", Kind: storage.IndexKindBaseline}
//	if err := store.CreateIndex(ctx, index); err != nil {
//	    return err
//	}
//
// # Transactions
//
// Index builds write inside one transaction so that a failed build leaves
// no partial index behind:
//
//	tx, err := store.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	_ = tx.CreateIndex(ctx, index)
//	_ = tx.InsertDocument(ctx, doc)
//	_ = tx.InsertPostings(ctx, postings)
//
//	if err := tx.Commit(); err != nil {
//	    return err
//	}
//
// # Build Modes
//
// The default build uses modernc.org/sqlite (pure Go). Building with the
// sqlite_cgo tag switches to github.com/mattn/go-sqlite3. BuildMode reports
// which driver is linked.
package storage
