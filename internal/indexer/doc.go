// Package indexer coordinates index construction for analyzed systems.
//
// A Coordinator owns the path from a source tree to searchable indexes:
//
//  1. Project: detect patterns (or load them from the cache), parse every
//     Java file once for its text spans, and build the call graph.
//  2. Corpus: index the detected patterns (LASSO_<system>).
//  3. Baseline: index the text blocks of the spans for one technique
//     (<TYPE>_<system>_<OUTPUT>).
//
// # Basic Usage
//
//	c := indexer.New(store, cfg, logger)
//
//	p, err := c.Project(ctx, "acme", "/src/acme")
//	ix, err := c.Lasso(ctx, p, lasso.MethodConfig(lasso.DefaultWeights(), baseline.TypeBM25))
//	ranking, err := ix.Search(ctx, constraint)
//
// # Concurrency
//
// Every build step holds a mutex keyed by the index name, so concurrent
// scenarios that share an index wait for the first build and reuse it.
// Builds of different names run in parallel. Built indexes are read-only
// and safe to search from many goroutines.
//
// IndexProject is the entry point for user-triggered builds. It holds a
// non-blocking per-system IndexLock and returns ErrIndexingInProgress
// instead of queueing behind a running build:
//
//	stats, err := c.IndexProject(ctx, "acme", dir, &indexer.Options{Force: true})
//	if errors.Is(err, indexer.ErrIndexingInProgress) {
//	    // try again later
//	}
//
// # Caching
//
// Detected patterns and built indexes are persisted in storage and reused
// by later processes unless the configuration sets IgnoreCache. Options.Force
// and Invalidate drop them for one system.
package indexer
