// Package searcher traces ad-hoc constraints against indexed systems.
//
// A Tracer turns a constraint into ranked code locations with one of three
// techniques:
//   - method: Lasso results regrouped by enclosing method (default)
//   - pattern: Lasso results at pattern level, with operands and score
//     components
//   - baseline: the underlying text-retrieval baseline alone
//
// # Basic Usage
//
//	t := searcher.NewTracer(coordinator, 0)
//
//	resp, err := t.Trace(ctx, searcher.TraceRequest{
//	    System:     "acme",
//	    SourcesDir: "/src/acme",
//	    Constraint: &types.Constraint{
//	        Type:     types.ConstraintValueComparison,
//	        Text:     "quantity must be positive",
//	        Operands: []string{"quantity"},
//	    },
//	    UseCache: true,
//	})
//
//	for _, h := range resp.Results {
//	    fmt.Printf("[%d] %s:%d-%d %s\n", h.Rank, h.File, h.LineBegin, h.LineEnd, h.Components)
//	}
//
// # Caching
//
// Responses are kept in an LRU keyed by a SHA-256 of the request (system,
// mode, baseline, limit, constraint fields and weights) and expire after
// CacheTTL. Hits are deep copies. InvalidateCache purges everything and is
// called after a system is re-indexed.
package searcher
