// Package callgraph builds a static method-level call graph of a Java
// project. Nodes are "Class:method" keys; edges are resolved by name and
// are best effort.
package callgraph

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/lasso-mcp/internal/parser"
	"github.com/dshills/lasso-mcp/pkg/types"
)

// Graph is a directed caller -> callee graph. It is safe for concurrent
// reads once built.
type Graph struct {
	methods map[string]struct{}
	callees map[string]map[string]struct{}
	callers map[string]map[string]struct{}
}

// New creates an empty graph
func New() *Graph {
	return &Graph{
		methods: make(map[string]struct{}),
		callees: make(map[string]map[string]struct{}),
		callers: make(map[string]map[string]struct{}),
	}
}

// AddMethod registers a node
func (g *Graph) AddMethod(key string) {
	g.methods[key] = struct{}{}
}

// AddEdge records that caller invokes callee. Self calls are ignored.
func (g *Graph) AddEdge(caller, callee string) {
	if caller == callee {
		return
	}
	g.AddMethod(caller)
	g.AddMethod(callee)
	if g.callees[caller] == nil {
		g.callees[caller] = make(map[string]struct{})
	}
	g.callees[caller][callee] = struct{}{}
	if g.callers[callee] == nil {
		g.callers[callee] = make(map[string]struct{})
	}
	g.callers[callee][caller] = struct{}{}
}

// HasMethod reports whether key is a node of the graph
func (g *Graph) HasMethod(key string) bool {
	_, ok := g.methods[key]
	return ok
}

// Callers returns the direct predecessors of a method, sorted
func (g *Graph) Callers(key string) []string {
	return sortedKeys(g.callers[key])
}

// Callees returns the direct successors of a method, sorted
func (g *Graph) Callees(key string) []string {
	return sortedKeys(g.callees[key])
}

// Len returns the number of nodes
func (g *Graph) Len() int {
	return len(g.methods)
}

// EdgeCount returns the number of edges
func (g *Graph) EdgeCount() int {
	n := 0
	for _, c := range g.callees {
		n += len(c)
	}
	return n
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build creates a graph from parsed files. Calls are resolved in order:
// the caller's own class for unqualified or this-qualified calls, a class
// named like the receiver for static calls, then every method with the
// callee's name. Unresolved calls are logged at Debug and dropped.
func Build(results []*types.ParseResult, logger hclog.Logger) *Graph {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	g := New()
	byName := make(map[string][]string)
	for _, r := range results {
		for _, m := range r.Methods {
			key := m.Key()
			if !g.HasMethod(key) {
				byName[m.Name] = append(byName[m.Name], key)
			}
			g.AddMethod(key)
		}
	}

	unresolved := 0
	for _, r := range results {
		for _, call := range r.Calls {
			targets := g.resolve(call, byName)
			if len(targets) == 0 {
				unresolved++
				logger.Debug("unresolved call", "file", r.PackagePath, "line", call.Line,
					"caller", call.Caller, "callee", call.Callee, "scope", call.Scope)
				continue
			}
			for _, target := range targets {
				g.AddEdge(call.Caller, target)
			}
		}
	}

	logger.Debug("call graph built", "methods", g.Len(), "edges", g.EdgeCount(), "unresolved", unresolved)
	return g
}

func (g *Graph) resolve(call types.CallSite, byName map[string][]string) []string {
	if call.Callee == types.ConstructorName {
		key := types.MethodKey(call.Scope, types.ConstructorName)
		if g.HasMethod(key) {
			return []string{key}
		}
		return nil
	}

	if call.Scope == "" || call.Scope == "this" || call.Scope == "super" {
		class := call.Caller
		if i := strings.LastIndex(class, ":"); i >= 0 {
			class = class[:i]
		}
		if key := types.MethodKey(class, call.Callee); g.HasMethod(key) {
			return []string{key}
		}
	} else if key := types.MethodKey(call.Scope, call.Callee); g.HasMethod(key) {
		return []string{key}
	}

	return byName[call.Callee]
}

// FromSources parses every Java file under root and builds the graph.
// Files that fail to parse are logged at Debug and skipped.
func FromSources(ctx context.Context, root string, workers int, logger hclog.Logger) (*Graph, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	results, err := ParseAll(ctx, root, workers, logger)
	if err != nil {
		return nil, err
	}
	return Build(results, logger), nil
}

// ParseAll parses the Java files under root with a bounded worker pool.
// The results are ordered by path.
func ParseAll(ctx context.Context, root string, workers int, logger hclog.Logger) ([]*types.ParseResult, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	files, err := parser.FindJavaFiles(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	p := parser.New()
	results := make([]*types.ParseResult, len(files))
	var mu sync.Mutex
	failed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range files {
		g.Go(func() error {
			r, err := p.ParseFile(gctx, path)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Debug("skipping unparsable file", "file", path, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := results[:0]
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	if failed > 0 {
		logger.Debug("some files could not be parsed", "failed", failed)
	}
	return out, nil
}
