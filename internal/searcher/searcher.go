package searcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/lasso-mcp/internal/baseline"
	"github.com/dshills/lasso-mcp/internal/indexer"
	"github.com/dshills/lasso-mcp/internal/lasso"
	"github.com/dshills/lasso-mcp/pkg/types"
)

// Mode selects the ranking technique
type Mode string

const (
	ModeMethod   Mode = "method"   // Lasso regrouped by enclosing method
	ModePattern  Mode = "pattern"  // Lasso pattern-level results
	ModeBaseline Mode = "baseline" // the underlying baseline alone
)

// DefaultCacheSize is the number of responses kept by NewTracer
const DefaultCacheSize = 1000

// TraceRequest contains parameters for a trace operation
type TraceRequest struct {
	System     string
	SourcesDir string
	Constraint *types.Constraint
	Limit      int
	Mode       Mode
	Underlying baseline.Type
	// Weights default to lasso.DefaultWeights
	Weights  lasso.Weights
	UseCache bool
	CacheTTL time.Duration
}

// Hit is one ranked code location
type Hit struct {
	Rank        int
	Score       float64
	File        string
	LineBegin   int
	LineEnd     int
	PatternID   string
	PatternType types.PatternType
	Operands    []string
	// Components is the score breakdown, e.g. CO-0.70_EC-0.20
	Components string
	// Grouped is the number of pattern results a method-level hit stands for
	Grouped int
}

// TraceResponse contains trace results and metadata
type TraceResponse struct {
	Results      []Hit
	TotalResults int
	Mode         Mode
	Technique    string
	Terms        []string
	Duration     time.Duration
	CacheHit     bool
}

// cacheEntry represents a cached trace response with expiration time
type cacheEntry struct {
	response  *TraceResponse
	expiresAt time.Time
}

// Tracer answers ad-hoc constraints against indexed systems
type Tracer struct {
	coordinator *indexer.Coordinator
	cache       *lru.Cache[[32]byte, *cacheEntry]
	cacheMu     sync.RWMutex
}

// NewTracer creates a Tracer with a response cache of cacheSize entries;
// cacheSize <= 0 means DefaultCacheSize
func NewTracer(coordinator *indexer.Coordinator, cacheSize int) *Tracer {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[[32]byte, *cacheEntry](cacheSize)
	if err != nil {
		// This should never happen with valid size parameter
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	return &Tracer{coordinator: coordinator, cache: cache}
}

// Trace ranks the code locations of req.System against req.Constraint
func (t *Tracer) Trace(ctx context.Context, req TraceRequest) (*TraceResponse, error) {
	startTime := time.Now()

	if err := validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid trace request: %w", err)
	}

	if req.UseCache {
		if cached, ok := t.checkCache(req); ok {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	p, err := t.coordinator.Project(ctx, req.System, req.SourcesDir)
	if err != nil {
		return nil, err
	}

	var response *TraceResponse
	switch req.Mode {
	case ModeMethod, ModePattern:
		response, err = t.lassoTrace(ctx, p, req)
	case ModeBaseline:
		response, err = t.baselineTrace(ctx, p, req)
	default:
		return nil, fmt.Errorf("unsupported trace mode: %s", req.Mode)
	}
	if err != nil {
		return nil, err
	}

	response.Mode = req.Mode
	response.Duration = time.Since(startTime)

	if req.UseCache && len(response.Results) > 0 {
		t.storeInCache(req, response)
	}
	return response, nil
}

func (t *Tracer) lassoTrace(ctx context.Context, p *indexer.Project, req TraceRequest) (*TraceResponse, error) {
	cfg := lasso.PatternConfig(req.Weights, req.Underlying)
	if req.Mode == ModeMethod {
		cfg = lasso.MethodConfig(req.Weights, req.Underlying)
	}
	ix, err := t.coordinator.Lasso(ctx, p, cfg)
	if err != nil {
		return nil, err
	}
	ranking, err := ix.Search(ctx, req.Constraint)
	if err != nil {
		return nil, err
	}

	results := ranking.Results
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}
	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{
			Rank:       r.Rank,
			Score:      r.Score.Value(),
			File:       r.Block.File,
			LineBegin:  r.Block.LineBegin,
			LineEnd:    r.Block.LineEnd,
			Components: r.Score.Repr(),
			Grouped:    len(r.Grouped),
		}
		if r.Pattern != nil {
			hits[i].PatternID = r.Pattern.ID()
			hits[i].PatternType = r.Pattern.Type
			hits[i].Operands = r.Pattern.OperandTexts()
		}
	}
	return &TraceResponse{
		Results:      hits,
		TotalResults: len(ranking.Results),
		Technique:    cfg.String(),
		Terms:        ranking.Terms,
	}, nil
}

func (t *Tracer) baselineTrace(ctx context.Context, p *indexer.Project, req TraceRequest) (*TraceResponse, error) {
	cfg := lasso.MethodConfig(req.Weights, req.Underlying).BaselineConfig()
	ix, err := t.coordinator.Baseline(ctx, p, cfg)
	if err != nil {
		return nil, err
	}
	results, err := ix.Search(ctx, req.Constraint)
	if err != nil {
		return nil, err
	}

	total := len(results)
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}
	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{
			Rank:      r.Rank,
			Score:     r.Score,
			File:      r.Entity.File,
			LineBegin: r.Entity.LineBegin,
			LineEnd:   r.Entity.LineEnd,
		}
	}
	return &TraceResponse{Results: hits, TotalResults: total, Technique: cfg.String()}, nil
}

// validateRequest ensures the trace request is valid and fills defaults
func validateRequest(req *TraceRequest) error {
	if req.System == "" {
		return fmt.Errorf("system cannot be empty")
	}
	if req.Constraint == nil {
		return fmt.Errorf("constraint is required")
	}
	if strings.TrimSpace(req.Constraint.Text) == "" && len(req.Constraint.Operands) == 0 {
		return fmt.Errorf("constraint needs text or operands")
	}

	if req.Limit <= 0 {
		req.Limit = 10 // Default limit
	}
	if req.Limit > 100 {
		req.Limit = 100 // Max limit
	}
	if req.Mode == "" {
		req.Mode = ModeMethod
	}
	if req.Underlying == "" {
		req.Underlying = baseline.TypeBM25
	}
	if req.Weights == nil {
		req.Weights = lasso.DefaultWeights()
	}
	if req.CacheTTL == 0 {
		req.CacheTTL = 1 * time.Hour // Default TTL
	}
	return nil
}

// checkCache looks up a cached response. Expired entries are removed.
func (t *Tracer) checkCache(req TraceRequest) (*TraceResponse, bool) {
	hash := computeRequestHash(req)
	now := time.Now()

	t.cacheMu.RLock()
	entry, found := t.cache.Get(hash)
	if !found {
		t.cacheMu.RUnlock()
		return nil, false
	}

	if now.After(entry.expiresAt) {
		t.cacheMu.RUnlock()

		t.cacheMu.Lock()
		t.cache.Remove(hash)
		t.cacheMu.Unlock()
		return nil, false
	}

	response := copyTraceResponse(entry.response)
	t.cacheMu.RUnlock()
	return response, true
}

// storeInCache saves a deep copy of response
func (t *Tracer) storeInCache(req TraceRequest, response *TraceResponse) {
	entry := &cacheEntry{
		response:  copyTraceResponse(response),
		expiresAt: time.Now().Add(req.CacheTTL),
	}

	t.cacheMu.Lock()
	t.cache.Add(computeRequestHash(req), entry)
	t.cacheMu.Unlock()
}

// copyTraceResponse creates a deep copy of a TraceResponse
func copyTraceResponse(src *TraceResponse) *TraceResponse {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Terms = append([]string(nil), src.Terms...)
	dst.Results = make([]Hit, len(src.Results))
	for i, h := range src.Results {
		h.Operands = append([]string(nil), h.Operands...)
		dst.Results[i] = h
	}
	return &dst
}

// computeRequestHash computes a unique hash for a trace request
func computeRequestHash(req TraceRequest) [32]byte {
	c := req.Constraint

	var data strings.Builder
	fmt.Fprintf(&data, "%s|%s|%s|%s|%d", req.System, req.SourcesDir, req.Mode, req.Underlying, req.Limit)
	fmt.Fprintf(&data, "|%s|%s|%s|%s", c.Type, c.Text, c.Context, c.Consequence)
	data.WriteString("|operands:")
	data.WriteString(strings.Join(c.Operands, "\x00"))

	// Weights with stable serialization
	components := make([]string, 0, len(req.Weights))
	for comp := range req.Weights {
		components = append(components, string(comp))
	}
	sort.Strings(components)
	data.WriteString("|weights:")
	for _, comp := range components {
		fmt.Fprintf(&data, "%s=%g,", comp, req.Weights[lasso.Component(comp)])
	}

	return sha256.Sum256([]byte(data.String()))
}

// InvalidateCache drops every cached response. The LRU cannot filter by
// system, and invalidation only follows a rebuild.
func (t *Tracer) InvalidateCache() {
	t.cacheMu.Lock()
	t.cache.Purge()
	t.cacheMu.Unlock()
}

// CacheLen returns the number of cached responses
func (t *Tracer) CacheLen() int {
	t.cacheMu.RLock()
	defer t.cacheMu.RUnlock()
	return t.cache.Len()
}
