package searcher

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lasso-mcp/internal/baseline"
	"github.com/dshills/lasso-mcp/internal/config"
	"github.com/dshills/lasso-mcp/internal/indexer"
	"github.com/dshills/lasso-mcp/internal/lasso"
	"github.com/dshills/lasso-mcp/internal/storage"
	"github.com/dshills/lasso-mcp/pkg/types"
)

var sourcesDir = filepath.Join("..", "parser", "testdata")

func setupTracer(t *testing.T) *Tracer {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Default()
	cfg.Workers = 2
	return NewTracer(indexer.New(store, cfg, nil), 0)
}

func quantity() *types.Constraint {
	return &types.Constraint{
		ID:       "adhoc",
		System:   "acme",
		Type:     types.ConstraintValueComparison,
		Text:     "quantity must be positive",
		Context:  "order quantity",
		Operands: []string{"quantity"},
	}
}

func request(mode Mode) TraceRequest {
	return TraceRequest{System: "acme", SourcesDir: sourcesDir, Constraint: quantity(), Mode: mode}
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     TraceRequest
		wantErr bool
	}{
		{"valid", request(""), false},
		{"missing system", TraceRequest{Constraint: quantity()}, true},
		{"missing constraint", TraceRequest{System: "acme"}, true},
		{"empty constraint", TraceRequest{System: "acme", Constraint: &types.Constraint{}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRequest(&tt.req)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 10, tt.req.Limit)
			assert.Equal(t, ModeMethod, tt.req.Mode)
			assert.Equal(t, baseline.TypeBM25, tt.req.Underlying)
			assert.Equal(t, lasso.DefaultWeights(), tt.req.Weights)
			assert.Equal(t, time.Hour, tt.req.CacheTTL)
		})
	}

	req := request(ModePattern)
	req.Limit = 500
	require.NoError(t, validateRequest(&req))
	assert.Equal(t, 100, req.Limit)
}

func TestTrace_Modes(t *testing.T) {
	tracer := setupTracer(t)
	ctx := context.Background()

	for _, mode := range []Mode{ModeMethod, ModePattern, ModeBaseline} {
		t.Run(string(mode), func(t *testing.T) {
			resp, err := tracer.Trace(ctx, request(mode))
			require.NoError(t, err)
			require.NotEmpty(t, resp.Results)
			assert.Equal(t, mode, resp.Mode)
			assert.GreaterOrEqual(t, resp.TotalResults, len(resp.Results))
			for i, h := range resp.Results {
				assert.Equal(t, i+1, h.Rank)
				assert.NotEmpty(t, h.File)
			}
		})
	}
}

func TestTrace_PatternHit(t *testing.T) {
	tracer := setupTracer(t)
	req := request(ModePattern)
	req.Weights = lasso.Weights{lasso.ConstraintOperand: 1}

	resp, err := tracer.Trace(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)

	top := resp.Results[0]
	assert.Equal(t, types.PatternBinaryComparison, top.PatternType)
	assert.Equal(t, 24, top.LineBegin)
	assert.Contains(t, top.Operands, "quantity")
	assert.Equal(t, "Lasso-13BM25", resp.Technique)
}

func TestTrace_Limit(t *testing.T) {
	tracer := setupTracer(t)
	req := request(ModePattern)
	req.Limit = 1

	resp, err := tracer.Trace(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
}

func TestTrace_UnsupportedMode(t *testing.T) {
	tracer := setupTracer(t)
	_, err := tracer.Trace(context.Background(), request("word2vec"))
	assert.Error(t, err)
}

func TestTrace_Cache(t *testing.T) {
	tracer := setupTracer(t)
	ctx := context.Background()
	req := request(ModeMethod)
	req.UseCache = true

	first, err := tracer.Trace(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.Equal(t, 1, tracer.CacheLen())

	second, err := tracer.Trace(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Results, second.Results)

	second.Results[0].Operands = append(second.Results[0].Operands, "mutated")
	third, err := tracer.Trace(ctx, req)
	require.NoError(t, err)
	assert.NotContains(t, third.Results[0].Operands, "mutated")

	tracer.InvalidateCache()
	assert.Zero(t, tracer.CacheLen())
}

func TestTrace_CacheExpiry(t *testing.T) {
	tracer := setupTracer(t)
	req := request(ModePattern)
	req.UseCache = true
	req.CacheTTL = time.Nanosecond

	_, err := tracer.Trace(context.Background(), req)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	_, ok := tracer.checkCache(req)
	assert.False(t, ok)
	assert.Zero(t, tracer.CacheLen())
}

func TestComputeRequestHash(t *testing.T) {
	a := request(ModeMethod)
	require.NoError(t, validateRequest(&a))
	b := request(ModeMethod)
	require.NoError(t, validateRequest(&b))
	assert.Equal(t, computeRequestHash(a), computeRequestHash(b))

	b.Weights = lasso.Weights{lasso.ConstraintOperand: 1}
	assert.NotEqual(t, computeRequestHash(a), computeRequestHash(b))

	c := request(ModePattern)
	require.NoError(t, validateRequest(&c))
	assert.NotEqual(t, computeRequestHash(a), computeRequestHash(c))
}
