package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lasso-mcp/internal/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.CachePath = filepath.Join(t.TempDir(), "cache")
	cfg.Workers = 2

	s, err := NewServer(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sourcesPath(t *testing.T) string {
	t.Helper()
	path, err := filepath.Abs(filepath.Join("..", "parser", "testdata"))
	require.NoError(t, err)
	return path
}

func call(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func decode(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code)
}

func TestNewServer(t *testing.T) {
	s := newTestServer(t)

	assert.NotNil(t, s.mcp, "MCP server should be initialized")
	assert.NotNil(t, s.storage, "Storage should be initialized")
	assert.NotNil(t, s.coordinator, "Coordinator should be initialized")
	assert.NotNil(t, s.tracer, "Tracer should be initialized")
}

func TestValidatePath(t *testing.T) {
	empty := t.TempDir()
	file := filepath.Join(empty, "notes.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	tests := []struct {
		name string
		path string
		want error
	}{
		{"empty", "", ErrPathRequired},
		{"relative", "src/main/java", ErrPathNotAbsolute},
		{"missing", filepath.Join(empty, "missing"), ErrPathNotFound},
		{"file", file, ErrNotDirectory},
		{"no java files", empty, ErrNoJavaFiles},
		{"valid", sourcesPath(t), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePath(tt.path)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHandleIndexProject(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleIndexProject(ctx, call(map[string]interface{}{"path": sourcesPath(t)}))
	require.NoError(t, err)
	out := decode(t, result)

	assert.Equal(t, true, out["indexed"])
	assert.Equal(t, "testdata", out["system"])
	assert.Greater(t, out["patterns"], float64(0))
	assert.Contains(t, out["indexes"], "LASSO_testdata")

	status, err := s.handleGetStatus(ctx, call(map[string]interface{}{"system": "testdata"}))
	require.NoError(t, err)
	statusOut := decode(t, status)
	assert.Equal(t, true, statusOut["indexed"])
	assert.NotEmpty(t, statusOut["indexes"])
}

func TestHandleIndexProject_InvalidArguments(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleIndexProject(ctx, call(map[string]interface{}{}))
	requireCode(t, err, ErrorCodeInvalidParams)

	_, err = s.handleIndexProject(ctx, call(map[string]interface{}{"path": t.TempDir()}))
	requireCode(t, err, ErrorCodeProjectNotFound)

	_, err = s.handleIndexProject(ctx, mcp.CallToolRequest{})
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestHandleTraceConstraint_NotIndexed(t *testing.T) {
	s := newTestServer(t)

	_, err := s.handleTraceConstraint(context.Background(), call(map[string]interface{}{
		"path": sourcesPath(t),
		"text": "quantity must be positive",
	}))
	requireCode(t, err, ErrorCodeNotIndexed)
}

func TestHandleTraceConstraint(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	path := sourcesPath(t)

	_, err := s.handleIndexProject(ctx, call(map[string]interface{}{"path": path, "system": "acme"}))
	require.NoError(t, err)

	args := map[string]interface{}{
		"path":     path,
		"system":   "acme",
		"text":     "quantity must be positive",
		"context":  "order quantity",
		"operands": []interface{}{"quantity", ""},
		"limit":    float64(5),
	}
	result, err := s.handleTraceConstraint(ctx, call(args))
	require.NoError(t, err)
	out := decode(t, result)

	assert.Equal(t, "Lasso-13BM25", out["technique"])
	assert.Equal(t, "method", out["mode"])
	results, ok := out["results"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 5)
	first := results[0].(map[string]interface{})
	assert.Equal(t, float64(1), first["rank"])
	assert.Equal(t, false, out["cache_hit"])

	again, err := s.handleTraceConstraint(ctx, call(args))
	require.NoError(t, err)
	assert.Equal(t, true, decode(t, again)["cache_hit"])

	args["mode"] = "baseline"
	baselineResult, err := s.handleTraceConstraint(ctx, call(args))
	require.NoError(t, err)
	assert.Equal(t, "BM25", decode(t, baselineResult)["technique"])
}

func TestHandleTraceConstraint_InvalidArguments(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	path := sourcesPath(t)

	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{"empty constraint", map[string]interface{}{"path": path}, ErrorCodeEmptyConstraint},
		{"bad type", map[string]interface{}{"path": path, "text": "x", "constraint_type": "RANGE"}, ErrorCodeInvalidParams},
		{"bad limit", map[string]interface{}{"path": path, "text": "x", "limit": float64(500)}, ErrorCodeInvalidParams},
		{"bad mode", map[string]interface{}{"path": path, "text": "x", "mode": "hybrid"}, ErrorCodeInvalidParams},
		{"bad baseline", map[string]interface{}{"path": path, "text": "x", "baseline": "word2vec"}, ErrorCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleTraceConstraint(ctx, call(tt.args))
			requireCode(t, err, tt.code)
		})
	}
}

func TestHandleGetStatus_NotIndexed(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleGetStatus(ctx, call(map[string]interface{}{"system": "unknown"}))
	require.NoError(t, err)
	out := decode(t, result)
	assert.Equal(t, false, out["indexed"])

	_, err = s.handleGetStatus(ctx, call(map[string]interface{}{"system": " "}))
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestGetStringSliceDefault(t *testing.T) {
	args := map[string]interface{}{
		"mixed": []interface{}{" a ", 1, "", "b"},
		"plain": []string{"x"},
		"wrong": "a,b",
	}
	assert.Equal(t, []string{"a", "b"}, getStringSliceDefault(args, "mixed", nil))
	assert.Equal(t, []string{"x"}, getStringSliceDefault(args, "plain", nil))
	assert.Equal(t, []string{"d"}, getStringSliceDefault(args, "wrong", []string{"d"}))
	assert.Nil(t, getStringSliceDefault(args, "missing", nil))
}
