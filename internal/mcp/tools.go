package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/lasso-mcp/internal/baseline"
	"github.com/dshills/lasso-mcp/internal/indexer"
	"github.com/dshills/lasso-mcp/internal/searcher"
	"github.com/dshills/lasso-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeProjectNotFound    = -32001 // Specified path does not contain a Java project
	ErrorCodeIndexingInProgress = -32002 // Another indexing operation is already running
	ErrorCodeNotIndexed         = -32003 // System not indexed
	ErrorCodeEmptyConstraint    = -32004 // Constraint has neither text nor operands
)

// handleIndexProject handles the index_project tool invocation
func (s *Server) handleIndexProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, system, err := projectArgs(args)
	if err != nil {
		return nil, err
	}
	forceReindex := getBoolDefault(args, "force_reindex", false)

	stats, err := s.coordinator.IndexProject(ctx, system, path, &indexer.Options{Force: forceReindex})
	if errors.Is(err, indexer.ErrIndexingInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", map[string]interface{}{
			"system": system,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if forceReindex {
		s.tracer.InvalidateCache()
	}

	byType := make(map[string]int, len(stats.PatternsByType))
	for t, n := range stats.PatternsByType {
		byType[string(t)] = n
	}
	response := map[string]interface{}{
		"indexed":          true,
		"system":           stats.System,
		"files_parsed":     stats.FilesParsed,
		"patterns":         stats.Patterns,
		"patterns_by_type": byType,
		"indexed_patterns": stats.IndexedPatterns,
		"methods":          stats.Methods,
		"call_edges":       stats.CallEdges,
		"indexes":          stats.Indexes,
		"duration_ms":      stats.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleTraceConstraint handles the trace_constraint tool invocation
func (s *Server) handleTraceConstraint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, system, err := projectArgs(args)
	if err != nil {
		return nil, err
	}

	c, err := constraintArg(args, system)
	if err != nil {
		return nil, err
	}

	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	mode := searcher.Mode(getStringDefault(args, "mode", string(searcher.ModeMethod)))
	if mode != searcher.ModeMethod && mode != searcher.ModePattern && mode != searcher.ModeBaseline {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid mode", map[string]interface{}{
			"param":   "mode",
			"value":   mode,
			"allowed": []string{string(searcher.ModeMethod), string(searcher.ModePattern), string(searcher.ModeBaseline)},
		})
	}

	underlying, err := baseline.ParseType(getStringDefault(args, "baseline", string(baseline.TypeBM25)))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid baseline", map[string]interface{}{
			"param":  "baseline",
			"reason": err.Error(),
		})
	}

	indexed, err := s.isIndexed(ctx, system)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if !indexed {
		return nil, newMCPError(ErrorCodeNotIndexed, "system not indexed", map[string]interface{}{
			"system":  system,
			"message": "Use index_project tool to index this system.",
		})
	}

	resp, err := s.tracer.Trace(ctx, searcher.TraceRequest{
		System:     system,
		SourcesDir: path,
		Constraint: c,
		Limit:      limit,
		Mode:       mode,
		Underlying: underlying,
		UseCache:   true,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "trace failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, len(resp.Results))
	for i, h := range resp.Results {
		result := map[string]interface{}{
			"rank":  h.Rank,
			"score": h.Score,
			"file": map[string]interface{}{
				"path":       h.File,
				"start_line": h.LineBegin,
				"end_line":   h.LineEnd,
			},
		}
		if h.PatternID != "" {
			result["pattern"] = map[string]interface{}{
				"id":       h.PatternID,
				"type":     string(h.PatternType),
				"operands": h.Operands,
			}
		}
		if h.Components != "" {
			result["score_components"] = h.Components
		}
		if h.Grouped > 0 {
			result["grouped_results"] = h.Grouped
		}
		results[i] = result
	}

	response := map[string]interface{}{
		"system":        system,
		"technique":     resp.Technique,
		"mode":          string(resp.Mode),
		"terms":         resp.Terms,
		"results":       results,
		"total_results": resp.TotalResults,
		"cache_hit":     resp.CacheHit,
		"duration_ms":   resp.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	system, ok := args["system"].(string)
	if !ok || strings.TrimSpace(system) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "system parameter is required", map[string]interface{}{
			"param":  "system",
			"reason": "missing or empty",
		})
	}

	status, err := s.coordinator.Status(ctx, system)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if !status.Health.PatternsCached && !status.Health.IndexesBuilt && !s.coordinator.Loaded(system) {
		response := map[string]interface{}{
			"indexed": false,
			"system":  system,
			"message": "System not indexed. Use index_project tool to index this system.",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}

	indexes := make([]map[string]interface{}, len(status.Indexes))
	for i, ix := range status.Indexes {
		indexes[i] = map[string]interface{}{
			"name":      ix.Name,
			"kind":      string(ix.Kind),
			"documents": ix.DocumentCount,
		}
	}
	response := map[string]interface{}{
		"indexed": true,
		"system":  system,
		"statistics": map[string]interface{}{
			"patterns_count":  status.PatternsCount,
			"documents_count": status.DocumentsCount,
			"vectors_count":   status.VectorsCount,
			"database_mb":     fmt.Sprintf("%.2f", status.DatabaseSizeMB),
		},
		"indexes": indexes,
		"health": map[string]interface{}{
			"database_accessible": status.Health.DatabaseAccessible,
			"patterns_cached":     status.Health.PatternsCached,
			"indexes_built":       status.Health.IndexesBuilt,
		},
	}
	if !status.LastIndexedAt.IsZero() {
		response["last_indexed_at"] = status.LastIndexedAt.Format(time.RFC3339)
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// isIndexed reports whether system has cached patterns or indexes, or is
// loaded in this process
func (s *Server) isIndexed(ctx context.Context, system string) (bool, error) {
	if s.coordinator.Loaded(system) {
		return true, nil
	}
	status, err := s.coordinator.Status(ctx, system)
	if err != nil {
		return false, err
	}
	return status.Health.PatternsCached || status.Health.IndexesBuilt, nil
}

// projectArgs validates path and resolves the system name
func projectArgs(args map[string]interface{}) (string, string, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return "", "", newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	if err := validatePath(path); err != nil {
		code := ErrorCodeInvalidParams
		if errors.Is(err, ErrNoJavaFiles) {
			code = ErrorCodeProjectNotFound
		}
		return "", "", newMCPError(code, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	system := strings.TrimSpace(getStringDefault(args, "system", ""))
	if system == "" {
		system = filepath.Base(filepath.Clean(path))
	}
	return path, system, nil
}

// constraintArg builds the ad-hoc constraint of a trace request
func constraintArg(args map[string]interface{}, system string) (*types.Constraint, error) {
	ct, err := types.ParseConstraintType(getStringDefault(args, "constraint_type", string(types.ConstraintValueComparison)))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid constraint_type", map[string]interface{}{
			"param":  "constraint_type",
			"reason": err.Error(),
		})
	}

	c := &types.Constraint{
		ID:          "adhoc",
		System:      system,
		Type:        ct,
		Text:        strings.TrimSpace(getStringDefault(args, "text", "")),
		Context:     getStringDefault(args, "context", ""),
		Consequence: getStringDefault(args, "consequence", ""),
		Operands:    getStringSliceDefault(args, "operands", nil),
	}
	if c.Text == "" && len(c.Operands) == 0 {
		return nil, newMCPError(ErrorCodeEmptyConstraint, "constraint needs text or operands", map[string]interface{}{
			"param":  "text",
			"reason": "missing or empty",
		})
	}
	return c, nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks that path is a readable directory holding Java sources
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	hasJavaFiles := false
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(p, ".java") {
			hasJavaFiles = true
			return filepath.SkipAll
		}
		return nil
	})

	if !hasJavaFiles {
		return ErrNoJavaFiles
	}

	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSliceDefault extracts a string array parameter. Blank and
// non-string elements are dropped.
func getStringSliceDefault(args map[string]interface{}, key string, defaultValue []string) []string {
	switch val := args[key].(type) {
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, v := range val {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
	ErrNoJavaFiles     = errors.New("directory does not contain Java files")
)
