package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexProjectTool returns the tool definition for index_project
func indexProjectTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_project",
		Description: "Detect the enforcing-statement patterns of a Java project and build its search indexes",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the Java sources root (must contain .java files)",
				},
				"system": map[string]interface{}{
					"type":        "string",
					"description": "System name used for caching; defaults to the last element of path",
				},
				"force_reindex": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, drop cached patterns and indexes before building",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

// traceConstraintTool returns the tool definition for trace_constraint
func traceConstraintTool() mcp.Tool {
	return mcp.Tool{
		Name:        "trace_constraint",
		Description: "Rank the code locations most likely to enforce a constraint",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the Java sources root",
				},
				"system": map[string]interface{}{
					"type":        "string",
					"description": "System name; defaults to the last element of path",
				},
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Constraint text",
				},
				"operands": map[string]interface{}{
					"type":        "array",
					"description": "Constraint operands, e.g. the names of the constrained fields",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"constraint_type": map[string]interface{}{
					"type":        "string",
					"description": "Constraint type",
					"enum":        []string{"VALUE_COMPARISON", "DUAL_VALUE_COMPARISON", "CONCRETE_VALUE", "CATEGORICAL_VALUE"},
					"default":     "VALUE_COMPARISON",
				},
				"context": map[string]interface{}{
					"type":        "string",
					"description": "Text surrounding the constraint in its source document",
				},
				"consequence": map[string]interface{}{
					"type":        "string",
					"description": "What happens when the constraint is violated",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Ranking: method (Lasso grouped by method), pattern (Lasso patterns) or baseline (the text baseline alone)",
					"enum":        []string{"method", "pattern", "baseline"},
					"default":     "method",
				},
				"baseline": map[string]interface{}{
					"type":        "string",
					"description": "Underlying text baseline",
					"enum":        []string{"TFIDF", "BM25", "LSI", "LUCENE"},
					"default":     "BM25",
				},
			},
			Required: []string{"path"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Query cached patterns and indexes of a system",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"system": map[string]interface{}{
					"type":        "string",
					"description": "System name given to index_project",
				},
			},
			Required: []string{"system"},
		},
	}
}
