// Package mcp exposes constraint tracing as Model Context Protocol tools.
//
// The server speaks MCP over stdio and registers three tools.
//
// # Tool: index_project
//
// Detect patterns and build the indexes of a Java project:
//
//	Request:
//	{
//	  "name": "index_project",
//	  "arguments": {
//	    "path": "/src/acme/sources",
//	    "system": "acme",
//	    "force_reindex": false
//	  }
//	}
//
//	Response:
//	{
//	  "indexed": true,
//	  "system": "acme",
//	  "files_parsed": 412,
//	  "patterns": 9120,
//	  "patterns_by_type": {"BINARY_COMPARISON": 2311, "NULL_CHECK": 1904},
//	  "indexes": ["LASSO_acme", "BM25_acme_METHOD", "LSI_acme_METHOD_300", "TFIDF_acme_METHOD"],
//	  "duration_ms": 5130
//	}
//
// # Tool: trace_constraint
//
// Rank the code that most likely enforces an ad-hoc constraint:
//
//	Request:
//	{
//	  "name": "trace_constraint",
//	  "arguments": {
//	    "path": "/src/acme/sources",
//	    "system": "acme",
//	    "text": "The quantity must be greater than zero",
//	    "operands": ["quantity"],
//	    "constraint_type": "VALUE_COMPARISON",
//	    "mode": "method",
//	    "baseline": "BM25",
//	    "limit": 10
//	  }
//	}
//
//	Response:
//	{
//	  "technique": "Lasso-13BM25",
//	  "results": [
//	    {
//	      "rank": 1,
//	      "score": 1.52,
//	      "file": {"path": "org/acme/Order.java", "start_line": 23, "end_line": 30},
//	      "pattern": {"id": "...", "type": "BINARY_COMPARISON", "operands": ["quantity", "0"]},
//	      "score_components": "CO-0.70_EC-0.20_CM-0.62",
//	      "grouped_results": 2
//	    }
//	  ],
//	  "total_results": 37
//	}
//
// The system must have been indexed first. Responses are cached per request
// and the cache is dropped whenever index_project runs with force_reindex.
//
// # Tool: get_status
//
//	Request:
//	{
//	  "name": "get_status",
//	  "arguments": {"system": "acme"}
//	}
//
// # Error Handling
//
// Handlers return *MCPError values:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (database, parsing, etc.)
//   - -32001: Path holds no Java sources
//   - -32002: Indexing in progress
//   - -32003: System not indexed
//   - -32004: Constraint has neither text nor operands
//
// # Logging
//
// Stdout is reserved for the protocol. Logs go to stderr through hclog;
// set LASSO_LOG_LEVEL=debug for details.
package mcp
