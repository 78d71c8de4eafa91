package mcp

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/lasso-mcp/internal/config"
	"github.com/dshills/lasso-mcp/internal/indexer"
	"github.com/dshills/lasso-mcp/internal/logging"
	"github.com/dshills/lasso-mcp/internal/searcher"
	"github.com/dshills/lasso-mcp/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "lasso-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp         *server.MCPServer
	storage     storage.Storage
	coordinator *indexer.Coordinator
	tracer      *searcher.Tracer
	logger      hclog.Logger
}

// NewServer creates a new MCP server instance. The database lives under
// cfg.CachePath; a nil cfg means config.Default().
func NewServer(cfg *config.Config, logger hclog.Logger) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger = logging.OrNull(logger)

	if err := os.MkdirAll(cfg.CachePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	coordinator := indexer.New(store, cfg, logger.Named("indexer"))

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	s := &Server{
		mcp:         mcpServer,
		storage:     store,
		coordinator: coordinator,
		tracer:      searcher.NewTracer(coordinator, searcher.DefaultCacheSize),
		logger:      logger,
	}

	if err := s.registerTools(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.storage.Close() }()
	s.logger.Info("serving MCP on stdio", "name", ServerName, "version", ServerVersion)
	return server.ServeStdio(s.mcp)
}

// Close releases the storage without serving
func (s *Server) Close() error {
	return s.storage.Close()
}

func (s *Server) registerTools() error {
	s.mcp.AddTool(indexProjectTool(), s.handleIndexProject)
	s.mcp.AddTool(traceConstraintTool(), s.handleTraceConstraint)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	return nil
}
