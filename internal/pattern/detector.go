package pattern

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dshills/lasso-mcp/internal/parser"
	"github.com/dshills/lasso-mcp/pkg/types"
)

// FileResult holds the patterns detected in one file
type FileResult struct {
	Path     string
	Patterns []*types.Pattern
}

// Statistics summarizes one detection run
type Statistics struct {
	FilesScanned  int
	FilesFailed   int
	PatternCount  int
	ErrorMessages []string
}

// Detector runs the matchers of a registry over Java sources
type Detector struct {
	parser   *parser.Parser
	registry *Registry
	logger   hclog.Logger
	workers  int
}

// NewDetector creates a detector. workers <= 0 means one per CPU.
func NewDetector(registry *Registry, logger hclog.Logger, workers int) *Detector {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Detector{parser: parser.New(), registry: registry, logger: logger, workers: workers}
}

// DetectFile parses one file and returns its patterns
func (d *Detector) DetectFile(ctx context.Context, path string) ([]*types.Pattern, error) {
	f, err := d.parser.Parse(ctx, path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return NewSource(f, d.logger).MatchAll(d.registry), nil
}

// Detect scans every Java file under root. Files that cannot be read or
// parsed are logged at Debug and counted as failed.
func (d *Detector) Detect(ctx context.Context, root string) ([]FileResult, *Statistics, error) {
	files, err := parser.FindJavaFiles(ctx, root)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to discover files: %w", err)
	}

	results := make([]FileResult, len(files))
	stats := &Statistics{FilesScanned: len(files)}
	var mu sync.Mutex

	sem := semaphore.NewWeighted(int64(d.workers))
	g, gctx := errgroup.WithContext(ctx)

	for i, path := range files {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			patterns, err := d.DetectFile(gctx, path)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				d.logger.Debug("skipping unparsable file", "file", path, "error", err)
				mu.Lock()
				stats.FilesFailed++
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", path, err))
				mu.Unlock()
				return nil
			}
			results[i] = FileResult{Path: path, Patterns: patterns}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	out := results[:0]
	for _, r := range results {
		if r.Path == "" {
			continue
		}
		stats.PatternCount += len(r.Patterns)
		out = append(out, r)
	}
	return out, stats, nil
}

// BuildRepository detects the patterns of a system and registers them
func (d *Detector) BuildRepository(ctx context.Context, system, root string) (*Repository, error) {
	results, stats, err := d.Detect(ctx, root)
	if err != nil {
		return nil, err
	}

	var patterns []*types.Pattern
	for _, r := range results {
		patterns = append(patterns, r.Patterns...)
	}
	sortPatterns(patterns)

	repo := NewRepository(system)
	if err := repo.AddPatterns(patterns); err != nil {
		return nil, err
	}

	d.logger.Info("pattern detection complete",
		"system", system, "files", stats.FilesScanned, "failed", stats.FilesFailed, "patterns", repo.Len())
	return repo, nil
}
