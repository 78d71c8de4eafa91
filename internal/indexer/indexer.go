package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/lasso-mcp/internal/baseline"
	"github.com/dshills/lasso-mcp/internal/callgraph"
	"github.com/dshills/lasso-mcp/internal/config"
	"github.com/dshills/lasso-mcp/internal/lasso"
	"github.com/dshills/lasso-mcp/internal/logging"
	"github.com/dshills/lasso-mcp/internal/pattern"
	"github.com/dshills/lasso-mcp/internal/storage"
	"github.com/dshills/lasso-mcp/internal/textproc"
	"github.com/dshills/lasso-mcp/pkg/types"
)

// ErrIndexingInProgress is returned by IndexProject while another build of
// the same system is running
var ErrIndexingInProgress = errors.New("indexing already in progress")

// Coordinator creates the indexes of analyzed systems. Each index name is
// built at most once per process: concurrent callers asking for the same
// name wait for the first build and then share its result.
type Coordinator struct {
	store  storage.Storage
	cfg    *config.Config
	logger hclog.Logger

	patterns  *pattern.Cache
	corpora   *lasso.IndexBuilder
	baselines *baseline.Builder

	names   *nameLocks
	running systemLocks

	mu       sync.Mutex
	projects map[string]*Project
	built    map[string]*systemIndexes
}

type systemIndexes struct {
	corpus    *lasso.Corpus
	baselines map[string]baseline.Index
}

// Project is the parsed state of one analyzed system
type Project struct {
	System     string
	SourcesDir string
	Repository *pattern.Repository
	Files      []*types.ParseResult
	Graph      *callgraph.Graph
}

// Spans returns the text spans of every parsed file
func (p *Project) Spans() []types.TextSpan {
	n := 0
	for _, f := range p.Files {
		n += len(f.Spans)
	}
	spans := make([]types.TextSpan, 0, n)
	for _, f := range p.Files {
		spans = append(spans, f.Spans...)
	}
	return spans
}

// Options controls IndexProject
type Options struct {
	// Baselines to build next to the pattern index. Nil means the defaults.
	Baselines []baseline.Config
	// Force drops the cached patterns and persisted indexes of the system
	// before building
	Force bool
}

// Statistics contains statistics about one IndexProject call
type Statistics struct {
	System          string
	FilesParsed     int
	Patterns        int
	PatternsByType  map[types.PatternType]int
	IndexedPatterns int
	Methods         int
	CallEdges       int
	Indexes         []string
	Duration        time.Duration
}

// New creates a coordinator. A nil cfg means config.Default().
func New(store storage.Storage, cfg *config.Config, logger hclog.Logger) *Coordinator {
	if cfg == nil {
		cfg = config.Default()
	}
	logger = logging.OrNull(logger)
	detector := pattern.NewDetector(nil, logger.Named("detector"), cfg.Workers)
	pre := textproc.New(textproc.WithMinLength(cfg.MinTermLength), textproc.WithStemming(cfg.Stem))

	return &Coordinator{
		store:     store,
		cfg:       cfg,
		logger:    logger,
		patterns:  pattern.NewCache(store, detector, logger.Named("patterns"), cfg.IgnoreCache),
		corpora:   lasso.NewIndexBuilder(store, logger.Named("lasso"), cfg.IgnoreCache, cfg.SpanCacheSize),
		baselines: baseline.NewBuilder(store, pre, logger.Named("baseline"), cfg.IgnoreCache),
		names:     newNameLocks(),
		projects:  make(map[string]*Project),
		built:     make(map[string]*systemIndexes),
	}
}

// Project returns the pattern repository, parsed sources and call graph of
// system, detecting and parsing on first use
func (c *Coordinator) Project(ctx context.Context, system, sourcesDir string) (*Project, error) {
	defer c.names.lock("project:" + system)()

	c.mu.Lock()
	p, ok := c.projects[system]
	c.mu.Unlock()
	if ok {
		return p, nil
	}

	repo, err := c.patterns.Open(ctx, system, sourcesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load patterns of %s: %w", system, err)
	}
	files, err := callgraph.ParseAll(ctx, sourcesDir, c.cfg.Workers, c.logger.Named("parser"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse sources of %s: %w", system, err)
	}

	p = &Project{
		System:     system,
		SourcesDir: sourcesDir,
		Repository: repo,
		Files:      files,
		Graph:      callgraph.Build(files, c.logger.Named("callgraph")),
	}
	c.mu.Lock()
	c.projects[system] = p
	c.mu.Unlock()
	return p, nil
}

func (c *Coordinator) indexes(system string) *systemIndexes {
	s, ok := c.built[system]
	if !ok {
		s = &systemIndexes{baselines: make(map[string]baseline.Index)}
		c.built[system] = s
	}
	return s
}

// Corpus returns the pattern index of a project
func (c *Coordinator) Corpus(ctx context.Context, p *Project) (*lasso.Corpus, error) {
	defer c.names.lock(lasso.IndexName(p.System))()

	c.mu.Lock()
	corpus := c.indexes(p.System).corpus
	c.mu.Unlock()
	if corpus != nil {
		return corpus, nil
	}

	corpus, err := c.corpora.Build(ctx, p.System, p.Repository.Patterns())
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.indexes(p.System).corpus = corpus
	c.mu.Unlock()
	return corpus, nil
}

// Baseline returns the baseline index of a project for cfg
func (c *Coordinator) Baseline(ctx context.Context, p *Project, cfg baseline.Config) (baseline.Index, error) {
	name := baseline.IndexName(p.System, cfg)
	defer c.names.lock(name)()

	c.mu.Lock()
	ix, ok := c.indexes(p.System).baselines[name]
	c.mu.Unlock()
	if ok {
		return ix, nil
	}

	ix, err := c.baselines.Build(ctx, p.System, cfg, p.Spans())
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.indexes(p.System).baselines[name] = ix
	c.mu.Unlock()
	return ix, nil
}

// Lasso returns a scoring index for one scenario, building the pattern
// index and the scenario's baseline as needed
func (c *Coordinator) Lasso(ctx context.Context, p *Project, cfg lasso.Config) (*lasso.Index, error) {
	corpus, err := c.Corpus(ctx, p)
	if err != nil {
		return nil, err
	}
	var base baseline.Index
	if cfg.UsesBaseline() {
		if base, err = c.Baseline(ctx, p, cfg.BaselineConfig()); err != nil {
			return nil, err
		}
	}
	return lasso.NewIndex(corpus, cfg, base, p.Graph, c.logger.Named("lasso"))
}

// IndexProject detects the patterns of system and builds its pattern
// index and baselines. Only one IndexProject per system runs at a time;
// a second call fails fast with ErrIndexingInProgress.
func (c *Coordinator) IndexProject(ctx context.Context, system, sourcesDir string, opts *Options) (*Statistics, error) {
	if opts == nil {
		opts = &Options{}
	}
	lock := c.running.get(system)
	if !lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer lock.Release()

	start := time.Now()
	if opts.Force {
		if err := c.Invalidate(ctx, system); err != nil {
			return nil, err
		}
	}

	p, err := c.Project(ctx, system, sourcesDir)
	if err != nil {
		return nil, err
	}

	configs := opts.Baselines
	if configs == nil {
		configs = baseline.Defaults(c.cfg.LSIDimension)
	}

	var corpus *lasso.Corpus
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, c.cfg.Workers))
	g.Go(func() error {
		var err error
		corpus, err = c.Corpus(gctx, p)
		return err
	})
	for _, cfg := range configs {
		g.Go(func() error {
			_, err := c.Baseline(gctx, p, cfg)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to index %s: %w", system, err)
	}

	stats := &Statistics{
		System:          system,
		FilesParsed:     len(p.Files),
		Patterns:        p.Repository.Len(),
		PatternsByType:  p.Repository.CountByType(),
		IndexedPatterns: corpus.Len(),
		Methods:         p.Graph.Len(),
		CallEdges:       p.Graph.EdgeCount(),
		Indexes:         []string{lasso.IndexName(system)},
		Duration:        time.Since(start),
	}
	for _, cfg := range configs {
		stats.Indexes = append(stats.Indexes, baseline.IndexName(system, cfg))
	}
	sort.Strings(stats.Indexes[1:])

	c.logger.Info("indexed project", "system", system, "patterns", stats.Patterns,
		"indexes", len(stats.Indexes), "duration", stats.Duration)
	return stats, nil
}

// Invalidate forgets everything built for system: the in-memory project
// and indexes, the persisted indexes and the pattern cache
func (c *Coordinator) Invalidate(ctx context.Context, system string) error {
	c.mu.Lock()
	delete(c.projects, system)
	delete(c.built, system)
	c.mu.Unlock()

	indexes, err := c.store.ListIndexes(ctx, system)
	if err != nil {
		return fmt.Errorf("failed to list indexes of %s: %w", system, err)
	}
	for _, ix := range indexes {
		if err := c.store.DeleteIndex(ctx, ix.Name); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("failed to drop index %s: %w", ix.Name, err)
		}
	}
	if err := c.store.ReplacePatterns(ctx, system, nil); err != nil {
		return fmt.Errorf("failed to clear pattern cache of %s: %w", system, err)
	}
	c.logger.Info("invalidated system", "system", system, "indexes", len(indexes))
	return nil
}

// Loaded reports whether the project of system is parsed in this process
func (c *Coordinator) Loaded(system string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.projects[system]
	return ok
}

// Status reports what is cached for system
func (c *Coordinator) Status(ctx context.Context, system string) (*storage.SystemStatus, error) {
	return c.store.GetStatus(ctx, system)
}
