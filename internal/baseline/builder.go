package baseline

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/dshills/lasso-mcp/internal/chunker"
	"github.com/dshills/lasso-mcp/internal/embedder"
	"github.com/dshills/lasso-mcp/internal/logging"
	"github.com/dshills/lasso-mcp/internal/storage"
	"github.com/dshills/lasso-mcp/internal/termindex"
	"github.com/dshills/lasso-mcp/internal/textproc"
	"github.com/dshills/lasso-mcp/pkg/types"
)

// Builder creates baseline indexes, reusing persisted ones when they are
// fresh
type Builder struct {
	store       storage.Storage
	logger      hclog.Logger
	pre         *textproc.Preprocessor
	ignoreCache bool
}

// NewBuilder creates a baseline builder
func NewBuilder(store storage.Storage, pre *textproc.Preprocessor, logger hclog.Logger, ignoreCache bool) *Builder {
	if pre == nil {
		pre = textproc.New()
	}
	return &Builder{store: store, logger: logging.OrNull(logger), pre: pre, ignoreCache: ignoreCache}
}

func termSpec(name, project string, kind storage.IndexKind, t Type) termindex.Spec {
	return termindex.Spec{
		Name:       name,
		System:     project,
		Kind:       kind,
		Schema:     schema,
		Similarity: similarity(t),
		Operator:   termindex.Or,
	}
}

// Build indexes the text blocks of spans at cfg.Output granularity. spans
// is only read when no fresh index exists.
func (b *Builder) Build(ctx context.Context, project string, cfg Config, spans []types.TextSpan) (Index, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	name := IndexName(project, cfg)
	if cfg.Type == TypeLSI {
		return b.buildLSI(ctx, name, project, cfg, spans)
	}

	ix, err := termindex.NewBuilder(b.store, b.logger, b.ignoreCache).
		Build(ctx, termSpec(name, project, storage.IndexKindBaseline, cfg.Type), b.documents(spans, cfg.Output))
	if err != nil {
		return nil, fmt.Errorf("failed to build baseline %s: %w", name, err)
	}
	return &termIndex{cfg: cfg, ix: ix, pre: b.pre}, nil
}

// The model is trained on a temporary count index of the same blocks. The
// vectors are written in the transaction that records the LSI index, so a
// failed save leaves no stale entry behind.
func (b *Builder) buildLSI(ctx context.Context, name, project string, cfg Config, spans []types.TextSpan) (Index, error) {
	builder := termindex.NewBuilder(b.store, b.logger, b.ignoreCache)
	spec := termSpec(name, project, storage.IndexKindLSI, cfg.Type)

	fresh, err := builder.Fresh(ctx, spec)
	if err != nil {
		return nil, err
	}
	if fresh {
		id, err := termindex.IndexID(ctx, b.store, name)
		if err != nil {
			return nil, err
		}
		model, err := embedder.Load(ctx, b.store, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load LSI model %s: %w", name, err)
		}
		return &lsiIndex{cfg: cfg, model: model, pre: b.pre}, nil
	}

	tempSpec := termSpec(name+"_temp", project, storage.IndexKindBaseline, TypeLucene)
	temp, err := termindex.NewBuilder(b.store, b.logger, true).Build(ctx, tempSpec, b.documents(spans, cfg.Output))
	if err != nil {
		return nil, fmt.Errorf("failed to build LSI input %s: %w", tempSpec.Name, err)
	}

	model, err := embedder.Train(ctx, temp, FieldContent, cfg.Dimension)
	if err != nil {
		return nil, fmt.Errorf("failed to train LSI model %s: %w", name, err)
	}

	save := func(ctx context.Context, tx storage.Tx, index *storage.Index) error {
		return model.Save(ctx, tx, index.ID)
	}
	// The LSI index carries no documents of its own; only the fingerprint
	// and the vectors matter.
	if _, err := builder.Build(ctx, spec, nil, save); err != nil {
		return nil, fmt.Errorf("failed to save LSI model %s: %w", name, err)
	}
	if err := b.store.DeleteIndex(ctx, tempSpec.Name); err != nil {
		b.logger.Warn("failed to drop temporary LSI input", "index", tempSpec.Name, "error", err)
	}
	return &lsiIndex{cfg: cfg, model: model, pre: b.pre}, nil
}

func (b *Builder) documents(spans []types.TextSpan, g chunker.Granularity) []termindex.Document {
	blocks := chunker.New(g).Blocks(spans)
	docs := make([]termindex.Document, 0, len(blocks))
	skipped := 0
	for _, block := range blocks {
		content := b.pre.Join(block.Text, true)
		if content == "" {
			skipped++
			continue
		}
		docs = append(docs, document(block, content))
	}
	if skipped > 0 {
		b.logger.Debug("skipped blocks without indexable text", "count", skipped)
	}
	return docs
}
