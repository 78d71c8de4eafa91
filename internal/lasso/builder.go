package lasso

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/dshills/lasso-mcp/internal/logging"
	"github.com/dshills/lasso-mcp/internal/storage"
	"github.com/dshills/lasso-mcp/internal/termindex"
	"github.com/dshills/lasso-mcp/internal/textproc"
	"github.com/dshills/lasso-mcp/pkg/types"
)

// Fields of a pattern index document
const (
	FieldID            = "id"
	FieldMethodName    = "methodName"
	FieldClassName     = "className"
	FieldOperandPrefix = "OPERAND_"
	FieldWindow        = "window"
)

// MaxOperands is the number of operand fields a document can carry
const MaxOperands = 2

// OperandField names the field of the 1-based operand n
func OperandField(n int) string {
	return FieldOperandPrefix + strconv.Itoa(n)
}

var schema = func() termindex.Schema {
	s := termindex.Schema{
		IDField: FieldID,
		Fields: []termindex.Field{
			{Name: FieldID, Kind: termindex.FieldStored},
			{Name: FieldMethodName, Kind: termindex.FieldIdentifier},
			{Name: FieldClassName, Kind: termindex.FieldIdentifier},
			{Name: FieldWindow, Kind: termindex.FieldText},
		},
	}
	for n := 1; n <= MaxOperands; n++ {
		s.Fields = append(s.Fields, termindex.Field{Name: OperandField(n), Kind: termindex.FieldText})
	}
	return s
}()

// IndexName is the name of the pattern index of a project
func IndexName(project string) string {
	return "LASSO_" + project
}

// NewPreprocessor returns the preprocessor used for pattern indexes and
// their queries. Single-letter terms are kept so short operand names match.
func NewPreprocessor() *textproc.Preprocessor {
	return textproc.New(textproc.WithMinLength(1))
}

// IndexBuilder indexes the detected patterns of a project
type IndexBuilder struct {
	store         storage.Storage
	logger        hclog.Logger
	pre           *textproc.Preprocessor
	ignoreCache   bool
	spanCacheSize int
}

// NewIndexBuilder creates a pattern index builder. spanCacheSize bounds the
// number of parsed files kept while building.
func NewIndexBuilder(store storage.Storage, logger hclog.Logger, ignoreCache bool, spanCacheSize int) *IndexBuilder {
	return &IndexBuilder{
		store:         store,
		logger:        logging.OrNull(logger),
		pre:           NewPreprocessor(),
		ignoreCache:   ignoreCache,
		spanCacheSize: spanCacheSize,
	}
}

func indexSpec(project string) termindex.Spec {
	return termindex.Spec{
		Name:       IndexName(project),
		System:     project,
		Kind:       storage.IndexKindLasso,
		Schema:     schema,
		Similarity: termindex.Count{},
		Operator:   termindex.Or,
	}
}

// Stats is what scoring needs to know about an indexed pattern: the
// distinct term count of each of its operand fields, keyed by 1-based
// operand number
type Stats struct {
	OperandSizes map[int]int
}

// OperandCount is the number of indexed operand fields
func (s Stats) OperandCount() int {
	return len(s.OperandSizes)
}

// Corpus is a built pattern index with the patterns and stats it was
// built from. It is read-only.
type Corpus struct {
	Project  string
	index    *termindex.Index
	patterns map[string]*types.Pattern
	stats    map[string]Stats
}

// Pattern returns an indexed pattern by ID
func (c *Corpus) Pattern(id string) (*types.Pattern, bool) {
	p, ok := c.patterns[id]
	return p, ok
}

// Len returns the number of indexed patterns
func (c *Corpus) Len() int {
	return c.index.Len()
}

// Build indexes patterns, or opens the persisted index of project when it
// is fresh. In that case the stats come from storage and patterns only
// supplies the pattern bodies.
func (b *IndexBuilder) Build(ctx context.Context, project string, patterns []*types.Pattern) (*Corpus, error) {
	spec := indexSpec(project)
	builder := termindex.NewBuilder(b.store, b.logger, b.ignoreCache)

	byID := make(map[string]*types.Pattern, len(patterns))
	for _, p := range patterns {
		byID[p.ID()] = p
	}

	fresh, err := builder.Fresh(ctx, spec)
	if err != nil {
		return nil, err
	}
	if fresh {
		return b.open(ctx, spec, byID)
	}

	docs, stats, err := b.documents(ctx, patterns)
	if err != nil {
		return nil, err
	}

	saveStats := func(ctx context.Context, tx storage.Tx, index *storage.Index) error {
		for id, s := range stats {
			if err := tx.UpsertPatternStats(ctx, &storage.PatternStats{IndexID: index.ID, PatternID: id, OperandSizes: s.OperandSizes}); err != nil {
				return err
			}
		}
		return nil
	}
	ix, err := builder.Build(ctx, spec, docs, saveStats)
	if err != nil {
		return nil, fmt.Errorf("failed to build pattern index of %s: %w", project, err)
	}
	return &Corpus{Project: project, index: ix, patterns: byID, stats: stats}, nil
}

func (b *IndexBuilder) open(ctx context.Context, spec termindex.Spec, byID map[string]*types.Pattern) (*Corpus, error) {
	b.logger.Info("using existing pattern index", "index", spec.Name)
	ix, err := termindex.Open(ctx, b.store, spec)
	if err != nil {
		return nil, err
	}
	id, err := termindex.IndexID(ctx, b.store, spec.Name)
	if err != nil {
		return nil, err
	}
	records, err := b.store.ListPatternStats(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load pattern stats of %s: %w", spec.Name, err)
	}
	stats := make(map[string]Stats, len(records))
	for _, r := range records {
		stats[r.PatternID] = Stats{OperandSizes: r.OperandSizes}
	}
	for ordinal := 0; ordinal < ix.Len(); ordinal++ {
		key := ix.Key(ordinal)
		if _, ok := byID[key]; !ok {
			return nil, types.NewInvariantError("lasso.Build", "indexed pattern %s is not in the repository of %s", key, spec.System)
		}
		if _, ok := stats[key]; !ok {
			return nil, types.NewInvariantError("lasso.Build", "indexed pattern %s has no stats", key)
		}
	}
	return &Corpus{Project: spec.System, index: ix, patterns: byID, stats: stats}, nil
}

func (b *IndexBuilder) documents(ctx context.Context, patterns []*types.Pattern) ([]termindex.Document, map[string]Stats, error) {
	spans, err := newSpanCache(b.spanCacheSize)
	if err != nil {
		return nil, nil, err
	}

	docs := make([]termindex.Document, 0, len(patterns))
	stats := make(map[string]Stats, len(patterns))
	for _, p := range patterns {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		id := p.ID()
		if _, dup := stats[id]; dup {
			b.logger.Warn("duplicated pattern", "pattern", id)
			continue
		}

		fields, sizes, err := b.operandFields(p)
		if err != nil {
			return nil, nil, err
		}
		if len(fields) == 0 {
			b.logger.Warn("pattern has no indexable operands", "pattern", id)
			continue
		}

		idx, err := spans.get(ctx, p.Location.FilePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read source of %s: %w", id, err)
		}

		fields[FieldID] = id
		fields[FieldMethodName] = b.pre.Join(p.Location.MethodName, true)
		fields[FieldClassName] = b.pre.Join(p.Location.ClassName, true)
		fields[FieldWindow] = b.pre.Join(idx.window(p.Location.Range), true)

		docs = append(docs, termindex.Document{Fields: fields})
		stats[id] = Stats{OperandSizes: sizes}
	}
	return docs, stats, nil
}

// operandFields names each operand field after the operand's 1-based
// position. Operands without terms are left out; a non-empty operand
// beyond MaxOperands is an invariant violation.
func (b *IndexBuilder) operandFields(p *types.Pattern) (map[string]string, map[int]int, error) {
	fields := make(map[string]string)
	sizes := make(map[int]int)
	for i, o := range p.Operands {
		terms := b.pre.Preprocess(o.AllText(), true)
		if len(terms) == 0 {
			continue
		}
		if i >= MaxOperands {
			return nil, nil, types.NewInvariantError("lasso.Build",
				"pattern has %d operands but at most %d are allowed: %s", len(p.Operands), MaxOperands, p.ID())
		}
		fields[OperandField(i+1)] = strings.Join(terms, " ")
		sizes[i+1] = distinctCount(terms)
	}
	return fields, sizes, nil
}

func distinctCount(terms []string) int {
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		seen[t] = struct{}{}
	}
	return len(seen)
}
