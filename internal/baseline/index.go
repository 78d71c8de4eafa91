package baseline

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/dshills/lasso-mcp/internal/embedder"
	"github.com/dshills/lasso-mcp/internal/termindex"
	"github.com/dshills/lasso-mcp/internal/textproc"
	"github.com/dshills/lasso-mcp/pkg/types"
)

// Document fields of a baseline index
const (
	FieldID      = "id"
	FieldFile    = "file"
	FieldBegin   = "begin"
	FieldEnd     = "end"
	FieldContent = "content"
)

var schema = termindex.Schema{
	IDField: FieldID,
	Fields: []termindex.Field{
		{Name: FieldID, Kind: termindex.FieldStored},
		{Name: FieldFile, Kind: termindex.FieldStored},
		{Name: FieldBegin, Kind: termindex.FieldStored},
		{Name: FieldEnd, Kind: termindex.FieldStored},
		{Name: FieldContent, Kind: termindex.FieldText},
	},
}

func similarity(t Type) termindex.Similarity {
	switch t {
	case TypeTFIDF:
		return termindex.ClassicTFIDF{}
	case TypeBM25:
		return termindex.DefaultBM25()
	}
	return termindex.Count{}
}

func rankBoost(rank int) float64 {
	if rank < 1 {
		return 0
	}
	return 1 / math.Sqrt(float64(rank))
}

// termIndex serves TFIDF, LUCENE and BM25
type termIndex struct {
	cfg Config
	ix  *termindex.Index
	pre *textproc.Preprocessor
}

func (t *termIndex) Config() Config { return t.cfg }

func (t *termIndex) Search(ctx context.Context, c *types.Constraint) ([]Result, error) {
	return t.SearchText(ctx, t.cfg.Input.Extract(c))
}

func (t *termIndex) SearchText(ctx context.Context, text string) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hits, err := t.ix.SearchTerms(t.pre.Preprocess(text, true), FieldContent)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		block, err := blockFromStored(h.Stored)
		if err != nil {
			return nil, err
		}
		results = append(results, Result{Entity: block, Rank: h.Rank, Score: h.Score})
	}
	return results, nil
}

// lsiIndex serves LSI. The key of every model document is a block ID.
type lsiIndex struct {
	cfg   Config
	model *embedder.Model
	pre   *textproc.Preprocessor
}

func (l *lsiIndex) Config() Config { return l.cfg }

func (l *lsiIndex) Search(ctx context.Context, c *types.Constraint) ([]Result, error) {
	return l.SearchText(ctx, l.cfg.Input.Extract(c))
}

func (l *lsiIndex) SearchText(ctx context.Context, text string) ([]Result, error) {
	terms := l.pre.Preprocess(text, true)
	if len(terms) == 0 {
		return nil, nil
	}
	matches, err := l.model.Search(ctx, terms)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(matches))
	for i, m := range matches {
		block, err := types.ParseTextBlockID(m.Key)
		if err != nil {
			return nil, types.NewInvariantError("baseline.Search", "LSI document %q: %v", m.Key, err)
		}
		results = append(results, Result{Entity: block, Rank: i + 1, Score: m.Score})
	}
	return results, nil
}

func blockFromStored(stored map[string]string) (types.TextBlock, error) {
	begin, err := strconv.Atoi(stored[FieldBegin])
	if err != nil {
		return types.TextBlock{}, types.NewInvariantError("baseline.Search", "document %s has no begin line", stored[FieldID])
	}
	end, err := strconv.Atoi(stored[FieldEnd])
	if err != nil {
		return types.TextBlock{}, types.NewInvariantError("baseline.Search", "document %s has no end line", stored[FieldID])
	}
	file, ok := stored[FieldFile]
	if !ok {
		return types.TextBlock{}, types.NewInvariantError("baseline.Search", "document %s has no file", stored[FieldID])
	}
	return types.TextBlock{File: file, LineBegin: begin, LineEnd: end}, nil
}

func document(b types.TextBlock, content string) termindex.Document {
	return termindex.Document{Fields: map[string]string{
		FieldID:      b.ID(),
		FieldFile:    b.File,
		FieldBegin:   strconv.Itoa(b.LineBegin),
		FieldEnd:     strconv.Itoa(b.LineEnd),
		FieldContent: content,
	}}
}

func validate(cfg Config) error {
	if _, err := ParseType(string(cfg.Type)); err != nil {
		return err
	}
	switch cfg.Input {
	case InputText, InputOperands, InputContext:
	default:
		return fmt.Errorf("unknown baseline input %q", cfg.Input)
	}
	if cfg.Type == TypeLSI && cfg.Dimension < 1 {
		return fmt.Errorf("LSI dimension must be positive, got %d", cfg.Dimension)
	}
	return nil
}
