// Package baseline implements the conventional text-retrieval techniques
// that Lasso is compared against and that boost or filter its results.
//
// Every technique indexes text blocks (source text merged at method,
// statement or line granularity) and answers a constraint with ranked
// blocks. TFIDF, LUCENE and BM25 are term indexes with different
// similarities; LSI retrieves by cosine similarity in a latent space.
package baseline

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/lasso-mcp/internal/chunker"
	"github.com/dshills/lasso-mcp/pkg/types"
)

// Type is a retrieval technique
type Type string

const (
	TypeTFIDF  Type = "TFIDF"
	TypeLucene Type = "LUCENE"
	TypeBM25   Type = "BM25"
	TypeLSI    Type = "LSI"
)

// AllTypes lists the techniques in report order
var AllTypes = []Type{TypeTFIDF, TypeLucene, TypeBM25, TypeLSI}

// ParseType accepts the name in any case
func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown baseline type %q", s)
}

// PrettyName is the label used in reports
func (t Type) PrettyName() string {
	switch t {
	case TypeTFIDF:
		return "TF-IDF"
	case TypeLucene:
		return "Lucene"
	case TypeBM25:
		return "BM25"
	case TypeLSI:
		return "LSI"
	}
	return string(t)
}

// Input selects the constraint text used as the query
type Input string

const (
	InputText     Input = "TEXT"
	InputOperands Input = "OPERANDS"
	InputContext  Input = "CONTEXT"
)

// Extract returns the raw query text of a constraint
func (i Input) Extract(c *types.Constraint) string {
	switch i {
	case InputOperands:
		return strings.Join(c.Operands, " ")
	case InputContext:
		return c.Context
	}
	return c.Text
}

// DefaultDimension is the LSI dimensionality used when none is configured
const DefaultDimension = 300

// Config identifies one baseline index of a project
type Config struct {
	Type      Type
	Input     Input
	Output    chunker.Granularity
	Dimension int // LSI only
}

// NewConfig fills in the TEXT input and the default dimension
func NewConfig(t Type, output chunker.Granularity) Config {
	return Config{Type: t, Input: InputText, Output: output, Dimension: DefaultDimension}
}

func (c Config) String() string {
	return c.Type.PrettyName()
}

// Defaults are the method-level baselines reported next to Lasso and used
// to boost it: TFIDF and BM25 over the constraint context, LSI over the
// operands
func Defaults(lsiDimension int) []Config {
	if lsiDimension <= 0 {
		lsiDimension = DefaultDimension
	}
	return []Config{
		{Type: TypeTFIDF, Input: InputContext, Output: chunker.GranularityMethod},
		{Type: TypeBM25, Input: InputContext, Output: chunker.GranularityMethod},
		{Type: TypeLSI, Input: InputOperands, Output: chunker.GranularityMethod, Dimension: lsiDimension},
	}
}

// IndexName is TYPE_project_OUTPUT, with the dimension appended for LSI
func IndexName(project string, c Config) string {
	name := fmt.Sprintf("%s_%s_%s", c.Type, project, c.Output)
	if c.Type == TypeLSI {
		name = fmt.Sprintf("%s_%d", name, c.Dimension)
	}
	return name
}

// Result is a ranked text block
type Result = types.RankedResult[types.TextBlock]

// Index answers constraints with ranked text blocks. Implementations are
// safe for concurrent searches.
type Index interface {
	Config() Config
	// Search queries with the configured input text of the constraint
	Search(ctx context.Context, c *types.Constraint) ([]Result, error)
	// SearchText queries with raw text
	SearchText(ctx context.Context, text string) ([]Result, error)
}

// Boosts converts ranked results to per-line boosts of 1/sqrt(rank). A
// line covered by several results keeps the largest boost.
func Boosts(results []Result) map[string]float64 {
	boosts := make(map[string]float64)
	for _, r := range results {
		b := rankBoost(r.Rank)
		for l := r.Entity.LineBegin; l <= r.Entity.LineEnd; l++ {
			key := types.LineKey(r.Entity.File, l)
			if b > boosts[key] {
				boosts[key] = b
			}
		}
	}
	return boosts
}

// LineSet returns every file:line key covered by the results
func LineSet(results []Result) map[string]struct{} {
	lines := make(map[string]struct{})
	for _, r := range results {
		for l := r.Entity.LineBegin; l <= r.Entity.LineEnd; l++ {
			lines[types.LineKey(r.Entity.File, l)] = struct{}{}
		}
	}
	return lines
}
