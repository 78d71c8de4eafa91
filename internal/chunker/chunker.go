package chunker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/lasso-mcp/pkg/types"
)

// Granularity is the unit text spans are merged into
type Granularity string

const (
	GranularityMethod    Granularity = "METHOD"
	GranularityStatement Granularity = "STATEMENT"
	GranularityLine      Granularity = "LINE"
)

// ParseGranularity accepts the upper- or lower-case name
func ParseGranularity(s string) (Granularity, error) {
	g := Granularity(strings.ToUpper(strings.TrimSpace(s)))
	switch g {
	case GranularityMethod, GranularityStatement, GranularityLine:
		return g, nil
	}
	return "", fmt.Errorf("unknown granularity %q", s)
}

// Chunker merges text spans into text blocks at one granularity
type Chunker struct {
	granularity Granularity
}

// New creates a new Chunker instance
func New(g Granularity) *Chunker {
	return &Chunker{granularity: g}
}

// Granularity returns the configured granularity
func (c *Chunker) Granularity() Granularity {
	return c.granularity
}

type blockKey struct {
	file       string
	begin, end int
}

// Blocks groups spans by their location range and merges each group's text.
// Blocks come back ordered by file, then line range. Blocks with no text
// are dropped.
func (c *Chunker) Blocks(spans []types.TextSpan) []types.TextBlock {
	ordered := make([]types.TextSpan, len(spans))
	copy(ordered, spans)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Location.File != ordered[j].Location.File {
			return ordered[i].Location.File < ordered[j].Location.File
		}
		return ordered[i].Line < ordered[j].Line
	})

	if c.granularity == GranularityLine {
		ordered = dropCommentOnlyLines(ordered)
	}

	groups := make(map[blockKey][]string)
	var keys []blockKey
	for _, span := range ordered {
		key, ok := c.keyOf(span)
		if !ok {
			continue
		}
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		if text := strings.TrimSpace(span.Text); text != "" {
			groups[key] = append(groups[key], text)
		} else if _, seen := groups[key]; !seen {
			groups[key] = nil
		}
	}

	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.file != b.file {
			return a.file < b.file
		}
		if a.begin != b.begin {
			return a.begin < b.begin
		}
		return a.end < b.end
	})

	blocks := make([]types.TextBlock, 0, len(keys))
	for _, key := range keys {
		texts := groups[key]
		if len(texts) == 0 {
			continue
		}
		blocks = append(blocks, types.TextBlock{
			File:      key.file,
			LineBegin: key.begin,
			LineEnd:   key.end,
			Text:      strings.Join(texts, " "),
		})
	}
	return blocks
}

// keyOf picks the range a span belongs to. Method granularity falls back to
// the statement range, and both fall back to the span's own line.
func (c *Chunker) keyOf(span types.TextSpan) (blockKey, bool) {
	loc := span.Location
	if loc.File == "" || span.Line <= 0 {
		return blockKey{}, false
	}

	var r *types.Range
	switch c.granularity {
	case GranularityMethod:
		r = loc.MethodRange
		if r == nil {
			r = loc.StatementRange
		}
	case GranularityStatement:
		r = loc.StatementRange
	}

	if r == nil || r.IsZero() {
		return blockKey{file: loc.File, begin: span.Line, end: span.Line}, true
	}
	return blockKey{file: loc.File, begin: r.Begin.Line, end: r.End.Line}, true
}

// dropCommentOnlyLines removes spans on lines that carry nothing but comments
func dropCommentOnlyLines(spans []types.TextSpan) []types.TextSpan {
	type lineKey struct {
		file string
		line int
	}
	hasCode := make(map[lineKey]bool)
	for _, s := range spans {
		if s.Type != types.SpanComment {
			hasCode[lineKey{s.Location.File, s.Line}] = true
		}
	}

	kept := spans[:0]
	for _, s := range spans {
		if hasCode[lineKey{s.Location.File, s.Line}] {
			kept = append(kept, s)
		}
	}
	return kept
}
