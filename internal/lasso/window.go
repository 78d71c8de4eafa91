package lasso

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/dshills/lasso-mcp/internal/parser"
	"github.com/dshills/lasso-mcp/pkg/types"
)

// statement is a statement of a file with the text of the block it
// guards. Only if, while and do statements guard a block.
type statement struct {
	rng       types.Range
	kind      string
	condition types.Range
	block     string
}

// spanIndex holds the statements of one file, outermost first
type spanIndex struct {
	statements []statement
}

func newSpanIndex(f *parser.File) *spanIndex {
	idx := &spanIndex{}
	parser.Walk(f.Root, func(n *sitter.Node) bool {
		t := n.Type()
		if !strings.HasSuffix(t, "_statement") && t != "local_variable_declaration" {
			return true
		}
		st := statement{rng: parser.RangeOf(n), kind: t}
		if cond := n.ChildByFieldName("condition"); cond != nil {
			st.condition = parser.RangeOf(cond)
		}
		var bodies []*sitter.Node
		switch t {
		case "if_statement":
			bodies = append(bodies, n.ChildByFieldName("consequence"), n.ChildByFieldName("alternative"))
		case "while_statement", "do_statement":
			bodies = append(bodies, n.ChildByFieldName("body"))
		}
		var texts []string
		for _, b := range bodies {
			if b == nil {
				continue
			}
			for _, s := range parser.SpansOf(f, b) {
				texts = append(texts, s.Text)
			}
		}
		st.block = strings.Join(texts, " ")
		idx.statements = append(idx.statements, st)
		return true
	})
	return idx
}

// window returns the raw text of the block a pattern guards. A pattern
// guards the bodies of the if, while or do statement whose condition it is
// part of; an if statement pattern guards its own branches. Anything else
// guards nothing.
func (idx *spanIndex) window(r types.Range) string {
	var innermost *statement
	for i := range idx.statements {
		if idx.statements[i].rng.Contains(r) {
			innermost = &idx.statements[i]
		}
	}
	if innermost == nil {
		return ""
	}
	if innermost.rng == r && innermost.kind == "if_statement" {
		return innermost.block
	}
	if !innermost.condition.IsZero() && innermost.condition.Contains(r) {
		return innermost.block
	}
	return ""
}

// spanCache is a bounded file path -> span index cache
type spanCache struct {
	parser *parser.Parser
	cache  *lru.Cache[string, *spanIndex]
}

func newSpanCache(size int) (*spanCache, error) {
	if size <= 0 {
		size = 10
	}
	cache, err := lru.New[string, *spanIndex](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create span cache: %w", err)
	}
	return &spanCache{parser: parser.New(), cache: cache}, nil
}

func (c *spanCache) get(ctx context.Context, path string) (*spanIndex, error) {
	if idx, ok := c.cache.Get(path); ok {
		return idx, nil
	}
	f, err := c.parser.Parse(ctx, path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	idx := newSpanIndex(f)
	c.cache.Add(path, idx)
	return idx, nil
}
