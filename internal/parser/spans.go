package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/dshills/lasso-mcp/pkg/types"
)

// Spans returns the identifier, literal and comment spans of a file in
// source order. Block comments yield one span per non-empty line.
func Spans(f *File) []types.TextSpan {
	return SpansOf(f, f.Root)
}

// SpansOf returns the spans inside the subtree rooted at root
func SpansOf(f *File, root *sitter.Node) []types.TextSpan {
	var spans []types.TextSpan

	Walk(root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "identifier", "type_identifier":
			spans = append(spans, f.span(n, types.SpanIdentifier, f.Text(n), Line(n)))
			return false
		case "decimal_integer_literal", "hex_integer_literal", "octal_integer_literal",
			"binary_integer_literal", "decimal_floating_point_literal", "hex_floating_point_literal":
			spans = append(spans, f.span(n, types.SpanNumber, f.Text(n), Line(n)))
			return false
		case "string_literal", "character_literal":
			text := strings.Trim(f.Text(n), "\"'")
			if text != "" {
				spans = append(spans, f.span(n, types.SpanString, text, Line(n)))
			}
			return false
		case "line_comment", "block_comment":
			spans = append(spans, f.commentSpans(n)...)
			return false
		}
		return true
	})
	return spans
}

func (f *File) span(n *sitter.Node, t types.SpanType, text string, line int) types.TextSpan {
	loc := types.SpanLocation{File: f.PackagePath, ClassName: f.ClassName(n)}
	if m := EnclosingMethod(n); m != nil {
		r := RangeOf(m)
		loc.MethodRange = &r
		loc.MethodName = f.MethodName(m)
	}
	if st := EnclosingStatement(n); st != nil {
		r := RangeOf(st)
		loc.StatementRange = &r
	}
	return types.TextSpan{Type: t, Line: line, Text: text, Location: loc}
}

func (f *File) commentSpans(n *sitter.Node) []types.TextSpan {
	raw := f.Text(n)
	doc := strings.HasPrefix(raw, "/**")
	first := Line(n)

	var spans []types.TextSpan
	for i, line := range strings.Split(raw, "\n") {
		text := cleanCommentLine(line)
		if text == "" {
			continue
		}
		s := f.span(n, types.SpanComment, text, first+i)
		s.DocComment = doc
		spans = append(spans, s)
	}
	return spans
}

func cleanCommentLine(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "//")
	line = strings.TrimPrefix(line, "/**")
	line = strings.TrimPrefix(line, "/*")
	line = strings.TrimSuffix(line, "*/")
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "*")
	return strings.TrimSpace(line)
}
