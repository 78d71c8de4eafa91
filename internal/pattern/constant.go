package pattern

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/dshills/lasso-mcp/internal/parser"
)

type constantKind int

const (
	constantInteger constantKind = iota
	constantFloat
	constantString
	constantChar
	constantBoolean
	constantNull
)

// constant extracts a literal value from n. Negated numbers are constants;
// null only counts when allowNull is set.
func (s *Source) constant(n *sitter.Node, allowNull bool) (string, constantKind, bool) {
	n = parser.Unwrap(n)
	if n == nil {
		return "", 0, false
	}

	switch n.Type() {
	case "decimal_integer_literal", "hex_integer_literal", "octal_integer_literal", "binary_integer_literal":
		return normalizeNumber(s.Text(n), "lL"), constantInteger, true
	case "decimal_floating_point_literal", "hex_floating_point_literal":
		return normalizeNumber(s.Text(n), "fFdD"), constantFloat, true
	case "string_literal", "text_block":
		return s.Text(n), constantString, true
	case "character_literal":
		return s.Text(n), constantChar, true
	case "true", "false":
		return n.Type(), constantBoolean, true
	case "null_literal":
		if allowNull {
			return "null", constantNull, true
		}
	case "unary_expression":
		op := operator(n)
		if op != "-" && op != "+" {
			return "", 0, false
		}
		value, kind, ok := s.constant(n.ChildByFieldName("operand"), false)
		if !ok || (kind != constantInteger && kind != constantFloat) {
			return "", 0, false
		}
		if op == "-" {
			value = "-" + value
		}
		return value, kind, true
	}
	return "", 0, false
}

func normalizeNumber(text, suffixes string) string {
	text = strings.ReplaceAll(text, "_", "")
	return strings.TrimRight(text, suffixes)
}
