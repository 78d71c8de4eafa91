package pattern

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/dshills/lasso-mcp/internal/parser"
	"github.com/dshills/lasso-mcp/pkg/types"
)

// Matcher recognizes one pattern type. Match is called for every named
// node of a file and returns the instances rooted at that node.
type Matcher interface {
	Type() types.PatternType
	Match(s *Source, n *sitter.Node) []*types.Pattern
}

// Registry maps pattern types to their matchers. It is built once and only
// read afterwards.
type Registry struct {
	matchers map[types.PatternType]Matcher
	order    []types.PatternType
}

// NewRegistry creates a registry holding the given matchers
func NewRegistry(matchers ...Matcher) (*Registry, error) {
	r := &Registry{matchers: make(map[types.PatternType]Matcher, len(matchers))}
	for _, m := range matchers {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRegistry holds a matcher for every known pattern type
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		assignConstantMatcher{},
		binaryComparisonMatcher{},
		binaryFlagCheckMatcher{},
		booleanPropertyMatcher{},
		constantArgumentMatcher{},
		equalsOrChainMatcher{},
		ifChainMatcher{},
		nullCheckMatcher{},
		augmentedNullCheckMatcher{kind: types.PatternNullEmptyCheck, other: emptyCheckOperand},
		augmentedNullCheckMatcher{kind: types.PatternNullZeroCheck, other: zeroCheckOperand},
		returnConstantMatcher{},
		selfComparisonMatcher{},
		switchLenCharMatcher{},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Register adds a matcher. A pattern type can only be registered once.
func (r *Registry) Register(m Matcher) error {
	if _, err := types.ParsePatternType(string(m.Type())); err != nil {
		return err
	}
	if _, ok := r.matchers[m.Type()]; ok {
		return fmt.Errorf("matcher for %s already registered", m.Type())
	}
	r.matchers[m.Type()] = m
	r.order = append(r.order, m.Type())
	return nil
}

// Get returns the matcher of a pattern type
func (r *Registry) Get(t types.PatternType) (Matcher, bool) {
	m, ok := r.matchers[t]
	return m, ok
}

// Matchers returns the registered matchers in registration order
func (r *Registry) Matchers() []Matcher {
	out := make([]Matcher, len(r.order))
	for i, t := range r.order {
		out[i] = r.matchers[t]
	}
	return out
}

// Types returns the registered pattern types in registration order
func (r *Registry) Types() []types.PatternType {
	return append([]types.PatternType(nil), r.order...)
}

// Source is a parsed file as seen by the matchers
type Source struct {
	*parser.File
	resolver *resolver
}

// NewSource wraps a parsed file for matching
func NewSource(f *parser.File, logger hclog.Logger) *Source {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Source{File: f, resolver: &resolver{file: f, logger: logger}}
}

// MatchAll runs every matcher of the registry over the whole file
func (s *Source) MatchAll(r *Registry) []*types.Pattern {
	matchers := r.Matchers()
	var patterns []*types.Pattern
	parser.Walk(s.Root, func(n *sitter.Node) bool {
		for _, m := range matchers {
			patterns = append(patterns, m.Match(s, n)...)
		}
		return true
	})
	return patterns
}

func (s *Source) newPattern(t types.PatternType, at *sitter.Node, fullCalls bool, operands ...*sitter.Node) *types.Pattern {
	return &types.Pattern{
		Type:     t,
		Location: s.LocationOf(at),
		Operands: s.operands(fullCalls, operands...),
	}
}

// operands converts raw nodes to operands. Without fullCalls a method
// call contributes only its receiver and name.
func (s *Source) operands(fullCalls bool, nodes ...*sitter.Node) []types.Operand {
	out := make([]types.Operand, 0, len(nodes))
	for _, n := range nodes {
		n = parser.Unwrap(n)
		if n == nil {
			continue
		}
		out = append(out, types.Operand{
			Text:       s.operandText(n, fullCalls),
			Definition: s.resolver.definition(n),
		})
	}
	return out
}

func (s *Source) operandText(n *sitter.Node, fullCalls bool) string {
	if !fullCalls {
		switch n.Type() {
		case "method_invocation":
			name := s.Text(n.ChildByFieldName("name"))
			if obj := n.ChildByFieldName("object"); obj != nil {
				return normalizeSpace(s.Text(obj) + "." + name)
			}
			return name
		case "object_creation_expression":
			return "new " + normalizeSpace(s.Text(n.ChildByFieldName("type")))
		case "explicit_constructor_invocation":
			return s.Text(n.ChildByFieldName("constructor"))
		}
	}
	return normalizeSpace(s.Text(n))
}

// same compares two expressions by their source text, ignoring
// parentheses and whitespace
func (s *Source) same(a, b *sitter.Node) bool {
	a, b = parser.Unwrap(a), parser.Unwrap(b)
	if a == nil || b == nil {
		return false
	}
	return normalizeSpace(s.Text(a)) == normalizeSpace(s.Text(b))
}

func normalizeSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func operator(n *sitter.Node) string {
	if op := n.ChildByFieldName("operator"); op != nil {
		return op.Type()
	}
	return ""
}

func sameNode(a, b *sitter.Node) bool {
	return a != nil && b != nil &&
		a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

// logicalParent returns the nearest ancestor that is not a parenthesized
// expression, and the child of that ancestor on the path from n
func logicalParent(n *sitter.Node) (parent, child *sitter.Node) {
	child = n
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p.Type() != "parenthesized_expression" {
			return p, child
		}
		child = p
	}
	return nil, child
}

func arguments(n *sitter.Node) []*sitter.Node {
	args := n.ChildByFieldName("arguments")
	if args == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, args.NamedChildCount())
	for i := 0; i < int(args.NamedChildCount()); i++ {
		if c := args.NamedChild(i); c.Type() != "block_comment" && c.Type() != "line_comment" {
			out = append(out, c)
		}
	}
	return out
}
