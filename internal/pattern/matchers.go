package pattern

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/dshills/lasso-mcp/internal/parser"
	"github.com/dshills/lasso-mcp/pkg/types"
)

func single(p *types.Pattern) []*types.Pattern {
	return []*types.Pattern{p}
}

func isNull(n *sitter.Node) bool {
	n = parser.Unwrap(n)
	return n != nil && n.Type() == "null_literal"
}

// nullCheckOperand returns the expression compared against null by an
// == or != expression
func nullCheckOperand(n *sitter.Node) (*sitter.Node, bool) {
	n = parser.Unwrap(n)
	if n == nil || n.Type() != "binary_expression" {
		return nil, false
	}
	if op := operator(n); op != "==" && op != "!=" {
		return nil, false
	}
	left, right := n.ChildByFieldName("left"), n.ChildByFieldName("right")
	switch {
	case isNull(left) && !isNull(right):
		return right, true
	case isNull(right) && !isNull(left):
		return left, true
	}
	return nil, false
}

// NULL_CHECK: x == null, null != x

type nullCheckMatcher struct{}

func (nullCheckMatcher) Type() types.PatternType { return types.PatternNullCheck }

func (m nullCheckMatcher) Match(s *Source, n *sitter.Node) []*types.Pattern {
	operand, ok := nullCheckOperand(n)
	if !ok {
		return nil
	}
	return single(s.newPattern(m.Type(), n, true, operand))
}

// BINARY_COMPARISON: relational, equality and logical operators between
// two different non-null operands, and a.equals(b)

type binaryComparisonMatcher struct{}

var comparisonOperators = map[string]bool{
	"||": true, "&&": true, "==": true, "!=": true,
	"<": true, ">": true, "<=": true, ">=": true,
}

func (binaryComparisonMatcher) Type() types.PatternType { return types.PatternBinaryComparison }

func (m binaryComparisonMatcher) Match(s *Source, n *sitter.Node) []*types.Pattern {
	switch n.Type() {
	case "binary_expression":
		left, right := n.ChildByFieldName("left"), n.ChildByFieldName("right")
		if !comparisonOperators[operator(n)] || isNull(left) || isNull(right) || s.same(left, right) {
			return nil
		}
		return single(s.newPattern(m.Type(), n, true, left, right))
	case "method_invocation":
		args := arguments(n)
		if s.Text(n.ChildByFieldName("name")) != "equals" || len(args) != 1 {
			return nil
		}
		var operands []*sitter.Node
		if obj := n.ChildByFieldName("object"); obj != nil {
			operands = append(operands, obj)
		}
		operands = append(operands, args[0])
		return single(s.newPattern(m.Type(), n, true, operands...))
	}
	return nil
}

// SELF_COMPARISON: x == x, x != x

type selfComparisonMatcher struct{}

func (selfComparisonMatcher) Type() types.PatternType { return types.PatternSelfComparison }

func (m selfComparisonMatcher) Match(s *Source, n *sitter.Node) []*types.Pattern {
	if n.Type() != "binary_expression" {
		return nil
	}
	if op := operator(n); op != "==" && op != "!=" {
		return nil
	}
	left := n.ChildByFieldName("left")
	if !s.same(left, n.ChildByFieldName("right")) {
		return nil
	}
	return single(s.newPattern(m.Type(), n, true, left))
}

// BINARY_FLAG_CHECK: bitwise &, | and ^

type binaryFlagCheckMatcher struct{}

func (binaryFlagCheckMatcher) Type() types.PatternType { return types.PatternBinaryFlagCheck }

func (m binaryFlagCheckMatcher) Match(s *Source, n *sitter.Node) []*types.Pattern {
	if n.Type() != "binary_expression" {
		return nil
	}
	switch operator(n) {
	case "&", "|", "^":
		return single(s.newPattern(m.Type(), n, true, n.ChildByFieldName("left"), n.ChildByFieldName("right")))
	}
	return nil
}

// NULL_EMPTY_CHECK and NULL_ZERO_CHECK: a null check on the left of || or
// && followed by an emptiness or zero-size test of the same operand

type augmentedNullCheckMatcher struct {
	kind types.PatternType
	// other returns the operand tested by the right-hand side
	other func(s *Source, n *sitter.Node) (*sitter.Node, bool)
}

func (m augmentedNullCheckMatcher) Type() types.PatternType { return m.kind }

func (m augmentedNullCheckMatcher) Match(s *Source, n *sitter.Node) []*types.Pattern {
	if n.Type() != "binary_expression" {
		return nil
	}
	if op := operator(n); op != "||" && op != "&&" {
		return nil
	}
	operand, ok := nullCheckOperand(n.ChildByFieldName("left"))
	if !ok {
		return nil
	}
	other, ok := m.other(s, parser.Unwrap(n.ChildByFieldName("right")))
	if !ok || !s.same(operand, other) {
		return nil
	}
	return single(s.newPattern(m.kind, n, true, operand))
}

// emptyCheckOperand matches x.isEmpty() and !x.isEmpty()
func emptyCheckOperand(s *Source, n *sitter.Node) (*sitter.Node, bool) {
	if n == nil {
		return nil, false
	}
	if n.Type() == "unary_expression" && operator(n) == "!" {
		n = parser.Unwrap(n.ChildByFieldName("operand"))
	}
	if n == nil || n.Type() != "method_invocation" || len(arguments(n)) != 0 {
		return nil, false
	}
	if s.Text(n.ChildByFieldName("name")) != "isEmpty" {
		return nil, false
	}
	obj := n.ChildByFieldName("object")
	return obj, obj != nil
}

// zeroCheckOperand matches x.size() == 0, x.length() > 0, x.length != 0
// and their mirrored forms
func zeroCheckOperand(s *Source, n *sitter.Node) (*sitter.Node, bool) {
	if n == nil || n.Type() != "binary_expression" {
		return nil, false
	}
	switch operator(n) {
	case "==", "!=", "<", ">", "<=", ">=":
	default:
		return nil, false
	}

	left, right := parser.Unwrap(n.ChildByFieldName("left")), parser.Unwrap(n.ChildByFieldName("right"))
	isZero := func(x *sitter.Node) bool {
		v, kind, ok := s.constant(x, false)
		return ok && kind == constantInteger && v == "0"
	}
	var sized *sitter.Node
	switch {
	case isZero(right):
		sized = left
	case isZero(left):
		sized = right
	default:
		return nil, false
	}

	switch sized.Type() {
	case "method_invocation":
		name := s.Text(sized.ChildByFieldName("name"))
		if (name == "size" || name == "length") && len(arguments(sized)) == 0 {
			obj := sized.ChildByFieldName("object")
			return obj, obj != nil
		}
	case "field_access":
		if s.Text(sized.ChildByFieldName("field")) == "length" {
			return sized.ChildByFieldName("object"), true
		}
	}
	return nil, false
}

// BOOLEAN_PROPERTY: a name, field access or call used where Java requires
// a boolean (conditions, operands of !, && and ||). Without type
// resolution only these positions are decidable.

type booleanPropertyMatcher struct{}

func (booleanPropertyMatcher) Type() types.PatternType { return types.PatternBooleanProperty }

func (m booleanPropertyMatcher) Match(s *Source, n *sitter.Node) []*types.Pattern {
	switch n.Type() {
	case "identifier", "field_access", "method_invocation":
	default:
		return nil
	}
	if !inBooleanPosition(n) {
		return nil
	}
	return single(s.newPattern(m.Type(), n, true, n))
}

func inBooleanPosition(n *sitter.Node) bool {
	parent, child := logicalParent(n)
	if parent == nil {
		return false
	}
	switch parent.Type() {
	case "unary_expression":
		return operator(parent) == "!"
	case "binary_expression":
		op := operator(parent)
		return op == "&&" || op == "||"
	case "if_statement", "while_statement", "do_statement", "for_statement", "ternary_expression":
		return sameNode(parent.ChildByFieldName("condition"), child)
	}
	return false
}

// CONSTANT_ARGUMENT: a literal passed to a method or constructor. One
// instance per distinct literal argument.

type constantArgumentMatcher struct{}

func (constantArgumentMatcher) Type() types.PatternType { return types.PatternConstantArgument }

func (m constantArgumentMatcher) Match(s *Source, n *sitter.Node) []*types.Pattern {
	var attribute string
	switch n.Type() {
	case "method_invocation":
		name := s.Text(n.ChildByFieldName("name"))
		if obj := n.ChildByFieldName("object"); obj != nil && obj.Type() != "this" {
			attribute = normalizeSpace(s.Text(obj)) + "." + name
		} else {
			attribute = s.ClassName(n) + "." + name
		}
	case "object_creation_expression":
		attribute = normalizeSpace(s.Text(n.ChildByFieldName("type"))) + "." + types.ConstructorName
	case "explicit_constructor_invocation":
		attribute = s.ClassName(n) + "." + types.ConstructorName
	default:
		return nil
	}

	var patterns []*types.Pattern
	seen := make(map[string]bool)
	for _, arg := range arguments(n) {
		value, _, ok := s.constant(arg, false)
		if !ok {
			continue
		}
		key := value + "\x00" + s.Text(arg)
		if seen[key] {
			continue
		}
		seen[key] = true

		p := s.newPattern(m.Type(), n, false, n, arg)
		// Each argument gets its own range so instances on one call stay distinct
		p.Location.Range.End = parser.RangeOf(arg).End
		p.Constant = &value
		p.Attribute = &types.Attribute{Name: attribute, Type: types.AttributeMethod}
		patterns = append(patterns, p)
	}
	return patterns
}

// ASSIGN_CONSTANT: a declaration initialized with a literal, or an
// assignment of a literal (null included) to a name or field

type assignConstantMatcher struct{}

func (assignConstantMatcher) Type() types.PatternType { return types.PatternAssignConstant }

func (m assignConstantMatcher) Match(s *Source, n *sitter.Node) []*types.Pattern {
	switch n.Type() {
	case "variable_declarator":
		value, _, ok := s.constant(n.ChildByFieldName("value"), false)
		if !ok {
			return nil
		}
		name := n.ChildByFieldName("name")
		attr, ok := s.declaratorAttribute(n, s.Text(name))
		if !ok {
			return nil
		}
		p := s.newPattern(m.Type(), n, true, name, n.ChildByFieldName("value"))
		p.Constant = &value
		p.Attribute = &attr
		return single(p)

	case "assignment_expression":
		if operator(n) != "=" {
			return nil
		}
		value, _, ok := s.constant(n.ChildByFieldName("right"), true)
		if !ok {
			return nil
		}
		target := parser.Unwrap(n.ChildByFieldName("left"))
		attr, ok := s.targetAttribute(target)
		if !ok {
			return nil
		}
		p := s.newPattern(m.Type(), n, true, target, n.ChildByFieldName("right"))
		p.Constant = &value
		p.Attribute = &attr
		return single(p)
	}
	return nil
}

func (s *Source) declaratorAttribute(declarator *sitter.Node, name string) (types.Attribute, bool) {
	parent := declarator.Parent()
	if parent == nil {
		return types.Attribute{}, false
	}
	switch parent.Type() {
	case "field_declaration", "constant_declaration":
		return types.Attribute{Name: s.ClassName(declarator) + "." + name, Type: types.AttributeField}, true
	case "local_variable_declaration":
		return s.localAttribute(declarator, name, types.AttributeLocalVariable)
	}
	return types.Attribute{}, false
}

func (s *Source) localAttribute(n *sitter.Node, name string, t types.AttributeType) (types.Attribute, bool) {
	m := parser.EnclosingMethod(n)
	if m == nil {
		return types.Attribute{}, false
	}
	return types.Attribute{
		Name: strings.Join([]string{s.ClassName(m), s.MethodName(m), name}, "."),
		Type: t,
	}, true
}

func (s *Source) targetAttribute(target *sitter.Node) (types.Attribute, bool) {
	if target == nil {
		return types.Attribute{}, false
	}
	switch target.Type() {
	case "identifier":
		name := s.Text(target)
		d, ok := s.resolver.resolve(target)
		if !ok {
			return types.Attribute{}, false
		}
		switch d.kind {
		case declLocal:
			return s.localAttribute(target, name, types.AttributeLocalVariable)
		case declParameter:
			return s.localAttribute(target, name, types.AttributeMethodParameter)
		case declField:
			return types.Attribute{Name: s.ClassName(d.node) + "." + name, Type: types.AttributeField}, true
		}
	case "field_access":
		field := s.Text(target.ChildByFieldName("field"))
		obj := target.ChildByFieldName("object")
		owner := s.ClassName(target)
		if obj != nil && obj.Type() != "this" {
			owner = normalizeSpace(s.Text(obj))
		}
		return types.Attribute{Name: owner + "." + field, Type: types.AttributeField}, true
	}
	return types.Attribute{}, false
}

// RETURN_CONSTANT: return of a literal

type returnConstantMatcher struct{}

func (returnConstantMatcher) Type() types.PatternType { return types.PatternReturnConstant }

func (m returnConstantMatcher) Match(s *Source, n *sitter.Node) []*types.Pattern {
	if n.Type() != "return_statement" || n.NamedChildCount() == 0 {
		return nil
	}
	expr := n.NamedChild(0)
	value, _, ok := s.constant(expr, false)
	if !ok {
		return nil
	}
	p := s.newPattern(m.Type(), n, true, expr)
	p.Constant = &value
	return single(p)
}

// IF_CHAIN: an if statement with at least one else-if. Only the outermost
// if of a chain matches, and only the first two conditions become operands.

type ifChainMatcher struct{}

func (ifChainMatcher) Type() types.PatternType { return types.PatternIfChain }

func (m ifChainMatcher) Match(s *Source, n *sitter.Node) []*types.Pattern {
	if n.Type() != "if_statement" {
		return nil
	}
	if p := n.Parent(); p != nil && p.Type() == "if_statement" {
		return nil
	}
	alt := n.ChildByFieldName("alternative")
	if alt == nil || alt.Type() != "if_statement" {
		return nil
	}
	return single(s.newPattern(m.Type(), n, true, n.ChildByFieldName("condition"), alt.ChildByFieldName("condition")))
}

// EQUALS_OR_CHAIN: a == 1 || a == 2 || a.equals(b) sharing one operand.
// Only the largest chain matches.

type equalsOrChainMatcher struct{}

type equality struct {
	first, second *sitter.Node
}

func (equalsOrChainMatcher) Type() types.PatternType { return types.PatternEqualsOrChain }

func (m equalsOrChainMatcher) Match(s *Source, n *sitter.Node) []*types.Pattern {
	if n.Type() != "binary_expression" || operator(n) != "||" {
		return nil
	}
	if parent, _ := logicalParent(n); parent != nil && parent.Type() == "binary_expression" {
		return nil
	}

	equalities := unravelChain(s, n)
	if len(equalities) < 2 {
		return nil
	}

	for _, candidate := range []*sitter.Node{equalities[0].first, equalities[0].second} {
		shared := true
		for _, e := range equalities[1:] {
			if !s.same(candidate, e.first) && !s.same(candidate, e.second) {
				shared = false
				break
			}
		}
		if shared {
			return single(s.newPattern(m.Type(), n, true, candidate))
		}
	}
	return nil
}

func extractEquality(s *Source, n *sitter.Node) (equality, bool) {
	switch n.Type() {
	case "binary_expression":
		if operator(n) == "==" {
			return equality{first: n.ChildByFieldName("left"), second: n.ChildByFieldName("right")}, true
		}
	case "method_invocation":
		args := arguments(n)
		obj := n.ChildByFieldName("object")
		if strings.HasPrefix(s.Text(n.ChildByFieldName("name")), "equals") && len(args) == 1 && obj != nil {
			return equality{first: obj, second: args[0]}, true
		}
	}
	return equality{}, false
}

// unravelChain flattens an || chain of equalities. Any other link makes
// the whole chain invalid.
func unravelChain(s *Source, n *sitter.Node) []equality {
	n = parser.Unwrap(n)
	if n == nil {
		return nil
	}
	if e, ok := extractEquality(s, n); ok {
		return []equality{e}
	}
	if n.Type() != "binary_expression" || operator(n) != "||" {
		return nil
	}
	left := unravelChain(s, n.ChildByFieldName("left"))
	if len(left) == 0 {
		return nil
	}
	right := unravelChain(s, n.ChildByFieldName("right"))
	if len(right) == 0 {
		return nil
	}
	return append(left, right...)
}

// SWITCH_LEN_CHAR: a top-level switch whose labels are all integer literals

type switchLenCharMatcher struct{}

func (switchLenCharMatcher) Type() types.PatternType { return types.PatternSwitchLenChar }

func (m switchLenCharMatcher) Match(s *Source, n *sitter.Node) []*types.Pattern {
	if n.Type() != "switch_expression" && n.Type() != "switch_statement" {
		return nil
	}
	parent := n.Parent()
	for parent != nil && parent.Type() == "expression_statement" {
		parent = parent.Parent()
	}
	if parent != nil && (parent.Type() == "switch_block_statement_group" || parent.Type() == "switch_rule") {
		return nil
	}

	labels := 0
	valid := true
	parser.Walk(n.ChildByFieldName("body"), func(c *sitter.Node) bool {
		if !valid {
			return false
		}
		switch c.Type() {
		case "switch_label":
			for i := 0; i < int(c.NamedChildCount()); i++ {
				_, kind, ok := s.constant(c.NamedChild(i), false)
				if !ok || kind != constantInteger {
					valid = false
					return false
				}
				labels++
			}
			return false
		case "switch_block", "switch_block_statement_group", "switch_rule":
			return true
		}
		return false
	})
	if !valid || labels == 0 {
		return nil
	}
	return single(s.newPattern(m.Type(), n, true, n.ChildByFieldName("condition")))
}
