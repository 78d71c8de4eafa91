package parser

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/dshills/lasso-mcp/pkg/types"
)

// Walk visits n and its named descendants depth first in source order.
// Returning false from fn skips the node's children.
func Walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		Walk(n.NamedChild(i), fn)
	}
}

// Text returns the source text of n
func (f *File) Text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(f.Source[n.StartByte():n.EndByte()])
}

// Line returns the 1-based start line of n
func Line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

// RangeOf converts the node's points to a 1-based range
func RangeOf(n *sitter.Node) types.Range {
	s, e := n.StartPoint(), n.EndPoint()
	return types.Range{
		Begin: types.Position{Line: int(s.Row) + 1, Column: int(s.Column) + 1},
		End:   types.Position{Line: int(e.Row) + 1, Column: int(e.Column)},
	}
}

// Unwrap strips enclosing parentheses
func Unwrap(n *sitter.Node) *sitter.Node {
	for n != nil && n.Type() == "parenthesized_expression" && n.NamedChildCount() > 0 {
		n = n.NamedChild(0)
	}
	return n
}

func isMethodLike(t string) bool {
	switch t {
	case "method_declaration", "constructor_declaration", "compact_constructor_declaration", "static_initializer":
		return true
	}
	return false
}

func isClassLike(t string) bool {
	switch t {
	case "class_declaration", "interface_declaration", "enum_declaration", "record_declaration":
		return true
	}
	return false
}

func isStatement(t string) bool {
	if strings.HasSuffix(t, "_statement") {
		return true
	}
	switch t {
	case "local_variable_declaration", "field_declaration", "constant_declaration", "enum_constant":
		return true
	}
	return false
}

// EnclosingMethod returns the nearest method, constructor or initializer
// containing n, or nil
func EnclosingMethod(n *sitter.Node) *sitter.Node {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if isMethodLike(p.Type()) {
			return p
		}
		if isClassLike(p.Type()) {
			return nil
		}
	}
	return nil
}

// EnclosingClass returns the nearest class-like declaration containing n
func EnclosingClass(n *sitter.Node) *sitter.Node {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if isClassLike(p.Type()) {
			return p
		}
	}
	return nil
}

// EnclosingStatement returns the innermost statement or declaration
// containing n, n itself included
func EnclosingStatement(n *sitter.Node) *sitter.Node {
	for p := n; p != nil; p = p.Parent() {
		if isStatement(p.Type()) {
			return p
		}
		if isMethodLike(p.Type()) || isClassLike(p.Type()) {
			return nil
		}
	}
	return nil
}

// MethodName names a method-like node; constructors are <init> and static
// initializers <clinit>
func (f *File) MethodName(m *sitter.Node) string {
	switch m.Type() {
	case "constructor_declaration", "compact_constructor_declaration":
		return types.ConstructorName
	case "static_initializer":
		return types.StaticInitializerName
	}
	return f.Text(m.ChildByFieldName("name"))
}

// ClassName returns the simple name of the class containing n
func (f *File) ClassName(n *sitter.Node) string {
	c := EnclosingClass(n)
	if c == nil {
		return ""
	}
	return f.Text(c.ChildByFieldName("name"))
}

func (f *File) methodOf(n *sitter.Node) (types.Method, bool) {
	class := f.ClassName(n)
	name := f.MethodName(n)
	if class == "" || name == "" {
		return types.Method{}, false
	}
	kind := types.MethodDeclared
	switch n.Type() {
	case "constructor_declaration", "compact_constructor_declaration":
		kind = types.MethodConstructor
	case "static_initializer":
		kind = types.MethodInitializer
	}
	return types.Method{ClassName: class, Name: name, Kind: kind, Range: RangeOf(n)}, true
}

func (f *File) callOf(n *sitter.Node) (types.CallSite, bool) {
	m := EnclosingMethod(n)
	if m == nil {
		return types.CallSite{}, false
	}
	caller := types.MethodKey(f.ClassName(m), f.MethodName(m))

	call := types.CallSite{Caller: caller, Line: Line(n)}
	if n.Type() == "object_creation_expression" {
		call.Callee = types.ConstructorName
		call.Scope = simpleTypeName(f.Text(n.ChildByFieldName("type")))
	} else {
		call.Callee = f.Text(n.ChildByFieldName("name"))
		call.Scope = f.Text(n.ChildByFieldName("object"))
	}
	return call, call.Callee != ""
}

// simpleTypeName drops generic arguments and package qualifiers
func simpleTypeName(t string) string {
	if i := strings.Index(t, "<"); i >= 0 {
		t = t[:i]
	}
	if i := strings.LastIndex(t, "."); i >= 0 {
		t = t[i+1:]
	}
	return strings.TrimSpace(t)
}

// LocationOf builds the pattern location of n
func (f *File) LocationOf(n *sitter.Node) types.Location {
	loc := types.Location{
		PackagePath: f.PackagePath,
		FilePath:    f.Path,
		Range:       RangeOf(n),
		ClassName:   f.ClassName(n),
	}
	if m := EnclosingMethod(n); m != nil {
		r := RangeOf(m)
		loc.MethodRange = &r
		loc.MethodName = f.MethodName(m)
	}
	return loc
}
