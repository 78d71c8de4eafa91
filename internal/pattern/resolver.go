package pattern

import (
	"strings"

	"github.com/hashicorp/go-hclog"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/dshills/lasso-mcp/internal/parser"
	"github.com/dshills/lasso-mcp/pkg/types"
)

type declarationKind int

const (
	declLocal declarationKind = iota + 1
	declParameter
	declField
	declMethod
	declConstructor
)

// declaration is the node a name resolves to within the same file
type declaration struct {
	kind declarationKind
	// node is the declarator, parameter or callable declaration
	node *sitter.Node
	// statement is the enclosing declaration used as definition text
	statement *sitter.Node
}

// resolver links operands to declarations in the same file. Resolution is
// syntactic and best effort: names are looked up in the enclosing method
// first, then in the enclosing classes.
type resolver struct {
	file   *parser.File
	logger hclog.Logger
}

// definition returns the data definition of an operand, or nil
func (r *resolver) definition(n *sitter.Node) *types.DataDefinition {
	d, ok := r.resolve(n)
	if !ok {
		return nil
	}
	text := r.file.Text(d.statement)
	if d.kind == declMethod || d.kind == declConstructor {
		text = r.signature(d.node)
	}
	return &types.DataDefinition{
		File:  r.file.PackagePath,
		Range: parser.RangeOf(d.statement),
		Text:  normalizeSpace(text),
	}
}

func (r *resolver) resolve(n *sitter.Node) (declaration, bool) {
	n = parser.Unwrap(n)
	if n == nil {
		return declaration{}, false
	}

	var (
		d  declaration
		ok bool
	)
	switch n.Type() {
	case "identifier":
		d, ok = r.resolveName(n, r.file.Text(n))
	case "field_access":
		if obj := n.ChildByFieldName("object"); obj != nil && obj.Type() == "this" {
			d, ok = r.resolveField(n, r.file.Text(n.ChildByFieldName("field")))
		}
	case "method_invocation":
		obj := n.ChildByFieldName("object")
		if obj == nil || obj.Type() == "this" {
			d, ok = r.resolveMethod(n, r.file.Text(n.ChildByFieldName("name")))
		}
	case "object_creation_expression":
		d, ok = r.resolveConstructor(n)
	default:
		return declaration{}, false
	}

	if !ok {
		r.logger.Debug("cannot resolve operand definition",
			"file", r.file.PackagePath, "line", parser.Line(n), "operand", abbreviate(r.file.Text(n)))
	}
	return d, ok
}

// resolveName looks for a local variable or parameter declared before n in
// the enclosing method, then for a field
func (r *resolver) resolveName(n *sitter.Node, name string) (declaration, bool) {
	if m := parser.EnclosingMethod(n); m != nil {
		var found declaration
		parser.Walk(m, func(c *sitter.Node) bool {
			if c.StartByte() > n.StartByte() {
				return false
			}
			switch c.Type() {
			case "formal_parameter", "spread_parameter", "catch_formal_parameter":
				if r.declaredName(c) == name {
					found = declaration{kind: declParameter, node: c, statement: c}
				}
			case "variable_declarator":
				if r.file.Text(c.ChildByFieldName("name")) == name && c.Parent() != nil &&
					c.Parent().Type() == "local_variable_declaration" {
					found = declaration{kind: declLocal, node: c, statement: c.Parent()}
				}
			case "class_body", "lambda_expression":
				return false
			}
			return true
		})
		if found.kind != 0 {
			return found, true
		}
	}
	return r.resolveField(n, name)
}

func (r *resolver) declaredName(param *sitter.Node) string {
	if name := param.ChildByFieldName("name"); name != nil {
		return r.file.Text(name)
	}
	for i := int(param.NamedChildCount()) - 1; i >= 0; i-- {
		c := param.NamedChild(i)
		if c.Type() == "identifier" {
			return r.file.Text(c)
		}
		if c.Type() == "variable_declarator" {
			return r.file.Text(c.ChildByFieldName("name"))
		}
	}
	return ""
}

// resolveField searches the enclosing classes, innermost first
func (r *resolver) resolveField(n *sitter.Node, name string) (declaration, bool) {
	for class := parser.EnclosingClass(n); class != nil; class = parser.EnclosingClass(class) {
		body := class.ChildByFieldName("body")
		if body == nil {
			continue
		}
		for i := 0; i < int(body.NamedChildCount()); i++ {
			member := body.NamedChild(i)
			switch member.Type() {
			case "field_declaration", "constant_declaration":
				for j := 0; j < int(member.NamedChildCount()); j++ {
					decl := member.NamedChild(j)
					if decl.Type() == "variable_declarator" && r.file.Text(decl.ChildByFieldName("name")) == name {
						return declaration{kind: declField, node: decl, statement: member}, true
					}
				}
			case "enum_constant":
				if r.file.Text(member.ChildByFieldName("name")) == name {
					return declaration{kind: declField, node: member, statement: member}, true
				}
			case "enum_body_declarations":
				for j := 0; j < int(member.NamedChildCount()); j++ {
					fd := member.NamedChild(j)
					if fd.Type() != "field_declaration" {
						continue
					}
					for k := 0; k < int(fd.NamedChildCount()); k++ {
						decl := fd.NamedChild(k)
						if decl.Type() == "variable_declarator" && r.file.Text(decl.ChildByFieldName("name")) == name {
							return declaration{kind: declField, node: decl, statement: fd}, true
						}
					}
				}
			}
		}
	}
	return declaration{}, false
}

// resolveMethod finds the first method with the given name in the
// enclosing classes. Overloads are not told apart.
func (r *resolver) resolveMethod(n *sitter.Node, name string) (declaration, bool) {
	for class := parser.EnclosingClass(n); class != nil; class = parser.EnclosingClass(class) {
		var found *sitter.Node
		parser.Walk(class.ChildByFieldName("body"), func(c *sitter.Node) bool {
			if found != nil {
				return false
			}
			switch c.Type() {
			case "method_declaration":
				if r.file.Text(c.ChildByFieldName("name")) == name {
					found = c
				}
				return false
			case "class_declaration", "interface_declaration", "enum_declaration", "record_declaration":
				return false
			}
			return true
		})
		if found != nil {
			return declaration{kind: declMethod, node: found, statement: found}, true
		}
	}
	return declaration{}, false
}

func (r *resolver) resolveConstructor(n *sitter.Node) (declaration, bool) {
	typeName := r.file.Text(n.ChildByFieldName("type"))
	if i := strings.Index(typeName, "<"); i >= 0 {
		typeName = typeName[:i]
	}
	if i := strings.LastIndex(typeName, "."); i >= 0 {
		typeName = typeName[i+1:]
	}

	var found *sitter.Node
	parser.Walk(r.file.Root, func(c *sitter.Node) bool {
		if found != nil {
			return false
		}
		if c.Type() == "constructor_declaration" && r.file.Text(c.ChildByFieldName("name")) == typeName {
			found = c
			return false
		}
		return true
	})
	if found == nil {
		return declaration{}, false
	}
	return declaration{kind: declConstructor, node: found, statement: found}, true
}

// signature is the declaration text up to its body
func (r *resolver) signature(callable *sitter.Node) string {
	body := callable.ChildByFieldName("body")
	if body == nil {
		return r.file.Text(callable)
	}
	return strings.TrimSpace(string(r.file.Source[callable.StartByte():body.StartByte()]))
}

func abbreviate(s string) string {
	s = normalizeSpace(s)
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}
