package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"

	"github.com/dshills/lasso-mcp/pkg/types"
)

// Parser handles tree-sitter parsing of Java source files. A Parser is
// stateless; each call creates its own tree-sitter parser, so one Parser
// may be shared across goroutines.
type Parser struct{}

// New creates a new Parser instance
func New() *Parser {
	return &Parser{}
}

// File is a parsed Java source file. Close releases the syntax tree.
type File struct {
	Path        string
	PackagePath string // package directories + file name, e.g. org/acme/Order.java
	PackageName string
	Source      []byte
	Root        *sitter.Node

	tree *sitter.Tree
}

// Close releases the tree-sitter tree
func (f *File) Close() {
	if f.tree != nil {
		f.tree.Close()
		f.tree = nil
	}
}

// Parse reads and parses a Java file
func (p *Parser) Parse(ctx context.Context, path string) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return p.ParseSource(ctx, path, content)
}

// ParseSource parses Java source held in memory
func (p *Parser) ParseSource(ctx context.Context, path string, content []byte) (*File, error) {
	sp := sitter.NewParser()
	sp.SetLanguage(java.GetLanguage())

	tree, err := sp.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse file: %w", err)
	}

	f := &File{Path: path, Source: content, Root: tree.RootNode(), tree: tree}
	f.PackageName = extractPackageName(f.Root, content)
	f.PackagePath = PackagePath(f.PackageName, path)
	return f, nil
}

// PackagePath joins the package directories and the file's base name
func PackagePath(packageName, path string) string {
	base := filepath.Base(path)
	if packageName == "" {
		return base
	}
	return strings.ReplaceAll(packageName, ".", "/") + "/" + base
}

// ParseFile parses a Java file and extracts classes, methods, call sites
// and text spans
func (p *Parser) ParseFile(ctx context.Context, path string) (*types.ParseResult, error) {
	f, err := p.Parse(ctx, path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Extract(f), nil
}

// Extract collects the declarations, call sites and spans of a parsed file
func Extract(f *File) *types.ParseResult {
	result := &types.ParseResult{
		Path:        f.Path,
		PackagePath: f.PackagePath,
		PackageName: f.PackageName,
	}

	// Syntax errors are non-fatal; tree-sitter still returns a usable tree
	if f.Root.HasError() {
		Walk(f.Root, func(n *sitter.Node) bool {
			if n.IsError() || n.IsMissing() {
				pos := n.StartPoint()
				result.AddError(f.Path, int(pos.Row)+1, int(pos.Column)+1, "syntax error near "+abbreviate(f.Text(n)))
				return false
			}
			return true
		})
	}

	Walk(f.Root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "class_declaration", "interface_declaration", "enum_declaration", "record_declaration":
			if name := n.ChildByFieldName("name"); name != nil {
				result.Classes = append(result.Classes, f.Text(name))
			}
		case "method_declaration", "constructor_declaration", "compact_constructor_declaration", "static_initializer":
			if m, ok := f.methodOf(n); ok {
				result.Methods = append(result.Methods, m)
			}
		case "method_invocation", "object_creation_expression":
			if call, ok := f.callOf(n); ok {
				result.Calls = append(result.Calls, call)
			}
		}
		return true
	})

	result.Spans = Spans(f)
	return result
}

func extractPackageName(root *sitter.Node, content []byte) string {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child.Type() != "package_declaration" {
			continue
		}
		for j := 0; j < int(child.NamedChildCount()); j++ {
			pkgNode := child.NamedChild(j)
			if pkgNode.Type() == "scoped_identifier" || pkgNode.Type() == "identifier" {
				return string(content[pkgNode.StartByte():pkgNode.EndByte()])
			}
		}
	}
	return ""
}

func abbreviate(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}

// FindJavaFiles walks root and returns every .java file outside build,
// test and hidden directories
func FindJavaFiles(ctx context.Context, root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(path, ".java") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return files, nil
}

func shouldSkipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch name {
	case "target", "build", "bin", "out", "classes",
		"node_modules", "vendor", "test", "tests", "test-output":
		return true
	}
	return false
}
