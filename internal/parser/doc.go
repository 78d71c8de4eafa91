// Package parser parses Java source with tree-sitter and extracts what the
// retrieval pipeline needs: classes, methods, call sites and text spans.
//
// # Basic Usage
//
//	p := parser.New()
//	result, err := p.ParseFile(ctx, "/src/org/acme/Order.java")
//	if err != nil {
//	    return err
//	}
//	for _, m := range result.Methods {
//	    fmt.Println(m.Key(), m.Range)
//	}
//
// Pattern matchers work on the syntax tree directly:
//
//	f, err := p.Parse(ctx, path)
//	defer f.Close()
//	parser.Walk(f.Root, func(n *sitter.Node) bool { ... })
//
// # Locations
//
// Lines are 1-based. A file's PackagePath is its package directories plus
// the file name (org/acme/Order.java); ground truths and result keys use
// this path, not the filesystem path.
//
// Constructors are named <init> and static initializers <clinit>, matching
// the call graph node names.
//
// Syntax errors are recorded in ParseResult.Errors and do not stop
// extraction.
package parser
