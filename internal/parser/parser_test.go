package parser

import (
	"context"
	"path/filepath"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lasso-mcp/pkg/types"
)

func parseFixture(t *testing.T, name string) *types.ParseResult {
	result, err := New().ParseFile(context.Background(), filepath.Join("testdata", "org", "acme", name))
	require.NoError(t, err)
	return result
}

func TestPackagePath(t *testing.T) {
	assert.Equal(t, "org/acme/Order.java", PackagePath("org.acme", "/src/main/java/org/acme/Order.java"))
	assert.Equal(t, "Order.java", PackagePath("", "Order.java"))
}

func TestParseFile_Declarations(t *testing.T) {
	result := parseFixture(t, "Order.java")

	assert.Equal(t, "org.acme", result.PackageName)
	assert.Equal(t, "org/acme/Order.java", result.PackagePath)
	assert.False(t, result.HasErrors())
	assert.Equal(t, []string{"Order"}, result.Classes)

	var keys []string
	for _, m := range result.Methods {
		keys = append(keys, m.Key())
	}
	assert.Equal(t, []string{"Order:<clinit>", "Order:<init>", "Order:validate", "Order:isEmpty", "Order:add"}, keys)

	validate := result.Methods[2]
	assert.Equal(t, types.MethodDeclared, validate.Kind)
	assert.Equal(t, 23, validate.Range.Begin.Line)
	assert.Equal(t, 30, validate.Range.End.Line)
	assert.Equal(t, types.MethodInitializer, result.Methods[0].Kind)
	assert.Equal(t, types.MethodConstructor, result.Methods[1].Kind)
}

func TestParseFile_Calls(t *testing.T) {
	result := parseFixture(t, "Order.java")

	calls := make(map[string]types.CallSite)
	for _, c := range result.Calls {
		calls[c.Caller+"->"+c.Callee] = c
	}

	require.Contains(t, calls, "Order:<clinit>->println")
	assert.Equal(t, "System.out", calls["Order:<clinit>->println"].Scope)

	require.Contains(t, calls, "Order:<init>->validate")
	assert.Equal(t, "", calls["Order:<init>->validate"].Scope)
	assert.Equal(t, 19, calls["Order:<init>->validate"].Line)

	require.Contains(t, calls, "Order:add-><init>")
	assert.Equal(t, "Helper", calls["Order:add-><init>"].Scope)

	require.Contains(t, calls, "Order:add->check")
	assert.Equal(t, "helper", calls["Order:add->check"].Scope)
}

func TestParseFile_Spans(t *testing.T) {
	result := parseFixture(t, "Order.java")

	find := func(typ types.SpanType, text string, line int) *types.TextSpan {
		for i := range result.Spans {
			s := &result.Spans[i]
			if s.Type == typ && s.Text == text && s.Line == line {
				return s
			}
		}
		return nil
	}

	doc := find(types.SpanComment, "An order placed by a customer.", 6)
	require.NotNil(t, doc)
	assert.True(t, doc.DocComment)

	comment := find(types.SpanComment, "quantity must stay positive", 22)
	require.NotNil(t, comment)
	assert.False(t, comment.DocComment)
	assert.Nil(t, comment.Location.MethodRange, "comment sits between methods")
	assert.Equal(t, "Order", comment.Location.ClassName)

	number := find(types.SpanNumber, "50", 9)
	require.NotNil(t, number)
	require.NotNil(t, number.Location.StatementRange)
	assert.Equal(t, 9, number.Location.StatementRange.Begin.Line)

	ident := find(types.SpanIdentifier, "quantity", 24)
	require.NotNil(t, ident)
	assert.Equal(t, "org/acme/Order.java", ident.Location.File)
	assert.Equal(t, "validate", ident.Location.MethodName)
	require.NotNil(t, ident.Location.MethodRange)
	assert.Equal(t, 23, ident.Location.MethodRange.Begin.Line)

	str := find(types.SpanString, "NEW", 28)
	require.NotNil(t, str)

	// Spans are in source order
	for i := 1; i < len(result.Spans); i++ {
		assert.LessOrEqual(t, result.Spans[i-1].Line, result.Spans[i].Line)
	}
}

func TestParseSource_SyntaxError(t *testing.T) {
	src := []byte("package x;\nclass Broken {\n  void m( {\n}\n")
	f, err := New().ParseSource(context.Background(), "Broken.java", src)
	require.NoError(t, err)
	defer f.Close()

	result := Extract(f)
	assert.True(t, result.HasErrors())
	assert.Equal(t, "x/Broken.java", result.PackagePath)
}

func TestParseFile_Missing(t *testing.T) {
	_, err := New().ParseFile(context.Background(), filepath.Join("testdata", "absent.java"))
	assert.Error(t, err)
}

func TestLocationOf(t *testing.T) {
	f, err := New().Parse(context.Background(), filepath.Join("testdata", "org", "acme", "Order.java"))
	require.NoError(t, err)
	defer f.Close()

	var found bool
	Walk(f.Root, func(n *sitter.Node) bool {
		if n.Type() == "binary_expression" && Line(n) == 24 {
			loc := f.LocationOf(n)
			assert.Equal(t, "org/acme/Order.java", loc.PackagePath)
			assert.Equal(t, 24, loc.Range.Begin.Line)
			assert.Equal(t, "validate", loc.MethodName)
			assert.Equal(t, "Order", loc.ClassName)
			assert.Equal(t, "Order:validate", loc.MethodKey())
			found = true
			return false
		}
		return true
	})
	assert.True(t, found)
}

func TestFindJavaFiles(t *testing.T) {
	files, err := FindJavaFiles(context.Background(), "testdata")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("testdata", "org", "acme", "Helper.java"),
		filepath.Join("testdata", "org", "acme", "Order.java"),
	}, files)
}
