package types

// MethodKind distinguishes declared methods from constructors and initializers
type MethodKind string

const (
	MethodDeclared    MethodKind = "method"
	MethodConstructor MethodKind = "constructor"
	MethodInitializer MethodKind = "initializer"
)

// Call-graph names for constructors and static initializers
const (
	ConstructorName       = "<init>"
	StaticInitializerName = "<clinit>"
)

// Method is a method-like declaration found in a source file
type Method struct {
	ClassName string
	Name      string
	Kind      MethodKind
	Range     Range
}

// Key returns the call-graph node name
func (m Method) Key() string {
	return MethodKey(m.ClassName, m.Name)
}

// CallSite is a method invocation or object creation inside a method
type CallSite struct {
	Caller string // call-graph node of the enclosing method
	Callee string // invoked method name, or ConstructorName
	// Scope is the receiver text, or the created type for constructors.
	// Empty for unqualified calls.
	Scope string
	Line  int
}

// ParseResult represents the output of parsing a Java source file
type ParseResult struct {
	Path        string
	PackagePath string // package directories + file name
	PackageName string

	Classes []string
	Methods []Method
	Calls   []CallSite
	Spans   []TextSpan

	// Errors encountered during parsing
	Errors []ParseError
}

// ParseError represents an error that occurred during parsing
type ParseError struct {
	File    string
	Line    int
	Column  int
	Message string
}

// Error implements the error interface
func (pe *ParseError) Error() string {
	return pe.Message
}

// HasErrors returns true if any parsing errors occurred
func (pr *ParseResult) HasErrors() bool {
	return len(pr.Errors) > 0
}

// AddError adds a parsing error to the result
func (pr *ParseResult) AddError(file string, line, col int, msg string) {
	pr.Errors = append(pr.Errors, ParseError{
		File:    file,
		Line:    line,
		Column:  col,
		Message: msg,
	})
}
