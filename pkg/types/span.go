package types

// SpanType is the lexical category of a text span
type SpanType string

const (
	SpanIdentifier SpanType = "IDENTIFIER"
	SpanNumber     SpanType = "NUMBER"
	SpanString     SpanType = "STRING"
	SpanComment    SpanType = "COMMENT"
)

// SpanLocation places a text span inside its file, class, method and statement
type SpanLocation struct {
	File           string
	ClassName      string
	MethodName     string
	MethodRange    *Range
	StatementRange *Range
}

// TextSpan is a piece of source text (an identifier, literal or one comment line)
type TextSpan struct {
	Type       SpanType
	Line       int
	Text       string
	Location   SpanLocation
	DocComment bool
}
