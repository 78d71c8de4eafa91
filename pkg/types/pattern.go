package types

import (
	"fmt"
	"sort"
	"strings"
)

// PatternType is the kind of syntactic construct a pattern instance represents
type PatternType string

const (
	PatternAssignConstant   PatternType = "ASSIGN_CONSTANT"
	PatternBinaryComparison PatternType = "BINARY_COMPARISON"
	PatternBinaryFlagCheck  PatternType = "BINARY_FLAG_CHECK"
	PatternBooleanProperty  PatternType = "BOOLEAN_PROPERTY"
	PatternConstantArgument PatternType = "CONSTANT_ARGUMENT"
	PatternEqualsOrChain    PatternType = "EQUALS_OR_CHAIN"
	PatternIfChain          PatternType = "IF_CHAIN"
	PatternNullCheck        PatternType = "NULL_CHECK"
	PatternNullEmptyCheck   PatternType = "NULL_EMPTY_CHECK"
	PatternNullZeroCheck    PatternType = "NULL_ZERO_CHECK"
	PatternReturnConstant   PatternType = "RETURN_CONSTANT"
	PatternSelfComparison   PatternType = "SELF_COMPARISON"
	PatternSwitchLenChar    PatternType = "SWITCH_LEN_CHAR"
)

// AllPatternTypes lists every known pattern type in declaration order
var AllPatternTypes = []PatternType{
	PatternAssignConstant,
	PatternBinaryComparison,
	PatternBinaryFlagCheck,
	PatternBooleanProperty,
	PatternConstantArgument,
	PatternEqualsOrChain,
	PatternIfChain,
	PatternNullCheck,
	PatternNullEmptyCheck,
	PatternNullZeroCheck,
	PatternReturnConstant,
	PatternSelfComparison,
	PatternSwitchLenChar,
}

// ParsePatternType accepts both the canonical name and the hyphenated
// lower-case form used in datasets (e.g. "null-check").
func ParsePatternType(s string) (PatternType, error) {
	name := strings.ToUpper(strings.NewReplacer("-", "_", " ", "_").Replace(strings.TrimSpace(s)))
	for _, t := range AllPatternTypes {
		if string(t) == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPatternType, s)
}

// Slug returns the hyphenated lower-case form of the type
func (t PatternType) Slug() string {
	return strings.ReplaceAll(strings.ToLower(string(t)), "_", "-")
}

// Position is a 1-based line and column in a source file
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Range is an inclusive source range
type Range struct {
	Begin Position `json:"begin"`
	End   Position `json:"end"`
}

// LineRange builds a range that covers whole lines
func LineRange(begin, end int) Range {
	return Range{Begin: Position{Line: begin, Column: 1}, End: Position{Line: end, Column: 1}}
}

func (r Range) String() string {
	return fmt.Sprintf("%d,%d-%d,%d", r.Begin.Line, r.Begin.Column, r.End.Line, r.End.Column)
}

// IsZero reports whether the range carries no line information
func (r Range) IsZero() bool {
	return r.Begin.Line <= 0 || r.End.Line <= 0
}

// Lines returns every line number covered by the range
func (r Range) Lines() []int {
	if r.IsZero() || r.End.Line < r.Begin.Line {
		return nil
	}
	lines := make([]int, 0, r.End.Line-r.Begin.Line+1)
	for l := r.Begin.Line; l <= r.End.Line; l++ {
		lines = append(lines, l)
	}
	return lines
}

// ContainsLine reports whether line falls inside the range
func (r Range) ContainsLine(line int) bool {
	return !r.IsZero() && line >= r.Begin.Line && line <= r.End.Line
}

// Contains reports whether o lies entirely inside r
func (r Range) Contains(o Range) bool {
	return !r.IsZero() && !o.IsZero() && !o.Begin.before(r.Begin) && !r.End.before(o.End)
}

func (p Position) before(o Position) bool {
	return p.Line < o.Line || (p.Line == o.Line && p.Column < o.Column)
}

// Location is where a pattern instance appears
type Location struct {
	// PackagePath is the package-relative path, e.g. org/acme/Order.java.
	// Ground truths and line keys use this path.
	PackagePath string `json:"package_path"`
	FilePath    string `json:"file_path"`
	Range       Range  `json:"range"`
	MethodRange *Range `json:"method_range,omitempty"`
	ClassName   string `json:"class_name,omitempty"`
	MethodName  string `json:"method_name,omitempty"`
}

func (l Location) String() string {
	return l.PackagePath + ":" + l.Range.String()
}

// MethodKey identifies the enclosing method in call-graph form, or "" when
// the pattern is outside any method.
func (l Location) MethodKey() string {
	if l.MethodName == "" || l.ClassName == "" {
		return ""
	}
	return MethodKey(l.ClassName, l.MethodName)
}

// DataDefinition is the declaration an operand resolves to
type DataDefinition struct {
	File  string `json:"file"`
	Range Range  `json:"range"`
	Text  string `json:"text"`
}

// Operand is a matchable sub-expression of a pattern
type Operand struct {
	Text       string          `json:"text"`
	Definition *DataDefinition `json:"definition,omitempty"`
}

// AllText joins the operand text with its definition text when one exists
func (o Operand) AllText() string {
	if o.Definition == nil || o.Definition.Text == "" {
		return o.Text
	}
	return o.Text + " " + o.Definition.Text
}

// AttributeType qualifies the attribute a value pattern is attached to
type AttributeType string

const (
	AttributeTypeName        AttributeType = "TYPE"
	AttributeField           AttributeType = "FIELD"
	AttributeLocalVariable   AttributeType = "LOCAL_VARIABLE"
	AttributeMethodParameter AttributeType = "METHOD_PARAMETER"
	AttributeMethod          AttributeType = "METHOD"
)

// Attribute is the named qualifier of a value-carrying pattern
type Attribute struct {
	Name string        `json:"name"`
	Type AttributeType `json:"type"`
}

// Pattern is a detected syntactic construct. Value-carrying variants set
// Constant, and name-value variants also set Attribute. A Pattern is not
// modified after detection.
type Pattern struct {
	Type      PatternType `json:"type"`
	Location  Location    `json:"location"`
	Operands  []Operand   `json:"operands"`
	Constant  *string     `json:"constant,omitempty"`
	Attribute *Attribute  `json:"attribute,omitempty"`
}

// ID is stable across serialization: TYPE;packagePath:bl,bc-el,ec
func (p *Pattern) ID() string {
	return fmt.Sprintf("%s;%s", p.Type, p.Location)
}

// Lines returns the line numbers the pattern spans
func (p *Pattern) Lines() []int {
	return p.Location.Range.Lines()
}

// FileName is the package path used for line-level keys
func (p *Pattern) FileName() string {
	return p.Location.PackagePath
}

// HasValue reports whether the pattern carries a constant
func (p *Pattern) HasValue() bool {
	return p.Constant != nil
}

// OperandTexts returns the raw operand texts in order
func (p *Pattern) OperandTexts() []string {
	texts := make([]string, len(p.Operands))
	for i, o := range p.Operands {
		texts[i] = o.Text
	}
	return texts
}

// OperandSetKey is an order-insensitive key over the distinct operand texts
func (p *Pattern) OperandSetKey() string {
	seen := make(map[string]struct{}, len(p.Operands))
	texts := make([]string, 0, len(p.Operands))
	for _, o := range p.Operands {
		if _, ok := seen[o.Text]; ok {
			continue
		}
		seen[o.Text] = struct{}{}
		texts = append(texts, o.Text)
	}
	sort.Strings(texts)
	return strings.Join(texts, "\x00")
}

// Validate checks the invariants a detector must uphold
func (p *Pattern) Validate() error {
	if _, err := ParsePatternType(string(p.Type)); err != nil {
		return err
	}
	if p.Location.PackagePath == "" {
		return ErrMissingPackagePath
	}
	if p.Location.Range.IsZero() {
		return ErrMissingLines
	}
	if p.Attribute != nil && p.Constant == nil {
		return fmt.Errorf("pattern %s has an attribute but no constant", p.ID())
	}
	return nil
}

// Equal compares identity: type, location, operand list, and whichever of
// constant and attribute the variant carries.
func (p *Pattern) Equal(o *Pattern) bool {
	if p == nil || o == nil {
		return p == o
	}
	if p.Type != o.Type || p.Location.PackagePath != o.Location.PackagePath || p.Location.Range != o.Location.Range {
		return false
	}
	if len(p.Operands) != len(o.Operands) {
		return false
	}
	for i := range p.Operands {
		if p.Operands[i].Text != o.Operands[i].Text {
			return false
		}
	}
	if (p.Constant == nil) != (o.Constant == nil) || (p.Constant != nil && *p.Constant != *o.Constant) {
		return false
	}
	if (p.Attribute == nil) != (o.Attribute == nil) || (p.Attribute != nil && *p.Attribute != *o.Attribute) {
		return false
	}
	return true
}

// MethodKey formats a call-graph node name
func MethodKey(className, methodName string) string {
	return className + ":" + methodName
}
