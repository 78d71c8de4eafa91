package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func samplePattern() *Pattern {
	methodRange := LineRange(8, 20)
	return &Pattern{
		Type: PatternAssignConstant,
		Location: Location{
			PackagePath: "org/acme/Order.java",
			FilePath:    "src/main/java/org/acme/Order.java",
			Range:       Range{Begin: Position{Line: 10, Column: 5}, End: Position{Line: 11, Column: 12}},
			MethodRange: &methodRange,
			ClassName:   "Order",
			MethodName:  "reset",
		},
		Operands: []Operand{
			{Text: "quantity", Definition: &DataDefinition{File: "org/acme/Order.java", Range: LineRange(3, 3), Text: "private int quantity"}},
		},
		Constant:  strPtr("0"),
		Attribute: &Attribute{Name: "quantity", Type: AttributeField},
	}
}

func TestPatternID(t *testing.T) {
	p := samplePattern()
	assert.Equal(t, "ASSIGN_CONSTANT;org/acme/Order.java:10,5-11,12", p.ID())
	assert.Equal(t, []int{10, 11}, p.Lines())
	assert.Equal(t, "Order:reset", p.Location.MethodKey())
}

func TestPatternIDStableThroughJSON(t *testing.T) {
	p := samplePattern()

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var loaded Pattern
	require.NoError(t, json.Unmarshal(data, &loaded))

	assert.Equal(t, p.ID(), loaded.ID())
	assert.True(t, p.Equal(&loaded))
}

func TestPatternEqualVariantFields(t *testing.T) {
	a := samplePattern()
	b := samplePattern()
	b.Attribute = nil
	assert.False(t, a.Equal(b), "attribute presence is part of identity")

	c := samplePattern()
	c.Constant = strPtr("1")
	assert.False(t, a.Equal(c))

	d := samplePattern()
	d.Operands = append(d.Operands, Operand{Text: "other"})
	assert.False(t, a.Equal(d))
}

func TestPatternValidate(t *testing.T) {
	p := samplePattern()
	require.NoError(t, p.Validate())

	p.Location.Range = Range{}
	assert.ErrorIs(t, p.Validate(), ErrMissingLines)

	p = samplePattern()
	p.Location.PackagePath = ""
	assert.ErrorIs(t, p.Validate(), ErrMissingPackagePath)

	p = samplePattern()
	p.Constant = nil
	assert.Error(t, p.Validate())
}

func TestParsePatternType(t *testing.T) {
	tests := []struct {
		in   string
		want PatternType
	}{
		{"null-check", PatternNullCheck},
		{"NULL_CHECK", PatternNullCheck},
		{"if chain", PatternIfChain},
		{"switch-len-char", PatternSwitchLenChar},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePatternType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, got.Slug()))
		})
	}

	_, err := ParsePatternType("bogus")
	assert.ErrorIs(t, err, ErrUnknownPatternType)
}

func mustParse(t *testing.T, s string) PatternType {
	t.Helper()
	pt, err := ParsePatternType(s)
	require.NoError(t, err)
	return pt
}

func TestOperandSetKeyIgnoresOrder(t *testing.T) {
	a := &Pattern{Operands: []Operand{{Text: "x"}, {Text: "y"}}}
	b := &Pattern{Operands: []Operand{{Text: "y"}, {Text: "x"}, {Text: "x"}}}
	assert.Equal(t, a.OperandSetKey(), b.OperandSetKey())
	assert.Equal(t, []string{"x", "y"}, a.OperandTexts())
}

func TestOperandAllText(t *testing.T) {
	assert.Equal(t, "x", Operand{Text: "x"}.AllText())
	assert.Equal(t, "x int x = 3", Operand{Text: "x", Definition: &DataDefinition{Text: "int x = 3"}}.AllText())
}
