package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ConstraintType classifies a constraint and decides which pattern types are
// expected to enforce it
type ConstraintType string

const (
	ConstraintValueComparison     ConstraintType = "VALUE_COMPARISON"
	ConstraintDualValueComparison ConstraintType = "DUAL_VALUE_COMPARISON"
	ConstraintConcreteValue       ConstraintType = "CONCRETE_VALUE"
	ConstraintCategoricalValue    ConstraintType = "CATEGORICAL_VALUE"
)

var expectedPatternTypes = map[ConstraintType][]PatternType{
	ConstraintValueComparison:     {PatternBinaryComparison},
	ConstraintDualValueComparison: {PatternBooleanProperty, PatternNullCheck},
	ConstraintConcreteValue:       {PatternConstantArgument, PatternAssignConstant},
	ConstraintCategoricalValue:    {PatternIfChain},
}

// ParseConstraintType upper-cases the input and maps '-' and ' ' to '_'
func ParseConstraintType(s string) (ConstraintType, error) {
	name := ConstraintType(strings.ToUpper(strings.NewReplacer("-", "_", " ", "_").Replace(strings.TrimSpace(s))))
	if _, ok := expectedPatternTypes[name]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownConstraintType, s)
	}
	return name, nil
}

// ExpectedTypes returns the pattern types expected for this constraint type,
// most expected first
func (c ConstraintType) ExpectedTypes() []PatternType {
	return expectedPatternTypes[c]
}

// ExpectedIndex returns the position of t among the expected types, or -1
func (c ConstraintType) ExpectedIndex(t PatternType) int {
	for i, e := range expectedPatternTypes[c] {
		if e == t {
			return i
		}
	}
	return -1
}

// GroundTruth is a reference to the lines of one file that enforce a constraint
type GroundTruth struct {
	File  string
	Lines []int
}

// ParseGroundTruth parses "path/File.java:12,13"
func ParseGroundTruth(s string) (GroundTruth, error) {
	s = strings.TrimSpace(s)
	idx := strings.LastIndex(s, ":")
	if idx <= 0 || idx == len(s)-1 {
		return GroundTruth{}, fmt.Errorf("%w: %q", ErrInvalidGroundTruth, s)
	}

	gt := GroundTruth{File: s[:idx]}
	for _, part := range strings.Split(s[idx+1:], ",") {
		line, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || line <= 0 {
			return GroundTruth{}, fmt.Errorf("%w: %q", ErrInvalidGroundTruth, s)
		}
		gt.Lines = append(gt.Lines, line)
	}
	sort.Ints(gt.Lines)
	return gt, nil
}

// ID formats the ground truth back to "file:l1,l2"
func (g GroundTruth) ID() string {
	parts := make([]string, len(g.Lines))
	for i, l := range g.Lines {
		parts[i] = strconv.Itoa(l)
	}
	return g.File + ":" + strings.Join(parts, ",")
}

// LineKeys returns "file:line" keys for every ground-truth line
func (g GroundTruth) LineKeys() []string {
	keys := make([]string, len(g.Lines))
	for i, l := range g.Lines {
		keys[i] = LineKey(g.File, l)
	}
	return keys
}

// LineKey formats a (file, line) pair
func LineKey(file string, line int) string {
	return file + ":" + strconv.Itoa(line)
}

// Constraint is a natural-language requirement used as a query
type Constraint struct {
	ID     string `json:"id"`
	System string `json:"system"`

	Type ConstraintType `json:"type"`
	// PatternType is the pattern type of the enforcing statement, when known
	PatternType PatternType `json:"pattern_type,omitempty"`

	Text        string   `json:"text"`
	Context     string   `json:"context"`
	Operands    []string `json:"operands"`
	Consequence string   `json:"consequence"`
	Extra       string   `json:"extra,omitempty"`

	GroundTruths []GroundTruth `json:"ground_truths"`
}

// GroundTruthIDs returns the "file:lines" form of every ground truth
func (c *Constraint) GroundTruthIDs() []string {
	ids := make([]string, len(c.GroundTruths))
	for i, g := range c.GroundTruths {
		ids[i] = g.ID()
	}
	return ids
}

// Validate checks fields the scoring engine depends on
func (c *Constraint) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("constraint id is required")
	}
	if _, err := ParseConstraintType(string(c.Type)); err != nil {
		return err
	}
	if len(c.Operands) == 0 {
		return fmt.Errorf("constraint %s has no operands", c.ID)
	}
	return nil
}
