package lasso

import (
	"fmt"
	"strconv"
	"strings"
)

// Component is a named partial-match signal of the composite score
type Component string

const (
	ConstraintOperand Component = "CONSTRAINT_OPERAND"
	ESCOperand        Component = "ESC_OPERAND"
	ExpectedCIP       Component = "EXPECTED_CIP"
	OTMethodName      Component = "OT_METHOD_NAME"
	OTClassName       Component = "OT_CLASS_NAME"
	TextBlock         Component = "TEXT_BLOCK"
	CQBlock           Component = "CQ_BLOCK"
	OPBlock           Component = "OP_BLOCK"
	ContextMethod     Component = "CONTEXT_METHOD"

	KTESC        Component = "KT_ESC"
	KTDDS        Component = "KT_DDS"
	KTMethodText Component = "KT_METHOD_TEXT"
	CTMethodText Component = "CT_METHOD_TEXT"
	ESCMatchPC   Component = "ESC_MATCH_PC"
	CTMethodName Component = "CT_METHOD_NAME"
	CTClassName  Component = "CT_CLASS_NAME"
)

// Components lists every component in declaration order. Repr and weight
// search iterate in this order.
var Components = []Component{
	ConstraintOperand, ESCOperand, ExpectedCIP, OTMethodName, OTClassName,
	TextBlock, CQBlock, OPBlock, ContextMethod,
	KTESC, KTDDS, KTMethodText, CTMethodText, ESCMatchPC, CTMethodName, CTClassName,
}

var coreComponents = map[Component]bool{
	ConstraintOperand: true, ESCOperand: true, ExpectedCIP: true,
	OTMethodName: true, OTClassName: true, TextBlock: true,
	CQBlock: true, OPBlock: true, ContextMethod: true,
}

// IsCore reports whether a positive value of c makes a candidate eligible
func (c Component) IsCore() bool {
	return coreComponents[c]
}

// Abbreviation is the first letter of each underscore-separated word
func (c Component) Abbreviation() string {
	var b strings.Builder
	for _, part := range strings.Split(string(c), "_") {
		if part != "" {
			b.WriteByte(part[0])
		}
	}
	return b.String()
}

// ParseComponent accepts a component name or its abbreviation
func ParseComponent(s string) (Component, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, c := range Components {
		if string(c) == s || c.Abbreviation() == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown score component %q", s)
}

// Weights maps components to their weight. Only components with a positive
// weight take part in scoring.
type Weights map[Component]float64

// DefaultWeights is the configuration used by the method-level scenarios
func DefaultWeights() Weights {
	return Weights{
		ContextMethod:     1.0,
		ConstraintOperand: 0.7,
		ExpectedCIP:       0.2,
		OPBlock:           0.2,
		ESCOperand:        0.2,
	}
}

// Active reports whether c contributes to the score
func (w Weights) Active(c Component) bool {
	return w[c] > 0
}

// Clone returns an independent copy
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for c, v := range w {
		out[c] = v
	}
	return out
}

// Normalized scales the weights to sum to 1. All-zero weights are
// returned unchanged.
func (w Weights) Normalized() Weights {
	var sum float64
	for _, v := range w {
		sum += v
	}
	out := w.Clone()
	if sum == 0 {
		return out
	}
	for c := range out {
		out[c] /= sum
	}
	return out
}

// Validate rejects unknown components and negative weights
func (w Weights) Validate() error {
	for c, v := range w {
		if _, err := ParseComponent(string(c)); err != nil {
			return err
		}
		if v < 0 {
			return fmt.Errorf("weight of %s must not be negative, got %v", c, v)
		}
	}
	return nil
}

// String formats the weights as "CO-0.70_EC-0.20" in component order
func (w Weights) String() string {
	return repr(w)
}

func repr(values map[Component]float64) string {
	var parts []string
	for _, c := range Components {
		if v, ok := values[c]; ok {
			parts = append(parts, fmt.Sprintf("%s-%.2f", c.Abbreviation(), v))
		}
	}
	return strings.Join(parts, "_")
}

// ParseWeights reads the String form back
func ParseWeights(s string) (Weights, error) {
	w := make(Weights)
	if strings.TrimSpace(s) == "" {
		return w, nil
	}
	for _, part := range strings.Split(s, "_") {
		name, value, ok := strings.Cut(part, "-")
		if !ok {
			return nil, fmt.Errorf("malformed weight %q", part)
		}
		c, err := ParseComponent(name)
		if err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed weight %q: %w", part, err)
		}
		w[c] = v
	}
	return w, w.Validate()
}

// OperandMatches counts matched operands on both sides of a candidate
type OperandMatches struct {
	Query        int // query operands that matched some indexed operand
	QueryTotal   int
	Pattern      int // indexed operands matched by some query operand
	PatternTotal int
}

// Score is the decomposed composite score of one candidate
type Score struct {
	weights Weights
	values  map[Component]float64
	penalty float64
	Matches OperandMatches
}

// NewScore records the values of active components. Values of inactive
// components are dropped.
func NewScore(w Weights, values map[Component]float64, matches OperandMatches) Score {
	kept := make(map[Component]float64, len(values))
	for c, v := range values {
		if w.Active(c) {
			kept[c] = v
		}
	}
	return Score{weights: w, values: kept, penalty: 1, Matches: matches}
}

// FixedScore is a score with a single value, used for results that were
// not scored component-wise
func FixedScore(v float64) Score {
	return NewScore(Weights{ConstraintOperand: 1}, map[Component]float64{ConstraintOperand: v}, OperandMatches{})
}

// Value is the penalty times the weighted sum of the component values
func (s Score) Value() float64 {
	var sum float64
	for c, v := range s.values {
		sum += v * s.weights[c]
	}
	return s.penalty * sum
}

// Component returns the raw value of c
func (s Score) Component(c Component) (float64, bool) {
	v, ok := s.values[c]
	return v, ok
}

// HasCore reports whether some core component has a positive value
func (s Score) HasCore() bool {
	for c, v := range s.values {
		if c.IsCore() && v > 0 {
			return true
		}
	}
	return false
}

// Penalize returns a copy with its value scaled by factor. Penalties do
// not compound: the last one applied wins.
func (s Score) Penalize(factor float64) (Score, error) {
	if factor < 0 || factor > 1 {
		return s, fmt.Errorf("penalty factor must be between 0.0 and 1.0, was %v", factor)
	}
	s.penalty = factor
	return s, nil
}

// Repr formats the weighted component values like Weights.String
func (s Score) Repr() string {
	weighted := make(map[Component]float64, len(s.values))
	for c, v := range s.values {
		weighted[c] = v * s.weights[c]
	}
	return repr(weighted)
}
