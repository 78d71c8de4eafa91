package lasso

import (
	"fmt"

	"github.com/dshills/lasso-mcp/internal/baseline"
	"github.com/dshills/lasso-mcp/internal/chunker"
)

// Config is one scoring scenario
type Config struct {
	// MethodGranularity regroups pattern results by enclosing method
	MethodGranularity bool
	// AllMethods merges the method-level results with the baseline's
	AllMethods bool
	// BaselineCombination keeps only results on lines the baseline retrieved
	BaselineCombination bool
	// BaselineBoost enables the CONTEXT_METHOD component
	BaselineBoost bool

	Weights Weights

	// RankPenaltyPercent is the share of each method's results that keep
	// their score; the rest are halved. 1 disables the pass.
	RankPenaltyPercent float64
	// CallGraphPenaltyFactor of 1 disables the call-graph pass
	CallGraphPenaltyFactor float64

	// Underlying is the baseline technique used for boosting and filtering
	Underlying baseline.Type
	// LSIDimension of the underlying baseline when it is LSI
	LSIDimension int
}

// PatternConfig returns the pattern-level scenario with baseline boosting
func PatternConfig(w Weights, underlying baseline.Type) Config {
	return Config{
		BaselineBoost:          true,
		Weights:                w,
		RankPenaltyPercent:     1,
		CallGraphPenaltyFactor: 1,
		Underlying:             underlying,
		LSIDimension:           baseline.DefaultDimension,
	}
}

// MethodConfig returns the method-level scenario with baseline boosting
func MethodConfig(w Weights, underlying baseline.Type) Config {
	c := PatternConfig(w, underlying)
	c.MethodGranularity = true
	return c
}

// String names the scenario in reports: "Lasso-13" followed by the pretty
// name of the underlying baseline, "Luc" for the Lucene-style one.
func (c Config) String() string {
	const prefix = "Lasso-13"
	if c.Underlying == baseline.TypeLucene {
		return prefix + "Luc"
	}
	return prefix + c.Underlying.PrettyName()
}

// UsesBaseline reports whether searching needs the underlying baseline
func (c Config) UsesBaseline() bool {
	return c.BaselineBoost || c.BaselineCombination || c.AllMethods
}

// BaselineConfig is the baseline index the scenario searches alongside the
// pattern index. It always retrieves methods.
func (c Config) BaselineConfig() baseline.Config {
	cfg := baseline.Config{Type: c.Underlying, Input: baseline.InputContext, Output: chunker.GranularityMethod}
	if c.Underlying == baseline.TypeLSI {
		cfg.Input = baseline.InputOperands
		cfg.Dimension = c.LSIDimension
		if cfg.Dimension <= 0 {
			cfg.Dimension = baseline.DefaultDimension
		}
	}
	return cfg
}

// Validate checks the ranges of the penalty settings and the weights
func (c Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.RankPenaltyPercent < 0 {
		return fmt.Errorf("rank penalty percent must not be negative, got %v", c.RankPenaltyPercent)
	}
	if c.CallGraphPenaltyFactor < 0 || c.CallGraphPenaltyFactor > 1 {
		return fmt.Errorf("call graph penalty factor must be between 0 and 1, got %v", c.CallGraphPenaltyFactor)
	}
	if c.UsesBaseline() {
		if _, err := baseline.ParseType(string(c.Underlying)); err != nil {
			return err
		}
	}
	return nil
}
