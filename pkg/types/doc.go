// Package types provides shared type definitions for the Lasso constraint tracer.
//
// This package defines domain types used across multiple components,
// including detected patterns, constraints, text spans, text blocks and
// ranked results.
//
// # Core Types
//
// Pattern represents a syntactic construct (null check, if-chain, constant
// assignment, ...) detected in Java source:
//
//	constant := "0"
//	pattern := &types.Pattern{
//	    Type: types.PatternAssignConstant,
//	    Location: types.Location{
//	        PackagePath: "org/acme/Order.java",
//	        Range:       types.LineRange(42, 42),
//	    },
//	    Operands: []types.Operand{{Text: "quantity"}},
//	    Constant: &constant,
//	}
//
// Value-carrying patterns set Constant; name-value patterns also set
// Attribute. The pattern ID (TYPE;path:range) survives JSON round trips.
//
// Constraint is a natural-language requirement used as a query. Its
// ConstraintType decides which one or two pattern types are expected:
//
//	ct, _ := types.ParseConstraintType("value-comparison")
//	ct.ExpectedTypes() // [BINARY_COMPARISON]
//
// # Source Text
//
// TextSpan is a single identifier, literal or comment line with its
// enclosing class, method and statement. TextBlock merges spans over a line
// range and is the unit indexed by the baseline retrieval techniques.
//
// # Validation
//
//	if err := pattern.Validate(); err != nil {
//	    return err
//	}
//
// Invariant violations found while detecting or indexing are reported as
// *InvariantError so callers can abort the current build.
package types
