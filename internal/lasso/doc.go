// Package lasso ranks detected code patterns against natural-language
// constraints.
//
// An IndexBuilder indexes every pattern of a project in a term index with
// one field per operand, the enclosing method and class names, and the
// text of the block the pattern guards. An Index then scores a constraint
// against that corpus under one scenario (Config): every candidate gets a
// Score decomposed into weighted components, results covering the same
// lines are deduplicated, and optional passes penalize methods with many
// results or methods called by other retrieved methods. A scenario can
// also lean on a baseline retrieval technique to boost, filter or merge
// its results at method level.
package lasso
