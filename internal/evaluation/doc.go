// Package evaluation measures ranked results against the ground truths of
// their query.
//
// A Collection clusters the results of one query and credits each ground
// truth to at most one cluster. Evaluation turns a collection into
// precision, recall, reciprocal rank and average precision plus ranking
// diagnostics, and Aggregated sums evaluations per technique and across
// projects. The report writers emit both levels as CSV.
package evaluation
