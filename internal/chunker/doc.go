// Package chunker merges source text spans into text blocks, the unit the
// baseline retrieval indexes work on.
//
// # Basic Usage
//
//	c := chunker.New(chunker.GranularityMethod)
//	blocks := c.Blocks(parseResult.Spans)
//	for _, b := range blocks {
//	    fmt.Println(b.ID(), b.Text)
//	}
//
// # Granularity
//
// Spans are grouped by a location range that depends on the granularity:
//   - METHOD: the enclosing method range, or the statement range for spans
//     outside any method
//   - STATEMENT: the enclosing statement range
//   - LINE: the span's own line; lines holding only comments are skipped
//
// A span with no usable range becomes a one-line block. The texts of a
// group are joined with single spaces in line order.
package chunker
