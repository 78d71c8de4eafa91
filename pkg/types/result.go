package types

// RankedResult is a retrieved entity with its 1-based rank and score
type RankedResult[T any] struct {
	Entity T
	Rank   int // Position in result set (1-based)
	Score  float64
}

// Validate checks if the ranked result is valid
func (r RankedResult[T]) Validate() error {
	if r.Rank < 1 {
		return ErrInvalidRank
	}
	return nil
}
