package evaluation

import (
	"sort"
)

// DefaultHitsAtK are the cutoffs hits@k is reported for
var DefaultHitsAtK = []int{1, 5, 10, 15, 20}

// Aggregated accumulates the metrics of many evaluations. Merging two
// aggregates sums their accumulators, so averages are weighted by query
// count.
type Aggregated struct {
	ks         []int
	counter    int
	recall     float64
	rr         float64
	ap         float64
	results    float64
	rank       float64
	resultSize float64
	hits       map[int]int
}

// NewAggregated creates an empty aggregate for the given cutoffs
func NewAggregated(ks []int) *Aggregated {
	if len(ks) == 0 {
		ks = DefaultHitsAtK
	}
	sorted := append([]int(nil), ks...)
	sort.Ints(sorted)
	hits := make(map[int]int, len(sorted))
	for _, k := range sorted {
		hits[k] = 0
	}
	return &Aggregated{ks: sorted, hits: hits}
}

// Create aggregates a batch of evaluations
func Create(ks []int, evaluations []*Evaluation) *Aggregated {
	a := NewAggregated(ks)
	for _, e := range evaluations {
		a.Add(e)
	}
	return a
}

// Aggregate merges per-project aggregates into a cross-project one
func Aggregate(ks []int, aggregates []*Aggregated) *Aggregated {
	a := NewAggregated(ks)
	for _, o := range aggregates {
		a.Merge(o)
	}
	return a
}

// Add accumulates one evaluation
func (a *Aggregated) Add(e *Evaluation) {
	a.counter++
	a.recall += e.Recall()
	a.rr += e.ReciprocalRank()
	a.ap += e.AveragePrecision()
	a.results += float64(e.ResultCount())
	if r, ok := e.Rank(); ok {
		a.rank += float64(r)
		for _, k := range a.ks {
			if r <= k {
				a.hits[k]++
			}
		}
	}
	a.resultSize += e.AverageResultSize()
}

// Merge adds the accumulators of o
func (a *Aggregated) Merge(o *Aggregated) {
	a.counter += o.counter
	a.recall += o.recall
	a.rr += o.rr
	a.ap += o.ap
	a.results += o.results
	a.rank += o.rank
	a.resultSize += o.resultSize
	for _, k := range a.ks {
		a.hits[k] += o.hits[k]
	}
}

func (a *Aggregated) average(accum float64) float64 {
	if a.counter == 0 {
		return 0
	}
	return accum / float64(a.counter)
}

// Ks returns the hits@k cutoffs, ascending
func (a *Aggregated) Ks() []int { return a.ks }

// QueryCount is the number of evaluations accumulated
func (a *Aggregated) QueryCount() int { return a.counter }

// AverageRecall is the mean recall
func (a *Aggregated) AverageRecall() float64 { return a.average(a.recall) }

// MRR is the mean reciprocal rank
func (a *Aggregated) MRR() float64 { return a.average(a.rr) }

// MAP is the mean average precision
func (a *Aggregated) MAP() float64 { return a.average(a.ap) }

// AverageResults is the mean result count
func (a *Aggregated) AverageResults() float64 { return a.average(a.results) }

// MeanAverageResultSize is the mean of the per-query average result sizes
func (a *Aggregated) MeanAverageResultSize() float64 { return a.average(a.resultSize) }

// AverageRank is the mean rank of the first true positive over the queries
// that retrieved one
func (a *Aggregated) AverageRank() float64 {
	denom := float64(a.counter) * a.AverageRecall()
	if denom == 0 {
		return 0
	}
	return a.rank / denom
}

// Hits is the number of queries whose first true positive ranks within k
func (a *Aggregated) Hits(k int) int {
	return a.hits[k]
}

// PercentHits is Hits over the query count
func (a *Aggregated) PercentHits(k int) float64 {
	return a.average(float64(a.hits[k]))
}
