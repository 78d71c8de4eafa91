package evaluation

import (
	"sort"
)

// Evaluation derives retrieval metrics and ranking diagnostics from a
// collection
type Evaluation struct {
	*Collection

	// FullQueryMatches counts results that matched every query operand
	FullQueryMatches int
	// PartialQueryMatches counts results that matched only some
	PartialQueryMatches int
	// FullPatternMatches counts results whose every operand was matched
	FullPatternMatches int
	// ScoreClusters are the (first, last) ranks of runs of results sharing
	// a score, by descending score
	ScoreClusters [][2]int
	// OperandClusters groups results by their operand text set
	OperandClusters map[string][]Item

	// GTMethodRank is the position of the ground truth within the method
	// result that matched it, -1 when that method has no matching member.
	// It is nil when nothing matched.
	GTMethodRank *int
	// GTGroupSize is the member count of that method result, -1 when
	// nothing matched
	GTGroupSize int
	// GTMethodESCRanks are the ranks of that method result's members
	GTMethodESCRanks []int
}

// Evaluate computes the metrics of a collection
func Evaluate(c *Collection) *Evaluation {
	e := &Evaluation{Collection: c, GTGroupSize: -1, OperandClusters: make(map[string][]Item)}

	items := c.Items()
	byScore := make(map[float64][]int)
	for _, it := range items {
		switch {
		case it.Matches.Query == it.Matches.QueryTotal:
			e.FullQueryMatches++
		case it.Matches.Query < it.Matches.QueryTotal:
			e.PartialQueryMatches++
		}
		if it.Matches.Pattern == it.Matches.PatternTotal {
			e.FullPatternMatches++
		}
		byScore[it.Score] = append(byScore[it.Score], it.Rank)
		k := it.operandSetKey()
		e.OperandClusters[k] = append(e.OperandClusters[k], it)
	}

	scores := make([]float64, 0, len(byScore))
	for s, ranks := range byScore {
		if len(ranks) > 1 {
			scores = append(scores, s)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(scores)))
	for _, s := range scores {
		ranks := byScore[s]
		sort.Ints(ranks)
		e.ScoreClusters = append(e.ScoreClusters, [2]int{ranks[0], ranks[len(ranks)-1]})
	}

	if tps := c.TruePositiveRanks(); len(tps) > 0 {
		if g, ok := c.Group(tps[0]); ok {
			rank := g.methodRank
			e.GTMethodRank = &rank
			first := g.First()
			e.GTGroupSize = len(first.Grouped)
			for _, m := range first.Grouped {
				e.GTMethodESCRanks = append(e.GTMethodESCRanks, m.Rank)
			}
		}
	}
	return e
}

// Rank is the rank of the first true positive
func (e *Evaluation) Rank() (int, bool) {
	tps := e.TruePositiveRanks()
	if len(tps) == 0 {
		return 0, false
	}
	return tps[0], true
}

// ReciprocalRank is 1/Rank, 0 when nothing matched
func (e *Evaluation) ReciprocalRank() float64 {
	r, ok := e.Rank()
	if !ok {
		return 0
	}
	return 1 / float64(r)
}

// TruePositives is the number of ground truths matched
func (e *Evaluation) TruePositives() int {
	return len(e.TruePositiveRanks())
}

// Precision is true positives over results, 0 without true positives
func (e *Evaluation) Precision() float64 {
	tp := e.TruePositives()
	if tp == 0 {
		return 0
	}
	return float64(tp) / float64(e.ResultCount())
}

// Recall is true positives over ground truths. A query without ground
// truths has recall 0.
func (e *Evaluation) Recall() float64 {
	relevant := e.TruePositives() + e.FalseNegatives()
	if relevant == 0 {
		return 0
	}
	return float64(e.TruePositives()) / float64(relevant)
}

// F1 is the harmonic mean of precision and recall
func (e *Evaluation) F1() float64 {
	p, r := e.Precision(), e.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// AveragePrecision sums the precision at each true positive rank over the
// number of ground truths
func (e *Evaluation) AveragePrecision() float64 {
	var sum float64
	for i, rank := range e.TruePositiveRanks() {
		sum += float64(i+1) / float64(rank)
	}
	relevant := e.TruePositives() + e.FalseNegatives()
	if relevant == 0 {
		return 0
	}
	return sum / float64(relevant)
}
