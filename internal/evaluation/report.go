package evaluation

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 32)
}

// ConstraintWriter writes one row per evaluated constraint. It is safe for
// concurrent use.
type ConstraintWriter struct {
	mu      sync.Mutex
	w       *csv.Writer
	ks      []int
	started bool
}

// NewConstraintWriter creates a per-constraint CSV writer
func NewConstraintWriter(w io.Writer, ks []int) *ConstraintWriter {
	return &ConstraintWriter{w: csv.NewWriter(w), ks: NewAggregated(ks).Ks()}
}

func (cw *ConstraintWriter) header() []string {
	h := []string{"00 Technique", "01 Project", "02 ID"}
	for _, k := range cw.ks {
		h = append(h, fmt.Sprintf("HIT@%02d?", k))
	}
	return append(h,
		"Method group: ESC ranks", "Method group: rank", "Method group: size",
		"Precision", "Rank", "Recall", "Total Results", "zy Data Set")
}

// Write appends the rows of a batch of evaluations
func (cw *ConstraintWriter) Write(evaluations []*Evaluation) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if !cw.started {
		if err := cw.w.Write(cw.header()); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		cw.started = true
	}
	for _, e := range evaluations {
		if err := cw.w.Write(cw.row(e)); err != nil {
			return fmt.Errorf("failed to write row of %s: %w", e.Query.ID, err)
		}
	}
	cw.w.Flush()
	return cw.w.Error()
}

func (cw *ConstraintWriter) row(e *Evaluation) []string {
	rank, found := e.Rank()
	row := []string{e.Scenario.Technique(), e.Scenario.Project, e.Query.ID}
	for _, k := range cw.ks {
		hit := "0"
		if found && rank <= k {
			hit = "1"
		}
		row = append(row, hit)
	}

	escRanks := make([]string, len(e.GTMethodESCRanks))
	for i, r := range e.GTMethodESCRanks {
		escRanks[i] = strconv.Itoa(r)
	}
	methodRank := "N/A"
	if e.GTMethodRank != nil {
		methodRank = strconv.Itoa(*e.GTMethodRank)
	}
	groupSize := "N/A"
	if e.GTGroupSize != -1 {
		groupSize = strconv.Itoa(e.GTGroupSize)
	}
	rankText := ""
	if found {
		rankText = strconv.Itoa(rank)
	}

	return append(row,
		strings.Join(escRanks, ", "), methodRank, groupSize,
		formatFloat(e.Precision()), rankText, formatFloat(e.Recall()),
		strconv.Itoa(e.ResultCount()), e.Query.Extra)
}

// SummaryWriter writes one row per technique aggregate
type SummaryWriter struct {
	w  *csv.Writer
	ks []int
}

// NewSummaryWriter creates a per-technique CSV writer
func NewSummaryWriter(w io.Writer, ks []int) *SummaryWriter {
	return &SummaryWriter{w: csv.NewWriter(w), ks: NewAggregated(ks).Ks()}
}

// Row is a named aggregate
type Row struct {
	Technique string
	Aggregate *Aggregated
}

// Write writes the header and every row
func (sw *SummaryWriter) Write(rows []Row) error {
	h := []string{"00 Technique"}
	for i, k := range sw.ks {
		h = append(h, fmt.Sprintf("%02d %%HIT@%02d", i+1, k), fmt.Sprintf("%02d HIT@%02d", i+1, k))
	}
	h = append(h, "Average Rank (Over retrieved only)", "Average Recall", "Average Results", "MAP", "MRR", "Queries")
	if err := sw.w.Write(h); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range rows {
		a := r.Aggregate
		row := []string{r.Technique}
		for _, k := range sw.ks {
			row = append(row, formatFloat(a.PercentHits(k)), strconv.Itoa(a.Hits(k)))
		}
		row = append(row,
			formatFloat(a.AverageRank()), formatFloat(a.AverageRecall()), formatFloat(a.AverageResults()),
			formatFloat(a.MAP()), formatFloat(a.MRR()), strconv.Itoa(a.QueryCount()))
		if err := sw.w.Write(row); err != nil {
			return fmt.Errorf("failed to write summary of %s: %w", r.Technique, err)
		}
	}
	sw.w.Flush()
	return sw.w.Error()
}
