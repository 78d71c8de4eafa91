package experiment

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/dshills/lasso-mcp/internal/evaluation"
)

// SampleGroups is the number of leading groups written per constraint
const SampleGroups = 10

// maxListedMembers caps the members listed for a plain cluster
const maxListedMembers = 20

var sampleHeader = []string{
	"id", "rank", "score", "operands", "project", "Is GT?", "constraint", "scoreComps", "groupedResults",
}

// SampleWriter writes the leading result groups of every evaluation, plus
// the group holding the ground truth when it ranks lower. It is safe for
// concurrent use.
type SampleWriter struct {
	mu      sync.Mutex
	w       *csv.Writer
	started bool
}

// NewSampleWriter creates a sample writer
func NewSampleWriter(w io.Writer) *SampleWriter {
	return &SampleWriter{w: csv.NewWriter(w)}
}

// Write appends the sample rows of evals
func (sw *SampleWriter) Write(evals []*evaluation.Evaluation) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if !sw.started {
		if err := sw.w.Write(sampleHeader); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		sw.started = true
	}
	for _, e := range evals {
		for _, row := range sampleRows(e) {
			if err := sw.w.Write(row); err != nil {
				return fmt.Errorf("failed to write sample of %s: %w", e.Query.ID, err)
			}
		}
	}
	sw.w.Flush()
	return sw.w.Error()
}

func sampleRows(e *evaluation.Evaluation) [][]string {
	gtRank, found := e.Rank()

	groups := e.Groups()
	selected := groups
	if len(selected) > SampleGroups {
		selected = selected[:SampleGroups]
	}
	if found && gtRank > SampleGroups {
		if g, ok := e.Group(gtRank); ok {
			selected = append(append([]*evaluation.Group(nil), selected...), g)
		}
	}

	rows := make([][]string, 0, len(selected))
	for _, g := range selected {
		first := g.First()
		rows = append(rows, []string{
			first.ID,
			strconv.Itoa(g.Rank),
			strconv.FormatFloat(first.Score, 'f', -1, 32),
			strings.Join(first.Operands, "\n"),
			e.Scenario.Project,
			strconv.FormatBool(found && g.Rank == gtRank),
			e.Query.ID,
			first.Repr,
			groupedText(g),
		})
	}
	return rows
}

// groupedText lists the members of a method result, or the first members of
// a plain cluster
func groupedText(g *evaluation.Group) string {
	first := g.First()
	if len(first.Grouped) > 0 {
		lines := make([]string, len(first.Grouped))
		for i, m := range first.Grouped {
			lines[i] = fmt.Sprintf("%s:%d - %s", m.ID, m.Block.LineBegin, m.Repr)
		}
		return strings.Join(lines, "\n")
	}

	n := min(len(g.Items), maxListedMembers)
	ids := make([]string, n)
	for i := range n {
		ids[i] = g.Items[i].ID
	}
	text := strings.Join(ids, "\n")
	if len(g.Items) > maxListedMembers {
		text += "\n..."
	}
	return text
}
