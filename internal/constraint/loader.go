// Package constraint loads the constraint dataset: natural-language
// requirements of each system with the code lines that enforce them.
package constraint

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/dshills/lasso-mcp/internal/logging"
	"github.com/dshills/lasso-mcp/pkg/types"
)

// Dataset columns
const (
	ColumnProject         = "Project"
	ColumnID              = "ID"
	ColumnGroundTruth     = "Enforcing Statement"
	ColumnGroundTruthType = "Ground Truth Type"
	ColumnPatternType     = "Enforcing Statement CIP"
	ColumnConstraintType  = "Constraint Type"
	ColumnText            = "Text"
	ColumnContext         = "Context"
	ColumnOperands        = "Operands"
	ColumnConsequence     = "Consequence"
	ColumnDataSet         = "Data Set"
)

var requiredColumns = []string{ColumnProject, ColumnID, ColumnGroundTruth, ColumnConstraintType}

// notAppCode marks constraints enforced outside the application sources
const notAppCode = "not-app-code"

var (
	sourceDirPattern = regexp.MustCompile(`^.*src/(main/)*(java/)*`)
	operandSeparator = regexp.MustCompile(`\s*,\s*`)
)

// Loader reads constraints from CSV
type Loader struct {
	logger hclog.Logger
}

// NewLoader creates a loader
func NewLoader(logger hclog.Logger) *Loader {
	return &Loader{logger: logging.OrNull(logger)}
}

// LoadFile reads a constraints CSV file
func (l *Loader) LoadFile(path string) ([]*types.Constraint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open constraints: %w", err)
	}
	defer f.Close()
	return l.Load(f)
}

// Load reads constraints from CSV with a header row. Rows enforced outside
// application code or by an unsupported pattern type are dropped; malformed
// rows are skipped with a warning.
func (l *Loader) Load(r io.Reader) ([]*types.Constraint, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read constraints header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("constraints file is missing column %q", name)
		}
	}

	var constraints []*types.Constraint
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read constraints: %w", err)
		}

		get := func(column string) string {
			i, ok := columns[column]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		if get(ColumnGroundTruthType) == notAppCode {
			continue
		}
		c, err := convertRow(get)
		if err != nil {
			l.logger.Warn("skipping malformed constraint", "line", line, "id", get(ColumnID), "error", err)
			continue
		}
		if c != nil {
			constraints = append(constraints, c)
		}
	}
	return constraints, nil
}

// convertRow returns nil without error for rows enforced by a pattern type
// no detector implements
func convertRow(get func(string) string) (*types.Constraint, error) {
	c := &types.Constraint{
		ID:          get(ColumnID),
		System:      get(ColumnProject),
		Text:        get(ColumnText),
		Context:     get(ColumnContext),
		Consequence: get(ColumnConsequence),
		Extra:       get(ColumnDataSet),
	}
	if c.ID == "" || c.System == "" {
		return nil, errors.New("constraint id and project are required")
	}

	if pt := get(ColumnPatternType); pt != "" {
		t, err := types.ParsePatternType(pt)
		if err != nil {
			return nil, nil
		}
		c.PatternType = t
	}

	ct, err := types.ParseConstraintType(get(ColumnConstraintType))
	if err != nil {
		return nil, err
	}
	c.Type = ct

	if ops := get(ColumnOperands); ops != "" {
		c.Operands = operandSeparator.Split(ops, -1)
	}

	for _, ref := range strings.Split(get(ColumnGroundTruth), "\n") {
		if strings.TrimSpace(ref) == "" {
			continue
		}
		gt, err := types.ParseGroundTruth(ref)
		if err != nil {
			return nil, err
		}
		gt.File = sourceDirPattern.ReplaceAllString(gt.File, "")
		c.GroundTruths = append(c.GroundTruths, gt)
	}
	return c, nil
}

// GroupBySystem groups constraints by system. Systems are sorted by name
// and constraints keep their order.
func GroupBySystem(constraints []*types.Constraint) ([]string, map[string][]*types.Constraint) {
	groups := make(map[string][]*types.Constraint)
	for _, c := range constraints {
		groups[c.System] = append(groups[c.System], c)
	}
	systems := make([]string, 0, len(groups))
	for s := range groups {
		systems = append(systems, s)
	}
	sort.Strings(systems)
	return systems, groups
}
