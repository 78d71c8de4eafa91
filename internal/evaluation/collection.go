package evaluation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/lasso-mcp/pkg/types"
)

// Matches counts the matched operands of a scored result
type Matches struct {
	Query        int
	QueryTotal   int
	Pattern      int
	PatternTotal int
}

// Item is one ranked result as seen by evaluation. Block covers the lines
// the result claims; Grouped holds the members of a method-level result.
type Item struct {
	ID       string
	Block    types.TextBlock
	Operands []string
	Rank     int
	Score    float64
	Repr     string
	Matches  Matches
	Grouped  []Item
}

func (it Item) lineKeys() []string {
	keys := make([]string, 0, it.Block.LineEnd-it.Block.LineBegin+1)
	for l := it.Block.LineBegin; l <= it.Block.LineEnd; l++ {
		keys = append(keys, types.LineKey(it.Block.File, l))
	}
	return keys
}

// operandSetKey is an order-insensitive key of the distinct operand texts
func (it Item) operandSetKey() string {
	seen := make(map[string]struct{}, len(it.Operands))
	var texts []string
	for _, o := range it.Operands {
		if _, ok := seen[o]; !ok {
			seen[o] = struct{}{}
			texts = append(texts, o)
		}
	}
	sort.Strings(texts)
	return strings.Join(texts, "\x00")
}

// FromBlocks converts ranked text blocks, the output of baseline indexes
func FromBlocks(results []types.RankedResult[types.TextBlock]) []Item {
	items := make([]Item, len(results))
	for i, r := range results {
		items[i] = Item{ID: r.Entity.ID(), Block: r.Entity, Rank: r.Rank, Score: r.Score}
	}
	return items
}

// ScenarioID names a project evaluated under one configuration
type ScenarioID struct {
	Project string
	Config  fmt.Stringer
}

// Separator joins the project and configuration in ScenarioID strings
const Separator = "__"

func (s ScenarioID) String() string {
	return s.Project + Separator + s.Config.String()
}

// Technique is the configuration name without the project
func (s ScenarioID) Technique() string {
	return s.Config.String()
}

// Group is a cluster of results treated as a single finding, ranked by its
// best member
type Group struct {
	Rank  int
	Items []Item
	lines map[string]struct{}
	// methodRank is the 1-based position of the first grouped member that
	// hits the matched ground truth, -1 when none does
	methodRank int
}

func newGroup(rank int, items []Item) *Group {
	sorted := append([]Item(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Rank < sorted[j].Rank })
	g := &Group{Rank: rank, Items: sorted, lines: make(map[string]struct{}), methodRank: -1}
	for _, it := range sorted {
		for _, k := range it.lineKeys() {
			g.lines[k] = struct{}{}
		}
	}
	return g
}

// First is the representative result of the group
func (g *Group) First() Item {
	return g.Items[0]
}

func (g *Group) hits(gt map[string]struct{}) bool {
	for k := range gt {
		if _, ok := g.lines[k]; ok {
			return true
		}
	}
	return false
}

func (g *Group) findMethodRank(gt map[string]struct{}) {
	for i, it := range g.First().Grouped {
		for _, k := range it.lineKeys() {
			if _, ok := gt[k]; ok {
				g.methodRank = i + 1
				return
			}
		}
	}
}

// Collection is the evaluated answer to one query
type Collection struct {
	Scenario ScenarioID
	Query    *types.Constraint
	Terms    []string

	groups            []*Group
	truePositiveRanks []int
	falseNegatives    int
	averageResultSize float64
}

// NewCollection clusters ranked items and matches them against the query's
// ground truths. With cluster set, items sharing the same operand texts
// form one group; otherwise every item is its own group.
func NewCollection(id ScenarioID, query *types.Constraint, terms []string, items []Item, cluster bool) *Collection {
	c := &Collection{Scenario: id, Query: query, Terms: terms}
	c.groups = clusterItems(items, cluster)
	c.truePositiveRanks = c.findTruePositiveRanks()
	c.falseNegatives = len(query.GroundTruths) - len(c.truePositiveRanks)

	if len(items) > 0 {
		var sum float64
		for _, it := range items {
			sum += float64(it.Block.LineEnd - it.Block.LineBegin + 1)
		}
		c.averageResultSize = sum / float64(len(items))
	}
	return c
}

func clusterItems(items []Item, cluster bool) []*Group {
	if !cluster {
		groups := make([]*Group, len(items))
		for i, it := range items {
			groups[i] = newGroup(i+1, []Item{it})
		}
		return groups
	}

	var order []string
	byKey := make(map[string][]Item)
	best := make(map[string]int)
	for _, it := range items {
		k := it.operandSetKey()
		if _, ok := byKey[k]; !ok {
			order = append(order, k)
			best[k] = it.Rank
		}
		byKey[k] = append(byKey[k], it)
		if it.Rank < best[k] {
			best[k] = it.Rank
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return best[order[i]] < best[order[j]] })

	groups := make([]*Group, len(order))
	for i, k := range order {
		groups[i] = newGroup(i+1, byKey[k])
	}
	return groups
}

// findTruePositiveRanks credits each ground truth at most once: walking the
// groups in rank order, a group takes the first remaining ground truth it
// shares a line with.
func (c *Collection) findTruePositiveRanks() []int {
	remaining := make([]map[string]struct{}, 0, len(c.Query.GroundTruths))
	for _, gt := range c.Query.GroundTruths {
		set := make(map[string]struct{}, len(gt.Lines))
		for _, k := range gt.LineKeys() {
			set[k] = struct{}{}
		}
		remaining = append(remaining, set)
	}

	var ranks []int
	for _, g := range c.groups {
		if len(remaining) == 0 {
			break
		}
		for i, gt := range remaining {
			if !g.hits(gt) {
				continue
			}
			remaining = append(remaining[:i], remaining[i+1:]...)
			ranks = append(ranks, g.Rank)
			if len(g.First().Grouped) > 0 {
				g.findMethodRank(gt)
			}
			break
		}
	}
	return ranks
}

// Group returns the group at a 1-based rank
func (c *Collection) Group(rank int) (*Group, bool) {
	if rank < 1 || rank > len(c.groups) {
		return nil, false
	}
	return c.groups[rank-1], true
}

// Groups returns the groups in rank order
func (c *Collection) Groups() []*Group {
	return c.groups
}

// Items returns the representative item of each group
func (c *Collection) Items() []Item {
	items := make([]Item, len(c.groups))
	for i, g := range c.groups {
		items[i] = g.First()
	}
	return items
}

// ResultCount is the number of groups
func (c *Collection) ResultCount() int {
	return len(c.groups)
}

// TruePositiveRanks lists the ranks credited with a ground truth
func (c *Collection) TruePositiveRanks() []int {
	return c.truePositiveRanks
}

// FalseNegatives is the number of ground truths no group matched
func (c *Collection) FalseNegatives() int {
	return c.falseNegatives
}

// AverageResultSize is the mean number of lines per ranked item
func (c *Collection) AverageResultSize() float64 {
	return c.averageResultSize
}
