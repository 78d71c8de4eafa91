package lasso

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/dshills/lasso-mcp/internal/baseline"
	"github.com/dshills/lasso-mcp/internal/callgraph"
	"github.com/dshills/lasso-mcp/internal/evaluation"
	"github.com/dshills/lasso-mcp/internal/logging"
	"github.com/dshills/lasso-mcp/internal/textproc"
	"github.com/dshills/lasso-mcp/pkg/types"
)

// Result is a ranked candidate. Pattern is nil for method-level results
// and for methods only the baseline retrieved; Block always holds the
// file and lines the result covers.
type Result struct {
	Pattern *types.Pattern
	Block   types.TextBlock
	Rank    int
	Score   Score
	// Grouped holds the pattern results a method-level result stands for,
	// by rank
	Grouped []Result
}

// ID identifies the result: the pattern ID, or the block ID
func (r Result) ID() string {
	if r.Pattern != nil {
		return r.Pattern.ID()
	}
	return r.Block.ID()
}

func patternResult(p *types.Pattern, s Score) Result {
	return Result{
		Pattern: p,
		Block:   types.TextBlock{File: p.FileName(), LineBegin: p.Location.Range.Begin.Line, LineEnd: p.Location.Range.End.Line},
		Score:   s,
	}
}

// Item converts the result for evaluation
func (r Result) Item() evaluation.Item {
	it := evaluation.Item{
		ID:    r.ID(),
		Block: r.Block,
		Rank:  r.Rank,
		Score: r.Score.Value(),
		Repr:  r.Score.Repr(),
		Matches: evaluation.Matches{
			Query:        r.Score.Matches.Query,
			QueryTotal:   r.Score.Matches.QueryTotal,
			Pattern:      r.Score.Matches.Pattern,
			PatternTotal: r.Score.Matches.PatternTotal,
		},
	}
	if r.Pattern != nil {
		it.Operands = r.Pattern.OperandTexts()
	}
	for _, g := range r.Grouped {
		it.Grouped = append(it.Grouped, g.Item())
	}
	return it
}

// Ranking is the answer to one constraint
type Ranking struct {
	Query *types.Constraint
	// Terms are the preprocessed operand terms the query ran with
	Terms   []string
	Results []Result
}

// Index scores the patterns of a corpus against constraints under one
// scenario. It is safe for concurrent searches.
type Index struct {
	corpus   *Corpus
	cfg      Config
	baseline baseline.Index
	graph    *callgraph.Graph
	pre      *textproc.Preprocessor
	logger   hclog.Logger
}

// NewIndex creates a scenario index. base is required when the scenario
// uses the baseline; graph may be nil, which disables the call-graph pass.
func NewIndex(corpus *Corpus, cfg Config, base baseline.Index, graph *callgraph.Graph, logger hclog.Logger) (*Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.UsesBaseline() && base == nil {
		return nil, errors.New("scenario uses a baseline index but none was given")
	}
	return &Index{
		corpus:   corpus,
		cfg:      cfg,
		baseline: base,
		graph:    graph,
		pre:      NewPreprocessor(),
		logger:   logging.OrNull(logger),
	}, nil
}

// Config returns the scenario configuration
func (ix *Index) Config() Config {
	return ix.cfg
}

// Search ranks the patterns for a constraint
func (ix *Index) Search(ctx context.Context, c *types.Constraint) (*Ranking, error) {
	ix.logger.Debug("searching", "scenario", ix.cfg.String(), "project", ix.corpus.Project, "constraint", c.ID)

	operandTerms := ix.operandTerms(c)
	var allTerms []string
	for _, ts := range operandTerms {
		allTerms = append(allTerms, ts...)
	}

	var baseResults []baseline.Result
	if ix.cfg.UsesBaseline() {
		var err error
		baseResults, err = ix.baseline.Search(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("baseline search failed: %w", err)
		}
	}

	results, err := ix.patternResults(ctx, c, operandTerms, baseResults)
	if err != nil {
		return nil, err
	}
	if ix.cfg.MethodGranularity || ix.cfg.AllMethods {
		results = ix.toMethodLevel(results, baseResults)
	}
	return &Ranking{Query: c, Terms: allTerms, Results: results}, nil
}

// Items converts the results for evaluation
func (rk *Ranking) Items() []evaluation.Item {
	items := make([]evaluation.Item, len(rk.Results))
	for i, r := range rk.Results {
		items[i] = r.Item()
	}
	return items
}

// operandTerms preprocesses the constraint operands into one term list per
// query operand, grouped by constraint type
func (ix *Index) operandTerms(c *types.Constraint) [][]string {
	initial := make([][]string, len(c.Operands))
	for i, o := range c.Operands {
		initial[i] = ix.pre.Preprocess(o, true)
	}

	switch c.Type {
	case types.ConstraintDualValueComparison:
		if len(initial) != 2 {
			ix.logger.Warn("dual value constraint should have exactly 2 operands", "constraint", c.ID, "operands", len(initial))
			return initial
		}
		// Only the first operand is used
		return initial[:1]
	case types.ConstraintCategoricalValue:
		if len(initial) == 0 {
			return initial
		}
		var rest []string
		for _, ts := range initial[1:] {
			rest = append(rest, ts...)
		}
		return [][]string{initial[0], rest}
	}
	return initial
}

// simpleQuery is a field query that runs only when its component is active
type simpleQuery struct {
	component Component
	field     string
}

var simpleQueries = []simpleQuery{
	{OTMethodName, FieldMethodName},
	{OTClassName, FieldClassName},
	{CQBlock, FieldWindow},
	{OPBlock, FieldWindow},
	{TextBlock, FieldWindow},
}

func operandQueryName(queryOperand, indexOperand int) string {
	return strconv.Itoa(queryOperand) + "_" + strconv.Itoa(indexOperand)
}

// runQueries returns, per matched document ordinal, the score of every
// query that matched it
func (ix *Index) runQueries(operandTerms [][]string, consequence, text []string) (map[int]map[string]float64, error) {
	scores := make(map[int]map[string]float64)
	run := func(name string, terms []string, field string) error {
		hits, err := ix.corpus.index.SearchTerms(terms, field)
		if err != nil {
			return err
		}
		for _, h := range hits {
			if scores[h.Ordinal] == nil {
				scores[h.Ordinal] = make(map[string]float64)
			}
			scores[h.Ordinal][name] = h.Score
		}
		return nil
	}

	distinctOperandTerms := distinct(operandTerms)
	for i, ts := range operandTerms {
		for ip := 1; ip <= MaxOperands; ip++ {
			if err := run(operandQueryName(i+1, ip), ts, OperandField(ip)); err != nil {
				return nil, err
			}
		}
	}

	for _, q := range simpleQueries {
		if !ix.cfg.Weights.Active(q.component) {
			continue
		}
		terms := distinctOperandTerms
		switch q.component {
		case CQBlock:
			terms = consequence
		case TextBlock:
			terms = text
		}
		if err := run(string(q.component), terms, q.field); err != nil {
			return nil, err
		}
	}
	return scores, nil
}

func distinct(lists [][]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, ts := range lists {
		for _, t := range ts {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				out = append(out, t)
			}
		}
	}
	return out
}

func uniqueCount(terms []string) int {
	return len(distinct([][]string{terms}))
}

func (ix *Index) patternResults(ctx context.Context, c *types.Constraint, operandTerms [][]string, baseResults []baseline.Result) ([]Result, error) {
	consequence := ix.pre.Preprocess(c.Consequence, true)
	text := ix.pre.Preprocess(c.Text, true)

	scores, err := ix.runQueries(operandTerms, consequence, text)
	if err != nil {
		return nil, err
	}

	q := queryStats{
		size:            len(distinct(operandTerms)),
		consequenceSize: uniqueCount(consequence),
		textSize:        uniqueCount(text),
		operandSizes:    make(map[int]int, len(operandTerms)),
		operandCount:    len(operandTerms),
	}
	for i, ts := range operandTerms {
		q.operandSizes[i+1] = len(ts)
	}

	var boosts map[string]float64
	if ix.cfg.BaselineBoost {
		boosts = baseline.Boosts(baseResults)
	}

	ordinals := make([]int, 0, len(scores))
	for o := range scores {
		ordinals = append(ordinals, o)
	}
	sort.Ints(ordinals)

	results := make([]Result, 0, len(ordinals))
	for _, ordinal := range ordinals {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := ix.corpus.index.Key(ordinal)
		p, ok := ix.corpus.patterns[id]
		if !ok {
			return nil, types.NewInvariantError("lasso.Search", "indexed pattern %s is unknown", id)
		}
		s := ix.score(p, scores[ordinal], q, ix.corpus.stats[id], c.Type, boosts)
		if s.HasCore() {
			results = append(results, patternResult(p, s))
		}
	}

	sortByScore(results)
	results = filterOverlaps(results)
	if results, err = ix.penalizeMethodLevel(results); err != nil {
		return nil, err
	}
	if results, err = ix.penalizeWithCallGraph(results); err != nil {
		return nil, err
	}
	if ix.cfg.BaselineCombination {
		results = filterWithBaseline(results, baseResults)
	}
	assignRanks(results)
	return results, nil
}

type queryStats struct {
	size            int // distinct operand terms
	consequenceSize int
	textSize        int
	operandSizes    map[int]int
	operandCount    int
}

func ratio(score float64, size int) float64 {
	if size <= 0 {
		return 0
	}
	return score / float64(size)
}

func (ix *Index) score(p *types.Pattern, qs map[string]float64, q queryStats, st Stats, ct types.ConstraintType, boosts map[string]float64) Score {
	queryMatched, queryScore := operandScore(qs, 0, q.operandCount, q.operandSizes)
	patternMatched, patternScore := operandScore(qs, 1, st.OperandCount(), st.OperandSizes)

	var cip float64
	switch ct.ExpectedIndex(p.Type) {
	case 0:
		cip = 1
	case 1:
		cip = 0.5
	}

	values := map[Component]float64{
		ConstraintOperand: queryScore,
		ESCOperand:        patternScore,
		OTMethodName:      ratio(qs[string(OTMethodName)], q.size),
		OTClassName:       ratio(qs[string(OTClassName)], q.size),
		ExpectedCIP:       cip,
		CQBlock:           ratio(qs[string(CQBlock)], q.consequenceSize),
		OPBlock:           ratio(qs[string(OPBlock)], q.size),
		TextBlock:         ratio(qs[string(TextBlock)], q.textSize),
	}
	if lines := p.Lines(); len(lines) > 0 {
		// Every line of a pattern falls in the same baseline block
		values[ContextMethod] = boosts[types.LineKey(p.FileName(), lines[0])]
	}

	return NewScore(ix.cfg.Weights, values, OperandMatches{
		Query:        queryMatched,
		QueryTotal:   q.operandCount,
		Pattern:      patternMatched,
		PatternTotal: st.OperandCount(),
	})
}

// operandScore keeps the best positive operand-query score per operand of
// one side (0 for query operands, 1 for indexed operands), normalizes each
// by that operand's size and averages over count. It also returns how many
// operands matched.
func operandScore(qs map[string]float64, side, count int, sizes map[int]int) (int, float64) {
	best := make(map[int]float64)
	for name, s := range qs {
		if s <= 0 || name == "" || name[0] < '0' || name[0] > '9' {
			continue
		}
		parts := strings.Split(name, "_")
		k, err := strconv.Atoi(parts[side])
		if err != nil {
			continue
		}
		if s > best[k] {
			best[k] = s
		}
	}
	if len(best) == 0 {
		return 0, 0
	}
	var sum float64
	for k, s := range best {
		sum += ratio(s, sizes[k])
	}
	return len(best), ratio(sum, count)
}

// sortByScore orders by descending score. Equal scores are ordered by ID so
// that rankings are reproducible.
func sortByScore(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		vi, vj := results[i].Score.Value(), results[j].Score.Value()
		if vi != vj {
			return vi > vj
		}
		return results[i].ID() < results[j].ID()
	})
}

// filterOverlaps keeps a result only when it covers a line no better
// result covers
func filterOverlaps(results []Result) []Result {
	covered := make(map[string]struct{})
	kept := make([]Result, 0, len(results))
	for _, r := range results {
		fresh := false
		for l := r.Block.LineBegin; l <= r.Block.LineEnd; l++ {
			key := types.LineKey(r.Block.File, l)
			if _, ok := covered[key]; !ok {
				fresh = true
				covered[key] = struct{}{}
			}
		}
		if fresh {
			kept = append(kept, r)
		}
	}
	return kept
}

// methodRange is the range a pattern result is grouped under: its
// enclosing method, or its own range outside methods
func methodRange(r Result) types.Range {
	if r.Pattern != nil && r.Pattern.Location.MethodRange != nil {
		return *r.Pattern.Location.MethodRange
	}
	return r.Block.Range()
}

type methodGroup struct {
	file    string
	rng     types.Range
	members []Result
}

// groupByMethod groups results by file and method range. Groups are in
// order of their first member, members keep their relative order.
func groupByMethod(results []Result) []*methodGroup {
	var groups []*methodGroup
	index := make(map[string]*methodGroup)
	for _, r := range results {
		rng := methodRange(r)
		key := r.Block.File + "|" + rng.String()
		g, ok := index[key]
		if !ok {
			g = &methodGroup{file: r.Block.File, rng: rng}
			index[key] = g
			groups = append(groups, g)
		}
		g.members = append(g.members, r)
	}
	return groups
}

// methodPenalty is applied to the results of a method beyond its quota
const methodPenalty = 0.5

func (ix *Index) penalizeMethodLevel(results []Result) ([]Result, error) {
	pct := ix.cfg.RankPenaltyPercent
	if pct >= 1 {
		return results, nil
	}
	out := make([]Result, 0, len(results))
	for _, g := range groupByMethod(results) {
		keep := int(math.Ceil(pct * float64(len(g.members))))
		for i, r := range g.members {
			if i >= keep {
				s, err := r.Score.Penalize(methodPenalty)
				if err != nil {
					return nil, err
				}
				r.Score = s
			}
			out = append(out, r)
		}
	}
	sortByScore(out)
	return out, nil
}

// CallGraphMultiplier is the score multiplier of a result whose method is
// called by callers other methods with results. It grows towards 1 as the
// number of such callers grows.
func CallGraphMultiplier(base float64, callers int) float64 {
	if callers <= 0 {
		return 1
	}
	return 1 - base/float64(callers+1)
}

func (ix *Index) penalizeWithCallGraph(results []Result) ([]Result, error) {
	base := ix.cfg.CallGraphPenaltyFactor
	if base == 1 || ix.graph == nil {
		return results, nil
	}

	withResults := make(map[string]struct{})
	for _, r := range results {
		if m := r.Pattern.Location.MethodKey(); m != "" {
			withResults[m] = struct{}{}
		}
	}

	out := make([]Result, len(results))
	for i, r := range results {
		out[i] = r
		m := r.Pattern.Location.MethodKey()
		if m == "" || !ix.graph.HasMethod(m) {
			continue
		}
		callers := 0
		for _, caller := range ix.graph.Callers(m) {
			if _, ok := withResults[caller]; ok {
				callers++
			}
		}
		if callers == 0 {
			continue
		}
		s, err := r.Score.Penalize(CallGraphMultiplier(base, callers))
		if err != nil {
			return nil, err
		}
		out[i].Score = s
	}
	sortByScore(out)
	return out, nil
}

func filterWithBaseline(results []Result, baseResults []baseline.Result) []Result {
	lines := baseline.LineSet(baseResults)
	kept := results[:0]
	for _, r := range results {
		// Any line works: a pattern never straddles two methods
		if _, ok := lines[types.LineKey(r.Block.File, r.Block.LineBegin)]; ok {
			kept = append(kept, r)
		}
	}
	return kept
}

func assignRanks(results []Result) {
	for i := range results {
		results[i].Rank = i + 1
	}
}

func methodKey(b types.TextBlock) string {
	return fmt.Sprintf("%s-%d-%d", b.File, b.LineBegin, b.LineEnd)
}

// toMethodLevel collapses ranked pattern results into one result per
// method, ranked by their best member. With AllMethods the baseline's
// methods are merged in: a method both lists retrieved gets the average of
// its two ranks.
func (ix *Index) toMethodLevel(results []Result, baseResults []baseline.Result) []Result {
	groups := groupByMethod(results)
	methods := make([]Result, len(groups))
	for i, g := range groups {
		methods[i] = Result{
			Block:   types.TextBlock{File: g.file, LineBegin: g.rng.Begin.Line, LineEnd: g.rng.End.Line},
			Rank:    i + 1,
			Score:   FixedScore(1),
			Grouped: g.members,
		}
	}
	if !ix.cfg.AllMethods {
		return methods
	}

	type merged struct {
		rank   float64
		result Result
	}
	var order []string
	entries := make(map[string]*merged)
	for _, m := range methods {
		key := methodKey(m.Block)
		if _, ok := entries[key]; ok {
			continue
		}
		entries[key] = &merged{rank: float64(m.Rank), result: m}
		order = append(order, key)
	}
	seen := make(map[string]bool)
	for _, b := range baseResults {
		key := methodKey(b.Entity)
		if seen[key] {
			continue
		}
		seen[key] = true
		if e, ok := entries[key]; ok {
			e.rank = (e.rank + float64(b.Rank)) / 2
			continue
		}
		block := b.Entity
		block.Text = ""
		entries[key] = &merged{rank: float64(b.Rank), result: Result{Block: block, Score: FixedScore(b.Score)}}
		order = append(order, key)
	}

	sort.SliceStable(order, func(i, j int) bool { return entries[order[i]].rank < entries[order[j]].rank })
	out := make([]Result, len(order))
	for i, key := range order {
		out[i] = entries[key].result
		out[i].Rank = i + 1
	}
	return out
}
