package pattern

import (
	"sort"
	"sync"

	"github.com/dshills/lasso-mcp/pkg/types"
)

type lineKey struct {
	Type types.PatternType
	File string
	Line int
}

type valueKey struct {
	Type     types.PatternType
	Constant string
}

type attributeKey struct {
	Type      types.PatternType
	Constant  string
	Attribute types.Attribute
}

// Repository holds the detected patterns of one system and indexes them
// by (type, file, line), (type, constant) and (type, constant, attribute).
// It is safe for concurrent use.
type Repository struct {
	system string

	mu         sync.RWMutex
	byLine     map[lineKey]*types.Pattern
	byValue    map[valueKey][]*types.Pattern
	byAttr     map[attributeKey][]*types.Pattern
	byID       map[string]*types.Pattern
	insertions []string
}

// NewRepository creates an empty repository for a system
func NewRepository(system string) *Repository {
	return &Repository{
		system:  system,
		byLine:  make(map[lineKey]*types.Pattern),
		byValue: make(map[valueKey][]*types.Pattern),
		byAttr:  make(map[attributeKey][]*types.Pattern),
		byID:    make(map[string]*types.Pattern),
	}
}

// System returns the name of the analyzed system
func (r *Repository) System() string {
	return r.system
}

// AddPattern registers p under every line it spans. A later pattern with
// the same (type, file, line) replaces the earlier one for that key.
func (r *Repository) AddPattern(p *types.Pattern) error {
	if err := p.Validate(); err != nil {
		return types.NewInvariantError("pattern.AddPattern", "%s: %v", p.ID(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, line := range p.Lines() {
		r.byLine[lineKey{Type: p.Type, File: p.FileName(), Line: line}] = p
	}

	if p.Constant != nil {
		vk := valueKey{Type: p.Type, Constant: *p.Constant}
		r.byValue[vk] = append(r.byValue[vk], p)

		if p.Attribute != nil {
			ak := attributeKey{Type: p.Type, Constant: *p.Constant, Attribute: *p.Attribute}
			r.byAttr[ak] = append(r.byAttr[ak], p)
		}
	}

	id := p.ID()
	if _, ok := r.byID[id]; !ok {
		r.insertions = append(r.insertions, id)
	}
	r.byID[id] = p
	return nil
}

// AddPatterns registers every pattern, stopping at the first invalid one
func (r *Repository) AddPatterns(patterns []*types.Pattern) error {
	for _, p := range patterns {
		if err := r.AddPattern(p); err != nil {
			return err
		}
	}
	return nil
}

// Contains reports whether a pattern of type t covers file:line
func (r *Repository) Contains(t types.PatternType, file string, line int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byLine[lineKey{Type: t, File: file, Line: line}]
	return ok
}

// LookUp returns the pattern of type t registered at file:line
func (r *Repository) LookUp(t types.PatternType, file string, line int) (*types.Pattern, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byLine[lineKey{Type: t, File: file, Line: line}]
	return p, ok
}

// LookUpInstances returns the value patterns of type t carrying constant
func (r *Repository) LookUpInstances(t types.PatternType, constant string) []*types.Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*types.Pattern(nil), r.byValue[valueKey{Type: t, Constant: constant}]...)
}

// LookUpAttributeInstances returns the name-value patterns of type t
// carrying constant and attribute
func (r *Repository) LookUpAttributeInstances(t types.PatternType, constant string, attribute types.Attribute) []*types.Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*types.Pattern(nil), r.byAttr[attributeKey{Type: t, Constant: constant, Attribute: attribute}]...)
}

// Get returns the pattern with the given ID
func (r *Repository) Get(id string) (*types.Pattern, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// Patterns returns every distinct pattern in insertion order
func (r *Repository) Patterns() []*types.Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.Pattern, 0, len(r.insertions))
	for _, id := range r.insertions {
		out = append(out, r.byID[id])
	}
	return out
}

// Len returns the number of distinct patterns
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.insertions)
}

// CountByType returns the number of distinct patterns per type
func (r *Repository) CountByType() map[types.PatternType]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[types.PatternType]int)
	for _, p := range r.byID {
		counts[p.Type]++
	}
	return counts
}

// sortPatterns orders patterns by file, then start line, then ID
func sortPatterns(patterns []*types.Pattern) {
	sort.SliceStable(patterns, func(i, j int) bool {
		a, b := patterns[i], patterns[j]
		if a.FileName() != b.FileName() {
			return a.FileName() < b.FileName()
		}
		if a.Location.Range.Begin.Line != b.Location.Range.Begin.Line {
			return a.Location.Range.Begin.Line < b.Location.Range.Begin.Line
		}
		return a.ID() < b.ID()
	})
}
