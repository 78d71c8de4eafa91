// Package termindex is an inverted index over text items with pluggable
// similarity, persisted through internal/storage.
//
// An Index is immutable once built or opened, so concurrent searches need
// no locking.
package termindex

import (
	"fmt"
	"sort"
	"strings"
)

// Document is an item to index. Fields not declared in the schema are ignored.
type Document struct {
	Fields map[string]string
}

// Hit is a matched document
type Hit struct {
	Key     string
	Ordinal int
	Stored  map[string]string
	Rank    int // 1-based, contiguous
	Score   float64
}

type posting struct {
	ordinal int
	freq    int
}

type docEntry struct {
	key     string
	stored  map[string]string
	lengths map[string]int
}

// Index is a searchable, read-only term index
type Index struct {
	name       string
	schema     Schema
	similarity Similarity
	operator   Operator

	docs     []docEntry
	postings map[string]map[string][]posting // field -> term -> postings sorted by ordinal
	avgLen   map[string]float64
}

func newIndex(name string, schema Schema, sim Similarity, op Operator) *Index {
	return &Index{
		name:       name,
		schema:     schema,
		similarity: sim,
		operator:   op,
		postings:   make(map[string]map[string][]posting),
		avgLen:     make(map[string]float64),
	}
}

// Name returns the index name
func (ix *Index) Name() string { return ix.name }

// Len returns the number of documents
func (ix *Index) Len() int { return len(ix.docs) }

// Key returns the ID of the document with the given ordinal
func (ix *Index) Key(ordinal int) string { return ix.docs[ordinal].key }

// Stored returns the stored fields of the document with the given ordinal
func (ix *Index) Stored(ordinal int) map[string]string { return ix.docs[ordinal].stored }

func (ix *Index) addPosting(field, term string, p posting) {
	terms, ok := ix.postings[field]
	if !ok {
		terms = make(map[string][]posting)
		ix.postings[field] = terms
	}
	terms[term] = append(terms[term], p)
}

// finish sorts postings and computes average field lengths
func (ix *Index) finish() {
	for _, terms := range ix.postings {
		for _, list := range terms {
			sort.Slice(list, func(i, j int) bool { return list[i].ordinal < list[j].ordinal })
		}
	}
	totals := make(map[string]int)
	for _, d := range ix.docs {
		for f, n := range d.lengths {
			totals[f] += n
		}
	}
	if len(ix.docs) > 0 {
		for f, n := range totals {
			ix.avgLen[f] = float64(n) / float64(len(ix.docs))
		}
	}
}

// Search tokenizes text on whitespace and runs it against field
func (ix *Index) Search(text, field string) ([]Hit, error) {
	return ix.SearchTerms(strings.Fields(text), field)
}

// SearchTerms runs one clause per term against field, combined with the
// index operator. Repeated terms are repeated clauses. Hits are ordered by
// descending score, then by insertion order.
func (ix *Index) SearchTerms(terms []string, field string) ([]Hit, error) {
	f, ok := ix.schema.Field(field)
	if !ok {
		return nil, fmt.Errorf("index %s has no field %q", ix.name, field)
	}
	if f.Kind == FieldStored {
		return nil, fmt.Errorf("field %q of index %s is not searchable", field, ix.name)
	}
	if len(terms) == 0 {
		return nil, nil
	}

	fieldPostings := ix.postings[field]
	scores := make(map[int]float64)
	matched := make(map[int]map[string]struct{})

	for _, term := range terms {
		list := fieldPostings[term]
		for _, p := range list {
			scores[p.ordinal] += ix.similarity.Score(TermStats{
				Freq:         p.freq,
				DocLength:    ix.docs[p.ordinal].lengths[field],
				DocFreq:      len(list),
				DocCount:     len(ix.docs),
				AvgDocLength: ix.avgLen[field],
			})
			if ix.operator == And {
				if matched[p.ordinal] == nil {
					matched[p.ordinal] = make(map[string]struct{})
				}
				matched[p.ordinal][term] = struct{}{}
			}
		}
	}

	if ix.operator == And {
		required := distinct(terms)
		for ordinal := range scores {
			if len(matched[ordinal]) != required {
				delete(scores, ordinal)
			}
		}
	}

	hits := make([]Hit, 0, len(scores))
	for ordinal, score := range scores {
		d := ix.docs[ordinal]
		hits = append(hits, Hit{Key: d.key, Ordinal: ordinal, Stored: d.stored, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Ordinal < hits[j].Ordinal
	})
	for i := range hits {
		hits[i].Rank = i + 1
	}
	return hits, nil
}

// Terms returns the vocabulary of field in sorted order
func (ix *Index) Terms(field string) []string {
	terms := make([]string, 0, len(ix.postings[field]))
	for t := range ix.postings[field] {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// ForEachPosting calls fn for every (term, document, frequency) of field,
// terms in sorted order
func (ix *Index) ForEachPosting(field string, fn func(term string, ordinal, freq int)) {
	for _, term := range ix.Terms(field) {
		for _, p := range ix.postings[field][term] {
			fn(term, p.ordinal, p.freq)
		}
	}
}

// DocFreq returns the number of documents whose field contains term
func (ix *Index) DocFreq(field, term string) int {
	return len(ix.postings[field][term])
}

func distinct(terms []string) int {
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		seen[t] = struct{}{}
	}
	return len(seen)
}

// tokenize counts whitespace-separated terms
func tokenize(text string) (map[string]int, int) {
	tokens := strings.Fields(text)
	freqs := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freqs[t]++
	}
	return freqs, len(tokens)
}
