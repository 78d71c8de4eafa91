package embedder

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/dshills/lasso-mcp/internal/storage"
)

// Postings is the term-document source an LSI model is trained on
type Postings interface {
	Len() int
	Key(ordinal int) string
	Terms(field string) []string
	DocFreq(field, term string) int
	ForEachPosting(field string, fn func(term string, ordinal, freq int))
}

// Match is a document ranked by cosine similarity to a query
type Match struct {
	Key     string
	Ordinal int
	Score   float64
}

// Model is a latent-semantic model: term and document vectors from a
// truncated SVD of the weighted term-document matrix. It is read-only after
// training or loading, apart from its query cache.
type Model struct {
	dim       int
	termIndex map[string]int
	terms     [][]float32
	docKeys   []string
	docs      [][]float32
	cache     *Cache
}

// Train builds a model of at most dim dimensions over field. Entries are
// weighted log(1+tf) * ln(1+N/df).
//
// TODO: switch to a sparse truncated SVD (Lanczos) once projects exceed a
// few thousand blocks; the dense factorization is cubic in the smaller side.
func Train(ctx context.Context, src Postings, field string, dim int) (*Model, error) {
	if dim < 1 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidInput)
	}

	vocabulary := src.Terms(field)
	numDocs := src.Len()
	if len(vocabulary) == 0 || numDocs == 0 {
		return nil, ErrEmptyCorpus
	}

	termIndex := make(map[string]int, len(vocabulary))
	for i, t := range vocabulary {
		termIndex[t] = i
	}

	a := mat.NewDense(len(vocabulary), numDocs, nil)
	src.ForEachPosting(field, func(term string, ordinal, freq int) {
		idf := math.Log(1 + float64(numDocs)/float64(src.DocFreq(field, term)))
		a.Set(termIndex[term], ordinal, math.Log(1+float64(freq))*idf)
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, fmt.Errorf("singular value decomposition did not converge")
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	values := svd.Values(nil)

	k := dim
	if k > len(values) {
		k = len(values)
	}

	m := &Model{
		dim:       k,
		termIndex: termIndex,
		terms:     scaledRows(&u, values, k),
		docKeys:   make([]string, numDocs),
		docs:      scaledRows(&v, values, k),
		cache:     NewCache(1000),
	}
	for i := 0; i < numDocs; i++ {
		m.docKeys[i] = src.Key(i)
	}
	return m, nil
}

// scaledRows returns the first k columns of each row scaled by the
// singular values
func scaledRows(d *mat.Dense, values []float64, k int) [][]float32 {
	rows, _ := d.Dims()
	out := make([][]float32, rows)
	for i := 0; i < rows; i++ {
		vec := make([]float32, k)
		for j := 0; j < k; j++ {
			vec[j] = float32(d.At(i, j) * values[j])
		}
		out[i] = vec
	}
	return out
}

// Dimension returns the number of latent dimensions
func (m *Model) Dimension() int { return m.dim }

// Len returns the number of documents
func (m *Model) Len() int { return len(m.docs) }

// Embed sums the vectors of the known terms
func (m *Model) Embed(ctx context.Context, terms []string) (*Embedding, error) {
	if err := ValidateTerms(terms); err != nil {
		return nil, err
	}

	hash := ComputeHash(terms)
	if emb, ok := m.cache.Get(hash); ok {
		return emb, nil
	}

	vector := make([]float32, m.dim)
	known := 0
	for _, t := range terms {
		idx, ok := m.termIndex[t]
		if !ok {
			continue
		}
		known++
		for j, x := range m.terms[idx] {
			vector[j] += x
		}
	}

	emb := &Embedding{Vector: vector, Dimension: m.dim, Hash: hash, Known: known}
	m.cache.Set(hash, emb)
	return emb, nil
}

// Search ranks documents by cosine similarity to the query terms. Documents
// with non-positive similarity are left out, as is everything when no query
// term is in the vocabulary.
func (m *Model) Search(ctx context.Context, terms []string) ([]Match, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	emb, err := m.Embed(ctx, terms)
	if err != nil {
		return nil, err
	}
	if emb.Known == 0 {
		return nil, nil
	}

	var matches []Match
	for i, doc := range m.docs {
		score := storage.CosineSimilarity(emb.Vector, doc)
		if score > 0 {
			matches = append(matches, Match{Key: m.docKeys[i], Ordinal: i, Score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches, nil
}

// VectorWriter is the subset of storage used to persist a model
type VectorWriter interface {
	UpsertVector(ctx context.Context, vector *storage.Vector) error
}

// Save writes term and document vectors under indexID. Documents are
// written in ordinal order.
func (m *Model) Save(ctx context.Context, w VectorWriter, indexID int64) error {
	for term, idx := range m.termIndex {
		if err := w.UpsertVector(ctx, &storage.Vector{IndexID: indexID, Kind: storage.VectorTerm, Key: term, Values: m.terms[idx]}); err != nil {
			return err
		}
	}
	for i, key := range m.docKeys {
		if err := w.UpsertVector(ctx, &storage.Vector{IndexID: indexID, Kind: storage.VectorDocument, Key: key, Values: m.docs[i]}); err != nil {
			return err
		}
	}
	return nil
}

// Load reads a model saved under indexID
func Load(ctx context.Context, store storage.Storage, indexID int64) (*Model, error) {
	termVectors, err := store.ListVectors(ctx, indexID, storage.VectorTerm)
	if err != nil {
		return nil, fmt.Errorf("failed to load term vectors: %w", err)
	}
	docVectors, err := store.ListVectors(ctx, indexID, storage.VectorDocument)
	if err != nil {
		return nil, fmt.Errorf("failed to load document vectors: %w", err)
	}
	if len(termVectors) == 0 || len(docVectors) == 0 {
		return nil, ErrEmptyCorpus
	}

	m := &Model{
		dim:       len(termVectors[0].Values),
		termIndex: make(map[string]int, len(termVectors)),
		terms:     make([][]float32, len(termVectors)),
		docKeys:   make([]string, len(docVectors)),
		docs:      make([][]float32, len(docVectors)),
		cache:     NewCache(1000),
	}
	for i, v := range termVectors {
		m.termIndex[v.Key] = i
		m.terms[i] = v.Values
	}
	for i, v := range docVectors {
		m.docKeys[i] = v.Key
		m.docs[i] = v.Values
	}
	return m, nil
}
