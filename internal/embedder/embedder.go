package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptyQuery   = errors.New("query has no terms")
	ErrEmptyCorpus  = errors.New("corpus has no terms")
)

// Embedding is a query vector in the latent space
type Embedding struct {
	Vector    []float32
	Dimension int
	Hash      string // Content hash for caching
	Known     int    // query terms found in the vocabulary
}

// Embedder maps preprocessed query terms into a vector space
type Embedder interface {
	// Embed returns the vector of a bag of terms
	Embed(ctx context.Context, terms []string) (*Embedding, error)

	// Dimension returns the embedding dimension
	Dimension() int
}

// Cache provides in-memory LRU caching of embeddings by content hash
type Cache struct {
	cache *lru.Cache[string, *Embedding]
}

// NewCache creates a new embedding cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 1000
	}
	cache, err := lru.New[string, *Embedding](maxLen)
	if err != nil {
		cache, _ = lru.New[string, *Embedding](1000)
	}
	return &Cache{
		cache: cache,
	}
}

// Get retrieves a copy of an embedding from cache so that callers cannot
// mutate the cached vector
func (c *Cache) Get(hash string) (*Embedding, bool) {
	emb, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}

	vectorCopy := make([]float32, len(emb.Vector))
	copy(vectorCopy, emb.Vector)

	return &Embedding{
		Vector:    vectorCopy,
		Dimension: emb.Dimension,
		Hash:      emb.Hash,
		Known:     emb.Known,
	}, true
}

// Set stores an embedding in cache with automatic LRU eviction
func (c *Cache) Set(hash string, emb *Embedding) {
	c.cache.Add(hash, emb)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash computes the SHA-256 hash of a term bag for caching
func ComputeHash(terms []string) string {
	h := sha256.Sum256([]byte(strings.Join(terms, " ")))
	return hex.EncodeToString(h[:])
}

// ValidateTerms rejects an empty query
func ValidateTerms(terms []string) error {
	if len(terms) == 0 {
		return ErrEmptyQuery
	}
	return nil
}
