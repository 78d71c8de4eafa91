package storage

import (
	"context"
	"time"
)

// Storage defines the interface for persisting term indexes, latent-semantic
// vectors, pattern stats and detected pattern caches
type Storage interface {
	// Index operations
	CreateIndex(ctx context.Context, index *Index) error
	GetIndex(ctx context.Context, name string) (*Index, error)
	UpdateIndex(ctx context.Context, index *Index) error
	DeleteIndex(ctx context.Context, name string) error
	ListIndexes(ctx context.Context, system string) ([]*Index, error)

	// Document operations
	InsertDocument(ctx context.Context, doc *Document) error
	ListDocuments(ctx context.Context, indexID int64) ([]*Document, error)

	// Posting operations
	InsertPostings(ctx context.Context, postings []Posting) error
	ListPostings(ctx context.Context, indexID int64) ([]Posting, error)

	// Vector operations
	UpsertVector(ctx context.Context, vector *Vector) error
	ListVectors(ctx context.Context, indexID int64, kind VectorKind) ([]*Vector, error)

	// Pattern stats operations
	UpsertPatternStats(ctx context.Context, stats *PatternStats) error
	ListPatternStats(ctx context.Context, indexID int64) ([]*PatternStats, error)

	// Pattern cache operations
	ReplacePatterns(ctx context.Context, system string, patterns []*PatternRecord) error
	ListPatterns(ctx context.Context, system string) ([]*PatternRecord, error)

	// Status operations
	GetStatus(ctx context.Context, system string) (*SystemStatus, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// IndexKind tells which component built an index
type IndexKind string

const (
	IndexKindLasso    IndexKind = "lasso"
	IndexKindBaseline IndexKind = "baseline"
	IndexKindLSI      IndexKind = "lsi"
)

// Index is a named, persisted term index or vector model
type Index struct {
	ID            int64
	Name          string
	System        string
	Kind          IndexKind
	Fingerprint   string // schema and similarity description; a mismatch makes the index stale
	DocumentCount int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Document is one indexed item. Ordinal is the insertion order and breaks
// score ties during search.
type Document struct {
	ID           int64
	IndexID      int64
	Ordinal      int
	Key          string
	Stored       map[string]string
	FieldLengths map[string]int
}

// Posting records the frequency of a term in one field of one document
type Posting struct {
	IndexID   int64
	Field     string
	Term      string
	Ordinal   int
	Frequency int
}

// VectorKind separates LSI term vectors from document vectors
type VectorKind string

const (
	VectorTerm     VectorKind = "term"
	VectorDocument VectorKind = "doc"
)

// Vector is a dense float32 vector keyed by term or document key
type Vector struct {
	ID        int64
	IndexID   int64
	Kind      VectorKind
	Key       string
	Values    []float32
	CreatedAt time.Time
}

// PatternStats holds the per-pattern values needed to score a candidate
// without re-parsing source: operand number (1-based) to distinct term count
type PatternStats struct {
	IndexID      int64
	PatternID    string
	OperandSizes map[int]int
}

// PatternRecord is one detected pattern stored in a system's cache
type PatternRecord struct {
	System      string
	PatternID   string
	Type        string
	PackagePath string
	Payload     []byte // JSON encoded pattern
}

// SystemStatus contains statistics about one analyzed system
type SystemStatus struct {
	System         string
	PatternsCount  int
	Indexes        []*Index
	DocumentsCount int
	VectorsCount   int
	DatabaseSizeMB float64
	LastIndexedAt  time.Time
	Health         HealthStatus
}

// HealthStatus represents the health of the cache database
type HealthStatus struct {
	DatabaseAccessible bool
	PatternsCached     bool
	IndexesBuilt       bool
}
