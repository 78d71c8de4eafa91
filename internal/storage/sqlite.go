package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Index operations

func (s *SQLiteStorage) createIndexWithQuerier(ctx context.Context, q querier, index *Index) error {
	query := `
		INSERT INTO term_indexes (name, system, kind, fingerprint, document_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		index.Name, index.System, string(index.Kind), index.Fingerprint,
		index.DocumentCount, now, now)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", index.Name, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("index %s: %w", index.Name, ErrAlreadyExists)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	index.ID = id
	index.CreatedAt = now
	index.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) CreateIndex(ctx context.Context, index *Index) error {
	return s.createIndexWithQuerier(ctx, s.querier(), index)
}

func (s *SQLiteStorage) getIndexWithQuerier(ctx context.Context, q querier, name string) (*Index, error) {
	query := `
		SELECT id, name, system, kind, fingerprint, document_count, created_at, updated_at
		FROM term_indexes
		WHERE name = ?
	`
	var index Index
	var kind string
	err := q.QueryRowContext(ctx, query, name).Scan(
		&index.ID, &index.Name, &index.System, &kind, &index.Fingerprint,
		&index.DocumentCount, &index.CreatedAt, &index.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	index.Kind = IndexKind(kind)
	return &index, nil
}

func (s *SQLiteStorage) GetIndex(ctx context.Context, name string) (*Index, error) {
	return s.getIndexWithQuerier(ctx, s.querier(), name)
}

func (s *SQLiteStorage) updateIndexWithQuerier(ctx context.Context, q querier, index *Index) error {
	query := `
		UPDATE term_indexes
		SET fingerprint = ?, document_count = ?, updated_at = ?
		WHERE id = ?
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query, index.Fingerprint, index.DocumentCount, now, index.ID)
	if err != nil {
		return fmt.Errorf("failed to update index %s: %w", index.Name, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	index.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpdateIndex(ctx context.Context, index *Index) error {
	return s.updateIndexWithQuerier(ctx, s.querier(), index)
}

// deleteIndexWithQuerier removes an index; documents, postings, vectors and
// stats cascade
func (s *SQLiteStorage) deleteIndexWithQuerier(ctx context.Context, q querier, name string) error {
	_, err := q.ExecContext(ctx, "DELETE FROM term_indexes WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to delete index %s: %w", name, err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteIndex(ctx context.Context, name string) error {
	return s.deleteIndexWithQuerier(ctx, s.querier(), name)
}

func (s *SQLiteStorage) listIndexesWithQuerier(ctx context.Context, q querier, system string) ([]*Index, error) {
	query := `
		SELECT id, name, system, kind, fingerprint, document_count, created_at, updated_at
		FROM term_indexes
		WHERE system = ?
		ORDER BY name
	`
	rows, err := q.QueryContext(ctx, query, system)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var indexes []*Index
	for rows.Next() {
		var index Index
		var kind string
		if err := rows.Scan(
			&index.ID, &index.Name, &index.System, &kind, &index.Fingerprint,
			&index.DocumentCount, &index.CreatedAt, &index.UpdatedAt,
		); err != nil {
			return nil, err
		}
		index.Kind = IndexKind(kind)
		indexes = append(indexes, &index)
	}
	return indexes, rows.Err()
}

func (s *SQLiteStorage) ListIndexes(ctx context.Context, system string) ([]*Index, error) {
	return s.listIndexesWithQuerier(ctx, s.querier(), system)
}

// Document operations

func (s *SQLiteStorage) insertDocumentWithQuerier(ctx context.Context, q querier, doc *Document) error {
	stored, err := json.Marshal(doc.Stored)
	if err != nil {
		return fmt.Errorf("failed to encode stored fields: %w", err)
	}
	lengths, err := json.Marshal(doc.FieldLengths)
	if err != nil {
		return fmt.Errorf("failed to encode field lengths: %w", err)
	}

	query := `
		INSERT INTO documents (index_id, ordinal, doc_key, stored, field_lengths)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := q.ExecContext(ctx, query, doc.IndexID, doc.Ordinal, doc.Key, string(stored), string(lengths))
	if err != nil {
		return fmt.Errorf("failed to insert document %s: %w", doc.Key, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	doc.ID = id
	return nil
}

func (s *SQLiteStorage) InsertDocument(ctx context.Context, doc *Document) error {
	return s.insertDocumentWithQuerier(ctx, s.querier(), doc)
}

func (s *SQLiteStorage) listDocumentsWithQuerier(ctx context.Context, q querier, indexID int64) ([]*Document, error) {
	query := `
		SELECT id, index_id, ordinal, doc_key, stored, field_lengths
		FROM documents
		WHERE index_id = ?
		ORDER BY ordinal
	`
	rows, err := q.QueryContext(ctx, query, indexID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var docs []*Document
	for rows.Next() {
		var doc Document
		var stored, lengths string
		if err := rows.Scan(&doc.ID, &doc.IndexID, &doc.Ordinal, &doc.Key, &stored, &lengths); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(stored), &doc.Stored); err != nil {
			return nil, fmt.Errorf("failed to decode stored fields of %s: %w", doc.Key, err)
		}
		if err := json.Unmarshal([]byte(lengths), &doc.FieldLengths); err != nil {
			return nil, fmt.Errorf("failed to decode field lengths of %s: %w", doc.Key, err)
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStorage) ListDocuments(ctx context.Context, indexID int64) ([]*Document, error) {
	return s.listDocumentsWithQuerier(ctx, s.querier(), indexID)
}

// Posting operations

func (s *SQLiteStorage) insertPostingsWithQuerier(ctx context.Context, q querier, postings []Posting) error {
	query := `
		INSERT INTO postings (index_id, field, term, ordinal, frequency)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(index_id, field, term, ordinal) DO UPDATE SET frequency = excluded.frequency
	`
	for _, p := range postings {
		if _, err := q.ExecContext(ctx, query, p.IndexID, p.Field, p.Term, p.Ordinal, p.Frequency); err != nil {
			return fmt.Errorf("failed to insert posting %s:%s: %w", p.Field, p.Term, err)
		}
	}
	return nil
}

func (s *SQLiteStorage) InsertPostings(ctx context.Context, postings []Posting) error {
	return s.insertPostingsWithQuerier(ctx, s.querier(), postings)
}

func (s *SQLiteStorage) listPostingsWithQuerier(ctx context.Context, q querier, indexID int64) ([]Posting, error) {
	query := `
		SELECT index_id, field, term, ordinal, frequency
		FROM postings
		WHERE index_id = ?
		ORDER BY field, term, ordinal
	`
	rows, err := q.QueryContext(ctx, query, indexID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var postings []Posting
	for rows.Next() {
		var p Posting
		if err := rows.Scan(&p.IndexID, &p.Field, &p.Term, &p.Ordinal, &p.Frequency); err != nil {
			return nil, err
		}
		postings = append(postings, p)
	}
	return postings, rows.Err()
}

func (s *SQLiteStorage) ListPostings(ctx context.Context, indexID int64) ([]Posting, error) {
	return s.listPostingsWithQuerier(ctx, s.querier(), indexID)
}

// Vector operations

func (s *SQLiteStorage) upsertVectorWithQuerier(ctx context.Context, q querier, vector *Vector) error {
	query := `
		INSERT INTO vectors (index_id, kind, vector_key, dimension, vector, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(index_id, kind, vector_key) DO UPDATE SET
			dimension = excluded.dimension,
			vector = excluded.vector
	`
	now := time.Now()
	_, err := q.ExecContext(ctx, query,
		vector.IndexID, string(vector.Kind), vector.Key, len(vector.Values),
		serializeVector(vector.Values), now)
	if err != nil {
		return fmt.Errorf("failed to upsert %s vector %s: %w", vector.Kind, vector.Key, err)
	}
	vector.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertVector(ctx context.Context, vector *Vector) error {
	return s.upsertVectorWithQuerier(ctx, s.querier(), vector)
}

func (s *SQLiteStorage) listVectorsWithQuerier(ctx context.Context, q querier, indexID int64, kind VectorKind) ([]*Vector, error) {
	query := `
		SELECT id, index_id, kind, vector_key, dimension, vector, created_at
		FROM vectors
		WHERE index_id = ? AND kind = ?
		ORDER BY id
	`
	rows, err := q.QueryContext(ctx, query, indexID, string(kind))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var vectors []*Vector
	for rows.Next() {
		var v Vector
		var k string
		var dimension int
		var blob []byte
		if err := rows.Scan(&v.ID, &v.IndexID, &k, &v.Key, &dimension, &blob, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.Kind = VectorKind(k)
		v.Values = deserializeVector(blob)
		if len(v.Values) != dimension {
			return nil, fmt.Errorf("vector %s has %d values, expected %d", v.Key, len(v.Values), dimension)
		}
		vectors = append(vectors, &v)
	}
	return vectors, rows.Err()
}

func (s *SQLiteStorage) ListVectors(ctx context.Context, indexID int64, kind VectorKind) ([]*Vector, error) {
	return s.listVectorsWithQuerier(ctx, s.querier(), indexID, kind)
}

// Pattern stats operations

func (s *SQLiteStorage) upsertPatternStatsWithQuerier(ctx context.Context, q querier, stats *PatternStats) error {
	sizes, err := json.Marshal(stats.OperandSizes)
	if err != nil {
		return fmt.Errorf("failed to encode operand sizes: %w", err)
	}
	query := `
		INSERT INTO pattern_stats (index_id, pattern_id, operand_sizes)
		VALUES (?, ?, ?)
		ON CONFLICT(index_id, pattern_id) DO UPDATE SET operand_sizes = excluded.operand_sizes
	`
	if _, err := q.ExecContext(ctx, query, stats.IndexID, stats.PatternID, string(sizes)); err != nil {
		return fmt.Errorf("failed to upsert stats for %s: %w", stats.PatternID, err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertPatternStats(ctx context.Context, stats *PatternStats) error {
	return s.upsertPatternStatsWithQuerier(ctx, s.querier(), stats)
}

func (s *SQLiteStorage) listPatternStatsWithQuerier(ctx context.Context, q querier, indexID int64) ([]*PatternStats, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT index_id, pattern_id, operand_sizes FROM pattern_stats WHERE index_id = ? ORDER BY pattern_id",
		indexID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var all []*PatternStats
	for rows.Next() {
		var st PatternStats
		var sizes string
		if err := rows.Scan(&st.IndexID, &st.PatternID, &sizes); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(sizes), &st.OperandSizes); err != nil {
			return nil, fmt.Errorf("failed to decode operand sizes of %s: %w", st.PatternID, err)
		}
		all = append(all, &st)
	}
	return all, rows.Err()
}

func (s *SQLiteStorage) ListPatternStats(ctx context.Context, indexID int64) ([]*PatternStats, error) {
	return s.listPatternStatsWithQuerier(ctx, s.querier(), indexID)
}

// Pattern cache operations

// replacePatternsWithQuerier drops the system's cached patterns and stores
// the given set
func (s *SQLiteStorage) replacePatternsWithQuerier(ctx context.Context, q querier, system string, patterns []*PatternRecord) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM patterns WHERE system = ?", system); err != nil {
		return fmt.Errorf("failed to clear patterns of %s: %w", system, err)
	}

	query := `
		INSERT INTO patterns (system, pattern_id, type, package_path, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(system, pattern_id) DO UPDATE SET payload = excluded.payload
	`
	for _, p := range patterns {
		if _, err := q.ExecContext(ctx, query, system, p.PatternID, p.Type, p.PackagePath, string(p.Payload)); err != nil {
			return fmt.Errorf("failed to store pattern %s: %w", p.PatternID, err)
		}
	}
	return nil
}

// ReplacePatterns runs in its own transaction so a failed write leaves the
// previous cache intact
func (s *SQLiteStorage) ReplacePatterns(ctx context.Context, system string, patterns []*PatternRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := s.replacePatternsWithQuerier(ctx, tx, system, patterns); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStorage) listPatternsWithQuerier(ctx context.Context, q querier, system string) ([]*PatternRecord, error) {
	query := `
		SELECT system, pattern_id, type, package_path, payload
		FROM patterns
		WHERE system = ?
		ORDER BY id
	`
	rows, err := q.QueryContext(ctx, query, system)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []*PatternRecord
	for rows.Next() {
		var r PatternRecord
		var payload string
		if err := rows.Scan(&r.System, &r.PatternID, &r.Type, &r.PackagePath, &payload); err != nil {
			return nil, err
		}
		r.Payload = []byte(payload)
		records = append(records, &r)
	}
	return records, rows.Err()
}

func (s *SQLiteStorage) ListPatterns(ctx context.Context, system string) ([]*PatternRecord, error) {
	return s.listPatternsWithQuerier(ctx, s.querier(), system)
}

// Status operations

func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier, system string) (*SystemStatus, error) {
	status := &SystemStatus{System: system}

	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM patterns WHERE system = ?", system).Scan(&status.PatternsCount)
	if err != nil {
		return nil, err
	}

	indexes, err := s.listIndexesWithQuerier(ctx, q, system)
	if err != nil {
		return nil, err
	}
	status.Indexes = indexes

	for _, idx := range indexes {
		status.DocumentsCount += idx.DocumentCount
		if idx.UpdatedAt.After(status.LastIndexedAt) {
			status.LastIndexedAt = idx.UpdatedAt
		}
	}

	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM vectors v
		JOIN term_indexes t ON v.index_id = t.id
		WHERE t.system = ?
	`, system).Scan(&status.VectorsCount)
	if err != nil {
		return nil, err
	}

	// Calculate database size
	var pageCount, pageSize int
	err = q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible: true,
		PatternsCached:     status.PatternsCount > 0,
		IndexesBuilt:       len(indexes) > 0,
	}
	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context, system string) (*SystemStatus, error) {
	return s.getStatusWithQuerier(ctx, s.querier(), system)
}

// Transaction implementations delegate to the storage helpers with the
// transaction querier

func (t *sqliteTx) CreateIndex(ctx context.Context, index *Index) error {
	return t.storage.createIndexWithQuerier(ctx, t.querier(), index)
}

func (t *sqliteTx) GetIndex(ctx context.Context, name string) (*Index, error) {
	return t.storage.getIndexWithQuerier(ctx, t.querier(), name)
}

func (t *sqliteTx) UpdateIndex(ctx context.Context, index *Index) error {
	return t.storage.updateIndexWithQuerier(ctx, t.querier(), index)
}

func (t *sqliteTx) DeleteIndex(ctx context.Context, name string) error {
	return t.storage.deleteIndexWithQuerier(ctx, t.querier(), name)
}

func (t *sqliteTx) ListIndexes(ctx context.Context, system string) ([]*Index, error) {
	return t.storage.listIndexesWithQuerier(ctx, t.querier(), system)
}

func (t *sqliteTx) InsertDocument(ctx context.Context, doc *Document) error {
	return t.storage.insertDocumentWithQuerier(ctx, t.querier(), doc)
}

func (t *sqliteTx) ListDocuments(ctx context.Context, indexID int64) ([]*Document, error) {
	return t.storage.listDocumentsWithQuerier(ctx, t.querier(), indexID)
}

func (t *sqliteTx) InsertPostings(ctx context.Context, postings []Posting) error {
	return t.storage.insertPostingsWithQuerier(ctx, t.querier(), postings)
}

func (t *sqliteTx) ListPostings(ctx context.Context, indexID int64) ([]Posting, error) {
	return t.storage.listPostingsWithQuerier(ctx, t.querier(), indexID)
}

func (t *sqliteTx) UpsertVector(ctx context.Context, vector *Vector) error {
	return t.storage.upsertVectorWithQuerier(ctx, t.querier(), vector)
}

func (t *sqliteTx) ListVectors(ctx context.Context, indexID int64, kind VectorKind) ([]*Vector, error) {
	return t.storage.listVectorsWithQuerier(ctx, t.querier(), indexID, kind)
}

func (t *sqliteTx) UpsertPatternStats(ctx context.Context, stats *PatternStats) error {
	return t.storage.upsertPatternStatsWithQuerier(ctx, t.querier(), stats)
}

func (t *sqliteTx) ListPatternStats(ctx context.Context, indexID int64) ([]*PatternStats, error) {
	return t.storage.listPatternStatsWithQuerier(ctx, t.querier(), indexID)
}

func (t *sqliteTx) ReplacePatterns(ctx context.Context, system string, patterns []*PatternRecord) error {
	return t.storage.replacePatternsWithQuerier(ctx, t.querier(), system, patterns)
}

func (t *sqliteTx) ListPatterns(ctx context.Context, system string) ([]*PatternRecord, error) {
	return t.storage.listPatternsWithQuerier(ctx, t.querier(), system)
}

func (t *sqliteTx) GetStatus(ctx context.Context, system string) (*SystemStatus, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier(), system)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
