package termindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/dshills/lasso-mcp/internal/logging"
	"github.com/dshills/lasso-mcp/internal/storage"
	"github.com/dshills/lasso-mcp/pkg/types"
)

// Spec names and configures an index
type Spec struct {
	Name       string
	System     string
	Kind       storage.IndexKind
	Schema     Schema
	Similarity Similarity
	Operator   Operator
}

// Fingerprint of the spec's schema and scoring
func (s Spec) Fingerprint() string {
	return Fingerprint(s.Schema, s.Similarity, s.Operator)
}

// WriteHook runs inside the build transaction after all documents are
// written, so extra per-index data commits or rolls back with the index
type WriteHook func(ctx context.Context, tx storage.Tx, index *storage.Index) error

// Builder creates or opens persisted indexes
type Builder struct {
	store       storage.Storage
	logger      hclog.Logger
	ignoreCache bool
}

// NewBuilder creates a builder. With ignoreCache set, Build always rebuilds.
func NewBuilder(store storage.Storage, logger hclog.Logger, ignoreCache bool) *Builder {
	return &Builder{store: store, logger: logging.OrNull(logger), ignoreCache: ignoreCache}
}

// Fresh reports whether a persisted index with a matching fingerprint exists
func (b *Builder) Fresh(ctx context.Context, spec Spec) (bool, error) {
	if b.ignoreCache {
		return false, nil
	}
	existing, err := b.store.GetIndex(ctx, spec.Name)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up index %s: %w", spec.Name, err)
	}
	return existing.Fingerprint == spec.Fingerprint(), nil
}

// Build indexes docs under spec.Name, replacing any previous index of that
// name, unless a fresh one already exists, in which case it is opened and
// docs are ignored. A document without the ID field is an invariant
// violation.
func (b *Builder) Build(ctx context.Context, spec Spec, docs []Document, hooks ...WriteHook) (*Index, error) {
	if err := spec.Schema.Validate(); err != nil {
		return nil, err
	}

	fresh, err := b.Fresh(ctx, spec)
	if err != nil {
		return nil, err
	}
	if fresh {
		b.logger.Debug("opening existing index", "index", spec.Name)
		return Open(ctx, b.store, spec)
	}

	start := time.Now()
	b.logger.Info("building index", "index", spec.Name, "documents", len(docs))

	ix, err := buildInMemory(spec, docs)
	if err != nil {
		return nil, err
	}
	if err := b.persist(ctx, spec, ix, hooks); err != nil {
		return nil, err
	}

	b.logger.Info("index built", "index", spec.Name, "documents", ix.Len(), "duration", time.Since(start))
	return ix, nil
}

func buildInMemory(spec Spec, docs []Document) (*Index, error) {
	ix := newIndex(spec.Name, spec.Schema, spec.Similarity, spec.Operator)

	for ordinal, doc := range docs {
		key, ok := doc.Fields[spec.Schema.IDField]
		if !ok || key == "" {
			return nil, types.NewInvariantError("termindex.Build",
				"document %d of index %s has no %q field", ordinal, spec.Name, spec.Schema.IDField)
		}

		entry := docEntry{key: key, stored: make(map[string]string), lengths: make(map[string]int)}
		for _, f := range spec.Schema.Fields {
			value, ok := doc.Fields[f.Name]
			if !ok {
				continue
			}
			if f.Kind == FieldStored {
				entry.stored[f.Name] = value
				continue
			}
			freqs, length := tokenize(value)
			entry.lengths[f.Name] = length
			for term, freq := range freqs {
				ix.addPosting(f.Name, term, posting{ordinal: ordinal, freq: freq})
			}
		}
		ix.docs = append(ix.docs, entry)
	}

	ix.finish()
	return ix, nil
}

func (b *Builder) persist(ctx context.Context, spec Spec, ix *Index, hooks []WriteHook) error {
	tx, err := b.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.DeleteIndex(ctx, spec.Name); err != nil {
		return err
	}

	record := &storage.Index{
		Name:          spec.Name,
		System:        spec.System,
		Kind:          spec.Kind,
		Fingerprint:   spec.Fingerprint(),
		DocumentCount: ix.Len(),
	}
	if err := tx.CreateIndex(ctx, record); err != nil {
		return err
	}

	for ordinal, d := range ix.docs {
		if err := tx.InsertDocument(ctx, &storage.Document{
			IndexID:      record.ID,
			Ordinal:      ordinal,
			Key:          d.key,
			Stored:       d.stored,
			FieldLengths: d.lengths,
		}); err != nil {
			return err
		}
	}

	var postings []storage.Posting
	for field, terms := range ix.postings {
		for term, list := range terms {
			for _, p := range list {
				postings = append(postings, storage.Posting{
					IndexID: record.ID, Field: field, Term: term, Ordinal: p.ordinal, Frequency: p.freq,
				})
			}
		}
	}
	if err := tx.InsertPostings(ctx, postings); err != nil {
		return err
	}

	for _, hook := range hooks {
		if err := hook(ctx, tx, record); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit index %s: %w", spec.Name, err)
	}
	return nil
}

// Open loads a persisted index. A stored document missing the ID field is
// an invariant violation.
func Open(ctx context.Context, store storage.Storage, spec Spec) (*Index, error) {
	record, err := store.GetIndex(ctx, spec.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to open index %s: %w", spec.Name, err)
	}

	docs, err := store.ListDocuments(ctx, record.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents of %s: %w", spec.Name, err)
	}

	ix := newIndex(spec.Name, spec.Schema, spec.Similarity, spec.Operator)
	ix.docs = make([]docEntry, len(docs))
	for i, d := range docs {
		if d.Ordinal != i {
			return nil, types.NewInvariantError("termindex.Open", "index %s has a gap at ordinal %d", spec.Name, i)
		}
		if _, ok := d.Stored[spec.Schema.IDField]; !ok {
			return nil, types.NewInvariantError("termindex.Open",
				"document %s of index %s has no %q field", d.Key, spec.Name, spec.Schema.IDField)
		}
		ix.docs[i] = docEntry{key: d.Key, stored: d.Stored, lengths: d.FieldLengths}
	}

	postings, err := store.ListPostings(ctx, record.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load postings of %s: %w", spec.Name, err)
	}
	for _, p := range postings {
		if p.Ordinal < 0 || p.Ordinal >= len(ix.docs) {
			return nil, types.NewInvariantError("termindex.Open", "posting for unknown document %d in %s", p.Ordinal, spec.Name)
		}
		ix.addPosting(p.Field, p.Term, posting{ordinal: p.Ordinal, freq: p.Frequency})
	}

	ix.finish()
	return ix, nil
}

// IndexID returns the storage ID of a persisted index
func IndexID(ctx context.Context, store storage.Storage, name string) (int64, error) {
	record, err := store.GetIndex(ctx, name)
	if err != nil {
		return 0, err
	}
	return record.ID, nil
}
