package pattern

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/dshills/lasso-mcp/internal/storage"
	"github.com/dshills/lasso-mcp/pkg/types"
)

// Save replaces the cached patterns of the repository's system
func Save(ctx context.Context, store storage.Storage, repo *Repository) error {
	patterns := repo.Patterns()
	records := make([]*storage.PatternRecord, 0, len(patterns))
	for _, p := range patterns {
		payload, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode pattern %s: %w", p.ID(), err)
		}
		records = append(records, &storage.PatternRecord{
			System:      repo.System(),
			PatternID:   p.ID(),
			Type:        string(p.Type),
			PackagePath: p.FileName(),
			Payload:     payload,
		})
	}
	if err := store.ReplacePatterns(ctx, repo.System(), records); err != nil {
		return fmt.Errorf("failed to cache patterns of %s: %w", repo.System(), err)
	}
	return nil
}

// Load rebuilds a repository from the cache. The boolean is false when
// nothing is cached for the system.
func Load(ctx context.Context, store storage.Storage, system string) (*Repository, bool, error) {
	records, err := store.ListPatterns(ctx, system)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read pattern cache of %s: %w", system, err)
	}
	if len(records) == 0 {
		return nil, false, nil
	}

	repo := NewRepository(system)
	for _, r := range records {
		var p types.Pattern
		if err := json.Unmarshal(r.Payload, &p); err != nil {
			return nil, false, fmt.Errorf("failed to decode cached pattern %s: %w", r.PatternID, err)
		}
		if err := repo.AddPattern(&p); err != nil {
			return nil, false, err
		}
	}
	return repo, true, nil
}

// Cache loads a system's repository from storage or runs the detector and
// stores the result
type Cache struct {
	store       storage.Storage
	detector    *Detector
	logger      hclog.Logger
	ignoreCache bool
}

// NewCache creates a pattern cache. When ignoreCache is set, Open always
// runs the detector.
func NewCache(store storage.Storage, detector *Detector, logger hclog.Logger, ignoreCache bool) *Cache {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Cache{store: store, detector: detector, logger: logger, ignoreCache: ignoreCache}
}

// Open returns the repository of system, detecting patterns under
// sourcesDir when no cached copy exists
func (c *Cache) Open(ctx context.Context, system, sourcesDir string) (*Repository, error) {
	if !c.ignoreCache {
		repo, ok, err := Load(ctx, c.store, system)
		if err != nil {
			return nil, err
		}
		if ok {
			c.logger.Info("loaded cached patterns", "system", system, "patterns", repo.Len())
			return repo, nil
		}
	}

	c.logger.Info("running pattern detector", "system", system, "sources", sourcesDir)
	repo, err := c.detector.BuildRepository(ctx, system, sourcesDir)
	if err != nil {
		return nil, err
	}

	if err := Save(ctx, c.store, repo); err != nil {
		return nil, err
	}
	c.logger.Info("cached patterns", "system", system, "patterns", repo.Len())
	return repo, nil
}
