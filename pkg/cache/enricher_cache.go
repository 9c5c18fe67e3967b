// Package cache implements the enricher's content-addressed cache: a
// shared, write-once store keyed by a hash of the inputs that determine
// a business case, so identical enrichments are never paid for twice.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/evoengine/evoengine/pkg/models"
)

// ErrMiss is returned by Get when no cached entry exists for the key.
var ErrMiss = errors.New("cache: miss")

// SchemaVersion is bumped whenever the BusinessCase shape changes in a
// way that would make old cache entries unsafe to reuse.
const SchemaVersion = "v1"

// EnricherCache is a Postgres-backed, content-addressed store of
// previously computed business cases.
type EnricherCache struct {
	db *sql.DB
}

// New wraps an existing connection pool.
func New(db *sql.DB) *EnricherCache {
	return &EnricherCache{db: db}
}

// Key hashes (problemContext, ideaText, model, schemaVersion) into a
// stable content-addressed cache key.
func Key(problemContext, ideaText, model string) string {
	h := sha256.New()
	h.Write([]byte(problemContext))
	h.Write([]byte{0})
	h.Write([]byte(ideaText))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(SchemaVersion))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached business case for key, or ErrMiss.
func (c *EnricherCache) Get(ctx context.Context, key string) (*models.BusinessCase, error) {
	const query = `SELECT business_case FROM enricher_cache WHERE cache_key = $1`
	var raw []byte
	err := c.db.QueryRowContext(ctx, query, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get %s: %w", key, err)
	}
	var bc models.BusinessCase
	if err := json.Unmarshal(raw, &bc); err != nil {
		return nil, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return &bc, nil
}

// Put writes a business case under key. Write-once: an existing entry is
// left untouched rather than overwritten, since the cache is shared
// across jobs and concurrent writers for the same key compute equivalent
// content.
func (c *EnricherCache) Put(ctx context.Context, key string, bc models.BusinessCase) error {
	raw, err := json.Marshal(bc)
	if err != nil {
		return fmt.Errorf("cache: marshal: %w", err)
	}
	const query = `
		INSERT INTO enricher_cache (cache_key, business_case, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (cache_key) DO NOTHING
	`
	_, err = c.db.ExecContext(ctx, query, key, raw)
	if err != nil {
		return fmt.Errorf("cache: put %s: %w", key, err)
	}
	return nil
}
