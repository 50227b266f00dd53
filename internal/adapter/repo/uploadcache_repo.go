package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UploadCacheRepositoryPG implements domain.UploadCacheRepository backed by
// PostgreSQL. One row per content hash; a reappearing hash overwrites.
type UploadCacheRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewUploadCacheRepository creates a new UploadCacheRepositoryPG.
func NewUploadCacheRepository(pool *pgxpool.Pool) *UploadCacheRepositoryPG {
	return &UploadCacheRepositoryPG{pool: pool}
}

// Get returns the cached URL for the hash when it has not expired, touching
// last_used_at on the way.
func (r *UploadCacheRepositoryPG) Get(ctx context.Context, contentHash string, now time.Time) (string, bool, error) {
	query := `
UPDATE upload_cache
SET last_used_at = $2
WHERE content_hash = $1 AND expires_at > $2
RETURNING external_url;
`
	var url string
	if err := r.pool.QueryRow(ctx, query, contentHash, now).Scan(&url); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return url, true, nil
}

// Put upserts the cache row for the hash.
func (r *UploadCacheRepositoryPG) Put(ctx context.Context, contentHash, externalURL string, expiresAt time.Time) error {
	query := `
INSERT INTO upload_cache (content_hash, external_url, expires_at, last_used_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (content_hash) DO UPDATE
SET external_url = EXCLUDED.external_url,
    expires_at = EXCLUDED.expires_at,
    last_used_at = NOW();
`
	_, err := r.pool.Exec(ctx, query, contentHash, externalURL, expiresAt)
	return err
}
