package uploadcache

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"genbot/internal/domain"
	"genbot/internal/storage"
)

// Cache is a content-addressed map from file content hash to a previously
// obtained external reference URL. Entries expire after the configured TTL;
// a hash reappearing with a new URL overwrites its row.
type Cache struct {
	repo   domain.UploadCacheRepository
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a cache with the given TTL (default 7 days).
func New(repo domain.UploadCacheRepository, ttl time.Duration, logger zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Cache{repo: repo, ttl: ttl, logger: logger, now: time.Now}
}

// Lookup hashes the file at path and returns a cached external URL when a
// non-expired entry exists. Cache errors degrade to a miss.
func (c *Cache) Lookup(ctx context.Context, path string) (hash, url string, ok bool) {
	hash, err := storage.HashFile(path)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("uploadcache: hashing failed")
		return "", "", false
	}
	url, ok, err = c.repo.Get(ctx, hash, c.now())
	if err != nil {
		c.logger.Warn().Err(err).Msg("uploadcache: lookup failed")
		return hash, "", false
	}
	return hash, url, ok
}

// Store records a genuine external URL for the hash. Local fallback URLs
// must never be passed here; the caller owns that distinction.
func (c *Cache) Store(ctx context.Context, hash, externalURL string) {
	if hash == "" || externalURL == "" {
		return
	}
	if err := c.repo.Put(ctx, hash, externalURL, c.now().Add(c.ttl)); err != nil {
		c.logger.Warn().Err(err).Msg("uploadcache: store failed")
	}
}
