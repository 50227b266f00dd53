package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements bootstrap the relational store. Single-row access
// patterns only; the one join in the system is set_images -> image_sets,
// expressed as a cascade.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
	id            BIGSERIAL PRIMARY KEY,
	external_id   BIGINT NOT NULL UNIQUE,
	username      TEXT NOT NULL DEFAULT '',
	credits       DOUBLE PRECISION NOT NULL DEFAULT 0,
	selected_route TEXT NOT NULL DEFAULT 'seedream',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE TABLE IF NOT EXISTS actions (
	id            BIGSERIAL PRIMARY KEY,
	user_id       BIGINT NOT NULL REFERENCES users(id),
	action_type   TEXT NOT NULL,
	request_data  JSONB,
	response_data JSONB,
	credits_spent DOUBLE PRECISION NOT NULL DEFAULT 0,
	route         TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE INDEX IF NOT EXISTS actions_user_created_idx ON actions (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS image_sets (
	id         BIGSERIAL PRIMARY KEY,
	owner_id   BIGINT NOT NULL REFERENCES users(id),
	name       VARCHAR(255) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE TABLE IF NOT EXISTS set_images (
	id           BIGSERIAL PRIMARY KEY,
	set_id       BIGINT NOT NULL REFERENCES image_sets(id) ON DELETE CASCADE,
	file_path    TEXT NOT NULL,
	content_hash TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE TABLE IF NOT EXISTS upload_cache (
	content_hash TEXT PRIMARY KEY,
	external_url TEXT NOT NULL,
	expires_at   TIMESTAMPTZ NOT NULL,
	last_used_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`,
	`CREATE TABLE IF NOT EXISTS credit_requests (
	id           BIGSERIAL PRIMARY KEY,
	user_id      BIGINT NOT NULL REFERENCES users(id),
	amount       DOUBLE PRECISION NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	processed_at TIMESTAMPTZ
)`,
}

// EnsureSchema creates missing tables on startup. Statements are
// idempotent, so concurrent service starts are safe.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
