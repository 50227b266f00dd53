package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"genbot/internal/domain"
)

// ActionRepositoryPG implements domain.ActionRepository backed by
// PostgreSQL. The table is append-only; rows are never updated or deleted.
type ActionRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewActionRepository creates a new ActionRepositoryPG.
func NewActionRepository(pool *pgxpool.Pool) *ActionRepositoryPG {
	return &ActionRepositoryPG{pool: pool}
}

// Append writes one action record.
func (r *ActionRepositoryPG) Append(ctx context.Context, rec *domain.ActionRecord) error {
	query := `
INSERT INTO actions (user_id, action_type, request_data, response_data, credits_spent, route)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at;
`
	return r.pool.QueryRow(ctx, query,
		rec.UserID,
		rec.ActionType,
		rec.RequestData,
		rec.ResponseData,
		rec.CreditsSpent,
		string(rec.Route),
	).Scan(&rec.ID, &rec.CreatedAt)
}

const actionColumns = `id, user_id, action_type, request_data, response_data, credits_spent, route, created_at`

// ListByUser returns a user's records, newest first.
func (r *ActionRepositoryPG) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.ActionRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+actionColumns+` FROM actions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanActions(rows)
}

// List returns records across all users, newest first.
func (r *ActionRepositoryPG) List(ctx context.Context, limit, offset int) ([]domain.ActionRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+actionColumns+` FROM actions ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanActions(rows)
}

// RouteStats aggregates generation attempts per route since the cutoff.
func (r *ActionRepositoryPG) RouteStats(ctx context.Context, since time.Time) (map[domain.Route]domain.RouteUsage, error) {
	rows, err := r.pool.Query(ctx, `
SELECT route, COUNT(*), COALESCE(SUM(credits_spent), 0)
FROM actions
WHERE route <> '' AND created_at >= $1
GROUP BY route;
`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[domain.Route]domain.RouteUsage{}
	for rows.Next() {
		var route string
		var usage domain.RouteUsage
		if err := rows.Scan(&route, &usage.Requests, &usage.CreditsSpent); err != nil {
			return nil, err
		}
		stats[domain.Route(route)] = usage
	}
	return stats, rows.Err()
}

func scanActions(rows pgx.Rows) ([]domain.ActionRecord, error) {
	var records []domain.ActionRecord
	for rows.Next() {
		var rec domain.ActionRecord
		var route string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ActionType, &rec.RequestData, &rec.ResponseData, &rec.CreditsSpent, &route, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Route = domain.Route(route)
		records = append(records, rec)
	}
	return records, rows.Err()
}
