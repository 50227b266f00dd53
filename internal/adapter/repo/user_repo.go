package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"genbot/internal/domain"
)

// UserRepositoryPG implements domain.UserRepository backed by PostgreSQL.
type UserRepositoryPG struct {
	pool           *pgxpool.Pool
	initialCredits float64
}

// NewUserRepository creates a new UserRepositoryPG. New users start with
// the given credit balance.
func NewUserRepository(pool *pgxpool.Pool, initialCredits float64) *UserRepositoryPG {
	return &UserRepositoryPG{pool: pool, initialCredits: initialCredits}
}

const userColumns = `id, external_id, username, credits, selected_route, created_at, updated_at`

// GetOrCreateByExternalID fetches the user for the messaging identity,
// creating it with the initial balance on first contact.
func (r *UserRepositoryPG) GetOrCreateByExternalID(ctx context.Context, externalID int64, username string) (*domain.User, error) {
	query := `
INSERT INTO users (external_id, username, credits, selected_route)
VALUES ($1, $2, $3, $4)
ON CONFLICT (external_id) DO UPDATE
SET username = EXCLUDED.username,
    updated_at = NOW()
RETURNING ` + userColumns + `;
`
	row := r.pool.QueryRow(ctx, query, externalID, username, r.initialCredits, string(domain.RouteSeedream))
	return scanUser(row)
}

// GetByID fetches a user by primary key.
func (r *UserRepositoryPG) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByExternalID fetches a user by messaging identity.
func (r *UserRepositoryPG) GetByExternalID(ctx context.Context, externalID int64) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE external_id = $1`, externalID)
	return scanUser(row)
}

// AdjustCredits applies delta atomically, clamping the balance at zero, and
// returns the resulting balance.
func (r *UserRepositoryPG) AdjustCredits(ctx context.Context, userID int64, delta float64) (float64, error) {
	query := `
UPDATE users
SET credits = GREATEST(credits + $2, 0),
    updated_at = NOW()
WHERE id = $1
RETURNING credits;
`
	var balance float64
	if err := r.pool.QueryRow(ctx, query, userID, delta).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return balance, nil
}

// SetSelectedRoute persists the user's generation route choice.
func (r *UserRepositoryPG) SetSelectedRoute(ctx context.Context, userID int64, route domain.Route) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET selected_route = $2, updated_at = NOW() WHERE id = $1`, userID, string(route))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns users ordered by creation, newest first.
func (r *UserRepositoryPG) List(ctx context.Context, limit, offset int) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	var route string
	if err := row.Scan(&u.ID, &u.ExternalID, &u.Username, &u.Credits, &route, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	u.SelectedRoute = domain.Route(route)
	return &u, nil
}
