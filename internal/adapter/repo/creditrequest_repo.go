package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"genbot/internal/domain"
)

// CreditRequestRepositoryPG implements domain.CreditRequestRepository
// backed by PostgreSQL.
type CreditRequestRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewCreditRequestRepository creates a new CreditRequestRepositoryPG.
func NewCreditRequestRepository(pool *pgxpool.Pool) *CreditRequestRepositoryPG {
	return &CreditRequestRepositoryPG{pool: pool}
}

const creditRequestColumns = `id, user_id, amount, status, created_at, processed_at`

// Create opens a pending top-up request.
func (r *CreditRequestRepositoryPG) Create(ctx context.Context, userID int64, amount float64) (*domain.CreditRequest, error) {
	query := `
INSERT INTO credit_requests (user_id, amount, status)
VALUES ($1, $2, 'pending')
RETURNING ` + creditRequestColumns + `;
`
	return scanCreditRequest(r.pool.QueryRow(ctx, query, userID, amount))
}

// GetByID fetches one request.
func (r *CreditRequestRepositoryPG) GetByID(ctx context.Context, id int64) (*domain.CreditRequest, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+creditRequestColumns+` FROM credit_requests WHERE id = $1`, id)
	return scanCreditRequest(row)
}

// ListPending returns unresolved requests, oldest first.
func (r *CreditRequestRepositoryPG) ListPending(ctx context.Context, limit int) ([]domain.CreditRequest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+creditRequestColumns+` FROM credit_requests WHERE status = 'pending' ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []domain.CreditRequest
	for rows.Next() {
		req, err := scanCreditRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}

// Resolve flips a pending request to a terminal status. The status guard in
// the WHERE clause makes resolution idempotent: a request that is already
// resolved matches no row and yields ErrDuplicateOperation.
func (r *CreditRequestRepositoryPG) Resolve(ctx context.Context, id int64, status domain.CreditRequestStatus) (*domain.CreditRequest, error) {
	query := `
UPDATE credit_requests
SET status = $2,
    processed_at = NOW()
WHERE id = $1 AND status = 'pending'
RETURNING ` + creditRequestColumns + `;
`
	req, err := scanCreditRequest(r.pool.QueryRow(ctx, query, id, string(status)))
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	// Distinguish an unknown id from an already-resolved request.
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, domain.ErrDuplicateOperation
}

func scanCreditRequest(row pgx.Row) (*domain.CreditRequest, error) {
	var req domain.CreditRequest
	var status string
	if err := row.Scan(&req.ID, &req.UserID, &req.Amount, &status, &req.CreatedAt, &req.ProcessedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	req.Status = domain.CreditRequestStatus(status)
	return &req, nil
}
