package ledger

import (
	"context"
	"fmt"

	"genbot/internal/domain"
	"genbot/internal/infra"
)

// Ledger settles generation costs against user balances and keeps the
// append-only action log. All balance math happens in the database so
// concurrent settlements stay atomic per row.
type Ledger struct {
	users          domain.UserRepository
	actions        domain.ActionRepository
	creditRequests domain.CreditRequestRepository
	cost           float64
	requestAmount  float64
	logger         *infra.Logger
}

// New constructs a ledger with the configured generation cost and credit
// top-up amount.
func New(users domain.UserRepository, actions domain.ActionRepository, creditRequests domain.CreditRequestRepository, cost, requestAmount float64, logger *infra.Logger) *Ledger {
	return &Ledger{
		users:          users,
		actions:        actions,
		creditRequests: creditRequests,
		cost:           cost,
		requestAmount:  requestAmount,
		logger:         logger,
	}
}

// Cost returns the nominal price of one generation.
func (l *Ledger) Cost() float64 {
	return l.cost
}

// CanAfford reports whether the user's balance covers one generation.
func (l *Ledger) CanAfford(user *domain.User) bool {
	return user.Credits >= l.cost
}

// RecordAttempt appends an action record for a generation attempt. Failed
// attempts are logged under the error action type with zero cost.
func (l *Ledger) RecordAttempt(ctx context.Context, userID int64, route domain.Route, requestData, responseData []byte, succeeded bool) error {
	record := &domain.ActionRecord{
		UserID:       userID,
		ActionType:   fmt.Sprintf("%s_%s", domain.ActionGeneration, route),
		RequestData:  requestData,
		ResponseData: responseData,
		Route:        route,
	}
	if succeeded {
		record.CreditsSpent = l.cost
	} else {
		record.ActionType = domain.ActionGenerationError
	}
	if err := l.actions.Append(ctx, record); err != nil {
		return fmt.Errorf("ledger: append action: %w", err)
	}
	return nil
}

// Settle debits the generation cost when succeeded is true. The debit is
// clamped at zero in the database; a failed attempt never touches the
// balance. Returns the resulting balance.
func (l *Ledger) Settle(ctx context.Context, userID int64, succeeded bool) (float64, error) {
	if !succeeded {
		user, err := l.users.GetByID(ctx, userID)
		if err != nil {
			return 0, fmt.Errorf("ledger: read balance: %w", err)
		}
		return user.Credits, nil
	}
	balance, err := l.users.AdjustCredits(ctx, userID, -l.cost)
	if err != nil {
		return 0, fmt.Errorf("ledger: debit: %w", err)
	}
	l.logger.Info().Int64("user_id", userID).Float64("cost", l.cost).Float64("balance", balance).Msg("ledger: generation settled")
	return balance, nil
}

// Adjust applies an operator-initiated balance change and logs it as an
// adjustment action.
func (l *Ledger) Adjust(ctx context.Context, userID int64, delta float64) (float64, error) {
	balance, err := l.users.AdjustCredits(ctx, userID, delta)
	if err != nil {
		return 0, fmt.Errorf("ledger: adjust: %w", err)
	}
	record := &domain.ActionRecord{
		UserID:       userID,
		ActionType:   domain.ActionCreditAdjusted,
		CreditsSpent: -delta,
		ResponseData: fmt.Appendf(nil, `{"delta":%g,"balance":%g}`, delta, balance),
	}
	if err := l.actions.Append(ctx, record); err != nil {
		l.logger.Warn().Err(err).Int64("user_id", userID).Msg("ledger: adjustment not recorded")
	}
	return balance, nil
}

// RequestCredits opens a pending top-up request for the configured amount.
func (l *Ledger) RequestCredits(ctx context.Context, userID int64) (*domain.CreditRequest, error) {
	req, err := l.creditRequests.Create(ctx, userID, l.requestAmount)
	if err != nil {
		return nil, fmt.Errorf("ledger: create credit request: %w", err)
	}
	l.logger.Info().Int64("user_id", userID).Float64("amount", l.requestAmount).Msg("ledger: credit request opened")
	return req, nil
}

// ResolveCreditRequest approves or rejects a pending request. Approval
// credits the amount and appends an approval record. A request that is
// already resolved yields ErrDuplicateOperation and changes nothing.
func (l *Ledger) ResolveCreditRequest(ctx context.Context, requestID int64, approve bool) (*domain.CreditRequest, error) {
	status := domain.CreditRequestRejected
	if approve {
		status = domain.CreditRequestApproved
	}
	req, err := l.creditRequests.Resolve(ctx, requestID, status)
	if err != nil {
		return nil, fmt.Errorf("ledger: resolve credit request: %w", err)
	}
	if !approve {
		return req, nil
	}
	balance, err := l.users.AdjustCredits(ctx, req.UserID, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("ledger: apply approved credits: %w", err)
	}
	record := &domain.ActionRecord{
		UserID:       req.UserID,
		ActionType:   domain.ActionCreditApproved,
		CreditsSpent: -req.Amount,
		ResponseData: fmt.Appendf(nil, `{"request_id":%d,"balance":%g}`, req.ID, balance),
	}
	if err := l.actions.Append(ctx, record); err != nil {
		l.logger.Warn().Err(err).Int64("request_id", req.ID).Msg("ledger: approval not recorded")
	}
	return req, nil
}
