package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type adjustCreditsRequest struct {
	UserID int64   `json:"user_id"`
	Delta  float64 `json:"delta"`
}

// AdjustCredits applies an operator-issued balance delta. The resulting
// balance is clamped at zero and the adjustment is logged to the action log.
func (a *App) AdjustCredits(w http.ResponseWriter, r *http.Request) {
	var req adjustCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "user_id and delta are required"})
		return
	}
	balance, err := a.Ledger.Adjust(r.Context(), req.UserID, req.Delta)
	if err != nil {
		a.error(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"user_id": req.UserID, "credits": balance})
}

// ListCreditRequests returns pending top-up requests, oldest first.
func (a *App) ListCreditRequests(w http.ResponseWriter, r *http.Request) {
	limit, _ := pageParams(r, 50)
	requests, err := a.CreditRequests.ListPending(r.Context(), limit)
	if err != nil {
		a.error(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"credit_requests": requests})
}

type resolveCreditRequestBody struct {
	Approve bool `json:"approve"`
}

// ResolveCreditRequest approves or rejects a pending top-up request.
// Approval credits the fixed amount exactly once; resolving an already
// resolved request yields 409.
func (a *App) ResolveCreditRequest(w http.ResponseWriter, r *http.Request) {
	requestID, err := strconv.ParseInt(chi.URLParam(r, "requestID"), 10, 64)
	if err != nil {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "invalid request id"})
		return
	}
	var body resolveCreditRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	resolved, err := a.Ledger.ResolveCreditRequest(r.Context(), requestID, body.Approve)
	if err != nil {
		a.error(w, err)
		return
	}
	a.json(w, http.StatusOK, resolved)
}
