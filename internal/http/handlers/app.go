package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"genbot/internal/domain"
	"genbot/internal/infra"
	"genbot/internal/ledger"
	"genbot/internal/storage"
)

// App bundles the dependencies of the admin HTTP surface.
type App struct {
	Users          domain.UserRepository
	Actions        domain.ActionRepository
	CreditRequests domain.CreditRequestRepository
	Ledger         *ledger.Ledger
	Store          *storage.ZoneStore
	Logger         *infra.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.json(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, domain.ErrDuplicateOperation):
		a.json(w, http.StatusConflict, map[string]string{"error": "already resolved"})
	default:
		a.Logger.Error().Err(err).Msg("handlers: request failed")
		a.json(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// Health reports liveness.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
