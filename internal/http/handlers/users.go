package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"genbot/internal/domain"
)

type userView struct {
	ID            int64        `json:"id"`
	ExternalID    int64        `json:"external_id"`
	Username      string       `json:"username"`
	Credits       float64      `json:"credits"`
	SelectedRoute domain.Route `json:"selected_route"`
	CreatedAt     time.Time    `json:"created_at"`
}

// ListUsers returns a page of users.
func (a *App) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r, 50)
	users, err := a.Users.List(r.Context(), limit, offset)
	if err != nil {
		a.error(w, err)
		return
	}
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, userView{
			ID:            u.ID,
			ExternalID:    u.ExternalID,
			Username:      u.Username,
			Credits:       u.Credits,
			SelectedRoute: u.SelectedRoute,
			CreatedAt:     u.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"users": views})
}

type actionView struct {
	ID           int64           `json:"id"`
	UserID       int64           `json:"user_id"`
	ActionType   string          `json:"action_type"`
	RequestData  json.RawMessage `json:"request_data,omitempty"`
	ResponseData json.RawMessage `json:"response_data,omitempty"`
	CreditsSpent float64         `json:"credits_spent"`
	Route        domain.Route    `json:"route,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// UserHistory returns a user's action log, newest first.
func (a *App) UserHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
		return
	}
	if _, err := a.Users.GetByID(r.Context(), userID); err != nil {
		a.error(w, err)
		return
	}
	limit, offset := pageParams(r, 50)
	records, err := a.Actions.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		a.error(w, err)
		return
	}
	views := make([]actionView, 0, len(records))
	for _, rec := range records {
		views = append(views, actionView{
			ID:           rec.ID,
			UserID:       rec.UserID,
			ActionType:   rec.ActionType,
			RequestData:  rec.RequestData,
			ResponseData: rec.ResponseData,
			CreditsSpent: rec.CreditsSpent,
			Route:        rec.Route,
			CreatedAt:    rec.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"actions": views})
}

func pageParams(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
