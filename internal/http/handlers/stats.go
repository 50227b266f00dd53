package handlers

import (
	"net/http"
	"strconv"
	"time"
)

type routeUsageView struct {
	Route        string  `json:"route"`
	Requests     int     `json:"requests"`
	CreditsSpent float64 `json:"credits_spent"`
}

// RouteStats aggregates generation attempts per route over the last N days
// (default 30).
func (a *App) RouteStats(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && v > 0 {
		days = v
	}
	since := time.Now().AddDate(0, 0, -days)

	usage, err := a.Actions.RouteStats(r.Context(), since)
	if err != nil {
		a.error(w, err)
		return
	}
	views := make([]routeUsageView, 0, len(usage))
	for route, u := range usage {
		views = append(views, routeUsageView{
			Route:        string(route),
			Requests:     u.Requests,
			CreditsSpent: u.CreditsSpent,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"since": since, "routes": views})
}
