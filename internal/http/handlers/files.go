package handlers

import (
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// ServeFile serves one file from a user's storage tree. The path is resolved
// strictly inside the user's root; anything that escapes it is rejected.
func (a *App) ServeFile(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	rel := chi.URLParam(r, "*")
	path, err := a.Store.ResolveServed(userID, rel)
	if err != nil {
		a.Logger.Warn().Err(err).Int64("user_id", userID).Str("path", rel).Msg("handlers: rejected file path")
		http.NotFound(w, r)
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}
