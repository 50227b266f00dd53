package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"genbot/internal/http/handlers"
	"genbot/internal/middleware"
)

// NewRouter assembles the admin surface. The file and health routes are
// public; everything else sits behind the static bearer token.
func NewRouter(app *handlers.App, adminToken string, lookup middleware.CountryLookup) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Geo(lookup),
		middleware.Logger(*app.Logger),
	)

	r.Get("/healthz", app.Health)
	r.Get("/files/{userID}/*", app.ServeFile)

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.BearerAuth(adminToken))

		r.Get("/users", app.ListUsers)
		r.Get("/users/{userID}/history", app.UserHistory)
		r.Get("/stats/routes", app.RouteStats)
		r.Post("/credits/adjust", app.AdjustCredits)
		r.Get("/credit-requests", app.ListCreditRequests)
		r.Post("/credit-requests/{requestID}/resolve", app.ResolveCreditRequest)
	})

	return r
}
