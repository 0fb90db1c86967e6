package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/clanops/roster-system/handlers"
	"github.com/clanops/roster-system/middleware"
)

// SetupRoutes mounts every HTTP and websocket endpoint on the router. All
// roster, category and settings routes require an operator token issued by
// the gateway; the websocket subscription is read-only and stays open.
func SetupRoutes(
	router *chi.Mux,
	jwtSecret []byte,
	rosterHandler *handlers.RosterHandler,
	categoryHandler *handlers.CategoryHandler,
	linkHandler *handlers.LinkHandler,
	settingsHandler *handlers.SettingsHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	router.Get("/ws/rosters/{rosterID}", webSocketHandler.ServeRosterWS)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(jwtSecret))

		r.Route("/rosters", func(r chi.Router) {
			r.Post("/", rosterHandler.Create)
			r.Get("/", rosterHandler.List)
			r.Get("/search", rosterHandler.Search)

			r.Route("/{rosterID}", func(r chi.Router) {
				r.Get("/", rosterHandler.Get)
				r.Patch("/", rosterHandler.Update)
				r.Delete("/", rosterHandler.Delete)

				r.Post("/open", rosterHandler.Open)
				r.Post("/close", rosterHandler.Close)

				r.Post("/signup", rosterHandler.Signup)
				r.Post("/self-signup", rosterHandler.SelfSignup)
				r.Post("/opt-out", rosterHandler.OptOut)
				r.Post("/swap-category", rosterHandler.SwapCategory)
				r.Post("/swap-roster", rosterHandler.SwapRoster)

				r.Post("/refresh", rosterHandler.Refresh)
				r.Post("/import", rosterHandler.Import)
				r.Post("/sync", rosterHandler.Sync)
				r.Get("/export", rosterHandler.Export)
			})
		})

		r.Route("/categories", func(r chi.Router) {
			r.Post("/", categoryHandler.Create)
			r.Get("/", categoryHandler.List)
			r.Get("/{categoryID}", categoryHandler.Get)
			r.Patch("/{categoryID}", categoryHandler.Update)
			r.Delete("/{categoryID}", categoryHandler.Delete)
		})

		r.Route("/links", func(r chi.Router) {
			r.Get("/", linkHandler.List)
			r.Post("/", linkHandler.Create)
			r.Delete("/{tag}", linkHandler.Delete)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", settingsHandler.Get)
			r.Put("/changelog-channel", settingsHandler.SetChangelogChannel)
		})
	})
}
