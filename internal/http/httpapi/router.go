package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"draw2story/internal/http/handlers"
	"draw2story/internal/metrics"
	"draw2story/internal/middleware"
)

// Options carries the collaborators the router wires around handlers.
type Options struct {
	Metrics       *metrics.Metrics
	Subscriptions *middleware.SubscriptionGate
	// StaticDir is served under /static when set.
	StaticDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RealIP,
		middleware.RequestID,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		opts.Metrics.Instrument,
		middleware.CORS(app.Config.CORSOrigins),
	)

	r.Get("/api/health", app.Health)
	r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(app.Config.JWTSecret))
		r.Get("/api/me", app.Me)

		r.Route("/api/storybooks", func(r chi.Router) {
			if opts.Subscriptions != nil {
				r.Use(opts.Subscriptions.Require)
			}
			r.Get("/", app.ListStorybooks)
			r.With(middleware.RateLimit(app.Config.RateLimitPerMin, 0)).Post("/", app.CreateStorybook)
			r.Delete("/", app.DeleteAllStorybooks)
			r.Get("/{id}", app.GetStorybook)
			r.Get("/{id}/archive", app.DownloadStorybookArchive)
			r.Delete("/{id}", app.DeleteStorybook)
		})
	})

	return r
}
