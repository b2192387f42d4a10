package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/fuomag9/checkpulse/internal/config"
	"github.com/fuomag9/checkpulse/internal/store"
)

// Deps are the collaborators the inspector API serves from
type Deps struct {
	Records   store.Store
	Logs      LogReader
	Processor CheckProcessor
	Guard     TargetChecker
	Auth      *Authenticator
	WebSocket http.HandlerFunc
}

// NewRouter creates a new HTTP router. ctx bounds background cleanup of the
// rate limiters.
func NewRouter(ctx context.Context, cfg *config.Config, deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  log.StandardLogger(),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeadersMiddleware(cfg))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	apiLimiter := NewRateLimiter(rate.Limit(10), 30)
	apiLimiter.Cleanup(ctx, 10*time.Minute, time.Hour)
	authLimiter := NewRateLimiter(rate.Every(12*time.Second), 5)
	authLimiter.Cleanup(ctx, 10*time.Minute, time.Hour)

	r.Route("/api", func(r chi.Router) {
		r.With(RateLimitMiddleware(authLimiter, "Too many attempts. Please try again later.")).
			Post("/auth/token", HandleIssueToken(deps.Auth))

		r.Group(func(r chi.Router) {
			r.Use(RateLimitMiddleware(apiLimiter, "Rate limit exceeded. Please try again later."))
			r.Use(AuthMiddleware(deps.Auth))

			r.Get("/checks", HandleGetChecks(deps.Records))
			r.Post("/checks", HandleCreateCheck(deps.Records, deps.Guard, cfg.Checks.MaxPerUser))
			r.Get("/checks/{id}", HandleGetCheck(deps.Records))
			r.Delete("/checks/{id}", HandleDeleteCheck(deps.Records))
			if deps.Processor != nil {
				r.Post("/checks/{id}/probe", HandleProbeCheck(deps.Processor))
			}

			r.Get("/logs", HandleGetLogs(deps.Logs))
			r.Get("/logs/{id}", HandleGetLog(deps.Logs))
		})
	})

	if deps.WebSocket != nil {
		r.Get("/ws", deps.WebSocket)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
