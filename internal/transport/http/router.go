package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/whisper-api/internal/application/account"
	"github.com/whisper-api/internal/application/auth"
	"github.com/whisper-api/internal/application/message"
	"github.com/whisper-api/internal/config"
	"github.com/whisper-api/internal/transport/http/handler"
	appmiddleware "github.com/whisper-api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// 5 requests/second, burst of 10 — applied to sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)

	accountSvc := account.NewService(account.ServiceDeps{
		AccountRepo: deps.AccountRepo,
		Hasher:      deps.Hasher,
		Notifier:    deps.Notifier,
	})
	authSvc := auth.NewService(auth.ServiceDeps{
		AccountRepo: deps.AccountRepo,
		Hasher:      deps.Hasher,
		Notifier:    deps.Notifier,
		JWTProvider: deps.JWTProvider,
		AppBaseURL:  cfg.AppBaseURL,
	})
	messageSvc := message.NewService(deps.AccountRepo)

	healthH := handler.NewHealthHandler()
	accountH := handler.NewAccountHandler(accountSvc)
	sessionH := handler.NewSessionHandler(authSvc)
	resetH := handler.NewPasswordResetHandler(authSvc)
	messageH := handler.NewMessageHandler(messageSvc, accountSvc)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)
		r.With(sensitiveRL.Limit).Post("/accounts", accountH.Register)
		r.With(sensitiveRL.Limit).Post("/accounts/verify-code", accountH.VerifyCode)
		r.With(sensitiveRL.Limit).Post("/sessions/login", sessionH.Login)
		r.With(sensitiveRL.Limit).Post("/password-reset/request", resetH.Request)
		r.With(sensitiveRL.Limit).Post("/password-reset/confirm", resetH.Confirm)
		r.With(sensitiveRL.Limit).Post("/messages/{username}", messageH.Send)

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/accounts/me", accountH.Me)
			r.Get("/messages", messageH.List)
			r.Delete("/messages/{id}", messageH.Delete)
			r.Get("/accept-messages", messageH.GetAccepting)
			r.Post("/accept-messages", messageH.SetAccepting)
		})
	})

	return r
}
