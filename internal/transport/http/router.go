package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/youme-api/internal/config"
	"github.com/youme-api/internal/transport/http/handler"
	appmiddleware "github.com/youme-api/internal/transport/http/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(appmiddleware.RequestLogger(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", handler.DeviceHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		log.Warn("JWT provider not configured, authenticated routes will reject every request")
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// 5 requests/second, burst of 10, on the public credential endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10, cfg.TrustedProxies...)

	authDeps := handler.AuthHandlerDeps{
		Orchestrator:  deps.Session,
		Prefs:         deps.Prefs,
		Sessions:      deps.Sessions,
		Logger:        log,
		SessionTTL:    cfg.SessionTTL,
		RememberedTTL: cfg.RememberedSessionTTL,
	}
	// Typed nils must not reach the handler's interfaces.
	if deps.JWTProvider != nil {
		authDeps.Tokens = deps.JWTProvider
	}
	if deps.Watcher != nil {
		authDeps.Watcher = deps.Watcher
	}
	if deps.Metrics != nil {
		authDeps.Metrics = deps.Metrics
	}
	authH := handler.NewAuthHandler(authDeps)

	var coupleH *handler.CoupleHandler
	if deps.Limiter != nil {
		coupleH = handler.NewCoupleHandler(deps.Pairing, deps.Limiter, log)
	} else {
		coupleH = handler.NewCoupleHandler(deps.Pairing, nil, log)
	}
	healthH := handler.NewHealthHandler()

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)

		r.With(sensitiveRL.Limit).Post("/accounts", authH.SignUp)
		r.With(sensitiveRL.Limit).Post("/sessions", authH.SignIn)
		r.With(sensitiveRL.Limit).Post("/password-reset", authH.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(authMw)
			r.Use(appmiddleware.Session(deps.Sessions))

			r.Post("/sessions/restore", authH.Restore)
			r.Delete("/sessions", authH.SignOut)

			r.Get("/session/remember-me", authH.GetRememberMe)
			r.Put("/session/remember-me", authH.SaveRememberMe)
			r.Delete("/session/remember-me", authH.ClearRememberMe)

			r.Post("/email-verification/resend", authH.ResendVerification)
			r.Post("/email-verification/check", authH.CheckEmailVerified)

			r.Post("/account/reauthenticate", authH.Reauthenticate)
			r.Put("/account/password", authH.ChangePassword)
			r.Delete("/account", authH.DeleteAccount)

			r.Get("/profile", authH.GetProfile)
			r.Get("/connection", authH.Connection)

			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireVerified)

				r.Put("/profile", authH.UpdateProfile)

				r.Post("/couple/code", coupleH.GenerateCode)
				r.Post("/couple/link", coupleH.Link)
				r.Delete("/couple/link", coupleH.Unlink)
				r.Get("/couple/partner", coupleH.Partner)
			})
		})
	})

	return r
}
