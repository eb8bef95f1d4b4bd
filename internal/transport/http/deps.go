package http

import (
	"net/http"

	"github.com/youme-api/internal/application/pairing"
	"github.com/youme-api/internal/application/session"
	"github.com/youme-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/youme-api/internal/infrastructure/jwt"
	redisinfra "github.com/youme-api/internal/infrastructure/redis"
	"github.com/youme-api/internal/observability"
	"go.uber.org/zap"
)

// Deps holds the services and infrastructure the router wires into handlers.
type Deps struct {
	Logger *zap.Logger

	Pairing pairing.Service

	// Session holds the orchestrator's collaborators; an orchestrator is
	// built from them for every request.
	Session session.Deps
	Prefs   func(deviceID string) session.Prefs

	Sessions    *redisinfra.SessionStore
	Limiter     *redisinfra.AttemptLimiter // optional
	Watcher     *dynamo.ProfileWatcher
	JWTProvider *jwtinfra.Provider

	Metrics        *observability.Metrics // optional
	MetricsHandler http.Handler           // optional
}
