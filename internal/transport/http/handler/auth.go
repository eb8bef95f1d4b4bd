package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/youme-api/internal/application/session"
	"github.com/youme-api/internal/domain"
	"github.com/youme-api/internal/pkg/id"
	"github.com/youme-api/internal/pkg/validate"
	"github.com/youme-api/internal/transport/http/middleware"
	"go.uber.org/zap"
)

// DeviceHeader carries the client's device id on unauthenticated calls.
const DeviceHeader = "X-Device-Id"

type sessionStore interface {
	Save(ctx context.Context, s *domain.Session, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
}

type tokenSigner interface {
	Sign(userID, deviceID, sessionID string, ttl time.Duration) (string, error)
}

type profileWatcher interface {
	Watch(ctx context.Context, userID string, onChange func(*domain.UserProfile), onError func(error)) (cancel func())
}

type transitionRecorder interface {
	AuthTransition(ctx context.Context) func(domain.AuthState)
}

// AuthHandler runs the session orchestrator for each request. The identity
// lives in the server-side session record between requests.
type AuthHandler struct {
	deps          session.Deps
	prefs         func(deviceID string) session.Prefs
	sessions      sessionStore
	tokens        tokenSigner
	watcher       profileWatcher
	metrics       transitionRecorder
	log           *zap.Logger
	now           func() time.Time
	sessionTTL    time.Duration
	rememberedTTL time.Duration
}

type AuthHandlerDeps struct {
	Orchestrator  session.Deps
	Prefs         func(deviceID string) session.Prefs
	Sessions      sessionStore
	Tokens        tokenSigner
	Watcher       profileWatcher
	Metrics       transitionRecorder // optional
	Logger        *zap.Logger
	SessionTTL    time.Duration
	RememberedTTL time.Duration
}

func NewAuthHandler(d AuthHandlerDeps) *AuthHandler {
	h := &AuthHandler{
		deps:          d.Orchestrator,
		prefs:         d.Prefs,
		sessions:      d.Sessions,
		tokens:        d.Tokens,
		watcher:       d.Watcher,
		metrics:       d.Metrics,
		log:           d.Logger,
		now:           time.Now,
		sessionTTL:    d.SessionTTL,
		rememberedTTL: d.RememberedTTL,
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	if h.deps.Logger == nil {
		h.deps.Logger = h.log
	}
	return h
}

func (h *AuthHandler) orchestrator(ctx context.Context, ident *domain.Identity, deviceID string) *session.Orchestrator {
	var prefs session.Prefs
	if h.prefs != nil {
		prefs = h.prefs(deviceID)
	}
	o := session.NewOrchestrator(h.deps, session.New(ident), prefs)
	if h.metrics != nil {
		o.Subscribe(h.metrics.AuthTransition(ctx))
	}
	return o
}

func deviceFrom(r *http.Request, fallback string) string {
	if fallback != "" {
		return fallback
	}
	if d := r.Header.Get(DeviceHeader); d != "" {
		return d
	}
	return id.New()
}

// writeState reports the orchestrator's final state with a status derived
// from err.
func writeState(w http.ResponseWriter, o *session.Orchestrator, err error) {
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
	}
	writeJSON(w, status, StateEnvelope{State: o.State()})
}

// openSession stores the orchestrator's identity and returns a bearer for it.
func (h *AuthHandler) openSession(ctx context.Context, o *session.Orchestrator, deviceID string, remember bool) (string, error) {
	if h.tokens == nil {
		return "", fmt.Errorf("token signing is not configured")
	}
	ident := o.Session().Current()
	if ident == nil {
		return "", fmt.Errorf("no identity to open a session for")
	}
	ttl := h.sessionTTL
	if remember {
		ttl = h.rememberedTTL
	}
	now := h.now().UTC()
	rec := &domain.Session{
		SessionID:  id.NewAt(now),
		DeviceID:   deviceID,
		RememberMe: remember,
		Identity:   ident,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.sessions.Save(ctx, rec, ttl); err != nil {
		return "", err
	}
	return h.tokens.Sign(ident.UserID, deviceID, rec.SessionID, ttl)
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req domain.SignUpRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	deviceID := deviceFrom(r, "")
	o := h.orchestrator(r.Context(), nil, deviceID)
	if err := o.SignUp(r.Context(), req); err != nil {
		writeState(w, o, err)
		return
	}
	bearer, err := h.openSession(r.Context(), o, deviceID, false)
	if err != nil {
		h.log.Error("open session after sign-up failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, StateEnvelope{State: o.State(), Bearer: bearer})
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req domain.SignInRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeServiceError(w, err)
		return
	}
	deviceID := deviceFrom(r, req.DeviceUUID)
	o := h.orchestrator(r.Context(), nil, deviceID)
	if err := o.SignIn(r.Context(), req); err != nil {
		writeState(w, o, err)
		return
	}
	bearer, err := h.openSession(r.Context(), o, deviceID, req.RememberMe)
	if err != nil {
		h.log.Error("open session after sign-in failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, StateEnvelope{State: o.State(), Bearer: bearer})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	o := h.orchestrator(r.Context(), nil, deviceFrom(r, ""))
	writeState(w, o, o.ResetPassword(r.Context(), req.Email))
}

// run executes op against the request's stored session and writes the
// resulting state back.
func (h *AuthHandler) run(w http.ResponseWriter, r *http.Request, op func(context.Context, *session.Orchestrator) error) {
	rec, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	o := h.orchestrator(r.Context(), rec.Identity, rec.DeviceID)
	err := op(r.Context(), o)
	h.persist(r.Context(), rec, o)
	writeState(w, o, err)
}

// persist saves identity changes back to the session record, or removes the
// record once the orchestrator has torn the session down.
func (h *AuthHandler) persist(ctx context.Context, rec *domain.Session, o *session.Orchestrator) {
	ident := o.Session().Current()
	if ident == nil {
		if err := h.sessions.Delete(ctx, rec.SessionID); err != nil {
			h.log.Warn("delete session failed", zap.String("session_id", rec.SessionID), zap.Error(err))
		}
		return
	}
	if rec.Identity != nil && *rec.Identity == *ident {
		return
	}
	rec.Identity = ident
	rec.UpdatedAt = h.now().UTC()
	if err := h.sessions.Save(ctx, rec, 0); err != nil {
		h.log.Warn("save session failed", zap.String("session_id", rec.SessionID), zap.Error(err))
	}
}

func (h *AuthHandler) Restore(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ctx context.Context, o *session.Orchestrator) error { return o.Restore(ctx) })
}

func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ctx context.Context, o *session.Orchestrator) error {
		o.SignOut(ctx)
		return nil
	})
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ctx context.Context, o *session.Orchestrator) error { return o.ResendVerification(ctx) })
}

func (h *AuthHandler) CheckEmailVerified(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ctx context.Context, o *session.Orchestrator) error { return o.CheckEmailVerified(ctx) })
}

func (h *AuthHandler) Reauthenticate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.run(w, r, func(ctx context.Context, o *session.Orchestrator) error { return o.Reauthenticate(ctx, req.Password) })
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ChangePasswordRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.run(w, r, func(ctx context.Context, o *session.Orchestrator) error { return o.ChangePassword(ctx, req) })
}

func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ctx context.Context, o *session.Orchestrator) error { return o.DeleteAccount(ctx) })
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateProfileRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.run(w, r, func(ctx context.Context, o *session.Orchestrator) error { return o.UpdateProfile(ctx, req) })
}

func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	rec, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	p, err := h.orchestrator(r.Context(), rec.Identity, rec.DeviceID).GetProfile(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileEnvelope{Profile: p})
}

func (h *AuthHandler) GetRememberMe(w http.ResponseWriter, r *http.Request) {
	rec, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	remember, err := h.orchestrator(r.Context(), rec.Identity, rec.DeviceID).CheckRememberMe(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RememberMeEnvelope{RememberMe: remember})
}

func (h *AuthHandler) SaveRememberMe(w http.ResponseWriter, r *http.Request) {
	rec, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req RememberMeEnvelope
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.orchestrator(r.Context(), rec.Identity, rec.DeviceID).SaveRememberMe(r.Context(), req.RememberMe); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *AuthHandler) ClearRememberMe(w http.ResponseWriter, r *http.Request) {
	rec, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.orchestrator(r.Context(), rec.Identity, rec.DeviceID).ClearRememberMe(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RememberMeEnvelope{RememberMe: false})
}

type sseEvent struct {
	name string
	data interface{}
}

// Connection streams connection status and auth state changes as
// Server-Sent Events until the client goes away.
func (h *AuthHandler) Connection(w http.ResponseWriter, r *http.Request) {
	rec, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.watcher == nil {
		writeError(w, http.StatusServiceUnavailable, "connection monitoring unavailable")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events := make(chan sseEvent, 16)
	// Callbacks run on the watcher goroutine; a full buffer drops the event
	// rather than stalling it.
	push := func(name string, data interface{}) {
		select {
		case events <- sseEvent{name: name, data: data}:
		default:
		}
	}

	o := h.orchestrator(r.Context(), rec.Identity, rec.DeviceID)
	unsubscribe := o.Subscribe(func(st domain.AuthState) { push("state", st) })
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	m := o.StartMonitor(r.Context(), h.watcher, func(st domain.ConnectionStatus) { push("connection", st) })
	defer m.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			payload, err := json.Marshal(ev.data)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
