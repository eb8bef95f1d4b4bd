package handler

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/youme-api/internal/application/pairing"
	"github.com/youme-api/internal/domain"
	"github.com/youme-api/internal/transport/http/middleware"
	"go.uber.org/zap"
)

const (
	msgLinked   = "Accounts linked successfully."
	msgUnlinked = "Unlinked successfully."
	msgLinkFail = "Failed to link accounts."
)

var linkMessages = map[domain.LinkResult]string{
	domain.LinkAlreadyLinked:        domain.ErrAlreadyLinked.Error(),
	domain.LinkInvalidOrSelfCode:    domain.ErrInvalidOrSelfCode.Error(),
	domain.LinkPartnerAlreadyLinked: domain.ErrPartnerAlreadyLinked.Error(),
	domain.LinkInvalidCode:          domain.ErrInvalidCode.Error(),
}

type attemptLimiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// CoupleHandler exposes the pairing engine.
type CoupleHandler struct {
	svc     pairing.Service
	limiter attemptLimiter
	log     *zap.Logger
}

func NewCoupleHandler(svc pairing.Service, limiter attemptLimiter, log *zap.Logger) *CoupleHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CoupleHandler{svc: svc, limiter: limiter, log: log}
}

func (h *CoupleHandler) GenerateCode(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	code, err := h.svc.GenerateCode(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CodeEnvelope{Code: code})
}

func (h *CoupleHandler) Link(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.admit(w, r, claims.UserID) {
		return
	}

	err := h.svc.ValidateAndConsume(r.Context(), claims.UserID, strings.TrimSpace(req.Code))
	res := domain.LinkResultOf(err)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, LinkEnvelope{Result: string(res), Message: msgLinked})
	case res == domain.LinkFailed:
		h.log.Error("link failed", zap.String("user_id", claims.UserID), zap.Error(err))
		status := statusFor(err)
		msg := msgLinkFail
		if status < http.StatusInternalServerError {
			msg = err.Error()
		}
		writeJSON(w, status, LinkEnvelope{Result: string(res), Message: msg})
	default:
		writeJSON(w, statusFor(err), LinkEnvelope{Result: string(res), Message: linkMessages[res]})
	}
}

// admit applies the per-user attempt window. A limiter outage lets the
// attempt through.
func (h *CoupleHandler) admit(w http.ResponseWriter, r *http.Request, userID string) bool {
	if h.limiter == nil {
		return true
	}
	allowed, retryAfter, err := h.limiter.Allow(r.Context(), "couple_link:"+userID)
	if err != nil {
		h.log.Warn("link attempt limiter unavailable", zap.Error(err))
		return true
	}
	if allowed {
		return true
	}
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeError(w, http.StatusTooManyRequests, "too many link attempts, try again later")
	return false
}

func (h *CoupleHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.svc.Unlink(r.Context(), claims.UserID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LinkEnvelope{Result: "unlinked", Message: msgUnlinked})
}

func (h *CoupleHandler) Partner(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	info, err := h.svc.PartnerInfo(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PartnerEnvelope{Partner: info})
}
