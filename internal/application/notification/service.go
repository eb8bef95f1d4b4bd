package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/youme-api/internal/domain"
	"go.uber.org/zap"
)

const sendTimeout = 10 * time.Second

type mailer interface {
	SendEmail(to, subject, body string) error
}

type smsSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

// Service tells a code owner that someone redeemed their couple code.
type Service interface {
	NotifyPartnerLinked(ctx context.Context, owner, requester *domain.UserProfile)
}

type service struct {
	mailer mailer
	sms    smsSender
	log    *zap.Logger
	async  bool
}

type ServiceDeps struct {
	Mailer mailer
	SMS    smsSender // optional
	Logger *zap.Logger
}

func NewService(deps ServiceDeps) Service {
	s := &service{mailer: deps.Mailer, sms: deps.SMS, log: deps.Logger, async: true}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// NotifyPartnerLinked returns immediately; delivery runs detached from the
// request context and failures are only logged.
func (s *service) NotifyPartnerLinked(_ context.Context, owner, requester *domain.UserProfile) {
	if owner == nil || requester == nil {
		return
	}
	if !s.async {
		s.deliver(owner, requester)
		return
	}
	go s.deliver(owner, requester)
}

func (s *service) deliver(owner, requester *domain.UserProfile) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	name := requester.DisplayName
	if name == "" {
		name = requester.Email
	}
	if s.mailer != nil && owner.Email != "" {
		body := fmt.Sprintf("Hi %s,\n\n%s used your couple code. You are now linked as partners.\n", owner.DisplayName, name)
		if err := s.mailer.SendEmail(owner.Email, "You have a new partner", body); err != nil {
			s.log.Warn("partner email failed", zap.String("user_id", owner.UserID), zap.Error(err))
		}
	}
	if s.sms != nil && owner.PhoneNumber != "" {
		msg := fmt.Sprintf("%s is now linked with you.", name)
		if err := s.sms.SendSMS(ctx, owner.PhoneNumber, msg); err != nil {
			s.log.Warn("partner sms failed", zap.String("user_id", owner.UserID), zap.Error(err))
		}
	}
}
