package pairing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/youme-api/internal/domain"
	"github.com/youme-api/internal/pkg/codegen"
	"github.com/youme-api/internal/pkg/id"
	"go.uber.org/zap"
)

// DefaultCodeTTL is how long a couple code stays redeemable.
const DefaultCodeTTL = 10 * time.Minute

// Service is the pairing engine: it issues couple codes, redeems them into a
// mutual partner link, and dissolves links.
type Service interface {
	GenerateCode(ctx context.Context, userID string) (string, error)
	// ValidateAndConsume returns nil once both profiles are linked; use
	// domain.LinkResultOf to classify a failure.
	ValidateAndConsume(ctx context.Context, userID, code string) error
	Unlink(ctx context.Context, userID string) error
	ExpireStaleCodes(ctx context.Context, ttl time.Duration) (int, error)
	IsLinked(ctx context.Context, userID string) (bool, error)
	PartnerInfo(ctx context.Context, userID string) (*domain.PartnerInfo, error)
}

type profileStore interface {
	Get(ctx context.Context, userID string) (*domain.UserProfile, error)
}

type codeStore interface {
	Get(ctx context.Context, code string) (*domain.CoupleCode, error)
	Create(ctx context.Context, c *domain.CoupleCode) error
	DeleteByUser(ctx context.Context, userID string) (int, error)
	ListCreatedBefore(ctx context.Context, cutoffMillis int64) ([]domain.CoupleCode, error)
	DeleteIfCreatedBefore(ctx context.Context, code string, cutoffMillis int64) (bool, error)
}

type linker interface {
	Link(ctx context.Context, requesterID, ownerID, code string) error
	Unlink(ctx context.Context, userID, partnerID string) error
}

type eventPublisher interface {
	Publish(ctx context.Context, evt domain.Event) error
}

type partnerNotifier interface {
	NotifyPartnerLinked(ctx context.Context, owner, requester *domain.UserProfile)
}

type recorder interface {
	CodeGenerated(ctx context.Context)
	CodeCollision(ctx context.Context)
	LinkAttempt(ctx context.Context, result domain.LinkResult)
	Unlinked(ctx context.Context)
	CodesExpired(ctx context.Context, n int)
}

type service struct {
	profiles profileStore
	codes    codeStore
	tx       linker
	events   eventPublisher
	notifier partnerNotifier
	metrics  recorder
	log      *zap.Logger
	ttl      time.Duration
	now      func() time.Time
	newCode  func() (string, error)
}

type ServiceDeps struct {
	Profiles profileStore
	Codes    codeStore
	Tx       linker
	Events   eventPublisher  // optional
	Notifier partnerNotifier // optional
	Metrics  recorder        // optional
	Logger   *zap.Logger
	CodeTTL  time.Duration
	Now      func() time.Time
	NewCode  func() (string, error)
}

func NewService(deps ServiceDeps) Service {
	s := &service{
		profiles: deps.Profiles,
		codes:    deps.Codes,
		tx:       deps.Tx,
		events:   deps.Events,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		log:      deps.Logger,
		ttl:      deps.CodeTTL,
		now:      deps.Now,
		newCode:  deps.NewCode,
	}
	if s.metrics == nil {
		s.metrics = nopRecorder{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.ttl <= 0 {
		s.ttl = DefaultCodeTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newCode == nil {
		s.newCode = codegen.CoupleCode
	}
	return s
}

// GenerateCode replaces any code the user already holds with a fresh one.
// A draw that lands on a live code fails with domain.ErrCodeCollision; the
// caller may simply retry.
func (s *service) GenerateCode(ctx context.Context, userID string) (string, error) {
	if _, err := s.codes.DeleteByUser(ctx, userID); err != nil {
		return "", fmt.Errorf("clear previous codes: %w", err)
	}
	code, err := s.newCode()
	if err != nil {
		return "", err
	}
	switch _, err := s.codes.Get(ctx, code); {
	case err == nil:
		s.metrics.CodeCollision(ctx)
		return "", domain.ErrCodeCollision
	case !errors.Is(err, domain.ErrInvalidCode):
		return "", fmt.Errorf("check code: %w", err)
	}

	now := s.now()
	c := &domain.CoupleCode{
		Code:      code,
		UserID:    userID,
		CreatedAt: now.UnixMilli(),
		ExpiresAt: now.Add(s.ttl).Unix(),
	}
	if err := s.codes.Create(ctx, c); err != nil {
		if errors.Is(err, domain.ErrCodeCollision) {
			s.metrics.CodeCollision(ctx)
		}
		return "", err
	}
	s.metrics.CodeGenerated(ctx)
	s.publish(ctx, domain.Event{Type: domain.EventCodeGenerated, UserID: userID})
	return code, nil
}

func (s *service) ValidateAndConsume(ctx context.Context, userID, input string) (err error) {
	defer func() { s.metrics.LinkAttempt(ctx, domain.LinkResultOf(err)) }()

	requester, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	if requester.Linked() {
		return domain.ErrAlreadyLinked
	}

	code := strings.TrimSpace(input)
	if !wellFormed(code) {
		return domain.ErrInvalidCode
	}
	c, err := s.codes.Get(ctx, code)
	if err != nil {
		return err
	}
	if c.Expired(s.now(), s.ttl) {
		return fmt.Errorf("code %s past ttl: %w", code, domain.ErrInvalidCode)
	}
	if c.UserID == userID {
		return domain.ErrInvalidOrSelfCode
	}

	owner, err := s.profiles.Get(ctx, c.UserID)
	if errors.Is(err, domain.ErrProfileNotFound) {
		return fmt.Errorf("code owner %s is gone: %w", c.UserID, domain.ErrInvalidCode)
	}
	if err != nil {
		return fmt.Errorf("load code owner: %w", err)
	}
	if owner.Linked() {
		return domain.ErrPartnerAlreadyLinked
	}

	if err := s.tx.Link(ctx, userID, owner.UserID, code); err != nil {
		return err
	}

	s.log.Info("profiles linked", zap.String("user_id", userID), zap.String("partner_id", owner.UserID))
	s.publish(ctx, domain.Event{Type: domain.EventLinked, UserID: userID, PartnerID: owner.UserID})
	if s.notifier != nil {
		s.notifier.NotifyPartnerLinked(ctx, owner, requester)
	}
	return nil
}

func (s *service) Unlink(ctx context.Context, userID string) error {
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	if !p.Linked() {
		return domain.ErrNoPartner
	}
	partnerID := *p.PartnerID
	if err := s.tx.Unlink(ctx, userID, partnerID); err != nil {
		return err
	}
	s.metrics.Unlinked(ctx)
	s.log.Info("profiles unlinked", zap.String("user_id", userID), zap.String("partner_id", partnerID))
	s.publish(ctx, domain.Event{Type: domain.EventUnlinked, UserID: userID, PartnerID: partnerID})
	return nil
}

// ExpireStaleCodes deletes codes created more than ttl ago and returns how
// many it removed. Codes consumed or re-created during the sweep are skipped.
func (s *service) ExpireStaleCodes(ctx context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	cutoff := s.now().Add(-ttl).UnixMilli()
	stale, err := s.codes.ListCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale codes: %w", err)
	}
	removed := 0
	for _, c := range stale {
		ok, err := s.codes.DeleteIfCreatedBefore(ctx, c.Code, cutoff)
		if err != nil {
			return removed, fmt.Errorf("expire code: %w", err)
		}
		if ok {
			removed++
		}
	}
	if removed > 0 {
		s.metrics.CodesExpired(ctx, removed)
		s.publish(ctx, domain.Event{Type: domain.EventCodesExpired, Count: removed})
	}
	return removed, nil
}

func (s *service) IsLinked(ctx context.Context, userID string) (bool, error) {
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return p.Linked(), nil
}

func (s *service) PartnerInfo(ctx context.Context, userID string) (*domain.PartnerInfo, error) {
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !p.Linked() {
		return nil, domain.ErrNoPartner
	}
	partner, err := s.profiles.Get(ctx, *p.PartnerID)
	if err != nil {
		return nil, fmt.Errorf("load partner: %w", err)
	}
	return &domain.PartnerInfo{
		UserID:      partner.UserID,
		DisplayName: partner.DisplayName,
		Email:       partner.Email,
		PhoneNumber: partner.PhoneNumber,
	}, nil
}

// publish is best-effort: a lost event never fails the operation.
func (s *service) publish(ctx context.Context, evt domain.Event) {
	if s.events == nil {
		return
	}
	now := s.now()
	evt.EventID = id.NewAt(now)
	evt.OccurredAt = now.UTC()
	if err := s.events.Publish(ctx, evt); err != nil {
		s.log.Warn("event publish failed", zap.String("type", evt.Type), zap.Error(err))
	}
}

func wellFormed(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

type nopRecorder struct{}

func (nopRecorder) CodeGenerated(context.Context) {}
func (nopRecorder) CodeCollision(context.Context) {}
func (nopRecorder) LinkAttempt(context.Context, domain.LinkResult) {}
func (nopRecorder) Unlinked(context.Context) {}
func (nopRecorder) CodesExpired(context.Context, int) {}
