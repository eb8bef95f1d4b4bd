package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/youme-api/internal/domain"
	jwtinfra "github.com/youme-api/internal/infrastructure/jwt"
	"github.com/youme-api/internal/transport/http/middleware"
)

type mockPairing struct{ mock.Mock }

func (m *mockPairing) GenerateCode(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}
func (m *mockPairing) ValidateAndConsume(ctx context.Context, userID, code string) error {
	return m.Called(ctx, userID, code).Error(0)
}
func (m *mockPairing) Unlink(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}
func (m *mockPairing) ExpireStaleCodes(ctx context.Context, ttl time.Duration) (int, error) {
	args := m.Called(ctx, ttl)
	return args.Int(0), args.Error(1)
}
func (m *mockPairing) IsLinked(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}
func (m *mockPairing) PartnerInfo(ctx context.Context, userID string) (*domain.PartnerInfo, error) {
	args := m.Called(ctx, userID)
	if p, _ := args.Get(0).(*domain.PartnerInfo); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockLimiter struct{ mock.Mock }

func (m *mockLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Get(1).(time.Duration), args.Error(2)
}

type mockGateway struct{ mock.Mock }

func identityResult(args mock.Arguments) (*domain.Identity, error) {
	if id, _ := args.Get(0).(*domain.Identity); id != nil {
		return id, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) CreateAccount(ctx context.Context, email, password string) (*domain.Identity, error) {
	return identityResult(m.Called(ctx, email, password))
}
func (m *mockGateway) SignIn(ctx context.Context, email, password string) (*domain.Identity, error) {
	return identityResult(m.Called(ctx, email, password))
}
func (m *mockGateway) SendVerificationEmail(ctx context.Context, id *domain.Identity) error {
	return m.Called(ctx, id).Error(0)
}
func (m *mockGateway) Reload(ctx context.Context, id *domain.Identity) (*domain.Identity, error) {
	return identityResult(m.Called(ctx, id))
}
func (m *mockGateway) SendPasswordReset(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}
func (m *mockGateway) Reauthenticate(ctx context.Context, id *domain.Identity, password string) (*domain.Identity, error) {
	return identityResult(m.Called(ctx, id, password))
}
func (m *mockGateway) UpdatePassword(ctx context.Context, id *domain.Identity, newPassword string) (*domain.Identity, error) {
	return identityResult(m.Called(ctx, id, newPassword))
}
func (m *mockGateway) UpdateDisplayName(ctx context.Context, id *domain.Identity, name string) error {
	return m.Called(ctx, id, name).Error(0)
}
func (m *mockGateway) DeleteIdentity(ctx context.Context, id *domain.Identity) error {
	return m.Called(ctx, id).Error(0)
}
func (m *mockGateway) Refresh(ctx context.Context, id *domain.Identity) (*domain.Identity, error) {
	return identityResult(m.Called(ctx, id))
}

type mockProfiles struct{ mock.Mock }

func (m *mockProfiles) Put(ctx context.Context, p *domain.UserProfile) error {
	return m.Called(ctx, p).Error(0)
}
func (m *mockProfiles) Get(ctx context.Context, userID string) (*domain.UserProfile, error) {
	args := m.Called(ctx, userID)
	if p, _ := args.Get(0).(*domain.UserProfile); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockProfiles) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}

type mockAccounts struct{ mock.Mock }

func (m *mockAccounts) DeleteProfile(ctx context.Context, userID, partnerID string) error {
	return m.Called(ctx, userID, partnerID).Error(0)
}

type mockSessions struct{ mock.Mock }

func (m *mockSessions) Save(ctx context.Context, s *domain.Session, ttl time.Duration) error {
	return m.Called(ctx, s, ttl).Error(0)
}
func (m *mockSessions) Delete(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

type mockSigner struct{ mock.Mock }

func (m *mockSigner) Sign(userID, deviceID, sessionID string, ttl time.Duration) (string, error) {
	args := m.Called(userID, deviceID, sessionID, ttl)
	return args.String(0), args.Error(1)
}

// memPrefs is a per-device remember-me store.
type memPrefs struct {
	mu   sync.Mutex
	vals map[string]bool
}

func newMemPrefs() *memPrefs { return &memPrefs{vals: map[string]bool{}} }

func (p *memPrefs) forDevice(deviceID string) *devicePrefs {
	return &devicePrefs{store: p, device: deviceID}
}

func (p *memPrefs) get(deviceID string) (bool, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.vals[deviceID]
	return v, ok
}

type devicePrefs struct {
	store  *memPrefs
	device string
}

func (d *devicePrefs) RememberMe(context.Context) (bool, error) {
	v, _ := d.store.get(d.device)
	return v, nil
}
func (d *devicePrefs) SetRememberMe(_ context.Context, remember bool) error {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	d.store.vals[d.device] = remember
	return nil
}
func (d *devicePrefs) ClearRememberMe(context.Context) error {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()
	delete(d.store.vals, d.device)
	return nil
}

// withSession injects what the Auth and Session middleware would.
func withSession(r *http.Request, rec *domain.Session) *http.Request {
	claims := &jwtinfra.Claims{SessionID: rec.SessionID, DeviceID: rec.DeviceID}
	if rec.Identity != nil {
		claims.UserID = rec.Identity.UserID
	}
	ctx := context.WithValue(r.Context(), middleware.ClaimsKey, claims)
	ctx = context.WithValue(ctx, middleware.SessionKey, rec)
	return r.WithContext(ctx)
}

func withClaims(r *http.Request, userID string) *http.Request {
	claims := &jwtinfra.Claims{UserID: userID, SessionID: "sess-" + userID}
	return r.WithContext(context.WithValue(r.Context(), middleware.ClaimsKey, claims))
}
