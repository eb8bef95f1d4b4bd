package session

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/youme-api/internal/domain"
)

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

type mockProfileStore struct{ mock.Mock }

func (m *mockProfileStore) Put(ctx context.Context, p *domain.UserProfile) error {
	return m.Called(ctx, p).Error(0)
}
func (m *mockProfileStore) Get(ctx context.Context, userID string) (*domain.UserProfile, error) {
	args := m.Called(ctx, userID)
	if p, _ := args.Get(0).(*domain.UserProfile); p != nil {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockProfileStore) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}

type mockAccounts struct{ mock.Mock }

func (m *mockAccounts) DeleteProfile(ctx context.Context, userID, partnerID string) error {
	return m.Called(ctx, userID, partnerID).Error(0)
}

type mockCodes struct{ mock.Mock }

func (m *mockCodes) DeleteByUser(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type mockLedger struct{ mock.Mock }

func (m *mockLedger) Report(ctx context.Context, r domain.OrphanReport) (string, error) {
	args := m.Called(ctx, r)
	return args.String(0), args.Error(1)
}

// memPrefs is an in-memory remember-me store.
type memPrefs struct {
	mu  sync.Mutex
	val *bool
	err error
}

func (p *memPrefs) RememberMe(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return false, p.err
	}
	return p.val != nil && *p.val, nil
}

func (p *memPrefs) SetRememberMe(_ context.Context, v bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.val = &v
	return nil
}

func (p *memPrefs) ClearRememberMe(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.val = nil
	return p.err
}

func (p *memPrefs) stored() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.val != nil
}
