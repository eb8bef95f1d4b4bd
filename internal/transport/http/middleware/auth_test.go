package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/youme-api/internal/config"
	"github.com/youme-api/internal/domain"
	jwtinfra "github.com/youme-api/internal/infrastructure/jwt"
)

// newTestProvider generates a fresh RSA key pair, writes them to temp files,
// and returns a *jwtinfra.Provider. The temp directory is cleaned up automatically
// by t.TempDir() when the test completes.
func newTestProvider(t *testing.T) *jwtinfra.Provider {
	t.Helper()
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	dir := t.TempDir()
	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privKey)})
	require.NoError(t, os.WriteFile(privPath, privPEM, 0600))

	pubBytes, err := x509.MarshalPKIXPublicKey(&privKey.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0600))

	cfg := &config.Config{
		JWTPrivateKeyPath: privPath,
		JWTPublicKeyPath:  pubPath,
		JWTExpiry:         24 * time.Hour,
	}
	p, err := jwtinfra.NewProvider(cfg)
	require.NoError(t, err)
	return p
}

func okHandler(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestAuth_MissingHeader(t *testing.T) {
	p := newTestProvider(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	Auth(p)(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, `Bearer realm="youme"`, rr.Header().Get("WWW-Authenticate"))
	assert.JSONEq(t, `{"error":"missing or invalid authorization header"}`, rr.Body.String())
}

func TestAuth_BadToken(t *testing.T) {
	p := newTestProvider(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rr := httptest.NewRecorder()
	Auth(p)(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuth_ExpiredToken(t *testing.T) {
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	claims := &jwtinfra.Claims{
		UserID:    "u1",
		SessionID: "sess1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)), // already expired
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(privKey)
	require.NoError(t, err)

	p := newTestProvider(t) // different key pair, fails verification

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rr := httptest.NewRecorder()
	Auth(p)(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuth_ValidToken_InjectsClaims(t *testing.T) {
	p := newTestProvider(t)

	signed, err := p.Sign("u1", "dev1", "sess1", time.Hour)
	require.NoError(t, err)

	var gotClaims *jwtinfra.Claims
	captureHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rr := httptest.NewRecorder()
	Auth(p)(captureHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, gotClaims)
	assert.Equal(t, "u1", gotClaims.UserID)
	assert.Equal(t, "sess1", gotClaims.SessionID)
}

type mockSessionLoader struct{ mock.Mock }

func (m *mockSessionLoader) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	args := m.Called(ctx, sessionID)
	if s, _ := args.Get(0).(*domain.Session); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func withClaims(req *http.Request, userID, sessionID string) *http.Request {
	claims := &jwtinfra.Claims{UserID: userID, SessionID: sessionID}
	return req.WithContext(context.WithValue(req.Context(), ClaimsKey, claims))
}

func TestSession_LoadsRecord(t *testing.T) {
	store := new(mockSessionLoader)
	rec := &domain.Session{SessionID: "sess1", Identity: &domain.Identity{UserID: "u1"}}
	store.On("Get", mock.Anything, "sess1").Return(rec, nil)

	var got *domain.Session
	h := Session(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, withClaims(httptest.NewRequest(http.MethodGet, "/", nil), "u1", "sess1"))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Same(t, rec, got)
}

func TestSession_Rejects(t *testing.T) {
	store := new(mockSessionLoader)
	store.On("Get", mock.Anything, "gone").Return(nil, domain.ErrUnauthorized)
	store.On("Get", mock.Anything, "other").Return(&domain.Session{Identity: &domain.Identity{UserID: "u2"}}, nil)
	store.On("Get", mock.Anything, "broken").Return(nil, errors.New("redis down"))
	h := Session(store)(http.HandlerFunc(okHandler))

	cases := map[string]int{"gone": http.StatusUnauthorized, "other": http.StatusUnauthorized, "broken": http.StatusInternalServerError}
	for sid, want := range cases {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, withClaims(httptest.NewRequest(http.MethodGet, "/", nil), "u1", sid))
		assert.Equal(t, want, rr.Code, sid)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireVerified(t *testing.T) {
	h := RequireVerified(http.HandlerFunc(okHandler))
	withSession := func(rec *domain.Session) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/v1/couple/code", nil)
		return req.WithContext(context.WithValue(req.Context(), SessionKey, rec))
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, withSession(&domain.Session{Identity: &domain.Identity{UserID: "u1"}}))
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.JSONEq(t, `{"error":"Please verify your email to continue"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, withSession(&domain.Session{Identity: &domain.Identity{UserID: "u1", EmailVerified: true}}))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/couple/code", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
