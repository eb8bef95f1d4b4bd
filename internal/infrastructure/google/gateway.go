package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/youme-api/internal/config"
	"github.com/youme-api/internal/domain"
	"google.golang.org/api/googleapi"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
)

// OOB request types understood by getOobConfirmationCode.
const (
	oobVerifyEmail   = "VERIFY_EMAIL"
	oobPasswordReset = "PASSWORD_RESET"
)

// Gateway is the credential gateway backed by the Identity Toolkit REST API.
type Gateway struct {
	rp       *identitytoolkit.RelyingpartyService
	apiKey   string
	tokenURL string
	hc       *http.Client
	now      func() time.Time
}

// NewGateway builds a Gateway. cfg.IdentityEndpoint, when set, points the
// client at an emulator.
func NewGateway(ctx context.Context, cfg *config.Config, extra ...option.ClientOption) (*Gateway, error) {
	if cfg.IdentityAPIKey == "" {
		return nil, errors.New("IDENTITY_API_KEY is not set")
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.IdentityAPIKey)}
	if cfg.IdentityEndpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.IdentityEndpoint))
	}
	svc, err := identitytoolkit.NewService(ctx, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("identity toolkit client: %w", err)
	}
	return &Gateway{
		rp:       svc.Relyingparty,
		apiKey:   cfg.IdentityAPIKey,
		tokenURL: cfg.TokenEndpoint,
		hc:       &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}, nil
}

// expiry turns a provider expires-in count into an absolute deadline.
func (g *Gateway) expiry(seconds int64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	return g.now().Add(time.Duration(seconds) * time.Second)
}

func (g *Gateway) CreateAccount(ctx context.Context, email, password string) (*domain.Identity, error) {
	resp, err := g.rp.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{
		Email:    email,
		Password: password,
	}).Context(ctx).Do()
	if err != nil {
		return nil, gatewayErr("create account", err)
	}
	return &domain.Identity{
		UserID:       resp.LocalId,
		Email:        resp.Email,
		DisplayName:  resp.DisplayName,
		IDToken:      resp.IdToken,
		RefreshToken: resp.RefreshToken,
		TokenExpiry:  g.expiry(resp.ExpiresIn),
	}, nil
}

func (g *Gateway) SignIn(ctx context.Context, email, password string) (*domain.Identity, error) {
	resp, err := g.rp.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, gatewayErr("sign in", err)
	}
	return g.Reload(ctx, &domain.Identity{
		UserID:       resp.LocalId,
		Email:        resp.Email,
		DisplayName:  resp.DisplayName,
		IDToken:      resp.IdToken,
		RefreshToken: resp.RefreshToken,
		TokenExpiry:  g.expiry(resp.ExpiresIn),
	})
}

// Reload refreshes the account flags of id. Tokens are carried over.
func (g *Gateway) Reload(ctx context.Context, id *domain.Identity) (*domain.Identity, error) {
	resp, err := g.rp.GetAccountInfo(&identitytoolkit.IdentitytoolkitRelyingpartyGetAccountInfoRequest{
		IdToken: id.IDToken,
	}).Context(ctx).Do()
	if err != nil {
		return nil, gatewayErr("reload", err)
	}
	if len(resp.Users) == 0 {
		return nil, &domain.GatewayError{Msg: "user not found"}
	}
	u := resp.Users[0]
	fresh := *id
	fresh.UserID = u.LocalId
	fresh.Email = u.Email
	fresh.EmailVerified = u.EmailVerified
	fresh.DisplayName = u.DisplayName
	return &fresh, nil
}

func (g *Gateway) SendVerificationEmail(ctx context.Context, id *domain.Identity) error {
	_, err := g.rp.GetOobConfirmationCode(&identitytoolkit.Relyingparty{
		RequestType: oobVerifyEmail,
		IdToken:     id.IDToken,
	}).Context(ctx).Do()
	if err != nil {
		return gatewayErr("send verification email", err)
	}
	return nil
}

func (g *Gateway) SendPasswordReset(ctx context.Context, email string) error {
	_, err := g.rp.GetOobConfirmationCode(&identitytoolkit.Relyingparty{
		RequestType: oobPasswordReset,
		Email:       email,
	}).Context(ctx).Do()
	if err != nil {
		return gatewayErr("send password reset", err)
	}
	return nil
}

// Reauthenticate proves knowledge of the current password and returns an
// identity with fresh tokens.
func (g *Gateway) Reauthenticate(ctx context.Context, id *domain.Identity, password string) (*domain.Identity, error) {
	resp, err := g.rp.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             id.Email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, gatewayErr("reauthenticate", err)
	}
	if resp.LocalId != id.UserID {
		return nil, fmt.Errorf("reauthenticate: user mismatch: %w", domain.ErrUnauthorized)
	}
	fresh := *id
	fresh.IDToken = resp.IdToken
	fresh.RefreshToken = resp.RefreshToken
	fresh.TokenExpiry = g.expiry(resp.ExpiresIn)
	return &fresh, nil
}

func (g *Gateway) UpdatePassword(ctx context.Context, id *domain.Identity, newPassword string) (*domain.Identity, error) {
	resp, err := g.rp.SetAccountInfo(&identitytoolkit.IdentitytoolkitRelyingpartySetAccountInfoRequest{
		IdToken:           id.IDToken,
		Password:          newPassword,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, gatewayErr("update password", err)
	}
	fresh := *id
	if resp.IdToken != "" {
		fresh.IDToken = resp.IdToken
		fresh.RefreshToken = resp.RefreshToken
		fresh.TokenExpiry = g.expiry(resp.ExpiresIn)
	}
	return &fresh, nil
}

func (g *Gateway) UpdateDisplayName(ctx context.Context, id *domain.Identity, name string) error {
	_, err := g.rp.SetAccountInfo(&identitytoolkit.IdentitytoolkitRelyingpartySetAccountInfoRequest{
		IdToken:     id.IDToken,
		DisplayName: name,
	}).Context(ctx).Do()
	if err != nil {
		return gatewayErr("update display name", err)
	}
	return nil
}

func (g *Gateway) DeleteIdentity(ctx context.Context, id *domain.Identity) error {
	_, err := g.rp.DeleteAccount(&identitytoolkit.IdentitytoolkitRelyingpartyDeleteAccountRequest{
		IdToken: id.IDToken,
		LocalId: id.UserID,
	}).Context(ctx).Do()
	if err != nil {
		return gatewayErr("delete identity", err)
	}
	return nil
}

type tokenResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    string `json:"expires_in"`
	UserID       string `json:"user_id"`
}

// Refresh exchanges the refresh token of id for a new ID token. Account
// flags are carried over.
func (g *Gateway) Refresh(ctx context.Context, id *domain.Identity) (*domain.Identity, error) {
	if id.RefreshToken == "" {
		return nil, &domain.GatewayError{Msg: "requires recent login", Kind: domain.ErrUnauthorized}
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {id.RefreshToken},
	}
	endpoint := g.tokenURL + "?key=" + url.QueryEscape(g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, gatewayErr("refresh token", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.hc.Do(req)
	if err != nil {
		return nil, gatewayErr("refresh token", err)
	}
	defer resp.Body.Close()
	if err := googleapi.CheckResponse(resp); err != nil {
		err = gatewayErr("refresh token", err)
		if errors.Is(err, domain.ErrTokenExpired) {
			// The refresh token itself is stale; only a new sign-in helps.
			return nil, &domain.GatewayError{Msg: "requires recent login", Kind: domain.ErrUnauthorized}
		}
		return nil, err
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, gatewayErr("refresh token", err)
	}
	if body.UserID != "" && body.UserID != id.UserID {
		return nil, fmt.Errorf("refresh token: user mismatch: %w", domain.ErrUnauthorized)
	}
	seconds, _ := strconv.ParseInt(body.ExpiresIn, 10, 64)
	fresh := *id
	fresh.IDToken = body.IDToken
	if body.RefreshToken != "" {
		fresh.RefreshToken = body.RefreshToken
	}
	fresh.TokenExpiry = g.expiry(seconds)
	return &fresh, nil
}

// providerMessages rewrites provider error codes into the phrasing the
// session layer's formatter recognises.
var providerMessages = []struct {
	prefix string
	msg    string
	kind   error
}{
	{"EMAIL_EXISTS", "email already in use", domain.ErrConflict},
	{"WEAK_PASSWORD", "weak password: password should be at least 6 characters", domain.ErrInvalidInput},
	{"INVALID_EMAIL", "invalid email", domain.ErrInvalidInput},
	{"INVALID_PASSWORD", "incorrect email or password", domain.ErrUnauthorized},
	{"EMAIL_NOT_FOUND", "incorrect email or password", domain.ErrUnauthorized},
	{"INVALID_LOGIN_CREDENTIALS", "incorrect email or password", domain.ErrUnauthorized},
	{"USER_DISABLED", "this account has been disabled", domain.ErrForbidden},
	{"TOO_MANY_ATTEMPTS_TRY_LATER", "too many attempts, try again later", nil},
	{"CREDENTIAL_TOO_OLD_LOGIN_AGAIN", "requires recent login", domain.ErrUnauthorized},
	{"TOKEN_EXPIRED", "requires recent login", domain.ErrTokenExpired},
	{"INVALID_ID_TOKEN", "requires recent login", domain.ErrTokenExpired},
	{"INVALID_REFRESH_TOKEN", "requires recent login", domain.ErrUnauthorized},
	{"USER_NOT_FOUND", "user not found", domain.ErrNotFound},
}

func gatewayErr(op string, err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return &domain.GatewayError{Msg: fmt.Sprintf("network error: %s failed: %v", op, err)}
	}
	for _, pm := range providerMessages {
		if strings.HasPrefix(gerr.Message, pm.prefix) {
			return &domain.GatewayError{Msg: pm.msg, Kind: pm.kind}
		}
	}
	if gerr.Message == "" {
		return &domain.GatewayError{Msg: fmt.Sprintf("%s failed with status %d", op, gerr.Code)}
	}
	return &domain.GatewayError{Msg: gerr.Message}
}
