package domain

import "time"

// Identity is the credential provider's view of an authenticated account.
type Identity struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	DisplayName   string `json:"display_name,omitempty"`
	IDToken       string `json:"id_token,omitempty"`
	RefreshToken  string `json:"refresh_token,omitempty"`
	// TokenExpiry is when IDToken stops being accepted. Zero means unknown.
	TokenExpiry time.Time `json:"token_expiry,omitempty"`
}

// Session is the server-side record behind a bearer token.
type Session struct {
	SessionID  string    `json:"id"`
	DeviceID   string    `json:"device_id"`
	RememberMe bool      `json:"remember_me"`
	Identity   *Identity `json:"identity,omitempty"`
	CreatedAt  time.Time `json:"created"`
	UpdatedAt  time.Time `json:"updated"`
}
