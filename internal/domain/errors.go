package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	ErrInvalidInput     = errors.New("invalid input")
	ErrGateway          = errors.New("credential gateway error")
	ErrStore            = errors.New("record store error")
	ErrInvariant        = errors.New("invariant violation")
	ErrPermissionDenied = errors.New("permission denied")
)

// Pairing failures. Their Error text is shown to users as-is.
var (
	ErrAlreadyLinked        = &ruleError{msg: "You are already linked to a partner.", kind: ErrInvariant}
	ErrPartnerAlreadyLinked = &ruleError{msg: "This code's owner is already linked.", kind: ErrInvariant}
	ErrInvalidOrSelfCode    = &ruleError{msg: "Invalid or self code.", kind: ErrInvariant}
	ErrCodeCollision        = &ruleError{msg: "Code collision, try again.", kind: ErrInvariant}
	ErrNoPartner            = &ruleError{msg: "No partner to unlink.", kind: ErrInvariant}
	ErrInvalidCode          = &ruleError{msg: "Invalid or expired code.", kind: ErrNotFound}
	ErrProfileNotFound      = &ruleError{msg: "profile not found", kind: ErrNotFound}
)

// ErrTokenExpired marks a provider rejection of a stale ID token. A refresh
// token exchange can recover from it.
var ErrTokenExpired = &ruleError{msg: "id token expired", kind: ErrUnauthorized}

// ruleError is a user-facing message that also matches its category sentinel
// through errors.Is.
type ruleError struct {
	msg  string
	kind error
}

func (e *ruleError) Error() string { return e.msg }

func (e *ruleError) Is(target error) bool { return target == e.kind }

// GatewayError carries the credential provider's failure text for display.
// Kind, when set, classifies a provider rejection (bad credentials, existing
// account) alongside ErrGateway.
type GatewayError struct {
	Msg  string
	Kind error
}

func (e *GatewayError) Error() string { return e.Msg }

func (e *GatewayError) Unwrap() []error {
	if e.Kind == nil {
		return []error{ErrGateway}
	}
	return []error{ErrGateway, e.Kind}
}
