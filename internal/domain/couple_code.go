package domain

import (
	"errors"
	"time"
)

// CoupleCode is a single-use 6-digit pairing token. PK: code.
// ExpiresAt is a Unix timestamp used as DynamoDB TTL; the sweeper is the
// authoritative expiry, TTL only reclaims storage.
type CoupleCode struct {
	Code      string `json:"code" dynamodbav:"code"`
	UserID    string `json:"user_id" dynamodbav:"user_id"`
	CreatedAt int64  `json:"created_at" dynamodbav:"created_at"` // epoch millis
	ExpiresAt int64  `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix seconds)
}

// Expired reports whether the code is older than ttl at now.
func (c *CoupleCode) Expired(now time.Time, ttl time.Duration) bool {
	return now.UnixMilli()-c.CreatedAt > ttl.Milliseconds()
}

// LinkResult classifies the outcome of consuming a couple code.
type LinkResult string

const (
	LinkLinked               LinkResult = "linked"
	LinkAlreadyLinked        LinkResult = "already_linked"
	LinkInvalidOrSelfCode    LinkResult = "invalid_or_self_code"
	LinkPartnerAlreadyLinked LinkResult = "partner_already_linked"
	LinkInvalidCode          LinkResult = "invalid_code"
	LinkFailed               LinkResult = "failed"
)

// LinkResultOf maps the error returned by a link attempt to its result.
func LinkResultOf(err error) LinkResult {
	switch {
	case err == nil:
		return LinkLinked
	case errors.Is(err, ErrAlreadyLinked):
		return LinkAlreadyLinked
	case errors.Is(err, ErrInvalidOrSelfCode):
		return LinkInvalidOrSelfCode
	case errors.Is(err, ErrPartnerAlreadyLinked):
		return LinkPartnerAlreadyLinked
	case errors.Is(err, ErrInvalidCode):
		return LinkInvalidCode
	default:
		return LinkFailed
	}
}
