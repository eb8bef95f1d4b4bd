package domain

import "time"

// Event types published to the event stream.
const (
	EventCodeGenerated  = "couple.code_generated"
	EventLinked         = "couple.linked"
	EventUnlinked       = "couple.unlinked"
	EventCodesExpired   = "couple.codes_expired"
	EventAccountCreated = "account.created"
	EventAccountDeleted = "account.deleted"
)

type Event struct {
	EventID    string    `json:"id"`
	Type       string    `json:"type"`
	UserID     string    `json:"user_id,omitempty"`
	PartnerID  string    `json:"partner_id,omitempty"`
	Count      int       `json:"count,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
