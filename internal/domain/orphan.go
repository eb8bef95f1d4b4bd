package domain

import "time"

// Orphan kinds recorded when an identity and its profile fall out of step.
const (
	OrphanProfileMissing   = "profile_missing"   // account created, profile never written
	OrphanIdentityRetained = "identity_retained" // profile deleted, identity delete failed
)

// OrphanReport is written to the reconciliation ledger for later repair.
type OrphanReport struct {
	ReportID   string    `json:"id"`
	Kind       string    `json:"kind"`
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	Reason     string    `json:"reason"`
	DetectedAt time.Time `json:"detected_at"`
}
