package consent

import (
	"time"

	id "tessera/pkg/domain"
)

// Status is the lifecycle state of a consent record. Transitions are
// one-directional except re-grant after withdrawal; records are never
// deleted, only transitioned.
type Status string

const (
	StatusNotAsked  Status = "not_asked"
	StatusPending   Status = "pending"
	StatusGranted   Status = "granted"
	StatusDeclined  Status = "declined"
	StatusWithdrawn Status = "withdrawn"
)

// Consent captures a user's decision for a specific scope. Exactly one live
// record exists per (UserID, Scope); the ledger upserts, never appends
// duplicates.
type Consent struct {
	UserID       id.UserID
	Scope        id.ConsentScope
	Status       Status
	Version      int    // consent language version the user saw
	LanguageHash string // content hash pinning the exact disclosure text
	StudyID      id.StudyID
	PresentedAt  time.Time
	GrantedAt    *time.Time
	ExpiresAt    *time.Time
	WithdrawnAt  *time.Time
	UpdatedAt    time.Time
}

// ActiveAt reports whether the consent authorizes processing at the given
// instant. A granted record past its expiry is not active even before
// ProcessExpired normalizes it.
func (c *Consent) ActiveAt(now time.Time) bool {
	if c == nil || c.Status != StatusGranted {
		return false
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return false
	}
	return true
}

// canTransition is the single source of truth for the consent state machine.
// Absent records behave as StatusNotAsked.
func canTransition(from, to Status) bool {
	switch to {
	case StatusPending:
		return from == StatusNotAsked
	case StatusGranted:
		// Re-grant after withdrawal is the one allowed reversal. Granting an
		// already-granted scope re-stamps the current language version.
		return from == StatusNotAsked || from == StatusPending ||
			from == StatusWithdrawn || from == StatusGranted
	case StatusDeclined:
		return from == StatusNotAsked || from == StatusPending
	case StatusWithdrawn:
		return from == StatusGranted
	default:
		return false
	}
}

// ExportValidation partitions the scopes an export requires by the user's
// current consent state. Valid only when nothing is missing or expired.
type ExportValidation struct {
	Granted []id.ConsentScope
	Missing []id.ConsentScope
	Expired []id.ConsentScope
}

// Valid reports whether every required scope is actively consented.
func (v ExportValidation) Valid() bool {
	return len(v.Missing) == 0 && len(v.Expired) == 0
}
