// Package identity implements the one-way mapping from internal user
// identity to opaque participant IDs. It is a deliberately separate bounded
// context: the mapping store is the only place both identifiers coexist, no
// other package may read it, and nothing here can reverse a participant ID
// back to a user.
package identity

import (
	"time"

	id "tessera/pkg/domain"
)

// Mapping links a user to their research-facing participant ID. Created
// lazily on first cohort enrollment; exactly one per user; never exposed
// outside this package's service.
type Mapping struct {
	UserID        id.UserID
	ParticipantID id.ParticipantID
	CreatedAt     time.Time
}
