package testutil

import (
	"log/slog"

	"github.com/google/uuid"

	id "tessera/pkg/domain"
)

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// NewUserID mints a random user ID for tests.
func NewUserID() id.UserID { return id.UserID(uuid.New()) }

// NewParticipantID mints a random participant ID for tests.
func NewParticipantID() id.ParticipantID { return id.NewParticipantID() }

// NewStudyID mints a random study ID for tests.
func NewStudyID() id.StudyID { return id.StudyID(uuid.New()) }
