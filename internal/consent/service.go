package consent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tessera/internal/platform/metrics"
	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
	"tessera/pkg/platform/audit"
	"tessera/pkg/platform/sentinel"
	"tessera/pkg/requestcontext"
)

// Service is the consent ledger: the gate for every downstream research
// operation. Every mutation writes exactly one audit entry atomically with
// the state change; the ledger never deletes, only transitions.
type Service struct {
	store     Store
	tx        Tx
	languages *LanguageRegistry
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService constructs the consent ledger over a store and its transactional
// boundary.
func NewService(store Store, tx Tx, languages *LanguageRegistry, opts ...Option) *Service {
	s := &Service{store: store, tx: tx, languages: languages, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Languages exposes the live disclosure registry (read-mostly; the handler
// uses it to serve current consent text).
func (s *Service) Languages() *LanguageRegistry { return s.languages }

// Present records that the scope's disclosure was shown to the user. First
// presentation creates a pending record stamped with the current language
// version; later presentations return the existing record unchanged.
func (s *Service) Present(ctx context.Context, userID id.UserID, scope id.ConsentScope, studyID id.StudyID) (*Consent, error) {
	var result *Consent
	err := s.tx.RunInTx(ctx, userID, func(store Store) error {
		existing, err := store.Get(ctx, userID, scope)
		if err == nil {
			result = existing
			return nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}

		now := time.Now()
		lang := s.languages.Current(scope)
		record := &Consent{
			UserID:       userID,
			Scope:        scope,
			Status:       StatusPending,
			Version:      lang.Version,
			LanguageHash: lang.Hash,
			StudyID:      studyID,
			PresentedAt:  now,
			UpdatedAt:    now,
		}
		if err := store.Save(ctx, record); err != nil {
			return err
		}
		if err := store.AppendAudit(ctx, s.auditEvent(ctx, record, audit.ActionConsentPresented, StatusNotAsked)); err != nil {
			return err
		}
		result = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Grant transitions the scope to granted, stamping the current language
// version and hash. expiresInDays of zero means no expiry. Granting a
// declined scope is an invariant violation; re-grant after withdrawal is the
// one allowed reversal.
func (s *Service) Grant(ctx context.Context, userID id.UserID, scope id.ConsentScope, studyID id.StudyID, expiresInDays int) (*Consent, error) {
	var result *Consent
	err := s.tx.RunInTx(ctx, userID, func(store Store) error {
		record, prev, err := s.loadOrInit(ctx, store, userID, scope, studyID)
		if err != nil {
			return err
		}
		if !canTransition(prev, StatusGranted) {
			return dErrors.New(dErrors.CodeConflict, "consent cannot be granted from status "+string(prev))
		}

		now := time.Now()
		lang := s.languages.Current(scope)
		record.Status = StatusGranted
		record.Version = lang.Version
		record.LanguageHash = lang.Hash
		record.GrantedAt = &now
		record.WithdrawnAt = nil
		record.ExpiresAt = nil
		if expiresInDays > 0 {
			expiry := now.AddDate(0, 0, expiresInDays)
			record.ExpiresAt = &expiry
		}
		record.UpdatedAt = now
		if !studyID.IsNil() {
			record.StudyID = studyID
		}

		if err := store.Save(ctx, record); err != nil {
			return err
		}
		if err := store.AppendAudit(ctx, s.auditEvent(ctx, record, audit.ActionConsentGranted, prev)); err != nil {
			return err
		}
		result = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncConsentTransition(scope.String(), string(audit.ActionConsentGranted))
	return result, nil
}

// Decline records an explicit refusal. Only reachable before a grant; a
// granted scope must be withdrawn instead.
func (s *Service) Decline(ctx context.Context, userID id.UserID, scope id.ConsentScope) (*Consent, error) {
	var result *Consent
	err := s.tx.RunInTx(ctx, userID, func(store Store) error {
		record, prev, err := s.loadOrInit(ctx, store, userID, scope, id.StudyID{})
		if err != nil {
			return err
		}
		if prev == StatusDeclined {
			result = record
			return nil
		}
		if !canTransition(prev, StatusDeclined) {
			return dErrors.New(dErrors.CodeConflict, "consent cannot be declined from status "+string(prev))
		}

		record.Status = StatusDeclined
		record.UpdatedAt = time.Now()
		if err := store.Save(ctx, record); err != nil {
			return err
		}
		if err := store.AppendAudit(ctx, s.auditEvent(ctx, record, audit.ActionConsentDeclined, prev)); err != nil {
			return err
		}
		result = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncConsentTransition(scope.String(), string(audit.ActionConsentDeclined))
	return result, nil
}

// Withdraw revokes an active grant. Withdrawing a scope that was never
// granted is not an error: it returns the record unchanged (nil when absent)
// so callers can treat it as nothing-to-do.
func (s *Service) Withdraw(ctx context.Context, userID id.UserID, scope id.ConsentScope) (*Consent, error) {
	var result *Consent
	err := s.tx.RunInTx(ctx, userID, func(store Store) error {
		record, err := store.Get(ctx, userID, scope)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if record.Status != StatusGranted {
			result = record
			return nil
		}
		return s.withdrawLocked(ctx, store, record, audit.ActionConsentWithdrawn, &result)
	})
	if err != nil {
		return nil, err
	}
	if result != nil && result.Status == StatusWithdrawn {
		s.metrics.IncConsentTransition(scope.String(), string(audit.ActionConsentWithdrawn))
	}
	return result, nil
}

// WithdrawAll revokes every active grant for the user and returns how many
// scopes were withdrawn. Each withdrawal carries its own audit entry.
func (s *Service) WithdrawAll(ctx context.Context, userID id.UserID) (int, error) {
	withdrawn := 0
	err := s.tx.RunInTx(ctx, userID, func(store Store) error {
		records, err := store.ListByUser(ctx, userID)
		if err != nil {
			return err
		}
		for _, record := range records {
			if record.Status != StatusGranted {
				continue
			}
			var out *Consent
			if err := s.withdrawLocked(ctx, store, record, audit.ActionConsentWithdrawn, &out); err != nil {
				return err
			}
			withdrawn++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return withdrawn, nil
}

// Renew extends a grant by additionalDays from max(now, current expiry), so
// already-expired time is never double-counted. Only granted records can be
// renewed; a grant without expiry gets one.
func (s *Service) Renew(ctx context.Context, userID id.UserID, scope id.ConsentScope, additionalDays int) (*Consent, error) {
	if additionalDays <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "additional days must be positive")
	}
	var result *Consent
	err := s.tx.RunInTx(ctx, userID, func(store Store) error {
		record, err := store.Get(ctx, userID, scope)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "no consent record to renew")
		}
		if err != nil {
			return err
		}
		if record.Status != StatusGranted {
			return dErrors.New(dErrors.CodeConflict, "only granted consent can be renewed")
		}

		now := time.Now()
		base := now
		if record.ExpiresAt != nil && record.ExpiresAt.After(now) {
			base = *record.ExpiresAt
		}
		expiry := base.AddDate(0, 0, additionalDays)
		record.ExpiresAt = &expiry
		record.UpdatedAt = now

		if err := store.Save(ctx, record); err != nil {
			return err
		}
		if err := store.AppendAudit(ctx, s.auditEvent(ctx, record, audit.ActionConsentRenewed, StatusGranted)); err != nil {
			return err
		}
		result = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncConsentTransition(scope.String(), string(audit.ActionConsentRenewed))
	return result, nil
}

// HasActiveConsent reports whether the scope authorizes processing right now:
// false when no record exists, status is not granted, or the expiry has
// passed.
func (s *Service) HasActiveConsent(ctx context.Context, userID id.UserID, scope id.ConsentScope) (bool, error) {
	record, err := s.store.Get(ctx, userID, scope)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return record.ActiveAt(time.Now()), nil
}

// Status returns the current status for reporting; absent records read as
// not_asked.
func (s *Service) Status(ctx context.Context, userID id.UserID, scope id.ConsentScope) (Status, error) {
	record, err := s.store.Get(ctx, userID, scope)
	if errors.Is(err, sentinel.ErrNotFound) {
		return StatusNotAsked, nil
	}
	if err != nil {
		return "", err
	}
	return record.Status, nil
}

// ValidateForExport partitions the required scopes into granted, missing, and
// expired. The result is valid only when missing and expired are both empty.
// The check itself is recorded on the governance trail, allow or deny alike.
func (s *Service) ValidateForExport(ctx context.Context, userID id.UserID, requiredScopes []id.ConsentScope) (*ExportValidation, error) {
	now := time.Now()
	validation := &ExportValidation{}
	for _, scope := range requiredScopes {
		record, err := s.store.Get(ctx, userID, scope)
		if errors.Is(err, sentinel.ErrNotFound) {
			validation.Missing = append(validation.Missing, scope)
			continue
		}
		if err != nil {
			return nil, err
		}
		switch {
		case record.ActiveAt(now):
			validation.Granted = append(validation.Granted, scope)
		case record.Status == StatusGranted:
			// Stored as granted but past expiry: not active until
			// ProcessExpired normalizes it.
			validation.Expired = append(validation.Expired, scope)
		default:
			validation.Missing = append(validation.Missing, scope)
		}
	}

	decision := "valid"
	if !validation.Valid() {
		decision = "invalid"
	}
	event := audit.UserEvent(userID, audit.ActionExportValidated)
	event.Decision = decision
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.store.AppendAudit(ctx, event); err != nil {
		return nil, err
	}
	return validation, nil
}

// ProcessExpired sweeps granted-but-expired records into withdrawn with an
// expired audit action. Idempotent: expired records already transitioned are
// skipped, so it is safe on any cadence and concurrently with user-triggered
// mutations.
func (s *Service) ProcessExpired(ctx context.Context) (int, error) {
	expired, err := s.store.ListExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, stale := range expired {
		err := s.tx.RunInTx(ctx, stale.UserID, func(store Store) error {
			record, err := store.Get(ctx, stale.UserID, stale.Scope)
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			// Re-check under the lock: a concurrent withdraw or renew wins.
			if record.Status != StatusGranted || record.ExpiresAt == nil || record.ExpiresAt.After(time.Now()) {
				return nil
			}
			var out *Consent
			if err := s.withdrawLocked(ctx, store, record, audit.ActionConsentExpired, &out); err != nil {
				return err
			}
			processed++
			return nil
		})
		if err != nil {
			return processed, err
		}
	}
	if processed > 0 {
		s.logger.InfoContext(ctx, "expired consents processed", "count", processed)
	}
	return processed, nil
}

// StaleLanguage lists granted scopes whose pinned disclosure hash no longer
// matches the live text, so the app can re-present consent after a wording
// change.
func (s *Service) StaleLanguage(ctx context.Context, userID id.UserID) ([]id.ConsentScope, error) {
	records, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var stale []id.ConsentScope
	for _, record := range records {
		if record.Status != StatusGranted {
			continue
		}
		if record.LanguageHash != s.languages.Current(record.Scope).Hash {
			stale = append(stale, record.Scope)
		}
	}
	return stale, nil
}

// ListByUser returns the user's full ledger for reporting.
func (s *Service) ListByUser(ctx context.Context, userID id.UserID) ([]*Consent, error) {
	return s.store.ListByUser(ctx, userID)
}

// loadOrInit returns the existing record plus its status, or a fresh
// uninitialized record behaving as not_asked.
func (s *Service) loadOrInit(ctx context.Context, store Store, userID id.UserID, scope id.ConsentScope, studyID id.StudyID) (*Consent, Status, error) {
	record, err := store.Get(ctx, userID, scope)
	if err == nil {
		return record, record.Status, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, "", err
	}
	now := time.Now()
	return &Consent{
		UserID:      userID,
		Scope:       scope,
		Status:      StatusNotAsked,
		StudyID:     studyID,
		PresentedAt: now,
		UpdatedAt:   now,
	}, StatusNotAsked, nil
}

// withdrawLocked transitions a granted record to withdrawn under the caller's
// tx, emitting the given audit action (consent_withdrawn or consent_expired).
func (s *Service) withdrawLocked(ctx context.Context, store Store, record *Consent, action audit.Action, out **Consent) error {
	now := time.Now()
	prev := record.Status
	record.Status = StatusWithdrawn
	record.WithdrawnAt = &now
	record.UpdatedAt = now
	if err := store.Save(ctx, record); err != nil {
		return err
	}
	if err := store.AppendAudit(ctx, s.auditEvent(ctx, record, action, prev)); err != nil {
		return err
	}
	*out = record
	return nil
}

// auditEvent builds the single trail entry accompanying a consent mutation.
func (s *Service) auditEvent(ctx context.Context, record *Consent, action audit.Action, prev Status) audit.Event {
	event := audit.UserEvent(record.UserID, action)
	event.Scope = record.Scope.String()
	event.PreviousStatus = string(prev)
	event.NewStatus = string(record.Status)
	event.ConsentVersion = record.Version
	if !record.StudyID.IsNil() {
		event.StudyID = record.StudyID.String()
	}
	event.RequestID = requestcontext.RequestID(ctx)
	event.ActorID = requestcontext.Actor(ctx)
	return event
}
