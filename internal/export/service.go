package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tessera/internal/cohort"
	"tessera/internal/partnership"
	"tessera/internal/platform/metrics"
	"tessera/internal/quality"
	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
	"tessera/pkg/platform/audit"
	"tessera/pkg/platform/sentinel"
	"tessera/pkg/requestcontext"
)

// exportedElements are the data elements every package carries; the
// agreement must cover all of them for generation to proceed.
var exportedElements = []string{"demographics", "signal_aggregates", "quality_scores"}

// qualityJoinWorkers bounds the parallel score lookups per generation.
const qualityJoinWorkers = 8

// CohortReader supplies the cohort and its membership.
type CohortReader interface {
	Get(ctx context.Context, cohortID id.CohortID) (*cohort.Cohort, error)
	Members(ctx context.Context, cohortID id.CohortID) ([]*cohort.Member, error)
}

// AccessValidator is the partnership gate checked before every generation.
type AccessValidator interface {
	ValidateDataAccess(ctx context.Context, agreementID id.AgreementID, elements []string, format string) (*partnership.AccessDecision, error)
}

// QualityReader joins current scores onto the dataset.
type QualityReader interface {
	Latest(ctx context.Context, participantID id.ParticipantID) (quality.Score, error)
}

// SourceReader lists the capture source types behind a participant's data,
// recorded in package metadata.
type SourceReader interface {
	SourceLabels(ctx context.Context, participantID id.ParticipantID) ([]string, error)
}

// Config selects what to generate.
type Config struct {
	CohortID    id.CohortID
	AgreementID id.AgreementID
	Format      Format
}

// Service generates export packages and tracks their access.
type Service struct {
	store   Store
	cohorts CohortReader
	access  AccessValidator
	quality QualityReader
	sources SourceReader
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
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

// WithSourceReader wires provenance source types into package metadata.
func WithSourceReader(r SourceReader) Option {
	return func(s *Service) { s.sources = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs the export packager.
func NewService(store Store, cohorts CohortReader, access AccessValidator, qualityReader QualityReader, opts ...Option) *Service {
	s := &Service{
		store:   store,
		cohorts: cohorts,
		access:  access,
		quality: qualityReader,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate builds one package: resolve the cohort, gate on the agreement,
// join quality scores, serialize, and record the content-hashed manifest.
// The serialized content is returned to the caller for delivery and never
// stored.
func (s *Service) Generate(ctx context.Context, cfg Config, generatedBy string, studyID id.StudyID, protocolVersion string) (*Package, []byte, error) {
	serializer, err := SerializerFor(cfg.Format)
	if err != nil {
		return nil, nil, err
	}

	c, err := s.cohorts.Get(ctx, cfg.CohortID)
	if err != nil {
		return nil, nil, err
	}
	members, err := s.cohorts.Members(ctx, cfg.CohortID)
	if err != nil {
		return nil, nil, err
	}
	if len(members) == 0 {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "cohort has no members to export")
	}

	decision, err := s.access.ValidateDataAccess(ctx, cfg.AgreementID, exportedElements, string(cfg.Format))
	if err != nil {
		return nil, nil, err
	}
	if !decision.Allowed {
		return nil, nil, dErrors.New(dErrors.CodeAccessDenied, "export denied: "+decision.Reason)
	}

	dataset, err := s.buildDataset(ctx, c, members)
	if err != nil {
		return nil, nil, err
	}

	content, err := serializer.Serialize(dataset)
	if err != nil {
		return nil, nil, fmt.Errorf("serialize %s export: %w", cfg.Format, err)
	}

	hash := sha256.Sum256(content)
	pkg := &Package{
		ID:              id.NewExportID(),
		CohortID:        cfg.CohortID,
		AgreementID:     cfg.AgreementID,
		Format:          cfg.Format,
		GeneratedAt:     dataset.GeneratedAt,
		GeneratedBy:     generatedBy,
		StudyID:         studyID,
		ProtocolVersion: protocolVersion,
		RecordCount:     len(dataset.Participants),
		FileManifest: []FileEntry{{
			Filename:    fmt.Sprintf("cohort-%s-%s.json", cfg.CohortID.String(), cfg.Format),
			ContentHash: hex.EncodeToString(hash[:]),
			RecordCount: len(dataset.Participants),
		}},
		Metadata:  s.buildMetadata(ctx, dataset),
		AccessLog: []AccessEntry{},
	}

	if err := s.store.Create(ctx, pkg); err != nil {
		return nil, nil, err
	}
	event := s.exportEvent(ctx, pkg, audit.ActionExportGenerated)
	if err := s.store.AppendAudit(ctx, event); err != nil {
		return nil, nil, err
	}
	s.metrics.IncExportGenerated(string(cfg.Format))
	s.logger.InfoContext(ctx, "export generated",
		"export_id", pkg.ID.String(),
		"cohort_id", cfg.CohortID.String(),
		"format", string(cfg.Format),
		"records", pkg.RecordCount)
	return pkg, content, nil
}

// buildDataset assembles the canonical shape, joining the latest quality
// score per participant in parallel. Participants without a stored score
// fall back to the score pinned on the member at enrollment.
func (s *Service) buildDataset(ctx context.Context, c *cohort.Cohort, members []*cohort.Member) (*Dataset, error) {
	records := make([]ParticipantRecord, len(members))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(qualityJoinWorkers)
	for i, member := range members {
		g.Go(func() error {
			record := ParticipantRecord{
				ParticipantID:          member.ParticipantID,
				AgeBand:                string(member.AgeBand),
				Region:                 string(member.Region),
				Context:                string(member.Context),
				SignalCount:            member.SignalCount,
				DaysActive:             member.DaysActive,
				FirstSignalAt:          member.FirstSignalAt,
				LastSignalAt:           member.LastSignalAt,
				HasInterventionMarkers: member.HasInterventionMarkers,
				Quality:                QualityDimensions{Overall: member.QualityScore},
			}
			score, err := s.quality.Latest(gctx, member.ParticipantID)
			if err == nil {
				record.Quality = QualityDimensions{
					Overall:      score.OverallScore,
					Completeness: score.Completeness,
					Consistency:  score.Consistency,
					Timeliness:   score.Timeliness,
					Continuity:   score.Continuity,
					Stability:    score.Stability,
				}
			} else if !errors.Is(err, sentinel.ErrNotFound) {
				return err
			}
			mu.Lock()
			records[i] = record
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Deterministic participant order regardless of store iteration.
	sort.Slice(records, func(i, j int) bool {
		return records[i].ParticipantID.String() < records[j].ParticipantID.String()
	})
	return &Dataset{
		CohortID:     c.ID,
		CohortName:   c.Name,
		StudyID:      c.StudyID,
		GeneratedAt:  s.now(),
		Participants: records,
	}, nil
}

func (s *Service) buildMetadata(ctx context.Context, dataset *Dataset) Metadata {
	meta := Metadata{DeidMethod: DeidentificationMethod}
	totalQuality := 0
	for i, p := range dataset.Participants {
		totalQuality += p.Quality.Overall
		if i == 0 || p.FirstSignalAt.Before(meta.DateRangeStart) {
			meta.DateRangeStart = p.FirstSignalAt
		}
		if i == 0 || p.LastSignalAt.After(meta.DateRangeEnd) {
			meta.DateRangeEnd = p.LastSignalAt
		}
	}
	if len(dataset.Participants) > 0 {
		meta.AvgQualityScore = float64(totalQuality) / float64(len(dataset.Participants))
	}
	if s.sources != nil {
		seen := make(map[string]bool)
		for _, p := range dataset.Participants {
			sources, err := s.sources.SourceLabels(ctx, p.ParticipantID)
			if err != nil {
				continue
			}
			for _, source := range sources {
				if !seen[source] {
					seen[source] = true
					meta.SourceTypes = append(meta.SourceTypes, source)
				}
			}
		}
		sort.Strings(meta.SourceTypes)
	}
	return meta
}

// RecordAccess appends one read to the package's access log and the trail.
func (s *Service) RecordAccess(ctx context.Context, exportID id.ExportID, accessedBy string) error {
	entry := AccessEntry{AccessedBy: accessedBy, AccessedAt: s.now()}
	if err := s.store.AppendAccess(ctx, exportID, entry); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "export package not found")
		}
		return err
	}
	event := audit.Event{
		Category:    audit.ActionExportAccessed.Category(),
		Timestamp:   entry.AccessedAt,
		SubjectType: audit.SubjectExport,
		Subject:     exportID.String(),
		Action:      string(audit.ActionExportAccessed),
		ActorID:     accessedBy,
		RequestID:   requestcontext.RequestID(ctx),
	}
	return s.store.AppendAudit(ctx, event)
}

// Get returns a package by ID.
func (s *Service) Get(ctx context.Context, exportID id.ExportID) (*Package, error) {
	pkg, err := s.store.Get(ctx, exportID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "export package not found")
	}
	if err != nil {
		return nil, err
	}
	return pkg, nil
}

// ListByCohort returns every package generated from a cohort.
func (s *Service) ListByCohort(ctx context.Context, cohortID id.CohortID) ([]*Package, error) {
	return s.store.ListByCohort(ctx, cohortID)
}

func (s *Service) exportEvent(ctx context.Context, pkg *Package, action audit.Action) audit.Event {
	event := audit.Event{
		Category:    action.Category(),
		Timestamp:   s.now(),
		SubjectType: audit.SubjectExport,
		Subject:     pkg.ID.String(),
		Action:      string(action),
		RequestID:   requestcontext.RequestID(ctx),
		ActorID:     requestcontext.Actor(ctx),
	}
	if !pkg.StudyID.IsNil() {
		event.StudyID = pkg.StudyID.String()
	}
	return event
}
