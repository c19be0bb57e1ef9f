// Command server runs the research data governance service. main wires
// stores, services, and handlers; business logic lives in the internal
// packages. With no Postgres or Redis configured everything runs on the
// in-memory stores, which is the dev and test mode.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	audithandler "tessera/internal/audit/handler"
	"tessera/internal/cohort"
	cohorthandler "tessera/internal/cohort/handler"
	"tessera/internal/consent"
	consenthandler "tessera/internal/consent/handler"
	"tessera/internal/export"
	exporthandler "tessera/internal/export/handler"
	"tessera/internal/identity"
	"tessera/internal/partnership"
	partnershiphandler "tessera/internal/partnership/handler"
	"tessera/internal/platform/config"
	"tessera/internal/platform/httpserver"
	"tessera/internal/platform/logger"
	"tessera/internal/platform/metrics"
	"tessera/internal/platform/postgres"
	platformredis "tessera/internal/platform/redis"
	protocolhandler "tessera/internal/protocol/handler"
	"tessera/internal/provenance"
	provenancehandler "tessera/internal/provenance/handler"
	"tessera/internal/quality"
	qualityhandler "tessera/internal/quality/handler"
	"tessera/internal/signals/engagement"
	signalshandler "tessera/internal/signals/handler"
	"tessera/internal/signals/intervention"
	"tessera/internal/signals/sensor"
	httptransport "tessera/internal/transport/http"
	"tessera/pkg/platform/audit"
	auditmemory "tessera/pkg/platform/audit/store/memory"
	auditpostgres "tessera/pkg/platform/audit/store/postgres"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)
	m := metrics.New()

	db, err := postgres.Open(cfg.Postgres)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// A single in-memory trail backs every domain store when Postgres is
	// absent; with Postgres each store writes audit rows in its own
	// transaction and the trail reader queries the shared table.
	trail := auditmemory.NewInMemoryStore()
	var trailReader audit.Store = trail
	if db != nil {
		trailReader = auditpostgres.New(db)
	}

	// Consent ledger.
	languages := consent.NewLanguageRegistry()
	consentStore, consentTx := consentStores(db, trail)
	consentSvc := consent.NewService(consentStore, consentTx, languages,
		consent.WithLogger(log), consent.WithMetrics(m))

	// One-way identity mapping. The mapping lives in a separate backing
	// store from the research data.
	var identityStore identity.Store
	if redisClient != nil {
		identityStore = identity.NewRedisStore(redisClient.Client)
	} else {
		identityStore = identity.NewInMemoryStore()
	}
	identitySvc := identity.NewService(identityStore, identity.WithLogger(log))

	// Quality scoring.
	qualitySvc := quality.NewService(quality.NewInMemoryStore(), quality.WithMetrics(m))

	// Provenance tracking.
	tracker := provenance.NewTracker(provenance.NewInMemoryStore())

	// Cohorts.
	cohortStore, cohortTx := cohortStores(db, trail)
	cohortSvc := cohort.NewService(cohortStore, cohortTx, consentSvc, identitySvc,
		cohort.WithLogger(log), cohort.WithMetrics(m), cohort.WithQualityReader(qualitySvc))

	// Partnerships.
	partnershipStore, partnershipTx := partnershipStores(db, trail)
	partnershipSvc := partnership.NewService(partnershipStore, partnershipTx,
		partnership.WithLogger(log), partnership.WithMetrics(m))

	// Exports.
	exportStore := exportStores(db, trail)
	exportSvc := export.NewService(exportStore, cohortSvc, partnershipSvc, qualitySvc,
		export.WithLogger(log), export.WithMetrics(m), export.WithSourceReader(tracker))
	tokenSvc := export.NewTokenService(cfg.Export.TokenSigningKey, cfg.Export.TokenTTL)

	// Signal domains.
	engagementSvc := engagement.NewService(engagement.NewInMemoryStore(), consentSvc, identitySvc, log)
	interventionSvc := intervention.NewService(intervention.NewInMemoryStore(), consentSvc, identitySvc, log)
	sensorSvc := sensor.NewService(sensor.NewInMemoryStore(), consentSvc, identitySvc, log)

	router := httptransport.NewRouter(log,
		consenthandler.New(consentSvc, log),
		cohorthandler.New(cohortSvc, log),
		partnershiphandler.New(partnershipSvc, log),
		exporthandler.New(exportSvc, tokenSvc, partnershipSvc, cohortSvc, cfg.Export.TokenTTL, log),
		qualityhandler.New(qualitySvc, log),
		provenancehandler.New(tracker, log),
		signalshandler.New(engagementSvc, interventionSvc, sensorSvc, log),
		protocolhandler.New(log),
		audithandler.New(trailReader, log),
	)

	srv := httpserver.New(cfg.Server.Addr, router)
	go func() {
		log.Info("server starting", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func consentStores(db *sql.DB, trail audit.Store) (consent.Store, consent.Tx) {
	if db != nil {
		return consent.NewPostgresStore(db), consent.NewPostgresTx(db)
	}
	store := consent.NewInMemoryStore(trail)
	return store, consent.NewMemoryTx(store)
}

func cohortStores(db *sql.DB, trail audit.Store) (cohort.Store, cohort.Tx) {
	if db != nil {
		return cohort.NewPostgresStore(db), cohort.NewPostgresTx(db)
	}
	store := cohort.NewInMemoryStore(trail)
	return store, cohort.NewMemoryTx(store)
}

func partnershipStores(db *sql.DB, trail audit.Store) (partnership.Store, partnership.Tx) {
	if db != nil {
		return partnership.NewPostgresStore(db), partnership.NewPostgresTx(db)
	}
	store := partnership.NewInMemoryStore(trail)
	return store, partnership.NewMemoryTx(store)
}

func exportStores(db *sql.DB, trail audit.Store) export.Store {
	if db != nil {
		return export.NewPostgresStore(db)
	}
	return export.NewInMemoryStore(trail)
}
