// Package app wires every component of the orchestrator together: config,
// infrastructure (Postgres, Redis), the domain services (production,
// workflow, quota, policy, export, collaboration), and the HTTP surface.
// Run dispatches on mode (api vs worker) after a connect-then-migrate-then-
// serve ordering.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/dramaforge/internal/audit"
	"github.com/wisbric/dramaforge/internal/auth"
	"github.com/wisbric/dramaforge/internal/config"
	"github.com/wisbric/dramaforge/internal/httpserver"
	"github.com/wisbric/dramaforge/internal/platform"
	"github.com/wisbric/dramaforge/internal/stageworkers"
	"github.com/wisbric/dramaforge/internal/telemetry"
	"github.com/wisbric/dramaforge/pkg/artifact"
	"github.com/wisbric/dramaforge/pkg/collaboration"
	"github.com/wisbric/dramaforge/pkg/export"
	"github.com/wisbric/dramaforge/pkg/notify"
	"github.com/wisbric/dramaforge/pkg/policy"
	"github.com/wisbric/dramaforge/pkg/production"
	"github.com/wisbric/dramaforge/pkg/stage"
	"github.com/wisbric/dramaforge/pkg/tenant"
	"github.com/wisbric/dramaforge/pkg/versionhistory"
	"github.com/wisbric/dramaforge/pkg/workflow"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the appropriate mode (api or worker).
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting dramaforge",
		"mode", cfg.Mode,
		"listen", cfg.ListenAddr(),
	)

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg)
	case "worker":
		return runWorker(ctx, cfg, logger, db)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func runAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	// Session manager.
	sessionSecret := cfg.SessionSecret
	if sessionSecret == "" {
		sessionSecret = auth.GenerateDevSecret()
		logger.Info("session: using auto-generated dev secret (set DRAMAFORGE_SESSION_SECRET in production)")
	}
	sessionMaxAge, err := time.ParseDuration(cfg.SessionMaxAge)
	if err != nil {
		return fmt.Errorf("parsing session max age %q: %w", cfg.SessionMaxAge, err)
	}
	sessionMgr, err := auth.NewSessionManager(sessionSecret, sessionMaxAge)
	if err != nil {
		return fmt.Errorf("creating session manager: %w", err)
	}

	// OIDC authenticator (optional — nil if not configured).
	var oidcAuth *auth.OIDCAuthenticator
	if cfg.OIDCIssuerURL != "" && cfg.OIDCClientID != "" {
		oidcAuth, err = auth.NewOIDCAuthenticator(ctx, cfg.OIDCIssuerURL, cfg.OIDCClientID)
		if err != nil {
			return fmt.Errorf("initializing OIDC authenticator: %w", err)
		}
		logger.Info("OIDC authentication enabled", "issuer", cfg.OIDCIssuerURL)
	} else {
		logger.Info("OIDC authentication disabled (OIDC_ISSUER_URL not set)")
	}

	// Audit log writer (async, buffered).
	auditWriter := audit.NewWriter(db, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	// Artifact Store: local filesystem or S3-compatible backend.
	artifactStore, err := newArtifactStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing artifact store: %w", err)
	}

	// Domain stores.
	tenants := tenant.NewStore(db)
	productions := production.NewStore(db)
	collaborators := collaboration.NewStore(db)

	// Stage Registry: six stage workers, the last four of
	// which are thin adapters in front of opaque AI models.
	registry, err := stage.NewRegistry(map[stage.ID]stage.Worker{
		stage.ScriptParse:    stageworkers.NewScriptParser(),
		stage.CharacterModel: stageworkers.NewCharacterModeler(),
		stage.Storyboard:     stageworkers.NewStoryboardGenerator(artifactStore),
		stage.LipSync:        stageworkers.NewLipSyncSynthesizer(),
		stage.SoundMatch:     stageworkers.NewSoundMatcher(),
		stage.Render:         stageworkers.NewVideoRenderer(artifactStore),
	})
	if err != nil {
		return fmt.Errorf("building stage registry: %w", err)
	}

	// Core engines.
	gate := policy.NewGate(collaborators)
	engine := workflow.NewEngine(db, db, registry, logger)
	engine.SetRecorder(versionhistory.NewRecorder(db, logger))
	engine.SetPublisher(rdb)
	exportCoord := export.NewCoordinator(tenants, productions, gate, engine)
	productionSvc := production.NewService(db, logger)

	// Outbound notifications (optional — disabled without SLACK_BOT_TOKEN).
	notifier := notify.NewNotifier(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)
	if notifier.IsEnabled() {
		logger.Info("slack notifications enabled", "channel", cfg.SlackAlertChannel)
	} else {
		logger.Info("slack notifications disabled (SLACK_BOT_TOKEN not set)")
	}

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg, sessionMgr, oidcAuth)

	// --- Public, pre-authentication routes ---
	tenantHandler := tenant.NewHandler(tenants, sessionMgr, logger)
	srv.Router.Mount("/auth", tenantHandler.Routes())

	// --- Authenticated domain routes ---
	srv.APIRouter.Get("/me", tenantHandler.HandleMe)

	productionHandler := production.NewHandler(productionSvc, engine, gate, notifier, auditWriter, logger)
	srv.APIRouter.Mount("/productions", productionHandler.Routes())

	exportHandler := export.NewHandler(exportCoord, notifier, auditWriter, logger)
	srv.APIRouter.Route("/productions/{id}/export", func(r chi.Router) {
		r.Mount("/", exportHandler.Routes())
	})

	collabHandler := collaboration.NewHandler(collaborators, productions, tenants, gate, db, notifier, auditWriter, logger)
	srv.APIRouter.Route("/productions/{id}", func(r chi.Router) {
		r.Mount("/", collabHandler.ProductionRoutes())
	})
	srv.APIRouter.Mount("/invitations", collabHandler.GlobalRoutes())

	auditHandler := audit.NewHandler(db, logger)
	srv.APIRouter.Mount("/audit-log", auditHandler.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool) error {
	logger.Info("worker started")

	retentionDays := cfg.VersionHistoryRetentionDays
	if retentionDays <= 0 {
		retentionDays = 30
	}
	purgeInterval, err := time.ParseDuration(cfg.VersionPurgeInterval)
	if err != nil {
		return fmt.Errorf("parsing version purge interval %q: %w", cfg.VersionPurgeInterval, err)
	}

	purger := versionhistory.NewPurger(db, time.Duration(retentionDays)*24*time.Hour, logger)
	purger.Run(ctx, purgeInterval)
	return nil
}

// newArtifactStore selects the configured Artifact Store backend.
func newArtifactStore(ctx context.Context, cfg *config.Config) (artifact.Store, error) {
	switch cfg.StorageBackend {
	case "s3":
		return artifact.NewS3Store(ctx, artifact.S3Config{
			Endpoint: cfg.S3Endpoint,
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Key:      cfg.S3AccessKey,
			Secret:   cfg.S3SecretKey,
		})
	case "local", "":
		return artifact.NewLocalStore(cfg.StorageLocalDir)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.StorageBackend)
	}
}
