package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource/firebird"
	_ "github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource/postgres"
	_ "github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource/sqlite"
	"github.com/ekaya-inc/ekaya-intake/pkg/audit"
	"github.com/ekaya-inc/ekaya-intake/pkg/auth"
	"github.com/ekaya-inc/ekaya-intake/pkg/config"
	"github.com/ekaya-inc/ekaya-intake/pkg/crypto"
	"github.com/ekaya-inc/ekaya-intake/pkg/handlers"
	"github.com/ekaya-inc/ekaya-intake/pkg/logging"
	"github.com/ekaya-inc/ekaya-intake/pkg/metrics"
	"github.com/ekaya-inc/ekaya-intake/pkg/middleware"
	"github.com/ekaya-inc/ekaya-intake/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	var box *crypto.SecretBox
	if cfg.CredentialsKey != "" {
		b, err := crypto.NewSecretBox(cfg.CredentialsKey)
		if err != nil {
			return fmt.Errorf("credentials key: %w", err)
		}
		box = b
	}

	profiles, err := config.LoadProfiles(cfg.ProfilesPath, box)
	if err != nil {
		return err
	}
	if cfg.SessionSecret == "" {
		return errors.New("SESSION_SECRET is required")
	}

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Strings("profiles", profiles.Names()),
		zap.Bool("dry_run", cfg.DryRun()),
		zap.Duration("choice_timeout", cfg.Delivery.ChoiceTimeout),
		zap.Int("max_candidates", cfg.Resolver.MaxCandidates),
		zap.Int("connection_ttl_minutes", cfg.Connections.TTLMinutes),
	)
	if !cfg.DryRun() {
		logger.Warn("Open delivery writes are ENABLED; pushes persist to the accounting database")
	}

	connMgr := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{
		TTLMinutes:               cfg.Connections.TTLMinutes,
		MaxConnectionsPerProfile: cfg.Connections.MaxPerProfile,
		ConnectTimeout:           cfg.Connections.ConnectTimeout,
	}, logger.Named("connections"))
	defer connMgr.Close()

	m := metrics.New()
	factory := datasource.NewDatasourceAdapterFactory(connMgr)
	validator := services.NewCredentialValidator(m, logger)
	resolver := services.NewItemResolver(services.ResolverOptions{
		MaxCandidates:      cfg.Resolver.MaxCandidates,
		NameMinScore:       cfg.Resolver.NameMinScore,
		NamePrefilterLimit: cfg.Resolver.NamePrefilterLimit,
	}, m, logger)
	writer := services.NewDeliveryWriter(resolver, services.DeliveryOptions{
		DryRun:        cfg.DryRun(),
		ChoiceTimeout: cfg.Delivery.ChoiceTimeout,
		MaxCandidates: cfg.Resolver.MaxCandidates,
	}, m, logger)
	sessionService := services.NewSessionService(profiles, factory, validator, resolver, writer, m, logger)
	defer func() {
		if err := sessionService.Close(); err != nil {
			logger.Warn("Closing sessions failed", zap.Error(err))
		}
	}()
	diagnostics := services.NewDiagnosticsService(factory, validator, logger)

	secure := cfg.TLSCertPath != ""
	store := auth.NewSessionStore(cfg.SessionSecret, secure)
	authMiddleware := auth.NewMiddleware(sessionService, store, logger)
	auditor := audit.NewSecurityAuditor(logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, connMgr, logger).RegisterRoutes(mux)
	handlers.NewProfilesHandler(profiles, logger).RegisterRoutes(mux)
	handlers.NewSessionsHandler(sessionService, store, auditor, cfg.DryRun(), logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewIntakeHandler(sessionService, auditor, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewDiagnosticsHandler(profiles, diagnostics, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", m.Handler())

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-intake",
			zap.String("addr", server.Addr),
			zap.Bool("tls", secure),
		)
		var err error
		if secure {
			err = server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = server.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
