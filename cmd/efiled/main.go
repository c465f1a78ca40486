// Command efiled runs the reference e-filing portal API.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"efiling.org/internal/auth"
	"efiling.org/internal/blob"
	"efiling.org/internal/config"
	"efiling.org/internal/httpapi"
	"efiling.org/internal/obs"
	"efiling.org/internal/store"
	"efiling.org/internal/store/sqlstore"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	var (
		configPath = flag.String("config", "efiled.yaml", "Path to YAML config")
		envFile    = flag.String("env-file", ".env", "Path to .env file")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		obs.Logger().Fatal("load config", zap.Error(err))
	}
	logger := obs.NewLogger(cfg.LogLevel)
	obs.SetLogger(logger)
	defer func() { _ = logger.Sync() }()

	if err := cfg.ValidateServer(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		cancel()
		logger.Fatal("open store", zap.Error(err))
	}
	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		cancel()
		logger.Fatal("open blob store", zap.Error(err))
	}
	issuer, err := auth.NewIssuer(cfg.Server.AuthSecret, auth.WithTTL(cfg.TokenTTL()))
	if err != nil {
		cancel()
		logger.Fatal("token issuer", zap.Error(err))
	}
	if cfg.Server.BootstrapAdminNSTIN != "" {
		created, err := httpapi.EnsureAdmin(ctx, st, httpapi.AdminSeed{
			NSTIN:    cfg.Server.BootstrapAdminNSTIN,
			Password: cfg.Server.BootstrapAdminPassword,
			Name:     cfg.Server.BootstrapAdminName,
			Email:    cfg.Server.BootstrapAdminEmail,
		}, time.Now())
		if err != nil {
			cancel()
			logger.Fatal("bootstrap admin", zap.Error(err))
		}
		if created {
			logger.Info("bootstrap admin created", zap.String("nstin", cfg.Server.BootstrapAdminNSTIN))
		}
	}
	cancel()

	api := httpapi.New(st, blobs, issuer,
		httpapi.WithLogger(logger),
		httpapi.WithVersion(version),
		httpapi.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
		httpapi.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		httpapi.WithCORSOrigins(cfg.Server.CORSOrigins),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       60 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting efiled",
		zap.String("version", version),
		zap.String("addr", srv.Addr),
		zap.String("blob_backend", cfg.Server.BlobBackend))

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	if err := st.Close(); err != nil {
		logger.Warn("close store", zap.Error(err))
	}
	logger.Info("stopped")
}

// openStore uses the in-memory store when no database is configured.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	if cfg.Server.DatabaseURL == "" {
		logger.Warn("no database configured, data will not survive a restart")
		return store.NewMemory(), nil
	}
	st, err := sqlstore.Open(ctx, cfg.Server.DatabaseURL)
	if err != nil {
		return nil, err
	}
	applied, err := st.Migrate(ctx)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	logger.Info("database ready",
		zap.String("dialect", string(st.Dialect())),
		zap.Strings("migrations_applied", applied))
	return st, nil
}

func openBlobs(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	if cfg.Server.BlobBackend == config.BlobS3 {
		return blob.NewS3(ctx, blob.S3Config{
			Bucket:   cfg.Server.S3Bucket,
			Region:   cfg.Server.S3Region,
			Prefix:   cfg.Server.S3Prefix,
			Endpoint: cfg.Server.S3Endpoint,
		})
	}
	return blob.NewDisk(cfg.Server.BlobDir)
}
