package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"portfolio/api/internal/app"
	"portfolio/api/internal/authpw"
	"portfolio/api/internal/cache"
	"portfolio/api/internal/config"
	"portfolio/api/internal/docsync"
	"portfolio/api/internal/email"
	"portfolio/api/internal/history"
	"portfolio/api/internal/media"
	"portfolio/api/internal/metrics"
	"portfolio/api/internal/store"
)

func main() {
	cfg := config.Load()
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger setup failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	parsed, err := zap.ParseAtomicLevel(level)
	if err == nil {
		zcfg.Level = parsed
	}
	return zcfg.Build()
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	db, err := store.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	dataStore := store.NewPostgresStore(db)
	listener := store.NewListener(cfg.DatabaseURL, dataStore, logger.Named("listener"))
	remote := store.NewRemote(dataStore, listener)

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	migrations := migrator{
		apply: func(ctx context.Context) error {
			if err := dataStore.Ping(ctx); err != nil {
				return err
			}
			return store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
		},
		timeout:    cfg.RemoteTimeout,
		minBackoff: time.Second,
		maxBackoff: time.Minute,
		logger:     logger.Named("migrate"),
	}
	if err := migrations.attempt(ctx); err != nil {
		logger.Warn("database unavailable at start-up, serving cached content", zap.Error(err))
		go migrations.retry(bgCtx)
	}

	localCache, closeCache, err := openCache(cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	m := metrics.New()
	docs := docsync.Open(remote, localCache, docsync.Options{
		CacheKey:      cfg.CacheKey,
		RemoteTimeout: cfg.RemoteTimeout,
		CacheTimeout:  cfg.CacheTimeout,
		Sink:          docsync.Sinks(eventLogger(logger.Named("docsync")), m.Sink),
	})

	hist, err := history.Open(cfg.HistoryDir)
	if err != nil {
		logger.Warn("revision history disabled", zap.Error(err))
	}

	admin, err := authpw.NewService(cfg.AdminEmail, cfg.AdminPasswordHash)
	if err != nil {
		return err
	}
	if !admin.Configured() {
		logger.Warn("ADMIN_EMAIL / ADMIN_PASSWORD_HASH not set, admin sign-in disabled")
	}

	var uploader *media.Uploader
	if cfg.MediaEnabled() {
		uploader, err = media.New(media.Config{
			Endpoint:  cfg.MediaEndpoint,
			AccessKey: cfg.MediaAccessKey,
			SecretKey: cfg.MediaSecretKey,
			Bucket:    cfg.MediaBucket,
			UseSSL:    cfg.MediaUseSSL,
			PublicURL: cfg.MediaPublicURL,
			MaxBytes:  cfg.MediaMaxBytes,
		})
		if err != nil {
			return err
		}
		bucketCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = uploader.EnsureBucket(bucketCtx)
		cancel()
		if err != nil {
			logger.Warn("media bucket check failed", zap.String("bucket", cfg.MediaBucket), zap.Error(err))
		}
	}

	mail := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !mail.IsConfigured() {
		logger.Info("SMTP not configured, contact form disabled")
	}

	service := app.New(cfg, app.Deps{
		Content:  docs,
		Database: dataStore,
		History:  hist,
		Media:    uploader,
		Mail:     mail,
		Admin:    admin,
		Metrics:  m,
		Logger:   logger.Named("http"),
	})

	go purgeRevokedTokens(bgCtx, dataStore, logger)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("site content API listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-serveErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	service.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	if err := docs.Flush(shutdownCtx); err != nil {
		logger.Warn("pending content writes not flushed", zap.Error(err))
	}
	docs.Close()
	return nil
}

// openCache prefers Redis when REDIS_URL is set and falls back to an
// embedded Badger cache, also when Redis cannot be reached.
func openCache(cfg config.Config, logger *zap.Logger) (docsync.LocalCache, func(), error) {
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL)
		if err == nil {
			logger.Info("using Redis content cache")
			return redisCache, func() { _ = redisCache.Close() }, nil
		}
		logger.Warn("Redis content cache unavailable, falling back to Badger", zap.Error(err))
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, nil, err
	}
	badgerCache, err := cache.OpenBadgerCache(cfg.CacheDir)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("using Badger content cache", zap.String("dir", cfg.CacheDir))
	return badgerCache, func() { _ = badgerCache.Close() }, nil
}

// eventLogger logs document store events: failures at warn, the rest at
// debug.
func eventLogger(logger *zap.Logger) docsync.Sink {
	return func(event docsync.Event) {
		fields := []zap.Field{
			zap.String("kind", string(event.Kind)),
			zap.String("source", string(event.Source)),
			zap.Duration("duration", event.Duration),
		}
		switch {
		case event.Err != nil:
			logger.Warn("content sync", append(fields, zap.Error(event.Err))...)
		case event.Kind == docsync.KindReady:
			logger.Info("content ready", fields...)
		default:
			logger.Debug("content sync", fields...)
		}
	}
}

func purgeRevokedTokens(ctx context.Context, dataStore *store.PostgresStore, logger *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			purged, err := dataStore.PurgeRevokedAccessTokens(ctx, now)
			if err != nil {
				logger.Warn("purge revoked tokens", zap.Error(err))
				continue
			}
			if purged > 0 {
				logger.Debug("purged revoked tokens", zap.Int64("count", purged))
			}
		}
	}
}
