package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"wa-dashboard/internal/auth"
	"wa-dashboard/internal/cache"
	"wa-dashboard/internal/config"
	"wa-dashboard/internal/dashboard"
	"wa-dashboard/internal/httpserver"
	"wa-dashboard/internal/license"
	"wa-dashboard/internal/logging"
	"wa-dashboard/internal/metrics"
	"wa-dashboard/internal/payment"
	"wa-dashboard/internal/profile"
	"wa-dashboard/internal/repo"
	"wa-dashboard/internal/resource"
	"wa-dashboard/internal/storage"
	"wa-dashboard/internal/theme"
	"wa-dashboard/internal/wa"
	"wa-dashboard/migrations"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting wa-dashboard", "env", cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	repository, err := openRepository(ctx, cfg, logger, metricRegistry)
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	defer repository.Close()

	if err := repository.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrated", "driver", repository.Driver())

	// Redis is optional: without it lists are read through, sign-out only
	// clears the cookie and idempotency keys are ignored.
	var (
		listCache resource.ListCache
		revoker   auth.Revoker
		claimer   httpserver.Claimer
	)
	if cfg.Redis.Addr != "" {
		redisClient := cache.New(cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			UseTLS:   cfg.Redis.TLS,
		}, logger)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("failed closing redis", "error", err)
			}
		}()
		if err := redisClient.Ping(ctx); err != nil {
			logger.Warn("redis ping failed", "error", err)
		}
		listCache, revoker, claimer = redisClient, redisClient, redisClient
	} else {
		logger.Warn("redis not configured, caching disabled")
	}
	ttl := cfg.Redis.ListTTL

	coupons := resource.NewService[repo.Coupon](repository.Coupons(), listCache, ttl, resource.MatchCoupon(time.Now), logger)
	procedures := resource.NewService[repo.Procedure](repository.Procedures(), listCache, ttl, resource.MatchProcedure, logger)
	problems := resource.NewService[repo.Problem](repository.Problems(), listCache, ttl, resource.MatchProblem, logger)
	botInfo := &resource.BotInfo{
		Promos:   resource.NewService[repo.PromoCode](repository.PromoCodes(), listCache, ttl, nil, logger),
		Links:    resource.NewService[repo.UsefulLink](repository.UsefulLinks(), listCache, ttl, nil, logger),
		Examples: resource.NewService[repo.ConversationExample](repository.ConversationExamples(), listCache, ttl, nil, logger),
		Rules:    resource.NewService[repo.BotRule](repository.BotRules(), listCache, ttl, nil, logger),
	}

	aggregator, err := dashboard.New([]dashboard.Source{
		repository.Coupons(),
		repository.Procedures(),
		repository.Problems(),
		repository.PromoCodes(),
		repository.UsefulLinks(),
		repository.ConversationExamples(),
		repository.BotRules(),
		repository.Licenses(),
	}, cfg.Dashboard.Workers, logger, metricRegistry)
	if err != nil {
		return fmt.Errorf("init dashboard: %w", err)
	}
	defer aggregator.Close()

	gateway, closeGateway, err := openGateway(cfg, logger, metricRegistry)
	if err != nil {
		return fmt.Errorf("init whatsapp gateway: %w", err)
	}
	defer closeGateway()

	licenses := license.NewService(repository.Licenses(), repository, gateway, license.Options{
		OptimisticConnect: cfg.WhatsApp.OptimisticConnect,
		GatewayTimeout:    cfg.WhatsApp.Timeout,
	}, logger, metricRegistry)

	payClient := payment.NewClient(payment.ClientConfig{
		BaseURL:      cfg.Payment.BaseURL,
		APIKey:       cfg.Payment.APIKey,
		APIKeyHeader: cfg.Payment.APIKeyHeader,
		Timeout:      cfg.Payment.Timeout,
	}, logger, metricRegistry)
	payments := payment.NewService(repository, payClient, licenses, payment.Options{
		ShopName:     cfg.Payment.ShopName,
		Message:      cfg.Payment.Message,
		DefaultPrice: cfg.Payment.LicensePrice,
		ReturnPath:   cfg.Payment.ReturnPath,
	}, logger, metricRegistry)

	bucket, storageDir, err := openBucket(cfg)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	uploader := storage.NewUploader(bucket, logger, metricRegistry)
	profiles := profile.NewService(repository, uploader, logger)

	authService := auth.NewService(repository, auth.NewSessions([]byte(cfg.Auth.JWTSecret), cfg.Auth.SessionTTL), revoker, logger)
	oauth := openOAuth(cfg, logger)

	rotator := theme.NewRotator(repository, cfg.Theme.RotationInterval, logger)
	if err := rotator.Start(ctx); err != nil {
		return fmt.Errorf("start theme rotator: %w", err)
	}
	defer func() {
		if err := rotator.Stop(); err != nil {
			logger.Warn("theme rotator shutdown error", "error", err)
		}
	}()

	httpSrv := httpserver.New(httpserver.Options{
		Addr:          cfg.HTTP.ListenAddr,
		BasePath:      cfg.HTTP.BasePath,
		PublicBaseURL: cfg.HTTP.PublicBaseURL,
		CookieSecure:  cfg.Auth.CookieSecure,
		StorageDir:    storageDir,
	}, httpserver.Services{
		Auth:        authService,
		OAuth:       oauth,
		Coupons:     coupons,
		Procedures:  procedures,
		Problems:    problems,
		BotInfo:     botInfo,
		Dashboard:   aggregator,
		Licenses:    licenses,
		Payments:    payments,
		Profiles:    profiles,
		Uploader:    uploader,
		Theme:       rotator,
		Idempotency: claimer,
	}, logger, metricRegistry)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}

func openRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*repo.Repository, error) {
	if cfg.Database.Driver == "sqlite" {
		return repo.NewSQLite(ctx, cfg.Database.SQLitePath, logger, m)
	}
	return repo.New(ctx, cfg.Database.URL, cfg.Database.Schema, logger, m)
}

func openGateway(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (wa.Gateway, func(), error) {
	if cfg.WhatsApp.Provider == "local" {
		provider, err := wa.NewLocalProvider(wa.LocalConfig{
			StoreDir:  cfg.WhatsApp.StorePath,
			LogLevel:  cfg.WhatsApp.LogLevel,
			QRTimeout: cfg.WhatsApp.Timeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("whatsapp gateway running in-process", "store", cfg.WhatsApp.StorePath)
		return provider, provider.Close, nil
	}
	gateway := wa.NewHTTPGateway(wa.HTTPConfig{
		BaseURL: cfg.WhatsApp.BaseURL,
		Token:   cfg.WhatsApp.Token,
		Timeout: cfg.WhatsApp.Timeout,
		Retries: cfg.WhatsApp.Retries,
	}, logger, m)
	return gateway, func() {}, nil
}

// openBucket returns the upload bucket and, for local storage, the directory
// the HTTP server exposes under /storage/.
func openBucket(cfg *config.Config) (storage.Bucket, string, error) {
	if cfg.Storage.Driver == "supabase" {
		client := &http.Client{Timeout: 30 * time.Second}
		return storage.NewSupabaseBucket(cfg.Storage.SupabaseURL, cfg.Storage.SupabaseKey, cfg.Storage.Bucket, client), "", nil
	}
	publicURL := strings.TrimRight(cfg.HTTP.PublicBaseURL, "/") + normalisePath(cfg.HTTP.BasePath) + "/storage"
	bucket, err := storage.NewLocalBucket(cfg.Storage.LocalDir, publicURL)
	if err != nil {
		return nil, "", err
	}
	return bucket, bucket.Dir(), nil
}

func openOAuth(cfg *config.Config, logger *slog.Logger) *auth.OAuth {
	callback := func(name string) string {
		return strings.TrimRight(cfg.HTTP.PublicBaseURL, "/") + normalisePath(cfg.HTTP.BasePath) + "/auth/oauth/" + name + "/callback"
	}
	var providers []*auth.Provider
	if p := cfg.Auth.OAuth.Google; p.Enabled() {
		providers = append(providers, auth.GoogleProvider(p.ClientID, p.ClientSecret, callback("google")))
	}
	if p := cfg.Auth.OAuth.GitHub; p.Enabled() {
		providers = append(providers, auth.GitHubProvider(p.ClientID, p.ClientSecret, callback("github")))
	}
	if len(providers) == 0 {
		return nil
	}
	oauth := auth.NewOAuth(&http.Client{Timeout: 15 * time.Second}, providers...)
	logger.Info("oauth sign-in enabled", "providers", oauth.Providers())
	return oauth
}

func normalisePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}
