package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-family-auth"
	"github.com/goliatone/go-family-auth/activitymap"
	"github.com/goliatone/go-family-auth/config"
	"github.com/goliatone/go-print"
	"github.com/uptrace/bun"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config config.Config
	logger *auth.SlogLogger
	db     *bun.DB
	srv    *fiber.App
	memory *auth.MemoryRevocationStore
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	app := &App{
		config: cfg,
		logger: auth.NewJSONLogger(os.Stdout, cfg.LogLevel),
	}

	app.logger.Debug("configuration loaded", "config", print.MaybePrettyJSON(redacted(cfg)))

	if err := run(context.Background(), app); err != nil {
		app.logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, app *App) error {
	if err := WithPersistence(ctx, app); err != nil {
		return fmt.Errorf("persistence setup: %w", err)
	}
	defer app.db.Close()

	if err := WithHTTPServer(ctx, app); err != nil {
		return fmt.Errorf("http setup: %w", err)
	}

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go app.memory.RunSweeper(sweepCtx, app.config.RevocationSweepInterval, app.logger)

	listenErr := make(chan error, 1)
	go func() {
		app.logger.Info("listening", "addr", app.config.HTTPAddr)
		listenErr <- app.srv.Listen(app.config.HTTPAddr)
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("listen on %s: %w", app.config.HTTPAddr, err)
	case sig := <-ExitSignals():
		app.logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := app.srv.ShutdownWithContext(shutdownCtx); err != nil {
		app.logger.Error("shutdown failed", "error", err)
	}
	return nil
}

func WithPersistence(ctx context.Context, app *App) error {
	db, err := auth.OpenDB(app.config.DatabaseDriver, app.config.DatabaseDSN)
	if err != nil {
		return err
	}

	if err := auth.Migrate(ctx, db, app.config.DatabaseDriver); err != nil {
		db.Close()
		return err
	}

	app.db = db
	return nil
}

func WithHTTPServer(ctx context.Context, app *App) error {
	cfg := app.config
	logger := app.logger

	app.memory = auth.NewMemoryRevocationStore(nil)
	revocations, err := revocationStore(ctx, cfg, app.memory, logger)
	if err != nil {
		return err
	}

	tokens, err := auth.NewTokenService(auth.TokenOptions{
		SigningKey: []byte(cfg.JWTSecret),
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	repos := auth.NewRepositoryManager(app.db, auth.SystemClock{})
	repos.MustValidate()

	activity := activitymap.LoggerSink(logger)

	users := auth.NewUserProvider(repos.Users(), auth.NewBcryptHasher(cfg.BcryptCost)).
		WithLogger(logger).
		WithPhoneRegion(cfg.PhoneRegion).
		WithDeterministicIDs(cfg.DeterministicIDs)

	auther := auth.NewAuthenticator(users, tokens, revocations).
		WithLogger(logger).
		WithActivitySink(activity)

	membership := auth.NewMembershipCoordinator(repos,
		auth.WithMembershipLogger(logger),
		auth.WithMembershipActivity(activity),
		auth.WithMembershipTimeout(cfg.StoreTimeout),
	)

	resolver := auth.NewAuthenticationResolver(tokens, revocations,
		auth.WithResolverLogger(logger),
		auth.WithTrustedUserHeader(cfg.DevTrustUserHeader),
	)

	app.srv = auth.NewApp(auth.AppOptions{
		Name:       "go-family-auth",
		Resolver:   resolver,
		Guard:      auth.NewAuthorizationGuard(logger),
		Controller: auth.NewHTTPController(auther, membership, logger),
		Logger:     logger,
	})
	return nil
}

func revocationStore(ctx context.Context, cfg config.Config, memory *auth.MemoryRevocationStore, logger auth.Logger) (auth.RevocationStore, error) {
	if cfg.RedisURL == "" {
		logger.Warn("no redis configured, token revocations are kept in memory only")
		return memory, nil
	}

	client, err := auth.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	durable := auth.NewRedisRevocationStore(client, auth.WithRedisTimeout(cfg.StoreTimeout))

	pingCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()
	if err := durable.Ping(pingCtx); err != nil {
		logger.Warn("redis unreachable at startup, memory fallback active", "error", err)
	}

	return auth.NewFallbackRevocationStore(durable, memory, logger), nil
}

func ExitSignals() <-chan os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return ch
}

func redacted(cfg config.Config) config.Config {
	cfg.JWTSecret = "***"
	return cfg
}
