package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/smallbiznis/calendar-gateway/internal/adapter/cache"
	calendaradapter "github.com/smallbiznis/calendar-gateway/internal/adapter/calendar"
	oauthadapter "github.com/smallbiznis/calendar-gateway/internal/adapter/oauth"
	"github.com/smallbiznis/calendar-gateway/internal/config"
	httptransport "github.com/smallbiznis/calendar-gateway/internal/http"
	"github.com/smallbiznis/calendar-gateway/internal/http/handler"
	"github.com/smallbiznis/calendar-gateway/internal/metrics"
	apimiddleware "github.com/smallbiznis/calendar-gateway/internal/middleware"
	"github.com/smallbiznis/calendar-gateway/internal/repository"
	"github.com/smallbiznis/calendar-gateway/internal/server"
	"github.com/smallbiznis/calendar-gateway/internal/service/integration"
	"github.com/smallbiznis/calendar-gateway/internal/service/token"
	"github.com/smallbiznis/calendar-gateway/internal/telemetry"
	"github.com/smallbiznis/calendar-gateway/migrations"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newRedisClient,
			newProviderHTTPClient,
			newAccountRepository,
			newIntegrationLogRepository,
			newOAuthStateStore,
			newRefreshLock,
			newOAuthAdapters,
			newCalendarAdapters,
			newTokenManager,
			newIntegrationService,
			handler.NewIntegrationHandler,
			newHealthHandler,
			newRateLimiter,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger.With(zap.String("service", cfg.ServiceName)), nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	if cfg.DBAutoMigrate {
		if err := migrations.Up(cfg.DatabaseURL, logger); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newProviderHTTPClient(cfg config.Config) *http.Client {
	return metrics.InstrumentedClient(cfg.ProviderHTTPTimeout)
}

func newAccountRepository(pool *pgxpool.Pool) repository.AccountRepository {
	return repository.NewPostgresAccountRepo(pool)
}

func newIntegrationLogRepository(pool *pgxpool.Pool, node *snowflake.Node) repository.IntegrationLogRepository {
	return repository.NewPostgresIntegrationLogRepo(pool, node)
}

func newOAuthStateStore(client redis.UniversalClient) repository.OAuthStateStore {
	return cacheadapter.NewRedisStateStore(client)
}

func newRefreshLock(client redis.UniversalClient) repository.RefreshLock {
	return cacheadapter.NewRedisRefreshLock(client)
}

func newOAuthAdapters(cfg config.Config, client *http.Client) *oauthadapter.Set {
	return oauthadapter.NewSet(cfg, client)
}

func newCalendarAdapters(cfg config.Config, client *http.Client) *calendaradapter.Set {
	return calendaradapter.NewSet(cfg, client)
}

func newTokenManager(accounts repository.AccountRepository, adapters *oauthadapter.Set, lock repository.RefreshLock, cfg config.Config, logger *zap.Logger) *token.Manager {
	return token.NewManager(accounts, adapters, lock, cfg, logger)
}

func newIntegrationService(
	adapters *oauthadapter.Set,
	calendars *calendaradapter.Set,
	tokens *token.Manager,
	states repository.OAuthStateStore,
	logs repository.IntegrationLogRepository,
	cfg config.Config,
	logger *zap.Logger,
) integration.Service {
	return integration.NewService(adapters, calendars, tokens, states, logs, cfg, logger)
}

func newHealthHandler(pool *pgxpool.Pool, client redis.UniversalClient) *handler.HealthHandler {
	return handler.NewHealthHandler(map[string]repository.Pinger{
		"database": repository.NewPostgresAccountRepo(pool),
		"redis":    cacheadapter.NewRedisRefreshLock(client),
	})
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
