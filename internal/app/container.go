package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/obra-ledger/obra-ledger/internal/balances"
	"github.com/obra-ledger/obra-ledger/internal/closures"
	"github.com/obra-ledger/obra-ledger/internal/movements"
	"github.com/obra-ledger/obra-ledger/internal/notify"
	"github.com/obra-ledger/obra-ledger/internal/observability"
	"github.com/obra-ledger/obra-ledger/internal/periods"
	"github.com/obra-ledger/obra-ledger/internal/platform/cache"
	"github.com/obra-ledger/obra-ledger/internal/platform/db"
	"github.com/obra-ledger/obra-ledger/internal/projects"
	"github.com/obra-ledger/obra-ledger/internal/rbac"
	"github.com/obra-ledger/obra-ledger/internal/shared"
	"github.com/obra-ledger/obra-ledger/internal/transactions"
	"github.com/obra-ledger/obra-ledger/internal/users"
	"github.com/obra-ledger/obra-ledger/jobs"
)

// Container holds the wired ledger services shared by the API, the CLI and the worker.
type Container struct {
	Config  *Config
	Logger  *slog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics
	Jobs    *jobs.Client

	Users        *users.Service
	Projects     *projects.Service
	Periods      *periods.Service
	Closures     *closures.Service
	Movements    *movements.Service
	Transactions *transactions.Service
	Balances     *balances.Service
	Idempotency  *shared.IdempotencyStore
	Publisher    *notify.Publisher
	Sessions     *rbac.RedisSessions
}

// Build connects to PostgreSQL and Redis and wires every service.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger) (*Container, error) {
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return nil, err
	}
	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		pool.Close()
		return nil, err
	}

	clock := cfg.Clock()
	metrics := observability.NewMetrics()
	jobsClient := jobs.NewClient(cfg.RedisOpt())
	auditLogger := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)

	userService := users.NewService(users.NewRepository(pool))
	projectService := projects.NewService(projects.NewRepository(pool))

	closureRepo := closures.NewRepository(pool)
	periodService := periods.NewService(periods.NewRepository(pool), closureRepo, logger)
	periodService.WithNow(clock)

	closureService := closures.NewService(closureRepo, periodService, userService, logger)
	closureService.WithNow(clock)
	closureService.WithObservers(metrics, auditLogger)
	guard := closures.NewGuard(periodService, closureRepo)

	movementService := movements.NewService(movements.NewRepository(pool), guard, periodService, projectService, logger)
	movementService.WithNow(clock)
	movementService.WithAuditor(auditLogger)

	transactionService := transactions.NewService(transactions.NewRepository(pool), guard, userService, projectService, logger)
	transactionService.WithNow(clock)
	transactionService.WithNotifier(notify.NewAsynqNotifier(jobsClient.Enqueuer(), logger))
	transactionService.WithIdempotency(idempotency)
	transactionService.WithMetrics(metrics)

	locker := cache.NewLocker(redisClient, cache.LockOptions{Expiry: cfg.BalanceLockTTL})
	leaderboard := cache.NewJSONCache(redisClient, "ledger:leaderboard", cfg.CacheTTL)
	balanceService := balances.NewService(balances.NewRepository(pool), transactionService, periodService, locker, leaderboard, logger)
	balanceService.WithNow(clock)
	balanceService.WithMetrics(metrics)
	transactionService.WithRecomputer(balanceService)

	return &Container{
		Config:       cfg,
		Logger:       logger,
		Pool:         pool,
		Redis:        redisClient,
		Metrics:      metrics,
		Jobs:         jobsClient,
		Users:        userService,
		Projects:     projectService,
		Periods:      periodService,
		Closures:     closureService,
		Movements:    movementService,
		Transactions: transactionService,
		Balances:     balanceService,
		Idempotency:  idempotency,
		Publisher:    notify.NewPublisher(redisClient),
		Sessions:     rbac.NewRedisSessions(redisClient, cfg.SessionPrefix),
	}, nil
}

// RBAC returns the authentication middleware backed by redis sessions and the users table.
func (c *Container) RBAC() rbac.Middleware {
	return rbac.Middleware{Sessions: c.Sessions, Directory: c.Users, Logger: c.Logger}
}

// Close releases every connection held by the container.
func (c *Container) Close() error {
	var errs []error
	if c.Jobs != nil {
		if err := c.Jobs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("jobs client: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
	return errors.Join(errs...)
}
