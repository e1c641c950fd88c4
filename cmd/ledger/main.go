package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/obra-ledger/obra-ledger/cmd/ledger/cli"
	"github.com/obra-ledger/obra-ledger/internal/app"
	"github.com/obra-ledger/obra-ledger/internal/balances"
	"github.com/obra-ledger/obra-ledger/internal/closures"
	"github.com/obra-ledger/obra-ledger/internal/movements"
	"github.com/obra-ledger/obra-ledger/internal/periods"
	"github.com/obra-ledger/obra-ledger/internal/platform/db"
	"github.com/obra-ledger/obra-ledger/internal/projects"
	"github.com/obra-ledger/obra-ledger/internal/transactions"
	"github.com/obra-ledger/obra-ledger/internal/users"
	"github.com/obra-ledger/obra-ledger/jobs"
)

const usage = `usage: ledger <command> [args]

commands:
  serve                        run the HTTP API (default)
  migrate up                   apply all pending migrations
  migrate down N               roll back N migrations
  periods generate YEAR        create the fortnightly periods of YEAR
  balances reconcile PERIOD    recompute every balance of a period
  jobs trigger NAME            enqueue one run of a scheduled job
  jobs inspect [QUEUE]         show queue statistics
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	args := os.Args[1:]
	if len(args) == 0 {
		args = []string{"serve"}
	}
	os.Exit(run(ctx, cfg, logger, args))
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	switch args[0] {
	case "serve":
		return serve(ctx, cfg, logger)
	case "migrate":
		return migrateCommand(cfg, logger, args[1:])
	case "periods":
		return periodsCommand(ctx, cfg, logger, args[1:])
	case "balances":
		return balancesCommand(ctx, cfg, logger, args[1:])
	case "jobs":
		return jobsCommand(ctx, cfg, args[1:])
	case "help", "-h", "--help":
		fmt.Print(usage)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	if err := db.Migrate(cfg.PGDSN); err != nil {
		logger.Error("apply migrations", slog.Any("error", err))
		return 1
	}
	container, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := container.Close(); err != nil {
			logger.Warn("close services", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(cfg.RedisOpt())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	rbacMiddleware := container.RBAC()
	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		Metrics:             container.Metrics,
		RBACMiddleware:      rbacMiddleware,
		PeriodsHandler:      periods.NewHandler(logger, container.Periods, rbacMiddleware),
		ClosuresHandler:     closures.NewHandler(logger, container.Closures, container.Periods, rbacMiddleware),
		MovementsHandler:    movements.NewHandler(logger, container.Movements, container.Periods),
		TransactionsHandler: transactions.NewHandler(logger, container.Transactions),
		BalancesHandler:     balances.NewHandler(logger, container.Balances, rbacMiddleware),
		UsersHandler:        users.NewHandler(logger, container.Users),
		ProjectsHandler:     projects.NewHandler(logger, container.Projects),
		JobHandler:          jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("timezone", cfg.AppTimezone))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return 1
	}
	return 0
}

func migrateCommand(cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil || fs.NArg() == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	switch fs.Arg(0) {
	case "up":
		if err := db.Migrate(cfg.PGDSN); err != nil {
			logger.Error("migrate up", slog.Any("error", err))
			return 1
		}
	case "down":
		steps, err := strconv.Atoi(fs.Arg(1))
		if err != nil || steps <= 0 {
			fmt.Fprintln(os.Stderr, "migrate down: N must be a positive integer")
			return 2
		}
		if err := db.MigrateDown(cfg.PGDSN, steps); err != nil {
			logger.Error("migrate down", slog.Any("error", err))
			return 1
		}
	default:
		fmt.Fprintf(os.Stderr, "migrate: unknown direction %q\n", fs.Arg(0))
		return 2
	}
	logger.Info("migrations applied", slog.String("direction", fs.Arg(0)))
	return 0
}

func periodsCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("periods", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "print JSON output")
	if len(args) == 0 || args[0] != "generate" {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	year, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "periods generate: YEAR must be a number")
		return 2
	}

	container, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		return 1
	}
	defer container.Close()

	command, err := cli.NewPeriodsCLI(container.Periods)
	if err != nil {
		logger.Error("periods cli", slog.Any("error", err))
		return 1
	}
	return command.GenerateCommand(ctx, cli.GenerateOptions{Year: year, JSONOutput: *jsonOut})
}

func balancesCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("balances", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "print JSON output")
	if len(args) == 0 || args[0] != "reconcile" {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	periodID, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil {
		fmt.Fprintln(os.Stderr, "balances reconcile: PERIOD must be a numeric id")
		return 2
	}

	container, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		return 1
	}
	defer container.Close()

	command, err := cli.NewBalancesCLI(container.Balances)
	if err != nil {
		logger.Error("balances cli", slog.Any("error", err))
		return 1
	}
	return command.ReconcileCommand(ctx, cli.ReconcileOptions{PeriodID: periodID, JSONOutput: *jsonOut})
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	command := cli.NewJobsCLI(cfg.RedisOpt())
	defer command.Close()

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "jobs trigger: NAME is required")
			return 2
		}
		info, err := command.Trigger(ctx, args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		fmt.Printf("enqueued %s on %s (id %s)\n", info.Type, info.Queue, info.ID)
	case "inspect":
		queue := ""
		if len(args) > 1 {
			queue = args[1]
		}
		stats, err := command.InspectQueue(ctx, queue)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs inspect: %v\n", err)
			return 1
		}
		fmt.Printf("%s: pending=%d active=%d scheduled=%d retry=%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	default:
		fmt.Fprintf(os.Stderr, "jobs: unknown subcommand %q\n", args[0])
		return 2
	}
	return 0
}
