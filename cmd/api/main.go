package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/boostgrid/backend/internal/auth"
	"github.com/boostgrid/backend/internal/config"
	"github.com/boostgrid/backend/internal/events"
	"github.com/boostgrid/backend/internal/handlers"
	"github.com/boostgrid/backend/internal/ledger"
	"github.com/boostgrid/backend/internal/metrics"
	"github.com/boostgrid/backend/internal/middleware"
	"github.com/boostgrid/backend/internal/orders"
	"github.com/boostgrid/backend/internal/pricing"
	"github.com/boostgrid/backend/internal/repository"
	"github.com/boostgrid/backend/internal/router"
	"github.com/boostgrid/backend/internal/scheduler"
	"github.com/boostgrid/backend/internal/stats"
	"github.com/boostgrid/backend/internal/tasks"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(".")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running, e.g. docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL")

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	metrics.Init()

	// Repositories
	accountRepo := repository.NewAccountRepo(pool)
	transactionRepo := repository.NewTransactionRepo(pool)
	orderRepo := repository.NewOrderRepo(pool)
	taskRepo := repository.NewTaskRepo(pool)
	executionRepo := repository.NewExecutionRepo(pool)
	statsRepo := repository.NewStatsRepo(pool)

	// Events (optional)
	var producer *events.Producer
	if cfg.RabbitMQURL != "" {
		producer, err = events.NewProducer(cfg.RabbitMQURL)
		if err != nil {
			slog.Warn("RabbitMQ unavailable, events disabled", "error", err)
			producer = nil
		} else {
			defer producer.Close()
		}
	} else {
		slog.Warn("RABBITMQ_URL not set, events disabled")
	}

	// Core services
	ledgerSvc := ledger.NewService(pool, accountRepo, transactionRepo)
	schedule := pricing.NewSchedule(cfg.PayoutMargin, cfg.CommentsMargin)
	statsSvc := stats.NewService(orderRepo, statsRepo, cfg.StatsStaleness(), logger)

	// Stats enqueue is bound after the River client exists (breaks init cycle)
	var insertMu sync.Mutex
	var insertFn orders.EnqueueStatsFunc
	enqueueStats := func(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, platform string) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, tx, accountID, platform)
	}

	var orderPublisher orders.Publisher
	var taskPublisher tasks.Publisher
	var withdrawalPublisher handlers.WithdrawalPublisher
	if producer != nil {
		orderPublisher = producer
		taskPublisher = producer
		withdrawalPublisher = producer
	}

	orderSvc := orders.NewService(pool, accountRepo, orderRepo, taskRepo, ledgerSvc, schedule, enqueueStats, orderPublisher, logger)
	taskSvc := tasks.NewService(pool, taskRepo, executionRepo, ledgerSvc, taskPublisher, cfg.TaskCooldown(), logger)

	// River workers
	workers := river.NewWorkers()
	river.AddWorker(workers, stats.NewRecomputeWorker(statsSvc, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, platform string) error {
		_, err := riverClient.InsertTx(ctx, tx, stats.RecomputeArgs{AccountID: accountID, Platform: platform}, nil)
		return err
	}
	insertMu.Unlock()

	// Auth
	authSvc := auth.NewService(accountRepo, cfg.JWTSecret)
	authHandler := auth.NewHandler(authSvc, logger)
	authenticate := middleware.JWTAuth(authSvc, authSvc)

	// HTTP handlers
	orderHandler := &handlers.OrderHandler{Service: orderSvc, Repo: orderRepo, Stats: statsSvc, Logger: logger}
	walletHandler := &handlers.WalletHandler{
		Ledger:       ledgerSvc,
		Transactions: transactionRepo,
		Accounts:     accountRepo,
		Publisher:    withdrawalPublisher,
		Logger:       logger,
	}
	taskHandler := &handlers.TaskHandler{Service: taskSvc, Repo: taskRepo, Logger: logger}

	handler := router.New(authHandler, orderHandler, walletHandler, taskHandler, authenticate)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(handler)

	// Start River client (processes stats jobs)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	// Periodic stale-snapshot refresh
	cronScheduler := scheduler.New(statsSvc, cfg.StatsRefreshSchedule, logger)
	cronScheduler.Start()
	defer cronScheduler.Stop()

	serverAddr := "0.0.0.0:" + cfg.ServerPort
	slog.Info("Starting HTTP server", "addr", serverAddr, "env", cfg.Env)
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
