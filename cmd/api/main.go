package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"outreach_backend/internal/approval"
	"outreach_backend/internal/audit"
	"outreach_backend/internal/drafts"
	"outreach_backend/internal/events"
	apphttp "outreach_backend/internal/http"
	"outreach_backend/internal/http/router"
	"outreach_backend/internal/leads"
	leadhandler "outreach_backend/internal/leads/handler"
	leadrepo "outreach_backend/internal/leads/repository"
	leadservice "outreach_backend/internal/leads/service"
	"outreach_backend/internal/notification"
	"outreach_backend/internal/objection"
	"outreach_backend/internal/outbound"
	"outreach_backend/internal/pipeline"
	"outreach_backend/internal/replies"
	"outreach_backend/internal/scheduler"
	"outreach_backend/internal/sequence"
	"outreach_backend/internal/shared/locks"
	"outreach_backend/internal/suppression"
	"outreach_backend/internal/webhook"
	"outreach_backend/migrations"
	"outreach_backend/platform/config"
	"outreach_backend/platform/db"
	"outreach_backend/platform/logger"
	"outreach_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	shutdownTimeout    = 10 * time.Second
	staleSendAge       = 15 * time.Minute
	staleSweepInterval = 10 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	redisOpt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		log.Error("failed to parse redis url", "error", err)
		panic("failed to parse redis url: " + err.Error())
	}
	rdb := redis.NewClient(redisOpt)
	defer rdb.Close()

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Task queue client for deferred dispatch work
	tasks, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task queue client", "error", err)
		panic("failed to initialize task queue client: " + err.Error())
	}
	defer tasks.Close()

	// Shared validator instance for dependency injection
	val := validator.New()

	// Per-lead mutex shared by the orchestrator and the reply correlator
	leadLocks := locks.NewKeyedMutex()

	// ========================================================================
	// Repositories
	// ========================================================================

	leadRepo := leadrepo.New(pool)
	auditRepo := audit.New(pool)
	suppressionRepo := suppression.New(pool)
	approvalRepo := approval.New(pool)
	replyRepo := replies.NewRepository(pool)
	touchRepo := outbound.NewRepository(pool)

	// ========================================================================
	// Domain Wiring (Composition Root)
	// ========================================================================

	machine := leads.NewMachine(pool, leadRepo, auditRepo, approvalRepo, log)

	counter := outbound.NewDailyCounter(rdb, cfg.GetDailySendLimit())
	var gateway outbound.Gateway = outbound.NewSMTPGateway(cfg)
	if !cfg.IsSendEnabled() {
		log.Warn("outbound sending disabled; using dry-run gateway")
		gateway = outbound.NewDryRunGateway(log)
	}
	sendQueue := outbound.NewQueue(suppressionRepo, touchRepo, counter, gateway, machine, auditRepo, log)

	// Operator notices ride the event bus: booked meetings and drafts
	// waiting for review.
	notification.New(gateway, cfg, log).RegisterHandlers(eventBus)

	timing, err := sequence.LoadTiming(cfg.GetTimingTablePath())
	if err != nil {
		log.Error("failed to load timing table", "error", err)
		panic("failed to load timing table: " + err.Error())
	}
	seqScheduler := sequence.NewScheduler(timing, cfg)

	kb, err := objection.Load(cfg.GetObjectionKBPath())
	if err != nil {
		log.Error("failed to load objection knowledge base", "error", err)
		panic("failed to load objection knowledge base: " + err.Error())
	}

	var provider drafts.Provider = drafts.NewStaticProvider(cfg)
	if cfg.IsDraftingEnabled() {
		gemini, err := drafts.NewGeminiProvider(ctx, cfg, cfg)
		if err != nil {
			log.Error("failed to initialize draft provider", "error", err)
			panic("failed to initialize draft provider: " + err.Error())
		}
		provider = gemini
		log.Info("AI draft provider enabled", "model", cfg.GetDraftModel())
	}

	leadSvc := leadservice.New(leadRepo, machine, suppressionRepo, auditRepo, tasks, eventBus, log)
	approvalSvc := approval.NewService(approvalRepo, tasks, auditRepo, log)

	correlator := replies.NewCorrelator(replies.CorrelatorParams{
		LeadResolver: leadRepo,
		ReplyStore:   replyRepo,
		Machine:      machine,
		Suppressions: suppressionRepo,
		Approvals:    approvalRepo,
		AuditLog:     auditRepo,
		Booking:      tasks,
		Bus:          eventBus,
		KB:           kb,
		Identity:     cfg,
		Locks:        leadLocks,
		Logger:       log,
	})

	// ========================================================================
	// Background Loops
	// ========================================================================

	// Dispatch records stranded pending by an earlier crash block their
	// lead's retry until failed; clear them before the loops start, then
	// keep sweeping.
	if n, err := touchRepo.FailStalePending(ctx, time.Now().Add(-staleSendAge)); err != nil {
		log.Error("stale send sweep failed", "error", err)
	} else if n > 0 {
		log.Warn("failed stale pending sends from previous run", "count", n)
	}

	var background sync.WaitGroup

	background.Add(1)
	go func() {
		defer background.Done()
		sweepStalePending(ctx, touchRepo, log)
	}()

	orchestrator := pipeline.NewOrchestrator(cfg, pipeline.OrchestratorParams{
		Source:    leadRepo,
		Scheduler: seqScheduler,
		Provider:  provider,
		Sender:    sendQueue,
		Machine:   machine,
		Locks:     leadLocks,
		Logger:    log,
	})
	background.Add(1)
	go func() {
		defer background.Done()
		if err := orchestrator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("pipeline orchestrator stopped", "error", err)
		}
	}()

	poller := replies.NewMailboxPoller(cfg, correlator, log)
	background.Add(1)
	go func() {
		defer background.Done()
		if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("mailbox poller stopped", "error", err)
		}
	}()

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   pool,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			leadhandler.NewModule(leadhandler.New(leadSvc, val)),
			approval.NewModule(approval.NewHandler(approvalSvc, val)),
			suppression.NewModule(suppression.NewHandler(suppressionRepo, val)),
			webhook.NewModule(cfg, correlator, val, log),
		},
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router.New(app),
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", "error", err)
		}
		// Join the orchestrator, poller and sweeper so no dispatch is
		// stranded between its pending record and its confirmation.
		background.Wait()
		log.Info("shutdown complete")
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// sweepStalePending periodically fails pending dispatch records older
// than staleSendAge. A pending record only outlives its dispatch when
// the process died in between; the idempotency gates treat it as live,
// so left alone it wedges its lead for good.
func sweepStalePending(ctx context.Context, repo *outbound.Repository, log *logger.Logger) {
	ticker := time.NewTicker(staleSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := repo.FailStalePending(ctx, time.Now().Add(-staleSendAge))
		if err != nil {
			log.Error("stale send sweep failed", "error", err)
			continue
		}
		if n > 0 {
			log.Warn("failed stale pending sends", "count", n)
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
