// The worker binary consumes the task queue: approved reply dispatch and
// booking confirmations. It shares the database and Redis with the API
// server but runs no HTTP surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"outreach_backend/internal/approval"
	"outreach_backend/internal/audit"
	"outreach_backend/internal/leads"
	leadrepo "outreach_backend/internal/leads/repository"
	"outreach_backend/internal/outbound"
	"outreach_backend/internal/scheduler"
	"outreach_backend/internal/shared/locks"
	"outreach_backend/internal/suppression"
	"outreach_backend/platform/config"
	"outreach_backend/platform/db"
	"outreach_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	redisOpt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		log.Error("failed to parse redis url", "error", err)
		panic("failed to parse redis url: " + err.Error())
	}
	rdb := redis.NewClient(redisOpt)
	defer rdb.Close()

	leadRepo := leadrepo.New(pool)
	auditRepo := audit.New(pool)
	suppressionRepo := suppression.New(pool)
	approvalRepo := approval.New(pool)
	touchRepo := outbound.NewRepository(pool)

	machine := leads.NewMachine(pool, leadRepo, auditRepo, approvalRepo, log)

	counter := outbound.NewDailyCounter(rdb, cfg.GetDailySendLimit())
	var gateway outbound.Gateway = outbound.NewSMTPGateway(cfg)
	if !cfg.IsSendEnabled() {
		log.Warn("outbound sending disabled; using dry-run gateway")
		gateway = outbound.NewDryRunGateway(log)
	}
	sendQueue := outbound.NewQueue(suppressionRepo, touchRepo, counter, gateway, machine, auditRepo, log)

	worker, err := scheduler.NewWorker(cfg, scheduler.WorkerParams{
		Approvals: approvalRepo,
		LeadRepo:  leadRepo,
		Queue:     sendQueue,
		Machine:   machine,
		Identity:  cfg,
		Locks:     locks.NewKeyedMutex(),
		Logger:    log,
	})
	if err != nil {
		log.Error("failed to initialize worker", "error", err)
		panic("failed to initialize worker: " + err.Error())
	}

	log.Info("worker listening", "queue", cfg.GetAsynqQueueName(), "concurrency", cfg.GetAsynqConcurrency())
	worker.Run(ctx)
	log.Info("worker stopped")
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
