// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"billz/internal/config"
	"billz/internal/domain/ports/adapter"
	"billz/internal/domain/ports/repository"
	payAdapters "billz/internal/infra/adapters/payment"
	tele "billz/internal/infra/adapters/telegram"
	"billz/internal/infra/adapters/transfer"
	"billz/internal/infra/adapters/workflow"
	"billz/internal/infra/api"
	"billz/internal/infra/api/apiv1"
	"billz/internal/infra/db/memory"
	pg "billz/internal/infra/db/postgres"
	"billz/internal/infra/logging"
	"billz/internal/infra/metrics"
	red "billz/internal/infra/redis"
	"billz/internal/infra/sched"
	"billz/internal/infra/telegram"
	"billz/internal/infra/worker"
	"billz/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

type stores struct {
	payments   repository.PaymentRepository
	executions repository.ExecutionRepository
	tm         repository.TransactionManager
	ping       func(ctx context.Context) error
	close      func()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "in-memory store and noop adapters")
	role := flag.String("role", "all", "process role: web | queue | refund | all")
	mintTTL := flag.Duration("mint-admin-token", 0, "print an admin JWT valid for the given duration and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	cfg.Runtime.Role = strings.ToLower(strings.TrimSpace(*role))
	switch cfg.Runtime.Role {
	case "web", "queue", "refund", "all":
	default:
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(2)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	if *mintTTL > 0 {
		auth, err := api.NewAuthManager(cfg.HTTP.AdminJWTSecret)
		if err != nil {
			logger.Fatal().Err(err).Msg("admin auth")
		}
		tok, err := auth.Mint("cli", *mintTTL)
		if err != nil {
			logger.Fatal().Err(err).Msg("mint token")
		}
		fmt.Println(tok)
		return
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit, cfg.Runtime.Role)
	logger.Info().Str("version", version).Str("role", cfg.Runtime.Role).Bool("dev", cfg.Runtime.Dev).Msg("starting")

	// ---- Store ----
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("store")
	}
	defer st.close()

	// ---- Redis (optional) ----
	var (
		redisClient red.RedisClient
		guard       usecase.ProofGuard
		locker      usecase.Locker
		limiter     api.Limiter
		refundOpts  []usecase.RefundOption
	)
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer rc.Close()
		redisClient = rc
		guard = red.NewProofGuard(rc, cfg.Redis.ProofTTL)
		locker = red.NewLocker(rc)
		limiter = red.NewRateLimiter(rc)
		refundOpts = append(refundOpts, usecase.WithAlertThrottle(red.NewRateLimiter(rc)))
	} else {
		logger.Warn().Msg("redis not configured: no proof fast-path or refund lock, rate limit is per process")
	}

	// ---- Adapters ----
	alerter := newAlerter(cfg, logger)
	protocol, flow, funds, checks, err := newAdapters(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("adapters")
	}
	checks["store"] = st.ping
	if redisClient != nil {
		checks["redis"] = redisClient.Ping
	}

	// ---- Use cases ----
	intakeUC := usecase.NewIntakeUseCase(cfg.Catalog(), protocol, st.payments, st.executions, st.tm, guard,
		usecase.IntakeConfig{
			PublicAPIURL:      cfg.HTTP.PublicAPIURL,
			Asset:             cfg.Payment.AssetAddress,
			Network:           cfg.Payment.Network,
			MaxTimeoutSeconds: cfg.Payment.MaxTimeoutSeconds,
			Dev:               cfg.Runtime.Dev,
		}, logger)

	statusRepo := st.executions
	if redisClient != nil {
		statusRepo = pg.NewExecutionRepoCacheDecorator(st.executions, redisClient, 10*time.Minute)
	}
	statusUC := usecase.NewStatusUseCase(statusRepo)

	execUC := usecase.NewExecutionUseCase(st.payments, st.executions, flow, protocol, alerter,
		usecase.ExecutionConfig{
			MaxAttempts:       cfg.Workers.MaxAttempts,
			BackoffBase:       cfg.Workers.BackoffBase,
			AttemptTimeout:    cfg.Workers.AttemptTimeout,
			SettlementTimeout: cfg.Workers.SettlementTimeout,
		}, logger)

	refundUC := usecase.NewRefundUseCase(st.payments, funds, locker, alerter,
		usecase.RefundConfig{
			ApproveBatch:    cfg.Workers.ApproveBatch,
			ExecuteBatch:    cfg.Workers.ExecuteBatch,
			LockTTL:         cfg.Workers.RefundLockTTL,
			TransferTimeout: cfg.Workers.TransferTimeout,
			DefaultAsset:    cfg.Payment.AssetAddress,
			AlertEvery:      cfg.Workers.RefundAlertEvery,
			Dev:             cfg.Runtime.Dev,
		}, logger, refundOpts...)

	pool := worker.NewPool(logger)
	runs := func(r string) bool { return cfg.Runtime.Role == "all" || cfg.Runtime.Role == r }

	// ---- Workers ----
	if runs("queue") {
		w := sched.NewExecutionWorker(cfg.Workers.ExecutionIdle, cfg.Workers.ExecutionCooldown, execUC, logger)
		if err := pool.GoN(ctx, "execution", cfg.Workers.ExecutionWorkers, w.Run); err != nil {
			logger.Fatal().Err(err).Msg("start execution workers")
		}
	}
	if runs("refund") {
		w := sched.NewRefundWorker(cfg.Workers.RefundInterval, cfg.Workers.RefundCooldown, refundUC, logger)
		if err := pool.Go(ctx, "refund", w.Run); err != nil {
			logger.Fatal().Err(err).Msg("start refund worker")
		}
	}

	// ---- HTTP ----
	var server *http.Server
	if runs("web") {
		if limiter == nil && cfg.HTTP.RateLimit > 0 {
			local := api.NewLocalLimiter()
			if err := pool.Go(ctx, "rate-limit-sweeper", func(ctx context.Context) error { return local.RunSweeper(ctx, time.Minute) }); err != nil {
				logger.Fatal().Err(err).Msg("start sweeper")
			}
			limiter = local
		}
		var auth *api.AuthManager
		if cfg.HTTP.AdminJWTSecret != "" {
			auth, err = api.NewAuthManager(cfg.HTTP.AdminJWTSecret)
			if err != nil {
				logger.Fatal().Err(err).Msg("admin auth")
			}
		}
		srv := apiv1.NewServer(intakeUC, statusUC, refundUC, apiv1.Options{
			RequestTimeout: cfg.HTTP.RequestTimeout,
			RateLimiter:    limiter,
			RateLimit:      cfg.HTTP.RateLimit,
			RateWindow:     cfg.HTTP.RateWindow,
			RateKey:        red.ClientRouteKey,
			Auth:           auth,
			Checks:         checks,
			Dev:            cfg.Runtime.Dev,
		}, logger)
		server = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
			Handler:           srv.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", server.Addr).Msg("http listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("http server error")
				cancel()
			}
		}()
	}

	// ---- Graceful shutdown ----
	<-ctx.Done()
	logger.Info().Msg("shutdown requested")
	if server != nil {
		shCtx, shCancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := server.Shutdown(shCtx); err != nil {
			logger.Warn().Err(err).Msg("http shutdown")
		}
		shCancel()
	}
	pool.Wait()
	logger.Info().Msg("bye")
}

func openStores(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*stores, error) {
	if cfg.Runtime.Dev && cfg.Database.URL == "" {
		logger.Warn().Msg("[DEV MODE] using in-memory store; data is lost on exit")
		m := memory.NewStore()
		return &stores{
			payments:   m.Payments(),
			executions: m.Executions(),
			tm:         m.TxManager(),
			ping:       func(context.Context) error { return nil },
			close:      func() {},
		}, nil
	}
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)
	return &stores{
		payments:   pg.NewPaymentRepo(pool),
		executions: pg.NewExecutionRepo(pool),
		tm:         pg.NewTxManager(pool),
		ping:       pool.Ping,
		close:      pool.Close,
	}, nil
}

func newAlerter(cfg *config.Config, logger *zerolog.Logger) adapter.Alerter {
	if cfg.Alerts.TelegramToken == "" {
		return tele.NewNoopAlerter(logger)
	}
	bot, err := telegram.NewAlertBot(cfg.Alerts, logger)
	if err != nil {
		logger.Error().Err(err).Msg("telegram alerts disabled")
		return tele.NewNoopAlerter(logger)
	}
	return bot
}

func newAdapters(cfg *config.Config, logger *zerolog.Logger) (
	adapter.PaymentProtocol, adapter.WorkflowBackend, adapter.FundsTransfer, map[string]apiv1.HealthCheck, error,
) {
	checks := map[string]apiv1.HealthCheck{}
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] noop payment, workflow and transfer adapters")
		return payAdapters.NewNoopProtocol(cfg.Payment.TreasuryAddress), workflow.NewNoopWorkflow(), transfer.NewNoopTransfer(), checks, nil
	}

	protocol, err := payAdapters.NewFacilitatorClient(cfg.Payment.FacilitatorURL, cfg.Payment.TreasuryAddress, 30*time.Second)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	n8n, err := workflow.NewN8NClient(cfg.Workflow)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	checks["n8n"] = n8n.HealthCheck

	var funds adapter.FundsTransfer
	if cfg.Transfer.SignerURL != "" {
		sc, err := transfer.NewSignerClient(cfg.Transfer)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		funds = sc
	} else if cfg.Runtime.Role == "refund" || cfg.Runtime.Role == "all" {
		return nil, nil, nil, nil, errors.New("transfer.signer_url is required for the refund role")
	}
	return protocol, n8n, funds, checks, nil
}
