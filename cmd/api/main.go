package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/josh-kwaku/stay-reconciler/api"
	"github.com/josh-kwaku/stay-reconciler/internal/auth"
	"github.com/josh-kwaku/stay-reconciler/internal/commission"
	"github.com/josh-kwaku/stay-reconciler/internal/config"
	"github.com/josh-kwaku/stay-reconciler/internal/domain"
	"github.com/josh-kwaku/stay-reconciler/internal/handler"
	"github.com/josh-kwaku/stay-reconciler/internal/logging"
	"github.com/josh-kwaku/stay-reconciler/internal/middleware"
	"github.com/josh-kwaku/stay-reconciler/internal/notify"
	"github.com/josh-kwaku/stay-reconciler/internal/obs"
	"github.com/josh-kwaku/stay-reconciler/internal/provider"
	"github.com/josh-kwaku/stay-reconciler/internal/repository"
	"github.com/josh-kwaku/stay-reconciler/internal/resilience"
	"github.com/josh-kwaku/stay-reconciler/internal/service"
	"github.com/josh-kwaku/stay-reconciler/internal/service/payment"
)

const serviceName = "stay-reconciler"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init(serviceName, cfg.LogLevel, cfg.AppEnv)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, serviceName, cfg.OTLPEndpoint, cfg.AppEnv)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(tctx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	db, err := connectDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.WebhookAllowUnsigned {
		logger.Warn("unsigned webhooks are accepted for providers without a secret", "app_env", cfg.AppEnv)
	}

	payments := repository.NewPaymentRepository(db)
	refunds := repository.NewRefundRepository(db)
	bookings := repository.NewBookingRepository(db)
	history := repository.NewStatusHistoryRepository(db)
	events := repository.NewWebhookEventRepository(db)
	outbox := repository.NewOutboxRepository(db)
	idempotency := repository.NewIdempotencyRepository(db)
	txs := repository.NewDB(db)

	rates := commission.NewRateResolver(cfg.CommissionDefaultRate, cfg.CommissionHotelRates)
	ledger := commission.NewLedger(repository.NewCommissionRepository(db), txs)

	providers := provider.NewRegistry(
		provider.NewSquare(cfg.Square.Secret, cfg.Square.NotificationURL, cfg.Square.RequireURLSignature),
		provider.NewStripe(cfg.Stripe.Secret, cfg.WebhookMaxClockSkew),
	)

	breakers := resilience.NewRegistry(cfg.BreakerThreshold, cfg.BreakerCooldown, resilience.SystemClock())
	exec := resilience.NewExecutor(resilience.RetryPolicy{
		MaxAttempts:    cfg.RetryMaxAttempts,
		BaseDelay:      cfg.RetryBaseDelay,
		MaxDelay:       cfg.RetryMaxDelay,
		Factor:         cfg.RetryBackoffFactor,
		AttemptTimeout: cfg.DispatchTimeout,
	}, breakers)

	publisher := notify.NewPublisher(cfg.RabbitMQURL, cfg.NotifyExchange)
	defer publisher.Close()
	audit := notify.NewAuditWriter(cfg.KafkaBrokers, cfg.AuditTopic)
	defer audit.Close()

	dispatcher := service.NewDispatcher(exec,
		service.Route{Primary: publisher, Fallback: notify.NewOutboxSink(outbox, domain.OutboxChannelNotification)},
		service.Route{Primary: audit, Fallback: notify.NewOutboxSink(outbox, domain.OutboxChannelAudit)},
		logger,
	)
	defer dispatcher.Wait()

	relay := notify.NewRelay(outbox, txs, exec, map[domain.OutboxChannel]notify.Sink{
		domain.OutboxChannelNotification: publisher,
		domain.OutboxChannelAudit:        audit,
	}, notify.RelayConfig{
		Interval:    cfg.OutboxPollInterval,
		BatchSize:   cfg.OutboxBatchSize,
		MaxAttempts: cfg.OutboxMaxAttempts,
		ClaimLease:  cfg.OutboxClaimLease,
	}, logger.With("component", "outbox_relay"))

	processor := service.NewWebhookProcessor(
		providers, events, payments, refunds, bookings, history, ledger, rates, dispatcher, txs,
		service.WebhookConfig{
			AllowUnsigned: cfg.WebhookAllowUnsigned,
			MaxEventAge:   cfg.WebhookMaxEventAge,
			MaxClockSkew:  cfg.WebhookMaxClockSkew,
		},
	)
	intake := payment.NewService(payments, refunds, bookings, ledger, rates, db)

	webhookHandler := handler.NewWebhookHandler(processor)
	paymentHandler := handler.NewPaymentHandler(intake)
	adminHandler := handler.NewAdminHandler(history, refunds, events, ledger)
	healthHandler := handler.NewHealthHandler(db, exec.Breakers())

	writeAPI := chain(middleware.Auth(cfg.JWTSecret, auth.ScopePayments), middleware.Idempotency(idempotency, cfg.IdempotencyTTL))
	admin := middleware.Auth(cfg.JWTSecret, auth.ScopeAdmin)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)
	mux.HandleFunc("GET /docs", handler.ServeDocs())
	mux.HandleFunc("GET /docs/openapi.yaml", handler.ServeSpec(api.OpenAPI))

	mux.HandleFunc("POST /payments/webhook/{provider}", webhookHandler.Receive)

	mux.Handle("POST /api/v1/payments", writeAPI(http.HandlerFunc(paymentHandler.Create)))
	mux.Handle("POST /api/v1/payments/{id}/refunds", writeAPI(http.HandlerFunc(paymentHandler.CreateRefund)))
	mux.Handle("GET /api/v1/payments/{id}", admin(http.HandlerFunc(paymentHandler.Get)))

	mux.Handle("GET /api/v1/payments/{id}/commission", admin(http.HandlerFunc(adminHandler.PaymentCommission)))
	mux.Handle("GET /api/v1/payments/{id}/refunds", admin(http.HandlerFunc(adminHandler.PaymentRefunds)))
	mux.Handle("GET /api/v1/bookings/{id}/history", admin(http.HandlerFunc(adminHandler.BookingHistory)))
	mux.Handle("GET /api/v1/webhooks/{provider}/{eventId}", admin(http.HandlerFunc(adminHandler.WebhookEvent)))
	mux.Handle("POST /api/v1/commissions/payouts", admin(http.HandlerFunc(adminHandler.Payout)))

	root := otelhttp.NewHandler(
		middleware.Tracing(middleware.Logging(middleware.Recovery(mux))),
		"http.server",
	)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server started", "addr", addr, "providers", providers.Names(), "commission_default_rate", rates.Default().String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		relay.Start(gctx)
		return nil
	})
	g.Go(func() error {
		cleanIdempotencyCache(gctx, idempotency, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func chain(mws ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			h = mws[i](h)
		}
		return h
	}
}

func connectDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	pool := repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}

	var err error
	for i := range 30 {
		var db *sql.DB
		if db, err = repository.NewPostgresDB(ctx, cfg.DatabaseURL, pool); err == nil {
			return db, nil
		}
		slog.Info("waiting for database", "attempt", i+1)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connectDB: %w", ctx.Err())
		case <-time.After(time.Second):
		}
	}
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", err)
}

type expiredCleaner interface {
	CleanExpired(ctx context.Context) (int64, error)
}

func cleanIdempotencyCache(ctx context.Context, repo expiredCleaner, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.CleanExpired(ctx)
			if err != nil {
				logger.Warn("idempotency cache cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("idempotency cache cleaned", "removed", n)
			}
		}
	}
}
