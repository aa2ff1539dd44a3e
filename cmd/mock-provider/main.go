package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	env "github.com/caarlos0/env/v11"

	"github.com/josh-kwaku/stay-reconciler/internal/handler"
	"github.com/josh-kwaku/stay-reconciler/internal/logging"
	"github.com/josh-kwaku/stay-reconciler/internal/middleware"
	"github.com/josh-kwaku/stay-reconciler/internal/resilience"
)

type config struct {
	Port            int           `env:"PORT" envDefault:"8081"`
	AppEnv          string        `env:"APP_ENV" envDefault:"development"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	TargetURL       string        `env:"TARGET_URL" envDefault:"http://api:8080/payments/webhook/square"`
	NotificationURL string        `env:"SQUARE_WEBHOOK_NOTIFICATION_URL"`
	Secret          string        `env:"SQUARE_WEBHOOK_SECRET,required"`
	MaxAttempts     int           `env:"DELIVERY_MAX_ATTEMPTS" envDefault:"5"`
	BaseDelay       time.Duration `env:"DELIVERY_BASE_DELAY" envDefault:"500ms"`
}

func main() {
	cfg, err := env.ParseAs[config]()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Init("mock-provider", cfg.LogLevel, cfg.AppEnv)

	sim := &simulator{
		targetURL:       cfg.TargetURL,
		notificationURL: cfg.NotificationURL,
		secret:          cfg.Secret,
		client:          &http.Client{Timeout: 10 * time.Second},
		retry: resilience.RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BaseDelay,
			MaxDelay:    30 * time.Second,
			Factor:      2,
		},
		now: func() time.Time { return time.Now().UTC() },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		handler.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /simulate/payments", sim.handlePayment)
	mux.HandleFunc("POST /simulate/refunds", sim.handleRefund)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           middleware.Tracing(middleware.Logging(middleware.Recovery(mux))),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("mock provider started", "addr", addr, "target", cfg.TargetURL)
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func (s *simulator) handlePayment(w http.ResponseWriter, r *http.Request) {
	var e paymentEvent
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		handler.RespondAppError(w, handler.ErrInvalidRequest, nil)
		return
	}
	if e.TransactionID == "" || e.Status == "" {
		handler.RespondValidationError(w, []handler.FieldError{{Field: "transaction_id,status", Message: "required"}})
		return
	}

	body, err := s.paymentBody(&e)
	if err != nil {
		handler.RespondAppError(w, handler.ErrInternalError, nil)
		return
	}
	s.respond(w, r, e.EventID, body, e.Repeat)
}

func (s *simulator) handleRefund(w http.ResponseWriter, r *http.Request) {
	var e refundEvent
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		handler.RespondAppError(w, handler.ErrInvalidRequest, nil)
		return
	}
	if e.TransactionID == "" || e.Status == "" || !e.Amount.IsPositive() {
		handler.RespondValidationError(w, []handler.FieldError{{Field: "transaction_id,status,amount", Message: "required"}})
		return
	}

	body, err := s.refundBody(&e)
	if err != nil {
		handler.RespondAppError(w, handler.ErrInternalError, nil)
		return
	}
	s.respond(w, r, e.EventID, body, e.Repeat)
}

func (s *simulator) respond(w http.ResponseWriter, r *http.Request, eventID string, body []byte, repeat int) {
	log := logging.FromContext(r.Context()).With("event_id", eventID)

	deliveries, err := s.deliver(r.Context(), eventID, body, repeat)
	if err != nil {
		log.Error("webhook delivery failed", "error", err, "delivered", len(deliveries))
		handler.RespondJSON(w, http.StatusBadGateway, handler.APIResponse{
			Success: false,
			Data:    deliveries,
			Error:   &handler.APIError{Code: "DELIVERY_FAILED", Message: err.Error()},
		})
		return
	}
	log.Info("webhook delivered", "deliveries", len(deliveries))
	handler.RespondSuccess(w, http.StatusOK, deliveries)
}
