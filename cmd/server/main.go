package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cediman-be/internal/config"
	"cediman-be/internal/db"
	"cediman-be/internal/events"
	"cediman-be/internal/logger"
	"cediman-be/internal/middleware"
	"cediman-be/internal/notification"
	"cediman-be/internal/order"
	"cediman-be/internal/payment"
	"cediman-be/internal/payment/webhook"
	"cediman-be/internal/transport"
	"cediman-be/internal/utils"

	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

var (
	initDBFunc      = db.InitDB
	startServerFunc = serve
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := initDBFunc(cfg)
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, cleanup, err := newServer(ctx, cfg, database)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.L().Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.AppEnv))
	return startServerFunc(ctx, srv)
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newSender(cfg *config.Config) notification.Sender {
	router := notification.Router{
		Email: notification.NoopSender{},
		SMS:   notification.NoopSender{},
	}
	if cfg.SendGridAPIKey != "" {
		router.Email = notification.NewSendGridSender(cfg.SendGridAPIKey, cfg.SendGridFromEmail, cfg.SendGridFromName)
	} else {
		logger.L().Warn("SENDGRID_API_KEY not set, emails will be skipped")
	}
	if cfg.FrogWigalAPIKey != "" {
		router.SMS = notification.NewFrogWigalSender(cfg.FrogWigalBaseURL, cfg.FrogWigalAPIKey, cfg.FrogWigalUsername, cfg.FrogWigalSenderID)
	} else {
		logger.L().Warn("FROGWIGAL_API_KEY not set, SMS will be skipped")
	}
	return router
}

// newServer wires the application graph. The returned cleanup stops the
// background workers and must run after the HTTP server has stopped.
func newServer(ctx context.Context, cfg *config.Config, database *sql.DB) (http.Handler, func(), error) {
	gateway := payment.NewPaystackGateway(cfg.PaystackSecretKey, cfg.PaystackBaseURL, cfg.PaystackTimeout)

	outbox := notification.NewOutbox(newSender(cfg), notification.DefaultOutboxConfig())
	outbox.Start(ctx)

	publisher, err := events.NewKafkaPublisher(events.KafkaConfig{
		Brokers:            cfg.KafkaBrokers,
		Topic:              cfg.KafkaTopic,
		Username:           cfg.KafkaUsername,
		Password:           cfg.KafkaPassword,
		MaxBufferedRecords: cfg.KafkaMaxBuffered,
		DeliveryTimeout:    cfg.KafkaDeliveryTimeout,
	})
	if err != nil {
		outbox.Close()
		return nil, nil, err
	}

	orderSvc := order.NewService(order.Deps{
		Repo:      order.NewRepository(database),
		Gateway:   gateway,
		Notifier:  outbox,
		Publisher: publisher,
		Options:   order.Options{AppBaseURL: cfg.AppBaseURL},
	})

	webhookHandler := webhook.NewWebhookHandler(orderSvc, gateway, payment.NewRepository(database))
	webhookHandler.StartReplay(ctx, time.Minute)

	authMw := middleware.NewAuth(cfg.JWTSecret)
	if !authMw.Enabled() {
		logger.L().Warn("JWT_SECRET not set, admin routes are not protected")
	}
	admin := authMw.RequireRole(utils.RoleAdmin)

	limiter := middleware.NewRateLimiter(cfg.InternalSecretKey)
	limiter.StartCleanup(ctx, time.Minute)

	orderHandler := transport.NewHandler(orderSvc, admin)
	orderHandler.TokenIdentity = authMw.Enabled()

	router := setupRouter(orderHandler, webhookHandler.PaymentWebhookHandler)
	router.Handle("GET /admin/payments/{reference}/webhooks", admin(http.HandlerFunc(webhookHandler.WebhookHistory)))
	router.Handle("GET /admin/notifications/stats", admin(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "stats": outbox.Stats()})
	})))

	var handler http.Handler = router
	handler = limiter.Middleware(handler)
	handler = authMw.Middleware(handler)
	handler = middleware.CORS(cfg.AppBaseURL)(handler)
	handler = middleware.Recover(handler)
	handler = logger.LoggingMiddleware(handler)
	handler = logger.RequestIDMiddleware(handler)

	cleanup := func() {
		outbox.Close()
		publisher.Close()
	}
	return handler, cleanup, nil
}

func setupRouter(h *transport.Handler, webhookHandler http.HandlerFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", transport.Health)
	mux.HandleFunc("POST /webhook/paystack", webhookHandler)
	h.Register(mux)
	return mux
}
