package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"market/internal/catalog"
	"market/internal/config"
	"market/internal/db"
	"market/internal/events"
	httpserver "market/internal/http"
	"market/internal/order"
	"market/internal/payment"
	"market/internal/user"
)

func main() {
	cfg := config.Load()

	logger := newLogger()
	defer logger.Sync()

	database := db.MustOpen(cfg.DatabaseDSN)
	defer database.Close()

	rabbitConn := events.MustDialRabbit(cfg.RabbitURL)
	defer rabbitConn.Close()

	seq := events.NewSequenceStore(database)
	publisher, err := events.NewPublisher(rabbitConn, seq)
	if err != nil {
		logger.Fatal("init publisher", zap.Error(err))
	}

	orderRepo := order.NewRepository(database)
	catalogRepo := catalog.NewRepository(database)
	userRepo := user.NewRepository(database)

	orderSvc := order.NewService(orderRepo, catalogRepo, logger)
	userSvc := user.NewService(userRepo, logger)
	gateway := payment.NewHTTPGateway(cfg.ProviderBaseURL, cfg.ProviderSecret, cfg.ProviderTimeout)
	paymentSvc := payment.NewService(orderRepo, gateway, cfg.ProviderSecret, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay := events.NewRefundRelay(database, publisher, cfg.RefundRelayInterval, logger)
	relay.Start(ctx)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		Orders:    httpserver.NewOrderHandler(orderSvc, publisher, logger),
		Payments:  httpserver.NewPaymentHandler(paymentSvc),
		Users:     httpserver.NewUserHandler(userSvc, cfg.JWTSecret, cfg.TokenTTL),
		Admin:     httpserver.NewAdminHandler(orderSvc, paymentSvc, userSvc),
		JWTSecret: cfg.JWTSecret,
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	cancel()
}

func newLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	return logger
}
