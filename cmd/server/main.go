package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/api"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/config"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/fx"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/gateway"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/infrastructure/broker"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/infrastructure/observability"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/infrastructure/redis"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/invoice"
	postgres "github.com/DanteArenas/iic2173-backend-grupo-9/internal/repository/postgres"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/services/auction"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/services/ledger"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/services/payment"
	"github.com/DanteArenas/iic2173-backend-grupo-9/internal/services/property"
	"github.com/DanteArenas/iic2173-backend-grupo-9/pkg/retry"
)

func main() {
	shutdownTracing, metricsHandler := observability.Setup("property-marketplace")
	cfg := config.Load()

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		slog.Error("failed to reach database", "error", err)
		os.Exit(1)
	}

	cache, err := redis.NewClient(cfg.RedisAddr)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer cache.Close()

	retryOpts := retry.Options{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		Jitter:      cfg.RetryJitter,
	}

	properties := postgres.NewPostgresPropertyRepository(db)
	requests := postgres.NewPostgresRequestRepository(db)
	schedules := postgres.NewPostgresScheduleRepository(db)
	auctions := postgres.NewPostgresAuctionRepository(db)
	proposals := postgres.NewPostgresProposalRepository(db)
	events := postgres.NewPostgresEventLogRepository(db)

	publisher := broker.NewPublisher(cfg.KafkaBrokers, retryOpts)
	defer publisher.Close()

	converter := fx.NewConverter(cfg.UFAPIURL, cache, retryOpts)
	webpay := gateway.NewWebpayClient(cfg.WebpayBaseURL, cfg.WebpayCommerceCode, cfg.WebpayAPIKey, retryOpts)
	invoices := invoice.NewClient(cfg.InvoiceEndpoint, retryOpts)

	ledgerSvc := ledger.NewService(db, properties, requests, events, converter, webpay, publisher, cfg.GroupID, cfg.WebpayReturnURL)
	paymentSvc := payment.NewService(db, requests, properties, schedules, events, webpay, invoices, publisher, cache, cfg.GroupID)
	auctionSvc := auction.NewService(db, auctions, proposals, schedules, events, publisher, cfg.GroupID)
	propertySvc := property.NewService(properties, converter)

	consumer := broker.NewConsumer(cfg.KafkaBrokers, "group-"+strconv.Itoa(int(cfg.GroupID)))
	consumer.Subscribe(broker.TopicInfo, func(ctx context.Context, value []byte) error {
		msg, err := broker.ParseInfo(value)
		if err != nil {
			return err
		}
		return propertySvc.HandleInfo(ctx, msg)
	})
	consumer.Subscribe(broker.TopicRequests, func(ctx context.Context, value []byte) error {
		msg, err := broker.ParseRequest(value)
		if err != nil {
			return err
		}
		return ledgerSvc.HandleRequestMessage(ctx, msg)
	})
	consumer.Subscribe(broker.TopicValidation, func(ctx context.Context, value []byte) error {
		msg, err := broker.ParseValidation(value)
		if err != nil {
			return err
		}
		return paymentSvc.HandleValidationMessage(ctx, msg)
	})
	consumer.Subscribe(broker.TopicAuctions, func(ctx context.Context, value []byte) error {
		msg, err := broker.ParseAuction(value)
		if err != nil {
			return err
		}
		return auctionSvc.HandleMessage(ctx, msg)
	})

	handler := api.NewHandler(ledgerSvc, paymentSvc, auctionSvc, propertySvc)
	router := api.SetupRouter(handler, metricsHandler, cfg.JWTSecret)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go consumer.Run(ctx)

	go func() {
		slog.Info("http server listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("tracer shutdown failed", "error", err)
	}
	slog.Info("stopped")
}
