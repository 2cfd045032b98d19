package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opsdeck/order-console/internal/audit"
	"github.com/opsdeck/order-console/internal/circuitbreaker"
	"github.com/opsdeck/order-console/internal/config"
	"github.com/opsdeck/order-console/internal/dashboard"
	"github.com/opsdeck/order-console/internal/notify"
	"github.com/opsdeck/order-console/internal/orders"
	"github.com/opsdeck/order-console/internal/reference"
	"github.com/opsdeck/order-console/internal/server"
	"github.com/opsdeck/order-console/internal/session"
	"github.com/opsdeck/order-console/internal/stream"
	"github.com/opsdeck/order-console/internal/transition"
	"github.com/opsdeck/order-console/internal/ws"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.New()
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	role, err := session.ParseRole(cfg.Role)
	if err != nil {
		logger.WithError(err).Fatal("Invalid console role")
	}
	sess := session.New(cfg.Token, cfg.Actor, role)

	queryBreaker := circuitbreaker.New(circuitbreaker.Config{
		Name:        "order-query",
		MaxFailures: 5,
		Timeout:     30 * time.Second,
		MaxRequests: 1,
	}, logger)
	commandBreaker := circuitbreaker.New(circuitbreaker.Config{
		Name:        "order-command",
		MaxFailures: 5,
		Timeout:     30 * time.Second,
		MaxRequests: 1,
	}, logger)

	queryClient := orders.NewQueryClient(cfg.UpstreamURL, sess, queryBreaker, logger)
	commandClient := orders.NewCommandClient(cfg.UpstreamURL, sess, commandBreaker, logger)
	refClient := reference.NewClient(cfg.UpstreamURL, sess, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	notifier := notify.NewHubNotifier(hub, logger)

	var board *dashboard.Dashboard

	var source stream.Source
	switch cfg.StreamMode {
	case config.StreamModeKafka:
		kafkaSource, err := stream.NewKafkaSource(stream.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
			Topic:   cfg.KafkaTopic,
		}, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka order source")
		}
		source = kafkaSource
		logger.WithField("brokers", cfg.KafkaBrokers).Info("Live channel configured (kafka)")
	default:
		source = stream.NewWebSocketSource(stream.WebSocketConfig{
			URL:          cfg.StreamURL,
			Token:        cfg.Token,
			RetryCeiling: cfg.RetryCeiling,
			OnResync:     func() { board.Resync() },
			OnDegraded:   func(err error) { board.Degrade(err) },
		}, logger)
		logger.WithField("url", cfg.StreamURL).Info("Live channel configured (websocket)")
	}

	board = dashboard.New(queryClient, refClient, source, notifier, logger)

	var auditStore *audit.Store
	if cfg.AuditDSN != "" {
		auditStore, err = audit.NewStore(cfg.AuditDSN, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open audit store")
		}
		defer auditStore.Close()
	} else {
		logger.Info("Audit DSN not configured - transitions will not be recorded")
	}

	var recorder transition.Recorder
	if auditStore != nil {
		recorder = auditStore
	}
	controller := transition.NewController(commandClient, board.Feed, board.Tables, recorder, cfg.Actor, logger)

	if err := board.Load(); err != nil {
		// The console still starts: the operator sees the error banner and an
		// empty board until a resync succeeds.
		logger.WithError(err).Error("Initial load failed")
	}

	go func() {
		if err := source.Run(ctx); err != nil {
			logger.WithError(err).Error("Live order source stopped")
		}
	}()
	go board.Run(ctx)

	handler := server.NewHandler(board, controller, auditStore, hub, sess, cfg.PageSize, logger)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.ListenAddr).Info("Starting console server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down console...")

	// Tear the live subscription down before the HTTP server so no events
	// are applied to a board nobody can read.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Console gracefully stopped")
}
