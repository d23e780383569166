package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/darkelleven/agrochain/src/agro-trade/internal/config"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/httpapi"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/metrics"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/query"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/service"
	"github.com/darkelleven/agrochain/src/agro-trade/internal/store"
	"github.com/darkelleven/agrochain/src/internal/events"
	"github.com/darkelleven/agrochain/src/internal/httpclient"
	"github.com/darkelleven/agrochain/src/internal/identity"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "development" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting agro-trade",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"store_type", cfg.StoreType,
	)

	// Initialize store
	var entityStore store.Store
	var mongoClient *mongo.Client

	switch cfg.StoreType {
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		clientOpts := options.Client().ApplyURI(cfg.MongoURI)
		var mongoErr error
		mongoClient, mongoErr = mongo.Connect(ctx, clientOpts)
		if mongoErr != nil {
			slog.Error("failed to connect to mongodb", "error", mongoErr)
			os.Exit(1)
		}

		if err := mongoClient.Ping(ctx, nil); err != nil {
			slog.Error("failed to ping mongodb", "error", err)
			os.Exit(1)
		}

		mongoStore := store.NewMongoStore(mongoClient, cfg.MongoDB, cfg.MongoTransactions)
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			slog.Warn("failed to create indexes", "error", err)
		}
		entityStore = mongoStore
		slog.Info("using mongodb store", "uri", cfg.MongoURI, "db", cfg.MongoDB, "transactions", cfg.MongoTransactions)

	case "firestore":
		var storeErr error
		entityStore, storeErr = store.NewFirestoreStore(cfg.FirestoreProjectID, cfg.FirestoreCollectionPrefix)
		if storeErr != nil {
			slog.Error("failed to initialize firestore", "error", storeErr)
			os.Exit(1)
		}
		slog.Info("using firestore store", "project", cfg.FirestoreProjectID, "prefix", cfg.FirestoreCollectionPrefix)

	default:
		entityStore = store.NewMemoryStore()
		slog.Info("using in-memory store (development mode)")
	}
	defer func() { _ = entityStore.Close() }()
	if mongoClient != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mongoClient.Disconnect(ctx); err != nil {
				slog.Error("failed to disconnect mongodb", "error", err)
			}
		}()
	}

	// Event sinks
	var sinks []events.Sink
	if cfg.EventWebhookURL != "" {
		client := httpclient.NewClientWithRetry("agro-trade", 10*time.Second, httpclient.DefaultRetryConfig())
		if cfg.EventWebhookSecret != "" {
			client = client.WithAuth(&httpclient.HeaderAuth{Header: "X-Webhook-Secret", Value: cfg.EventWebhookSecret})
		}
		sinks = append(sinks, events.NewWebhookSink(cfg.EventWebhookURL, client))
		slog.Info("publishing events to webhook", "url", cfg.EventWebhookURL)
	}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			slog.Error("failed to initialize kafka sink", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, kafkaSink)
		slog.Info("publishing events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	publisher := events.NewPublisherWithQueue("agro-trade", cfg.EventQueueSize, sinks...)
	defer func() { _ = publisher.Close() }()

	tokens, err := identity.NewTokens(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.TokenTTL)
	if err != nil {
		slog.Error("failed to initialize token service", "error", err)
		os.Exit(1)
	}

	// Initialize service
	recorder := metrics.NewRecorder()
	svc := service.New(entityStore,
		service.WithPublisher(publisher),
		service.WithObserver(recorder),
	)
	views := query.NewViews(entityStore, cfg.ActivityFeedLimit)

	// Setup HTTP router
	router := httpapi.NewRouter(svc, views, tokens, recorder.Handler())

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
