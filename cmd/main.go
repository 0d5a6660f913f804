/*
Package main is the entry point for the messenger realtime service.

It is responsible for loading configuration, initializing the global logging system, connecting
to Postgres, Redis and Kafka, wiring the chat core to the WebSocket gateway, and gracefully
handling operating system interrupt signals (SIGINT, SIGTERM) to ensure a smooth shutdown.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"messenger/internal/app/attachments"
	"messenger/internal/app/broadcast"
	"messenger/internal/app/broker"
	"messenger/internal/app/chat"
	"messenger/internal/app/db"
	"messenger/internal/app/gateway"
	"messenger/internal/app/identity"
	"messenger/internal/app/registry"
	"messenger/internal/app/storage"
	"messenger/internal/configs"
	"messenger/internal/handler"
	"messenger/internal/pkg/logx"
	"messenger/internal/pkg/randx"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment())

	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID = randx.InstanceID()
		logx.Warn("INSTANCE_ID is not set, using a random id: every start creates a new reply topic and consumer group",
			"instance_id", instanceID)
	}
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Str("instance_id", instanceID).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("identity_mode", cfg.IdentityMode).
		Str("presence_counterparts", cfg.PresenceCounterparts).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, instanceID); err != nil {
		logx.Fatal(err, "Server stopped with error")
	}

	logx.Info("Server gracefully stopped.")
}

func run(ctx context.Context, cfg *configs.AppConfig, instanceID string) error {
	checks := make(map[string]handler.Pinger)

	// Postgres
	pool, err := db.NewPool(ctx, cfg.DatabaseDSN, db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()
	checks["postgres"] = pool

	// Connection registry and cross-instance relay
	var (
		reg   registry.Registry
		relay gateway.Relay
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })

		reg = registry.NewRedis(rdb, cfg.RegistryPrefix)
		relay = gateway.NewRedisRelay(rdb, cfg.RegistryPrefix)
	} else {
		logx.Warn("REDIS_ADDR not set. Using the in-process registry; run a single instance only.")
		reg = registry.NewMemory()
		relay = gateway.NopRelay{}
	}

	// Broker
	writer := broker.NewKafkaWriter(cfg.KafkaBrokers)
	rpc := broker.NewClient(broker.ClientConfig{
		Writer:     writer,
		Replies:    broker.NewKafkaReader(cfg.KafkaBrokers, replyTopic(instanceID), replyGroup(instanceID)),
		ReplyTopic: replyTopic(instanceID),
		Timeout:    cfg.RPCTimeout,
	})
	defer rpc.Close()

	requests := broker.NewKafkaReader(cfg.KafkaBrokers, cfg.ChatRPCTopic, "messenger")
	defer requests.Close()
	responder := broker.NewResponder(requests, writer)

	// Collaborators
	decodeOnly := cfg.TokenCheck == configs.TokenCheckDecode
	var ident identity.Service
	if cfg.IdentityMode == configs.IdentityModeLocal {
		ident = identity.NewLocalClient(cfg.JWTSecret, decodeOnly)
	} else {
		ident = identity.NewBrokerClient(rpc, cfg.IdentityTopic, decodeOnly)
	}

	var signer chat.URLSigner
	if cfg.S3Enabled() {
		storageService, err := storage.NewStorageService(ctx, storage.ServiceConfig{
			S3BucketName:      cfg.S3BucketName,
			S3Endpoint:        cfg.S3Endpoint,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		signer = storageService
	}

	// Chat core
	chats := chat.NewService(chat.ServiceDeps{
		Store:       db.NewChatStore(pool),
		Users:       ident,
		Attachments: attachments.NewBrokerClient(rpc, cfg.AttachmentsTopic),
		Signer:      signer,
	})
	handler.RegisterRPCHandlers(responder, chats)

	var counterparts broadcast.CounterpartSource = broadcast.CounterpartFunc(chats.LocalPartners)
	if cfg.PresenceCounterparts == configs.CounterpartsFriends {
		counterparts = broadcast.CounterpartFunc(ident.FriendIDs)
	}

	// Realtime surface
	hub := gateway.NewHub(instanceID, relay)
	dispatcher := broadcast.NewDispatcher(broadcast.Config{
		Registry:     reg,
		Deliverer:    hub,
		Chats:        chats,
		Counterparts: counterparts,
	})

	gwCtx, cancelConnections := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelConnections()

	gw := gateway.New(gwCtx, gateway.Config{
		Hub:       hub,
		Auth:      ident,
		Registry:  reg,
		Status:    dispatcher,
		Chats:     chats,
		Broadcast: dispatcher,
	})

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr: serverAddr,
		Handler: handler.Router(ctx, &handler.AppDeps{
			Gateway:    gw,
			Config:     cfg,
			InstanceID: instanceID,
			Checks:     checks,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return rpc.Run(gctx) })
	g.Go(func() error { return responder.Run(gctx) })

	g.Go(func() error {
		logx.Info(fmt.Sprintf("Messenger starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// Wait for interrupt signal, or for a component to fail, to shut down gracefully.
	g.Go(func() error {
		<-gctx.Done()
		logx.Info("Received shutdown signal. Starting graceful shutdown...")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logx.Error(err, "Server forced to shutdown")
		}

		hub.Stop()
		cancelConnections()
		return nil
	})

	return g.Wait()
}

// replyTopic is the topic broker replies to this instance arrive on. With a random instance id
// it is new on every start; stale topics are left to the broker's retention settings.
func replyTopic(instanceID string) string {
	return "messenger.replies." + instanceID
}

func replyGroup(instanceID string) string {
	return "messenger-replies-" + instanceID
}
