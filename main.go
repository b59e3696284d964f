package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	grpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"realtime-chat/internal/chat"
	"realtime-chat/internal/config"
	"realtime-chat/internal/db"
	grpcclient "realtime-chat/internal/grpc"
	"realtime-chat/internal/handlers"
	"realtime-chat/internal/identity"
	"realtime-chat/internal/middleware"
	"realtime-chat/internal/observability"
	"realtime-chat/internal/rabbitmq"
	"realtime-chat/internal/repositories"
	"realtime-chat/internal/repositories/memory"
	"realtime-chat/internal/telemetry"
	"realtime-chat/internal/ws"
)

const auditRoutingKey = "audit.chat"

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).
		With("service", cfg.ServiceName, "env", cfg.Environment)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx)
	}()

	messageRepo, userRepo, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	auditEmitter := telemetry.NewAuditEmitter(publisher, auditRoutingKey, cfg.ServiceName, cfg.Environment, logger)

	resolver, closeResolver, err := newResolver(cfg)
	if err != nil {
		logger.Error("failed to build identity resolver", "mode", cfg.IdentityMode, "error", err)
		os.Exit(1)
	}
	defer closeResolver()

	hub := ws.NewHub(logger)
	engine := chat.NewEngine(chat.Deps{
		Messages:  messageRepo,
		Users:     userRepo,
		Transport: hub,
		Audit:     auditEmitter,
		Logger:    logger,
	}, chat.Config{
		RecentPublicLimit:  cfg.RecentPublicLimit,
		RecentPrivateLimit: cfg.RecentPrivateLimit,
		HistoryLimit:       cfg.HistoryLimit,
	})
	wsHandler := ws.NewHandler(hub, engine, resolver, cfg.CORSOrigin, logger)
	chatHandler := handlers.NewChatHandler(messageRepo, userRepo, cfg.HistoryLimit)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": hub.Len()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", wsHandler.Handle)

	authMiddleware := middleware.AuthMiddleware(resolver)
	router.GET("/users", authMiddleware, chatHandler.ListUsers)
	router.GET("/messages/public", authMiddleware, chatHandler.GetPublicMessages)
	router.GET("/messages/private/:user_id", authMiddleware, chatHandler.GetPrivateMessages)
	router.GET("/messages/unread", authMiddleware, chatHandler.GetUnreadMessages)

	handlers.RegisterDebugRoutes(router, auditEmitter, cfg.DebugRoutes)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("chat service listening", "port", cfg.Port, "store", cfg.StoreDriver, "identity", cfg.IdentityMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub.CloseAll()
	engine.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (repositories.MessageRepository, repositories.UserRepository, func(), error) {
	switch cfg.StoreDriver {
	case "mongo":
		database, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = database.Client().Disconnect(closeCtx)
		}
		return repositories.NewMongoMessageRepo(database), repositories.NewMongoUserRepo(database), closeFn, nil
	case "postgres":
		database, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return repositories.NewMessageRepo(database), repositories.NewUserRepo(database), func() { _ = database.Close() }, nil
	default:
		logger.Warn("using in-memory store, state is lost on restart", "driver", cfg.StoreDriver)
		return memory.NewMessageStore(), memory.NewUserStore(), func() {}, nil
	}
}

func newResolver(cfg config.Config) (identity.Resolver, func(), error) {
	if cfg.IdentityMode == "grpc" {
		conn, err := grpc.Dial(cfg.AuthGRPCAddr,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
			grpc.WithUnaryInterceptor(observability.GRPCClientMetricsUnaryInterceptor()),
		)
		if err != nil {
			return nil, nil, err
		}
		return grpcclient.NewAuthClient(conn), func() { _ = conn.Close() }, nil
	}

	resolver, err := identity.NewJWTResolver(cfg.JWTSecret)
	if err != nil {
		return nil, nil, err
	}
	return resolver, func() {}, nil
}
