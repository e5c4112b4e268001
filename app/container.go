package main

// PROPRIETARY AND CONFIDENTIAL
// This code contains trade secrets and confidential material of Orion Messenger.
// Any unauthorized use, disclosure, or duplication is strictly prohibited.
// © 2025 Orion Messenger. All rights reserved.

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"orion/app/config"
	"orion/internal/adapters"
	"orion/internal/handlers"
	"orion/internal/ports"
	"orion/internal/repositories"
	"orion/internal/services"
	"orion/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis"

	otelgin "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.12.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Container struct {
	isShuttingDown bool

	GinEngine   *gin.Engine
	Config      *config.Config
	Redis       *redis.Client
	RateLimiter *RateLimiter

	Metrics        *Metrics
	Logger         *slog.Logger
	TracerProvider *tracesdk.TracerProvider
	Tracer         trace.Tracer

	Server *http.Server

	Repository *repositories.RepositoryAdapter

	KeysService     *services.KeyBundleService
	MessageService  *services.MessageService
	DeliveryService *services.DeliveryService
	TokenService    *services.TokenService

	KeysHandler      *handlers.KeysHandler
	MessagesHandler  *handlers.MessagesHandler
	WebSocketHandler *handlers.WebSocketHandler

	WsHub *websocket.Hub
}

func NewContainer() (*Container, error) {
	container := &Container{}

	if err := container.initCore(); err != nil {
		return nil, err
	}

	if err := container.initProductionFeatures(); err != nil {
		return nil, err
	}

	return container, nil
}

func (c *Container) initCore() error {
	var cfg, err = config.LoadConfig()
	if err != nil {
		return err
	}
	c.Config = &cfg

	c.Logger = c.initLogger()
	c.Redis = c.initRedis()

	if err = c.initTracing(); err != nil {
		return err
	}

	keyRepo, messageRepo, err := c.initStores()
	if err != nil {
		return err
	}

	presenceRepo := adapters.NewRedisPresenceRepository(c.Redis)

	c.KeysService = services.NewKeyBundleService(keyRepo, c.Logger)
	c.MessageService = services.NewMessageService(messageRepo, c.Logger)
	c.DeliveryService = services.NewDeliveryService(messageRepo, presenceRepo, c.Logger)
	c.TokenService = services.NewTokenService(
		adapters.NewRedisTokenRepository(c.Redis), []byte(cfg.JWT.SecretKey), c.Logger)

	c.WsHub = websocket.NewHub(c.MessageService, c.DeliveryService, c.Logger)
	go c.WsHub.Run()

	c.MessageService.SetHub(c.WsHub)
	c.DeliveryService.SetHub(c.WsHub)

	c.RateLimiter = NewRateLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	c.Metrics = NewMetrics()

	c.KeysHandler = handlers.NewKeysHandler(c.KeysService, c.Logger, c.Tracer)
	c.MessagesHandler = handlers.NewMessagesHandler(c.MessageService, c.Logger, c.Tracer)
	c.WebSocketHandler = handlers.NewWebSocketHandler(c.WsHub, c.TokenService, c.Logger, c.Tracer)

	c.Server = c.initServer()
	c.GinEngine = c.initGinEngine()
	c.Server.Handler = c.GinEngine

	return nil
}

// initStores picks the persistence backend. The development profile can
// run without Postgres on the in-memory stores; production always goes
// through the repository adapter.
func (c *Container) initStores() (ports.IKeyBundleRepository, ports.IMessageRepository, error) {
	if c.Config.Database.InMemory {
		c.Logger.Warn("using in-memory stores, data will not survive a restart")
		return services.NewMemoryKeyBundleStore(), services.NewMemoryMessageStore(), nil
	}

	repository, err := repositories.NewRepositoryAdapter(c.Config.Database, c.Logger)
	if err != nil {
		c.Logger.Error("repository initialize error", "error", err.Error())
		return nil, nil, err
	}
	c.Repository = repository
	return repository.KeyBundle, repository.Message, nil
}

func (c *Container) initProductionFeatures() error {
	c.WsHub.ConnectionsGauge = c.Metrics.ActiveWebSockets

	c.initHealthRoutes(c.GinEngine)
	c.GinEngine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return nil
}

func (c *Container) initTracing() error {
	if !c.Config.Tracing.Enabled {
		c.Tracer = otel.Tracer(c.Config.Tracing.ServiceName)
		c.Logger.Info("tracing disabled")
		return nil
	}

	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(c.Config.Tracing.Endpoint)))
	if err != nil {
		return err
	}

	c.TracerProvider = tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(c.Config.Tracing.ServiceName),
			attribute.String("environment", c.Config.Environment.Current),
		)),
	)

	otel.SetTracerProvider(c.TracerProvider)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	c.Tracer = c.TracerProvider.Tracer(c.Config.Tracing.ServiceName)

	c.Logger.Info("tracing initialized", "endpoint", c.Config.Tracing.Endpoint)
	return nil
}

func (c *Container) initHealthRoutes(eng *gin.Engine) {
	eng.GET("/health", func(ctx *gin.Context) {
		health := map[string]string{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}

		if c.Repository != nil {
			if err := c.Repository.HealthCheck(ctx); err != nil {
				health["database"] = "unhealthy"
				health["status"] = "degraded"
				ctx.JSON(503, health)
				return
			}
			health["database"] = "healthy"
		}

		if err := c.Redis.Ping().Err(); err != nil {
			health["redis"] = "unhealthy"
			health["status"] = "degraded"
			ctx.JSON(503, health)
			return
		}

		health["redis"] = "healthy"
		ctx.JSON(200, health)
	})

	eng.GET("/ready", func(ctx *gin.Context) {
		if c.isShuttingDown {
			ctx.JSON(503, gin.H{"status": "shutting down"})
			return
		}
		ctx.JSON(200, gin.H{"status": "ready"})
	})

	eng.GET("/live", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "live"})
	})
}

func (c *Container) initGinEngine() *gin.Engine {
	var eng = gin.Default()

	if c.Config.Tracing.Enabled {
		eng.Use(otelgin.Middleware(c.Config.Tracing.ServiceName))
	}

	eng.Use(MetricsMiddleware(c.Metrics))
	eng.Use(services.SecurityMiddleware())
	eng.Use(services.RequestIDMiddleware())

	api := eng.Group("/api")

	api.Use(RateLimitMiddleware(c.RateLimiter))
	{
		keysGroup := api.Group("/keys")
		{
			keysGroup.POST("/identity", c.KeysHandler.RegisterIdentity)
			keysGroup.POST("/prekeys", c.KeysHandler.UploadPreKeys)
			keysGroup.GET("/bundle/:userId", c.KeysHandler.GetBundle)
		}

		chatsGroup := api.Group("/chats")
		chatsGroup.Use(handlers.AuthMiddleware(c.TokenService))
		{
			chatsGroup.GET("/:chatId/messages", c.MessagesHandler.GetChatMessages)
		}

		messagesGroup := api.Group("/messages")
		messagesGroup.Use(handlers.AuthMiddleware(c.TokenService))
		{
			messagesGroup.DELETE("/:messageId", c.MessagesHandler.DeleteMessage)
		}

		api.GET("/ws", c.WebSocketHandler.HandleWebSocket)
	}

	return eng
}

func (c *Container) initLogger() *slog.Logger {
	var logger *slog.Logger
	if c.Config.Environment.Current == "development" {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	slog.SetDefault(logger)
	return logger
}

func (c *Container) initRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Addr,
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
}

func (c *Container) initServer() *http.Server {
	return &http.Server{
		Addr:         ":" + c.Config.Server.Port,
		ReadTimeout:  time.Duration(c.Config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(c.Config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(c.Config.Server.IdleTimeout) * time.Second,
	}
}

func (c *Container) Close() error {
	c.isShuttingDown = true

	if c.Repository != nil {
		if err := c.Repository.Close(); err != nil {
			c.Logger.Error("failed to close repository", "error", err)
		}
	}

	if c.TracerProvider != nil {
		if err := c.TracerProvider.Shutdown(context.Background()); err != nil {
			c.Logger.Error("failed to shutdown tracer provider", "error", err)
		}
	}

	if c.Redis != nil {
		return c.Redis.Close()
	}

	return nil
}
