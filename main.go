package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"journey-chat/internal/auth"
	"journey-chat/internal/cache"
	"journey-chat/internal/config"
	"journey-chat/internal/db"
	"journey-chat/internal/handlers"
	"journey-chat/internal/middleware"
	"journey-chat/internal/observability"
	"journey-chat/internal/rabbitmq"
	"journey-chat/internal/repositories"
	"journey-chat/internal/telemetry"
	"journey-chat/internal/validation"
	"journey-chat/internal/ws"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(ctx, cfg.AMQPURL, rabbitmq.Options{Exchange: cfg.AMQPExchange})
	defer publisher.Close()
	log.Printf("event publisher mode=%s reason=%q", rabbitmq.PublisherMode(publisher), rabbitmq.PublisherNoopReason(publisher))
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", cfg.ServiceName, cfg.Environment)

	roomRepo := repositories.NewRoomRepo(database)
	groupRepo := repositories.NewGroupRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	var profileRepo repositories.ProfileRepository = repositories.NewProfileRepo(database)

	if cfg.RedisAddr != "" {
		redisClient, err := cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			log.Printf("redis disabled, serving profiles from postgres: %v", err)
		} else {
			defer redisClient.Close()
			profileRepo = cache.NewCachedProfiles(profileRepo, cache.New(redisClient, "profile", cfg.ProfileTTL))
			log.Printf("profile cache enabled addr=%s ttl=%s", cfg.RedisAddr, cfg.ProfileTTL)
		}
	}

	tokens := auth.NewManager(cfg.JWTSecret, cfg.ServiceName, 24*time.Hour)
	validator := validation.New()
	hub := ws.NewHub()

	roomHandler := handlers.NewRoomHandler(roomRepo, groupRepo, messageRepo, profileRepo, hub, validator, cfg.MaxMessageSize, audit)
	groupHandler := handlers.NewGroupHandler(groupRepo, validator, audit)
	profileHandler := handlers.NewProfileHandler(profileRepo, validator)
	roomWS := ws.NewHandler(hub, roomRepo, messageRepo, profileRepo, tokens, validator, cfg.MaxMessageSize)

	router := gin.Default()

	// middlewares
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, audit, validator, cfg.DebugRoutes)

	authMiddleware := middleware.AuthMiddleware(tokens)
	v1 := router.Group("/v1")

	v1.POST("/rooms/private", authMiddleware, roomHandler.ResolvePrivate)
	v1.GET("/rooms/:room_id/messages", authMiddleware, roomHandler.GetRoomMessages)
	v1.POST("/rooms/:room_id/messages", authMiddleware, roomHandler.PostRoomMessage)

	v1.POST("/groups", authMiddleware, groupHandler.CreateGroup)
	v1.GET("/groups", authMiddleware, groupHandler.ListGroups)
	v1.GET("/groups/:group_id/room", authMiddleware, roomHandler.GetGroupRoom)

	v1.GET("/users/:user_id", authMiddleware, profileHandler.GetProfile)
	v1.PUT("/users/me", authMiddleware, profileHandler.UpsertMe)

	v1.GET("/ws", roomWS.Handle)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
