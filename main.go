package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"roomchat-service/internal/auth"
	"roomchat-service/internal/bus"
	"roomchat-service/internal/cache"
	"roomchat-service/internal/config"
	"roomchat-service/internal/db"
	"roomchat-service/internal/handlers"
	"roomchat-service/internal/middleware"
	"roomchat-service/internal/observability"
	"roomchat-service/internal/rabbitmq"
	"roomchat-service/internal/repositories"
	"roomchat-service/internal/telemetry"
	"roomchat-service/internal/tracing"
	"roomchat-service/internal/ws"
)

const serviceName = "roomchat-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracing, err := tracing.Setup(context.Background(), cfg.OTLPEndpoint, serviceName)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	if eventPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange); err != nil {
		log.Printf("event publishing disabled: %v", err)
	} else {
		observability.SetPublisher(eventPublisher)
		defer eventPublisher.Close()
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer auditPublisher.Close()
	log.Printf("audit publisher mode=%s", rabbitmq.PublisherMode(auditPublisher))
	audit := telemetry.NewAuditEmitter(auditPublisher, "audit.roomchat", serviceName, cfg.Environment)

	var history cache.HistoryCache = cache.NoopHistoryCache{}
	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedisHistoryCache(cfg.RedisAddr, cfg.RedisDB, serviceName)
		if err != nil {
			log.Printf("history cache disabled: %v", err)
		} else {
			history = redisCache
			defer redisCache.Close()
		}
	}

	userRepo := repositories.NewUserRepo(database)
	sessionRepo := repositories.NewSessionRepo(database)
	roomRepo := repositories.NewRoomRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	credentials := auth.NewCredentialStore(userRepo)
	sessions := auth.NewSessionStore(sessionRepo)

	broadcast := bus.New()

	authHandler := handlers.NewAuthHandler(credentials, sessions, audit)
	roomHandler := handlers.NewRoomHandler(roomRepo, messageRepo, userRepo, history, cfg.ImageDir, audit)
	roomWS := ws.NewRoomWebSocketHandler(broadcast, roomRepo, messageRepo, history)

	router := newRouter(authHandler, roomHandler, roomWS, middleware.SessionGate(sessions), audit, cfg.Debug)

	if err := router.Run(cfg.Addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// newRouter assembles the gin engine: ambient middleware first, then the
// open endpoints, then everything behind the session gate.
func newRouter(authHandler *handlers.AuthHandler, roomHandler *handlers.RoomHandler, roomWS *ws.RoomWebSocketHandler, gate gin.HandlerFunc, audit *telemetry.AuditEmitter, debug bool) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(otelgin.Middleware(serviceName))

	router.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/register", authHandler.Register)
	router.POST("/login", authHandler.Login)

	router.GET("/rooms", gate, roomHandler.ListRooms)
	router.POST("/rooms", gate, roomHandler.CreateRoom)
	router.GET("/rooms/:room_id/messages", gate, roomHandler.RoomHistory)
	router.POST("/rooms/:room_id/invite", gate, roomHandler.InviteUser)
	router.GET("/users/search", gate, roomHandler.SearchUsers)

	router.GET("/ws/rooms/:room_id", gate, roomWS.Handle)

	handlers.RegisterDebugRoutes(router, audit, debug)
	return router
}
