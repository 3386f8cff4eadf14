package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"course-chat/internal/auth"
	"course-chat/internal/config"
	"course-chat/internal/db"
	"course-chat/internal/fanout"
	"course-chat/internal/handlers"
	"course-chat/internal/logger"
	"course-chat/internal/middleware"
	"course-chat/internal/observability"
	"course-chat/internal/rabbitmq"
	"course-chat/internal/repositories"
	"course-chat/internal/telemetry"
	"course-chat/internal/tracing"
	"course-chat/internal/ws"
)

const serviceName = "course-chat"

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, serviceName, cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init tracing")
	}

	database, err := db.Connect(cfg.DBDriver, cfg.DBDSN, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db")
	}
	defer database.Close()
	if err := db.Migrate(database); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate db")
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, "audit.chat", serviceName, cfg.Env, log)
	log.Info().
		Str("mode", rabbitmq.PublisherMode(publisher)).
		Str("noop_reason", rabbitmq.PublisherNoopReason(publisher)).
		Msg("event publisher ready")

	roomRepo := repositories.NewRoomRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	hub := ws.NewHub(log)
	var notifier fanout.Notifier = fanout.NewHubNotifier(hub)
	if cfg.RedisURL != "" {
		redisNotifier, err := fanout.NewRedisNotifier(ctx, cfg.RedisURL, hub, log)
		if err != nil {
			log.Warn().Err(err).Msg("redis fanout disabled, delivering locally")
		} else {
			defer redisNotifier.Close()
			notifier = redisNotifier
			go func() {
				if err := redisNotifier.Run(ctx); err != nil {
					log.Error().Err(err).Msg("redis fanout stopped")
				}
			}()
		}
	}

	if cfg.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET not set, using development secret")
		cfg.JWTSecret = "dev-secret"
	}
	validator := auth.NewValidator(cfg.JWTSecret)

	roomHandler := handlers.NewRoomHandler(roomRepo, messageRepo, notifier, audit, log, cfg.DefaultPageSize, cfg.MaxPageSize)
	roomWS := ws.NewRoomWebSocketHandler(hub, roomRepo, validator, log)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logger(log),
		otelgin.Middleware(serviceName),
		observability.HTTPMetricsMiddleware(),
	)

	router.GET("/healthz", healthHandler(database.PingContext))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := middleware.AuthMiddleware(validator)
	rooms := router.Group("/rooms", authMiddleware)
	rooms.GET("/:room_id/messages", roomHandler.GetMessages)
	rooms.POST("/:room_id/messages", roomHandler.PostMessage)

	router.GET("/ws/rooms/:room_id", roomWS.Handle)

	handlers.RegisterDebugRoutes(router, audit, hub, cfg.DebugRoutes)

	serve(ctx, log, &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("tracing shutdown")
	}
}

func serve(ctx context.Context, log zerolog.Logger, srv *http.Server) {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("server error")
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
}

func healthHandler(ping func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
