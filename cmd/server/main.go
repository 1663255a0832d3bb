package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace_chat/internal/config"
	"marketplace_chat/internal/domain"
	"marketplace_chat/internal/handler"
	"marketplace_chat/internal/middleware"
	"marketplace_chat/internal/relay"
	"marketplace_chat/internal/repository"
	"marketplace_chat/internal/repository/memory"
	"marketplace_chat/internal/service"
	"marketplace_chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	appLogger := logger.New(cfg.Log.Level)

	repos, closeStores := openRepositories(cfg, appLogger)
	defer closeStores()

	// Профили у внешнего провайдера, если он задан
	if cfg.Identity.ProfileURL != "" {
		repos.Profile = repository.NewHTTPProfileRepository(cfg.Identity.ProfileURL, cfg.Identity.Timeout, appLogger)
		appLogger.Info("Using external profile provider", "url", cfg.Identity.ProfileURL)
	}

	// Инициализация сервисов
	services := service.NewServices(repos, cfg, appLogger)

	// Реле и монитор живости
	chatRelay := relay.New(services, cfg.Relay, appLogger)
	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	go relay.NewLivenessMonitor(chatRelay, cfg.Relay.PingInterval, appLogger).Run(monitorCtx)

	// Инициализация middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT, appLogger)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(services.RateLimit, appLogger)
	if !authMiddleware.Enabled() {
		appLogger.Warn("JWT_SECRET is not set, identity checks are disabled")
	}

	// Инициализация handlers
	handlers := handler.NewHandlers(services, chatRelay, cfg, appLogger)

	// Настройка роутера
	router := setupRouter(handlers, authMiddleware, rateLimitMiddleware, cfg, appLogger)

	// Запуск HTTP сервера
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		appLogger.Info("Starting server", "port", cfg.Server.Port, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Ожидание сигнала для graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	stopMonitor()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}

	// websocket-соединения захвачены и Shutdown их не закрывает
	if err := chatRelay.Shutdown(ctx); err != nil {
		appLogger.Error("Relay shutdown incomplete", "error", err)
	}

	appLogger.Info("Server exited")
}

// openRepositories подключает хранилища выбранного драйвера
func openRepositories(cfg *config.Config, appLogger logger.Logger) (*repository.Repositories, func()) {
	if cfg.Storage.Driver == config.StorageDriverMemory {
		appLogger.Warn("Using in-memory storage, data is lost on restart")
		return memory.NewRepositories(), func() {}
	}

	// Подключение к PostgreSQL
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN)
	if err != nil {
		appLogger.Fatal("Invalid database DSN", "error", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConnections)
	poolCfg.MaxConnIdleTime = cfg.Database.MaxIdleTime
	poolCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime

	dbPool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", "error", err)
	}

	// Проверка подключения к БД
	if err := dbPool.Ping(context.Background()); err != nil {
		appLogger.Fatal("Failed to ping database", "error", err)
	}
	appLogger.Info("Database connection established")

	// Подключение к Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Проверка подключения к Redis
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		appLogger.Fatal("Failed to connect to Redis", "error", err)
	}
	appLogger.Info("Redis connection established")

	return repository.NewRepositories(dbPool, rdb, appLogger), func() {
		_ = rdb.Close()
		dbPool.Close()
	}
}

func setupRouter(
	handlers *handler.Handlers,
	authMiddleware *middleware.AuthMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	cfg *config.Config,
	log logger.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.Relay.AllowedOrigins))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler())

	// Health check
	router.GET("/health", handlers.Health.Check)
	router.GET("/server-info", handlers.Health.ServerInfo)

	// API v1
	v1 := router.Group("/api/v1")
	v1.Use(authMiddleware.Identify())
	{
		chats := v1.Group("/chats")
		{
			chats.POST("/resolve",
				rateLimitMiddleware.Limit(domain.RateLimitRule{
					Scope:  domain.RateLimitScopeResolve,
					Limit:  cfg.RateLimit.ResolvePerMinute,
					Window: time.Minute,
				}),
				handlers.Chat.Resolve,
			)
			chats.GET("/:id", handlers.Chat.Get)
			chats.GET("/:id/messages", handlers.Chat.GetMessages)
			chats.GET("/:id/stats", handlers.Stats.GetChatStats)
			chats.DELETE("/:id", authMiddleware.RequireQueryUser("userUid"), handlers.Chat.Close)
		}

		v1.GET("/presence/:uid", handlers.Presence.Get)
	}

	// WebSocket endpoint чата
	router.GET("/ws", authMiddleware.Identify(), authMiddleware.RequireQueryUser("userUid"), handlers.WebSocket.HandleChat)

	return router
}
