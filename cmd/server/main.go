package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/proyuen/invsync/internal/analytics"
	"github.com/proyuen/invsync/internal/propagation"
	"github.com/proyuen/invsync/internal/repository"
	"github.com/proyuen/invsync/internal/router"
	"github.com/proyuen/invsync/internal/service"
	"github.com/proyuen/invsync/internal/storefront"
	"github.com/proyuen/invsync/internal/webhook"
	"github.com/proyuen/invsync/pkg/cache"
	"github.com/proyuen/invsync/pkg/config"
	"github.com/proyuen/invsync/pkg/database"
	"github.com/proyuen/invsync/pkg/hasher"
	"github.com/proyuen/invsync/pkg/mq"
	"github.com/proyuen/invsync/pkg/snowflake"
	"github.com/proyuen/invsync/pkg/token"
)

func main() {
	// 1. Load configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Initialize snowflake ID generator
	if err := snowflake.Init(cfg.SnowflakeNodeID); err != nil {
		log.Fatalf("failed to initialize snowflake: %v", err)
	}

	// 3. Initialize database (connect & migrate)
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	txManager := database.NewTransactionManager(db)

	// 4. Repositories
	ledgerRepo := repository.NewLedgerRepository(db)
	mappingRepo := repository.NewMappingRepository(db)
	failureRepo := repository.NewFailureRepository(db)

	// 5. Redis-backed cache and lock, skipped entirely when unconfigured.
	var stockCache cache.StockCache
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = cache.NewRedisClient(&cfg.Redis)
		if err != nil {
			log.Fatalf("failed to initialize redis client: %v", err)
		}
		baseCache := cache.NewRedisCache(redisClient, "invsync")
		stockCache = cache.NewStockCache(cache.BuildDecoratedCache(baseCache))
	} else {
		log.Println("redis not configured; stock reads fall through to the database and mapping refreshes are unserialized")
	}

	// 6. Domain services
	inventorySvc := service.NewInventoryService(ledgerRepo, txManager, stockCache, cfg.BackordersDefault)

	storefrontClient := storefront.NewClient()
	mappingSvc := service.NewMappingService(storefrontClient, mappingRepo, ledgerRepo, txManager, redisClient, cfg.BackordersDefault)

	// 7. Propagation fan-out: one long-lived worker goroutine draining a
	// bounded queue.
	queue := propagation.NewQueue(cfg.Propagation.QueueCapacity)
	worker := propagation.NewWorker(queue, cfg, mappingRepo, failureRepo, storefrontClient)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go worker.Run(workerCtx)

	// 8. Analytics sink: no-op unless a broker URL is configured.
	var analyticsSink analytics.Sink = analytics.NewNoopSink()
	if cfg.Analytics.RabbitMQURL != "" {
		brokerLogger := slog.New(slog.NewTextHandler(os.Stdout, nil))
		client, err := mq.NewRabbitMQ(cfg.Analytics.RabbitMQURL, brokerLogger)
		if err != nil {
			log.Fatalf("failed to initialize analytics broker: %v", err)
		}
		analyticsSink = analytics.NewBrokerSink(client, cfg.Analytics.Exchange, cfg.Analytics.WorkerCount, cfg.Analytics.QueueDepth)
	}
	defer analyticsSink.Close()

	// 9. Admin token maker, only needed when JWT auth is selected.
	var tokenMaker token.Maker
	if cfg.Admin.JWTSecret != "" {
		tokenMaker, err = token.NewJWTMaker(cfg.Admin.JWTSecret)
		if err != nil {
			log.Fatalf("failed to create admin token maker: %v", err)
		}
	}

	// 10. HTTP surface
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	webhookHandler := webhook.NewHandler(inventorySvc, queue, analyticsSink, cfg.Webhook)
	adminHandler := webhook.NewAdminHandler(mappingSvc, inventorySvc, cfg, hasher.NewBcryptHasher(0), tokenMaker)
	engine := router.NewRouter(webhookHandler, adminHandler, cfg.Webhook, cfg.Admin, tokenMaker).InitRoutes()

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: engine}

	go func() {
		log.Printf("server starting on %s in %s mode...", addr, cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	// Drain in-flight propagation jobs before exiting.
	worker.Shutdown(time.Duration(cfg.Propagation.DrainTimeoutSecond) * time.Second)
}
