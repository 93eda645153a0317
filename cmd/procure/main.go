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

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Mickdownunder/kitchen-online-sub001/internal/config"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/middleware"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/entity"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/handler"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/repository"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/service"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/procurement/workflow"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/shared/mail"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/shared/outbox"
	"github.com/Mickdownunder/kitchen-online-sub001/internal/shared/storage"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting procurement engine",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := db.AutoMigrate(
		&entity.Project{},
		&entity.InstallationReservation{},
		&entity.Supplier{},
		&entity.Article{},
		&entity.LineItem{},
		&entity.SupplierOrder{},
		&entity.SupplierOrderItem{},
		&entity.SupplierOrderDispatchLog{},
		&entity.GoodsReceipt{},
		&entity.GoodsReceiptItem{},
		&outbox.Entry{},
	); err != nil {
		zapLogger.Warn("AutoMigrate warning", zap.Error(err))
	}

	rdb := initRedis(cfg.Redis)

	var docs storage.DocumentStore
	if cfg.MinIO.Endpoint != "" {
		store, err := storage.NewMinIOStore(storage.MinIOOptions{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		})
		if err != nil {
			zapLogger.Fatal("Failed to connect to MinIO", zap.Error(err))
		}
		if err := store.EnsureBucket(context.Background()); err != nil {
			zapLogger.Warn("MinIO bucket check failed", zap.Error(err))
		}
		docs = store
	} else {
		zapLogger.Warn("MinIO not configured, document upload disabled")
	}

	mailClient := mail.NewClient(cfg.Mail.BaseURL, cfg.Mail.APIKey, cfg.Mail.FromAddress)
	outboxRepo := outbox.NewRepository(db)
	dispatcher := outbox.NewDispatcher(outboxRepo, mailClient, zapLogger, cfg.Outbox.StaleAfter)

	repos := repository.NewRepositories(db)
	thresholds := workflow.Thresholds{
		UrgentDays:         cfg.Workflow.UrgentDays,
		OrderingWindowDays: cfg.Workflow.OrderingWindowDays,
	}

	bucketSvc := service.NewBucketService(repos, zapLogger, thresholds)
	orderSvc := service.NewOrderService(repos, dispatcher, zapLogger, cfg.Mail.FromName)
	receiptSvc := service.NewReceiptService(repos, zapLogger)
	reservationSvc := service.NewReservationService(repos, zapLogger)

	handlers := handler.NewHandlers(bucketSvc, orderSvc, receiptSvc, reservationSvc, dispatcher, docs, cfg.Outbox.BatchSize)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go runOutboxSweep(sweepCtx, dispatcher, cfg.Outbox.BatchSize, zapLogger)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	registerRoutes(router, handlers, rdb, cfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

// runOutboxSweep periodically re-drives queued, failed and stale outbox
// entries so crashed sends recover without manual intervention.
func runOutboxSweep(ctx context.Context, dispatcher *outbox.Dispatcher, batchSize int, logger *zap.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := dispatcher.ProcessBatch(ctx, batchSize)
			if err != nil {
				logger.Warn("Outbox sweep failed", zap.Error(err))
				continue
			}
			if stats.Processed > 0 {
				logger.Info("Outbox sweep",
					zap.Int("processed", stats.Processed),
					zap.Int("sent", stats.Sent),
					zap.Int("failed", stats.Failed),
				)
			}
		}
	}
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, rdb *redis.Client, cfg *config.Config) {
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1/procurement")
	api.Use(middleware.JWTAuth(cfg.JWT.Secret))
	api.Use(middleware.RateLimit(rdb, cfg.Server.RateLimit, cfg.Server.RateWindow))
	{
		api.GET("/buckets", h.Bucket.ListBuckets)
		api.GET("/buckets/export", h.Bucket.ExportBuckets)
		api.GET("/material-risk", h.Bucket.MaterialSnapshots)

		api.GET("/orders", h.Order.ListOrders)
		api.GET("/orders/:id", h.Order.GetOrder)
		api.POST("/orders/ensure", h.Order.EnsureOrder)
		api.POST("/orders/:id/send", h.Order.SendOrder)
		api.POST("/orders/:id/mark-ordered", h.Order.MarkOrdered)
		api.POST("/orders/:id/ab", h.Order.CaptureAB)
		api.POST("/orders/:id/ab/document", h.Order.UploadABDocument)
		api.POST("/orders/:id/delivery-note", h.Order.LinkDeliveryNote)
		api.POST("/orders/:id/cancel-items", h.Order.CancelItems)
		api.POST("/orders/:id/cancel", h.Order.CancelOrder)

		api.POST("/receipts", h.Receipt.BookReceipt)
		api.GET("/projects/:id/receipts", h.Receipt.ListProjectReceipts)

		api.POST("/projects/:id/reservation/request", h.Reservation.RequestReservation)
		api.POST("/projects/:id/reservation/confirm", h.Reservation.ConfirmReservation)

		api.POST("/outbox/process", h.Outbox.ProcessBatch)
		api.POST("/outbox/:id/redeliver", h.Outbox.Redeliver)
	}
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	if cfg.Host == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}
