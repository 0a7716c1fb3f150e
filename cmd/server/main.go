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

	"github.com/Haseeb-U/RequestApprover/internal/config"
	"github.com/Haseeb-U/RequestApprover/internal/middleware"
	"github.com/Haseeb-U/RequestApprover/internal/pass/entity"
	"github.com/Haseeb-U/RequestApprover/internal/pass/handler"
	"github.com/Haseeb-U/RequestApprover/internal/pass/repository"
	"github.com/Haseeb-U/RequestApprover/internal/pass/service"
	"github.com/Haseeb-U/RequestApprover/internal/shared/mailer"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// .env 可选，生产环境直接用环境变量
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting request-approver service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := migrate(db); err != nil {
		zapLogger.Fatal("Failed to migrate database", zap.Error(err))
	}

	ctx := context.Background()
	if err := seedRequestTypes(ctx, db); err != nil {
		zapLogger.Fatal("Failed to seed request types", zap.Error(err))
	}

	rdb := initRedis(cfg.Redis)

	minioClient, err := initMinIO(cfg.MinIO)
	if err != nil {
		// 附件上传不可用不阻断启动
		zapLogger.Warn("MinIO unavailable, attachment upload disabled", zap.Error(err))
	}

	var sender mailer.Sender
	smtpClient := mailer.NewClient(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From)
	if smtpClient.Enabled() {
		sender = smtpClient
	} else {
		zapLogger.Warn("SMTP not configured, mail notifications disabled")
	}

	services, err := service.NewServices(ctx, db, rdb, sender, cfg)
	if err != nil {
		zapLogger.Fatal("Failed to init services", zap.Error(err))
	}
	handlers := handler.NewHandlers(services, minioClient, cfg)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())

	registerRoutes(router, handlers, cfg)

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
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

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.User{},
		&entity.Admin{},
		&entity.RequestType{},
		&entity.ApprovalChainEntry{},
		&entity.RequestInitiator{},
		&entity.Request{},
		&entity.RequestApproval{},
		&entity.OutwardPass{},
		&entity.InwardPass{},
	)
}

// seedRequestTypes 播种内置请求类型
func seedRequestTypes(ctx context.Context, db *gorm.DB) error {
	chains := repository.NewChainRepository(db)
	for _, name := range []string{entity.PassKindOutward, entity.PassKindInward} {
		if _, err := chains.EnsureType(ctx, name); err != nil {
			return fmt.Errorf("seed type %s: %w", name, err)
		}
	}
	return nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func initMinIO(cfg config.MinIOConfig) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint not configured")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return client, nil
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	v1 := r.Group("/api/v1")
	{
		// 认证 (无需登录)
		auth := v1.Group("/auth")
		{
			auth.GET("/azure/login", h.Auth.Login)
			auth.GET("/azure/callback", h.Auth.Callback)
			auth.POST("/refresh", h.Auth.Refresh)
		}

		// 需要认证的接口
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(cfg.JWT.Secret))
		{
			authorized.GET("/auth/me", h.Auth.Me)
			authorized.POST("/auth/logout", h.Auth.Logout)

			// 用户列表（审批链配置选人用）
			authorized.GET("/users", h.Chain.ListUsers)

			// 请求类型与审批链
			types := authorized.Group("/request-types")
			{
				types.GET("", h.Chain.ListTypes)
				types.GET("/:id/chain", h.Chain.GetChain)
				types.PUT("/:id/chain", middleware.RequireAdmin(), h.Chain.SetChain)
				types.PUT("/:id/initiators", middleware.RequireAdmin(), h.Chain.SetInitiators)
			}

			// 放行申请
			requests := authorized.Group("/requests")
			{
				requests.POST("", h.Request.Create)
				requests.GET("/:id", h.Request.Get)
				requests.GET("/:id/approvals", h.Request.ListApprovals)
				requests.POST("/:id/approve", h.Request.Approve)
				requests.POST("/:id/reject", h.Request.Reject)
			}

			// 我的视角
			my := authorized.Group("/my")
			{
				my.GET("/requests", h.Request.ListMine)
				my.GET("/requests/count", h.Request.CountMine)
				my.GET("/approvals", h.Request.ListMyApprovals)
				my.GET("/request-types", h.Chain.ListMyTypes)
			}

			// 附件上传
			authorized.POST("/uploads", h.Upload.Upload)
		}
	}
}
