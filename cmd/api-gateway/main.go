package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/sma-exam-api/api/swagger"
	"github.com/noah-isme/sma-exam-api/internal/handler"
	"github.com/noah-isme/sma-exam-api/internal/middleware"
	"github.com/noah-isme/sma-exam-api/internal/models"
	"github.com/noah-isme/sma-exam-api/internal/repository"
	"github.com/noah-isme/sma-exam-api/internal/service"
	"github.com/noah-isme/sma-exam-api/pkg/cache"
	"github.com/noah-isme/sma-exam-api/pkg/config"
	"github.com/noah-isme/sma-exam-api/pkg/database"
	"github.com/noah-isme/sma-exam-api/pkg/jobs"
	"github.com/noah-isme/sma-exam-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-exam-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-exam-api/pkg/middleware/requestid"
)

// @title SMA Exam API
// @version 0.1.0
// @description Exam lifecycle and result aggregation service
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, statistics caching disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	examRepo := repository.NewExamRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Stats.CacheTTL, logr,
		cfg.Stats.CacheEnabled && redisClient != nil)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	resultSvc := service.NewResultService(examRepo, cacheSvc, cfg.Stats.CacheTTL, logr)

	statsQueue := jobs.NewQueue("exam-stats", resultSvc.StatsRefreshHandler(), jobs.QueueConfig{
		Workers:    cfg.Stats.RefreshWorkers,
		MaxRetries: cfg.Stats.RefreshRetries,
		RetryDelay: cfg.Stats.RefreshInterval,
		Logger:     logr,
	})

	examSvc := service.NewExamService(service.ExamServiceParams{
		Store:           examRepo,
		Cache:           cacheSvc,
		StatsQueue:      statsQueue,
		Metrics:         metricsSvc,
		Validator:       validate,
		Logger:          logr,
		UpdateRetries:   cfg.Exams.UpdateRetries,
		PassingRatio:    cfg.Exams.PassingRatio,
		EnforceCapacity: cfg.Exams.EnforceCapacity,
	})

	examHandler := handler.NewExamHandler(examSvc)
	resultHandler := handler.NewResultHandler(resultSvc)
	authHandler := handler.NewAuthHandler(authSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Scrape)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	authed.GET("/auth/me", authHandler.Me)

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin)
	evaluators := middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin, models.RoleSuperAdmin)

	authed.GET("/exams", examHandler.List)
	authed.GET("/exams/:id", examHandler.Get)
	authed.POST("/exams", staff, examHandler.Create)
	authed.PATCH("/exams/:id", staff, examHandler.Update)
	authed.DELETE("/exams/:id", staff, examHandler.Delete)
	authed.POST("/exams/:id/publish", staff, examHandler.Publish)
	authed.POST("/exams/:id/cancel", staff, examHandler.Cancel)
	authed.POST("/exams/:id/postpone", staff, examHandler.Postpone)
	authed.POST("/exams/:id/begin", staff, examHandler.Begin)
	authed.POST("/exams/:id/complete", staff, examHandler.Complete)
	authed.POST("/exams/:id/results/publish", staff, examHandler.PublishResults)
	authed.POST("/exams/:id/answer-key/publish", staff, examHandler.PublishAnswerKey)
	authed.POST("/exams/:id/registrations", examHandler.RegisterStudent)
	authed.POST("/exams/:id/results", evaluators, examHandler.AddResult)

	authed.GET("/exams/:id/statistics", evaluators, resultHandler.Statistics)
	authed.GET("/exams/:id/results/export", evaluators, resultHandler.Export)
	authed.GET("/students/:studentId/results",
		middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin, models.RoleSuperAdmin, "SELF"),
		resultHandler.StudentResults)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	statsQueue.Start(rootCtx)
	defer statsQueue.Stop()

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
