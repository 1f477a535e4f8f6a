package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/sahabatquran/classgen-api/api/swagger"
	"github.com/sahabatquran/classgen-api/internal/handler"
	"github.com/sahabatquran/classgen-api/internal/middleware"
	"github.com/sahabatquran/classgen-api/internal/models"
	"github.com/sahabatquran/classgen-api/internal/repository"
	"github.com/sahabatquran/classgen-api/internal/service"
	"github.com/sahabatquran/classgen-api/pkg/cache"
	"github.com/sahabatquran/classgen-api/pkg/config"
	"github.com/sahabatquran/classgen-api/pkg/database"
	"github.com/sahabatquran/classgen-api/pkg/logger"
	corsmiddleware "github.com/sahabatquran/classgen-api/pkg/middleware/cors"
	reqidmiddleware "github.com/sahabatquran/classgen-api/pkg/middleware/requestid"
)

// @title ClassGen API
// @version 0.1.0
// @description Class generation and optimization engine for term planning
// @BasePath /api/v1
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
	sugar := logr.Sugar()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		sugar.Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Readiness checks fall back to recomputing on every call.
		sugar.Warnw("redis unavailable, continuing without cache", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	termRepo := repository.NewTermRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	levelRepo := repository.NewLevelAssignmentRepository(db)
	sizeRepo := repository.NewSizeConfigurationRepository(db)
	proposalRepo := repository.NewProposalRepository(db)
	logRepo := repository.NewGenerationLogRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	tokens := service.NewTokenService(cfg.JWT)
	metrics := service.NewMetricsService()
	readiness := service.NewReadinessService(termRepo, assessmentRepo, availabilityRepo, levelRepo, cacheRepo, cfg.Generation, logr)
	generation := service.NewGenerationService(readiness, assessmentRepo, availabilityRepo, levelRepo, sizeRepo, proposalRepo, logRepo, metrics, cfg.Generation, logr)
	refinement := service.NewRefinementService(proposalRepo, availabilityRepo, levelRepo, logRepo, metrics, cfg.Generation, logr)
	exports := service.NewExportService(proposalRepo, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	generation.StartQueue(ctx)
	defer generation.StopQueue()

	classgenHandler := handler.NewClassGenHandler(readiness, generation, refinement, exports)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	planners := middleware.RequireRoles(models.RoleAcademicAdmin, models.RoleAdminStaff)
	viewers := middleware.RequireRoles(models.RoleAcademicAdmin, models.RoleAdminStaff, models.RoleManagement)
	approvers := middleware.RequireRoles(models.RoleManagement)
	auditors := middleware.RequireRoles(models.RoleAcademicAdmin, models.RoleManagement)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokens))
	{
		api.GET("/terms/:id/generation/readiness", viewers, classgenHandler.Readiness)
		api.POST("/terms/:id/generation/proposals", planners, classgenHandler.Generate)
		api.GET("/terms/:id/generation/proposals", viewers, classgenHandler.ListProposals)
		api.GET("/terms/:id/generation/log", auditors, classgenHandler.History)
		api.GET("/generation/jobs/:id", planners, classgenHandler.JobStatus)
		api.GET("/generation/proposals/:id", viewers, classgenHandler.GetProposal)
		api.GET("/generation/proposals/:id/export", viewers, classgenHandler.ExportProposal)
		api.POST("/generation/proposals/:id/refine", planners, classgenHandler.Refine)
		api.POST("/generation/proposals/:id/approve", approvers, classgenHandler.Approve)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		sugar.Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	sugar.Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("server shutdown failed", "error", err)
	}
	sugar.Infow("server stopped")
}
