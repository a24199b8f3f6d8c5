package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/Enochteo/web103-finalproject/api/swagger"
	"github.com/Enochteo/web103-finalproject/internal/handler"
	"github.com/Enochteo/web103-finalproject/internal/middleware"
	"github.com/Enochteo/web103-finalproject/internal/models"
	"github.com/Enochteo/web103-finalproject/internal/repository"
	"github.com/Enochteo/web103-finalproject/internal/service"
	"github.com/Enochteo/web103-finalproject/pkg/cache"
	"github.com/Enochteo/web103-finalproject/pkg/config"
	"github.com/Enochteo/web103-finalproject/pkg/database"
	"github.com/Enochteo/web103-finalproject/pkg/logger"
	corsmiddleware "github.com/Enochteo/web103-finalproject/pkg/middleware/cors"
	reqidmiddleware "github.com/Enochteo/web103-finalproject/pkg/middleware/requestid"
)

// @title Campus Maintenance API
// @version 1.0.0
// @description Request lifecycle and access-control service for campus maintenance.
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, true)
		}
	}

	auditSvc := service.NewAuditService(repository.NewAuditRepository(db), cfg.Audit, logr)
	auditSvc.Start(context.Background())
	defer auditSvc.Stop()

	requestRepo := repository.NewRequestRepository(db)
	userRepo := repository.NewUserRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	}, auditSvc)
	userSvc := service.NewUserService(userRepo, nil, logr, auditSvc)
	categorySvc := service.NewCategoryService(categoryRepo, nil, logr, cacheSvc, auditSvc)
	requestSvc := service.NewRequestService(requestRepo, userRepo, categoryRepo, nil, logr, cacheSvc, auditSvc)
	resolutionSvc := service.NewResolutionService(requestRepo, repository.IsUniqueViolation, nil, logr, cacheSvc, auditSvc)
	exportSvc := service.NewExportService(requestRepo, cfg.Exports, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	categoryHandler := handler.NewCategoryHandler(categorySvc)
	requestHandler := handler.NewRequestHandler(requestSvc, exportSvc)
	resolutionHandler := handler.NewResolutionHandler(resolutionSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

	api.GET("/categories", categoryHandler.List)
	categories := api.Group("/categories", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	categories.POST("", categoryHandler.Create)
	categories.DELETE("/:id", categoryHandler.Delete)

	users := api.Group("/users", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin))
	users.GET("", userHandler.List)
	users.POST("", userHandler.Create)

	requests := api.Group("/requests")
	requests.GET("", middleware.OptionalJWT(authSvc), requestHandler.List)
	requests.GET("/mine", middleware.JWT(authSvc), requestHandler.Mine)
	requests.GET("/assigned", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleTechnician), requestHandler.Assigned)
	requests.GET("/export", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin), requestHandler.Export)
	requests.GET("/:id", middleware.OptionalJWT(authSvc), requestHandler.Get)
	requests.GET("/:id/resolution", middleware.OptionalJWT(authSvc), resolutionHandler.Get)
	api.GET("/resolutions", middleware.OptionalJWT(authSvc), resolutionHandler.List)
	requests.POST("", middleware.JWT(authSvc), requestHandler.Create)
	requests.PATCH("/:id", middleware.JWT(authSvc), requestHandler.Update)
	requests.DELETE("/:id", middleware.JWT(authSvc), requestHandler.Delete)
	requests.PATCH("/:id/assign", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin), requestHandler.Assign)
	requests.PATCH("/:id/status", middleware.JWT(authSvc), requestHandler.UpdateStatus)
	requests.POST("/:id/resolution", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleTechnician), resolutionHandler.Record)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
