package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/unicampus/credits-api/api/swagger"
	"github.com/unicampus/credits-api/internal/handler"
	"github.com/unicampus/credits-api/internal/middleware"
	"github.com/unicampus/credits-api/internal/models"
	"github.com/unicampus/credits-api/internal/repository"
	"github.com/unicampus/credits-api/internal/service"
	"github.com/unicampus/credits-api/pkg/cache"
	"github.com/unicampus/credits-api/pkg/config"
	"github.com/unicampus/credits-api/pkg/database"
	"github.com/unicampus/credits-api/pkg/logger"
	corsmiddleware "github.com/unicampus/credits-api/pkg/middleware/cors"
	reqidmiddleware "github.com/unicampus/credits-api/pkg/middleware/requestid"
)

// @title Campus Credits API
// @version 1.0.0
// @description Enrollment and credit ledger service
// @BasePath /api/v1
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var cacheRepo service.CacheRepository
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, catalog cache disabled", "error", err)
	} else {
		defer redisClient.Close()
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Catalog.CacheTTL, logr, cfg.Catalog.CacheEnabled && cacheRepo != nil)

	studentRepo := repository.NewStudentRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	gradeRepo := repository.NewGradeRepository(db)

	defaultCredits := decimal.NewFromFloat(cfg.Credits.DefaultStudentCredits).Round(2)

	studentSvc := service.NewStudentService(db, studentRepo, ledgerRepo, defaultCredits, nil, logr)
	enrollmentSvc := service.NewEnrollmentService(db, studentRepo, groupRepo, enrollmentRepo, ledgerRepo, cfg.Credits.RefundWindowDays, metricsSvc, nil, logr)
	creditSvc := service.NewCreditService(db, ledgerRepo, studentRepo, metricsSvc, nil, logr)
	catalogSvc := service.NewCatalogService(subjectRepo, groupRepo, cacheSvc, nil, logr)
	gradeSvc := service.NewGradeService(db, gradeRepo, enrollmentRepo, groupRepo, nil, logr)

	studentHandler := handler.NewStudentHandler(studentSvc, enrollmentSvc, gradeSvc)
	creditHandler := handler.NewCreditHandler(creditSvc)
	catalogHandler := handler.NewCatalogHandler(catalogSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc)

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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(cfg.JWT.Secret))

	admin := string(models.RoleAdmin)
	professor := string(models.RoleProfessor)

	students := api.Group("/students")
	{
		students.GET("", middleware.RBAC(admin, professor), studentHandler.List)
		students.POST("", middleware.RBAC(admin), studentHandler.Create)
		students.GET("/:id", middleware.RBAC(admin, professor, "SELF"), studentHandler.Get)

		students.GET("/:id/enrollments", middleware.RBAC(admin, "SELF"), studentHandler.Enrollments)
		students.POST("/:id/enrollments", middleware.RBAC(admin, "SELF"), studentHandler.Enroll)
		students.DELETE("/:id/enrollments/:enrollmentId", middleware.RBAC(admin, "SELF"), studentHandler.Withdraw)
		students.GET("/:id/available-groups", middleware.RBAC(admin, "SELF"), studentHandler.AvailableGroups)
		students.GET("/:id/grades", middleware.RBAC(admin, professor, "SELF"), studentHandler.Transcript)

		students.GET("/:id/credits", middleware.RBAC(admin, "SELF"), creditHandler.History)
		students.POST("/:id/credits", middleware.RBAC(admin), creditHandler.Grant)
		students.GET("/:id/credits/balance", middleware.RBAC(admin, "SELF"), creditHandler.Balance)
		students.GET("/:id/credits/statement", middleware.RBAC(admin, "SELF"), creditHandler.Statement)
	}

	subjects := api.Group("/subjects")
	{
		subjects.GET("", catalogHandler.ListSubjects)
		subjects.GET("/:id", catalogHandler.GetSubject)
		subjects.POST("", middleware.RBAC(admin), catalogHandler.CreateSubject)
		subjects.PUT("/:id", middleware.RBAC(admin), catalogHandler.UpdateSubject)
		subjects.DELETE("/:id", middleware.RBAC(admin), catalogHandler.DeactivateSubject)
	}

	groups := api.Group("/groups")
	{
		groups.GET("", catalogHandler.ListGroups)
		groups.GET("/:id", catalogHandler.GetGroup)
		groups.POST("", middleware.RBAC(admin), catalogHandler.CreateGroup)
		groups.PUT("/:id", middleware.RBAC(admin), catalogHandler.UpdateGroup)
		groups.DELETE("/:id", middleware.RBAC(admin), catalogHandler.DeactivateGroup)

		groups.GET("/:id/roster", middleware.RBAC(professor), gradeHandler.Roster)
		groups.POST("/:id/close", middleware.RBAC(professor), gradeHandler.CloseGroup)
	}

	grades := api.Group("/grades")
	{
		grades.POST("", middleware.RBAC(professor), gradeHandler.Assign)
		grades.PUT("/:id", middleware.RBAC(professor), gradeHandler.Update)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
