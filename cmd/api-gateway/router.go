package main

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/sd-enrollment-api/internal/dto"
	"github.com/noah-isme/sd-enrollment-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sd-enrollment-api/internal/middleware"
	"github.com/noah-isme/sd-enrollment-api/internal/models"
	"github.com/noah-isme/sd-enrollment-api/internal/repository"
	"github.com/noah-isme/sd-enrollment-api/internal/service"
	"github.com/noah-isme/sd-enrollment-api/pkg/config"
	"github.com/noah-isme/sd-enrollment-api/pkg/export"
	"github.com/noah-isme/sd-enrollment-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sd-enrollment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sd-enrollment-api/pkg/middleware/requestid"
	"github.com/noah-isme/sd-enrollment-api/pkg/token"
)

type application struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *service.MetricsService
	auth       *service.AuthService
	dispatcher *service.NotificationDispatcher

	enrollments *handler.EnrollmentHandler
	students    *handler.StudentHandler
	sections    *handler.SectionHandler
	snapshots   *handler.SnapshotHandler
	health      *handler.MetricsHandler
}

func newApplication(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logr *zap.Logger) *application {
	validate := dto.NewValidator()
	metrics := service.NewMetricsService()

	requestRepo := repository.NewEnrollmentRequestRepository(db)
	applicantRepo := repository.NewApplicantRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	cacheSvc := service.NewCacheService(
		repository.NewCacheRepository(redisClient),
		metrics,
		cfg.StatusCache.TTL,
		logr,
		cfg.StatusCache.Enabled && redisClient != nil,
	)

	var notifier service.Notifier = service.NewLogNotifier(logr)
	if cfg.Notifications.Enabled && redisClient != nil {
		notifier = service.NewRedisNotifier(repository.NewNotificationStreamRepository(redisClient, cfg.Notifications.Stream), logr)
	}
	dispatcher := service.NewNotificationDispatcher(notifier, service.NotificationDispatcherConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
	}, metrics, logr)

	enrollmentSvc := service.NewEnrollmentService(
		requestRepo,
		studentRepo,
		applicantRepo,
		token.NewGenerator(cfg.Enrollment.TokenMaxAttempts),
		validate,
		logr,
		service.WithEnrollmentAudit(auditRepo),
		service.WithStatusCache(cacheSvc, cfg.StatusCache.TTL),
		service.WithNotifications(dispatcher),
		service.WithEnrollmentMetrics(metrics),
		service.WithPendingPageSize(cfg.Enrollment.PendingPageSize),
	)
	studentSvc := service.NewStudentService(studentRepo, validate, logr, auditRepo, metrics)
	sectionSvc := service.NewSectionService(sectionRepo, validate, logr, auditRepo, metrics)
	snapshotSvc := service.NewSnapshotService(snapshotRepo, export.NewRenderer(), validate, logr, auditRepo, metrics)

	authSvc := service.NewAuthService(service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	return &application{
		cfg:         cfg,
		logger:      logr,
		metrics:     metrics,
		auth:        authSvc,
		dispatcher:  dispatcher,
		enrollments: handler.NewEnrollmentHandler(enrollmentSvc),
		students:    handler.NewStudentHandler(studentSvc),
		sections:    handler.NewSectionHandler(sectionSvc),
		snapshots:   handler.NewSnapshotHandler(snapshotSvc),
		health:      handler.NewMetricsHandler(metrics, db),
	}
}

func (a *application) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.logger))
	r.Use(corsmiddleware.New(a.cfg.CORS))
	r.Use(internalmiddleware.Metrics(a.metrics))

	r.GET("/health", a.health.Health)
	r.GET("/ready", a.health.Ready)
	r.GET("/metrics", a.health.Prometheus)

	if a.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(a.cfg.APIPrefix)

	public := api.Group("/public")
	public.POST("/enrollments", a.enrollments.Submit)
	public.GET("/enrollments/:token", a.enrollments.Status)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(a.auth))

	staff := internalmiddleware.RBAC(models.RoleAdmin, models.RoleRegistrar)
	admin := internalmiddleware.RBAC(models.RoleAdmin)

	requests := secured.Group("/enrollment-requests", staff)
	requests.GET("", a.enrollments.List)
	requests.GET("/:id", a.enrollments.Get)
	requests.POST("/:id/review", a.enrollments.Review)
	requests.POST("/:id/promote", a.enrollments.Promote)
	requests.POST("/:id/archive", a.enrollments.Archive)
	requests.POST("/:id/unarchive", a.enrollments.Unarchive)

	secured.PUT("/applicants/:id", staff, a.enrollments.CorrectApplicant)

	students := secured.Group("/students", staff)
	students.GET("", a.students.List)
	students.GET("/:id", a.students.Get)
	students.PUT("/:id/section", a.students.AssignSection)
	students.PUT("/:id/grade", a.students.UpdateGrade)
	students.GET("/:id/grade-history", a.students.History)
	students.POST("/:id/archive", a.students.Archive)
	students.POST("/:id/unarchive", a.students.Unarchive)

	sections := secured.Group("/sections")
	sections.GET("", staff, a.sections.List)
	sections.GET("/:id", staff, a.sections.Get)
	sections.POST("", admin, a.sections.Create)
	sections.PUT("/:id", admin, a.sections.Update)
	sections.DELETE("/:id", admin, a.sections.Archive)
	sections.POST("/recount", admin, a.sections.RecountAll)
	sections.POST("/:id/recount", admin, a.sections.Recount)

	snapshots := secured.Group("/snapshots", admin)
	snapshots.GET("", a.snapshots.List)
	snapshots.POST("", a.snapshots.Create)
	snapshots.GET("/:id", a.snapshots.Get)
	snapshots.DELETE("/:id", a.snapshots.Delete)
	snapshots.GET("/:id/export", a.snapshots.Export)

	return r
}
