package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/preschool-homework-api/internal/handler"
	"github.com/noah-isme/preschool-homework-api/internal/middleware"
	"github.com/noah-isme/preschool-homework-api/internal/models"
	"github.com/noah-isme/preschool-homework-api/internal/service"
	"github.com/noah-isme/preschool-homework-api/pkg/config"
	"github.com/noah-isme/preschool-homework-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/preschool-homework-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/preschool-homework-api/pkg/middleware/requestid"
)

type routerDeps struct {
	auth         middleware.TokenValidator
	metrics      *service.MetricsService
	homework     *handler.HomeworkHandler
	submissions  *handler.SubmissionHandler
	notification *handler.NotificationHandler
	maintenance  *handler.MaintenanceHandler
	health       *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(middleware.Metrics(deps.metrics))

	r.GET("/health", deps.health.Health)
	r.GET("/ready", deps.health.Ready)
	r.GET("/metrics", deps.health.Prometheus)

	if cfg.Env != config.EnvProduction || cfg.Docs.Enabled {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(deps.auth))

	staff := middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin)

	api.GET("/parent/homework", middleware.RequireRoles(models.RoleParent, models.RoleAdmin), deps.homework.ListForChild)
	api.GET("/teacher/homework", staff, deps.homework.ListForTeacher)

	homework := api.Group("/homework")
	homework.POST("", staff, deps.homework.Create)
	homework.GET("/:id", staff, deps.homework.Get)
	homework.PUT("/:id", staff, deps.homework.Update)
	homework.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), deps.homework.Delete)
	homework.POST("/:id/submissions", middleware.RequireRoles(models.RoleParent), deps.submissions.Submit)
	homework.GET("/:id/submissions", staff, deps.homework.ListSubmissions)
	homework.GET("/:id/submissions/export", staff, deps.homework.ExportSubmissions)

	api.PUT("/submissions/:id/grade", staff, deps.submissions.Grade)

	notifications := api.Group("/notifications")
	notifications.GET("", deps.notification.List)
	notifications.GET("/unread-count", deps.notification.UnreadCount)
	notifications.PATCH("/read-all", deps.notification.MarkAllRead)
	notifications.PATCH("/:id/read", deps.notification.MarkRead)

	admin := api.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
	admin.POST("/homework/repair-classes", deps.maintenance.RepairHomeworkClasses)

	return r
}
