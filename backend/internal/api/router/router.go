package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"routine-scheduler/backend/config"
	"routine-scheduler/backend/internal/api/handler"
	"routine-scheduler/backend/internal/api/middleware"
	"routine-scheduler/backend/pkg/jwt"
	"routine-scheduler/backend/pkg/metrics"
)

// Setup 初始化并返回 Gin 路由引擎
// limiter 为 nil 时写操作不限流
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, limiter middleware.RateLimiter, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	// ── 健康检查 / 指标 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.JWTAuth(jwtMgr))
	{
		// 写操作：仅管理员 / 排课协调员，按用户限流
		editor := []gin.HandlerFunc{
			middleware.RoleAuth(middleware.RoleAdmin, middleware.RoleCoordinator),
			middleware.RateLimit(limiter, cfg.Server.RateLimit.Limit, cfg.Server.RateLimit.Window, logger),
		}
		write := func(hf gin.HandlerFunc) []gin.HandlerFunc {
			return append(append([]gin.HandlerFunc{}, editor...), hf)
		}

		// 班级课表
		routines := v1.Group("/routines")
		{
			routines.GET("", h.Routine.GetRoutine)
			routines.DELETE("", write(h.Routine.ClearCohort)...)
			routines.POST("/resync", write(h.Routine.ResyncSnapshots)...)

			routines.POST("/slots", write(h.Routine.AssignSlot)...)
			routines.PUT("/slots/:id", write(h.Routine.UpdateSlot)...)
			routines.POST("/slots/:id/clear", write(h.Routine.ClearSlot)...)
			routines.DELETE("/slots/:id", write(h.Routine.DeleteSlot)...)

			routines.POST("/spans", write(h.Routine.AssignSpan)...)
			routines.DELETE("/spans/:span_id", write(h.Routine.DeleteSpan)...)
		}

		// 资源空闲查询
		availability := v1.Group("/availability")
		{
			availability.GET("/teachers/:id", h.Routine.TeacherAvailability)
			availability.GET("/rooms/:id", h.Routine.RoomAvailability)
		}

		// 教师个人课表
		v1.GET("/teachers/:id/routine", h.Routine.TeacherRoutine)
	}

	return r
}
