package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/examly/examly-backend/internal/config"
	"github.com/examly/examly-backend/internal/handler"
	"github.com/examly/examly-backend/internal/middleware"
	"github.com/examly/examly-backend/internal/response"
	"github.com/examly/examly-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Attempt *handler.AttemptHandler
	Preview *handler.PreviewHandler
	Monitor *handler.MonitorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/login", handlers.Auth.Login)
	}

	// Student attempt lifecycle.
	sessions := router.Group("/api/v1/exam-sessions")
	sessions.Use(middleware.RequireStudentJWT(authService))
	{
		sessions.POST("/:session_id/join", handlers.Attempt.Join)
		sessions.POST("/:session_id/start", handlers.Attempt.Start)
		sessions.GET("/:session_id/progress", handlers.Attempt.Progress)
		sessions.POST("/:session_id/answer", handlers.Attempt.Answer)
		sessions.POST("/:session_id/submit", handlers.Attempt.Submit)
		// Older clients call the same operation under /exam/complete.
		sessions.POST("/:session_id/exam/complete", handlers.Attempt.Submit)
	}

	records := router.Group("/api/v1/exam-records")
	records.Use(middleware.RequireStudentJWT(authService))
	{
		records.GET("", handlers.Attempt.History)
		records.GET("/:record_id", handlers.Attempt.RecordDetail)
		records.GET("/:record_id/result", handlers.Attempt.RecordResult)
	}

	// Author dry-run flow. Same path shapes as the student flow, different
	// role and storage.
	previews := router.Group("/api/v1/exam-sessions")
	previews.Use(middleware.RequireAuthorJWT(authService))
	{
		previews.POST("/:session_id/preview-start", handlers.Preview.Start)
		previews.POST("/:session_id/preview-answer", handlers.Preview.Answer)
		previews.POST("/:session_id/preview-batch-answer", handlers.Preview.AnswerBatch)
		previews.POST("/:session_id/preview-submit", handlers.Preview.Submit)
		previews.GET("/:session_id/preview-result/:preview_id", handlers.Preview.Result)
		previews.DELETE("/:session_id/preview/:preview_id", handlers.Preview.Discard)
	}

	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireAuthorWSAuth(authService))
	{
		ws.GET("/sessions/:session_id/monitor", handlers.Monitor.SessionMonitor)
	}

	return router
}
