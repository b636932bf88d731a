package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/skillsense/assessment-backend/internal/config"
	"github.com/skillsense/assessment-backend/internal/handler"
	"github.com/skillsense/assessment-backend/internal/metrics"
	"github.com/skillsense/assessment-backend/internal/middleware"
	"github.com/skillsense/assessment-backend/internal/response"
	"github.com/skillsense/assessment-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Test   *handler.TestHandler
	Result *handler.ResultHandler
	WS     *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// startLimiter throttles test creation per user.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	m *metrics.Metrics,
	startLimiter *middleware.RateLimiter,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(m.Middleware())

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", m.Handler())

	// ─── 1. Test Sessions (JWT) ────────────────────────────────────────
	tests := router.Group("/api/v1/tests")
	tests.Use(middleware.RequireJWT(authService), middleware.NoStore())
	{
		tests.POST("", startLimiter.Middleware(), handlers.Test.CreateTest)
		tests.GET("/active", handlers.Test.GetActiveTest)
		tests.GET("/:session_id", handlers.Test.GetTest)
	}

	// ─── 2. Results (JWT) ──────────────────────────────────────────────
	results := router.Group("/api/v1/results")
	results.Use(
		middleware.RequireJWT(authService),
		middleware.NoStore(),
		middleware.Compress(middleware.DefaultCompressMinLength),
	)
	{
		results.GET("", handlers.Result.ListResults)
		results.GET("/:result_id", handlers.Result.GetResult)
		results.POST("/:result_id/explain", handlers.Result.ExplainMistake)
	}

	// ─── 3. WebSocket (token via query) ────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireJWT(authService))
	{
		ws.GET("/tests/:session_id/stream", handlers.WS.TestStream)
	}

	return router
}
