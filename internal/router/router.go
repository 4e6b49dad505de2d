package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/dmitryplyaskin/pathwise-backend/internal/config"
	"github.com/dmitryplyaskin/pathwise-backend/internal/handler"
	"github.com/dmitryplyaskin/pathwise-backend/internal/middleware"
	"github.com/dmitryplyaskin/pathwise-backend/internal/response"
	"github.com/dmitryplyaskin/pathwise-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth     *handler.AuthHandler
	Course   *handler.CourseHandler
	Lesson   *handler.LessonHandler
	Practice *handler.PracticeHandler
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

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// Generation hits the LLM; keep it well below the general traffic rate.
	generateLimiter := middleware.NewRateLimiter(10, time.Minute)

	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/login", authLimiter.Middleware(), handlers.Auth.Login)
		auth.GET("/me", middleware.RequireAuth(authService), handlers.Auth.GetProfile)
	}

	api := router.Group("/api/v1")
	api.Use(middleware.RequireAuth(authService))
	{
		api.POST("/courses", handlers.Course.CreateCourse)
		api.GET("/courses", handlers.Course.ListCourses)

		api.POST("/courses/:course_id/lessons", handlers.Lesson.CreateLesson)
		api.GET("/courses/:course_id/lessons", handlers.Lesson.ListLessons)
		api.GET("/lessons/due", handlers.Lesson.ListDue)

		api.POST("/lessons/:lesson_id/practice", generateLimiter.Middleware(), handlers.Practice.StartPractice)
		api.POST("/tests/:test_id/answers/check", handlers.Practice.CheckAnswer)
		api.POST("/tests/:test_id/submit", handlers.Practice.SubmitResults)
	}

	return router
}
