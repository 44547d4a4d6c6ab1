package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/quizdesk/quizdesk-backend/internal/config"
	"github.com/quizdesk/quizdesk-backend/internal/handler"
	"github.com/quizdesk/quizdesk-backend/internal/middleware"
	"github.com/quizdesk/quizdesk-backend/internal/response"
	"github.com/quizdesk/quizdesk-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth        *handler.AuthHandler
	QuizAdmin   *handler.QuizAdminHandler
	StudentQuiz *handler.StudentQuizHandler
	WS          *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
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

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/student/login", handlers.Auth.StudentLogin)
		auth.POST("/admin/login", handlers.Auth.AdminLogin)

		// Authenticated profile routes
		auth.POST("/student/logout", middleware.RequireStudentJWT(authService), handlers.Auth.StudentLogout)
		auth.GET("/student/me", middleware.RequireStudentJWT(authService), handlers.Auth.GetStudentProfile)
		auth.GET("/admin/me", middleware.RequireAdminJWT(authService), handlers.Auth.GetAdminProfile)
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
		middleware.NoStore(),
	)
	{
		studentAPI.GET("/quizzes", handlers.StudentQuiz.Lobby)
		studentAPI.POST("/quizzes/:quiz_id/start", handlers.StudentQuiz.Start)
		studentAPI.GET("/quizzes/:quiz_id/state", handlers.StudentQuiz.State)
		studentAPI.POST("/quizzes/:quiz_id/submit", handlers.StudentQuiz.Submit)
		studentAPI.POST("/quizzes/:quiz_id/practice-grade", handlers.StudentQuiz.PracticeGrade)
		studentAPI.GET("/results", handlers.StudentQuiz.MyResults)
	}

	// ─── 3. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/quizzes/:quiz_id/attempt", handlers.WS.AttemptStream)
	}

	// ─── 4. Admin Group (JWT) ──────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		adminAPI.GET("/quizzes", handlers.QuizAdmin.List)
		adminAPI.POST("/quizzes", handlers.QuizAdmin.Create)
		adminAPI.GET("/quizzes/:quiz_id", handlers.QuizAdmin.Get)
		adminAPI.PUT("/quizzes/:quiz_id", handlers.QuizAdmin.Update)
		adminAPI.DELETE("/quizzes/:quiz_id", handlers.QuizAdmin.Delete)
		adminAPI.PUT("/quizzes/:quiz_id/questions", handlers.QuizAdmin.ReplaceQuestions)
		adminAPI.POST("/quizzes/:quiz_id/publish", handlers.QuizAdmin.Publish)
		adminAPI.POST("/quizzes/:quiz_id/archive", handlers.QuizAdmin.Archive)
		adminAPI.POST("/quizzes/:quiz_id/refresh-cache", handlers.QuizAdmin.RefreshCache)
		adminAPI.GET("/quizzes/:quiz_id/results", handlers.QuizAdmin.Results)

		adminAPI.POST("/students/:student_id/reset-session", handlers.Auth.ResetStudentSession)
	}

	return router
}
