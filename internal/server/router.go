package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/skillrank/skillrank-backend/internal/handlers"
	"github.com/skillrank/skillrank-backend/internal/middleware"
)

type RouterConfig struct {
	AuthMiddleware *middleware.AuthMiddleware
	QuizHandler    *handlers.QuizHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware("skillrank-backend"))

	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	api.Use(cfg.AuthMiddleware.RequireAuth())

	api.POST("/quizzes", cfg.QuizHandler.GenerateQuiz)
	api.GET("/quizzes/:id/questions", cfg.QuizHandler.GetSessionQuestions)
	api.POST("/quizzes/:id/complete", cfg.QuizHandler.CompleteSession)
	api.POST("/quizzes/:id/abandon", cfg.QuizHandler.AbandonSession)

	return router
}
