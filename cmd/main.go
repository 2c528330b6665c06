package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/skillrank/skillrank-backend/internal/app"
	"github.com/skillrank/skillrank-backend/internal/db"
	"github.com/skillrank/skillrank-backend/internal/handlers"
	"github.com/skillrank/skillrank-backend/internal/logger"
	"github.com/skillrank/skillrank-backend/internal/middleware"
	"github.com/skillrank/skillrank-backend/internal/observability"
	"github.com/skillrank/skillrank-backend/internal/repos"
	"github.com/skillrank/skillrank-backend/internal/server"
	"github.com/skillrank/skillrank-backend/internal/services"
)

func main() {
	_ = godotenv.Load()

	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := app.LoadConfig(log)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	shutdownOtel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "skillrank-backend",
		Environment: os.Getenv("APP_ENV"),
		Version:     os.Getenv("APP_VERSION"),
	})
	if shutdownOtel != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOtel(ctx)
		}()
	}

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	categoryRepo := repos.NewCategoryRepo(thePG, log)
	questionRepo := repos.NewQuestionRepo(thePG, log)
	learnerRatingRepo := repos.NewLearnerRatingRepo(thePG, log)
	questionRatingRepo := repos.NewQuestionRatingRepo(thePG, log)
	microRatingRepo := repos.NewCategoryMicroRatingRepo(thePG, log)
	priorityRepo := repos.NewCategoryPriorityRepo(thePG, log)
	sessionRepo := repos.NewQuizSessionRepo(thePG, log)
	sessionQuestionRepo := repos.NewSessionQuestionRepo(thePG, log)
	historyRepo := repos.NewQuestionHistoryRepo(thePG, log)

	// Services
	log.Info("Setting up Services from main...")
	priorityService := services.NewPriorityService(thePG, log, cfg.Engine, microRatingRepo, questionRepo, historyRepo, priorityRepo, categoryRepo)
	selectorService := services.NewSelectorService(thePG, log, cfg.Engine, historyRepo, sessionRepo, sessionQuestionRepo, questionRatingRepo)
	quizService := services.NewQuizService(thePG, log, cfg.Engine, priorityService, selectorService, learnerRatingRepo, categoryRepo, questionRepo, sessionRepo, sessionQuestionRepo, historyRepo)
	settlementService := services.NewSettlementService(thePG, log, cfg.Engine, priorityService, learnerRatingRepo, questionRatingRepo, sessionRepo, historyRepo, microRatingRepo)

	// Handlers
	quizHandler := handlers.NewQuizHandler(log, quizService, settlementService)
	authMiddleware := middleware.NewAuthMiddleware(log, cfg.JWTSecretKey)

	router := server.NewRouter(server.RouterConfig{
		AuthMiddleware: authMiddleware,
		QuizHandler:    quizHandler,
	})

	log.Info("Starting server", "port", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
