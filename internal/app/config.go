package app

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skillrank/skillrank-backend/internal/logger"
	"github.com/skillrank/skillrank-backend/internal/rating"
	"github.com/skillrank/skillrank-backend/internal/utils"
)

// Config is the process-level configuration assembled in main.
type Config struct {
	Port           string
	LogMode        string
	JWTSecretKey   string
	AccessTokenTTL time.Duration
	Engine         EngineConfig
}

// EngineConfig names every tuning constant of the assessment engine so they
// can be adjusted without touching algorithm code.
type EngineConfig struct {
	// BaselineRating seeds first-time learners, fresh questions, and new
	// per-category micro ratings. It is also the target for rating deficits.
	BaselineRating float64 `yaml:"baseline_rating"`
	// RatingWindow is the half-width of the selector's rating filter around
	// the learner's rating.
	RatingWindow float64 `yaml:"rating_window"`
	// TopCategories is how many priority categories a quiz spans when the
	// caller does not name categories explicitly.
	TopCategories int `yaml:"top_categories"`
	// RecentSessionWindow is how many of the learner's latest sessions count
	// as "recently seen" for selection exclusion.
	RecentSessionWindow int `yaml:"recent_session_window"`
	// StrugglingRating / ImprovingRating are the category-rating breakpoints
	// of the tiered priority weight.
	StrugglingRating float64 `yaml:"struggling_rating"`
	ImprovingRating  float64 `yaml:"improving_rating"`
	// LowAccuracy / MidAccuracy are the success-rate breakpoints of the
	// tiered priority weight.
	LowAccuracy float64 `yaml:"low_accuracy"`
	MidAccuracy float64 `yaml:"mid_accuracy"`
	// TargetAccuracy is the baseline for the accuracy deficit.
	TargetAccuracy float64 `yaml:"target_accuracy"`
	// TrendThreshold separates improving/declining from stable when recent
	// accuracy is compared to the overall success rate.
	TrendThreshold float64 `yaml:"trend_threshold"`
	// RecentAttemptWindow bounds the per-category rolling accuracy window.
	RecentAttemptWindow int `yaml:"recent_attempt_window"`
	// MaxQueuePriority caps the per-question requeue counter.
	MaxQueuePriority int `yaml:"max_queue_priority"`

	Rating rating.Config `yaml:"-"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BaselineRating:      1500,
		RatingWindow:        200,
		TopCategories:       3,
		RecentSessionWindow: 3,
		StrugglingRating:    1300,
		ImprovingRating:     1450,
		LowAccuracy:         0.50,
		MidAccuracy:         0.70,
		TargetAccuracy:      0.80,
		TrendThreshold:      0.05,
		RecentAttemptWindow: 10,
		MaxQueuePriority:    3,
		Rating:              rating.DefaultConfig(),
	}
}

// LoadConfig resolves configuration from defaults, an optional YAML file
// named by ENGINE_CONFIG_PATH, then environment overrides, in that order.
func LoadConfig(log *logger.Logger) (Config, error) {
	engine := DefaultEngineConfig()

	if path := utils.GetEnv("ENGINE_CONFIG_PATH", "", log); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read engine config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &engine); err != nil {
			return Config{}, fmt.Errorf("parse engine config %s: %w", path, err)
		}
		log.Info("Engine config file loaded", "path", path)
	}

	engine.BaselineRating = utils.GetEnvAsFloat("QUIZ_BASELINE_RATING", engine.BaselineRating, log)
	engine.RatingWindow = utils.GetEnvAsFloat("QUIZ_RATING_WINDOW", engine.RatingWindow, log)
	engine.TopCategories = utils.GetEnvAsInt("QUIZ_TOP_CATEGORIES", engine.TopCategories, log)
	engine.RecentSessionWindow = utils.GetEnvAsInt("QUIZ_RECENT_SESSION_WINDOW", engine.RecentSessionWindow, log)

	accessTokenTTLSeconds := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)

	return Config{
		Port:           utils.GetEnv("PORT", "8080", log),
		LogMode:        utils.GetEnv("LOG_MODE", "development", log),
		JWTSecretKey:   utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log),
		AccessTokenTTL: time.Duration(accessTokenTTLSeconds) * time.Second,
		Engine:         engine,
	}, nil
}
