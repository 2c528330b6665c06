package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skillrank/skillrank-backend/internal/app"
	"github.com/skillrank/skillrank-backend/internal/logger"
	"github.com/skillrank/skillrank-backend/internal/repos"
	"github.com/skillrank/skillrank-backend/internal/types"
)

// PrioritizedCategory joins a priority cache row with its category metadata.
type PrioritizedCategory struct {
	Priority *types.CategoryPracticePriority
	Category *types.Category
}

type PriorityService interface {
	// RecalculateAll recomputes and upserts one priority row per category
	// the learner has rating history in. Pure recompute over current state:
	// running it twice with no intervening attempts produces identical
	// derived fields.
	RecalculateAll(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) error
	TopPriorities(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, n int) ([]*PrioritizedCategory, error)
}

type priorityService struct {
	db           *gorm.DB
	log          *logger.Logger
	cfg          app.EngineConfig
	microRepo    repos.CategoryMicroRatingRepo
	questionRepo repos.QuestionRepo
	historyRepo  repos.QuestionHistoryRepo
	priorityRepo repos.CategoryPriorityRepo
	categoryRepo repos.CategoryRepo
}

func NewPriorityService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg app.EngineConfig,
	microRepo repos.CategoryMicroRatingRepo,
	questionRepo repos.QuestionRepo,
	historyRepo repos.QuestionHistoryRepo,
	priorityRepo repos.CategoryPriorityRepo,
	categoryRepo repos.CategoryRepo,
) PriorityService {
	return &priorityService{
		db:           db,
		log:          baseLog.With("service", "PriorityService"),
		cfg:          cfg,
		microRepo:    microRepo,
		questionRepo: questionRepo,
		historyRepo:  historyRepo,
		priorityRepo: priorityRepo,
		categoryRepo: categoryRepo,
	}
}

// selectionWeight is the tiered priority formula shared by the priority
// engine and settlement: lower rating and lower accuracy both raise the
// weight. Bounded in (0, 7.5].
func selectionWeight(cfg app.EngineConfig, categoryRating, successRate float64) float64 {
	ratingFactor := 1.0
	switch {
	case categoryRating < cfg.StrugglingRating:
		ratingFactor = 3.0
	case categoryRating < cfg.ImprovingRating:
		ratingFactor = 2.0
	}

	accuracyFactor := 0.5
	switch {
	case successRate < cfg.LowAccuracy:
		accuracyFactor = 2.5
	case successRate < cfg.MidAccuracy:
		accuracyFactor = 1.5
	}

	return ratingFactor * accuracyFactor
}

// practiceInterval maps a selection weight to how long after the last
// attempt the category should be practiced again. Derived from stored state
// only, so recomputes stay idempotent.
func practiceInterval(weight float64) time.Duration {
	switch {
	case weight >= 5.0:
		return 24 * time.Hour
	case weight >= 2.0:
		return 3 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

func (s *priorityService) RecalculateAll(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) error {
	micros, err := s.microRepo.GetByLearner(ctx, tx, learnerID)
	if err != nil {
		return err
	}
	if len(micros) == 0 {
		return nil
	}

	categoryIDs := make([]uuid.UUID, 0, len(micros))
	for _, m := range micros {
		categoryIDs = append(categoryIDs, m.CategoryID)
	}
	activeCounts, err := s.questionRepo.CountActiveByCategories(ctx, tx, categoryIDs)
	if err != nil {
		return err
	}
	masteredCounts, err := s.historyRepo.CountMasteredByCategory(ctx, tx, learnerID)
	if err != nil {
		return err
	}

	now := time.Now()
	rows := make([]*types.CategoryPracticePriority, 0, len(micros))
	for _, m := range micros {
		weight := selectionWeight(s.cfg, m.Rating, m.SuccessRate)
		needed := activeCounts[m.CategoryID] - masteredCounts[m.CategoryID]
		if needed < 0 {
			needed = 0
		}
		var nextPractice *time.Time
		if m.LastAttemptAt != nil {
			t := m.LastAttemptAt.Add(practiceInterval(weight))
			nextPractice = &t
		}
		rows = append(rows, &types.CategoryPracticePriority{
			LearnerID:        learnerID,
			CategoryID:       m.CategoryID,
			SelectionWeight:  weight,
			QuestionsNeeded:  int(needed),
			RatingDeficit:    s.cfg.BaselineRating - m.Rating,
			AccuracyDeficit:  s.cfg.TargetAccuracy - m.SuccessRate,
			NextPracticeAt:   nextPractice,
			LastCalculatedAt: now,
		})
	}
	return s.priorityRepo.UpsertAll(ctx, tx, rows)
}

func (s *priorityService) TopPriorities(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, n int) ([]*PrioritizedCategory, error) {
	priorities, err := s.priorityRepo.TopByLearner(ctx, tx, learnerID, n)
	if err != nil {
		return nil, err
	}
	if len(priorities) == 0 {
		return nil, nil
	}

	categoryIDs := make([]uuid.UUID, 0, len(priorities))
	for _, p := range priorities {
		categoryIDs = append(categoryIDs, p.CategoryID)
	}
	categories, err := s.categoryRepo.GetByIDs(ctx, tx, categoryIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*types.Category, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}

	out := make([]*PrioritizedCategory, 0, len(priorities))
	for _, p := range priorities {
		out = append(out, &PrioritizedCategory{Priority: p, Category: byID[p.CategoryID]})
	}
	return out, nil
}
