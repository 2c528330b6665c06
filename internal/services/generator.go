package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/skillrank/skillrank-backend/internal/app"
	"github.com/skillrank/skillrank-backend/internal/logger"
	"github.com/skillrank/skillrank-backend/internal/repos"
	"github.com/skillrank/skillrank-backend/internal/types"
)

// AssignedQuestion is one slot of a generated session in presentation order.
type AssignedQuestion struct {
	Position          int             `json:"position"`
	Question          *types.Question `json:"question"`
	RatingAtSelection float64         `json:"rating_at_selection"`
}

// CategoryCount reports how many questions a category was asked for versus
// how many its pool could supply.
type CategoryCount struct {
	CategoryID uuid.UUID `json:"category_id"`
	Requested  int       `json:"requested"`
	Selected   int       `json:"selected"`
}

type GeneratedQuiz struct {
	SessionID uuid.UUID           `json:"session_id"`
	Questions []*AssignedQuestion `json:"questions"`
	Breakdown []CategoryCount     `json:"category_breakdown"`
}

type QuizService interface {
	// GenerateQuiz builds and persists a new practice session for the
	// learner: fresh priorities, weighted per-category counts, selection,
	// shuffle, and history marking.
	GenerateQuiz(ctx context.Context, learnerID uuid.UUID, totalQuestions int, sessionType string, targetCategoryIDs []uuid.UUID) (*GeneratedQuiz, error)
	// GetSessionQuestions reconstructs the ordered question list for the
	// learner's own session, e.g. when a paused session view resumes.
	GetSessionQuestions(ctx context.Context, sessionID, learnerID uuid.UUID) ([]*AssignedQuestion, error)
	// AbandonSession moves an active session to abandoned so it can never
	// settle.
	AbandonSession(ctx context.Context, sessionID, learnerID uuid.UUID) error
}

type quizService struct {
	db           *gorm.DB
	log          *logger.Logger
	cfg          app.EngineConfig
	priority     PriorityService
	selector     SelectorService
	learnerRepo  repos.LearnerRatingRepo
	categoryRepo repos.CategoryRepo
	questionRepo repos.QuestionRepo
	sessionRepo  repos.QuizSessionRepo
	sessionQRepo repos.SessionQuestionRepo
	historyRepo  repos.QuestionHistoryRepo
}

func NewQuizService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg app.EngineConfig,
	priority PriorityService,
	selector SelectorService,
	learnerRepo repos.LearnerRatingRepo,
	categoryRepo repos.CategoryRepo,
	questionRepo repos.QuestionRepo,
	sessionRepo repos.QuizSessionRepo,
	sessionQRepo repos.SessionQuestionRepo,
	historyRepo repos.QuestionHistoryRepo,
) QuizService {
	return &quizService{
		db:           db,
		log:          baseLog.With("service", "QuizService"),
		cfg:          cfg,
		priority:     priority,
		selector:     selector,
		learnerRepo:  learnerRepo,
		categoryRepo: categoryRepo,
		questionRepo: questionRepo,
		sessionRepo:  sessionRepo,
		sessionQRepo: sessionQRepo,
		historyRepo:  historyRepo,
	}
}

type weightedCategory struct {
	CategoryID uuid.UUID
	Weight     float64
}

// distributeCounts apportions total across categories proportionally to
// weight, with a floor of one question each. A rounding shortfall goes to
// the single highest-weight category; a rounding surplus is shaved off the
// heaviest categories first, never taking any count below the floor. Callers
// guarantee total >= len(categories), so the result always sums to exactly
// total with every count >= 1.
func distributeCounts(total int, categories []weightedCategory) []int {
	counts := make([]int, len(categories))
	if len(categories) == 0 {
		return counts
	}
	var sumWeights float64
	for _, c := range categories {
		sumWeights += c.Weight
	}
	sum := 0
	maxIdx := 0
	for i, c := range categories {
		n := int(math.Round(float64(total) * c.Weight / sumWeights))
		if n < 1 {
			n = 1
		}
		counts[i] = n
		sum += n
		if c.Weight > categories[maxIdx].Weight {
			maxIdx = i
		}
	}
	if sum <= total {
		counts[maxIdx] += total - sum
		return counts
	}

	order := make([]int, len(categories))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return categories[order[i]].Weight > categories[order[j]].Weight
	})
	surplus := sum - total
	for surplus > 0 {
		reduced := false
		for _, idx := range order {
			if surplus == 0 {
				break
			}
			if counts[idx] > 1 {
				counts[idx]--
				surplus--
				reduced = true
			}
		}
		if !reduced {
			break
		}
	}
	return counts
}

func (s *quizService) GenerateQuiz(ctx context.Context, learnerID uuid.UUID, totalQuestions int, sessionType string, targetCategoryIDs []uuid.UUID) (*GeneratedQuiz, error) {
	if totalQuestions <= 0 {
		return nil, ErrInvalidQuestionCount
	}
	switch sessionType {
	case types.SessionTypePractice, types.SessionTypeDiagnostic, types.SessionTypeTimed:
	case "":
		sessionType = types.SessionTypePractice
	default:
		return nil, fmt.Errorf("unknown session type %q", sessionType)
	}

	// Priorities are an advisory cache; recompute right before selection so
	// the distribution always reflects the latest settled state.
	if err := s.priority.RecalculateAll(ctx, nil, learnerID); err != nil {
		return nil, err
	}

	learnerRating := s.cfg.BaselineRating
	if lr, err := s.learnerRepo.Get(ctx, nil, learnerID); err != nil {
		return nil, err
	} else if lr != nil {
		learnerRating = lr.Rating
	}

	targets, err := s.resolveTargets(ctx, learnerID, targetCategoryIDs)
	if err != nil {
		return nil, err
	}
	// More categories than session slots cannot satisfy the one-per-category
	// floor; keep the heaviest ones.
	if len(targets) > totalQuestions {
		targets = targets[:totalQuestions]
	}

	counts := distributeCounts(totalQuestions, targets)

	selections := make([][]*SelectedQuestion, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i := range targets {
		g.Go(func() error {
			picked, selErr := s.selector.SelectForCategory(gctx, nil, learnerID, targets[i].CategoryID, counts[i], learnerRating, s.cfg.RatingWindow)
			if selErr != nil {
				return selErr
			}
			selections[i] = picked
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	breakdown := make([]CategoryCount, len(targets))
	var merged []*SelectedQuestion
	for i := range targets {
		breakdown[i] = CategoryCount{
			CategoryID: targets[i].CategoryID,
			Requested:  counts[i],
			Selected:   len(selections[i]),
		}
		merged = append(merged, selections[i]...)
	}

	// Presentation-order randomization only: which questions were chosen is
	// already fixed.
	rand.Shuffle(len(merged), func(i, j int) {
		merged[i], merged[j] = merged[j], merged[i]
	})

	breakdownJSON, err := json.Marshal(breakdown)
	if err != nil {
		return nil, err
	}

	session := &types.QuizSession{
		ID:                uuid.New(),
		LearnerID:         learnerID,
		SessionType:       sessionType,
		Status:            types.SessionStatusActive,
		StartedAt:         time.Now(),
		TotalQuestions:    len(merged),
		CategoryBreakdown: datatypes.JSON(breakdownJSON),
	}

	assignments := make([]*types.SessionQuestion, 0, len(merged))
	questionIDs := make([]uuid.UUID, 0, len(merged))
	result := make([]*AssignedQuestion, 0, len(merged))
	for i, sel := range merged {
		assignments = append(assignments, &types.SessionQuestion{
			SessionID:         session.ID,
			QuestionID:        sel.Question.ID,
			Position:          i,
			RatingAtSelection: sel.RatingAtSelection,
		})
		questionIDs = append(questionIDs, sel.Question.ID)
		result = append(result, &AssignedQuestion{
			Position:          i,
			Question:          sel.Question,
			RatingAtSelection: sel.RatingAtSelection,
		})
	}

	err = withTransaction(ctx, s.db, func(tx *gorm.DB) error {
		if _, txErr := s.sessionRepo.Create(ctx, tx, session); txErr != nil {
			return txErr
		}
		if txErr := s.sessionQRepo.CreateBatch(ctx, tx, assignments); txErr != nil {
			return txErr
		}
		return s.historyRepo.MarkSeen(ctx, tx, learnerID, questionIDs, session.ID)
	})
	if err != nil {
		s.log.Error("Quiz generation persistence failed", "learner_id", learnerID, "error", err)
		return nil, err
	}

	s.log.Info("Quiz generated",
		"learner_id", learnerID,
		"session_id", session.ID,
		"requested", totalQuestions,
		"assigned", len(merged),
		"categories", len(targets))

	return &GeneratedQuiz{
		SessionID: session.ID,
		Questions: result,
		Breakdown: breakdown,
	}, nil
}

// resolveTargets turns explicit category ids (equal weight) or the learner's
// top priorities into a weighted target list, heaviest first.
func (s *quizService) resolveTargets(ctx context.Context, learnerID uuid.UUID, targetCategoryIDs []uuid.UUID) ([]weightedCategory, error) {
	var targets []weightedCategory
	if len(targetCategoryIDs) > 0 {
		categories, err := s.categoryRepo.GetByIDs(ctx, nil, targetCategoryIDs)
		if err != nil {
			return nil, err
		}
		for _, c := range categories {
			if !c.Active {
				continue
			}
			targets = append(targets, weightedCategory{CategoryID: c.ID, Weight: 1.0})
		}
	} else {
		top, err := s.priority.TopPriorities(ctx, nil, learnerID, s.cfg.TopCategories)
		if err != nil {
			return nil, err
		}
		for _, p := range top {
			targets = append(targets, weightedCategory{CategoryID: p.Priority.CategoryID, Weight: p.Priority.SelectionWeight})
		}
	}
	if len(targets) == 0 {
		return nil, ErrNoCategoriesAvailable
	}
	sort.SliceStable(targets, func(i, j int) bool {
		if targets[i].Weight != targets[j].Weight {
			return targets[i].Weight > targets[j].Weight
		}
		return targets[i].CategoryID.String() < targets[j].CategoryID.String()
	})
	return targets, nil
}

func (s *quizService) GetSessionQuestions(ctx context.Context, sessionID, learnerID uuid.UUID) ([]*AssignedQuestion, error) {
	session, err := s.sessionRepo.GetByID(ctx, nil, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.LearnerID != learnerID {
		return nil, ErrSessionNotFound
	}
	assignments, err := s.sessionQRepo.GetBySessionID(ctx, nil, sessionID)
	if err != nil {
		return nil, err
	}
	questionIDs := make([]uuid.UUID, 0, len(assignments))
	for _, a := range assignments {
		questionIDs = append(questionIDs, a.QuestionID)
	}
	questions, err := s.questionRepo.GetByIDs(ctx, nil, questionIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*types.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	out := make([]*AssignedQuestion, 0, len(assignments))
	for _, a := range assignments {
		out = append(out, &AssignedQuestion{
			Position:          a.Position,
			Question:          byID[a.QuestionID],
			RatingAtSelection: a.RatingAtSelection,
		})
	}
	return out, nil
}

func (s *quizService) AbandonSession(ctx context.Context, sessionID, learnerID uuid.UUID) error {
	session, err := s.sessionRepo.GetByID(ctx, nil, sessionID)
	if err != nil {
		return err
	}
	if session == nil || session.LearnerID != learnerID {
		return ErrSessionNotFound
	}
	if session.Status != types.SessionStatusActive && session.Status != types.SessionStatusPaused {
		return ErrSessionNotActive
	}
	now := time.Now()
	return s.sessionRepo.UpdateFields(ctx, nil, sessionID, map[string]interface{}{
		"status":   types.SessionStatusAbandoned,
		"ended_at": now,
	})
}
