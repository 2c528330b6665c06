package services

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/skillrank/skillrank-backend/internal/app"
	"github.com/skillrank/skillrank-backend/internal/logger"
	"github.com/skillrank/skillrank-backend/internal/rating"
	"github.com/skillrank/skillrank-backend/internal/repos"
	"github.com/skillrank/skillrank-backend/internal/types"
)

// Attempt is one answered question as reported by the request layer.
// RatingAtSelection is the frozen snapshot from generation time; expected
// scores are computed against it, never against the question's live rating.
type Attempt struct {
	QuestionID        uuid.UUID `json:"question_id"`
	CategoryID        uuid.UUID `json:"category_id"`
	SubmittedAnswer   string    `json:"submitted_answer"`
	Correct           bool      `json:"correct"`
	SecondsSpent      float64   `json:"seconds_spent"`
	RatingAtSelection float64   `json:"rating_at_selection"`
}

type SessionStats struct {
	Total           int     `json:"total"`
	Correct         int     `json:"correct"`
	Incorrect       int     `json:"incorrect"`
	Skipped         int     `json:"skipped"`
	AccuracyPercent float64 `json:"accuracy_percent"`
	AvgSecondsPerQ  float64 `json:"avg_seconds_per_question"`
}

type CategoryOutcome struct {
	CategoryID    uuid.UUID `json:"category_id"`
	Attempts      int       `json:"attempts"`
	Correct       int       `json:"correct"`
	NewRating     float64   `json:"new_rating"`
	PriorityScore float64   `json:"priority_score"`
	Trend         string    `json:"trend"`
}

type SettlementResult struct {
	Stats       SessionStats       `json:"session_stats"`
	RatingDelta float64            `json:"rating_delta"`
	NewRating   float64            `json:"new_rating"`
	Categories  []*CategoryOutcome `json:"category_breakdown"`
}

type SettlementService interface {
	// CompleteSession settles a finished session as one atomic unit:
	// session stats, per-question history, learner/question/category
	// ratings, and the priority cache all commit together or not at all.
	// Completing an already-completed session is rejected; settlement is
	// deliberately not idempotent.
	CompleteSession(ctx context.Context, sessionID, learnerID uuid.UUID, attempts []Attempt) (*SettlementResult, error)
}

type settlementService struct {
	db          *gorm.DB
	log         *logger.Logger
	cfg         app.EngineConfig
	priority    PriorityService
	learnerRepo repos.LearnerRatingRepo
	ratingRepo  repos.QuestionRatingRepo
	sessionRepo repos.QuizSessionRepo
	historyRepo repos.QuestionHistoryRepo
	microRepo   repos.CategoryMicroRatingRepo
	tracer      trace.Tracer
}

func NewSettlementService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg app.EngineConfig,
	priority PriorityService,
	learnerRepo repos.LearnerRatingRepo,
	ratingRepo repos.QuestionRatingRepo,
	sessionRepo repos.QuizSessionRepo,
	historyRepo repos.QuestionHistoryRepo,
	microRepo repos.CategoryMicroRatingRepo,
) SettlementService {
	return &settlementService{
		db:          db,
		log:         baseLog.With("service", "SettlementService"),
		cfg:         cfg,
		priority:    priority,
		learnerRepo: learnerRepo,
		ratingRepo:  ratingRepo,
		sessionRepo: sessionRepo,
		historyRepo: historyRepo,
		microRepo:   microRepo,
		tracer:      otel.Tracer("skillrank/settlement"),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func computeStats(attempts []Attempt) SessionStats {
	stats := SessionStats{Total: len(attempts)}
	var totalSeconds float64
	for _, a := range attempts {
		totalSeconds += a.SecondsSpent
		switch {
		case a.Correct:
			stats.Correct++
		case a.SubmittedAnswer == "":
			stats.Skipped++
		default:
			stats.Incorrect++
		}
	}
	if stats.Total > 0 {
		stats.AccuracyPercent = round2(float64(stats.Correct) / float64(stats.Total) * 100)
		stats.AvgSecondsPerQ = round2(totalSeconds / float64(stats.Total))
	}
	return stats
}

// classifyTrend compares the rolling window to the lifetime success rate.
func classifyTrend(cfg app.EngineConfig, recentAccuracy, successRate float64) string {
	switch {
	case recentAccuracy > successRate+cfg.TrendThreshold:
		return types.TrendImproving
	case recentAccuracy < successRate-cfg.TrendThreshold:
		return types.TrendDeclining
	default:
		return types.TrendStable
	}
}

func (s *settlementService) CompleteSession(ctx context.Context, sessionID, learnerID uuid.UUID, attempts []Attempt) (*SettlementResult, error) {
	ctx, span := s.tracer.Start(ctx, "CompleteSession")
	defer span.End()

	if len(attempts) == 0 {
		return nil, ErrNoAttempts
	}

	var result *SettlementResult
	err := withTransaction(ctx, s.db, func(tx *gorm.DB) error {
		settled, txErr := s.settle(ctx, tx, sessionID, learnerID, attempts)
		if txErr != nil {
			return txErr
		}
		result = settled
		return nil
	})
	if err != nil {
		s.log.Warn("Settlement failed", "session_id", sessionID, "learner_id", learnerID, "error", err)
		return nil, err
	}
	s.log.Info("Session settled",
		"session_id", sessionID,
		"learner_id", learnerID,
		"attempts", result.Stats.Total,
		"rating_delta", result.RatingDelta)
	return result, nil
}

func (s *settlementService) settle(ctx context.Context, tx *gorm.DB, sessionID, learnerID uuid.UUID, attempts []Attempt) (*SettlementResult, error) {
	session, err := s.sessionRepo.GetByID(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.LearnerID != learnerID {
		return nil, ErrSessionNotFound
	}
	if session.Status != types.SessionStatusActive && session.Status != types.SessionStatusPaused {
		return nil, ErrSessionNotActive
	}

	stats := computeStats(attempts)

	// Lock order is fixed: the learner row first, then question ratings in
	// ascending id order. Settlements for one learner serialize on the
	// learner lock; settlements sharing questions serialize per question.
	if err := s.learnerRepo.Ensure(ctx, tx, learnerID, s.cfg.BaselineRating); err != nil {
		return nil, err
	}
	learner, err := s.learnerRepo.GetForUpdate(ctx, tx, learnerID)
	if err != nil {
		return nil, err
	}
	if learner == nil {
		return nil, ErrSessionNotFound
	}

	questionIDs := make([]uuid.UUID, 0, len(attempts))
	for _, a := range attempts {
		questionIDs = append(questionIDs, a.QuestionID)
	}
	if err := s.ratingRepo.Ensure(ctx, tx, questionIDs, s.cfg.BaselineRating); err != nil {
		return nil, err
	}
	lockedRatings, err := s.ratingRepo.LockByQuestionIDs(ctx, tx, questionIDs)
	if err != nil {
		return nil, err
	}
	questionRatings := make(map[uuid.UUID]*types.QuestionRating, len(lockedRatings))
	for _, qr := range lockedRatings {
		questionRatings[qr.QuestionID] = qr
	}

	if err := s.updateHistories(ctx, tx, learnerID, sessionID, attempts); err != nil {
		return nil, err
	}

	newRating, streak, err := s.settleRatings(ctx, tx, learner, questionRatings, attempts)
	if err != nil {
		return nil, err
	}
	ratingDelta := newRating - learner.Rating

	gamesPlayed := learner.GamesPlayed + stats.Total
	bestRating := learner.BestRating
	if newRating > bestRating {
		bestRating = newRating
	}
	if err := s.learnerRepo.UpdateFields(ctx, tx, learnerID, map[string]interface{}{
		"rating":         newRating,
		"games_played":   gamesPlayed,
		"wins":           learner.Wins + stats.Correct,
		"losses":         learner.Losses + stats.Incorrect + stats.Skipped,
		"current_streak": streak,
		"best_rating":    bestRating,
		"confidence":     s.cfg.Rating.Confidence(gamesPlayed),
	}); err != nil {
		return nil, err
	}

	categories, err := s.settleCategories(ctx, tx, learnerID, attempts)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	breakdownJSON, err := json.Marshal(categories)
	if err != nil {
		return nil, err
	}
	if err := s.sessionRepo.UpdateFields(ctx, tx, sessionID, map[string]interface{}{
		"status":                   types.SessionStatusCompleted,
		"ended_at":                 now,
		"total_questions":          stats.Total,
		"correct_count":            stats.Correct,
		"incorrect_count":          stats.Incorrect,
		"skipped_count":            stats.Skipped,
		"accuracy_percent":         stats.AccuracyPercent,
		"avg_seconds_per_question": stats.AvgSecondsPerQ,
		"rating_delta":             ratingDelta,
		"category_breakdown":       datatypes.JSON(breakdownJSON),
	}); err != nil {
		return nil, err
	}

	// Close the feedback loop: the next generation sees post-settlement
	// priorities.
	if err := s.priority.RecalculateAll(ctx, tx, learnerID); err != nil {
		return nil, err
	}

	return &SettlementResult{
		Stats:       stats,
		RatingDelta: ratingDelta,
		NewRating:   newRating,
		Categories:  categories,
	}, nil
}

// updateHistories applies the retire/requeue rules: a correct answer retires
// the question and clears its queue priority; a miss un-retires it and bumps
// the priority toward the cap.
func (s *settlementService) updateHistories(ctx context.Context, tx *gorm.DB, learnerID, sessionID uuid.UUID, attempts []Attempt) error {
	questionIDs := make([]uuid.UUID, 0, len(attempts))
	for _, a := range attempts {
		questionIDs = append(questionIDs, a.QuestionID)
	}
	existing, err := s.historyRepo.GetByLearnerAndQuestionIDs(ctx, tx, learnerID, questionIDs)
	if err != nil {
		return err
	}
	byQuestion := make(map[uuid.UUID]*types.QuestionHistory, len(existing))
	for _, h := range existing {
		byQuestion[h.QuestionID] = h
	}

	now := time.Now()
	for _, a := range attempts {
		h := byQuestion[a.QuestionID]
		if h == nil {
			h = &types.QuestionHistory{
				ID:         uuid.New(),
				LearnerID:  learnerID,
				QuestionID: a.QuestionID,
				TimesSeen:  1,
			}
			byQuestion[a.QuestionID] = h
		}
		h.LastSessionID = &sessionID
		if a.Correct {
			h.TimesCorrect++
			h.Retired = true
			retiredAt := now
			h.RetiredAt = &retiredAt
			h.QueuePriority = 0
		} else {
			h.TimesIncorrect++
			h.Retired = false
			h.RetiredAt = nil
			if h.QueuePriority < s.cfg.MaxQueuePriority {
				h.QueuePriority++
			}
		}
		if err := s.historyRepo.Upsert(ctx, tx, h); err != nil {
			return err
		}
	}
	return nil
}

// settleRatings threads the learner's rating through the attempts in order:
// each expected score is computed against that attempt's frozen question
// rating, and each question's live rating takes the mirrored update.
func (s *settlementService) settleRatings(ctx context.Context, tx *gorm.DB, learner *types.LearnerRating, questionRatings map[uuid.UUID]*types.QuestionRating, attempts []Attempt) (float64, int, error) {
	playerK := s.cfg.Rating.PlayerK(learner.GamesPlayed)
	current := learner.Rating
	streak := learner.CurrentStreak

	for _, a := range attempts {
		qr := questionRatings[a.QuestionID]
		if qr == nil {
			// Ensure ran before locking, so this means the attempt references
			// an unknown question.
			continue
		}
		questionK := s.cfg.Rating.QuestionK(qr.TimesAnswered)
		res := s.cfg.Rating.Update(
			rating.Entry{Rating: current, K: playerK},
			rating.Entry{Rating: a.RatingAtSelection, K: questionK},
			a.Correct,
		)
		current = res.ChallengerRating

		newQuestionRating := qr.Rating + res.OpponentDelta
		if newQuestionRating < s.cfg.Rating.Floor {
			newQuestionRating = s.cfg.Rating.Floor
		}
		qr.Rating = newQuestionRating
		qr.TimesAnswered++
		if a.Correct {
			qr.TimesCorrect++
		}
		if err := s.ratingRepo.UpdateFields(ctx, tx, a.QuestionID, map[string]interface{}{
			"rating":         qr.Rating,
			"times_answered": qr.TimesAnswered,
			"times_correct":  qr.TimesCorrect,
		}); err != nil {
			return 0, 0, err
		}

		if a.Correct {
			streak++
		} else {
			streak = 0
		}
	}
	return current, streak, nil
}

// settleCategories runs the rating procedure per category with the learner's
// micro rating as the challenger, then refreshes the derived accuracy,
// trend, mastery, and priority fields.
func (s *settlementService) settleCategories(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, attempts []Attempt) ([]*CategoryOutcome, error) {
	grouped := make(map[uuid.UUID][]Attempt)
	var order []uuid.UUID
	for _, a := range attempts {
		if _, seen := grouped[a.CategoryID]; !seen {
			order = append(order, a.CategoryID)
		}
		grouped[a.CategoryID] = append(grouped[a.CategoryID], a)
	}

	masteredCounts, err := s.historyRepo.CountMasteredByCategory(ctx, tx, learnerID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	out := make([]*CategoryOutcome, 0, len(order))
	for _, categoryID := range order {
		categoryAttempts := grouped[categoryID]

		micro, err := s.microRepo.GetForLearnerCategory(ctx, tx, learnerID, categoryID)
		if err != nil {
			return nil, err
		}
		if micro == nil {
			micro = &types.CategoryMicroRating{
				ID:         uuid.New(),
				LearnerID:  learnerID,
				CategoryID: categoryID,
				Rating:     s.cfg.BaselineRating,
				Trend:      types.TrendStable,
			}
		}

		microK := s.cfg.Rating.PlayerK(micro.Attempts)
		current := micro.Rating
		correct := 0
		outcomes := decodeOutcomes(micro.RecentOutcomes)
		for _, a := range categoryAttempts {
			// The question side already settled against the learner's global
			// rating; here it is only the fixed opponent, so it carries no K
			// and takes no delta.
			res := s.cfg.Rating.Update(
				rating.Entry{Rating: current, K: microK},
				rating.Entry{Rating: a.RatingAtSelection},
				a.Correct,
			)
			current = res.ChallengerRating
			if a.Correct {
				correct++
				outcomes = append(outcomes, 1)
			} else {
				outcomes = append(outcomes, 0)
			}
		}
		if len(outcomes) > s.cfg.RecentAttemptWindow {
			outcomes = outcomes[len(outcomes)-s.cfg.RecentAttemptWindow:]
		}

		micro.Rating = current
		micro.Attempts += len(categoryAttempts)
		micro.CorrectAttempts += correct
		micro.SuccessRate = clamp01(float64(micro.CorrectAttempts) / float64(micro.Attempts))
		micro.RecentAccuracy = meanOutcomes(outcomes)
		micro.RecentOutcomes = encodeOutcomes(outcomes)
		micro.Trend = classifyTrend(s.cfg, micro.RecentAccuracy, micro.SuccessRate)
		micro.MasteredCount = int(masteredCounts[categoryID])
		micro.PriorityScore = selectionWeight(s.cfg, micro.Rating, micro.SuccessRate)
		micro.LastAttemptAt = &now

		if err := s.microRepo.Upsert(ctx, tx, micro); err != nil {
			return nil, err
		}

		out = append(out, &CategoryOutcome{
			CategoryID:    categoryID,
			Attempts:      len(categoryAttempts),
			Correct:       correct,
			NewRating:     micro.Rating,
			PriorityScore: micro.PriorityScore,
			Trend:         micro.Trend,
		})
	}
	return out, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func decodeOutcomes(raw datatypes.JSON) []int {
	if len(raw) == 0 {
		return nil
	}
	var out []int
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func encodeOutcomes(outcomes []int) datatypes.JSON {
	raw, err := json.Marshal(outcomes)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func meanOutcomes(outcomes []int) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	sum := 0
	for _, o := range outcomes {
		sum += o
	}
	return float64(sum) / float64(len(outcomes))
}
