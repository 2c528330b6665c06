package services

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skillrank/skillrank-backend/internal/app"
	"github.com/skillrank/skillrank-backend/internal/logger"
	"github.com/skillrank/skillrank-backend/internal/repos"
	"github.com/skillrank/skillrank-backend/internal/types"
)

// SelectedQuestion is one candidate chosen for a session, with the rating
// snapshot that selection was based on.
type SelectedQuestion struct {
	Question          *types.Question
	RatingAtSelection float64
	QueuePriority     int
}

type SelectorService interface {
	// SelectForCategory returns up to desiredCount questions from the
	// category around targetRating. Queued questions bypass both the rating
	// window and recency exclusion; retired and recently-seen questions are
	// otherwise excluded. Returning fewer than desiredCount is a valid
	// short result, not an error.
	SelectForCategory(ctx context.Context, tx *gorm.DB, learnerID, categoryID uuid.UUID, desiredCount int, targetRating, window float64) ([]*SelectedQuestion, error)
}

type selectorService struct {
	db              *gorm.DB
	log             *logger.Logger
	cfg             app.EngineConfig
	historyRepo     repos.QuestionHistoryRepo
	sessionRepo     repos.QuizSessionRepo
	sessionQRepo    repos.SessionQuestionRepo
	questionRatings repos.QuestionRatingRepo
}

func NewSelectorService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg app.EngineConfig,
	historyRepo repos.QuestionHistoryRepo,
	sessionRepo repos.QuizSessionRepo,
	sessionQRepo repos.SessionQuestionRepo,
	questionRatings repos.QuestionRatingRepo,
) SelectorService {
	return &selectorService{
		db:              db,
		log:             baseLog.With("service", "SelectorService"),
		cfg:             cfg,
		historyRepo:     historyRepo,
		sessionRepo:     sessionRepo,
		sessionQRepo:    sessionQRepo,
		questionRatings: questionRatings,
	}
}

func (s *selectorService) SelectForCategory(ctx context.Context, tx *gorm.DB, learnerID, categoryID uuid.UUID, desiredCount int, targetRating, window float64) ([]*SelectedQuestion, error) {
	if desiredCount <= 0 {
		return nil, nil
	}

	queued, err := s.historyRepo.GetQueued(ctx, tx, learnerID)
	if err != nil {
		return nil, err
	}
	queuePriorities := make(map[uuid.UUID]int, len(queued))
	queuedIDs := make([]uuid.UUID, 0, len(queued))
	for _, h := range queued {
		queuePriorities[h.QuestionID] = h.QueuePriority
		queuedIDs = append(queuedIDs, h.QuestionID)
	}

	retired, err := s.historyRepo.RetiredQuestionIDs(ctx, tx, learnerID)
	if err != nil {
		return nil, err
	}
	recentSessions, err := s.sessionRepo.RecentSessionIDs(ctx, tx, learnerID, s.cfg.RecentSessionWindow)
	if err != nil {
		return nil, err
	}
	recentlySeen, err := s.sessionQRepo.QuestionIDsBySessionIDs(ctx, tx, recentSessions)
	if err != nil {
		return nil, err
	}

	// Queue membership overrides exclusion: a learner must eventually
	// re-see missed questions even when recently shown.
	excludedSet := make(map[uuid.UUID]struct{}, len(retired)+len(recentlySeen))
	for _, id := range retired {
		if _, isQueued := queuePriorities[id]; !isQueued {
			excludedSet[id] = struct{}{}
		}
	}
	for _, id := range recentlySeen {
		if _, isQueued := queuePriorities[id]; !isQueued {
			excludedSet[id] = struct{}{}
		}
	}
	excludedIDs := make([]uuid.UUID, 0, len(excludedSet))
	for id := range excludedSet {
		excludedIDs = append(excludedIDs, id)
	}

	candidates, err := s.questionRatings.FindCandidates(ctx, tx, categoryID, targetRating-window, targetRating+window, queuedIDs, excludedIDs)
	if err != nil {
		return nil, err
	}

	type ranked struct {
		candidate *repos.Candidate
		priority  int
		distance  float64
		tiebreak  float64
	}
	pool := make([]ranked, 0, len(candidates))
	for _, c := range candidates {
		pool = append(pool, ranked{
			candidate: c,
			priority:  queuePriorities[c.Question.ID],
			distance:  math.Abs(c.Rating - targetRating),
			tiebreak:  rand.Float64(),
		})
	}
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].priority != pool[j].priority {
			return pool[i].priority > pool[j].priority
		}
		if pool[i].distance != pool[j].distance {
			return pool[i].distance < pool[j].distance
		}
		return pool[i].tiebreak < pool[j].tiebreak
	})

	if len(pool) > desiredCount {
		pool = pool[:desiredCount]
	}
	out := make([]*SelectedQuestion, 0, len(pool))
	for _, r := range pool {
		out = append(out, &SelectedQuestion{
			Question:          r.candidate.Question,
			RatingAtSelection: r.candidate.Rating,
			QueuePriority:     r.priority,
		})
	}
	return out, nil
}
