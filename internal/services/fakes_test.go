package services

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/skillrank/skillrank-backend/internal/app"
	"github.com/skillrank/skillrank-backend/internal/logger"
	"github.com/skillrank/skillrank-backend/internal/repos"
	"github.com/skillrank/skillrank-backend/internal/types"
)

// fakeStore is a mutex-guarded in-memory backing store shared by the fake
// repos below. Services run against a nil *gorm.DB in tests, which makes
// withTransaction a passthrough, so the fakes see every call directly.
type fakeStore struct {
	mu sync.Mutex

	categories      map[uuid.UUID]*types.Category
	questions       map[uuid.UUID]*types.Question
	learners        map[uuid.UUID]*types.LearnerRating
	questionRatings map[uuid.UUID]*types.QuestionRating
	micros          map[uuid.UUID]map[uuid.UUID]*types.CategoryMicroRating
	priorities      map[uuid.UUID]map[uuid.UUID]*types.CategoryPracticePriority
	sessions        map[uuid.UUID]*types.QuizSession
	sessionOrder    []uuid.UUID
	sessionQs       map[uuid.UUID][]*types.SessionQuestion
	histories       map[uuid.UUID]map[uuid.UUID]*types.QuestionHistory
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		categories:      make(map[uuid.UUID]*types.Category),
		questions:       make(map[uuid.UUID]*types.Question),
		learners:        make(map[uuid.UUID]*types.LearnerRating),
		questionRatings: make(map[uuid.UUID]*types.QuestionRating),
		micros:          make(map[uuid.UUID]map[uuid.UUID]*types.CategoryMicroRating),
		priorities:      make(map[uuid.UUID]map[uuid.UUID]*types.CategoryPracticePriority),
		sessions:        make(map[uuid.UUID]*types.QuizSession),
		sessionQs:       make(map[uuid.UUID][]*types.SessionQuestion),
		histories:       make(map[uuid.UUID]map[uuid.UUID]*types.QuestionHistory),
	}
}

func (s *fakeStore) addCategory(name string) *types.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &types.Category{ID: uuid.New(), Name: name, Active: true}
	s.categories[c.ID] = c
	return c
}

func (s *fakeStore) addQuestion(categoryID uuid.UUID, ratingValue float64) *types.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := &types.Question{ID: uuid.New(), CategoryID: categoryID, Prompt: "q", Active: true}
	s.questions[q.ID] = q
	s.questionRatings[q.ID] = &types.QuestionRating{
		ID:         uuid.New(),
		QuestionID: q.ID,
		Rating:     ratingValue,
	}
	return q
}

func (s *fakeStore) historyFor(learnerID, questionID uuid.UUID) *types.QuestionHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	if byQ, ok := s.histories[learnerID]; ok {
		return byQ[questionID]
	}
	return nil
}

func (s *fakeStore) putHistory(h *types.QuestionHistory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byQ, ok := s.histories[h.LearnerID]
	if !ok {
		byQ = make(map[uuid.UUID]*types.QuestionHistory)
		s.histories[h.LearnerID] = byQ
	}
	byQ[h.QuestionID] = h
}

func (s *fakeStore) putMicro(m *types.CategoryMicroRating) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byCat, ok := s.micros[m.LearnerID]
	if !ok {
		byCat = make(map[uuid.UUID]*types.CategoryMicroRating)
		s.micros[m.LearnerID] = byCat
	}
	byCat[m.CategoryID] = m
}

func testLogger() *logger.Logger {
	l, err := logger.New("dev")
	if err != nil {
		panic(err)
	}
	return l
}

// --- fake repos ---

type fakeCategoryRepo struct{ s *fakeStore }

func (r *fakeCategoryRepo) GetByIDs(_ context.Context, _ *gorm.DB, ids []uuid.UUID) ([]*types.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*types.Category
	for _, id := range ids {
		if c, ok := r.s.categories[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeQuestionRepo struct{ s *fakeStore }

func (r *fakeQuestionRepo) GetByIDs(_ context.Context, _ *gorm.DB, ids []uuid.UUID) ([]*types.Question, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*types.Question
	for _, id := range ids {
		if q, ok := r.s.questions[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (r *fakeQuestionRepo) CountActiveByCategories(_ context.Context, _ *gorm.DB, categoryIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	wanted := make(map[uuid.UUID]struct{}, len(categoryIDs))
	for _, id := range categoryIDs {
		wanted[id] = struct{}{}
	}
	out := make(map[uuid.UUID]int64)
	for _, q := range r.s.questions {
		if !q.Active {
			continue
		}
		if _, ok := wanted[q.CategoryID]; ok {
			out[q.CategoryID]++
		}
	}
	return out, nil
}

type fakeLearnerRatingRepo struct{ s *fakeStore }

func (r *fakeLearnerRatingRepo) Get(_ context.Context, _ *gorm.DB, learnerID uuid.UUID) (*types.LearnerRating, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.learners[learnerID], nil
}

func (r *fakeLearnerRatingRepo) Ensure(_ context.Context, _ *gorm.DB, learnerID uuid.UUID, baseline float64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.learners[learnerID]; !ok {
		r.s.learners[learnerID] = &types.LearnerRating{
			ID:         uuid.New(),
			LearnerID:  learnerID,
			Rating:     baseline,
			BestRating: baseline,
		}
	}
	return nil
}

func (r *fakeLearnerRatingRepo) GetForUpdate(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) (*types.LearnerRating, error) {
	return r.Get(ctx, tx, learnerID)
}

func (r *fakeLearnerRatingRepo) UpdateFields(_ context.Context, _ *gorm.DB, learnerID uuid.UUID, updates map[string]interface{}) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lr := r.s.learners[learnerID]
	if lr == nil {
		return gorm.ErrRecordNotFound
	}
	for k, v := range updates {
		switch k {
		case "rating":
			lr.Rating = v.(float64)
		case "games_played":
			lr.GamesPlayed = v.(int)
		case "wins":
			lr.Wins = v.(int)
		case "losses":
			lr.Losses = v.(int)
		case "current_streak":
			lr.CurrentStreak = v.(int)
		case "best_rating":
			lr.BestRating = v.(float64)
		case "confidence":
			lr.Confidence = v.(float64)
		}
	}
	return nil
}

type fakeQuestionRatingRepo struct{ s *fakeStore }

func (r *fakeQuestionRatingRepo) Ensure(_ context.Context, _ *gorm.DB, questionIDs []uuid.UUID, baseline float64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range questionIDs {
		if _, ok := r.s.questionRatings[id]; !ok {
			r.s.questionRatings[id] = &types.QuestionRating{ID: uuid.New(), QuestionID: id, Rating: baseline}
		}
	}
	return nil
}

func (r *fakeQuestionRatingRepo) LockByQuestionIDs(_ context.Context, _ *gorm.DB, questionIDs []uuid.UUID) ([]*types.QuestionRating, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sorted := append([]uuid.UUID(nil), questionIDs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })
	var out []*types.QuestionRating
	for _, id := range sorted {
		if qr, ok := r.s.questionRatings[id]; ok {
			out = append(out, qr)
		}
	}
	return out, nil
}

func (r *fakeQuestionRatingRepo) UpdateFields(_ context.Context, _ *gorm.DB, questionID uuid.UUID, updates map[string]interface{}) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	qr := r.s.questionRatings[questionID]
	if qr == nil {
		return gorm.ErrRecordNotFound
	}
	for k, v := range updates {
		switch k {
		case "rating":
			qr.Rating = v.(float64)
		case "times_answered":
			qr.TimesAnswered = v.(int)
		case "times_correct":
			qr.TimesCorrect = v.(int)
		}
	}
	return nil
}

func (r *fakeQuestionRatingRepo) FindCandidates(_ context.Context, _ *gorm.DB, categoryID uuid.UUID, minRating, maxRating float64, queuedIDs, excludedIDs []uuid.UUID) ([]*repos.Candidate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	queued := make(map[uuid.UUID]struct{}, len(queuedIDs))
	for _, id := range queuedIDs {
		queued[id] = struct{}{}
	}
	excluded := make(map[uuid.UUID]struct{}, len(excludedIDs))
	for _, id := range excludedIDs {
		excluded[id] = struct{}{}
	}
	var out []*repos.Candidate
	for _, q := range r.s.questions {
		if q.CategoryID != categoryID || !q.Active {
			continue
		}
		if _, skip := excluded[q.ID]; skip {
			continue
		}
		qr := r.s.questionRatings[q.ID]
		if qr == nil {
			continue
		}
		_, isQueued := queued[q.ID]
		if !isQueued && (qr.Rating < minRating || qr.Rating > maxRating) {
			continue
		}
		out = append(out, &repos.Candidate{Question: q, Rating: qr.Rating})
	}
	return out, nil
}

type fakeMicroRepo struct{ s *fakeStore }

func (r *fakeMicroRepo) GetByLearner(_ context.Context, _ *gorm.DB, learnerID uuid.UUID) ([]*types.CategoryMicroRating, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*types.CategoryMicroRating
	for _, m := range r.s.micros[learnerID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryID.String() < out[j].CategoryID.String() })
	return out, nil
}

func (r *fakeMicroRepo) GetForLearnerCategory(_ context.Context, _ *gorm.DB, learnerID, categoryID uuid.UUID) (*types.CategoryMicroRating, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if byCat, ok := r.s.micros[learnerID]; ok {
		return byCat[categoryID], nil
	}
	return nil, nil
}

func (r *fakeMicroRepo) Upsert(_ context.Context, _ *gorm.DB, row *types.CategoryMicroRating) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	byCat, ok := r.s.micros[row.LearnerID]
	if !ok {
		byCat = make(map[uuid.UUID]*types.CategoryMicroRating)
		r.s.micros[row.LearnerID] = byCat
	}
	byCat[row.CategoryID] = row
	return nil
}

type fakePriorityRepo struct{ s *fakeStore }

func (r *fakePriorityRepo) UpsertAll(_ context.Context, _ *gorm.DB, rows []*types.CategoryPracticePriority) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, row := range rows {
		byCat, ok := r.s.priorities[row.LearnerID]
		if !ok {
			byCat = make(map[uuid.UUID]*types.CategoryPracticePriority)
			r.s.priorities[row.LearnerID] = byCat
		}
		byCat[row.CategoryID] = row
	}
	return nil
}

func (r *fakePriorityRepo) GetByLearner(_ context.Context, _ *gorm.DB, learnerID uuid.UUID) ([]*types.CategoryPracticePriority, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*types.CategoryPracticePriority
	for _, p := range r.s.priorities[learnerID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryID.String() < out[j].CategoryID.String() })
	return out, nil
}

func (r *fakePriorityRepo) TopByLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, n int) ([]*types.CategoryPracticePriority, error) {
	all, err := r.GetByLearner(ctx, tx, learnerID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].SelectionWeight != all[j].SelectionWeight {
			return all[i].SelectionWeight > all[j].SelectionWeight
		}
		return all[i].CategoryID.String() < all[j].CategoryID.String()
	})
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}

type fakeSessionRepo struct{ s *fakeStore }

func (r *fakeSessionRepo) Create(_ context.Context, _ *gorm.DB, session *types.QuizSession) (*types.QuizSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	r.s.sessions[session.ID] = session
	r.s.sessionOrder = append(r.s.sessionOrder, session.ID)
	return session, nil
}

func (r *fakeSessionRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.QuizSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.sessions[id], nil
}

func (r *fakeSessionRepo) UpdateFields(_ context.Context, _ *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess := r.s.sessions[id]
	if sess == nil {
		return gorm.ErrRecordNotFound
	}
	for k, v := range updates {
		switch k {
		case "status":
			sess.Status = v.(string)
		case "total_questions":
			sess.TotalQuestions = v.(int)
		case "correct_count":
			sess.CorrectCount = v.(int)
		case "incorrect_count":
			sess.IncorrectCount = v.(int)
		case "skipped_count":
			sess.SkippedCount = v.(int)
		case "accuracy_percent":
			sess.AccuracyPercent = v.(float64)
		case "avg_seconds_per_question":
			sess.AvgSecondsPerQ = v.(float64)
		case "rating_delta":
			sess.RatingDelta = v.(float64)
		}
	}
	return nil
}

func (r *fakeSessionRepo) RecentSessionIDs(_ context.Context, _ *gorm.DB, learnerID uuid.UUID, n int) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []uuid.UUID
	for i := len(r.s.sessionOrder) - 1; i >= 0 && len(out) < n; i-- {
		sess := r.s.sessions[r.s.sessionOrder[i]]
		if sess != nil && sess.LearnerID == learnerID {
			out = append(out, sess.ID)
		}
	}
	return out, nil
}

type fakeSessionQuestionRepo struct{ s *fakeStore }

func (r *fakeSessionQuestionRepo) CreateBatch(_ context.Context, _ *gorm.DB, rows []*types.SessionQuestion) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, row := range rows {
		r.s.sessionQs[row.SessionID] = append(r.s.sessionQs[row.SessionID], row)
	}
	return nil
}

func (r *fakeSessionQuestionRepo) GetBySessionID(_ context.Context, _ *gorm.DB, sessionID uuid.UUID) ([]*types.SessionQuestion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := append([]*types.SessionQuestion(nil), r.s.sessionQs[sessionID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *fakeSessionQuestionRepo) QuestionIDsBySessionIDs(_ context.Context, _ *gorm.DB, sessionIDs []uuid.UUID) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for _, sid := range sessionIDs {
		for _, sq := range r.s.sessionQs[sid] {
			if _, dup := seen[sq.QuestionID]; dup {
				continue
			}
			seen[sq.QuestionID] = struct{}{}
			out = append(out, sq.QuestionID)
		}
	}
	return out, nil
}

type fakeHistoryRepo struct{ s *fakeStore }

func (r *fakeHistoryRepo) GetByLearnerAndQuestionIDs(_ context.Context, _ *gorm.DB, learnerID uuid.UUID, questionIDs []uuid.UUID) ([]*types.QuestionHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	byQ := r.s.histories[learnerID]
	var out []*types.QuestionHistory
	for _, id := range questionIDs {
		if h, ok := byQ[id]; ok {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *fakeHistoryRepo) GetQueued(_ context.Context, _ *gorm.DB, learnerID uuid.UUID) ([]*types.QuestionHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*types.QuestionHistory
	for _, h := range r.s.histories[learnerID] {
		if h.QueuePriority > 0 {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *fakeHistoryRepo) RetiredQuestionIDs(_ context.Context, _ *gorm.DB, learnerID uuid.UUID) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []uuid.UUID
	for _, h := range r.s.histories[learnerID] {
		if h.Retired {
			out = append(out, h.QuestionID)
		}
	}
	return out, nil
}

func (r *fakeHistoryRepo) MarkSeen(_ context.Context, _ *gorm.DB, learnerID uuid.UUID, questionIDs []uuid.UUID, sessionID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	byQ, ok := r.s.histories[learnerID]
	if !ok {
		byQ = make(map[uuid.UUID]*types.QuestionHistory)
		r.s.histories[learnerID] = byQ
	}
	for _, qid := range questionIDs {
		h := byQ[qid]
		if h == nil {
			h = &types.QuestionHistory{ID: uuid.New(), LearnerID: learnerID, QuestionID: qid}
			byQ[qid] = h
		}
		h.TimesSeen++
		sid := sessionID
		h.LastSessionID = &sid
	}
	return nil
}

func (r *fakeHistoryRepo) Upsert(_ context.Context, _ *gorm.DB, row *types.QuestionHistory) error {
	r.s.putHistory(row)
	return nil
}

func (r *fakeHistoryRepo) CountMasteredByCategory(_ context.Context, _ *gorm.DB, learnerID uuid.UUID) (map[uuid.UUID]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[uuid.UUID]int64)
	for _, h := range r.s.histories[learnerID] {
		if !h.Retired {
			continue
		}
		if q, ok := r.s.questions[h.QuestionID]; ok {
			out[q.CategoryID]++
		}
	}
	return out, nil
}

// --- wiring helpers ---

type testEnv struct {
	store      *fakeStore
	priority   PriorityService
	selector   SelectorService
	quiz       QuizService
	settlement SettlementService

	learnerRepo  *fakeLearnerRatingRepo
	ratingRepo   *fakeQuestionRatingRepo
	sessionRepo  *fakeSessionRepo
	historyRepo  *fakeHistoryRepo
	microRepo    *fakeMicroRepo
	priorityRepo *fakePriorityRepo
}

func newTestEnv() *testEnv {
	store := newFakeStore()
	log := testLogger()
	cfg := app.DefaultEngineConfig()

	categoryRepo := &fakeCategoryRepo{s: store}
	questionRepo := &fakeQuestionRepo{s: store}
	learnerRepo := &fakeLearnerRatingRepo{s: store}
	ratingRepo := &fakeQuestionRatingRepo{s: store}
	microRepo := &fakeMicroRepo{s: store}
	priorityRepo := &fakePriorityRepo{s: store}
	sessionRepo := &fakeSessionRepo{s: store}
	sessionQRepo := &fakeSessionQuestionRepo{s: store}
	historyRepo := &fakeHistoryRepo{s: store}

	priority := NewPriorityService(nil, log, cfg, microRepo, questionRepo, historyRepo, priorityRepo, categoryRepo)
	selector := NewSelectorService(nil, log, cfg, historyRepo, sessionRepo, sessionQRepo, ratingRepo)
	quiz := NewQuizService(nil, log, cfg, priority, selector, learnerRepo, categoryRepo, questionRepo, sessionRepo, sessionQRepo, historyRepo)
	settlement := NewSettlementService(nil, log, cfg, priority, learnerRepo, ratingRepo, sessionRepo, historyRepo, microRepo)

	return &testEnv{
		store:        store,
		priority:     priority,
		selector:     selector,
		quiz:         quiz,
		settlement:   settlement,
		learnerRepo:  learnerRepo,
		ratingRepo:   ratingRepo,
		sessionRepo:  sessionRepo,
		historyRepo:  historyRepo,
		microRepo:    microRepo,
		priorityRepo: priorityRepo,
	}
}
