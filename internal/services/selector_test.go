package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillrank/skillrank-backend/internal/types"
)

func TestSelectForCategoryFiltersByRatingWindow(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	learnerID := uuid.New()
	cat := env.store.addCategory("history")

	inWindow := env.store.addQuestion(cat.ID, 1450)
	alsoIn := env.store.addQuestion(cat.ID, 1550)
	tooEasy := env.store.addQuestion(cat.ID, 1100)
	tooHard := env.store.addQuestion(cat.ID, 1900)

	picked, err := env.selector.SelectForCategory(ctx, nil, learnerID, cat.ID, 10, 1500, 200)
	require.NoError(t, err)
	require.Len(t, picked, 2)

	got := map[uuid.UUID]bool{}
	for _, p := range picked {
		got[p.Question.ID] = true
	}
	assert.True(t, got[inWindow.ID])
	assert.True(t, got[alsoIn.ID])
	assert.False(t, got[tooEasy.ID])
	assert.False(t, got[tooHard.ID])
}

func TestSelectForCategoryExcludesRetiredAndRecent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	learnerID := uuid.New()
	cat := env.store.addCategory("science")

	fresh := env.store.addQuestion(cat.ID, 1500)
	retired := env.store.addQuestion(cat.ID, 1500)
	recent := env.store.addQuestion(cat.ID, 1500)

	now := time.Now()
	env.store.putHistory(&types.QuestionHistory{
		ID: uuid.New(), LearnerID: learnerID, QuestionID: retired.ID,
		Retired: true, RetiredAt: &now,
	})

	sess := &types.QuizSession{ID: uuid.New(), LearnerID: learnerID, Status: types.SessionStatusCompleted}
	_, err := env.sessionRepo.Create(ctx, nil, sess)
	require.NoError(t, err)
	require.NoError(t, (&fakeSessionQuestionRepo{s: env.store}).CreateBatch(ctx, nil, []*types.SessionQuestion{
		{ID: uuid.New(), SessionID: sess.ID, QuestionID: recent.ID, Position: 0, RatingAtSelection: 1500},
	}))

	picked, err := env.selector.SelectForCategory(ctx, nil, learnerID, cat.ID, 10, 1500, 200)
	require.NoError(t, err)
	require.Len(t, picked, 1)
	assert.Equal(t, fresh.ID, picked[0].Question.ID)
}

func TestSelectForCategoryQueueOverridesExclusions(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	learnerID := uuid.New()
	cat := env.store.addCategory("grammar")

	// Queued despite being both recently seen and far outside the window.
	queued := env.store.addQuestion(cat.ID, 2400)
	normal := env.store.addQuestion(cat.ID, 1500)

	env.store.putHistory(&types.QuestionHistory{
		ID: uuid.New(), LearnerID: learnerID, QuestionID: queued.ID,
		TimesIncorrect: 2, QueuePriority: 2,
	})
	sess := &types.QuizSession{ID: uuid.New(), LearnerID: learnerID, Status: types.SessionStatusCompleted}
	_, err := env.sessionRepo.Create(ctx, nil, sess)
	require.NoError(t, err)
	require.NoError(t, (&fakeSessionQuestionRepo{s: env.store}).CreateBatch(ctx, nil, []*types.SessionQuestion{
		{ID: uuid.New(), SessionID: sess.ID, QuestionID: queued.ID, Position: 0, RatingAtSelection: 2400},
	}))

	picked, err := env.selector.SelectForCategory(ctx, nil, learnerID, cat.ID, 2, 1500, 200)
	require.NoError(t, err)
	require.Len(t, picked, 2)

	// Queued questions sort ahead of unqueued ones.
	assert.Equal(t, queued.ID, picked[0].Question.ID)
	assert.Equal(t, 2, picked[0].QueuePriority)
	assert.Equal(t, normal.ID, picked[1].Question.ID)
}

func TestSelectForCategoryPrefersCloserRatings(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	learnerID := uuid.New()
	cat := env.store.addCategory("logic")

	near := env.store.addQuestion(cat.ID, 1510)
	far := env.store.addQuestion(cat.ID, 1690)
	env.store.addQuestion(cat.ID, 1320)

	picked, err := env.selector.SelectForCategory(ctx, nil, learnerID, cat.ID, 1, 1500, 200)
	require.NoError(t, err)
	require.Len(t, picked, 1)
	assert.Equal(t, near.ID, picked[0].Question.ID)
	assert.NotEqual(t, far.ID, picked[0].Question.ID)
	assert.InDelta(t, 1510, picked[0].RatingAtSelection, 1e-9)
}

func TestSelectForCategoryShortPoolReturnsWhatExists(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	learnerID := uuid.New()
	cat := env.store.addCategory("sparse")
	env.store.addQuestion(cat.ID, 1500)

	picked, err := env.selector.SelectForCategory(ctx, nil, learnerID, cat.ID, 5, 1500, 200)
	require.NoError(t, err)
	assert.Len(t, picked, 1)
}

func TestSelectForCategoryZeroCount(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	picked, err := env.selector.SelectForCategory(ctx, nil, uuid.New(), uuid.New(), 0, 1500, 200)
	require.NoError(t, err)
	assert.Empty(t, picked)
}
