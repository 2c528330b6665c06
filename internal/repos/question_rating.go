package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/skillrank/skillrank-backend/internal/logger"
	"github.com/skillrank/skillrank-backend/internal/types"
)

// Candidate pairs a question with its current rating for selection.
type Candidate struct {
	Question *types.Question
	Rating   float64
}

type QuestionRatingRepo interface {
	// Ensure inserts baseline rating rows for any of the given questions
	// that do not have one yet.
	Ensure(ctx context.Context, tx *gorm.DB, questionIDs []uuid.UUID, baseline float64) error
	// LockByQuestionIDs locks the rating rows in ascending question-id order
	// so concurrent settlements sharing questions cannot deadlock.
	LockByQuestionIDs(ctx context.Context, tx *gorm.DB, questionIDs []uuid.UUID) ([]*types.QuestionRating, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, questionID uuid.UUID, updates map[string]interface{}) error
	// FindCandidates returns active questions in the category whose rating
	// falls inside [minRating, maxRating], plus any queued questions
	// regardless of rating, minus the excluded set. Callers must pass an
	// excluded set that is already disjoint from the queued set. Empty
	// queued/excluded sets constrain nothing.
	FindCandidates(ctx context.Context, tx *gorm.DB, categoryID uuid.UUID, minRating, maxRating float64, queuedIDs, excludedIDs []uuid.UUID) ([]*Candidate, error)
}

type questionRatingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuestionRatingRepo(db *gorm.DB, baseLog *logger.Logger) QuestionRatingRepo {
	return &questionRatingRepo{db: db, log: baseLog.With("repo", "QuestionRatingRepo")}
}

func (r *questionRatingRepo) Ensure(ctx context.Context, tx *gorm.DB, questionIDs []uuid.UUID, baseline float64) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(questionIDs) == 0 {
		return nil
	}
	rows := make([]*types.QuestionRating, 0, len(questionIDs))
	for _, qid := range questionIDs {
		rows = append(rows, &types.QuestionRating{
			ID:         uuid.New(),
			QuestionID: qid,
			Rating:     baseline,
		})
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "question_id"}},
			DoNothing: true,
		}).
		Create(&rows).Error
}

func (r *questionRatingRepo) LockByQuestionIDs(ctx context.Context, tx *gorm.DB, questionIDs []uuid.UUID) ([]*types.QuestionRating, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.QuestionRating
	if len(questionIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("question_id IN ?", questionIDs).
		Order("question_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *questionRatingRepo) UpdateFields(ctx context.Context, tx *gorm.DB, questionID uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if questionID == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.QuestionRating{}).
		Where("question_id = ?", questionID).
		Updates(updates).Error
}

type candidateRow struct {
	types.Question
	CurrentRating float64 `gorm:"column:current_rating"`
}

func (r *questionRatingRepo) FindCandidates(ctx context.Context, tx *gorm.DB, categoryID uuid.UUID, minRating, maxRating float64, queuedIDs, excludedIDs []uuid.UUID) ([]*Candidate, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).
		Table("question").
		Select("question.*, question_rating.rating AS current_rating").
		Joins("JOIN question_rating ON question_rating.question_id = question.id").
		Where("question.active = ? AND question.deleted_at IS NULL", true).
		Where("question.category_id = ?", categoryID)

	// Queued questions bypass the rating window; an empty queued set must
	// not collapse the window filter into "exclude everything".
	if len(queuedIDs) > 0 {
		q = q.Where("(question_rating.rating BETWEEN ? AND ?) OR question.id IN ?", minRating, maxRating, queuedIDs)
	} else {
		q = q.Where("question_rating.rating BETWEEN ? AND ?", minRating, maxRating)
	}
	if len(excludedIDs) > 0 {
		q = q.Where("question.id NOT IN ?", excludedIDs)
	}

	var rows []candidateRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*Candidate, 0, len(rows))
	for i := range rows {
		question := rows[i].Question
		out = append(out, &Candidate{Question: &question, Rating: rows[i].CurrentRating})
	}
	return out, nil
}
