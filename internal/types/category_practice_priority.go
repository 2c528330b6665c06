package types

import (
	"time"

	"github.com/google/uuid"
)

// CategoryPracticePriority is a recomputable cache of the priority
// computation, never source of truth: every field derives from
// CategoryMicroRating plus the question inventory.
type CategoryPracticePriority struct {
	ID               uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	LearnerID        uuid.UUID  `gorm:"type:uuid;not null;index:idx_learner_category_priority,unique" json:"learner_id"`
	CategoryID       uuid.UUID  `gorm:"type:uuid;not null;index:idx_learner_category_priority,unique" json:"category_id"`
	Category         *Category  `gorm:"constraint:OnDelete:CASCADE;foreignKey:CategoryID;references:ID" json:"category,omitempty"`
	SelectionWeight  float64    `gorm:"column:selection_weight;not null;default:0" json:"selection_weight"`
	QuestionsNeeded  int        `gorm:"column:questions_needed;not null;default:0" json:"questions_needed"`
	RatingDeficit    float64    `gorm:"column:rating_deficit;not null;default:0" json:"rating_deficit"`
	AccuracyDeficit  float64    `gorm:"column:accuracy_deficit;not null;default:0" json:"accuracy_deficit"`
	NextPracticeAt   *time.Time `gorm:"column:next_practice_at" json:"next_practice_at,omitempty"`
	LastCalculatedAt time.Time  `gorm:"column:last_calculated_at;not null;default:now()" json:"last_calculated_at"`
	CreatedAt        time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (CategoryPracticePriority) TableName() string { return "category_practice_priority" }
