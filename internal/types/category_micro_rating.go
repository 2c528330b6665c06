package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// CategoryMicroRating tracks a learner's skill inside one category. Created
// lazily on the first settled attempt in that category.
type CategoryMicroRating struct {
	ID              uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	LearnerID       uuid.UUID `gorm:"type:uuid;not null;index:idx_learner_category_micro,unique" json:"learner_id"`
	CategoryID      uuid.UUID `gorm:"type:uuid;not null;index:idx_learner_category_micro,unique" json:"category_id"`
	Category        *Category `gorm:"constraint:OnDelete:CASCADE;foreignKey:CategoryID;references:ID" json:"category,omitempty"`
	Rating          float64   `gorm:"column:rating;not null;default:1500" json:"rating"`
	Attempts        int       `gorm:"column:attempts;not null;default:0" json:"attempts"`
	CorrectAttempts int       `gorm:"column:correct_attempts;not null;default:0" json:"correct_attempts"`
	SuccessRate     float64   `gorm:"column:success_rate;not null;default:0" json:"success_rate"`
	RecentAccuracy  float64   `gorm:"column:recent_accuracy;not null;default:0" json:"recent_accuracy"`
	// RecentOutcomes is the rolling window (most recent last) backing
	// RecentAccuracy: a JSON array of 0/1 capped at the configured length.
	RecentOutcomes datatypes.JSON `gorm:"type:jsonb;column:recent_outcomes" json:"recent_outcomes"`
	Trend          string         `gorm:"column:trend;not null;default:'stable'" json:"trend"`
	MasteredCount  int            `gorm:"column:mastered_count;not null;default:0" json:"mastered_count"`
	PriorityScore  float64        `gorm:"column:priority_score;not null;default:0" json:"priority_score"`
	LastAttemptAt  *time.Time     `gorm:"column:last_attempt_at" json:"last_attempt_at,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (CategoryMicroRating) TableName() string { return "category_micro_rating" }
