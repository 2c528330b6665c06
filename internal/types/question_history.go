package types

import (
	"time"

	"github.com/google/uuid"
)

// QuestionHistory is the per-(learner, question) memory driving selection:
// retired questions leave the pool, queued ones are forced back in.
type QuestionHistory struct {
	ID             uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	LearnerID      uuid.UUID  `gorm:"type:uuid;not null;index:idx_learner_question,unique" json:"learner_id"`
	QuestionID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_learner_question,unique" json:"question_id"`
	Question       *Question  `gorm:"constraint:OnDelete:CASCADE;foreignKey:QuestionID;references:ID" json:"question,omitempty"`
	TimesSeen      int        `gorm:"column:times_seen;not null;default:0" json:"times_seen"`
	TimesCorrect   int        `gorm:"column:times_correct;not null;default:0" json:"times_correct"`
	TimesIncorrect int        `gorm:"column:times_incorrect;not null;default:0" json:"times_incorrect"`
	Retired        bool       `gorm:"column:retired;not null;default:false" json:"retired"`
	RetiredAt      *time.Time `gorm:"column:retired_at" json:"retired_at,omitempty"`
	// QueuePriority is 0..3: bumped on each miss, reset on a correct answer.
	QueuePriority int        `gorm:"column:queue_priority;not null;default:0" json:"queue_priority"`
	LastSessionID *uuid.UUID `gorm:"type:uuid;column:last_session_id" json:"last_session_id,omitempty"`
	CreatedAt     time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (QuestionHistory) TableName() string { return "question_history" }
