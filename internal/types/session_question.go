package types

import (
	"time"

	"github.com/google/uuid"
)

// SessionQuestion is the ordered join between a session and its selected
// questions. RatingAtSelection is a frozen snapshot: later rating changes
// must not alter what the learner was shown or how settlement scores it.
type SessionQuestion struct {
	ID                uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID         uuid.UUID `gorm:"type:uuid;not null;index:idx_session_position,unique" json:"session_id"`
	Session           *QuizSession `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID;references:ID" json:"session,omitempty"`
	QuestionID        uuid.UUID `gorm:"type:uuid;not null;index" json:"question_id"`
	Question          *Question `gorm:"constraint:OnDelete:CASCADE;foreignKey:QuestionID;references:ID" json:"question,omitempty"`
	Position          int       `gorm:"column:position;not null;index:idx_session_position,unique" json:"position"`
	RatingAtSelection float64   `gorm:"column:rating_at_selection;not null" json:"rating_at_selection"`
	CreatedAt         time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt         time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (SessionQuestion) TableName() string { return "session_question" }
