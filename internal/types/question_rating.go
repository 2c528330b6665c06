package types

import (
	"time"

	"github.com/google/uuid"
)

type QuestionRating struct {
	ID            uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	QuestionID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"question_id"`
	Question      *Question `gorm:"constraint:OnDelete:CASCADE;foreignKey:QuestionID;references:ID" json:"question,omitempty"`
	Rating        float64   `gorm:"column:rating;not null;default:1500" json:"rating"`
	TimesAnswered int       `gorm:"column:times_answered;not null;default:0" json:"times_answered"`
	TimesCorrect  int       `gorm:"column:times_correct;not null;default:0" json:"times_correct"`
	CreatedAt     time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (QuestionRating) TableName() string { return "question_rating" }
