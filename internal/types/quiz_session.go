package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SessionTypePractice   = "practice"
	SessionTypeDiagnostic = "diagnostic"
	SessionTypeTimed      = "timed"

	SessionStatusActive    = "active"
	SessionStatusPaused    = "paused"
	SessionStatusCompleted = "completed"
	SessionStatusAbandoned = "abandoned"
)

// QuizSession records one practice attempt. Sessions are retained for
// history and never deleted.
type QuizSession struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	LearnerID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"learner_id"`
	SessionType  string     `gorm:"column:session_type;not null;default:'practice'" json:"session_type"`
	Status       string     `gorm:"column:status;not null;default:'active'" json:"status"`
	StartedAt    time.Time  `gorm:"column:started_at;not null;default:now()" json:"started_at"`
	EndedAt      *time.Time `gorm:"column:ended_at" json:"ended_at,omitempty"`
	PausedAt     *time.Time `gorm:"column:paused_at" json:"paused_at,omitempty"`
	ResumedAt    *time.Time `gorm:"column:resumed_at" json:"resumed_at,omitempty"`
	PauseSeconds int        `gorm:"column:pause_seconds;not null;default:0" json:"pause_seconds"`

	TotalQuestions    int            `gorm:"column:total_questions;not null;default:0" json:"total_questions"`
	CorrectCount      int            `gorm:"column:correct_count;not null;default:0" json:"correct_count"`
	IncorrectCount    int            `gorm:"column:incorrect_count;not null;default:0" json:"incorrect_count"`
	SkippedCount      int            `gorm:"column:skipped_count;not null;default:0" json:"skipped_count"`
	AccuracyPercent   float64        `gorm:"column:accuracy_percent;not null;default:0" json:"accuracy_percent"`
	AvgSecondsPerQ    float64        `gorm:"column:avg_seconds_per_question;not null;default:0" json:"avg_seconds_per_question"`
	RatingDelta       float64        `gorm:"column:rating_delta;not null;default:0" json:"rating_delta"`
	CategoryBreakdown datatypes.JSON `gorm:"type:jsonb;column:category_breakdown" json:"category_breakdown"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (QuizSession) TableName() string { return "quiz_session" }
