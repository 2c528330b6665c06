package types

import (
	"time"

	"github.com/google/uuid"
)

// LearnerRating is the learner's overall skill estimate. The K-factor is
// derived from GamesPlayed at settlement time and never stored.
type LearnerRating struct {
	ID            uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	LearnerID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"learner_id"`
	Rating        float64   `gorm:"column:rating;not null;default:1500" json:"rating"`
	GamesPlayed   int       `gorm:"column:games_played;not null;default:0" json:"games_played"`
	Wins          int       `gorm:"column:wins;not null;default:0" json:"wins"`
	Losses        int       `gorm:"column:losses;not null;default:0" json:"losses"`
	CurrentStreak int       `gorm:"column:current_streak;not null;default:0" json:"current_streak"`
	BestRating    float64   `gorm:"column:best_rating;not null;default:1500" json:"best_rating"`
	Confidence    float64   `gorm:"column:confidence;not null;default:0" json:"confidence"`
	CreatedAt     time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (LearnerRating) TableName() string { return "learner_rating" }
