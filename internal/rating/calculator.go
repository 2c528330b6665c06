package rating

import "math"

// Config holds the tunable constants of the Elo-style update. Defaults are
// documented on each field; deployments override them through app config.
type Config struct {
	// Floor is the lowest rating any side can hold after an update.
	Floor float64
	// NewPlayerK applies below NoviceGames played. New learners swing fast.
	NewPlayerK float64
	// NovicePlayerK applies below IntermediateGames played.
	NovicePlayerK float64
	// IntermediatePlayerK applies below VeteranGames played.
	IntermediatePlayerK float64
	// VeteranPlayerK is the stable long-run K for experienced learners.
	VeteranPlayerK float64
	NoviceGames       int
	IntermediateGames int
	VeteranGames      int
	// ProvisionalQuestionK applies while a question has fewer than
	// ProvisionalAnswerCount recorded answers.
	ProvisionalQuestionK   float64
	StableQuestionK        float64
	ProvisionalAnswerCount int
	// ConfidencePivot is the sample count at which confidence reaches 0.5.
	ConfidencePivot float64
	// ConfidenceCap keeps confidence strictly below full certainty.
	ConfidenceCap float64
}

func DefaultConfig() Config {
	return Config{
		Floor:                  0,
		NewPlayerK:             100,
		NovicePlayerK:          50,
		IntermediatePlayerK:    32,
		VeteranPlayerK:         24,
		NoviceGames:            10,
		IntermediateGames:      30,
		VeteranGames:           100,
		ProvisionalQuestionK:   64,
		StableQuestionK:        24,
		ProvisionalAnswerCount: 20,
		ConfidencePivot:        20,
		ConfidenceCap:          0.99,
	}
}

// Entry is one side of a match: a learner, a question, or a learner's
// per-category micro rating.
type Entry struct {
	Rating float64
	K      float64
}

// Result carries both post-update ratings and the deltas that produced them.
type Result struct {
	ChallengerRating float64
	ChallengerDelta  float64
	OpponentRating   float64
	OpponentDelta    float64
	Expected         float64
}

// ExpectedScore returns the probability that a challenger rated a beats an
// opponent rated b. ExpectedScore(a, b) + ExpectedScore(b, a) == 1.
func ExpectedScore(a, b float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (b-a)/400.0))
}

// Update settles one outcome between challenger and opponent. The two sides
// move asymmetrically: each delta is scaled by that side's own K-factor, and
// the opponent scores the complement outcome. Ratings are clamped at Floor.
func (c Config) Update(challenger, opponent Entry, correct bool) Result {
	expected := ExpectedScore(challenger.Rating, opponent.Rating)

	outcome := 0.0
	if correct {
		outcome = 1.0
	}

	challengerDelta := math.Round(challenger.K * (outcome - expected))
	opponentDelta := math.Round(opponent.K * ((1.0 - outcome) - (1.0 - expected)))

	return Result{
		ChallengerRating: c.clamp(challenger.Rating + challengerDelta),
		ChallengerDelta:  challengerDelta,
		OpponentRating:   c.clamp(opponent.Rating + opponentDelta),
		OpponentDelta:    opponentDelta,
		Expected:         expected,
	}
}

// PlayerK returns the learner-side K-factor for the given experience.
// Monotonically non-increasing in games played.
func (c Config) PlayerK(gamesPlayed int) float64 {
	switch {
	case gamesPlayed < c.NoviceGames:
		return c.NewPlayerK
	case gamesPlayed < c.IntermediateGames:
		return c.NovicePlayerK
	case gamesPlayed < c.VeteranGames:
		return c.IntermediatePlayerK
	default:
		return c.VeteranPlayerK
	}
}

// QuestionK returns the question-side K-factor: a two-band step that drops
// once the item has accumulated enough answers to trust its rating.
func (c Config) QuestionK(timesAnswered int) float64 {
	if timesAnswered < c.ProvisionalAnswerCount {
		return c.ProvisionalQuestionK
	}
	return c.StableQuestionK
}

// Confidence maps a sample count to a reliability estimate in [0, 1).
// Monotone increasing, asymptotically capped below full certainty.
func (c Config) Confidence(samples int) float64 {
	if samples <= 0 {
		return 0
	}
	v := float64(samples) / (float64(samples) + c.ConfidencePivot)
	if v > c.ConfidenceCap {
		return c.ConfidenceCap
	}
	return v
}

func (c Config) clamp(v float64) float64 {
	if v < c.Floor {
		return c.Floor
	}
	return v
}
