package services

import "errors"

// Domain errors surfaced to the request layer. Handlers map these to 4xx
// responses; everything else is a 500.
var (
	ErrNoCategoriesAvailable = errors.New("no categories available for quiz generation")
	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionNotActive      = errors.New("session is not active")
	ErrNoAttempts            = errors.New("no attempts submitted")
	ErrInvalidQuestionCount  = errors.New("total questions must be positive")
)
