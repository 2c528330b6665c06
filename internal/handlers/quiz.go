package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/skillrank/skillrank-backend/internal/logger"
	"github.com/skillrank/skillrank-backend/internal/requestdata"
	"github.com/skillrank/skillrank-backend/internal/services"
)

type QuizHandler struct {
	log           *logger.Logger
	quizSvc       services.QuizService
	settlementSvc services.SettlementService
}

func NewQuizHandler(baseLog *logger.Logger, quizSvc services.QuizService, settlementSvc services.SettlementService) *QuizHandler {
	return &QuizHandler{
		log:           baseLog.With("handler", "QuizHandler"),
		quizSvc:       quizSvc,
		settlementSvc: settlementSvc,
	}
}

type generateQuizRequest struct {
	TotalQuestions    int         `json:"total_questions" binding:"required"`
	SessionType       string      `json:"session_type"`
	TargetCategoryIDs []uuid.UUID `json:"category_ids"`
}

type completeSessionRequest struct {
	Attempts []services.Attempt `json:"attempts" binding:"required"`
}

func learnerFromContext(c *gin.Context) (uuid.UUID, bool) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.LearnerID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("missing learner identity"))
		return uuid.Nil, false
	}
	return rd.LearnerID, true
}

// POST /api/quizzes
// Generate a new adaptive session for the authenticated learner.
func (h *QuizHandler) GenerateQuiz(c *gin.Context) {
	learnerID, ok := learnerFromContext(c)
	if !ok {
		return
	}
	var req generateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusUnprocessableEntity, "invalid_request", err)
		return
	}
	quiz, err := h.quizSvc.GenerateQuiz(c.Request.Context(), learnerID, req.TotalQuestions, req.SessionType, req.TargetCategoryIDs)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, quiz)
}

// GET /api/quizzes/:id/questions
// Ordered questions for an existing session, e.g. on resume.
func (h *QuizHandler) GetSessionQuestions(c *gin.Context) {
	learnerID, ok := learnerFromContext(c)
	if !ok {
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusUnprocessableEntity, "invalid_session_id", err)
		return
	}
	questions, err := h.quizSvc.GetSessionQuestions(c.Request.Context(), sessionID, learnerID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"session_id": sessionID, "questions": questions})
}

// POST /api/quizzes/:id/complete
// Settle a finished session: stats, ratings, and priorities in one unit.
func (h *QuizHandler) CompleteSession(c *gin.Context) {
	learnerID, ok := learnerFromContext(c)
	if !ok {
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusUnprocessableEntity, "invalid_session_id", err)
		return
	}
	var req completeSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusUnprocessableEntity, "invalid_request", err)
		return
	}
	result, err := h.settlementSvc.CompleteSession(c.Request.Context(), sessionID, learnerID, req.Attempts)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}

// POST /api/quizzes/:id/abandon
func (h *QuizHandler) AbandonSession(c *gin.Context) {
	learnerID, ok := learnerFromContext(c)
	if !ok {
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusUnprocessableEntity, "invalid_session_id", err)
		return
	}
	if err := h.quizSvc.AbandonSession(c.Request.Context(), sessionID, learnerID); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *QuizHandler) respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		RespondError(c, http.StatusNotFound, "session_not_found", err)
	case errors.Is(err, services.ErrSessionNotActive):
		RespondError(c, http.StatusConflict, "session_not_active", err)
	case errors.Is(err, services.ErrNoCategoriesAvailable):
		RespondError(c, http.StatusUnprocessableEntity, "no_categories_available", err)
	case errors.Is(err, services.ErrNoAttempts):
		RespondError(c, http.StatusUnprocessableEntity, "no_attempts", err)
	case errors.Is(err, services.ErrInvalidQuestionCount):
		RespondError(c, http.StatusUnprocessableEntity, "invalid_question_count", err)
	default:
		h.log.Error("Unhandled service error", "error", err)
		RespondError(c, http.StatusInternalServerError, "internal_error", err)
	}
}
