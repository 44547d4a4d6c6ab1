package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/quizdesk/quizdesk-backend/internal/middleware"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/repository"
	"github.com/quizdesk/quizdesk-backend/internal/response"
	"github.com/quizdesk/quizdesk-backend/internal/service"
	"github.com/quizdesk/quizdesk-backend/internal/validator"
)

// StudentQuizHandler handles the student-facing quiz endpoints: lobby,
// attempt lifecycle and results.
type StudentQuizHandler struct {
	quizService    *service.QuizService
	sessionService *service.QuizSessionService
	sessionRepo    *repository.QuizSessionRepository
	resultRepo     *repository.QuizResultRepository
}

// NewStudentQuizHandler creates a new StudentQuizHandler.
func NewStudentQuizHandler(
	quizService *service.QuizService,
	sessionService *service.QuizSessionService,
	sessionRepo *repository.QuizSessionRepository,
	resultRepo *repository.QuizResultRepository,
) *StudentQuizHandler {
	return &StudentQuizHandler{
		quizService:    quizService,
		sessionService: sessionService,
		sessionRepo:    sessionRepo,
		resultRepo:     resultRepo,
	}
}

// Lobby godoc
// GET /api/v1/student/quizzes
// Lists published quizzes with the student's attempt status overlaid,
// so the client can label each card "start", "continue" or "done".
func (h *StudentQuizHandler) Lobby(c *gin.Context) {
	claims := middleware.GetClaims(c)

	quizzes, err := h.quizService.ListPublished(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	overviews, err := h.sessionRepo.ListByStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	byQuiz := make(map[uuid.UUID]repository.SessionOverview, len(overviews))
	for _, o := range overviews {
		byQuiz[o.QuizID] = o
	}

	type lobbyEntry struct {
		Quiz    model.Quiz                  `json:"quiz"`
		Attempt *repository.SessionOverview `json:"attempt,omitempty"`
	}

	entries := make([]lobbyEntry, len(quizzes))
	for i, q := range quizzes {
		entries[i] = lobbyEntry{Quiz: q}
		if o, ok := byQuiz[q.ID]; ok {
			entries[i].Attempt = &o
		}
	}

	response.Success(c, http.StatusOK, gin.H{"quizzes": entries})
}

// Start godoc
// POST /api/v1/student/quizzes/:quiz_id/start
// Starts a new attempt or resumes the live one, returning the session,
// the remaining time and the question paper.
func (h *StudentQuizHandler) Start(c *gin.Context) {
	claims := middleware.GetClaims(c)

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	payload, err := h.quizService.GetQuizPayload(c.Request.Context(), quizID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrQuizNotAvailable)
		return
	}

	quiz, err := h.quizService.GetByID(c.Request.Context(), quizID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if quiz.Status != model.QuizStatusPublished {
		response.Fail(c, http.StatusConflict, response.ErrQuizNotPublished)
		return
	}

	sess, err := h.sessionService.StartOrResume(c.Request.Context(), quiz, claims.UserID, payload.QuestionIDs())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	remaining := 0
	if quiz.Timed() {
		remaining = h.sessionService.RemainingSeconds(quiz, sess.StartedAt)
		if remaining == 0 {
			response.Fail(c, http.StatusConflict, response.ErrAttemptExpired)
			return
		}
	}

	response.Success(c, http.StatusOK, gin.H{
		"session":           sess,
		"remaining_seconds": remaining,
		"paper":             payload,
	})
}

// State godoc
// GET /api/v1/student/quizzes/:quiz_id/state
// The reload path: latest autosaved answers, position and remaining time.
func (h *StudentQuizHandler) State(c *gin.Context) {
	claims := middleware.GetClaims(c)

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	quiz, err := h.quizService.GetByID(c.Request.Context(), quizID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	state, err := h.sessionService.State(c.Request.Context(), quiz, claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNoActiveAttempt)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"state": state})
}

// Submit godoc
// POST /api/v1/student/quizzes/:quiz_id/submit
// Finalizes an attempt. Timed attempts may send an empty body and are
// graded from the latest autosaved answers; untimed attempts carry
// their answers in the body, as they have no session slot to read from.
func (h *StudentQuizHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SubmitRequest
	if c.Request.ContentLength > 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	quiz, err := h.quizService.GetByID(c.Request.Context(), quizID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	key, err := h.quizService.GetGradingKey(c.Request.Context(), quizID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	result, err := h.sessionService.Finalize(c.Request.Context(), quiz, key, claims.UserID, req.Answers)
	if err != nil {
		if errors.Is(err, service.ErrAlreadySubmitted) {
			response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
			return
		}
		if errors.Is(err, pgx.ErrNoRows) {
			response.Fail(c, http.StatusNotFound, response.ErrNoActiveAttempt)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// PracticeGrade godoc
// POST /api/v1/student/quizzes/:quiz_id/practice-grade
// Grades a practice run in place. Never touches the real attempt slot.
func (h *StudentQuizHandler) PracticeGrade(c *gin.Context) {
	claims := middleware.GetClaims(c)

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.PracticeGradeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	quiz, err := h.quizService.GetByID(c.Request.Context(), quizID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	key, err := h.quizService.GetGradingKey(c.Request.Context(), quizID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	result := h.sessionService.PracticeGrade(c.Request.Context(), quiz, key, claims.UserID, req.Answers)

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// MyResults godoc
// GET /api/v1/student/results
// Returns the student's attempt history, practice runs included.
func (h *StudentQuizHandler) MyResults(c *gin.Context) {
	claims := middleware.GetClaims(c)

	results, err := h.resultRepo.ListByStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"results": results})
}
