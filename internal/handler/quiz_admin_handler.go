package handler

import (
	"errors"
	"net/http"
	"strconv"

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

// QuizAdminHandler handles quiz authoring endpoints.
type QuizAdminHandler struct {
	quizService  *service.QuizService
	questionRepo *repository.QuestionRepository
	resultRepo   *repository.QuizResultRepository
}

// NewQuizAdminHandler creates a new QuizAdminHandler.
func NewQuizAdminHandler(
	quizService *service.QuizService,
	questionRepo *repository.QuestionRepository,
	resultRepo *repository.QuizResultRepository,
) *QuizAdminHandler {
	return &QuizAdminHandler{
		quizService:  quizService,
		questionRepo: questionRepo,
		resultRepo:   resultRepo,
	}
}

// List godoc
// GET /api/v1/admin/quizzes?page=1&per_page=10
func (h *QuizAdminHandler) List(c *gin.Context) {
	claims := middleware.GetClaims(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	quizzes, pagination, err := h.quizService.ListByAuthor(c.Request.Context(), claims.UserID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"quizzes": quizzes}, pagination)
}

// Get godoc
// GET /api/v1/admin/quizzes/:quiz_id
// Returns the quiz with its full question set, correct answers included.
func (h *QuizAdminHandler) Get(c *gin.Context) {
	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	quiz, err := h.quizService.GetByID(c.Request.Context(), quizID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	questions, err := h.questionRepo.ListByQuiz(c.Request.Context(), quizID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"quiz":      quiz,
		"questions": questions,
	})
}

// Create godoc
// POST /api/v1/admin/quizzes
func (h *QuizAdminHandler) Create(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.CreateQuizRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	quiz := &model.Quiz{
		Title:            req.Title,
		AuthorID:         claims.UserID,
		TimeLimitSeconds: req.TimeLimitSeconds,
		ShuffleQuestions: req.ShuffleQuestions,
	}

	if err := h.quizService.Create(c.Request.Context(), quiz); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"quiz": quiz})
}

// Update godoc
// PUT /api/v1/admin/quizzes/:quiz_id
func (h *QuizAdminHandler) Update(c *gin.Context) {
	claims := middleware.GetClaims(c)

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.UpdateQuizRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	quiz, err := h.quizService.GetByID(c.Request.Context(), quizID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if req.Title != "" {
		quiz.Title = req.Title
	}
	if req.TimeLimitSeconds != nil {
		quiz.TimeLimitSeconds = *req.TimeLimitSeconds
	}
	if req.ShuffleQuestions != nil {
		quiz.ShuffleQuestions = *req.ShuffleQuestions
	}

	if err := h.quizService.Update(c.Request.Context(), claims.UserID, quiz); err != nil {
		failQuizDomain(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"quiz": quiz})
}

// Delete godoc
// DELETE /api/v1/admin/quizzes/:quiz_id
func (h *QuizAdminHandler) Delete(c *gin.Context) {
	claims := middleware.GetClaims(c)

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.quizService.Delete(c.Request.Context(), quizID, claims.UserID); err != nil {
		failQuizDomain(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// ReplaceQuestions godoc
// PUT /api/v1/admin/quizzes/:quiz_id/questions
// Replaces the entire question set of a draft quiz.
func (h *QuizAdminHandler) ReplaceQuestions(c *gin.Context) {
	claims := middleware.GetClaims(c)

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.ReplaceQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questions := make([]model.Question, len(req.Questions))
	for i, q := range req.Questions {
		questions[i] = model.Question{
			QuizID:         quizID,
			Text:           q.Text,
			Kind:           model.QuestionKind(q.Kind),
			Options:        q.Options,
			CorrectAnswers: q.CorrectAnswers,
			OrderNum:       q.OrderNum,
		}
	}

	if err := h.quizService.ReplaceQuestions(c.Request.Context(), quizID, claims.UserID, questions); err != nil {
		failQuizDomain(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"count": len(questions)})
}

// Publish godoc
// POST /api/v1/admin/quizzes/:quiz_id/publish
func (h *QuizAdminHandler) Publish(c *gin.Context) {
	claims := middleware.GetClaims(c)

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.quizService.Publish(c.Request.Context(), quizID, claims.UserID); err != nil {
		failQuizDomain(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": string(model.QuizStatusPublished)})
}

// Archive godoc
// POST /api/v1/admin/quizzes/:quiz_id/archive
func (h *QuizAdminHandler) Archive(c *gin.Context) {
	claims := middleware.GetClaims(c)

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.quizService.Archive(c.Request.Context(), quizID, claims.UserID); err != nil {
		failQuizDomain(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": string(model.QuizStatusArchived)})
}

// RefreshCache godoc
// POST /api/v1/admin/quizzes/:quiz_id/refresh-cache
func (h *QuizAdminHandler) RefreshCache(c *gin.Context) {
	claims := middleware.GetClaims(c)

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.quizService.RefreshCache(c.Request.Context(), quizID, claims.UserID); err != nil {
		failQuizDomain(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// Results godoc
// GET /api/v1/admin/quizzes/:quiz_id/results?page=1&per_page=20
// Returns real (non-practice) results for a quiz.
func (h *QuizAdminHandler) Results(c *gin.Context) {
	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	results, total, err := h.resultRepo.ListByQuiz(c.Request.Context(), quizID, perPage, (page-1)*perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results}, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	})
}

// failQuizDomain maps quiz domain errors to API error codes.
func failQuizDomain(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotQuizAuthor):
		response.Fail(c, http.StatusForbidden, response.ErrNotQuizAuthor)
	case errors.Is(err, service.ErrQuizNotDraft):
		response.Fail(c, http.StatusConflict, response.ErrQuizNotDraft)
	case errors.Is(err, service.ErrQuizNotPublished):
		response.Fail(c, http.StatusConflict, response.ErrQuizNotPublished)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoQuestions)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
