package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quizdesk/quizdesk-backend/internal/config"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/repository"
	"github.com/quizdesk/quizdesk-backend/internal/response"
)

// Domain errors.
var (
	ErrNotQuizAuthor    = errors.New("not the author of this quiz")
	ErrNoQuestions      = errors.New("quiz has no questions, cannot publish/start")
	ErrQuizNotDraft     = errors.New("quiz status is not DRAFT")
	ErrQuizNotPublished = errors.New("quiz status is not PUBLISHED")
)

// QuizService handles quiz business logic and Redis caching.
type QuizService struct {
	quizRepo     *repository.QuizRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewQuizService creates a new QuizService.
func NewQuizService(
	quizRepo *repository.QuizRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *QuizService {
	return &QuizService{
		quizRepo:     quizRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "quiz_service").Logger(),
	}
}

// GetByID retrieves a quiz by its UUID.
func (s *QuizService) GetByID(ctx context.Context, id uuid.UUID) (*model.Quiz, error) {
	return s.quizRepo.GetByID(ctx, id)
}

// ListPublished retrieves all published quizzes for the student lobby.
func (s *QuizService) ListPublished(ctx context.Context) ([]model.Quiz, error) {
	quizzes, err := s.quizRepo.ListPublished(ctx)
	if err != nil {
		return nil, err
	}
	if quizzes == nil {
		quizzes = []model.Quiz{}
	}
	return quizzes, nil
}

// ListByAuthor retrieves an author's quizzes with pagination.
func (s *QuizService) ListByAuthor(ctx context.Context, authorID, page, perPage int) ([]model.Quiz, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	limit := perPage
	offset := (page - 1) * perPage

	quizzes, total, err := s.quizRepo.ListByAuthorPaginated(ctx, authorID, limit, offset)
	if err != nil {
		return nil, nil, err
	}

	if quizzes == nil {
		quizzes = []model.Quiz{}
	}

	totalPages := (total + perPage - 1) / perPage

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	}

	return quizzes, pagination, nil
}

// Create inserts a new quiz as DRAFT.
func (s *QuizService) Create(ctx context.Context, quiz *model.Quiz) error {
	quiz.Status = model.QuizStatusDraft
	return s.quizRepo.Create(ctx, quiz)
}

// Update modifies an existing draft quiz.
func (s *QuizService) Update(ctx context.Context, authorID int, quiz *model.Quiz) error {
	existing, err := s.quizRepo.GetByID(ctx, quiz.ID)
	if err != nil {
		return err
	}
	if authorID != 0 && existing.AuthorID != authorID {
		return ErrNotQuizAuthor
	}
	if existing.Status != model.QuizStatusDraft {
		return ErrQuizNotDraft
	}
	return s.quizRepo.Update(ctx, quiz)
}

// Delete removes a draft quiz.
func (s *QuizService) Delete(ctx context.Context, id uuid.UUID, authorID int) error {
	existing, err := s.quizRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if authorID != 0 && existing.AuthorID != authorID {
		return ErrNotQuizAuthor
	}
	if existing.Status != model.QuizStatusDraft {
		return ErrQuizNotDraft
	}
	return s.quizRepo.Delete(ctx, id)
}

// ReplaceQuestions swaps a draft quiz's question set wholesale.
func (s *QuizService) ReplaceQuestions(ctx context.Context, quizID uuid.UUID, authorID int, questions []model.Question) error {
	existing, err := s.quizRepo.GetByID(ctx, quizID)
	if err != nil {
		return err
	}
	if authorID != 0 && existing.AuthorID != authorID {
		return ErrNotQuizAuthor
	}
	if existing.Status != model.QuizStatusDraft {
		return ErrQuizNotDraft
	}
	return s.questionRepo.ReplaceAll(ctx, quizID, questions)
}

// Publish changes quiz status to PUBLISHED and caches the payload plus
// grading key in Redis. This populates the path students actually hit.
func (s *QuizService) Publish(ctx context.Context, quizID uuid.UUID, authorID int) error {
	quiz, err := s.quizRepo.GetByID(ctx, quizID)
	if err != nil {
		return fmt.Errorf("get quiz: %w", err)
	}

	if quiz.AuthorID != authorID {
		return ErrNotQuizAuthor
	}
	if quiz.Status != model.QuizStatusDraft {
		return fmt.Errorf("quiz status is %s, expected DRAFT", quiz.Status)
	}

	if err := s.WarmQuizCache(ctx, quiz); err != nil {
		return err
	}

	if err := s.quizRepo.UpdateStatus(ctx, quizID, model.QuizStatusPublished); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	s.log.Info().Str("quiz_id", quizID.String()).Msg("Quiz published")
	return nil
}

// Archive moves a published quiz out of the student lobby.
func (s *QuizService) Archive(ctx context.Context, quizID uuid.UUID, authorID int) error {
	quiz, err := s.quizRepo.GetByID(ctx, quizID)
	if err != nil {
		return fmt.Errorf("get quiz: %w", err)
	}
	if quiz.AuthorID != authorID {
		return ErrNotQuizAuthor
	}
	if quiz.Status != model.QuizStatusPublished {
		return ErrQuizNotPublished
	}
	return s.quizRepo.UpdateStatus(ctx, quizID, model.QuizStatusArchived)
}

// RefreshCache re-caches the payload and grading key for a published quiz.
func (s *QuizService) RefreshCache(ctx context.Context, quizID uuid.UUID, authorID int) error {
	quiz, err := s.quizRepo.GetByID(ctx, quizID)
	if err != nil {
		return fmt.Errorf("get quiz: %w", err)
	}

	if authorID != 0 && quiz.AuthorID != authorID {
		return ErrNotQuizAuthor
	}
	if quiz.Status != model.QuizStatusPublished {
		return ErrQuizNotPublished
	}

	if err := s.WarmQuizCache(ctx, quiz); err != nil {
		return err
	}

	s.log.Info().Str("quiz_id", quizID.String()).Msg("Cache refreshed")
	return nil
}

// WarmQuizCache loads a quiz's payload, time limit and grading key from
// PostgreSQL into Redis. Core cache-warming logic used by Publish,
// RefreshCache, and PrewarmAllCaches.
func (s *QuizService) WarmQuizCache(ctx context.Context, quiz *model.Quiz) error {
	questions, err := s.questionRepo.ListByQuiz(ctx, quiz.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	// Student-facing payload, without correct answers.
	studentQuestions := make([]model.QuestionForStudent, len(questions))
	gradingKey := make([]model.QuestionKey, len(questions))
	for i, q := range questions {
		studentQuestions[i] = model.QuestionForStudent{
			ID:       q.ID,
			Text:     q.Text,
			Kind:     q.Kind,
			Options:  q.Options,
			OrderNum: q.OrderNum,
		}
		gradingKey[i] = q.Key()
	}

	payload := model.QuizPayload{
		QuizID:           quiz.ID,
		Title:            quiz.Title,
		TimeLimitSeconds: quiz.TimeLimitSeconds,
		ShuffleQuestions: quiz.ShuffleQuestions,
		Questions:        studentQuestions,
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	keyJSON, err := json.Marshal(gradingKey)
	if err != nil {
		return fmt.Errorf("marshal grading key: %w", err)
	}

	quizID := quiz.ID.String()

	// Cache everything atomically via pipeline.
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.QuizPayloadKey(quizID), payloadJSON, 0)
	pipe.Set(ctx, config.CacheKey.QuizTimeLimitKey(quizID), quiz.TimeLimitSeconds, 0)
	pipe.Set(ctx, config.CacheKey.QuizAnswerKey(quizID), keyJSON, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("quiz_id", quizID).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads all published quizzes into Redis on application
// startup, so the first student of the day never lazy-loads.
func (s *QuizService) PrewarmAllCaches(ctx context.Context) error {
	quizzes, err := s.quizRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published quizzes: %w", err)
	}

	if len(quizzes) == 0 {
		s.log.Info().Msg("No published quizzes to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(quizzes)).Msg("Prewarming published quizzes...")

	warmed := 0
	for i := range quizzes {
		if err := s.WarmQuizCache(ctx, &quizzes[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("quiz_id", quizzes[i].ID.String()).
				Msg("Failed to warm quiz, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(quizzes)).
		Msg("Prewarming complete")
	return nil
}

// GetQuizPayload retrieves the cached student payload from Redis.
func (s *QuizService) GetQuizPayload(ctx context.Context, quizID uuid.UUID) (*model.QuizPayload, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.QuizPayloadKey(quizID.String())).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.New("quiz not published or payload not cached")
		}
		return nil, fmt.Errorf("get payload: %w", err)
	}

	var payload model.QuizPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &payload, nil
}

// GetTimeLimit retrieves a quiz's cached time limit, falling back to
// PostgreSQL and re-caching on a miss.
func (s *QuizService) GetTimeLimit(ctx context.Context, quizID uuid.UUID) (int, error) {
	val, err := s.rdb.Get(ctx, config.CacheKey.QuizTimeLimitKey(quizID.String())).Result()
	if err == nil {
		limit, convErr := strconv.Atoi(val)
		if convErr == nil {
			return limit, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("get time limit: %w", err)
	}

	quiz, err := s.quizRepo.GetByID(ctx, quizID)
	if err != nil {
		return 0, fmt.Errorf("get quiz: %w", err)
	}

	if err := s.rdb.Set(ctx, config.CacheKey.QuizTimeLimitKey(quizID.String()), quiz.TimeLimitSeconds, 0).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to re-cache time limit")
	}

	return quiz.TimeLimitSeconds, nil
}

// GetGradingKey retrieves the grading key from Redis, rebuilding it from
// PostgreSQL on a cache miss.
func (s *QuizService) GetGradingKey(ctx context.Context, quizID uuid.UUID) ([]model.QuestionKey, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.QuizAnswerKey(quizID.String())).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("get grading key: %w", err)
		}
		return s.gradingKeyFromStore(ctx, quizID)
	}

	var key []model.QuestionKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("unmarshal grading key: %w", err)
	}
	return key, nil
}

func (s *QuizService) gradingKeyFromStore(ctx context.Context, quizID uuid.UUID) ([]model.QuestionKey, error) {
	questions, err := s.questionRepo.ListByQuiz(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	key := make([]model.QuestionKey, len(questions))
	for i := range questions {
		key[i] = questions[i].Key()
	}

	keyJSON, err := json.Marshal(key)
	if err != nil {
		return nil, fmt.Errorf("marshal grading key: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.QuizAnswerKey(quizID.String()), keyJSON, 0).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to re-cache grading key")
	}

	return key, nil
}
