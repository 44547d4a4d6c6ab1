package service

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizdesk/quizdesk-backend/internal/model"
)

type sessionKey struct {
	quizID    uuid.UUID
	studentID int
}

type memStore struct {
	sessions  map[sessionKey]*model.QuizSession
	results   []*model.QuizResult
	putCalls  int
	failPut   error
	failFinal error
}

func newMemStore() *memStore {
	return &memStore{sessions: map[sessionKey]*model.QuizSession{}}
}

func (m *memStore) Get(_ context.Context, quizID uuid.UUID, studentID int) (*model.QuizSession, error) {
	s, ok := m.sessions[sessionKey{quizID, studentID}]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) Put(_ context.Context, s *model.QuizSession) error {
	if m.failPut != nil {
		return m.failPut
	}
	m.putCalls++
	cp := *s
	cp.SubmittedAt = nil
	m.sessions[sessionKey{s.QuizID, s.StudentID}] = &cp
	return nil
}

func (m *memStore) SaveSnapshot(_ context.Context, snap *model.SessionSnapshot) error {
	quizID, err := uuid.Parse(snap.QuizID)
	if err != nil {
		return err
	}
	s, ok := m.sessions[sessionKey{quizID, snap.StudentID}]
	if !ok || s.SubmittedAt != nil {
		return nil
	}
	s.Answers = snap.Answers
	s.CurrentIndex = snap.CurrentIndex
	s.LastSavedAt = snap.SavedAt
	return nil
}

func (m *memStore) SaveOrder(_ context.Context, quizID uuid.UUID, studentID int, order []uuid.UUID) error {
	s, ok := m.sessions[sessionKey{quizID, studentID}]
	if !ok {
		return pgx.ErrNoRows
	}
	s.Order = order
	return nil
}

func (m *memStore) FinalizeAttempt(_ context.Context, result *model.QuizResult) (bool, error) {
	if m.failFinal != nil {
		return false, m.failFinal
	}
	s, ok := m.sessions[sessionKey{result.QuizID, result.StudentID}]
	if !ok || s.SubmittedAt != nil {
		return false, nil
	}
	at := result.TakenAt
	s.SubmittedAt = &at
	m.results = append(m.results, result)
	return true, nil
}

func (m *memStore) AppendResult(_ context.Context, result *model.QuizResult) error {
	m.results = append(m.results, result)
	return nil
}

type memCache struct {
	starts    map[string]time.Time
	deadlines map[string]time.Time
	answers   map[string]map[string]model.Answer
	indexes   map[string]int
	failStart error
}

func newMemCache() *memCache {
	return &memCache{
		starts:    map[string]time.Time{},
		deadlines: map[string]time.Time{},
		answers:   map[string]map[string]model.Answer{},
		indexes:   map[string]int{},
	}
}

func cacheKey(quizID string, studentID int) string {
	return quizID + ":" + strconv.Itoa(studentID)
}

func (m *memCache) SetStart(_ context.Context, quizID string, studentID int, startedAt, deadline time.Time) error {
	k := cacheKey(quizID, studentID)
	m.starts[k] = startedAt
	if !deadline.IsZero() {
		m.deadlines[k] = deadline
	}
	return nil
}

func (m *memCache) Start(_ context.Context, quizID string, studentID int) (time.Time, bool, error) {
	if m.failStart != nil {
		return time.Time{}, false, m.failStart
	}
	t, ok := m.starts[cacheKey(quizID, studentID)]
	return t, ok, nil
}

func (m *memCache) SaveSnapshot(_ context.Context, snap model.SessionSnapshot) error {
	k := cacheKey(snap.QuizID, snap.StudentID)
	m.answers[k] = snap.Answers
	m.indexes[k] = snap.CurrentIndex
	return nil
}

func (m *memCache) Snapshot(_ context.Context, quizID string, studentID int) (map[string]model.Answer, int, error) {
	k := cacheKey(quizID, studentID)
	return m.answers[k], m.indexes[k], nil
}

func (m *memCache) Clear(_ context.Context, quizID string, studentID int) error {
	k := cacheKey(quizID, studentID)
	delete(m.starts, k)
	delete(m.deadlines, k)
	delete(m.answers, k)
	delete(m.indexes, k)
	return nil
}

type memQueue struct {
	snapshots []model.SessionSnapshot
	practice  []*model.QuizResult
	events    []model.ProctorEvent
}

func (m *memQueue) EnqueueSnapshot(_ context.Context, snap model.SessionSnapshot) error {
	m.snapshots = append(m.snapshots, snap)
	return nil
}

func (m *memQueue) EnqueuePractice(_ context.Context, result *model.QuizResult) error {
	m.practice = append(m.practice, result)
	return nil
}

func (m *memQueue) EnqueueProctorEvent(_ context.Context, ev model.ProctorEvent) error {
	m.events = append(m.events, ev)
	return nil
}

type sessionFixture struct {
	svc   *QuizSessionService
	store *memStore
	cache *memCache
	queue *memQueue
	clock *fakeNow
}

type fakeNow struct {
	t time.Time
}

func (f *fakeNow) Now() time.Time { return f.t }

func (f *fakeNow) Advance(d time.Duration) { f.t = f.t.Add(d) }

func newSessionFixture() *sessionFixture {
	store := newMemStore()
	cache := newMemCache()
	queue := &memQueue{}
	clock := &fakeNow{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}

	svc := NewQuizSessionService(store, cache, queue, zerolog.Nop())
	svc.now = clock.Now

	return &sessionFixture{svc: svc, store: store, cache: cache, queue: queue, clock: clock}
}

func timedQuiz(limit int) (*model.Quiz, []uuid.UUID) {
	quiz := &model.Quiz{
		ID:               uuid.New(),
		Title:            "Networks midterm",
		TimeLimitSeconds: limit,
		Status:           model.QuizStatusPublished,
	}
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	quiz.QuestionCount = len(ids)
	return quiz, ids
}

func TestStartOrResume_CreatesFreshAttempt(t *testing.T) {
	f := newSessionFixture()
	quiz, ids := timedQuiz(600)

	sess, err := f.svc.StartOrResume(context.Background(), quiz, 7, ids)
	require.NoError(t, err)

	assert.Equal(t, f.clock.t, sess.StartedAt)
	assert.Len(t, sess.Order, 3)
	assert.Empty(t, sess.Answers)
	assert.Equal(t, 0, sess.CurrentIndex)
	assert.Equal(t, 1, f.store.putCalls)

	start, ok, err := f.cache.Start(context.Background(), quiz.ID.String(), 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, f.clock.t, start)
}

func TestStartOrResume_ResumesLiveAttempt(t *testing.T) {
	f := newSessionFixture()
	quiz, ids := timedQuiz(600)

	first, err := f.svc.StartOrResume(context.Background(), quiz, 7, ids)
	require.NoError(t, err)

	// The student answers and navigates, then reloads two minutes in.
	snap := model.SessionSnapshot{
		QuizID:    quiz.ID.String(),
		StudentID: 7,
		Answers: map[string]model.Answer{
			ids[0].String(): model.SingleAnswer("B"),
		},
		CurrentIndex: 1,
	}
	require.NoError(t, f.svc.SaveSnapshot(context.Background(), snap))
	require.NoError(t, f.store.SaveSnapshot(context.Background(), &snap))
	f.clock.Advance(2 * time.Minute)

	resumed, err := f.svc.StartOrResume(context.Background(), quiz, 7, ids)
	require.NoError(t, err)

	assert.Equal(t, first.StartedAt, resumed.StartedAt, "resume must not reset the clock")
	assert.Equal(t, 1, resumed.CurrentIndex)
	assert.Len(t, resumed.Answers, 1)
	assert.Equal(t, 1, f.store.putCalls, "resume must not rewrite the session")
}

func TestStartOrResume_TerminalSessionStartsOver(t *testing.T) {
	f := newSessionFixture()
	quiz, ids := timedQuiz(600)

	first, err := f.svc.StartOrResume(context.Background(), quiz, 7, ids)
	require.NoError(t, err)

	_, err = f.svc.Finalize(context.Background(), quiz, nil, 7, map[string]model.Answer{})
	require.NoError(t, err)

	second, err := f.svc.StartOrResume(context.Background(), quiz, 7, ids)
	require.NoError(t, err)

	assert.True(t, second.StartedAt.After(first.StartedAt),
		"restart must begin strictly after the finished attempt, even on a frozen clock")
	assert.Empty(t, second.Answers)
	assert.Nil(t, second.SubmittedAt)
}

func TestStartOrResume_RepairsStaleOrder(t *testing.T) {
	f := newSessionFixture()
	quiz, ids := timedQuiz(600)

	_, err := f.svc.StartOrResume(context.Background(), quiz, 7, ids)
	require.NoError(t, err)

	// The quiz grew by two questions mid-attempt.
	grown := append(append([]uuid.UUID{}, ids...), uuid.New(), uuid.New())
	resumed, err := f.svc.StartOrResume(context.Background(), quiz, 7, grown)
	require.NoError(t, err)

	assert.Len(t, resumed.Order, 5)
	assert.ElementsMatch(t, grown, resumed.Order)

	stored, err := f.store.Get(context.Background(), quiz.ID, 7)
	require.NoError(t, err)
	assert.Len(t, stored.Order, 5, "repaired order must be persisted")
}

func TestStartOrResume_UntimedQuizIsEphemeral(t *testing.T) {
	f := newSessionFixture()
	quiz, ids := timedQuiz(0)

	sess, err := f.svc.StartOrResume(context.Background(), quiz, 7, ids)
	require.NoError(t, err)

	assert.Len(t, sess.Order, 3)
	assert.Equal(t, 0, f.store.putCalls, "untimed attempts never touch the store")
	_, ok, err := f.cache.Start(context.Background(), quiz.ID.String(), 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemainingSeconds_DerivedAndClamped(t *testing.T) {
	f := newSessionFixture()
	quiz, _ := timedQuiz(600)
	startedAt := f.clock.t

	assert.Equal(t, 600, f.svc.RemainingSeconds(quiz, startedAt))

	f.clock.Advance(4 * time.Minute)
	assert.Equal(t, 360, f.svc.RemainingSeconds(quiz, startedAt))

	f.clock.Advance(20 * time.Minute)
	assert.Equal(t, 0, f.svc.RemainingSeconds(quiz, startedAt), "expired attempts clamp to zero")
}

func TestState_CacheMissFallsBackToStore(t *testing.T) {
	f := newSessionFixture()
	quiz, ids := timedQuiz(600)

	sess, err := f.svc.StartOrResume(context.Background(), quiz, 7, ids)
	require.NoError(t, err)

	snap := &model.SessionSnapshot{
		QuizID:    quiz.ID.String(),
		StudentID: 7,
		Answers: map[string]model.Answer{
			ids[0].String(): model.SingleAnswer("C"),
		},
		CurrentIndex: 2,
		SavedAt:      f.clock.t,
	}
	require.NoError(t, f.store.SaveSnapshot(context.Background(), snap))

	// Simulate a full Redis eviction.
	require.NoError(t, f.cache.Clear(context.Background(), quiz.ID.String(), 7))
	f.clock.Advance(90 * time.Second)

	state, err := f.svc.State(context.Background(), quiz, 7)
	require.NoError(t, err)

	assert.Equal(t, sess.StartedAt, state.StartedAt)
	assert.Equal(t, 510, state.RemainingSeconds)
	assert.Equal(t, 2, state.CurrentIndex)
	assert.Len(t, state.Answers, 1)

	// The fallback must self-heal the cache.
	start, ok, err := f.cache.Start(context.Background(), quiz.ID.String(), 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, sess.StartedAt, start)
}

func TestState_OutOfRangeIndexIsReset(t *testing.T) {
	f := newSessionFixture()
	quiz, ids := timedQuiz(600)

	_, err := f.svc.StartOrResume(context.Background(), quiz, 7, ids)
	require.NoError(t, err)

	// A snapshot from before the quiz shrank can point past the paper.
	snap := model.SessionSnapshot{
		QuizID:       quiz.ID.String(),
		StudentID:    7,
		Answers:      map[string]model.Answer{ids[0].String(): model.SingleAnswer("A")},
		CurrentIndex: 999,
	}
	require.NoError(t, f.svc.SaveSnapshot(context.Background(), snap))

	state, err := f.svc.State(context.Background(), quiz, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, state.CurrentIndex, "position must stay inside the paper")
	assert.Len(t, state.Answers, 1, "answers survive the position reset")
}

func TestSaveSnapshot_WritesCacheAndQueues(t *testing.T) {
	f := newSessionFixture()
	quiz, ids := timedQuiz(600)

	_, err := f.svc.StartOrResume(context.Background(), quiz, 7, ids)
	require.NoError(t, err)

	snap := model.SessionSnapshot{
		QuizID:    quiz.ID.String(),
		StudentID: 7,
		Answers: map[string]model.Answer{
			ids[1].String(): model.MultiAnswer("A", "C"),
		},
		CurrentIndex: 1,
	}
	require.NoError(t, f.svc.SaveSnapshot(context.Background(), snap))

	answers, index, err := f.cache.Snapshot(context.Background(), quiz.ID.String(), 7)
	require.NoError(t, err)
	assert.Len(t, answers, 1)
	assert.Equal(t, 1, index)

	require.Len(t, f.queue.snapshots, 1)
	assert.Equal(t, f.clock.t, f.queue.snapshots[0].SavedAt, "service stamps the save time")
}

func TestSaveSnapshot_ClearedAnswersDoNotResurrect(t *testing.T) {
	f := newSessionFixture()
	quiz, ids := timedQuiz(600)

	_, err := f.svc.StartOrResume(context.Background(), quiz, 7, ids)
	require.NoError(t, err)

	first := model.SessionSnapshot{
		QuizID:    quiz.ID.String(),
		StudentID: 7,
		Answers: map[string]model.Answer{
			ids[0].String(): model.SingleAnswer("B"),
			ids[1].String(): model.SingleAnswer("D"),
		},
		CurrentIndex: 1,
	}
	require.NoError(t, f.svc.SaveSnapshot(context.Background(), first))

	// The student clears the second answer; the next flush carries only
	// the first. Each snapshot replaces the previous one wholesale.
	second := model.SessionSnapshot{
		QuizID:    quiz.ID.String(),
		StudentID: 7,
		Answers: map[string]model.Answer{
			ids[0].String(): model.SingleAnswer("B"),
		},
		CurrentIndex: 0,
	}
	require.NoError(t, f.svc.SaveSnapshot(context.Background(), second))

	state, err := f.svc.State(context.Background(), quiz, 7)
	require.NoError(t, err)
	assert.Len(t, state.Answers, 1)
	assert.NotContains(t, state.Answers, ids[1].String(), "cleared answers must not reload")

	// The sweeper grades from the same snapshot: the cleared answer must
	// not come back at auto-submit either.
	key := []model.QuestionKey{
		{ID: ids[0], Text: "Q1", Kind: model.QuestionKindSingle, CorrectAnswers: []string{"B"}},
		{ID: ids[1], Text: "Q2", Kind: model.QuestionKindSingle, CorrectAnswers: []string{"D"}},
	}
	result, err := f.svc.Finalize(context.Background(), quiz, key, 7, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Score, "only the surviving answer is graded")
}

func TestFinalize_GradesOnceAndClearsCache(t *testing.T) {
	f := newSessionFixture()
	quiz, ids := timedQuiz(600)

	_, err := f.svc.StartOrResume(context.Background(), quiz, 7, ids)
	require.NoError(t, err)

	key := []model.QuestionKey{
		{ID: ids[0], Text: "Q1", Kind: model.QuestionKindSingle, CorrectAnswers: []string{"B"}},
		{ID: ids[1], Text: "Q2", Kind: model.QuestionKindMulti, CorrectAnswers: []string{"A", "C"}},
	}
	answers := map[string]model.Answer{
		ids[0].String(): model.SingleAnswer("B"),
		ids[1].String(): model.MultiAnswer("C", "A"),
	}

	result, err := f.svc.Finalize(context.Background(), quiz, key, 7, answers)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Score)
	assert.Equal(t, 2, result.Total)
	assert.False(t, result.IsPractice)
	require.Len(t, f.store.results, 1)

	_, ok, err := f.cache.Start(context.Background(), quiz.ID.String(), 7)
	require.NoError(t, err)
	assert.False(t, ok, "finalize must clear the attempt cache")
}

func TestFinalize_SecondCallIsRejected(t *testing.T) {
	f := newSessionFixture()
	quiz, ids := timedQuiz(600)

	_, err := f.svc.StartOrResume(context.Background(), quiz, 7, ids)
	require.NoError(t, err)

	_, err = f.svc.Finalize(context.Background(), quiz, nil, 7, map[string]model.Answer{})
	require.NoError(t, err)

	// A racing tab or a duplicate sweeper trigger.
	_, err = f.svc.Finalize(context.Background(), quiz, nil, 7, map[string]model.Answer{})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Len(t, f.store.results, 1, "only one result row per attempt")
}

func TestFinalize_UntimedAttemptAppendsResult(t *testing.T) {
	f := newSessionFixture()
	quiz, ids := timedQuiz(0)

	_, err := f.svc.StartOrResume(context.Background(), quiz, 7, ids)
	require.NoError(t, err)
	assert.Zero(t, f.store.putCalls, "untimed attempts must not create a session slot")

	key := []model.QuestionKey{
		{ID: ids[0], Text: "Q1", Kind: model.QuestionKindSingle, CorrectAnswers: []string{"B"}},
	}
	answers := map[string]model.Answer{
		ids[0].String(): model.SingleAnswer("B"),
	}

	// The first submit must succeed even though no session row exists.
	result, err := f.svc.Finalize(context.Background(), quiz, key, 7, answers)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Score)
	assert.False(t, result.IsPractice)
	require.Len(t, f.store.results, 1, "untimed submissions append to the result history")
}

func TestFinalize_NilAnswersUseLatestAutosave(t *testing.T) {
	f := newSessionFixture()
	quiz, ids := timedQuiz(600)

	_, err := f.svc.StartOrResume(context.Background(), quiz, 7, ids)
	require.NoError(t, err)

	snap := model.SessionSnapshot{
		QuizID:    quiz.ID.String(),
		StudentID: 7,
		Answers: map[string]model.Answer{
			ids[0].String(): model.SingleAnswer("B"),
		},
		CurrentIndex: 0,
	}
	require.NoError(t, f.svc.SaveSnapshot(context.Background(), snap))

	key := []model.QuestionKey{
		{ID: ids[0], Text: "Q1", Kind: model.QuestionKindSingle, CorrectAnswers: []string{"B"}},
	}

	// The auto-submit sweeper has no in-memory answers.
	result, err := f.svc.Finalize(context.Background(), quiz, key, 7, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Score)
}

func TestPracticeGrade_NeverTouchesSessionSlot(t *testing.T) {
	f := newSessionFixture()
	quiz, ids := timedQuiz(600)

	live, err := f.svc.StartOrResume(context.Background(), quiz, 7, ids)
	require.NoError(t, err)

	key := []model.QuestionKey{
		{ID: ids[0], Text: "Q1", Kind: model.QuestionKindSingle, CorrectAnswers: []string{"A"}},
	}
	result := f.svc.PracticeGrade(context.Background(), quiz, key, 7, map[string]model.Answer{
		ids[0].String(): model.SingleAnswer("A"),
	})

	assert.True(t, result.IsPractice)
	assert.Equal(t, 1, result.Score)
	require.Len(t, f.queue.practice, 1)

	stored, err := f.store.Get(context.Background(), quiz.ID, 7)
	require.NoError(t, err)
	assert.Nil(t, stored.SubmittedAt, "practice grading must not finalize the real attempt")
	assert.Equal(t, live.StartedAt, stored.StartedAt)
}
