package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/quizdesk/quizdesk-backend/internal/autosave"
	"github.com/quizdesk/quizdesk-backend/internal/middleware"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/proctor"
	"github.com/quizdesk/quizdesk-backend/internal/service"
	ws "github.com/quizdesk/quizdesk-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler runs the live attempt channel. One connection per attempt:
// answers and navigation flow in and are debounced into autosaves,
// focus events drive the guard, and submit grades in place.
type WSHandler struct {
	quizService    *service.QuizService
	sessionService *service.QuizSessionService
	queue          service.WorkQueue
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	quizService *service.QuizService,
	sessionService *service.QuizSessionService,
	queue service.WorkQueue,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		quizService:    quizService,
		sessionService: sessionService,
		queue:          queue,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// attemptConn is the per-connection state for one live attempt.
type attemptConn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	quiz      *model.Quiz
	studentID int
	total     int
	guard     *proctor.Guard
	debouncer *autosave.Debouncer

	// Mutable attempt state, owned by the read loop.
	answers map[string]model.Answer
	index   int
}

// send serializes writes: the unlock timer and the read loop share the
// connection.
func (a *attemptConn) send(v interface{}) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	_ = ws.WriteTyped(a.conn, v)
}

// AttemptStream godoc
// WS /ws/v1/student/quizzes/:quiz_id/attempt?token=...&platform=desktop
// Upgrades to WebSocket for the live attempt protocol.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quiz ID"})
		return
	}

	quiz, err := h.quizService.GetByID(c.Request.Context(), quizID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "quiz not found"})
		return
	}

	payload, err := h.quizService.GetQuizPayload(c.Request.Context(), quizID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "quiz not available"})
		return
	}

	desktop := c.DefaultQuery("platform", "desktop") == "desktop"

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	studentID := claims.UserID

	// The attempt must already exist; connecting is not starting.
	state, err := h.sessionService.State(context.Background(), quiz, studentID)
	if err != nil {
		ws.WriteError(conn, "no active attempt for this quiz")
		return
	}

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("quiz_id", quizID.String()).
		Logger()

	ac := &attemptConn{
		conn:      conn,
		quiz:      quiz,
		studentID: studentID,
		total:     len(payload.Questions),
		answers:   state.Answers,
		index:     state.CurrentIndex,
	}
	if ac.answers == nil {
		ac.answers = map[string]model.Answer{}
	}
	// A stale autosave (quiz shrunk mid-attempt) may carry a position
	// past the paper's end; reset it rather than trusting it.
	if ac.index >= ac.total {
		ac.index = 0
	}

	ac.debouncer = autosave.NewDebouncer(autosave.DefaultWindow, func(snap model.SessionSnapshot) error {
		return h.sessionService.SaveSnapshot(context.Background(), snap)
	}, wsLog)
	defer ac.debouncer.Close()

	// Guard only exists for timed attempts. Practice and untimed runs
	// have nothing to proctor.
	if quiz.Timed() {
		ac.guard = proctor.NewGuard(proctor.GuardConfig{
			Desktop: desktop,
			OnLock:  h.lockHook(ac, wsLog),
		})
	}

	wsLog.Info().Bool("desktop", desktop).Msg("Student connected")

	for {
		var envelope ws.RequestEnvelope
		raw, err := readRaw(conn, &envelope)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch envelope.Action {
		case ws.ActionAnswer:
			h.handleAnswer(ac, wsLog, raw)
		case ws.ActionNavigate:
			h.handleNavigate(ac, wsLog, raw)
		case ws.ActionFocus:
			h.handleFocus(ac, wsLog, raw)
		case ws.ActionExit:
			h.handleExit(ac, wsLog)
			return
		case ws.ActionSubmit:
			h.handleSubmit(ac, wsLog)
		case ws.ActionPing:
			h.handlePing(ac)
		default:
			wsLog.Warn().Str("action", string(envelope.Action)).Msg("Unknown action")
			ac.send(ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(envelope.Action)})
		}
	}

	// Connection dropped without an exit or submit: flush whatever is
	// pending so a crash costs at most the debounce window.
	ac.debouncer.Flush(attemptKey(ac))
}

// readRaw reads one message, decodes the envelope for dispatch, and
// returns the raw bytes for action-specific parsing.
func readRaw(conn *websocket.Conn, envelope *ws.RequestEnvelope) ([]byte, error) {
	conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, envelope); err != nil {
		return nil, err
	}
	return raw, nil
}

func attemptKey(ac *attemptConn) string {
	return ac.quiz.ID.String()
}

func (ac *attemptConn) snapshot() model.SessionSnapshot {
	answers := make(map[string]model.Answer, len(ac.answers))
	for k, v := range ac.answers {
		answers[k] = v
	}
	return model.SessionSnapshot{
		QuizID:       ac.quiz.ID.String(),
		StudentID:    ac.studentID,
		Answers:      answers,
		CurrentIndex: ac.index,
	}
}

// lockHook fires on every Active→locked transition: flush the pending
// autosave immediately so nothing is lost while the UI is frozen, and
// record the violation for the proctor log.
func (h *WSHandler) lockHook(ac *attemptConn, wsLog zerolog.Logger) proctor.LockHook {
	return func(kind proctor.EventKind) {
		ac.debouncer.Flush(attemptKey(ac))

		detail, _ := json.Marshal(gin.H{"trigger": string(kind)})
		ev := model.ProctorEvent{
			QuizID:     ac.quiz.ID.String(),
			StudentID:  ac.studentID,
			Kind:       string(kind),
			Detail:     detail,
			RecordedAt: time.Now(),
		}
		if err := h.queue.EnqueueProctorEvent(context.Background(), ev); err != nil {
			wsLog.Warn().Err(err).Msg("Failed to enqueue proctor event")
		}
	}
}

// handleAnswer merges one answer into the in-memory attempt and arms
// the debouncer. An empty answer clears the stored value.
func (h *WSHandler) handleAnswer(ac *attemptConn, wsLog zerolog.Logger, raw []byte) {
	var req ws.AnswerRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ac.send(ws.ErrorResponse{Event: ws.EventError, Error: "malformed answer payload"})
		return
	}

	// Well-formed UUID only, to keep cache keys clean.
	if _, err := uuid.Parse(req.QuestionID); err != nil {
		ac.send(ws.ErrorResponse{Event: ws.EventError, Error: "invalid question_id format"})
		return
	}

	if ac.guard != nil && ac.guard.Locked() {
		ac.send(ws.ErrorResponse{Event: ws.EventError, Error: "attempt is locked"})
		return
	}

	if req.Answer.IsEmpty() {
		delete(ac.answers, req.QuestionID)
	} else {
		ac.answers[req.QuestionID] = req.Answer
	}

	ac.debouncer.Observe(attemptKey(ac), ac.snapshot())
	ac.send(ws.SavedResponse{Event: ws.EventSaved, SavedAt: time.Now().UTC().Format(time.RFC3339)})
}

// handleNavigate records the student's position. Position changes ride
// the same debounced snapshot as answers.
func (h *WSHandler) handleNavigate(ac *attemptConn, wsLog zerolog.Logger, raw []byte) {
	var req ws.NavigateRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ac.send(ws.ErrorResponse{Event: ws.EventError, Error: "malformed navigate payload"})
		return
	}

	if !navigateAllowed(ac.guard != nil && ac.guard.Locked(), req.Index, ac.total) {
		ac.send(ws.ErrorResponse{Event: ws.EventError, Error: "navigate rejected"})
		return
	}

	ac.index = req.Index
	ac.debouncer.Observe(attemptKey(ac), ac.snapshot())
}

// navigateAllowed decides whether a navigate request may move the
// attempt position: locked attempts are frozen, and the target must
// land inside the paper.
func navigateAllowed(locked bool, index, total int) bool {
	return !locked && index >= 0 && index < total
}

// handleFocus runs a reported focus event through the guard and tells
// the client which overlay to show.
func (h *WSHandler) handleFocus(ac *attemptConn, wsLog zerolog.Logger, raw []byte) {
	if ac.guard == nil {
		return
	}

	var req ws.FocusRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ac.send(ws.ErrorResponse{Event: ws.EventError, Error: "malformed focus payload"})
		return
	}

	ac.guard.Observe(proctor.EventKind(req.Kind))

	switch state := ac.guard.State(); state {
	case proctor.StateTimedLock:
		remaining := ac.guard.LockRemaining()
		ac.send(ws.LockedResponse{
			Event:       ws.EventLocked,
			State:       string(state),
			RemainingMS: remaining.Milliseconds(),
		})
		// Announce the unlock when the window elapses, unless the lock
		// escalated or was re-armed in the meantime.
		time.AfterFunc(remaining+50*time.Millisecond, func() {
			if !ac.guard.Locked() {
				ac.send(ws.UnlockedResponse{Event: ws.EventUnlocked})
			}
		})
	case proctor.StateIndefiniteLock:
		ac.send(ws.LockedResponse{
			Event:       ws.EventLocked,
			State:       string(state),
			RemainingMS: 0,
		})
	case proctor.StateActive:
		ac.send(ws.UnlockedResponse{Event: ws.EventUnlocked})
	}
}

// handleExit is a deliberate leave: suppress the guard so teardown blur
// events don't register, then flush.
func (h *WSHandler) handleExit(ac *attemptConn, wsLog zerolog.Logger) {
	if ac.guard != nil {
		ac.guard.Suppress()
	}
	ac.debouncer.Flush(attemptKey(ac))
	wsLog.Info().Msg("Student exited attempt")
}

// handleSubmit grades the attempt from the in-memory answers and makes
// it terminal.
func (h *WSHandler) handleSubmit(ac *attemptConn, wsLog zerolog.Logger) {
	ctx := context.Background()

	if ac.guard != nil {
		ac.guard.Suppress()
	}
	// Pending debounced state is superseded by the submit itself.
	ac.debouncer.Cancel(attemptKey(ac))

	key, err := h.quizService.GetGradingKey(ctx, ac.quiz.ID)
	if err != nil {
		wsLog.Error().Err(err).Msg("Get grading key error")
		ac.send(ws.ErrorResponse{Event: ws.EventError, Error: "grading failed"})
		return
	}

	result, err := h.sessionService.Finalize(ctx, ac.quiz, key, ac.studentID, ac.answers)
	if err != nil {
		if errors.Is(err, service.ErrAlreadySubmitted) {
			ac.send(ws.ErrorResponse{Event: ws.EventError, Error: "attempt already submitted"})
			return
		}
		wsLog.Error().Err(err).Msg("Finalize error")
		ac.send(ws.ErrorResponse{Event: ws.EventError, Error: "submission failed"})
		return
	}

	ac.send(ws.GradedResponse{
		Event: ws.EventGraded,
		Score: result.Score,
		Total: result.Total,
	})
}

// handlePing refreshes the client countdown against the server clock.
func (h *WSHandler) handlePing(ac *attemptConn) {
	remaining := 0
	if ac.quiz.Timed() {
		state, err := h.sessionService.State(context.Background(), ac.quiz, ac.studentID)
		if err == nil {
			remaining = state.RemainingSeconds
		}
	}
	ac.send(ws.PongResponse{Event: ws.EventPong, RemainingSeconds: remaining})
}
