package autosave

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/quizdesk/quizdesk-backend/internal/model"
)

type flushRecorder struct {
	mu    sync.Mutex
	snaps []model.SessionSnapshot
	err   error
}

func (r *flushRecorder) flush(snap model.SessionSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
	return r.err
}

func (r *flushRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *flushRecorder) last() model.SessionSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[len(r.snaps)-1]
}

func snapshotAt(index int) model.SessionSnapshot {
	return model.SessionSnapshot{
		QuizID:       "a4b1d1f0-0000-0000-0000-000000000001",
		StudentID:    7,
		Answers:      map[string]model.Answer{"q1": model.SingleAnswer("A")},
		CurrentIndex: index,
		SavedAt:      time.Now(),
	}
}

func TestRapidChangesCoalesceIntoOneFlush(t *testing.T) {
	rec := &flushRecorder{}
	d := NewDebouncer(20*time.Millisecond, rec.flush, zerolog.Nop())
	defer d.Close()

	for i := 0; i < 10; i++ {
		d.Observe("k", snapshotAt(i))
	}

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, 9, rec.last().CurrentIndex, "only the latest snapshot is written")

	// No trailing second flush.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, rec.count())
}

func TestSeparatedChangesFlushSeparately(t *testing.T) {
	rec := &flushRecorder{}
	d := NewDebouncer(10*time.Millisecond, rec.flush, zerolog.Nop())
	defer d.Close()

	d.Observe("k", snapshotAt(0))
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)

	d.Observe("k", snapshotAt(1))
	require.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, time.Millisecond)
}

func TestKeysAreIndependent(t *testing.T) {
	rec := &flushRecorder{}
	d := NewDebouncer(10*time.Millisecond, rec.flush, zerolog.Nop())
	defer d.Close()

	d.Observe("a", snapshotAt(1))
	d.Observe("b", snapshotAt(2))

	require.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, time.Millisecond)
}

func TestFlushForcesImmediateWrite(t *testing.T) {
	rec := &flushRecorder{}
	d := NewDebouncer(time.Hour, rec.flush, zerolog.Nop())
	defer d.Close()

	d.Observe("k", snapshotAt(3))
	d.Flush("k")

	require.Equal(t, 1, rec.count())
	require.Equal(t, 3, rec.last().CurrentIndex)

	// Nothing pending afterwards.
	d.Flush("k")
	require.Equal(t, 1, rec.count())
}

func TestCancelDropsPendingSnapshot(t *testing.T) {
	rec := &flushRecorder{}
	d := NewDebouncer(10*time.Millisecond, rec.flush, zerolog.Nop())
	defer d.Close()

	d.Observe("k", snapshotAt(0))
	d.Cancel("k")

	time.Sleep(40 * time.Millisecond)
	require.Zero(t, rec.count())
}

func TestFlushErrorsAreSwallowed(t *testing.T) {
	rec := &flushRecorder{err: errors.New("store down")}
	d := NewDebouncer(time.Hour, rec.flush, zerolog.Nop())
	defer d.Close()

	d.Observe("k", snapshotAt(0))
	d.Flush("k") // Must not panic or propagate.

	// A later change still flushes with fresh state.
	rec.err = nil
	d.Observe("k", snapshotAt(5))
	d.Flush("k")
	require.Equal(t, 2, rec.count())
	require.Equal(t, 5, rec.last().CurrentIndex)
}

func TestCloseStopsObserving(t *testing.T) {
	rec := &flushRecorder{}
	d := NewDebouncer(5*time.Millisecond, rec.flush, zerolog.Nop())

	d.Observe("k", snapshotAt(0))
	d.Close()
	d.Observe("k", snapshotAt(1))

	time.Sleep(30 * time.Millisecond)
	require.Zero(t, rec.count(), "close cancels pending work without flushing")
}
