// Package autosave coalesces rapid in-attempt changes (answer edits,
// navigation) into single best-effort persistence flushes. Losing a
// flush never blocks interaction: finalize always grades the latest
// in-memory state, not the persisted copy.
package autosave

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quizdesk/quizdesk-backend/internal/model"
)

// DefaultWindow is the debounce window: changes arriving within it are
// coalesced into one flush carrying only the latest snapshot.
const DefaultWindow = 500 * time.Millisecond

// FlushFunc persists a snapshot. Errors are logged and swallowed by the
// debouncer; the next change simply re-triggers a flush with fresh state.
type FlushFunc func(snap model.SessionSnapshot) error

type entry struct {
	snap  model.SessionSnapshot
	timer *time.Timer
}

// Debouncer holds one pending snapshot per attempt key. Safe for
// concurrent use.
type Debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	flush   FlushFunc
	log     zerolog.Logger
	pending map[string]*entry
	closed  bool
}

// NewDebouncer creates a Debouncer. A non-positive window falls back to
// DefaultWindow.
func NewDebouncer(window time.Duration, flush FlushFunc, log zerolog.Logger) *Debouncer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Debouncer{
		window:  window,
		flush:   flush,
		log:     log.With().Str("component", "autosave").Logger(),
		pending: make(map[string]*entry),
	}
}

// Observe records the latest snapshot for key and (re)arms the debounce
// timer. Only the snapshot present when the timer fires is flushed.
func (d *Debouncer) Observe(key string, snap model.SessionSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	if e, ok := d.pending[key]; ok {
		e.snap = snap
		e.timer.Reset(d.window)
		return
	}

	e := &entry{snap: snap}
	e.timer = time.AfterFunc(d.window, func() {
		d.fire(key)
	})
	d.pending[key] = e
}

// Flush forces an immediate flush of any pending snapshot for key.
// Used when the focus guard locks the attempt, so the latest answers
// are persisted before the UI goes dark.
func (d *Debouncer) Flush(key string) {
	d.mu.Lock()
	e, ok := d.pending[key]
	if ok {
		e.timer.Stop()
		delete(d.pending, key)
	}
	d.mu.Unlock()

	if ok {
		d.run(e.snap)
	}
}

// Cancel drops any pending snapshot for key without flushing. Called on
// finalize: the submitted state supersedes anything still buffered.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	if e, ok := d.pending[key]; ok {
		e.timer.Stop()
		delete(d.pending, key)
	}
	d.mu.Unlock()
}

// Close cancels all pending snapshots. No flush is forced: the
// data-loss window on disconnect is bounded by the debounce interval
// and accepted.
func (d *Debouncer) Close() {
	d.mu.Lock()
	d.closed = true
	for key, e := range d.pending {
		e.timer.Stop()
		delete(d.pending, key)
	}
	d.mu.Unlock()
}

func (d *Debouncer) fire(key string) {
	d.mu.Lock()
	e, ok := d.pending[key]
	if ok {
		delete(d.pending, key)
	}
	d.mu.Unlock()

	if ok {
		d.run(e.snap)
	}
}

func (d *Debouncer) run(snap model.SessionSnapshot) {
	if err := d.flush(snap); err != nil {
		// Best-effort by contract: log and move on.
		d.log.Error().Err(err).
			Str("quiz_id", snap.QuizID).
			Int("student_id", snap.StudentID).
			Msg("Autosave flush failed")
	}
}
