package proctor

import (
	"time"

	"github.com/skillsense/assessment-backend/internal/model"
)

// stopwatch measures active time on the current question. Paused spans
// do not count.
type stopwatch struct {
	now       func() time.Time
	startedAt time.Time
	banked    time.Duration
	running   bool
}

func (w *stopwatch) reset() {
	w.banked = 0
	w.startedAt = w.now()
	w.running = true
}

func (w *stopwatch) pause() {
	if !w.running {
		return
	}
	w.banked += w.now().Sub(w.startedAt)
	w.running = false
}

func (w *stopwatch) resume() {
	if w.running {
		return
	}
	w.startedAt = w.now()
	w.running = true
}

func (w *stopwatch) elapsed() time.Duration {
	if !w.running {
		return w.banked
	}
	return w.banked + w.now().Sub(w.startedAt)
}

// Cursor holds the current question, its selection and the append-only
// answer history.
type Cursor struct {
	current  *model.Question
	selected *string
	watch    stopwatch
	history  []model.AnswerRecord
	disabled bool
}

func newCursor(now func() time.Time) *Cursor {
	return &Cursor{watch: stopwatch{now: now}}
}

// display makes q current and restarts per-question timing. When paused is
// true the stopwatch starts frozen.
func (c *Cursor) display(q model.Question, paused bool) {
	c.current = &q
	c.selected = nil
	c.watch.reset()
	if paused {
		c.watch.pause()
	}
}

func (c *Cursor) selectOption(key string) error {
	if c.current == nil {
		return &ValidationError{Field: "selected_option", Reason: "no question is displayed"}
	}
	if !c.current.Options.Has(key) {
		return &ValidationError{Field: "selected_option", Reason: "unknown option " + key}
	}
	k := key
	c.selected = &k
	return nil
}

func (c *Cursor) clearSelection() { c.selected = nil }

// answer builds the record for the current selection without appending it.
func (c *Cursor) answer() (model.AnswerRecord, error) {
	if c.current == nil || c.selected == nil {
		return model.AnswerRecord{}, ErrNoSelection
	}
	key := *c.selected
	return model.AnswerRecord{
		QuestionID:         c.current.ID,
		SelectedOptionKey:  &key,
		TimeTakenSec:       c.watch.elapsed().Seconds(),
		DifficultyAtAnswer: c.current.Difficulty,
	}, nil
}

func (c *Cursor) accept(rec model.AnswerRecord) {
	c.history = append(c.history, rec)
}

func (c *Cursor) pause()  { c.watch.pause() }
func (c *Cursor) resume() { c.watch.resume() }

// disable drops the current question so nothing can be submitted.
func (c *Cursor) disable() {
	c.disabled = true
	c.current = nil
	c.selected = nil
	c.watch.pause()
}

// historyCopy returns a copy that callers may keep.
func (c *Cursor) historyCopy() []model.AnswerRecord {
	out := make([]model.AnswerRecord, len(c.history))
	copy(out, c.history)
	return out
}
