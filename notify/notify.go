// Package notify serializes user-facing snackbar messages. At most one
// message is visible at a time; queued messages drain strictly FIFO — no
// kind preempts another.
package notify

import (
	"sync"
	"time"
)

type Kind string

const (
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

const DefaultDuration = 3 * time.Second

type Message struct {
	Text     string
	Kind     Kind
	Duration time.Duration
}

// Queue drains messages one at a time, driven by a single-shot timer
// re-armed on every dequeue.
type Queue struct {
	mu        sync.Mutex
	pending   []Message
	visible   *Message
	timer     *time.Timer
	gen       uint64
	listeners []func(*Message)
}

func NewQueue() *Queue {
	return &Queue{}
}

// Subscribe registers a listener called with the newly visible message, or
// nil when the visible slot clears. Listeners run outside the queue lock.
func (q *Queue) Subscribe(fn func(*Message)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners = append(q.listeners, fn)
}

func (q *Queue) Enqueue(text string, kind Kind, duration time.Duration) {
	if duration <= 0 {
		duration = DefaultDuration
	}
	m := Message{Text: text, Kind: kind, Duration: duration}

	q.mu.Lock()
	if q.visible != nil {
		q.pending = append(q.pending, m)
		q.mu.Unlock()
		return
	}
	q.showLocked(m)
	q.mu.Unlock()
	q.emit(&m)
}

// Visible returns a copy of the currently shown message, if any.
func (q *Queue) Visible() *Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.visible == nil {
		return nil
	}
	m := *q.visible
	return &m
}

// Clear discards the queue and immediately hides any visible message.
func (q *Queue) Clear() {
	q.mu.Lock()
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	// Stop can miss a callback already in flight; bumping the generation
	// invalidates it either way.
	q.gen++
	q.pending = nil
	wasVisible := q.visible != nil
	q.visible = nil
	q.mu.Unlock()
	if wasVisible {
		q.emit(nil)
	}
}

func (q *Queue) showLocked(m Message) {
	q.visible = &m
	q.gen++
	gen := q.gen
	q.timer = time.AfterFunc(m.Duration, func() { q.advance(gen) })
}

// advance fires when the visible message's duration elapses: the next
// queued message (if any) becomes visible, otherwise the slot clears.
// The generation ties the callback to the message that armed it; a
// callback that lost a race with Clear or a newer show is a no-op.
func (q *Queue) advance(gen uint64) {
	q.mu.Lock()
	if gen != q.gen || q.visible == nil {
		q.mu.Unlock()
		return
	}
	if len(q.pending) == 0 {
		q.visible = nil
		q.timer = nil
		q.mu.Unlock()
		q.emit(nil)
		return
	}
	next := q.pending[0]
	q.pending = q.pending[1:]
	q.showLocked(next)
	q.mu.Unlock()
	q.emit(&next)
}

func (q *Queue) emit(m *Message) {
	q.mu.Lock()
	listeners := make([]func(*Message), len(q.listeners))
	copy(listeners, q.listeners)
	q.mu.Unlock()
	for _, fn := range listeners {
		fn(m)
	}
}
