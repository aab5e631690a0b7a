package editor

import (
	"sync"
	"time"

	"taskdeck/internal/schedule"
)

type EventKind string

const (
	EventSaved      EventKind = "saved"
	EventSaveFailed EventKind = "save_failed"
	// EventInvalid means the draft can't be encoded; any pending save was dropped.
	EventInvalid EventKind = "invalid"
)

type Event struct {
	Kind   EventKind
	Time   time.Time
	JobID  string
	Intent Intent
	Draft  schedule.Draft
	Err    error
}

// fanout is a non-blocking broadcaster: publish never waits on a subscriber.
type fanout struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	next   int
	closed bool
}

func newFanout() *fanout { return &fanout{subs: map[int]chan Event{}} }

func (f *fanout) subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(ch)
		return ch, func() {}
	}
	id := f.next
	f.next++
	f.subs[id] = ch

	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if c, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(c)
		}
	}
}

func (f *fanout) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (f *fanout) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
