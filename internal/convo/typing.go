package convo

import (
	"sync"
	"time"
)

// typingIdle is how long after the last keystroke the typing indicator drops.
const typingIdle = 2 * time.Second

// TypingController converts raw composer input into typing started/stopped
// signals. It guarantees exactly one "started" per false→true transition and
// exactly one "stopped" per true→false transition, with an inactivity timer
// that drops the flag when the user pauses.
type TypingController struct {
	mu     sync.Mutex
	timers Timers
	notify func(started bool)
	active bool
	idle   Timer
}

// NewTypingController creates a typing controller that reports transitions
// via notify.
func NewTypingController(timers Timers, notify func(started bool)) *TypingController {
	return &TypingController{timers: timers, notify: notify}
}

// OnInput processes the current composer text. Non-empty input starts (or
// keeps alive) the typing state; empty input stops it immediately.
func (t *TypingController) OnInput(text string) {
	t.mu.Lock()

	if t.idle != nil {
		t.idle.Stop()
		t.idle = nil
	}

	if text == "" {
		stopped := t.active
		t.active = false
		t.mu.Unlock()
		if stopped {
			t.notify(false)
		}
		return
	}

	started := !t.active
	t.active = true
	t.idle = t.timers.AfterFunc(typingIdle, t.onIdle)
	t.mu.Unlock()

	if started {
		t.notify(true)
	}
}

func (t *TypingController) onIdle() {
	t.mu.Lock()
	stopped := t.active
	t.active = false
	t.idle = nil
	t.mu.Unlock()
	if stopped {
		t.notify(false)
	}
}

// Active reports whether the local user currently counts as typing.
func (t *TypingController) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Flush emits a stopped signal if typing is active and cancels the idle
// timer. Called on send, conversation switch and teardown so the peer never
// sees a stuck indicator.
func (t *TypingController) Flush() {
	t.mu.Lock()
	if t.idle != nil {
		t.idle.Stop()
		t.idle = nil
	}
	stopped := t.active
	t.active = false
	t.mu.Unlock()
	if stopped {
		t.notify(false)
	}
}
