package convo

import (
	"context"
	"sync"
	"time"
)

// fakeTimers is a deterministic Timers: callbacks fire only when the test
// says so.
type fakeTimer struct {
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	pending := !t.stopped && !t.fired
	t.stopped = true
	return pending
}

type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (f *fakeTimers) AfterFunc(_ time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{fn: fn}
	f.timers = append(f.timers, t)
	return t
}

// fire runs every pending timer callback.
func (f *fakeTimers) fire() {
	f.mu.Lock()
	timers := append([]*fakeTimer(nil), f.timers...)
	f.mu.Unlock()
	for _, t := range timers {
		if !t.stopped && !t.fired {
			t.fired = true
			t.fn()
		}
	}
}

func (f *fakeTimers) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fakeSurface implements Surface with recorded calls and scripted geometry.
type fakeSurface struct {
	mu           sync.Mutex
	top          int
	height       int
	onVisible    func(string)
	observed     map[string]int
	unobserved   map[string]int
	observing    map[string]bool
	highlighted  []string
	unhighlit    []string
	positions    map[string]int
	setTops      []int
	scrollToEnds int
	renderQueue  []func()
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		observed:   make(map[string]int),
		unobserved: make(map[string]int),
		observing:  make(map[string]bool),
		positions:  make(map[string]int),
	}
}

func (s *fakeSurface) ScrollTop() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.top
}

func (s *fakeSurface) ScrollHeight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.height
}

func (s *fakeSurface) SetScrollTop(top int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.top = top
	s.setTops = append(s.setTops, top)
}

func (s *fakeSurface) ScrollToEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrollToEnds++
}

func (s *fakeSurface) AfterRender(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renderQueue = append(s.renderQueue, fn)
}

// render simulates a render pass: queued AfterRender callbacks run once.
func (s *fakeSurface) render() {
	s.mu.Lock()
	queue := s.renderQueue
	s.renderQueue = nil
	s.mu.Unlock()
	for _, fn := range queue {
		fn()
	}
}

func (s *fakeSurface) Observe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observed[id]++
	s.observing[id] = true
}

func (s *fakeSurface) Unobserve(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unobserved[id]++
	delete(s.observing, id)
}

func (s *fakeSurface) SetOnVisible(fn func(string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onVisible = fn
}

// reportVisible simulates the platform reporting a visibility transition.
// Only ids currently under observation are reported, as a real notifier
// would.
func (s *fakeSurface) reportVisible(id string) {
	s.mu.Lock()
	fn := s.onVisible
	watching := s.observing[id]
	s.mu.Unlock()
	if fn != nil && watching {
		fn(id)
	}
}

func (s *fakeSurface) Position(id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	top, ok := s.positions[id]
	return top, ok
}

func (s *fakeSurface) Highlight(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.highlighted = append(s.highlighted, id)
}

func (s *fakeSurface) Unhighlight(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unhighlit = append(s.unhighlit, id)
}

// fakeTransport records forward calls and scripts failures.
type fakeTransport struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	forwardErr error
	connects   int
	forwards   []forwardCall
}

type forwardCall struct {
	MessageID      string
	ConversationID string
}

func (t *fakeTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *fakeTransport) EnsureConnected(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connects++
	if t.connectErr != nil {
		return t.connectErr
	}
	t.connected = true
	return nil
}

func (t *fakeTransport) ForwardMessage(_ context.Context, messageID, conversationID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.forwardErr != nil {
		return t.forwardErr
	}
	t.forwards = append(t.forwards, forwardCall{MessageID: messageID, ConversationID: conversationID})
	return nil
}

// signalLog records typing notifications in order.
type signalLog struct {
	mu      sync.Mutex
	signals []bool
}

func (l *signalLog) record(started bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.signals = append(l.signals, started)
}

func (l *signalLog) all() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.signals...)
}
