package convo

import "testing"

func TestTypingStartedEmittedOncePerActivePeriod(t *testing.T) {
	timers := &fakeTimers{}
	log := &signalLog{}
	tc := NewTypingController(timers, log.record)

	tc.OnInput("h")
	tc.OnInput("he")
	tc.OnInput("hel")

	signals := log.all()
	if len(signals) != 1 || !signals[0] {
		t.Fatalf("signals = %v, want exactly one started", signals)
	}
	if !tc.Active() {
		t.Error("controller should be active")
	}
}

func TestTypingStopsOnEmptyInput(t *testing.T) {
	timers := &fakeTimers{}
	log := &signalLog{}
	tc := NewTypingController(timers, log.record)

	tc.OnInput("hi")
	tc.OnInput("")

	signals := log.all()
	if len(signals) != 2 || !signals[0] || signals[1] {
		t.Fatalf("signals = %v, want [started stopped]", signals)
	}
	if tc.Active() {
		t.Error("controller should be inactive after empty input")
	}
	if timers.pending() != 0 {
		t.Errorf("pending timers = %d, want 0 after stop", timers.pending())
	}
}

func TestTypingStopsOnIdleTimeout(t *testing.T) {
	timers := &fakeTimers{}
	log := &signalLog{}
	tc := NewTypingController(timers, log.record)

	tc.OnInput("hi")
	timers.fire()

	signals := log.all()
	if len(signals) != 2 || !signals[0] || signals[1] {
		t.Fatalf("signals = %v, want [started stopped]", signals)
	}
	if tc.Active() {
		t.Error("controller should be inactive after timeout")
	}
}

func TestTypingKeystrokesResetIdleTimer(t *testing.T) {
	timers := &fakeTimers{}
	log := &signalLog{}
	tc := NewTypingController(timers, log.record)

	tc.OnInput("h")
	tc.OnInput("he")
	tc.OnInput("hel")

	// Each keystroke replaced the previous timer; only one may be pending.
	if timers.pending() != 1 {
		t.Errorf("pending timers = %d, want 1", timers.pending())
	}
}

func TestTypingRestartsAfterStop(t *testing.T) {
	timers := &fakeTimers{}
	log := &signalLog{}
	tc := NewTypingController(timers, log.record)

	tc.OnInput("a")
	timers.fire()
	tc.OnInput("b")

	signals := log.all()
	want := []bool{true, false, true}
	if len(signals) != len(want) {
		t.Fatalf("signals = %v, want %v", signals, want)
	}
	for i := range want {
		if signals[i] != want[i] {
			t.Fatalf("signals = %v, want %v", signals, want)
		}
	}
}

func TestTypingFlushEmitsStoppedOnlyWhenActive(t *testing.T) {
	timers := &fakeTimers{}
	log := &signalLog{}
	tc := NewTypingController(timers, log.record)

	// Flush while idle: no signal.
	tc.Flush()
	if got := log.all(); len(got) != 0 {
		t.Fatalf("signals after idle flush = %v, want none", got)
	}

	// Flush while active: one stopped, timer cancelled.
	tc.OnInput("hi")
	tc.Flush()
	signals := log.all()
	if len(signals) != 2 || signals[1] {
		t.Fatalf("signals = %v, want [started stopped]", signals)
	}
	if timers.pending() != 0 {
		t.Errorf("pending timers = %d, want 0 after flush", timers.pending())
	}

	// A second flush must not emit again.
	tc.Flush()
	if got := log.all(); len(got) != 2 {
		t.Fatalf("signals after double flush = %v, want 2 entries", got)
	}
}

// Started and stopped must strictly alternate across any input sequence.
func TestTypingSignalsAlternate(t *testing.T) {
	timers := &fakeTimers{}
	log := &signalLog{}
	tc := NewTypingController(timers, log.record)

	inputs := []string{"a", "ab", "", "x", "xy", "xyz", ""}
	for _, in := range inputs {
		tc.OnInput(in)
	}
	timers.fire()
	tc.Flush()

	signals := log.all()
	if len(signals) == 0 {
		t.Fatal("no signals recorded")
	}
	if !signals[0] {
		t.Fatalf("first signal = stopped, want started")
	}
	for i := 1; i < len(signals); i++ {
		if signals[i] == signals[i-1] {
			t.Fatalf("signals = %v: two consecutive %v at %d", signals, signals[i], i)
		}
	}
}
