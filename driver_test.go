package scarab

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/billdback/scarab/internal/core"
)

// recordingSink is a core.EventSink fake that appends every event it
// sees, safe for concurrent use since the driver may forward from its
// own goroutine while a test reads the slice.
type recordingSink struct {
	mu     sync.Mutex
	events []core.Event
}

func (s *recordingSink) Send(e core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) snapshot() []core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *recordingSink) kindsAt(t int64) []core.Kind {
	var out []core.Kind
	for _, e := range s.snapshot() {
		if e.EventTime() == t {
			out = append(out, e.EventKind())
		}
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDriver(t *testing.T) (*Driver, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	cfg := DefaultConfig()
	cfg.EventLog = sink
	d, err := NewDriver(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	return d, sink
}

func waitForEvent(t *testing.T, sink *recordingSink, kind core.Kind, timeout time.Duration) core.Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, e := range sink.snapshot() {
			if e.EventKind() == kind {
				return e
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for event kind %s", kind)
	return nil
}

// Scenario 1: singleton clock tick.
func TestDriverSingletonClockTick(t *testing.T) {
	d, sink := newTestDriver(t)

	if err := d.Run(1, 0, false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if d.Clock() != 1 {
		t.Fatalf("expected clock 1, got %d", d.Clock())
	}
	if d.State() != StatePaused {
		t.Fatalf("expected paused, got %s", d.State())
	}

	var starts, ticks int
	for _, e := range sink.snapshot() {
		switch e.EventKind() {
		case core.KindSimStart:
			starts++
			if e.EventTime() != 0 {
				t.Errorf("expected SIM_START at t=0, got %d", e.EventTime())
			}
		case core.KindTimeUpdated:
			ticks++
			tu := e.(core.TimeUpdatedEvent)
			if tu.PreviousTime != 0 || tu.SimTime != 1 {
				t.Errorf("expected TIME_UPDATED 0->1, got %d->%d", tu.PreviousTime, tu.SimTime)
			}
		}
	}
	if starts != 1 {
		t.Fatalf("expected exactly one SIM_START, got %d", starts)
	}
	if ticks != 1 {
		t.Fatalf("expected exactly one TIME_UPDATED, got %d", ticks)
	}
}

type namedEntity struct {
	Base
	name string
}

func newNamedEntity(kind string) *namedEntity {
	e := &namedEntity{name: kind}
	e.Base = NewBase(kind)
	return e
}

// Scenario 3: priority within a tick. NAMED("x"), ENTITY_DESTROYED(A),
// ENTITY_CREATED(C) all enqueued at t=2; expect delivery order
// ENTITY_CREATED, ENTITY_DESTROYED, NAMED.
func TestDriverPriorityWithinATick(t *testing.T) {
	d, sink := newTestDriver(t)

	a := newNamedEntity("a")
	if err := d.AddEntity(a); err != nil {
		t.Fatalf("AddEntity: %v", err)
	}

	// Run one step so A's ENTITY_CREATED (scheduled at t=1) is
	// delivered and the clock reaches 1 before we hand-schedule events
	// at t=2.
	if err := d.Run(1, 0, false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	payload, _ := json.Marshal("hello")
	named := core.NamedEvent{
		EventHeader: core.EventHeader{Kind: core.KindNamed, SimTime: 2},
		Name:        "x",
		Payload:     payload,
	}
	destroyed := core.EntityDestroyedEvent{
		EventHeader: core.EventHeader{Kind: core.KindEntityDestroyed, SimTime: 2, Target: a.ScarabID()},
	}
	created := core.EntityCreatedEvent{
		EventHeader: core.EventHeader{Kind: core.KindEntityCreated, SimTime: 2, Target: "c-1"},
	}

	d.SendEvent(named)
	d.SendEvent(destroyed)
	d.SendEvent(created)

	if err := d.Run(1, 0, false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := sink.kindsAt(2)
	// TIME_UPDATED always leads a tick, and the bounded run ends with a
	// SIM_PAUSE at the same clock; strip immediate kinds for the
	// comparison below, which only cares about the three hand-scheduled
	// events.
	var filtered []core.Kind
	for _, k := range got {
		if !core.ImmediateKinds[k] {
			filtered = append(filtered, k)
		}
	}
	want := []core.Kind{core.KindEntityCreated, core.KindEntityDestroyed, core.KindNamed}
	if len(filtered) != len(want) {
		t.Fatalf("expected %v, got %v", want, filtered)
	}
	for i := range want {
		if filtered[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, filtered)
		}
	}
}

// Scenario 7: control over wire. Start paused; an external controller
// call resumes the driver, and a subsequent shutdown call ends the
// loop with SIM_SHUTDOWN as the last event.
func TestDriverControlFromOutsideGoroutine(t *testing.T) {
	d, sink := newTestDriver(t)

	runDone := make(chan error, 1)
	go func() {
		runDone <- d.Run(1_000_000, 0, true)
	}()

	time.Sleep(20 * time.Millisecond)
	if d.State() != StatePaused {
		t.Fatalf("expected driver to stay paused until resumed, got %s", d.State())
	}

	d.Resume()
	waitForEvent(t, sink, core.KindSimStart, time.Second)

	d.Shutdown()
	waitForEvent(t, sink, core.KindSimShutdown, time.Second)

	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after shutdown")
	}

	if d.State() != StateShuttingDown {
		t.Fatalf("expected shutting-down, got %s", d.State())
	}
}

// Handler fault containment: two handlers on the same named subject,
// the first panics; the second must still run.
func TestDriverHandlerFaultContainment(t *testing.T) {
	d, _ := newTestDriver(t)

	var secondRan bool
	first := &faultyObserver{}
	first.Base = NewBase("faulty")
	second := &secondObserver{ran: &secondRan}
	second.Base = NewBase("second")

	if err := d.AddEntity(first); err != nil {
		t.Fatalf("AddEntity first: %v", err)
	}
	if err := d.AddEntity(second); err != nil {
		t.Fatalf("AddEntity second: %v", err)
	}

	if err := d.Run(1, 0, false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	boom := core.NamedEvent{EventHeader: core.EventHeader{Kind: core.KindNamed, SimTime: 2}, Name: "boom"}
	d.SendEvent(boom)

	if err := d.Run(1, 0, false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !secondRan {
		t.Fatal("expected second handler to run despite first panicking")
	}
}

type faultyObserver struct {
	Base
}

func (f *faultyObserver) ScarabHandlers() []Binding {
	return NewBindings().OnNamed("boom", func(self SimID, e Event) {
		panic("boom")
	}).Build()
}

type secondObserver struct {
	Base
	ran *bool
}

func (s *secondObserver) ScarabHandlers() []Binding {
	return NewBindings().OnNamed("boom", func(self SimID, e Event) {
		*s.ran = true
	}).Build()
}
