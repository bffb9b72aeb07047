package router

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/billdback/scarab/internal/core"
	"github.com/billdback/scarab/internal/registry"
)

type fakeHandlers struct {
	subs map[core.Kind][]registry.Subscriber
}

func (f *fakeHandlers) HandlersFor(kind core.Kind, subject string) []registry.Subscriber {
	return f.subs[kind]
}

type recordingSink struct {
	mu     sync.Mutex
	events []core.Event
	fail   bool
}

func (s *recordingSink) Send(e core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return fmt.Errorf("sink exploded")
	}
	s.events = append(s.events, e)
	return nil
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRouteExcludesSelfForLifecycleEvents(t *testing.T) {
	called := map[core.SimID]bool{}
	h := &fakeHandlers{subs: map[core.Kind][]registry.Subscriber{
		core.KindEntityChanged: {
			{OwnerID: "victim", Handle: func(self core.SimID, e core.Event) { called[self] = true }},
			{OwnerID: "observer", Handle: func(self core.SimID, e core.Event) { called[self] = true }},
		},
	}}
	sink := &recordingSink{}
	r := New(newLogger(), sink)

	e := core.EntityChangedEvent{EventHeader: core.EventHeader{Kind: core.KindEntityChanged, Target: "victim"}}
	r.Route(h, e)

	if called["victim"] {
		t.Fatal("expected the changed entity itself to be excluded from delivery")
	}
	if !called["observer"] {
		t.Fatal("expected the observer to receive the event")
	}
	if len(sink.events) != 1 {
		t.Fatalf("expected event forwarded to sink once, got %d", len(sink.events))
	}
}

func TestRouteContainsHandlerPanic(t *testing.T) {
	secondCalled := false
	h := &fakeHandlers{subs: map[core.Kind][]registry.Subscriber{
		core.KindEntityCreated: {
			{OwnerID: "a", Handle: func(core.SimID, core.Event) { panic("boom") }},
			{OwnerID: "b", Handle: func(core.SimID, core.Event) { secondCalled = true }},
		},
	}}
	r := New(newLogger(), &recordingSink{})

	e := core.EntityCreatedEvent{EventHeader: core.EventHeader{Kind: core.KindEntityCreated, Target: "new-one"}}
	r.Route(h, e)

	if !secondCalled {
		t.Fatal("expected delivery to continue after a handler panic")
	}
}

func TestRouteToleratesSinkFault(t *testing.T) {
	h := &fakeHandlers{subs: map[core.Kind][]registry.Subscriber{}}
	sink := &recordingSink{fail: true}
	r := New(newLogger(), sink)

	e := core.TimeUpdatedEvent{EventHeader: core.EventHeader{Kind: core.KindTimeUpdated, SimTime: 1}}
	r.Route(h, e)
}

func TestRouteAsyncDeliversAndForwards(t *testing.T) {
	var wg sync.WaitGroup
	called := false
	h := &fakeHandlers{subs: map[core.Kind][]registry.Subscriber{
		core.KindSimStart: {{OwnerID: "", Handle: func(core.SimID, core.Event) { called = true }}},
	}}
	sink := &recordingSink{}
	r := New(newLogger(), sink)

	e := core.SimulationStartEvent{EventHeader: core.EventHeader{Kind: core.KindSimStart}}
	r.RouteAsync(h, e, &wg)
	wg.Wait()

	if !called {
		t.Fatal("expected async delivery to invoke the handler")
	}
	if len(sink.events) != 1 {
		t.Fatalf("expected event forwarded once, got %d", len(sink.events))
	}
}
