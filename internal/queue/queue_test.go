package queue

import (
	"errors"
	"testing"

	"github.com/billdback/scarab/internal/core"
)

func namedAt(t int64) core.Event {
	return core.NamedEvent{EventHeader: core.EventHeader{Kind: core.KindNamed, SimTime: t}, Name: "tick"}
}

func createdAt(t int64) core.Event {
	return core.EntityCreatedEvent{EventHeader: core.EventHeader{Kind: core.KindEntityCreated, SimTime: t}}
}

func TestQueueOrdersByTimeThenBand(t *testing.T) {
	q := New()
	if err := q.Put(namedAt(5)); err != nil {
		t.Fatal(err)
	}
	if err := q.Put(createdAt(5)); err != nil {
		t.Fatal(err)
	}
	if err := q.Put(namedAt(1)); err != nil {
		t.Fatal(err)
	}

	tm, events, ok := q.TakeNext()
	if !ok || tm != 1 {
		t.Fatalf("expected first batch at time 1, got %d ok=%v", tm, ok)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event at time 1, got %d", len(events))
	}

	tm, events, ok = q.TakeNext()
	if !ok || tm != 5 {
		t.Fatalf("expected second batch at time 5, got %d ok=%v", tm, ok)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events at time 5, got %d", len(events))
	}
	if events[0].EventKind() != core.KindEntityCreated {
		t.Fatalf("expected entity-created event to drain before named event, got %s", events[0].EventKind())
	}
}

func TestQueueRejectsTimeInPast(t *testing.T) {
	q := New()
	if err := q.Put(namedAt(3)); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := q.TakeNext(); !ok {
		t.Fatal("expected a batch")
	}
	if err := q.Put(namedAt(3)); !errors.Is(err, core.ErrTimeInPast) {
		t.Fatalf("expected ErrTimeInPast, got %v", err)
	}
	if err := q.Put(namedAt(2)); !errors.Is(err, core.ErrTimeInPast) {
		t.Fatalf("expected ErrTimeInPast, got %v", err)
	}
}

func TestQueueEmptyAfterDrain(t *testing.T) {
	q := New()
	_ = q.Put(namedAt(1))
	if _, _, ok := q.TakeNext(); !ok {
		t.Fatal("expected a batch")
	}
	if _, ok := q.NextTime(); ok {
		t.Fatal("expected queue to report empty")
	}
	if q.Len() != 0 {
		t.Fatalf("expected Len 0, got %d", q.Len())
	}
}
