package core

import (
	"encoding/json"
	"fmt"
)

// Event is the common interface every event type satisfies. Concrete
// event types embed EventHeader and add their own payload fields.
type Event interface {
	// EventKind returns the event's wire/dispatch kind.
	EventKind() Kind
	// EventTime returns the simulation time the event is scheduled for.
	EventTime() int64
	// TargetID returns the id of the entity the event concerns, or ""
	// for simulation-wide events.
	TargetID() SimID
	// SenderID returns the id of the entity that raised the event, or
	// "" when the engine itself raised it.
	SenderID() SimID
}

// EventHeader carries the fields common to every event. Concrete event
// types embed it by value.
type EventHeader struct {
	Kind     Kind   `json:"event_name"`
	SimTime  int64  `json:"sim_time"`
	Target   SimID  `json:"target_id,omitempty"`
	Sender   SimID  `json:"sender_id,omitempty"`
}

func (h EventHeader) EventKind() Kind   { return h.Kind }
func (h EventHeader) EventTime() int64  { return h.SimTime }
func (h EventHeader) TargetID() SimID   { return h.Target }
func (h EventHeader) SenderID() SimID   { return h.Sender }

func (h EventHeader) String() string {
	return fmt.Sprintf("%s@%d target=%q sender=%q", h.Kind, h.SimTime, h.Target, h.Sender)
}

// EntityCreatedEvent announces that an entity was admitted to the
// simulation. Entity holds the entity's observable field snapshot
// (including its kind_name and id) at creation time. Subject carries
// the entity's kind name for dispatch; it is not part of the wire
// record, since the entity's kind_name is already present inside
// Entity.
type EntityCreatedEvent struct {
	EventHeader
	Subject string                     `json:"-"`
	Entity  map[string]json.RawMessage `json:"entity,omitempty"`
}

// EntityChangedEvent announces that one or more of an entity's
// observable fields changed value between two consecutive steps. Entity
// holds the entity's full observable snapshot as of after the change;
// Changed holds just the fields that differed from the previous
// snapshot.
type EntityChangedEvent struct {
	EventHeader
	Subject string                     `json:"-"`
	Entity  map[string]json.RawMessage `json:"entity,omitempty"`
	Changed map[string]json.RawMessage `json:"changed_properties"`
}

// EntityDestroyedEvent announces that an entity was removed from the
// simulation. Entity holds the entity's observable field snapshot as it
// was immediately before removal.
type EntityDestroyedEvent struct {
	EventHeader
	Subject string                     `json:"-"`
	Entity  map[string]json.RawMessage `json:"entity,omitempty"`
}

// TimeUpdatedEvent announces the clock's advance to a new time. It is
// always the first event routed within a step.
type TimeUpdatedEvent struct {
	EventHeader
	PreviousTime int64 `json:"previous_time"`
}

// SimulationStartEvent, SimulationPauseEvent, SimulationResumeEvent and
// SimulationShutdownEvent announce driver lifecycle transitions.
type SimulationStartEvent struct{ EventHeader }
type SimulationPauseEvent struct{ EventHeader }
type SimulationResumeEvent struct{ EventHeader }
type SimulationShutdownEvent struct{ EventHeader }

// NamedEvent is a user-defined event carrying an application-chosen
// name and an arbitrary payload. Its Kind is always KindNamed; Name
// distinguishes one named event from another for dispatch purposes.
type NamedEvent struct {
	EventHeader
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewTimeUpdatedEvent validates previousTime < simTime per the engine's
// monotonic-clock invariant before constructing the event.
func NewTimeUpdatedEvent(simTime, previousTime int64) (TimeUpdatedEvent, error) {
	if previousTime >= simTime {
		return TimeUpdatedEvent{}, fmt.Errorf("scarab: time updated event must advance the clock: previous=%d new=%d", previousTime, simTime)
	}
	return TimeUpdatedEvent{
		EventHeader:  EventHeader{Kind: KindTimeUpdated, SimTime: simTime},
		PreviousTime: previousTime,
	}, nil
}

// kindNameOf reads the kind_name field an entity snapshot always
// carries, for reconstructing a decoded event's dispatch Subject.
func kindNameOf(entity map[string]json.RawMessage) string {
	raw, ok := entity["kind_name"]
	if !ok {
		return ""
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return ""
	}
	return name
}

// wireEvent is the JSON shape used to decode an event of unknown
// concrete type off the wire (e.g. by a log-replaying test tool).
type wireEvent struct {
	EventHeader
	Entity       map[string]json.RawMessage `json:"entity,omitempty"`
	Changed      map[string]json.RawMessage `json:"changed_properties,omitempty"`
	PreviousTime int64                      `json:"previous_time,omitempty"`
	Name         string                     `json:"name,omitempty"`
	Payload      json.RawMessage            `json:"payload,omitempty"`
}

// DecodeEvent reconstructs a concrete Event from its JSON wire form,
// dispatching on the event_name field. It is the inverse of the
// json.Marshal output the sink writes to each connected client.
func DecodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("scarab: decode event: %w", err)
	}
	switch w.Kind {
	case KindEntityCreated:
		return EntityCreatedEvent{EventHeader: w.EventHeader, Subject: kindNameOf(w.Entity), Entity: w.Entity}, nil
	case KindEntityChanged:
		return EntityChangedEvent{EventHeader: w.EventHeader, Subject: kindNameOf(w.Entity), Entity: w.Entity, Changed: w.Changed}, nil
	case KindEntityDestroyed:
		return EntityDestroyedEvent{EventHeader: w.EventHeader, Subject: kindNameOf(w.Entity), Entity: w.Entity}, nil
	case KindTimeUpdated:
		return TimeUpdatedEvent{EventHeader: w.EventHeader, PreviousTime: w.PreviousTime}, nil
	case KindSimStart:
		return SimulationStartEvent{EventHeader: w.EventHeader}, nil
	case KindSimPause:
		return SimulationPauseEvent{EventHeader: w.EventHeader}, nil
	case KindSimResume:
		return SimulationResumeEvent{EventHeader: w.EventHeader}, nil
	case KindSimShutdown:
		return SimulationShutdownEvent{EventHeader: w.EventHeader}, nil
	case KindNamed:
		return NamedEvent{EventHeader: w.EventHeader, Name: w.Name, Payload: w.Payload}, nil
	default:
		return nil, fmt.Errorf("scarab: decode event: unknown event kind %q", w.Kind)
	}
}
