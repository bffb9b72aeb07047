package core

// SimID is the type of an engine-assigned entity identifier.
type SimID = string

// Kind identifies the class of an event. It is a string so that the
// reserved wire names in an event's event_name field double as the Kind value for
// standard events; Named events instead use KindNamed as their Kind and
// carry the actual name in the event's Name field.
type Kind string

// Reserved event kinds, matching the wire names in spec §6.3.
const (
	KindEntityCreated   Kind = "scarab.entity.created"
	KindEntityChanged   Kind = "scarab.entity.changed"
	KindEntityDestroyed Kind = "scarab.entity.destroyed"
	KindTimeUpdated     Kind = "scarab.time.updated"
	KindSimStart        Kind = "scarab.simulation.start"
	KindSimPause        Kind = "scarab.simulation.pause"
	KindSimResume       Kind = "scarab.simulation.resume"
	KindSimShutdown     Kind = "scarab.simulation.shutdown"
	KindNamed           Kind = "scarab.named-event"
)

// StandardKinds lists every reserved kind except KindNamed, the one
// kind shared by all Named events (their user-chosen name is carried in
// NamedEvent.Name, not in the Kind).
var StandardKinds = map[Kind]bool{
	KindEntityCreated:   true,
	KindEntityChanged:   true,
	KindEntityDestroyed: true,
	KindTimeUpdated:     true,
	KindSimStart:        true,
	KindSimPause:        true,
	KindSimResume:       true,
	KindSimShutdown:     true,
}

// ImmediateKinds are delivered with time set to the clock's current
// value and bypass the queue entirely (spec §4.E "Immediate events").
var ImmediateKinds = map[Kind]bool{
	KindTimeUpdated: true,
	KindSimStart:    true,
	KindSimPause:    true,
	KindSimResume:   true,
	KindSimShutdown: true,
}

// EventSender is the narrow interface an entity needs to push events
// back into its owning simulation. Driver implements it.
type EventSender interface {
	SendEvent(e Event)
}

// EventSink is the external observer transport the router forwards
// every delivered event to. It is deliberately minimal: the engine core
// does not know or care whether the sink is a WebSocket server, a log
// file, or a test recorder.
type EventSink interface {
	// Send forwards a single event to the sink. Implementations must
	// not block indefinitely; sink faults are logged by the caller and
	// never fail dispatch.
	Send(e Event) error
}
