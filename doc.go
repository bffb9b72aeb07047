// Package scarab is an entity-based, time-stepped discrete-event
// simulation engine. Application code defines entities that embed
// scarab.Base and declare bindings from events to handler closures; a
// Driver steps a virtual clock, routes events to bound entities in
// priority order, detects per-entity field changes between steps, and
// forwards every event to an optional external sink.
package scarab

import "github.com/billdback/scarab/internal/core"

// The following aliases re-export the shared domain vocabulary from
// internal/core so application code imports only this package, while
// internal/queue, internal/registry, internal/router, and
// internal/differ can all depend on internal/core without an import
// cycle back through here.

type (
	// SimID identifies an admitted entity.
	SimID = core.SimID
	// Kind identifies the class of an event.
	Kind = core.Kind
	// Event is the interface every event type satisfies.
	Event = core.Event
	// EventHeader carries the fields common to every event.
	EventHeader = core.EventHeader
	// EntityCreatedEvent announces an entity's admission.
	EntityCreatedEvent = core.EntityCreatedEvent
	// EntityChangedEvent announces a change in an entity's observable fields.
	EntityChangedEvent = core.EntityChangedEvent
	// EntityDestroyedEvent announces an entity's removal.
	EntityDestroyedEvent = core.EntityDestroyedEvent
	// TimeUpdatedEvent announces the clock's advance.
	TimeUpdatedEvent = core.TimeUpdatedEvent
	// SimulationStartEvent announces the driver's first start; later
	// runs announce SimulationResumeEvent instead.
	SimulationStartEvent = core.SimulationStartEvent
	// SimulationPauseEvent announces a Pause.
	SimulationPauseEvent = core.SimulationPauseEvent
	// SimulationResumeEvent announces a Resume.
	SimulationResumeEvent = core.SimulationResumeEvent
	// SimulationShutdownEvent announces a Shutdown.
	SimulationShutdownEvent = core.SimulationShutdownEvent
	// NamedEvent is a user-defined event with an application-chosen name.
	NamedEvent = core.NamedEvent
	// Entity is implemented by every simulated object, normally via Base.
	Entity = core.Entity
	// Base is embedded by entity types to satisfy Entity.
	Base = core.Base
	// SchemaSource is implemented by entities that declare a fixed set
	// of observable field names.
	SchemaSource = core.SchemaSource
	// Binding ties an event Kind (and, for named and entity-lifecycle
	// events, a subject) to a handler closure.
	Binding = core.Binding
	// HandlerFunc is the shape every bound handler takes.
	HandlerFunc = core.HandlerFunc
	// HandlerSource is implemented by entity types that bind handlers.
	HandlerSource = core.HandlerSource
	// BindingBuilder accumulates Bindings fluently.
	BindingBuilder = core.BindingBuilder
	// EventSink is the external observer transport the driver forwards
	// every delivered event to.
	EventSink = core.EventSink
)

// NewBindings starts an empty BindingBuilder.
func NewBindings() *BindingBuilder { return core.NewBindings() }

// NewBase constructs a Base with the given logical entity name.
func NewBase(name string) Base { return core.NewBase(name) }

// Re-exported event kind constants.
const (
	KindEntityCreated   = core.KindEntityCreated
	KindEntityChanged   = core.KindEntityChanged
	KindEntityDestroyed = core.KindEntityDestroyed
	KindTimeUpdated     = core.KindTimeUpdated
	KindSimStart        = core.KindSimStart
	KindSimPause        = core.KindSimPause
	KindSimResume       = core.KindSimResume
	KindSimShutdown     = core.KindSimShutdown
	KindNamed           = core.KindNamed
)

// Re-exported sentinel errors.
var (
	ErrSchemaViolation = core.ErrSchemaViolation
	ErrTimeInPast       = core.ErrTimeInPast
	ErrLifecycleMisuse  = core.ErrLifecycleMisuse
	ErrUnknownEntity    = core.ErrUnknownEntity
)
