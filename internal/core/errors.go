// Package core holds the domain vocabulary shared by every simulation
// component: events, bindings, entities, and the sentinel errors the
// engine's own invariants raise. It has no dependency on the queue,
// registry, router, or differ packages so that those can all depend on
// it without creating an import cycle back to the root package.
package core

import "errors"

// Sentinel errors for the engine's documented error taxonomy. Handler
// faults and sink faults are never returned this way — they are logged
// and swallowed at the point they occur.
var (
	// ErrSchemaViolation is returned when an entity declares a
	// conformance schema but is missing one or more of the fields it
	// names at admission time.
	ErrSchemaViolation = errors.New("scarab: entity does not conform to its declared schema")

	// ErrTimeInPast is returned by the queue when an event is put with
	// a time at or before the last-returned time.
	ErrTimeInPast = errors.New("scarab: event time is not after the queue's last-returned time")

	// ErrLifecycleMisuse is returned when Run is called after shutdown,
	// or with a non-positive step count.
	ErrLifecycleMisuse = errors.New("scarab: invalid simulation lifecycle operation")

	// ErrUnknownEntity names the case of an entity ID the driver has
	// no record of. No driver operation returns it: DestroyEntity logs
	// an unknown id and returns nil.
	ErrUnknownEntity = errors.New("scarab: unknown entity id")
)
