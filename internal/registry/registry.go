// Package registry builds and holds the engine's handler dispatch
// tables. Entities are admitted once and their bindings fanned out into
// per-kind (and, for named and entity-lifecycle events, per-subject)
// tables that the router consults on every delivery.
package registry

import (
	"log/slog"

	"github.com/billdback/scarab/internal/core"
)

// entry pairs a bound handler with the id of the entity that owns it,
// so the router can apply the self-notification filter and Unregister
// can find everything belonging to one entity.
type entry struct {
	ownerID core.SimID
	handle  core.HandlerFunc
}

// subjectKey indexes the subject-scoped dispatch table: a Named event's
// name, or the entity kind name an entity-lifecycle binding subscribes
// to.
type subjectKey struct {
	kind    core.Kind
	subject string
}

// hasSubject reports whether kind is dispatched by (kind, subject) pair
// rather than by kind alone.
func hasSubject(kind core.Kind) bool {
	switch kind {
	case core.KindNamed, core.KindEntityCreated, core.KindEntityChanged, core.KindEntityDestroyed:
		return true
	default:
		return false
	}
}

// Registry holds every live entity's bindings, indexed for dispatch.
// It is not safe for concurrent use; the driver owns it.
type Registry struct {
	log *slog.Logger

	byKind    map[core.Kind][]entry
	bySubject map[subjectKey][]entry
}

// New returns an empty Registry. log must not be nil.
func New(log *slog.Logger) *Registry {
	return &Registry{
		log:       log,
		byKind:    make(map[core.Kind][]entry),
		bySubject: make(map[subjectKey][]entry),
	}
}

// Register admits e's bindings, if any, into the dispatch tables. e
// need not implement core.HandlerSource; entities with no bindings are
// simply not added to any table. A binding of a subject-scoped kind
// (KindNamed, or one of the three entity-lifecycle kinds) with an empty
// Subject is skipped with a warning, since the registry has no way to
// dispatch it.
func (r *Registry) Register(e core.Entity) {
	src, ok := e.(core.HandlerSource)
	if !ok {
		return
	}
	for _, b := range src.ScarabHandlers() {
		if b.Handle == nil {
			r.log.Warn("skipping binding with nil handler", "entity", e.ScarabName(), "id", e.ScarabID(), "kind", b.Kind)
			continue
		}
		if hasSubject(b.Kind) {
			if b.Subject == "" {
				r.log.Warn("skipping subject-scoped binding with no subject", "entity", e.ScarabName(), "id", e.ScarabID(), "kind", b.Kind)
				continue
			}
			key := subjectKey{kind: b.Kind, subject: b.Subject}
			r.bySubject[key] = append(r.bySubject[key], entry{ownerID: e.ScarabID(), handle: b.Handle})
			continue
		}
		r.byKind[b.Kind] = append(r.byKind[b.Kind], entry{ownerID: e.ScarabID(), handle: b.Handle})
	}
}

// Unregister removes every binding belonging to id. Unknown ids are a
// no-op, matching the driver's log-and-ignore handling of destroying an
// entity it has no record of.
func (r *Registry) Unregister(id core.SimID) {
	for k, entries := range r.byKind {
		r.byKind[k] = filterOut(entries, id)
	}
	for k, entries := range r.bySubject {
		r.bySubject[k] = filterOut(entries, id)
	}
}

func filterOut(entries []entry, id core.SimID) []entry {
	if len(entries) == 0 {
		return entries
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.ownerID != id {
			kept = append(kept, e)
		}
	}
	return kept
}

// Subscriber is one handler bound to receive a delivery, along with the
// id of the entity that owns it (used by the router's self-notification
// filter).
type Subscriber struct {
	OwnerID core.SimID
	Handle  core.HandlerFunc
}

// HandlersFor returns every subscriber bound to kind. For a
// subject-scoped kind (KindNamed, or one of the three entity-lifecycle
// kinds), subject selects which bucket to return: the named event's
// name, or the entity kind name being created/changed/destroyed.
func (r *Registry) HandlersFor(kind core.Kind, subject string) []Subscriber {
	var entries []entry
	if hasSubject(kind) {
		entries = r.bySubject[subjectKey{kind: kind, subject: subject}]
	} else {
		entries = r.byKind[kind]
	}
	out := make([]Subscriber, len(entries))
	for i, e := range entries {
		out[i] = Subscriber{OwnerID: e.ownerID, Handle: e.handle}
	}
	return out
}
