// Package router delivers events to the handlers bound in the registry
// and forwards every delivered event to an external sink, isolating the
// rest of the simulation from a faulting handler or sink.
package router

import (
	"log/slog"
	"sync"

	"github.com/billdback/scarab/internal/core"
	"github.com/billdback/scarab/internal/registry"
)

// Handlers is the subset of *registry.Registry the router needs. It is
// expressed as an interface so router tests can supply a fake.
type Handlers interface {
	HandlersFor(kind core.Kind, subject string) []registry.Subscriber
}

// Reporter receives counts at the same points the router logs faults
// and forwards events, so a driver can keep Prometheus collectors in
// step with the router's own bookkeeping without the router importing
// the metrics package directly.
type Reporter interface {
	IncEventRouted(kind string)
	IncHandlerFault()
}

// Router dispatches events synchronously to bound handlers and forwards
// them to a sink: on the calling goroutine via Route, or on a
// background goroutine via RouteAsync.
type Router struct {
	log      *slog.Logger
	sink     core.EventSink
	sinkMu   sync.Mutex
	reporter Reporter
}

// New returns a Router that logs faults via log and forwards delivered
// events to sink. sink may be nil, in which case forwarding is skipped.
func New(log *slog.Logger, sink core.EventSink) *Router {
	return &Router{log: log, sink: sink}
}

// SetReporter attaches a metrics reporter. reporter may be nil to
// disable reporting.
func (r *Router) SetReporter(reporter Reporter) {
	r.reporter = reporter
}

// SetSink replaces the router's sink, e.g. once a WebSocket server has
// finished binding its listener.
func (r *Router) SetSink(sink core.EventSink) {
	r.sinkMu.Lock()
	defer r.sinkMu.Unlock()
	r.sink = sink
}

// subjectOf returns the dispatch subject for e: the Name of a
// core.NamedEvent, the entity kind name for the three entity-lifecycle
// events, or "" for every other kind.
func subjectOf(e core.Event) string {
	switch v := e.(type) {
	case core.NamedEvent:
		return v.Name
	case core.EntityCreatedEvent:
		return v.Subject
	case core.EntityChangedEvent:
		return v.Subject
	case core.EntityDestroyedEvent:
		return v.Subject
	default:
		return ""
	}
}

// Route delivers e to every bound handler for its kind, applying the
// self-notification filter for entity-lifecycle events (an entity never
// receives notice of its own creation, change, or destruction), then
// forwards e to the sink. A handler that panics is recovered, logged,
// and does not prevent delivery to the remaining handlers.
func (r *Router) Route(handlers Handlers, e core.Event) {
	subs := handlers.HandlersFor(e.EventKind(), subjectOf(e))
	selfExcluding := isLifecycleKind(e.EventKind())

	for _, sub := range subs {
		if selfExcluding && sub.OwnerID != "" && sub.OwnerID == e.TargetID() {
			continue
		}
		r.deliver(sub, e)
	}

	r.forward(e)

	if r.reporter != nil {
		r.reporter.IncEventRouted(string(e.EventKind()))
	}
}

func isLifecycleKind(k core.Kind) bool {
	switch k {
	case core.KindEntityCreated, core.KindEntityChanged, core.KindEntityDestroyed:
		return true
	default:
		return false
	}
}

func (r *Router) deliver(sub registry.Subscriber, e core.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("handler fault", "owner", sub.OwnerID, "kind", e.EventKind(), "panic", rec)
			if r.reporter != nil {
				r.reporter.IncHandlerFault()
			}
		}
	}()
	sub.Handle(sub.OwnerID, e)
}

func (r *Router) forward(e core.Event) {
	r.sinkMu.Lock()
	sink := r.sink
	r.sinkMu.Unlock()
	if sink == nil {
		return
	}
	if err := sink.Send(e); err != nil {
		r.log.Error("sink fault", "kind", e.EventKind(), "err", err)
	}
}

// RouteAsync delivers e to its bound handlers synchronously on the
// calling goroutine, with the same self-notification filter and fault
// isolation as Route, then forwards e to the sink on its own goroutine
// so a slow sink does not block the caller. wg, if non-nil, is marked
// Done when forwarding completes, so callers that need to know when an
// in-flight batch has drained may wait on it.
func (r *Router) RouteAsync(handlers Handlers, e core.Event, wg *sync.WaitGroup) {
	subs := handlers.HandlersFor(e.EventKind(), subjectOf(e))
	selfExcluding := isLifecycleKind(e.EventKind())
	for _, sub := range subs {
		if selfExcluding && sub.OwnerID != "" && sub.OwnerID == e.TargetID() {
			continue
		}
		r.deliver(sub, e)
	}

	if wg != nil {
		wg.Add(1)
	}
	go func() {
		if wg != nil {
			defer wg.Done()
		}
		r.forward(e)
		if r.reporter != nil {
			r.reporter.IncEventRouted(string(e.EventKind()))
		}
	}()
}
