package core

// HandlerFunc is the shape every bound handler takes: the event that
// triggered it and the id of the entity it was bound to.
type HandlerFunc func(self SimID, e Event)

// Binding ties one event Kind to a closure over the entity that
// registered it, optionally scoped by Subject: the event name for
// KindNamed, or the entity kind name being created/changed/destroyed
// for the three entity-lifecycle kinds. Subject is unused for every
// other kind. Entity types build their own []Binding rather than have
// the registry discover decorated methods by reflection.
type Binding struct {
	Kind    Kind
	Subject string
	Handle  HandlerFunc
}

// HandlerSource is implemented by entity types that want to receive
// events. Base does not implement it; entities opt in by defining
// ScarabHandlers themselves.
type HandlerSource interface {
	ScarabHandlers() []Binding
}

// BindingBuilder accumulates Bindings with a fluent API, intended to be
// used from an entity's ScarabHandlers method:
//
//	func (r *Room) ScarabHandlers() []core.Binding {
//	    return core.NewBindings().
//	        OnEntityCreated("visitor", r.onVisitorEntered).
//	        OnNamed("door.opened", r.onDoorOpened).
//	        Build()
//	}
type BindingBuilder struct {
	bindings []Binding
}

// NewBindings starts an empty BindingBuilder.
func NewBindings() *BindingBuilder {
	return &BindingBuilder{}
}

// OnEntityCreated binds a handler to ENTITY_CREATED events for entities
// of the given kind name, e.g. "bee". subject must be non-empty; the
// registry rejects entity-lifecycle bindings with no subject.
func (b *BindingBuilder) OnEntityCreated(subject string, h HandlerFunc) *BindingBuilder {
	b.bindings = append(b.bindings, Binding{Kind: KindEntityCreated, Subject: subject, Handle: h})
	return b
}

// OnEntityChanged binds a handler to ENTITY_CHANGED events for entities
// of the given kind name.
func (b *BindingBuilder) OnEntityChanged(subject string, h HandlerFunc) *BindingBuilder {
	b.bindings = append(b.bindings, Binding{Kind: KindEntityChanged, Subject: subject, Handle: h})
	return b
}

// OnEntityDestroyed binds a handler to ENTITY_DESTROYED events for
// entities of the given kind name.
func (b *BindingBuilder) OnEntityDestroyed(subject string, h HandlerFunc) *BindingBuilder {
	b.bindings = append(b.bindings, Binding{Kind: KindEntityDestroyed, Subject: subject, Handle: h})
	return b
}

func (b *BindingBuilder) OnTimeUpdated(h HandlerFunc) *BindingBuilder {
	b.bindings = append(b.bindings, Binding{Kind: KindTimeUpdated, Handle: h})
	return b
}

func (b *BindingBuilder) OnSimulationStart(h HandlerFunc) *BindingBuilder {
	b.bindings = append(b.bindings, Binding{Kind: KindSimStart, Handle: h})
	return b
}

func (b *BindingBuilder) OnSimulationPause(h HandlerFunc) *BindingBuilder {
	b.bindings = append(b.bindings, Binding{Kind: KindSimPause, Handle: h})
	return b
}

func (b *BindingBuilder) OnSimulationResume(h HandlerFunc) *BindingBuilder {
	b.bindings = append(b.bindings, Binding{Kind: KindSimResume, Handle: h})
	return b
}

func (b *BindingBuilder) OnSimulationShutdown(h HandlerFunc) *BindingBuilder {
	b.bindings = append(b.bindings, Binding{Kind: KindSimShutdown, Handle: h})
	return b
}

// OnNamed binds a handler to a specific named event. subject must be
// non-empty; the registry rejects named bindings with no subject.
func (b *BindingBuilder) OnNamed(subject string, h HandlerFunc) *BindingBuilder {
	b.bindings = append(b.bindings, Binding{Kind: KindNamed, Subject: subject, Handle: h})
	return b
}

// Build returns the accumulated bindings.
func (b *BindingBuilder) Build() []Binding {
	return b.bindings
}
