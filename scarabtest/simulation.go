// Package scarabtest provides a synchronous stand-in for scarab.Driver,
// intended for unit-testing entities in isolation: add entities, route
// events one at a time, and inspect the result, with no clock, no step
// loop, and no sink.
package scarabtest

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/billdback/scarab/internal/core"
	"github.com/billdback/scarab/internal/registry"
	"github.com/billdback/scarab/internal/router"
)

// Simulation is a minimal, synchronous harness for entity-level tests.
// Every method call takes effect immediately on the calling goroutine;
// there is no background activity to race against.
type Simulation struct {
	log *slog.Logger
	reg *registry.Registry
	rt  *router.Router
}

// New returns an empty Simulation. A discard logger is used unless one
// is supplied via WithLogger.
func New() *Simulation {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &Simulation{
		log: log,
		reg: registry.New(log),
		rt:  router.New(log, nil),
	}
}

// WithLogger replaces the harness's logger, e.g. to surface registry
// warnings (skipped bindings) during a failing test.
func (s *Simulation) WithLogger(log *slog.Logger) *Simulation {
	s.log = log
	s.reg = registry.New(log)
	s.rt = router.New(log, nil)
	return s
}

// AddID assigns a fresh id to e without registering it or routing an
// ENTITY_CREATED event, for entities referenced by another entity's
// handler but never themselves added to the simulation.
func AddID(e core.Entity) core.Entity {
	id, err := uuid.NewV7()
	if err != nil {
		core.SetID(e, uuid.New().String())
		return e
	}
	core.SetID(e, id.String())
	return e
}

// AddEntity assigns e an id, registers its bindings, binds e to s as
// its event sender, and synchronously routes the resulting
// ENTITY_CREATED event.
func (s *Simulation) AddEntity(e core.Entity) error {
	AddID(e)
	core.BindSender(e, s)
	s.reg.Register(e)

	fields, err := core.ObservableFields(e)
	if err != nil {
		return err
	}
	s.Route(core.EntityCreatedEvent{
		EventHeader: core.EventHeader{Kind: core.KindEntityCreated, Target: e.ScarabID()},
		Subject:     e.ScarabName(),
		Entity:      fields,
	})
	return nil
}

// Route synchronously delivers e to every bound handler, applying the
// same self-notification filter and fault isolation scarab.Driver uses.
func (s *Simulation) Route(e core.Event) {
	s.rt.Route(s.reg, e)
}

// SendEvent implements core.EventSender so that entities added to a
// Simulation can call Base.SendEvent from their handlers; it is
// equivalent to Route.
func (s *Simulation) SendEvent(e core.Event) {
	s.Route(e)
}

// SendEntityCreatedEvent routes an ENTITY_CREATED event for e as if it
// had just been admitted, without assigning it an id or registering
// its bindings. Useful for entities the test constructs by hand to
// stand in for another entity's creation.
func (s *Simulation) SendEntityCreatedEvent(e core.Entity) error {
	fields, err := core.ObservableFields(e)
	if err != nil {
		return err
	}
	s.Route(core.EntityCreatedEvent{
		EventHeader: core.EventHeader{Kind: core.KindEntityCreated, Target: e.ScarabID()},
		Subject:     e.ScarabName(),
		Entity:      fields,
	})
	return nil
}

// SendEntityChangedEvent routes an ENTITY_CHANGED event carrying e's
// current observable snapshot plus changed, the field deltas, each of
// which is marshaled to JSON here.
func (s *Simulation) SendEntityChangedEvent(e core.Entity, changed map[string]interface{}) error {
	fields, err := core.ObservableFields(e)
	if err != nil {
		return err
	}
	raw, err := marshalAll(changed)
	if err != nil {
		return err
	}
	s.Route(core.EntityChangedEvent{
		EventHeader: core.EventHeader{Kind: core.KindEntityChanged, Target: e.ScarabID()},
		Subject:     e.ScarabName(),
		Entity:      fields,
		Changed:     raw,
	})
	return nil
}

// SendEntityDestroyedEvent routes an ENTITY_DESTROYED event for e,
// carrying its observable snapshot as it was immediately before
// removal.
func (s *Simulation) SendEntityDestroyedEvent(e core.Entity) error {
	fields, err := core.ObservableFields(e)
	if err != nil {
		return err
	}
	s.Route(core.EntityDestroyedEvent{
		EventHeader: core.EventHeader{Kind: core.KindEntityDestroyed, Target: e.ScarabID()},
		Subject:     e.ScarabName(),
		Entity:      fields,
	})
	return nil
}

// SendSimulationStartEvent routes a SIM_START event at simTime.
func (s *Simulation) SendSimulationStartEvent(simTime int64) {
	s.Route(core.SimulationStartEvent{EventHeader: core.EventHeader{Kind: core.KindSimStart, SimTime: simTime}})
}

// SendSimulationPauseEvent routes a SIM_PAUSE event at simTime.
func (s *Simulation) SendSimulationPauseEvent(simTime int64) {
	s.Route(core.SimulationPauseEvent{EventHeader: core.EventHeader{Kind: core.KindSimPause, SimTime: simTime}})
}

// SendSimulationResumeEvent routes a SIM_RESUME event at simTime.
func (s *Simulation) SendSimulationResumeEvent(simTime int64) {
	s.Route(core.SimulationResumeEvent{EventHeader: core.EventHeader{Kind: core.KindSimResume, SimTime: simTime}})
}

// SendSimulationShutdownEvent routes a SIM_SHUTDOWN event at simTime.
func (s *Simulation) SendSimulationShutdownEvent(simTime int64) {
	s.Route(core.SimulationShutdownEvent{EventHeader: core.EventHeader{Kind: core.KindSimShutdown, SimTime: simTime}})
}

// SendTimeUpdatedEvent routes a TIME_UPDATED event. If prevTime is
// negative, it defaults to simTime-1.
func (s *Simulation) SendTimeUpdatedEvent(simTime, prevTime int64) error {
	if prevTime < 0 {
		prevTime = simTime - 1
	}
	ev, err := core.NewTimeUpdatedEvent(simTime, prevTime)
	if err != nil {
		return err
	}
	s.Route(ev)
	return nil
}

func marshalAll(m map[string]interface{}) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("scarabtest: marshal field %q: %w", k, err)
		}
		out[k] = raw
	}
	return out, nil
}
