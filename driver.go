package scarab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/billdback/scarab/internal/core"
	"github.com/billdback/scarab/internal/differ"
	"github.com/billdback/scarab/internal/metrics"
	"github.com/billdback/scarab/internal/queue"
	"github.com/billdback/scarab/internal/registry"
	"github.com/billdback/scarab/internal/router"
	"github.com/billdback/scarab/internal/sink"
)

// State is one of the driver's lifecycle states.
type State int

const (
	// StateNotStarted is the state between construction and the driver's
	// internal activity (sink listener, step loop) coming up. A Driver
	// never stays here past NewDriver returning.
	StateNotStarted State = iota
	// StatePaused is the state the driver sits in between bounded runs,
	// and the state Run leaves it in if startPaused is true.
	StatePaused
	// StateRunning is the state while the step loop is advancing the
	// clock.
	StateRunning
	// StateShuttingDown is terminal: once reached, Run always fails and
	// the step loop goroutine has exited or is about to.
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StatePaused:
		return "paused"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting-down"
	default:
		return "unknown"
	}
}

type controlKind int

const (
	ctrlPause controlKind = iota
	ctrlResume
	ctrlShutdown
)

const idleYield = 10 * time.Millisecond

// multiSink fans a single Send out to every non-nil sink it wraps,
// logging a failure from one without skipping the rest. Used when a
// Config supplies both the reference WebSocket sink and an EventLog
// hook.
type multiSink struct {
	log   *slog.Logger
	sinks []core.EventSink
}

func (m *multiSink) Send(e core.Event) error {
	for _, s := range m.sinks {
		if s == nil {
			continue
		}
		if err := s.Send(e); err != nil {
			m.log.Error("sink fault", "kind", e.EventKind(), "err", err)
		}
	}
	return nil
}

// Driver owns the clock, the live-entity set, the event queue, the
// handler registry, the router, and (optionally) a WebSocket sink. It
// is the only type application code constructs directly; entities,
// bindings, and events all flow through it.
type Driver struct {
	log *slog.Logger

	mu              sync.Mutex
	clock           int64
	state           State
	everStarted     bool
	runTo           int64
	runBounded      bool
	stepLength      time.Duration
	pendingBoundary chan struct{}
	live            map[core.SimID]core.Entity

	reg *registry.Registry
	q   *queue.Queue
	rt  *router.Router
	m   *metrics.Metrics

	promReg *prometheus.Registry

	wsSink  *sink.WSSink
	httpSrv *http.Server

	control      chan controlKind
	shutdownDone chan struct{}
}

// NewDriver constructs a Driver per cfg and starts its background
// activity: the reference WebSocket sink's HTTP listener (if
// cfg.SinkConfigured()) and the step loop goroutine, which idles in
// StatePaused until Run is called. log may be nil, in which case
// slog.Default() is used.
func NewDriver(cfg *Config, log *slog.Logger) (*Driver, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = slog.Default()
	}

	d := &Driver{
		log:          log,
		state:        StateNotStarted,
		live:         make(map[core.SimID]core.Entity),
		reg:          registry.New(log),
		q:            queue.New(),
		promReg:      prometheus.NewRegistry(),
		control:      make(chan controlKind, 16),
		shutdownDone: make(chan struct{}),
	}
	d.m = metrics.New(d.promReg)
	d.rt = router.New(log, nil)
	d.rt.SetReporter(d.m)

	if err := d.startSink(cfg); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.state = StatePaused
	d.mu.Unlock()

	go d.loop()

	return d, nil
}

// startSink wires the reference WebSocket sink (if configured) and the
// EventLog hook (if set) into the router, starting the sink's HTTP
// listener in the background.
func (d *Driver) startSink(cfg *Config) error {
	var sinks []core.EventSink

	if cfg.SinkConfigured() {
		d.wsSink = sink.New(d.log, d, d)
		mux := http.NewServeMux()
		mux.Handle("/", d.wsSink.Handler())
		addr := fmt.Sprintf("%s:%d", cfg.SinkHost, cfg.SinkPort)
		d.httpSrv = &http.Server{Addr: addr, Handler: mux}

		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("scarab: start sink listener: %w", err)
		}
		go func() {
			if err := d.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				d.log.Error("sink listener stopped", "err", err)
			}
		}()
		d.log.Info("sink listening", "addr", addr)
		sinks = append(sinks, d.wsSink)
	}

	if cfg.EventLog != nil {
		sinks = append(sinks, cfg.EventLog)
	}

	switch len(sinks) {
	case 0:
		// no sink configured; router forwards nowhere.
	case 1:
		d.rt.SetSink(sinks[0])
	default:
		d.rt.SetSink(&multiSink{log: d.log, sinks: sinks})
	}
	return nil
}

// State reports the driver's current lifecycle state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Clock reports the current simulation time.
func (d *Driver) Clock() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clock
}

// Run schedules steps simulation steps starting from the current
// clock. If startPaused is false, the driver transitions to running
// immediately (emitting SimulationStartEvent the first time the driver
// is ever run, SimulationResumeEvent on every run after a pause); if
// true, the driver stays paused until a Resume call arrives (directly
// or over the wire) and the bound is honored once it does. Run blocks
// the calling goroutine until the clock reaches the bound and the
// driver pauses again, or until the driver shuts down.
func (d *Driver) Run(steps int, stepLength time.Duration, startPaused bool) error {
	if steps <= 0 {
		return fmt.Errorf("%w: steps must be positive, got %d", core.ErrLifecycleMisuse, steps)
	}

	d.mu.Lock()
	if d.state == StateShuttingDown {
		d.mu.Unlock()
		return fmt.Errorf("%w: run called after shutdown", core.ErrLifecycleMisuse)
	}
	d.runTo = d.clock + int64(steps)
	d.runBounded = true
	d.stepLength = stepLength
	boundary := make(chan struct{}, 1)
	d.pendingBoundary = boundary
	d.mu.Unlock()

	if !startPaused {
		d.pushControl(ctrlResume)
	}

	select {
	case <-boundary:
		return nil
	case <-d.shutdownDone:
		return nil
	}
}

// Pause requests a transition to paused. It is a no-op if the driver
// is not currently running. The request is observed by the step loop
// at the top of one of its next two iterations, not synchronously.
func (d *Driver) Pause() { d.pushControl(ctrlPause) }

// Resume requests a transition to running. It is a no-op if the
// driver is already running or has shut down.
func (d *Driver) Resume() { d.pushControl(ctrlResume) }

// Shutdown requests a transition to shutting-down. It is a one-way
// door: once observed, the step loop exits and every subsequent Run
// call fails.
func (d *Driver) Shutdown() { d.pushControl(ctrlShutdown) }

func (d *Driver) pushControl(k controlKind) {
	select {
	case d.control <- k:
	default:
		d.log.Warn("control channel full, dropping request", "request", k)
	}
}

// AddEntity admits e to the simulation: it assigns e an id, binds e to
// the driver as its event sender, registers any handlers e declares,
// and schedules an EntityCreatedEvent for the next tick. It returns
// core.ErrSchemaViolation if e declares a schema it does not conform
// to.
func (d *Driver) AddEntity(e core.Entity) error {
	if e.ScarabName() == "" {
		return fmt.Errorf("%w: entity must have a non-empty name", core.ErrLifecycleMisuse)
	}

	id, err := newEntityID()
	if err != nil {
		return fmt.Errorf("scarab: generate entity id: %w", err)
	}
	core.SetID(e, id)
	core.BindSender(e, d)

	fields, err := core.ObservableFields(e)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.live[id] = e
	d.reg.Register(e)
	d.m.SetLiveEntities(len(d.live))
	ev := core.EntityCreatedEvent{
		EventHeader: core.EventHeader{Kind: core.KindEntityCreated, SimTime: d.clock + 1, Target: id},
		Subject:     e.ScarabName(),
		Entity:      fields,
	}
	putErr := d.q.Put(ev)
	d.mu.Unlock()

	return putErr
}

// DestroyEntity removes e from the simulation and schedules an
// EntityDestroyedEvent for the next tick, carrying e's observable
// snapshot as it was immediately before removal. An entity the driver
// has no record of (e.g. already destroyed) is logged and ignored.
func (d *Driver) DestroyEntity(e core.Entity) error {
	id := e.ScarabID()

	fields, err := core.ObservableFields(e)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if _, ok := d.live[id]; !ok {
		d.mu.Unlock()
		d.log.Warn("destroy_entity: unknown entity", "id", id)
		return nil
	}
	delete(d.live, id)
	d.reg.Unregister(id)
	d.m.SetLiveEntities(len(d.live))
	ev := core.EntityDestroyedEvent{
		EventHeader: core.EventHeader{Kind: core.KindEntityDestroyed, SimTime: d.clock + 1, Target: id},
		Subject:     e.ScarabName(),
		Entity:      fields,
	}
	putErr := d.q.Put(ev)
	d.mu.Unlock()

	return putErr
}

// SendEvent implements core.EventSender so that entities' Base.SendEvent
// calls reach the driver, and is also the public API application code
// uses to raise events directly. Events of an immediate kind are routed
// at the current clock value; everything else is admitted to the queue,
// defaulting to the next tick if the event's time was left unset (zero
// or negative).
func (d *Driver) SendEvent(e core.Event) {
	if core.ImmediateKinds[e.EventKind()] {
		d.routeOne(e)
		return
	}

	d.mu.Lock()
	next := d.clock + 1
	e = withDefaultTime(e, next)
	err := d.q.Put(e)
	d.mu.Unlock()

	if err != nil {
		d.log.Error("send_event rejected", "kind", e.EventKind(), "err", err)
	}
}

// withDefaultTime returns e with its SimTime set to t if e.EventTime()
// was left unset (<= 0). NamedEvent is the only type application code
// constructs itself and hands to SendEvent; the others are
// driver-constructed with an explicit time already.
func withDefaultTime(e core.Event, t int64) core.Event {
	if e.EventTime() > 0 {
		return e
	}
	switch v := e.(type) {
	case core.NamedEvent:
		v.SimTime = t
		return v
	case core.EntityCreatedEvent:
		v.SimTime = t
		return v
	case core.EntityChangedEvent:
		v.SimTime = t
		return v
	case core.EntityDestroyedEvent:
		v.SimTime = t
		return v
	default:
		return e
	}
}

// snapshotLiveEntities copies the current live-entity set under lock,
// for callers (the sink's on-connect replay) that must not race the
// step loop's own reads and writes of the map.
func (d *Driver) snapshotLiveEntities() []core.Entity {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]core.Entity, 0, len(d.live))
	for _, e := range d.live {
		out = append(out, e)
	}
	return out
}

// LiveEntityCreatedEvents implements sink.LiveLister: one
// EntityCreatedEvent per currently-live entity, timestamped at the
// current clock, for replay to a client that connects mid-run.
func (d *Driver) LiveEntityCreatedEvents() []core.EntityCreatedEvent {
	entities := d.snapshotLiveEntities()
	clock := d.Clock()
	out := make([]core.EntityCreatedEvent, 0, len(entities))
	for _, e := range entities {
		fields, err := core.ObservableFields(e)
		if err != nil {
			d.log.Error("replay snapshot failed", "entity", e.ScarabName(), "id", e.ScarabID(), "err", err)
			continue
		}
		out = append(out, core.EntityCreatedEvent{
			EventHeader: core.EventHeader{Kind: core.KindEntityCreated, SimTime: clock, Target: e.ScarabID()},
			Subject:     e.ScarabName(),
			Entity:      fields,
		})
	}
	return out
}

// Close shuts down the driver's background HTTP listener, if any. It
// does not itself request a simulation shutdown; call Shutdown for
// that.
func (d *Driver) Close(ctx context.Context) error {
	if d.httpSrv == nil {
		return nil
	}
	return d.httpSrv.Shutdown(ctx)
}

func (d *Driver) routeOne(e core.Event) {
	d.rt.Route(d.reg, e)
}

// loop is the driver's single background activity: it drains pending
// control requests, advances the clock while running, and idles while
// paused, until a shutdown request is observed.
func (d *Driver) loop() {
	for {
		d.drainControl()

		d.mu.Lock()
		state := d.state
		d.mu.Unlock()
		if state == StateShuttingDown {
			close(d.shutdownDone)
			return
		}

		d.mu.Lock()
		running := d.state == StateRunning
		boundaryHit := d.runBounded && d.clock >= d.runTo
		d.mu.Unlock()

		if running && boundaryHit {
			d.doPause()
			d.mu.Lock()
			boundary := d.pendingBoundary
			d.pendingBoundary = nil
			d.runBounded = false
			d.mu.Unlock()
			if boundary != nil {
				select {
				case boundary <- struct{}{}:
				default:
				}
			}
			continue
		}

		if !running {
			time.Sleep(idleYield)
			continue
		}

		d.mu.Lock()
		stepLen := d.stepLength
		d.mu.Unlock()

		start := time.Now()
		d.doStep()
		if stepLen > 0 {
			if elapsed := time.Since(start); elapsed < stepLen {
				time.Sleep(stepLen - elapsed)
			}
		}
	}
}

func (d *Driver) drainControl() {
	for {
		select {
		case c := <-d.control:
			switch c {
			case ctrlPause:
				d.doPause()
			case ctrlResume:
				d.doResume()
			case ctrlShutdown:
				d.doShutdown()
			}
		default:
			return
		}
	}
}

// doPause transitions running -> paused, emitting SimulationPauseEvent
// at the current clock before the state changes so handlers observe
// "still running" while reacting to the pause notice.
func (d *Driver) doPause() {
	d.mu.Lock()
	if d.state != StateRunning {
		d.mu.Unlock()
		return
	}
	now := d.clock
	d.mu.Unlock()

	d.routeOne(core.SimulationPauseEvent{EventHeader: core.EventHeader{Kind: core.KindSimPause, SimTime: now}})

	d.mu.Lock()
	d.state = StatePaused
	d.mu.Unlock()
}

// doResume transitions paused -> running. The first time any driver is
// ever resumed (clock still at zero and no prior start), it emits
// SimulationStartEvent; every later paused -> running transition emits
// SimulationResumeEvent instead.
func (d *Driver) doResume() {
	d.mu.Lock()
	if d.state == StateRunning || d.state == StateShuttingDown {
		d.mu.Unlock()
		return
	}
	now := d.clock
	firstStart := !d.everStarted && now == 0
	d.mu.Unlock()

	var ev core.Event
	if firstStart {
		ev = core.SimulationStartEvent{EventHeader: core.EventHeader{Kind: core.KindSimStart, SimTime: now}}
	} else {
		ev = core.SimulationResumeEvent{EventHeader: core.EventHeader{Kind: core.KindSimResume, SimTime: now}}
	}
	d.routeOne(ev)

	d.mu.Lock()
	d.state = StateRunning
	d.everStarted = true
	d.mu.Unlock()
}

// doShutdown transitions to shutting-down. It is idempotent: once the
// driver has shut down, later calls are no-ops.
func (d *Driver) doShutdown() {
	d.mu.Lock()
	if d.state == StateShuttingDown {
		d.mu.Unlock()
		return
	}
	now := d.clock
	d.mu.Unlock()

	d.routeOne(core.SimulationShutdownEvent{EventHeader: core.EventHeader{Kind: core.KindSimShutdown, SimTime: now}})

	d.mu.Lock()
	d.state = StateShuttingDown
	d.mu.Unlock()
}

// doStep advances the clock by one tick: it routes TimeUpdatedEvent,
// drains and routes every queued event due at the new clock, then
// diffs every live entity against its pre-step snapshot and enqueues
// an EntityChangedEvent for the next tick for any that changed. Per
// the design notes, changes synthesized by handlers reacting to events
// within this same step are not re-diffed until the following step.
func (d *Driver) doStep() {
	d.mu.Lock()
	prev := d.clock
	d.clock++
	now := d.clock
	d.m.IncClockTick()
	d.mu.Unlock()

	tu, err := core.NewTimeUpdatedEvent(now, prev)
	if err != nil {
		d.log.Error("time updated event construction failed", "err", err)
		return
	}
	d.routeOne(tu)

	d.mu.Lock()
	before := make(map[core.SimID]differ.Snapshot, len(d.live))
	entities := make(map[core.SimID]core.Entity, len(d.live))
	for id, e := range d.live {
		snap, err := differ.Take(e)
		if err != nil {
			d.log.Error("pre-step snapshot failed", "id", id, "err", err)
			continue
		}
		before[id] = snap
		entities[id] = e
	}
	d.mu.Unlock()

	d.mu.Lock()
	var due []core.Event
	if t, ok := d.q.NextTime(); ok && t == now {
		_, due, _ = d.q.TakeNext()
	}
	d.mu.Unlock()
	for _, ev := range due {
		d.routeOne(ev)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for id, e := range entities {
		after, err := differ.Take(e)
		if err != nil {
			d.log.Error("post-step snapshot failed", "id", id, "err", err)
			continue
		}
		changed, hasChange := differ.Compare(before[id], after)
		if !hasChange {
			continue
		}
		ev := core.EntityChangedEvent{
			EventHeader: core.EventHeader{Kind: core.KindEntityChanged, SimTime: d.clock + 1, Target: id},
			Subject:     e.ScarabName(),
			Entity:      after,
			Changed:     changed,
		}
		if err := d.q.Put(ev); err != nil {
			d.log.Error("enqueue entity changed event failed", "id", id, "err", err)
		}
	}
}

func newEntityID() (core.SimID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String(), nil
	}
	return id.String(), nil
}
