package core

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Entity is implemented by every simulated object. Types normally get
// this by embedding Base, which supplies identity and the sender hook;
// the kind name is the one passed to NewBase.
type Entity interface {
	// ScarabID returns the engine-assigned identifier, empty until the
	// entity has been admitted by AddEntity.
	ScarabID() SimID
	// ScarabName returns the entity's kind name: the subject that
	// entity-lifecycle bindings subscribe to, and the kind_name in its
	// observable snapshot.
	ScarabName() string
	// setScarabID is unexported so that only code in this package (and
	// by embedding, the driver via idSetter) can assign an entity's id.
	setScarabID(id SimID)
}

// idSetter lets the driver assign an id to any Entity without a type
// switch, by relying on embedding's method promotion: Base.setScarabID
// is unexported to this package, so only core (and, through it, the
// driver, which imports this interface) can call it.
type idSetter interface {
	setScarabID(id SimID)
}

// SetID assigns id to e. Only the driver calls this, at admission time.
func SetID(e Entity, id SimID) {
	e.(idSetter).setScarabID(id)
}

// SchemaSource is implemented by entity types that declare a fixed set
// of observable field names. When present, the driver's admission check
// and the differ restrict themselves to exactly these fields instead of every exported
// field found by reflection, and admission fails with
// ErrSchemaViolation if any named field is absent.
type SchemaSource interface {
	ScarabSchema() []string
}

// Base is embedded by concrete entity types to satisfy Entity without
// boilerplate. The zero value is a valid, not-yet-admitted entity.
type Base struct {
	id     SimID
	name   string
	sender EventSender
}

// NewBase constructs a Base with the given logical name. ScarabName
// returns exactly this name; there is no fallback to the embedding
// type's Go type name, and the driver's AddEntity rejects an entity
// whose name is empty.
func NewBase(name string) Base {
	return Base{name: name}
}

func (b *Base) ScarabID() SimID     { return b.id }
func (b *Base) ScarabName() string  { return b.name }
func (b *Base) setScarabID(id SimID) { b.id = id }

// bindSender is called by the driver immediately after construction so
// that SendEvent has somewhere to deliver to. It is
// exported via the EventSenderBinder interface below rather than made
// part of Entity, since not every entity needs to originate events.
func (b *Base) bindSender(s EventSender) { b.sender = s }

// EventSenderBinder lets the driver attach itself to a Base-embedding
// entity without a type switch.
type EventSenderBinder interface {
	bindSender(s EventSender)
}

// BindSender attaches sender to e's embedded Base, if any.
func BindSender(e Entity, sender EventSender) {
	if b, ok := e.(EventSenderBinder); ok {
		b.bindSender(sender)
	}
}

// SendEvent pushes e onto the owning simulation's event stream. It is a
// no-op if the entity has not yet been bound to a sender (e.g. called
// from a constructor before AddEntity).
func (b *Base) SendEvent(e Event) {
	if b.sender != nil {
		b.sender.SendEvent(e)
	}
}

// ObservableFields returns the exported field values of e as a map from
// field name to its individually JSON-marshaled value, plus the
// identity fields kind_name and id so the snapshot is self-describing.
// When e declares a SchemaSource, only the named fields (plus
// kind_name/id) are included and an error wrapping ErrSchemaViolation is
// returned if any are missing; otherwise every exported struct field
// (besides the embedded Base) is included.
//
// Used by both the driver's admission check and the differ's
// snapshot/compare step, so that "what does this entity look like" has
// exactly one definition.
func ObservableFields(e Entity) (map[string]json.RawMessage, error) {
	v := reflect.ValueOf(e)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, fmt.Errorf("scarab: nil entity")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, fmt.Errorf("scarab: entity must be a struct, got %s", v.Kind())
	}

	all := make(map[string]json.RawMessage)
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type == reflect.TypeOf(Base{}) {
			continue
		}
		if !f.IsExported() {
			continue
		}
		raw, err := json.Marshal(v.Field(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("scarab: marshal field %q: %w", f.Name, err)
		}
		all[f.Name] = raw
	}

	var out map[string]json.RawMessage
	schemaSrc, hasSchema := e.(SchemaSource)
	if !hasSchema {
		out = all
	} else {
		schema := schemaSrc.ScarabSchema()
		out = make(map[string]json.RawMessage, len(schema))
		var missing []string
		for _, name := range schema {
			raw, ok := all[name]
			if !ok {
				missing = append(missing, name)
				continue
			}
			out[name] = raw
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("%w: %s missing fields %v", ErrSchemaViolation, e.ScarabName(), missing)
		}
	}

	nameRaw, err := json.Marshal(e.ScarabName())
	if err != nil {
		return nil, fmt.Errorf("scarab: marshal kind name: %w", err)
	}
	idRaw, err := json.Marshal(e.ScarabID())
	if err != nil {
		return nil, fmt.Errorf("scarab: marshal id: %w", err)
	}
	out["kind_name"] = nameRaw
	out["id"] = idRaw

	return out, nil
}
