// Package differ computes entity-changed deltas by snapshotting an
// entity's observable fields before and after a step and comparing them
// structurally.
package differ

import (
	"bytes"
	"encoding/json"

	"github.com/billdback/scarab/internal/core"
)

// Snapshot is a point-in-time copy of an entity's observable fields,
// each already individually JSON-marshaled. Because it is built through
// core.ObservableFields, taking a Snapshot doubles as a deep copy: later
// mutation of the live entity cannot affect a Snapshot already taken.
type Snapshot map[string]json.RawMessage

// Take captures e's current observable fields. Returns
// core.ErrSchemaViolation if e declares a schema it does not conform to.
func Take(e core.Entity) (Snapshot, error) {
	fields, err := core.ObservableFields(e)
	if err != nil {
		return nil, err
	}
	return Snapshot(fields), nil
}

// Compare returns the subset of fields that differ between before and
// after: a field present in after but absent (or differently valued) in
// before is included with after's value; a field present only in before
// is included with a JSON null, signaling removal. An empty, non-nil
// map means no change. ok is false when before and after are identical,
// sparing the caller from emitting a no-op EntityChangedEvent.
func Compare(before, after Snapshot) (changed map[string]json.RawMessage, ok bool) {
	changed = make(map[string]json.RawMessage)
	for name, afterVal := range after {
		beforeVal, existed := before[name]
		if !existed || !bytes.Equal(beforeVal, afterVal) {
			changed[name] = afterVal
		}
	}
	for name := range before {
		if _, stillThere := after[name]; !stillThere {
			changed[name] = json.RawMessage("null")
		}
	}
	return changed, len(changed) > 0
}
