package model

import (
	"context"
	"fmt"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/description"
)

// capability contributes one attribute group to an entity. The capabilities
// table fixes the order in which groups are merged.
type capability struct {
	flag Capability

	// init reads the group's fields from the construction description.
	init func(e *Entity, desc description.EntityDescription) error

	// dump adds the group's current fields to out.
	dump func(e *Entity, out map[string]any)

	// changes adds fields that differ from the construction description.
	changes func(e *Entity, out map[string]any) error

	// prepare validates the group's fields in state and returns a function
	// applying them and recording changed fields, or nil if state has none.
	// apply runs with e.mu held.
	prepare func(e *Entity, state map[string]any) (apply func(changed map[string]any), err error)
}

var capabilities = []capability{
	{
		flag:    CapAccess,
		init:    initAccess,
		dump:    dumpAccess,
		changes: accessChanges,
		prepare: prepareAccess,
	},
	{
		flag:    CapAvailable,
		init:    initAvailable,
		dump:    dumpAvailable,
		changes: availableChanges,
		prepare: prepareAvailable,
	},
	{
		flag:    CapRange,
		init:    initRange,
		dump:    dumpRange,
		changes: rangeChanges,
		prepare: prepareRange,
	},
}

// Access

func initAccess(e *Entity, desc description.EntityDescription) error {
	if desc.Access == nil {
		return nil
	}
	a, err := ParseAccess(*desc.Access)
	if err != nil {
		return err
	}
	e.access = &a
	return nil
}

func dumpAccess(e *Entity, out map[string]any) {
	if e.access == nil {
		out["access"] = nil
		return
	}
	out["access"] = e.access.String()
}

func accessChanges(e *Entity, out map[string]any) error {
	var declared *Access
	if e.desc.Access != nil {
		a, err := ParseAccess(*e.desc.Access)
		if err != nil {
			return err
		}
		declared = &a
	}
	switch {
	case e.access == nil:
		if declared != nil {
			out["access"] = nil
		}
	case declared == nil || *declared != *e.access:
		out["access"] = e.access.String()
	}
	return nil
}

func prepareAccess(e *Entity, state map[string]any) (func(map[string]any), error) {
	raw, ok := state["access"]
	if !ok {
		return nil, nil
	}
	if raw == nil {
		return func(changed map[string]any) {
			if e.access == nil {
				return
			}
			e.access = nil
			changed["access"] = nil
		}, nil
	}
	a, err := ParseAccess(raw)
	if err != nil {
		return nil, err
	}
	return func(changed map[string]any) {
		if e.access != nil && *e.access == a {
			return
		}
		e.access = &a
		changed["access"] = a.String()
	}, nil
}

// Available

func initAvailable(e *Entity, desc description.EntityDescription) error {
	if desc.Available != nil {
		v := *desc.Available
		e.available = &v
		return nil
	}
	e.available = e.kind.defaultAvailable()
	return nil
}

func dumpAvailable(e *Entity, out map[string]any) {
	if e.available == nil {
		out["available"] = nil
		return
	}
	out["available"] = *e.available
}

func availableChanges(e *Entity, out map[string]any) error {
	declared := e.desc.Available
	switch {
	case e.available == nil:
		if declared != nil {
			out["available"] = nil
		}
	case declared == nil || *declared != *e.available:
		out["available"] = *e.available
	}
	return nil
}

func prepareAvailable(e *Entity, state map[string]any) (func(map[string]any), error) {
	raw, ok := state["available"]
	if !ok {
		return nil, nil
	}
	if raw == nil {
		return func(changed map[string]any) {
			if e.available == nil {
				return
			}
			e.available = nil
			changed["available"] = nil
		}, nil
	}
	v, err := coerceBool(raw)
	if err != nil || v == nil {
		return nil, fmt.Errorf("%w: available %v", ErrInvalidValue, raw)
	}
	available := v.(bool)
	return func(changed map[string]any) {
		if e.available != nil && *e.available == available {
			return
		}
		e.available = &available
		changed["available"] = available
	}, nil
}

// Range

func initRange(e *Entity, desc description.EntityDescription) error {
	var err error
	if e.min, err = e.coerce(desc.Min); err != nil {
		return fmt.Errorf("min: %w", err)
	}
	if e.max, err = e.coerce(desc.Max); err != nil {
		return fmt.Errorf("max: %w", err)
	}
	if e.step, err = e.coerce(desc.StepSize); err != nil {
		return fmt.Errorf("stepSize: %w", err)
	}
	return nil
}

func dumpRange(e *Entity, out map[string]any) {
	out["min"] = e.min
	out["max"] = e.max
	out["step"] = e.step
}

func rangeChanges(e *Entity, out map[string]any) error {
	bounds := []struct {
		key      string
		current  any
		declared any
	}{
		{"min", e.min, e.desc.Min},
		{"max", e.max, e.desc.Max},
		{"stepSize", e.step, e.desc.StepSize},
	}
	for _, b := range bounds {
		declared, err := e.coerce(b.declared)
		if err != nil {
			return err
		}
		if !valuesEqual(b.current, declared) {
			out[b.key] = b.current
		}
	}
	return nil
}

func prepareRange(e *Entity, state map[string]any) (func(map[string]any), error) {
	type update struct {
		key   string
		field *any
		value any
	}
	var updates []update

	stepKey := "stepSize"
	if _, ok := state[stepKey]; !ok {
		stepKey = "step"
	}
	for _, f := range []struct {
		key   string
		field *any
	}{
		{"min", &e.min},
		{"max", &e.max},
		{stepKey, &e.step},
	} {
		raw, ok := state[f.key]
		if !ok {
			continue
		}
		v, err := e.coerce(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.key, err)
		}
		updates = append(updates, update{key: f.key, field: f.field, value: v})
	}
	if len(updates) == 0 {
		return nil, nil
	}

	return func(changed map[string]any) {
		for _, u := range updates {
			if valuesEqual(*u.field, u.value) {
				continue
			}
			*u.field = u.value
			key := u.key
			if key == "step" {
				key = "stepSize"
			}
			changed[key] = u.value
		}
	}, nil
}

// SetState applies an admin edit. Capability fields (access, available, min,
// max, step or stepSize) and an optional "value_raw" or display "value" are
// validated first; nothing is changed if any of them is invalid. A value
// change is broadcast as usual, then changed capabilities are broadcast as a
// single NOTIFY on /ro/descriptionChange. Fields the entity's kind does not
// carry are ignored.
func (e *Entity) SetState(ctx context.Context, state map[string]any) error {
	caps := e.kind.Capabilities()

	var applies []func(map[string]any)
	for _, c := range capabilities {
		if !caps.Has(c.flag) {
			continue
		}
		apply, err := c.prepare(e, state)
		if err != nil {
			return fmt.Errorf("entity %d (%s): %w", e.uid, e.name, err)
		}
		if apply != nil {
			applies = append(applies, apply)
		}
	}

	var newValue any
	hasValue := false
	if raw, ok := state["value_raw"]; ok && raw != nil {
		v, err := e.coerce(raw)
		if err != nil {
			return fmt.Errorf("entity %d (%s): %w", e.uid, e.name, err)
		}
		newValue, hasValue = v, true
	} else if display, ok := state["value"]; ok && display != nil {
		raw, err := e.rawFromDisplay(display)
		if err != nil {
			return err
		}
		v, err := e.coerce(raw)
		if err != nil {
			return fmt.Errorf("entity %d (%s): %w", e.uid, e.name, err)
		}
		newValue, hasValue = v, true
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	changed := make(map[string]any)
	valueChanged := false
	e.mu.Lock()
	for _, apply := range applies {
		apply(changed)
	}
	if hasValue && !valuesEqual(e.value, newValue) {
		e.value = newValue
		valueChanged = true
	}
	e.mu.Unlock()

	if valueChanged {
		e.broadcast(ctx, ResourceValues, map[string]any{"uid": e.uid, "value": newValue})
	}
	if len(changed) > 0 {
		changed["uid"] = e.uid
		e.broadcast(ctx, ResourceDescriptionChange, changed)
	}
	return nil
}

// DescriptionChanges returns {"uid": uid} plus every capability field whose
// current value differs from the construction description.
func (e *Entity) DescriptionChanges() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := map[string]any{"uid": e.uid}
	caps := e.kind.Capabilities()
	for _, c := range capabilities {
		if !caps.Has(c.flag) {
			continue
		}
		if err := c.changes(e, out); err != nil {
			// Declared fields were validated at construction.
			e.logger.Warn("description change diff failed", "uid", e.uid, "error", err)
		}
	}
	return out
}

// Dump returns the externally visible state of the entity.
func (e *Entity) Dump() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var enum map[int64]string
	if e.enum != nil {
		enum = make(map[int64]string, len(e.enum))
		for k, v := range e.enum {
			enum[k] = v
		}
	}

	out := map[string]any{
		"uid":          e.uid,
		"name":         e.name,
		"value":        e.resolve(e.value),
		"value_raw":    e.value,
		"enum":         enum,
		"protocolType": nilIfEmpty(string(e.protocolType)),
		"contentType":  nilIfEmpty(e.contentType),
	}
	caps := e.kind.Capabilities()
	for _, c := range capabilities {
		if caps.Has(c.flag) {
			c.dump(e, out)
		}
	}
	return out
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
