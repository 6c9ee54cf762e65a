package model

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/description"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/wire"
)

// Resources written by entities.
const (
	ResourceValues            = "/ro/values"
	ResourceDescriptionChange = "/ro/descriptionChange"
)

// Broadcaster delivers entity notifications to every attached peer.
type Broadcaster interface {
	Send(ctx context.Context, msg *wire.Message)
}

// Subscriber is notified after a protocol-origin Update.
type Subscriber interface {
	// OnEntityUpdated is called in its own goroutine once per Update.
	OnEntityUpdated(ctx context.Context, e *Entity)
}

// Entity is one addressable property of an appliance.
type Entity struct {
	// writeMu serializes mutations together with the notifications they emit,
	// so peers see notifications in mutation order.
	writeMu sync.Mutex

	// mu guards the fields below.
	mu sync.RWMutex

	kind         Kind
	uid          int64
	name         string
	protocolType ProtocolType
	contentType  string
	coerce       coerceFunc
	enum         map[int64]string
	revEnum      map[string]int64
	desc         description.EntityDescription

	value     any
	access    *Access
	available *bool
	min       any
	max       any
	step      any

	subscribers []Subscriber

	broadcaster Broadcaster
	logger      *slog.Logger
}

// NewEntity builds an entity of the given kind from its description.
// broadcaster may be nil for entities that are not attached to an appliance.
func NewEntity(kind Kind, desc description.EntityDescription, broadcaster Broadcaster) (*Entity, error) {
	if desc.UID == nil {
		return nil, fmt.Errorf("%s %q: %w", kind, desc.Name, ErrMissingUID)
	}
	if desc.Name == "" {
		return nil, fmt.Errorf("%s %d: %w", kind, *desc.UID, ErrMissingName)
	}

	coerce, err := coercionFor(ProtocolType(desc.ProtocolType))
	if err != nil {
		return nil, fmt.Errorf("entity %d (%s): %w", *desc.UID, desc.Name, err)
	}

	e := &Entity{
		kind:         kind,
		uid:          *desc.UID,
		name:         desc.Name,
		protocolType: ProtocolType(desc.ProtocolType),
		contentType:  desc.ContentType,
		coerce:       coerce,
		desc:         desc,
		broadcaster:  broadcaster,
		logger:       slog.Default(),
	}

	if desc.Enumeration != nil {
		e.enum = make(map[int64]string, len(desc.Enumeration))
		e.revEnum = make(map[string]int64, len(desc.Enumeration))
		for k, v := range desc.Enumeration {
			code, err := strconv.ParseInt(k, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("entity %d (%s): %w: enumeration key %q", e.uid, e.name, ErrConstruction, k)
			}
			e.enum[code] = v
			e.revEnum[v] = code
		}
	}

	if kind == KindEvent {
		e.value = int64(0)
	}
	for _, raw := range []any{desc.InitValue, desc.Default} {
		if raw == nil {
			continue
		}
		if e.value, err = e.coerce(raw); err != nil {
			return nil, fmt.Errorf("entity %d (%s): %w: %v", e.uid, e.name, ErrConstruction, err)
		}
	}

	caps := kind.Capabilities()
	for _, c := range capabilities {
		if !caps.Has(c.flag) {
			continue
		}
		if err := c.init(e, desc); err != nil {
			return nil, fmt.Errorf("entity %d (%s): %w: %v", e.uid, e.name, ErrConstruction, err)
		}
	}

	return e, nil
}

// SetLogger sets the logger used for callback failures.
func (e *Entity) SetLogger(logger *slog.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logger = logger
}

// UID returns the entity uid.
func (e *Entity) UID() int64 {
	return e.uid
}

// Name returns the entity name.
func (e *Entity) Name() string {
	return e.name
}

// Kind returns the category the entity was declared in.
func (e *Entity) Kind() Kind {
	return e.kind
}

// ProtocolType returns the declared protocol type.
func (e *Entity) ProtocolType() ProtocolType {
	return e.protocolType
}

// Enum returns a copy of the enumeration, or nil if the entity has none.
func (e *Entity) Enum() map[int64]string {
	if e.enum == nil {
		return nil
	}
	out := make(map[int64]string, len(e.enum))
	for k, v := range e.enum {
		out[k] = v
	}
	return out
}

// Value returns the display value: the enumeration entry for the raw value
// when the entity has an enumeration, otherwise the raw value.
func (e *Entity) Value() any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.resolve(e.value)
}

func (e *Entity) resolve(raw any) any {
	if e.enum == nil || raw == nil {
		return raw
	}
	if code, ok := ToInt64(raw); ok {
		if s, ok := e.enum[code]; ok {
			return s
		}
	}
	return raw
}

// ValueRaw returns the stored value.
func (e *Entity) ValueRaw() any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.value
}

// Access returns the access level, or nil if the entity has none.
func (e *Entity) Access() *Access {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.access == nil {
		return nil
	}
	a := *e.access
	return &a
}

// Available returns the availability, or nil if the entity has none.
func (e *Entity) Available() *bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.available == nil {
		return nil
	}
	v := *e.available
	return &v
}

// Range returns min, max and step. Unset bounds are nil.
func (e *Entity) Range() (minimum, maximum, step any) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.min, e.max, e.step
}

// SetValue sets the value by its display form. For enumerated entities the
// display string is mapped to its raw code; an unknown string fails with
// ErrInvalidEnumValue and leaves the entity unchanged.
func (e *Entity) SetValue(ctx context.Context, value any) error {
	raw, err := e.rawFromDisplay(value)
	if err != nil {
		return err
	}
	return e.SetValueRaw(ctx, raw)
}

func (e *Entity) rawFromDisplay(value any) (any, error) {
	if e.revEnum == nil {
		return value, nil
	}
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("entity %d (%s): %w: %v", e.uid, e.name, ErrInvalidEnumValue, value)
	}
	code, ok := e.revEnum[s]
	if !ok {
		return nil, fmt.Errorf("entity %d (%s): %w: %q", e.uid, e.name, ErrInvalidEnumValue, s)
	}
	return code, nil
}

// SetValueRaw coerces raw through the protocol type and stores it. A value
// change broadcasts a NOTIFY on /ro/values; setting the current value again
// is a no-op.
func (e *Entity) SetValueRaw(ctx context.Context, raw any) error {
	v, err := e.coerce(raw)
	if err != nil {
		return fmt.Errorf("entity %d (%s): %w", e.uid, e.name, err)
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.mu.Lock()
	if valuesEqual(e.value, v) {
		e.mu.Unlock()
		return nil
	}
	e.value = v
	e.mu.Unlock()

	e.broadcast(ctx, ResourceValues, map[string]any{"uid": e.uid, "value": v})
	return nil
}

// Update applies a protocol-origin payload. A "value" entry is stored and
// broadcast even when unchanged. Afterwards every subscriber is notified in
// its own goroutine.
func (e *Entity) Update(ctx context.Context, payload map[string]any) error {
	if raw, ok := payload["value"]; ok {
		v, err := e.coerce(raw)
		if err != nil {
			return fmt.Errorf("entity %d (%s): %w", e.uid, e.name, err)
		}

		e.writeMu.Lock()
		e.mu.Lock()
		e.value = v
		e.mu.Unlock()
		e.broadcast(ctx, ResourceValues, map[string]any{"uid": e.uid, "value": v})
		e.writeMu.Unlock()
	}

	e.notifySubscribers(ctx)
	return nil
}

// Subscribe registers sub for Update notifications. Subscribing the same
// subscriber twice has no effect.
func (e *Entity) Subscribe(sub Subscriber) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, s := range e.subscribers {
		if s == sub {
			return
		}
	}
	e.subscribers = append(e.subscribers, sub)
}

// Unsubscribe removes a subscriber.
func (e *Entity) Unsubscribe(sub Subscriber) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, s := range e.subscribers {
		if s == sub {
			e.subscribers = append(e.subscribers[:i], e.subscribers[i+1:]...)
			return
		}
	}
}

func (e *Entity) notifySubscribers(ctx context.Context) {
	e.mu.RLock()
	subs := make([]Subscriber, len(e.subscribers))
	copy(subs, e.subscribers)
	logger := e.logger
	e.mu.RUnlock()

	// Subscribers outlive the request that triggered them.
	ctx = context.WithoutCancel(ctx)
	for _, sub := range subs {
		go func(sub Subscriber) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("entity subscriber panicked",
						"uid", e.uid,
						"name", e.name,
						"panic", r)
				}
			}()
			sub.OnEntityUpdated(ctx, e)
		}(sub)
	}
}

func (e *Entity) broadcast(ctx context.Context, resource string, data map[string]any) {
	if e.broadcaster == nil {
		return
	}
	e.broadcaster.Send(ctx, wire.NewMessage(resource, wire.ActionNotify, data))
}
