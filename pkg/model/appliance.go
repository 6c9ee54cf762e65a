package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/description"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/wire"
)

// Peer is a protocol session attached to an appliance.
type Peer interface {
	// Send stamps and writes a message to the peer.
	Send(ctx context.Context, msg *wire.Message) error

	// Close ends the peer's session.
	Close() error
}

// BroadcastObserver is told about every broadcast an appliance performs.
type BroadcastObserver interface {
	ObserveBroadcast(resource string, peers int)
}

// Appliance owns every entity of one simulated device and the set of
// sessions attached to it.
type Appliance struct {
	mu sync.RWMutex

	info            map[string]any
	psk             string
	serviceVersions map[string]int

	// Entities in declaration order.
	entities []*Entity
	byUID    map[int64]*Entity
	byName   map[string]*Entity
	byKind   map[Kind][]*Entity

	peers  map[Peer]struct{}
	closed bool

	logger   *slog.Logger
	observer BroadcastObserver
}

// ApplianceOption configures an Appliance.
type ApplianceOption func(*Appliance)

// WithLogger sets the appliance logger.
func WithLogger(logger *slog.Logger) ApplianceOption {
	return func(a *Appliance) {
		a.logger = logger
	}
}

// WithBroadcastObserver sets an observer for outgoing broadcasts.
func WithBroadcastObserver(o BroadcastObserver) ApplianceOption {
	return func(a *Appliance) {
		a.observer = o
	}
}

// NewAppliance builds an appliance from a device description. services
// overrides the default service versions when non-empty.
func NewAppliance(desc *description.DeviceDescription, psk string, services map[string]int, opts ...ApplianceOption) (*Appliance, error) {
	if desc == nil {
		return nil, fmt.Errorf("%w: no description", ErrConstruction)
	}

	a := &Appliance{
		info:            description.DefaultInfo(),
		psk:             psk,
		serviceVersions: description.DefaultServiceVersions(),
		byUID:           make(map[int64]*Entity),
		byName:          make(map[string]*Entity),
		byKind:          make(map[Kind][]*Entity),
		peers:           make(map[Peer]struct{}),
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	maps.Copy(a.info, desc.Info)
	if len(services) > 0 {
		a.serviceVersions = maps.Clone(services)
	}

	lists := []struct {
		kind  Kind
		descs []description.EntityDescription
	}{
		{KindStatus, desc.Status},
		{KindSetting, desc.Setting},
		{KindEvent, desc.Event},
		{KindCommand, desc.Command},
		{KindOption, desc.Option},
		{KindProgram, desc.Program},
	}
	for _, l := range lists {
		for _, d := range l.descs {
			if err := a.add(l.kind, d); err != nil {
				return nil, err
			}
		}
	}

	singletons := []struct {
		kind Kind
		desc *description.EntityDescription
	}{
		{KindActiveProgram, desc.ActiveProgram},
		{KindSelectedProgram, desc.SelectedProgram},
		{KindProtectionPort, desc.ProtectionPort},
	}
	for _, s := range singletons {
		if s.desc == nil {
			continue
		}
		if err := a.add(s.kind, *s.desc); err != nil {
			return nil, err
		}
	}

	return a, nil
}

func (a *Appliance) add(kind Kind, d description.EntityDescription) error {
	e, err := NewEntity(kind, d, a)
	if err != nil {
		return err
	}
	if _, ok := a.byUID[e.uid]; ok {
		return fmt.Errorf("%w: uid %d", ErrDuplicateEntity, e.uid)
	}
	if _, ok := a.byName[e.name]; ok {
		return fmt.Errorf("%w: name %q", ErrDuplicateEntity, e.name)
	}
	e.logger = a.logger

	a.entities = append(a.entities, e)
	a.byUID[e.uid] = e
	a.byName[e.name] = e
	a.byKind[kind] = append(a.byKind[kind], e)
	return nil
}

// Info returns a copy of the device identity record.
func (a *Appliance) Info() map[string]any {
	return maps.Clone(a.info)
}

// PSK returns the pre-shared key the appliance was loaded with.
func (a *Appliance) PSK() string {
	return a.psk
}

// ServiceVersions returns a copy of the service version table.
func (a *Appliance) ServiceVersions() map[string]int {
	return maps.Clone(a.serviceVersions)
}

// ServiceVersion returns the version of the service a resource belongs to,
// or 1 for unknown services.
func (a *Appliance) ServiceVersion(resource string) int {
	if len(resource) >= 3 {
		if v, ok := a.serviceVersions[resource[1:3]]; ok {
			return v
		}
	}
	return 1
}

// Services returns the service table as {service, version} records sorted
// by service name.
func (a *Appliance) Services() []map[string]any {
	names := slices.Sorted(maps.Keys(a.serviceVersions))
	out := make([]map[string]any, 0, len(names))
	for _, name := range names {
		out = append(out, map[string]any{"service": name, "version": a.serviceVersions[name]})
	}
	return out
}

// Entity returns the entity with the given uid.
func (a *Appliance) Entity(uid int64) (*Entity, bool) {
	e, ok := a.byUID[uid]
	return e, ok
}

// EntityByName returns the entity with the given name.
func (a *Appliance) EntityByName(name string) (*Entity, bool) {
	e, ok := a.byName[name]
	return e, ok
}

// Entities returns all entities in declaration order.
func (a *Appliance) Entities() []*Entity {
	return slices.Clone(a.entities)
}

// EntitiesOf returns the entities of one kind in declaration order.
func (a *Appliance) EntitiesOf(kind Kind) []*Entity {
	return slices.Clone(a.byKind[kind])
}

// ActiveProgram returns the active program entity, if declared.
func (a *Appliance) ActiveProgram() *Entity {
	return a.singleton(KindActiveProgram)
}

// SelectedProgram returns the selected program entity, if declared.
func (a *Appliance) SelectedProgram() *Entity {
	return a.singleton(KindSelectedProgram)
}

// ProtectionPort returns the protection port entity, if declared.
func (a *Appliance) ProtectionPort() *Entity {
	return a.singleton(KindProtectionPort)
}

func (a *Appliance) singleton(kind Kind) *Entity {
	if l := a.byKind[kind]; len(l) > 0 {
		return l[0]
	}
	return nil
}

// AllDescriptionChanges returns the description changes of every entity
// that has at least one changed capability.
func (a *Appliance) AllDescriptionChanges() []map[string]any {
	out := make([]map[string]any, 0)
	for _, e := range a.entities {
		if changes := e.DescriptionChanges(); len(changes) > 1 {
			out = append(out, changes)
		}
	}
	return out
}

// AllValues returns {uid, value} for every entity holding a value.
func (a *Appliance) AllValues() []map[string]any {
	out := make([]map[string]any, 0, len(a.entities))
	for _, e := range a.entities {
		if raw := e.ValueRaw(); raw != nil {
			out = append(out, map[string]any{"uid": e.uid, "value": raw})
		}
	}
	return out
}

// SetState applies admin state records ({uid, ...fields}) to their
// entities. Every uid is resolved before anything is applied, so an unknown
// uid aborts the whole batch with ErrUnknownEntity.
func (a *Appliance) SetState(ctx context.Context, states []map[string]any) error {
	targets := make([]*Entity, len(states))
	for i, state := range states {
		uid, ok := ToInt64(state["uid"])
		if !ok {
			return fmt.Errorf("%w: state[%d] has no valid uid", ErrUnknownEntity, i)
		}
		e, ok := a.byUID[uid]
		if !ok {
			return fmt.Errorf("%w: uid %d", ErrUnknownEntity, uid)
		}
		targets[i] = e
	}

	for i, e := range targets {
		if err := e.SetState(ctx, states[i]); err != nil {
			return err
		}
	}
	return nil
}

// UpdateEntities applies protocol value updates ({uid, value}). Items with
// an unknown or missing uid are logged and skipped. Every item is attempted;
// the errors of rejected items are joined.
func (a *Appliance) UpdateEntities(ctx context.Context, payloads []map[string]any) error {
	var errs []error
	for _, p := range payloads {
		uid, ok := ToInt64(p["uid"])
		if !ok {
			a.logger.Debug("update without uid skipped", "payload", p)
			continue
		}
		e, ok := a.byUID[uid]
		if !ok {
			a.logger.Debug("update for unknown entity skipped", "uid", uid)
			continue
		}
		if err := e.Update(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers sub on every entity.
func (a *Appliance) Subscribe(sub Subscriber) {
	for _, e := range a.entities {
		e.Subscribe(sub)
	}
}

// Unsubscribe removes sub from every entity.
func (a *Appliance) Unsubscribe(sub Subscriber) {
	for _, e := range a.entities {
		e.Unsubscribe(sub)
	}
}

// Attach adds a peer to the broadcast set.
func (a *Appliance) Attach(p Peer) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	a.peers[p] = struct{}{}
	return nil
}

// Detach removes a peer from the broadcast set.
func (a *Appliance) Detach(p Peer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.peers, p)
}

// PeerCount returns the number of attached peers.
func (a *Appliance) PeerCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.peers)
}

// Send broadcasts msg to every attached peer. Each peer gets its own copy
// to stamp. A peer that fails to receive is closed and detached; the
// remaining peers still get the message.
func (a *Appliance) Send(ctx context.Context, msg *wire.Message) {
	a.mu.RLock()
	peers := make([]Peer, 0, len(a.peers))
	for p := range a.peers {
		peers = append(peers, p)
	}
	a.mu.RUnlock()

	if a.observer != nil {
		a.observer.ObserveBroadcast(msg.Resource, len(peers))
	}

	for _, p := range peers {
		if err := p.Send(ctx, msg.Clone()); err != nil {
			a.logger.Warn("dropping peer after failed broadcast",
				"resource", msg.Resource,
				"error", err)
			a.Detach(p)
			_ = p.Close()
		}
	}
}

// Close detaches and closes every peer. Later Attach calls fail with
// ErrClosed.
func (a *Appliance) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	peers := make([]Peer, 0, len(a.peers))
	for p := range a.peers {
		peers = append(peers, p)
	}
	clear(a.peers)
	a.mu.Unlock()

	for _, p := range peers {
		_ = p.Close()
	}
}

// Dump returns every entity dump and the service version table.
func (a *Appliance) Dump() map[string]any {
	entities := make([]map[string]any, 0, len(a.entities))
	for _, e := range a.entities {
		entities = append(entities, e.Dump())
	}
	return map[string]any{
		"entities":         entities,
		"service_versions": a.ServiceVersions(),
	}
}

// Compile-time interface satisfaction check.
var _ Broadcaster = (*Appliance)(nil)
