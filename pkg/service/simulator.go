package service

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/cert"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/description"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/discovery"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/history"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/hub"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/model"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/persistence"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/session"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/transport"
)

// Simulator hosts one appliance at a time on the appliance endpoint.
type Simulator struct {
	config Config
	logger *slog.Logger

	server   *transport.Server
	hub      *hub.Hub
	sessions *sessionTracker

	// loadMu serializes Load so replacements never interleave.
	loadMu sync.Mutex

	mu        sync.RWMutex
	state     ServiceState
	appliance *model.Appliance
	bundle    *description.Bundle
	identity  *tls.Certificate
}

// New creates a simulator. No appliance is loaded until Start finds a
// snapshot or Load is called.
func New(config Config) (*Simulator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Simulator{
		config:   config,
		logger:   logger,
		sessions: newSessionTracker(),
		state:    StateIdle,
	}

	hubConfig := hub.Config{
		Appliance: s.Appliance,
		Channel:   config.Channel,
		OnSet:     s.recordAdminSet,
		Logger:    logger.With("component", "hub"),
	}
	if config.Metrics != nil {
		hubConfig.Observer = config.Metrics
	}
	h, err := hub.New(hubConfig)
	if err != nil {
		return nil, err
	}
	s.hub = h

	tlsConfig, err := s.tlsConfig()
	if err != nil {
		return nil, err
	}
	server, err := transport.NewServer(transport.ServerConfig{
		Address:   config.ListenAddress,
		Path:      config.Path,
		TLSConfig: tlsConfig,
		Channel:   config.Channel,
		OnConnect: s.handleConnection,
		OnError: func(err error) {
			logger.Warn("appliance endpoint error", "error", err)
		},
	})
	if err != nil {
		return nil, err
	}
	s.server = server
	return s, nil
}

func (s *Simulator) tlsConfig() (*tls.Config, error) {
	switch s.config.TLS {
	case TLSOff:
		return nil, nil
	case TLSStatic:
		return transport.NewServerTLSConfig(*s.config.Certificate)
	case TLSDerived:
		return transport.NewDynamicServerTLSConfig(s.currentIdentity), nil
	}
	return nil, fmt.Errorf("%w: tls mode %d", ErrInvalidConfig, s.config.TLS)
}

func (s *Simulator) currentIdentity(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil, ErrNoAppliance
	}
	return s.identity, nil
}

// Start loads the persisted snapshot, if any, and starts serving.
func (s *Simulator) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle && s.state != StateStopped {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateStarting
	s.mu.Unlock()

	if err := s.restore(ctx); err != nil {
		s.setState(StateIdle)
		return err
	}
	if err := s.server.Start(ctx); err != nil {
		s.setState(StateIdle)
		return err
	}

	s.setState(StateRunning)
	s.logger.Info("appliance endpoint listening", "url", s.server.URL(), "tls", s.config.TLS.String())
	return nil
}

func (s *Simulator) restore(ctx context.Context) error {
	if s.config.Store != nil {
		snap, err := s.config.Store.Load()
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		if snap != nil {
			s.logger.Info("restoring snapshot", "path", s.config.Store.Path(), "saved_at", snap.SavedAt)
			return s.Load(ctx, snap.Bundle())
		}
	}
	if s.config.Initial != nil {
		s.logger.Info("loading initial appliance", "entities", s.config.Initial.Description.EntityCount())
		return s.Load(ctx, s.config.Initial)
	}
	s.logger.Info("no appliance, waiting for an upload")
	return nil
}

// Stop closes every connection and the loaded appliance.
func (s *Simulator) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.state = StateStopping
	a := s.appliance
	s.mu.Unlock()

	err := s.server.Stop()
	s.sessions.CloseAll()
	s.hub.Close()
	if a != nil {
		a.Close()
	}
	if s.config.Advertiser != nil {
		if stopErr := s.config.Advertiser.Stop(); stopErr != nil {
			s.logger.Warn("stop advertising", "error", stopErr)
		}
	}

	s.setState(StateStopped)
	return err
}

func (s *Simulator) setState(state ServiceState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// State returns the service state.
func (s *Simulator) State() ServiceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Appliance returns the loaded appliance, or nil.
func (s *Simulator) Appliance() *model.Appliance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appliance
}

// Hub returns the admin hub.
func (s *Simulator) Hub() *hub.Hub {
	return s.hub
}

// Handler returns the appliance endpoint handler.
func (s *Simulator) Handler() http.Handler {
	return s.server.Handler()
}

// Addr returns the appliance endpoint address once started.
func (s *Simulator) Addr() net.Addr {
	return s.server.Addr()
}

// URL returns the appliance endpoint URL once started.
func (s *Simulator) URL() string {
	return s.server.URL()
}

// Sessions describes the open protocol sessions.
func (s *Simulator) Sessions() []SessionInfo {
	return s.sessions.List()
}

// LoadUpload decodes an uploaded file and loads it.
func (s *Simulator) LoadUpload(ctx context.Context, filename string, data []byte, psk string) error {
	b, err := description.LoadUpload(filename, data, psk)
	if err != nil {
		return err
	}
	return s.Load(ctx, b)
}

// Load replaces the current appliance with one built from b.
func (s *Simulator) Load(ctx context.Context, b *description.Bundle) error {
	if b == nil || b.Description == nil {
		return fmt.Errorf("%w: no description", description.ErrInvalidDescription)
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	opts := []model.ApplianceOption{model.WithLogger(s.logger.With("component", "appliance"))}
	if s.config.Metrics != nil {
		opts = append(opts, model.WithBroadcastObserver(s.config.Metrics))
	}
	a, err := model.NewAppliance(b.Description, b.PSK, b.Services, opts...)
	if err != nil {
		return err
	}
	if len(b.State) > 0 {
		if err := a.SetState(ctx, b.State); err != nil {
			a.Close()
			return fmt.Errorf("apply state: %w", err)
		}
	}

	var identity *tls.Certificate
	if s.config.TLS == TLSDerived {
		id, err := cert.DeriveIdentity(b.PSK, commonName(a.Info()))
		if err != nil {
			a.Close()
			return err
		}
		identity = &id
	}

	a.Subscribe(s.hub)
	if s.config.Journal != nil {
		a.Subscribe(s.config.Journal)
	}

	s.mu.RLock()
	old := s.appliance
	s.mu.RUnlock()
	if old != nil {
		old.Unsubscribe(s.hub)
		if s.config.Journal != nil {
			old.Unsubscribe(s.config.Journal)
		}
		old.Close()
	}

	s.mu.Lock()
	s.appliance = a
	s.bundle = b
	s.identity = identity
	s.mu.Unlock()

	entities := len(a.Entities())
	s.logger.Info("appliance loaded",
		"brand", a.Info()["brand"],
		"vib", a.Info()["vib"],
		"entities", entities)
	if identity != nil {
		s.logger.Info("serving derived identity", "fingerprint", cert.Fingerprint(identity.Leaf))
	}

	if err := s.SaveSnapshot(); err != nil {
		s.logger.Warn("save snapshot", "error", err)
	}
	s.advertise(ctx, a)
	s.config.Metrics.ApplianceLoaded(entities)
	s.hub.BroadcastInit(ctx)
	return nil
}

func (s *Simulator) advertise(ctx context.Context, a *model.Appliance) {
	if s.config.Advertiser == nil {
		return
	}
	info := discovery.InfoFromDevice(a.Info(), s.advertisedPort())
	if err := s.config.Advertiser.Advertise(ctx, info); err != nil {
		s.logger.Warn("advertise appliance", "error", err)
	}
}

func (s *Simulator) advertisedPort() int {
	if s.config.AdvertisePort != 0 {
		return s.config.AdvertisePort
	}
	if addr, ok := s.server.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	_, port, err := net.SplitHostPort(s.config.ListenAddress)
	if err != nil {
		return transport.DefaultPort
	}
	if p, err := strconv.Atoi(port); err == nil && p > 0 {
		return p
	}
	return transport.DefaultPort
}

func commonName(info map[string]any) string {
	if id, ok := info["deviceID"].(string); ok && id != "" {
		return id
	}
	return "homeconnect-appliance"
}

// Snapshot captures the loaded appliance with its current entity state.
func (s *Simulator) Snapshot() (*persistence.Snapshot, error) {
	s.mu.RLock()
	a, b := s.appliance, s.bundle
	s.mu.RUnlock()
	if a == nil {
		return nil, ErrNoAppliance
	}
	return persistence.FromBundle(&description.Bundle{
		Description: b.Description,
		PSK:         a.PSK(),
		Services:    a.ServiceVersions(),
		State:       stateRecords(a),
	}), nil
}

// SaveSnapshot writes the current snapshot to the store. It is a no-op
// without a store or an appliance.
func (s *Simulator) SaveSnapshot() error {
	if s.config.Store == nil || s.Appliance() == nil {
		return nil
	}
	snap, err := s.Snapshot()
	if err != nil {
		return err
	}
	return s.config.Store.Save(snap)
}

// SetEntityState applies an admin state change to one entity and
// re-broadcasts it to admin clients.
func (s *Simulator) SetEntityState(ctx context.Context, uid int64, state map[string]any) (*model.Entity, error) {
	a := s.Appliance()
	if a == nil {
		return nil, ErrNoAppliance
	}
	e, ok := a.Entity(uid)
	if !ok {
		return nil, fmt.Errorf("%w: uid %d", model.ErrUnknownEntity, uid)
	}
	if err := e.SetState(ctx, state); err != nil {
		return nil, err
	}
	s.recordAdminSet(ctx, e)
	s.hub.BroadcastEntity(ctx, e)
	return e, nil
}

func (s *Simulator) recordAdminSet(ctx context.Context, e *model.Entity) {
	if s.config.Journal == nil {
		return
	}
	if err := s.config.Journal.RecordEntity(ctx, e, history.OriginAdmin); err != nil {
		s.logger.Warn("record admin change", "uid", e.UID(), "error", err)
	}
}

func (s *Simulator) handleConnection(ctx context.Context, ch transport.Channel) {
	a := s.Appliance()
	if a == nil {
		s.logger.Warn("connection rejected: no appliance loaded", "remote", ch.RemoteAddr())
		return
	}

	cfg := session.Config{
		Logger:         s.logger,
		ProtocolLogger: s.config.ProtocolLogger,
	}
	if s.config.Metrics != nil {
		cfg.Observer = s.config.Metrics
	}
	sess := session.New(ch, a, cfg)
	s.sessions.Add(sess)
	defer s.sessions.Remove(sess)

	if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug("session error", "session", sess.ID(), "error", err)
	}
}
