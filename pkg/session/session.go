package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/log"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/model"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/transport"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/wire"
)

// Range of session ids, message ids and edMsgIDs, [min, max).
const (
	idMin int64 = 1000000000
	idMax int64 = 9999999999
)

func randomID() int64 {
	return idMin + rand.Int64N(idMax-idMin)
}

// Config holds the optional collaborators of a session.
type Config struct {
	Logger         *slog.Logger
	ProtocolLogger log.Logger
	Observer       Observer
}

// Session is one protocol connection to the appliance.
type Session struct {
	ch        transport.Channel
	appliance *model.Appliance

	logger         *slog.Logger
	protocolLogger log.Logger
	observer       Observer
	applianceID    string

	sid atomic.Int64

	// sendMu covers stamping and the write, so msgIDs leave in order.
	sendMu    sync.Mutex
	nextMsgID int64

	mu      sync.RWMutex
	state   State
	appInfo map[string]any

	closeOnce sync.Once
}

// New creates a session for ch serving appliance.
func New(ch transport.Channel, appliance *model.Appliance, cfg Config) *Session {
	s := &Session{
		ch:             ch,
		appliance:      appliance,
		logger:         cfg.Logger,
		protocolLogger: log.OrNoop(cfg.ProtocolLogger),
		observer:       cfg.Observer,
		state:          StateConnected,
		appInfo: map[string]any{
			"endDeviceID": 0,
			"connected":   true,
			"protected":   false,
		},
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.observer == nil {
		s.observer = noopObserver{}
	}
	if id, ok := appliance.Info()["deviceID"].(string); ok {
		s.applianceID = id
	}
	s.logger = s.logger.With("session", ch.ID(), "remote", ch.RemoteAddr())
	return s
}

// ID returns the connection id.
func (s *Session) ID() string {
	return s.ch.ID()
}

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() string {
	return s.ch.RemoteAddr()
}

// SID returns the session id, 0 before the handshake.
func (s *Session) SID() int64 {
	return s.sid.Load()
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// AppInfo returns a copy of the peer registration record.
func (s *Session) AppInfo() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.appInfo)
}

func (s *Session) setState(next State, reason string) error {
	s.mu.Lock()
	prev := s.state
	if !prev.canTransition(next) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrState, prev, next)
	}
	s.state = next
	s.mu.Unlock()

	s.logger.Debug("session state", "from", prev.String(), "to", next.String())
	ev := s.event(log.DirectionIn, log.LayerService, log.CategoryState)
	ev.StateChange = &log.StateChangeEvent{
		Entity:   log.StateEntitySession,
		OldState: prev.String(),
		NewState: next.String(),
		Reason:   reason,
	}
	s.protocolLogger.Log(ev)
	return nil
}

// Run performs the handshake and then handles frames until the channel
// closes, ctx ends or the peer violates the protocol. It always leaves the
// session CLOSED. A normal disconnect returns nil.
func (s *Session) Run(ctx context.Context) error {
	s.observer.SessionOpened()
	defer s.observer.SessionClosed()

	err := s.run(ctx)
	reason := "disconnected"
	if err != nil {
		reason = err.Error()
		s.logger.Warn("session ended", "error", err)
	} else {
		s.logger.Info("session closed")
	}
	s.shutdown(reason)
	return err
}

func (s *Session) run(ctx context.Context) error {
	if err := s.handshake(ctx); err != nil {
		if errors.Is(err, transport.ErrClosed) || errors.Is(err, model.ErrClosed) {
			return nil
		}
		return err
	}

	for {
		text, err := s.ch.Receive(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := s.handleFrame(ctx, text); err != nil {
			return err
		}
	}
}

func (s *Session) handshake(ctx context.Context) error {
	if err := s.setState(StateHandshaking, ""); err != nil {
		return err
	}

	s.sendMu.Lock()
	s.sid.Store(randomID())
	s.nextMsgID = randomID()
	s.sendMu.Unlock()

	init := wire.NewMessage("/ei/initialValues", wire.ActionPost, map[string]any{"edMsgID": randomID()})
	if err := s.Send(ctx, init); err != nil {
		return err
	}
	if err := s.appliance.Attach(s); err != nil {
		return err
	}
	return s.setState(StateActive, "")
}

// handleFrame parses and dispatches one frame. A panic in a handler is
// turned into an error.
func (s *Session) handleFrame(ctx context.Context, text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: handler panic: %v", ErrProtocol, r)
			s.observer.SessionError("dispatch")
			s.logError("dispatch", err)
		}
	}()

	msg, err := wire.ParseMessage(text)
	if err != nil {
		s.observer.SessionError("parse")
		s.logError("parse", err)
		return err
	}
	s.observer.MessageReceived(msg.Action.String())
	s.logMessage(log.DirectionIn, msg, nil)

	if err := s.dispatch(ctx, msg, time.Now()); err != nil {
		s.observer.SessionError("dispatch")
		s.logError("dispatch", err)
		return err
	}
	return nil
}

// Send stamps msg and writes it to the peer. It implements model.Peer.
func (s *Session) Send(ctx context.Context, msg *wire.Message) error {
	return s.send(ctx, msg, time.Time{})
}

func (s *Session) send(ctx context.Context, msg *wire.Message, received time.Time) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.stamp(msg)
	text, err := msg.Dump()
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Resource, err)
	}
	if err := s.ch.Send(ctx, text); err != nil {
		return err
	}

	s.observer.MessageSent(msg.Action.String())
	var took *time.Duration
	if !received.IsZero() {
		d := time.Since(received)
		took = &d
	}
	s.logMessage(log.DirectionOut, msg, took)
	return nil
}

// stamp fills unset version, sID and msgID. The caller holds sendMu.
func (s *Session) stamp(msg *wire.Message) {
	if msg.Version == nil {
		v := s.appliance.ServiceVersion(msg.Resource)
		msg.Version = &v
	}
	if msg.SID == nil {
		sid := s.sid.Load()
		msg.SID = &sid
	}
	if msg.MsgID == nil {
		id := s.nextMsgID
		msg.MsgID = &id
		s.nextMsgID++
	}
}

// Close ends the session: it detaches from the appliance and closes the
// channel. It implements model.Peer.
func (s *Session) Close() error {
	s.shutdown("closed")
	return nil
}

func (s *Session) shutdown(reason string) {
	s.closeOnce.Do(func() {
		s.appliance.Detach(s)
		_ = s.setState(StateClosed, reason)
		_ = s.ch.Close()
	})
}

func (s *Session) event(dir log.Direction, layer log.Layer, cat log.Category) log.Event {
	return log.Event{
		Timestamp:   time.Now(),
		SessionID:   s.ch.ID(),
		Direction:   dir,
		Layer:       layer,
		Category:    cat,
		RemoteAddr:  s.ch.RemoteAddr(),
		ApplianceID: s.applianceID,
	}
}

func (s *Session) logMessage(dir log.Direction, msg *wire.Message, took *time.Duration) {
	ev := s.event(dir, log.LayerWire, log.CategoryMessage)
	ev.Message = log.NewMessageEvent(msg)
	ev.Message.ProcessingTime = took
	s.protocolLogger.Log(ev)
}

func (s *Session) logError(stage string, err error) {
	ev := s.event(log.DirectionIn, log.LayerWire, log.CategoryError)
	ev.Error = &log.ErrorEventData{Layer: log.LayerWire, Message: err.Error(), Context: stage}
	s.protocolLogger.Log(ev)
}

var _ model.Peer = (*Session)(nil)
