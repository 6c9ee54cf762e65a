package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/model"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/transport"
)

// Observer is told how many admin clients are connected.
type Observer interface {
	AdminClients(n int)
}

// Config configures a Hub.
type Config struct {
	// Appliance returns the current appliance, or nil when none is loaded.
	Appliance func() *model.Appliance

	// Channel configures admin client connections.
	Channel transport.ChannelConfig

	// OnSet runs after an admin edit was applied.
	OnSet func(ctx context.Context, e *model.Entity)

	Observer Observer
	Logger   *slog.Logger
}

// Hub is the set of connected admin clients.
type Hub struct {
	config   Config
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[transport.Channel]struct{}
	closed  bool
}

// New creates a hub.
func New(config Config) (*Hub, error) {
	if config.Appliance == nil {
		return nil, errors.New("hub: Appliance is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		config: config,
		logger: logger,
		upgrader: websocket.Upgrader{
			// Origins are checked by the admin router's CORS policy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[transport.Channel]struct{}),
	}, nil
}

// ServeHTTP upgrades the request and serves the client until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("admin upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	ctx := r.Context()
	ch := transport.NewChannel(ctx, conn, h.config.Channel)
	defer ch.Close()

	if !h.add(ch) {
		return
	}
	defer h.remove(ch)

	logger := h.logger.With("client", ch.ID(), "remote", ch.RemoteAddr())
	logger.Info("admin client connected")

	if a := h.config.Appliance(); a != nil {
		if err := h.write(ctx, ch, InitMessage(a)); err != nil {
			logger.Warn("admin init failed", "error", err)
			return
		}
	}

	for {
		text, err := ch.Receive(ctx)
		if err != nil {
			logger.Debug("admin client closed", "error", err)
			return
		}
		h.handle(ctx, ch, logger, text)
	}
}

func (h *Hub) handle(ctx context.Context, ch transport.Channel, logger *slog.Logger, text string) {
	req, err := parseRequest(text)
	if err != nil {
		h.reply(ctx, ch, logger, err)
		return
	}

	switch req.Action {
	case ActionSet:
		logger.Info("admin set", "uid", req.Set.UID, "key", req.Set.Key, "value", req.Set.Value)
		e, err := h.Set(ctx, req.Set)
		if err != nil {
			h.reply(ctx, ch, logger, err)
			return
		}
		h.BroadcastEntity(ctx, e)
	default:
		logger.Debug("ignoring admin action", "action", req.Action)
	}
}

func (h *Hub) reply(ctx context.Context, ch transport.Channel, logger *slog.Logger, err error) {
	logger.Warn("admin request failed", "error", err)
	if werr := h.write(ctx, ch, Message{Action: ActionError, Error: err.Error()}); werr != nil {
		h.drop(ch, werr)
	}
}

// Set applies one admin edit to the current appliance.
func (h *Hub) Set(ctx context.Context, req SetRequest) (*model.Entity, error) {
	a := h.config.Appliance()
	if a == nil {
		return nil, ErrNoAppliance
	}
	e, ok := a.Entity(req.UID)
	if !ok {
		return nil, fmt.Errorf("%w: uid %d", model.ErrUnknownEntity, req.UID)
	}
	if err := e.SetState(ctx, map[string]any{req.Key: req.Value}); err != nil {
		return nil, err
	}
	if h.config.OnSet != nil {
		h.config.OnSet(ctx, e)
	}
	return e, nil
}

// OnEntityUpdated broadcasts protocol-origin updates. It implements
// model.Subscriber.
func (h *Hub) OnEntityUpdated(ctx context.Context, e *model.Entity) {
	h.BroadcastEntity(ctx, e)
}

// BroadcastEntity sends an update for e to every client.
func (h *Hub) BroadcastEntity(ctx context.Context, e *model.Entity) {
	h.Broadcast(ctx, UpdateMessage(e))
}

// BroadcastInit sends the full entity list of the current appliance to
// every client.
func (h *Hub) BroadcastInit(ctx context.Context) {
	a := h.config.Appliance()
	if a == nil {
		return
	}
	h.Broadcast(ctx, InitMessage(a))
}

// Broadcast sends msg to every client. A client that cannot be written to
// is dropped.
func (h *Hub) Broadcast(ctx context.Context, msg Message) {
	h.mu.RLock()
	clients := make([]transport.Channel, 0, len(h.clients))
	for ch := range h.clients {
		clients = append(clients, ch)
	}
	h.mu.RUnlock()

	for _, ch := range clients {
		if err := h.write(ctx, ch, msg); err != nil {
			h.drop(ch, err)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[transport.Channel]struct{})
	h.mu.Unlock()

	for ch := range clients {
		_ = ch.Close()
	}
	h.notify(0)
}

func (h *Hub) write(ctx context.Context, ch transport.Channel, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Action, err)
	}
	return ch.Send(ctx, string(data))
}

func (h *Hub) add(ch transport.Channel) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[ch] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.notify(n)
	return true
}

func (h *Hub) remove(ch transport.Channel) {
	h.mu.Lock()
	_, ok := h.clients[ch]
	delete(h.clients, ch)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.notify(n)
	}
}

func (h *Hub) drop(ch transport.Channel, err error) {
	h.logger.Warn("dropping admin client", "client", ch.ID(), "error", err)
	h.remove(ch)
	_ = ch.Close()
}

func (h *Hub) notify(n int) {
	if h.config.Observer != nil {
		h.config.Observer.AdminClients(n)
	}
}

var _ model.Subscriber = (*Hub)(nil)
