package transport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/log"
)

// DefaultWriteTimeout bounds a single frame write.
const DefaultWriteTimeout = 10 * time.Second

// ChannelConfig configures a WebSocket channel.
type ChannelConfig struct {
	// KeepAlive is used unless DisableKeepAlive is set.
	KeepAlive        KeepAliveConfig
	DisableKeepAlive bool

	WriteTimeout time.Duration

	// Logger receives frame, control and state events.
	Logger log.Logger
}

type wsChannel struct {
	conn   *websocket.Conn
	id     string
	remote string
	config ChannelConfig
	logger log.Logger

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}

	keepAlive *KeepAlive
}

// NewChannel wraps an established WebSocket connection and starts its
// keep-alive monitor.
func NewChannel(ctx context.Context, conn *websocket.Conn, config ChannelConfig) Channel {
	return newChannel(ctx, conn, config)
}

func newChannel(ctx context.Context, conn *websocket.Conn, config ChannelConfig) *wsChannel {
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	c := &wsChannel{
		conn:   conn,
		id:     uuid.New().String(),
		remote: conn.RemoteAddr().String(),
		config: config,
		logger: log.OrNoop(config.Logger),
		closed: make(chan struct{}),
	}

	conn.SetPingHandler(func(appData string) error {
		c.logControl(log.DirectionIn, log.ControlMsgPing, nil)
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.config.WriteTimeout))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			return err
		}
		c.logControl(log.DirectionOut, log.ControlMsgPong, nil)
		return nil
	})
	conn.SetPongHandler(func(appData string) error {
		c.logControl(log.DirectionIn, log.ControlMsgPong, nil)
		if c.keepAlive != nil {
			if seq, err := strconv.ParseUint(appData, 10, 32); err == nil {
				c.keepAlive.PongReceived(uint32(seq))
			}
		}
		return nil
	})

	if !config.DisableKeepAlive {
		c.keepAlive = NewKeepAlive(config.KeepAlive, c.sendPing, func() {
			c.logError("keepalive", "pong timeout")
			_ = c.Close()
		})
		c.keepAlive.Start(ctx)
	}
	return c
}

func (c *wsChannel) ID() string {
	return c.id
}

func (c *wsChannel) RemoteAddr() string {
	return c.remote
}

func (c *wsChannel) Closed() <-chan struct{} {
	return c.closed
}

func (c *wsChannel) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *wsChannel) Send(ctx context.Context, text string) error {
	if c.isClosed() {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.config.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	c.logFrame(log.DirectionOut, text)
	return nil
}

func (c *wsChannel) Receive(ctx context.Context) (string, error) {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			_ = c.Close()
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("%w: %v", ErrClosed, err)
		}
		if typ != websocket.TextMessage {
			c.logError("receive", "non-text frame ignored")
			continue
		}
		text := string(data)
		c.logFrame(log.DirectionIn, text)
		return text, nil
	}
}

func (c *wsChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.keepAlive != nil {
			c.keepAlive.Stop()
		}

		code := websocket.CloseNormalClosure
		msg := websocket.FormatCloseMessage(code, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.logControl(log.DirectionOut, log.ControlMsgClose, &code)

		err = c.conn.Close()
	})
	return err
}

func (c *wsChannel) sendPing(seq uint32) error {
	payload := []byte(strconv.FormatUint(uint64(seq), 10))
	if err := c.conn.WriteControl(websocket.PingMessage, payload, time.Now().Add(c.config.WriteTimeout)); err != nil {
		return err
	}
	c.logControl(log.DirectionOut, log.ControlMsgPing, nil)
	return nil
}

func (c *wsChannel) event(dir log.Direction, cat log.Category) log.Event {
	return log.Event{
		Timestamp:  time.Now(),
		SessionID:  c.id,
		Direction:  dir,
		Layer:      log.LayerTransport,
		Category:   cat,
		RemoteAddr: c.remote,
	}
}

func (c *wsChannel) logFrame(dir log.Direction, text string) {
	ev := c.event(dir, log.CategoryMessage)
	ev.Frame = log.NewFrameEvent(text)
	c.logger.Log(ev)
}

func (c *wsChannel) logControl(dir log.Direction, typ log.ControlMsgType, code *int) {
	ev := c.event(dir, log.CategoryControl)
	ev.ControlMsg = &log.ControlMsgEvent{Type: typ, CloseCode: code}
	c.logger.Log(ev)
}

func (c *wsChannel) logError(op, msg string) {
	ev := c.event(log.DirectionIn, log.CategoryError)
	ev.Error = &log.ErrorEventData{Layer: log.LayerTransport, Message: msg, Context: op}
	c.logger.Log(ev)
}
