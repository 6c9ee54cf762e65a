package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Keep-alive defaults, matching the appliance's 2 second WebSocket heartbeat.
const (
	DefaultPingInterval   = 2 * time.Second
	DefaultPongTimeout    = time.Second
	DefaultMaxMissedPongs = 1
)

// KeepAliveConfig configures keep-alive behavior.
type KeepAliveConfig struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMissedPongs int
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// DetectionDelay is the longest time a dead peer can go unnoticed.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

func (c KeepAliveConfig) withDefaults() KeepAliveConfig {
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = DefaultPongTimeout
	}
	if c.MaxMissedPongs <= 0 {
		c.MaxMissedPongs = DefaultMaxMissedPongs
	}
	return c
}

// KeepAlive sends sequenced pings and reports a peer that stops answering.
type KeepAlive struct {
	config KeepAliveConfig

	sendPing  func(seq uint32) error
	onTimeout func()

	sequence atomic.Uint32

	mu           sync.Mutex
	running      bool
	missedPongs  int
	lastPingTime time.Time
	lastPongTime time.Time
	pendingPing  uint32
	hasPending   bool
	stopCh       chan struct{}
	pongCh       chan uint32
}

// NewKeepAlive creates a keep-alive monitor. onTimeout runs once, on the
// monitor goroutine, when MaxMissedPongs pings went unanswered.
func NewKeepAlive(config KeepAliveConfig, sendPing func(seq uint32) error, onTimeout func()) *KeepAlive {
	return &KeepAlive{
		config:    config.withDefaults(),
		sendPing:  sendPing,
		onTimeout: onTimeout,
		pongCh:    make(chan uint32, 1),
	}
}

// Start begins monitoring until ctx ends or Stop is called.
func (ka *KeepAlive) Start(ctx context.Context) {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if ka.running {
		return
	}
	ka.running = true
	ka.stopCh = make(chan struct{})
	go ka.loop(ctx, ka.stopCh)
}

// Stop ends monitoring.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	if !ka.running {
		return
	}
	ka.running = false
	close(ka.stopCh)
}

// PongReceived reports a pong carrying seq.
func (ka *KeepAlive) PongReceived(seq uint32) {
	select {
	case ka.pongCh <- seq:
	default:
	}
}

// IsRunning reports whether monitoring is active.
func (ka *KeepAlive) IsRunning() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.running
}

// KeepAliveStats is a snapshot of the monitor state.
type KeepAliveStats struct {
	LastPingTime time.Time
	LastPongTime time.Time
	MissedPongs  int
	CurrentSeq   uint32
}

// Stats returns the current monitor state.
func (ka *KeepAlive) Stats() KeepAliveStats {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return KeepAliveStats{
		LastPingTime: ka.lastPingTime,
		LastPongTime: ka.lastPongTime,
		MissedPongs:  ka.missedPongs,
		CurrentSeq:   ka.sequence.Load(),
	}
}

func (ka *KeepAlive) loop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(ka.config.PingInterval)
	defer ticker.Stop()

	ka.ping()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if ka.expired() {
				ka.Stop()
				if ka.onTimeout != nil {
					ka.onTimeout()
				}
				return
			}
			ka.ping()
		case seq := <-ka.pongCh:
			ka.pong(seq)
		}
	}
}

func (ka *KeepAlive) ping() {
	seq := ka.sequence.Add(1)

	ka.mu.Lock()
	ka.lastPingTime = time.Now()
	ka.pendingPing = seq
	ka.hasPending = true
	ka.mu.Unlock()

	// A failed write leaves the ping pending; the next tick counts it.
	_ = ka.sendPing(seq)
}

// expired counts an overdue pending ping and reports whether the peer is
// considered dead.
func (ka *KeepAlive) expired() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	if !ka.hasPending || time.Since(ka.lastPingTime) < ka.config.PongTimeout {
		return false
	}
	ka.hasPending = false
	ka.missedPongs++
	return ka.missedPongs >= ka.config.MaxMissedPongs
}

func (ka *KeepAlive) pong(seq uint32) {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	ka.lastPongTime = time.Now()
	// Late pongs of earlier pings are ignored.
	if ka.hasPending && seq == ka.pendingPing {
		ka.hasPending = false
		ka.missedPongs = 0
	}
}
