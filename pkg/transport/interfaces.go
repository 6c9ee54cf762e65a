package transport

import (
	"context"
	"errors"
	"net"
)

// ErrClosed is returned by operations on a closed channel.
var ErrClosed = errors.New("transport: channel closed")

// Channel is a bidirectional stream of text frames.
type Channel interface {
	// ID returns the connection id (UUID).
	ID() string

	// RemoteAddr returns the peer address.
	RemoteAddr() string

	// Send writes one text frame. Concurrent calls are serialized.
	Send(ctx context.Context, text string) error

	// Receive blocks for the next text frame. It fails with ErrClosed once
	// the channel is closed, and closes the channel when ctx ends.
	Receive(ctx context.Context) (string, error)

	// Close closes the channel. It is safe to call more than once.
	Close() error

	// Closed is closed when the channel is.
	Closed() <-chan struct{}
}

// TransportServer accepts channels.
type TransportServer interface {
	Start(ctx context.Context) error
	Stop() error
	Addr() net.Addr
	ConnectionCount() int
}

var (
	_ Channel         = (*wsChannel)(nil)
	_ TransportServer = (*Server)(nil)
)
