package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Dial connects to a WebSocket endpoint and returns it as a channel. It is
// used by tools and tests acting as a protocol client.
func Dial(ctx context.Context, url string, tlsConf *tls.Config, config ChannelConfig) (Channel, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		TLSClientConfig:  tlsConf,
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (HTTP %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return newChannel(context.WithoutCancel(ctx), conn, config), nil
}
