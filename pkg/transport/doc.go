// Package transport carries protocol text frames over WebSocket.
//
// The appliance endpoint is served at /homeconnect:
//
//	┌────────────────────────────────┐
//	│   JSON messages (text frames)  │
//	├────────────────────────────────┤
//	│          WebSocket             │
//	├────────────────────────────────┤
//	│     TLS (optional) / TCP       │
//	└────────────────────────────────┘
//
// Each accepted connection becomes a Channel with a UUID. Liveness is
// monitored with WebSocket pings:
//   - Ping interval: 2 seconds
//   - Pong timeout: 1 second
//   - One missed pong closes the channel
package transport
