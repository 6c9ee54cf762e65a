// Package admin serves the simulator's admin HTTP API: description upload,
// the admin WebSocket, appliance and session inspection, change history,
// health, metrics and the static admin UI.
package admin
