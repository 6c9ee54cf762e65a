package service

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/description"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/discovery"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/history"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/log"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/metrics"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/persistence"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/transport"
)

// Service errors.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrAlreadyStarted = errors.New("service already started")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrNoAppliance    = errors.New("no appliance loaded")
)

// ServiceState represents the service state.
type ServiceState uint8

const (
	StateIdle ServiceState = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

// String returns the state name.
func (s ServiceState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// TLSMode selects how the appliance endpoint is secured.
type TLSMode uint8

const (
	// TLSOff serves plain ws.
	TLSOff TLSMode = iota

	// TLSDerived serves wss with an identity derived from the loaded
	// appliance's PSK. The certificate changes with every load.
	TLSDerived

	// TLSStatic serves wss with Config.Certificate.
	TLSStatic
)

// String returns the mode name used in configuration.
func (m TLSMode) String() string {
	switch m {
	case TLSOff:
		return "off"
	case TLSDerived:
		return "psk"
	case TLSStatic:
		return "static"
	default:
		return "unknown"
	}
}

// ParseTLSMode parses a configuration value.
func ParseTLSMode(s string) (TLSMode, error) {
	switch s {
	case "off", "":
		return TLSOff, nil
	case "psk":
		return TLSDerived, nil
	case "static":
		return TLSStatic, nil
	}
	return TLSOff, fmt.Errorf("%w: tls mode %q", ErrInvalidConfig, s)
}

// Config configures a Simulator.
type Config struct {
	// ListenAddress is the appliance endpoint address (e.g. ":443").
	ListenAddress string

	// Path is the WebSocket path, default transport.DefaultPath.
	Path string

	TLS TLSMode

	// Certificate is used with TLSStatic.
	Certificate *tls.Certificate

	// Channel configures protocol connections; admin connections use it too.
	Channel transport.ChannelConfig

	// Store persists the loaded appliance. Optional.
	Store *persistence.Store

	// Initial is loaded at Start when no snapshot is restored. Optional.
	Initial *description.Bundle

	// Journal records entity changes. Optional.
	Journal *history.Journal

	// Metrics collects runtime metrics. Optional.
	Metrics *metrics.Metrics

	// Advertiser announces the loaded appliance via mDNS. Optional.
	Advertiser discovery.Advertiser

	// AdvertisePort overrides the advertised port; the listen port is used
	// when zero.
	AdvertisePort int

	// Logger is the operational logger, slog.Default when nil.
	Logger *slog.Logger

	// ProtocolLogger captures protocol events. Optional.
	ProtocolLogger log.Logger
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("%w: listen address required", ErrInvalidConfig)
	}
	if c.TLS == TLSStatic && c.Certificate == nil {
		return fmt.Errorf("%w: static TLS needs a certificate", ErrInvalidConfig)
	}
	if c.AdvertisePort < 0 || c.AdvertisePort > 65535 {
		return fmt.Errorf("%w: advertise port %d", ErrInvalidConfig, c.AdvertisePort)
	}
	return nil
}

// SessionInfo describes one open protocol session.
type SessionInfo struct {
	ID         string         `json:"id"`
	RemoteAddr string         `json:"remote_addr"`
	SID        int64          `json:"sid"`
	State      string         `json:"state"`
	Since      time.Time      `json:"since"`
	AppInfo    map[string]any `json:"app_info"`
}
