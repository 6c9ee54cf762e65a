package discovery

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// ServiceType is the DNS-SD service type of HomeConnect appliances.
	ServiceType = "_homeconnect._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the appliance WebSocket port.
	DefaultPort = 443

	// MaxInstanceNameLen is the DNS label limit for instance names.
	MaxInstanceNameLen = 63

	// DefaultTTL is the record TTL when none is configured.
	DefaultTTL = 120 * time.Second
)

// TXT record keys.
const (
	TXTKeyBrand = "brand"
	TXTKeyType  = "type"
	TXTKeyVib   = "vib"
	TXTKeyHaID  = "haId"
)

var (
	ErrMissingRequired = errors.New("missing required field")
	ErrInvalidPort     = errors.New("invalid port")
)

// ApplianceInfo is what the simulator announces.
type ApplianceInfo struct {
	Brand string
	Type  string
	Vib   string
	HaID  string
	Port  int
}

// InfoFromDevice builds the announcement from an appliance info record
// (the /iz/info data).
func InfoFromDevice(info map[string]any, port int) *ApplianceInfo {
	str := func(key string) string {
		if s, ok := info[key].(string); ok {
			return s
		}
		return ""
	}
	return &ApplianceInfo{
		Brand: str("brand"),
		Type:  str("deviceType"),
		Vib:   str("vib"),
		HaID:  str("deviceID"),
		Port:  port,
	}
}

// Validate checks the fields an announcement cannot do without.
func (i *ApplianceInfo) Validate() error {
	if i.Brand == "" {
		return fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyBrand)
	}
	if i.HaID == "" {
		return fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyHaID)
	}
	if i.Port < 0 || i.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, i.Port)
	}
	return nil
}

// InstanceName returns <brand>-<vib>-<haId>, cut to the DNS label limit.
func (i *ApplianceInfo) InstanceName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{i.Brand, i.Vib, i.HaID} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	name := strings.Join(parts, "-")
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}
