// Package config loads the simulator configuration. Sources are applied in
// order, later ones overriding earlier ones: built-in defaults, a YAML file,
// a .env file and HCSIM_ environment variables. Command-line flags are
// applied on top by the binary.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/transport"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "HCSIM_"

// ErrInvalidConfig is wrapped by every validation error.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete simulator configuration.
type Config struct {
	Appliance ApplianceConfig `yaml:"appliance" envPrefix:"APPLIANCE_"`
	Admin     AdminConfig     `yaml:"admin" envPrefix:"ADMIN_"`
	Storage   StorageConfig   `yaml:"storage" envPrefix:"STORAGE_"`
	Discovery DiscoveryConfig `yaml:"discovery" envPrefix:"DISCOVERY_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`

	// Interactive starts the console on stdin.
	Interactive bool `yaml:"interactive" env:"INTERACTIVE"`
}

// ApplianceConfig configures the appliance endpoint.
type ApplianceConfig struct {
	Address string `yaml:"address" env:"ADDRESS"`
	Path    string `yaml:"path" env:"PATH"`

	// TLS is one of off, psk or static.
	TLS      string `yaml:"tls" env:"TLS"`
	CertFile string `yaml:"cert_file" env:"CERT_FILE"`
	KeyFile  string `yaml:"key_file" env:"KEY_FILE"`

	// PSK replaces the key of every uploaded description when set.
	PSK string `yaml:"psk" env:"PSK"`

	// Example names a bundled appliance served when no snapshot exists.
	Example string `yaml:"example" env:"EXAMPLE"`

	PingInterval   time.Duration `yaml:"ping_interval" env:"PING_INTERVAL"`
	PongTimeout    time.Duration `yaml:"pong_timeout" env:"PONG_TIMEOUT"`
	MaxMissedPongs int           `yaml:"max_missed_pongs" env:"MAX_MISSED_PONGS"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
}

// AdminConfig configures the admin API.
type AdminConfig struct {
	Address       string   `yaml:"address" env:"ADDRESS"`
	StaticDir     string   `yaml:"static_dir" env:"STATIC_DIR"`
	AllowOrigins  []string `yaml:"allow_origins" env:"ALLOW_ORIGINS" envSeparator:","`
	MaxUploadSize int64    `yaml:"max_upload_size" env:"MAX_UPLOAD_SIZE"`
}

// StorageConfig locates persisted files. Empty paths disable the feature.
type StorageConfig struct {
	SnapshotPath string `yaml:"snapshot_path" env:"SNAPSHOT_PATH"`
	HistoryPath  string `yaml:"history_path" env:"HISTORY_PATH"`
}

// DiscoveryConfig configures mDNS advertising.
type DiscoveryConfig struct {
	Enabled   bool          `yaml:"enabled" env:"ENABLED"`
	Interface string        `yaml:"interface" env:"INTERFACE"`
	Port      int           `yaml:"port" env:"PORT"`
	TTL       time.Duration `yaml:"ttl" env:"TTL"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`

	// ProtocolFile captures protocol events in CBOR when set.
	ProtocolFile string `yaml:"protocol_file" env:"PROTOCOL_FILE"`
}

// Default returns the built-in configuration.
func Default() *Config {
	ka := transport.DefaultKeepAliveConfig()
	return &Config{
		Appliance: ApplianceConfig{
			Address:        fmt.Sprintf(":%d", transport.DefaultPort),
			Path:           transport.DefaultPath,
			TLS:            "psk",
			PingInterval:   ka.PingInterval,
			PongTimeout:    ka.PongTimeout,
			MaxMissedPongs: ka.MaxMissedPongs,
			WriteTimeout:   transport.DefaultWriteTimeout,
		},
		Admin: AdminConfig{
			Address:       ":8080",
			MaxUploadSize: 32 << 20,
		},
		Storage: StorageConfig{
			SnapshotPath: "appliance.json",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and the environment. envFiles are loaded into the
// environment first; ".env" is tried when none are given, and missing
// files are skipped.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.Appliance.Address == "" {
		errs = append(errs, errors.New("appliance.address is required"))
	}
	if !strings.HasPrefix(c.Appliance.Path, "/") {
		errs = append(errs, fmt.Errorf("appliance.path %q must start with /", c.Appliance.Path))
	}
	switch c.Appliance.TLS {
	case "off", "psk":
	case "static":
		if c.Appliance.CertFile == "" || c.Appliance.KeyFile == "" {
			errs = append(errs, errors.New("appliance.tls static needs cert_file and key_file"))
		}
	default:
		errs = append(errs, fmt.Errorf("appliance.tls %q must be off, psk or static", c.Appliance.TLS))
	}
	if c.Appliance.PingInterval < 0 || c.Appliance.PongTimeout < 0 || c.Appliance.MaxMissedPongs < 0 {
		errs = append(errs, errors.New("appliance keep-alive settings must not be negative"))
	}
	if c.Admin.Address == "" {
		errs = append(errs, errors.New("admin.address is required"))
	}
	if c.Discovery.Port < 0 || c.Discovery.Port > 65535 {
		errs = append(errs, fmt.Errorf("discovery.port %d out of range", c.Discovery.Port))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// KeepAlive returns the transport keep-alive configuration.
func (c *ApplianceConfig) KeepAlive() transport.KeepAliveConfig {
	return transport.KeepAliveConfig{
		PingInterval:   c.PingInterval,
		PongTimeout:    c.PongTimeout,
		MaxMissedPongs: c.MaxMissedPongs,
	}
}

// Channel returns the transport channel configuration.
func (c *ApplianceConfig) Channel() transport.ChannelConfig {
	return transport.ChannelConfig{
		KeepAlive:        c.KeepAlive(),
		DisableKeepAlive: c.PingInterval == 0,
		WriteTimeout:     c.WriteTimeout,
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level %q must be debug, info, warn or error", s)
	}
	return level, nil
}

// NewLogger builds the operational logger described by c.
func (c *LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
