// Command hc-sim simulates a HomeConnect appliance on the local network.
//
// It serves the appliance WebSocket endpoint that HomeConnect clients talk
// to, and an admin API where a device description is uploaded and the
// simulated state is inspected and edited.
//
// Usage:
//
//	hc-sim [flags]
//
// Flags:
//
//	-config string         YAML configuration file
//	-env-file string       .env file to load (default ".env")
//	-address string        Appliance endpoint address (default ":443")
//	-admin-address string  Admin API address (default ":8080")
//	-tls string            Appliance TLS: off, psk, static (default "psk")
//	-psk string            Override the PSK of every uploaded description
//	-example string        Serve a bundled appliance when no snapshot exists
//	-list-examples         Print the bundled appliances and exit
//	-snapshot string       Snapshot file (default "appliance.json")
//	-history string        SQLite history database (disabled when empty)
//	-static string         Admin UI directory
//	-protocol-log string   Capture protocol events to a .hclog file
//	-log-level string      debug, info, warn, error (default "info")
//	-log-format string     text or json (default "text")
//	-mdns                  Advertise the appliance via mDNS
//	-interactive           Start the command console
//	-export-identity dir   Write the identity derived from -psk and exit
//	-device-id string      Common name for -export-identity, the appliance deviceID
//
// Examples:
//
//	# Serve plain ws on port 8443 and restore the last upload
//	hc-sim -address :8443 -tls off
//
//	# Start with the bundled dishwasher until something is uploaded
//	hc-sim -example dishwasher
//
//	# Derived TLS identity, history and console
//	hc-sim -history history.db -interactive -log-level debug
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chris-mc1/homeconnect-ws-sim/cmd/hc-sim/interactive"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/admin"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/cert"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/config"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/discovery"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/examples"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/history"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/log"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/metrics"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/model"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/persistence"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/service"
)

type flags struct {
	configFile     string
	envFile        string
	exportIdentity string
	deviceID       string
	listExamples   bool

	address      string
	adminAddress string
	tls          string
	psk          string
	example      string
	snapshot     string
	history      string
	static       string
	protocolLog  string
	logLevel     string
	logFormat    string
	mdns         bool
	interactive  bool
}

func parseFlags(args []string) (*flags, *flag.FlagSet, error) {
	f := &flags{}
	fs := flag.NewFlagSet("hc-sim", flag.ContinueOnError)
	fs.StringVar(&f.configFile, "config", "", "YAML configuration file")
	fs.StringVar(&f.envFile, "env-file", ".env", ".env file to load")
	fs.StringVar(&f.exportIdentity, "export-identity", "", "Write the identity derived from -psk to this directory and exit")
	fs.StringVar(&f.deviceID, "device-id", "homeconnect-appliance", "Common name for -export-identity")
	fs.StringVar(&f.address, "address", "", "Appliance endpoint address")
	fs.StringVar(&f.adminAddress, "admin-address", "", "Admin API address")
	fs.StringVar(&f.tls, "tls", "", "Appliance TLS: off, psk, static")
	fs.StringVar(&f.psk, "psk", "", "Override the PSK of every uploaded description")
	fs.StringVar(&f.example, "example", "", "Serve a bundled appliance when no snapshot exists")
	fs.BoolVar(&f.listExamples, "list-examples", false, "Print the bundled appliances and exit")
	fs.StringVar(&f.snapshot, "snapshot", "", "Snapshot file")
	fs.StringVar(&f.history, "history", "", "SQLite history database")
	fs.StringVar(&f.static, "static", "", "Admin UI directory")
	fs.StringVar(&f.protocolLog, "protocol-log", "", "Capture protocol events to a "+log.FileExtension+" file")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&f.logFormat, "log-format", "", "Log format: text or json")
	fs.BoolVar(&f.mdns, "mdns", false, "Advertise the appliance via mDNS")
	fs.BoolVar(&f.interactive, "interactive", false, "Start the command console")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return f, fs, nil
}

// apply copies the flags that were set on the command line over cfg.
func (f *flags) apply(cfg *config.Config, fs *flag.FlagSet) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "address":
			cfg.Appliance.Address = f.address
		case "admin-address":
			cfg.Admin.Address = f.adminAddress
		case "tls":
			cfg.Appliance.TLS = f.tls
		case "psk":
			cfg.Appliance.PSK = f.psk
		case "example":
			cfg.Appliance.Example = f.example
		case "snapshot":
			cfg.Storage.SnapshotPath = f.snapshot
		case "history":
			cfg.Storage.HistoryPath = f.history
		case "static":
			cfg.Admin.StaticDir = f.static
		case "protocol-log":
			cfg.Log.ProtocolFile = f.protocolLog
		case "log-level":
			cfg.Log.Level = f.logLevel
		case "log-format":
			cfg.Log.Format = f.logFormat
		case "mdns":
			cfg.Discovery.Enabled = f.mdns
		case "interactive":
			cfg.Interactive = f.interactive
		}
	})
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "hc-sim: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	f, fs, err := parseFlags(args)
	if err != nil {
		return err
	}

	if f.exportIdentity != "" {
		return exportIdentity(f.exportIdentity, f.psk, f.deviceID)
	}
	if f.listExamples {
		return listExamples(os.Stdout)
	}

	cfg, err := config.Load(f.configFile, f.envFile)
	if err != nil {
		return err
	}
	f.apply(cfg, fs)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer app.close()

	return app.run(ctx, cancel)
}

func exportIdentity(dir, psk, commonName string) error {
	id, err := cert.DeriveIdentity(psk, commonName)
	if err != nil {
		return err
	}
	certPath := filepath.Join(dir, "appliance.crt")
	keyPath := filepath.Join(dir, "appliance.key")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := cert.WriteIdentity(certPath, keyPath, id); err != nil {
		return err
	}
	fmt.Printf("Wrote %s and %s\nFingerprint: %s\n", certPath, keyPath, cert.Fingerprint(id.Leaf))
	return nil
}

func listExamples(w io.Writer) error {
	for _, name := range examples.Names() {
		ex, err := examples.Get(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%-12s %s\n", name, ex.Title)
	}
	return nil
}

// app holds the wired components of one hc-sim process.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	console *interactive.Console

	capture *log.FileLogger
	journal *history.Journal
	metrics *metrics.Metrics
	sim     *service.Simulator
	admin   *http.Server
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New()}

	var out io.Writer = os.Stderr
	if cfg.Interactive {
		// The console exists before the simulator, so logs go through it.
		console, err := interactive.New(simRef{a})
		if err != nil {
			return nil, err
		}
		a.console = console
		out = console.Stdout()
	}
	a.logger = cfg.Log.NewLogger(out)
	slog.SetDefault(a.logger)

	var protocolLoggers []log.Logger
	if a.logger.Enabled(context.Background(), slog.LevelDebug) {
		protocolLoggers = append(protocolLoggers, log.NewSlogAdapter(a.logger))
	}
	if cfg.Log.ProtocolFile != "" {
		fl, err := log.NewFileLogger(cfg.Log.ProtocolFile)
		if err != nil {
			return nil, fmt.Errorf("open protocol log: %w", err)
		}
		a.capture = fl
		protocolLoggers = append(protocolLoggers, fl)
	}

	if cfg.Storage.HistoryPath != "" {
		j, err := history.Open(cfg.Storage.HistoryPath, a.logger)
		if err != nil {
			a.close()
			return nil, err
		}
		a.journal = j
	}

	channel := cfg.Appliance.Channel()
	channel.Logger = log.NewMultiLogger(protocolLoggers...)

	tlsMode, err := service.ParseTLSMode(cfg.Appliance.TLS)
	if err != nil {
		a.close()
		return nil, err
	}
	svcConfig := service.Config{
		ListenAddress:  cfg.Appliance.Address,
		Path:           cfg.Appliance.Path,
		TLS:            tlsMode,
		Channel:        channel,
		Journal:        a.journal,
		Metrics:        a.metrics,
		AdvertisePort:  cfg.Discovery.Port,
		Logger:         a.logger,
		ProtocolLogger: channel.Logger,
	}
	if tlsMode == service.TLSStatic {
		id, err := cert.LoadIdentity(cfg.Appliance.CertFile, cfg.Appliance.KeyFile)
		if err != nil {
			a.close()
			return nil, err
		}
		svcConfig.Certificate = &id
	}
	if cfg.Storage.SnapshotPath != "" {
		svcConfig.Store = persistence.NewStore(cfg.Storage.SnapshotPath)
	}
	if cfg.Appliance.Example != "" {
		b, err := examples.Load(cfg.Appliance.Example, cfg.Appliance.PSK)
		if err != nil {
			a.close()
			return nil, err
		}
		svcConfig.Initial = b
	}
	if cfg.Discovery.Enabled {
		advConfig := discovery.DefaultAdvertiserConfig()
		advConfig.Interface = cfg.Discovery.Interface
		if cfg.Discovery.TTL > 0 {
			advConfig.TTL = cfg.Discovery.TTL
		}
		svcConfig.Advertiser = discovery.NewMDNSAdvertiser(advConfig)
	}

	sim, err := service.New(svcConfig)
	if err != nil {
		a.close()
		return nil, err
	}
	a.sim = sim

	router, err := admin.NewRouter(admin.Config{
		Simulator:     sim,
		Hub:           sim.Hub(),
		Journal:       a.journal,
		Metrics:       a.metrics,
		StaticDir:     cfg.Admin.StaticDir,
		PSK:           cfg.Appliance.PSK,
		MaxUploadSize: cfg.Admin.MaxUploadSize,
		AllowOrigins:  cfg.Admin.AllowOrigins,
		Logger:        a.logger.With("component", "admin"),
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.admin = &http.Server{
		Addr:              cfg.Admin.Address,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

func (a *app) run(ctx context.Context, cancel context.CancelFunc) error {
	g, ctx := errgroup.WithContext(ctx)

	if err := a.sim.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("admin API listening", "address", a.cfg.Admin.Address)

	g.Go(func() error {
		<-ctx.Done()
		if err := a.sim.SaveSnapshot(); err != nil {
			a.logger.Warn("save snapshot", "error", err)
		}
		return a.sim.Stop()
	})
	g.Go(func() error {
		if err := a.admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin API: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		return a.admin.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return stopSignalHandler(ctx, cancel, a.logger)
	})
	if a.console != nil {
		g.Go(func() error {
			a.console.Run(ctx, cancel)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		a.logger.Error("hc-sim terminated with error", "error", err)
		return err
	}
	a.logger.Info("hc-sim stopped")
	return nil
}

func (a *app) close() {
	if a.journal != nil {
		_ = a.journal.Close()
	}
	if a.capture != nil {
		_ = a.capture.Close()
	}
}

// simRef resolves the simulator at call time, since the console is built
// before it.
type simRef struct{ a *app }

func (r simRef) Appliance() *model.Appliance {
	return r.a.sim.Appliance()
}

func (r simRef) SetEntityState(ctx context.Context, uid int64, state map[string]any) (*model.Entity, error) {
	return r.a.sim.SetEntityState(ctx, uid, state)
}

func (r simRef) Sessions() []service.SessionInfo {
	return r.a.sim.Sessions()
}

func stopSignalHandler(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) error {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)
	select {
	case sig := <-c:
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
		return nil
	case <-ctx.Done():
		return nil
	}
}
