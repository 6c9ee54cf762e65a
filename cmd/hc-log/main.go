// Command hc-log inspects protocol capture files written by hc-sim
// -protocol-log.
//
// Usage:
//
//	hc-log view    [filters] <file.hclog>
//	hc-log export  [filters] [-format jsonl|csv] [-o file] <file.hclog>
//	hc-log filter  [filters] -o <out.hclog> <file.hclog>
//	hc-log stats   [filters] <file.hclog>
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/chris-mc1/homeconnect-ws-sim/cmd/hc-log/commands"
)

const usage = `hc-log - HomeConnect capture file tool

Usage:
  hc-log <command> [flags] <file.hclog>

Commands:
  view     Print events in readable form
  export   Convert events to JSONL or CSV
  filter   Copy matching events to a new capture file
  stats    Summarize a capture file

Filters (all commands):
  -session    Session ID
  -appliance  Appliance deviceID
  -resource   Resource prefix, e.g. /ro/
  -layer      transport, wire or service
  -direction  in or out
  -category   message, control, state or error
  -time-start RFC3339 start time (inclusive)
  -time-end   RFC3339 end time (exclusive)
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) < 1 {
		fmt.Fprint(stderr, usage)
		return flag.ErrHelp
	}

	cmd, args := args[0], args[1:]
	switch cmd {
	case "view":
		return runView(args, stdout, stderr)
	case "export":
		return runExport(args, stdout, stderr)
	case "filter":
		return runFilter(args, stdout, stderr)
	case "stats":
		return runStats(args, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	}
	fmt.Fprint(stderr, usage)
	return fmt.Errorf("unknown command %q", cmd)
}

// newFlagSet registers the shared filter flags on a new flag set.
func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *commands.Options) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &commands.Options{}
	fs.StringVar(&opts.Session, "session", "", "Filter by session ID")
	fs.StringVar(&opts.Appliance, "appliance", "", "Filter by appliance deviceID")
	fs.StringVar(&opts.Resource, "resource", "", "Filter by resource prefix")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, wire, service)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (message, control, state, error)")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	return fs, opts
}

// parse parses args and returns the capture file path.
func parse(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() < 1 {
		return "", errors.New("log file path required")
	}
	return fs.Arg(0), nil
}

func runView(args []string, stdout, stderr io.Writer) error {
	fs, opts := newFlagSet("view", stderr)
	path, err := parse(fs, args)
	if err != nil {
		return err
	}
	filter, err := opts.Filter()
	if err != nil {
		return err
	}
	return commands.RunView(path, filter, stdout)
}

func runExport(args []string, stdout, stderr io.Writer) error {
	fs, opts := newFlagSet("export", stderr)
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path, err := parse(fs, args)
	if err != nil {
		return err
	}
	filter, err := opts.Filter()
	if err != nil {
		return err
	}

	w := stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return commands.RunExport(path, filter, *format, w)
}

func runFilter(args []string, stdout, stderr io.Writer) error {
	fs, opts := newFlagSet("filter", stderr)
	output := fs.String("o", "", "Output capture file (required)")
	path, err := parse(fs, args)
	if err != nil {
		return err
	}
	if *output == "" {
		return errors.New("output file (-o) required")
	}
	filter, err := opts.Filter()
	if err != nil {
		return err
	}

	n, err := commands.RunFilter(path, filter, *output)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Filtered %d events to %s\n", n, *output)
	return nil
}

func runStats(args []string, stdout, stderr io.Writer) error {
	fs, opts := newFlagSet("stats", stderr)
	path, err := parse(fs, args)
	if err != nil {
		return err
	}
	filter, err := opts.Filter()
	if err != nil {
		return err
	}
	return commands.RunStats(path, filter, stdout)
}
