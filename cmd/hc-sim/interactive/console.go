// Package interactive provides the command console of hc-sim.
package interactive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/chzyer/readline"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/model"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/service"
)

// Simulator is the part of the simulator the console drives.
type Simulator interface {
	Appliance() *model.Appliance
	SetEntityState(ctx context.Context, uid int64, state map[string]any) (*model.Entity, error)
	Sessions() []service.SessionInfo
}

// Console handles interactive mode for hc-sim.
type Console struct {
	sim Simulator
	rl  *readline.Instance
	out io.Writer
}

// New creates a console reading from the terminal.
func New(sim Simulator) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "hc-sim> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{sim: sim, rl: rl, out: rl.Stdout()}, nil
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("list"),
		readline.PcItem("get"),
		readline.PcItem("set"),
		readline.PcItem("raw"),
		readline.PcItem("state"),
		readline.PcItem("values"),
		readline.PcItem("changes"),
		readline.PcItem("sessions"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}

// Stdout returns a writer that coordinates with the prompt. Use it for log
// output while the console runs.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run reads commands until quit, EOF or ctx ends. cancel is called when the
// user leaves.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()
	stop := context.AfterFunc(ctx, func() { _ = c.rl.Close() })
	defer stop()

	c.printHelp()
	for {
		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) && ctx.Err() == nil {
				continue
			}
			if ctx.Err() == nil {
				fmt.Fprintln(c.out, "Exiting...")
				cancel()
			}
			return
		}
		if c.Execute(ctx, line) {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line and reports whether the user asked to quit.
func (c *Console) Execute(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "list", "ls":
		c.cmdList()
	case "get", "g":
		c.cmdGet(args)
	case "set", "s":
		c.cmdSet(ctx, args, "value")
	case "raw":
		c.cmdSet(ctx, args, "value_raw")
	case "state":
		c.cmdState(ctx, args)
	case "values":
		c.printJSON(c.withAppliance(func(a *model.Appliance) any { return a.AllValues() }))
	case "changes":
		c.printJSON(c.withAppliance(func(a *model.Appliance) any { return a.AllDescriptionChanges() }))
	case "sessions":
		c.cmdSessions()
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
hc-sim Commands:
  Entities:
    list                          - List all entities
    get <uid|name>                - Show an entity
    set <uid|name> <value>        - Set a display value (enum name or value)
    raw <uid|name> <raw>          - Set a raw protocol value
    state <uid|name> <key> <val>  - Set access, available, min, max or step

  Protocol view:
    values                        - Current values as sent to clients
    changes                       - Current description changes
    sessions                      - Connected protocol sessions

  General:
    help                          - Show this help
    quit                          - Exit hc-sim`)
}

func (c *Console) withAppliance(f func(a *model.Appliance) any) any {
	a := c.sim.Appliance()
	if a == nil {
		fmt.Fprintln(c.out, "No appliance loaded")
		return nil
	}
	return f(a)
}

func (c *Console) printJSON(v any) {
	if v == nil {
		return
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, string(data))
}

func (c *Console) lookup(ref string) (*model.Entity, bool) {
	a := c.sim.Appliance()
	if a == nil {
		fmt.Fprintln(c.out, "No appliance loaded")
		return nil, false
	}
	if uid, err := strconv.ParseInt(ref, 10, 64); err == nil {
		if e, ok := a.Entity(uid); ok {
			return e, true
		}
	}
	if e, ok := a.EntityByName(ref); ok {
		return e, true
	}
	fmt.Fprintf(c.out, "Unknown entity: %s\n", ref)
	return nil, false
}

func (c *Console) cmdList() {
	a := c.sim.Appliance()
	if a == nil {
		fmt.Fprintln(c.out, "No appliance loaded")
		return
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UID\tKIND\tNAME\tVALUE")
	for _, e := range a.Entities() {
		value := "-"
		if v := e.Value(); v != nil {
			value = fmt.Sprint(v)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.UID(), e.Kind(), e.Name(), value)
	}
	_ = tw.Flush()
}

func (c *Console) cmdGet(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: get <uid|name>")
		return
	}
	if e, ok := c.lookup(args[0]); ok {
		c.printJSON(e.Dump())
	}
}

func (c *Console) cmdSet(ctx context.Context, args []string, key string) {
	if len(args) < 2 {
		fmt.Fprintf(c.out, "Usage: %s <uid|name> <value>\n", map[string]string{"value": "set", "value_raw": "raw"}[key])
		return
	}
	c.apply(ctx, args[0], key, parseValue(strings.Join(args[1:], " ")))
}

func (c *Console) cmdState(ctx context.Context, args []string) {
	if len(args) < 3 {
		fmt.Fprintln(c.out, "Usage: state <uid|name> <access|available|min|max|step> <value>")
		return
	}
	c.apply(ctx, args[0], args[1], parseValue(strings.Join(args[2:], " ")))
}

func (c *Console) apply(ctx context.Context, ref, key string, value any) {
	e, ok := c.lookup(ref)
	if !ok {
		return
	}
	if _, err := c.sim.SetEntityState(ctx, e.UID(), map[string]any{key: value}); err != nil {
		fmt.Fprintf(c.out, "Set failed: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "OK")
}

func (c *Console) cmdSessions() {
	sessions := c.sim.Sessions()
	if len(sessions) == 0 {
		fmt.Fprintln(c.out, "No connected sessions")
		return
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REMOTE\tSID\tSTATE\tSINCE")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", s.RemoteAddr, s.SID, s.State, s.Since.Format("15:04:05"))
	}
	_ = tw.Flush()
}

// parseValue reads an int, then a float, then a bool, and falls back to the
// unquoted string.
func parseValue(s string) any {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseBool(s); err == nil {
		return v
	}
	return strings.Trim(s, "\"'")
}
