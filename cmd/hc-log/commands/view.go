// Package commands implements the hc-log subcommands.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/log"
)

const timestampLayout = "2006-01-02T15:04:05.000000Z"

// Options holds the filter flags shared by every subcommand.
type Options struct {
	Session   string
	Appliance string
	Resource  string
	Layer     string
	Direction string
	Category  string
	TimeStart string
	TimeEnd   string
}

// Filter converts the flag values into a log filter.
func (o Options) Filter() (log.Filter, error) {
	f := log.Filter{
		SessionID:      o.Session,
		ApplianceID:    o.Appliance,
		ResourcePrefix: o.Resource,
	}

	if o.Layer != "" {
		l, err := ParseLayer(o.Layer)
		if err != nil {
			return f, err
		}
		f.Layer = &l
	}
	if o.Direction != "" {
		d, err := ParseDirection(o.Direction)
		if err != nil {
			return f, err
		}
		f.Direction = &d
	}
	if o.Category != "" {
		c, err := ParseCategory(o.Category)
		if err != nil {
			return f, err
		}
		f.Category = &c
	}
	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return f, fmt.Errorf("invalid time-start: %w", err)
		}
		f.TimeStart = &t
	}
	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return f, fmt.Errorf("invalid time-end: %w", err)
		}
		f.TimeEnd = &t
	}
	return f, nil
}

// ParseLayer parses a layer name (case-insensitive).
func ParseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "wire":
		return log.LayerWire, nil
	case "service":
		return log.LayerService, nil
	}
	return 0, fmt.Errorf("invalid layer %q (transport, wire or service)", s)
}

// ParseDirection parses "in" or "out" (case-insensitive).
func ParseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	}
	return 0, fmt.Errorf("invalid direction %q (in or out)", s)
}

// ParseCategory parses a category name (case-insensitive).
func ParseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "control":
		return log.CategoryControl, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	}
	return 0, fmt.Errorf("invalid category %q (message, control, state or error)", s)
}

// each calls fn for every event in path that matches filter.
func each(path string, filter log.Filter, fn func(log.Event) error) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read event: %w", err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}

// RunView prints the matching events of path in readable form.
func RunView(path string, filter log.Filter, w io.Writer) error {
	return each(path, filter, func(event log.Event) error {
		formatEvent(w, event)
		return nil
	})
}

// eventType names the payload an event carries.
func eventType(event log.Event) string {
	switch {
	case event.Frame != nil:
		return "Frame"
	case event.Message != nil:
		return event.Message.Action
	case event.StateChange != nil:
		return "State"
	case event.ControlMsg != nil:
		return event.ControlMsg.Type.String()
	case event.Error != nil:
		return "Error"
	}
	return "Unknown"
}

func formatEvent(w io.Writer, event log.Event) {
	layer := event.Layer.String()
	if event.Category == log.CategoryControl {
		layer = "CTRL"
	}
	fmt.Fprintf(w, "%s [session:%s] %-3s %s %s\n",
		event.Timestamp.UTC().Format(timestampLayout),
		shortID(event.SessionID),
		event.Direction,
		layer,
		eventType(event))

	switch {
	case event.Frame != nil:
		formatFrame(w, event.Frame)
	case event.Message != nil:
		formatMessage(w, event.Message)
	case event.StateChange != nil:
		formatStateChange(w, event.StateChange)
	case event.ControlMsg != nil:
		if event.ControlMsg.CloseCode != nil {
			fmt.Fprintf(w, "  Code: %d\n", *event.ControlMsg.CloseCode)
		}
	case event.Error != nil:
		formatError(w, event.Error)
	}
	fmt.Fprintln(w)
}

// shortID keeps the first 8 characters of a session UUID.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatFrame(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	if frame.Text != "" {
		fmt.Fprintf(w, "  Text: %s", frame.Text)
		if frame.Truncated {
			fmt.Fprint(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatMessage(w io.Writer, msg *log.MessageEvent) {
	fmt.Fprintf(w, "  Resource: %s\n", msg.Resource)
	if msg.MsgID != nil {
		fmt.Fprintf(w, "  MsgID: %d", *msg.MsgID)
		if msg.SID != nil {
			fmt.Fprintf(w, "  SID: %d", *msg.SID)
		}
		fmt.Fprintln(w)
	}
	if msg.Code != nil {
		fmt.Fprintf(w, "  Code: %d\n", *msg.Code)
	}
	if msg.ProcessingTime != nil {
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(*msg.ProcessingTime))
	}
	if len(msg.Payload) > 0 {
		if data, err := json.Marshal(msg.Payload); err == nil {
			fmt.Fprintf(w, "  Data: %s\n", data)
		}
	}
}

func formatStateChange(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatError(w io.Writer, e *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", e.Layer)
	fmt.Fprintf(w, "  Message: %s\n", e.Message)
	if e.Code != nil {
		fmt.Fprintf(w, "  Code: %d\n", *e.Code)
	}
	if e.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", e.Context)
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	case d < time.Second:
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}
