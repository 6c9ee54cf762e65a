package commands

import (
	"cmp"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/log"
)

// Stats aggregates a capture file.
type Stats struct {
	TotalEvents        int
	EventsByLayer      map[log.Layer]int
	EventsByCategory   map[log.Category]int
	EventsByDirection  map[log.Direction]int
	MessagesByResource map[string]int
	Sessions           map[string]*SessionStats
	Errors             int
	Start, End         time.Time
}

// SessionStats aggregates the events of one session.
type SessionStats struct {
	FirstSeen   time.Time
	LastSeen    time.Time
	Events      int
	RemoteAddr  string
	ApplianceID string
}

// Collect reads the matching events of path into a Stats.
func Collect(path string, filter log.Filter) (*Stats, error) {
	stats := &Stats{
		EventsByLayer:      make(map[log.Layer]int),
		EventsByCategory:   make(map[log.Category]int),
		EventsByDirection:  make(map[log.Direction]int),
		MessagesByResource: make(map[string]int),
		Sessions:           make(map[string]*SessionStats),
	}

	err := each(path, filter, func(event log.Event) error {
		stats.TotalEvents++
		stats.EventsByLayer[event.Layer]++
		stats.EventsByCategory[event.Category]++
		stats.EventsByDirection[event.Direction]++

		if stats.Start.IsZero() || event.Timestamp.Before(stats.Start) {
			stats.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.End) {
			stats.End = event.Timestamp
		}

		s, ok := stats.Sessions[event.SessionID]
		if !ok {
			s = &SessionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
			stats.Sessions[event.SessionID] = s
		}
		s.Events++
		if event.Timestamp.After(s.LastSeen) {
			s.LastSeen = event.Timestamp
		}
		if s.RemoteAddr == "" {
			s.RemoteAddr = event.RemoteAddr
		}
		if s.ApplianceID == "" {
			s.ApplianceID = event.ApplianceID
		}

		if event.Message != nil {
			stats.MessagesByResource[event.Message.Resource]++
		}
		if event.Error != nil {
			stats.Errors++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// RunStats prints the statistics of path to w.
func RunStats(path string, filter log.Filter, w io.Writer) error {
	stats, err := Collect(path, filter)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== HomeConnect Capture Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n", stats.Start.Format(time.RFC3339), stats.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n\n", stats.End.Sub(stats.Start).Round(time.Second))
	}
	fmt.Fprintf(w, "Total Events: %d\n\n", stats.TotalEvents)

	fmt.Fprintln(w, "Events by Layer:")
	for _, l := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerService} {
		if n := stats.EventsByLayer[l]; n > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", l.String()+":", n)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, c := range []log.Category{log.CategoryMessage, log.CategoryControl, log.CategoryState, log.CategoryError} {
		if n := stats.EventsByCategory[c]; n > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", c.String()+":", n)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, d := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if n := stats.EventsByDirection[d]; n > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", d.String()+":", n)
		}
	}
	fmt.Fprintln(w)

	if len(stats.MessagesByResource) > 0 {
		fmt.Fprintln(w, "Messages by Resource:")
		for _, r := range slices.Sorted(maps.Keys(stats.MessagesByResource)) {
			fmt.Fprintf(w, "  %-28s %d\n", r, stats.MessagesByResource[r])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Sessions: %d\n", len(stats.Sessions))
	ids := slices.SortedFunc(maps.Keys(stats.Sessions), func(a, b string) int {
		return cmp.Or(
			stats.Sessions[a].FirstSeen.Compare(stats.Sessions[b].FirstSeen),
			cmp.Compare(a, b),
		)
	})
	for _, id := range ids {
		s := stats.Sessions[id]
		fmt.Fprintf(w, "  [%s] %d events, duration %s\n",
			shortID(id), s.Events, s.LastSeen.Sub(s.FirstSeen).Round(time.Millisecond))
		if s.RemoteAddr != "" {
			fmt.Fprintf(w, "           Remote: %s\n", s.RemoteAddr)
		}
		if s.ApplianceID != "" {
			fmt.Fprintf(w, "           Appliance: %s\n", s.ApplianceID)
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintf(w, "\nErrors: %d\n", stats.Errors)
	}
}
