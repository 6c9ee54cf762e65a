package log

import (
	"io"
	"testing"
	"time"
)

func TestFilterMatch(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	out := DirectionOut
	state := CategoryState
	end := base.Add(time.Minute)

	ev := Event{
		Timestamp:   base,
		SessionID:   "s1",
		ApplianceID: "dev",
		Direction:   DirectionOut,
		Category:    CategoryMessage,
		Message:     &MessageEvent{Action: "NOTIFY", Resource: "/ro/values"},
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty matches", Filter{}, true},
		{"session", Filter{SessionID: "s1"}, true},
		{"other session", Filter{SessionID: "s2"}, false},
		{"appliance", Filter{ApplianceID: "other"}, false},
		{"direction", Filter{Direction: &out}, true},
		{"category", Filter{Category: &state}, false},
		{"resource prefix", Filter{ResourcePrefix: "/ro/"}, true},
		{"resource mismatch", Filter{ResourcePrefix: "/ci/"}, false},
		{"start inclusive", Filter{TimeStart: &base}, true},
		{"end exclusive", Filter{TimeEnd: &base}, false},
		{"inside window", Filter{TimeStart: &base, TimeEnd: &end}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(ev); got != tt.want {
				t.Errorf("Match = %v, want %v", got, tt.want)
			}
		})
	}

	noMsg := Event{SessionID: "s1"}
	f := Filter{ResourcePrefix: "/ro/"}
	if f.Match(noMsg) {
		t.Error("resource filter matched an event without message")
	}
}

func TestFilteredReader(t *testing.T) {
	events := []Event{
		{SessionID: "s1", Category: CategoryState, StateChange: &StateChangeEvent{Entity: StateEntitySession, NewState: "ACTIVE"}},
		{SessionID: "s2", Category: CategoryMessage, Message: &MessageEvent{Action: "GET", Resource: "/ci/services"}},
		{SessionID: "s1", Category: CategoryMessage, Message: &MessageEvent{Action: "GET", Resource: "/iz/info"}},
	}
	path := writeCapture(t, events)

	r, err := NewFilteredReader(path, Filter{SessionID: "s1"})
	if err != nil {
		t.Fatalf("NewFilteredReader failed: %v", err)
	}
	defer r.Close()

	first, err := r.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if first.StateChange == nil || first.StateChange.NewState != "ACTIVE" {
		t.Errorf("first: got %+v", first)
	}
	second, err := r.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if second.Message == nil || second.Message.Resource != "/iz/info" {
		t.Errorf("second: got %+v", second)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("got %v, want io.EOF", err)
	}
}

func TestNewReaderMissingFile(t *testing.T) {
	if _, err := NewReader("/nonexistent/capture.hclog"); err == nil {
		t.Error("expected error for missing file")
	}
}
