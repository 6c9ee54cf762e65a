package model

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/description"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/wire"
)

// recordingBroadcaster captures every broadcast message.
type recordingBroadcaster struct {
	mu   sync.Mutex
	msgs []*wire.Message
}

func (b *recordingBroadcaster) Send(_ context.Context, msg *wire.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, msg)
}

func (b *recordingBroadcaster) messages() []*wire.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*wire.Message, len(b.msgs))
	copy(out, b.msgs)
	return out
}

// channelSubscriber forwards updated entities to a channel.
type channelSubscriber struct {
	ch chan *Entity
}

func newChannelSubscriber() *channelSubscriber {
	return &channelSubscriber{ch: make(chan *Entity, 16)}
}

func (s *channelSubscriber) OnEntityUpdated(_ context.Context, e *Entity) {
	s.ch <- e
}

type panickingSubscriber struct{}

func (panickingSubscriber) OnEntityUpdated(context.Context, *Entity) {
	panic("subscriber failure")
}

func powerStateDesc() description.EntityDescription {
	return description.EntityDescription{
		UID:          description.Int64(1),
		Name:         "BSH.Common.Setting.PowerState",
		ProtocolType: "Integer",
		Enumeration:  map[string]string{"0": "Off", "1": "On"},
		Access:       description.String("readWrite"),
		Available:    description.Bool(true),
		Default:      float64(0),
	}
}

func TestNewEntityRequiresUIDAndName(t *testing.T) {
	_, err := NewEntity(KindSetting, description.EntityDescription{Name: "A"}, nil)
	if !errors.Is(err, ErrMissingUID) || !errors.Is(err, ErrConstruction) {
		t.Errorf("missing uid: got %v, want ErrMissingUID wrapping ErrConstruction", err)
	}

	_, err = NewEntity(KindSetting, description.EntityDescription{UID: description.Int64(1)}, nil)
	if !errors.Is(err, ErrMissingName) {
		t.Errorf("missing name: got %v, want ErrMissingName", err)
	}

	_, err = NewEntity(KindSetting, description.EntityDescription{
		UID: description.Int64(1), Name: "A", ProtocolType: "Blob",
	}, nil)
	if !errors.Is(err, ErrUnknownProtocolType) {
		t.Errorf("unknown type: got %v, want ErrUnknownProtocolType", err)
	}
}

func TestNewEntityDefaults(t *testing.T) {
	tests := []struct {
		name          string
		kind          Kind
		wantValue     any
		wantAvailable *bool
		wantAccess    bool
		wantRange     bool
	}{
		{"event starts at zero", KindEvent, int64(0), nil, false, false},
		{"active program available", KindActiveProgram, nil, description.Bool(true), true, false},
		{"selected program available", KindSelectedProgram, nil, description.Bool(true), true, false},
		{"protection port unavailable", KindProtectionPort, nil, description.Bool(false), true, false},
		{"program has availability only", KindProgram, nil, nil, false, false},
		{"setting has everything", KindSetting, nil, nil, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEntity(tt.kind, description.EntityDescription{
				UID: description.Int64(7), Name: "X", ProtocolType: "Integer",
			}, nil)
			if err != nil {
				t.Fatalf("NewEntity failed: %v", err)
			}
			if !valuesEqual(e.ValueRaw(), tt.wantValue) {
				t.Errorf("value: got %v, want %v", e.ValueRaw(), tt.wantValue)
			}
			got := e.Available()
			if (got == nil) != (tt.wantAvailable == nil) || (got != nil && *got != *tt.wantAvailable) {
				t.Errorf("available: got %v, want %v", got, tt.wantAvailable)
			}

			dump := e.Dump()
			if _, ok := dump["access"]; ok != tt.wantAccess {
				t.Errorf("dump has access = %v, want %v", ok, tt.wantAccess)
			}
			if _, ok := dump["min"]; ok != tt.wantRange {
				t.Errorf("dump has min = %v, want %v", ok, tt.wantRange)
			}
		})
	}
}

func TestInitValueThenDefault(t *testing.T) {
	e, err := NewEntity(KindStatus, description.EntityDescription{
		UID: description.Int64(1), Name: "A", ProtocolType: "Float",
		InitValue: "1.5", Default: float64(2),
	}, nil)
	if err != nil {
		t.Fatalf("NewEntity failed: %v", err)
	}
	if e.ValueRaw() != float64(2) {
		t.Errorf("value: got %v, want default 2", e.ValueRaw())
	}
}

func TestSetValueResolvesEnumeration(t *testing.T) {
	b := &recordingBroadcaster{}
	e, err := NewEntity(KindSetting, powerStateDesc(), b)
	if err != nil {
		t.Fatalf("NewEntity failed: %v", err)
	}

	if err := e.SetValue(context.Background(), "On"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	if e.ValueRaw() != int64(1) {
		t.Errorf("value_raw: got %#v, want 1", e.ValueRaw())
	}
	if e.Value() != "On" {
		t.Errorf("value: got %v, want On", e.Value())
	}

	msgs := b.messages()
	if len(msgs) != 1 {
		t.Fatalf("broadcasts: got %d, want 1", len(msgs))
	}
	if msgs[0].Resource != ResourceValues || msgs[0].Action != wire.ActionNotify {
		t.Errorf("broadcast: got %s %s", msgs[0].Action, msgs[0].Resource)
	}
	if msgs[0].Data[0]["uid"] != int64(1) || msgs[0].Data[0]["value"] != int64(1) {
		t.Errorf("payload: got %v, want {uid:1, value:1}", msgs[0].Data[0])
	}
}

func TestSetValueRejectsUnknownEnumValue(t *testing.T) {
	b := &recordingBroadcaster{}
	e, _ := NewEntity(KindSetting, powerStateDesc(), b)

	err := e.SetValue(context.Background(), "Standby")
	if !errors.Is(err, ErrInvalidEnumValue) || !errors.Is(err, ErrValidation) {
		t.Errorf("got %v, want ErrInvalidEnumValue", err)
	}
	if e.ValueRaw() != int64(0) {
		t.Errorf("value changed to %v", e.ValueRaw())
	}
	if len(b.messages()) != 0 {
		t.Error("rejected value was broadcast")
	}
}

func TestSetValueRawIsIdempotent(t *testing.T) {
	b := &recordingBroadcaster{}
	e, _ := NewEntity(KindSetting, powerStateDesc(), b)
	ctx := context.Background()

	if err := e.SetValueRaw(ctx, json.Number("1")); err != nil {
		t.Fatalf("SetValueRaw failed: %v", err)
	}
	if err := e.SetValueRaw(ctx, "1"); err != nil {
		t.Fatalf("SetValueRaw failed: %v", err)
	}

	if n := len(b.messages()); n != 1 {
		t.Errorf("broadcasts: got %d, want 1", n)
	}
}

func TestSetValueRawCoercionFailure(t *testing.T) {
	e, _ := NewEntity(KindSetting, powerStateDesc(), nil)
	if err := e.SetValueRaw(context.Background(), "high"); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("got %v, want ErrInvalidValue", err)
	}
}

func TestUpdateAlwaysBroadcasts(t *testing.T) {
	b := &recordingBroadcaster{}
	e, _ := NewEntity(KindSetting, powerStateDesc(), b)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := e.Update(ctx, map[string]any{"uid": json.Number("1"), "value": json.Number("0")}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	if n := len(b.messages()); n != 2 {
		t.Errorf("broadcasts: got %d, want 2", n)
	}
}

func TestUpdateNotifiesSubscribers(t *testing.T) {
	e, _ := NewEntity(KindSetting, powerStateDesc(), nil)
	sub := newChannelSubscriber()
	e.Subscribe(sub)
	e.Subscribe(sub) // no-op
	e.Subscribe(panickingSubscriber{})

	if err := e.Update(context.Background(), map[string]any{"value": 1}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	select {
	case got := <-sub.ch:
		if got != e {
			t.Error("subscriber received another entity")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber not notified")
	}

	select {
	case <-sub.ch:
		t.Error("subscriber registered twice was notified twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSetValueRawDoesNotNotifySubscribers(t *testing.T) {
	e, _ := NewEntity(KindSetting, powerStateDesc(), nil)
	sub := newChannelSubscriber()
	e.Subscribe(sub)

	_ = e.SetValueRaw(context.Background(), 1)
	_ = e.SetState(context.Background(), map[string]any{"available": false})

	select {
	case <-sub.ch:
		t.Error("subscriber notified outside Update")
	case <-time.After(50 * time.Millisecond):
	}

	e.Unsubscribe(sub)
	_ = e.Update(context.Background(), map[string]any{"value": 0})
	select {
	case <-sub.ch:
		t.Error("unsubscribed subscriber notified")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSetStateDescriptionChange(t *testing.T) {
	b := &recordingBroadcaster{}
	e, _ := NewEntity(KindSetting, powerStateDesc(), b)
	ctx := context.Background()

	err := e.SetState(ctx, map[string]any{
		"uid":       1,
		"access":    "read",
		"available": true, // unchanged
		"min":       0,
		"step":      1,
		"value_raw": 1,
	})
	if err != nil {
		t.Fatalf("SetState failed: %v", err)
	}

	msgs := b.messages()
	if len(msgs) != 2 {
		t.Fatalf("broadcasts: got %d, want value + description change", len(msgs))
	}
	if msgs[0].Resource != ResourceValues {
		t.Errorf("first broadcast: got %s, want %s", msgs[0].Resource, ResourceValues)
	}
	change := msgs[1].Data[0]
	if msgs[1].Resource != ResourceDescriptionChange {
		t.Errorf("second broadcast: got %s", msgs[1].Resource)
	}
	if change["uid"] != int64(1) || change["access"] != "READ" || change["min"] != int64(0) || change["stepSize"] != int64(1) {
		t.Errorf("change: got %v", change)
	}
	if _, ok := change["available"]; ok {
		t.Error("unchanged availability reported")
	}

	// Same state again changes nothing.
	_ = e.SetState(ctx, map[string]any{"access": "READ", "min": 0})
	if n := len(b.messages()); n != 2 {
		t.Errorf("broadcasts after repeat: got %d, want 2", n)
	}
}

func TestSetStateValidatesBeforeApplying(t *testing.T) {
	b := &recordingBroadcaster{}
	e, _ := NewEntity(KindSetting, powerStateDesc(), b)

	err := e.SetState(context.Background(), map[string]any{
		"available": false,
		"access":    "sometimes",
	})
	if !errors.Is(err, ErrInvalidAccess) {
		t.Errorf("got %v, want ErrInvalidAccess", err)
	}
	if av := e.Available(); av == nil || !*av {
		t.Error("availability changed despite invalid access")
	}
	if len(b.messages()) != 0 {
		t.Error("invalid state was broadcast")
	}
}

func TestSetStateNullCapabilities(t *testing.T) {
	b := &recordingBroadcaster{}
	e, _ := NewEntity(KindStatus, description.EntityDescription{
		UID: description.Int64(2), Name: "BSH.Common.Status.DoorState", ProtocolType: "Integer",
	}, b)
	ctx := context.Background()

	if err := e.SetState(ctx, map[string]any{"access": nil, "available": nil}); err != nil {
		t.Fatalf("SetState with absent fields failed: %v", err)
	}
	if len(b.messages()) != 0 {
		t.Error("null on absent fields broadcast a change")
	}

	s, _ := NewEntity(KindSetting, powerStateDesc(), b)
	if err := s.SetState(ctx, map[string]any{"available": nil}); err != nil {
		t.Fatalf("SetState clearing availability failed: %v", err)
	}
	if s.Available() != nil {
		t.Errorf("available: got %v, want cleared", *s.Available())
	}
	msgs := b.messages()
	if len(msgs) != 1 || msgs[0].Resource != ResourceDescriptionChange {
		t.Fatalf("broadcasts: got %d, want one description change", len(msgs))
	}
	if v, ok := msgs[0].Data[0]["available"]; !ok || v != nil {
		t.Errorf("change: got %v, want available:null", msgs[0].Data[0])
	}
}

func TestSetStateIgnoresFieldsOutsideKind(t *testing.T) {
	b := &recordingBroadcaster{}
	e, _ := NewEntity(KindEvent, description.EntityDescription{UID: description.Int64(5), Name: "E"}, b)

	if err := e.SetState(context.Background(), map[string]any{"access": "read", "min": 3}); err != nil {
		t.Fatalf("SetState failed: %v", err)
	}
	if len(b.messages()) != 0 {
		t.Error("event without capabilities broadcast a description change")
	}
}

func TestDescriptionChangesRoundTrip(t *testing.T) {
	e, _ := NewEntity(KindSetting, powerStateDesc(), nil)
	ctx := context.Background()

	if got := e.DescriptionChanges(); len(got) != 1 {
		t.Errorf("fresh entity: got %v, want only uid", got)
	}

	_ = e.SetState(ctx, map[string]any{"access": "read"})
	if got := e.DescriptionChanges(); got["access"] != "READ" {
		t.Errorf("changed access: got %v", got)
	}

	// Back to the declared level (case differs from the description).
	_ = e.SetState(ctx, map[string]any{"access": "READWRITE"})
	if _, ok := e.DescriptionChanges()["access"]; ok {
		t.Error("access equal to description reported as change")
	}

	_ = e.SetState(ctx, map[string]any{"max": 10})
	if got := e.DescriptionChanges(); got["max"] != int64(10) {
		t.Errorf("max declared absent: got %v", got)
	}
}

func TestForcedAvailabilityIsReported(t *testing.T) {
	e, _ := NewEntity(KindActiveProgram, description.EntityDescription{
		UID: description.Int64(256), Name: "BSH.Common.Root.ActiveProgram",
	}, nil)
	if got := e.DescriptionChanges(); got["available"] != true {
		t.Errorf("got %v, want available:true", got)
	}
}

func TestDump(t *testing.T) {
	e, _ := NewEntity(KindSetting, powerStateDesc(), nil)
	_ = e.SetValueRaw(context.Background(), 1)

	d := e.Dump()
	want := map[string]any{
		"uid":          int64(1),
		"name":         "BSH.Common.Setting.PowerState",
		"value":        "On",
		"value_raw":    int64(1),
		"protocolType": "Integer",
		"contentType":  nil,
		"access":       "READWRITE",
		"available":    true,
		"min":          nil,
		"max":          nil,
		"step":         nil,
	}
	for k, v := range want {
		if !valuesEqual(d[k], v) {
			t.Errorf("%s: got %#v, want %#v", k, d[k], v)
		}
	}
	enum, ok := d["enum"].(map[int64]string)
	if !ok || enum[1] != "On" {
		t.Errorf("enum: got %#v", d["enum"])
	}
}

func TestEnumInvariantUnderConcurrentMutation(t *testing.T) {
	e, _ := NewEntity(KindSetting, powerStateDesc(), &recordingBroadcaster{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			_ = e.SetValueRaw(ctx, i%2)
		}(i)
		go func(i int) {
			defer wg.Done()
			_ = e.Update(ctx, map[string]any{"value": (i + 1) % 2})
		}(i)
		go func() {
			defer wg.Done()
			_ = e.SetState(ctx, map[string]any{"value": "On", "available": false})
		}()
	}
	wg.Wait()

	d := e.Dump()
	want := map[int64]string{0: "Off", 1: "On"}[d["value_raw"].(int64)]
	if d["value"] != want {
		t.Errorf("value %v does not match value_raw %v", d["value"], d["value_raw"])
	}
}
