package hub

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/description"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/model"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/transport"
)

func newTestAppliance(t *testing.T) *model.Appliance {
	t.Helper()
	a, err := model.NewAppliance(&description.DeviceDescription{
		Setting: []description.EntityDescription{{
			UID:          description.Int64(539),
			Name:         "BSH.Common.Setting.PowerState",
			ProtocolType: "Integer",
			Enumeration:  map[string]string{"1": "Off", "2": "On"},
			Access:       description.String("readWrite"),
			Available:    description.Bool(true),
			Default:      1,
		}},
		Status: []description.EntityDescription{{
			UID:          description.Int64(527),
			Name:         "BSH.Common.Status.DoorState",
			ProtocolType: "Integer",
			Access:       description.String("read"),
		}},
	}, "", nil)
	require.NoError(t, err)
	return a
}

type clientGauge struct {
	mu sync.Mutex
	n  int
}

func (g *clientGauge) AdminClients(n int) {
	g.mu.Lock()
	g.n = n
	g.mu.Unlock()
}

func (g *clientGauge) get() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

type fixture struct {
	hub   *Hub
	url   string
	gauge *clientGauge

	mu        sync.Mutex
	appliance *model.Appliance
	sets      []int64
}

func newFixture(t *testing.T, a *model.Appliance) *fixture {
	t.Helper()
	f := &fixture{appliance: a, gauge: &clientGauge{}}
	h, err := New(Config{
		Appliance: func() *model.Appliance {
			f.mu.Lock()
			defer f.mu.Unlock()
			return f.appliance
		},
		Channel: transport.ChannelConfig{DisableKeepAlive: true},
		OnSet: func(_ context.Context, e *model.Entity) {
			f.mu.Lock()
			f.sets = append(f.sets, e.UID())
			f.mu.Unlock()
		},
		Observer: f.gauge,
	})
	require.NoError(t, err)
	f.hub = h

	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	f.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return f
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestInitOnConnect(t *testing.T) {
	f := newFixture(t, newTestAppliance(t))
	conn := f.dial(t)

	msg := read(t, conn)
	assert.Equal(t, ActionInit, msg["action"])
	entities, ok := msg["entities"].([]any)
	require.True(t, ok)
	require.Len(t, entities, 2)
	first := entities[0].(map[string]any)
	assert.Equal(t, "BSH.Common.Status.DoorState", first["name"])

	require.Eventually(t, func() bool { return f.gauge.get() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSetBroadcastsUpdate(t *testing.T) {
	a := newTestAppliance(t)
	f := newFixture(t, a)
	c1, c2 := f.dial(t), f.dial(t)
	read(t, c1)
	read(t, c2)
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c1.WriteJSON(map[string]any{
		"action": "set", "uid": 539, "key": "value", "value": "On",
	}))

	for _, c := range []*websocket.Conn{c1, c2} {
		msg := read(t, c)
		assert.Equal(t, ActionUpdate, msg["action"])
		entity := msg["entity"].(map[string]any)
		assert.Equal(t, float64(539), entity["uid"])
		assert.Equal(t, "On", entity["value"])
	}

	e, _ := a.Entity(539)
	assert.Equal(t, int64(2), e.ValueRaw())
	f.mu.Lock()
	assert.Equal(t, []int64{539}, f.sets)
	f.mu.Unlock()
}

func TestSetCapability(t *testing.T) {
	a := newTestAppliance(t)
	f := newFixture(t, a)
	c := f.dial(t)
	read(t, c)

	require.NoError(t, c.WriteJSON(map[string]any{
		"action": "set", "uid": 539, "key": "available", "value": false,
	}))
	msg := read(t, c)
	assert.Equal(t, false, msg["entity"].(map[string]any)["available"])
}

func TestSetErrorsGoToSenderOnly(t *testing.T) {
	f := newFixture(t, newTestAppliance(t))
	sender, other := f.dial(t), f.dial(t)
	read(t, sender)
	read(t, other)

	require.NoError(t, sender.WriteJSON(map[string]any{
		"action": "set", "uid": 4242, "key": "value", "value": 1,
	}))
	msg := read(t, sender)
	assert.Equal(t, ActionError, msg["action"])
	assert.Contains(t, msg["error"], "unknown entity")

	require.NoError(t, sender.WriteJSON(map[string]any{
		"action": "set", "uid": 539, "key": "value", "value": "Standby",
	}))
	msg = read(t, sender)
	assert.Equal(t, ActionError, msg["action"])
	assert.Contains(t, msg["error"], "enumeration")

	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err, "other client must not see errors")
}

func TestProtocolUpdatesReachClients(t *testing.T) {
	a := newTestAppliance(t)
	f := newFixture(t, a)
	a.Subscribe(f.hub)
	c := f.dial(t)
	read(t, c)

	require.NoError(t, a.UpdateEntities(context.Background(), []map[string]any{{"uid": 527, "value": 1}}))

	msg := read(t, c)
	assert.Equal(t, ActionUpdate, msg["action"])
	assert.Equal(t, float64(527), msg["entity"].(map[string]any)["uid"])
}

func TestNoApplianceLoaded(t *testing.T) {
	f := newFixture(t, nil)
	c := f.dial(t)

	require.NoError(t, c.WriteJSON(map[string]any{"action": "set", "uid": 539, "key": "value", "value": 1}))
	msg := read(t, c)
	assert.Equal(t, ActionError, msg["action"], "no init is sent without an appliance")
	assert.Equal(t, ErrNoAppliance.Error(), msg["error"])

	f.mu.Lock()
	f.appliance = newTestAppliance(t)
	f.mu.Unlock()
	f.hub.BroadcastInit(context.Background())
	assert.Equal(t, ActionInit, read(t, c)["action"])
}

func TestDisconnectedClientIsRemoved(t *testing.T) {
	f := newFixture(t, newTestAppliance(t))
	gone, stay := f.dial(t), f.dial(t)
	read(t, gone)
	read(t, stay)
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	gone.Close()
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, f.gauge.get())

	f.hub.BroadcastInit(context.Background())
	assert.Equal(t, ActionInit, read(t, stay)["action"])
}

func TestCloseDisconnectsClients(t *testing.T) {
	f := newFixture(t, newTestAppliance(t))
	c := f.dial(t)
	read(t, c)
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	f.hub.Close()

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := c.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, f.hub.ClientCount())
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    request
		wantErr bool
	}{
		{"set", `{"action":"set","uid":539,"key":"value","value":"On"}`,
			request{Action: ActionSet, Set: SetRequest{UID: 539, Key: "value", Value: "On"}}, false},
		{"string uid", `{"action":"set","uid":"539","key":"available","value":true}`,
			request{Action: ActionSet, Set: SetRequest{UID: 539, Key: "available", Value: true}}, false},
		{"other action", `{"action":"ping"}`, request{Action: "ping"}, false},
		{"not json", `set 539`, request{}, true},
		{"missing uid", `{"action":"set","key":"value","value":1}`, request{}, true},
		{"missing key", `{"action":"set","uid":539,"value":1}`, request{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRequest(tt.text)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewRequiresAppliance(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
