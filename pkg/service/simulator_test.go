package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/cert"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/description"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/discovery"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/discovery/mocks"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/history"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/metrics"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/model"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/persistence"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/transport"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/wire"
)

var testPSK = base64.RawURLEncoding.EncodeToString(bytes.Repeat([]byte{0x5a}, 32))

func testBundle(vib string) *description.Bundle {
	return &description.Bundle{
		Description: &description.DeviceDescription{
			Info: map[string]any{"brand": "SIEMENS", "vib": vib, "deviceID": "012345678901234567", "deviceType": "Dishwasher"},
			Status: []description.EntityDescription{
				{UID: description.Int64(527), Name: "BSH.Common.Status.DoorState", ProtocolType: "Integer",
					Enumeration: map[string]string{"0": "Open", "1": "Closed"}, Default: 1},
			},
			Setting: []description.EntityDescription{
				{UID: description.Int64(539), Name: "BSH.Common.Setting.PowerState", ProtocolType: "Integer",
					Enumeration: map[string]string{"1": "Off", "2": "On"}, Access: description.String("readWrite"),
					Available: description.Bool(true), Default: 1},
			},
		},
		PSK: testPSK,
	}
}

func newTestSimulator(t *testing.T, mutate func(*Config)) *Simulator {
	t.Helper()
	cfg := Config{
		ListenAddress: "127.0.0.1:0",
		Channel:       transport.ChannelConfig{DisableKeepAlive: true},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	sim, err := New(cfg)
	require.NoError(t, err)
	return sim
}

func receive(t *testing.T, ch transport.Channel) *wire.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	text, err := ch.Receive(ctx)
	require.NoError(t, err)
	msg, err := wire.ParseMessage(text)
	require.NoError(t, err)
	return msg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		ok     bool
	}{
		{"plain", Config{ListenAddress: ":443"}, true},
		{"no address", Config{}, false},
		{"static without cert", Config{ListenAddress: ":443", TLS: TLSStatic}, false},
		{"bad advertise port", Config{ListenAddress: ":443", AdvertisePort: 70000}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestParseTLSMode(t *testing.T) {
	for _, mode := range []TLSMode{TLSOff, TLSDerived, TLSStatic} {
		got, err := ParseTLSMode(mode.String())
		require.NoError(t, err)
		assert.Equal(t, mode, got)
	}
	_, err := ParseTLSMode("tls13")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadPublishesSavesAndAdvertises(t *testing.T) {
	adv := mocks.NewMockAdvertiser(t)
	adv.EXPECT().Advertise(mock.Anything, mock.MatchedBy(func(info *discovery.ApplianceInfo) bool {
		return info.Brand == "SIEMENS" && info.Vib == "SN658X06TE" && info.Port == 8443
	})).Return(nil).Once()

	store := persistence.NewStore(filepath.Join(t.TempDir(), "appliance.json"))
	m := metrics.New()
	sim := newTestSimulator(t, func(c *Config) {
		c.Advertiser = adv
		c.AdvertisePort = 8443
		c.Store = store
		c.Metrics = m
	})

	assert.Nil(t, sim.Appliance())
	_, err := sim.Snapshot()
	assert.ErrorIs(t, err, ErrNoAppliance)

	require.NoError(t, sim.Load(context.Background(), testBundle("SN658X06TE")))

	a := sim.Appliance()
	require.NotNil(t, a)
	assert.Equal(t, "SN658X06TE", a.Info()["vib"])

	snap, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, testPSK, snap.PSK)
	assert.Equal(t, "SN658X06TE", snap.Description.Info["vib"])
}

func TestLoadRejectsInvalidBundle(t *testing.T) {
	sim := newTestSimulator(t, nil)

	err := sim.Load(context.Background(), &description.Bundle{})
	assert.ErrorIs(t, err, description.ErrInvalidDescription)

	b := testBundle("SN658X06TE")
	b.State = []map[string]any{{"uid": 4242, "value_raw": 1}}
	err = sim.Load(context.Background(), b)
	assert.ErrorIs(t, err, model.ErrUnknownEntity)
	assert.Nil(t, sim.Appliance(), "a failed load publishes nothing")
}

func TestLoadUpload(t *testing.T) {
	sim := newTestSimulator(t, nil)

	doc, err := json.Marshal(map[string]any{
		"info": map[string]any{"brand": "BOSCH", "vib": "WAX32M40"},
		"setting": []map[string]any{
			{"uid": 539, "name": "BSH.Common.Setting.PowerState", "protocolType": "Integer", "access": "readWrite"},
		},
	})
	require.NoError(t, err)

	require.NoError(t, sim.LoadUpload(context.Background(), "washer.json", doc, testPSK))
	require.NotNil(t, sim.Appliance())
	assert.Equal(t, testPSK, sim.Appliance().PSK())

	err = sim.LoadUpload(context.Background(), "washer.xml", []byte("<device/>"), testPSK)
	assert.ErrorIs(t, err, description.ErrUnsupportedFormat)
}

func TestSnapshotCarriesEntityState(t *testing.T) {
	sim := newTestSimulator(t, nil)
	require.NoError(t, sim.Load(context.Background(), testBundle("SN658X06TE")))

	_, err := sim.SetEntityState(context.Background(), 539, map[string]any{"value": "On", "available": false})
	require.NoError(t, err)

	snap, err := sim.Snapshot()
	require.NoError(t, err)

	byUID := make(map[int64]map[string]any)
	for _, rec := range snap.State {
		byUID[rec["uid"].(int64)] = rec
	}
	require.Contains(t, byUID, int64(539))
	assert.Equal(t, int64(2), byUID[539]["value_raw"])
	assert.Equal(t, false, byUID[539]["available"])
	assert.Equal(t, "READWRITE", byUID[539]["access"])
	assert.Equal(t, int64(1), byUID[527]["value_raw"])
}

func TestStartRestoresSnapshot(t *testing.T) {
	store := persistence.NewStore(filepath.Join(t.TempDir(), "appliance.json"))
	b := testBundle("SN658X06TE")
	b.State = []map[string]any{{"uid": 539, "value_raw": 2}}
	require.NoError(t, store.Save(persistence.FromBundle(b)))

	sim := newTestSimulator(t, func(c *Config) { c.Store = store })
	require.NoError(t, sim.Start(context.Background()))
	t.Cleanup(func() { _ = sim.Stop() })

	assert.Equal(t, StateRunning, sim.State())
	a := sim.Appliance()
	require.NotNil(t, a)
	e, ok := a.Entity(539)
	require.True(t, ok)
	assert.Equal(t, "On", e.Value())

	assert.ErrorIs(t, sim.Start(context.Background()), ErrAlreadyStarted)
}

func TestStartWithoutSnapshot(t *testing.T) {
	store := persistence.NewStore(filepath.Join(t.TempDir(), "missing.json"))
	sim := newTestSimulator(t, func(c *Config) { c.Store = store })

	require.NoError(t, sim.Start(context.Background()))
	assert.Nil(t, sim.Appliance())
	require.NoError(t, sim.Stop())

	_, err := os.Stat(store.Path())
	assert.True(t, os.IsNotExist(err), "nothing to save without an appliance")
}

func TestStartLoadsInitialAppliance(t *testing.T) {
	store := persistence.NewStore(filepath.Join(t.TempDir(), "appliance.json"))
	sim := newTestSimulator(t, func(c *Config) {
		c.Store = store
		c.Initial = testBundle("SN658X06TE")
	})
	require.NoError(t, sim.Start(context.Background()))
	t.Cleanup(func() { _ = sim.Stop() })

	a := sim.Appliance()
	require.NotNil(t, a)
	assert.Equal(t, "SN658X06TE", a.Info()["vib"])
	assert.FileExists(t, store.Path())
}

func TestSnapshotTakesPrecedenceOverInitial(t *testing.T) {
	store := persistence.NewStore(filepath.Join(t.TempDir(), "appliance.json"))
	require.NoError(t, store.Save(persistence.FromBundle(testBundle("SAVED"))))

	sim := newTestSimulator(t, func(c *Config) {
		c.Store = store
		c.Initial = testBundle("INITIAL")
	})
	require.NoError(t, sim.Start(context.Background()))
	t.Cleanup(func() { _ = sim.Stop() })

	assert.Equal(t, "SAVED", sim.Appliance().Info()["vib"])
}

func TestSessionLifecycleAcrossReload(t *testing.T) {
	adv := mocks.NewMockAdvertiser(t)
	adv.EXPECT().Advertise(mock.Anything, mock.Anything).Return(nil).Times(2)
	adv.EXPECT().Stop().Return(nil).Once()

	sim := newTestSimulator(t, func(c *Config) { c.Advertiser = adv })
	require.NoError(t, sim.Start(context.Background()))
	require.NoError(t, sim.Load(context.Background(), testBundle("SN658X06TE")))

	ctx := context.Background()
	ch, err := transport.Dial(ctx, sim.URL(), nil, transport.ChannelConfig{DisableKeepAlive: true})
	require.NoError(t, err)
	defer ch.Close()

	init := receive(t, ch)
	assert.Equal(t, "/ei/initialValues", init.Resource)
	assert.Equal(t, wire.ActionPost, init.Action)

	require.Eventually(t, func() bool {
		list := sim.Sessions()
		return len(list) == 1 && list[0].State == "ACTIVE"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, *init.SID, sim.Sessions()[0].SID)

	msgID := int64(7)
	get := wire.NewMessage("/ci/services", wire.ActionGet)
	get.SID, get.MsgID = init.SID, &msgID
	text, err := get.Dump()
	require.NoError(t, err)
	require.NoError(t, ch.Send(ctx, text))

	resp := receive(t, ch)
	assert.Equal(t, wire.ActionResponse, resp.Action)
	assert.Equal(t, msgID, *resp.MsgID)
	assert.NotEmpty(t, resp.Data)

	// Replacing the appliance ends the sessions of the old one.
	require.NoError(t, sim.Load(ctx, testBundle("SN658X07TE")))
	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err = ch.Receive(rctx)
	assert.ErrorIs(t, err, transport.ErrClosed)
	assert.Eventually(t, func() bool { return len(sim.Sessions()) == 0 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, sim.Stop())
	assert.Equal(t, StateStopped, sim.State())
	assert.ErrorIs(t, sim.Stop(), ErrNotStarted)
}

func TestConnectionWithoutApplianceIsClosed(t *testing.T) {
	sim := newTestSimulator(t, nil)
	require.NoError(t, sim.Start(context.Background()))
	t.Cleanup(func() { _ = sim.Stop() })

	ch, err := transport.Dial(context.Background(), sim.URL(), nil, transport.ChannelConfig{DisableKeepAlive: true})
	require.NoError(t, err)
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = ch.Receive(ctx)
	assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestDerivedTLSIdentity(t *testing.T) {
	sim := newTestSimulator(t, func(c *Config) { c.TLS = TLSDerived })
	require.NoError(t, sim.Start(context.Background()))
	t.Cleanup(func() { _ = sim.Stop() })
	require.NoError(t, sim.Load(context.Background(), testBundle("SN658X06TE")))

	assert.Contains(t, sim.URL(), "wss://")

	expected, err := cert.DeriveIdentity(testPSK, "012345678901234567")
	require.NoError(t, err)

	ch, err := transport.Dial(context.Background(), sim.URL(),
		transport.NewPinnedClientTLSConfig(expected.Leaf),
		transport.ChannelConfig{DisableKeepAlive: true})
	require.NoError(t, err)
	defer ch.Close()

	assert.Equal(t, "/ei/initialValues", receive(t, ch).Resource)
}

func TestSetEntityState(t *testing.T) {
	journal, err := history.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })

	sim := newTestSimulator(t, func(c *Config) { c.Journal = journal })
	ctx := context.Background()

	_, err = sim.SetEntityState(ctx, 539, map[string]any{"value": "On"})
	assert.ErrorIs(t, err, ErrNoAppliance)

	require.NoError(t, sim.Load(ctx, testBundle("SN658X06TE")))

	e, err := sim.SetEntityState(ctx, 539, map[string]any{"value": "On"})
	require.NoError(t, err)
	assert.Equal(t, "On", e.Value())

	_, err = sim.SetEntityState(ctx, 1, map[string]any{"value": 1})
	assert.ErrorIs(t, err, model.ErrUnknownEntity)

	_, err = sim.SetEntityState(ctx, 539, map[string]any{"value": "Standby"})
	assert.ErrorIs(t, err, model.ErrValidation)

	require.Eventually(t, func() bool {
		records, err := journal.List(ctx, history.Query{UID: 539})
		if err != nil {
			return false
		}
		for _, r := range records {
			if r.Origin == history.OriginAdmin {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}
