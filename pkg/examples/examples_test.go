package examples

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/cert"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/description"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/model"
)

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"dishwasher", "oven", "washer"}, Names())
}

func TestEveryExampleBuildsAnAppliance(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			b, err := Load(name, "")
			require.NoError(t, err)

			a, err := model.NewAppliance(b.Description, b.PSK, b.Services)
			require.NoError(t, err)
			defer a.Close()

			assert.NotEmpty(t, a.Entities())
			assert.NotNil(t, a.ActiveProgram())

			_, err = cert.DeriveIdentity(b.PSK, a.Info()["deviceID"].(string))
			assert.NoError(t, err, "bundled key must derive a TLS identity")
		})
	}
}

func TestLoadDishwasher(t *testing.T) {
	b, err := Load("dishwasher", "")
	require.NoError(t, err)
	assert.Equal(t, "ogDydfD6Nupw227xEdQNBGdyit9czIb0V1Cs9Ot9DAU", b.PSK)
	assert.Nil(t, b.Services)

	a, err := model.NewAppliance(b.Description, b.PSK, b.Services)
	require.NoError(t, err)
	defer a.Close()

	door, ok := a.EntityByName("BSH.Common.Status.DoorState")
	require.True(t, ok)
	assert.Equal(t, "Closed", door.Value())
	power, _ := a.Entity(539)
	assert.Equal(t, "On", power.Value())
	assert.Equal(t, "Dishwasher", a.Info()["deviceType"])
}

func TestLoadOverridesPSKAndKeepsServices(t *testing.T) {
	b, err := Load("washer", "b3ZlcnJpZGU")
	require.NoError(t, err)
	assert.Equal(t, "b3ZlcnJpZGU", b.PSK)
	assert.Equal(t, 2, b.Services["ro"])
}

func TestLoadUnknown(t *testing.T) {
	_, err := Load("fridge", "")
	assert.ErrorIs(t, err, ErrUnknownExample)
	assert.ErrorContains(t, err, "dishwasher")
}

func TestReadCatalog(t *testing.T) {
	t.Run("name from file", func(t *testing.T) {
		c, err := readCatalog(fstest.MapFS{
			"appliances/fridge.yaml": {Data: []byte("description:\n  status:\n    - {uid: 1, name: A}\n")},
		})
		require.NoError(t, err)
		require.Contains(t, c, "fridge")

		_, err = c["fridge"].Bundle("")
		assert.NoError(t, err)
	})

	t.Run("duplicate name", func(t *testing.T) {
		_, err := readCatalog(fstest.MapFS{
			"appliances/a.yaml": {Data: []byte("name: x\n")},
			"appliances/b.yaml": {Data: []byte("name: x\n")},
		})
		assert.ErrorContains(t, err, "duplicate")
	})

	t.Run("invalid description", func(t *testing.T) {
		c, err := readCatalog(fstest.MapFS{
			"appliances/bad.yaml": {Data: []byte("description:\n  status:\n    - {name: NoUID}\n")},
		})
		require.NoError(t, err)
		_, err = c["bad"].Bundle("")
		assert.ErrorIs(t, err, description.ErrInvalidDescription)
	})
}
