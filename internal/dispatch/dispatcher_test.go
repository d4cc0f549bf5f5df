package dispatch

import (
	"errors"
	"testing"

	"hvacautomation/internal/ha"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		entityID string
		expected Target
	}{
		{"number.supply_flow", Target{"number", "set_value", "value"}},
		{"input_number.flow_setpoint", Target{"input_number", "set_value", "value"}},
		{"select.fan_mode", Target{"select", "select_option", "option"}},
		{"input_select.ventilation_mode", Target{"input_select", "select_option", "option"}},
		{"cover.bypass_damper", Target{"cover", "set_position", "position"}},
		{"light.hallway", Target{"light", "turn_on", "brightness"}},
		{"media_player.kitchen", Target{"media_player", "volume_set", "volume_level"}},
		{"climate.living_room", Target{"climate", "set_temperature", "temperature"}},
		{"fan.attic", Target{"fan", "set_speed", "speed"}},
	}

	for _, tt := range tests {
		t.Run(tt.entityID, func(t *testing.T) {
			target, err := Resolve(tt.entityID)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, target)
		})
	}
}

func TestResolve_Unsupported(t *testing.T) {
	for _, entityID := range []string{"switch.pump", "sensor.co2_office", "input_text.previous_modes", "nodot", ""} {
		t.Run(entityID, func(t *testing.T) {
			_, err := Resolve(entityID)
			assert.True(t, errors.Is(err, ErrUnsupportedDomain))
		})
	}
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "number", DomainOf("number.supply_flow"))
	assert.Equal(t, "sensor", DomainOf("sensor.a.b"))
	assert.Equal(t, "nodot", DomainOf("nodot"))
}

func TestDomains(t *testing.T) {
	assert.Equal(t, []string{
		"climate", "cover", "fan", "input_number", "input_select",
		"light", "media_player", "number", "select",
	}, Domains())
}

func TestDispatcher_Dispatch(t *testing.T) {
	logger, _ := zap.NewDevelopment()

	t.Run("issues exactly one service call", func(t *testing.T) {
		mock := ha.NewMockClient()
		d := NewDispatcher(mock, logger, false)

		require.NoError(t, d.Dispatch("select.fan_mode", "Reduced"))

		calls := mock.GetServiceCalls()
		require.Len(t, calls, 1)
		assert.Equal(t, "select", calls[0].Domain)
		assert.Equal(t, "select_option", calls[0].Service)
		assert.Equal(t, map[string]interface{}{"entity_id": "select.fan_mode", "option": "Reduced"}, calls[0].Data)
	})

	t.Run("numeric value passes through unchanged", func(t *testing.T) {
		mock := ha.NewMockClient()
		d := NewDispatcher(mock, logger, false)

		require.NoError(t, d.Dispatch("cover.bypass_damper", 100))

		calls := mock.GetServiceCalls()
		require.Len(t, calls, 1)
		assert.Equal(t, 100, calls[0].Data["position"])
	})

	t.Run("unsupported domain makes no call", func(t *testing.T) {
		mock := ha.NewMockClient()
		d := NewDispatcher(mock, logger, false)

		err := d.Dispatch("switch.pump", "on")
		assert.ErrorIs(t, err, ErrUnsupportedDomain)
		assert.Empty(t, mock.GetServiceCalls())
	})

	t.Run("service error is returned", func(t *testing.T) {
		mock := ha.NewMockClient()
		mock.SetServiceError(errors.New("boom"))
		d := NewDispatcher(mock, logger, false)

		assert.Error(t, d.Dispatch("fan.attic", "low"))
	})

	t.Run("read-only mode skips the call", func(t *testing.T) {
		mock := ha.NewMockClient()
		d := NewDispatcher(mock, logger, true)

		require.NoError(t, d.Dispatch("number.supply_flow", 120))
		assert.Empty(t, mock.GetServiceCalls())

		assert.ErrorIs(t, d.Dispatch("switch.pump", "on"), ErrUnsupportedDomain)
	})
}

func TestHAPublisher(t *testing.T) {
	mock := ha.NewMockClient()
	p := NewHAPublisher(mock)

	require.NoError(t, p.Publish("ventilation/flow", 95))

	calls := mock.GetServiceCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "mqtt", calls[0].Domain)
	assert.Equal(t, "publish", calls[0].Service)
	assert.Equal(t, "ventilation/flow", calls[0].Data["topic"])
	assert.Equal(t, 95, calls[0].Data["payload"])

	assert.Error(t, p.Publish("", 1))
}

func TestReadOnlyPublisher(t *testing.T) {
	p := NewReadOnlyPublisher(zap.NewNop())

	assert.NoError(t, p.Publish("ventilation/flow", 95))
	assert.Error(t, p.Publish("", 95))
}
