package switchvalue

import (
	"context"
	"testing"

	"hvacautomation/internal/automation"
	"hvacautomation/internal/dispatch"
	"hvacautomation/internal/ha"
	"hvacautomation/pkg/plugin"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRule_Evaluate(t *testing.T) {
	tests := []struct {
		name     string
		switchOn string
		expected any
	}{
		{"switch on", "on", "High"},
		{"switch off", "off", "Normal"},
		{"switch unavailable uses off value", "unavailable", "Normal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := zap.NewDevelopment()
			mock := ha.NewMockClient()
			rule, err := NewRule("party_mode", Params{
				SwitchEntityID: "input_boolean.party",
				OutputEntityID: "input_select.ventilation_mode",
				OnValue:        "High",
				OffValue:       "Normal",
			}, mock, dispatch.NewDispatcher(mock, logger, false), logger)
			require.NoError(t, err)

			mock.SetState("input_boolean.party", tt.switchOn, nil)
			mock.SetState("input_select.ventilation_mode", "Normal", nil)

			outcome, err := rule.Evaluate(context.Background())
			require.NoError(t, err)
			assert.Equal(t, automation.ActionSet, outcome.Action)
			assert.Equal(t, tt.expected, outcome.Decision)

			calls := mock.GetServiceCalls()
			require.Len(t, calls, 1)
			assert.Equal(t, "input_select", calls[0].Domain)
			assert.Equal(t, "select_option", calls[0].Service)
			assert.Equal(t, tt.expected, calls[0].Data["option"])
		})
	}
}

func TestRule_Errors(t *testing.T) {
	logger := zap.NewNop()
	params := Params{
		SwitchEntityID: "switch.summer",
		OutputEntityID: "climate.living_room",
		OnValue:        24,
		OffValue:       21,
	}

	t.Run("output checked before switch", func(t *testing.T) {
		mock := ha.NewMockClient()
		rule, err := NewRule("summer", params, mock, dispatch.NewDispatcher(mock, logger, false), logger)
		require.NoError(t, err)

		_, err = rule.Evaluate(context.Background())
		require.ErrorIs(t, err, automation.ErrEntityNotFound)
		assert.Contains(t, err.Error(), "climate.living_room")
	})

	t.Run("missing switch", func(t *testing.T) {
		mock := ha.NewMockClient()
		mock.SetState("climate.living_room", "heat", nil)
		rule, err := NewRule("summer", params, mock, dispatch.NewDispatcher(mock, logger, false), logger)
		require.NoError(t, err)

		_, err = rule.Evaluate(context.Background())
		require.ErrorIs(t, err, automation.ErrEntityNotFound)
		assert.Contains(t, err.Error(), "switch.summer")
		assert.Empty(t, mock.GetServiceCalls())
	})

	t.Run("unsupported output domain", func(t *testing.T) {
		mock := ha.NewMockClient()
		mock.SetState("switch.pump", "off", nil)
		mock.SetState("switch.summer", "on", nil)
		p := params
		p.OutputEntityID = "switch.pump"
		rule, err := NewRule("summer", p, mock, dispatch.NewDispatcher(mock, logger, false), logger)
		assert.Nil(t, rule)
		assert.ErrorIs(t, err, dispatch.ErrUnsupportedDomain)
		assert.Contains(t, err.Error(), "output_entity_id")
		assert.Empty(t, mock.GetServiceCalls())
	})

	t.Run("missing parameters", func(t *testing.T) {
		for option, mutate := range map[string]func(p *Params){
			"switch_entity_id": func(p *Params) { p.SwitchEntityID = "" },
			"output_entity_id": func(p *Params) { p.OutputEntityID = "" },
			"on_value":         func(p *Params) { p.OnValue = nil },
			"off_value":        func(p *Params) { p.OffValue = nil },
		} {
			p := params
			mutate(&p)
			err := p.Validate()
			assert.ErrorIs(t, err, automation.ErrMissingParameter)
			assert.Contains(t, err.Error(), option)
		}
	})
}

func TestImbalanceRule(t *testing.T) {
	logger := zap.NewNop()
	mock := ha.NewMockClient()
	ctx := plugin.NewContext(mock, dispatch.NewDispatcher(mock, logger, false), nil, nil, logger)

	rule, err := plugin.Build(ctx, ImbalanceKind, "fireplace", plugin.BytesDecoder([]byte(
		`{"switch_entity_id": "input_boolean.fireplace", "numeric_entity_id": "number.ventilation_imbalance", "on_value": 15}`)))
	require.NoError(t, err)
	assert.Equal(t, ImbalanceKind, rule.Kind())

	mock.SetState("input_boolean.fireplace", "on", nil)
	_, err = rule.Evaluate(context.Background())
	require.NoError(t, err)

	mock.SetState("input_boolean.fireplace", "off", nil)
	outcome, err := rule.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, outcome.Decision)

	calls := mock.GetServiceCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "number", calls[0].Domain)
	assert.Equal(t, "set_value", calls[0].Service)
	assert.Equal(t, 15.0, calls[0].Data["value"])
	assert.Equal(t, 0.0, calls[1].Data["value"])

	t.Run("missing switch", func(t *testing.T) {
		mock.RemoveState("input_boolean.fireplace")
		_, err := rule.Evaluate(context.Background())
		assert.ErrorIs(t, err, automation.ErrEntityNotFound)
	})

	t.Run("non-numeric target", func(t *testing.T) {
		_, err := plugin.Build(ctx, ImbalanceKind, "bad", plugin.BytesDecoder([]byte(
			`{"switch_entity_id": "input_boolean.fireplace", "numeric_entity_id": "select.fan_mode"}`)))
		assert.ErrorIs(t, err, dispatch.ErrUnsupportedDomain)
	})

	t.Run("missing switch option", func(t *testing.T) {
		_, err := plugin.Build(ctx, ImbalanceKind, "bad", plugin.BytesDecoder([]byte(`{"numeric_entity_id": "number.x"}`)))
		assert.ErrorIs(t, err, automation.ErrMissingParameter)
	})
}
