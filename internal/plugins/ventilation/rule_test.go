package ventilation

import (
	"context"
	"errors"
	"testing"

	"hvacautomation/internal/automation"
	"hvacautomation/internal/ha"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type publishCall struct {
	topic   string
	payload any
}

type capturePublisher struct {
	calls []publishCall
	err   error
}

func (c *capturePublisher) Publish(topic string, payload any) error {
	if c.err != nil {
		return c.err
	}
	c.calls = append(c.calls, publishCall{topic: topic, payload: payload})
	return nil
}

func intPtr(v int) *int { return &v }

func baseParams() Params {
	return Params{
		InputEntities: []string{"sensor.co2_living_room", "sensor.co2_office"},
		OutputEntity:  "sensor.ventilation_flow",
		MQTTTopic:     "ventilation/flow/set",
	}
}

func newTestRule(t *testing.T, params Params) (*Rule, *ha.MockClient, *capturePublisher) {
	logger, _ := zap.NewDevelopment()
	mock := ha.NewMockClient()
	pub := &capturePublisher{}
	rule, err := NewRule("living_flow", params, mock, pub, logger)
	require.NoError(t, err)
	return rule, mock, pub
}

func TestRoundToFive(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{12, 10},
		{13, 15},
		{17, 15},
		{18, 20},
		{0, 0},
		{2, 0},
		{3, 5},
		{95, 95},
		{-3, -5},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, RoundToFive(tt.input), "RoundToFive(%d)", tt.input)
	}
}

func TestRule_Target(t *testing.T) {
	tests := []struct {
		name            string
		lowest, highest *int
		maxPPM          int
		expectedTarget  int
		expectedRounded int
	}{
		{"plain", nil, nil, 812, 93, 95},
		{"near atmospheric", nil, nil, 401, 46, 45},
		{"clamped up", intPtr(60), nil, 401, 46, 60},
		{"clamped down", nil, intPtr(150), 2003, 230, 150},
		{"inside boundaries", intPtr(60), intPtr(150), 812, 93, 95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := baseParams()
			params.LowestBoundary = tt.lowest
			params.HighestBoundary = tt.highest
			rule, _, _ := newTestRule(t, params)

			target, rounded := rule.Target(tt.maxPPM)
			assert.Equal(t, tt.expectedTarget, target)
			assert.Equal(t, tt.expectedRounded, rounded)
		})
	}
}

func TestRule_Evaluate(t *testing.T) {
	tests := []struct {
		name           string
		co2            []string
		current        string
		expectedAction automation.Action
		expectedValue  int
	}{
		{"within hysteresis passes", []string{"4383", "700"}, "500", automation.ActionPass, 505},
		{"beyond hysteresis sets rounded value", []string{"4409", "700"}, "500", automation.ActionSet, 505},
		{"unknown output always sets", []string{"812", "640"}, "unknown", automation.ActionSet, 95},
		{"unavailable output always sets", []string{"812", "640"}, "unavailable", automation.ActionSet, 95},
		{"unreadable sensor counts as 400", []string{"unavailable", "300"}, "0", automation.ActionSet, 45},
		{"decimal current value is truncated", []string{"812", "640"}, "99.9", automation.ActionPass, 95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, mock, pub := newTestRule(t, baseParams())
			mock.SetState("sensor.co2_living_room", tt.co2[0], nil)
			mock.SetState("sensor.co2_office", tt.co2[1], nil)
			mock.SetState("sensor.ventilation_flow", tt.current, nil)

			outcome, err := rule.Evaluate(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.expectedAction, outcome.Action)
			assert.Equal(t, tt.expectedValue, outcome.Decision)

			if tt.expectedAction == automation.ActionSet {
				require.Len(t, pub.calls, 1)
				assert.Equal(t, "ventilation/flow/set", pub.calls[0].topic)
				assert.Equal(t, tt.expectedValue, pub.calls[0].payload)
			} else {
				assert.Empty(t, pub.calls)
			}
			assert.Empty(t, mock.GetServiceCalls())
		})
	}
}

func TestRule_EvaluateHysteresis(t *testing.T) {
	// 812 ppm aims at 93, published as 95
	tests := []struct {
		name           string
		hysteresis     *int
		current        string
		expectedAction automation.Action
	}{
		{"default tolerates six", nil, "99", automation.ActionPass},
		{"default beyond six", nil, "100", automation.ActionSet},
		{"zero publishes any difference", intPtr(0), "94", automation.ActionSet},
		{"zero publishes the default band too", intPtr(0), "99", automation.ActionSet},
		{"zero passes on an exact match", intPtr(0), "93", automation.ActionPass},
		{"wider band passes", intPtr(10), "103", automation.ActionPass},
		{"wider band exceeded", intPtr(10), "104", automation.ActionSet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := baseParams()
			params.Hysteresis = tt.hysteresis
			rule, mock, pub := newTestRule(t, params)
			mock.SetState("sensor.co2_living_room", "812", nil)
			mock.SetState("sensor.co2_office", "640", nil)
			mock.SetState("sensor.ventilation_flow", tt.current, nil)

			outcome, err := rule.Evaluate(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.expectedAction, outcome.Action)
			if tt.expectedAction == automation.ActionSet {
				require.Len(t, pub.calls, 1)
				assert.Equal(t, 95, pub.calls[0].payload)
			} else {
				assert.Empty(t, pub.calls)
			}
		})
	}
}

func TestParams_ExplicitZeroHysteresisIsKept(t *testing.T) {
	var params Params
	require.NoError(t, yaml.Unmarshal([]byte("hysteresis: 0\n"), &params))
	require.NotNil(t, params.Hysteresis)

	params.applyDefaults()
	assert.Equal(t, 0, *params.Hysteresis)

	unset := Params{}
	unset.applyDefaults()
	assert.Equal(t, DefaultHysteresis, *unset.Hysteresis)
}

func TestRule_EvaluateErrors(t *testing.T) {
	t.Run("missing input sensor", func(t *testing.T) {
		rule, mock, pub := newTestRule(t, baseParams())
		mock.SetState("sensor.co2_living_room", "800", nil)
		mock.SetState("sensor.ventilation_flow", "90", nil)

		_, err := rule.Evaluate(context.Background())
		assert.True(t, errors.Is(err, automation.ErrEntityNotFound))
		assert.Empty(t, pub.calls)
	})

	t.Run("missing output entity", func(t *testing.T) {
		rule, mock, pub := newTestRule(t, baseParams())
		mock.SetState("sensor.co2_living_room", "800", nil)
		mock.SetState("sensor.co2_office", "800", nil)

		_, err := rule.Evaluate(context.Background())
		assert.ErrorIs(t, err, automation.ErrEntityNotFound)
		assert.Empty(t, pub.calls)
	})

	t.Run("garbage output value", func(t *testing.T) {
		rule, mock, _ := newTestRule(t, baseParams())
		mock.SetState("sensor.co2_living_room", "800", nil)
		mock.SetState("sensor.co2_office", "800", nil)
		mock.SetState("sensor.ventilation_flow", "high", nil)

		_, err := rule.Evaluate(context.Background())
		assert.ErrorIs(t, err, automation.ErrValueParse)
	})

	t.Run("publish failure", func(t *testing.T) {
		rule, mock, pub := newTestRule(t, baseParams())
		pub.err = errors.New("broker down")
		mock.SetState("sensor.co2_living_room", "800", nil)
		mock.SetState("sensor.co2_office", "800", nil)
		mock.SetState("sensor.ventilation_flow", "unknown", nil)

		_, err := rule.Evaluate(context.Background())
		assert.Error(t, err)
	})
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Params)
		option string
	}{
		{"no inputs", func(p *Params) { p.InputEntities = nil }, "input_entities"},
		{"no output", func(p *Params) { p.OutputEntity = "" }, "output_entity"},
		{"no topic", func(p *Params) { p.MQTTTopic = "" }, "mqtt_topic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := baseParams()
			tt.mutate(&params)

			_, err := NewRule("x", params, ha.NewMockClient(), &capturePublisher{}, zap.NewNop())
			assert.ErrorIs(t, err, automation.ErrMissingParameter)
			assert.Contains(t, err.Error(), tt.option)
		})
	}

	params := baseParams()
	params.LowestBoundary = intPtr(200)
	params.HighestBoundary = intPtr(100)
	assert.Error(t, params.Validate())
}
