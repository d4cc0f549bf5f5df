// Package coolingpower estimates the cooling delivered through an open bypass:
// P = flow[m³/h] / 3600 * density * specific heat * (inside - outside), in watts.
package coolingpower

import (
	"context"
	"fmt"
	"strings"

	"hvacautomation/internal/automation"
	"hvacautomation/internal/dispatch"

	"go.uber.org/zap"
)

// Kind is the rule kind identifier
const Kind = "cooling_power"

type Rule struct {
	name      string
	params    Params
	reader    automation.StateReader
	writer    automation.Writer
	publisher dispatch.Publisher
	logger    *zap.Logger
}

// NewRule creates the rule. writer is needed when output_entity is set, publisher when mqtt_topic is.
func NewRule(name string, params Params, reader automation.StateReader, writer automation.Writer, publisher dispatch.Publisher, logger *zap.Logger) (*Rule, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	params.applyDefaults()

	if params.OutputEntity != "" && writer == nil {
		return nil, fmt.Errorf("%s rule %s: output_entity needs a dispatcher", Kind, name)
	}
	if params.MQTTTopic != "" && publisher == nil {
		return nil, fmt.Errorf("%s rule %s: mqtt_topic needs a publisher", Kind, name)
	}

	return &Rule{
		name:      name,
		params:    params,
		reader:    reader,
		writer:    writer,
		publisher: publisher,
		logger:    logger.Named(Kind).With(zap.String("rule", name)),
	}, nil
}

func (r *Rule) Name() string { return r.name }
func (r *Rule) Kind() string { return Kind }

func (r *Rule) Entities() []string {
	return []string{r.params.InsideTempSensor, r.params.OutsideTempSensor, r.params.FlowSensor, r.params.StatusSensor}
}

// Power returns the cooling power in watts, or 0 when the bypass is not open
func (r *Rule) Power(inside, outside, flow float64, status string) float64 {
	if !strings.EqualFold(status, r.params.OpenState) {
		return 0
	}
	return flow / 3600 * r.params.AirDensity * r.params.SpecificHeat * (inside - outside)
}

func (r *Rule) Evaluate(ctx context.Context) (*automation.Outcome, error) {
	states := make(map[string]string, 4)
	for _, entityID := range r.Entities() {
		state, err := automation.RequireState(r.reader, entityID)
		if err != nil {
			return nil, err
		}
		states[entityID] = state.State
	}

	inside, err := automation.ParseFloat(r.params.InsideTempSensor, states[r.params.InsideTempSensor])
	if err != nil {
		return nil, err
	}
	outside, err := automation.ParseFloat(r.params.OutsideTempSensor, states[r.params.OutsideTempSensor])
	if err != nil {
		return nil, err
	}
	flow, err := automation.ParseFloat(r.params.FlowSensor, states[r.params.FlowSensor])
	if err != nil {
		return nil, err
	}
	status := states[r.params.StatusSensor]

	power := r.Power(inside, outside, flow, status)

	if r.params.OutputEntity != "" {
		if err := r.writer.Dispatch(r.params.OutputEntity, power); err != nil {
			return nil, fmt.Errorf("failed to write cooling power: %w", err)
		}
	}
	if r.params.MQTTTopic != "" {
		if err := r.publisher.Publish(r.params.MQTTTopic, power); err != nil {
			return nil, fmt.Errorf("failed to publish cooling power: %w", err)
		}
	}

	target := r.params.OutputEntity
	if target == "" {
		target = r.params.MQTTTopic
	}

	return &automation.Outcome{
		Inputs: map[string]interface{}{
			"inside":  inside,
			"outside": outside,
			"flow":    flow,
			"status":  status,
		},
		Decision: power,
		Target:   target,
		Action:   automation.ActionSet,
	}, nil
}
