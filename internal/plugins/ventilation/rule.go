// Package ventilation sets the ventilation flow from the highest CO2 reading.
//
// The flow target is max_ppm * factor / 10, rounded to a multiple of 5 and
// clamped to the configured boundaries. A new value is only published when the
// unrounded target moved more than the hysteresis away from the current flow.
package ventilation

import (
	"context"
	"fmt"
	"math"

	"hvacautomation/internal/automation"
	"hvacautomation/internal/dispatch"

	"go.uber.org/zap"
)

// Kind is the rule kind identifier
const Kind = "ventilation_flow"

// Rule computes and publishes the ventilation flow setpoint
type Rule struct {
	name      string
	params    Params
	reader    automation.StateReader
	publisher dispatch.Publisher
	logger    *zap.Logger
}

// NewRule validates params and creates the rule
func NewRule(name string, params Params, reader automation.StateReader, publisher dispatch.Publisher, logger *zap.Logger) (*Rule, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	params.applyDefaults()

	return &Rule{
		name:      name,
		params:    params,
		reader:    reader,
		publisher: publisher,
		logger:    logger.Named(Kind).With(zap.String("rule", name)),
	}, nil
}

func (r *Rule) Name() string { return r.name }
func (r *Rule) Kind() string { return Kind }

func (r *Rule) Entities() []string {
	return append([]string(nil), r.params.InputEntities...)
}

// RoundToFive rounds to the nearest multiple of 5, with .4 and .6 points rounding
// toward the closer multiple: 12 -> 10, 13 -> 15, 17 -> 15, 18 -> 20
func RoundToFive(value int) int {
	return floorDiv(value+2, 5) * 5
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Target returns the unrounded and the rounded, clamped flow for a CO2 maximum
func (r *Rule) Target(maxPPM int) (target, rounded int) {
	target = int(float64(maxPPM) * r.params.Factor / 10)
	rounded = RoundToFive(target)

	if r.params.LowestBoundary != nil && rounded < *r.params.LowestBoundary {
		rounded = *r.params.LowestBoundary
	}
	if r.params.HighestBoundary != nil && rounded > *r.params.HighestBoundary {
		rounded = *r.params.HighestBoundary
	}
	return target, rounded
}

func (r *Rule) Evaluate(ctx context.Context) (*automation.Outcome, error) {
	readings := make(map[string]interface{}, len(r.params.InputEntities))
	maxPPM := math.MinInt
	for _, entityID := range r.params.InputEntities {
		ppm, err := automation.ReadCO2(r.reader, entityID)
		if err != nil {
			return nil, err
		}
		readings[entityID] = ppm
		if ppm > maxPPM {
			maxPPM = ppm
		}
	}

	target, rounded := r.Target(maxPPM)

	current, err := r.currentFlow()
	if err != nil {
		return nil, err
	}

	outcome := &automation.Outcome{
		Inputs: map[string]interface{}{
			"co2":     readings,
			"max":     maxPPM,
			"current": current,
			"aim":     target,
			"rounded": rounded,
		},
		Decision: rounded,
		Target:   r.params.MQTTTopic,
		Action:   automation.ActionPass,
	}

	if current != nil && abs(target-*current) <= *r.params.Hysteresis {
		return outcome, nil
	}

	if err := r.publisher.Publish(r.params.MQTTTopic, rounded); err != nil {
		return nil, fmt.Errorf("failed to publish flow to %s: %w", r.params.MQTTTopic, err)
	}
	outcome.Action = automation.ActionSet
	return outcome, nil
}

// currentFlow reads the output entity; nil means it has no value yet
func (r *Rule) currentFlow() (*int, error) {
	state, err := automation.RequireState(r.reader, r.params.OutputEntity)
	if err != nil {
		return nil, err
	}

	switch state.State {
	case "unknown", "unavailable":
		r.logger.Debug("Output has no current value", zap.String("state", state.State))
		return nil, nil
	}

	value, err := automation.ParseFloat(r.params.OutputEntity, state.State)
	if err != nil {
		return nil, err
	}
	current := int(value)
	return &current, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
