// Package bypass opens and closes the heat-recovery bypass from the inside
// temperature and its difference to the outside.
//
// The valve opens when it is warm inside and clearly cooler outside. It closes
// when it has cooled down inside or the outside air stops being useful. Between
// the two bands nothing is written.
package bypass

import (
	"context"
	"fmt"

	"hvacautomation/internal/automation"

	"go.uber.org/zap"
)

// Kind is the rule kind identifier
const Kind = "bypass"

type Rule struct {
	name   string
	params Params
	reader automation.StateReader
	writer automation.Writer
	logger *zap.Logger
}

func NewRule(name string, params Params, reader automation.StateReader, writer automation.Writer, logger *zap.Logger) (*Rule, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Rule{
		name:   name,
		params: params,
		reader: reader,
		writer: writer,
		logger: logger.Named(Kind).With(zap.String("rule", name)),
	}, nil
}

func (r *Rule) Name() string { return r.name }
func (r *Rule) Kind() string { return Kind }

func (r *Rule) Entities() []string {
	return []string{r.params.InsideTempSensor, r.params.OutsideTempSensor}
}

// Decide returns the action for the given temperatures
func (r *Rule) Decide(inside, outside float64) automation.Action {
	diff := inside - outside
	switch {
	case inside > *r.params.OpenTemperature && diff > *r.params.OpenDiffThreshold:
		return automation.ActionOpen
	case inside < *r.params.CloseTemperature || diff < *r.params.CloseDiffThreshold:
		return automation.ActionClose
	default:
		return automation.ActionNone
	}
}

func (r *Rule) Evaluate(ctx context.Context) (*automation.Outcome, error) {
	// every entity must exist before any value is interpreted
	states := make(map[string]string, 3)
	for _, entityID := range []string{r.params.InsideTempSensor, r.params.OutsideTempSensor, r.params.OutputEntity} {
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

	action := r.Decide(inside, outside)
	outcome := &automation.Outcome{
		Inputs: map[string]interface{}{
			"inside":  inside,
			"outside": outside,
			"diff":    inside - outside,
		},
		Target: r.params.OutputEntity,
		Action: action,
	}

	var value any
	switch action {
	case automation.ActionOpen:
		value = r.params.OpenValue
	case automation.ActionClose:
		value = r.params.CloseValue
	default:
		return outcome, nil
	}

	outcome.Decision = value
	if err := r.writer.Dispatch(r.params.OutputEntity, value); err != nil {
		return nil, fmt.Errorf("failed to set bypass to %v: %w", value, err)
	}
	return outcome, nil
}
