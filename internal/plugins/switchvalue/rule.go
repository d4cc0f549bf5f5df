// Package switchvalue mirrors a switch onto another entity: one configured value
// while the switch is on, another while it is anything else.
package switchvalue

import (
	"context"
	"fmt"

	"hvacautomation/internal/automation"

	"go.uber.org/zap"
)

const (
	// Kind is the switch_value rule kind identifier
	Kind = "switch_value"

	// ImbalanceKind drives a number entity, e.g. a supply/exhaust imbalance setpoint
	ImbalanceKind = "imbalance"
)

// Rule writes on_value or off_value to the output depending on the switch
type Rule struct {
	name     string
	kind     string
	switchID string
	outputID string
	onValue  any
	offValue any

	// requireOutput checks the output entity exists before reading the switch
	requireOutput bool

	reader automation.StateReader
	writer automation.Writer
	logger *zap.Logger
}

func NewRule(name string, params Params, reader automation.StateReader, writer automation.Writer, logger *zap.Logger) (*Rule, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Rule{
		name:          name,
		kind:          Kind,
		switchID:      params.SwitchEntityID,
		outputID:      params.OutputEntityID,
		onValue:       params.OnValue,
		offValue:      params.OffValue,
		requireOutput: true,
		reader:        reader,
		writer:        writer,
		logger:        logger.Named(Kind).With(zap.String("rule", name)),
	}, nil
}

func NewImbalanceRule(name string, params ImbalanceParams, reader automation.StateReader, writer automation.Writer, logger *zap.Logger) (*Rule, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Rule{
		name:     name,
		kind:     ImbalanceKind,
		switchID: params.SwitchEntityID,
		outputID: params.NumericEntityID,
		onValue:  params.OnValue,
		offValue: params.OffValue,
		reader:   reader,
		writer:   writer,
		logger:   logger.Named(ImbalanceKind).With(zap.String("rule", name)),
	}, nil
}

func (r *Rule) Name() string       { return r.name }
func (r *Rule) Kind() string       { return r.kind }
func (r *Rule) Entities() []string { return []string{r.switchID} }

func (r *Rule) Evaluate(ctx context.Context) (*automation.Outcome, error) {
	if r.requireOutput {
		if _, err := automation.RequireState(r.reader, r.outputID); err != nil {
			return nil, err
		}
	}

	sw, err := automation.RequireState(r.reader, r.switchID)
	if err != nil {
		return nil, err
	}

	value := r.offValue
	if sw.State == "on" {
		value = r.onValue
	}

	if err := r.writer.Dispatch(r.outputID, value); err != nil {
		return nil, fmt.Errorf("failed to set %s: %w", r.outputID, err)
	}

	return &automation.Outcome{
		Inputs:   map[string]interface{}{"switch": sw.State},
		Decision: value,
		Target:   r.outputID,
		Action:   automation.ActionSet,
	}, nil
}
