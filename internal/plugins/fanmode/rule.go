// Package fanmode picks a fan mode from CO2 levels and commits it only after
// three consecutive evaluations agree.
package fanmode

import (
	"context"
	"errors"
	"fmt"

	"hvacautomation/internal/automation"
	"hvacautomation/internal/history"

	"go.uber.org/zap"
)

// Kind is the rule kind identifier
const Kind = "fan_mode"

// Rule selects and debounces the fan mode
type Rule struct {
	name       string
	params     Params
	thresholds []threshold
	reader     automation.StateReader
	writer     automation.Writer
	store      history.Store
	logger     *zap.Logger
}

func NewRule(name string, params Params, reader automation.StateReader, writer automation.Writer, store history.Store, logger *zap.Logger) (*Rule, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	params.applyDefaults()

	return &Rule{
		name:       name,
		params:     params,
		thresholds: sortedThresholds(params.Modes),
		reader:     reader,
		writer:     writer,
		store:      store,
		logger:     logger.Named(Kind).With(zap.String("rule", name)),
	}, nil
}

func (r *Rule) Name() string { return r.name }
func (r *Rule) Kind() string { return Kind }

func (r *Rule) Entities() []string {
	return append([]string(nil), r.params.InputEntities...)
}

// SelectMode returns the mode with the smallest bound above maxPPM, or "" if none
func (r *Rule) SelectMode(maxPPM int) string {
	for _, t := range r.thresholds {
		if float64(maxPPM) < t.upper && t.upper < MaxPPM {
			return t.mode
		}
	}
	return ""
}

func (r *Rule) Evaluate(ctx context.Context) (*automation.Outcome, error) {
	readings := make(map[string]interface{}, len(r.params.InputEntities))
	maxPPM := 0
	first := true
	for _, entityID := range r.params.InputEntities {
		ppm, err := automation.ReadCO2(r.reader, entityID)
		if errors.Is(err, automation.ErrEntityNotFound) {
			r.logger.Warn("Skipping missing CO2 sensor", zap.String("entity_id", entityID))
			continue
		}
		if err != nil {
			return nil, err
		}
		readings[entityID] = ppm
		if first || ppm > maxPPM {
			maxPPM = ppm
			first = false
		}
	}

	mode := r.SelectMode(maxPPM)

	ring, err := r.store.Load(ctx, r.params.HistoryEntity)
	if err != nil {
		return nil, err
	}
	ring.Push(mode)
	if err := r.store.Save(ctx, r.params.HistoryEntity, ring); err != nil {
		return nil, err
	}

	outcome := &automation.Outcome{
		Inputs: map[string]interface{}{
			"co2":     readings,
			"max":     maxPPM,
			"history": ring.Entries(),
		},
		Decision: mode,
		Target:   r.params.OutputEntity,
		Action:   automation.ActionNone,
	}

	if !ring.Unanimous() {
		return outcome, nil
	}

	if err := r.writer.Dispatch(r.params.OutputEntity, mode); err != nil {
		return nil, fmt.Errorf("failed to set fan mode %q: %w", mode, err)
	}
	outcome.Action = automation.ActionSet
	return outcome, nil
}
