package fanmode

import (
	"fmt"
	"sort"

	"hvacautomation/internal/automation"
	"hvacautomation/internal/dispatch"
)

const (
	// DefaultHistoryEntity holds the recent selections when no history_entity is configured
	DefaultHistoryEntity = "input_text.previous_modes"

	// MaxPPM caps thresholds; a mode at or above it is never selected
	MaxPPM = 1000000
)

// Params configures a fan_mode rule
type Params struct {
	InputEntities []string           `yaml:"input_entities" json:"input_entities"`
	OutputEntity  string             `yaml:"output_entity" json:"output_entity"`
	Modes         map[string]float64 `yaml:"modes" json:"modes"`
	HistoryEntity string             `yaml:"history_entity" json:"history_entity,omitempty"`
}

func (p *Params) Validate() error {
	if len(p.Modes) == 0 {
		return automation.MissingParameter("modes")
	}
	if len(p.InputEntities) == 0 {
		return automation.MissingParameter("input_entities")
	}
	if p.OutputEntity == "" {
		return automation.MissingParameter("output_entity")
	}
	if _, err := dispatch.Resolve(p.OutputEntity); err != nil {
		return fmt.Errorf("output_entity: %w", err)
	}
	return nil
}

func (p *Params) applyDefaults() {
	if p.HistoryEntity == "" {
		p.HistoryEntity = DefaultHistoryEntity
	}
}

// threshold is one mode and its upper CO2 bound
type threshold struct {
	mode  string
	upper float64
}

// sortedThresholds orders modes by bound, then by name
func sortedThresholds(modes map[string]float64) []threshold {
	result := make([]threshold, 0, len(modes))
	for mode, upper := range modes {
		result = append(result, threshold{mode: mode, upper: upper})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].upper != result[j].upper {
			return result[i].upper < result[j].upper
		}
		return result[i].mode < result[j].mode
	})
	return result
}
