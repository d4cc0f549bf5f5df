package ventilation

import (
	"fmt"

	"hvacautomation/internal/automation"
)

const (
	DefaultFactor     = 1.15
	DefaultHysteresis = 6
)

// Params configures a ventilation_flow rule
type Params struct {
	InputEntities   []string `yaml:"input_entities" json:"input_entities"`
	OutputEntity    string   `yaml:"output_entity" json:"output_entity"`
	MQTTTopic       string   `yaml:"mqtt_topic" json:"mqtt_topic"`
	LowestBoundary  *int     `yaml:"lowest_boundary" json:"lowest_boundary,omitempty"`
	HighestBoundary *int     `yaml:"highest_boundary" json:"highest_boundary,omitempty"`
	Factor          float64  `yaml:"factor" json:"factor,omitempty"`
	Hysteresis      *int     `yaml:"hysteresis" json:"hysteresis,omitempty"`
}

// applyDefaults fills the optional tuning values
func (p *Params) applyDefaults() {
	if p.Factor == 0 {
		p.Factor = DefaultFactor
	}
	if p.Hysteresis == nil {
		hysteresis := DefaultHysteresis
		p.Hysteresis = &hysteresis
	}
}

// Validate checks required options
func (p *Params) Validate() error {
	if len(p.InputEntities) == 0 {
		return automation.MissingParameter("input_entities")
	}
	if p.OutputEntity == "" {
		return automation.MissingParameter("output_entity")
	}
	if p.MQTTTopic == "" {
		return automation.MissingParameter("mqtt_topic")
	}
	if p.Hysteresis != nil && *p.Hysteresis < 0 {
		return fmt.Errorf("hysteresis %d is negative", *p.Hysteresis)
	}
	if p.LowestBoundary != nil && p.HighestBoundary != nil && *p.LowestBoundary > *p.HighestBoundary {
		return fmt.Errorf("lowest_boundary %d is above highest_boundary %d", *p.LowestBoundary, *p.HighestBoundary)
	}
	return nil
}
