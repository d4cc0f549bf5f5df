package switchvalue

import (
	"fmt"

	"hvacautomation/internal/automation"
	"hvacautomation/internal/dispatch"
)

// Params configures a switch_value rule
type Params struct {
	SwitchEntityID string `yaml:"switch_entity_id" json:"switch_entity_id"`
	OutputEntityID string `yaml:"output_entity_id" json:"output_entity_id"`
	OnValue        any    `yaml:"on_value" json:"on_value"`
	OffValue       any    `yaml:"off_value" json:"off_value"`
}

func (p *Params) Validate() error {
	switch {
	case p.SwitchEntityID == "":
		return automation.MissingParameter("switch_entity_id")
	case p.OutputEntityID == "":
		return automation.MissingParameter("output_entity_id")
	case p.OnValue == nil:
		return automation.MissingParameter("on_value")
	case p.OffValue == nil:
		return automation.MissingParameter("off_value")
	}
	if _, err := dispatch.Resolve(p.OutputEntityID); err != nil {
		return fmt.Errorf("output_entity_id: %w", err)
	}
	return nil
}

// ImbalanceParams configures an imbalance rule, which drives a numeric entity
type ImbalanceParams struct {
	SwitchEntityID  string  `yaml:"switch_entity_id" json:"switch_entity_id"`
	NumericEntityID string  `yaml:"numeric_entity_id" json:"numeric_entity_id"`
	OnValue         float64 `yaml:"on_value" json:"on_value"`
	OffValue        float64 `yaml:"off_value" json:"off_value"`
}

var numericDomains = map[string]bool{"number": true, "input_number": true}

func (p *ImbalanceParams) Validate() error {
	switch {
	case p.SwitchEntityID == "":
		return automation.MissingParameter("switch_entity_id")
	case p.NumericEntityID == "":
		return automation.MissingParameter("numeric_entity_id")
	}
	if domain := dispatch.DomainOf(p.NumericEntityID); !numericDomains[domain] {
		return fmt.Errorf("%w: numeric_entity_id %s is not a number entity", dispatch.ErrUnsupportedDomain, p.NumericEntityID)
	}
	return nil
}
