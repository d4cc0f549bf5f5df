package coolingpower

import (
	"fmt"

	"hvacautomation/internal/automation"
	"hvacautomation/internal/dispatch"
)

const (
	DefaultOpenState    = "open"
	DefaultAirDensity   = 1.2  // kg/m³
	DefaultSpecificHeat = 1005 // J/(kg·K)
)

// Params configures a cooling_power rule
type Params struct {
	InsideTempSensor  string  `yaml:"inside_temp_sensor" json:"inside_temp_sensor"`
	OutsideTempSensor string  `yaml:"outside_temp_sensor" json:"outside_temp_sensor"`
	FlowSensor        string  `yaml:"flow_sensor" json:"flow_sensor"`
	StatusSensor      string  `yaml:"status_sensor" json:"status_sensor"`
	OpenState         string  `yaml:"open_state" json:"open_state,omitempty"`
	AirDensity        float64 `yaml:"air_density" json:"air_density,omitempty"`
	SpecificHeat      float64 `yaml:"specific_heat" json:"specific_heat,omitempty"`
	OutputEntity      string  `yaml:"output_entity" json:"output_entity,omitempty"`
	MQTTTopic         string  `yaml:"mqtt_topic" json:"mqtt_topic,omitempty"`
}

func (p *Params) Validate() error {
	switch {
	case p.InsideTempSensor == "":
		return automation.MissingParameter("inside_temp_sensor")
	case p.OutsideTempSensor == "":
		return automation.MissingParameter("outside_temp_sensor")
	case p.FlowSensor == "":
		return automation.MissingParameter("flow_sensor")
	case p.StatusSensor == "":
		return automation.MissingParameter("status_sensor")
	case p.OutputEntity == "" && p.MQTTTopic == "":
		return fmt.Errorf("%w: output_entity or mqtt_topic", automation.ErrMissingParameter)
	}
	if p.OutputEntity != "" {
		if _, err := dispatch.Resolve(p.OutputEntity); err != nil {
			return fmt.Errorf("output_entity: %w", err)
		}
	}
	return nil
}

func (p *Params) applyDefaults() {
	if p.OpenState == "" {
		p.OpenState = DefaultOpenState
	}
	if p.AirDensity == 0 {
		p.AirDensity = DefaultAirDensity
	}
	if p.SpecificHeat == 0 {
		p.SpecificHeat = DefaultSpecificHeat
	}
}
