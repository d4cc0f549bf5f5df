package bypass

import (
	"fmt"

	"hvacautomation/internal/automation"
	"hvacautomation/internal/dispatch"
)

// Params configures a bypass rule
type Params struct {
	InsideTempSensor   string   `yaml:"inside_temp_sensor" json:"inside_temp_sensor"`
	OutsideTempSensor  string   `yaml:"outside_temp_sensor" json:"outside_temp_sensor"`
	OutputEntity       string   `yaml:"output_entity" json:"output_entity"`
	OpenTemperature    *float64 `yaml:"open_temperature" json:"open_temperature"`
	CloseTemperature   *float64 `yaml:"close_temperature" json:"close_temperature"`
	OpenDiffThreshold  *float64 `yaml:"open_diff_threshold" json:"open_diff_threshold"`
	CloseDiffThreshold *float64 `yaml:"close_diff_threshold" json:"close_diff_threshold"`
	OpenValue          any      `yaml:"open_value" json:"open_value"`
	CloseValue         any      `yaml:"close_value" json:"close_value"`
}

func (p *Params) Validate() error {
	required := []struct {
		option  string
		missing bool
	}{
		{"inside_temp_sensor", p.InsideTempSensor == ""},
		{"outside_temp_sensor", p.OutsideTempSensor == ""},
		{"output_entity", p.OutputEntity == ""},
		{"open_temperature", p.OpenTemperature == nil},
		{"close_temperature", p.CloseTemperature == nil},
		{"open_diff_threshold", p.OpenDiffThreshold == nil},
		{"close_diff_threshold", p.CloseDiffThreshold == nil},
		{"open_value", isEmpty(p.OpenValue)},
		{"close_value", isEmpty(p.CloseValue)},
	}

	for _, r := range required {
		if r.missing {
			return automation.MissingParameter(r.option)
		}
	}
	if _, err := dispatch.Resolve(p.OutputEntity); err != nil {
		return fmt.Errorf("output_entity: %w", err)
	}
	return nil
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
