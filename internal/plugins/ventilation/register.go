package ventilation

import (
	"fmt"

	"hvacautomation/internal/automation"
	"hvacautomation/pkg/plugin"
)

func init() {
	plugin.Register(plugin.KindInfo{
		Kind:        Kind,
		Description: "Publishes a ventilation flow setpoint derived from the highest CO2 reading",
		Priority:    plugin.PriorityDefault,
		Factory:     createRule,
	})
}

func createRule(ctx *plugin.Context, name string, decode plugin.Decoder) (automation.Rule, error) {
	var params Params
	if err := decode(&params); err != nil {
		return nil, err
	}
	if ctx.Publisher == nil {
		return nil, fmt.Errorf("%s rule requires a publisher", Kind)
	}
	return NewRule(name, params, ctx.HAClient, ctx.Publisher, ctx.Logger)
}
