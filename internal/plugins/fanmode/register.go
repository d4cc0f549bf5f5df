package fanmode

import (
	"fmt"

	"hvacautomation/internal/automation"
	"hvacautomation/pkg/plugin"
)

func init() {
	plugin.Register(plugin.KindInfo{
		Kind:        Kind,
		Description: "Selects the fan mode for the highest CO2 reading after three agreeing evaluations",
		Priority:    plugin.PriorityDefault,
		Factory:     createRule,
	})
}

func createRule(ctx *plugin.Context, name string, decode plugin.Decoder) (automation.Rule, error) {
	var params Params
	if err := decode(&params); err != nil {
		return nil, err
	}
	if ctx.Dispatcher == nil || ctx.History == nil {
		return nil, fmt.Errorf("%s rule requires a dispatcher and a history store", Kind)
	}
	return NewRule(name, params, ctx.HAClient, ctx.Dispatcher, ctx.History, ctx.Logger)
}
