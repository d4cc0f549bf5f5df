package coolingpower

import (
	"hvacautomation/internal/automation"
	"hvacautomation/pkg/plugin"
)

func init() {
	plugin.Register(plugin.KindInfo{
		Kind:        Kind,
		Description: "Computes the cooling power delivered through the open bypass",
		Priority:    plugin.PriorityDefault,
		Factory:     createRule,
	})
}

func createRule(ctx *plugin.Context, name string, decode plugin.Decoder) (automation.Rule, error) {
	var params Params
	if err := decode(&params); err != nil {
		return nil, err
	}

	var writer automation.Writer
	if ctx.Dispatcher != nil {
		writer = ctx.Dispatcher
	}
	return NewRule(name, params, ctx.HAClient, writer, ctx.Publisher, ctx.Logger)
}
