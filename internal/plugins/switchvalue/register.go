package switchvalue

import (
	"fmt"

	"hvacautomation/internal/automation"
	"hvacautomation/pkg/plugin"
)

func init() {
	plugin.Register(plugin.KindInfo{
		Kind:        Kind,
		Description: "Sets an entity to one of two values depending on a switch",
		Priority:    plugin.PriorityDefault,
		Factory:     createRule,
	})
	plugin.Register(plugin.KindInfo{
		Kind:        ImbalanceKind,
		Description: "Sets a number entity to one of two numeric values depending on a switch",
		Priority:    plugin.PriorityDefault,
		Factory:     createImbalanceRule,
	})
}

func createRule(ctx *plugin.Context, name string, decode plugin.Decoder) (automation.Rule, error) {
	var params Params
	if err := decode(&params); err != nil {
		return nil, err
	}
	if ctx.Dispatcher == nil {
		return nil, fmt.Errorf("%s rule requires a dispatcher", Kind)
	}
	return NewRule(name, params, ctx.HAClient, ctx.Dispatcher, ctx.Logger)
}

func createImbalanceRule(ctx *plugin.Context, name string, decode plugin.Decoder) (automation.Rule, error) {
	var params ImbalanceParams
	if err := decode(&params); err != nil {
		return nil, err
	}
	if ctx.Dispatcher == nil {
		return nil, fmt.Errorf("%s rule requires a dispatcher", ImbalanceKind)
	}
	return NewImbalanceRule(name, params, ctx.HAClient, ctx.Dispatcher, ctx.Logger)
}
