package bypass

import (
	"fmt"

	"hvacautomation/internal/automation"
	"hvacautomation/pkg/plugin"
)

func init() {
	plugin.Register(plugin.KindInfo{
		Kind:        Kind,
		Description: "Opens or closes the bypass valve from inside temperature and inside/outside difference",
		Priority:    plugin.PriorityDefault,
		Factory:     createRule,
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
