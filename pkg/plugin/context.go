package plugin

import (
	"hvacautomation/internal/dispatch"
	"hvacautomation/internal/ha"
	"hvacautomation/internal/history"

	"go.uber.org/zap"
)

// Context provides the shared services rule factories build on
type Context struct {
	// HAClient reads entity states
	HAClient ha.HAClient

	// Dispatcher writes values to output entities
	Dispatcher *dispatch.Dispatcher

	// Publisher sends values to message bus topics
	Publisher dispatch.Publisher

	// History carries the fan-mode debounce history between invocations
	History history.Store

	// Logger should be namespaced per rule with logger.Named
	Logger *zap.Logger
}

// NewContext creates a rule context with all required dependencies.
func NewContext(
	haClient ha.HAClient,
	dispatcher *dispatch.Dispatcher,
	publisher dispatch.Publisher,
	store history.Store,
	logger *zap.Logger,
) *Context {
	return &Context{
		HAClient:   haClient,
		Dispatcher: dispatcher,
		Publisher:  publisher,
		History:    store,
		Logger:     logger,
	}
}
