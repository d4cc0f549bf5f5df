package plugin

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"hvacautomation/internal/automation"
)

// Priority constants for kind registration.
// Higher priority values override lower priority kinds with the same name.
const (
	PriorityDefault  = 0
	PriorityOverride = 100
)

// ErrUnknownKind is returned when a rule names a kind nobody registered
var ErrUnknownKind = errors.New("unknown rule kind")

// KindInfo describes one registered rule kind.
type KindInfo struct {
	// Kind is the identifier used in the rules file and the invoke API
	Kind string

	Description string

	// Priority decides which registration wins for the same kind. Higher wins.
	Priority int

	Factory Factory
}

// Registry maps rule kinds to their factories.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]KindInfo
}

func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]KindInfo)}
}

// Register adds a kind to the registry.
// If the kind already exists, the registration with higher priority wins.
// If priorities are equal, the later registration wins.
func (r *Registry) Register(info KindInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info.Kind == "" {
		return fmt.Errorf("rule kind cannot be empty")
	}
	if info.Factory == nil {
		return fmt.Errorf("rule kind %s: factory cannot be nil", info.Kind)
	}

	if existing, exists := r.kinds[info.Kind]; exists {
		if info.Priority < existing.Priority {
			log.Printf("Rule kind %q registration skipped (priority %d < existing %d)",
				info.Kind, info.Priority, existing.Priority)
			return nil
		}
		log.Printf("Rule kind %q being overridden (priority %d -> %d)",
			info.Kind, existing.Priority, info.Priority)
	}

	r.kinds[info.Kind] = info
	return nil
}

// Get returns the info for a kind, or nil if not registered.
func (r *Registry) Get(kind string) *KindInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.kinds[kind]
	if !ok {
		return nil
	}
	return &info
}

// List returns all registered kinds sorted by name.
func (r *Registry) List() []KindInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]KindInfo, 0, len(r.kinds))
	for _, info := range r.kinds {
		result = append(result, info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Kind < result[j].Kind })
	return result
}

// Build creates a named rule of the given kind.
func (r *Registry) Build(ctx *Context, kind, name string, decode Decoder) (automation.Rule, error) {
	info := r.Get(kind)
	if info == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if name == "" {
		name = kind
	}

	rule, err := info.Factory(ctx, name, decode)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule %s: %w", name, err)
	}
	return rule, nil
}

// Clear removes all registered kinds. Useful for testing.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = make(map[string]KindInfo)
}

var globalRegistry = NewRegistry()

// Register adds a kind to the global registry.
// This is typically called from init() functions in rule packages.
func Register(info KindInfo) error {
	return globalRegistry.Register(info)
}

// Get returns kind info from the global registry.
func Get(kind string) *KindInfo {
	return globalRegistry.Get(kind)
}

// List returns all kinds from the global registry.
func List() []KindInfo {
	return globalRegistry.List()
}

// Build creates a rule from the global registry.
func Build(ctx *Context, kind, name string, decode Decoder) (automation.Rule, error) {
	return globalRegistry.Build(ctx, kind, name, decode)
}

// Default returns the global registry.
func Default() *Registry {
	return globalRegistry
}
