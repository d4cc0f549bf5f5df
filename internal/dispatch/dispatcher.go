package dispatch

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ErrUnsupportedDomain is returned for entities whose domain has no write operation
var ErrUnsupportedDomain = errors.New("unsupported domain")

// Target is the service call that writes a value to an entity of one domain
type Target struct {
	Domain    string
	Service   string
	Parameter string
}

// targets maps entity domain to its write operation. It is never modified.
var targets = map[string]Target{
	"number":       {Domain: "number", Service: "set_value", Parameter: "value"},
	"input_number": {Domain: "input_number", Service: "set_value", Parameter: "value"},
	"select":       {Domain: "select", Service: "select_option", Parameter: "option"},
	"input_select": {Domain: "input_select", Service: "select_option", Parameter: "option"},
	"cover":        {Domain: "cover", Service: "set_position", Parameter: "position"},
	"light":        {Domain: "light", Service: "turn_on", Parameter: "brightness"},
	"media_player": {Domain: "media_player", Service: "volume_set", Parameter: "volume_level"},
	"climate":      {Domain: "climate", Service: "set_temperature", Parameter: "temperature"},
	"fan":          {Domain: "fan", Service: "set_speed", Parameter: "speed"},
}

// DomainOf returns the text before the first '.', or the whole reference if it has none
func DomainOf(entityID string) string {
	domain, _, _ := strings.Cut(entityID, ".")
	return domain
}

// Resolve returns the write operation for entityID
func Resolve(entityID string) (Target, error) {
	domain := DomainOf(entityID)
	target, ok := targets[domain]
	if !ok {
		return Target{}, fmt.Errorf("%w: %q (entity %s)", ErrUnsupportedDomain, domain, entityID)
	}
	return target, nil
}

// Domains lists the supported entity domains in sorted order
func Domains() []string {
	domains := make([]string, 0, len(targets))
	for domain := range targets {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	return domains
}

// ServiceCaller invokes Home Assistant services
type ServiceCaller interface {
	CallService(domain, service string, data map[string]interface{}) error
}

// Dispatcher writes values to entities with the service call their domain requires
type Dispatcher struct {
	client   ServiceCaller
	logger   *zap.Logger
	readOnly bool
}

// NewDispatcher creates a dispatcher. In read-only mode writes are logged and skipped.
func NewDispatcher(client ServiceCaller, logger *zap.Logger, readOnly bool) *Dispatcher {
	return &Dispatcher{
		client:   client,
		logger:   logger.Named("dispatch"),
		readOnly: readOnly,
	}
}

// Dispatch writes value to entityID. Unsupported domains fail before any service call.
func (d *Dispatcher) Dispatch(entityID string, value any) error {
	target, err := Resolve(entityID)
	if err != nil {
		return err
	}

	if d.readOnly {
		d.logger.Info("READ-ONLY: skipping write",
			zap.String("entity_id", entityID),
			zap.String("service", target.Domain+"."+target.Service),
			zap.Any("value", value))
		return nil
	}

	d.logger.Debug("Writing entity",
		zap.String("entity_id", entityID),
		zap.String("service", target.Domain+"."+target.Service),
		zap.Any("value", value))

	return d.client.CallService(target.Domain, target.Service, map[string]interface{}{
		"entity_id":      entityID,
		target.Parameter: value,
	})
}
