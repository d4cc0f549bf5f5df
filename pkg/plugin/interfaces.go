// Package plugin provides the registry of rule kinds. Each rule package registers
// its kind from an init() function; configuration then builds named rule instances
// by kind. A kind registered again with a higher priority replaces the default one,
// which lets a private build override a public rule implementation.
package plugin

import (
	"errors"
	"fmt"

	"hvacautomation/internal/automation"

	"gopkg.in/yaml.v3"
)

// ErrInvalidParams is returned when rule options cannot be decoded into the kind's parameters
var ErrInvalidParams = errors.New("invalid params")

// Decoder fills a rule's parameter struct from its configured options
type Decoder func(v interface{}) error

// Factory builds a named rule of one kind from decoded options
type Factory func(ctx *Context, name string, decode Decoder) (automation.Rule, error)

// NodeDecoder decodes options taken from the rules YAML file
func NodeDecoder(node *yaml.Node) Decoder {
	return func(v interface{}) error {
		if node == nil || node.Kind == 0 {
			return nil
		}
		if err := node.Decode(v); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidParams, err)
		}
		return nil
	}
}

// BytesDecoder decodes options given as a YAML or JSON document
func BytesDecoder(data []byte) Decoder {
	return func(v interface{}) error {
		if len(data) == 0 {
			return nil
		}
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidParams, err)
		}
		return nil
	}
}
