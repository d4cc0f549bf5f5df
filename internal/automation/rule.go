// Package automation defines the contract shared by all HVAC rules: how they read
// entity states, what they report back, and how a single invocation is run.
package automation

import (
	"context"
	"time"

	"hvacautomation/internal/ha"
)

// Action is the terminal decision of one rule invocation
type Action string

const (
	ActionSet   Action = "SET"
	ActionPass  Action = "PASS"
	ActionOpen  Action = "OPEN"
	ActionClose Action = "CLOSE"
	ActionNone  Action = "NONE"
)

// Rule is one configured automation. Evaluate reads its inputs, decides, and
// performs at most the writes its decision requires.
type Rule interface {
	Name() string
	Kind() string
	// Entities lists the input entities whose changes should re-trigger the rule
	Entities() []string
	Evaluate(ctx context.Context) (*Outcome, error)
}

// Outcome records what a rule saw and what it did
type Outcome struct {
	Rule     string                 `json:"rule"`
	Kind     string                 `json:"kind"`
	Action   Action                 `json:"action"`
	Inputs   map[string]interface{} `json:"inputs"`
	Decision interface{}            `json:"decision"`
	Target   string                 `json:"target,omitempty"`
	Time     time.Time              `json:"time"`
	Duration time.Duration          `json:"duration"`
}

// StateReader reads entity states
type StateReader interface {
	GetState(entityID string) (*ha.State, error)
}

// Writer writes a value to an entity using the operation its domain requires
type Writer interface {
	Dispatch(entityID string, value any) error
}
