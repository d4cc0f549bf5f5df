package automation

import (
	"context"
	"errors"
	"sync"
	"time"

	"hvacautomation/internal/clock"

	"go.uber.org/zap"
)

// Result is the terminal state of one invocation: an outcome or an error
type Result struct {
	Rule    string    `json:"rule"`
	Kind    string    `json:"kind"`
	Outcome *Outcome  `json:"outcome,omitempty"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}

// Recorder receives every terminal result
type Recorder interface {
	Record(result Result)
}

type nopRecorder struct{}

func (nopRecorder) Record(Result) {}

// Runner invokes rules one at a time per rule name and keeps the last result of each
type Runner struct {
	logger   *zap.Logger
	clock    clock.Clock
	recorder Recorder

	mu      sync.Mutex
	running map[string]bool
	last    map[string]Result
}

// NewRunner creates a runner. A nil recorder discards results.
func NewRunner(logger *zap.Logger, clk clock.Clock, recorder Recorder) *Runner {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Runner{
		logger:   logger.Named("runner"),
		clock:    clk,
		recorder: recorder,
		running:  make(map[string]bool),
		last:     make(map[string]Result),
	}
}

// Run evaluates rule unless an invocation of the same rule is still in progress,
// in which case it returns ErrAlreadyRunning without touching the rule.
func (r *Runner) Run(ctx context.Context, rule Rule) (*Outcome, error) {
	name := rule.Name()

	r.mu.Lock()
	if r.running[name] {
		r.mu.Unlock()
		r.logger.Debug("Rule still running, dropping trigger", zap.String("rule", name))
		return nil, ErrAlreadyRunning
	}
	r.running[name] = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.running, name)
		r.mu.Unlock()
	}()

	start := r.clock.Now()
	outcome, err := rule.Evaluate(ctx)
	duration := r.clock.Since(start)

	result := Result{Rule: name, Kind: rule.Kind(), Time: start}

	if err != nil {
		result.Error = err.Error()
		r.logger.Error("Rule failed",
			zap.String("rule", name),
			zap.String("kind", rule.Kind()),
			zap.Duration("duration", duration),
			zap.Error(err))
		r.finish(result)
		return nil, err
	}
	if outcome == nil {
		err := errors.New("rule returned no outcome")
		result.Error = err.Error()
		r.finish(result)
		return nil, err
	}

	outcome.Rule = name
	outcome.Kind = rule.Kind()
	outcome.Time = start
	outcome.Duration = duration
	result.Outcome = outcome

	r.logger.Info("Rule evaluated",
		zap.String("rule", name),
		zap.String("kind", outcome.Kind),
		zap.Any("inputs", outcome.Inputs),
		zap.Any("decision", outcome.Decision),
		zap.String("action", string(outcome.Action)),
		zap.String("target", outcome.Target),
		zap.Duration("duration", duration))

	r.finish(result)
	return outcome, nil
}

func (r *Runner) finish(result Result) {
	r.mu.Lock()
	r.last[result.Rule] = result
	r.mu.Unlock()

	r.recorder.Record(result)
}

// LastResult returns the most recent result of the named rule
func (r *Runner) LastResult(name string) (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result, ok := r.last[name]
	return result, ok
}

// LastResults returns a copy of the most recent result of every rule that has run
func (r *Runner) LastResults() map[string]Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	results := make(map[string]Result, len(r.last))
	for name, result := range r.last {
		results[name] = result
	}
	return results
}
