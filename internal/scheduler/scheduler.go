// Package scheduler decides when rules run: on a fixed interval, when one of
// their input entities changes, or both.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hvacautomation/internal/automation"
	"hvacautomation/internal/ha"

	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

var (
	ErrAlreadyStarted = errors.New("scheduler already started")
	ErrNoTrigger      = errors.New("rule needs an interval or on_change")
	ErrDuplicateRule  = errors.New("rule already scheduled")
)

// Trigger says when a rule runs
type Trigger struct {
	Interval time.Duration
	OnChange bool
}

type entry struct {
	rule    automation.Rule
	trigger Trigger
}

// Scheduler drives a Runner from timers and state change events
type Scheduler struct {
	client ha.HAClient
	runner *automation.Runner
	logger *zap.Logger

	mu      sync.Mutex
	entries []entry
	names   map[string]bool
	quartz  quartz.Scheduler
	subs    []ha.Subscription
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a scheduler; rules are added with Add before Start
func New(client ha.HAClient, runner *automation.Runner, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		client: client,
		runner: runner,
		logger: logger.Named("scheduler"),
		names:  make(map[string]bool),
	}
}

// Add registers a rule with its trigger
func (s *Scheduler) Add(rule automation.Rule, trigger Trigger) error {
	if trigger.Interval <= 0 && !trigger.OnChange {
		return fmt.Errorf("%w: %s", ErrNoTrigger, rule.Name())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	if s.names[rule.Name()] {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, rule.Name())
	}
	s.names[rule.Name()] = true
	s.entries = append(s.entries, entry{rule: rule, trigger: trigger})
	return nil
}

// Rules returns the scheduled rules in the order they were added
func (s *Scheduler) Rules() []automation.Rule {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules := make([]automation.Rule, len(s.entries))
	for i, e := range s.entries {
		rules[i] = e.rule
	}
	return rules
}

// Start schedules interval jobs and subscribes to the input entities of on_change rules
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.quartz = quartz.NewStdScheduler()
	s.quartz.Start(s.ctx)

	for _, e := range s.entries {
		if e.trigger.Interval > 0 {
			if err := s.scheduleInterval(e); err != nil {
				s.stopLocked()
				return err
			}
		}
		if e.trigger.OnChange {
			if err := s.subscribe(e); err != nil {
				s.stopLocked()
				return err
			}
		}
	}

	s.started = true
	s.logger.Info("Scheduler started", zap.Int("rules", len(s.entries)))
	return nil
}

func (s *Scheduler) scheduleInterval(e entry) error {
	rule := e.rule
	fn := job.NewFunctionJob(func(ctx context.Context) (bool, error) {
		s.run(ctx, rule, "interval")
		return true, nil
	})

	detail := quartz.NewJobDetail(fn, quartz.NewJobKey(rule.Name()))
	if err := s.quartz.ScheduleJob(detail, quartz.NewSimpleTrigger(e.trigger.Interval)); err != nil {
		return fmt.Errorf("failed to schedule rule %s: %w", rule.Name(), err)
	}

	s.logger.Debug("Scheduled interval",
		zap.String("rule", rule.Name()),
		zap.Duration("interval", e.trigger.Interval))
	return nil
}

func (s *Scheduler) subscribe(e entry) error {
	rule := e.rule
	for _, entityID := range rule.Entities() {
		sub, err := s.client.SubscribeStateChanges(entityID, func(entityID string, oldState, newState *ha.State) {
			if !changed(oldState, newState) {
				return
			}
			// Add only while started so Stop's Wait cannot miss a run
			s.mu.Lock()
			if !s.started || s.ctx.Err() != nil {
				s.mu.Unlock()
				return
			}
			ctx := s.ctx
			s.wg.Add(1)
			s.mu.Unlock()

			go func() {
				defer s.wg.Done()
				s.run(ctx, rule, entityID)
			}()
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe rule %s to %s: %w", rule.Name(), entityID, err)
		}
		s.subs = append(s.subs, sub)
	}

	s.logger.Debug("Subscribed to input changes",
		zap.String("rule", rule.Name()),
		zap.Strings("entities", rule.Entities()))
	return nil
}

// changed ignores attribute-only updates
func changed(oldState, newState *ha.State) bool {
	if newState == nil {
		return false
	}
	return oldState == nil || oldState.State != newState.State
}

func (s *Scheduler) run(ctx context.Context, rule automation.Rule, cause string) {
	if ctx.Err() != nil {
		return
	}
	s.logger.Debug("Triggering rule", zap.String("rule", rule.Name()), zap.String("cause", cause))

	// Runner logs and records failures; an overlapping trigger is simply dropped
	_, _ = s.runner.Run(ctx, rule)
}

// Stop cancels pending work, stops the timers, drops subscriptions and
// waits for in-flight change-triggered runs
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) stopLocked() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("Failed to unsubscribe", zap.Error(err))
		}
	}
	s.subs = nil

	if s.quartz != nil {
		s.quartz.Stop()
		s.quartz = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.started = false
}
