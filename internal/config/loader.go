package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// RulesFileName is the rules file looked up in the config directory
const RulesFileName = "rules.yaml"

// RuleConfig is one configured rule instance
type RuleConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`

	// Interval runs the rule periodically; zero disables the timer
	Interval time.Duration `yaml:"interval"`

	// OnChange runs the rule whenever one of its input entities changes
	OnChange bool `yaml:"on_change"`

	// Params holds the kind-specific options, decoded by the rule factory
	Params yaml.Node `yaml:"params"`
}

// RulesConfig represents the rules.yaml structure
type RulesConfig struct {
	Rules []RuleConfig `yaml:"rules"`
}

// Validate checks names are present and unique and every rule has a trigger
func (c *RulesConfig) Validate() error {
	seen := make(map[string]bool, len(c.Rules))
	for i, rule := range c.Rules {
		if rule.Name == "" {
			return fmt.Errorf("rule %d: name is required", i)
		}
		if seen[rule.Name] {
			return fmt.Errorf("rule %s: duplicate name", rule.Name)
		}
		seen[rule.Name] = true

		if rule.Kind == "" {
			return fmt.Errorf("rule %s: kind is required", rule.Name)
		}
		if rule.Interval < 0 {
			return fmt.Errorf("rule %s: interval must not be negative", rule.Name)
		}
		if rule.Interval == 0 && !rule.OnChange {
			return fmt.Errorf("rule %s: needs an interval or on_change", rule.Name)
		}
	}
	return nil
}

// Loader reads rule definitions from the config directory
type Loader struct {
	configDir string
	logger    *zap.Logger

	mu    sync.RWMutex
	rules *RulesConfig
}

// NewLoader creates a new configuration loader
func NewLoader(configDir string, logger *zap.Logger) *Loader {
	return &Loader{
		configDir: configDir,
		logger:    logger.Named("config"),
	}
}

// LoadRules loads and validates the rules.yaml file
func (l *Loader) LoadRules() (*RulesConfig, error) {
	path := filepath.Join(l.configDir, RulesFileName)
	l.logger.Debug("Loading rules config", zap.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules config: %w", err)
	}

	var config RulesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse rules config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules config: %w", err)
	}

	l.mu.Lock()
	l.rules = &config
	l.mu.Unlock()

	l.logger.Info("Rules config loaded successfully", zap.Int("rules", len(config.Rules)))
	return &config, nil
}

// GetRules returns the last loaded rules configuration
func (l *Loader) GetRules() *RulesConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rules
}
