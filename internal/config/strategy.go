package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/scoreline-trading/scoreline/pkg/strategy"
)

// ConfigError marks a strategy document that failed validation. It is fatal
// to that one strategy, never to the process: the loader reports it and
// moves on to the next file.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("strategy config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// LoadStrategyFile reads and validates a single strategy YAML document.
func LoadStrategyFile(path string) (*strategy.Strategy, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("enabled", true)

	if err := v.ReadInConfig(); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	var cfg strategy.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	if !cfg.Enabled {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("strategy %q is disabled", cfg.Name)}
	}

	strat, err := strategy.New(cfg)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return strat, nil
}

// LoadStrategies loads every *.yaml strategy document in dir. Invalid or
// disabled strategies are excluded and reported through the logger, not
// silently skipped. Files load in sorted order so the active set is stable
// across runs.
func LoadStrategies(dir string, log *logrus.Logger) ([]*strategy.Strategy, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("strategies directory %s: %w", dir, err)
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var strategies []*strategy.Strategy
	for _, path := range paths {
		strat, err := LoadStrategyFile(path)
		if err != nil {
			log.WithError(err).WithField("file", path).Warn("Strategy excluded")
			continue
		}
		log.WithField("strategy", strat.Name()).Info("Loaded strategy")
		strategies = append(strategies, strat)
	}

	return strategies, nil
}
