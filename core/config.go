package core

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Micro trigger modes accepted in FileConfig.MicroTrigger.
const (
	TriggerAuto      = "auto"
	TriggerImmediate = "immediate"
	TriggerTimer     = "timer"
	TriggerManual    = "manual"
)

// FileConfig is the on-disk form of a scheduler and its loop.
//
//	name: ui
//	micro_task_queue_capacity: 1024
//	long_stacks: true
//	micro_trigger: auto
//	fallback_interval: 50ms
//	log_level: info
//	loop:
//	  queue_size: 100
type FileConfig struct {
	Name                   string         `yaml:"name"`
	MicroTaskQueueCapacity int            `yaml:"micro_task_queue_capacity"`
	LongStacks             bool           `yaml:"long_stacks"`
	MicroTrigger           string         `yaml:"micro_trigger"`
	FallbackInterval       string         `yaml:"fallback_interval"`
	LogLevel               string         `yaml:"log_level"`
	Loop                   LoopFileConfig `yaml:"loop"`
}

// LoopFileConfig is the loop section of FileConfig.
type LoopFileConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// LoadConfigFile reads and validates a YAML config file.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes and validates YAML config data. Unknown keys are
// rejected.
func ParseConfig(data []byte) (*FileConfig, error) {
	cfg := &FileConfig{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values.
func (c *FileConfig) Validate() error {
	if c.MicroTaskQueueCapacity < 0 {
		return fmt.Errorf("micro_task_queue_capacity: must be >= 0")
	}
	if c.Loop.QueueSize < 0 {
		return fmt.Errorf("loop.queue_size: must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(c.MicroTrigger)) {
	case "", TriggerAuto, TriggerImmediate, TriggerTimer, TriggerManual:
	default:
		return fmt.Errorf("micro_trigger: unknown mode %q", c.MicroTrigger)
	}
	if _, err := parseDurationOrDefault("fallback_interval", c.FallbackInterval, DefaultFallbackInterval); err != nil {
		return err
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// Logger builds the logger described by LogLevel, writing JSON to stderr.
func (c *FileConfig) Logger() Logger {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		return NewDefaultLogger()
	}
	return NewWriterLogger(os.Stderr, level)
}

// LoopConfig converts the loop section.
func (c *FileConfig) LoopConfig(logger Logger) *LoopConfig {
	return &LoopConfig{
		Name:      c.Name,
		QueueSize: c.Loop.QueueSize,
		Logger:    logger,
	}
}

// SchedulerConfig converts c for a scheduler on host. MicroTrigger selects
// the micro flush strategy; "auto" leaves the choice to NewScheduler.
func (c *FileConfig) SchedulerConfig(host Host, logger Logger) (*SchedulerConfig, error) {
	interval, err := parseDurationOrDefault("fallback_interval", c.FallbackInterval, DefaultFallbackInterval)
	if err != nil {
		return nil, err
	}

	config := DefaultSchedulerConfig()
	if c.Name != "" {
		config.Name = c.Name
	}
	if c.MicroTaskQueueCapacity > 0 {
		config.MicroTaskQueueCapacity = c.MicroTaskQueueCapacity
	}
	config.LongStacks = c.LongStacks
	config.FallbackInterval = interval
	if logger != nil {
		config.Logger = logger
		config.ErrorReporter = &DefaultErrorReporter{Logger: logger}
	}

	switch strings.ToLower(strings.TrimSpace(c.MicroTrigger)) {
	case TriggerManual:
		config.MicroTrigger = ManualTrigger()
		config.MacroTrigger = ManualTrigger()
	case TriggerTimer:
		if host != nil {
			config.MicroTrigger = TimerTrigger(host, interval, config.Logger)
		}
	case TriggerImmediate:
		ih, ok := host.(ImmediateHost)
		if !ok {
			return nil, fmt.Errorf("micro_trigger: host %T has no immediate inbox", host)
		}
		config.MicroTrigger = ImmediateTrigger(ih, TimerTrigger(host, interval, config.Logger))
	}

	return config, nil
}

func parseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
