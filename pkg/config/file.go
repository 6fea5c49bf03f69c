package config

import (
	"fmt"
	"math"
	"os"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/charlie0129/curtain/pkg/motion"
)

// Load reads a YAML (or JSON) configuration file, fills in defaults and
// validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read config file %s", path)
	}

	return Parse(data)
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to unmarshal config")
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.StateFile == "" {
		cfg.StateFile = DefaultStateFile
	}
	if cfg.TickIntervalMs == 0 {
		cfg.TickIntervalMs = DefaultTickIntervalMs
	}

	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if d.Port == "" {
			d.Port = DefaultPort
		}
		if d.BaudRate == 0 {
			d.BaudRate = DefaultBaudRate
		}
		if d.ActuatedHeightMm == 0 {
			d.ActuatedHeightMm = DefaultActuatedHeightMm
		}
		if d.MaxBurst == 0 {
			d.MaxBurst = DefaultMaxBurst
		}
		if d.AckTimeoutMs == 0 {
			d.AckTimeoutMs = DefaultAckTimeoutMs
		}
		if d.PollIntervalMs == 0 {
			d.PollIntervalMs = DefaultPollIntervalMs
		}
	}
}

// Validate checks the configuration. Defaults must already be applied.
func (c *Config) Validate() error {
	if c.TickIntervalMs < 0 {
		return &Error{Field: "tick_interval_ms", Reason: fmt.Sprintf("must be > 0, got %d", c.TickIntervalMs)}
	}
	if len(c.Devices) == 0 {
		return &Error{Field: "devices", Reason: "must contain at least one device"}
	}

	seen := map[string]bool{}
	for i, d := range c.Devices {
		field := func(name string) string {
			return fmt.Sprintf("devices[%d].%s", i, name)
		}

		if strings.TrimSpace(d.Name) == "" {
			return &Error{Field: field("name"), Reason: "is required"}
		}
		if strings.ContainsAny(d.Name, "/ ") {
			return &Error{Field: field("name"), Reason: fmt.Sprintf("must not contain spaces or slashes, got %q", d.Name)}
		}
		if seen[d.Name] {
			return &Error{Field: field("name"), Reason: fmt.Sprintf("%q is used by more than one device", d.Name)}
		}
		seen[d.Name] = true

		if !(d.StepsPerMm > 0) || math.IsInf(d.StepsPerMm, 0) {
			return &Error{Field: field("steps_per_mm"), Reason: fmt.Sprintf("must be > 0, got %g", d.StepsPerMm)}
		}
		if !(d.ActuatedHeightMm > 0) || math.IsInf(d.ActuatedHeightMm, 0) {
			return &Error{Field: field("actuated_height_mm"), Reason: fmt.Sprintf("must be > 0, got %g", d.ActuatedHeightMm)}
		}
		if d.BaudRate < 0 {
			return &Error{Field: field("baud_rate"), Reason: fmt.Sprintf("must be > 0, got %d", d.BaudRate)}
		}
		if !motion.IsPowerOfTwo(d.MaxBurst) || d.MaxBurst > motion.MaxBurstLimit {
			return &Error{Field: field("max_burst"), Reason: fmt.Sprintf("must be a power of two <= %d, got %d", motion.MaxBurstLimit, d.MaxBurst)}
		}
		if d.AckTimeoutMs < 0 {
			return &Error{Field: field("ack_timeout_ms"), Reason: fmt.Sprintf("must be > 0, got %d", d.AckTimeoutMs)}
		}
		if d.PollIntervalMs < 0 {
			return &Error{Field: field("poll_interval_ms"), Reason: fmt.Sprintf("must be > 0, got %d", d.PollIntervalMs)}
		}
	}

	for i, s := range c.Schedules {
		field := func(name string) string {
			return fmt.Sprintf("schedules[%d].%s", i, name)
		}

		if !seen[s.Device] {
			return &Error{Field: field("device"), Reason: fmt.Sprintf("unknown device %q", s.Device)}
		}
		if strings.TrimSpace(s.Cron) == "" {
			return &Error{Field: field("cron"), Reason: "is required"}
		}
		if s.Position < 0 || s.Position > 100 {
			return &Error{Field: field("position"), Reason: fmt.Sprintf("must be between 0 and 100, got %g", s.Position)}
		}
	}

	return nil
}
