package config

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultStateFile        = "/var/lib/curtain/state.json"
	DefaultTickIntervalMs   = 50
	DefaultPort             = "/dev/ttyUSB0"
	DefaultBaudRate         = 9600
	DefaultActuatedHeightMm = 1000
	DefaultMaxBurst         = 512
	DefaultAckTimeoutMs     = 5000
	DefaultPollIntervalMs   = 1
)

// Error reports an invalid configuration. It is fatal at startup.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid config: %s %s", e.Field, e.Reason)
}

// DeviceConfig is the calibration and wiring of one curtain motor. It is
// never mutated after loading.
type DeviceConfig struct {
	Name             string  `yaml:"name" json:"name"`
	Port             string  `yaml:"port" json:"port"`
	StepsPerMm       float64 `yaml:"steps_per_mm" json:"steps_per_mm"`
	ActuatedHeightMm float64 `yaml:"actuated_height_mm" json:"actuated_height_mm"`
	BaudRate         int     `yaml:"baud_rate" json:"baud_rate"`
	ReverseDirection bool    `yaml:"reverse_direction" json:"reverse_direction"`
	MaxBurst         int64   `yaml:"max_burst" json:"max_burst"`
	AckTimeoutMs     int     `yaml:"ack_timeout_ms" json:"ack_timeout_ms"`
	PollIntervalMs   int     `yaml:"poll_interval_ms" json:"poll_interval_ms"`
}

// AckTimeout returns how long a command may wait for its acknowledgment.
func (d DeviceConfig) AckTimeout() time.Duration {
	return time.Duration(d.AckTimeoutMs) * time.Millisecond
}

// PollInterval returns the serial read poll interval.
func (d DeviceConfig) PollInterval() time.Duration {
	return time.Duration(d.PollIntervalMs) * time.Millisecond
}

// ScheduleConfig moves a device to Position (percent) whenever Cron fires.
type ScheduleConfig struct {
	Device   string  `yaml:"device" json:"device"`
	Cron     string  `yaml:"cron" json:"cron"`
	Position float64 `yaml:"position" json:"position"`
}

// Config aggregates the daemon configuration.
type Config struct {
	StateFile          string           `yaml:"state_file" json:"state_file"`
	TickIntervalMs     int              `yaml:"tick_interval_ms" json:"tick_interval_ms"`
	HTTPListen         string           `yaml:"http_listen" json:"http_listen,omitempty"`
	AllowNonRootAccess bool             `yaml:"allow_non_root_access" json:"allow_non_root_access"`
	Devices            []DeviceConfig   `yaml:"devices" json:"devices"`
	Schedules          []ScheduleConfig `yaml:"schedules" json:"schedules,omitempty"`
}

// TickInterval returns the control loop period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// Device returns the configuration of the named device.
func (c *Config) Device(name string) (DeviceConfig, bool) {
	for _, d := range c.Devices {
		if d.Name == name {
			return d, true
		}
	}
	return DeviceConfig{}, false
}

func (c *Config) LogrusFields() logrus.Fields {
	names := make([]string, 0, len(c.Devices))
	for _, d := range c.Devices {
		names = append(names, d.Name)
	}

	return logrus.Fields{
		"stateFile":          c.StateFile,
		"tickInterval":       c.TickInterval().String(),
		"httpListen":         c.HTTPListen,
		"allowNonRootAccess": c.AllowNonRootAccess,
		"devices":            names,
		"schedules":          len(c.Schedules),
	}
}
