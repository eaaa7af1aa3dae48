package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/streamrelay/errors"
)

// Defaults
const (
	DefaultBusURL        = "nats://127.0.0.1:4222"
	DefaultSubjectPrefix = "bus"
	DefaultPollTimeout   = 100 * time.Millisecond
	DefaultListenHost    = "0.0.0.0"
	DefaultListenPort    = 8867
	DefaultListenPath    = "/"
	DefaultSendInterval  = 50 * time.Millisecond
	DefaultWriteTimeout  = 10 * time.Second
	DefaultReadTimeout   = 60 * time.Second
	DefaultPingInterval  = 30 * time.Second

	// DefaultBusPort is used when DEVICE_ADDR names a bare host
	DefaultBusPort = 4222

	// MetricsPath and HealthPath are served beside the consumer endpoint
	MetricsPath = "/metrics"
	HealthPath  = "/healthz"
)

// DefaultChannels are the channels a visualization dashboard needs
var DefaultChannels = []string{
	"modelV2",
	"carState",
	"radarState",
	"controlsState",
	"lateralPlan",
	"longitudinalPlan",
	"liveCalibration",
	"carEvents",
	"deviceState",
	"carParams",
	"liveLocationKalman",
	"driverMonitoringState",
	"pandaStates",
}

// Config is the relay configuration, read once at startup
type Config struct {
	Bus      BusConfig    `yaml:"bus" json:"bus"`
	Listen   ListenConfig `yaml:"listen" json:"listen"`
	Relay    RelayConfig  `yaml:"relay" json:"relay"`
	Channels []string     `yaml:"channels" json:"channels"`
}

// BusConfig describes the bus connection
type BusConfig struct {
	URL           string        `yaml:"url" json:"url"`
	SubjectPrefix string        `yaml:"subject_prefix" json:"subject_prefix"`
	PollTimeout   time.Duration `yaml:"poll_timeout" json:"poll_timeout"`
	// CatalogPath replaces the embedded service catalog when set
	CatalogPath string `yaml:"catalog_path,omitempty" json:"catalog_path,omitempty"`
}

// ListenConfig describes the consumer-facing listener
type ListenConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
	Path string `yaml:"path" json:"path"`
}

// RelayConfig holds the per-consumer delivery settings
type RelayConfig struct {
	SendInterval time.Duration `yaml:"send_interval" json:"send_interval"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	PingInterval time.Duration `yaml:"ping_interval" json:"ping_interval"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Bus: BusConfig{
			URL:           DefaultBusURL,
			SubjectPrefix: DefaultSubjectPrefix,
			PollTimeout:   DefaultPollTimeout,
		},
		Listen: ListenConfig{
			Host: DefaultListenHost,
			Port: DefaultListenPort,
			Path: DefaultListenPath,
		},
		Relay: RelayConfig{
			SendInterval: DefaultSendInterval,
			WriteTimeout: DefaultWriteTimeout,
			ReadTimeout:  DefaultReadTimeout,
			PingInterval: DefaultPingInterval,
		},
		Channels: append([]string(nil), DefaultChannels...),
	}
}

// Validate checks the configuration for values the relay cannot run with
func (c *Config) Validate() error {
	var problems []string

	if c.Bus.URL == "" {
		problems = append(problems, "bus.url is required")
	} else if u, err := url.Parse(c.Bus.URL); err != nil || u.Host == "" {
		problems = append(problems, fmt.Sprintf("bus.url %q is not a valid URL", c.Bus.URL))
	}
	if c.Bus.SubjectPrefix == "" || strings.ContainsAny(c.Bus.SubjectPrefix, " *>") {
		problems = append(problems, fmt.Sprintf("bus.subject_prefix %q is not a valid subject token", c.Bus.SubjectPrefix))
	}
	if c.Bus.PollTimeout <= 0 {
		problems = append(problems, "bus.poll_timeout must be positive")
	}

	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		problems = append(problems, fmt.Sprintf("listen.port %d out of range 1-65535", c.Listen.Port))
	}
	if !strings.HasPrefix(c.Listen.Path, "/") {
		problems = append(problems, fmt.Sprintf("listen.path %q must start with /", c.Listen.Path))
	} else if c.Listen.Path == MetricsPath || c.Listen.Path == HealthPath {
		problems = append(problems, fmt.Sprintf("listen.path %q is reserved", c.Listen.Path))
	}

	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"relay.send_interval", c.Relay.SendInterval},
		{"relay.write_timeout", c.Relay.WriteTimeout},
		{"relay.read_timeout", c.Relay.ReadTimeout},
		{"relay.ping_interval", c.Relay.PingInterval},
	} {
		if d.value <= 0 {
			problems = append(problems, d.name+" must be positive")
		}
	}
	if c.Relay.PingInterval > 0 && c.Relay.ReadTimeout > 0 && c.Relay.ReadTimeout <= c.Relay.PingInterval {
		problems = append(problems, "relay.read_timeout must exceed relay.ping_interval")
	}

	if len(c.Channels) == 0 {
		problems = append(problems, "channels must not be empty")
	}
	for _, ch := range c.Channels {
		if strings.TrimSpace(ch) == "" {
			problems = append(problems, "channels must not contain empty names")
			break
		}
	}

	if len(problems) > 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; ")),
			"Config", "Validate", "configuration check")
	}
	return nil
}

// String renders the configuration as YAML
func (c *Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<config: %v>", err)
	}
	return string(data)
}
