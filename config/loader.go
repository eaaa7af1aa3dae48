package config

import (
	_ "embed"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/c360/streamrelay/errors"
)

//go:embed schema.json
var schemaJSON string

var schemaLoader = gojsonschema.NewStringLoader(schemaJSON)

// Environment variables read without the loader prefix
const (
	EnvDeviceAddr = "DEVICE_ADDR"
	EnvWSHost     = "WS_HOST"
	EnvWSPort     = "WS_PORT"
)

// Loader builds a Config from defaults, file layers and the environment
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a loader with validation enabled
func NewLoader() *Loader {
	return &Loader{
		layers:     []string{},
		validation: true,
		envPrefix:  "STREAMRELAY",
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables Config.Validate at the end of Load
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file plus the environment
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load applies defaults, then each file layer, then environment overrides
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		if err := l.loadLayer(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadLayer validates one file against the schema and decodes it over cfg.
// Fields absent from the file keep their current values.
func (l *Loader) loadLayer(cfg *Config, path string) error {
	data, err := safeReadFile(path)
	if err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"Loader", "loadLayer", fmt.Sprintf("read %s", path))
	}

	if err := validateDocument(data); err != nil {
		return errors.WrapInvalid(err, "Loader", "loadLayer", fmt.Sprintf("schema check %s", path))
	}

	// YAML is a superset of JSON, so one decoder serves both file types
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"Loader", "loadLayer", fmt.Sprintf("decode %s", path))
	}
	return nil
}

// validateDocument checks a YAML or JSON document against the embedded schema
func validateDocument(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	if doc == nil {
		// An empty file changes nothing
		return nil
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(problems, "; "))
}

// applyEnvOverrides applies environment variable overrides. The prefixed
// bus URL wins over DEVICE_ADDR.
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	get := func(key string) (string, bool, error) {
		val, ok := os.LookupEnv(key)
		if !ok || val == "" {
			return "", false, nil
		}
		if err := validateEnvVar(key, val); err != nil {
			return "", false, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
				"Loader", "applyEnvOverrides", key)
		}
		return val, true, nil
	}

	var err error
	set := func(key string, apply func(string) error) {
		if err != nil {
			return
		}
		val, ok, getErr := get(key)
		if getErr != nil {
			err = getErr
			return
		}
		if !ok {
			return
		}
		if applyErr := apply(val); applyErr != nil {
			err = errors.WrapInvalid(fmt.Errorf("%w: %s=%q: %v", errors.ErrInvalidConfig, key, val, applyErr),
				"Loader", "applyEnvOverrides", key)
		}
	}

	set(EnvDeviceAddr, func(v string) error {
		cfg.Bus.URL = BusURLFromAddr(v)
		return nil
	})
	set(l.envPrefix+"_BUS_URL", func(v string) error {
		cfg.Bus.URL = v
		return nil
	})
	set(l.envPrefix+"_SUBJECT_PREFIX", func(v string) error {
		cfg.Bus.SubjectPrefix = v
		return nil
	})
	set(l.envPrefix+"_POLL_TIMEOUT", durationSetter(&cfg.Bus.PollTimeout))
	set(l.envPrefix+"_CATALOG", func(v string) error {
		cfg.Bus.CatalogPath = v
		return nil
	})

	set(EnvWSHost, func(v string) error {
		cfg.Listen.Host = v
		return nil
	})
	set(EnvWSPort, func(v string) error {
		port, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		cfg.Listen.Port = port
		return nil
	})
	set(l.envPrefix+"_WS_PATH", func(v string) error {
		cfg.Listen.Path = v
		return nil
	})

	set(l.envPrefix+"_SEND_INTERVAL", durationSetter(&cfg.Relay.SendInterval))
	set(l.envPrefix+"_CHANNELS", func(v string) error {
		cfg.Channels = splitList(v)
		return nil
	})

	return err
}

func durationSetter(target *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*target = d
		return nil
	}
}

// BusURLFromAddr turns a device address into a bus URL. A bare host gets the
// nats scheme and the default port; host:port gets the scheme only; a full
// URL is returned unchanged.
func BusURLFromAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	if strings.Contains(addr, "://") {
		return addr
	}
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return "nats://" + addr
	}
	return "nats://" + net.JoinHostPort(addr, strconv.Itoa(DefaultBusPort))
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
