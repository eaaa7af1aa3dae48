package bus

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/c360/streamrelay/errors"
)

//go:embed services.yaml
var defaultServices []byte

// Service describes one channel known to the bus
type Service struct {
	Name      string  `yaml:"-"`
	Port      int     `yaml:"port"`
	Frequency float64 `yaml:"frequency"`
}

// Catalog is the static registry of channels available on the bus
type Catalog struct {
	services map[string]Service
}

type catalogFile struct {
	Services map[string]Service `yaml:"services"`
}

// DefaultCatalog returns the built-in channel catalog
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultServices)
	if err != nil {
		panic("bus: embedded catalog is invalid: " + err.Error())
	}
	return c
}

// LoadCatalog reads a catalog from a YAML file
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Catalog", "LoadCatalog", "read "+path)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses catalog YAML
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err), "Catalog", "ParseCatalog", "parse yaml")
	}
	if len(file.Services) == 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: no services defined", errors.ErrInvalidConfig), "Catalog", "ParseCatalog", "validate")
	}

	ports := make(map[int]string, len(file.Services))
	services := make(map[string]Service, len(file.Services))
	for name, svc := range file.Services {
		if svc.Port < 1 || svc.Port > 65535 {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: service %s has port %d", errors.ErrInvalidConfig, name, svc.Port),
				"Catalog", "ParseCatalog", "validate")
		}
		if other, dup := ports[svc.Port]; dup {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: services %s and %s share port %d", errors.ErrInvalidConfig, other, name, svc.Port),
				"Catalog", "ParseCatalog", "validate")
		}
		if svc.Frequency < 0 {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: service %s has negative frequency", errors.ErrInvalidConfig, name),
				"Catalog", "ParseCatalog", "validate")
		}
		ports[svc.Port] = name
		svc.Name = name
		services[name] = svc
	}

	return &Catalog{services: services}, nil
}

// Lookup returns the service registered under name
func (c *Catalog) Lookup(name string) (Service, bool) {
	svc, ok := c.services[name]
	return svc, ok
}

// Names returns every channel name, sorted
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.services))
	for name := range c.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FilterKnown splits channels into those present in the catalog and those
// that are not, preserving order and dropping duplicates.
func (c *Catalog) FilterKnown(channels []string) (known, unknown []string) {
	seen := make(map[string]bool, len(channels))
	for _, ch := range channels {
		if seen[ch] {
			continue
		}
		seen[ch] = true
		if _, ok := c.services[ch]; ok {
			known = append(known, ch)
		} else {
			unknown = append(unknown, ch)
		}
	}
	return known, unknown
}

// Ports maps each catalogued channel in channels to its port
func (c *Catalog) Ports(channels []string) map[string]int {
	ports := make(map[string]int, len(channels))
	for _, ch := range channels {
		if svc, ok := c.services[ch]; ok {
			ports[ch] = svc.Port
		}
	}
	return ports
}
