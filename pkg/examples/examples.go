package examples

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"path"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/description"
)

//go:embed appliances/*.yaml
var applianceFS embed.FS

// ErrUnknownExample is returned for a name with no bundled example.
var ErrUnknownExample = errors.New("unknown example appliance")

// Example is one bundled appliance.
type Example struct {
	Name        string         `yaml:"name"`
	Title       string         `yaml:"title"`
	PSK         string         `yaml:"psk"`
	Services    map[string]int `yaml:"services"`
	Description map[string]any `yaml:"description"`
}

var (
	loadOnce sync.Once
	catalog  map[string]*Example
	loadErr  error
)

func load() (map[string]*Example, error) {
	loadOnce.Do(func() {
		catalog, loadErr = readCatalog(applianceFS)
	})
	return catalog, loadErr
}

func readCatalog(fsys fs.FS) (map[string]*Example, error) {
	files, err := fs.Glob(fsys, "appliances/*.yaml")
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Example, len(files))
	for _, file := range files {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, err
		}
		var ex Example
		if err := yaml.Unmarshal(data, &ex); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		if ex.Name == "" {
			ex.Name = strings.TrimSuffix(path.Base(file), ".yaml")
		}
		if _, dup := out[ex.Name]; dup {
			return nil, fmt.Errorf("%s: duplicate example %q", file, ex.Name)
		}
		out[ex.Name] = &ex
	}
	return out, nil
}

// Names returns the bundled example names in sorted order.
func Names() []string {
	c, err := load()
	if err != nil {
		return nil
	}
	return slices.Sorted(maps.Keys(c))
}

// Get returns the example called name.
func Get(name string) (*Example, error) {
	c, err := load()
	if err != nil {
		return nil, err
	}
	ex, ok := c[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownExample, name, strings.Join(Names(), ", "))
	}
	return ex, nil
}

// Load returns the example called name as a loadable bundle. A non-empty
// psk replaces the example's own key.
func Load(name, psk string) (*description.Bundle, error) {
	ex, err := Get(name)
	if err != nil {
		return nil, err
	}
	return ex.Bundle(psk)
}

// Bundle validates the description and returns it with the example's key
// and service versions.
func (e *Example) Bundle(psk string) (*description.Bundle, error) {
	// The description schema is JSON Schema, so validate the JSON form.
	data, err := json.Marshal(e.Description)
	if err != nil {
		return nil, fmt.Errorf("example %s: %w", e.Name, err)
	}
	desc, err := description.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("example %s: %w", e.Name, err)
	}
	if psk == "" {
		psk = e.PSK
	}
	return &description.Bundle{
		Description: desc,
		PSK:         psk,
		Services:    maps.Clone(e.Services),
	}, nil
}
