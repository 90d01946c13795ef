package presets

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/playmatatu/plinko/internal/plinko"
)

//go:embed presets.yaml
var embedded []byte

// ErrNotFound is returned for an unknown preset name.
var ErrNotFound = errors.New("preset not found")

// Preset is a named board.
type Preset struct {
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Rows        int       `yaml:"rows" json:"rows"`
	Multipliers []float64 `yaml:"multipliers" json:"multipliers"`
	// DisplayOverride replaces the multiplier reported on landing without
	// changing where the ball lands.
	DisplayOverride *float64 `yaml:"display_override,omitempty" json:"display_override,omitempty"`
}

// Config builds the simulation config for p.
func (p Preset) Config() plinko.Config {
	return plinko.Config{
		Rows:               p.Rows,
		Multipliers:        append([]float64(nil), p.Multipliers...),
		MultiplierOverride: p.DisplayOverride,
	}
}

type file struct {
	Version string   `yaml:"version"`
	Default string   `yaml:"default"`
	Presets []Preset `yaml:"presets"`
}

// Set is an immutable collection of validated presets.
type Set struct {
	def    string
	byName map[string]Preset
	order  []string
}

// Default returns the embedded presets.
func Default() (*Set, error) {
	return Parse(embedded)
}

// Load returns the embedded presets with the presets in path merged over
// them by name. An empty path or a missing file yields the embedded set.
func Load(path string) (*Set, error) {
	base, err := decode(embedded)
	if err != nil {
		return nil, fmt.Errorf("embedded presets: %w", err)
	}
	if path == "" {
		return build(base)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return build(base)
		}
		return nil, err
	}
	override, err := decode(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return build(merge(base, override))
}

// Parse builds a set from YAML alone.
func Parse(b []byte) (*Set, error) {
	f, err := decode(b)
	if err != nil {
		return nil, err
	}
	return build(f)
}

func decode(b []byte) (file, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return file{}, err
	}
	return f, nil
}

// merge lets b replace or extend the presets of a. A preset in b replaces
// the whole preset of the same name.
func merge(a, b file) file {
	out := file{Version: a.Version, Default: a.Default}
	if b.Version != "" {
		out.Version = b.Version
	}
	if b.Default != "" {
		out.Default = b.Default
	}

	index := make(map[string]int, len(a.Presets))
	out.Presets = append(out.Presets, a.Presets...)
	for i, p := range out.Presets {
		index[p.Name] = i
	}
	for _, p := range b.Presets {
		if i, ok := index[p.Name]; ok {
			out.Presets[i] = p
			continue
		}
		index[p.Name] = len(out.Presets)
		out.Presets = append(out.Presets, p)
	}
	return out
}

func build(f file) (*Set, error) {
	if len(f.Presets) == 0 {
		return nil, errors.New("no presets defined")
	}
	s := &Set{byName: make(map[string]Preset, len(f.Presets))}
	for _, p := range f.Presets {
		if p.Name == "" {
			return nil, errors.New("preset without a name")
		}
		if _, dup := s.byName[p.Name]; dup {
			return nil, fmt.Errorf("preset %q defined twice", p.Name)
		}
		if _, err := plinko.BuildBoard(p.Rows, p.Multipliers); err != nil {
			return nil, fmt.Errorf("preset %q: %w", p.Name, err)
		}
		if o := p.DisplayOverride; o != nil && *o < 0 {
			return nil, fmt.Errorf("preset %q: negative display override", p.Name)
		}
		s.byName[p.Name] = p
		s.order = append(s.order, p.Name)
	}

	s.def = f.Default
	if s.def == "" {
		s.def = s.order[0]
	}
	if _, ok := s.byName[s.def]; !ok {
		return nil, fmt.Errorf("default preset %q: %w", s.def, ErrNotFound)
	}
	return s, nil
}

// Get returns the named preset.
func (s *Set) Get(name string) (Preset, error) {
	p, ok := s.byName[name]
	if !ok {
		return Preset{}, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	p.Multipliers = append([]float64(nil), p.Multipliers...)
	return p, nil
}

// Default returns the default preset.
func (s *Set) Default() Preset {
	p, _ := s.Get(s.def)
	return p
}

// List returns every preset in file order.
func (s *Set) List() []Preset {
	out := make([]Preset, 0, len(s.order))
	for _, n := range s.order {
		p, _ := s.Get(n)
		out = append(out, p)
	}
	return out
}

// Names returns the preset names, sorted.
func (s *Set) Names() []string {
	out := append([]string(nil), s.order...)
	sort.Strings(out)
	return out
}
