package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/pagelab/internal/render"
)

//go:embed manifest.yaml
var defaultManifest []byte

// Manifest describes the page served by this process: its page config and
// the labels of its sidebar navigation.
type Manifest struct {
	Name   string            `json:"name" yaml:"name"`
	Page   render.PageConfig `json:"page" yaml:"page"`
	Logo   string            `json:"logo,omitempty" yaml:"logo"`
	Nav    Navigation        `json:"nav" yaml:"nav"`
	Footer string            `json:"footer,omitempty" yaml:"footer"`
}

// Navigation is the sidebar menu.
type Navigation struct {
	Header   string   `json:"header" yaml:"header"`
	Label    string   `json:"label" yaml:"label"`
	Sections []string `json:"sections" yaml:"sections"`
}

// DefaultManifest returns the embedded manifest.
func DefaultManifest() *Manifest {
	m, err := ParseManifest(defaultManifest)
	if err != nil {
		panic("config: embedded manifest is invalid: " + err.Error())
	}
	return m
}

// LoadManifest reads the manifest at path, or the embedded one if path is
// empty.
func LoadManifest(path string) (*Manifest, error) {
	if path == "" {
		return DefaultManifest(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// ParseManifest decodes and validates a YAML manifest. Unknown fields are
// rejected.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest for missing or conflicting fields.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("manifest name cannot be empty")
	}
	if m.Page.Title == "" {
		return fmt.Errorf("page title cannot be empty")
	}
	switch m.Page.Layout {
	case "", "centered", "wide":
	default:
		return fmt.Errorf("unknown layout %q", m.Page.Layout)
	}
	if len(m.Nav.Sections) == 0 {
		return fmt.Errorf("navigation needs at least one section")
	}
	for i, s := range m.Nav.Sections {
		if s == "" {
			return fmt.Errorf("navigation section %d is empty", i)
		}
		if slices.Index(m.Nav.Sections, s) != i {
			return fmt.Errorf("duplicate navigation section %q", s)
		}
	}
	return nil
}
