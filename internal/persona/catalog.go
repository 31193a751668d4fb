// Package persona holds the persona catalog and per-persona reply behavior.
package persona

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ent0n29/agora/internal/debate"
)

//go:embed personas.yaml
var defaultCatalog []byte

// Profile describes how one persona speaks.
type Profile struct {
	ID           debate.Persona    `yaml:"id"`
	DisplayName  string            `yaml:"display_name"`
	Voice        string            `yaml:"voice"`
	Constraints  []string          `yaml:"constraints"`
	VerbosityCap int               `yaml:"verbosity_cap"`
	Temperature  float64           `yaml:"temperature"`
	Fallback     string            `yaml:"fallback"`
	Fields       map[string]string `yaml:"fields"`
}

// Catalog is the persona and phase configuration loaded from YAML.
type Catalog struct {
	Personas []Profile               `yaml:"personas"`
	Phases   map[debate.Phase]string `yaml:"phases"`
	Tasks    map[string]string       `yaml:"tasks"`
}

// LoadCatalog reads the catalog at path, or the embedded default when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if p := strings.TrimSpace(path); p != "" {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read persona catalog: %w", err)
		}
		data = raw
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse persona catalog: %w", err)
	}
	if err := cat.validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

func (c *Catalog) validate() error {
	seen := make(map[debate.Persona]bool, len(c.Personas))
	for _, p := range c.Personas {
		if !p.ID.Valid() {
			return fmt.Errorf("persona catalog: unknown persona %q", p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("persona catalog: duplicate persona %q", p.ID)
		}
		if strings.TrimSpace(p.Voice) == "" {
			return fmt.Errorf("persona catalog: persona %q has no voice", p.ID)
		}
		seen[p.ID] = true
	}
	for _, p := range debate.Personas() {
		if !seen[p] {
			return fmt.Errorf("persona catalog: missing persona %q", p)
		}
	}
	for _, ph := range []debate.Phase{debate.PhaseSetup, debate.PhaseOpening, debate.PhaseRebuttal, debate.PhaseClosing, debate.PhaseEvaluation} {
		if strings.TrimSpace(c.Phases[ph]) == "" {
			return fmt.Errorf("persona catalog: missing objective for phase %q", ph)
		}
	}
	return nil
}

func (c *Catalog) Profile(p debate.Persona) (Profile, bool) {
	for _, prof := range c.Personas {
		if prof.ID == p {
			return prof, true
		}
	}
	return Profile{}, false
}
