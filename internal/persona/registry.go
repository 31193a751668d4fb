package persona

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ent0n29/agora/internal/debate"
	"github.com/ent0n29/agora/internal/normalize"
)

// Behavior is the single dispatch point for persona-specific capabilities.
type Behavior interface {
	Persona() debate.Persona
	Profile() Profile
	// Instruction builds the system instruction for a turn in phase.
	Instruction(phase debate.Phase) string
	Schema() *normalize.Schema
	// ParseReply validates raw model output against this persona's schema.
	ParseReply(raw string) (normalize.Reply, error)
}

type profileBehavior struct {
	profile    Profile
	schema     *normalize.Schema
	normalizer *normalize.Normalizer
	objectives map[debate.Phase]string
}

func (b *profileBehavior) Persona() debate.Persona   { return b.profile.ID }
func (b *profileBehavior) Profile() Profile          { return b.profile }
func (b *profileBehavior) Schema() *normalize.Schema { return b.schema }

func (b *profileBehavior) Instruction(phase debate.Phase) string {
	p := b.profile
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are the %s in a structured educational debate. %s\n", p.DisplayName, strings.TrimSpace(p.Voice))
	if obj := strings.TrimSpace(b.objectives[phase]); obj != "" {
		fmt.Fprintf(&sb, "Current phase: %s. Objective: %s\n", phase, obj)
	}
	if len(p.Constraints) > 0 {
		sb.WriteString("Rules:\n")
		for _, c := range p.Constraints {
			fmt.Fprintf(&sb, "- %s\n", strings.TrimSpace(c))
		}
	}
	if p.VerbosityCap > 0 {
		fmt.Fprintf(&sb, "Keep the content under %d words.\n", p.VerbosityCap)
	}
	sb.WriteString("Reply with exactly one JSON object and nothing else, with these fields:\n")
	sb.WriteString("- content: string, the reply shown to the user\n")
	sb.WriteString("- confidence: number between 0 and 1, how strongly you stand by the reply\n")
	sb.WriteString("- reasoning: string, one or two sentences on why you replied this way\n")
	for _, name := range b.schema.Fields()[3:] {
		fmt.Fprintf(&sb, "- %s: %s\n", name, fieldHint(p.Fields[name]))
	}
	return sb.String()
}

func (b *profileBehavior) ParseReply(raw string) (normalize.Reply, error) {
	return b.normalizer.Normalize(raw, b.schema)
}

func fieldHint(def string) string {
	var parsed struct {
		Type        any    `json:"type"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal([]byte(def), &parsed); err != nil {
		return "see schema"
	}
	hint := fmt.Sprint(parsed.Type)
	if parsed.Description != "" {
		hint += ", " + parsed.Description
	}
	return hint
}

// Registry resolves personas to behaviors. It always covers the whole closed set.
type Registry struct {
	catalog   *Catalog
	behaviors map[debate.Persona]Behavior
}

func NewRegistry(cat *Catalog, n *normalize.Normalizer) (*Registry, error) {
	if cat == nil {
		return nil, fmt.Errorf("persona registry: catalog is required")
	}
	if n == nil {
		n = normalize.New(false)
	}
	r := &Registry{catalog: cat, behaviors: make(map[debate.Persona]Behavior, len(cat.Personas))}
	for _, p := range cat.Personas {
		extra := make(map[string]json.RawMessage, len(p.Fields))
		names := make([]string, 0, len(p.Fields))
		for name := range p.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			extra[name] = json.RawMessage(p.Fields[name])
		}
		schema, err := normalize.BuildSchema(extra)
		if err != nil {
			return nil, fmt.Errorf("persona %s: %w", p.ID, err)
		}
		r.behaviors[p.ID] = &profileBehavior{
			profile:    p,
			schema:     schema,
			normalizer: n,
			objectives: cat.Phases,
		}
	}
	return r, nil
}

func (r *Registry) Lookup(p debate.Persona) (Behavior, error) {
	b, ok := r.behaviors[p]
	if !ok {
		return nil, debate.Errorf(debate.KindValidation, "unknown persona %q", p)
	}
	return b, nil
}

// Objective returns the catalog objective for phase.
func (r *Registry) Objective(phase debate.Phase) string {
	return r.catalog.Phases[phase]
}

// Task returns the catalog task text for a turn purpose.
func (r *Registry) Task(purpose string) string {
	return r.catalog.Tasks[purpose]
}

// Fallbacks returns the stock reply of every persona that defines one.
func (r *Registry) Fallbacks() map[string]string {
	out := make(map[string]string, len(r.catalog.Personas))
	for _, p := range r.catalog.Personas {
		if strings.TrimSpace(p.Fallback) != "" {
			out[string(p.ID)] = p.Fallback
		}
	}
	return out
}
