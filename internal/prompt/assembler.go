// Package prompt assembles model requests from persona, phase and compacted context.
package prompt

import (
	"fmt"
	"strings"

	"github.com/ent0n29/agora/internal/debate"
	"github.com/ent0n29/agora/internal/llm"
	"github.com/ent0n29/agora/internal/memory"
	"github.com/ent0n29/agora/internal/persona"
)

// Input describes one turn to generate.
type Input struct {
	SessionID string
	TurnID    string
	Persona   debate.Persona
	Purpose   string
	Phase     debate.Phase
	Context   memory.Context
	// Message is the user message being answered, empty for welcome and evaluation turns.
	Message string
}

type Options struct {
	MaxTokens          int
	DefaultTemperature float64
}

type Assembler struct {
	registry *persona.Registry
	opts     Options
}

func NewAssembler(registry *persona.Registry, opts Options) *Assembler {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1000
	}
	if opts.DefaultTemperature <= 0 {
		opts.DefaultTemperature = 0.7
	}
	return &Assembler{registry: registry, opts: opts}
}

func (a *Assembler) Build(in Input) (llm.Request, error) {
	b, err := a.registry.Lookup(in.Persona)
	if err != nil {
		return llm.Request{}, err
	}
	prof := b.Profile()
	temperature := prof.Temperature
	if temperature <= 0 {
		temperature = a.opts.DefaultTemperature
	}

	var sb strings.Builder
	sb.WriteString(in.Context.Header)
	sb.WriteString("\n\n")
	if history := in.Context.History(); history != "" {
		sb.WriteString("Conversation so far:\n")
		sb.WriteString(history)
		sb.WriteString("\n\n")
	} else {
		sb.WriteString("Conversation so far: none yet.\n\n")
	}
	if task := strings.TrimSpace(a.registry.Task(in.Purpose)); task != "" {
		fmt.Fprintf(&sb, "Task: %s\n", task)
	}
	if msg := strings.TrimSpace(in.Message); msg != "" {
		fmt.Fprintf(&sb, "Latest user message: %q\n", msg)
	}

	schema := b.Schema()
	return llm.Request{
		SessionID:   in.SessionID,
		TurnID:      in.TurnID,
		Persona:     string(in.Persona),
		Purpose:     in.Purpose,
		System:      b.Instruction(in.Phase),
		Prompt:      sb.String(),
		Message:     strings.TrimSpace(in.Message),
		Fields:      schema.Fields(),
		Schema:      schema.Raw(),
		Temperature: temperature,
		MaxTokens:   a.opts.MaxTokens,
	}, nil
}

// Topic builds the request used to generate a debate topic.
func (a *Assembler) Topic(category, difficulty string) llm.Request {
	var sb strings.Builder
	sb.WriteString("Generate one engaging debate topic for educational debate practice.\n")
	fmt.Fprintf(&sb, "Category: %s\nDifficulty: %s\n", category, difficulty)
	sb.WriteString("It must have clear positions for and against, be current and encourage critical thinking.\n")
	sb.WriteString("Phrase it as a statement to argue for or against, not a question. Reply with the statement only.")
	return llm.Request{
		Persona:     string(debate.PersonaModerator),
		Purpose:     llm.PurposeTopic,
		System:      "You create balanced, thought-provoking debate propositions.",
		Prompt:      sb.String(),
		Temperature: 0.9,
		MaxTokens:   120,
	}
}
