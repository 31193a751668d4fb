// Package normalize turns raw model output into validated turns.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/agora/internal/debate"
)

// DefaultConfidence replaces any confidence that is missing or invalid.
const DefaultConfidence = 0.5

var ErrParse = debate.ErrParse

var (
	fencePattern         = regexp.MustCompile("(?s)^```[a-zA-Z0-9_-]*\\s*(.*?)\\s*```$")
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// Reply is a validated model reply.
type Reply struct {
	Content    string
	Confidence float64
	Reasoning  string
	Warnings   []string
	// Fields holds every top-level field of a JSON reply, including extras.
	Fields    map[string]any
	PlainText bool
}

// Turn converts the reply into an assistant turn.
func (r Reply) Turn(persona debate.Persona, purpose string, at time.Time) debate.Turn {
	conf := r.Confidence
	meta := map[string]string{debate.MetaPurpose: purpose}
	if len(r.Warnings) > 0 {
		meta[debate.MetaWarning] = strings.Join(r.Warnings, ",")
	}
	return debate.Turn{
		ID:         uuid.NewString(),
		Role:       debate.RoleAssistant,
		Persona:    persona,
		Content:    r.Content,
		Confidence: &conf,
		Reasoning:  r.Reasoning,
		Timestamp:  at,
		Metadata:   meta,
	}
}

// Normalizer validates and repairs raw replies.
type Normalizer struct {
	strict bool
}

// New returns a normalizer. In strict mode a reply without a JSON object is a parse error.
func New(strict bool) *Normalizer {
	return &Normalizer{strict: strict}
}

func (n *Normalizer) Normalize(raw string, schema *Schema) (Reply, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Reply{}, debate.Errorf(debate.KindParse, "empty reply")
	}

	doc, ok := extractObject(text)
	if !ok {
		if n.strict {
			return Reply{}, debate.Errorf(debate.KindParse, "reply is not a JSON object")
		}
		return Reply{
			Content:    text,
			Confidence: DefaultConfidence,
			Warnings:   []string{debate.WarningConfidenceDefaulted},
			PlainText:  true,
		}, nil
	}

	if schema != nil {
		problems, err := schema.validate(doc)
		if err != nil {
			return Reply{}, debate.Wrap(debate.KindParse, err, "validate reply")
		}
		if len(problems) > 0 {
			return Reply{}, debate.Errorf(debate.KindParse, "reply violates schema: %s", strings.Join(problems, "; "))
		}
	}

	var fields map[string]any
	if err := json.Unmarshal(doc, &fields); err != nil {
		return Reply{}, debate.Wrap(debate.KindParse, err, "decode reply")
	}

	content, _ := fields[FieldContent].(string)
	content = strings.TrimSpace(content)
	if content == "" {
		return Reply{}, debate.Errorf(debate.KindParse, "reply content is empty")
	}

	out := Reply{
		Content:   content,
		Reasoning: stringField(fields[FieldReasoning]),
		Fields:    fields,
	}
	conf, ok := ParseUnit(fields[FieldConfidence])
	if !ok {
		conf = DefaultConfidence
		out.Warnings = append(out.Warnings, debate.WarningConfidenceDefaulted)
	}
	out.Confidence = conf
	return out, nil
}

// extractObject finds the outermost JSON object in text, tolerating code fences,
// surrounding prose and trailing commas.
func extractObject(text string) ([]byte, bool) {
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil, false
	}
	candidate := text[start : end+1]
	if json.Valid([]byte(candidate)) {
		return []byte(candidate), true
	}
	fixed := trailingCommaPattern.ReplaceAllString(candidate, "$1")
	if json.Valid([]byte(fixed)) {
		return []byte(fixed), true
	}
	return nil, false
}

// ParseUnit reads a value in [0,1] from a JSON number, a numeric string, or a percentage.
func ParseUnit(v any) (float64, bool) {
	var f float64
	switch c := v.(type) {
	case float64:
		f = c
	case string:
		s := strings.TrimSpace(c)
		scale := 1.0
		if strings.HasSuffix(s, "%") {
			s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
			scale = 100
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed / scale
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > 1 {
		return 0, false
	}
	return f, true
}

func stringField(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	default:
		raw, err := json.Marshal(s)
		if err != nil {
			return fmt.Sprint(s)
		}
		return string(raw)
	}
}
