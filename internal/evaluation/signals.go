package evaluation

import (
	"regexp"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/ent0n29/agora/internal/debate"
)

const (
	// MinArgumentLength is the length below which an argument counts as underdeveloped.
	MinArgumentLength = 50
	// MaxArgumentLength is the length above which an argument counts as unfocused.
	MaxArgumentLength = 500
)

var evidenceMarkers = regexp.MustCompile(`(?i)\b(?:because|for example|for instance|such as|according to|studies|study|research|data|evidence|statistics|survey|report|percent)\b|\d+(?:\.\d+)?\s*%|\b\d{2,}\b`)

var concessionMarkers = regexp.MustCompile(`(?i)\b(?:you(?:'re| are) right|i agree with you|i change my mind|i concede|good point, i)\b`)

var wordPattern = regexp.MustCompile(`[a-z][a-z']{3,}`)

// argument is one user argument paired with the assistant argument it answered.
type argument struct {
	text     string
	previous string
}

func userArguments(s *debate.Session) []argument {
	var (
		out      []argument
		previous string
	)
	for _, t := range s.Turns {
		switch t.Role {
		case debate.RoleUser:
			class := debate.MessageClass(t.Metadata[debate.MetaClass])
			if class != "" && class != debate.ClassNormalArgument {
				continue
			}
			out = append(out, argument{text: strings.TrimSpace(t.Content), previous: previous})
		case debate.RoleAssistant:
			if t.Persona.IsDebater() {
				previous = t.Content
			}
		}
	}
	return out
}

// ComputeSignals derives deterministic statistics from a transcript.
func ComputeSignals(s *debate.Session) debate.Signals {
	args := userArguments(s)
	var sig debate.Signals
	sig.UserArguments = len(args)

	if len(args) > 0 {
		lengths := make([]float64, len(args))
		withEvidence := 0
		for i, a := range args {
			lengths[i] = float64(len([]rune(a.text)))
			if evidenceMarkers.MatchString(a.text) {
				withEvidence++
			}
		}
		if len(lengths) > 1 {
			sig.MeanLength, sig.LengthStdDev = stat.MeanStdDev(lengths, nil)
		} else {
			sig.MeanLength = lengths[0]
		}
		sig.EvidenceRate = float64(withEvidence) / float64(len(args))
	}

	var confidences []float64
	for _, t := range s.Turns {
		if t.Role == debate.RoleAssistant && t.Persona.IsDebater() && t.Confidence != nil {
			confidences = append(confidences, *t.Confidence)
		}
	}
	sig.AssistantArgTurns = len(confidences)
	if len(confidences) > 0 {
		sig.MeanAIConfidence = stat.Mean(confidences, nil)
	}
	return sig
}

func contentWords(text string) map[string]struct{} {
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
