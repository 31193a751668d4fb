package evaluation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ent0n29/agora/internal/debate"
)

// Neutral is the score assigned when a dimension cannot be assessed.
const Neutral = 0.5

func lengthScore(n float64) float64 {
	switch {
	case n < MinArgumentLength:
		return Neutral * n / MinArgumentLength
	case n <= MaxArgumentLength:
		return Neutral + Neutral*(n-MinArgumentLength)/(MaxArgumentLength-MinArgumentLength)
	default:
		// Past the cap, long arguments lose focus.
		return clamp(1 - (n-MaxArgumentLength)/(4*MaxArgumentLength))
	}
}

func rebuttalScore(a argument) (float64, bool) {
	if a.previous == "" {
		return 0, false
	}
	theirs := contentWords(a.previous)
	if len(theirs) == 0 {
		return 0, false
	}
	shared := 0
	for w := range contentWords(a.text) {
		if _, ok := theirs[w]; ok {
			shared++
		}
	}
	return clamp(float64(shared) / 5), true
}

// rubricScores scores each dimension from transcript statistics alone.
func rubricScores(s *debate.Session, sig debate.Signals) map[debate.Dimension]float64 {
	scores := neutralScores()
	args := userArguments(s)
	if len(args) == 0 {
		return scores
	}

	lengths := make([]float64, len(args))
	strength := make([]float64, len(args))
	var rebuttals []float64
	concessions := 0
	for i, a := range args {
		lengths[i] = float64(len([]rune(a.text)))
		strength[i] = lengthScore(lengths[i])
		if r, ok := rebuttalScore(a); ok {
			rebuttals = append(rebuttals, r)
		}
		if concessionMarkers.MatchString(a.text) {
			concessions++
		}
	}

	scores[debate.DimensionArgumentStrength] = clamp(0.8*stat.Mean(strength, nil) + 0.2*sig.EvidenceRate)
	if len(rebuttals) > 0 {
		scores[debate.DimensionRebuttalQuality] = clamp(stat.Mean(rebuttals, nil))
	}
	consistency := Neutral
	if len(args) > 1 && sig.MeanLength > 0 {
		consistency = 1 - sig.LengthStdDev/sig.MeanLength
	}
	scores[debate.DimensionConsistency] = clamp(consistency - 0.15*float64(concessions))
	scores[debate.DimensionEvidenceUse] = clamp(sig.EvidenceRate)
	return scores
}

func rubricSummary(sig debate.Signals, scores map[debate.Dimension]float64) string {
	if sig.UserArguments == 0 {
		return "Not enough arguments were made to assess this debate."
	}
	total := 0.0
	for _, d := range debate.Dimensions() {
		total += scores[d]
	}
	overall := total / float64(len(debate.Dimensions()))
	band := "developing"
	switch {
	case overall >= 0.75:
		band = "strong"
	case overall >= 0.5:
		band = "solid"
	}
	return fmt.Sprintf("A %s performance across %d argument(s), overall score %.2f.", band, sig.UserArguments, overall)
}

// rubricAdvice derives strengths and suggestions from signals and scores.
func rubricAdvice(sig debate.Signals, scores map[debate.Dimension]float64) (strengths, suggestions []string) {
	if sig.UserArguments == 0 {
		return nil, []string{"Make at least a few arguments before ending the debate."}
	}
	if sig.EvidenceRate >= 0.5 {
		strengths = append(strengths, "Backed claims with examples or data.")
	} else {
		suggestions = append(suggestions, "Support claims with concrete examples, data, or sources.")
	}
	switch {
	case sig.MeanLength < MinArgumentLength:
		suggestions = append(suggestions, "Develop each argument further; a claim needs a reason behind it.")
	case sig.MeanLength > MaxArgumentLength:
		suggestions = append(suggestions, "Tighten arguments and lead with the strongest point.")
	default:
		strengths = append(strengths, "Kept arguments well developed and focused.")
	}
	if scores[debate.DimensionRebuttalQuality] >= 0.6 {
		strengths = append(strengths, "Engaged directly with the opponent's points.")
	} else {
		suggestions = append(suggestions, "Answer the opponent's last point before adding new ones.")
	}
	if scores[debate.DimensionConsistency] < 0.4 {
		suggestions = append(suggestions, "Keep a steady line of argument across rounds.")
	}
	return strengths, suggestions
}

func neutralScores() map[debate.Dimension]float64 {
	scores := make(map[debate.Dimension]float64, len(debate.Dimensions()))
	for _, d := range debate.Dimensions() {
		scores[d] = Neutral
	}
	return scores
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return Neutral
	}
	return math.Max(0, math.Min(1, v))
}
