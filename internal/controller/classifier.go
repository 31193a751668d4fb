package controller

import (
	"regexp"
	"strings"

	"github.com/ent0n29/agora/internal/debate"
)

var (
	defaultCoachingKeywords = []string{
		"coach", "give me a tip", "any tips", "a tip", "help me argue", "how should i argue",
		"how can i improve my argument", "what should i say", "suggest an argument",
		"what strategy", "which strategy", "my strategy should", "hint",
	}
	defaultFeedbackKeywords = []string{
		"feedback", "how am i doing", "how did i do", "evaluate me", "rate my",
		"score me", "grade my", "critique my", "assess my",
	}
	defaultTopicChangeKeywords = []string{
		"change the topic", "change topic", "new topic", "different topic",
		"switch topic", "switch the topic", "another topic", "talk about something else",
	}
)

// Keywords configures the classifier's phrase lists. Empty lists fall back to the defaults.
type Keywords struct {
	Coaching    []string
	Feedback    []string
	TopicChange []string
}

// Classifier maps user messages to a MessageClass by lowercase phrase matching.
// Phrases match on word boundaries, so "a tip" does not fire on "a tipping point".
type Classifier struct {
	coaching    *regexp.Regexp
	feedback    *regexp.Regexp
	topicChange *regexp.Regexp
}

func NewClassifier(kw Keywords) *Classifier {
	return &Classifier{
		coaching:    compileKeywords(normalizeKeywords(kw.Coaching, defaultCoachingKeywords)),
		feedback:    compileKeywords(normalizeKeywords(kw.Feedback, defaultFeedbackKeywords)),
		topicChange: compileKeywords(normalizeKeywords(kw.TopicChange, defaultTopicChangeKeywords)),
	}
}

// Classify is deterministic: coaching wins over feedback, feedback over topic change.
func (c *Classifier) Classify(message string) debate.MessageClass {
	in := strings.ToLower(strings.Join(strings.Fields(message), " "))
	if in == "" {
		return debate.ClassNormalArgument
	}
	if c.coaching.MatchString(in) {
		return debate.ClassCoachingRequest
	}
	if c.feedback.MatchString(in) {
		return debate.ClassFeedbackRequest
	}
	if c.topicChange.MatchString(in) {
		return debate.ClassTopicChangeRequest
	}
	return debate.ClassNormalArgument
}

func compileKeywords(keywords []string) *regexp.Regexp {
	quoted := make([]string, len(keywords))
	for i, kw := range keywords {
		quoted[i] = regexp.QuoteMeta(kw)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

func normalizeKeywords(in, fallback []string) []string {
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = strings.ToLower(strings.Join(strings.Fields(kw), " "))
		if kw != "" {
			out = append(out, kw)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}
