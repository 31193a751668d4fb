// Package memory builds the bounded conversational context a persona sees.
package memory

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ent0n29/agora/internal/debate"
)

// Unit is how the budget is measured.
type Unit string

const (
	UnitChars  Unit = "chars"
	UnitTokens Unit = "tokens"
)

const (
	DefaultBudget       = 6000
	DefaultTailTurns    = 6
	DefaultRefreshEvery = 4

	summaryLineRunes = 160
	minSummarySize   = 24
	ellipsis         = "…"
)

type Config struct {
	Budget       int
	TailTurns    int
	RefreshEvery int
	Unit         Unit
}

// Context is the compacted view of a session. Budget applies to History().
type Context struct {
	Header    string
	Summary   *debate.Turn
	Turns     []debate.Turn
	Truncated bool
	Size      int
}

// Lines returns the rendered history entries, summary first.
func (c Context) Lines() []string {
	lines := make([]string, 0, len(c.Turns)+1)
	if c.Summary != nil {
		lines = append(lines, renderTurn(*c.Summary))
	}
	for _, t := range c.Turns {
		lines = append(lines, renderTurn(t))
	}
	return lines
}

func (c Context) History() string {
	return strings.Join(c.Lines(), "\n")
}

// LastUserMessage returns the content of the newest user turn in the context.
func (c Context) LastUserMessage() string {
	for i := len(c.Turns) - 1; i >= 0; i-- {
		if c.Turns[i].Role == debate.RoleUser {
			return c.Turns[i].Content
		}
	}
	return ""
}

type Compactor struct {
	cfg     Config
	measure func(string) int
	now     func() time.Time
}

func NewCompactor(cfg Config) *Compactor {
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultBudget
	}
	if cfg.TailTurns <= 0 {
		cfg.TailTurns = DefaultTailTurns
	}
	if cfg.RefreshEvery <= 0 {
		cfg.RefreshEvery = DefaultRefreshEvery
	}
	if cfg.Unit == "" {
		cfg.Unit = UnitChars
	}
	c := &Compactor{cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
	switch cfg.Unit {
	case UnitTokens:
		c.measure = estimateTokens
	default:
		c.measure = utf8.RuneCountInString
	}
	return c
}

func (c *Compactor) Budget() int { return c.cfg.Budget }

// Measure returns the size of s in the configured unit.
func (c *Compactor) Measure(s string) int { return c.measure(s) }

// Compact builds the context for s and returns the memory summary state to persist.
// The returned summary is s.Memory when no regeneration was needed.
func (c *Compactor) Compact(s *debate.Session) (Context, *debate.MemorySummary) {
	header := renderHeader(s)
	turns := s.Turns
	k := c.cfg.TailTurns
	if k > len(turns) {
		k = len(turns)
	}
	head, tail := turns[:len(turns)-k], turns[len(turns)-k:]
	prev := s.Memory

	if c.fits(nil, turns) {
		return c.build(header, nil, turns, false), prev
	}

	if prev != nil && prev.Covered <= len(head) && len(head)-prev.Covered <= c.cfg.RefreshEvery {
		summary := summaryTurn(prev.Content, prev.UpdatedAt)
		visible := append(append([]debate.Turn(nil), head[prev.Covered:]...), tail...)
		if c.fits(&summary, visible) {
			return c.build(header, &summary, visible, false), prev
		}
	}

	next := prev
	if len(head) > 0 {
		room := c.cfg.Budget - c.measure(joinTurns(tail))
		if len(tail) > 0 {
			room -= c.measure("\n")
		}
		if content := c.summarize(head, room); content != "" {
			now := c.now()
			next = &debate.MemorySummary{Content: content, Covered: len(head), UpdatedAt: now}
			summary := summaryTurn(content, now)
			if c.fits(&summary, tail) {
				return c.build(header, &summary, tail, false), next
			}
		}
	}

	kept, truncated := c.truncateTail(tail)
	return c.build(header, nil, kept, truncated), next
}

func (c *Compactor) build(header string, summary *debate.Turn, turns []debate.Turn, truncated bool) Context {
	ctx := Context{
		Header:    header,
		Summary:   summary,
		Turns:     append([]debate.Turn(nil), turns...),
		Truncated: truncated,
	}
	ctx.Size = c.measure(ctx.History())
	return ctx
}

func (c *Compactor) fits(summary *debate.Turn, turns []debate.Turn) bool {
	ctx := Context{Summary: summary, Turns: turns}
	return c.measure(ctx.History()) <= c.cfg.Budget
}

// truncateTail drops the oldest tail entries until the rest fits. A single oversized
// turn keeps its most recent characters.
func (c *Compactor) truncateTail(tail []debate.Turn) ([]debate.Turn, bool) {
	kept := tail
	truncated := false
	for len(kept) > 1 && !c.fits(nil, kept) {
		kept = kept[1:]
		truncated = true
	}
	if len(kept) == 0 || c.fits(nil, kept) {
		return kept, truncated
	}

	last := kept[0].Clone()
	runes := []rune(last.Content)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		last.Content = ellipsis + string(runes[len(runes)-mid:])
		if c.measure(renderTurn(last)) <= c.cfg.Budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	last.Content = ellipsis + string(runes[len(runes)-lo:])
	if c.measure(renderTurn(last)) > c.cfg.Budget {
		return nil, true
	}
	return []debate.Turn{last}, true
}

// summarize condenses head into one line no larger than room, keeping the newest points
// when not all of them fit.
func (c *Compactor) summarize(head []debate.Turn, room int) string {
	if room < minSummarySize {
		return ""
	}
	const prefix = "Earlier in the debate: "
	points := make([]string, 0, len(head))
	for i := len(head) - 1; i >= 0; i-- {
		point := summaryPoint(head[i])
		if point == "" {
			continue
		}
		candidate := append([]string{point}, points...)
		if c.measure(renderTurn(summaryTurn(prefix+strings.Join(candidate, " | "), time.Time{}))) > room {
			break
		}
		points = candidate
	}
	if len(points) == 0 {
		return ""
	}
	if len(points) < countPoints(head) {
		return prefix + "(older points omitted) " + strings.Join(points, " | ")
	}
	return prefix + strings.Join(points, " | ")
}

func countPoints(head []debate.Turn) int {
	n := 0
	for _, t := range head {
		if summaryPoint(t) != "" {
			n++
		}
	}
	return n
}

func summaryPoint(t debate.Turn) string {
	text := firstSentence(t.Content)
	if text == "" {
		return ""
	}
	if utf8.RuneCountInString(text) > summaryLineRunes {
		text = string([]rune(text)[:summaryLineRunes]) + ellipsis
	}
	return speaker(t) + ": " + text
}

func firstSentence(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if i := strings.IndexAny(s, ".!?"); i >= 0 {
		return s[:i+1]
	}
	return s
}

func summaryTurn(content string, at time.Time) debate.Turn {
	return debate.Turn{
		Role:      debate.RoleSystem,
		Persona:   debate.PersonaMemory,
		Content:   content,
		Timestamp: at,
		Metadata:  map[string]string{debate.MetaPurpose: debate.PurposeSummary},
	}
}

func speaker(t debate.Turn) string {
	switch t.Role {
	case debate.RoleUser:
		return "user"
	case debate.RoleSystem:
		if t.Persona != "" {
			return string(t.Persona)
		}
		return "system"
	default:
		if t.Persona != "" {
			return string(t.Persona)
		}
		return "assistant"
	}
}

func renderTurn(t debate.Turn) string {
	return "[" + speaker(t) + "] " + t.Content
}

func joinTurns(turns []debate.Turn) string {
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = renderTurn(t)
	}
	return strings.Join(lines, "\n")
}

func renderHeader(s *debate.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", s.Topic)
	fmt.Fprintf(&b, "User position: %s\n", positionLabel(s.UserPosition))
	fmt.Fprintf(&b, "Assistant position: %s\n", positionLabel(s.AIPosition))
	fmt.Fprintf(&b, "Phase: %s (round %d)", s.Phase, s.CurrentRound)
	return b.String()
}

func positionLabel(p debate.Position) string {
	if p == debate.PositionUnset {
		return "unset"
	}
	return string(p)
}

func estimateTokens(s string) int {
	l := len(s)
	if l == 0 {
		return 0
	}
	return (l + 3) / 4
}
