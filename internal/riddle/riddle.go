// Package riddle provides the gate riddles that separate the phases:
// generation through a language model, per-phase fallbacks, and answer checks.
package riddle

import (
	"context"
	"strings"
)

// Riddle is a single gate question.
type Riddle struct {
	Text             string   `json:"riddle"`
	Answer           string   `json:"answer"`
	AlternateAnswers []string `json:"alternateAnswers,omitempty"`
	Hint             string   `json:"hint,omitempty"`
}

// Generator produces a fresh riddle for the phase about to be entered.
// recent holds the texts of recently asked riddles so they are not repeated.
type Generator interface {
	Generate(ctx context.Context, phase int, recent []string) (Riddle, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, phase int, recent []string) (Riddle, error)

func (f GeneratorFunc) Generate(ctx context.Context, phase int, recent []string) (Riddle, error) {
	return f(ctx, phase, recent)
}

var fallbacks = map[int]Riddle{
	1: {
		Text:   "I am the beginning and the end, the first and the last. In unity, all shades of me become one. What am I?",
		Answer: "light",
		Hint:   "Without me, color cannot exist",
	},
	2: {
		Text:   "We are two, yet one. Opposite in nature, complementary in spirit. When we meet, harmony blooms. What are we?",
		Answer: "pair",
		Hint:   "Think of the matching symbols",
	},
	3: {
		Text:   "Scattered across the void, I once told stories. Bring me together, and I shall shine again. What am I?",
		Answer: "constellation",
		Hint:   "Look to the stars",
	},
}

// Fallback returns the fixed riddle themed on phase. Unknown phases get the
// phase 1 riddle.
func Fallback(phase int) Riddle {
	if r, ok := fallbacks[phase]; ok {
		return r
	}
	return fallbacks[1]
}

// Normalize lowercases, trims and drops every rune outside [a-z0-9].
func Normalize(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Matches compares two answers after normalization.
func Matches(given, correct string) bool {
	return Normalize(given) == Normalize(correct)
}

// Validate reports whether given answers r, accepting any alternate answer.
// A single leading article ("the", "a", "an") in the submission is ignored,
// so "The light" answers "light".
func Validate(given string, r Riddle) bool {
	candidates := []string{given}
	if bare, ok := stripArticle(given); ok {
		candidates = append(candidates, bare)
	}
	for _, c := range candidates {
		if Matches(c, r.Answer) {
			return true
		}
		for _, alt := range r.AlternateAnswers {
			if Matches(c, alt) {
				return true
			}
		}
	}
	return false
}

func stripArticle(s string) (string, bool) {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return "", false
	}
	switch strings.ToLower(fields[0]) {
	case "the", "a", "an":
		return strings.Join(fields[1:], " "), true
	}
	return "", false
}
