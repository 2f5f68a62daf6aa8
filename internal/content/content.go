// internal/content/content.go
//
// Narrative, hint and tutorial copy for the game.
//
// Responsibilities:
//   - Parse the embedded content.yaml once (sync.Once) into a Script.
//   - Offer lookups keyed by phase with safe empty defaults.
//
// The copy is data, not rules: win conditions and palettes live in puzzle.

package content

import (
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/robalobadob/tesseract/assets"
)

// Phase describes presentation metadata for one phase.
type Phase struct {
	ID            int    `yaml:"id" json:"id"`
	Name          string `yaml:"name" json:"name"`
	Subtitle      string `yaml:"subtitle" json:"subtitle"`
	Background    string `yaml:"background" json:"background"`
	ParticleColor string `yaml:"particleColor" json:"particleColor"`
	Particles     int    `yaml:"particles" json:"particles"`
}

// Card is the copy for a tutorial overlay.
type Card struct {
	Title        string   `yaml:"title" json:"title"`
	Subtitle     string   `yaml:"subtitle" json:"subtitle,omitempty"`
	Accent       string   `yaml:"accent" json:"accent,omitempty"`
	DismissLabel string   `yaml:"dismissLabel" json:"dismissLabel,omitempty"`
	Lines        []string `yaml:"lines" json:"lines"`
}

// Script is the full parsed content file.
type Script struct {
	Phases         []Phase                `yaml:"phases"`
	Opening        []string               `yaml:"opening"`
	Intro          map[int][]string       `yaml:"intro"`
	Milestones     map[int]map[int]string `yaml:"milestones"`
	Win            map[int][]string       `yaml:"win"`
	Connections    []string               `yaml:"connections"`
	Transition     map[int][]string       `yaml:"transition"`
	Hints          map[int]string         `yaml:"hints"`
	HintThresholds map[int]int            `yaml:"hintThresholds"`
	ContextHints   map[int]string         `yaml:"contextHints"`
	Controls       Card                   `yaml:"controls"`
	Briefings      map[int]Card           `yaml:"briefings"`
	WrongAnswer    string                 `yaml:"wrongAnswer"`
}

var (
	loadOnce sync.Once
	loaded   *Script
	loadErr  error
)

// Parse decodes a content document.
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing content: %w", err)
	}
	if len(s.Phases) == 0 {
		return nil, fmt.Errorf("parsing content: no phases defined")
	}
	return &s, nil
}

// Load parses the embedded content exactly once.
func Load() (*Script, error) {
	loadOnce.Do(func() {
		data, err := assets.Content()
		if err != nil {
			loadErr = fmt.Errorf("reading content: %w", err)
			return
		}
		loaded, loadErr = Parse(data)
	})
	return loaded, loadErr
}

// MustLoad is Load for callers that cannot proceed without content.
func MustLoad() *Script {
	s, err := Load()
	if err != nil {
		panic(err)
	}
	return s
}

// PhaseMeta returns the metadata for phase, or a bare record if unknown.
func (s *Script) PhaseMeta(phase int) Phase {
	for _, p := range s.Phases {
		if p.ID == phase {
			return p
		}
	}
	return Phase{ID: phase}
}

// Hint returns the phase hint and the move count at which it unlocks.
// ok is false when the phase has no hint.
func (s *Script) Hint(phase int) (text string, threshold int, ok bool) {
	text, ok = s.Hints[phase]
	threshold, hasThreshold := s.HintThresholds[phase]
	return text, threshold, ok && hasThreshold
}

// Milestone returns the narrative line for reaching moves in phase.
func (s *Script) Milestone(phase, moves int) (string, bool) {
	line, ok := s.Milestones[phase][moves]
	return line, ok
}

// Connection returns the line for the n-th aligned fragment (1-based).
func (s *Script) Connection(n int) (string, bool) {
	if n < 1 || n > len(s.Connections) {
		return "", false
	}
	return s.Connections[n-1], true
}
