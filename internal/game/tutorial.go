package game

import (
	"strconv"

	"github.com/robalobadob/tesseract/internal/content"
)

// TutorialKind distinguishes the overlays the session can raise.
type TutorialKind string

const (
	TutorialControls TutorialKind = "controls"
	TutorialPhase    TutorialKind = "phase"
	TutorialContext  TutorialKind = "context"
)

// Tutorial is the overlay currently requested of the presentation layer.
type Tutorial struct {
	Kind  TutorialKind `json:"kind"`
	Phase int          `json:"phase,omitempty"`
	Card  content.Card `json:"card"`
}

func controlsTutorial(s *content.Script) *Tutorial {
	return &Tutorial{Kind: TutorialControls, Card: s.Controls}
}

func phaseTutorial(s *content.Script, phase int) *Tutorial {
	card := s.Briefings[phase]
	if card.Accent == "" {
		card.Accent = "Phase " + strconv.Itoa(phase) + " Briefing"
	}
	return &Tutorial{Kind: TutorialPhase, Phase: phase, Card: card}
}

func contextTutorial(s *content.Script, phase int) *Tutorial {
	return &Tutorial{
		Kind:  TutorialContext,
		Phase: phase,
		Card: content.Card{
			Title:        "Hint",
			Accent:       "Need a nudge?",
			DismissLabel: "Understood",
			Lines:        []string{s.ContextHints[phase]},
		},
	}
}
