package game

import (
	"time"

	"github.com/robalobadob/tesseract/internal/puzzle"
)

// EventKind identifies what happened in a session.
type EventKind string

const (
	EventCellInteracted      EventKind = "cell_interacted"
	EventFragmentRotated     EventKind = "fragment_rotated"
	EventFragmentSelected    EventKind = "fragment_selected"
	EventPhaseWon            EventKind = "phase_won"
	EventRiddleGateOpened    EventKind = "riddle_gate_opened"
	EventRiddleAttemptFailed EventKind = "riddle_attempt_failed"
	EventRiddleGateSolved    EventKind = "riddle_gate_solved"
	EventTransitionStarted   EventKind = "transition_started"
	EventTransitionCompleted EventKind = "transition_completed"
	EventGameCompleted       EventKind = "game_completed"
	EventNarrative           EventKind = "narrative"
	EventAudioCue            EventKind = "audio_cue"
	EventHint                EventKind = "hint"
	EventTutorialOpened      EventKind = "tutorial_opened"
	EventTutorialClosed      EventKind = "tutorial_closed"
	EventReset               EventKind = "reset"
)

// Audio cue names carried by EventAudioCue.
const (
	CueClick   = "click"
	CueMatch   = "match"
	CueRotate  = "rotate"
	CueAlign   = "align"
	CueVictory = "victory"
	CueTheme   = "theme"
	CueWrong   = "wrong"
)

// Narrative placement hints for the overlay.
const (
	PositionTop    = "top"
	PositionCenter = "center"
	PositionBottom = "bottom"
)

// Event is emitted to subscribers after each state change. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind       EventKind          `json:"kind"`
	Phase      int                `json:"phase"`
	ToPhase    int                `json:"toPhase,omitempty"`
	Face       puzzle.FaceKey     `json:"face,omitempty"`
	Index      int                `json:"index"`
	Direction  int                `json:"direction,omitempty"`
	Text       string             `json:"text,omitempty"`
	Lines      []string           `json:"lines,omitempty"`
	Position   string             `json:"position,omitempty"`
	GapMs      int64              `json:"gapMs,omitempty"`
	DurationMs int64              `json:"durationMs,omitempty"`
	Cue        string             `json:"cue,omitempty"`
	Tutorial   *Tutorial          `json:"tutorial,omitempty"`
	Stats      map[int]PhaseStats `json:"stats,omitempty"`
	At         time.Time          `json:"at"`
}

// Listener receives session events. Listeners run on the goroutine that
// caused the change, after the session lock is released; they must not
// block.
type Listener func(Event)

func narrative(phase int, lines []string, position string, gap, duration time.Duration) Event {
	return Event{
		Kind:       EventNarrative,
		Phase:      phase,
		Lines:      lines,
		Position:   position,
		GapMs:      gap.Milliseconds(),
		DurationMs: duration.Milliseconds(),
	}
}

func cue(phase int, name string) Event {
	return Event{Kind: EventAudioCue, Phase: phase, Cue: name}
}
