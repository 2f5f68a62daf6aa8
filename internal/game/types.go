// internal/game/types.go
//
// Value types returned to callers of the session.
// Defines:
//   - PhaseStats: moves and time recorded when a phase is won.
//   - RiddleView: the public face of an open riddle gate (never the answer).
//   - Snapshot: everything the presentation layer needs to draw a frame.

package game

import (
	"errors"
	"time"

	"github.com/robalobadob/tesseract/internal/content"
	"github.com/robalobadob/tesseract/internal/riddle"
)

// FinalPhase is the last phase; winning it completes the game.
const FinalPhase = 3

var (
	// ErrIgnored is returned for input the current status does not accept,
	// such as a cell click during a transition. It is not a user error.
	ErrIgnored = errors.New("ignored")
	// ErrInvalidMove is returned for a face, index or direction that does
	// not exist in the active phase.
	ErrInvalidMove = errors.New("invalid move")
	// ErrNoRiddle is returned when no riddle gate is open.
	ErrNoRiddle = errors.New("no riddle gate open")
	// ErrHintLocked is returned when the riddle hint is not yet available.
	ErrHintLocked = errors.New("hint not available yet")
)

// HintAttempts is the number of wrong answers after which the riddle hint
// may be requested.
const HintAttempts = 2

// PhaseStats is recorded for a phase at the moment it is won.
type PhaseStats struct {
	Moves     int    `json:"moves"`
	ElapsedMs int64  `json:"elapsedMs"`
	Time      string `json:"time"`
}

func newPhaseStats(moves int, elapsed time.Duration) PhaseStats {
	return PhaseStats{Moves: moves, ElapsedMs: elapsed.Milliseconds(), Time: FormatClock(elapsed)}
}

// gate is the riddle checkpoint between two phases.
type gate struct {
	phase     int
	riddle    riddle.Riddle
	attempts  int
	hintShown bool
}

// RiddleView is an open gate as shown to the player.
type RiddleView struct {
	Phase         int    `json:"phase"`
	Text          string `json:"riddle"`
	Attempts      int    `json:"attempts"`
	HintAvailable bool   `json:"hintAvailable"`
	Hint          string `json:"hint,omitempty"`
}

// Snapshot is a consistent read of a session.
type Snapshot struct {
	ID                 string             `json:"id"`
	Mode               string             `json:"mode"`
	Phase              int                `json:"phase"`
	Meta               content.Phase      `json:"meta"`
	Status             Status             `json:"status"`
	State              any                `json:"state"`
	Moves              int                `json:"moves"`
	MovesSinceProgress int                `json:"movesSinceProgress"`
	ElapsedMs          int64              `json:"elapsedMs"`
	Hint               string             `json:"hint"`
	Stats              map[int]PhaseStats `json:"stats"`
	Tutorial           *Tutorial          `json:"tutorial,omitempty"`
	Riddle             *RiddleView        `json:"riddle,omitempty"`
	FragmentsAligned   int                `json:"fragmentsAligned"`
	Muted              bool               `json:"muted"`
}
