package game

// Status is the orchestration state of a session, independent of which
// phase is active.
type Status string

const (
	// StatusPlaying accepts cell interactions and rotations.
	StatusPlaying Status = "playing"
	// StatusRiddlePending follows a phase win while victory narration plays
	// and the gate riddle is fetched.
	StatusRiddlePending Status = "riddle_pending"
	// StatusRiddleOpen waits for a correct answer.
	StatusRiddleOpen Status = "riddle_open"
	// StatusTransitioning plays the scripted transition to the next phase.
	StatusTransitioning Status = "transitioning"
	// StatusComplete is terminal, reached after the final phase is won.
	StatusComplete Status = "complete"
)

var validTransitions = map[Status][]Status{
	StatusPlaying:       {StatusRiddlePending, StatusComplete},
	StatusRiddlePending: {StatusRiddleOpen},
	StatusRiddleOpen:    {StatusTransitioning},
	StatusTransitioning: {StatusPlaying},
	StatusComplete:      {},
}

// CanTransitionTo reports whether moving from s to target is allowed.
func (s Status) CanTransitionTo(target Status) bool {
	for _, st := range validTransitions[s] {
		if st == target {
			return true
		}
	}
	return false
}

// AcceptsMoves reports whether puzzle interaction is live in this status.
func (s Status) AcceptsMoves() bool { return s == StatusPlaying }
