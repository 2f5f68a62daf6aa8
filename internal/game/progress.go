package game

// NudgeDelay is how many moves without progress (and since the last guide
// dismissal) pass before a contextual nudge is offered.
const NudgeDelay = 20

// Progress counts moves for the active phase and decides when hints and
// contextual nudges are due. It has no timers; callers feed it moves.
type Progress struct {
	Moves              int `json:"moves"`
	MovesSinceProgress int `json:"movesSinceProgress"`
	MovesSinceDismiss  int `json:"movesSinceDismiss"`

	// guiding is true while the controls guide is up; moves made then do not
	// count towards MovesSinceDismiss.
	guiding bool
}

// RecordMove counts one accepted move.
func (p *Progress) RecordMove() {
	p.Moves++
	p.MovesSinceProgress++
	if !p.guiding {
		p.MovesSinceDismiss++
	}
}

// RecordProgress marks that the last move moved the puzzle closer to a win.
func (p *Progress) RecordProgress() {
	p.MovesSinceProgress = 0
}

// Reset clears all counters, as on phase entry or manual reset.
func (p *Progress) Reset() {
	*p = Progress{}
}

// GuideOpened notes that the controls guide is showing.
func (p *Progress) GuideOpened() {
	p.guiding = true
	p.MovesSinceDismiss = 0
}

// GuideDismissed notes that the controls guide was closed.
func (p *Progress) GuideDismissed() {
	p.guiding = false
	p.MovesSinceDismiss = 0
}

// NudgeDismissed restarts the no-progress count so a dismissed nudge does
// not immediately reappear.
func (p *Progress) NudgeDismissed() {
	p.MovesSinceProgress = 0
}

// HintDue reports whether the phase hint with the given move threshold
// should be shown.
func (p *Progress) HintDue(threshold int, tutorialOpen bool) bool {
	if tutorialOpen || p.guiding || threshold <= 0 {
		return false
	}
	return p.MovesSinceDismiss >= NudgeDelay && p.Moves >= threshold
}

// NudgeDue reports whether a contextual nudge should open now.
func (p *Progress) NudgeDue(tutorialOpen bool) bool {
	if tutorialOpen || p.guiding {
		return false
	}
	return p.MovesSinceDismiss >= NudgeDelay && p.MovesSinceProgress >= NudgeDelay
}
