// internal/game/engine.go
//
// Phase state machine and transition orchestrator for a single game.
// Responsibilities:
//   - Hold the active phase model and route clicks/rotations to it.
//   - Detect wins, record per-phase stats and run the riddle gate.
//   - Play the scripted transition and initialise the next phase.
//   - Feed the progress tracker and raise hints and tutorials.
//
// Notes:
//   - Every mutation happens under one mutex; events raised during a
//     mutation are delivered to listeners after the lock is released.
//   - Timers and riddle results carry the generation they were scheduled in;
//     anything from an older generation is dropped, so a win can advance the
//     phase at most once.
//   - Randomness and time are injected for deterministic tests.
package game

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/tesseract/internal/content"
	"github.com/robalobadob/tesseract/internal/puzzle"
	"github.com/robalobadob/tesseract/internal/riddle"
)

// Timing holds the scripted delays of the orchestrator.
type Timing struct {
	FirstVictoryDelay  time.Duration // phase 1 win until the riddle is requested
	VictoryDelay       time.Duration // later wins until the riddle is requested
	SolveDelay         time.Duration // correct answer until the transition starts
	TransitionDuration time.Duration // length of the transition script
	BriefingDelay      time.Duration // phase entry until its briefing opens
	GuideFollowUp      time.Duration // controls dismissed until the briefing opens
	RiddleTimeout      time.Duration // bound on one riddle request
}

// DefaultTiming returns the delays the browser client is built around.
func DefaultTiming() Timing {
	return Timing{
		FirstVictoryDelay:  3000 * time.Millisecond,
		VictoryDelay:       2800 * time.Millisecond,
		SolveDelay:         500 * time.Millisecond,
		TransitionDuration: 7 * time.Second,
		BriefingDelay:      2400 * time.Millisecond,
		GuideFollowUp:      400 * time.Millisecond,
		RiddleTimeout:      10 * time.Second,
	}
}

// Options configures a Session. Zero values get defaults.
type Options struct {
	Mode string
	// Seed fixes every board of the run. Zero picks one from the clock.
	Seed int64
	// Rand drives flavour text only (reaction and memory lines).
	Rand    *rand.Rand
	Clock   Clock
	Riddles *riddle.Source
	Script  *content.Script
	Timing  *Timing
}

type subscriber struct {
	id int
	fn Listener
}

// Session is one player's run through the three phases.
type Session struct {
	ID   string
	Mode string
	Seed int64

	mu      sync.Mutex
	rng     *rand.Rand
	clock   Clock
	riddles *riddle.Source
	script  *content.Script
	timing  Timing

	phase    int
	status   Status
	one      puzzle.PhaseOneState
	two      puzzle.PhaseTwoState
	three    puzzle.PhaseThreeState
	progress Progress
	hint     string
	started  time.Time
	stats    map[int]PhaseStats

	muted        bool
	tutorial     *Tutorial
	briefingSeen map[int]bool
	connections  int // highest aligned-fragment count already narrated
	gate         *gate

	resets int // boards regenerated in the current phase

	gen       uint64
	timers    map[int]Timer
	nextTimer int
	cancel    context.CancelFunc
	closed    bool
	pending   []Event
	subs      []subscriber
	nextSub   int
}

// New creates a session positioned at the start of phase 1.
func New(id string, opts Options) *Session {
	s := &Session{
		ID:           id,
		Mode:         opts.Mode,
		Seed:         opts.Seed,
		rng:          opts.Rand,
		clock:        opts.Clock,
		riddles:      opts.Riddles,
		script:       opts.Script,
		timing:       DefaultTiming(),
		phase:        1,
		status:       StatusPlaying,
		stats:        make(map[int]PhaseStats),
		briefingSeen: make(map[int]bool),
		timers:       make(map[int]Timer),
	}
	if s.Mode == "" {
		s.Mode = "normal"
	}
	if opts.Timing != nil {
		s.timing = *opts.Timing
	}
	if s.clock == nil {
		s.clock = SystemClock()
	}
	if s.Seed == 0 {
		s.Seed = s.clock.Now().UnixNano()
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(s.Seed))
	}
	if s.riddles == nil {
		s.riddles = riddle.NewSource(nil)
	}
	if s.script == nil {
		s.script = content.MustLoad()
	}
	s.enterPhase(1)
	return s
}

// Subscribe registers l for all future events and returns a function that
// removes it.
func (s *Session) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscriber{id: id, fn: l})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Start plays the opening narration. Call it once listeners are attached.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.unlock()
	s.emit(narrative(s.phase, s.script.Opening, PositionCenter, 2800*time.Millisecond, 6*time.Second))
	s.emit(narrative(s.phase, s.script.Intro[1], PositionTop, 0, 6*time.Second))
}

// Close stops pending timers and any riddle request. Later input is ignored.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.gen++
	s.stopTimers()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Interact cycles one cell of the active Phase 1 or Phase 2 face.
func (s *Session) Interact(face puzzle.FaceKey, index int) error {
	s.mu.Lock()
	defer s.unlock()
	if s.closed || !s.status.AcceptsMoves() {
		return ErrIgnored
	}
	if _, ok := puzzle.ParseFace(string(face)); !ok {
		return ErrInvalidMove
	}

	var progressed bool
	switch s.phase {
	case 1:
		if index < 0 || index >= puzzle.PhaseOneCells {
			return ErrInvalidMove
		}
		s.progress.RecordMove()
		s.one, progressed = s.one.Cycle(face, index)
		if line, ok := s.script.Milestone(1, s.progress.Moves); ok {
			s.emit(narrative(1, []string{line}, PositionTop, 0, 6*time.Second))
		}
	case 2:
		if index < 0 || index >= puzzle.PhaseTwoGrid*puzzle.PhaseTwoGrid {
			return ErrInvalidMove
		}
		s.progress.RecordMove()
		s.two, progressed = s.two.Cycle(face, index)
		if n := len(s.two.Adjacency); progressed && n > 0 {
			line := puzzle.ReactionLine(s.two.Adjacency[n-1].Pair, s.rng)
			s.emit(narrative(2, []string{line}, PositionCenter, 0, 3*time.Second))
			s.emit(cue(2, CueMatch))
		}
	default:
		return ErrInvalidMove
	}

	s.emit(Event{Kind: EventCellInteracted, Phase: s.phase, Face: face, Index: index})
	s.emit(cue(s.phase, CueClick))
	s.afterMove(progressed)
	return nil
}

// Rotate turns a Phase 3 fragment by direction steps (negative is
// counter-clockwise).
func (s *Session) Rotate(face puzzle.FaceKey, direction int) error {
	s.mu.Lock()
	defer s.unlock()
	if s.closed || !s.status.AcceptsMoves() {
		return ErrIgnored
	}
	if s.phase != 3 || direction == 0 {
		return ErrInvalidMove
	}
	if _, ok := puzzle.ParseFace(string(face)); !ok {
		return ErrInvalidMove
	}

	s.progress.RecordMove()
	var progressed bool
	s.three, progressed = s.three.Rotate(face, direction)

	s.emit(Event{Kind: EventFragmentRotated, Phase: 3, Face: face, Direction: direction})
	s.emit(cue(3, CueRotate))
	if aligned := puzzle.CountAligned(s.three.Fragments); aligned > s.connections {
		if line, ok := s.script.Connection(aligned); ok {
			s.emit(narrative(3, []string{line}, PositionCenter, 0, 3*time.Second))
			s.connections = aligned
		}
	}
	if progressed {
		s.emit(cue(3, CueAlign))
	}
	s.afterMove(progressed)
	return nil
}

// Select marks a Phase 3 fragment as active and whispers a memory.
func (s *Session) Select(face puzzle.FaceKey) error {
	s.mu.Lock()
	defer s.unlock()
	if s.closed || !s.status.AcceptsMoves() {
		return ErrIgnored
	}
	if s.phase != 3 {
		return ErrInvalidMove
	}
	if _, ok := puzzle.ParseFace(string(face)); !ok {
		return ErrInvalidMove
	}
	s.three = s.three.Select(face)
	memory := puzzle.Memories[s.rng.Intn(len(puzzle.Memories))]
	s.emit(Event{Kind: EventFragmentSelected, Phase: 3, Face: face})
	s.emit(narrative(3, []string{memory}, PositionTop, 0, 3200*time.Millisecond))
	return nil
}

// afterMove updates progress, then either completes the phase or refreshes
// the hint and nudge.
func (s *Session) afterMove(progressed bool) {
	if progressed {
		s.progress.RecordProgress()
		if s.tutorial != nil && s.tutorial.Kind == TutorialContext {
			s.closeTutorial()
		}
	}
	if s.won() {
		s.completePhase()
		return
	}

	hint := ""
	if text, threshold, ok := s.script.Hint(s.phase); ok && s.progress.HintDue(threshold, s.tutorial != nil) {
		hint = text
	}
	if hint != s.hint {
		s.hint = hint
		if hint != "" {
			s.emit(Event{Kind: EventHint, Phase: s.phase, Text: hint})
		}
	}

	if s.progress.NudgeDue(s.tutorial != nil) && s.script.ContextHints[s.phase] != "" {
		s.openTutorial(contextTutorial(s.script, s.phase))
	}
}

func (s *Session) won() bool {
	switch s.phase {
	case 1:
		return s.one.Won()
	case 2:
		return s.two.Won()
	case 3:
		return s.three.Won()
	}
	return false
}

// completePhase records stats for the won phase and either finishes the game
// or opens the riddle gate after the victory narration.
func (s *Session) completePhase() {
	phase := s.phase
	s.stats[phase] = newPhaseStats(s.progress.Moves, s.clock.Now().Sub(s.started))
	s.hint = ""

	s.emit(Event{Kind: EventPhaseWon, Phase: phase})
	s.emit(cue(phase, CueVictory))

	if phase >= FinalPhase {
		s.emit(narrative(phase, s.script.Win[phase], PositionCenter, 3200*time.Millisecond, 6*time.Second))
		if s.setStatus(StatusComplete) {
			s.emit(Event{Kind: EventGameCompleted, Phase: phase, Stats: s.statsCopy()})
		}
		return
	}

	gap, delay := 2400*time.Millisecond, s.timing.VictoryDelay
	if phase == 1 {
		gap, delay = 2600*time.Millisecond, s.timing.FirstVictoryDelay
	}
	s.emit(narrative(phase, s.script.Win[phase], PositionCenter, gap, 6*time.Second))
	if !s.setStatus(StatusRiddlePending) {
		return
	}
	// Themed on the phase just won, not the next one: light after 1, pair after 2.
	s.after(delay, func() { s.requestRiddle(phase) })
}

// requestRiddle fetches the gate riddle themed on the phase just won. The
// fetch runs off the lock; its result is dropped if the session moved on.
func (s *Session) requestRiddle(phase int) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timing.RiddleTimeout)
	s.cancel = cancel
	gen := s.gen
	src := s.riddles

	go func() {
		r := src.Request(ctx, phase)
		cancel()

		s.mu.Lock()
		defer s.unlock()
		if s.closed || s.gen != gen {
			return
		}
		s.cancel = nil
		s.gate = &gate{phase: phase, riddle: r}
		if s.setStatus(StatusRiddleOpen) {
			s.emit(Event{Kind: EventRiddleGateOpened, Phase: phase, ToPhase: phase + 1, Text: r.Text})
		}
	}()
}

// SubmitRiddleAnswer checks text against the open gate. A wrong answer keeps
// the gate open and returns the retry message; there is no attempt limit.
func (s *Session) SubmitRiddleAnswer(text string) (correct bool, message string, err error) {
	s.mu.Lock()
	defer s.unlock()
	if s.closed || s.status != StatusRiddleOpen || s.gate == nil {
		return false, "", ErrNoRiddle
	}
	if strings.TrimSpace(text) == "" {
		return false, "", nil
	}

	g := s.gate
	if !riddle.Validate(text, g.riddle) {
		g.attempts++
		s.emit(Event{Kind: EventRiddleAttemptFailed, Phase: g.phase, Text: s.script.WrongAnswer})
		s.emit(cue(g.phase, CueWrong))
		return false, s.script.WrongAnswer, nil
	}

	s.gate = nil
	s.emit(Event{Kind: EventRiddleGateSolved, Phase: g.phase, ToPhase: g.phase + 1})
	if s.setStatus(StatusTransitioning) {
		s.after(s.timing.SolveDelay, s.startTransition)
	}
	return true, "", nil
}

// RiddleHint reveals the gate hint once enough wrong answers were given.
func (s *Session) RiddleHint() (string, error) {
	s.mu.Lock()
	defer s.unlock()
	if s.status != StatusRiddleOpen || s.gate == nil {
		return "", ErrNoRiddle
	}
	if s.gate.attempts < HintAttempts || s.gate.riddle.Hint == "" {
		return "", ErrHintLocked
	}
	s.gate.hintShown = true
	return s.gate.riddle.Hint, nil
}

func (s *Session) startTransition() {
	s.emit(Event{
		Kind:    EventTransitionStarted,
		Phase:   s.phase,
		ToPhase: s.phase + 1,
		Lines:   s.script.Transition[s.phase],
	})
	s.after(s.timing.TransitionDuration, s.finishTransition)
}

func (s *Session) finishTransition() {
	from := s.phase
	if !s.setStatus(StatusPlaying) {
		return
	}
	s.enterPhase(from + 1)
	if s.tutorial != nil && s.tutorial.Kind == TutorialContext {
		s.closeTutorial()
	}

	s.emit(Event{Kind: EventTransitionCompleted, Phase: from, ToPhase: s.phase})
	s.emit(narrative(s.phase, s.script.Intro[s.phase], PositionCenter, 2400*time.Millisecond, 6*time.Second))
	s.emit(cue(s.phase, CueTheme))

	if !s.briefingSeen[s.phase] {
		phase := s.phase
		s.after(s.timing.BriefingDelay, func() { s.openTutorial(phaseTutorial(s.script, phase)) })
	}
}

// enterPhase installs a fresh model for phase and clears per-phase counters.
func (s *Session) enterPhase(phase int) {
	if phase != s.phase {
		s.resets = 0
	}
	s.phase = phase
	board := s.boardRand(phase, s.resets)
	switch phase {
	case 1:
		s.one = puzzle.NewPhaseOne(board)
	case 2:
		s.two = puzzle.NewPhaseTwo(board)
	case 3:
		s.three = puzzle.NewPhaseThree(board)
	}
	s.progress.Reset()
	s.hint = ""
	s.connections = 0
	s.started = s.clock.Now()
}

// boardRand returns the generator for the attempt-th board of phase. It
// depends on Seed alone, so sessions sharing a seed share every board no
// matter how they played.
func (s *Session) boardRand(phase, attempt int) *rand.Rand {
	return rand.New(rand.NewSource(s.Seed + int64(phase)<<32 + int64(attempt)))
}

// Reset regenerates the current phase. Only allowed while playing.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.unlock()
	if s.closed || !s.status.AcceptsMoves() {
		return ErrIgnored
	}
	guiding := s.progress.guiding
	s.resets++
	s.enterPhase(s.phase)
	s.progress.guiding = guiding
	if s.tutorial != nil && s.tutorial.Kind == TutorialContext {
		s.closeTutorial()
	}
	s.emit(Event{Kind: EventReset, Phase: s.phase})
	return nil
}

// OpenControls raises the controls guide on demand.
func (s *Session) OpenControls() {
	s.mu.Lock()
	defer s.unlock()
	if s.closed {
		return
	}
	s.progress.GuideOpened()
	s.openTutorial(controlsTutorial(s.script))
}

// DismissTutorial closes whatever tutorial is showing. Dismissing the
// controls guide queues the phase briefing if it has not been seen.
func (s *Session) DismissTutorial() {
	s.mu.Lock()
	defer s.unlock()
	if s.closed || s.tutorial == nil {
		return
	}
	t := s.tutorial
	s.closeTutorial()

	switch t.Kind {
	case TutorialControls:
		s.progress.GuideDismissed()
		if !s.briefingSeen[s.phase] {
			phase := s.phase
			s.after(s.timing.GuideFollowUp, func() {
				if s.phase == phase && s.tutorial == nil {
					s.openTutorial(phaseTutorial(s.script, phase))
				}
			})
		}
	case TutorialPhase:
		s.briefingSeen[t.Phase] = true
	case TutorialContext:
		s.progress.NudgeDismissed()
	}
}

func (s *Session) openTutorial(t *Tutorial) {
	s.tutorial = t
	s.emit(Event{Kind: EventTutorialOpened, Phase: s.phase, Tutorial: t})
	if s.hint != "" {
		s.hint = ""
	}
}

func (s *Session) closeTutorial() {
	t := s.tutorial
	s.tutorial = nil
	s.emit(Event{Kind: EventTutorialClosed, Phase: s.phase, Tutorial: t})
}

// ToggleMute flips the presentation-only mute flag and returns the new value.
func (s *Session) ToggleMute() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = !s.muted
	return s.muted
}

// Phase returns the active phase number.
func (s *Session) Phase() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Status returns the orchestration status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Snapshot returns a consistent copy of the session's public state. Phase
// models are copy-on-write, so the returned state is never mutated later.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:                 s.ID,
		Mode:               s.Mode,
		Phase:              s.phase,
		Meta:               s.script.PhaseMeta(s.phase),
		Status:             s.status,
		Moves:              s.progress.Moves,
		MovesSinceProgress: s.progress.MovesSinceProgress,
		Hint:               s.hint,
		Stats:              s.statsCopy(),
		Tutorial:           s.tutorial,
		Muted:              s.muted,
	}
	switch s.phase {
	case 1:
		snap.State = s.one
	case 2:
		snap.State = s.two
	case 3:
		snap.State = s.three
		snap.FragmentsAligned = puzzle.CountAligned(s.three.Fragments)
	}
	if st, ok := s.stats[s.phase]; ok && !s.status.AcceptsMoves() {
		snap.ElapsedMs = st.ElapsedMs
	} else {
		snap.ElapsedMs = s.clock.Now().Sub(s.started).Milliseconds()
	}
	if g := s.gate; g != nil {
		view := &RiddleView{
			Phase:         g.phase,
			Text:          g.riddle.Text,
			Attempts:      g.attempts,
			HintAvailable: g.attempts >= HintAttempts && g.riddle.Hint != "",
		}
		if g.hintShown {
			view.Hint = g.riddle.Hint
		}
		snap.Riddle = view
	}
	return snap
}

func (s *Session) statsCopy() map[int]PhaseStats {
	out := make(map[int]PhaseStats, len(s.stats))
	for k, v := range s.stats {
		out[k] = v
	}
	return out
}

// setStatus moves the state machine and invalidates everything scheduled
// under the previous status.
func (s *Session) setStatus(target Status) bool {
	if !s.status.CanTransitionTo(target) {
		log.Error().Str("session", s.ID).Str("from", string(s.status)).Str("to", string(target)).
			Msg("illegal status transition")
		return false
	}
	s.status = target
	s.gen++
	s.stopTimers()
	return true
}

// after runs f under the session lock once d has passed, unless the status
// changed or the session closed in the meantime.
func (s *Session) after(d time.Duration, f func()) {
	gen := s.gen
	id := s.nextTimer
	s.nextTimer++
	s.timers[id] = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		defer s.unlock()
		delete(s.timers, id)
		if s.closed || s.gen != gen {
			return
		}
		f()
	})
}

// stopTimers cancels every scheduled callback. Each status change makes the
// outstanding ones stale.
func (s *Session) stopTimers() {
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Session) emit(e Event) {
	if e.At.IsZero() {
		e.At = s.clock.Now()
	}
	s.pending = append(s.pending, e)
}

// unlock releases the mutex and then delivers the events queued while it
// was held.
func (s *Session) unlock() {
	events := s.pending
	s.pending = nil
	subs := append([]subscriber(nil), s.subs...)
	s.mu.Unlock()

	for _, e := range events {
		for _, sub := range subs {
			sub.fn(e)
		}
	}
}
