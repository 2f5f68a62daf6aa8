package game

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/tesseract/internal/content"
	"github.com/robalobadob/tesseract/internal/puzzle"
	"github.com/robalobadob/tesseract/internal/riddle"
)

// fakeClock fires timers only when Advance is called.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward and runs every timer that became due, in
// deadline order. Callbacks run without the clock lock held.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	for {
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.at.After(c.now) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			break
		}
		sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
		t := due[0]
		t.fired = true
		c.mu.Unlock()
		t.f()
		c.mu.Lock()
	}
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) last(kind EventKind) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return Event{}, false
}

var errRejected = errors.New("service rejected the request")

func rejectingSource() *riddle.Source {
	return riddle.NewSource(riddle.GeneratorFunc(func(context.Context, int, []string) (riddle.Riddle, error) {
		return riddle.Riddle{}, errRejected
	}))
}

func newTestSession(t *testing.T) (*Session, *fakeClock, *recorder) {
	t.Helper()
	clock := newFakeClock()
	s := New("test", Options{
		Rand:    rand.New(rand.NewSource(7)),
		Clock:   clock,
		Riddles: rejectingSource(),
	})
	rec := &recorder{}
	s.Subscribe(rec.listen)
	t.Cleanup(s.Close)
	return s, clock, rec
}

func solvePhaseOne(t *testing.T, s *Session) {
	t.Helper()
	for _, face := range puzzle.FaceKeys {
		for i := 1; i < puzzle.PhaseOneCells; i++ {
			for {
				st := s.Snapshot().State.(puzzle.PhaseOneState)
				if st.Faces[face][i] == st.Faces[face][0] {
					break
				}
				require.NoError(t, s.Interact(face, i))
			}
		}
	}
}

func solvePhaseTwo(t *testing.T, s *Session) {
	t.Helper()
	for _, face := range puzzle.FaceKeys {
		target := puzzle.PhaseTwoTargets[face]
		for i := range target {
			for {
				st := s.Snapshot().State.(puzzle.PhaseTwoState)
				if st.Faces[face][i] == target[i] {
					break
				}
				require.NoError(t, s.Interact(face, i))
			}
		}
	}
}

func solvePhaseThree(t *testing.T, s *Session) {
	t.Helper()
	st := s.Snapshot().State.(puzzle.PhaseThreeState)
	for _, f := range st.Fragments {
		if delta := f.Target - f.Orientation; delta != 0 {
			require.NoError(t, s.Rotate(f.Key, delta))
		}
	}
}

func waitForStatus(t *testing.T, s *Session, want Status) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Status() == want }, time.Second, 5*time.Millisecond)
}

// passGate drives a won phase through the riddle gate into the next phase.
func passGate(t *testing.T, s *Session, clock *fakeClock, answer string) {
	t.Helper()
	clock.Advance(3 * time.Second)
	waitForStatus(t, s, StatusRiddleOpen)
	ok, _, err := s.SubmitRiddleAnswer(answer)
	require.NoError(t, err)
	require.True(t, ok)
	clock.Advance(500 * time.Millisecond)
	clock.Advance(7 * time.Second)
	require.Equal(t, StatusPlaying, s.Status())
}

func TestNewSessionStartsInPhaseOne(t *testing.T) {
	s, _, rec := newTestSession(t)
	s.Start()

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Phase)
	assert.Equal(t, StatusPlaying, snap.Status)
	assert.Equal(t, "normal", snap.Mode)
	assert.Equal(t, "Awakening", snap.Meta.Name)
	assert.IsType(t, puzzle.PhaseOneState{}, snap.State)
	assert.Equal(t, 2, rec.count(EventNarrative))
}

func TestPhaseOneWinFiresOnce(t *testing.T) {
	s, _, rec := newTestSession(t)
	solvePhaseOne(t, s)

	assert.Equal(t, 1, rec.count(EventPhaseWon))
	assert.Equal(t, StatusRiddlePending, s.Status())

	// the board is frozen until the gate is passed
	assert.ErrorIs(t, s.Interact(puzzle.FaceFront, 0), ErrIgnored)
	assert.ErrorIs(t, s.Reset(), ErrIgnored)
	assert.Equal(t, 1, rec.count(EventPhaseWon))

	stats := s.Snapshot().Stats
	require.Contains(t, stats, 1)
	assert.Positive(t, stats[1].Moves)
}

func TestRiddleGateFallsBackAndAdvances(t *testing.T) {
	s, clock, rec := newTestSession(t)
	solvePhaseOne(t, s)

	clock.Advance(2 * time.Second)
	assert.Equal(t, StatusRiddlePending, s.Status())
	clock.Advance(time.Second)
	waitForStatus(t, s, StatusRiddleOpen)

	opened, ok := rec.last(EventRiddleGateOpened)
	require.True(t, ok)
	assert.Equal(t, riddle.Fallback(1).Text, opened.Text)
	assert.Equal(t, 2, opened.ToPhase)

	view := s.Snapshot().Riddle
	require.NotNil(t, view)
	assert.False(t, view.HintAvailable)

	_, err := s.RiddleHint()
	assert.ErrorIs(t, err, ErrHintLocked)

	correct, msg, err := s.SubmitRiddleAnswer("darkness")
	require.NoError(t, err)
	assert.False(t, correct)
	assert.Equal(t, content.MustLoad().WrongAnswer, msg)

	correct, _, err = s.SubmitRiddleAnswer("   ")
	require.NoError(t, err)
	assert.False(t, correct)
	assert.Equal(t, 1, s.Snapshot().Riddle.Attempts)

	_, _, _ = s.SubmitRiddleAnswer("shadow")
	hint, err := s.RiddleHint()
	require.NoError(t, err)
	assert.Equal(t, riddle.Fallback(1).Hint, hint)
	assert.Equal(t, hint, s.Snapshot().Riddle.Hint)

	correct, _, err = s.SubmitRiddleAnswer("  The LIGHT!! ")
	require.NoError(t, err)
	require.True(t, correct)
	assert.Equal(t, StatusTransitioning, s.Status())

	// moves during the transition change nothing and cannot win again
	before := s.Snapshot()
	assert.ErrorIs(t, s.Interact(puzzle.FaceFront, 0), ErrIgnored)
	assert.ErrorIs(t, s.Interact(puzzle.FaceTop, 3), ErrIgnored)
	after := s.Snapshot()
	assert.Equal(t, before.Moves, after.Moves)
	assert.Equal(t, before.State, after.State)
	assert.Equal(t, 1, rec.count(EventPhaseWon))

	_, _, err = s.SubmitRiddleAnswer("light")
	assert.ErrorIs(t, err, ErrNoRiddle)

	clock.Advance(500 * time.Millisecond)
	started, ok := rec.last(EventTransitionStarted)
	require.True(t, ok)
	assert.Equal(t, 2, started.ToPhase)
	assert.NotEmpty(t, started.Lines)

	clock.Advance(7 * time.Second)
	snap := s.Snapshot()
	assert.Equal(t, 2, snap.Phase)
	assert.Equal(t, StatusPlaying, snap.Status)
	assert.Equal(t, 0, snap.Moves)
	assert.Nil(t, snap.Riddle)
	assert.IsType(t, puzzle.PhaseTwoState{}, snap.State)
	assert.Equal(t, 1, rec.count(EventTransitionCompleted))

	clock.Advance(2400 * time.Millisecond)
	require.NotNil(t, s.Snapshot().Tutorial)
	assert.Equal(t, TutorialPhase, s.Snapshot().Tutorial.Kind)
	assert.Equal(t, 2, s.Snapshot().Tutorial.Phase)
}

func TestCloseDropsPendingTimers(t *testing.T) {
	s, clock, rec := newTestSession(t)
	solvePhaseOne(t, s)
	s.Close()

	clock.Advance(10 * time.Second)
	assert.Equal(t, StatusRiddlePending, s.Status())
	assert.Zero(t, rec.count(EventRiddleGateOpened))
	assert.ErrorIs(t, s.Interact(puzzle.FaceFront, 0), ErrIgnored)
}

func TestFullRunCompletes(t *testing.T) {
	s, clock, rec := newTestSession(t)

	solvePhaseOne(t, s)
	passGate(t, s, clock, "light")
	require.Equal(t, 2, s.Phase())

	solvePhaseTwo(t, s)
	assert.Equal(t, StatusRiddlePending, s.Status())
	passGate(t, s, clock, "pair")
	require.Equal(t, 3, s.Phase())

	assert.ErrorIs(t, s.Interact(puzzle.FaceFront, 0), ErrInvalidMove)
	solvePhaseThree(t, s)

	snap := s.Snapshot()
	assert.Equal(t, StatusComplete, snap.Status)
	assert.Equal(t, len(puzzle.FaceKeys), snap.FragmentsAligned)
	assert.Equal(t, 3, rec.count(EventPhaseWon))

	done, ok := rec.last(EventGameCompleted)
	require.True(t, ok)
	assert.Len(t, done.Stats, 3)

	assert.ErrorIs(t, s.Rotate(puzzle.FaceFront, 1), ErrIgnored)

	s.mu.Lock()
	assert.Empty(t, s.timers)
	s.mu.Unlock()
}

func TestFiredTimersAreReleased(t *testing.T) {
	s, clock, _ := newTestSession(t)
	for i := 0; i < 5; i++ {
		s.OpenControls()
		s.DismissTutorial()
		clock.Advance(time.Second)
		s.DismissTutorial()
	}
	s.mu.Lock()
	assert.Empty(t, s.timers)
	s.mu.Unlock()

	solvePhaseOne(t, s)
	s.mu.Lock()
	assert.Len(t, s.timers, 1)
	s.mu.Unlock()
}

func TestSameSeedSameBoards(t *testing.T) {
	newDaily := func() (*Session, *fakeClock) {
		clock := newFakeClock()
		s := New("daily", Options{Mode: "daily", Seed: 42, Clock: clock, Riddles: rejectingSource()})
		t.Cleanup(s.Close)
		return s, clock
	}
	a, clockA := newDaily()
	b, clockB := newDaily()
	assert.Equal(t, a.Snapshot().State, b.Snapshot().State)

	solvePhaseOne(t, a)
	passGate(t, a, clockA, "light")
	solvePhaseOne(t, b)
	passGate(t, b, clockB, "light")
	assert.Equal(t, a.Snapshot().State, b.Snapshot().State)

	// b wanders: three full symbol cycles, flavour lines and a reset
	for i := 0; i < 27; i++ {
		require.NoError(t, b.Interact(puzzle.FaceFront, 0))
	}
	require.NoError(t, b.Reset())
	require.NoError(t, a.Reset())
	assert.Equal(t, a.Snapshot().State, b.Snapshot().State)

	solvePhaseTwo(t, a)
	passGate(t, a, clockA, "pair")
	solvePhaseTwo(t, b)
	passGate(t, b, clockB, "pair")
	assert.Equal(t, a.Snapshot().State, b.Snapshot().State)
}

func TestInvalidMoves(t *testing.T) {
	s, _, _ := newTestSession(t)

	assert.ErrorIs(t, s.Interact("middle", 0), ErrInvalidMove)
	assert.ErrorIs(t, s.Interact(puzzle.FaceFront, puzzle.PhaseOneCells), ErrInvalidMove)
	assert.ErrorIs(t, s.Interact(puzzle.FaceFront, -1), ErrInvalidMove)
	assert.ErrorIs(t, s.Rotate(puzzle.FaceFront, 1), ErrInvalidMove)
	assert.ErrorIs(t, s.Select(puzzle.FaceFront), ErrInvalidMove)
	assert.Zero(t, s.Snapshot().Moves)
}

func TestResetRegeneratesPhase(t *testing.T) {
	s, _, rec := newTestSession(t)
	require.NoError(t, s.Interact(puzzle.FaceTop, 2))
	require.NoError(t, s.Interact(puzzle.FaceTop, 2))
	require.Equal(t, 2, s.Snapshot().Moves)

	require.NoError(t, s.Reset())
	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Phase)
	assert.Zero(t, snap.Moves)
	assert.Equal(t, 1, rec.count(EventReset))
}

func TestControlsGuideQueuesBriefing(t *testing.T) {
	s, clock, rec := newTestSession(t)

	s.OpenControls()
	require.NotNil(t, s.Snapshot().Tutorial)
	assert.Equal(t, TutorialControls, s.Snapshot().Tutorial.Kind)

	s.DismissTutorial()
	assert.Nil(t, s.Snapshot().Tutorial)
	clock.Advance(400 * time.Millisecond)

	tut := s.Snapshot().Tutorial
	require.NotNil(t, tut)
	assert.Equal(t, TutorialPhase, tut.Kind)
	assert.Equal(t, "Phase 1 Briefing", tut.Card.Accent)

	s.DismissTutorial()
	assert.Equal(t, 2, rec.count(EventTutorialClosed))

	// briefing already seen; dismissing the guide again queues nothing
	s.OpenControls()
	s.DismissTutorial()
	clock.Advance(time.Second)
	assert.Nil(t, s.Snapshot().Tutorial)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s, _, _ := newTestSession(t)
	var n int
	unsubscribe := s.Subscribe(func(Event) { n++ })

	require.NoError(t, s.Interact(puzzle.FaceFront, 0))
	seen := n
	assert.Positive(t, seen)

	unsubscribe()
	require.NoError(t, s.Interact(puzzle.FaceFront, 0))
	assert.Equal(t, seen, n)
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPlaying.CanTransitionTo(StatusRiddlePending))
	assert.True(t, StatusPlaying.CanTransitionTo(StatusComplete))
	assert.True(t, StatusRiddleOpen.CanTransitionTo(StatusTransitioning))
	assert.False(t, StatusRiddlePending.CanTransitionTo(StatusPlaying))
	assert.False(t, StatusTransitioning.CanTransitionTo(StatusRiddleOpen))
	assert.False(t, StatusComplete.CanTransitionTo(StatusPlaying))

	assert.True(t, StatusPlaying.AcceptsMoves())
	for _, st := range []Status{StatusRiddlePending, StatusRiddleOpen, StatusTransitioning, StatusComplete} {
		assert.False(t, st.AcceptsMoves(), st)
	}
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "00:00", FormatClock(0))
	assert.Equal(t, "01:05", FormatClock(65*time.Second))
	assert.Equal(t, "12:00", FormatClock(12*time.Minute+400*time.Millisecond))
	assert.Equal(t, "00:00", FormatClock(-time.Second))
}
