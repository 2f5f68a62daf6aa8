package riddle

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// historySize is how many previous riddle texts are sent to the generator.
const historySize = 5

// Source hands out gate riddles for one game. It remembers what it has asked
// so the generator can avoid repeats, and it never fails: any generator error
// (or a nil generator) yields the fixed fallback for the phase.
type Source struct {
	gen Generator

	mu      sync.Mutex
	history []string
	cache   map[int]Riddle
}

// NewSource wraps gen. gen may be nil for offline play.
func NewSource(gen Generator) *Source {
	return &Source{gen: gen, cache: make(map[int]Riddle)}
}

// Request returns a riddle themed on phase.
func (s *Source) Request(ctx context.Context, phase int) Riddle {
	if s.gen == nil {
		return Fallback(phase)
	}

	r, err := s.gen.Generate(ctx, phase, s.Recent())
	if err != nil {
		log.Warn().Err(err).Int("phase", phase).Msg("riddle generation failed; using fallback")
		return Fallback(phase)
	}

	s.mu.Lock()
	s.history = append(s.history, r.Text)
	s.cache[phase] = r
	s.mu.Unlock()
	return r
}

// Recent returns up to the last five generated riddle texts, oldest first.
func (s *Source) Recent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := len(s.history) - historySize
	if start < 0 {
		start = 0
	}
	return append([]string(nil), s.history[start:]...)
}

// Cached returns the last generated riddle for phase, if any.
func (s *Source) Cached(phase int) (Riddle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.cache[phase]
	return r, ok
}
