// internal/audio/audio.go
//
// Procedural sound cues for the three phases.
// Responsibilities:
//   - Map each phase to its scale and drone chord.
//   - Render a named cue (click, match, rotate, align, victory, theme, wrong)
//     to a finite beep streamer and encode it as WAV.
//   - Cache rendered cues; the output is deterministic per (phase, cue, index).

package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/wav"
)

// Cue names understood by Render.
const (
	CueClick   = "click"
	CueMatch   = "match"
	CueRotate  = "rotate"
	CueAlign   = "align"
	CueVictory = "victory"
	CueTheme   = "theme"
	CueWrong   = "wrong"
)

// Cues lists every renderable cue.
var Cues = []string{CueClick, CueMatch, CueRotate, CueAlign, CueVictory, CueTheme, CueWrong}

// ErrUnknownCue is returned for cue names not in Cues.
var ErrUnknownCue = errors.New("unknown cue")

// Format is the output format of every rendered cue.
var Format = beep.Format{SampleRate: beep.SampleRate(22050), NumChannels: 1, Precision: 2}

var scales = map[int][]string{
	1: {"C4", "D4", "E4", "G4", "A4"},
	2: {"C4", "D4", "E4", "F4", "G4", "A4", "B4", "C5"},
	3: {"C3", "C#3", "D3", "D#3", "E3", "F3", "F#3", "G3"},
}

var drones = map[int][]string{
	1: {"C2"},
	2: {"C2", "G2"},
	3: {"C2", "E2", "G2", "B2"},
}

// Scale returns the note names for phase, defaulting to phase 1.
func Scale(phase int) []string {
	if s, ok := scales[phase]; ok {
		return s
	}
	return scales[1]
}

func drone(phase int) []string {
	if d, ok := drones[phase]; ok {
		return d
	}
	return drones[1]
}

var semitones = map[string]int{
	"C": 0, "C#": 1, "D": 2, "D#": 3, "E": 4, "F": 5,
	"F#": 6, "G": 7, "G#": 8, "A": 9, "A#": 10, "B": 11,
}

// Frequency converts scientific pitch notation ("A4", "C#3") to hertz,
// tuned to A4 = 440Hz.
func Frequency(note string) (float64, error) {
	i := strings.IndexAny(note, "0123456789-")
	if i <= 0 {
		return 0, fmt.Errorf("bad note %q", note)
	}
	semi, ok := semitones[note[:i]]
	if !ok {
		return 0, fmt.Errorf("bad note %q", note)
	}
	octave, err := strconv.Atoi(note[i:])
	if err != nil {
		return 0, fmt.Errorf("bad note %q: %w", note, err)
	}
	midi := 12*(octave+1) + semi
	return 440 * math.Pow(2, float64(midi-69)/12), nil
}

// Renderer turns cues into WAV bytes and remembers the results.
type Renderer struct {
	mu    sync.Mutex
	cache map[string][]byte
}

func NewRenderer() *Renderer {
	return &Renderer{cache: make(map[string][]byte)}
}

// Render returns the WAV encoding of cue for phase. index selects the note
// for click cues and is ignored otherwise.
func (r *Renderer) Render(phase int, cue string, index int) ([]byte, error) {
	if cue == CueClick {
		index = wrapIndex(index, len(Scale(phase)))
	} else {
		index = 0
	}
	key := fmt.Sprintf("%d/%s/%d", phase, cue, index)

	r.mu.Lock()
	if b, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return b, nil
	}
	r.mu.Unlock()

	s, err := Streamer(phase, cue, index)
	if err != nil {
		return nil, err
	}
	var buf writeSeeker
	if err := wav.Encode(&buf, s, Format); err != nil {
		return nil, fmt.Errorf("encode %s: %w", key, err)
	}

	r.mu.Lock()
	r.cache[key] = buf.buf
	r.mu.Unlock()
	return buf.buf, nil
}

// wrapIndex maps any index, negative ones included, into [0, n).
func wrapIndex(i, n int) int {
	return ((i % n) + n) % n
}

// Streamer builds the finite streamer for cue.
func Streamer(phase int, cue string, index int) (beep.Streamer, error) {
	scale := Scale(phase)
	at := func(i int) string { return scale[wrapIndex(i, len(scale))] }

	switch cue {
	case CueClick:
		return note(at(index), 300*time.Millisecond, 0.5)
	case CueRotate:
		return note(at(2), 200*time.Millisecond, 0.4)
	case CueMatch:
		return chord([]string{at(0), at(2), at(4)}, 450*time.Millisecond, 0.5)
	case CueAlign:
		return chord([]string{at(1), at(3), at(5)}, 600*time.Millisecond, 0.5)
	case CueWrong:
		// minor second against the root
		return chord([]string{at(0), at(1)}, 250*time.Millisecond, 0.4)
	case CueVictory:
		return arpeggio(scale, 150*time.Millisecond, 400*time.Millisecond, 0.5)
	case CueTheme:
		return chord(drone(phase), 1500*time.Millisecond, 0.35)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCue, cue)
}

func note(name string, d time.Duration, vol float64) (beep.Streamer, error) {
	freq, err := Frequency(name)
	if err != nil {
		return nil, err
	}
	sr := Format.SampleRate
	tone, err := generators.SineTone(sr, freq)
	if err != nil {
		return nil, fmt.Errorf("tone %s: %w", name, err)
	}
	shaped := newEnvelope(beep.Take(sr.N(d), tone), d, 10*time.Millisecond, d/2, sr)
	return withVolume(shaped, vol), nil
}

func chord(names []string, d time.Duration, vol float64) (beep.Streamer, error) {
	parts := make([]beep.Streamer, 0, len(names))
	for _, n := range names {
		s, err := note(n, d, vol/float64(len(names)))
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}
	return beep.Mix(parts...), nil
}

// arpeggio plays the notes in order, each starting step after the previous
// one and ringing for d.
func arpeggio(names []string, step, d time.Duration, vol float64) (beep.Streamer, error) {
	sr := Format.SampleRate
	parts := make([]beep.Streamer, 0, len(names))
	for i, n := range names {
		s, err := note(n, d, vol/2)
		if err != nil {
			return nil, err
		}
		parts = append(parts, beep.Seq(beep.Silence(sr.N(step*time.Duration(i))), s))
	}
	return beep.Mix(parts...), nil
}

// withVolume scales amplitude linearly; zero or less is silent.
func withVolume(s beep.Streamer, vol float64) beep.Streamer {
	if vol <= 0 {
		return &effects.Volume{Streamer: s, Base: 2, Volume: 0, Silent: true}
	}
	return &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(vol)}
}

// envelope applies a linear attack and release to a finite stream.
type envelope struct {
	streamer beep.Streamer
	pos      int
	attack   int
	release  int
	total    int
}

func newEnvelope(s beep.Streamer, d, attack, release time.Duration, sr beep.SampleRate) beep.Streamer {
	return &envelope{streamer: s, attack: sr.N(attack), release: sr.N(release), total: sr.N(d)}
}

func (e *envelope) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = e.streamer.Stream(samples)
	for i := 0; i < n; i++ {
		if e.pos >= e.total {
			return i, false
		}
		vol := 1.0
		if e.attack > 0 && e.pos < e.attack {
			vol = float64(e.pos) / float64(e.attack)
		}
		if remaining := e.total - e.pos; e.release > 0 && remaining < e.release {
			vol = math.Min(vol, float64(remaining)/float64(e.release))
		}
		samples[i][0] *= vol
		samples[i][1] *= vol
		e.pos++
	}
	return n, ok
}

func (e *envelope) Err() error { return e.streamer.Err() }

// writeSeeker is an in-memory io.WriteSeeker for wav.Encode, which seeks
// back to patch the header sizes.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	if end := w.pos + len(p); end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	n := copy(w.buf[w.pos:], p)
	w.pos += n
	return n, nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(w.pos) + offset
	case io.SeekEnd:
		next = int64(len(w.buf)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if next < 0 {
		return 0, errors.New("negative position")
	}
	w.pos = int(next)
	return next, nil
}
