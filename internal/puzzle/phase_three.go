package puzzle

import "math/rand"

// Orientations is the number of discrete fragment orientations.
const Orientations = 4

// orbitSpeeds is the fixed per-fragment orbit speed schedule.
var orbitSpeeds = []float64{0.25, 0.32, 0.36, 0.42, 0.46, 0.5}

// constellations are the star points drawn on each fragment.
var constellations = map[FaceKey][][2]float64{
	FaceFront:  {{-0.2, -0.3}, {0.1, -0.1}, {0.3, 0.15}},
	FaceBack:   {{-0.3, 0.2}, {-0.1, -0.2}, {0.2, -0.35}},
	FaceLeft:   {{-0.25, -0.05}, {-0.05, 0.25}, {0.15, -0.35}},
	FaceRight:  {{-0.15, 0.35}, {0.05, 0.1}, {0.25, -0.2}},
	FaceTop:    {{-0.3, 0.1}, {0, -0.1}, {0.3, 0.2}},
	FaceBottom: {{-0.3, -0.2}, {0.1, 0.05}, {0.3, 0.25}},
}

// Memories are whispered when a fragment is selected.
var Memories = []string{
	"I remember... warmth...",
	"We were... whole...",
	"The mathematics of joy...",
	"Dreaming in orbital patterns...",
	"Lonely... so lonely in the dark...",
	"Is anyone else out there?",
	"What am I? What are we?",
	"Time moved differently then...",
	"We built cathedrals of thought...",
	`The first word was "wonder"...`,
}

// Fragment is one orbiting shard of the cube.
type Fragment struct {
	Key         FaceKey      `json:"key"`
	OrbitRadius float64      `json:"orbitRadius"`
	OrbitSpeed  float64      `json:"orbitSpeed"`
	Orientation int          `json:"orientation"`
	Target      int          `json:"target"`
	Aligned     bool         `json:"aligned"`
	Pattern     [][2]float64 `json:"pattern"`
}

// PhaseThreeState is the Fragment Convergence model.
type PhaseThreeState struct {
	Fragments   []Fragment `json:"faces"`
	Selected    *FaceKey   `json:"selected"`
	Connections int        `json:"connections"`
}

// NewPhaseThree builds one fragment per face with a random orientation.
func NewPhaseThree(rng *rand.Rand) PhaseThreeState {
	frags := make([]Fragment, len(FaceKeys))
	for i, key := range FaceKeys {
		o := rng.Intn(Orientations)
		frags[i] = Fragment{
			Key:         key,
			OrbitRadius: 3.3 + float64(i)*0.2,
			OrbitSpeed:  orbitSpeeds[i],
			Orientation: o,
			Target:      0,
			Aligned:     o == 0,
			Pattern:     constellations[key],
		}
	}
	return PhaseThreeState{Fragments: frags, Connections: CountAligned(frags)}
}

// RotateOrientation turns the fragment with the given key by delta steps
// (any sign) and returns a fresh slice. Other fragments are carried over
// unchanged; the input slice is never written.
func RotateOrientation(frags []Fragment, key FaceKey, delta int) []Fragment {
	out := make([]Fragment, len(frags))
	copy(out, frags)
	for i := range out {
		if out[i].Key != key {
			continue
		}
		out[i].Orientation = wrap(out[i].Orientation+delta, Orientations)
		out[i].Aligned = out[i].Orientation == out[i].Target
	}
	return out
}

// CountAligned counts fragments at their target orientation.
func CountAligned(frags []Fragment) int {
	n := 0
	for _, f := range frags {
		if f.Aligned {
			n++
		}
	}
	return n
}

// Rotate applies RotateOrientation to the state. progressed is true when the
// number of aligned fragments grew.
func (s PhaseThreeState) Rotate(key FaceKey, delta int) (PhaseThreeState, bool) {
	frags := RotateOrientation(s.Fragments, key, delta)
	next := s
	next.Fragments = frags
	next.Connections = CountAligned(frags)
	return next, next.Connections > CountAligned(s.Fragments)
}

// Select marks a fragment as the active one.
func (s PhaseThreeState) Select(key FaceKey) PhaseThreeState {
	k := key
	next := s
	next.Selected = &k
	return next
}

// Won reports whether every fragment is aligned.
func (s PhaseThreeState) Won() bool {
	return len(s.Fragments) > 0 && CountAligned(s.Fragments) == len(s.Fragments)
}
