package puzzle

import "math/rand"

// PhaseOneCells is the number of quadrants per face in Phase 1.
const PhaseOneCells = 4

// PhaseOneState is the Color Unity grid: four quadrants on each face.
type PhaseOneState struct {
	Faces map[FaceKey][]Color `json:"faces"`
}

// NewPhaseOne fills every quadrant with a uniformly random palette color.
func NewPhaseOne(rng *rand.Rand) PhaseOneState {
	faces := make(map[FaceKey][]Color, len(FaceKeys))
	for _, f := range FaceKeys {
		cells := make([]Color, PhaseOneCells)
		for i := range cells {
			cells[i] = pick(rng, Palette)
		}
		faces[f] = cells
	}
	return PhaseOneState{Faces: faces}
}

// CycleColor returns the color after current in palette order.
// Unknown colors restart the cycle at the first palette entry.
func CycleColor(current Color) Color {
	for i, c := range Palette {
		if c == current {
			return Palette[(i+1)%len(Palette)]
		}
	}
	return Palette[0]
}

// IsFaceAligned reports whether every cell holds the same color.
// An empty face is never aligned.
func IsFaceAligned(_ FaceKey, cells []Color) bool {
	if len(cells) == 0 {
		return false
	}
	for _, c := range cells[1:] {
		if c != cells[0] {
			return false
		}
	}
	return true
}

// Cycle advances one quadrant and returns the new state plus whether that
// face became aligned by this move. The receiver is not modified; only the
// touched face is copied.
func (s PhaseOneState) Cycle(face FaceKey, index int) (PhaseOneState, bool) {
	prev := s.Faces[face]
	next := make([]Color, len(prev))
	copy(next, prev)
	next[index] = CycleColor(next[index])

	faces := make(map[FaceKey][]Color, len(s.Faces))
	for k, v := range s.Faces {
		faces[k] = v
	}
	faces[face] = next

	progressed := !IsFaceAligned(face, prev) && IsFaceAligned(face, next)
	return PhaseOneState{Faces: faces}, progressed
}

// AlignedFaces counts the uniform faces.
func (s PhaseOneState) AlignedFaces() int {
	n := 0
	for _, f := range FaceKeys {
		if IsFaceAligned(f, s.Faces[f]) {
			n++
		}
	}
	return n
}

// Won reports whether every face is uniform in some color. Faces do not need
// a particular target color.
func (s PhaseOneState) Won() bool {
	return s.AlignedFaces() == len(FaceKeys)
}
