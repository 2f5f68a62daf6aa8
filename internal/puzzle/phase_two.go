package puzzle

import (
	"math/rand"
	"sort"
)

// PhaseTwoGrid is the width of a Phase 2 face; faces hold GridSize*GridSize cells.
const PhaseTwoGrid = 3

// PhaseTwoTargets is the exact pattern each face must reach.
var PhaseTwoTargets = map[FaceKey][]Symbol{
	FaceFront: {
		SymbolTree, SymbolWater, SymbolTree,
		SymbolWater, SymbolTree, SymbolWater,
		SymbolTree, SymbolWater, SymbolTree,
	},
	FaceRight: {
		SymbolFire, SymbolWind, SymbolFire,
		SymbolWind, SymbolFire, SymbolWind,
		SymbolFire, SymbolWind, SymbolFire,
	},
	FaceLeft: {
		SymbolStar, SymbolEye, SymbolStar,
		SymbolEye, SymbolStar, SymbolEye,
		SymbolStar, SymbolEye, SymbolStar,
	},
	FaceBack: {
		SymbolSpiral, SymbolInfinity, SymbolSpiral,
		SymbolInfinity, SymbolSpiral, SymbolInfinity,
		SymbolSpiral, SymbolInfinity, SymbolSpiral,
	},
	FaceTop: {
		SymbolCrystal, SymbolTree, SymbolWater,
		SymbolCrystal, SymbolEye, SymbolStar,
		SymbolCrystal, SymbolFire, SymbolWind,
	},
	FaceBottom: {
		SymbolStar, SymbolInfinity, SymbolSpiral,
		SymbolWater, SymbolCrystal, SymbolTree,
		SymbolFire, SymbolWind, SymbolEye,
	},
}

// Reaction is a narrative line tied to an unordered symbol pair.
type Reaction struct {
	Pair [2]Symbol
	Text string
}

// Reactions are the specific lines spoken when a pair resonates.
var Reactions = []Reaction{
	{[2]Symbol{SymbolTree, SymbolWater}, "Roots drink deep. Life begins."},
	{[2]Symbol{SymbolFire, SymbolWind}, "The first storm is born."},
	{[2]Symbol{SymbolStar, SymbolEye}, "Something watches the sky."},
	{[2]Symbol{SymbolSpiral, SymbolInfinity}, "Time learns to fold."},
	{[2]Symbol{SymbolCrystal, SymbolTree}, "Mountains become forests."},
	{[2]Symbol{SymbolWater, SymbolWind}, "Rain remembers falling."},
	{[2]Symbol{SymbolFire, SymbolStar}, "Suns ignite across the void."},
	{[2]Symbol{SymbolEye, SymbolInfinity}, "Awareness spreads like dawn."},
}

// AmbientLines are used when a resonating pair has no reaction of its own.
var AmbientLines = []string{
	"A seedling breaks through frozen soil...",
	"The first ocean remembers tides...",
	"Forests whisper in languages not yet spoken...",
	"Single cells dream of becoming forests...",
	"Chemistry discovers it can choose...",
	"Water learns the shape of life...",
}

// AdjacencyMatch is a pair of neighbouring cells whose symbols resonate.
type AdjacencyMatch struct {
	Face    FaceKey   `json:"face"`
	Indices [2]int    `json:"indices"`
	Pair    [2]Symbol `json:"pair"`
}

// PhaseTwoState is the Symbolic Resonance grid. Adjacency is derived from
// Faces and is rebuilt by every constructor and mutation.
type PhaseTwoState struct {
	Faces     map[FaceKey][]Symbol `json:"faces"`
	Adjacency []AdjacencyMatch     `json:"adjacency"`
}

// NewPhaseTwo shuffles each face's target pattern (Fisher-Yates), so every
// initial grid is a permutation of a reachable solution.
func NewPhaseTwo(rng *rand.Rand) PhaseTwoState {
	faces := make(map[FaceKey][]Symbol, len(FaceKeys))
	for _, f := range FaceKeys {
		cells := append([]Symbol(nil), PhaseTwoTargets[f]...)
		for i := len(cells) - 1; i > 0; i-- {
			j := rng.Intn(i + 1)
			cells[i], cells[j] = cells[j], cells[i]
		}
		faces[f] = cells
	}
	return PhaseTwoState{Faces: faces, Adjacency: BuildAdjacencyMatches(faces)}
}

// CycleSymbol returns the symbol after current in cycle order.
// Unknown symbols restart the cycle at the first symbol.
func CycleSymbol(current Symbol) Symbol {
	for i, s := range Symbols {
		if s == current {
			return Symbols[(i+1)%len(Symbols)]
		}
	}
	return Symbols[0]
}

// Cycle advances one cell and returns the new state. progressed is true when
// the number of resonating pairs grew.
func (s PhaseTwoState) Cycle(face FaceKey, index int) (next PhaseTwoState, progressed bool) {
	faces := make(map[FaceKey][]Symbol, len(s.Faces))
	for k, v := range s.Faces {
		faces[k] = v
	}
	cells := append([]Symbol(nil), s.Faces[face]...)
	cells[index] = CycleSymbol(cells[index])
	faces[face] = cells

	next = PhaseTwoState{Faces: faces, Adjacency: BuildAdjacencyMatches(faces)}
	return next, len(next.Adjacency) > len(s.Adjacency)
}

// BuildAdjacencyMatches scans every face for resonating horizontal pairs,
// then vertical pairs. It is recomputed from scratch on each call.
func BuildAdjacencyMatches(faces map[FaceKey][]Symbol) []AdjacencyMatch {
	var out []AdjacencyMatch
	at := func(row, col int) int { return row*PhaseTwoGrid + col }

	for _, f := range FaceKeys {
		cells := faces[f]
		if len(cells) < PhaseTwoGrid*PhaseTwoGrid {
			continue
		}
		for row := 0; row < PhaseTwoGrid; row++ {
			for col := 0; col < PhaseTwoGrid-1; col++ {
				a, b := at(row, col), at(row, col+1)
				if Resonates(cells[a], cells[b]) {
					out = append(out, AdjacencyMatch{f, [2]int{a, b}, [2]Symbol{cells[a], cells[b]}})
				}
			}
		}
		for row := 0; row < PhaseTwoGrid-1; row++ {
			for col := 0; col < PhaseTwoGrid; col++ {
				a, b := at(row, col), at(row+1, col)
				if Resonates(cells[a], cells[b]) {
					out = append(out, AdjacencyMatch{f, [2]int{a, b}, [2]Symbol{cells[a], cells[b]}})
				}
			}
		}
	}
	return out
}

// ReactionLine looks up the unordered pair in Reactions and falls back to a
// random ambient line.
func ReactionLine(pair [2]Symbol, rng *rand.Rand) string {
	key := pairKey(pair)
	for _, r := range Reactions {
		if pairKey(r.Pair) == key {
			return r.Text
		}
	}
	return pick(rng, AmbientLines)
}

func pairKey(p [2]Symbol) string {
	s := []string{string(p[0]), string(p[1])}
	sort.Strings(s)
	return s[0] + "-" + s[1]
}

// Won reports whether every face matches its target index for index.
func (s PhaseTwoState) Won() bool {
	for _, f := range FaceKeys {
		target := PhaseTwoTargets[f]
		cells := s.Faces[f]
		if len(cells) != len(target) {
			return false
		}
		for i, sym := range target {
			if cells[i] != sym {
				return false
			}
		}
	}
	return true
}
