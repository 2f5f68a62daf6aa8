// internal/puzzle/types.go
//
// Shared vocabulary for the three phase models.
// Defines:
//   - FaceKey: the six logical sides of the cube.
//   - Color: the Phase 1 palette and its cycle order.
//   - Symbol: the Phase 2 sigils, their cycle order and resonance table.
//
// Grid sizes and palettes are fixed; they are not extension points.

package puzzle

import "math/rand"

// FaceKey names one side of the cube.
type FaceKey string

const (
	FaceFront  FaceKey = "front"
	FaceBack   FaceKey = "back"
	FaceLeft   FaceKey = "left"
	FaceRight  FaceKey = "right"
	FaceTop    FaceKey = "top"
	FaceBottom FaceKey = "bottom"
)

// FaceKeys lists every face in canonical order. Iteration over faces always
// follows this order so derived data (adjacency, fragments) is stable.
var FaceKeys = []FaceKey{FaceFront, FaceBack, FaceLeft, FaceRight, FaceTop, FaceBottom}

// ParseFace reports whether s names a face.
func ParseFace(s string) (FaceKey, bool) {
	for _, f := range FaceKeys {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// Color is a Phase 1 cell value (hex string as sent to the renderer).
type Color string

const (
	ColorRed    Color = "#8B4049"
	ColorBlue   Color = "#4A5B7C"
	ColorGreen  Color = "#5B7C5A"
	ColorPurple Color = "#6B5B7C"
)

// Palette is the Phase 1 cycle order: red -> blue -> green -> purple -> red.
var Palette = []Color{ColorRed, ColorBlue, ColorGreen, ColorPurple}

// Symbol is a Phase 2 cell value.
type Symbol string

const (
	SymbolTree     Symbol = "tree"
	SymbolWater    Symbol = "water"
	SymbolFire     Symbol = "fire"
	SymbolWind     Symbol = "wind"
	SymbolStar     Symbol = "star"
	SymbolSpiral   Symbol = "spiral"
	SymbolCrystal  Symbol = "crystal"
	SymbolEye      Symbol = "eye"
	SymbolInfinity Symbol = "infinity"
)

// Symbols is the Phase 2 cycle order.
var Symbols = []Symbol{
	SymbolTree, SymbolWater, SymbolFire, SymbolWind, SymbolStar,
	SymbolSpiral, SymbolCrystal, SymbolEye, SymbolInfinity,
}

// SymbolInfo carries the presentation label and glyph for a symbol.
type SymbolInfo struct {
	ID    Symbol `json:"id"`
	Label string `json:"label"`
	Glyph string `json:"glyph"`
}

// SymbolCatalog maps each symbol to its label and glyph.
var SymbolCatalog = map[Symbol]SymbolInfo{
	SymbolTree:     {SymbolTree, "Tree", "\U0001F333"},
	SymbolWater:    {SymbolWater, "Water", "\U0001F4A7"},
	SymbolFire:     {SymbolFire, "Fire", "\U0001F525"},
	SymbolWind:     {SymbolWind, "Wind", "\U0001F4A8"},
	SymbolStar:     {SymbolStar, "Star", "⭐"},
	SymbolSpiral:   {SymbolSpiral, "Spiral", "\U0001F300"},
	SymbolCrystal:  {SymbolCrystal, "Crystal", "\U0001F48E"},
	SymbolEye:      {SymbolEye, "Eye", "\U0001F441"},
	SymbolInfinity: {SymbolInfinity, "Infinity", "∞"},
}

// resonance lists, for each symbol, the symbols it resonates with.
// Crystal resonates with every other symbol.
var resonance = map[Symbol][]Symbol{
	SymbolTree:     {SymbolWater, SymbolCrystal},
	SymbolWater:    {SymbolTree, SymbolWind},
	SymbolFire:     {SymbolWind, SymbolStar},
	SymbolWind:     {SymbolFire, SymbolWater},
	SymbolStar:     {SymbolEye, SymbolFire},
	SymbolEye:      {SymbolStar, SymbolInfinity},
	SymbolSpiral:   {SymbolInfinity},
	SymbolInfinity: {SymbolSpiral, SymbolEye},
	SymbolCrystal: {
		SymbolTree, SymbolWater, SymbolFire, SymbolWind, SymbolStar,
		SymbolSpiral, SymbolEye, SymbolInfinity,
	},
}

// Resonates reports whether a and b form a complementary pair. The table is
// consulted in both directions.
func Resonates(a, b Symbol) bool {
	return listed(resonance[a], b) || listed(resonance[b], a)
}

func listed(list []Symbol, s Symbol) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// pick returns a uniformly random element of list.
func pick[T any](rng *rand.Rand, list []T) T {
	return list[rng.Intn(len(list))]
}

// wrap maps value into [0, n) for any integer value, including negatives.
func wrap(value, n int) int {
	m := value % n
	if m < 0 {
		m += n
	}
	return m
}
