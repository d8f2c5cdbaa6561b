// internal/race/color.go
package race

import (
	"fmt"
	"math/rand"
)

// Color identifies a participant's display color. The set is closed: one constant per
// named CSS color, in declaration order.
type Color uint8

const (
	ColorAliceBlue Color = iota
	ColorAntiqueWhite
	ColorAqua
	ColorAquamarine
	ColorAzure
	ColorBeige
	ColorBisque
	ColorBlanchedAlmond
	ColorBlue
	ColorBlueViolet
	ColorBurlyWood
	ColorCadetBlue
	ColorChartreuse
	ColorChocolate
	ColorCoral
	ColorCornflowerBlue
	ColorCornsilk
	ColorCrimson
	ColorCyan
	ColorDarkCyan
	ColorDarkGoldenRod
	ColorDarkKhaki
	ColorDarkOrange
	ColorDarkSalmon
	ColorDarkSeaGreen
	ColorDarkTurquoise
	ColorDarkViolet
	ColorDeepPink
	ColorDeepSkyBlue
	ColorDodgerBlue
	ColorFireBrick
	ColorFloralWhite
	ColorForestGreen
	ColorFuchsia
	ColorGainsboro
	ColorGhostWhite
	ColorGold
	ColorGoldenRod
	ColorGreenYellow
	ColorHoneyDew
	ColorHotPink
	ColorIndianRed
	ColorIvory
	ColorKhaki
	ColorLavender
	ColorLavenderBlush
	ColorLawnGreen
	ColorLemonChiffon
	ColorLightBlue
	ColorLightCoral
	ColorLightCyan
	ColorLightGoldenRodYellow
	ColorLightGreen
	ColorLightPink
	ColorLightSalmon
	ColorLightSeaGreen
	ColorLightSkyBlue
	ColorLightSteelBlue
	ColorLightYellow
	ColorLime
	ColorLimeGreen
	ColorLinen
	ColorMagenta
	ColorMediumAquaMarine
	ColorMediumSpringGreen
	ColorMediumTurquoise
	ColorMediumVioletRed
	ColorMintCream
	ColorMistyRose
	ColorMoccasin
	ColorNavajoWhite
	ColorOldLace
	ColorOliveDrab
	ColorOrange
	ColorOrangeRed
	ColorOrchid
	ColorPaleGoldenRod
	ColorPaleGreen
	ColorPaleTurquoise
	ColorPaleVioletRed
	ColorPapayaWhip
	ColorPeachPuff
	ColorPeru
	ColorPink
	ColorPlum
	ColorPowderBlue
	ColorRebeccaPurple
	ColorRosyBrown
	ColorRoyalBlue
	ColorSalmon
	ColorSandyBrown
	ColorSeaGreen
	ColorSeashell
	ColorSienna
	ColorSkyBlue
	ColorSnow
	ColorSpringGreen
	ColorSteelBlue
	ColorTan
	ColorThistle
	ColorTomato
	ColorTurquoise
	ColorViolet
	ColorWheat
	ColorWhite
	ColorWhiteSmoke
	ColorYellow
	ColorYellowGreen
)

// NumColors is the size of the palette.
const NumColors = int(ColorYellowGreen) + 1

var colorNames = [NumColors]string{
	"AliceBlue",
	"AntiqueWhite",
	"Aqua",
	"Aquamarine",
	"Azure",
	"Beige",
	"Bisque",
	"BlanchedAlmond",
	"Blue",
	"BlueViolet",
	"BurlyWood",
	"CadetBlue",
	"Chartreuse",
	"Chocolate",
	"Coral",
	"CornflowerBlue",
	"Cornsilk",
	"Crimson",
	"Cyan",
	"DarkCyan",
	"DarkGoldenRod",
	"DarkKhaki",
	"DarkOrange",
	"DarkSalmon",
	"DarkSeaGreen",
	"DarkTurquoise",
	"DarkViolet",
	"DeepPink",
	"DeepSkyBlue",
	"DodgerBlue",
	"FireBrick",
	"FloralWhite",
	"ForestGreen",
	"Fuchsia",
	"Gainsboro",
	"GhostWhite",
	"Gold",
	"GoldenRod",
	"GreenYellow",
	"HoneyDew",
	"HotPink",
	"IndianRed",
	"Ivory",
	"Khaki",
	"Lavender",
	"LavenderBlush",
	"LawnGreen",
	"LemonChiffon",
	"LightBlue",
	"LightCoral",
	"LightCyan",
	"LightGoldenRodYellow",
	"LightGreen",
	"LightPink",
	"LightSalmon",
	"LightSeaGreen",
	"LightSkyBlue",
	"LightSteelBlue",
	"LightYellow",
	"Lime",
	"LimeGreen",
	"Linen",
	"Magenta",
	"MediumAquaMarine",
	"MediumSpringGreen",
	"MediumTurquoise",
	"MediumVioletRed",
	"MintCream",
	"MistyRose",
	"Moccasin",
	"NavajoWhite",
	"OldLace",
	"OliveDrab",
	"Orange",
	"OrangeRed",
	"Orchid",
	"PaleGoldenRod",
	"PaleGreen",
	"PaleTurquoise",
	"PaleVioletRed",
	"PapayaWhip",
	"PeachPuff",
	"Peru",
	"Pink",
	"Plum",
	"PowderBlue",
	"RebeccaPurple",
	"RosyBrown",
	"RoyalBlue",
	"Salmon",
	"SandyBrown",
	"SeaGreen",
	"Seashell",
	"Sienna",
	"SkyBlue",
	"Snow",
	"SpringGreen",
	"SteelBlue",
	"Tan",
	"Thistle",
	"Tomato",
	"Turquoise",
	"Violet",
	"Wheat",
	"White",
	"WhiteSmoke",
	"Yellow",
	"YellowGreen",
}

func (c Color) String() string {
	if int(c) < NumColors {
		return colorNames[c]
	}
	return fmt.Sprintf("Color(%d)", uint8(c))
}

// MarshalText encodes the color by name so clients can use it as a CSS color directly.
func (c Color) MarshalText() ([]byte, error) {
	if int(c) >= NumColors {
		return nil, fmt.Errorf("invalid color %d", uint8(c))
	}
	return []byte(colorNames[c]), nil
}

// ColorPool hands out colors without replacement. It is a stack: Take pops from the end,
// Release pushes back. An exhausted pool is refilled with the whole palette, reshuffled,
// so colors already handed out in the previous cycle can come around again.
type ColorPool struct {
	stack   []Color
	shuffle func(n int, swap func(i, j int))
}

// NewColorPool returns a pool holding the full palette in random order.
func NewColorPool() *ColorPool {
	p := &ColorPool{shuffle: rand.Shuffle}
	p.refill()
	return p
}

func (p *ColorPool) refill() {
	p.stack = make([]Color, NumColors)
	for i := range p.stack {
		p.stack[i] = Color(i)
	}
	p.shuffle(len(p.stack), func(i, j int) {
		p.stack[i], p.stack[j] = p.stack[j], p.stack[i]
	})
}

// Take pops the next color, refilling the pool first if it is empty.
func (p *ColorPool) Take() Color {
	if len(p.stack) == 0 {
		p.refill()
	}
	c := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	return c
}

// Release returns a color to the top of the pool.
func (p *ColorPool) Release(c Color) {
	p.stack = append(p.stack, c)
}

// Len is the number of colors left before the next refill.
func (p *ColorPool) Len() int {
	return len(p.stack)
}
