package render

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot/palette/brewer"
)

// ColorScale is a sequential colormap interpolated linearly between stops
type ColorScale struct {
	Stops []color.RGBA
}

// Blues runs from near-white to dark blue
var Blues = brewerScale("Blues")

// Reds runs from near-white to dark red
var Reds = brewerScale("Reds")

// brewerScale builds a ColorScale from a 9-class ColorBrewer sequential palette
func brewerScale(name string) ColorScale {
	p, err := brewer.GetPalette(brewer.TypeSequential, name, 9)
	if err != nil {
		panic(fmt.Sprintf("render: brewer palette %s: %v", name, err))
	}

	colors := p.Colors()
	stops := make([]color.RGBA, len(colors))
	for i, c := range colors {
		stops[i] = color.RGBAModel.Convert(c).(color.RGBA)
	}
	return ColorScale{Stops: stops}
}

// At returns the color at position frac, clamped to [0, 1]
func (s ColorScale) At(frac float64) color.RGBA {
	switch len(s.Stops) {
	case 0:
		return color.RGBA{A: 255}
	case 1:
		return s.Stops[0]
	}
	if math.IsNaN(frac) || frac <= 0 {
		return s.Stops[0]
	}
	if frac >= 1 {
		return s.Stops[len(s.Stops)-1]
	}

	pos := frac * float64(len(s.Stops)-1)
	i := int(pos)
	t := pos - float64(i)
	lo, hi := s.Stops[i], s.Stops[i+1]
	return color.RGBA{
		R: lerp(lo.R, hi.R, t),
		G: lerp(lo.G, hi.G, t),
		B: lerp(lo.B, hi.B, t),
		A: lerp(lo.A, hi.A, t),
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
}
