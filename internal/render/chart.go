// Package render draws cohort line charts to PNG files.
//
// Every chart is built from a ChartSpec: a list of series plotted against
// their pledge-year index, optional y bounds and the canvas size. Values are
// percentages and the y axis is labelled accordingly.
package render

import (
	"fmt"
	"image/color"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Canvas describes the output image
type Canvas struct {
	Width  vg.Length
	Height vg.Length
	DPI    int
}

// NewCanvas builds a Canvas from a size in inches
func NewCanvas(widthInches, heightInches float64, dpi int) Canvas {
	return Canvas{
		Width:  vg.Length(widthInches) * vg.Inch,
		Height: vg.Length(heightInches) * vg.Inch,
		DPI:    dpi,
	}
}

// Series is one line on a chart. Values[i] is drawn at x = Offset+i.
// Series without a label stay out of the legend.
type Series struct {
	Label  string
	Values []float64
	Offset int
	Color  color.Color
	Width  vg.Length
}

// ChartSpec holds everything needed to draw one chart
type ChartSpec struct {
	Title  string
	XLabel string
	YLabel string
	Series []Series
	YMin   *float64
	YMax   *float64
	Canvas Canvas
	Path   string
}

// percentTicks labels the default ticks with a percent sign
type percentTicks struct{}

// Ticks implements plot.Ticker
func (percentTicks) Ticks(min, max float64) []plot.Tick {
	ticks := plot.DefaultTicks{}.Ticks(min, max)
	for i := range ticks {
		if ticks[i].Label != "" {
			ticks[i].Label += "%"
		}
	}
	return ticks
}

// LineChart draws spec and writes it to spec.Path as a PNG
func LineChart(spec ChartSpec) error {
	p, _, err := newPlot(spec)
	if err != nil {
		return err
	}
	return save(p, spec.Canvas, spec.Path)
}

// newPlot builds the plot for spec. It also returns the legend labels in the
// order they were added.
func newPlot(spec ChartSpec) (*plot.Plot, []string, error) {
	p := plot.New()
	p.Title.Text = spec.Title
	p.X.Label.Text = spec.XLabel
	p.Y.Label.Text = spec.YLabel
	p.Y.Tick.Marker = percentTicks{}
	p.Legend.Top = true

	var legend []string
	for _, s := range spec.Series {
		if len(s.Values) == 0 {
			continue
		}

		xys := make(plotter.XYs, len(s.Values))
		for i, v := range s.Values {
			xys[i].X = float64(s.Offset + i)
			xys[i].Y = v
		}

		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build series %q: %w", s.Label, err)
		}
		line.LineStyle.Color = s.Color
		if s.Width > 0 {
			line.LineStyle.Width = s.Width
		}

		p.Add(line)
		if s.Label != "" {
			p.Legend.Add(s.Label, line)
			legend = append(legend, s.Label)
		}
	}

	// Bounds go last so that Add does not widen them again
	if spec.YMin != nil {
		p.Y.Min = *spec.YMin
	}
	if spec.YMax != nil {
		p.Y.Max = *spec.YMax
	}

	return p, legend, nil
}

// save renders p onto a PNG canvas at the requested DPI
func save(p *plot.Plot, canvas Canvas, path string) error {
	c := vgimg.NewWith(vgimg.UseWH(canvas.Width, canvas.Height), vgimg.UseDPI(canvas.DPI))
	p.Draw(draw.New(c))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}

	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write chart %s: %w", path, err)
	}
	return f.Close()
}
