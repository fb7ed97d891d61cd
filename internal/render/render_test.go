package render

import (
	"bytes"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/cohortdecay/internal/models"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func requirePNG(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, pngMagic), "%s is not a PNG", path)
}

func TestColorScaleAt(t *testing.T) {
	assert.Equal(t, Blues.Stops[0], Blues.At(0))
	assert.Equal(t, Blues.Stops[0], Blues.At(-3))
	assert.Equal(t, Blues.Stops[len(Blues.Stops)-1], Blues.At(1))
	assert.Equal(t, Blues.Stops[len(Blues.Stops)-1], Blues.At(7))
	require.Len(t, Blues.Stops, 9)
	assert.Equal(t, Blues.Stops[4], Blues.At(0.5))
	assert.Equal(t, color.RGBA{R: 247, G: 251, B: 255, A: 255}, Blues.At(0))
	assert.Equal(t, color.RGBA{R: 198, G: 219, B: 239, A: 255}, Blues.At(0.25))
	assert.Equal(t, color.RGBA{R: 252, G: 187, B: 161, A: 255}, Reds.At(0.25))

	scale := ColorScale{Stops: []color.RGBA{{R: 0, A: 255}, {R: 200, A: 255}}}
	assert.Equal(t, color.RGBA{R: 50, A: 255}, scale.At(0.25))

	// Darker stops have less red, so intensity must be monotonic
	prev := Reds.At(0)
	for _, f := range []float64{0.2, 0.4, 0.6, 0.8, 1.0} {
		c := Reds.At(f)
		assert.LessOrEqual(t, c.G, prev.G)
		prev = c
	}
}

func TestPercentTicks(t *testing.T) {
	ticks := percentTicks{}.Ticks(0, 30)
	require.NotEmpty(t, ticks)
	labelled := 0
	for _, tick := range ticks {
		if tick.Label == "" {
			continue
		}
		labelled++
		assert.Equal(t, byte('%'), tick.Label[len(tick.Label)-1])
	}
	assert.Greater(t, labelled, 0)
}

func TestLineChartWritesPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chart.png")
	yMax := 50.0

	err := LineChart(ChartSpec{
		Title:  "test",
		XLabel: "x",
		YLabel: "y",
		Series: []Series{
			{Label: "a", Values: []float64{10, 20, 15}, Color: Blues.At(0.8)},
			{Values: []float64{5, 6}, Offset: 1, Color: Reds.At(0.3)},
			{Label: "empty"},
		},
		YMax:   &yMax,
		Canvas: NewCanvas(3, 2, 72),
		Path:   path,
	})
	require.NoError(t, err)
	requirePNG(t, path)
}

func TestLineChartBadPath(t *testing.T) {
	err := LineChart(ChartSpec{
		Series: []Series{{Label: "a", Values: []float64{1, 2}, Color: Blues.At(1)}},
		Canvas: NewCanvas(2, 2, 72),
		Path:   filepath.Join(t.TempDir(), "missing", "chart.png"),
	})
	assert.Error(t, err)
}

func TestCohortCharts(t *testing.T) {
	dir := t.TempDir()
	canvas := NewCanvas(4, 3, 72)

	reporting := models.NewReportingTable()
	reporting.Set("2009", []float64{0.9, 0.8, 0.7})
	reporting.Set("2010", []float64{0.8, 0.6})

	decay := models.NewDecayTable()
	decay.Set("2009", []float64{0.111, 0.125})
	decay.Set("2010", []float64{0.25})

	sizes := map[string]int{"2009": 10, "2010": 30}
	curve := &models.WeightedDecayCurve{
		Values:  []float64{(0.111*10 + 0.25*30) / 40, 0.125},
		Weights: []float64{40, 10},
	}

	reportingPath := filepath.Join(dir, "reporting.png")
	require.NoError(t, ReportingChart(reporting, sizes, 30, canvas, reportingPath))
	requirePNG(t, reportingPath)

	decayPath := filepath.Join(dir, "decay.png")
	require.NoError(t, DecayChart(decay, sizes, 30, curve, canvas, decayPath))
	requirePNG(t, decayPath)
}

func TestCohortSeriesIntensity(t *testing.T) {
	series := cohortSeries([]string{"a", "b"}, func(c string) []float64 {
		return []float64{0.5}
	}, map[string]int{"a": 0, "b": 20}, 20)

	require.Len(t, series, 2)
	assert.Equal(t, Blues.At(0), series[0].Color)
	assert.Equal(t, Blues.At(1), series[1].Color)
	assert.Equal(t, []float64{50}, series[0].Values)
}

func TestDecayChartLayout(t *testing.T) {
	decay := models.NewDecayTable()
	decay.Set("2009", []float64{0.1, 0.2, 0.6})
	decay.Set("2014", []float64{0.3})

	curve := &models.WeightedDecayCurve{
		Values:  []float64{0.2, 0.2, 0.6},
		Weights: []float64{40, 10, 20},
	}
	spec := decaySpec(decay, map[string]int{"2009": 10, "2014": 30}, 30, curve, NewCanvas(4, 3, 72), "unused.png")

	p, legend, err := newPlot(spec)
	require.NoError(t, err)

	// Values above 30% are clipped rather than widening the axis
	assert.Equal(t, 0.0, p.Y.Min)
	assert.Equal(t, 30.0, p.Y.Max)

	assert.Equal(t, []string{"2009", "2014", "weighted\naverage"}, legend)

	// Two cohorts, the average, then one series per segment
	require.Len(t, spec.Series, 5)
	assert.Equal(t, weightedAverageColor, spec.Series[2].Color)

	first, second := spec.Series[3], spec.Series[4]
	assert.Empty(t, first.Label)
	assert.Empty(t, second.Label)
	assert.Equal(t, 0, first.Offset)
	assert.Equal(t, 1, second.Offset)
	assert.InDeltaSlice(t, []float64{20, 20}, first.Values, 1e-9)
	assert.InDeltaSlice(t, []float64{20, 60}, second.Values, 1e-9)
	assert.Equal(t, Reds.At(1), first.Color)
	assert.Equal(t, Reds.At(0.25), second.Color)
	assert.NotEqual(t, first.Color, second.Color)
}

func TestReportingChartHasNoBounds(t *testing.T) {
	p, legend, err := newPlot(ChartSpec{
		Series: []Series{
			{Label: "2009", Values: []float64{90, 45}, Color: Blues.At(1)},
			{Label: "2023"},
		},
		Canvas: NewCanvas(2, 2, 72),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"2009"}, legend)
	assert.Equal(t, 45.0, p.Y.Min)
	assert.Equal(t, 90.0, p.Y.Max)
}
