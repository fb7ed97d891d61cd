package render

import (
	"image/color"

	"gonum.org/v1/plot/vg"

	"github.com/rewired-gh/cohortdecay/internal/models"
)

const (
	yearsSincePledging   = "years since pledging"
	weightedAverageLabel = "weighted\naverage"
)

var weightedAverageColor = color.RGBA{R: 255, A: 255}

// cohortSeries builds one Blues-colored line per cohort, scaled to percent.
// Color intensity follows size relative to the biggest cohort.
func cohortSeries(cohorts []string, values func(string) []float64, sizes map[string]int, biggest int) []Series {
	series := make([]Series, 0, len(cohorts))
	for _, cohort := range cohorts {
		intensity := 0.0
		if biggest > 0 {
			intensity = float64(sizes[cohort]) / float64(biggest)
		}
		series = append(series, Series{
			Label:  cohort,
			Values: percent(values(cohort)),
			Color:  Blues.At(intensity),
		})
	}
	return series
}

// ReportingChart plots each cohort's reporting fraction over pledge-years
func ReportingChart(reporting *models.ReportingTable, sizes map[string]int, biggest int, canvas Canvas, path string) error {
	return LineChart(ChartSpec{
		Title:  "GWWC Reporting Fraction By Cohort Over Time",
		XLabel: yearsSincePledging,
		YLabel: "fraction of people in cohort reporting any donations",
		Series: cohortSeries(reporting.Cohorts(), func(c string) []float64 {
			f, _ := reporting.Get(c)
			return f
		}, sizes, biggest),
		Canvas: canvas,
		Path:   path,
	})
}

// DecayChart plots each cohort's decay plus the weighted average curve.
// Each segment of the average is redrawn in Reds by the weight behind it.
func DecayChart(decay *models.DecayTable, sizes map[string]int, biggest int, curve *models.WeightedDecayCurve, canvas Canvas, path string) error {
	return LineChart(decaySpec(decay, sizes, biggest, curve, canvas, path))
}

// decaySpec lays out the decay chart with its y axis fixed to [0%, 30%]
func decaySpec(decay *models.DecayTable, sizes map[string]int, biggest int, curve *models.WeightedDecayCurve, canvas Canvas, path string) ChartSpec {
	series := cohortSeries(decay.Cohorts(), func(c string) []float64 {
		d, _ := decay.Get(c)
		return d
	}, sizes, biggest)

	avg := percent(curve.Values)
	series = append(series, Series{
		Label:  weightedAverageLabel,
		Values: avg,
		Color:  weightedAverageColor,
		Width:  vg.Points(2),
	})

	maxWeight := curve.MaxWeight()
	for i := 0; i+1 < len(avg); i++ {
		intensity := 0.0
		if maxWeight > 0 {
			intensity = curve.Weights[i] / maxWeight
		}
		series = append(series, Series{
			Values: avg[i : i+2],
			Offset: i,
			Color:  Reds.At(intensity),
			Width:  vg.Points(2),
		})
	}

	yMin, yMax := 0.0, 30.0
	return ChartSpec{
		Title:  "GWWC Reporting Fraction Decrease By Cohort Over Time",
		XLabel: yearsSincePledging,
		YLabel: "year over year decrease in donation reporting",
		Series: series,
		YMin:   &yMin,
		YMax:   &yMax,
		Canvas: canvas,
		Path:   path,
	}
}

func percent(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v * 100
	}
	return out
}
