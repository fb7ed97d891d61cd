// Package pipeline runs one cohort decay analysis end to end: load both
// sources, compute decay and weighted averages, and render the two charts.
// A Pipeline holds no state between runs.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/cohortdecay/internal/analysis"
	"github.com/rewired-gh/cohortdecay/internal/config"
	"github.com/rewired-gh/cohortdecay/internal/loader"
	"github.com/rewired-gh/cohortdecay/internal/logger"
	"github.com/rewired-gh/cohortdecay/internal/models"
	"github.com/rewired-gh/cohortdecay/internal/render"
)

// Pipeline runs the analysis for one configuration
type Pipeline struct {
	cfg *config.Config
}

// Result holds every table produced by a run
type Result struct {
	Reporting   *models.ReportingTable
	Sizes       models.CohortSizes
	Decay       *models.DecayTable
	Weights     map[string]int
	Curve       *models.WeightedDecayCurve
	CutoffDecay float64
	Options     analysis.Options
	FinishedAt  time.Time
}

// New creates a Pipeline for cfg
func New(cfg *config.Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// Run executes every step in order. ctx is checked between steps.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{Options: analysis.OptionsFromConfig(p.cfg.Cohorts)}

	steps := []struct {
		name string
		fn   func(*Result) error
	}{
		{"load", p.load},
		{"decay", p.decay},
		{"aggregate", p.aggregate},
		{"render", p.render},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		if err := step.fn(res); err != nil {
			return nil, fmt.Errorf("%s: %w", step.name, err)
		}
		logger.Debug("Step %s completed in %v", step.name, time.Since(start))
	}

	res.FinishedAt = time.Now()
	return res, nil
}

func (p *Pipeline) load(res *Result) error {
	reporting, err := loader.LoadReporting(p.cfg.Inputs.ReportingPath)
	if err != nil {
		return err
	}
	if err := reporting.Validate(); err != nil {
		logger.Warn("Reporting table looks off: %v", err)
	}

	corrections, err := loader.BuildCorrections(p.cfg.Cohorts)
	if err != nil {
		return err
	}
	sizes, err := loader.LoadMembership(p.cfg.Inputs.MembershipPath, corrections)
	if err != nil {
		return err
	}

	res.Reporting = reporting
	res.Sizes = sizes
	logger.Info("Loaded %d cohorts and %d cohort sizes", reporting.Len(), len(sizes))
	logger.Debug("Cohort size years: %v", sizes.Years())
	return nil
}

func (p *Pipeline) decay(res *Result) error {
	decay, err := analysis.Decay(res.Reporting)
	if err != nil {
		return err
	}
	res.Decay = decay
	logger.Info("Computed decay for %d cohorts", decay.Len())
	return nil
}

func (p *Pipeline) aggregate(res *Result) error {
	weights, err := analysis.ResolveSizes(res.Reporting.Cohorts(), res.Sizes, res.Options.UnknownPolicy)
	if err != nil {
		return err
	}
	res.Weights = weights

	curve, err := analysis.WeightedCurve(res.Decay, res.Weights, res.Options)
	if err != nil {
		return err
	}
	res.Curve = curve

	cutoff, err := analysis.CutoffDecay(res.Decay, res.Weights, res.Options)
	if err != nil {
		return err
	}
	res.CutoffDecay = cutoff

	logger.Debug("Weighted curve over %d pledge-years, cutoff decay from year %d: %s",
		len(curve.Values), res.Options.CutoffIndex, analysis.FormatPercent(cutoff))
	return nil
}

func (p *Pipeline) render(res *Result) error {
	out := p.cfg.Output
	canvas := render.NewCanvas(out.WidthInches, out.HeightInches, out.DPI)
	biggest := res.Sizes.Max()

	if err := render.ReportingChart(res.Reporting, res.Weights, biggest, canvas, out.ReportingChart); err != nil {
		return err
	}
	logger.Info("Wrote %s", out.ReportingChart)

	if err := render.DecayChart(res.Decay, res.Weights, biggest, res.Curve, canvas, out.DecayChart); err != nil {
		return err
	}
	logger.Info("Wrote %s", out.DecayChart)
	return nil
}

// Run builds the persisted summary of this result
func (r *Result) Run() *models.Run {
	run := &models.Run{
		ID:              uuid.New().String(),
		CreatedAt:       r.FinishedAt,
		ReferenceCohort: r.Options.ReferenceCohort,
		CutoffIndex:     r.Options.CutoffIndex,
		CutoffDecay:     r.CutoffDecay,
		Curve:           *r.Curve,
	}
	for _, cohort := range r.Decay.Cohorts() {
		series, _ := r.Decay.Get(cohort)
		run.Cohorts = append(run.Cohorts, models.CohortDecay{
			Cohort: cohort,
			Size:   r.Weights[cohort],
			Decay:  series,
		})
	}
	return run
}
