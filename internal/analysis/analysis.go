// Package analysis derives year-over-year reporting decay per cohort and
// combines cohorts into size-weighted averages.
//
// For a cohort with reporting fractions f, decay[i] = 1 - f[i+1]/f[i]: the
// fractional drop in reporting between pledge-year i and i+1. Positive values
// mean the cohort is shrinking.
//
// Cohorts are weighted by their size, resolved once per run by ResolveSizes.
// A cohort without a size entry is either rejected (ErrUnknownCohort) or
// excluded with a warning, depending on the unknown cohort policy.
package analysis

import (
	"errors"
	"fmt"

	"github.com/rewired-gh/cohortdecay/internal/config"
	"github.com/rewired-gh/cohortdecay/internal/logger"
	"github.com/rewired-gh/cohortdecay/internal/models"
)

var (
	// ErrZeroFraction is returned when a decay ratio would divide by a zero fraction
	ErrZeroFraction = errors.New("reporting fraction is zero")
	// ErrUnknownCohort is returned when a cohort has no size entry
	ErrUnknownCohort = errors.New("cohort has no size entry")
	// ErrMissingReferenceCohort is returned when the reference cohort has no decay series
	ErrMissingReferenceCohort = errors.New("reference cohort missing from decay table")
	// ErrEmptyWeight is returned when a weighted average has nothing to average
	ErrEmptyWeight = errors.New("no cohort weight to average over")
)

// Options controls the weighted aggregation
type Options struct {
	ReferenceCohort string
	CutoffIndex     int
	UnknownPolicy   string
}

// OptionsFromConfig builds Options from the cohorts section of the configuration
func OptionsFromConfig(cfg config.CohortsConfig) Options {
	return Options{
		ReferenceCohort: cfg.ReferenceCohort,
		CutoffIndex:     cfg.CutoffIndex,
		UnknownPolicy:   cfg.UnknownPolicy,
	}
}

// Decay computes the year-over-year decay series of every cohort with at
// least two reporting fractions.
func Decay(reporting *models.ReportingTable) (*models.DecayTable, error) {
	table := models.NewDecayTable()

	for _, cohort := range reporting.Cohorts() {
		fractions, _ := reporting.Get(cohort)
		if len(fractions) < 2 {
			logger.Debug("Skipping cohort %s with %d reporting years", cohort, len(fractions))
			continue
		}

		decay := make([]float64, len(fractions)-1)
		for i := range decay {
			if fractions[i] == 0 {
				return nil, fmt.Errorf("cohort %s pledge-year %d: %w", cohort, i, ErrZeroFraction)
			}
			decay[i] = 1 - fractions[i+1]/fractions[i]
		}
		table.Set(cohort, decay)
	}

	return table, nil
}

// ResolveSizes looks up the size of each cohort, applying the unknown cohort policy
func ResolveSizes(cohorts []string, sizes models.CohortSizes, policy string) (map[string]int, error) {
	weights := make(map[string]int, len(cohorts))
	var unknown []string

	for _, cohort := range cohorts {
		n, ok := sizes.Lookup(cohort)
		if !ok {
			unknown = append(unknown, cohort)
			continue
		}
		weights[cohort] = n
	}

	if len(unknown) == 0 {
		return weights, nil
	}
	if policy == config.UnknownCohortExclude {
		logger.Warn("Excluding cohorts without a size entry: %v", unknown)
		for _, cohort := range unknown {
			weights[cohort] = 0
		}
		return weights, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownCohort, unknown)
}

// checkWeights makes sure every decay cohort was resolved by ResolveSizes
func checkWeights(decay *models.DecayTable, weights map[string]int) error {
	var missing []string
	for _, cohort := range decay.Cohorts() {
		if _, ok := weights[cohort]; !ok {
			missing = append(missing, cohort)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrUnknownCohort, missing)
	}
	return nil
}

// WeightedCurve averages the decay series across cohorts, weighting each
// cohort by its resolved size. The curve is as long as the reference cohort's
// series; values of longer cohorts past that point are ignored.
func WeightedCurve(decay *models.DecayTable, weights map[string]int, opts Options) (*models.WeightedDecayCurve, error) {
	reference, ok := decay.Get(opts.ReferenceCohort)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingReferenceCohort, opts.ReferenceCohort)
	}
	if err := checkWeights(decay, weights); err != nil {
		return nil, err
	}

	sums := make([]float64, len(reference))
	totals := make([]float64, len(reference))
	for _, cohort := range decay.Cohorts() {
		series, _ := decay.Get(cohort)
		size := float64(weights[cohort])
		for i, d := range series {
			if i >= len(sums) {
				break
			}
			sums[i] += d * size
			totals[i] += size
		}
	}

	curve := &models.WeightedDecayCurve{
		Values:  make([]float64, len(sums)),
		Weights: totals,
	}
	for i := range sums {
		if totals[i] == 0 {
			return nil, fmt.Errorf("pledge-year %d: %w", i, ErrEmptyWeight)
		}
		curve.Values[i] = sums[i] / totals[i]
	}

	return curve, nil
}

// CutoffDecay is the size-weighted average decay over every pledge-year at or
// after opts.CutoffIndex, across all cohorts.
func CutoffDecay(decay *models.DecayTable, weights map[string]int, opts Options) (float64, error) {
	if err := checkWeights(decay, weights); err != nil {
		return 0, err
	}

	var sum, total float64
	for _, cohort := range decay.Cohorts() {
		series, _ := decay.Get(cohort)
		size := float64(weights[cohort])
		for i, d := range series {
			if i < opts.CutoffIndex {
				continue
			}
			sum += d * size
			total += size
		}
	}

	if total == 0 {
		return 0, fmt.Errorf("pledge-years from %d: %w", opts.CutoffIndex, ErrEmptyWeight)
	}
	return sum / total, nil
}

// FormatPercent renders a fraction as a percentage with one decimal place
func FormatPercent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}
