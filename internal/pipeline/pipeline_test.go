package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/cohortdecay/internal/analysis"
	"github.com/rewired-gh/cohortdecay/internal/config"
	"github.com/rewired-gh/cohortdecay/internal/logger"
)

const reportingTSV = "Cohort\t0\t1\t2\t3\t4\t5\t6\n" +
	"2009\t0.90\t0.80\t0.72\t0.66\t0.60\t0.55\t0.484\n" +
	"2015\t0.60\t0.48\t0.42\t\t\t\t\n" +
	"2021\t0.50\t\t\t\t\t\t\n"

const membershipJSON = `{
	"March 2009": 4,
	"June 1990": 2,
	"May 2015": 30,
	"December 2021": 7
}`

func writeInputs(t *testing.T, reporting, membership string) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Inputs.ReportingPath = filepath.Join(dir, "reporting.tsv")
	cfg.Inputs.MembershipPath = filepath.Join(dir, "members.json")
	cfg.Output.ReportingChart = filepath.Join(dir, "reporting.png")
	cfg.Output.DecayChart = filepath.Join(dir, "decay.png")
	cfg.Output.DPI = 60
	cfg.Output.WidthInches = 4
	cfg.Output.HeightInches = 3

	require.NoError(t, os.WriteFile(cfg.Inputs.ReportingPath, []byte(reporting), 0o644))
	require.NoError(t, os.WriteFile(cfg.Inputs.MembershipPath, []byte(membership), 0o644))
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestRun(t *testing.T) {
	cfg := writeInputs(t, reportingTSV, membershipJSON)

	res, err := New(cfg).Run(context.Background())
	require.NoError(t, err)

	// June 1990 is corrected to December 2021
	assert.Equal(t, 9, res.Sizes["2021"])
	_, has1990 := res.Sizes["1990"]
	assert.False(t, has1990)

	assert.Equal(t, []string{"2009", "2015"}, res.Decay.Cohorts())
	require.Len(t, res.Curve.Values, 6)
	assert.Equal(t, []float64{34, 34, 4, 4, 4, 4}, res.Curve.Weights)
	assert.InDelta(t, (4*(1-0.80/0.90)+30*0.2)/34, res.Curve.Values[0], 1e-12)

	// Only 2009 reaches pledge-year 5: 1 - 0.484/0.55 = 0.12
	assert.InDelta(t, 0.12, res.CutoffDecay, 1e-12)
	assert.Equal(t, "12.0%", analysis.FormatPercent(res.CutoffDecay))

	for _, path := range []string{cfg.Output.ReportingChart, cfg.Output.DecayChart} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}

	run := res.Run()
	require.NoError(t, run.Validate())
	assert.Equal(t, "2009", run.ReferenceCohort)
	assert.Len(t, run.Cohorts, 2)
	assert.Equal(t, 30, run.Cohorts[1].Size)
}

func TestRunFailures(t *testing.T) {
	tests := []struct {
		name       string
		reporting  string
		membership string
		mutate     func(cfg *config.Config)
		wantErr    error
	}{
		{
			name:       "unknown cohort",
			reporting:  reportingTSV,
			membership: `{"March 2009": 4, "December 2021": 7}`,
			wantErr:    analysis.ErrUnknownCohort,
		},
		{
			name:       "missing reference cohort",
			reporting:  reportingTSV,
			membership: membershipJSON,
			mutate:     func(cfg *config.Config) { cfg.Cohorts.ReferenceCohort = "2001" },
			wantErr:    analysis.ErrMissingReferenceCohort,
		},
		{
			name:       "zero fraction",
			reporting:  "Cohort\t0\t1\n2009\t0.0\t0.5\n",
			membership: membershipJSON,
			wantErr:    analysis.ErrZeroFraction,
		},
		{
			name:       "nothing past cutoff",
			reporting:  "Cohort\t0\t1\n2009\t0.9\t0.5\n",
			membership: membershipJSON,
			wantErr:    analysis.ErrEmptyWeight,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := writeInputs(t, tt.reporting, tt.membership)
			if tt.mutate != nil {
				tt.mutate(cfg)
			}

			_, err := New(cfg).Run(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestRunExcludesUnknownCohort(t *testing.T) {
	cfg := writeInputs(t, reportingTSV, `{"March 2009": 4, "December 2021": 7}`)
	cfg.Cohorts.UnknownPolicy = config.UnknownCohortExclude

	var buf bytes.Buffer
	logger.InitWriter(&buf, "warn", "json")
	t.Cleanup(func() { logger.InitWriter(io.Discard, "error", "json") })

	res, err := New(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Weights["2015"])
	assert.Equal(t, []float64{4, 4, 4, 4, 4, 4}, res.Curve.Weights)

	// Sizes are resolved once per run
	assert.Equal(t, 1, strings.Count(buf.String(), "Excluding cohorts without a size entry"))
}

func TestRunMissingInput(t *testing.T) {
	cfg := writeInputs(t, reportingTSV, membershipJSON)
	cfg.Inputs.MembershipPath = filepath.Join(t.TempDir(), "missing.json")

	_, err := New(cfg).Run(context.Background())
	assert.Error(t, err)
}

func TestRunCancelled(t *testing.T) {
	cfg := writeInputs(t, reportingTSV, membershipJSON)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(cfg).Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	_, statErr := os.Stat(cfg.Output.ReportingChart)
	assert.True(t, os.IsNotExist(statErr))
}
