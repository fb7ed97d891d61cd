package models

import (
	"errors"
	"sort"
)

// ReportingTable maps a cohort year to its reporting fractions, one per
// pledge-year index. Cohorts keep the order in which they were first added.
type ReportingTable struct {
	order     []string
	fractions map[string][]float64
}

// NewReportingTable creates an empty ReportingTable
func NewReportingTable() *ReportingTable {
	return &ReportingTable{fractions: make(map[string][]float64)}
}

// Set stores the fractions for a cohort, replacing any earlier series.
func (t *ReportingTable) Set(cohort string, fractions []float64) {
	if _, exists := t.fractions[cohort]; !exists {
		t.order = append(t.order, cohort)
	}
	t.fractions[cohort] = fractions
}

// Get returns the fractions for a cohort
func (t *ReportingTable) Get(cohort string) ([]float64, bool) {
	f, ok := t.fractions[cohort]
	return f, ok
}

// Cohorts returns cohort labels in insertion order
func (t *ReportingTable) Cohorts() []string {
	return append([]string(nil), t.order...)
}

// Len returns the number of cohorts
func (t *ReportingTable) Len() int {
	return len(t.order)
}

// Validate checks that every fraction lies in [0, 1]
func (t *ReportingTable) Validate() error {
	for _, cohort := range t.order {
		if cohort == "" {
			return errors.New("cohort label must not be empty")
		}
		for _, f := range t.fractions[cohort] {
			if f < 0.0 || f > 1.0 {
				return errors.New("reporting fraction must be between 0.0 and 1.0 for cohort " + cohort)
			}
		}
	}
	return nil
}

// CohortSizes maps a cohort year to the number of members who pledged that year.
type CohortSizes map[string]int

// Lookup returns the size of a cohort and whether it is known at all.
func (s CohortSizes) Lookup(cohort string) (int, bool) {
	n, ok := s[cohort]
	return n, ok
}

// Max returns the largest cohort size, or 0 when empty
func (s CohortSizes) Max() int {
	biggest := 0
	for _, n := range s {
		if n > biggest {
			biggest = n
		}
	}
	return biggest
}

// Years returns the cohort years in ascending order
func (s CohortSizes) Years() []string {
	years := make([]string, 0, len(s))
	for y := range s {
		years = append(years, y)
	}
	sort.Strings(years)
	return years
}

// DecayTable maps a cohort year to its year-over-year decay ratios.
// decay[i] is the fractional drop in reporting between pledge-year i and i+1.
type DecayTable struct {
	order []string
	decay map[string][]float64
}

// NewDecayTable creates an empty DecayTable
func NewDecayTable() *DecayTable {
	return &DecayTable{decay: make(map[string][]float64)}
}

// Set stores the decay series for a cohort
func (t *DecayTable) Set(cohort string, decay []float64) {
	if _, exists := t.decay[cohort]; !exists {
		t.order = append(t.order, cohort)
	}
	t.decay[cohort] = decay
}

// Get returns the decay series for a cohort
func (t *DecayTable) Get(cohort string) ([]float64, bool) {
	d, ok := t.decay[cohort]
	return d, ok
}

// Cohorts returns cohort labels in insertion order
func (t *DecayTable) Cohorts() []string {
	return append([]string(nil), t.order...)
}

// Len returns the number of cohorts
func (t *DecayTable) Len() int {
	return len(t.order)
}

// WeightedDecayCurve is the cohort-size-weighted average decay per pledge-year
// index. Weights[i] is the total cohort size that contributed to Values[i].
type WeightedDecayCurve struct {
	Values  []float64 `json:"values"`
	Weights []float64 `json:"weights"`
}

// MaxWeight returns the largest per-index weight sum
func (c *WeightedDecayCurve) MaxWeight() float64 {
	biggest := 0.0
	for _, w := range c.Weights {
		if w > biggest {
			biggest = w
		}
	}
	return biggest
}

// Validate checks that values and weights line up
func (c *WeightedDecayCurve) Validate() error {
	if len(c.Values) != len(c.Weights) {
		return errors.New("weighted curve values and weights must have the same length")
	}
	for _, w := range c.Weights {
		if w <= 0 {
			return errors.New("weighted curve weights must be positive")
		}
	}
	return nil
}
