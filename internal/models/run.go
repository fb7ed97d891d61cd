package models

import (
	"errors"
	"time"
)

// CohortDecay is one cohort's decay series together with the size it was weighted by.
type CohortDecay struct {
	Cohort string    `json:"cohort"`
	Size   int       `json:"size"`
	Decay  []float64 `json:"decay"`
}

// Run summarizes one analysis invocation
type Run struct {
	ID              string             `json:"id"`
	CreatedAt       time.Time          `json:"created_at"`
	ReferenceCohort string             `json:"reference_cohort"`
	CutoffIndex     int                `json:"cutoff_index"`
	CutoffDecay     float64            `json:"cutoff_decay"`
	Curve           WeightedDecayCurve `json:"curve"`
	Cohorts         []CohortDecay      `json:"cohorts"`
}

// Validate checks that all run fields are valid
func (r *Run) Validate() error {
	if r.ID == "" {
		return errors.New("run ID must not be empty")
	}
	if r.ReferenceCohort == "" {
		return errors.New("reference cohort must not be empty")
	}
	if r.CutoffIndex < 0 {
		return errors.New("cutoff index must not be negative")
	}
	if r.CreatedAt.IsZero() {
		return errors.New("created at must be set")
	}
	if r.CreatedAt.After(time.Now()) {
		return errors.New("created at must not be in the future")
	}
	if err := r.Curve.Validate(); err != nil {
		return err
	}
	for _, c := range r.Cohorts {
		if c.Cohort == "" {
			return errors.New("cohort label must not be empty")
		}
		if c.Size < 0 {
			return errors.New("cohort size must not be negative")
		}
	}
	return nil
}
