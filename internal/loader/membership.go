package loader

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rewired-gh/cohortdecay/internal/config"
	"github.com/rewired-gh/cohortdecay/internal/logger"
	"github.com/rewired-gh/cohortdecay/internal/models"
)

// Corrections maps a mislabeled "Month Year" key to its corrected label.
// An empty corrected label drops the record.
type Corrections map[string]string

// Apply returns the corrected label and whether the record should be kept
func (c Corrections) Apply(label string) (string, bool) {
	corrected, ok := c[label]
	if !ok {
		corrected = label
	}
	return corrected, corrected != ""
}

// ParseMembership reads membership counts and sums them per cohort year
func ParseMembership(r io.Reader, corrections Corrections) (models.CohortSizes, error) {
	var raw map[string]int
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode membership counts: %w", err)
	}

	sizes := make(models.CohortSizes)
	for label, count := range raw {
		if count < 0 {
			return nil, fmt.Errorf("negative member count %d for %q", count, label)
		}

		corrected, keep := corrections.Apply(label)
		if !keep {
			logger.Debug("Dropping membership record %q (%d members)", label, count)
			continue
		}
		if corrected != label {
			logger.Debug("Corrected membership label %q to %q", label, corrected)
		}

		fields := strings.Fields(corrected)
		if len(fields) != 2 {
			return nil, fmt.Errorf("membership label %q is not of the form \"Month Year\"", corrected)
		}
		year := fields[1]
		sizes[year] += count
	}

	return sizes, nil
}

// LoadMembership reads the membership counts at path
func LoadMembership(path string, corrections Corrections) (models.CohortSizes, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open membership counts: %w", err)
	}
	defer f.Close()

	sizes, err := ParseMembership(f, corrections)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.Debug("Loaded %d cohort sizes from %s", len(sizes), path)
	return sizes, nil
}

// correctionsFile is the YAML layout of a label correction file
type correctionsFile struct {
	Corrections []config.LabelCorrection `yaml:"label_corrections"`
}

// ParseCorrections reads a YAML list of label corrections
func ParseCorrections(r io.Reader) (Corrections, error) {
	var file correctionsFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode label corrections: %w", err)
	}

	table := make(Corrections, len(file.Corrections))
	for _, lc := range file.Corrections {
		if lc.From == "" {
			return nil, fmt.Errorf("label correction to %q has an empty from", lc.To)
		}
		table[lc.From] = lc.To
	}
	return table, nil
}

// BuildCorrections merges the inline corrections with the optional correction
// file. File entries win over inline ones.
func BuildCorrections(cfg config.CohortsConfig) (Corrections, error) {
	table := Corrections(cfg.Corrections())
	if cfg.LabelCorrectionsFile == "" {
		return table, nil
	}

	f, err := os.Open(cfg.LabelCorrectionsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open label corrections: %w", err)
	}
	defer f.Close()

	fromFile, err := ParseCorrections(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.LabelCorrectionsFile, err)
	}
	for from, to := range fromFile {
		table[from] = to
	}
	logger.Debug("Loaded %d label corrections from %s", len(fromFile), cfg.LabelCorrectionsFile)
	return table, nil
}
