// Package loader reads the two cohort sources and aligns their keys.
//
// The reporting table is a tab-separated file keyed by cohort year. Membership
// counts are a JSON object keyed by "Month Year"; known mislabeled keys are
// rewritten through a correction table before the counts are summed per year.
package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rewired-gh/cohortdecay/internal/logger"
	"github.com/rewired-gh/cohortdecay/internal/models"
)

// headerPrefix marks the header row of the reporting table
const headerPrefix = "Cohort"

// ParseReporting reads a reporting-fraction table.
// Empty cells mean "no data past this point" and are dropped.
func ParseReporting(r io.Reader) (*models.ReportingTable, error) {
	table := models.NewReportingTable()

	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read reporting table: %w", err)
		}
		lineNo, _ := reader.FieldPos(0)

		if strings.HasPrefix(record[0], headerPrefix) {
			continue
		}
		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}

		cohort, cells := record[0], record[1:]

		fractions := make([]float64, 0, len(cells))
		for i, cell := range cells {
			if cell == "" {
				continue
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: malformed fraction %q: %w", lineNo, i+2, cell, err)
			}
			fractions = append(fractions, f)
		}

		if _, exists := table.Get(cohort); exists {
			logger.Warn("Cohort %s appears more than once, keeping line %d", cohort, lineNo)
		}
		table.Set(cohort, fractions)
	}

	return table, nil
}

// LoadReporting reads the reporting table at path
func LoadReporting(path string) (*models.ReportingTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open reporting table: %w", err)
	}
	defer f.Close()

	table, err := ParseReporting(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logger.Debug("Loaded %d cohorts from %s", table.Len(), path)
	return table, nil
}
