// Package eval benchmarks the ranking engine against gold diagnosis cases
// and reports retrieval metrics.
package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"phenodx/domain/core"
)

// GoldCase is one benchmark patient with a known diagnosis.
type GoldCase struct {
	ID              string         `json:"case_id"`
	Age             int            `json:"age,omitempty"`
	Sex             string         `json:"sex,omitempty"`
	Terms           []core.TermID  `json:"hpo_terms"`
	ExpectedDisease core.DiseaseID `json:"expected_disease_id"`
	ExpectedName    string         `json:"expected_disease_name,omitempty"`
}

// LoadCasesJSON reads a gold-case array from a JSON file.
func LoadCasesJSON(path string) ([]GoldCase, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gold cases: %w", err)
	}
	var cases []GoldCase
	if err := json.Unmarshal(raw, &cases); err != nil {
		return nil, fmt.Errorf("parse gold cases: %w", err)
	}
	return validateCases(cases)
}

// Workbook column layout for spreadsheet-curated case sets. The first row
// is a header and is skipped; term lists are semicolon separated.
const (
	colCaseID = iota
	colTerms
	colExpectedID
	colExpectedName
	colAge
	colSex
)

// LoadCasesXLSX reads gold cases from the first sheet of a workbook.
func LoadCasesXLSX(path string) ([]GoldCase, error) {
	book, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	var cases []GoldCase
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		gc := GoldCase{ID: cell(row, colCaseID)}
		for _, part := range strings.Split(cell(row, colTerms), ";") {
			part = strings.TrimSpace(part)
			if part != "" {
				gc.Terms = append(gc.Terms, core.TermID(part))
			}
		}
		gc.ExpectedDisease = core.DiseaseID(cell(row, colExpectedID))
		gc.ExpectedName = cell(row, colExpectedName)
		if age := cell(row, colAge); age != "" {
			if n, err := strconv.Atoi(age); err == nil {
				gc.Age = n
			}
		}
		gc.Sex = cell(row, colSex)
		cases = append(cases, gc)
	}
	return validateCases(cases)
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func validateCases(cases []GoldCase) ([]GoldCase, error) {
	for i, gc := range cases {
		if gc.ID == "" {
			return nil, fmt.Errorf("case %d has no id", i)
		}
		if len(gc.Terms) == 0 {
			return nil, fmt.Errorf("case %s has no terms", gc.ID)
		}
		if gc.ExpectedDisease == "" {
			return nil, fmt.Errorf("case %s has no expected disease", gc.ID)
		}
		for _, id := range gc.Terms {
			if !core.IsTermCode(string(id)) {
				return nil, fmt.Errorf("case %s has malformed term %q", gc.ID, id)
			}
		}
	}
	return cases, nil
}
