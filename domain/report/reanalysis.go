package report

import (
	"fmt"
	"strings"
	"time"
)

// Reanalysis scoring weights. Individually modest so a recommendation needs
// converging evidence.
const (
	reanalysisNegativeGenetic = 0.4
	reanalysisStaleTest       = 0.3
	reanalysisGeneticLead     = 0.3

	reanalysisStaleYears = 2
)

// EvaluateReanalysis scores whether prior genetic data warrants reanalysis.
// Deterministic: negative or inconclusive genetic tests, tests older than the
// staleness window, and a current differential that still points at a genetic
// diagnosis each add weight.
func EvaluateReanalysis(priorTests []PriorTest, differential []DifferentialEntry, now time.Time) *ReanalysisResult {
	if len(priorTests) == 0 {
		return &ReanalysisResult{
			Score:          0,
			Recommendation: "No prior testing on record; reanalysis not applicable",
		}
	}

	var score float64
	var reasons []ReanalysisReason

	for _, test := range priorTests {
		if !isGeneticTest(test) {
			continue
		}
		if isNonDiagnostic(test.Result) {
			score += reanalysisNegativeGenetic
			reasons = append(reasons, ReanalysisReason{
				ReasonType: "negative_genetic_test",
				Detail:     fmt.Sprintf("%s was %s; variant interpretation may have advanced since", testName(test), strings.ToLower(test.Result)),
				Source:     testName(test),
			})
		}
		if test.Year > 0 && now.Year()-test.Year >= reanalysisStaleYears {
			score += reanalysisStaleTest
			reasons = append(reasons, ReanalysisReason{
				ReasonType: "stale_test",
				Detail:     fmt.Sprintf("%s performed in %d, over %d years ago", testName(test), test.Year, reanalysisStaleYears),
				Source:     testName(test),
			})
		}
	}

	if len(reasons) > 0 && len(differential) > 0 {
		score += reanalysisGeneticLead
		reasons = append(reasons, ReanalysisReason{
			ReasonType: "active_genetic_lead",
			Detail:     fmt.Sprintf("current differential leads with %s", differential[0].Disease),
			Source:     differential[0].DiseaseID,
		})
	}

	if score > 1 {
		score = 1
	}

	var recommendation string
	switch {
	case score >= 0.7:
		recommendation = "Reanalysis of prior genetic data recommended"
	case score >= 0.4:
		recommendation = "Consider reanalysis of prior genetic data"
	default:
		recommendation = "Reanalysis not indicated at this time"
	}

	return &ReanalysisResult{Score: score, Recommendation: recommendation, Reasons: reasons}
}

func isGeneticTest(t PriorTest) bool {
	s := strings.ToLower(t.TestType + " " + t.Name)
	for _, kw := range []string{"exome", "genome", "panel", "genetic", "wes", "wgs", "microarray", "karyotype"} {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func isNonDiagnostic(result string) bool {
	s := strings.ToLower(result)
	for _, kw := range []string{"negative", "inconclusive", "normal", "vus", "non-diagnostic", "nondiagnostic"} {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func testName(t PriorTest) string {
	if t.Name != "" {
		return t.Name
	}
	return t.TestType
}
