package app

import (
	"fmt"

	"phenodx/domain/rank"
	"phenodx/domain/report"
)

// degradedTopN caps the fallback differential length.
const degradedTopN = 5

// degradedReasoning builds the deterministic fallback assessment used when
// the reasoning call fails or generation is disabled: the top-ranked
// candidates at low confidence plus one step asking for phenotype
// refinement. Same shape as a reasoned output, so downstream rendering never
// branches.
func degradedReasoning(candidates []rank.DiseaseCandidate) (differential []report.DifferentialEntry, steps []report.NextStep, uncertainty report.UncertaintySummary) {
	top := candidates
	if len(top) > degradedTopN {
		top = top[:degradedTopN]
	}

	differential = make([]report.DifferentialEntry, 0, len(top))
	for _, dc := range top {
		differential = append(differential, report.DifferentialEntry{
			Disease:             dc.DiseaseName,
			DiseaseID:           string(dc.DiseaseID),
			Confidence:          "low",
			ConfidenceReasoning: fmt.Sprintf("Ranked by ontology similarity only (score %.4f); reasoning service was unavailable", dc.SimScore),
		})
	}

	steps = []report.NextStep{{
		Rank:           1,
		ActionType:     report.ActionRefinePhenotype,
		Action:         "Review and refine the phenotype list, then rerun the analysis",
		Rationale:      "The reasoning service was unavailable; this differential reflects similarity ranking alone",
		Urgency:        "routine",
		EvidenceSource: "similarity_ranking",
	}}

	uncertainty = report.UncertaintySummary{
		Missing: []string{"Model-graded confidence and step planning were unavailable for this run"},
	}
	return differential, steps, uncertainty
}
