// Package app orchestrates one analysis run: safety gating, term
// resolution, ranking, extraction, enrichment, and final reasoning with a
// deterministic degraded fallback.
package app

import (
	"phenodx/domain/core"
	"phenodx/domain/exclusion"
	"phenodx/domain/match"
	"phenodx/domain/ontology"
	"phenodx/domain/rank"
	"phenodx/domain/redflag"
	"phenodx/domain/report"
	"phenodx/domain/timing"
)

// Capabilities records which external collaborators are live. Decided once
// at startup; the orchestrator branches on these flags instead of catching
// unavailability errors per call.
type Capabilities struct {
	Generation bool
	Sessions   bool
}

// PipelineState is the single mutable accumulator for one run. Each field
// is written by exactly one step, in step order; the state is owned by one
// invocation and never shared.
type PipelineState struct {
	SessionID core.SessionID
	Input     report.PatientInput

	Matches        []match.TermMatch
	Exclusions     []exclusion.ExcludedFinding
	TimingProfiles []timing.Profile
	Candidates     []rank.DiseaseCandidate
	Profiles       []*ontology.EnrichmentProfile
	Flags          []redflag.Flag
	Completeness   float64

	AuditLog      []report.ToolCallRecord
	StepDurations []report.StepDuration
}

// ResolvedTermIDs returns the distinct non-empty term ids from the match
// list, in first-seen order.
func (s *PipelineState) ResolvedTermIDs() []core.TermID {
	seen := make(map[core.TermID]bool, len(s.Matches))
	var ids []core.TermID
	for _, m := range s.Matches {
		if m.Resolved() && !seen[m.TermID] {
			seen[m.TermID] = true
			ids = append(ids, m.TermID)
		}
	}
	return ids
}

// ResolvedLabels returns the labels of the resolved matches, in order.
func (s *PipelineState) ResolvedLabels() []string {
	var labels []string
	for _, m := range s.Matches {
		if m.Resolved() {
			labels = append(labels, m.Label)
		}
	}
	return labels
}
