package app

import "math"

// Completeness weights. They sum to 1.0; the score is a coarse prompt for
// the clinician about what evidence is still missing, not a probability.
const (
	weightTerms         = 0.30
	weightTiming        = 0.20
	weightExclusions    = 0.15
	weightPriorTests    = 0.20
	weightFamilyHistory = 0.15
)

// computeCompleteness scores how much of the expected evidence the run
// gathered. A single resolved term earns half the term weight, two or more
// the full weight; timing credit scales with per-term coverage. Input with
// no evidence at all scores exactly 0.
func computeCompleteness(state *PipelineState) float64 {
	terms := len(state.ResolvedTermIDs())

	var score float64
	switch {
	case terms >= 2:
		score += weightTerms
	case terms == 1:
		score += weightTerms * 0.5
	}

	if terms > 0 && len(state.TimingProfiles) > 0 {
		coverage := float64(len(state.TimingProfiles)) / float64(terms)
		if coverage > 1 {
			coverage = 1
		}
		score += weightTiming * coverage
	}

	if len(state.Exclusions) > 0 {
		score += weightExclusions
	}
	if len(state.Input.PriorTests) > 0 {
		score += weightPriorTests
	}
	if state.Input.FamilyHistory != "" {
		score += weightFamilyHistory
	}

	return math.Round(score*10000) / 10000
}
