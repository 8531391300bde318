// Package rank scores disease profiles against a patient term set using
// information-content-weighted ancestor overlap.
package rank

import (
	"math"
	"sort"

	"phenodx/domain/core"
	"phenodx/domain/ontology"
)

// TopCandidates is the fixed size of a ranking pass result.
const TopCandidates = 15

// exclusionPenalty halves the score of a candidate whose direct terms
// intersect the excluded set. Soft by design: one negated finding must not
// disqualify an otherwise strong match.
const exclusionPenalty = 0.5

// DiseaseCandidate is one ranked differential entry with the set algebra
// that explains the score.
type DiseaseCandidate struct {
	Rank        int            `json:"rank"`
	DiseaseID   core.DiseaseID `json:"disease_id"`
	DiseaseName string         `json:"disease_name"`
	SimScore    float64        `json:"sim_score"`
	// Matched/Missing/Extra compare the patient's verbatim terms against the
	// disease's directly-annotated terms.
	MatchedTerms    []core.TermID `json:"matched_terms"`
	MissingTerms    []core.TermID `json:"missing_terms"`
	ExtraTerms      []core.TermID `json:"extra_terms"`
	Coverage        float64       `json:"coverage_pct"`
	ExcludedPenalty bool          `json:"excluded_penalty"`
}

// Ranker ranks every disease in the snapshot. Stateless apart from the
// read-only snapshot, so one instance serves all concurrent requests.
type Ranker struct {
	snap *ontology.Snapshot
}

// NewRanker builds a ranker over the snapshot.
func NewRanker(snap *ontology.Snapshot) *Ranker {
	return &Ranker{snap: snap}
}

// Rank scores all disease profiles against patientTerms and returns the top
// candidates sorted by score descending with dense 1-based ranks. Ties keep
// the snapshot's disease load order, so identical inputs always produce
// identical output. Empty patient input yields an empty slice, not an error.
func (r *Ranker) Rank(patientTerms []core.TermID, excludedTerms []core.TermID) []DiseaseCandidate {
	if len(patientTerms) == 0 {
		return []DiseaseCandidate{}
	}

	patientClosure := ontology.ClosureOf(r.snap, patientTerms)
	patientSet := ontology.NewTermSet(patientTerms...)
	excludedSet := ontology.NewTermSet(excludedTerms...)

	candidates := make([]DiseaseCandidate, 0, len(r.snap.DiseaseOrder))
	for _, diseaseID := range r.snap.DiseaseOrder {
		disease := r.snap.Diseases[diseaseID]

		score := 0.0
		for id := range patientClosure.Intersect(disease.Closure) {
			score += r.snap.IC(id)
		}

		matched := patientSet.Intersect(disease.Terms)
		missing := disease.Terms.Diff(patientSet)
		extra := patientSet.Diff(disease.Terms)

		coverage := 0.0
		if len(disease.Terms) > 0 {
			coverage = float64(len(matched)) / float64(len(disease.Terms))
		}

		penalized := false
		if len(excludedSet) > 0 && excludedSet.Intersects(disease.Terms) {
			penalized = true
			score *= exclusionPenalty
		}

		candidates = append(candidates, DiseaseCandidate{
			DiseaseID:       disease.ID,
			DiseaseName:     disease.Name,
			SimScore:        round4(score),
			MatchedTerms:    sortedIDs(matched),
			MissingTerms:    sortedIDs(missing),
			ExtraTerms:      sortedIDs(extra),
			Coverage:        round4(coverage),
			ExcludedPenalty: penalized,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].SimScore > candidates[j].SimScore
	})
	if len(candidates) > TopCandidates {
		candidates = candidates[:TopCandidates]
	}
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
	return candidates
}

func sortedIDs(s ontology.TermSet) []core.TermID {
	out := make([]core.TermID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
