package rank_test

import (
	"reflect"
	"testing"

	"phenodx/domain/core"
	"phenodx/domain/rank"
	"phenodx/internal/testkit"
)

func TestRank_EmptyPatientTermsReturnsEmptySlice(t *testing.T) {
	r := rank.NewRanker(testkit.Snapshot())

	got := r.Rank(nil, nil)
	if got == nil || len(got) != 0 {
		t.Errorf("Rank(nil) = %v, want empty non-nil slice", got)
	}
}

func TestRank_DenseRanksAndScoreOrder(t *testing.T) {
	r := rank.NewRanker(testkit.Snapshot())

	got := r.Rank([]core.TermID{"HP:0001250", "HP:0001263"}, nil)
	if len(got) == 0 {
		t.Fatal("expected candidates")
	}
	for i, c := range got {
		if c.Rank != i+1 {
			t.Errorf("candidate %d rank = %d, want %d", i, c.Rank, i+1)
		}
		if i > 0 && got[i-1].SimScore < c.SimScore {
			t.Errorf("scores not descending at %d: %f < %f", i, got[i-1].SimScore, c.SimScore)
		}
		if c.SimScore < 0 {
			t.Errorf("negative score %f", c.SimScore)
		}
	}
	if got[0].DiseaseID != "OMIM:100100" {
		t.Errorf("top candidate = %s, want the seizure+delay disease", got[0].DiseaseID)
	}
}

func TestRank_SetAlgebraAndCoverage(t *testing.T) {
	r := rank.NewRanker(testkit.Snapshot())

	got := r.Rank([]core.TermID{"HP:0001250", "HP:0001943"}, nil)

	var metabolic *rank.DiseaseCandidate
	for i := range got {
		if got[i].DiseaseID == "ORPHA:200300" {
			metabolic = &got[i]
		}
	}
	if metabolic == nil {
		t.Fatal("metabolic fixture disease not ranked")
	}

	// Disease terms: seizure, hypoglycemia, hypotonia. Patient: seizure, hypoglycemia.
	if want := []core.TermID{"HP:0001250", "HP:0001943"}; !reflect.DeepEqual(metabolic.MatchedTerms, want) {
		t.Errorf("matched = %v, want %v", metabolic.MatchedTerms, want)
	}
	if want := []core.TermID{"HP:0001252"}; !reflect.DeepEqual(metabolic.MissingTerms, want) {
		t.Errorf("missing = %v, want %v", metabolic.MissingTerms, want)
	}
	if len(metabolic.ExtraTerms) != 0 {
		t.Errorf("extra = %v, want none", metabolic.ExtraTerms)
	}
	if metabolic.Coverage < 0.6665 || metabolic.Coverage > 0.6667 {
		t.Errorf("coverage = %f, want 2/3", metabolic.Coverage)
	}
}

func TestRank_CoverageStaysInUnitInterval(t *testing.T) {
	r := rank.NewRanker(testkit.Snapshot())

	got := r.Rank([]core.TermID{"HP:0001250", "HP:0001631", "HP:0001943"}, nil)
	for _, c := range got {
		if c.Coverage < 0 || c.Coverage > 1 {
			t.Errorf("%s coverage %f out of [0,1]", c.DiseaseID, c.Coverage)
		}
	}
}

func TestRank_ExclusionPenaltyHalvesScore(t *testing.T) {
	r := rank.NewRanker(testkit.Snapshot())
	patient := []core.TermID{"HP:0001250", "HP:0001943"}

	baseline := r.Rank(patient, nil)
	penalized := r.Rank(patient, []core.TermID{"HP:0001252"})

	find := func(cands []rank.DiseaseCandidate, id core.DiseaseID) *rank.DiseaseCandidate {
		for i := range cands {
			if cands[i].DiseaseID == id {
				return &cands[i]
			}
		}
		return nil
	}

	// Hypotonia is a direct term of the metabolic fixture disease only.
	before := find(baseline, "ORPHA:200300")
	after := find(penalized, "ORPHA:200300")
	if before == nil || after == nil {
		t.Fatal("metabolic fixture disease not ranked")
	}
	if !after.ExcludedPenalty {
		t.Error("penalty flag not set")
	}
	if want := before.SimScore / 2; after.SimScore < want-0.0001 || after.SimScore > want+0.0001 {
		t.Errorf("penalized score = %f, want %f", after.SimScore, want)
	}

	// The candidate is penalized, never removed.
	if len(penalized) != len(baseline) {
		t.Errorf("candidate count changed under exclusion: %d vs %d", len(penalized), len(baseline))
	}

	// Untouched disease keeps its score and flag.
	other := find(penalized, "OMIM:100100")
	if other == nil || other.ExcludedPenalty {
		t.Error("exclusion leaked onto a disease without the excluded term")
	}
}

func TestRank_Idempotent(t *testing.T) {
	r := rank.NewRanker(testkit.Snapshot())
	patient := []core.TermID{"HP:0001250", "HP:0001252"}
	excluded := []core.TermID{"HP:0001943"}

	first := r.Rank(patient, excluded)
	second := r.Rank(patient, excluded)
	if !reflect.DeepEqual(first, second) {
		t.Error("Rank is not deterministic for identical inputs")
	}
}
