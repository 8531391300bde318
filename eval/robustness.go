package eval

import (
	"phenodx/domain/core"
	"phenodx/domain/rank"
)

// Robustness reports how the ranking holds up under single-term ablation:
// each case is re-ranked once per dropped term, and a perturbation counts as
// retained when the expected disease stays inside the top k.
type Robustness struct {
	K             int     `json:"k"`
	Cases         int     `json:"cases"`
	Perturbations int     `json:"perturbations"`
	Retained      int     `json:"retained"`
	RetentionRate float64 `json:"retention_rate"`
}

// Ablate runs the drop-one-term sweep. Cases with a single term are skipped
// because removing it leaves nothing to rank.
func Ablate(ranker *rank.Ranker, cases []GoldCase, k int) *Robustness {
	if k <= 0 {
		k = 5
	}
	out := &Robustness{K: k}

	for _, gc := range cases {
		if len(gc.Terms) < 2 {
			continue
		}
		out.Cases++
		for drop := range gc.Terms {
			out.Perturbations++
			if expectedInTopK(ranker, gc, drop, k) {
				out.Retained++
			}
		}
	}

	if out.Perturbations > 0 {
		out.RetentionRate = float64(out.Retained) / float64(out.Perturbations)
	}
	return out
}

func expectedInTopK(ranker *rank.Ranker, gc GoldCase, drop, k int) bool {
	terms := make([]core.TermID, 0, len(gc.Terms)-1)
	for i, id := range gc.Terms {
		if i != drop {
			terms = append(terms, id)
		}
	}
	for _, dc := range ranker.Rank(terms, nil) {
		if dc.DiseaseID == gc.ExpectedDisease && dc.Rank <= k {
			return true
		}
	}
	return false
}
