package eval

import (
	"fmt"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"phenodx/domain/rank"
)

// CaseResult records where one case's expected disease landed.
type CaseResult struct {
	CaseID          string `json:"case_id"`
	ExpectedDisease string `json:"expected_disease_id"`
	// Rank of the expected disease, 0 when it is absent from the candidates.
	Rank           int     `json:"rank"`
	ReciprocalRank float64 `json:"reciprocal_rank"`
	TopScore       float64 `json:"top_score"`
}

// Summary aggregates a benchmark run.
type Summary struct {
	Total       int             `json:"total"`
	AccuracyAtK map[int]float64 `json:"accuracy_at_k"`
	MRR         float64         `json:"mrr"`
	MeanRank    float64         `json:"mean_rank"`
	MedianRank  float64         `json:"median_rank"`
	// RankStdDev spreads of the found ranks; 0 when fewer than two hits.
	RankStdDev float64      `json:"rank_std_dev"`
	Results    []CaseResult `json:"results"`
}

// Evaluate ranks every case and computes accuracy@k for each requested k,
// mean reciprocal rank, and rank distribution statistics over the cases
// where the expected disease was found at all.
func Evaluate(ranker *rank.Ranker, cases []GoldCase, ks []int) (*Summary, error) {
	if len(cases) == 0 {
		return nil, fmt.Errorf("no gold cases to evaluate")
	}
	if len(ks) == 0 {
		ks = []int{1, 3, 5}
	}

	summary := &Summary{
		Total:       len(cases),
		AccuracyAtK: make(map[int]float64, len(ks)),
	}
	hits := make(map[int]int, len(ks))
	var foundRanks []float64
	var reciprocal float64

	for _, gc := range cases {
		candidates := ranker.Rank(gc.Terms, nil)

		result := CaseResult{CaseID: gc.ID, ExpectedDisease: string(gc.ExpectedDisease)}
		if len(candidates) > 0 {
			result.TopScore = candidates[0].SimScore
		}
		for _, dc := range candidates {
			if dc.DiseaseID == gc.ExpectedDisease {
				result.Rank = dc.Rank
				result.ReciprocalRank = 1 / float64(dc.Rank)
				break
			}
		}

		if result.Rank > 0 {
			foundRanks = append(foundRanks, float64(result.Rank))
			reciprocal += result.ReciprocalRank
			for _, k := range ks {
				if result.Rank <= k {
					hits[k]++
				}
			}
		}
		summary.Results = append(summary.Results, result)
	}

	for _, k := range ks {
		summary.AccuracyAtK[k] = float64(hits[k]) / float64(len(cases))
	}
	summary.MRR = reciprocal / float64(len(cases))

	if len(foundRanks) > 0 {
		mean, err := stats.Mean(foundRanks)
		if err != nil {
			return nil, fmt.Errorf("rank mean: %w", err)
		}
		median, err := stats.Median(foundRanks)
		if err != nil {
			return nil, fmt.Errorf("rank median: %w", err)
		}
		summary.MeanRank = mean
		summary.MedianRank = median
	}
	if len(foundRanks) > 1 {
		summary.RankStdDev = stat.StdDev(foundRanks, nil)
	}
	return summary, nil
}
