// Package match resolves free-text phenotype fragments and verbatim term
// codes against the ontology snapshot's synonym index.
package match

import (
	"sort"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"phenodx/domain/core"
	"phenodx/domain/ontology"
)

// Confidence tiers for resolved matches.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Default similarity cutoffs. Fuzzy candidates below Floor are rejected;
// candidates at or above HighTier are reported as high confidence.
const (
	DefaultFloor    = 0.75
	DefaultHighTier = 0.85
)

// TermMatch is one resolution result. TermID is empty when the input could
// not be resolved; unresolved matches are kept for audit.
type TermMatch struct {
	TermID     core.TermID   `json:"hpo_id"`
	Label      string        `json:"label"`
	Definition string        `json:"definition,omitempty"`
	IC         float64       `json:"ic_score"`
	Parents    []core.TermID `json:"parents,omitempty"`
	Confidence Confidence    `json:"match_confidence"`
	RawInput   string        `json:"raw_input"`
}

// Resolved reports whether the match carries a known term id.
func (m TermMatch) Resolved() bool { return m.TermID != "" }

// Resolver maps raw inputs to ontology terms: verbatim code, then exact
// synonym, then fuzzy synonym. Purely deterministic over one snapshot.
type Resolver struct {
	snap     *ontology.Snapshot
	floor    float64
	highTier float64
	metric   *metrics.Levenshtein
	// synonym keys in sorted order so fuzzy ties resolve deterministically
	synKeys []string
}

// NewResolver builds a resolver over the snapshot with default cutoffs.
func NewResolver(snap *ontology.Snapshot) *Resolver {
	keys := make([]string, 0, len(snap.Synonyms))
	for k := range snap.Synonyms {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	m := metrics.NewLevenshtein()
	m.CaseSensitive = false

	return &Resolver{
		snap:     snap,
		floor:    DefaultFloor,
		highTier: DefaultHighTier,
		metric:   m,
		synKeys:  keys,
	}
}

// Resolve maps each raw input to a TermMatch, one result per input, in input
// order. Unresolvable inputs yield an empty-id low-confidence match.
func (r *Resolver) Resolve(raws []string) []TermMatch {
	results := make([]TermMatch, 0, len(raws))
	for _, raw := range raws {
		results = append(results, r.resolveOne(raw))
	}
	return results
}

func (r *Resolver) resolveOne(raw string) TermMatch {
	trimmed := strings.TrimSpace(raw)
	normalized := strings.ToLower(trimmed)

	// Verbatim term code, e.g. "HP:0001250".
	if core.IsTermCode(trimmed) {
		id := core.TermID(trimmed)
		if term, ok := r.snap.Terms[id]; ok {
			return r.matchFor(term, ConfidenceHigh, raw)
		}
		// Well-formed but absent from the index: kept for audit only.
		return TermMatch{Confidence: ConfidenceLow, RawInput: raw}
	}

	// Exact synonym lookup.
	if id, ok := r.snap.Synonyms[normalized]; ok {
		if term, ok := r.snap.Terms[id]; ok {
			return r.matchFor(term, ConfidenceHigh, raw)
		}
	}

	// Fuzzy synonym lookup with a similarity floor.
	if key, score := r.bestSynonym(normalized); score >= r.floor {
		if term, ok := r.snap.Terms[r.snap.Synonyms[key]]; ok {
			conf := ConfidenceMedium
			if score >= r.highTier {
				conf = ConfidenceHigh
			}
			return r.matchFor(term, conf, raw)
		}
	}

	return TermMatch{Confidence: ConfidenceLow, RawInput: raw}
}

// bestSynonym returns the highest-similarity synonym key and its score.
func (r *Resolver) bestSynonym(normalized string) (string, float64) {
	if normalized == "" {
		return "", 0
	}
	bestKey, bestScore := "", 0.0
	for _, key := range r.synKeys {
		if score := strutil.Similarity(normalized, key, r.metric); score > bestScore {
			bestKey, bestScore = key, score
		}
	}
	return bestKey, bestScore
}

// MapPhrase resolves a single phrase with a caller-supplied floor, used by
// the exclusion mapper which runs stricter than the general matcher. Returns
// the term and ok=false when nothing clears the floor.
func (r *Resolver) MapPhrase(phrase string, floor float64) (*ontology.Term, bool) {
	normalized := strings.ToLower(strings.TrimSpace(phrase))
	if normalized == "" {
		return nil, false
	}
	if id, ok := r.snap.Synonyms[normalized]; ok {
		if term, ok := r.snap.Terms[id]; ok {
			return term, true
		}
	}
	if key, score := r.bestSynonym(normalized); score >= floor {
		if term, ok := r.snap.Terms[r.snap.Synonyms[key]]; ok {
			return term, true
		}
	}
	return nil, false
}

func (r *Resolver) matchFor(term *ontology.Term, conf Confidence, raw string) TermMatch {
	return TermMatch{
		TermID:     term.ID,
		Label:      term.Label,
		Definition: term.Definition,
		IC:         term.IC,
		Parents:    term.Parents,
		Confidence: conf,
		RawInput:   raw,
	}
}
