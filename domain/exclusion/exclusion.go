// Package exclusion maps negated findings from clinical text onto ontology
// terms so the ranker can discount contradicted diseases.
package exclusion

import (
	"strings"

	"phenodx/domain/core"
	"phenodx/domain/match"
)

// MapFloor is the fuzzy-similarity cutoff for exclusion mapping. Stricter
// than general term matching: a wrong exclusion actively suppresses the
// correct diagnosis, a missed one only loses a penalty.
const MapFloor = 0.80

// Type distinguishes hard negations ("no seizures") from hedged ones
// ("seizures unlikely").
type Type string

const (
	TypeExplicit Type = "explicit"
	TypeSoft     Type = "soft"
)

// RawFinding is one negated finding as emitted by the extraction model,
// before ontology mapping.
type RawFinding struct {
	Finding       string `json:"finding"`
	RawText       string `json:"raw_text"`
	ExclusionType string `json:"exclusion_type"`
	Confidence    string `json:"confidence"`
}

// ExcludedFinding is a negated finding after mapping. MappedTermID is empty
// when nothing cleared the floor; unmapped findings are kept for audit and
// simply never penalize.
type ExcludedFinding struct {
	RawText       string           `json:"raw_text"`
	MappedTermID  core.TermID      `json:"mapped_hpo_term,omitempty"`
	MappedLabel   string           `json:"mapped_hpo_label,omitempty"`
	ExclusionType Type             `json:"exclusion_type"`
	Confidence    match.Confidence `json:"confidence"`
}

// Mapped reports whether the finding resolved to a known term.
func (f ExcludedFinding) Mapped() bool { return f.MappedTermID != "" }

// Mapper resolves raw findings against the snapshot's synonym index.
type Mapper struct {
	resolver *match.Resolver
	floor    float64
}

// NewMapper builds a mapper with the default exclusion floor.
func NewMapper(resolver *match.Resolver) *Mapper {
	return &Mapper{resolver: resolver, floor: MapFloor}
}

// Map converts each raw finding into an ExcludedFinding, one result per
// input. Missing exclusion_type defaults to explicit and missing confidence
// to medium, matching what the extraction prompt asks for.
func (m *Mapper) Map(raws []RawFinding) []ExcludedFinding {
	out := make([]ExcludedFinding, 0, len(raws))
	for _, raw := range raws {
		f := ExcludedFinding{
			RawText:       raw.RawText,
			ExclusionType: normalizeType(raw.ExclusionType),
			Confidence:    normalizeConfidence(raw.Confidence),
		}
		if term, ok := m.resolver.MapPhrase(raw.Finding, m.floor); ok {
			f.MappedTermID = term.ID
			f.MappedLabel = term.Label
		}
		out = append(out, f)
	}
	return out
}

// MappedTermIDs collects the term ids of the mapped findings, in order.
func MappedTermIDs(findings []ExcludedFinding) []core.TermID {
	var ids []core.TermID
	for _, f := range findings {
		if f.Mapped() {
			ids = append(ids, f.MappedTermID)
		}
	}
	return ids
}

func normalizeType(s string) Type {
	if strings.EqualFold(s, string(TypeSoft)) {
		return TypeSoft
	}
	return TypeExplicit
}

func normalizeConfidence(s string) match.Confidence {
	switch strings.ToLower(s) {
	case string(match.ConfidenceHigh):
		return match.ConfidenceHigh
	case string(match.ConfidenceLow):
		return match.ConfidenceLow
	default:
		return match.ConfidenceMedium
	}
}
