package ontology

import (
	"strings"

	"phenodx/domain/core"
)

// PhenotypicAbnormalityRoot is the default closure boundary: ancestor walks stop
// at (and exclude) this term.
const PhenotypicAbnormalityRoot = core.TermID("HP:0000118")

// Term is one coded phenotype concept node. Immutable after load; shared
// read-only across every concurrent request.
type Term struct {
	ID         core.TermID   `json:"id"`
	Label      string        `json:"label"`
	Definition string        `json:"definition,omitempty"`
	Synonyms   []string      `json:"synonyms,omitempty"`
	Parents    []core.TermID `json:"parents"`
	// IC is the information-content score; 0 when the term's annotation
	// frequency is unknown.
	IC float64 `json:"ic_score"`
}

// TermSet is a set of term IDs.
type TermSet map[core.TermID]struct{}

// NewTermSet builds a set from the given IDs.
func NewTermSet(ids ...core.TermID) TermSet {
	s := make(TermSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id into the set.
func (s TermSet) Add(id core.TermID) { s[id] = struct{}{} }

// Contains reports set membership.
func (s TermSet) Contains(id core.TermID) bool {
	_, ok := s[id]
	return ok
}

// Union merges other into s in place.
func (s TermSet) Union(other TermSet) {
	for id := range other {
		s[id] = struct{}{}
	}
}

// Intersect returns the intersection of s and other.
func (s TermSet) Intersect(other TermSet) TermSet {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	out := make(TermSet)
	for id := range small {
		if large.Contains(id) {
			out.Add(id)
		}
	}
	return out
}

// Intersects reports whether s and other share at least one member.
func (s TermSet) Intersects(other TermSet) bool {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	for id := range small {
		if large.Contains(id) {
			return true
		}
	}
	return false
}

// Diff returns the members of s that are not in other.
func (s TermSet) Diff(other TermSet) TermSet {
	out := make(TermSet)
	for id := range s {
		if !other.Contains(id) {
			out.Add(id)
		}
	}
	return out
}

// DiseaseAnnotation is one disease's directly-annotated term set plus its
// precomputed ancestor closure.
type DiseaseAnnotation struct {
	ID      core.DiseaseID `json:"disease_id"`
	Name    string         `json:"disease_name"`
	Terms   TermSet        `json:"-"`
	Closure TermSet        `json:"-"`
}

// PhenotypeFrequency annotates how often a phenotype occurs in a disease.
type PhenotypeFrequency struct {
	TermID    core.TermID `json:"hpo_id"`
	Label     string      `json:"label"`
	Frequency string      `json:"frequency"` // e.g. "95-100%"
}

// EnrichmentProfile is the rich knowledge-base record for one disease:
// causal genes, inheritance mode, and per-term frequency annotations.
type EnrichmentProfile struct {
	DiseaseID        core.DiseaseID       `json:"disease_id"`
	DiseaseName      string               `json:"disease_name"`
	Inheritance      string               `json:"inheritance,omitempty"`
	CausalGenes      []string             `json:"causal_genes,omitempty"`
	PhenotypeFreqs   []PhenotypeFrequency `json:"phenotype_freqs,omitempty"`
	RecommendedTests []string             `json:"recommended_tests,omitempty"`
}

// SamplePatient is a demo patient record carried in the snapshot for the
// front-end's patient selector.
type SamplePatient struct {
	ID            string        `json:"id"`
	Age           int           `json:"age,omitempty"`
	Sex           string        `json:"sex,omitempty"`
	DiagnosisName string        `json:"diagnosis_name,omitempty"`
	Terms         []core.TermID `json:"hpo_terms"`
}

// Snapshot is the immutable reference-data bundle loaded once per process:
// term index, synonym index, disease annotations, and enrichment profiles.
// The engine never mutates it and never queries incrementally mid-run, so
// concurrent reads need no locking.
type Snapshot struct {
	Root     core.TermID
	Terms    map[core.TermID]*Term
	Synonyms map[string]core.TermID // lowercase label/synonym -> term id
	Diseases map[core.DiseaseID]*DiseaseAnnotation
	// DiseaseOrder preserves load order so ranking ties stay stable.
	DiseaseOrder []core.DiseaseID
	Profiles     map[core.DiseaseID]*EnrichmentProfile
	Patients     []SamplePatient
}

// NewSnapshot returns an empty snapshot with the default closure root.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Root:     PhenotypicAbnormalityRoot,
		Terms:    make(map[core.TermID]*Term),
		Synonyms: make(map[string]core.TermID),
		Diseases: make(map[core.DiseaseID]*DiseaseAnnotation),
		Profiles: make(map[core.DiseaseID]*EnrichmentProfile),
	}
}

// AddSynonym indexes a label or synonym under its lowercase form.
func (s *Snapshot) AddSynonym(text string, id core.TermID) {
	if text == "" {
		return
	}
	s.Synonyms[strings.ToLower(text)] = id
}

// IC returns the information-content score for a term, 0 when unknown.
func (s *Snapshot) IC(id core.TermID) float64 {
	if t, ok := s.Terms[id]; ok {
		return t.IC
	}
	return 0
}

// Label returns the human label for a term, or the raw id when unknown.
func (s *Snapshot) Label(id core.TermID) string {
	if t, ok := s.Terms[id]; ok && t.Label != "" {
		return t.Label
	}
	return id.String()
}
