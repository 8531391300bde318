// Package testkit builds small in-memory reference snapshots for tests.
// The fixture ontology is a miniature tree under the phenotypic-abnormality
// root with three annotated diseases, enough to exercise closure walks,
// matching, ranking, and the red-flag rules.
package testkit

import (
	"strings"

	"phenodx/domain/core"
	"phenodx/domain/ontology"
)

type fixtureTerm struct {
	id       core.TermID
	label    string
	parents  []core.TermID
	synonyms []string
}

var fixtureTerms = []fixtureTerm{
	{"HP:0000118", "Phenotypic abnormality", nil, nil},
	{"HP:0000707", "Abnormality of the nervous system", []core.TermID{"HP:0000118"}, nil},
	{"HP:0012638", "Abnormal nervous system physiology", []core.TermID{"HP:0000707"}, nil},
	{"HP:0012759", "Neurodevelopmental abnormality", []core.TermID{"HP:0000707"}, nil},
	{"HP:0001250", "Seizure", []core.TermID{"HP:0012638"}, []string{"Seizures", "Epileptic seizure"}},
	{"HP:0002133", "Status epilepticus", []core.TermID{"HP:0001250"}, nil},
	{"HP:0001259", "Coma", []core.TermID{"HP:0012638"}, nil},
	{"HP:0001279", "Syncope", []core.TermID{"HP:0012638"}, []string{"Fainting"}},
	{"HP:0001263", "Global developmental delay", []core.TermID{"HP:0012759"}, []string{"Developmental delay"}},
	{"HP:0003011", "Abnormality of the musculature", []core.TermID{"HP:0000118"}, nil},
	{"HP:0001252", "Hypotonia", []core.TermID{"HP:0003011"}, []string{"Muscular hypotonia", "Low muscle tone"}},
	{"HP:0001626", "Abnormality of the cardiovascular system", []core.TermID{"HP:0000118"}, nil},
	{"HP:0001631", "Atrial septal defect", []core.TermID{"HP:0001626"}, []string{"ASD"}},
	{"HP:0001695", "Cardiac arrest", []core.TermID{"HP:0001626"}, nil},
	{"HP:0002086", "Abnormality of the respiratory system", []core.TermID{"HP:0000118"}, nil},
	{"HP:0002098", "Respiratory distress", []core.TermID{"HP:0002086"}, []string{"Breathing difficulty"}},
	{"HP:0001939", "Abnormality of metabolism/homeostasis", []core.TermID{"HP:0000118"}, nil},
	{"HP:0001943", "Hypoglycemia", []core.TermID{"HP:0001939"}, []string{"Low blood sugar"}},
}

type fixtureDisease struct {
	id    core.DiseaseID
	name  string
	terms []core.TermID
}

var fixtureDiseases = []fixtureDisease{
	{"OMIM:100100", "Fixture epileptic encephalopathy", []core.TermID{"HP:0001250", "HP:0001263"}},
	{"OMIM:100200", "Fixture cardiomyopathy syndrome", []core.TermID{"HP:0001631", "HP:0001252"}},
	{"ORPHA:200300", "Fixture metabolic disorder", []core.TermID{"HP:0001943", "HP:0001250", "HP:0001252"}},
}

// Snapshot builds the canonical fixture snapshot with IC scores and disease
// closures precomputed.
func Snapshot() *ontology.Snapshot {
	snap := ontology.NewSnapshot()
	for _, ft := range fixtureTerms {
		term := &ontology.Term{
			ID:       ft.id,
			Label:    ft.label,
			Parents:  ft.parents,
			Synonyms: ft.synonyms,
		}
		snap.Terms[ft.id] = term
		snap.Synonyms[strings.ToLower(ft.label)] = ft.id
		for _, syn := range ft.synonyms {
			snap.Synonyms[strings.ToLower(syn)] = ft.id
		}
	}
	for _, fd := range fixtureDiseases {
		anno := &ontology.DiseaseAnnotation{
			ID:      fd.id,
			Name:    fd.name,
			Terms:   ontology.NewTermSet(fd.terms...),
			Closure: ontology.ClosureOf(snap, fd.terms),
		}
		snap.Diseases[fd.id] = anno
		snap.DiseaseOrder = append(snap.DiseaseOrder, fd.id)
	}
	ontology.ComputeIC(snap)

	snap.Profiles["OMIM:100100"] = &ontology.EnrichmentProfile{
		DiseaseID:   "OMIM:100100",
		DiseaseName: "Fixture epileptic encephalopathy",
		Inheritance: "Autosomal dominant",
		CausalGenes: []string{"SCN1A"},
		PhenotypeFreqs: []ontology.PhenotypeFrequency{
			{TermID: "HP:0001250", Label: "Seizure", Frequency: "95-100%"},
		},
		RecommendedTests: []string{"Epilepsy gene panel"},
	}
	snap.Patients = []ontology.SamplePatient{
		{ID: "patient_1", Age: 5, Sex: "M", DiagnosisName: "Fixture epileptic encephalopathy",
			Terms: []core.TermID{"HP:0001250", "HP:0001263"}},
	}
	return snap
}

// CyclicSnapshot returns a deliberately malformed snapshot where two terms
// parent each other, for exercising the closure walk's visited guard.
func CyclicSnapshot() *ontology.Snapshot {
	snap := ontology.NewSnapshot()
	snap.Terms["HP:0000001"] = &ontology.Term{ID: "HP:0000001", Label: "A", Parents: []core.TermID{"HP:0000002"}}
	snap.Terms["HP:0000002"] = &ontology.Term{ID: "HP:0000002", Label: "B", Parents: []core.TermID{"HP:0000001"}}
	return snap
}
