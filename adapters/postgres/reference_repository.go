// Package postgres loads the ontology reference snapshot: terms, synonyms,
// disease annotations, enrichment profiles, and sample patients.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"phenodx/domain/core"
	"phenodx/domain/ontology"
	"phenodx/ports"
)

// ReferenceRepository implements ports.ReferenceRepository over the curated
// reference schema (hpo_terms, diseases, disease_profiles, sample_patients).
type ReferenceRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

// NewReferenceRepository connects and verifies the database.
func NewReferenceRepository(dsn string, log *logrus.Logger) (*ReferenceRepository, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect reference db: %w", err)
	}
	return &ReferenceRepository{db: db, log: log}, nil
}

// Close releases the connection pool.
func (r *ReferenceRepository) Close() error { return r.db.Close() }

type termRow struct {
	ID         string `db:"hpo_id"`
	Label      string `db:"label"`
	Definition string `db:"definition"`
	Synonyms   []byte `db:"synonyms"`
	Parents    []byte `db:"parents"`
}

type diseaseRow struct {
	ID    string `db:"disease_id"`
	Name  string `db:"name"`
	Terms []byte `db:"hpo_terms"`
}

type profileRow struct {
	DiseaseID        string `db:"disease_id"`
	DiseaseName      string `db:"name"`
	Inheritance      string `db:"inheritance"`
	CausalGenes      []byte `db:"causal_genes"`
	PhenotypeFreqs   []byte `db:"phenotype_freqs"`
	RecommendedTests []byte `db:"recommended_tests"`
}

type patientRow struct {
	ID            string `db:"patient_id"`
	Age           int    `db:"age"`
	Sex           string `db:"sex"`
	DiagnosisName string `db:"diagnosis_name"`
	Terms         []byte `db:"hpo_terms"`
}

// LoadSnapshot reads the full reference set and precomputes disease
// closures and information-content scores. Called once at startup; the
// returned snapshot is immutable.
func (r *ReferenceRepository) LoadSnapshot(ctx context.Context) (*ontology.Snapshot, error) {
	snap := ontology.NewSnapshot()

	var terms []termRow
	if err := r.db.SelectContext(ctx, &terms,
		`SELECT hpo_id, label, COALESCE(definition, '') AS definition, synonyms, parents FROM hpo_terms`); err != nil {
		return nil, fmt.Errorf("load terms: %w", err)
	}
	for _, row := range terms {
		term := &ontology.Term{
			ID:         core.TermID(row.ID),
			Label:      row.Label,
			Definition: row.Definition,
		}
		if err := json.Unmarshal(row.Synonyms, &term.Synonyms); err != nil {
			return nil, fmt.Errorf("decode synonyms for %s: %w", row.ID, err)
		}
		if err := json.Unmarshal(row.Parents, &term.Parents); err != nil {
			return nil, fmt.Errorf("decode parents for %s: %w", row.ID, err)
		}
		snap.Terms[term.ID] = term
		snap.AddSynonym(term.Label, term.ID)
		for _, syn := range term.Synonyms {
			snap.AddSynonym(syn, term.ID)
		}
	}

	var diseases []diseaseRow
	if err := r.db.SelectContext(ctx, &diseases,
		`SELECT disease_id, name, hpo_terms FROM diseases ORDER BY disease_id`); err != nil {
		return nil, fmt.Errorf("load diseases: %w", err)
	}
	for _, row := range diseases {
		var termIDs []core.TermID
		if err := json.Unmarshal(row.Terms, &termIDs); err != nil {
			return nil, fmt.Errorf("decode terms for %s: %w", row.ID, err)
		}
		id := core.DiseaseID(row.ID)
		snap.Diseases[id] = &ontology.DiseaseAnnotation{
			ID:      id,
			Name:    row.Name,
			Terms:   ontology.NewTermSet(termIDs...),
			Closure: ontology.ClosureOf(snap, termIDs),
		}
		snap.DiseaseOrder = append(snap.DiseaseOrder, id)
	}

	var profiles []profileRow
	if err := r.db.SelectContext(ctx, &profiles,
		`SELECT p.disease_id, d.name, COALESCE(p.inheritance, '') AS inheritance,
		        p.causal_genes, p.phenotype_freqs, p.recommended_tests
		 FROM disease_profiles p JOIN diseases d USING (disease_id)`); err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	for _, row := range profiles {
		profile := &ontology.EnrichmentProfile{
			DiseaseID:   core.DiseaseID(row.DiseaseID),
			DiseaseName: row.DiseaseName,
			Inheritance: row.Inheritance,
		}
		if err := json.Unmarshal(row.CausalGenes, &profile.CausalGenes); err != nil {
			return nil, fmt.Errorf("decode genes for %s: %w", row.DiseaseID, err)
		}
		if err := json.Unmarshal(row.PhenotypeFreqs, &profile.PhenotypeFreqs); err != nil {
			return nil, fmt.Errorf("decode frequencies for %s: %w", row.DiseaseID, err)
		}
		if err := json.Unmarshal(row.RecommendedTests, &profile.RecommendedTests); err != nil {
			return nil, fmt.Errorf("decode tests for %s: %w", row.DiseaseID, err)
		}
		snap.Profiles[profile.DiseaseID] = profile
	}

	var patients []patientRow
	if err := r.db.SelectContext(ctx, &patients,
		`SELECT patient_id, age, sex, COALESCE(diagnosis_name, '') AS diagnosis_name, hpo_terms
		 FROM sample_patients ORDER BY patient_id`); err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for _, row := range patients {
		patient := ontology.SamplePatient{
			ID:            row.ID,
			Age:           row.Age,
			Sex:           row.Sex,
			DiagnosisName: row.DiagnosisName,
		}
		if err := json.Unmarshal(row.Terms, &patient.Terms); err != nil {
			return nil, fmt.Errorf("decode terms for patient %s: %w", row.ID, err)
		}
		snap.Patients = append(snap.Patients, patient)
	}

	ontology.ComputeIC(snap)

	r.log.WithFields(logrus.Fields{
		"terms":    len(snap.Terms),
		"synonyms": len(snap.Synonyms),
		"diseases": len(snap.Diseases),
		"profiles": len(snap.Profiles),
		"patients": len(snap.Patients),
	}).Info("reference snapshot loaded")
	return snap, nil
}

var _ ports.ReferenceRepository = (*ReferenceRepository)(nil)
