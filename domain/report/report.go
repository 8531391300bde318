// Package report defines the assembled pipeline output and its rendering.
// Every downstream consumer reads these types; no other package defines its
// own output models.
package report

import (
	"phenodx/domain/core"
	"phenodx/domain/exclusion"
	"phenodx/domain/match"
	"phenodx/domain/rank"
	"phenodx/domain/redflag"
	"phenodx/domain/timing"
)

// PriorTest is one previously performed investigation.
type PriorTest struct {
	TestType string `json:"test_type"`
	Name     string `json:"name"`
	Result   string `json:"result"`
	Year     int    `json:"year,omitempty"`
}

// PatientInput is the pipeline's input document.
type PatientInput struct {
	FreeText      string        `json:"free_text,omitempty"`
	HPOTerms      []string      `json:"hpo_terms"`
	PriorTests    []PriorTest   `json:"prior_tests,omitempty"`
	FamilyHistory string        `json:"family_history,omitempty"`
	Age           int           `json:"age,omitempty"`
	Sex           string        `json:"sex,omitempty"`
	PatientID     string        `json:"patient_id,omitempty"`
	DiagnosisName string        `json:"diagnosis_name,omitempty"`
	ExcludedTerms []core.TermID `json:"excluded_terms,omitempty"`
}

// ActionType of a recommended next step.
type ActionType string

const (
	ActionOrderTest        ActionType = "order_test"
	ActionRefinePhenotype  ActionType = "refine_phenotype"
	ActionGeneticTesting   ActionType = "genetic_testing"
	ActionReanalysis       ActionType = "reanalysis"
	ActionReferSpecialist  ActionType = "refer_specialist"
	ActionUrgentEscalation ActionType = "urgent_escalation"
)

// NextStep is one recommended next action, ranked by expected value.
type NextStep struct {
	Rank                 int        `json:"rank"`
	ActionType           ActionType `json:"action_type"`
	Action               string     `json:"action"`
	Rationale            string     `json:"rationale"`
	DiscriminatesBetween []string   `json:"discriminates_between,omitempty"`
	Urgency              string     `json:"urgency"`
	EvidenceSource       string     `json:"evidence_source"`
}

// DifferentialEntry is one disease in the final differential with the
// reasoning behind its confidence grade.
type DifferentialEntry struct {
	Disease                 string   `json:"disease"`
	DiseaseID               string   `json:"disease_id"`
	Confidence              string   `json:"confidence"`
	ConfidenceReasoning     string   `json:"confidence_reasoning"`
	SupportingPhenotypes    []string `json:"supporting_phenotypes,omitempty"`
	ContradictingPhenotypes []string `json:"contradicting_phenotypes,omitempty"`
	MissingKeyPhenotypes    []string `json:"missing_key_phenotypes,omitempty"`
}

// UncertaintySummary partitions the evidence into known, missing, and
// ambiguous facts.
type UncertaintySummary struct {
	Known     []string `json:"known"`
	Missing   []string `json:"missing"`
	Ambiguous []string `json:"ambiguous"`
}

// ReanalysisReason is one factor behind a reanalysis recommendation.
type ReanalysisReason struct {
	ReasonType string `json:"reason_type"`
	Detail     string `json:"detail"`
	Source     string `json:"source"`
}

// ReanalysisResult scores how strongly prior genetic data warrants a fresh
// look, 0 to 1.
type ReanalysisResult struct {
	Score          float64            `json:"score"`
	Recommendation string             `json:"recommendation"`
	Reasons        []ReanalysisReason `json:"reasons,omitempty"`
}

// ToolCallRecord logs one tool invocation for the audit trail.
type ToolCallRecord struct {
	ToolName   string         `json:"tool_name"`
	InputData  map[string]any `json:"input_data"`
	OutputData map[string]any `json:"output_data"`
	Timestamp  core.Timestamp `json:"timestamp"`
	DurationMS int64          `json:"duration_ms"`
}

// StepDuration is one pipeline step's wall-clock timing.
type StepDuration struct {
	Name     string  `json:"name"`
	Duration float64 `json:"duration"`
}

// AgentOutput is the complete pipeline result assembled by the orchestrator.
type AgentOutput struct {
	PatientHPOObserved []match.TermMatch           `json:"patient_hpo_observed"`
	PatientHPOExcluded []exclusion.ExcludedFinding `json:"patient_hpo_excluded"`
	TimingProfiles     []timing.Profile            `json:"timing_profiles"`
	DataCompleteness   float64                     `json:"data_completeness"`
	RedFlags           []redflag.Flag              `json:"red_flags"`
	DiseaseCandidates  []rank.DiseaseCandidate     `json:"disease_candidates"`
	Differential       []DifferentialEntry         `json:"differential"`
	NextBestSteps      []NextStep                  `json:"next_best_steps"`
	Reanalysis         *ReanalysisResult           `json:"reanalysis,omitempty"`
	WhatWouldChange    []string                    `json:"what_would_change"`
	Uncertainty        UncertaintySummary          `json:"uncertainty"`
}
