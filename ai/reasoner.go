package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"phenodx/domain/exclusion"
	"phenodx/domain/match"
	"phenodx/domain/ontology"
	"phenodx/domain/rank"
	"phenodx/domain/redflag"
	"phenodx/domain/report"
	"phenodx/domain/timing"
	"phenodx/ports"
)

// ContextPacketVersion identifies the packet schema sent to the reasoning
// service. Bump when fields change meaning.
const ContextPacketVersion = 1

// ContextPacket is the fixed, serializable context handed to the final
// reasoning call. Every field has a defined zero value so partial runs still
// serialize cleanly.
type ContextPacket struct {
	Version           int                           `json:"version"`
	Age               int                           `json:"age,omitempty"`
	Sex               string                        `json:"sex,omitempty"`
	FamilyHistory     string                        `json:"family_history,omitempty"`
	PriorTests        []report.PriorTest            `json:"prior_tests,omitempty"`
	ObservedTerms     []match.TermMatch             `json:"observed_terms"`
	ExcludedFindings  []exclusion.ExcludedFinding   `json:"excluded_findings"`
	TimingProfiles    []timing.Profile              `json:"timing_profiles"`
	DiseaseCandidates []rank.DiseaseCandidate       `json:"disease_candidates"`
	Profiles          []*ontology.EnrichmentProfile `json:"enrichment_profiles"`
	RedFlags          []redflag.Flag                `json:"red_flags"`
	DataCompleteness  float64                       `json:"data_completeness"`
}

// ReasonedOutput is the reasoning service's contribution to the final
// report: the graded differential and the action plan.
type ReasonedOutput struct {
	Differential    []report.DifferentialEntry `json:"differential"`
	NextBestSteps   []report.NextStep          `json:"next_best_steps"`
	WhatWouldChange []string                   `json:"what_would_change"`
	Uncertainty     report.UncertaintySummary  `json:"uncertainty"`
}

// Reasoner runs the final reasoning call.
type Reasoner struct {
	client  ports.LLMClient
	prompts *PromptManager
	log     *logrus.Logger
}

// NewReasoner builds the reasoner.
func NewReasoner(client ports.LLMClient, prompts *PromptManager, log *logrus.Logger) *Reasoner {
	return &Reasoner{client: client, prompts: prompts, log: log}
}

// Reason sends the context packet and returns the parsed, validated
// assessment. Any failure — transport, parse, or schema — returns an error
// so the orchestrator can fall back to the degraded report.
func (r *Reasoner) Reason(ctx context.Context, packet *ContextPacket) (*ReasonedOutput, error) {
	packet.Version = ContextPacketVersion
	encoded, err := json.MarshalIndent(packet, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode context packet: %w", err)
	}

	system, err := r.prompts.Render("reasoning", map[string]string{"CONTEXT": string(encoded)})
	if err != nil {
		return nil, err
	}

	resp, err := r.client.ChatCompletion(ctx, ports.ChatRequest{
		System: system,
		User:   "Produce the diagnostic assessment for the context packet above.",
	})
	if err != nil {
		return nil, err
	}

	raw, err := ExtractStructured(resp.Content)
	if err != nil {
		return nil, err
	}

	var out ReasonedOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("reasoning output has wrong shape: %w", err)
	}
	if err := r.validate(&out, packet); err != nil {
		return nil, err
	}
	return &out, nil
}

// validate rejects outputs that would corrupt the report: an empty
// differential, or disease ids the candidate list never produced.
func (r *Reasoner) validate(out *ReasonedOutput, packet *ContextPacket) error {
	if len(out.Differential) == 0 {
		return fmt.Errorf("reasoning output has an empty differential")
	}
	known := make(map[string]bool, len(packet.DiseaseCandidates))
	for _, dc := range packet.DiseaseCandidates {
		known[string(dc.DiseaseID)] = true
	}
	for _, entry := range out.Differential {
		if !known[entry.DiseaseID] {
			return fmt.Errorf("reasoning output names unknown disease %q", entry.DiseaseID)
		}
	}
	return nil
}
