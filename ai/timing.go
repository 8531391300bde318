package ai

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"

	"phenodx/domain/timing"
	"phenodx/ports"
)

// TimingExtractor pulls onset and course information for already-matched
// phenotypes out of a clinical note.
type TimingExtractor struct {
	client  ports.LLMClient
	prompts *PromptManager
	log     *logrus.Logger
}

// NewTimingExtractor builds the extractor.
func NewTimingExtractor(client ports.LLMClient, prompts *PromptManager, log *logrus.Logger) *TimingExtractor {
	return &TimingExtractor{client: client, prompts: prompts, log: log}
}

// timingItem is the wire shape the extraction prompt asks for.
type timingItem struct {
	PhenotypeRef    string  `json:"phenotype_ref"`
	Onset           string  `json:"onset"`
	OnsetNormalized float64 `json:"onset_normalized"`
	Resolution      string  `json:"resolution"`
	IsOngoing       *bool   `json:"is_ongoing"`
	Progression     string  `json:"progression"`
	RawEvidence     string  `json:"raw_evidence"`
	Confidence      string  `json:"confidence"`
}

// Extract returns timing profiles anchored to the given phenotype labels.
// Blank notes or empty label lists yield nil without a model call.
func (t *TimingExtractor) Extract(ctx context.Context, noteText string, labels []string) ([]timing.Profile, error) {
	if strings.TrimSpace(noteText) == "" || len(labels) == 0 {
		return nil, nil
	}

	base, err := t.prompts.Load("timing")
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nPhenotypes to extract timing for:\n")
	for _, label := range labels {
		b.WriteString("- ")
		b.WriteString(label)
		b.WriteString("\n")
	}

	resp, err := t.client.ChatCompletion(ctx, ports.ChatRequest{System: b.String(), User: noteText})
	if err != nil {
		return nil, err
	}

	raw, err := ExtractStructured(resp.Content)
	if err != nil {
		t.log.WithField("prefix", err.(*ParseError).Prefix).Warn("timing extraction response unparseable")
		return nil, err
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		t.log.WithError(err).Warn("timing extraction returned a non-array value")
		return nil, err
	}

	profiles := make([]timing.Profile, 0, len(elements))
	for _, element := range elements {
		var item timingItem
		if err := json.Unmarshal(element, &item); err != nil {
			t.log.WithError(err).Warn("skipping malformed timing item")
			continue
		}
		ongoing := true
		if item.IsOngoing != nil {
			ongoing = *item.IsOngoing
		}
		onset := item.Onset
		if onset == "" {
			onset = "unknown"
		}
		confidence := item.Confidence
		if confidence == "" {
			confidence = "medium"
		}
		profiles = append(profiles, timing.Profile{
			PhenotypeRef:    item.PhenotypeRef,
			PhenotypeLabel:  item.PhenotypeRef,
			Onset:           onset,
			OnsetNormalized: item.OnsetNormalized,
			OnsetStage:      timing.OnsetStage(item.OnsetNormalized),
			Resolution:      item.Resolution,
			IsOngoing:       ongoing,
			Progression:     timing.NormalizeProgression(item.Progression),
			RawEvidence:     item.RawEvidence,
			Confidence:      confidence,
		})
	}
	return profiles, nil
}
