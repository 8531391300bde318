package ai

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"

	"phenodx/domain/exclusion"
	"phenodx/ports"
)

// ExcludedExtractor finds negated findings in a clinical note and maps them
// onto ontology terms.
type ExcludedExtractor struct {
	client  ports.LLMClient
	prompts *PromptManager
	mapper  *exclusion.Mapper
	log     *logrus.Logger
}

// NewExcludedExtractor builds the extractor.
func NewExcludedExtractor(client ports.LLMClient, prompts *PromptManager, mapper *exclusion.Mapper, log *logrus.Logger) *ExcludedExtractor {
	return &ExcludedExtractor{client: client, prompts: prompts, mapper: mapper, log: log}
}

// Extract returns the excluded findings in noteText. A blank note yields
// nil without a model call. Extraction errors propagate; the caller decides
// whether to degrade.
func (e *ExcludedExtractor) Extract(ctx context.Context, noteText string) ([]exclusion.ExcludedFinding, error) {
	if strings.TrimSpace(noteText) == "" {
		return nil, nil
	}

	system, err := e.prompts.Load("excluded")
	if err != nil {
		return nil, err
	}

	resp, err := e.client.ChatCompletion(ctx, ports.ChatRequest{System: system, User: noteText})
	if err != nil {
		return nil, err
	}

	raw, err := ExtractStructured(resp.Content)
	if err != nil {
		e.log.WithField("prefix", err.(*ParseError).Prefix).Warn("excluded extraction response unparseable")
		return nil, err
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		e.log.WithError(err).Warn("excluded extraction returned a non-array value")
		return nil, err
	}

	// One malformed element must not sink the batch; decode per item and
	// keep whatever is well-formed.
	items := make([]exclusion.RawFinding, 0, len(elements))
	for _, element := range elements {
		var item exclusion.RawFinding
		if err := json.Unmarshal(element, &item); err != nil {
			e.log.WithError(err).Warn("skipping malformed excluded finding")
			continue
		}
		items = append(items, item)
	}

	findings := e.mapper.Map(items)
	e.log.WithFields(logrus.Fields{"found": len(findings), "mapped": len(exclusion.MappedTermIDs(findings))}).
		Debug("excluded findings extracted")
	return findings, nil
}
