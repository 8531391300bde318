package report

import (
	"fmt"
	"strings"

	"phenodx/domain/core"
	"phenodx/domain/ontology"
	"phenodx/domain/redflag"
)

// actionTypeLabels maps action types to display headings.
var actionTypeLabels = map[ActionType]string{
	ActionOrderTest:        "Order Test",
	ActionRefinePhenotype:  "Refine Phenotype",
	ActionGeneticTesting:   "Genetic Testing",
	ActionReanalysis:       "Reanalysis",
	ActionReferSpecialist:  "Refer Specialist",
	ActionUrgentEscalation: "Urgent Escalation",
}

// Formatter renders an AgentOutput as a markdown report. Term ids are
// resolved to labels through the snapshot; unknown ids render as-is.
type Formatter struct {
	snap *ontology.Snapshot
}

// NewFormatter builds a formatter over the snapshot.
func NewFormatter(snap *ontology.Snapshot) *Formatter {
	return &Formatter{snap: snap}
}

// Markdown renders the full report: patient header, summary stats, red
// flags, differential, next steps, uncertainty, and the step timing
// appendix. Empty sections are omitted.
func (f *Formatter) Markdown(out *AgentOutput, input PatientInput, steps []StepDuration) string {
	var b strings.Builder

	f.writeHeader(&b, input)
	f.writeStats(&b, out)
	f.writeRedFlags(&b, out.RedFlags)
	f.writeDifferential(&b, out)
	f.writeTiming(&b, out)
	f.writeExclusions(&b, out)
	f.writeNextSteps(&b, out.NextBestSteps)
	f.writeUncertainty(&b, out)
	f.writeReanalysis(&b, out.Reanalysis)
	f.writeStepSummary(&b, steps)

	b.WriteString("\n---\n\n")
	b.WriteString("*Generated reasoning can be wrong. Verify clinical decisions independently.*\n")
	return b.String()
}

func (f *Formatter) writeHeader(b *strings.Builder, input PatientInput) {
	b.WriteString("# Diagnostic Report\n\n")
	if input.PatientID == "" && input.Age == 0 && input.Sex == "" {
		return
	}
	parts := []string{}
	if input.PatientID != "" {
		parts = append(parts, fmt.Sprintf("Patient %s", input.PatientID))
	}
	if input.Age > 0 {
		parts = append(parts, fmt.Sprintf("%d yo", input.Age))
	}
	if input.Sex != "" {
		parts = append(parts, strings.ToUpper(input.Sex))
	}
	fmt.Fprintf(b, "**%s**\n\n", strings.Join(parts, ", "))
}

func (f *Formatter) writeStats(b *strings.Builder, out *AgentOutput) {
	fmt.Fprintf(b, "| Completeness | Observed Terms | Candidates | Red Flags |\n")
	fmt.Fprintf(b, "|---|---|---|---|\n")
	fmt.Fprintf(b, "| %d%% | %d | %d | %d |\n\n",
		int(out.DataCompleteness*100),
		len(out.PatientHPOObserved),
		len(out.DiseaseCandidates),
		len(out.RedFlags))

	if len(out.PatientHPOObserved) > 0 {
		b.WriteString("## Observed Phenotypes\n\n")
		for _, m := range out.PatientHPOObserved {
			if m.Resolved() {
				fmt.Fprintf(b, "- `%s` %s (%s confidence)\n", m.TermID, m.Label, m.Confidence)
			} else {
				fmt.Fprintf(b, "- *unresolved:* %q\n", m.RawInput)
			}
		}
		b.WriteString("\n")
	}
}

func (f *Formatter) writeRedFlags(b *strings.Builder, flags []redflag.Flag) {
	if len(flags) == 0 {
		return
	}
	b.WriteString("## Red Flags\n\n")
	for _, fl := range flags {
		fmt.Fprintf(b, "- **%s** — %s: %s\n", fl.Severity, fl.Label, fl.RecommendedAction)
		if len(fl.TriggeringTerms) > 0 {
			fmt.Fprintf(b, "  - triggers: %s\n", f.joinLabels(fl.TriggeringTerms))
		}
	}
	b.WriteString("\n")
}

func (f *Formatter) writeDifferential(b *strings.Builder, out *AgentOutput) {
	if len(out.Differential) == 0 {
		return
	}
	candidates := make(map[string]int, len(out.DiseaseCandidates))
	for i, dc := range out.DiseaseCandidates {
		candidates[string(dc.DiseaseID)] = i
	}

	b.WriteString("## Differential Diagnosis\n\n")
	for i, entry := range out.Differential {
		fmt.Fprintf(b, "### %d. %s (`%s`) — %s confidence\n\n", i+1, entry.Disease, entry.DiseaseID, entry.Confidence)
		if entry.ConfidenceReasoning != "" {
			fmt.Fprintf(b, "%s\n\n", entry.ConfidenceReasoning)
		}
		if idx, ok := candidates[entry.DiseaseID]; ok {
			dc := out.DiseaseCandidates[idx]
			fmt.Fprintf(b, "- similarity %.4f, coverage %d%%\n", dc.SimScore, int(dc.Coverage*100))
			if len(dc.MatchedTerms) > 0 {
				fmt.Fprintf(b, "- matched: %s\n", f.joinLabels(dc.MatchedTerms))
			}
			if len(dc.MissingTerms) > 0 {
				fmt.Fprintf(b, "- missing: %s\n", f.joinLabels(dc.MissingTerms))
			}
			if dc.ExcludedPenalty {
				b.WriteString("- score halved: an excluded finding matches this disease\n")
			}
			b.WriteString("\n")
		}
	}
}

func (f *Formatter) writeTiming(b *strings.Builder, out *AgentOutput) {
	if len(out.TimingProfiles) == 0 {
		return
	}
	b.WriteString("## Onset & Timing\n\n")
	for _, tp := range out.TimingProfiles {
		fmt.Fprintf(b, "- %s: onset %s (%s), %s\n", tp.PhenotypeRef, tp.Onset, tp.OnsetStage, tp.Progression)
	}
	b.WriteString("\n")
}

func (f *Formatter) writeExclusions(b *strings.Builder, out *AgentOutput) {
	if len(out.PatientHPOExcluded) == 0 {
		return
	}
	b.WriteString("## Excluded Findings\n\n")
	for _, ex := range out.PatientHPOExcluded {
		if ex.Mapped() {
			fmt.Fprintf(b, "- `%s` %s (%s, %s): %q\n", ex.MappedTermID, ex.MappedLabel, ex.ExclusionType, ex.Confidence, ex.RawText)
		} else {
			fmt.Fprintf(b, "- *unmapped* (%s): %q\n", ex.ExclusionType, ex.RawText)
		}
	}
	b.WriteString("\n")
}

func (f *Formatter) writeNextSteps(b *strings.Builder, steps []NextStep) {
	if len(steps) == 0 {
		return
	}
	b.WriteString("## Next Best Steps\n\n")
	for _, s := range steps {
		heading := actionTypeLabels[s.ActionType]
		if heading == "" {
			heading = string(s.ActionType)
		}
		fmt.Fprintf(b, "%d. **%s** (%s): %s\n", s.Rank, heading, s.Urgency, s.Action)
		if s.Rationale != "" {
			fmt.Fprintf(b, "   - %s\n", s.Rationale)
		}
	}
	b.WriteString("\n")
}

func (f *Formatter) writeUncertainty(b *strings.Builder, out *AgentOutput) {
	uc := out.Uncertainty
	if len(uc.Known)+len(uc.Missing)+len(uc.Ambiguous)+len(out.WhatWouldChange) == 0 {
		return
	}
	b.WriteString("## Uncertainty\n\n")
	writeList := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(b, "**%s**\n\n", title)
		for _, it := range items {
			fmt.Fprintf(b, "- %s\n", it)
		}
		b.WriteString("\n")
	}
	writeList("Known", uc.Known)
	writeList("Missing", uc.Missing)
	writeList("Ambiguous", uc.Ambiguous)
	writeList("What Would Change the Picture", out.WhatWouldChange)
}

func (f *Formatter) writeReanalysis(b *strings.Builder, r *ReanalysisResult) {
	if r == nil {
		return
	}
	b.WriteString("## Reanalysis\n\n")
	fmt.Fprintf(b, "Score %.2f — %s\n\n", r.Score, r.Recommendation)
	for _, reason := range r.Reasons {
		fmt.Fprintf(b, "- %s\n", reason.Detail)
	}
	if len(r.Reasons) > 0 {
		b.WriteString("\n")
	}
}

func (f *Formatter) writeStepSummary(b *strings.Builder, steps []StepDuration) {
	if len(steps) == 0 {
		return
	}
	b.WriteString("## Pipeline Steps\n\n")
	for _, s := range steps {
		fmt.Fprintf(b, "- %s: %.1fs\n", s.Name, s.Duration)
	}
}

func (f *Formatter) joinLabels(ids []core.TermID) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if label := f.snap.Label(id); label != string(id) {
			parts = append(parts, fmt.Sprintf("%s (%s)", label, id))
		} else {
			parts = append(parts, string(id))
		}
	}
	return strings.Join(parts, ", ")
}
