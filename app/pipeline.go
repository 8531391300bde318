package app

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"phenodx/ai"
	"phenodx/domain/core"
	"phenodx/domain/exclusion"
	"phenodx/domain/match"
	"phenodx/domain/ontology"
	"phenodx/domain/rank"
	"phenodx/domain/redflag"
	"phenodx/domain/report"
	"phenodx/domain/timing"
	"phenodx/ports"
)

// Pipeline step names, in execution order. The observer contract and the
// report's step appendix both use these exact strings.
const (
	StepRedFlagCheck = "Red Flag Check"
	StepHPOMapping   = "HPO Mapping"
	StepDiseaseMatch = "Disease Matching"
	StepExtraction   = "Phenotype Extraction"
	StepProfileFetch = "Disease Profile Fetch"
	StepComplete     = "Complete"
)

// profileFetchTopN caps how many candidates get enrichment profiles.
const profileFetchTopN = 5

// PipelineDeps collects the pipeline's collaborators. Extractors and the
// reasoner may be nil when Caps.Generation is false; Sessions may be nil
// when Caps.Sessions is false.
type PipelineDeps struct {
	Snapshot *ontology.Snapshot
	Resolver *match.Resolver
	Ranker   *rank.Ranker
	RedFlags *redflag.Engine
	Excluded *ai.ExcludedExtractor
	Timing   *ai.TimingExtractor
	Reasoner *ai.Reasoner
	Sessions ports.SessionStore
	Observer ports.StepObserver
	Caps     Capabilities
	Log      *logrus.Logger
	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
}

// Pipeline runs one full analysis: safety gate, term resolution, ranking,
// extraction, enrichment, and final reasoning. One instance serves all
// requests; per-run state lives in a PipelineState owned by each Run call.
type Pipeline struct {
	snap     *ontology.Snapshot
	resolver *match.Resolver
	ranker   *rank.Ranker
	redflags *redflag.Engine
	excluded *ai.ExcludedExtractor
	timing   *ai.TimingExtractor
	reasoner *ai.Reasoner
	sessions ports.SessionStore
	observer ports.StepObserver
	caps     Capabilities
	log      *logrus.Logger
	now      func() time.Time
}

// NewPipeline builds a pipeline from its dependencies.
func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.Log == nil {
		deps.Log = logrus.New()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Pipeline{
		snap:     deps.Snapshot,
		resolver: deps.Resolver,
		ranker:   deps.Ranker,
		redflags: deps.RedFlags,
		excluded: deps.Excluded,
		timing:   deps.Timing,
		reasoner: deps.Reasoner,
		sessions: deps.Sessions,
		observer: deps.Observer,
		caps:     deps.Caps,
		log:      deps.Log,
		now:      deps.Now,
	}
}

// RunResult is one completed analysis: the assembled report plus the
// session id and step timings for rendering and replay.
type RunResult struct {
	SessionID core.SessionID
	Output    *report.AgentOutput
	Steps     []report.StepDuration
}

// Run executes the full pipeline for one patient. Collaborator failures
// degrade the result instead of failing the run, and input with no phenotype
// information at all still yields a valid, maximally-empty report with zero
// completeness rather than an error.
func (p *Pipeline) Run(ctx context.Context, input report.PatientInput) (*RunResult, error) {
	state := &PipelineState{SessionID: core.NewSessionID(), Input: input}
	p.saveInput(ctx, state)

	// Safety gate: evaluate the red-flag rules over the verbatim codes before
	// anything else. An URGENT hit terminates the run with a minimal report.
	verbatim := wellFormedTermIDs(input.HPOTerms)
	p.step(state, StepRedFlagCheck, func() string {
		start := p.now()
		for _, id := range verbatim {
			if _, ok := p.snap.Terms[id]; !ok {
				p.log.WithField("term", id).Debug("term id not in the ontology; safety rules cannot expand it")
			}
		}
		state.Flags = p.redflags.Screen(verbatim)
		p.recordTool(ctx, state, "red_flag_check",
			map[string]any{"term_count": len(verbatim)},
			map[string]any{"flags": len(state.Flags), "urgent": redflag.HasUrgent(state.Flags)},
			start)
		return flagDetail(state.Flags)
	})
	if redflag.HasUrgent(state.Flags) {
		return p.finish(ctx, state, p.urgentOutput(state)), nil
	}

	// Term resolution: verbatim codes plus free-text fragments, deduplicated
	// by resolved id keeping the first occurrence.
	p.step(state, StepHPOMapping, func() string {
		start := p.now()
		raws := append(append([]string{}, input.HPOTerms...), splitFreeText(input.FreeText)...)
		state.Matches = dedupeMatches(p.resolver.Resolve(raws))

		// Free text can surface safety-relevant terms the verbatim list did
		// not carry; re-screen over the full resolved set.
		if resolved := state.ResolvedTermIDs(); len(resolved) > 0 {
			state.Flags = p.redflags.Screen(append(resolved, unresolvedVerbatim(verbatim, resolved)...))
		}

		p.recordTool(ctx, state, "hpo_mapping",
			map[string]any{"inputs": len(raws)},
			map[string]any{"resolved": len(state.ResolvedTermIDs())},
			start)
		return ""
	})

	p.step(state, StepDiseaseMatch, func() string {
		start := p.now()
		state.Candidates = p.ranker.Rank(state.ResolvedTermIDs(), input.ExcludedTerms)
		p.recordTool(ctx, state, "disease_matching",
			map[string]any{"patient_terms": len(state.ResolvedTermIDs())},
			map[string]any{"candidates": len(state.Candidates)},
			start)
		return ""
	})

	p.step(state, StepExtraction, func() string {
		p.runExtraction(ctx, state)
		return ""
	})

	p.step(state, StepProfileFetch, func() string {
		start := p.now()
		state.Profiles = p.fetchProfiles(state.Candidates)
		p.recordTool(ctx, state, "profile_fetch",
			map[string]any{"requested": min(len(state.Candidates), profileFetchTopN)},
			map[string]any{"found": len(state.Profiles)},
			start)
		return ""
	})

	state.Completeness = computeCompleteness(state)

	var out *report.AgentOutput
	p.step(state, StepComplete, func() string {
		out = p.reasonAndAssemble(ctx, state)
		return ""
	})
	return p.finish(ctx, state, out), nil
}

// runExtraction runs the exclusion and timing extractors concurrently. The
// two calls are independent: one failing never suppresses the other, and
// either failing just leaves its slice empty.
func (p *Pipeline) runExtraction(ctx context.Context, state *PipelineState) {
	if strings.TrimSpace(state.Input.FreeText) == "" || !p.caps.Generation {
		return
	}

	var (
		exclusions []exclusion.ExcludedFinding
		profiles   []timing.Profile
	)

	var g errgroup.Group
	g.Go(func() error {
		start := p.now()
		found, err := p.excluded.Extract(ctx, state.Input.FreeText)
		if err != nil {
			p.log.WithError(err).Warn("excluded-findings extraction failed; continuing without exclusions")
		} else {
			exclusions = found
		}
		p.recordTool(ctx, state, "excluded_extract",
			map[string]any{"note_bytes": len(state.Input.FreeText)},
			map[string]any{"findings": len(exclusions), "failed": err != nil},
			start)
		return nil
	})
	g.Go(func() error {
		start := p.now()
		found, err := p.timing.Extract(ctx, state.Input.FreeText, state.ResolvedLabels())
		if err != nil {
			p.log.WithError(err).Warn("timing extraction failed; continuing without timing")
		} else {
			profiles = found
		}
		p.recordTool(ctx, state, "timing_extract",
			map[string]any{"note_bytes": len(state.Input.FreeText)},
			map[string]any{"profiles": len(profiles), "failed": err != nil},
			start)
		return nil
	})
	g.Wait()

	state.Exclusions = exclusions
	state.TimingProfiles = profiles

	// Newly mapped exclusions change the penalty set, so re-rank. The fresh
	// ranking replaces the original only when it is non-empty.
	mapped := exclusion.MappedTermIDs(exclusions)
	if len(mapped) > 0 {
		all := append(append([]core.TermID{}, state.Input.ExcludedTerms...), mapped...)
		if reranked := p.ranker.Rank(state.ResolvedTermIDs(), all); len(reranked) > 0 {
			state.Candidates = reranked
		}
	}
}

// fetchProfiles returns the enrichment profiles for the top candidates.
// Diseases without a profile are simply skipped.
func (p *Pipeline) fetchProfiles(candidates []rank.DiseaseCandidate) []*ontology.EnrichmentProfile {
	top := candidates
	if len(top) > profileFetchTopN {
		top = top[:profileFetchTopN]
	}
	profiles := make([]*ontology.EnrichmentProfile, 0, len(top))
	for _, dc := range top {
		if profile, ok := p.snap.Profiles[dc.DiseaseID]; ok {
			profiles = append(profiles, profile)
		}
	}
	return profiles
}

// reasonAndAssemble runs the final reasoning call and builds the report.
// Any reasoning failure, or generation being disabled, produces the
// deterministic degraded assessment instead.
func (p *Pipeline) reasonAndAssemble(ctx context.Context, state *PipelineState) *report.AgentOutput {
	packet := &ai.ContextPacket{
		Age:               state.Input.Age,
		Sex:               state.Input.Sex,
		FamilyHistory:     state.Input.FamilyHistory,
		PriorTests:        state.Input.PriorTests,
		ObservedTerms:     state.Matches,
		ExcludedFindings:  state.Exclusions,
		TimingProfiles:    state.TimingProfiles,
		DiseaseCandidates: state.Candidates,
		Profiles:          state.Profiles,
		RedFlags:          state.Flags,
		DataCompleteness:  state.Completeness,
	}
	p.saveContext(ctx, state, packet)

	// Nothing to reason over when ranking produced no candidates; the
	// reasoner would reject its own output anyway, so skip the call.
	var reasoned *ai.ReasonedOutput
	if p.caps.Generation && p.reasoner != nil && len(state.Candidates) > 0 {
		start := p.now()
		result, err := p.reasoner.Reason(ctx, packet)
		p.recordTool(ctx, state, "final_reasoning",
			map[string]any{"candidates": len(state.Candidates)},
			map[string]any{"failed": err != nil},
			start)
		switch {
		case err == nil:
			reasoned = result
		case core.IsCollaboratorError(err):
			p.log.WithError(err).Warn("reasoning service unavailable; emitting degraded report")
		default:
			p.log.WithError(err).Warn("reasoning output rejected; emitting degraded report")
		}
	}

	out := &report.AgentOutput{
		PatientHPOObserved: state.Matches,
		PatientHPOExcluded: emptyIfNil(state.Exclusions),
		TimingProfiles:     emptyIfNil(state.TimingProfiles),
		DataCompleteness:   state.Completeness,
		RedFlags:           emptyIfNil(state.Flags),
		DiseaseCandidates:  emptyIfNil(state.Candidates),
	}

	if reasoned != nil {
		out.Differential = reasoned.Differential
		out.NextBestSteps = reasoned.NextBestSteps
		out.WhatWouldChange = emptyIfNil(reasoned.WhatWouldChange)
		out.Uncertainty = reasoned.Uncertainty
	} else {
		out.Differential, out.NextBestSteps, out.Uncertainty = degradedReasoning(state.Candidates)
		out.WhatWouldChange = []string{}
	}

	if len(state.Input.PriorTests) > 0 {
		out.Reanalysis = report.EvaluateReanalysis(state.Input.PriorTests, out.Differential, p.now())
	}
	return out
}

// urgentOutput is the minimal report emitted when the safety gate fires:
// flags, an escalation step, and nothing the rest of the pipeline would
// have computed.
func (p *Pipeline) urgentOutput(state *PipelineState) *report.AgentOutput {
	return &report.AgentOutput{
		PatientHPOObserved: []match.TermMatch{},
		PatientHPOExcluded: []exclusion.ExcludedFinding{},
		TimingProfiles:     []timing.Profile{},
		RedFlags:           state.Flags,
		DiseaseCandidates:  []rank.DiseaseCandidate{},
		Differential:       []report.DifferentialEntry{},
		NextBestSteps: []report.NextStep{{
			Rank:           1,
			ActionType:     report.ActionUrgentEscalation,
			Action:         "Address the urgent red flags before continuing the diagnostic workup",
			Rationale:      "Analysis stopped at the safety gate",
			Urgency:        "urgent",
			EvidenceSource: "red_flag_rules",
		}},
		WhatWouldChange: []string{},
		Uncertainty: report.UncertaintySummary{
			Missing: []string{"Analysis stopped at the safety gate; the full differential was not computed"},
		},
	}
}

// finish records the Complete transition (when the run ended early), saves
// the output, and packages the result.
func (p *Pipeline) finish(ctx context.Context, state *PipelineState, out *report.AgentOutput) *RunResult {
	if len(state.StepDurations) == 0 || state.StepDurations[len(state.StepDurations)-1].Name != StepComplete {
		p.step(state, StepComplete, func() string { return "terminated at safety gate" })
	}
	p.saveOutput(ctx, state, out)
	return &RunResult{SessionID: state.SessionID, Output: out, Steps: state.StepDurations}
}

// step times one pipeline step and notifies the observer on both edges.
// Observer panics are recovered so a broken UI callback cannot kill a run.
func (p *Pipeline) step(state *PipelineState, name string, fn func() string) {
	p.notify(ports.StepEvent{Name: name, Status: ports.StepStarted})
	start := p.now()
	detail := fn()
	elapsed := p.now().Sub(start).Seconds()
	state.StepDurations = append(state.StepDurations, report.StepDuration{Name: name, Duration: elapsed})
	p.notify(ports.StepEvent{Name: name, Status: ports.StepFinished, DurationSeconds: elapsed, Detail: detail})
}

func (p *Pipeline) notify(event ports.StepEvent) {
	if p.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.WithField("panic", r).WithField("step", event.Name).Warn("step observer panicked")
		}
	}()
	p.observer.OnStep(event)
}

// recordTool appends one audit record and mirrors it to the session store.
func (p *Pipeline) recordTool(ctx context.Context, state *PipelineState, tool string, in, out map[string]any, start time.Time) {
	record := report.ToolCallRecord{
		ToolName:   tool,
		InputData:  in,
		OutputData: out,
		Timestamp:  core.NewTimestamp(start.UTC()),
		DurationMS: p.now().Sub(start).Milliseconds(),
	}
	state.AuditLog = append(state.AuditLog, record)
	if p.caps.Sessions && p.sessions != nil {
		if err := p.sessions.SaveToolCall(ctx, state.SessionID, record); err != nil {
			p.log.WithError(err).Debug("session tool-call write failed")
		}
	}
}

func (p *Pipeline) saveInput(ctx context.Context, state *PipelineState) {
	if !p.caps.Sessions || p.sessions == nil {
		return
	}
	if err := p.sessions.SaveInput(ctx, state.SessionID, state.Input); err != nil {
		p.log.WithError(err).Debug("session input write failed")
	}
}

func (p *Pipeline) saveContext(ctx context.Context, state *PipelineState, packet *ai.ContextPacket) {
	if !p.caps.Sessions || p.sessions == nil {
		return
	}
	if err := p.sessions.SaveContext(ctx, state.SessionID, packet); err != nil {
		p.log.WithError(err).Debug("session context write failed")
	}
}

func (p *Pipeline) saveOutput(ctx context.Context, state *PipelineState, out *report.AgentOutput) {
	if !p.caps.Sessions || p.sessions == nil {
		return
	}
	if err := p.sessions.SaveOutput(ctx, state.SessionID, out); err != nil {
		p.log.WithError(err).Debug("session output write failed")
	}
}

// wellFormedTermIDs keeps the inputs that look like term codes, as ids.
func wellFormedTermIDs(raws []string) []core.TermID {
	var ids []core.TermID
	for _, raw := range raws {
		if core.IsTermCode(raw) {
			ids = append(ids, core.TermID(raw))
		}
	}
	return ids
}

// unresolvedVerbatim returns verbatim ids absent from the resolved set, so
// re-screening never sees fewer terms than the safety gate did.
func unresolvedVerbatim(verbatim, resolved []core.TermID) []core.TermID {
	seen := make(map[core.TermID]bool, len(resolved))
	for _, id := range resolved {
		seen[id] = true
	}
	var out []core.TermID
	for _, id := range verbatim {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}

// dedupeMatches drops repeated resolutions of the same term, keeping the
// first occurrence. Unresolved entries are all kept for audit.
func dedupeMatches(matches []match.TermMatch) []match.TermMatch {
	seen := make(map[core.TermID]bool, len(matches))
	out := make([]match.TermMatch, 0, len(matches))
	for _, m := range matches {
		if m.Resolved() {
			if seen[m.TermID] {
				continue
			}
			seen[m.TermID] = true
		}
		out = append(out, m)
	}
	return out
}

func flagDetail(flags []redflag.Flag) string {
	if len(flags) == 0 {
		return "no flags raised"
	}
	if redflag.HasUrgent(flags) {
		return "urgent flag raised"
	}
	return "warning flags raised"
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
