package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"phenodx/ai"
	"phenodx/domain/core"
	"phenodx/domain/exclusion"
	"phenodx/domain/match"
	"phenodx/domain/rank"
	"phenodx/domain/redflag"
	"phenodx/domain/report"
	"phenodx/internal/testkit"
	"phenodx/ports"
)

// routingClient answers each call based on which prompt asked: timing
// prompts carry the phenotype list, the reasoning prompt carries the context
// packet, everything else is the exclusion prompt.
type routingClient struct {
	mu        sync.Mutex
	excluded  string
	timing    string
	reasoning string
	err       error
	calls     int
}

func (c *routingClient) ChatCompletion(_ context.Context, req ports.ChatRequest) (*ports.ChatResponse, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	switch {
	case strings.Contains(req.System, "CONTEXT PACKET:"):
		return &ports.ChatResponse{Content: c.reasoning}, nil
	case strings.Contains(req.System, "Phenotypes to extract timing for:"):
		return &ports.ChatResponse{Content: c.timing}, nil
	default:
		return &ports.ChatResponse{Content: c.excluded}, nil
	}
}

type recordingStore struct {
	mu       sync.Mutex
	inputs   int
	tools    int
	contexts int
	outputs  int
	fail     bool
}

func (s *recordingStore) SaveInput(context.Context, core.SessionID, report.PatientInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs++
	return s.maybeFail()
}

func (s *recordingStore) SaveToolCall(context.Context, core.SessionID, report.ToolCallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools++
	return s.maybeFail()
}

func (s *recordingStore) SaveContext(context.Context, core.SessionID, any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts++
	return s.maybeFail()
}

func (s *recordingStore) SaveOutput(context.Context, core.SessionID, *report.AgentOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs++
	return s.maybeFail()
}

func (s *recordingStore) LoadOutput(context.Context, core.SessionID) (*report.AgentOutput, error) {
	return nil, core.ErrSessionNotFound
}

func (s *recordingStore) maybeFail() error {
	if s.fail {
		return errors.New("store offline")
	}
	return nil
}

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newTestPipeline(t *testing.T, client ports.LLMClient, caps Capabilities, store ports.SessionStore, observer ports.StepObserver) *Pipeline {
	t.Helper()
	snap := testkit.Snapshot()
	resolver := match.NewResolver(snap)
	prompts := ai.NewPromptManager()
	log := quietLog()

	return NewPipeline(PipelineDeps{
		Snapshot: snap,
		Resolver: resolver,
		Ranker:   rank.NewRanker(snap),
		RedFlags: redflag.NewEngine(snap, nil),
		Excluded: ai.NewExcludedExtractor(client, prompts, exclusion.NewMapper(resolver), log),
		Timing:   ai.NewTimingExtractor(client, prompts, log),
		Reasoner: ai.NewReasoner(client, prompts, log),
		Sessions: store,
		Observer: observer,
		Caps:     caps,
		Log:      log,
	})
}

func TestRun_EmptyInputYieldsMinimalReport(t *testing.T) {
	client := &routingClient{}
	p := newTestPipeline(t, client, Capabilities{Generation: true}, nil, nil)

	result, err := p.Run(context.Background(), report.PatientInput{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := result.Output

	if out.DataCompleteness != 0 {
		t.Errorf("completeness = %f, want 0.0 for empty input", out.DataCompleteness)
	}
	if len(out.PatientHPOObserved) != 0 || len(out.DiseaseCandidates) != 0 || len(out.Differential) != 0 {
		t.Errorf("empty input must yield an empty report, got observed=%d candidates=%d differential=%d",
			len(out.PatientHPOObserved), len(out.DiseaseCandidates), len(out.Differential))
	}
	if out.RedFlags == nil || out.PatientHPOExcluded == nil || out.TimingProfiles == nil {
		t.Error("empty report slices must be present, not null")
	}
	if client.calls != 0 {
		t.Errorf("model calls = %d, want 0 for empty input", client.calls)
	}
	names := stepNames(result.Steps)
	if len(names) == 0 || names[len(names)-1] != StepComplete {
		t.Errorf("steps = %v, want a completed run", names)
	}
}

func TestRun_WhitespaceNoteSkipsExtraction(t *testing.T) {
	client := &routingClient{err: core.ErrGenerationFailed}
	p := newTestPipeline(t, client, Capabilities{Generation: true}, nil, nil)

	result, err := p.Run(context.Background(), report.PatientInput{
		FreeText: "   \n\t ",
		HPOTerms: []string{"HP:0001250"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Only the reasoning attempt reaches the model; the extractors never run
	// on a whitespace-only note.
	if client.calls != 1 {
		t.Errorf("model calls = %d, want 1", client.calls)
	}
	if len(result.Output.PatientHPOExcluded) != 0 || len(result.Output.TimingProfiles) != 0 {
		t.Error("whitespace-only note must leave exclusions and timing empty")
	}
}

func TestRun_UnknownTermIDLoggedAtSafetyGate(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	snap := testkit.Snapshot()
	p := NewPipeline(PipelineDeps{
		Snapshot: snap,
		Resolver: match.NewResolver(snap),
		Ranker:   rank.NewRanker(snap),
		RedFlags: redflag.NewEngine(snap, nil),
		Log:      log,
	})

	if _, err := p.Run(context.Background(), report.PatientInput{
		HPOTerms: []string{"HP:9999999", "HP:0001250"},
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	found := false
	for _, entry := range hook.AllEntries() {
		if entry.Data["term"] == core.TermID("HP:9999999") {
			found = true
		}
	}
	if !found {
		t.Error("expected a log entry for the unknown term id")
	}
}

func TestRun_UrgentFlagTerminatesEarly(t *testing.T) {
	client := &routingClient{}
	p := newTestPipeline(t, client, Capabilities{Generation: true}, nil, nil)

	result, err := p.Run(context.Background(), report.PatientInput{
		HPOTerms: []string{"HP:0002133", "HP:0001263"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	out := result.Output
	if !redflag.HasUrgent(out.RedFlags) {
		t.Fatal("expected an urgent red flag")
	}
	if len(out.PatientHPOObserved) != 0 {
		t.Errorf("observed terms = %d, want 0 after safety termination", len(out.PatientHPOObserved))
	}
	if len(out.Differential) != 0 || len(out.DiseaseCandidates) != 0 {
		t.Error("expected empty differential and candidates after safety termination")
	}
	if len(out.NextBestSteps) != 1 || out.NextBestSteps[0].ActionType != report.ActionUrgentEscalation {
		t.Errorf("next steps = %+v, want a single urgent escalation", out.NextBestSteps)
	}
	if client.calls != 0 {
		t.Errorf("model calls = %d, want 0 after safety termination", client.calls)
	}

	names := stepNames(result.Steps)
	want := []string{StepRedFlagCheck, StepComplete}
	if len(names) != len(want) || names[0] != want[0] || names[1] != want[1] {
		t.Errorf("steps = %v, want %v", names, want)
	}
}

func TestRun_FullAnalysisWithExtraction(t *testing.T) {
	client := &routingClient{
		excluded:  `[{"finding": "hypoglycemia", "raw_text": "No hypoglycemia", "exclusion_type": "explicit", "confidence": "high"}]`,
		timing:    `[{"phenotype_ref": "Seizure", "onset": "6 months", "onset_normalized": 0.5, "progression": "stable", "confidence": "high"}]`,
		reasoning: "```json\n{\"differential\": [{\"disease\": \"Fixture epileptic encephalopathy\", \"disease_id\": \"OMIM:100100\", \"confidence\": \"high\", \"confidence_reasoning\": \"Both core phenotypes present\"}], \"next_best_steps\": [{\"rank\": 1, \"action_type\": \"genetic_testing\", \"action\": \"Order epilepsy gene panel\", \"rationale\": \"Seizure phenotype with developmental delay\", \"urgency\": \"routine\", \"evidence_source\": \"enrichment_profile\"}], \"what_would_change\": [\"Brain MRI findings\"], \"uncertainty\": {\"known\": [\"seizures\"], \"missing\": [\"family history\"], \"ambiguous\": []}}\n```",
	}
	store := &recordingStore{}
	p := newTestPipeline(t, client, Capabilities{Generation: true, Sessions: true}, store, nil)

	result, err := p.Run(context.Background(), report.PatientInput{
		FreeText: "Seizures and developmental delay. No hypoglycemia reported previously.",
		HPOTerms: []string{"HP:0001250"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := result.Output

	if len(out.Differential) != 1 || out.Differential[0].Confidence != "high" {
		t.Fatalf("differential = %+v, want the reasoned entry", out.Differential)
	}
	if len(out.PatientHPOExcluded) != 1 || out.PatientHPOExcluded[0].MappedTermID != "HP:0001943" {
		t.Fatalf("exclusions = %+v, want hypoglycemia mapped", out.PatientHPOExcluded)
	}
	if len(out.TimingProfiles) != 1 || out.TimingProfiles[0].OnsetStage != "Infantile" {
		t.Fatalf("timing = %+v, want one infantile profile", out.TimingProfiles)
	}

	// The mapped exclusion is a direct term of the metabolic disease, so the
	// re-ranked candidate list must carry its penalty.
	penalized := false
	for _, dc := range out.DiseaseCandidates {
		if dc.DiseaseID == "ORPHA:200300" && dc.ExcludedPenalty {
			penalized = true
		}
	}
	if !penalized {
		t.Error("expected the metabolic disease to carry the exclusion penalty")
	}

	if store.inputs != 1 || store.outputs != 1 || store.contexts != 1 || store.tools == 0 {
		t.Errorf("store writes = %+v, want input, context, output, and tool records", store)
	}

	names := stepNames(result.Steps)
	want := []string{StepRedFlagCheck, StepHPOMapping, StepDiseaseMatch, StepExtraction, StepProfileFetch, StepComplete}
	if len(names) != len(want) {
		t.Fatalf("steps = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("steps = %v, want %v", names, want)
		}
	}
}

func TestRun_ReasoningFailureDegrades(t *testing.T) {
	client := &routingClient{err: core.ErrGenerationFailed}
	p := newTestPipeline(t, client, Capabilities{Generation: true}, nil, nil)

	result, err := p.Run(context.Background(), report.PatientInput{
		FreeText: "Seizures and developmental delay",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := result.Output

	if len(out.Differential) == 0 {
		t.Fatal("degraded report should still carry a differential")
	}
	if len(out.Differential) > degradedTopN {
		t.Errorf("degraded differential has %d entries, want at most %d", len(out.Differential), degradedTopN)
	}
	for _, entry := range out.Differential {
		if entry.Confidence != "low" {
			t.Errorf("degraded entry %s has confidence %q, want low", entry.DiseaseID, entry.Confidence)
		}
	}
	if len(out.NextBestSteps) != 1 || out.NextBestSteps[0].ActionType != report.ActionRefinePhenotype {
		t.Errorf("next steps = %+v, want a single refine_phenotype step", out.NextBestSteps)
	}
	if len(out.PatientHPOExcluded) != 0 || len(out.TimingProfiles) != 0 {
		t.Error("failed extraction should leave exclusions and timing empty")
	}
	if len(out.DiseaseCandidates) == 0 {
		t.Error("ranking is deterministic and must survive collaborator failures")
	}
}

func TestRun_KnownTermsOnlyWithUnreachableGeneration(t *testing.T) {
	client := &routingClient{err: core.ErrGenerationFailed}
	p := newTestPipeline(t, client, Capabilities{Generation: true}, nil, nil)

	result, err := p.Run(context.Background(), report.PatientInput{
		HPOTerms: []string{"HP:0001250", "HP:0001263", "HP:0001252", "HP:0001943", "HP:0001631"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := result.Output

	// No free text means no extraction calls; the only model call is the
	// reasoning attempt, which fails into the degraded path.
	if client.calls != 1 {
		t.Errorf("model calls = %d, want 1", client.calls)
	}
	if len(out.Differential) != len(out.DiseaseCandidates) && len(out.Differential) != degradedTopN {
		t.Errorf("degraded differential has %d entries for %d candidates", len(out.Differential), len(out.DiseaseCandidates))
	}
	for i, entry := range out.Differential {
		if entry.DiseaseID != string(out.DiseaseCandidates[i].DiseaseID) {
			t.Errorf("degraded entry %d = %s, want candidate order preserved (%s)",
				i, entry.DiseaseID, out.DiseaseCandidates[i].DiseaseID)
		}
		if entry.Confidence != "low" {
			t.Errorf("degraded entry %d confidence = %q, want low", i, entry.Confidence)
		}
	}
	if len(out.NextBestSteps) != 1 || out.NextBestSteps[0].ActionType != report.ActionRefinePhenotype {
		t.Errorf("next steps = %+v, want a single refine_phenotype step", out.NextBestSteps)
	}
}

func TestRun_GenerationDisabledSkipsModelCalls(t *testing.T) {
	client := &routingClient{}
	p := newTestPipeline(t, client, Capabilities{Generation: false}, nil, nil)

	result, err := p.Run(context.Background(), report.PatientInput{
		FreeText: "Seizures and hypotonia",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if client.calls != 0 {
		t.Errorf("model calls = %d, want 0 with generation disabled", client.calls)
	}
	if len(result.Output.Differential) == 0 {
		t.Error("expected the degraded differential")
	}
}

func TestRun_FreeTextSurfacesWarningFlags(t *testing.T) {
	p := newTestPipeline(t, &routingClient{}, Capabilities{}, nil, nil)

	result, err := p.Run(context.Background(), report.PatientInput{
		FreeText: "Fainting and hypotonia",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := result.Output

	found := false
	for _, f := range out.RedFlags {
		if f.Label == "Syncope" && f.Severity == redflag.SeverityWarning {
			found = true
		}
	}
	if !found {
		t.Fatalf("flags = %+v, want the syncope warning from free text", out.RedFlags)
	}
	if len(out.Differential) == 0 {
		t.Error("a warning flag must not stop the run")
	}
}

func TestRun_DuplicateTermsKeepFirstOccurrence(t *testing.T) {
	p := newTestPipeline(t, &routingClient{}, Capabilities{}, nil, nil)

	result, err := p.Run(context.Background(), report.PatientInput{
		FreeText: "seizures",
		HPOTerms: []string{"HP:0001250"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	count := 0
	for _, m := range result.Output.PatientHPOObserved {
		if m.TermID == "HP:0001250" {
			count++
			if m.RawInput != "HP:0001250" {
				t.Errorf("kept occurrence has raw input %q, want the verbatim code", m.RawInput)
			}
		}
	}
	if count != 1 {
		t.Errorf("seizure appears %d times, want 1", count)
	}
}

func TestRun_ReanalysisIncludedWhenPriorTestsPresent(t *testing.T) {
	p := newTestPipeline(t, &routingClient{}, Capabilities{}, nil, nil)

	result, err := p.Run(context.Background(), report.PatientInput{
		HPOTerms: []string{"HP:0001250", "HP:0001263"},
		PriorTests: []report.PriorTest{
			{TestType: "genetic", Name: "Trio exome", Result: "negative", Year: 2021},
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Output.Reanalysis == nil {
		t.Fatal("expected a reanalysis result when prior tests are present")
	}
	if result.Output.Reanalysis.Score <= 0 {
		t.Errorf("score = %v, want > 0 for a stale negative exome", result.Output.Reanalysis.Score)
	}
}

func TestRun_ObserverPanicIsRecovered(t *testing.T) {
	observer := ports.StepObserverFunc(func(ports.StepEvent) { panic("observer bug") })
	p := newTestPipeline(t, &routingClient{}, Capabilities{}, nil, observer)

	result, err := p.Run(context.Background(), report.PatientInput{HPOTerms: []string{"HP:0001250"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Output == nil {
		t.Fatal("run must complete despite a panicking observer")
	}
}

func TestRun_SessionStoreFailuresAreIgnored(t *testing.T) {
	store := &recordingStore{fail: true}
	p := newTestPipeline(t, &routingClient{}, Capabilities{Sessions: true}, store, nil)

	result, err := p.Run(context.Background(), report.PatientInput{HPOTerms: []string{"HP:0001250"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Output == nil {
		t.Fatal("run must complete despite a failing session store")
	}
}

func stepNames(steps []report.StepDuration) []string {
	names := make([]string, 0, len(steps))
	for _, s := range steps {
		names = append(names, s.Name)
	}
	return names
}
