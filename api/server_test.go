package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"phenodx/app"
	"phenodx/domain/core"
	"phenodx/domain/match"
	"phenodx/domain/ontology"
	"phenodx/domain/rank"
	"phenodx/domain/redflag"
	"phenodx/domain/report"
	"phenodx/internal/testkit"
	"phenodx/ports"
)

// memoryStore is an in-process session store for handler tests.
type memoryStore struct {
	mu      sync.Mutex
	outputs map[core.SessionID]*report.AgentOutput
}

func newMemoryStore() *memoryStore {
	return &memoryStore{outputs: make(map[core.SessionID]*report.AgentOutput)}
}

func (s *memoryStore) SaveInput(context.Context, core.SessionID, report.PatientInput) error {
	return nil
}

func (s *memoryStore) SaveToolCall(context.Context, core.SessionID, report.ToolCallRecord) error {
	return nil
}

func (s *memoryStore) SaveContext(context.Context, core.SessionID, any) error { return nil }

func (s *memoryStore) SaveOutput(_ context.Context, id core.SessionID, out *report.AgentOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[id] = out
	return nil
}

func (s *memoryStore) LoadOutput(_ context.Context, id core.SessionID) (*report.AgentOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, ok := s.outputs[id]
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	return out, nil
}

func newTestServer(t *testing.T, store *memoryStore) (*Server, *ontology.Snapshot) {
	t.Helper()
	snap := testkit.Snapshot()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	deps := app.PipelineDeps{
		Snapshot: snap,
		Resolver: match.NewResolver(snap),
		Ranker:   rank.NewRanker(snap),
		RedFlags: redflag.NewEngine(snap, nil),
		Log:      log,
	}
	var sessions ports.SessionStore
	if store != nil {
		sessions = store
		deps.Sessions = store
		deps.Caps.Sessions = true
	}
	return NewServer(app.NewPipeline(deps), sessions, snap, log), snap
}

func TestAnalyze_ReturnsRankedReport(t *testing.T) {
	server, _ := newTestServer(t, newMemoryStore())
	body, _ := json.Marshal(report.PatientInput{HPOTerms: []string{"HP:0001250", "HP:0001263"}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", bytes.NewReader(body))
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp analyzeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SessionID == "" {
		t.Error("expected a session id")
	}
	if len(resp.Output.DiseaseCandidates) == 0 {
		t.Error("expected ranked candidates")
	}
	if resp.Output.DiseaseCandidates[0].DiseaseID != "OMIM:100100" {
		t.Errorf("top candidate = %s, want OMIM:100100", resp.Output.DiseaseCandidates[0].DiseaseID)
	}
	if len(resp.Steps) == 0 {
		t.Error("expected step timings")
	}
}

func TestAnalyze_RejectsMalformedBody(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader("{not json"))
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAnalyze_EmptyInputYieldsEmptyReport(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader("{}"))
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp analyzeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Output.DataCompleteness != 0 {
		t.Errorf("completeness = %f, want 0.0", resp.Output.DataCompleteness)
	}
	if len(resp.Output.DiseaseCandidates) != 0 || len(resp.Output.Differential) != 0 {
		t.Error("empty input must yield an empty, well-formed report")
	}
}

func TestReport_RendersStoredSessionAsHTML(t *testing.T) {
	store := newMemoryStore()
	server, _ := newTestServer(t, store)

	body, _ := json.Marshal(report.PatientInput{HPOTerms: []string{"HP:0001250", "HP:0001263"}})
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/analyze", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze status = %d", rec.Code)
	}
	var resp analyzeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	rec = httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/report/"+resp.SessionID, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("report status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q, want text/html", ct)
	}
	html := rec.Body.String()
	if !strings.Contains(html, "Diagnostic Report") {
		t.Error("rendered report is missing the title")
	}
	if !strings.Contains(html, "<h1") {
		t.Error("expected markdown rendered to HTML")
	}
}

func TestReport_UnknownSessionIs404(t *testing.T) {
	server, _ := newTestServer(t, newMemoryStore())

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/report/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestReport_DisabledStoreIs503(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/report/some-session", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestPatients_ListsSamplePatients(t *testing.T) {
	server, snap := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var patients []ontology.SamplePatient
	if err := json.Unmarshal(rec.Body.Bytes(), &patients); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(patients) != len(snap.Patients) {
		t.Fatalf("patients = %d, want %d", len(patients), len(snap.Patients))
	}
	if patients[0].ID != "patient_1" {
		t.Errorf("first patient = %s, want patient_1", patients[0].ID)
	}
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
