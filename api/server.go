// Package api exposes the analysis engine over HTTP: submit a patient,
// fetch a stored report, and list the bundled sample patients.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	mdparser "github.com/gomarkdown/markdown/parser"
	"github.com/sirupsen/logrus"

	"phenodx/app"
	"phenodx/domain/core"
	"phenodx/domain/ontology"
	"phenodx/domain/report"
	"phenodx/ports"
)

// Server wires the pipeline and session store into HTTP handlers.
type Server struct {
	pipeline  *app.Pipeline
	sessions  ports.SessionStore
	formatter *report.Formatter
	snap      *ontology.Snapshot
	log       *logrus.Logger
}

// NewServer builds the HTTP server. sessions may be nil when the session
// store is disabled; the report endpoint then answers 503.
func NewServer(pipeline *app.Pipeline, sessions ports.SessionStore, snap *ontology.Snapshot, log *logrus.Logger) *Server {
	return &Server{
		pipeline:  pipeline,
		sessions:  sessions,
		formatter: report.NewFormatter(snap),
		snap:      snap,
		log:       log,
	}
}

// Router returns the full route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/report/{session}", s.handleReport)
		r.Get("/patients", s.handlePatients)
	})
	return r
}

// analyzeResponse is the analyze endpoint's payload.
type analyzeResponse struct {
	SessionID string                `json:"session_id"`
	Output    *report.AgentOutput   `json:"output"`
	Steps     []report.StepDuration `json:"steps"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var input report.PatientInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	result, err := s.pipeline.Run(r.Context(), input)
	if err != nil {
		s.log.WithError(err).Error("analysis run failed")
		s.respondError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	s.respondJSON(w, http.StatusOK, analyzeResponse{
		SessionID: result.SessionID.String(),
		Output:    result.Output,
		Steps:     result.Steps,
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.respondError(w, http.StatusServiceUnavailable, "session store is not enabled")
		return
	}
	sessionID, err := core.ParseSessionID(chi.URLParam(r, "session"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	out, err := s.sessions.LoadOutput(r.Context(), sessionID)
	if err != nil {
		if core.IsNotFoundError(err) {
			s.respondError(w, http.StatusNotFound, "session not found")
			return
		}
		s.log.WithError(err).Error("session load failed")
		s.respondError(w, http.StatusInternalServerError, "could not load session")
		return
	}

	md := s.formatter.Markdown(out, report.PatientInput{}, nil)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(renderHTML(md))
}

func (s *Server) handlePatients(w http.ResponseWriter, r *http.Request) {
	patients := s.snap.Patients
	if patients == nil {
		patients = []ontology.SamplePatient{}
	}
	s.respondJSON(w, http.StatusOK, patients)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.WithError(err).Error("response encoding failed")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// renderHTML converts the markdown report to HTML with tables enabled.
func renderHTML(md string) []byte {
	parser := mdparser.NewWithExtensions(mdparser.CommonExtensions)
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags})
	return markdown.ToHTML([]byte(md), parser, renderer)
}
