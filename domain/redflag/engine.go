// Package redflag screens patient term sets for urgent or concerning
// phenotype patterns. Deterministic rule engine, no model calls: urgency
// detection must be reproducible and explainable.
package redflag

import (
	"phenodx/domain/core"
	"phenodx/domain/ontology"
)

// Severity of a raised flag.
type Severity string

const (
	SeverityUrgent  Severity = "URGENT"
	SeverityWarning Severity = "WARNING"
	// SeverityWatch is reserved for low-grade rules; the curated tables do not
	// use it yet.
	SeverityWatch Severity = "WATCH"
)

// Flag is one raised safety finding with the patient terms that triggered it.
type Flag struct {
	Label             string        `json:"flag_label"`
	Severity          Severity      `json:"severity"`
	TriggeringTerms   []core.TermID `json:"triggering_terms"`
	RecommendedAction string        `json:"recommended_action"`
}

// subtreeRule fires when any patient term falls inside the subtree rooted at
// Root, the root itself included.
type subtreeRule struct {
	Root     core.TermID
	Label    string
	Severity Severity
	Action   string
}

// Curated safety list. Ordered slice, not a map: flag order is part of the
// engine's contract.
var subtreeRules = []subtreeRule{
	{"HP:0001695", "Cardiac arrest", SeverityUrgent,
		"Immediate cardiac monitoring and resuscitation readiness"},
	{"HP:0002098", "Respiratory distress", SeverityUrgent,
		"Assess airway and breathing; consider respiratory support"},
	{"HP:0002133", "Status epilepticus", SeverityUrgent,
		"Urgent neurology consult; initiate seizure protocol"},
	{"HP:0001259", "Coma", SeverityUrgent,
		"Immediate neurological assessment and ICU evaluation"},
	{"HP:0001279", "Syncope", SeverityWarning,
		"Cardiac and neurological workup recommended"},
	{"HP:0006579", "Neonatal onset", SeverityWarning,
		"Neonatal onset detected — consider early metabolic and genetic screening"},
	{"HP:0003812", "Clinical deterioration", SeverityWarning,
		"Monitor for progressive decline; reassess diagnosis"},
}

// ComboRule fires when every listed subtree root is represented by at least
// one patient term. Kept as data so new combinations ship without touching
// engine code.
type ComboRule struct {
	Label    string
	Severity Severity
	Action   string
	AllOf    []core.TermID
}

// DefaultComboRules returns the built-in combination table.
func DefaultComboRules() []ComboRule {
	return []ComboRule{
		{
			Label:    "Possible metabolic cardiomyopathy",
			Severity: SeverityWarning,
			Action:   "Consider metabolic cardiomyopathy workup",
			AllOf: []core.TermID{
				"HP:0001626", // Abnormality of the cardiovascular system
				"HP:0003011", // Abnormality of the musculature
			},
		},
		{
			Label:    "Possible metabolic epilepsy",
			Severity: SeverityWarning,
			Action:   "Consider urgent metabolic screening",
			AllOf: []core.TermID{
				"HP:0001250", // Seizure
				"HP:0012759", // Neurodevelopmental abnormality
				"HP:0001939", // Abnormality of metabolism/homeostasis
			},
		},
	}
}

// Engine evaluates the subtree table and combination rules against a
// snapshot. Stateless per call; one instance serves all requests.
type Engine struct {
	snap   *ontology.Snapshot
	combos []ComboRule
}

// NewEngine builds an engine over the snapshot. A nil combos slice selects
// the built-in combination table.
func NewEngine(snap *ontology.Snapshot, combos []ComboRule) *Engine {
	if combos == nil {
		combos = DefaultComboRules()
	}
	return &Engine{snap: snap, combos: combos}
}

// Screen raises every matching flag for the patient term set, deduplicated by
// label, subtree rules first and combination rules after, each group in table
// order. Unknown term ids contribute nothing and never error.
func (e *Engine) Screen(patientTerms []core.TermID) []Flag {
	lineage := make(map[core.TermID]ontology.TermSet, len(patientTerms))
	for _, id := range patientTerms {
		set := ontology.Ancestors(e.snap, id, e.snap.Root)
		set.Add(id)
		lineage[id] = set
	}

	flags := make([]Flag, 0, 2)
	seen := make(map[string]bool)

	for _, rule := range subtreeRules {
		triggering := termsUnder(patientTerms, lineage, rule.Root)
		if len(triggering) == 0 || seen[rule.Label] {
			continue
		}
		flags = append(flags, Flag{
			Label:             rule.Label,
			Severity:          rule.Severity,
			TriggeringTerms:   triggering,
			RecommendedAction: rule.Action,
		})
		seen[rule.Label] = true
	}

	for _, combo := range e.combos {
		if seen[combo.Label] || !e.comboSatisfied(patientTerms, lineage, combo) {
			continue
		}
		triggering := make([]core.TermID, 0, len(patientTerms))
		for _, id := range patientTerms {
			for _, root := range combo.AllOf {
				if lineage[id].Contains(root) {
					triggering = append(triggering, id)
					break
				}
			}
		}
		flags = append(flags, Flag{
			Label:             combo.Label,
			Severity:          combo.Severity,
			TriggeringTerms:   triggering,
			RecommendedAction: combo.Action,
		})
		seen[combo.Label] = true
	}

	return flags
}

// HasUrgent reports whether any flag in the set is URGENT.
func HasUrgent(flags []Flag) bool {
	for _, f := range flags {
		if f.Severity == SeverityUrgent {
			return true
		}
	}
	return false
}

func (e *Engine) comboSatisfied(patientTerms []core.TermID, lineage map[core.TermID]ontology.TermSet, combo ComboRule) bool {
	for _, root := range combo.AllOf {
		if len(termsUnder(patientTerms, lineage, root)) == 0 {
			return false
		}
	}
	return true
}

// termsUnder returns the patient terms whose lineage contains root, in
// patient input order.
func termsUnder(patientTerms []core.TermID, lineage map[core.TermID]ontology.TermSet, root core.TermID) []core.TermID {
	var out []core.TermID
	for _, id := range patientTerms {
		if lineage[id].Contains(root) {
			out = append(out, id)
		}
	}
	return out
}
