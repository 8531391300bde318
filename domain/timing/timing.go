// Package timing models phenotype onset and course information.
package timing

// Progression of a phenotype over time.
type Progression string

const (
	ProgressionStable      Progression = "stable"
	ProgressionProgressive Progression = "progressive"
	ProgressionImproving   Progression = "improving"
	ProgressionEpisodic    Progression = "episodic"
)

// Profile is the temporal course of one phenotype. OnsetNormalized is the
// onset age in decimal years, 0.0 meaning birth.
type Profile struct {
	PhenotypeRef    string      `json:"phenotype_ref"`
	PhenotypeLabel  string      `json:"phenotype_label,omitempty"`
	Onset           string      `json:"onset"`
	OnsetNormalized float64     `json:"onset_normalized"`
	OnsetStage      string      `json:"onset_stage"`
	Resolution      string      `json:"resolution,omitempty"`
	IsOngoing       bool        `json:"is_ongoing"`
	Progression     Progression `json:"progression"`
	RawEvidence     string      `json:"raw_evidence"`
	Confidence      string      `json:"confidence"`
}

// OnsetStage maps a decimal-year onset age to a named developmental stage.
func OnsetStage(years float64) string {
	switch {
	case years <= 0.0:
		return "Congenital/Neonatal"
	case years <= 1.0:
		return "Infantile"
	case years <= 5.0:
		return "Childhood"
	case years <= 15.0:
		return "Juvenile"
	default:
		return "Adult"
	}
}

// NormalizeProgression coerces a free-form value to a known progression,
// defaulting to stable.
func NormalizeProgression(s string) Progression {
	switch Progression(s) {
	case ProgressionProgressive, ProgressionImproving, ProgressionEpisodic:
		return Progression(s)
	default:
		return ProgressionStable
	}
}
