package core

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	// SessionID identifies one orchestrator invocation.
	SessionID ID
	// TermID is a stable ontology term code, e.g. "HP:0001250".
	TermID string
	// DiseaseID is a knowledge-base disease code, e.g. "OMIM:101200" or "ORPHA:558".
	DiseaseID string
)

// NewSessionID allocates a session identifier for a pipeline run
func NewSessionID() SessionID {
	return SessionID(NewID())
}

func (id SessionID) String() string { return ID(id).String() }
func (id TermID) String() string    { return string(id) }
func (id DiseaseID) String() string { return string(id) }

var termCodePattern = regexp.MustCompile(`^HP:\d{7}$`)

// IsTermCode reports whether s is a well-formed ontology term code.
func IsTermCode(s string) bool { return termCodePattern.MatchString(s) }

// ParseSessionID parses a string into SessionID
func ParseSessionID(s string) (SessionID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("session ID cannot be empty")
	}
	return SessionID(s), nil
}
