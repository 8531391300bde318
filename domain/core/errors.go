package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound        = errors.New("resource not found")
	ErrSessionNotFound = fmt.Errorf("%w: session", ErrNotFound)

	// Collaborator errors
	ErrGenerationFailed   = errors.New("generation service call failed")
	ErrGenerationEmpty    = errors.New("generation service returned an empty response")
	ErrStructuredRecovery = errors.New("no structured data could be recovered")
)

// IsNotFoundError reports whether err is a not-found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsCollaboratorError reports whether err comes from an external collaborator
// and should degrade to an empty/default result rather than abort the run.
func IsCollaboratorError(err error) bool {
	return errors.Is(err, ErrGenerationFailed) ||
		errors.Is(err, ErrGenerationEmpty) ||
		errors.Is(err, ErrStructuredRecovery)
}
