package ports

import (
	"context"

	"phenodx/domain/core"
	"phenodx/domain/report"
)

// SessionStore persists per-analysis artifacts for audit and replay. All
// writes are best-effort: a failed store call must never fail the analysis.
type SessionStore interface {
	SaveInput(ctx context.Context, id core.SessionID, input report.PatientInput) error
	SaveToolCall(ctx context.Context, id core.SessionID, record report.ToolCallRecord) error
	SaveContext(ctx context.Context, id core.SessionID, blob any) error
	SaveOutput(ctx context.Context, id core.SessionID, output *report.AgentOutput) error
	LoadOutput(ctx context.Context, id core.SessionID) (*report.AgentOutput, error)
}
