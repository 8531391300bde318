package ports

// StepStatus of a pipeline step notification.
type StepStatus string

const (
	StepStarted  StepStatus = "started"
	StepFinished StepStatus = "finished"
	StepFailed   StepStatus = "failed"
)

// StepEvent is one pipeline step transition.
type StepEvent struct {
	Name            string
	Status          StepStatus
	DurationSeconds float64
	Detail          string
}

// StepObserver receives pipeline progress. Implementations must be fast;
// the orchestrator recovers observer panics but still calls it inline.
type StepObserver interface {
	OnStep(event StepEvent)
}

// StepObserverFunc adapts a function to StepObserver.
type StepObserverFunc func(event StepEvent)

// OnStep calls f.
func (f StepObserverFunc) OnStep(event StepEvent) { f(event) }
