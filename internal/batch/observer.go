// internal/batch/observer.go
package batch

// OutcomeKind classifies how a batch ended.
type OutcomeKind string

const (
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeStopped   OutcomeKind = "stopped"
	OutcomeError     OutcomeKind = "error"
)

// Outcome is the terminal notification of a batch.
type Outcome struct {
	Kind  OutcomeKind
	RunID string
	Stats ProcessingStats
	Err   error
}

// Message renders the outcome for display.
func (o Outcome) Message() string {
	switch o.Kind {
	case OutcomeCompleted:
		return "batch completed"
	case OutcomeStopped:
		return "batch stopped by request"
	}
	if o.Err != nil {
		return "batch failed: " + o.Err.Error()
	}
	return "batch failed"
}

// Observer receives one-way notifications from the worker goroutine. Calls
// are synchronous; implementations must not block for long.
type Observer interface {
	Progress(msg string)
	Stats(s ProcessingStats)
	Terminal(o Outcome)
}

// Observers fans notifications out to several observers in order.
type Observers []Observer

func (obs Observers) Progress(msg string) {
	for _, o := range obs {
		o.Progress(msg)
	}
}

func (obs Observers) Stats(s ProcessingStats) {
	for _, o := range obs {
		o.Stats(s)
	}
}

func (obs Observers) Terminal(out Outcome) {
	for _, o := range obs {
		o.Terminal(out)
	}
}

type nopObserver struct{}

func (nopObserver) Progress(string)       {}
func (nopObserver) Stats(ProcessingStats) {}
func (nopObserver) Terminal(Outcome)      {}
