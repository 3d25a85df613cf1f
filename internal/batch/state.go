// internal/batch/state.go
package batch

import "fmt"

// TaskState is the lifecycle state of the orchestrator.
type TaskState int

const (
	Idle TaskState = iota
	Initializing
	Running
	// Paused is reserved; no transition enters it.
	Paused
	Stopping
	Completed
	Error
)

func (s TaskState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopping:
		return "stopping"
	case Completed:
		return "completed"
	case Error:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Active reports whether a batch loop owns the state.
func (s TaskState) Active() bool {
	return s == Initializing || s == Running || s == Stopping
}

// ProcessingStats are the per-batch counters. They only grow during a run.
type ProcessingStats struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Success   int `json:"success"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Remaining is the number of queued records not yet processed.
func (s ProcessingStats) Remaining() int {
	if r := s.Total - s.Processed; r > 0 {
		return r
	}
	return 0
}

// Percent is the integer share of processed records, 0 for an empty batch.
func (s ProcessingStats) Percent() int {
	if s.Total == 0 {
		return 0
	}
	return s.Processed * 100 / s.Total
}
