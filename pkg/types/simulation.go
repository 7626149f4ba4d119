package types

import "time"

// SimulationStatus is the lifecycle state of a queued backtest/tuning run.
type SimulationStatus string

const (
	SimulationPending   SimulationStatus = "PENDING"
	SimulationRunning   SimulationStatus = "RUNNING"
	SimulationCompleted SimulationStatus = "COMPLETED"
	SimulationFailed    SimulationStatus = "FAILED"
	SimulationCancelled SimulationStatus = "CANCELLED"
)

// SimulationTask is one unit of work submitted to the supervisor: a
// backtest replay or an auto-tuner sweep over a parameter set.
type SimulationTask struct {
	ID         string // uuid
	Type       string // "BACKTEST" or "TUNE"
	Status     SimulationStatus
	ParamsHash string // dedup key: hash of the normalized parameter set
	Params     map[string]string

	Markets []string

	ProgressDone  int
	ProgressTotal int

	ResultJSON string
	Error      string

	CancelRequested bool

	OwnerInstance string // process instance id that claimed the row

	CreatedAt   time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
}

// IsTerminal reports whether the task has left the queue/running states.
func (t *SimulationTask) IsTerminal() bool {
	switch t.Status {
	case SimulationCompleted, SimulationFailed, SimulationCancelled:
		return true
	default:
		return false
	}
}
