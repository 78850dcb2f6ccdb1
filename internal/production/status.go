package production

import "wotrack/internal/models"

// DeriveProcessState is the only source of a process status. A process is
// Completed once its completed quantity reaches a non-empty pool, InProgress
// while material is checked out, and Pending otherwise.
func DeriveProcessState(completed, inUse, pool int) models.State {
	switch {
	case pool > 0 && completed >= pool:
		return models.StateCompleted
	case inUse > 0:
		return models.StateInProgress
	default:
		return models.StatePending
	}
}

// DeriveAggregateState folds child states into the parent state: all
// Completed gives Completed, any started child gives InProgress, and an
// empty or untouched set stays Pending.
func DeriveAggregateState(states []models.State) models.State {
	if len(states) == 0 {
		return models.StatePending
	}
	completed, started := 0, 0
	for _, s := range states {
		switch s {
		case models.StateCompleted:
			completed++
			started++
		case models.StateInProgress:
			started++
		}
	}
	switch {
	case completed == len(states):
		return models.StateCompleted
	case started > 0:
		return models.StateInProgress
	default:
		return models.StatePending
	}
}
