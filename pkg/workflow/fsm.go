package workflow

import (
	"github.com/guidepath/guidepath/pkg/model"
)

// stepTransitions lists the legal moves for a single step. A step with no stored row is pending.
var stepTransitions = map[model.StepStatus][]model.StepStatus{
	model.StepPending:   {model.StepSnoozed, model.StepSkipped, model.StepCompleted},
	model.StepSnoozed:   {model.StepPending, model.StepSnoozed, model.StepSkipped, model.StepCompleted},
	model.StepSkipped:   {model.StepSkipped},
	model.StepCompleted: {},
}

// executionTransitions lists the legal status changes for an execution. Same-status updates are
// handled by the caller as no-ops and are not listed.
var executionTransitions = map[model.ExecutionStatus][]model.ExecutionStatus{
	model.ExecutionNotStarted: {model.ExecutionInProgress, model.ExecutionSkipped},
	model.ExecutionInProgress: {model.ExecutionCompleted, model.ExecutionSkipped},
	model.ExecutionCompleted:  {},
	model.ExecutionSkipped:    {},
}

func canTransitionStep(from, to model.StepStatus) bool {
	for _, allowed := range stepTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func canTransitionExecution(from, to model.ExecutionStatus) bool {
	for _, allowed := range executionTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
