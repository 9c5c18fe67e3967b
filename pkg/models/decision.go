package models

// DecisionKind is the orchestrator's pure decision about what to do next
// for a job, computed from the job document alone.
type DecisionKind string

const (
	DecisionAlreadyComplete DecisionKind = "already_complete"
	DecisionWait            DecisionKind = "wait"
	DecisionCreateTask      DecisionKind = "create_task"
	DecisionRetryTask       DecisionKind = "retry_task"
	DecisionMarkComplete    DecisionKind = "mark_complete"
	DecisionMarkFailed      DecisionKind = "mark_failed"
)

// Decision is the result of one orchestrate() evaluation. Phase and
// Generation are populated for CreateTask/RetryTask; Reason is populated
// for MarkFailed.
type Decision struct {
	Kind       DecisionKind
	Phase      Phase
	Generation int
	Reason     string
}
