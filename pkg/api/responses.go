package api

// SubmitJobResponse is returned by POST /api/v1/jobs.
type SubmitJobResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// OrchestrateRequest is the body POSTed by the dispatcher to /orchestrate.
type OrchestrateRequest struct {
	JobID        string `json:"jobId" binding:"required"`
	CheckAttempt int    `json:"checkAttempt"`
}

// OrchestrateResponse reports the decision the orchestrator acted on.
type OrchestrateResponse struct {
	Action string `json:"action"`
}

// WorkerRequest is the body POSTed by the dispatcher to /worker.
type WorkerRequest struct {
	JobID      string `json:"jobId" binding:"required"`
	Type       string `json:"type" binding:"required"`
	Generation int    `json:"generation" binding:"required"`
}
