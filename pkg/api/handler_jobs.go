package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/evoengine/evoengine/pkg/models"
	"github.com/evoengine/evoengine/pkg/taskqueue"
)

// createJobHandler accepts a new search request, persists it in the
// pending state, and schedules the first orchestration cycle.
func (s *Server) createJobHandler(c *gin.Context) {
	var req SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job := &models.Job{
		JobID:           uuid.NewString(),
		Status:          models.JobStatusPending,
		ProblemContext:  req.ProblemContext,
		Preferences:     req.Preferences,
		EvolutionConfig: req.resolve(s.cfg.Evolution),
	}

	ctx := c.Request.Context()
	if err := s.store.CreateJob(ctx, job); err != nil {
		writeStoreError(c, err)
		return
	}

	payload := taskqueue.OrchestratorPayload{JobID: job.JobID, CheckAttempt: 0}
	if err := s.queue.CreateOrchestratorTask(ctx, payload, time.Now()); err != nil {
		writeStoreError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, SubmitJobResponse{JobID: job.JobID, Status: string(models.JobStatusPending)})
}

// getJobHandler returns the full job document, including per-generation
// progress.
func (s *Server) getJobHandler(c *gin.Context) {
	job, err := s.store.GetJobStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// jobResults is the projection returned by getJobResultsHandler: only the
// fields a caller polling for results needs, not the full generation
// trace.
type jobResults struct {
	JobID             string                     `json:"jobId"`
	Status            models.JobStatus           `json:"status"`
	TopSolutions      []models.ScoredIdea        `json:"topSolutions,omitempty"`
	AllSolutions      []models.ScoredIdea        `json:"allSolutions,omitempty"`
	GenerationHistory []models.GenerationSummary `json:"generationHistory,omitempty"`
	Error             string                     `json:"error,omitempty"`
}

func (s *Server) getJobResultsHandler(c *gin.Context) {
	job, err := s.store.GetJobStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobResults{
		JobID:             job.JobID,
		Status:            job.Status,
		TopSolutions:      job.TopSolutions,
		AllSolutions:      job.AllSolutions,
		GenerationHistory: job.GenerationHistory,
		Error:             job.Error,
	})
}

// cancelJobHandler marks a job failed so the orchestrator stops
// rescheduling it on its next decision cycle.
func (s *Server) cancelJobHandler(c *gin.Context) {
	if err := s.store.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}
