package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// orchestrateHandler runs one orchestration decision cycle for a job.
// A non-2xx response tells the dispatcher to redeliver the task.
func (s *Server) orchestrateHandler(c *gin.Context) {
	var req OrchestrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	action, err := s.orchestrator.Orchestrate(c.Request.Context(), req.JobID)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, OrchestrateResponse{Action: string(action)})
}
