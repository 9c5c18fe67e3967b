package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/evoengine/evoengine/pkg/models"
	"github.com/evoengine/evoengine/pkg/workers"
)

// workerHandler executes one phase task delivered by the dispatcher. The
// queued payload only carries the job id, phase type, and generation
// number; the job document supplies everything else a worker needs.
func (s *Server) workerHandler(c *gin.Context) {
	var req WorkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := s.store.GetJobStatus(c.Request.Context(), req.JobID)
	if err != nil {
		writeStoreError(c, err)
		return
	}

	var runErr error
	switch models.Phase(req.Type) {
	case models.PhaseVariator:
		var topPerformers []models.ScoredIdea
		if prev := job.Generations[req.Generation-1]; prev != nil {
			topPerformers = prev.TopPerformers
		}
		runErr = s.variator.Run(c.Request.Context(), workers.VariatorInput{
			JobID:           req.JobID,
			Generation:      req.Generation,
			EvolutionConfig: job.EvolutionConfig,
			ProblemContext:  job.ProblemContext,
			TopPerformers:   topPerformers,
		})

	case models.PhaseEnricher:
		gen := job.Generations[req.Generation]
		var ideas []models.Idea
		if gen != nil {
			ideas = gen.Ideas
		}
		runErr = s.enricher.Run(c.Request.Context(), workers.EnricherInput{
			JobID:           req.JobID,
			Generation:      req.Generation,
			EvolutionConfig: job.EvolutionConfig,
			ProblemContext:  job.ProblemContext,
			Ideas:           ideas,
		})

	case models.PhaseRanker:
		gen := job.Generations[req.Generation]
		var enriched []models.EnrichedIdea
		if gen != nil {
			enriched = gen.EnrichedIdeas
		}
		runErr = s.ranker.Run(c.Request.Context(), workers.RankerInput{
			JobID:                 req.JobID,
			Generation:            req.Generation,
			EnrichedIdeas:         enriched,
			MaxCapex:              job.Preferences.MaxCapex,
			TopSelectCount:        job.EvolutionConfig.TopSelectCount,
			DiversificationFactor: job.EvolutionConfig.DiversificationFactor,
		})

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown worker type " + req.Type})
		return
	}

	if runErr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": runErr.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
