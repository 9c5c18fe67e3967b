// Package orchestrator implements the re-entrant state machine that
// drives a job through generations and phases: Decide is a pure function
// of the job document, and Orchestrator wraps it with the side effects
// (store writes, task enqueues) needed to act on that decision.
package orchestrator

import (
	"time"

	"github.com/evoengine/evoengine/pkg/models"
)

// Decide computes the next action for a job, per the first-matching-rule
// procedure. It is pure: given the same job document and now, it always
// returns the same Decision.
func Decide(job *models.Job, now time.Time, phaseTimeout time.Duration) models.Decision {
	if job.Status == models.JobStatusCompleted || job.Status == models.JobStatusFailed {
		return models.Decision{Kind: models.DecisionAlreadyComplete}
	}
	if job.Status == models.JobStatusPending {
		return models.Decision{Kind: models.DecisionCreateTask, Phase: models.PhaseVariator, Generation: 1}
	}

	g := job.CurrentGeneration
	if g == 0 {
		g = 1
	}
	gen := job.Generations[g]
	if gen == nil {
		gen = &models.Generation{}
	}

	for _, phase := range []models.Phase{models.PhaseVariator, models.PhaseEnricher, models.PhaseRanker} {
		if gen.Complete(phase) {
			continue
		}
		if gen.Started(phase) {
			startedAt := gen.StartedAt(phase)
			if startedAt != nil && now.Sub(*startedAt) > phaseTimeout {
				return models.Decision{Kind: models.DecisionRetryTask, Phase: phase, Generation: g}
			}
			return models.Decision{Kind: models.DecisionWait}
		}
		return models.Decision{Kind: models.DecisionCreateTask, Phase: phase, Generation: g}
	}

	if g < job.EvolutionConfig.Generations {
		return models.Decision{Kind: models.DecisionCreateTask, Phase: models.PhaseVariator, Generation: g + 1}
	}
	return models.Decision{Kind: models.DecisionMarkComplete}
}

// BackoffDelay computes the orchestrator re-enqueue delay for attempt,
// per delay(attempt) = min(base * multiplier^attempt, cap) + jitter[0, jitterMax).
func BackoffDelay(attempt int, base, multiplier, capMillis, jitterMax float64, jitter func() float64) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= multiplier
	}
	if delay > capMillis {
		delay = capMillis
	}
	delay += jitter() * jitterMax
	return time.Duration(delay) * time.Millisecond
}
