package orchestrator

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/evoengine/evoengine/pkg/config"
	"github.com/evoengine/evoengine/pkg/models"
	"github.com/evoengine/evoengine/pkg/store"
	"github.com/evoengine/evoengine/pkg/taskqueue"
)

// Orchestrator wraps the pure Decide function with the side effects
// needed to act on it: store mutation, task enqueue, and finalization.
type Orchestrator struct {
	Store *store.Store
	Queue *taskqueue.Queue
	Cfg   *config.QueueConfig
}

// Orchestrate runs one decision cycle for jobId. It is safe to call
// concurrently for different jobs, and safe to redeliver for the same
// job: the decision procedure is a pure function of persisted state.
func (o *Orchestrator) Orchestrate(ctx context.Context, jobID string) (models.DecisionKind, error) {
	job, err := o.Store.GetJobStatus(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("orchestrator: load job %s: %w", jobID, err)
	}

	decision := Decide(job, time.Now().UTC(), o.Cfg.PhaseTimeout)

	switch decision.Kind {
	case models.DecisionAlreadyComplete:
		return decision.Kind, nil

	case models.DecisionMarkComplete:
		return decision.Kind, o.finalize(ctx, job)

	case models.DecisionRetryTask:
		if err := o.Store.UpdatePhaseStatus(ctx, jobID, decision.Generation, decision.Phase, true); err != nil {
			return "", fmt.Errorf("orchestrator: reset phase: %w", err)
		}
		if err := o.enqueueWorker(ctx, job, decision); err != nil {
			return "", err
		}

	case models.DecisionCreateTask:
		if err := o.enqueueWorker(ctx, job, decision); err != nil {
			return "", err
		}

	case models.DecisionWait:
		// no store mutation; only the re-enqueue below runs.
	}

	attempt, err := o.Store.IncrementCheckAttempt(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("orchestrator: increment check attempt: %w", err)
	}
	if attempt > o.Cfg.MaxCheckAttempts {
		return models.DecisionMarkFailed, o.Store.UpdateJobStatus(ctx, jobID, models.JobStatusFailed, "max orchestration attempts exceeded")
	}

	delay := BackoffDelay(attempt, o.Cfg.BackoffBaseMillis, o.Cfg.BackoffMultiplier, o.Cfg.BackoffCapMillis, o.Cfg.BackoffJitterMillis, rand.Float64)
	if err := o.Queue.CreateOrchestratorTask(ctx, taskqueue.OrchestratorPayload{JobID: jobID, CheckAttempt: attempt}, time.Now().Add(delay)); err != nil {
		return "", err
	}
	return decision.Kind, nil
}

func (o *Orchestrator) enqueueWorker(ctx context.Context, job *models.Job, decision models.Decision) error {
	payload := taskqueue.WorkerPayload{
		JobID:      job.JobID,
		Type:       string(decision.Phase),
		Generation: decision.Generation,
	}
	if err := o.Queue.CreateWorkerTask(ctx, payload, time.Now()); err != nil {
		return fmt.Errorf("orchestrator: enqueue worker task: %w", err)
	}
	return nil
}

// finalize gathers every generation's solutions into allSolutions, sorts
// by score desc, and persists the top 10 alongside a per-generation
// summary.
func (o *Orchestrator) finalize(ctx context.Context, job *models.Job) error {
	var all []models.ScoredIdea
	var history []models.GenerationSummary

	maxGen := job.EvolutionConfig.Generations
	for g := 1; g <= maxGen; g++ {
		gen := job.Generations[g]
		if gen == nil {
			continue
		}
		all = append(all, gen.Solutions...)
		history = append(history, models.GenerationSummary{
			Generation:     g,
			TopScore:       gen.TopScore,
			AvgScore:       gen.AvgScore,
			PopulationSize: len(gen.Ideas),
		})
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })

	top := all
	if len(top) > 10 {
		top = top[:10]
	}

	return o.Store.CompleteJob(ctx, job.JobID, store.CompleteResults{
		TopSolutions:      top,
		AllSolutions:      all,
		GenerationHistory: history,
	})
}
