// Package store implements the durable job document store: a map from job
// id to a nested job document, with atomic field-path updates and an
// append-only debug subcollection. It is the single coordination point
// the orchestrator and phase workers rely on to survive crash-restart.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/evoengine/evoengine/pkg/models"
)

// ErrJobNotFound is returned when a job id has no matching row.
var ErrJobNotFound = errors.New("store: job not found")

// Store is the durable job document store backed by Postgres. The job
// document lives in a single JSONB column; every mutation goes through
// jsonb_set so concurrent writers never clobber unrelated fields.
type Store struct {
	db *sql.DB
}

// New wraps an existing *sql.DB connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateJob persists a new job in the pending state. It is idempotent on
// an existing id: if the job already exists, the insert is a no-op and
// the existing document is left untouched (merge semantics degrade to
// "first writer wins" since the submitted spec is immutable per job id).
func (s *Store) CreateJob(ctx context.Context, job *models.Job) error {
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if job.Generations == nil {
		job.Generations = map[int]*models.Generation{}
	}
	if job.EvolutionConfig.TopSelectCount > job.EvolutionConfig.PopulationSize {
		job.EvolutionConfig.TopSelectCount = job.EvolutionConfig.PopulationSize
	}

	doc, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("store: marshal job: %w", err)
	}

	const query = `
		INSERT INTO jobs (id, status, current_generation, current_phase, check_attempt, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		job.JobID, string(job.Status), job.CurrentGeneration, string(job.CurrentPhase), job.CheckAttempt,
		doc, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create job %s: %w", job.JobID, err)
	}
	return nil
}

// GetJobStatus returns a full snapshot of the job document, or
// ErrJobNotFound if no row exists for jobId.
func (s *Store) GetJobStatus(ctx context.Context, jobID string) (*models.Job, error) {
	const query = `SELECT document FROM jobs WHERE id = $1`
	var raw []byte
	err := s.db.QueryRowContext(ctx, query, jobID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get job %s: %w", jobID, err)
	}
	var job models.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("store: decode job %s: %w", jobID, err)
	}
	return &job, nil
}

// mutate loads the current document, applies fn, and writes it back along
// with the denormalized status/generation/phase columns used for
// indexed scans (orphan detection, retention). The whole cycle runs
// inside a single row-level lock (SELECT ... FOR UPDATE) so concurrent
// mutate calls on the same job serialize instead of racing on read-modify-write.
func (s *Store) mutate(ctx context.Context, jobID string, fn func(job *models.Job) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	var raw []byte
	err = tx.QueryRowContext(ctx, `SELECT document FROM jobs WHERE id = $1 FOR UPDATE`, jobID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("store: lock job %s: %w", jobID, err)
	}

	var job models.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return fmt.Errorf("store: decode job %s: %w", jobID, err)
	}

	if err := fn(&job); err != nil {
		return err
	}
	job.UpdatedAt = time.Now().UTC()

	doc, err := json.Marshal(&job)
	if err != nil {
		return fmt.Errorf("store: marshal job %s: %w", jobID, err)
	}

	const update = `
		UPDATE jobs
		SET status = $2, current_generation = $3, current_phase = $4, check_attempt = $5,
		    document = $6, updated_at = $7, completed_at = $8
		WHERE id = $1
	`
	_, err = tx.ExecContext(ctx, update,
		jobID, string(job.Status), job.CurrentGeneration, string(job.CurrentPhase), job.CheckAttempt,
		doc, job.UpdatedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("store: update job %s: %w", jobID, err)
	}

	return tx.Commit()
}

// UpdatePhaseStatus marks a phase started (or resets it, for timeout
// recovery) and advances the job's currentGeneration/currentPhase
// pointers. reset clears a prior Started timestamp and any error so a
// fresh worker task can run cleanly.
func (s *Store) UpdatePhaseStatus(ctx context.Context, jobID string, generation int, phase models.Phase, reset bool) error {
	return s.mutate(ctx, jobID, func(job *models.Job) error {
		g := ensureGeneration(job, generation)
		job.CurrentGeneration = generation
		job.CurrentPhase = phase
		if job.Status == models.JobStatusPending {
			job.Status = models.JobStatusProcessing
		}

		now := time.Now().UTC()
		switch phase {
		case models.PhaseVariator:
			if g.VariatorStarted && !reset {
				return nil
			}
			g.VariatorStarted = true
			g.VariatorStartedAt = &now
			if reset {
				g.VariatorError = ""
			}
		case models.PhaseEnricher:
			if g.EnricherStarted && !reset {
				return nil
			}
			g.EnricherStarted = true
			g.EnricherStartedAt = &now
			if reset {
				g.EnricherError = ""
				g.EnricherParseFailure = false
			}
		case models.PhaseRanker:
			if g.RankerStarted && !reset {
				return nil
			}
			g.RankerStarted = true
			g.RankerStartedAt = &now
			if reset {
				g.RankerError = ""
			}
		}
		return nil
	})
}

// SavePhaseResults writes a phase's output fields and marks it complete.
// apply receives the generation record to mutate; it is the caller's
// (the phase worker's) responsibility to set only fields owned by its
// phase. Calling this when the phase is already complete is a no-op,
// making replay of a successful task idempotent.
func (s *Store) SavePhaseResults(ctx context.Context, jobID string, generation int, phase models.Phase, apply func(g *models.Generation)) error {
	return s.mutate(ctx, jobID, func(job *models.Job) error {
		g := ensureGeneration(job, generation)
		if g.Complete(phase) {
			return nil
		}
		apply(g)
		now := time.Now().UTC()
		switch phase {
		case models.PhaseVariator:
			g.VariatorComplete = true
			g.VariatorCompletedAt = &now
		case models.PhaseEnricher:
			g.EnricherComplete = true
			g.EnricherCompletedAt = &now
		case models.PhaseRanker:
			g.RankerComplete = true
			g.RankerCompletedAt = &now
			g.GenerationComplete = true
		}
		return nil
	})
}

// RecordPhaseError writes {phase}Error (and, for the enricher, the
// parseFailure flag) without marking the phase complete, so the
// orchestrator's timeout/reset path can recover it.
func (s *Store) RecordPhaseError(ctx context.Context, jobID string, generation int, phase models.Phase, errMsg string, parseFailure bool) error {
	return s.mutate(ctx, jobID, func(job *models.Job) error {
		g := ensureGeneration(job, generation)
		switch phase {
		case models.PhaseVariator:
			g.VariatorError = errMsg
		case models.PhaseEnricher:
			g.EnricherError = errMsg
			g.EnricherParseFailure = parseFailure
		case models.PhaseRanker:
			g.RankerError = errMsg
		}
		return nil
	})
}

// AddApiCallTelemetry appends one entry to the job's apiCalls log. The
// log is append-only: callers never rewrite or reorder existing entries.
func (s *Store) AddApiCallTelemetry(ctx context.Context, jobID string, entry models.ApiCallTelemetry) error {
	return s.mutate(ctx, jobID, func(job *models.Job) error {
		job.ApiCalls = append(job.ApiCalls, entry)
		return nil
	})
}

// ApiCallDebug is the full prompt/response record written to the debug
// subcollection for one LLM call.
type ApiCallDebug struct {
	CallID         string
	JobID          string
	Generation     int
	Phase          models.Phase
	Attempt        int
	Prompt         string
	RawResponse    string
	ParsedResponse json.RawMessage
	Usage          json.RawMessage
	DurationMs     int64
}

// SaveApiCallDebug writes a full prompt/response record to the debug
// subcollection. This is best-effort telemetry: a write failure is
// logged by the caller but must never fail the phase that produced it.
func (s *Store) SaveApiCallDebug(ctx context.Context, d ApiCallDebug) error {
	const query = `
		INSERT INTO api_call_debug (call_id, job_id, generation, phase, attempt, prompt, raw_response, parsed_response, usage, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (call_id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		d.CallID, d.JobID, d.Generation, string(d.Phase), d.Attempt, d.Prompt, d.RawResponse,
		nullableJSON(d.ParsedResponse), nullableJSON(d.Usage), d.DurationMs, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: save api call debug %s: %w", d.CallID, err)
	}
	return nil
}

// CompleteResults is the final projection persisted when a job finishes.
type CompleteResults struct {
	TopSolutions      []models.ScoredIdea
	AllSolutions      []models.ScoredIdea
	GenerationHistory []models.GenerationSummary
}

// CompleteJob atomically sets the final result fields and status=completed.
func (s *Store) CompleteJob(ctx context.Context, jobID string, results CompleteResults) error {
	return s.mutate(ctx, jobID, func(job *models.Job) error {
		if job.Status == models.JobStatusCompleted {
			return nil
		}
		job.TopSolutions = results.TopSolutions
		job.AllSolutions = results.AllSolutions
		job.GenerationHistory = results.GenerationHistory
		job.Status = models.JobStatusCompleted
		now := time.Now().UTC()
		job.CompletedAt = &now
		return nil
	})
}

// UpdateJobStatus performs a generic status transition, optionally
// recording a failure reason.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status models.JobStatus, reason string) error {
	return s.mutate(ctx, jobID, func(job *models.Job) error {
		if job.Status == models.JobStatusCompleted || job.Status == models.JobStatusFailed {
			return nil
		}
		job.Status = status
		if reason != "" {
			job.Error = reason
		}
		if status == models.JobStatusFailed || status == models.JobStatusCompleted {
			now := time.Now().UTC()
			job.CompletedAt = &now
		}
		return nil
	})
}

// Cancel is an idempotent user-visible cancellation: it sets
// status=failed with a fixed reason unless the job is already terminal.
func (s *Store) Cancel(ctx context.Context, jobID string) error {
	return s.UpdateJobStatus(ctx, jobID, models.JobStatusFailed, "cancelled by submitter")
}

// IncrementCheckAttempt bumps the orchestrator's per-job attempt counter
// and returns the new value, used both for backoff calculation and the
// maxCheckAttempts cap.
func (s *Store) IncrementCheckAttempt(ctx context.Context, jobID string) (int, error) {
	var attempt int
	err := s.mutate(ctx, jobID, func(job *models.Job) error {
		job.CheckAttempt++
		attempt = job.CheckAttempt
		return nil
	})
	return attempt, err
}

// PurgeCompletedJobsOlderThan hard-deletes completed/failed jobs whose
// completedAt is before cutoff, and returns the number removed. Debug
// telemetry cascades via the api_call_debug foreign key.
func (s *Store) PurgeCompletedJobsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM jobs WHERE status IN ('completed', 'failed') AND completed_at < $1`
	res, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: purge completed jobs: %w", err)
	}
	return res.RowsAffected()
}

// ListStaleProcessingJobIDs returns ids of jobs stuck in processing with
// no update since cutoff: a job whose orchestrator task was lost between
// a store write and the next enqueue (a crash window the queue's
// at-least-once delivery cannot cover on its own).
func (s *Store) ListStaleProcessingJobIDs(ctx context.Context, cutoff time.Time) ([]string, error) {
	const query = `SELECT id FROM jobs WHERE status = 'processing' AND updated_at < $1`
	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("store: list stale processing jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan stale job id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func ensureGeneration(job *models.Job, g int) *models.Generation {
	if job.Generations == nil {
		job.Generations = map[int]*models.Generation{}
	}
	rec, ok := job.Generations[g]
	if !ok {
		rec = &models.Generation{}
		job.Generations[g] = rec
	}
	return rec
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
