// Package taskqueue implements the delayed-delivery task queue: opaque
// JSON payloads destined for the orchestrator or worker HTTP endpoints,
// with idempotency tokens and per-task schedule times. Postgres is both
// the durable store and the coordination point; dispatch uses
// SELECT ... FOR UPDATE SKIP LOCKED so multiple dispatcher processes can
// claim tasks without double-delivery.
package taskqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies which HTTP endpoint a task is destined for.
type Kind string

const (
	KindOrchestrator Kind = "orchestrator"
	KindWorker       Kind = "worker"
)

// Status is a task's delivery lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusDispatched Status = "dispatched"
	StatusFailed     Status = "failed"
)

// Task is one queued delivery.
type Task struct {
	ID             uuid.UUID
	Kind           Kind
	Payload        json.RawMessage
	IdempotencyKey string
	ScheduleTime   time.Time
	Status         Status
	Attempts       int
	LastError      string
}

// Queue is the Postgres-backed delayed task queue.
type Queue struct {
	db *sql.DB
}

// New wraps an existing connection pool.
func New(db *sql.DB) *Queue {
	return &Queue{db: db}
}

// OrchestratorPayload is the body of a KindOrchestrator task.
type OrchestratorPayload struct {
	JobID        string `json:"jobId"`
	CheckAttempt int    `json:"checkAttempt"`
}

// WorkerPayload is the body of a KindWorker task.
type WorkerPayload struct {
	JobID      string `json:"jobId"`
	Type       string `json:"type"`
	Generation int    `json:"generation"`
}

// CreateOrchestratorTask enqueues an orchestrator check. idempotencyKey
// lets redelivery collapse onto the same row instead of creating a
// duplicate pending task.
func (q *Queue) CreateOrchestratorTask(ctx context.Context, p OrchestratorPayload, scheduleTime time.Time) error {
	idempotencyKey := fmt.Sprintf("orchestrate_%s_%d", p.JobID, p.CheckAttempt)
	return q.enqueue(ctx, KindOrchestrator, p, idempotencyKey, scheduleTime)
}

// CreateWorkerTask enqueues a worker dispatch for a specific phase.
func (q *Queue) CreateWorkerTask(ctx context.Context, p WorkerPayload, scheduleTime time.Time) error {
	idempotencyKey := fmt.Sprintf("worker_%s_%s_gen%d", p.JobID, p.Type, p.Generation)
	return q.enqueue(ctx, KindWorker, p, idempotencyKey, scheduleTime)
}

func (q *Queue) enqueue(ctx context.Context, kind Kind, payload any, idempotencyKey string, scheduleTime time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("taskqueue: marshal payload: %w", err)
	}
	const query = `
		INSERT INTO tasks (id, kind, payload, idempotency_key, schedule_time, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', 0, NOW())
		ON CONFLICT (idempotency_key) DO UPDATE
		SET schedule_time = LEAST(tasks.schedule_time, EXCLUDED.schedule_time)
	`
	_, err = q.db.ExecContext(ctx, query, uuid.New(), string(kind), body, idempotencyKey, scheduleTime)
	if err != nil {
		return fmt.Errorf("taskqueue: enqueue %s: %w", kind, err)
	}
	return nil
}

// ErrNoTask indicates the poll found nothing deliverable.
var ErrNoTask = errors.New("taskqueue: no deliverable task")

// Claim atomically claims one deliverable, pending task whose schedule
// time has passed, marking it dispatched. Uses the same
// SELECT ... FOR UPDATE SKIP LOCKED idiom as the result store's mutate
// path, so concurrent dispatcher goroutines never claim the same row.
func (q *Queue) Claim(ctx context.Context) (*Task, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("taskqueue: begin tx: %w", err)
	}
	defer tx.Rollback()

	const query = `
		UPDATE tasks
		SET status = 'dispatched', dispatched_at = NOW(), attempts = attempts + 1
		WHERE id = (
			SELECT id FROM tasks
			WHERE status = 'pending' AND schedule_time <= NOW()
			ORDER BY schedule_time ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, kind, payload, idempotency_key, schedule_time, status, attempts
	`
	var t Task
	var id uuid.UUID
	var kind, idemKey, status string
	err = tx.QueryRowContext(ctx, query).Scan(&id, &kind, &t.Payload, &idemKey, &t.ScheduleTime, &status, &t.Attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoTask
	}
	if err != nil {
		return nil, fmt.Errorf("taskqueue: claim: %w", err)
	}
	t.ID, t.Kind, t.IdempotencyKey, t.Status = id, Kind(kind), idemKey, Status(status)

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("taskqueue: commit claim: %w", err)
	}
	return &t, nil
}

// MarkFailed records a dispatch failure and resets the task to pending
// so it is retried on the next poll (at-least-once delivery).
func (q *Queue) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	const query = `UPDATE tasks SET status = 'pending', last_error = $2 WHERE id = $1`
	_, err := q.db.ExecContext(ctx, query, id, reason)
	if err != nil {
		return fmt.Errorf("taskqueue: mark failed %s: %w", id, err)
	}
	return nil
}
