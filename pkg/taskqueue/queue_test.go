package taskqueue_test

import (
	"context"
	"testing"
	"time"

	"github.com/evoengine/evoengine/pkg/taskqueue"
	testdb "github.com/evoengine/evoengine/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *taskqueue.Queue {
	t.Helper()
	client := testdb.NewTestClient(t)
	return taskqueue.New(client.DB())
}

func TestClaimReturnsErrNoTaskWhenEmpty(t *testing.T) {
	q := newTestQueue(t)
	_, err := q.Claim(context.Background())
	assert.ErrorIs(t, err, taskqueue.ErrNoTask)
}

func TestCreateWorkerTaskIsClaimableOnceScheduleTimePasses(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.CreateWorkerTask(ctx, taskqueue.WorkerPayload{JobID: "job-1", Type: "variator", Generation: 1}, time.Now().Add(-time.Second)))

	task, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.KindWorker, task.Kind)
	assert.Equal(t, taskqueue.StatusDispatched, task.Status)

	_, err = q.Claim(ctx)
	assert.ErrorIs(t, err, taskqueue.ErrNoTask, "a dispatched task must not be claimed twice")
}

func TestCreateWorkerTaskNotYetDueIsNotClaimable(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.CreateWorkerTask(ctx, taskqueue.WorkerPayload{JobID: "job-2", Type: "ranker", Generation: 1}, time.Now().Add(time.Hour)))

	_, err := q.Claim(ctx)
	assert.ErrorIs(t, err, taskqueue.ErrNoTask)
}

func TestCreateOrchestratorTaskDeduplicatesOnIdempotencyKey(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Minute)
	require.NoError(t, q.CreateOrchestratorTask(ctx, taskqueue.OrchestratorPayload{JobID: "job-3", CheckAttempt: 1}, past.Add(time.Hour)))
	require.NoError(t, q.CreateOrchestratorTask(ctx, taskqueue.OrchestratorPayload{JobID: "job-3", CheckAttempt: 1}, past))

	task, err := q.Claim(ctx)
	require.NoError(t, err, "the earlier schedule_time from the second enqueue must win")
	assert.Equal(t, taskqueue.KindOrchestrator, task.Kind)

	_, err = q.Claim(ctx)
	assert.ErrorIs(t, err, taskqueue.ErrNoTask, "deduplication must not have created a second row")
}

func TestMarkFailedResetsToPendingForRedelivery(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, q.CreateWorkerTask(ctx, taskqueue.WorkerPayload{JobID: "job-4", Type: "enricher", Generation: 1}, time.Now().Add(-time.Second)))

	task, err := q.Claim(ctx)
	require.NoError(t, err)

	require.NoError(t, q.MarkFailed(ctx, task.ID, "endpoint returned 503"))

	redelivered, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, task.ID, redelivered.ID)
	assert.Equal(t, 2, redelivered.Attempts)
}
