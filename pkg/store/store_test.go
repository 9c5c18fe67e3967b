package store_test

import (
	"context"
	"testing"

	"github.com/evoengine/evoengine/pkg/models"
	"github.com/evoengine/evoengine/pkg/store"
	testdb "github.com/evoengine/evoengine/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	client := testdb.NewTestClient(t)
	return store.New(client.DB())
}

func newJob(id string) *models.Job {
	return &models.Job{
		JobID:          id,
		ProblemContext: "Generate simple coffee shop business ideas",
		Preferences:    models.Preferences{MaxCapex: 10},
		EvolutionConfig: models.EvolutionConfig{
			Generations: 1, PopulationSize: 3, TopSelectCount: 1,
			OffspringRatio: 0, DiversificationFactor: 0.05, Model: "gpt-4o-mini",
		},
	}
}

func TestCreateJobAndGetStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := newJob("job-1")
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJobStatus(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, got.Status)
	assert.Equal(t, "Generate simple coffee shop business ideas", got.ProblemContext)
}

func TestCreateJobIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := newJob("job-2")
	require.NoError(t, s.CreateJob(ctx, job))
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJobStatus(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, "job-2", got.JobID)
}

func TestGetJobStatusMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetJobStatus(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, store.ErrJobNotFound)
}

func TestUpdatePhaseStatusTransitionsToProcessing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateJob(ctx, newJob("job-3")))

	require.NoError(t, s.UpdatePhaseStatus(ctx, "job-3", 1, models.PhaseVariator, false))

	got, err := s.GetJobStatus(ctx, "job-3")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, got.Status)
	g := got.Generations[1]
	require.NotNil(t, g)
	assert.True(t, g.VariatorStarted)
	assert.NotNil(t, g.VariatorStartedAt)
}

func TestUpdatePhaseStatusStartIsNoOpWhenAlreadyStarted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateJob(ctx, newJob("job-4")))

	require.NoError(t, s.UpdatePhaseStatus(ctx, "job-4", 1, models.PhaseVariator, false))
	first, err := s.GetJobStatus(ctx, "job-4")
	require.NoError(t, err)
	firstStarted := first.Generations[1].VariatorStartedAt

	require.NoError(t, s.UpdatePhaseStatus(ctx, "job-4", 1, models.PhaseVariator, false))
	second, err := s.GetJobStatus(ctx, "job-4")
	require.NoError(t, err)
	assert.Equal(t, firstStarted, second.Generations[1].VariatorStartedAt)
}

func TestSavePhaseResultsIsIdempotentOnReplay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateJob(ctx, newJob("job-5")))
	require.NoError(t, s.UpdatePhaseStatus(ctx, "job-5", 1, models.PhaseVariator, false))

	ideas := []models.Idea{{IdeaID: "VAR_GEN1_001", Title: "a"}}
	apply := func(g *models.Generation) { g.Ideas = ideas }

	require.NoError(t, s.SavePhaseResults(ctx, "job-5", 1, models.PhaseVariator, apply))
	require.NoError(t, s.SavePhaseResults(ctx, "job-5", 1, models.PhaseVariator, func(g *models.Generation) {
		g.Ideas = []models.Idea{{IdeaID: "SHOULD_NOT_APPEAR"}}
	}))

	got, err := s.GetJobStatus(ctx, "job-5")
	require.NoError(t, err)
	g := got.Generations[1]
	assert.True(t, g.VariatorComplete)
	require.Len(t, g.Ideas, 1)
	assert.Equal(t, "VAR_GEN1_001", g.Ideas[0].IdeaID)
}

func TestAddApiCallTelemetryAppendsOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateJob(ctx, newJob("job-6")))

	require.NoError(t, s.AddApiCallTelemetry(ctx, "job-6", models.ApiCallTelemetry{CallID: "c1", Phase: models.PhaseVariator}))
	require.NoError(t, s.AddApiCallTelemetry(ctx, "job-6", models.ApiCallTelemetry{CallID: "c2", Phase: models.PhaseEnricher}))

	got, err := s.GetJobStatus(ctx, "job-6")
	require.NoError(t, err)
	require.Len(t, got.ApiCalls, 2)
	assert.Equal(t, "c1", got.ApiCalls[0].CallID)
	assert.Equal(t, "c2", got.ApiCalls[1].CallID)
}

func TestCompleteJobSetsTerminalFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateJob(ctx, newJob("job-7")))

	results := store.CompleteResults{
		TopSolutions: []models.ScoredIdea{{Score: 1.5, Rank: 1}},
		AllSolutions: []models.ScoredIdea{{Score: 1.5, Rank: 1}},
	}
	require.NoError(t, s.CompleteJob(ctx, "job-7", results))

	got, err := s.GetJobStatus(ctx, "job-7")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	require.Len(t, got.TopSolutions, 1)
}

func TestUpdateJobStatusIsNoOpOnceTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateJob(ctx, newJob("job-8")))
	require.NoError(t, s.UpdateJobStatus(ctx, "job-8", models.JobStatusFailed, "boom"))

	require.NoError(t, s.UpdateJobStatus(ctx, "job-8", models.JobStatusProcessing, ""))

	got, err := s.GetJobStatus(ctx, "job-8")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)
}

func TestIncrementCheckAttempt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateJob(ctx, newJob("job-9")))

	a1, err := s.IncrementCheckAttempt(ctx, "job-9")
	require.NoError(t, err)
	a2, err := s.IncrementCheckAttempt(ctx, "job-9")
	require.NoError(t, err)
	assert.Equal(t, 1, a1)
	assert.Equal(t, 2, a2)
}
