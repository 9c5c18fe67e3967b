package orchestrator_test

import (
	"testing"
	"time"

	"github.com/evoengine/evoengine/pkg/models"
	"github.com/evoengine/evoengine/pkg/orchestrator"
	"github.com/stretchr/testify/assert"
)

func TestDecidePendingJobStartsVariatorGeneration1(t *testing.T) {
	job := &models.Job{Status: models.JobStatusPending, EvolutionConfig: models.EvolutionConfig{Generations: 3}}
	d := orchestrator.Decide(job, time.Now(), time.Minute)
	assert.Equal(t, models.DecisionCreateTask, d.Kind)
	assert.Equal(t, models.PhaseVariator, d.Phase)
	assert.Equal(t, 1, d.Generation)
}

func TestDecideTerminalJobIsAlreadyComplete(t *testing.T) {
	for _, status := range []models.JobStatus{models.JobStatusCompleted, models.JobStatusFailed} {
		job := &models.Job{Status: status}
		d := orchestrator.Decide(job, time.Now(), time.Minute)
		assert.Equal(t, models.DecisionAlreadyComplete, d.Kind)
	}
}

func TestDecideAdvancesToNextIncompletePhase(t *testing.T) {
	job := &models.Job{
		Status:            models.JobStatusProcessing,
		CurrentGeneration: 1,
		EvolutionConfig:   models.EvolutionConfig{Generations: 2},
		Generations: map[int]*models.Generation{
			1: {VariatorComplete: true},
		},
	}
	d := orchestrator.Decide(job, time.Now(), time.Minute)
	assert.Equal(t, models.DecisionCreateTask, d.Kind)
	assert.Equal(t, models.PhaseEnricher, d.Phase)
	assert.Equal(t, 1, d.Generation)
}

func TestDecideWaitsWhileAPhaseIsRunningAndFresh(t *testing.T) {
	started := time.Now().Add(-time.Second)
	job := &models.Job{
		Status:            models.JobStatusProcessing,
		CurrentGeneration: 1,
		EvolutionConfig:   models.EvolutionConfig{Generations: 1},
		Generations: map[int]*models.Generation{
			1: {VariatorStarted: true, VariatorStartedAt: &started},
		},
	}
	d := orchestrator.Decide(job, time.Now(), time.Minute)
	assert.Equal(t, models.DecisionWait, d.Kind)
}

func TestDecideRetriesAPhaseThatExceededItsTimeout(t *testing.T) {
	started := time.Now().Add(-10 * time.Minute)
	job := &models.Job{
		Status:            models.JobStatusProcessing,
		CurrentGeneration: 1,
		EvolutionConfig:   models.EvolutionConfig{Generations: 1},
		Generations: map[int]*models.Generation{
			1: {VariatorStarted: true, VariatorStartedAt: &started},
		},
	}
	d := orchestrator.Decide(job, time.Now(), 5*time.Minute)
	assert.Equal(t, models.DecisionRetryTask, d.Kind)
	assert.Equal(t, models.PhaseVariator, d.Phase)
}

func TestDecideStartsNextGenerationAfterRankerCompletes(t *testing.T) {
	job := &models.Job{
		Status:            models.JobStatusProcessing,
		CurrentGeneration: 1,
		EvolutionConfig:   models.EvolutionConfig{Generations: 2},
		Generations: map[int]*models.Generation{
			1: {VariatorComplete: true, EnricherComplete: true, RankerComplete: true},
		},
	}
	d := orchestrator.Decide(job, time.Now(), time.Minute)
	assert.Equal(t, models.DecisionCreateTask, d.Kind)
	assert.Equal(t, models.PhaseVariator, d.Phase)
	assert.Equal(t, 2, d.Generation)
}

func TestDecideMarksCompleteAfterFinalGenerationRanks(t *testing.T) {
	job := &models.Job{
		Status:            models.JobStatusProcessing,
		CurrentGeneration: 2,
		EvolutionConfig:   models.EvolutionConfig{Generations: 2},
		Generations: map[int]*models.Generation{
			2: {VariatorComplete: true, EnricherComplete: true, RankerComplete: true},
		},
	}
	d := orchestrator.Decide(job, time.Now(), time.Minute)
	assert.Equal(t, models.DecisionMarkComplete, d.Kind)
}

func TestBackoffDelayIsMonotonicAndCapped(t *testing.T) {
	noJitter := func() float64 { return 0 }
	d1 := orchestrator.BackoffDelay(1, 5000, 1.5, 60000, 1000, noJitter)
	d5 := orchestrator.BackoffDelay(5, 5000, 1.5, 60000, 1000, noJitter)
	d50 := orchestrator.BackoffDelay(50, 5000, 1.5, 60000, 1000, noJitter)

	assert.Less(t, d1, d5)
	assert.Equal(t, 60*time.Second, d50, "delay must be capped at BackoffCapMillis")
}

func TestBackoffDelayAddsJitter(t *testing.T) {
	d := orchestrator.BackoffDelay(1, 5000, 1.5, 60000, 1000, func() float64 { return 1 })
	assert.Equal(t, time.Duration(7500+1000)*time.Millisecond, d)
}
