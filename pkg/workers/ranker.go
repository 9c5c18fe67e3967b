package workers

import (
	"context"
	"fmt"

	"github.com/evoengine/evoengine/pkg/evolution"
	"github.com/evoengine/evoengine/pkg/models"
	"github.com/evoengine/evoengine/pkg/store"
)

// Ranker scores and orders a generation's enriched ideas. It makes no
// LLM calls.
type Ranker struct {
	Store *store.Store
}

// RankerInput is the worker payload for one ranker task.
type RankerInput struct {
	JobID           string
	Generation      int
	EnrichedIdeas   []models.EnrichedIdea
	MaxCapex        float64
	TopSelectCount  int
	DiversificationFactor float64
}

// Run executes the ranker phase. It is a no-op if the phase is already
// complete.
func (r *Ranker) Run(ctx context.Context, in RankerInput) error {
	job, err := r.Store.GetJobStatus(ctx, in.JobID)
	if err != nil {
		return fmt.Errorf("ranker: load job: %w", err)
	}
	if g := job.Generations[in.Generation]; g != nil && g.RankerComplete {
		return nil
	}

	if err := r.Store.UpdatePhaseStatus(ctx, in.JobID, in.Generation, models.PhaseRanker, false); err != nil {
		return fmt.Errorf("ranker: mark started: %w", err)
	}

	c0 := in.DiversificationFactor
	if c0 <= 0 {
		c0 = 0.05
	}

	carried, toRank := splitCarriedEnriched(job, in.EnrichedIdeas)

	fresh, err := evolution.Rank(toRank, in.MaxCapex, c0)
	if err != nil {
		_ = r.Store.RecordPhaseError(ctx, in.JobID, in.Generation, models.PhaseRanker, err.Error(), false)
		return fmt.Errorf("ranker: %w", err)
	}

	ranked := evolution.Reorder(append(carried, fresh...))

	topScore, avgScore := evolution.Summarize(ranked)
	topPerformers := evolution.SelectTopPerformers(ranked, in.TopSelectCount)

	err = r.Store.SavePhaseResults(ctx, in.JobID, in.Generation, models.PhaseRanker, func(g *models.Generation) {
		g.Solutions = ranked
		g.TopPerformers = topPerformers
		g.TopScore = topScore
		g.AvgScore = avgScore
	})
	if err != nil {
		return fmt.Errorf("ranker: save results: %w", err)
	}
	return nil
}

// splitCarriedEnriched separates ideas tagged as carried from a prior
// generation from the ideas that still need scoring this generation. A
// carried idea's prior score, rank, and preference verdict are reused
// unchanged rather than recomputed from evolution.Score; if the prior
// ScoredIdea can't be found, the idea falls through to fresh scoring
// instead of being dropped.
func splitCarriedEnriched(job *models.Job, ideas []models.EnrichedIdea) (carried []models.ScoredIdea, toRank []models.EnrichedIdea) {
	for _, idea := range ideas {
		if idea.CarriedFromGeneration == 0 {
			toRank = append(toRank, idea)
			continue
		}
		prior, ok := findScoredIdea(job, idea.CarriedFromGeneration, idea.IdeaID)
		if !ok {
			toRank = append(toRank, idea)
			continue
		}
		// Keep the current enriched idea (already carrying this
		// generation's CarriedFromGeneration tag) paired with the score
		// and preference verdict computed when it was first ranked.
		carried = append(carried, models.ScoredIdea{
			EnrichedIdea:        idea,
			Score:               prior.Score,
			ViolatesPreferences: prior.ViolatesPreferences,
			PreferenceNote:      prior.PreferenceNote,
		})
	}
	return carried, toRank
}

func findScoredIdea(job *models.Job, generation int, ideaID string) (models.ScoredIdea, bool) {
	g := job.Generations[generation]
	if g == nil {
		return models.ScoredIdea{}, false
	}
	for _, s := range g.TopPerformers {
		if s.IdeaID == ideaID {
			return s, true
		}
	}
	for _, s := range g.Solutions {
		if s.IdeaID == ideaID {
			return s, true
		}
	}
	return models.ScoredIdea{}, false
}
