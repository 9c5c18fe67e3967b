package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/evoengine/evoengine/pkg/cache"
	"github.com/evoengine/evoengine/pkg/config"
	"github.com/evoengine/evoengine/pkg/llmclient"
	"github.com/evoengine/evoengine/pkg/models"
	"github.com/evoengine/evoengine/pkg/store"
	"golang.org/x/sync/semaphore"
)

// Enricher attaches a business-case projection to every idea in a
// generation, in batch or bounded per-idea fan-out mode.
type Enricher struct {
	Store *store.Store
	LLM   *llmclient.Adapter
	Cache *cache.EnricherCache
}

// EnricherInput is the worker payload for one enricher task.
type EnricherInput struct {
	JobID           string
	Generation      int
	EvolutionConfig models.EvolutionConfig
	ProblemContext  string
	Ideas           []models.Idea
}

var businessCaseProperties = map[string]any{
	"npv_success":      map[string]any{"type": "number"},
	"capex_est":        map[string]any{"type": "number"},
	"timeline_months":  map[string]any{"type": "number"},
	"likelihood":       map[string]any{"type": "number"},
	"risk_factors":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	"yearly_cashflows": map[string]any{"type": "array", "items": map[string]any{"type": "number"}},
}
var businessCaseRequired = []string{"npv_success", "capex_est", "timeline_months", "likelihood", "risk_factors", "yearly_cashflows"}

var enricherBatchSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"enriched_ideas": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"idea_id":       map[string]any{"type": "string"},
					"business_case": map[string]any{"type": "object", "properties": businessCaseProperties, "required": businessCaseRequired},
				},
				"required": []string{"idea_id", "business_case"},
			},
		},
	},
	"required": []string{"enriched_ideas"},
}

var enricherPerIdeaSchema = map[string]any{
	"type":       "object",
	"properties": businessCaseProperties,
	"required":   businessCaseRequired,
}

type enricherLLMItem struct {
	IdeaID       string              `json:"idea_id"`
	BusinessCase models.BusinessCase `json:"business_case"`
}

type enricherBatchResponse struct {
	EnrichedIdeas []enricherLLMItem `json:"enriched_ideas"`
}

// Run executes the enricher phase. It is a no-op if the phase is already
// complete.
func (e *Enricher) Run(ctx context.Context, in EnricherInput) error {
	job, err := e.Store.GetJobStatus(ctx, in.JobID)
	if err != nil {
		return fmt.Errorf("enricher: load job: %w", err)
	}
	if g := job.Generations[in.Generation]; g != nil && g.EnricherComplete {
		return nil
	}

	if err := e.Store.UpdatePhaseStatus(ctx, in.JobID, in.Generation, models.PhaseEnricher, false); err != nil {
		return fmt.Errorf("enricher: mark started: %w", err)
	}

	carried, toEnrich := splitCarriedIdeas(job, in.Ideas)

	var fresh []models.EnrichedIdea
	var runErr error
	if len(toEnrich) > 0 {
		callIn := in
		callIn.Ideas = toEnrich
		if in.EvolutionConfig.EnricherMode == config.EnricherModePerIdea {
			fresh, runErr = e.runPerIdea(ctx, callIn)
		} else {
			fresh, runErr = e.runBatch(ctx, callIn)
		}
	}
	if runErr != nil {
		parseFailure := true
		_ = e.Store.RecordPhaseError(ctx, in.JobID, in.Generation, models.PhaseEnricher, runErr.Error(), parseFailure)
		return fmt.Errorf("enricher: %w", runErr)
	}
	enriched := append(carried, fresh...)

	if err := validateEnriched(in.Ideas, enriched); err != nil {
		_ = e.Store.RecordPhaseError(ctx, in.JobID, in.Generation, models.PhaseEnricher, err.Error(), true)
		return fmt.Errorf("enricher: %w", err)
	}

	err = e.Store.SavePhaseResults(ctx, in.JobID, in.Generation, models.PhaseEnricher, func(g *models.Generation) {
		g.EnrichedIdeas = enriched
	})
	if err != nil {
		return fmt.Errorf("enricher: save results: %w", err)
	}
	return nil
}

func (e *Enricher) runBatch(ctx context.Context, in EnricherInput) ([]models.EnrichedIdea, error) {
	prompt := buildBatchEnricherPrompt(in)
	result, err := e.LLM.Call(ctx, llmclient.CallInput{
		Model: in.EvolutionConfig.Model,
		Phase: string(models.PhaseEnricher),
		Messages: []llmclient.Message{
			{Role: llmclient.RoleSystem, Content: "You produce business-case projections as strict JSON, values in millions USD."},
			{Role: llmclient.RoleUser, Content: prompt},
		},
		SchemaName: "enricher_batch",
		Schema:     enricherBatchSchema,
	})
	if err != nil {
		return nil, err
	}
	callID := fmt.Sprintf("%s_gen%d_enricher_%d", in.JobID, in.Generation, time.Now().UnixMilli())
	recordTelemetry(ctx, e.Store, jobPhaseKey{in.JobID, in.Generation, models.PhaseEnricher, callID, prompt}, result)

	var parsed enricherBatchResponse
	if err := json.Unmarshal(result.Parsed, &parsed); err != nil {
		return nil, fmt.Errorf("parse batch enricher response: %w", err)
	}

	byID := make(map[string]models.BusinessCase, len(parsed.EnrichedIdeas))
	for _, item := range parsed.EnrichedIdeas {
		byID[item.IdeaID] = item.BusinessCase
	}

	enriched := make([]models.EnrichedIdea, 0, len(in.Ideas))
	for _, idea := range in.Ideas {
		bc, ok := byID[idea.IdeaID]
		if !ok {
			return nil, fmt.Errorf("missing business_case for idea %s", idea.IdeaID)
		}
		enriched = append(enriched, models.EnrichedIdea{Idea: idea, BusinessCase: bc})
	}
	return enriched, nil
}

func (e *Enricher) runPerIdea(ctx context.Context, in EnricherInput) ([]models.EnrichedIdea, error) {
	concurrency := in.EvolutionConfig.EnricherConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := semaphore.NewWeighted(int64(concurrency))

	results := make([]models.EnrichedIdea, len(in.Ideas))
	errs := make([]error, len(in.Ideas))

	var wg sync.WaitGroup
	for i, idea := range in.Ideas {
		if err := sem.Acquire(ctx, 1); err != nil {
			errs[i] = err
			continue
		}
		wg.Add(1)
		go func(i int, idea models.Idea) {
			defer wg.Done()
			defer sem.Release(1)
			results[i], errs[i] = e.enrichOne(ctx, in, idea)
		}(i, idea)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("idea %s: %w", in.Ideas[i].IdeaID, err)
		}
	}
	return results, nil
}

func (e *Enricher) enrichOne(ctx context.Context, in EnricherInput, idea models.Idea) (models.EnrichedIdea, error) {
	ideaText := idea.Title + "\n" + idea.Description + "\n" + idea.CoreMechanism
	key := cache.Key(in.ProblemContext, ideaText, in.EvolutionConfig.Model)

	if e.Cache != nil {
		if bc, err := e.Cache.Get(ctx, key); err == nil {
			return models.EnrichedIdea{Idea: idea, BusinessCase: *bc}, nil
		}
	}

	prompt := buildPerIdeaEnricherPrompt(in.ProblemContext, idea)
	result, err := e.LLM.Call(ctx, llmclient.CallInput{
		Model: in.EvolutionConfig.Model,
		Phase: string(models.PhaseEnricher),
		Messages: []llmclient.Message{
			{Role: llmclient.RoleSystem, Content: "You produce a single business-case projection as strict JSON, values in millions USD."},
			{Role: llmclient.RoleUser, Content: prompt},
		},
		SchemaName: "business_case",
		Schema:     enricherPerIdeaSchema,
	})
	if err != nil {
		return models.EnrichedIdea{}, err
	}
	callID := fmt.Sprintf("%s_gen%d_enricher_%s_%d", in.JobID, in.Generation, idea.IdeaID, time.Now().UnixMilli())
	recordTelemetry(ctx, e.Store, jobPhaseKey{in.JobID, in.Generation, models.PhaseEnricher, callID, prompt}, result)

	var bc models.BusinessCase
	if err := json.Unmarshal(result.Parsed, &bc); err != nil {
		return models.EnrichedIdea{}, fmt.Errorf("parse business case: %w", err)
	}

	if e.Cache != nil {
		_ = e.Cache.Put(ctx, key, bc)
	}
	return models.EnrichedIdea{Idea: idea, BusinessCase: bc}, nil
}

func buildBatchEnricherPrompt(in EnricherInput) string {
	prompt := fmt.Sprintf("Problem: %s\n\nFor each idea below, produce a business_case projection.\n\n", in.ProblemContext)
	for _, idea := range in.Ideas {
		prompt += fmt.Sprintf("- idea_id=%s title=%q description=%q\n", idea.IdeaID, idea.Title, idea.Description)
	}
	prompt += "\nReturn strict JSON: {\"enriched_ideas\": [{\"idea_id\":...,\"business_case\":{...}}]}"
	return prompt
}

func buildPerIdeaEnricherPrompt(problemContext string, idea models.Idea) string {
	return fmt.Sprintf(
		"Problem: %s\n\nIdea: %s\nDescription: %s\nCore mechanism: %s\n\nReturn strict JSON for a single business_case object with fields npv_success, capex_est, timeline_months, likelihood, risk_factors, yearly_cashflows.",
		problemContext, idea.Title, idea.Description, idea.CoreMechanism,
	)
}

// splitCarriedIdeas separates ideas tagged as carried from a prior
// generation (whose enrichment already exists in the job document) from
// the ideas that still need an enricher call. An idea tagged as carried
// whose prior enrichment cannot be found (e.g. the source generation was
// pruned) falls through to toEnrich so it is never silently dropped.
func splitCarriedIdeas(job *models.Job, ideas []models.Idea) (carried []models.EnrichedIdea, toEnrich []models.Idea) {
	for _, idea := range ideas {
		if idea.CarriedFromGeneration == 0 {
			toEnrich = append(toEnrich, idea)
			continue
		}
		prior, ok := findEnrichedIdea(job, idea.CarriedFromGeneration, idea.IdeaID)
		if !ok {
			toEnrich = append(toEnrich, idea)
			continue
		}
		// Keep the current idea (its CarriedFromGeneration tag is this
		// generation's, not the one found in the prior document) paired
		// with the business case computed when it was first enriched.
		carried = append(carried, models.EnrichedIdea{Idea: idea, BusinessCase: prior.BusinessCase})
	}
	return carried, toEnrich
}

func findEnrichedIdea(job *models.Job, generation int, ideaID string) (models.EnrichedIdea, bool) {
	g := job.Generations[generation]
	if g == nil {
		return models.EnrichedIdea{}, false
	}
	for _, e := range g.EnrichedIdeas {
		if e.IdeaID == ideaID {
			return e, true
		}
	}
	return models.EnrichedIdea{}, false
}

// validateEnriched checks that every enriched idea traces back to the
// source population and that its business case numbers are sane.
func validateEnriched(ideas []models.Idea, enriched []models.EnrichedIdea) error {
	if len(enriched) != len(ideas) {
		return fmt.Errorf("expected %d enriched ideas, got %d", len(ideas), len(enriched))
	}
	want := make(map[string]struct{}, len(ideas))
	for _, idea := range ideas {
		want[idea.IdeaID] = struct{}{}
	}
	for _, e := range enriched {
		if _, ok := want[e.IdeaID]; !ok {
			return fmt.Errorf("enriched idea %s is not in the source population", e.IdeaID)
		}
		bc := e.BusinessCase
		if bc.Likelihood < 0 || bc.Likelihood > 1 {
			return fmt.Errorf("idea %s: likelihood %.4f out of [0,1]", e.IdeaID, bc.Likelihood)
		}
		if bc.CapexEst < 0.05 {
			return fmt.Errorf("idea %s: capex_est %.4f below the 0.05 floor", e.IdeaID, bc.CapexEst)
		}
		if len(bc.YearlyCashflows) != 5 {
			return fmt.Errorf("idea %s: expected 5 yearly_cashflows, got %d", e.IdeaID, len(bc.YearlyCashflows))
		}
		if len(bc.RiskFactors) < 1 {
			return fmt.Errorf("idea %s: risk_factors must be non-empty", e.IdeaID)
		}
	}
	return nil
}
