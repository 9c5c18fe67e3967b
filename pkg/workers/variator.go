// Package workers implements the three phase workers: variator,
// enricher, and ranker. Each is idempotent on replay — a task that finds
// its phase already complete returns immediately without calling the
// LLM or mutating the store beyond, at most, a telemetry append.
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/evoengine/evoengine/pkg/evolution"
	"github.com/evoengine/evoengine/pkg/llmclient"
	"github.com/evoengine/evoengine/pkg/models"
	"github.com/evoengine/evoengine/pkg/store"
)

// Variator produces new candidate ideas for one generation.
type Variator struct {
	Store *store.Store
	LLM   *llmclient.Adapter
}

// VariatorInput is the worker payload for one variator task.
type VariatorInput struct {
	JobID           string
	Generation      int
	EvolutionConfig models.EvolutionConfig
	ProblemContext  string
	TopPerformers   []models.ScoredIdea
}

var variatorSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"ideas": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":          map[string]any{"type": "string"},
					"description":    map[string]any{"type": "string"},
					"core_mechanism": map[string]any{"type": "string"},
				},
				"required": []string{"title", "description", "core_mechanism"},
			},
		},
	},
	"required": []string{"ideas"},
}

type variatorLLMIdea struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	CoreMechanism string `json:"core_mechanism"`
}

type variatorLLMResponse struct {
	Ideas []variatorLLMIdea `json:"ideas"`
}

// Run executes the variator phase. It is a no-op if the phase is already
// complete.
func (v *Variator) Run(ctx context.Context, in VariatorInput) error {
	job, err := v.Store.GetJobStatus(ctx, in.JobID)
	if err != nil {
		return fmt.Errorf("variator: load job: %w", err)
	}
	if g := job.Generations[in.Generation]; g != nil && g.VariatorComplete {
		return nil
	}

	if err := v.Store.UpdatePhaseStatus(ctx, in.JobID, in.Generation, models.PhaseVariator, false); err != nil {
		return fmt.Errorf("variator: mark started: %w", err)
	}

	newIdeaCount := evolution.NewIdeaCount(in.EvolutionConfig.PopulationSize, len(in.TopPerformers))

	// The offspring/wildcard ratio is defined against the full population,
	// not the delta requested here (top performers are carried forward by
	// reference and never re-requested from the LLM).
	populationSplit := evolution.ComposeCounts(in.EvolutionConfig.PopulationSize, in.EvolutionConfig.OffspringRatio, len(in.TopPerformers))
	offspringWanted := populationSplit.OffspringCount
	if offspringWanted > newIdeaCount {
		offspringWanted = newIdeaCount
	}
	counts := evolution.CompositionCounts{OffspringCount: offspringWanted, WildcardCount: newIdeaCount - offspringWanted}

	prompt := buildVariatorPrompt(in, counts)
	result, callErr := v.LLM.Call(ctx, llmclient.CallInput{
		Model: in.EvolutionConfig.Model,
		Phase: string(models.PhaseVariator),
		Messages: []llmclient.Message{
			{Role: llmclient.RoleSystem, Content: "You generate structured business idea candidates as strict JSON."},
			{Role: llmclient.RoleUser, Content: prompt},
		},
		SchemaName: "variator_ideas",
		Schema:     variatorSchema,
	})

	callID := fmt.Sprintf("%s_gen%d_variator_%d", in.JobID, in.Generation, time.Now().UnixMilli())
	if callErr == nil {
		recordTelemetry(ctx, v.Store, jobPhaseKey{in.JobID, in.Generation, models.PhaseVariator, callID, prompt}, result)
	}
	if callErr != nil {
		_ = v.Store.RecordPhaseError(ctx, in.JobID, in.Generation, models.PhaseVariator, callErr.Error(), false)
		return fmt.Errorf("variator: llm call: %w", callErr)
	}

	var parsed variatorLLMResponse
	if err := json.Unmarshal(result.Parsed, &parsed); err != nil || len(parsed.Ideas) < newIdeaCount {
		msg := "variator: response did not contain enough valid ideas"
		if err != nil {
			msg = err.Error()
		}
		_ = v.Store.RecordPhaseError(ctx, in.JobID, in.Generation, models.PhaseVariator, msg, true)
		return fmt.Errorf("%s", msg)
	}

	ideas := make([]models.Idea, 0, in.EvolutionConfig.PopulationSize)
	for _, tp := range in.TopPerformers {
		idea := tp.Idea
		if in.EvolutionConfig.CarryTopPerformersEnrichment {
			idea.CarriedFromGeneration = in.Generation - 1
		}
		ideas = append(ideas, idea)
	}
	for i := 0; i < newIdeaCount; i++ {
		src := parsed.Ideas[i]
		ideas = append(ideas, models.Idea{
			IdeaID:        fmt.Sprintf("VAR_GEN%d_%03d", in.Generation, len(in.TopPerformers)+i+1),
			Title:         src.Title,
			Description:   src.Description,
			CoreMechanism: src.CoreMechanism,
			IsOffspring:   i < counts.OffspringCount,
		})
	}

	err = v.Store.SavePhaseResults(ctx, in.JobID, in.Generation, models.PhaseVariator, func(g *models.Generation) {
		g.Ideas = ideas
	})
	if err != nil {
		return fmt.Errorf("variator: save results: %w", err)
	}
	return nil
}

func buildVariatorPrompt(in VariatorInput, counts evolution.CompositionCounts) string {
	prompt := fmt.Sprintf(
		"Problem: %s\n\nGenerate %d new business idea candidates.\n",
		in.ProblemContext, counts.OffspringCount+counts.WildcardCount,
	)
	if counts.OffspringCount > 0 {
		prompt += fmt.Sprintf("\n%d of these must be offspring derived from the following top performers of the prior generation:\n", counts.OffspringCount)
		for _, tp := range in.TopPerformers {
			prompt += fmt.Sprintf("- %s (score=%.4f): %s\n", tp.IdeaID, tp.Score, tp.Description)
		}
	}
	if counts.WildcardCount > 0 {
		prompt += fmt.Sprintf("\n%d of these must be wildcards, proposed fresh with no relation to prior ideas.\n", counts.WildcardCount)
	}
	prompt += "\nReturn strict JSON: {\"ideas\": [{\"title\":...,\"description\":...,\"core_mechanism\":...}]}"
	return prompt
}

// jobPhaseKey bundles the identifiers shared by every telemetry write so
// recordTelemetry stays a single shared helper across the three workers.
type jobPhaseKey struct {
	JobID      string
	Generation int
	Phase      models.Phase
	CallID     string
	Prompt     string
}

func recordTelemetry(ctx context.Context, s *store.Store, k jobPhaseKey, result *llmclient.CallResult) {
	usage, _ := json.Marshal(result.Usage)
	err := s.AddApiCallTelemetry(ctx, k.JobID, models.ApiCallTelemetry{
		CallID:           k.CallID,
		Phase:            k.Phase,
		Generation:       k.Generation,
		Model:            result.Model,
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
		DurationMs:       result.DurationMs,
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		slog.Warn("telemetry append failed", "job_id", k.JobID, "phase", k.Phase, "error", err)
	}

	debugErr := s.SaveApiCallDebug(ctx, store.ApiCallDebug{
		CallID:         k.CallID,
		JobID:          k.JobID,
		Generation:     k.Generation,
		Phase:          k.Phase,
		Prompt:         k.Prompt,
		RawResponse:    result.Raw,
		ParsedResponse: result.Parsed,
		Usage:          usage,
		DurationMs:     result.DurationMs,
	})
	if debugErr != nil {
		slog.Warn("debug save failed", "job_id", k.JobID, "phase", k.Phase, "error", debugErr)
	}
}
