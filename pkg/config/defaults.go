package config

// EvolutionDefaults holds the built-in evolutionConfig values used when a
// submitted job omits a field, and the process-wide enricher execution
// knobs that are not part of the per-job contract.
type EvolutionDefaults struct {
	// Generations is the default number of variator/enricher/ranker cycles.
	Generations int `yaml:"generations" validate:"omitempty,min=1"`

	// PopulationSize is the default number of ideas per generation.
	PopulationSize int `yaml:"population_size" validate:"omitempty,min=1"`

	// TopSelectCount is the default number of top performers carried forward.
	TopSelectCount int `yaml:"top_select_count" validate:"omitempty,min=1"`

	// OffspringRatio is the default fraction of a generation derived from
	// top performers rather than proposed fresh.
	OffspringRatio float64 `yaml:"offspring_ratio" validate:"omitempty,min=0,max=1"`

	// DiversificationFactor is C0 in the scoring formula.
	DiversificationFactor float64 `yaml:"diversification_factor" validate:"omitempty,gt=0"`

	// Model is the default LLM model name for variator/enricher calls.
	Model string `yaml:"model"`

	// EnricherMode selects batch (one call for the population) or per_idea
	// (bounded fan-out, one call per idea) enrichment.
	EnricherMode EnricherMode `yaml:"enricher_mode"`

	// EnricherConcurrency bounds per-idea fan-out concurrency.
	EnricherConcurrency int `yaml:"enricher_concurrency" validate:"omitempty,min=1"`

	// CarryTopPerformersEnrichment: when true (the default), top performers
	// carried into a new generation keep their prior enrichment and score
	// rather than being re-submitted to the enricher/ranker.
	CarryTopPerformersEnrichment bool `yaml:"carry_top_performers_enrichment"`
}

// EnricherMode is the enricher's execution strategy.
type EnricherMode string

const (
	EnricherModeBatch   EnricherMode = "batch"
	EnricherModePerIdea EnricherMode = "per_idea"
)

// IsValid reports whether the enricher mode is one of the known values.
func (m EnricherMode) IsValid() bool {
	return m == EnricherModeBatch || m == EnricherModePerIdea
}

// DefaultEvolutionDefaults returns the built-in evolution defaults.
func DefaultEvolutionDefaults() *EvolutionDefaults {
	return &EvolutionDefaults{
		Generations:                  3,
		PopulationSize:               8,
		TopSelectCount:               3,
		OffspringRatio:               0.5,
		DiversificationFactor:        0.05,
		Model:                        "gpt-4o-mini",
		EnricherMode:                 EnricherModeBatch,
		EnricherConcurrency:          25,
		CarryTopPerformersEnrichment: true,
	}
}
