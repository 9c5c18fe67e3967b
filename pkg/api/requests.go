package api

import (
	"fmt"

	"github.com/evoengine/evoengine/pkg/config"
	"github.com/evoengine/evoengine/pkg/models"
)

// SubmitJobRequest is the HTTP request body for POST /api/v1/jobs.
type SubmitJobRequest struct {
	ProblemContext  string                 `json:"problemContext" binding:"required"`
	Preferences     models.Preferences     `json:"preferences"`
	EvolutionConfig *partialEvolutionConfig `json:"evolutionConfig,omitempty"`
}

// partialEvolutionConfig lets a submitter override a subset of fields; zero
// values fall through to the process defaults.
type partialEvolutionConfig struct {
	Generations           int     `json:"generations"`
	PopulationSize        int     `json:"populationSize"`
	TopSelectCount        int     `json:"topSelectCount"`
	OffspringRatio        float64 `json:"offspringRatio"`
	DiversificationFactor float64 `json:"diversificationFactor"`
	Model                 string  `json:"model"`
}

// validate checks problemContext length and evolutionConfig bounds,
// returning the first violation found.
func (r *SubmitJobRequest) validate() error {
	if n := len(r.ProblemContext); n < 10 || n > 5000 {
		return fmt.Errorf("problemContext length must be in [10, 5000], got %d", n)
	}
	if r.EvolutionConfig == nil {
		return nil
	}
	e := r.EvolutionConfig
	if e.Generations < 0 {
		return fmt.Errorf("evolutionConfig.generations must be >= 1")
	}
	if e.PopulationSize < 0 {
		return fmt.Errorf("evolutionConfig.populationSize must be >= 1")
	}
	if e.TopSelectCount < 0 {
		return fmt.Errorf("evolutionConfig.topSelectCount must be >= 1")
	}
	if e.OffspringRatio < 0 || e.OffspringRatio > 1 {
		return fmt.Errorf("evolutionConfig.offspringRatio must be in [0,1]")
	}
	if e.DiversificationFactor < 0 {
		return fmt.Errorf("evolutionConfig.diversificationFactor must be > 0")
	}
	return nil
}

// resolve merges the submitted overrides onto the process-wide evolution
// defaults, treating a zero-valued field as "not submitted".
func (r *SubmitJobRequest) resolve(defaults *config.EvolutionDefaults) models.EvolutionConfig {
	out := models.EvolutionConfig{
		Generations:                  defaults.Generations,
		PopulationSize:               defaults.PopulationSize,
		TopSelectCount:               defaults.TopSelectCount,
		OffspringRatio:               defaults.OffspringRatio,
		DiversificationFactor:        defaults.DiversificationFactor,
		Model:                        defaults.Model,
		CarryTopPerformersEnrichment: defaults.CarryTopPerformersEnrichment,
	}
	e := r.EvolutionConfig
	if e == nil {
		return out
	}
	if e.Generations > 0 {
		out.Generations = e.Generations
	}
	if e.PopulationSize > 0 {
		out.PopulationSize = e.PopulationSize
	}
	if e.TopSelectCount > 0 {
		out.TopSelectCount = e.TopSelectCount
	}
	if e.OffspringRatio > 0 {
		out.OffspringRatio = e.OffspringRatio
	}
	if e.DiversificationFactor > 0 {
		out.DiversificationFactor = e.DiversificationFactor
	}
	if e.Model != "" {
		out.Model = e.Model
	}
	if out.TopSelectCount > out.PopulationSize {
		out.TopSelectCount = out.PopulationSize
	}
	return out
}
