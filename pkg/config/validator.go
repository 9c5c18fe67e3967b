package config

import "fmt"

// Validator validates configuration comprehensively with clear error messages
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *Validator) ValidateAll() error {
	if err := v.validateEvolution(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	if err := v.validateQueue(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	if err := v.validateLLM(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	return nil
}

func (v *Validator) validateEvolution() error {
	e := v.cfg.Evolution
	if e.Generations < 1 {
		return NewValidationError("evolution", "generations", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	if e.PopulationSize < 1 {
		return NewValidationError("evolution", "population_size", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	if e.TopSelectCount < 1 {
		return NewValidationError("evolution", "top_select_count", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	if e.OffspringRatio < 0 || e.OffspringRatio > 1 {
		return NewValidationError("evolution", "offspring_ratio", fmt.Errorf("%w: must be in [0,1]", ErrInvalidValue))
	}
	if e.DiversificationFactor <= 0 {
		return NewValidationError("evolution", "diversification_factor", fmt.Errorf("%w: must be > 0", ErrInvalidValue))
	}
	if !e.EnricherMode.IsValid() {
		return NewValidationError("evolution", "enricher_mode", fmt.Errorf("%w: %q", ErrInvalidValue, e.EnricherMode))
	}
	if e.EnricherConcurrency < 1 {
		return NewValidationError("evolution", "enricher_concurrency", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateQueue() error {
	q := v.cfg.Queue
	if q.WorkerCount < 1 {
		return NewValidationError("queue", "worker_count", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	if q.MaxCheckAttempts < 1 {
		return NewValidationError("queue", "max_check_attempts", fmt.Errorf("%w: must be >= 1", ErrInvalidValue))
	}
	if q.PhaseTimeout <= 0 {
		return NewValidationError("queue", "phase_timeout", fmt.Errorf("%w: must be > 0", ErrInvalidValue))
	}
	if q.DispatchTimeout <= 0 {
		return NewValidationError("queue", "dispatch_timeout", fmt.Errorf("%w: must be > 0", ErrInvalidValue))
	}
	if !q.Transport.IsValid() {
		return NewValidationError("queue", "transport", fmt.Errorf("%w: %q", ErrInvalidValue, q.Transport))
	}
	return nil
}

func (v *Validator) validateLLM() error {
	l := v.cfg.LLM
	if l.BaseURL == "" {
		return NewValidationError("llm", "base_url", ErrMissingRequiredField)
	}
	if l.APIKeyEnv == "" {
		return NewValidationError("llm", "api_key_env", ErrMissingRequiredField)
	}
	if l.CallTimeout <= 0 {
		return NewValidationError("llm", "call_timeout", fmt.Errorf("%w: must be > 0", ErrInvalidValue))
	}
	return nil
}
