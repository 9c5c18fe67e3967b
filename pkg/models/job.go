// Package models defines the persisted job document and its nested
// records: the shape in this file is the wire and storage contract shared
// by the orchestrator, the phase workers, and the result store.
package models

import "time"

// JobStatus is the job's top-level lifecycle state.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Phase identifies one of the three stages within a generation.
type Phase string

const (
	PhaseVariator Phase = "variator"
	PhaseEnricher Phase = "enricher"
	PhaseRanker   Phase = "ranker"
)

// Preferences are the submitter's cost and return constraints, all
// numeric, millions USD where monetary.
type Preferences struct {
	MaxCapex       float64 `json:"maxCapex"`
	MinProfits     float64 `json:"minProfits"`
	TargetReturn   float64 `json:"targetReturn"`
	TimelineMonths float64 `json:"timelineMonths"`
}

// EvolutionConfig are the per-job evolutionary algorithm parameters.
type EvolutionConfig struct {
	Generations                  int     `json:"generations"`
	PopulationSize               int     `json:"populationSize"`
	TopSelectCount               int     `json:"topSelectCount"`
	OffspringRatio               float64 `json:"offspringRatio"`
	DiversificationFactor        float64 `json:"diversificationFactor"`
	Model                        string  `json:"model"`
	CarryTopPerformersEnrichment bool    `json:"carryTopPerformersEnrichment"`
}

// ApiCallTelemetry is one append-only entry in a job's apiCalls log.
type ApiCallTelemetry struct {
	CallID      string    `json:"callId"`
	Phase       Phase     `json:"phase"`
	Generation  int       `json:"generation"`
	Model       string    `json:"model"`
	PromptTokens     int  `json:"promptTokens"`
	CompletionTokens int  `json:"completionTokens"`
	DurationMs  int64     `json:"durationMs"`
	CreatedAt   time.Time `json:"createdAt"`
}

// GenerationSummary is a per-generation scalar summary persisted on
// completion as part of generationHistory.
type GenerationSummary struct {
	Generation int     `json:"generation"`
	TopScore   float64 `json:"topScore"`
	AvgScore   float64 `json:"avgScore"`
	PopulationSize int `json:"populationSize"`
}

// Job is the root durable entity, keyed by JobID.
type Job struct {
	JobID  string    `json:"jobId"`
	Status JobStatus `json:"status"`

	ProblemContext  string          `json:"problemContext"`
	Preferences     Preferences     `json:"preferences"`
	EvolutionConfig EvolutionConfig `json:"evolutionConfig"`

	CurrentGeneration int   `json:"currentGeneration"`
	CurrentPhase      Phase `json:"currentPhase"`
	CheckAttempt      int   `json:"checkAttempt"`

	Generations map[int]*Generation `json:"generations"`

	ApiCalls []ApiCallTelemetry `json:"apiCalls"`

	TopSolutions      []ScoredIdea        `json:"topSolutions,omitempty"`
	AllSolutions      []ScoredIdea        `json:"allSolutions,omitempty"`
	GenerationHistory []GenerationSummary `json:"generationHistory,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Generation is the per-generation record addressed by generations[g].
type Generation struct {
	VariatorStarted     bool       `json:"variatorStarted"`
	VariatorStartedAt   *time.Time `json:"variatorStartedAt,omitempty"`
	VariatorComplete    bool       `json:"variatorComplete"`
	VariatorCompletedAt *time.Time `json:"variatorCompletedAt,omitempty"`
	VariatorError       string     `json:"variatorError,omitempty"`
	Ideas               []Idea     `json:"ideas,omitempty"`

	EnricherStarted      bool           `json:"enricherStarted"`
	EnricherStartedAt    *time.Time     `json:"enricherStartedAt,omitempty"`
	EnricherComplete     bool           `json:"enricherComplete"`
	EnricherCompletedAt  *time.Time     `json:"enricherCompletedAt,omitempty"`
	EnricherError        string         `json:"enricherError,omitempty"`
	EnricherParseFailure bool           `json:"enricherParseFailure,omitempty"`
	EnrichedIdeas        []EnrichedIdea `json:"enrichedIdeas,omitempty"`

	RankerStarted     bool       `json:"rankerStarted"`
	RankerStartedAt   *time.Time `json:"rankerStartedAt,omitempty"`
	RankerComplete    bool       `json:"rankerComplete"`
	RankerCompletedAt *time.Time `json:"rankerCompletedAt,omitempty"`
	RankerError       string     `json:"rankerError,omitempty"`

	Solutions      []ScoredIdea `json:"solutions,omitempty"`
	TopPerformers  []ScoredIdea `json:"topPerformers,omitempty"`
	TopScore       float64      `json:"topScore"`
	AvgScore       float64      `json:"avgScore"`

	GenerationComplete bool `json:"generationComplete"`
}

// StartedAt returns the start timestamp recorded for phase p, or nil if
// the phase has not started.
func (g *Generation) StartedAt(p Phase) *time.Time {
	switch p {
	case PhaseVariator:
		return g.VariatorStartedAt
	case PhaseEnricher:
		return g.EnricherStartedAt
	case PhaseRanker:
		return g.RankerStartedAt
	}
	return nil
}

// Started reports whether phase p has been marked started.
func (g *Generation) Started(p Phase) bool {
	switch p {
	case PhaseVariator:
		return g.VariatorStarted
	case PhaseEnricher:
		return g.EnricherStarted
	case PhaseRanker:
		return g.RankerStarted
	}
	return false
}

// Complete reports whether phase p has been marked complete.
func (g *Generation) Complete(p Phase) bool {
	switch p {
	case PhaseVariator:
		return g.VariatorComplete
	case PhaseEnricher:
		return g.EnricherComplete
	case PhaseRanker:
		return g.RankerComplete
	}
	return false
}
