package models

// Idea is a raw candidate produced by the variator.
type Idea struct {
	IdeaID        string `json:"idea_id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	CoreMechanism string `json:"core_mechanism"`
	IsOffspring   bool   `json:"is_offspring"`

	// CarriedFromGeneration is the generation number this idea's prior
	// enrichment and score were computed in, or 0 if this idea was
	// proposed fresh in its current generation. A carried idea is not
	// resubmitted to the enricher or ranker.
	CarriedFromGeneration int `json:"carriedFromGeneration,omitempty"`
}

// BusinessCase is the enricher's projection for one idea. All monetary
// fields are millions USD.
type BusinessCase struct {
	NPVSuccess       float64   `json:"npv_success"`
	CapexEst         float64   `json:"capex_est"`
	TimelineMonths   float64   `json:"timeline_months"`
	Likelihood       float64   `json:"likelihood"`
	RiskFactors      []string  `json:"risk_factors"`
	YearlyCashflows  []float64 `json:"yearly_cashflows"`
}

// EnrichedIdea is an Idea with its attached BusinessCase.
type EnrichedIdea struct {
	Idea
	BusinessCase BusinessCase `json:"business_case"`
}

// ScoredIdea is an EnrichedIdea after ranking.
type ScoredIdea struct {
	EnrichedIdea
	Score               float64 `json:"score"`
	Rank                int     `json:"rank"`
	ViolatesPreferences bool    `json:"violatesPreferences,omitempty"`
	PreferenceNote      string  `json:"preferenceNote,omitempty"`
}
