// Package evolution implements the pure, non-LLM parts of the
// evolutionary algorithm: scoring, preference filtering, top-performer
// selection, and next-generation composition counts.
package evolution

import (
	"fmt"
	"math"

	"github.com/evoengine/evoengine/pkg/models"
)

// ErrInvalidCapex is a fatal validation error for non-positive capex.
var ErrInvalidCapex = fmt.Errorf("ranker: capex must be positive")

// ErrNonFiniteScore is a fatal validation error for NaN/infinite scores.
var ErrNonFiniteScore = fmt.Errorf("ranker: score is not finite")

// Score computes the risk-adjusted, diversification-penalized score for
// one business case:
//
//	expectedValue      = p*npv - (1-p)*capex
//	diversificationPen = sqrt(capex / c0)
//	score              = expectedValue / diversificationPen
func Score(bc models.BusinessCase, c0 float64) (float64, error) {
	if bc.CapexEst <= 0 {
		return 0, ErrInvalidCapex
	}
	p := bc.Likelihood
	expectedValue := p*bc.NPVSuccess - (1-p)*bc.CapexEst
	pen := math.Sqrt(bc.CapexEst / c0)
	score := expectedValue / pen
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, ErrNonFiniteScore
	}
	return score, nil
}

// Rank scores every enriched idea, applies the preference filter, and
// orders the result: non-violating ideas first by score descending, then
// violating ideas also by score descending. maxCapex <= 0 disables the
// filter (every idea passes).
func Rank(ideas []models.EnrichedIdea, maxCapex, c0 float64) ([]models.ScoredIdea, error) {
	scored := make([]models.ScoredIdea, 0, len(ideas))
	for _, idea := range ideas {
		score, err := Score(idea.BusinessCase, c0)
		if err != nil {
			return nil, fmt.Errorf("idea %s: %w", idea.IdeaID, err)
		}
		si := models.ScoredIdea{EnrichedIdea: idea, Score: score}
		if maxCapex > 0 && idea.BusinessCase.CapexEst > maxCapex {
			si.ViolatesPreferences = true
			si.PreferenceNote = fmt.Sprintf("capex_est %.4f exceeds maxCapex %.4f", idea.BusinessCase.CapexEst, maxCapex)
		}
		scored = append(scored, si)
	}

	return Reorder(scored), nil
}

// Reorder re-derives Rank over an already-scored set: non-violating
// ideas first by score descending, then violating ideas also by score
// descending. It leaves Score, ViolatesPreferences, and PreferenceNote
// untouched, which lets a generation mix freshly scored ideas with ideas
// carried forward from a prior generation without recomputing their score.
func Reorder(scored []models.ScoredIdea) []models.ScoredIdea {
	var head, tail []models.ScoredIdea
	for _, s := range scored {
		if s.ViolatesPreferences {
			tail = append(tail, s)
		} else {
			head = append(head, s)
		}
	}
	sortByScoreDesc(head)
	sortByScoreDesc(tail)

	ranked := make([]models.ScoredIdea, 0, len(scored))
	ranked = append(ranked, head...)
	ranked = append(ranked, tail...)
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

func sortByScoreDesc(s []models.ScoredIdea) {
	// insertion sort: populations are small (tens of ideas), and this
	// keeps the ordering stable for ideas with equal scores.
	for i := 1; i < len(s); i++ {
		j := i
		for j > 0 && s[j-1].Score < s[j].Score {
			s[j-1], s[j] = s[j], s[j-1]
			j--
		}
	}
}

// Summarize computes topScore/avgScore over all ranked ideas.
func Summarize(ranked []models.ScoredIdea) (topScore, avgScore float64) {
	if len(ranked) == 0 {
		return 0, 0
	}
	sum := 0.0
	top := math.Inf(-1)
	for _, s := range ranked {
		sum += s.Score
		if s.Score > top {
			top = s.Score
		}
	}
	return top, sum / float64(len(ranked))
}

// SelectTopPerformers takes topSelectCount ideas from the non-violating
// head of ranked (already sorted by Rank); if that head is short, it
// backfills from the violating tail until topSelectCount is reached or
// no ideas remain. This preserves an evolutionary signal even when every
// idea in the generation violates preferences.
func SelectTopPerformers(ranked []models.ScoredIdea, topSelectCount int) []models.ScoredIdea {
	if topSelectCount <= 0 {
		return nil
	}
	var head, tail []models.ScoredIdea
	for _, s := range ranked {
		if s.ViolatesPreferences {
			tail = append(tail, s)
		} else {
			head = append(head, s)
		}
	}

	top := make([]models.ScoredIdea, 0, topSelectCount)
	for _, s := range head {
		if len(top) == topSelectCount {
			break
		}
		top = append(top, s)
	}
	for _, s := range tail {
		if len(top) == topSelectCount {
			break
		}
		top = append(top, s)
	}
	return top
}
