package evolution

import "math"

// CompositionCounts is the offspring/wildcard split the variator prompt
// must honor for one generation.
type CompositionCounts struct {
	OffspringCount int
	WildcardCount  int
}

// ComposeCounts computes offspringCount/wildcardCount for one generation:
// when topPerformers is empty (generation 1, or a carried-forward empty
// set), the entire population is wildcards regardless of offspringRatio.
func ComposeCounts(populationSize int, offspringRatio float64, topPerformerCount int) CompositionCounts {
	if topPerformerCount == 0 {
		return CompositionCounts{OffspringCount: 0, WildcardCount: populationSize}
	}
	offspring := int(math.Floor(float64(populationSize) * offspringRatio))
	if offspring > populationSize {
		offspring = populationSize
	}
	return CompositionCounts{
		OffspringCount: offspring,
		WildcardCount:  populationSize - offspring,
	}
}

// NewIdeaCount is how many ideas the variator must actually be asked to
// produce for generation g > 1 when top performers are carried forward
// by reference rather than resubmitted: the persisted population is
// topPerformers ∪ newIdeas, so the prompt only needs the delta.
func NewIdeaCount(populationSize, topPerformerCount int) int {
	n := populationSize - topPerformerCount
	if n < 0 {
		return 0
	}
	return n
}
