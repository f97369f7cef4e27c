package plan

import (
	"context"

	"learntrail.dev/internal/database"
)

// Heuristic builds a deterministic plan by bucketing resources on difficulty
// into up to three fixed phases. It needs no external services and is the
// fallback for the LLM strategy.
type Heuristic struct{}

func (Heuristic) BuildPhases(_ context.Context, _ *database.Topic, resources []*database.Resource, _ database.Preferences) ([]database.Phase, error) {
	var beginner, intermediate, advanced, unspecified []*database.Resource
	for _, r := range resources {
		switch r.Difficulty {
		case "beginner":
			beginner = append(beginner, r)
		case "intermediate":
			intermediate = append(intermediate, r)
		case "advanced":
			advanced = append(advanced, r)
		default:
			unspecified = append(unspecified, r)
		}
	}

	if len(beginner) == 0 && len(intermediate) == 0 && len(advanced) == 0 {
		all := buildPhase(
			"Complete Learning Path",
			"Work through every gathered resource in order.",
			resources,
		)
		all.Order = 1
		return []database.Phase{all}, nil
	}

	// At most two unclassified resources pad the foundation phase; the rest
	// are left out rather than guessed into a later phase.
	foundation := beginner
	for i := 0; i < len(unspecified) && i < 2; i++ {
		foundation = append(foundation, unspecified[i])
	}

	var phases []database.Phase
	if len(foundation) > 0 {
		phases = append(phases, buildPhase(
			"Foundation & Basics",
			"Start with the fundamentals to build a solid base.",
			foundation,
		))
	}
	if len(intermediate) > 0 {
		phases = append(phases, buildPhase(
			"Building Skills",
			"Deepen your understanding with hands-on material.",
			intermediate,
		))
	}
	if len(advanced) > 0 {
		phases = append(phases, buildPhase(
			"Advanced Topics",
			"Tackle advanced concepts and real-world patterns.",
			advanced,
		))
	}
	for i := range phases {
		phases[i].Order = i + 1
	}
	return phases, nil
}

func buildPhase(name, description string, resources []*database.Resource) database.Phase {
	phase := database.Phase{
		Name:        name,
		Description: description,
		Resources:   make([]database.PhaseResource, 0, len(resources)),
	}
	minutes := 0.0
	for _, r := range resources {
		minutes += estimateMinutes(r)
		phase.Resources = append(phase.Resources, phaseResource(r, ""))
	}
	phase.EstimatedHours = estimateHours(minutes)
	return phase
}
