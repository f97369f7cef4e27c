// Package plan assembles multi-phase learning plans from a topic's persisted
// resources, using an LLM-backed strategy when a client is configured and a
// deterministic difficulty-bucketed strategy otherwise.
package plan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"learntrail.dev/internal/database"
)

var (
	// ErrTopicNotFound is returned when the plan's topic does not exist.
	ErrTopicNotFound = errors.New("topic not found")
	// ErrPlanNotFound is returned by reads against an absent plan id.
	ErrPlanNotFound = errors.New("plan not found")
	// ErrNoResources is returned when the topic has no associated resources.
	ErrNoResources = errors.New("topic has no resources")
	// ErrNoMatch is returned when preference filtering empties the set.
	ErrNoMatch = errors.New("no resources match the given preferences")
)

// completionEpsilon is the drift beyond which a recomputed completion
// percentage gets persisted back.
const completionEpsilon = 0.01

// Store is the persistence surface the generator needs.
type Store interface {
	GetTopic(ctx context.Context, id int64) (*database.Topic, error)
	TopicResources(ctx context.Context, topicID int64, f database.ResourceFilter) ([]*database.Resource, error)
	InsertPlan(ctx context.Context, args *database.InsertPlanArgs) (int64, error)
	GetPlan(ctx context.Context, id int64) (*database.Plan, error)
	ListPlans(ctx context.Context) ([]*database.Plan, error)
	DeletePlan(ctx context.Context, id int64) error
	UpdatePlanCompletion(ctx context.Context, id int64, pct float64) error
	CompletedResourceIDs(ctx context.Context, resourceIDs []int64) (map[int64]bool, error)
}

// Strategy builds the ordered phases for a plan. BuildPhases never returns
// an empty slice together with a nil error.
type Strategy interface {
	BuildPhases(ctx context.Context, topic *database.Topic, resources []*database.Resource, prefs database.Preferences) ([]database.Phase, error)
}

// Generator produces and reads learning plans.
type Generator struct {
	store    Store
	strategy Strategy
}

// GeneratorOptions configures the Generator.
type GeneratorOptions struct {
	strategy Strategy
}

// GeneratorOption applies a configuration to GeneratorOptions.
type GeneratorOption func(*GeneratorOptions)

// WithStrategy overrides the phase-building strategy. The default is the
// heuristic strategy.
func WithStrategy(s Strategy) GeneratorOption {
	return func(o *GeneratorOptions) { o.strategy = s }
}

// New constructs a Generator over the given store.
func New(store Store, opts ...GeneratorOption) *Generator {
	var o GeneratorOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.strategy == nil {
		o.strategy = Heuristic{}
	}
	return &Generator{store: store, strategy: o.strategy}
}

// GeneratePlan assembles, persists and returns a plan for topicID under the
// given preferences.
func (g *Generator) GeneratePlan(ctx context.Context, topicID int64, prefs database.Preferences) (*database.Plan, error) {
	tracer := otel.Tracer("learntrail/plan")
	ctx, span := tracer.Start(ctx, "Generator.GeneratePlan")
	span.SetAttributes(attribute.Int64("topic_id", topicID))
	defer span.End()

	topic, err := g.store.GetTopic(ctx, topicID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if topic == nil {
		return nil, ErrTopicNotFound
	}

	resources, err := g.store.TopicResources(ctx, topicID, database.ResourceFilter{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(resources) == 0 {
		return nil, ErrNoResources
	}

	filtered := applyPreferences(resources, prefs)
	if len(filtered) == 0 {
		return nil, ErrNoMatch
	}

	phases, err := g.strategy.BuildPhases(ctx, topic, filtered, prefs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("build phases: %w", err)
	}

	total := 0
	for _, p := range phases {
		total += p.EstimatedHours
	}

	args := &database.InsertPlanArgs{
		TopicID:            topic.ID,
		Title:              topic.Name + " Learning Path",
		Preferences:        prefs,
		Phases:             phases,
		TotalDurationHours: total,
	}
	id, err := g.store.InsertPlan(ctx, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	slog.InfoContext(ctx, "plan generated",
		"plan_id", id, "topic_id", topic.ID, "phases", len(phases), "total_hours", total)

	return g.GetPlan(ctx, id)
}

// GetPlan loads a plan and recomputes its completion percentage from the
// progress entries. A recomputed value that drifts from the stored one is
// persisted before returning.
func (g *Generator) GetPlan(ctx context.Context, id int64) (*database.Plan, error) {
	tracer := otel.Tracer("learntrail/plan")
	ctx, span := tracer.Start(ctx, "Generator.GetPlan")
	span.SetAttributes(attribute.Int64("plan_id", id))
	defer span.End()

	p, err := g.store.GetPlan(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if p == nil {
		return nil, ErrPlanNotFound
	}

	pct, err := g.completion(ctx, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if math.Abs(pct-p.CompletionPercentage) > completionEpsilon {
		if err := g.store.UpdatePlanCompletion(ctx, p.ID, pct); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}
	p.CompletionPercentage = pct
	return p, nil
}

// ListPlans returns every stored plan, newest first.
func (g *Generator) ListPlans(ctx context.Context) ([]*database.Plan, error) {
	return g.store.ListPlans(ctx)
}

// DeletePlan removes the plan by id.
func (g *Generator) DeletePlan(ctx context.Context, id int64) error {
	return g.store.DeletePlan(ctx, id)
}

func (g *Generator) completion(ctx context.Context, p *database.Plan) (float64, error) {
	var ids []int64
	for _, phase := range p.Phases {
		for _, r := range phase.Resources {
			ids = append(ids, r.ResourceID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	completed, err := g.store.CompletedResourceIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("read progress: %w", err)
	}
	done := 0
	for _, id := range ids {
		if completed[id] {
			done++
		}
	}
	return 100 * float64(done) / float64(len(ids)), nil
}

func applyPreferences(in []*database.Resource, prefs database.Preferences) []*database.Resource {
	out := make([]*database.Resource, 0, len(in))
	for _, r := range in {
		if prefs.FreeOnly && r.Pricing != "free" {
			continue
		}
		if len(prefs.PreferredTypes) > 0 && !slices.Contains(prefs.PreferredTypes, r.Type) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// estimateMinutes returns the resource's duration, substituting a per-type
// default when no duration is recorded.
func estimateMinutes(r *database.Resource) float64 {
	if r.DurationMinutes > 0 {
		return r.DurationMinutes
	}
	switch r.Type {
	case "video":
		return 30
	case "course":
		return 180
	case "article":
		return 20
	case "documentation":
		return 60
	case "tutorial":
		return 45
	case "repository":
		return 120
	default:
		return 60
	}
}

// estimateHours converts a phase's summed minutes into whole hours with a
// 1.25 practice multiplier, rounding up at each step.
func estimateHours(minutes float64) int {
	hours := math.Ceil(math.Ceil(minutes) / 60)
	return int(math.Ceil(hours * 1.25))
}

func phaseResource(r *database.Resource, reason string) database.PhaseResource {
	return database.PhaseResource{
		ResourceID:      r.ID,
		Title:           r.Title,
		URL:             r.URL,
		Type:            r.Type,
		Difficulty:      r.Difficulty,
		DurationMinutes: r.DurationMinutes,
		Reason:          reason,
	}
}
