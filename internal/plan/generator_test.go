package plan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"learntrail.dev/internal/database"
)

type fakeStore struct {
	topic     *database.Topic
	resources []*database.Resource
	plans     map[int64]*database.Plan
	nextID    int64
	completed map[int64]bool

	completionUpdates []float64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		plans:     map[int64]*database.Plan{},
		completed: map[int64]bool{},
	}
}

func (f *fakeStore) GetTopic(_ context.Context, id int64) (*database.Topic, error) {
	if f.topic != nil && f.topic.ID == id {
		return f.topic, nil
	}
	return nil, nil
}

func (f *fakeStore) TopicResources(_ context.Context, _ int64, _ database.ResourceFilter) ([]*database.Resource, error) {
	return f.resources, nil
}

func (f *fakeStore) InsertPlan(_ context.Context, args *database.InsertPlanArgs) (int64, error) {
	f.nextID++
	f.plans[f.nextID] = &database.Plan{
		ID:                 f.nextID,
		TopicID:            args.TopicID,
		Title:              args.Title,
		Preferences:        args.Preferences,
		Phases:             args.Phases,
		TotalDurationHours: args.TotalDurationHours,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
	return f.nextID, nil
}

func (f *fakeStore) GetPlan(_ context.Context, id int64) (*database.Plan, error) {
	p, ok := f.plans[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) ListPlans(_ context.Context) ([]*database.Plan, error) {
	var out []*database.Plan
	for _, p := range f.plans {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) DeletePlan(_ context.Context, id int64) error {
	delete(f.plans, id)
	return nil
}

func (f *fakeStore) UpdatePlanCompletion(_ context.Context, id int64, pct float64) error {
	f.completionUpdates = append(f.completionUpdates, pct)
	if p, ok := f.plans[id]; ok {
		p.CompletionPercentage = pct
	}
	return nil
}

func (f *fakeStore) CompletedResourceIDs(_ context.Context, ids []int64) (map[int64]bool, error) {
	out := map[int64]bool{}
	for _, id := range ids {
		if f.completed[id] {
			out[id] = true
		}
	}
	return out, nil
}

func storeWithTopic(resources ...*database.Resource) *fakeStore {
	f := newFakeStore()
	f.topic = &database.Topic{ID: 1, Slug: "go", Name: "Go"}
	f.resources = resources
	return f
}

func typedRes(id int64, typ, pricing, difficulty string) *database.Resource {
	return &database.Resource{
		ID:         id,
		URL:        "https://example.com/r",
		Title:      "Resource",
		Type:       typ,
		Pricing:    pricing,
		Difficulty: difficulty,
	}
}

func TestGeneratePlanTopicNotFound(t *testing.T) {
	g := New(newFakeStore())
	_, err := g.GeneratePlan(context.Background(), 42, database.Preferences{})
	assert.ErrorIs(t, err, ErrTopicNotFound)
}

func TestGeneratePlanNoResources(t *testing.T) {
	g := New(storeWithTopic())
	_, err := g.GeneratePlan(context.Background(), 1, database.Preferences{})
	assert.ErrorIs(t, err, ErrNoResources)
}

func TestGeneratePlanNoMatch(t *testing.T) {
	g := New(storeWithTopic(typedRes(1, "video", "premium", "beginner")))
	_, err := g.GeneratePlan(context.Background(), 1, database.Preferences{FreeOnly: true})
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestGeneratePlanHappyPath(t *testing.T) {
	store := storeWithTopic(
		typedRes(1, "video", "free", "beginner"),
		typedRes(2, "article", "free", "intermediate"),
		typedRes(3, "course", "premium", "advanced"),
	)
	g := New(store)

	p, err := g.GeneratePlan(context.Background(), 1, database.Preferences{})
	require.NoError(t, err)

	assert.Equal(t, "Go Learning Path", p.Title)
	assert.Equal(t, int64(1), p.TopicID)
	assert.Zero(t, p.CompletionPercentage)
	require.Len(t, p.Phases, 3)

	total := 0
	for _, phase := range p.Phases {
		total += phase.EstimatedHours
	}
	assert.Equal(t, total, p.TotalDurationHours)
}

func TestGeneratePlanFreeOnly(t *testing.T) {
	store := storeWithTopic(
		typedRes(1, "video", "free", "beginner"),
		typedRes(2, "course", "premium", "beginner"),
		typedRes(3, "article", "freemium", "intermediate"),
	)
	g := New(store)

	p, err := g.GeneratePlan(context.Background(), 1, database.Preferences{FreeOnly: true})
	require.NoError(t, err)

	for _, phase := range p.Phases {
		for _, r := range phase.Resources {
			assert.Equal(t, int64(1), r.ResourceID, "only the free resource may appear")
		}
	}
}

func TestGeneratePlanPreferredTypes(t *testing.T) {
	store := storeWithTopic(
		typedRes(1, "video", "free", "beginner"),
		typedRes(2, "course", "free", "beginner"),
		typedRes(3, "article", "free", "intermediate"),
	)
	g := New(store)

	p, err := g.GeneratePlan(context.Background(), 1, database.Preferences{
		PreferredTypes: []string{"video", "article"},
	})
	require.NoError(t, err)

	seen := map[int64]bool{}
	for _, phase := range p.Phases {
		for _, r := range phase.Resources {
			seen[r.ResourceID] = true
		}
	}
	assert.True(t, seen[1])
	assert.False(t, seen[2])
	assert.True(t, seen[3])
}

func TestGetPlanNotFound(t *testing.T) {
	g := New(newFakeStore())
	_, err := g.GetPlan(context.Background(), 7)
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestGetPlanRecomputesCompletion(t *testing.T) {
	store := storeWithTopic(
		typedRes(1, "video", "free", "beginner"),
		typedRes(2, "article", "free", "beginner"),
	)
	g := New(store)

	p, err := g.GeneratePlan(context.Background(), 1, database.Preferences{})
	require.NoError(t, err)
	assert.Zero(t, p.CompletionPercentage)

	store.completed[1] = true
	p, err = g.GetPlan(context.Background(), p.ID)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, p.CompletionPercentage, 0.001)
	assert.Contains(t, store.completionUpdates, 50.0)
}

func TestGetPlanSkipsPersistWithinEpsilon(t *testing.T) {
	store := storeWithTopic(
		typedRes(1, "video", "free", "beginner"),
		typedRes(2, "article", "free", "beginner"),
	)
	g := New(store)

	p, err := g.GeneratePlan(context.Background(), 1, database.Preferences{})
	require.NoError(t, err)

	store.completionUpdates = nil
	_, err = g.GetPlan(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Empty(t, store.completionUpdates, "unchanged completion must not be rewritten")
}

func TestDeletePlan(t *testing.T) {
	store := storeWithTopic(typedRes(1, "video", "free", "beginner"))
	g := New(store)

	p, err := g.GeneratePlan(context.Background(), 1, database.Preferences{})
	require.NoError(t, err)

	require.NoError(t, g.DeletePlan(context.Background(), p.ID))
	_, err = g.GetPlan(context.Background(), p.ID)
	assert.ErrorIs(t, err, ErrPlanNotFound)
}
