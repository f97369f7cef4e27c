package aggregate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"learntrail.dev/internal/classify"
	"learntrail.dev/internal/database"
	"learntrail.dev/internal/sources"
)

type fakeStore struct {
	topics        map[string]*database.Topic
	nextTopicID   int64
	resources     map[string]int64
	nextResID     int64
	links         map[[2]int64]int
	statsCalls    int
	upsertResErr  error
	linkErr       error
	upsertTopErr  error
	topicRes      []*database.Resource
	upsertedTypes []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		topics:    map[string]*database.Topic{},
		resources: map[string]int64{},
		links:     map[[2]int64]int{},
	}
}

func (f *fakeStore) UpsertTopic(_ context.Context, slug, name string) (*database.Topic, error) {
	if f.upsertTopErr != nil {
		return nil, f.upsertTopErr
	}
	if t, ok := f.topics[slug]; ok {
		return t, nil
	}
	f.nextTopicID++
	t := &database.Topic{ID: f.nextTopicID, Slug: slug, Name: name, LastAggregatedAt: time.Now()}
	f.topics[slug] = t
	return t, nil
}

func (f *fakeStore) GetTopic(_ context.Context, id int64) (*database.Topic, error) {
	for _, t := range f.topics {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpsertResource(_ context.Context, args *database.UpsertResourceArgs) (int64, error) {
	if f.upsertResErr != nil {
		return 0, f.upsertResErr
	}
	f.upsertedTypes = append(f.upsertedTypes, args.Type)
	if id, ok := f.resources[args.URL]; ok {
		return id, nil
	}
	f.nextResID++
	f.resources[args.URL] = f.nextResID
	return f.nextResID, nil
}

func (f *fakeStore) LinkTopicResource(_ context.Context, topicID, resourceID int64, relevance int) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	f.links[[2]int64{topicID, resourceID}] = relevance
	return nil
}

func (f *fakeStore) UpdateTopicStats(_ context.Context, _ int64, _ int) error {
	f.statsCalls++
	return nil
}

func (f *fakeStore) TopicResources(_ context.Context, _ int64, _ database.ResourceFilter) ([]*database.Resource, error) {
	return f.topicRes, nil
}

type fakeAdapter struct {
	name      string
	available bool
	cands     []sources.RawCandidate
	err       error
	calls     int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Available(_ context.Context) bool { return f.available }

func (f *fakeAdapter) Search(_ context.Context, _ string, _ sources.SearchOptions) ([]sources.RawCandidate, error) {
	f.calls++
	return f.cands, f.err
}

func candidate(url string, views int64) sources.RawCandidate {
	return sources.RawCandidate{URL: url, Title: "Go", ViewCount: views}
}

func TestAggregateResourcesHappyPath(t *testing.T) {
	store := newFakeStore()
	adapter := &fakeAdapter{
		name:      "github",
		available: true,
		cands: []sources.RawCandidate{
			candidate("https://github.com/golang/go", 0),
			candidate("https://www.youtube.com/watch?v=abc", 50_000),
		},
	}
	agg := New(store, []sources.Adapter{adapter})

	result, err := agg.AggregateResources(context.Background(), "Go Basics", DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 2, result.ResourceCount)
	assert.Equal(t, 1, result.Sources["repository"])
	assert.Equal(t, 1, result.Sources["video"])
	assert.Greater(t, result.AverageQualityScore, 0.0)
	assert.Len(t, store.links, 2)
	assert.Equal(t, 1, store.statsCalls)

	topic, ok := store.topics["go-basics"]
	require.True(t, ok)
	assert.Equal(t, "Go Basics", topic.Name)
}

func TestAggregateResourcesDedupeKeepsHigherScore(t *testing.T) {
	store := newFakeStore()
	// Same canonical URL twice with different popularity, so different scores.
	adapter := &fakeAdapter{
		name:      "github",
		available: true,
		cands: []sources.RawCandidate{
			candidate("https://www.youtube.com/watch?v=abc&t=10s", 10),
			candidate("https://youtube.com/watch?v=abc", 500_000),
		},
	}
	agg := New(store, []sources.Adapter{adapter})

	result, err := agg.AggregateResources(context.Background(), "go", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ResourceCount)

	wantScore := classify.Classify(candidate("https://youtube.com/watch?v=abc", 500_000)).QualityScore
	require.Len(t, store.links, 1)
	for _, relevance := range store.links {
		assert.Equal(t, wantScore, relevance)
	}
}

func TestAggregateResourcesCacheShortCircuit(t *testing.T) {
	store := newFakeStore()
	adapter := &fakeAdapter{
		name:      "github",
		available: true,
		cands:     []sources.RawCandidate{candidate("https://github.com/a/b", 0)},
	}
	agg := New(store, []sources.Adapter{adapter})

	first, err := agg.AggregateResources(context.Background(), "go", DefaultOptions())
	require.NoError(t, err)
	second, err := agg.AggregateResources(context.Background(), "go", DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, adapter.calls, "cached run must not contact adapters")
	assert.Equal(t, 1, store.statsCalls)
}

func TestAggregateResourcesClearCacheForcesRefetch(t *testing.T) {
	store := newFakeStore()
	adapter := &fakeAdapter{
		name:      "github",
		available: true,
		cands:     []sources.RawCandidate{candidate("https://github.com/a/b", 0)},
	}
	agg := New(store, []sources.Adapter{adapter})

	_, err := agg.AggregateResources(context.Background(), "go", DefaultOptions())
	require.NoError(t, err)
	agg.ClearCache(1)
	_, err = agg.AggregateResources(context.Background(), "go", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, adapter.calls)
}

func TestAggregateResourcesMinQualityFilter(t *testing.T) {
	now := time.Now()
	store := newFakeStore()
	adapter := &fakeAdapter{
		name:      "github",
		available: true,
		cands: []sources.RawCandidate{
			// Strong: rated, popular, fresh, reputable host.
			{URL: "https://github.com/golang/go", Rating: 5, Stars: 1_000_000, PublishedAt: &now},
			// Weak: nothing going for it on an unknown host.
			{URL: "https://example.com/meh", Rating: 0.1, Stars: 1},
		},
	}
	agg := New(store, []sources.Adapter{adapter})

	opts := DefaultOptions()
	opts.MinQualityScore = 50
	result, err := agg.AggregateResources(context.Background(), "go", opts)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ResourceCount)
}

func TestAggregateResourcesAdapterFailureAbsorbed(t *testing.T) {
	store := newFakeStore()
	failing := &fakeAdapter{name: "youtube", available: true, err: errors.New("quota exceeded")}
	unavailable := &fakeAdapter{name: "curated", available: false}
	working := &fakeAdapter{
		name:      "github",
		available: true,
		cands:     []sources.RawCandidate{candidate("https://github.com/a/b", 0)},
	}
	agg := New(store, []sources.Adapter{failing, unavailable, working})

	opts := DefaultOptions()
	opts.IncludeCurated = true
	result, err := agg.AggregateResources(context.Background(), "go", opts)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ResourceCount)
	assert.Equal(t, 0, unavailable.calls)
}

func TestAggregateResourcesDisabledAdaptersSkipped(t *testing.T) {
	store := newFakeStore()
	yt := &fakeAdapter{name: "youtube", available: true}
	gh := &fakeAdapter{
		name:      "github",
		available: true,
		cands:     []sources.RawCandidate{candidate("https://github.com/a/b", 0)},
	}
	agg := New(store, []sources.Adapter{yt, gh})

	opts := DefaultOptions()
	opts.IncludeYouTube = false
	_, err := agg.AggregateResources(context.Background(), "go", opts)
	require.NoError(t, err)
	assert.Equal(t, 0, yt.calls)
	assert.Equal(t, 1, gh.calls)
}

func TestAggregateResourcesPersistFailurePropagates(t *testing.T) {
	store := newFakeStore()
	store.upsertResErr = errors.New("connection reset")
	adapter := &fakeAdapter{
		name:      "github",
		available: true,
		cands:     []sources.RawCandidate{candidate("https://github.com/a/b", 0)},
	}
	agg := New(store, []sources.Adapter{adapter})

	_, err := agg.AggregateResources(context.Background(), "go", DefaultOptions())
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection reset")

	// A failed run must not poison the cache.
	store.upsertResErr = nil
	_, err = agg.AggregateResources(context.Background(), "go", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, adapter.calls)
}

func TestAggregateResourcesEmptyTopic(t *testing.T) {
	agg := New(newFakeStore(), nil)
	_, err := agg.AggregateResources(context.Background(), "   ", DefaultOptions())
	assert.Error(t, err)
}

func TestTopicResourcesUnknownTopic(t *testing.T) {
	agg := New(newFakeStore(), nil)
	_, err := agg.TopicResources(context.Background(), 99, database.ResourceFilter{})
	assert.ErrorIs(t, err, ErrTopicNotFound)
}

func TestSlugify(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Go Basics", "go-basics"},
		{"  Machine Learning  ", "machine-learning"},
		{"C++", "c"},
		{"rust_lang", "rust-lang"},
		{"already-slugged", "already-slugged"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slugify(tt.in), "input=%q", tt.in)
	}
}
