// Package aggregate orchestrates resource discovery for a topic: it fans
// out to the enabled source adapters, classifies and scores the raw
// candidates, deduplicates them by canonical URL, persists the survivors,
// and caches the summarized result.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"learntrail.dev/internal/classify"
	"learntrail.dev/internal/database"
	"learntrail.dev/internal/sources"
)

// ErrTopicNotFound is returned by reads against a topic id that does not exist.
var ErrTopicNotFound = errors.New("topic not found")

// Store is the persistence surface the aggregator needs.
type Store interface {
	UpsertTopic(ctx context.Context, slug, name string) (*database.Topic, error)
	GetTopic(ctx context.Context, id int64) (*database.Topic, error)
	UpsertResource(ctx context.Context, args *database.UpsertResourceArgs) (int64, error)
	LinkTopicResource(ctx context.Context, topicID, resourceID int64, relevance int) error
	UpdateTopicStats(ctx context.Context, topicID int64, resourceCount int) error
	TopicResources(ctx context.Context, topicID int64, f database.ResourceFilter) ([]*database.Resource, error)
}

// Options bounds one aggregation run. Start from DefaultOptions.
type Options struct {
	MaxResourcesPerSource int
	IncludeYouTube        bool
	IncludeGitHub         bool
	IncludeCurated        bool
	MinQualityScore       int
}

// DefaultOptions returns the standard aggregation options: 20 candidates per
// source, YouTube and GitHub enabled, curated lists off, quality floor 30.
func DefaultOptions() Options {
	return Options{
		MaxResourcesPerSource: 20,
		IncludeYouTube:        true,
		IncludeGitHub:         true,
		MinQualityScore:       30,
	}
}

func (o Options) includes(name string) bool {
	switch name {
	case "youtube":
		return o.IncludeYouTube
	case "github":
		return o.IncludeGitHub
	case "curated":
		return o.IncludeCurated
	default:
		return true
	}
}

// Result summarizes one aggregation run. Sources tallies the surviving
// resources by their classified type, not by adapter identity.
type Result struct {
	TopicID             int64          `json:"topicId"`
	ResourceCount       int            `json:"resourceCount"`
	Sources             map[string]int `json:"sources"`
	AverageQualityScore float64        `json:"averageQualityScore"`
}

// Aggregator coordinates adapters, the classifier, the store and the
// result cache.
type Aggregator struct {
	store    Store
	adapters []sources.Adapter
	cache    *ResultCache
}

// AggregatorOptions configures the Aggregator.
type AggregatorOptions struct {
	cacheTTL time.Duration
}

// AggregatorOption applies a configuration to AggregatorOptions.
type AggregatorOption func(*AggregatorOptions)

// WithCacheTTL overrides the result cache TTL.
func WithCacheTTL(d time.Duration) AggregatorOption {
	return func(o *AggregatorOptions) { o.cacheTTL = d }
}

// New constructs an Aggregator over the given store and adapters.
func New(store Store, adapters []sources.Adapter, opts ...AggregatorOption) *Aggregator {
	var o AggregatorOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &Aggregator{
		store:    store,
		adapters: adapters,
		cache:    NewResultCache(o.cacheTTL),
	}
}

// Slugify derives the normalized topic slug used as the aggregation key.
func Slugify(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			sb.WriteByte('-')
		}
	}
	return strings.Trim(sb.String(), "-")
}

// AggregateResources runs the full discovery pipeline for topicName. A fresh
// cached result short-circuits before any adapter is contacted. Adapter
// failures are absorbed; a persistence failure aborts and propagates.
func (a *Aggregator) AggregateResources(ctx context.Context, topicName string, opts Options) (Result, error) {
	tracer := otel.Tracer("learntrail/aggregate")
	ctx, span := tracer.Start(ctx, "Aggregator.AggregateResources")
	span.SetAttributes(attribute.String("topic", topicName))
	defer span.End()

	if strings.TrimSpace(topicName) == "" {
		return Result{}, fmt.Errorf("topic name is required")
	}
	if opts.MaxResourcesPerSource <= 0 {
		opts.MaxResourcesPerSource = DefaultOptions().MaxResourcesPerSource
	}

	topic, err := a.store.UpsertTopic(ctx, Slugify(topicName), strings.TrimSpace(topicName))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	if cached, ok := a.cache.Get(topic.ID); ok {
		slog.InfoContext(ctx, "aggregation cache fresh; skip source fetch",
			"topic_id", topic.ID, "resource_count", cached.ResourceCount)
		return cached, nil
	}

	raws := a.fetchAll(ctx, topicName, opts)
	classified := classify.ClassifyBatch(raws)

	kept := dedupe(filterByQuality(classified, opts.MinQualityScore))
	slog.InfoContext(ctx, "aggregation classified",
		"topic_id", topic.ID, "raw", len(raws), "kept", len(kept))

	// One upsert pair per resource, sequentially and without a wrapping
	// transaction: a mid-loop failure aborts with prior writes in place.
	for _, res := range kept {
		id, err := a.store.UpsertResource(ctx, upsertArgs(res))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Result{}, fmt.Errorf("persist resource %s: %w", res.URL, err)
		}
		if err := a.store.LinkTopicResource(ctx, topic.ID, id, res.QualityScore); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Result{}, fmt.Errorf("link resource %s: %w", res.URL, err)
		}
	}

	if err := a.store.UpdateTopicStats(ctx, topic.ID, len(kept)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	result := summarize(topic.ID, kept)
	a.cache.Set(topic.ID, result)
	return result, nil
}

// fetchAll fans out to every enabled, available adapter concurrently. An
// adapter that fails or is unavailable contributes nothing but a warning.
func (a *Aggregator) fetchAll(ctx context.Context, topic string, opts Options) []sources.RawCandidate {
	var mu sync.Mutex
	var raws []sources.RawCandidate
	wg := errgroup.Group{}
	for _, adapter := range a.adapters {
		if !opts.includes(adapter.Name()) {
			continue
		}
		wg.Go(func() error {
			if !adapter.Available(ctx) {
				slog.WarnContext(ctx, "source adapter unavailable", "source", adapter.Name())
				return nil
			}
			cands, err := adapter.Search(ctx, topic, sources.SearchOptions{
				MaxResults: opts.MaxResourcesPerSource,
			})
			if err != nil {
				slog.WarnContext(ctx, "source adapter search failed",
					"source", adapter.Name(), "topic", topic, "error", err)
				return nil
			}
			mu.Lock()
			raws = append(raws, cands...)
			mu.Unlock()
			return nil
		})
	}
	_ = wg.Wait()
	return raws
}

func filterByQuality(in []classify.Resource, minScore int) []classify.Resource {
	out := make([]classify.Resource, 0, len(in))
	for _, r := range in {
		if r.QualityScore >= minScore {
			out = append(out, r)
		}
	}
	return out
}

// dedupe collapses resources sharing a normalized URL, keeping the higher
// quality score. Output preserves first-seen order.
func dedupe(in []classify.Resource) []classify.Resource {
	index := make(map[string]int, len(in))
	out := make([]classify.Resource, 0, len(in))
	for _, r := range in {
		if i, ok := index[r.NormalizedURL]; ok {
			if r.QualityScore > out[i].QualityScore {
				out[i] = r
			}
			continue
		}
		index[r.NormalizedURL] = len(out)
		out = append(out, r)
	}
	return out
}

func summarize(topicID int64, kept []classify.Resource) Result {
	result := Result{
		TopicID:       topicID,
		ResourceCount: len(kept),
		Sources:       make(map[string]int),
	}
	total := 0
	for _, r := range kept {
		result.Sources[string(r.Type)]++
		total += r.QualityScore
	}
	if len(kept) > 0 {
		result.AverageQualityScore = float64(total) / float64(len(kept))
	}
	return result
}

func upsertArgs(r classify.Resource) *database.UpsertResourceArgs {
	return &database.UpsertResourceArgs{
		URL:             r.URL,
		NormalizedURL:   r.NormalizedURL,
		Title:           r.Title,
		Description:     r.Description,
		Platform:        r.Platform,
		Type:            string(r.Type),
		Difficulty:      string(r.Difficulty),
		Pricing:         string(r.Pricing),
		QualityScore:    r.QualityScore,
		DurationMinutes: r.DurationMinutes,
		Stars:           r.Stars,
		ViewCount:       r.ViewCount,
		Rating:          r.Rating,
		PublishedAt:     r.PublishedAt,
		LastUpdated:     r.LastUpdated,
	}
}

// TopicResources reads a topic's persisted resources with optional filters,
// ordered by relevance score descending.
func (a *Aggregator) TopicResources(ctx context.Context, topicID int64, f database.ResourceFilter) ([]*database.Resource, error) {
	tracer := otel.Tracer("learntrail/aggregate")
	ctx, span := tracer.Start(ctx, "Aggregator.TopicResources")
	span.SetAttributes(attribute.Int64("topic_id", topicID))
	defer span.End()

	topic, err := a.store.GetTopic(ctx, topicID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if topic == nil {
		return nil, ErrTopicNotFound
	}
	return a.store.TopicResources(ctx, topicID, f)
}

// ClearCache drops the cached aggregation result for topicID. Idempotent.
func (a *Aggregator) ClearCache(topicID int64) {
	a.cache.Clear(topicID)
}
