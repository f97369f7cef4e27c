// Package learntrail wires the configured clients together: the database,
// the source adapters, the aggregator and the plan generator.
package learntrail

import (
	"context"
	"fmt"

	aiopenai "learntrail.dev/internal/ai/openai"
	"learntrail.dev/internal/aggregate"
	"learntrail.dev/internal/config"
	"learntrail.dev/internal/database"
	"learntrail.dev/internal/plan"
	"learntrail.dev/internal/sources"
	"learntrail.dev/internal/sources/curated"
	"learntrail.dev/internal/sources/github"
	"learntrail.dev/internal/sources/youtube"
)

// LearnTrail aggregates the clients used by the application.
type LearnTrail struct {
	db  *database.Database
	cfg *config.Config
	agg *aggregate.Aggregator
	gen *plan.Generator
}

// ClientSetOptions holds configuration for initializing LearnTrail.
type ClientSetOptions struct {
	adapters []sources.Adapter
	planOpts []plan.GeneratorOption
	aggOpts  []aggregate.AggregatorOption
}

// ClientSetOption applies a configuration to ClientSetOptions.
type ClientSetOption func(*ClientSetOptions)

// WithAdapters replaces the default source adapters.
func WithAdapters(adapters ...sources.Adapter) ClientSetOption {
	return func(o *ClientSetOptions) { o.adapters = adapters }
}

// WithGeneratorOptions forwards plan generator options.
func WithGeneratorOptions(opts ...plan.GeneratorOption) ClientSetOption {
	return func(o *ClientSetOptions) { o.planOpts = append(o.planOpts, opts...) }
}

// WithAggregatorOptions forwards aggregator options.
func WithAggregatorOptions(opts ...aggregate.AggregatorOption) ClientSetOption {
	return func(o *ClientSetOptions) { o.aggOpts = append(o.aggOpts, opts...) }
}

// NewForConfig builds the full client set from configuration: every source
// adapter the credentials allow, the LLM strategy when an OpenAI key is
// present, and the result cache with the configured TTL.
func NewForConfig(cfg *config.Config) (*LearnTrail, error) {
	db, err := database.NewForConfig(cfg)
	if err != nil {
		return nil, err
	}

	var ghOpts []github.AdapterOption
	var curOpts []curated.AdapterOption
	if token := cfg.GetGitHubToken(); token != "" {
		ghOpts = append(ghOpts,
			github.WithToken(token),
			github.WithLimiter(github.NewGitHubLimiter(true)),
		)
		curOpts = append(curOpts, curated.WithToken(token))
	}
	adapters := []sources.Adapter{
		github.NewAdapter(ghOpts...),
		youtube.NewAdapter(cfg.GetYouTubeAPIKey()),
		curated.NewAdapter(curOpts...),
	}

	opts := []ClientSetOption{
		WithAdapters(adapters...),
		WithAggregatorOptions(aggregate.WithCacheTTL(cfg.GetResultCacheTTL())),
	}
	if cfg.GetOpenAIAPIKey() != "" {
		strategy := plan.NewLLMForConfig(cfg, aiopenai.NewClientForConfig(cfg))
		opts = append(opts, WithGeneratorOptions(plan.WithStrategy(strategy)))
	}
	return New(db, cfg, opts...), nil
}

// New constructs a LearnTrail with the given database and options.
func New(db *database.Database, cfg *config.Config, opts ...ClientSetOption) *LearnTrail {
	var o ClientSetOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &LearnTrail{
		db:  db,
		cfg: cfg,
		agg: aggregate.New(db, o.adapters, o.aggOpts...),
		gen: plan.New(db, o.planOpts...),
	}
}

// Aggregator returns the resource aggregation pipeline.
func (lt *LearnTrail) Aggregator() *aggregate.Aggregator { return lt.agg }

// Planner returns the plan generator.
func (lt *LearnTrail) Planner() *plan.Generator { return lt.gen }

// Database returns the underlying store.
func (lt *LearnTrail) Database() *database.Database { return lt.db }

func (lt *LearnTrail) Close() error {
	if lt.db != nil {
		return lt.db.Close()
	}
	return nil
}

// Ping verifies that all configured clients are reachable.
func (lt *LearnTrail) Ping(ctx context.Context) error {
	if lt.db == nil {
		return fmt.Errorf("database not configured")
	}
	if err := lt.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
