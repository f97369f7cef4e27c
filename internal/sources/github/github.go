package github

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/go-github/v75/github"
	"golang.org/x/time/rate"
	"k8s.io/utils/ptr"
	"learntrail.dev/internal/sources"
)

// NewGitHubLimiter returns a rate limiter tuned for authenticated or unauthenticated GitHub API usage.
func NewGitHubLimiter(authenticated bool) *rate.Limiter {
	if authenticated {
		return rate.NewLimiter(rate.Every(time.Hour/5000), 10)
	}
	return rate.NewLimiter(rate.Every(time.Hour/60), 1)
}

// Adapter searches GitHub repositories as learning resources.
type Adapter struct {
	c *github.Client
	l *rate.Limiter
}

// AdapterOptions configures the GitHub adapter.
type AdapterOptions struct {
	token   string
	limiter *rate.Limiter
}

// AdapterOption applies a configuration to AdapterOptions.
type AdapterOption func(*AdapterOptions)

// WithToken sets the personal access token for authenticated requests.
func WithToken(token string) AdapterOption {
	return func(o *AdapterOptions) { o.token = token }
}

// WithLimiter sets the rate limiter used for API calls.
func WithLimiter(l *rate.Limiter) AdapterOption {
	return func(o *AdapterOptions) { o.limiter = l }
}

// NewAdapter constructs a GitHub search adapter with the given options.
func NewAdapter(opts ...AdapterOption) *Adapter {
	var o AdapterOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.limiter == nil {
		o.limiter = NewGitHubLimiter(o.token != "")
	}
	if o.token != "" {
		slog.Info("Using authenticated GitHub client")
		return &Adapter{c: github.NewClient(nil).WithAuthToken(o.token), l: o.limiter}
	}
	slog.Warn("Using unauthenticated GitHub client (rate limited)")
	return &Adapter{c: github.NewClient(nil), l: o.limiter}
}

func (a *Adapter) Name() string { return "github" }

// Available reports whether the adapter can serve searches. GitHub search
// works without credentials, so the adapter is always available.
func (a *Adapter) Available(ctx context.Context) bool { return true }

// Search queries the repository search API ordered by stars and maps each
// hit to a raw candidate.
func (a *Adapter) Search(
	ctx context.Context,
	topic string,
	opts sources.SearchOptions,
) ([]sources.RawCandidate, error) {
	if err := a.l.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}
	perPage := opts.MaxResults
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}
	res, _, err := a.c.Search.Repositories(ctx, topic, &github.SearchOptions{
		Sort:        "stars",
		Order:       "desc",
		ListOptions: github.ListOptions{PerPage: perPage},
	})
	if err != nil {
		return nil, fmt.Errorf("github repository search failed: %w", err)
	}
	out := make([]sources.RawCandidate, 0, len(res.Repositories))
	for _, repo := range res.Repositories {
		if repo.GetHTMLURL() == "" {
			continue
		}
		cand := sources.RawCandidate{
			URL:         repo.GetHTMLURL(),
			Title:       repo.GetFullName(),
			Description: repo.GetDescription(),
			Platform:    "github",
			Stars:       int64(ptr.Deref(repo.StargazersCount, 0)),
		}
		if pushed := repo.GetPushedAt(); !pushed.IsZero() {
			cand.LastUpdated = ptr.To(pushed.Time)
		}
		if created := repo.GetCreatedAt(); !created.IsZero() {
			cand.PublishedAt = ptr.To(created.Time)
		}
		out = append(out, cand)
	}
	slog.DebugContext(ctx, "github search done", "topic", topic, "count", len(out))
	return out, nil
}
