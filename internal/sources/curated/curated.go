// Package curated discovers resources from community-curated "awesome"
// lists on GitHub: it resolves the best-starred awesome-<topic> repository,
// fetches its README, and parses the linked entries.
package curated

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/go-github/v75/github"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/time/rate"
	"learntrail.dev/internal/sources"
)

// Adapter parses awesome-list READMEs into raw candidates.
type Adapter struct {
	c *github.Client
	l *rate.Limiter
}

// AdapterOptions configures the curated adapter.
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

// NewAdapter constructs a curated-list adapter with the given options.
func NewAdapter(opts ...AdapterOption) *Adapter {
	var o AdapterOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.limiter == nil {
		o.limiter = rate.NewLimiter(rate.Every(time.Minute), 10)
	}
	c := github.NewClient(nil)
	if o.token != "" {
		c = c.WithAuthToken(o.token)
	}
	return &Adapter{c: c, l: o.limiter}
}

func (a *Adapter) Name() string { return "curated" }

// Available reports whether the adapter can serve searches.
func (a *Adapter) Available(ctx context.Context) bool { return true }

// Search resolves the most popular awesome-<topic> repository, reads its
// README, and returns the linked entries as candidates.
func (a *Adapter) Search(
	ctx context.Context,
	topic string,
	opts sources.SearchOptions,
) ([]sources.RawCandidate, error) {
	if err := a.l.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}
	slug := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(topic)), " ", "-")
	query := fmt.Sprintf("awesome-%s in:name", slug)
	res, _, err := a.c.Search.Repositories(ctx, query, &github.SearchOptions{
		Sort:        "stars",
		Order:       "desc",
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("awesome list lookup failed: %w", err)
	}
	if len(res.Repositories) == 0 {
		slog.DebugContext(ctx, "no curated list found", "topic", topic)
		return nil, nil
	}
	repo := res.Repositories[0]

	content, err := a.readme(ctx, repo.GetOwner().GetLogin(), repo.GetName())
	if err != nil {
		return nil, fmt.Errorf("failed to read %s README: %w", repo.GetFullName(), err)
	}

	cands := parseListEntries(content)
	if max := opts.MaxResults; max > 0 && len(cands) > max {
		cands = cands[:max]
	}
	slog.DebugContext(ctx, "curated search done", "topic", topic, "list", repo.GetFullName(), "count", len(cands))
	return cands, nil
}

// readme retrieves and decodes the README.md file for the given repository.
func (a *Adapter) readme(ctx context.Context, owner, repo string) ([]byte, error) {
	if err := a.l.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}
	file, _, _, err := a.c.Repositories.GetContents(ctx, owner, repo, "README.md", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get file content: %w", err)
	}
	return decodeContents(file)
}

// decodeContents extracts the base64 file body. The contents API returns a
// nil file for directories and nil content for symlinks and submodules.
func decodeContents(file *github.RepositoryContent) ([]byte, error) {
	if file == nil || file.Content == nil {
		return nil, fmt.Errorf("readme has no decodable content")
	}
	return base64.StdEncoding.DecodeString(*file.Content)
}

// parseListEntries walks the README markdown and turns every "[title](url) -
// description" list item into a candidate.
func parseListEntries(in []byte) []sources.RawCandidate {
	root := goldmark.New().Parser().Parse(text.NewReader(in))

	var out []sources.RawCandidate
	_ = ast.Walk(root, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		item, ok := node.(*ast.ListItem)
		if !ok {
			return ast.WalkContinue, nil
		}
		if cand, ok := candidateFromListItem(item, in); ok {
			out = append(out, cand)
		}
		return ast.WalkSkipChildren, nil
	})
	return out
}

func candidateFromListItem(item *ast.ListItem, src []byte) (sources.RawCandidate, bool) {
	cand := sources.RawCandidate{Platform: "curated"}
	_ = ast.Walk(item, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.Link:
			if cand.URL != "" {
				return ast.WalkContinue, nil
			}
			dest := string(n.Destination)
			if !strings.HasPrefix(dest, "http://") && !strings.HasPrefix(dest, "https://") {
				return ast.WalkContinue, nil
			}
			cand.URL = dest
			cand.Title = decodeText(n, src)
		case *ast.Text:
			if cand.Title == "" || cand.Description != "" {
				return ast.WalkContinue, nil
			}
			if txt := decodeText(n, src); strings.Contains(txt, " - ") {
				parts := strings.SplitN(txt, " - ", 2)
				cand.Description = strings.TrimSpace(parts[1])
			}
		}
		return ast.WalkContinue, nil
	})
	return cand, cand.URL != "" && cand.Title != ""
}

// decodeText extracts the plain text content from an AST node.
func decodeText(node ast.Node, src []byte) string {
	var sb strings.Builder
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if textNode, ok := n.(*ast.Text); ok {
				sb.Write(textNode.Segment.Value(src))
			}
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}
