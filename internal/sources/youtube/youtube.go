package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/utils/ptr"
	"learntrail.dev/internal/sources"
)

const defaultBaseURL = "https://www.googleapis.com/youtube/v3"

// Adapter searches YouTube videos through the Data API v3.
type Adapter struct {
	apiKey  string
	baseURL string
	hc      *http.Client
	l       *rate.Limiter
}

// AdapterOptions configures the YouTube adapter.
type AdapterOptions struct {
	baseURL string
	hc      *http.Client
	limiter *rate.Limiter
}

// AdapterOption applies a configuration to AdapterOptions.
type AdapterOption func(*AdapterOptions)

// WithBaseURL overrides the API base URL (used by tests).
func WithBaseURL(u string) AdapterOption {
	return func(o *AdapterOptions) { o.baseURL = u }
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) AdapterOption {
	return func(o *AdapterOptions) { o.hc = hc }
}

// WithLimiter sets the rate limiter used for API calls.
func WithLimiter(l *rate.Limiter) AdapterOption {
	return func(o *AdapterOptions) { o.limiter = l }
}

// NewAdapter constructs a YouTube search adapter with the given API key and options.
func NewAdapter(apiKey string, opts ...AdapterOption) *Adapter {
	o := AdapterOptions{
		baseURL: defaultBaseURL,
		hc:      &http.Client{Timeout: 20 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Adapter{apiKey: apiKey, baseURL: o.baseURL, hc: o.hc, l: o.limiter}
}

func (a *Adapter) Name() string { return "youtube" }

// Available reports whether an API key is configured.
func (a *Adapter) Available(ctx context.Context) bool { return a.apiKey != "" }

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			Description  string `json:"description"`
			PublishedAt  string `json:"publishedAt"`
			ChannelTitle string `json:"channelTitle"`
		} `json:"snippet"`
	} `json:"items"`
}

type videosResponse struct {
	Items []struct {
		ID             string `json:"id"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
		Statistics struct {
			ViewCount string `json:"viewCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// Search runs a video search followed by a videos.list lookup for duration
// and view counts, and maps the merged results to raw candidates.
func (a *Adapter) Search(
	ctx context.Context,
	topic string,
	opts sources.SearchOptions,
) ([]sources.RawCandidate, error) {
	if a.apiKey == "" {
		return nil, fmt.Errorf("youtube api key not configured")
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 || maxResults > 50 {
		maxResults = 20
	}

	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("type", "video")
	q.Set("q", topic+" tutorial")
	q.Set("maxResults", strconv.Itoa(maxResults))
	q.Set("key", a.apiKey)
	var sr searchResponse
	if err := a.get(ctx, "/search", q, &sr); err != nil {
		return nil, fmt.Errorf("youtube search failed: %w", err)
	}
	if len(sr.Items) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(sr.Items))
	for _, it := range sr.Items {
		if it.ID.VideoID != "" {
			ids = append(ids, it.ID.VideoID)
		}
	}
	q = url.Values{}
	q.Set("part", "contentDetails,statistics")
	q.Set("id", strings.Join(ids, ","))
	q.Set("key", a.apiKey)
	var vr videosResponse
	if err := a.get(ctx, "/videos", q, &vr); err != nil {
		// Details are an enrichment; candidates are still usable without them.
		slog.WarnContext(ctx, "youtube video details lookup failed", "error", err)
	}
	type details struct {
		minutes float64
		views   int64
	}
	detailsByID := make(map[string]details, len(vr.Items))
	for _, it := range vr.Items {
		d := details{minutes: parseISODurationMinutes(it.ContentDetails.Duration)}
		if v, err := strconv.ParseInt(it.Statistics.ViewCount, 10, 64); err == nil {
			d.views = v
		}
		detailsByID[it.ID] = d
	}

	out := make([]sources.RawCandidate, 0, len(sr.Items))
	for _, it := range sr.Items {
		if it.ID.VideoID == "" {
			continue
		}
		cand := sources.RawCandidate{
			URL:         "https://www.youtube.com/watch?v=" + it.ID.VideoID,
			Title:       it.Snippet.Title,
			Description: it.Snippet.Description,
			Platform:    "youtube",
		}
		if d, ok := detailsByID[it.ID.VideoID]; ok {
			cand.DurationMinutes = d.minutes
			cand.ViewCount = d.views
		}
		if ts, err := time.Parse(time.RFC3339, it.Snippet.PublishedAt); err == nil {
			cand.PublishedAt = ptr.To(ts)
		}
		out = append(out, cand)
	}
	slog.DebugContext(ctx, "youtube search done", "topic", topic, "count", len(out))
	return out, nil
}

func (a *Adapter) get(ctx context.Context, path string, q url.Values, into any) error {
	if err := a.l.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	resp, err := a.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("youtube api error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}
	return json.NewDecoder(resp.Body).Decode(into)
}

// parseISODurationMinutes converts an ISO-8601 duration like "PT1H23M45S"
// to minutes. Returns 0 for anything it cannot parse.
func parseISODurationMinutes(iso string) float64 {
	if !strings.HasPrefix(iso, "PT") {
		return 0
	}
	rest := strings.TrimPrefix(iso, "PT")
	var minutes float64
	num := ""
	for _, r := range rest {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
		case r == 'H' || r == 'M' || r == 'S':
			v, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0
			}
			switch r {
			case 'H':
				minutes += v * 60
			case 'M':
				minutes += v
			case 'S':
				minutes += v / 60
			}
			num = ""
		default:
			return 0
		}
	}
	return minutes
}
