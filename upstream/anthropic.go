package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bernd/meter/usage"
)

const (
	AnthropicURL = "https://api.anthropic.com/v1/organizations/usage_report/messages"

	anthropicVersion     = "2023-06-01"
	anthropicBucketWidth = "1h"
)

var anthropicGroupBy = []string{"model", "context_window", "workspace_id", "api_key_id"}

// Anthropic reads the organization messages usage report. It needs an admin
// API key.
type Anthropic struct {
	Key  string
	HTTP *http.Client
	// URL overrides AnthropicURL.
	URL string
	// PageInterval overrides DefaultPageInterval when non-zero. A negative
	// value disables pacing.
	PageInterval time.Duration
}

func (a *Anthropic) Provider() usage.Provider {
	return usage.ProviderAnthropic
}

func (a *Anthropic) Fetch(ctx context.Context, start time.Time, end *time.Time, progress func(int)) ([]usage.Bucket, error) {
	return paginate(ctx, pageInterval(a.PageInterval), progress, func(ctx context.Context, page string) ([]usage.Bucket, string, error) {
		return a.fetchPage(ctx, start, end, page)
	})
}

func (a *Anthropic) fetchPage(ctx context.Context, start time.Time, end *time.Time, page string) ([]usage.Bucket, string, error) {
	q := url.Values{}
	q.Set("starting_at", start.UTC().Format(time.RFC3339))
	q.Set("bucket_width", anthropicBucketWidth)
	for _, g := range anthropicGroupBy {
		q.Add("group_by[]", g)
	}
	if end != nil {
		q.Set("ending_at", end.UTC().Format(time.RFC3339))
	}
	if page != "" {
		q.Set("page", page)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL(a.URL, AnthropicURL)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("x-api-key", a.Key)

	var body anthropicReport
	if err := getJSON(a.HTTP, usage.ProviderAnthropic, req, &body); err != nil {
		return nil, "", err
	}

	buckets := make([]usage.Bucket, 0, len(body.Data))
	for _, b := range body.Data {
		bucket, err := b.unify()
		if err != nil {
			return nil, "", err
		}
		buckets = append(buckets, bucket)
	}
	return buckets, nextToken(body.HasMore, body.NextPage), nil
}

type anthropicReport struct {
	Data     []anthropicBucket `json:"data"`
	HasMore  bool              `json:"has_more"`
	NextPage *string           `json:"next_page"`
}

type anthropicBucket struct {
	StartingAt string            `json:"starting_at"`
	EndingAt   string            `json:"ending_at"`
	Results    []anthropicResult `json:"results"`
}

type anthropicResult struct {
	UncachedInputTokens  uint64 `json:"uncached_input_tokens"`
	CacheReadInputTokens uint64 `json:"cache_read_input_tokens"`
	CacheCreation        struct {
		Ephemeral1hInputTokens uint64 `json:"ephemeral_1h_input_tokens"`
		Ephemeral5mInputTokens uint64 `json:"ephemeral_5m_input_tokens"`
	} `json:"cache_creation"`
	OutputTokens  uint64  `json:"output_tokens"`
	APIKeyID      *string `json:"api_key_id"`
	Model         *string `json:"model"`
	WorkspaceID   *string `json:"workspace_id"`
	ServiceTier   *string `json:"service_tier"`
	ContextWindow *string `json:"context_window"`
}

func (b anthropicBucket) unify() (usage.Bucket, error) {
	start, err := time.Parse(time.RFC3339, b.StartingAt)
	if err != nil {
		return usage.Bucket{}, fmt.Errorf("parse starting_at %q: %w", b.StartingAt, err)
	}
	end, err := time.Parse(time.RFC3339, b.EndingAt)
	if err != nil {
		return usage.Bucket{}, fmt.Errorf("parse ending_at %q: %w", b.EndingAt, err)
	}

	results := make([]usage.Entry, 0, len(b.Results))
	for _, r := range b.Results {
		// Cache creation tokens are left out of the unified entry.
		results = append(results, usage.Entry{
			UncachedInputTokens:  r.UncachedInputTokens,
			CacheReadInputTokens: r.CacheReadInputTokens,
			OutputTokens:         r.OutputTokens,
			Model:                deref(r.Model),
			ContextWindow:        deref(r.ContextWindow),
		})
	}

	return usage.Bucket{
		Start:    start.Unix(),
		End:      end.Unix(),
		Results:  results,
		Provider: usage.ProviderAnthropic,
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func pageInterval(d time.Duration) time.Duration {
	if d == 0 {
		return DefaultPageInterval
	}
	return d
}
