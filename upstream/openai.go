package upstream

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bernd/meter/usage"
)

const (
	OpenAIURL = "https://api.openai.com/v1/organization/usage/completions"

	openAIBucketWidth = "1d"
	openAIPageLimit   = "31"
)

// OpenAI reads the organization completions usage endpoint. It needs an
// admin API key.
type OpenAI struct {
	Key  string
	HTTP *http.Client
	// URL overrides OpenAIURL.
	URL string
	// PageInterval overrides DefaultPageInterval when non-zero. A negative
	// value disables pacing.
	PageInterval time.Duration
}

func (o *OpenAI) Provider() usage.Provider {
	return usage.ProviderOpenAI
}

func (o *OpenAI) Fetch(ctx context.Context, start time.Time, end *time.Time, progress func(int)) ([]usage.Bucket, error) {
	return paginate(ctx, pageInterval(o.PageInterval), progress, func(ctx context.Context, page string) ([]usage.Bucket, string, error) {
		return o.fetchPage(ctx, start, end, page)
	})
}

func (o *OpenAI) fetchPage(ctx context.Context, start time.Time, end *time.Time, page string) ([]usage.Bucket, string, error) {
	q := url.Values{}
	q.Set("start_time", strconv.FormatInt(start.Unix(), 10))
	q.Set("bucket_width", openAIBucketWidth)
	q.Set("limit", openAIPageLimit)
	q.Add("group_by", "model")
	if end != nil {
		q.Set("end_time", strconv.FormatInt(end.Unix(), 10))
	}
	if page != "" {
		q.Set("page", page)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL(o.URL, OpenAIURL)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+o.Key)

	var body openAIPage
	if err := getJSON(o.HTTP, usage.ProviderOpenAI, req, &body); err != nil {
		return nil, "", err
	}

	buckets := make([]usage.Bucket, 0, len(body.Data))
	for _, b := range body.Data {
		buckets = append(buckets, b.unify())
	}
	return buckets, nextToken(body.HasMore, body.NextPage), nil
}

type openAIPage struct {
	Data     []openAIBucket `json:"data"`
	HasMore  bool           `json:"has_more"`
	NextPage *string        `json:"next_page"`
}

type openAIBucket struct {
	StartTime int64          `json:"start_time"`
	EndTime   int64          `json:"end_time"`
	Results   []openAIResult `json:"results"`
}

type openAIResult struct {
	InputTokens       uint64  `json:"input_tokens"`
	OutputTokens      uint64  `json:"output_tokens"`
	InputCachedTokens uint64  `json:"input_cached_tokens"`
	InputAudioTokens  uint64  `json:"input_audio_tokens"`
	OutputAudioTokens uint64  `json:"output_audio_tokens"`
	NumModelRequests  uint64  `json:"num_model_requests"`
	Model             *string `json:"model"`
	ProjectID         *string `json:"project_id"`
	APIKeyID          *string `json:"api_key_id"`
	Batch             *bool   `json:"batch"`
}

func (b openAIBucket) unify() usage.Bucket {
	results := make([]usage.Entry, 0, len(b.Results))
	for _, r := range b.Results {
		// input_tokens includes the cached part.
		cached := min(r.InputCachedTokens, r.InputTokens)
		results = append(results, usage.Entry{
			UncachedInputTokens:  r.InputTokens - cached,
			CacheReadInputTokens: cached,
			OutputTokens:         r.OutputTokens,
			Model:                deref(r.Model),
		})
	}

	return usage.Bucket{
		Start:    b.StartTime,
		End:      b.EndTime,
		Results:  results,
		Provider: usage.ProviderOpenAI,
	}
}
