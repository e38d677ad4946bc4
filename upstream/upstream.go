package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bernd/meter/usage"
	"golang.org/x/time/rate"
)

const (
	// DefaultPageInterval spaces out page requests to stay clear of the
	// admin API rate limits.
	DefaultPageInterval = 5 * time.Second

	requestTimeout = 30 * time.Second
	maxErrorBody   = 512
)

// Fetcher retrieves usage buckets for one provider. progress, if non-nil,
// is called with the 1-based page number before each page request.
type Fetcher interface {
	Provider() usage.Provider
	Fetch(ctx context.Context, start time.Time, end *time.Time, progress func(page int)) ([]usage.Bucket, error)
}

// APIError is returned for non-2xx responses.
type APIError struct {
	Provider usage.Provider
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s usage API returned %d %s", e.Provider, e.Status, http.StatusText(e.Status))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// pageFunc fetches one page and returns its buckets plus the token for the
// next page, or "" when there are no more pages.
type pageFunc func(ctx context.Context, page string) ([]usage.Bucket, string, error)

// paginate walks pages until the provider reports no more data. Requests
// after the first are paced by a limiter allowing one request per interval.
func paginate(ctx context.Context, interval time.Duration, progress func(int), fetch pageFunc) ([]usage.Bucket, error) {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	limiter := rate.NewLimiter(limit, 1)

	var out []usage.Bucket
	next := ""
	for page := 1; ; page++ {
		if progress != nil {
			progress(page)
		}
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		buckets, token, err := fetch(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		out = append(out, buckets...)

		if token == "" {
			return out, nil
		}
		next = token
	}
}

// getJSON performs req and decodes a 2xx JSON body into target.
func getJSON(client *http.Client, provider usage.Provider, req *http.Request, target any) error {
	if client == nil {
		client = &http.Client{Timeout: requestTimeout}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s usage request: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			Provider: provider,
			Status:   resp.StatusCode,
			Body:     strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s usage response: %w", provider, err)
	}
	return nil
}

func nextToken(hasMore bool, next *string) string {
	if !hasMore || next == nil {
		return ""
	}
	return *next
}

func baseURL(configured, fallback string) string {
	if strings.TrimSpace(configured) == "" {
		return fallback
	}
	return configured
}
