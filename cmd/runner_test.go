package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bernd/meter/cache"
	"github.com/bernd/meter/config"
	"github.com/bernd/meter/pricing"
	"github.com/bernd/meter/report"
	"github.com/bernd/meter/upstream"
	"github.com/bernd/meter/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	provider usage.Provider
	buckets  []usage.Bucket
	err      error
	calls    int
	start    time.Time
}

func (f *fakeFetcher) Provider() usage.Provider { return f.provider }

func (f *fakeFetcher) Fetch(ctx context.Context, start time.Time, end *time.Time, progress func(int)) ([]usage.Bucket, error) {
	f.calls++
	f.start = start
	if progress != nil {
		progress(1)
	}
	return f.buckets, f.err
}

func haikuUsage() []usage.Bucket {
	return []usage.Bucket{
		{
			Start:    1_700_000_000,
			End:      1_700_003_600,
			Provider: usage.ProviderAnthropic,
			Results:  []usage.Entry{{UncachedInputTokens: 1_000_000, Model: "claude-haiku-4-5-20251001"}},
		},
		{
			Start:    1_700_003_600,
			End:      1_700_007_200,
			Provider: usage.ProviderAnthropic,
			Results:  []usage.Entry{{OutputTokens: 1_000_000, Model: "claude-haiku-4-5-20251001"}},
		},
	}
}

func testRunner(t *testing.T, fetcher *fakeFetcher) (*runner, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return &runner{
		store:    cache.NewStore(filepath.Join(t.TempDir(), "cache")),
		fetchers: map[usage.Provider]upstream.Fetcher{fetcher.provider: fetcher},
		now:      time.Now,
		out:      &out,
	}, &out
}

func sumOptions(metric usage.Metric, groupBy usage.Grouping) *options {
	return &options{
		command:    "sum",
		metric:     metric,
		groupBy:    groupBy,
		ttlMinutes: 1,
		providers:  []usage.Provider{usage.ProviderAnthropic},
		creds:      config.Credentials{Anthropic: "sk-ant"},
		table:      pricing.Default(),
	}
}

func TestRunner_CostTotal(t *testing.T) {
	fetcher := &fakeFetcher{provider: usage.ProviderAnthropic, buckets: haikuUsage()}
	r, out := testRunner(t, fetcher)

	require.NoError(t, r.run(context.Background(), sumOptions(usage.MetricCost, ""), sumReport))
	assert.Equal(t, "$6.00\n", out.String())
}

func TestRunner_SecondRunIsServedFromCache(t *testing.T) {
	fetcher := &fakeFetcher{provider: usage.ProviderAnthropic, buckets: haikuUsage()}
	r, out := testRunner(t, fetcher)
	opts := sumOptions(usage.MetricTokens, usage.GroupByModel)

	require.NoError(t, r.run(context.Background(), opts, sumReport))
	require.NoError(t, r.run(context.Background(), opts, sumReport))

	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, "claude-haiku-4-5,2000000\nclaude-haiku-4-5,2000000\n", out.String())
}

func TestRunner_ZeroTTLAlwaysFetches(t *testing.T) {
	fetcher := &fakeFetcher{provider: usage.ProviderAnthropic, buckets: haikuUsage()}
	r, _ := testRunner(t, fetcher)
	opts := sumOptions(usage.MetricCost, "")
	opts.ttlMinutes = 0

	require.NoError(t, r.run(context.Background(), opts, sumReport))
	require.NoError(t, r.run(context.Background(), opts, sumReport))
	assert.Equal(t, 2, fetcher.calls)
}

func TestRunner_DifferentRequestsDoNotShareEntries(t *testing.T) {
	fetcher := &fakeFetcher{provider: usage.ProviderAnthropic, buckets: haikuUsage()}
	r, out := testRunner(t, fetcher)

	require.NoError(t, r.run(context.Background(), sumOptions(usage.MetricCost, ""), sumReport))
	require.NoError(t, r.run(context.Background(), sumOptions(usage.MetricTokens, ""), sumReport))

	assert.Equal(t, 2, fetcher.calls)
	assert.Equal(t, "$6.00\n2000000\n", out.String())
}

func TestRunner_FetchStartsAtLocalMidnight(t *testing.T) {
	fetcher := &fakeFetcher{provider: usage.ProviderAnthropic}
	r, _ := testRunner(t, fetcher)
	now := time.Date(2026, 5, 20, 17, 45, 0, 0, time.Local)
	r.now = func() time.Time { return now }

	opts := sumOptions(usage.MetricTokens, "")
	opts.sinceDays = 3
	require.NoError(t, r.run(context.Background(), opts, sumReport))

	assert.Equal(t, time.Date(2026, 5, 17, 0, 0, 0, 0, time.Local), fetcher.start)
}

func TestRunner_CacheLoadFailureAbortsBeforeFetching(t *testing.T) {
	fetcher := &fakeFetcher{provider: usage.ProviderAnthropic, buckets: haikuUsage()}
	r, out := testRunner(t, fetcher)

	// A regular file where the cache directory should be makes every stat fail.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	r.store = cache.NewStore(blocker)

	err := r.run(context.Background(), sumOptions(usage.MetricCost, ""), sumReport)
	assert.ErrorContains(t, err, "cache failed to load, aborting to avoid hammering the API")
	assert.Equal(t, 0, fetcher.calls)
	assert.Empty(t, out.String())
}

func TestRunner_CacheWriteFailureStillPrints(t *testing.T) {
	fetcher := &fakeFetcher{provider: usage.ProviderAnthropic, buckets: haikuUsage()}
	r, out := testRunner(t, fetcher)
	opts := sumOptions(usage.MetricCost, "")
	opts.ttlMinutes = 0

	// A directory at the entry path makes the final rename fail.
	sig, err := cache.Signature(opts.cacheRequest())
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(r.store.Path(sig), 0o755))

	err = r.run(context.Background(), opts, sumReport)
	assert.ErrorContains(t, err, "cache write failed")
	assert.Equal(t, "$6.00\n", out.String())
}

func TestRunner_EmptyOutputIsNotCached(t *testing.T) {
	fetcher := &fakeFetcher{provider: usage.ProviderAnthropic}
	r, out := testRunner(t, fetcher)
	opts := sumOptions(usage.MetricCost, usage.GroupByModel)

	require.NoError(t, r.run(context.Background(), opts, sumReport))
	assert.Equal(t, "\n", out.String())

	sig, err := cache.Signature(opts.cacheRequest())
	require.NoError(t, err)
	assert.NoFileExists(t, r.store.Path(sig))
}

func TestRunner_UnpricedModelPrintsNothing(t *testing.T) {
	buckets := haikuUsage()
	buckets[0].Results[0].Model = "claude-unreleased"
	fetcher := &fakeFetcher{provider: usage.ProviderAnthropic, buckets: buckets}
	r, out := testRunner(t, fetcher)
	opts := sumOptions(usage.MetricCost, "")

	err := r.run(context.Background(), opts, sumReport)

	var notFound *pricing.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "claude-unreleased", notFound.Model)
	assert.Empty(t, out.String())

	sig, err := cache.Signature(opts.cacheRequest())
	require.NoError(t, err)
	assert.NoFileExists(t, r.store.Path(sig))
}

func TestRunner_FetchErrorNamesProvider(t *testing.T) {
	fetcher := &fakeFetcher{provider: usage.ProviderAnthropic, err: errors.New("connection refused")}
	r, _ := testRunner(t, fetcher)

	err := r.run(context.Background(), sumOptions(usage.MetricCost, ""), sumReport)
	assert.ErrorContains(t, err, "fetch anthropic usage: connection refused")
}

func TestRunner_MissingClient(t *testing.T) {
	fetcher := &fakeFetcher{provider: usage.ProviderAnthropic}
	r, _ := testRunner(t, fetcher)
	opts := sumOptions(usage.MetricCost, "")
	opts.providers = []usage.Provider{usage.ProviderOpenAI}

	err := r.run(context.Background(), opts, sumReport)
	assert.ErrorContains(t, err, "no client for provider openai")
}

func TestRawReport(t *testing.T) {
	buckets := haikuUsage()[:1]

	t.Run("pretty by default", func(t *testing.T) {
		rep, err := rawReport(&options{}, buckets)
		require.NoError(t, err)
		raw, ok := rep.(report.Raw)
		require.True(t, ok)
		assert.Contains(t, string(raw), "\n  ")

		var decoded []usage.Bucket
		require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
		assert.Equal(t, buckets, decoded)
	})

	t.Run("compact when unformatted", func(t *testing.T) {
		rep, err := rawReport(&options{unformatted: true}, buckets)
		require.NoError(t, err)
		assert.NotContains(t, string(rep.(report.Raw)), "\n")
	})

	t.Run("no buckets is an empty list", func(t *testing.T) {
		rep, err := rawReport(&options{}, nil)
		require.NoError(t, err)
		assert.Equal(t, report.Raw("[]"), rep)
	})
}

func TestRunner_RawGoesThroughCache(t *testing.T) {
	fetcher := &fakeFetcher{provider: usage.ProviderAnthropic, buckets: haikuUsage()}
	r, out := testRunner(t, fetcher)
	opts := &options{
		command:     "raw",
		ttlMinutes:  5,
		providers:   []usage.Provider{usage.ProviderAnthropic},
		creds:       config.Credentials{Anthropic: "sk-ant"},
		unformatted: true,
	}

	require.NoError(t, r.run(context.Background(), opts, rawReport))
	require.NoError(t, r.run(context.Background(), opts, rawReport))
	assert.Equal(t, 1, fetcher.calls)

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Equal(t, lines[0], lines[1])
}
