package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bernd/meter/cache"
	"github.com/bernd/meter/config"
	"github.com/bernd/meter/report"
	"github.com/bernd/meter/tui"
	"github.com/bernd/meter/upstream"
	"github.com/bernd/meter/usage"
)

// produceFunc turns fetched buckets into the report of one command.
type produceFunc func(opts *options, buckets []usage.Bucket) (report.Report, error)

// runner executes a command against the cache and the upstream APIs.
type runner struct {
	store    *cache.Store
	fetchers map[usage.Provider]upstream.Fetcher
	now      func() time.Time
	out      io.Writer
	// animate shows the progress indicator on stderr while fetching.
	animate bool
	debug   bool
}

func newFetchers(creds config.Credentials) map[usage.Provider]upstream.Fetcher {
	return map[usage.Provider]upstream.Fetcher{
		usage.ProviderAnthropic: &upstream.Anthropic{Key: creds.Anthropic},
		usage.ProviderOpenAI:    &upstream.OpenAI{Key: creds.OpenAI},
	}
}

func (r *runner) debugf(format string, args ...any) {
	if r.debug {
		tui.Debug(format, args...)
	}
}

// run prints the cached output for opts if it is still fresh. Otherwise it
// fetches, renders, stores and prints. A failed cache write is returned
// after the output has been printed.
func (r *runner) run(ctx context.Context, opts *options, produce produceFunc) error {
	sig, err := cache.Signature(opts.cacheRequest())
	if err != nil {
		return err
	}
	r.debugf("signature %s, entry %s", sig, r.store.Path(sig))

	now := r.now()
	text, ok, err := r.store.Lookup(sig, opts.ttlMinutes, now)
	if err != nil {
		return fmt.Errorf("cache failed to load, aborting to avoid hammering the API: %w", err)
	}
	if ok {
		r.debugf("cache hit")
		_, err := fmt.Fprintln(r.out, text)
		return err
	}
	r.debugf("cache miss")

	buckets, err := r.fetch(ctx, opts, now)
	if err != nil {
		return err
	}

	rep, err := produce(opts, buckets)
	if err != nil {
		return err
	}
	text, err = report.Render(rep, opts.renderOptions())
	if err != nil {
		return err
	}

	var writeErr error
	if text != "" {
		written, err := r.store.Put(sig, text, opts.ttlMinutes, now)
		if err != nil {
			writeErr = fmt.Errorf("cache write failed: %w", err)
		} else {
			r.debugf("cache written: %t", written)
		}
	}

	if _, err := fmt.Fprintln(r.out, text); err != nil {
		return err
	}
	return writeErr
}

func (r *runner) fetch(ctx context.Context, opts *options, now time.Time) ([]usage.Bucket, error) {
	var progress *tui.Progress
	if r.animate {
		progress = tui.StartProgress(os.Stderr)
	}
	defer progress.Stop()

	start := config.StartOfDay(now, opts.sinceDays)
	var all []usage.Bucket
	for _, p := range opts.providers {
		f, ok := r.fetchers[p]
		if !ok {
			return nil, fmt.Errorf("no client for provider %s", p)
		}
		buckets, err := f.Fetch(ctx, start, nil, func(page int) {
			progress.Page(string(p), page)
		})
		if err != nil {
			return nil, fmt.Errorf("fetch %s usage: %w", p, err)
		}
		r.debugf("fetched %d buckets from %s since %s", len(buckets), p, start.Format(time.RFC3339))
		all = append(all, buckets...)
	}
	return all, nil
}

// newRunner wires the production dependencies for opts.
func newRunner(opts *options, out io.Writer) (*runner, error) {
	dir, err := cache.DefaultDir()
	if err != nil {
		return nil, err
	}

	if out == nil {
		out = os.Stdout
	}
	return &runner{
		store:    cache.NewStore(dir),
		fetchers: newFetchers(opts.creds),
		now:      time.Now,
		out:      out,
		animate:  !opts.noAnimate && !opts.debug,
		debug:    opts.debug,
	}, nil
}
