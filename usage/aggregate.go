package usage

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/bernd/meter/pricing"
	"github.com/bernd/meter/report"
)

// Metric selects what a sum measures.
type Metric string

const (
	MetricCost   Metric = "cost"
	MetricTokens Metric = "tokens"
)

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case MetricCost, MetricTokens:
		return m, nil
	}
	return "", fmt.Errorf("invalid metric %q (expected cost or tokens)", s)
}

// Grouping selects how a sum is broken down. The zero value means a single
// total.
type Grouping string

const (
	GroupNone    Grouping = ""
	GroupByModel Grouping = "model"
)

// ParseGrouping validates a grouping name. The empty string is a total.
func ParseGrouping(s string) (Grouping, error) {
	switch g := Grouping(s); g {
	case GroupNone, GroupByModel:
		return g, nil
	}
	return "", fmt.Errorf("invalid grouping %q (expected model)", s)
}

// Request describes one aggregation.
type Request struct {
	Metric  Metric
	GroupBy Grouping
	// Providers restricts which buckets are considered. Empty means all.
	Providers []Provider
}

// SourcedEntry is an entry tagged with the provider of its bucket.
type SourcedEntry struct {
	Provider Provider
	Entry
}

// Group is the collapsed usage of one Key along with the rule that priced
// it.
type Group struct {
	Rule  pricing.Rule
	Usage Collapsed
}

// Aggregator folds usage buckets into reports.
type Aggregator struct {
	resolver *pricing.Resolver
}

func NewAggregator(resolver *pricing.Resolver) *Aggregator {
	return &Aggregator{resolver: resolver}
}

// Aggregate runs the whole pipeline. It is all-or-nothing: a single entry
// without a pricing rule fails the aggregation and no report is returned.
func (a *Aggregator) Aggregate(buckets []Bucket, req Request) (report.Report, error) {
	groups, err := a.Collapse(Flatten(filterProviders(buckets, req.Providers)))
	if err != nil {
		return nil, err
	}

	switch req.Metric {
	case MetricTokens:
		byModel := CollapseTokens(groups)
		if req.GroupBy == GroupByModel {
			out := make(report.Map, len(byModel))
			for model, n := range byModel {
				out[model] = report.Token(n)
			}
			return out, nil
		}
		return report.Token(Fold(byModel)), nil

	case MetricCost:
		byModel := CollapseCost(groups)
		if req.GroupBy == GroupByModel {
			out := make(report.Map, len(byModel))
			for model, cost := range byModel {
				out[model] = report.Money(cost)
			}
			return out, nil
		}
		return report.Money(Fold(byModel)), nil
	}

	return nil, fmt.Errorf("invalid metric %q", req.Metric)
}

// Flatten concatenates the entries of every bucket, keeping bucket order
// and dropping the time boundaries.
func Flatten(buckets []Bucket) []SourcedEntry {
	var out []SourcedEntry
	for _, b := range buckets {
		for _, e := range b.Results {
			out = append(out, SourcedEntry{Provider: b.Provider, Entry: e})
		}
	}
	return out
}

// Collapse resolves every entry's price and sums entries sharing a Key.
func (a *Aggregator) Collapse(entries []SourcedEntry) (map[Key]Group, error) {
	groups := make(map[Key]Group)
	for _, e := range entries {
		rule, err := a.resolver.Resolve(e.Model, e.ContextWindow)
		if err != nil {
			return nil, err
		}

		key := Key{Provider: e.Provider, Model: rule.BaseModelName}
		g, ok := groups[key]
		if !ok {
			g.Rule = rule
		}
		g.Usage = g.Usage.Add(FromEntry(e.Entry))
		groups[key] = g
	}
	return groups, nil
}

// CollapseTokens converts groups to token totals keyed by model, summing
// the same model across providers.
func CollapseTokens(groups map[Key]Group) map[string]uint64 {
	out := make(map[string]uint64)
	for _, k := range sortedKeys(groups) {
		out[k.Model] += groups[k].Usage.TotalTokens()
	}
	return out
}

// CollapseCost converts groups to dollar costs keyed by model, summing the
// same model across providers. Keys are visited in a fixed order so float
// sums do not depend on map iteration.
func CollapseCost(groups map[Key]Group) map[string]float64 {
	out := make(map[string]float64)
	for _, k := range sortedKeys(groups) {
		g := groups[k]
		out[k.Model] += g.Rule.Cost(g.Usage.InputTokens(), g.Usage.OutputTokens)
	}
	return out
}

// Fold sums every value of m in key order.
func Fold[T uint64 | float64](m map[string]T) T {
	var total T
	for _, k := range slices.Sorted(maps.Keys(m)) {
		total += m[k]
	}
	return total
}

func sortedKeys(groups map[Key]Group) []Key {
	return slices.SortedFunc(maps.Keys(groups), func(a, b Key) int {
		return cmp.Or(cmp.Compare(a.Provider, b.Provider), cmp.Compare(a.Model, b.Model))
	})
}

func filterProviders(buckets []Bucket, providers []Provider) []Bucket {
	if len(providers) == 0 {
		return buckets
	}
	out := make([]Bucket, 0, len(buckets))
	for _, b := range buckets {
		if slices.Contains(providers, b.Provider) {
			out = append(out, b)
		}
	}
	return out
}
