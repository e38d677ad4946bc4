package cmd

import (
	"context"

	"github.com/bernd/meter/pricing"
	"github.com/bernd/meter/report"
	"github.com/bernd/meter/usage"
	"github.com/urfave/cli/v3"
)

const (
	metricFlag  = "metric"
	groupByFlag = "group-by"
)

func SumCommand() *cli.Command {
	return &cli.Command{
		Name:  "sum",
		Usage: "Print total cost or tokens, optionally per model",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    metricFlag,
				Aliases: []string{"m"},
				Usage:   "What to sum: cost or tokens",
				Value:   string(usage.MetricCost),
			},
			&cli.StringFlag{
				Name:    groupByFlag,
				Aliases: []string{"g"},
				Usage:   "Break the sum down by: model",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts, err := loadOptions(cmd)
			if err != nil {
				return err
			}
			if opts.metric, err = usage.ParseMetric(cmd.String(metricFlag)); err != nil {
				return err
			}
			if opts.groupBy, err = usage.ParseGrouping(cmd.String(groupByFlag)); err != nil {
				return err
			}

			r, err := newRunner(opts, cmd.Root().Writer)
			if err != nil {
				return err
			}
			return r.run(ctx, opts, sumReport)
		},
	}
}

func sumReport(opts *options, buckets []usage.Bucket) (report.Report, error) {
	agg := usage.NewAggregator(pricing.NewResolver(opts.table))
	return agg.Aggregate(buckets, usage.Request{
		Metric:    opts.metric,
		GroupBy:   opts.groupBy,
		Providers: opts.providers,
	})
}
