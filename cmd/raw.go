package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bernd/meter/report"
	"github.com/bernd/meter/usage"
	"github.com/urfave/cli/v3"
)

func RawCommand() *cli.Command {
	return &cli.Command{
		Name:  "raw",
		Usage: "Print the fetched usage buckets as JSON",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			opts, err := loadOptions(cmd)
			if err != nil {
				return err
			}

			r, err := newRunner(opts, cmd.Root().Writer)
			if err != nil {
				return err
			}
			return r.run(ctx, opts, rawReport)
		},
	}
}

func rawReport(opts *options, buckets []usage.Bucket) (report.Report, error) {
	if buckets == nil {
		buckets = []usage.Bucket{}
	}

	var data []byte
	var err error
	if opts.unformatted {
		data, err = json.Marshal(buckets)
	} else {
		data, err = json.MarshalIndent(buckets, "", "  ")
	}
	if err != nil {
		return nil, fmt.Errorf("encode buckets: %w", err)
	}
	return report.Raw(data), nil
}
