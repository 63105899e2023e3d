package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/i474232898/airq/internal/airquality"
)

var errCollectFailed = errors.New("collection failed")

func newCollectCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect <sink.json> <span-seconds>",
		Short: "Run one collection into a JSON dataset",
		Long: `Loads the dataset at sink.json (starting empty when it is missing or
unreadable), merges the current feed into it, drops readings older than
span-seconds before the newest collection and writes it back.

A negative span keeps everything. Flags go before the sink:

  airq collect --config airq.yaml data/aqi.json -1`,
		Args: func(_ *cobra.Command, args []string) error {
			_, _, err := parseCollectArgs(args)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			sink, retention, err := parseCollectArgs(args)
			if err != nil {
				return err
			}

			archive, err := a.openArchive(cmd.Context())
			if err != nil {
				return err
			}
			if archive != nil {
				defer a.closeArchive(archive)
			}

			svc := a.buildService(prometheus.NewRegistry(), archive)
			if !svc.Collect(cmd.Context(), sink, retention) {
				return errCollectFailed
			}
			return nil
		},
	}
	// Stop flag parsing at the sink so a negative span is not read as a flag.
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func parseCollectArgs(args []string) (string, airquality.Retention, error) {
	if len(args) != 2 {
		return "", airquality.Retention{}, fmt.Errorf("expected <sink.json> <span-seconds>, got %d arguments", len(args))
	}
	sink := args[0]
	if !strings.HasSuffix(sink, ".json") {
		return "", airquality.Retention{}, fmt.Errorf("sink %q must be a .json file", sink)
	}
	span, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return "", airquality.Retention{}, fmt.Errorf("span %q must be an integer number of seconds", args[1])
	}
	return sink, airquality.RetentionFromSeconds(span), nil
}
